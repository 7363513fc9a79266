package handlers

import "net/http"

// NewRouter mounts the pipeline endpoints plus /metrics when given.
func NewRouter(h *ROIHandler, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.Image)
	mux.HandleFunc("GET /image-url", h.ImageURL)
	mux.HandleFunc("GET /rois", h.Regions)
	mux.HandleFunc("GET /health", h.Health)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return mux
}
