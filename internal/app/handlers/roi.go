package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"galaxy-roi/internal/logger"
	"galaxy-roi/internal/pipeline"
	"galaxy-roi/internal/sky"
)

const component = "HTTPHandler"

// Pipeline is the part of pipeline.Coordinator the handlers use.
type Pipeline interface {
	FrameURL(c1, c2 sky.Coordinate) (string, error)
	Run(ctx context.Context, c1, c2 sky.Coordinate) (*pipeline.Run, error)
	Process(ctx context.Context, c1, c2 sky.Coordinate) (*pipeline.Run, error)
}

type ROIHandler struct {
	pipeline Pipeline
	log      logger.Logger
}

func NewROIHandler(p Pipeline, log logger.Logger) *ROIHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ROIHandler{pipeline: p, log: log}
}

// Image runs the full pipeline and returns the rendered frame.
func (h *ROIHandler) Image(w http.ResponseWriter, r *http.Request) {
	c1, c2, err := parseCorners(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	run, err := h.pipeline.Process(r.Context(), c1, c2)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("X-Run-ID", run.ID)
	w.WriteHeader(http.StatusOK)
	w.Write(run.Result)
}

// ImageURL returns the wide-field cutout URL without fetching it.
func (h *ROIHandler) ImageURL(w http.ResponseWriter, r *http.Request) {
	c1, c2, err := parseCorners(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	url, err := h.pipeline.FrameURL(c1, c2)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, map[string]string{"url": url}, http.StatusOK)
}

// Regions runs detection and filtering and returns the region record.
func (h *ROIHandler) Regions(w http.ResponseWriter, r *http.Request) {
	c1, c2, err := parseCorners(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	run, err := h.pipeline.Run(r.Context(), c1, c2)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	data, err := run.Store.Serialize()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Run-ID", run.ID)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *ROIHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (h *ROIHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	fields := map[string]interface{}{
		"path":   r.URL.Path,
		"status": status,
	}
	if status >= http.StatusInternalServerError {
		h.log.Error(component, err, fields)
	} else {
		h.log.Warning(component, err.Error(), fields)
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	http.Error(w, msg, status)
}

func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
