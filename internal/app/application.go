// Package app assembles the service from its configuration and runs it.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"galaxy-roi/internal/app/handlers"
	"galaxy-roi/internal/catalog"
	"galaxy-roi/internal/classify"
	"galaxy-roi/internal/config"
	"galaxy-roi/internal/cutout"
	"galaxy-roi/internal/filter"
	"galaxy-roi/internal/logger"
	"galaxy-roi/internal/observability"
	"galaxy-roi/internal/opencv/memory"
	"galaxy-roi/internal/pipeline"
	"galaxy-roi/internal/pipeline/stages"
	"galaxy-roi/internal/services"
	"galaxy-roi/internal/sky"
)

const (
	AppName    = "galaxy-roi"
	AppVersion = "1.0.0"
)

type Application struct {
	cfg           config.Config
	log           logger.Logger
	metrics       *observability.Collector
	memoryManager *memory.Manager
	coordinator   *pipeline.Coordinator
	server        *http.Server
	lifecycle     *Lifecycle
}

// NewApplication wires every component from cfg. reg may be nil to use the
// default Prometheus registry.
func NewApplication(cfg config.Config, log logger.Logger, reg prometheus.Registerer) (*Application, error) {
	if log == nil {
		log = logger.Nop()
	}

	metrics, err := observability.NewCollector(reg)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	memoryManager := memory.NewManager(log)

	fetcher := func(service string) *services.Fetcher {
		return services.NewFetcher(services.Options{
			Service:    service,
			Timeout:    cfg.RequestTimeout,
			MaxRetries: cfg.MaxRetries,
			Observer:   metrics,
			Logger:     log,
		})
	}

	var classifier pipeline.Classifier
	if cfg.ClassifierURL != "" {
		classifier = classify.NewClient(cfg.ClassifierURL, fetcher("classifier"), memoryManager)
	}

	var saver *stages.Saver
	if cfg.WorkDir != "" {
		saver = stages.NewSaver(cfg.WorkDir, log)
	}

	coordinator := pipeline.NewCoordinator(pipeline.Options{
		Images:     cutout.NewClient(cfg.CutoutBaseURL, fetcher("cutout")),
		Catalog:    catalog.NewClient(cfg.CatalogBaseURL, cfg.CatalogLimit, fetcher("catalog")),
		Classifier: classifier,
		Saver:      saver,
		Recorder:   metrics,
		Observer:   metrics,
		Allocator:  memoryManager,
		Logger:     log,

		Threshold:   float32(cfg.Threshold),
		Bounds:      sky.Bounds{Max: sky.MaxPixels, Min: sky.MinPixels, EnforceMin: cfg.EnforceMinPixels},
		ScaleMargin: cfg.ScaleMargin,
		Filter: filter.Config{
			MinDiagonalArcsec: cfg.MinDiagonalArcsec,
			RadiusDivisor:     cfg.RadiusDivisor,
			Workers:           cfg.Workers,
		},
		Workers: cfg.Workers,
	})

	handler := handlers.NewROIHandler(coordinator, log)
	router := handlers.NewRouter(handler, metrics.Handler())

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handlers.CORS(metrics.Middleware(router)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a := &Application{
		cfg:           cfg,
		log:           log,
		metrics:       metrics,
		memoryManager: memoryManager,
		coordinator:   coordinator,
		server:        server,
	}
	a.lifecycle = NewLifecycle(a)

	log.Info("Application", "initialization complete", map[string]interface{}{
		"version":     AppVersion,
		"addr":        server.Addr,
		"workers":     cfg.Workers,
		"classifier":  cfg.ClassifierURL != "",
		"persistence": cfg.WorkDir != "",
	})
	return a, nil
}

// Handler is the root HTTP handler, middleware included.
func (a *Application) Handler() http.Handler {
	return a.server.Handler
}

// Run serves HTTP until ctx is cancelled or a shutdown signal arrives.
func (a *Application) Run(ctx context.Context) error {
	return a.lifecycle.Run(ctx)
}
