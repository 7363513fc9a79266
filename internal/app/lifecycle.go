package app

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"galaxy-roi/internal/observability"
	"galaxy-roi/internal/shutdown"
)

// Lifecycle owns start-up and ordered shutdown of the application.
type Lifecycle struct {
	app      *Application
	shutdown *shutdown.Manager
}

func NewLifecycle(a *Application) *Lifecycle {
	return &Lifecycle{app: a, shutdown: shutdown.NewManager(a.log)}
}

// Run initialises tracing, serves HTTP and blocks until shutdown finishes.
func (l *Lifecycle) Run(ctx context.Context) error {
	a := l.app

	flush, err := observability.InitTracing(ctx, a.cfg.Tracing, a.log)
	if err != nil {
		return err
	}

	l.shutdown.Register("memory", shutdown.Func(a.memoryManager.Shutdown))
	l.shutdown.Register("tracing", shutdown.Func(func() {
		observability.ShutdownWithTimeout(context.Background(), flush, a.log)
	}))
	l.shutdown.Register("http", shutdown.Func(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := a.server.Shutdown(ctx); err != nil {
			a.log.Error("Lifecycle", err, nil)
		}
	}))
	l.shutdown.Listen()

	go func() {
		select {
		case <-ctx.Done():
			l.shutdown.Shutdown()
		case <-l.shutdown.Context().Done():
		}
	}()

	go l.monitor(l.shutdown.Context(), 30*time.Second)

	a.log.Info("Lifecycle", "listening", map[string]interface{}{"addr": a.server.Addr})

	serveErr := a.server.ListenAndServe()
	if errors.Is(serveErr, http.ErrServerClosed) {
		serveErr = nil
	}
	if serveErr != nil {
		l.shutdown.Shutdown()
	}

	<-l.shutdown.Done()
	return serveErr
}

// monitor logs Mat pool statistics until ctx ends.
func (l *Lifecycle) monitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := l.app.memoryManager.GetStats()
			l.app.log.Debug("Lifecycle", "mat memory", map[string]interface{}{
				"active_mats": stats.ActiveMats,
				"allocated":   stats.TotalAllocated,
				"released":    stats.TotalReleased,
				"pool_hits":   stats.PoolHits,
				"pool_misses": stats.PoolMisses,
				"goroutines":  runtime.NumGoroutine(),
			})
		case <-ctx.Done():
			return
		}
	}
}
