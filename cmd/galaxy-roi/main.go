package main

import (
	"context"
	"log"
	"runtime"

	"galaxy-roi/internal/app"
	"galaxy-roi/internal/config"
	"galaxy-roi/internal/logger"
)

func main() {
	configureRuntime()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration invalid: %v", err)
	}

	appLogger := logger.New(cfg.LogLevel, cfg.LogFormat)
	appLogger.Info("Main", "starting", map[string]interface{}{
		"version":    app.AppVersion,
		"go_version": runtime.Version(),
		"num_cpu":    runtime.NumCPU(),
		"log_level":  cfg.LogLevel,
	})

	application, err := app.NewApplication(cfg, appLogger, nil)
	if err != nil {
		log.Fatalf("Application initialization failed: %v", err)
	}

	if err := application.Run(context.Background()); err != nil {
		log.Fatalf("Application execution failed: %v", err)
	}

	appLogger.Info("Main", "terminated", nil)
}

// configureRuntime raises the GC target for the large Mat and JPEG buffers
// a run allocates.
func configureRuntime() {
	runtime.GOMAXPROCS(runtime.NumCPU())
	runtime.SetGCPercent(200)
}
