package config

import (
	"strings"
	"testing"
	"time"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(env(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.Addr() != ":8080" {
		t.Errorf("port = %q", cfg.Port)
	}
	if cfg.Workers != 4 || cfg.MaxRetries != 3 || cfg.RequestTimeout != 30*time.Second {
		t.Errorf("worker settings = %d %d %s", cfg.Workers, cfg.MaxRetries, cfg.RequestTimeout)
	}
	if cfg.Threshold != 50 || cfg.MinDiagonalArcsec != 13 || cfg.RadiusDivisor != 7.5 {
		t.Errorf("filter settings = %v %v %v", cfg.Threshold, cfg.MinDiagonalArcsec, cfg.RadiusDivisor)
	}
	if cfg.CatalogLimit != 10 || cfg.ScaleMargin != 0.02 || cfg.EnforceMinPixels {
		t.Errorf("catalog/cutout settings = %d %v %v", cfg.CatalogLimit, cfg.ScaleMargin, cfg.EnforceMinPixels)
	}
	if cfg.ClassifierURL != "" || cfg.WorkDir != "" {
		t.Errorf("optional collaborators should be off by default")
	}
	if !strings.Contains(cfg.CutoutBaseURL, "ImgCutout/getjpeg") || !strings.Contains(cfg.CatalogBaseURL, "RadialSearch") {
		t.Errorf("base urls = %q %q", cfg.CutoutBaseURL, cfg.CatalogBaseURL)
	}
	if cfg.Tracing.Enabled {
		t.Error("tracing should be off by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := load(env(map[string]string{
		"PORT":                 "9090",
		"WORKERS":              "8",
		"REQUEST_TIMEOUT":      "5s",
		"THRESHOLD":            "80",
		"ENFORCE_MIN_PIXELS":   "true",
		"WORK_DIR":             "/tmp/runs",
		"LOG_FORMAT":           "JSON",
		"TRACING_ENABLED":      "1",
		"TRACING_EXPORTER":     "OTLP",
		"OTLP_ENDPOINT":        "collector:4317",
		"TRACING_SAMPLE_RATIO": "0.25",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" || cfg.Workers != 8 || cfg.RequestTimeout != 5*time.Second {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Threshold != 80 || !cfg.EnforceMinPixels || cfg.WorkDir != "/tmp/runs" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("log format = %q", cfg.LogFormat)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Exporter != "otlp" || cfg.Tracing.Endpoint != "collector:4317" || cfg.Tracing.SampleRatio != 0.25 {
		t.Errorf("tracing = %+v", cfg.Tracing)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := map[string]map[string]string{
		"bad int":        {"WORKERS": "four"},
		"zero workers":   {"WORKERS": "0"},
		"bad duration":   {"REQUEST_TIMEOUT": "30"},
		"zero timeout":   {"REQUEST_TIMEOUT": "0s"},
		"nan diagonal":   {"MIN_DIAGONAL_ARCSEC": "NaN"},
		"inf divisor":    {"RADIUS_DIVISOR": "+Inf"},
		"negative scale": {"SCALE_MARGIN": "-0.1"},
		"bad bool":       {"ENFORCE_MIN_PIXELS": "maybe"},
		"threshold 255":  {"THRESHOLD": "255"},
		"ratio above 1":  {"TRACING_SAMPLE_RATIO": "1.5"},
		"log format":     {"LOG_FORMAT": "xml"},
		"zero retries":   {"MAX_RETRIES": "0"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := load(env(vars)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
