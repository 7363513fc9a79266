// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"galaxy-roi/internal/catalog"
	"galaxy-roi/internal/cutout"
	"galaxy-roi/internal/filter"
	"galaxy-roi/internal/observability"
	"galaxy-roi/internal/processing/filters"
	"galaxy-roi/internal/services"
)

type Config struct {
	Port string

	CutoutBaseURL  string
	CatalogBaseURL string
	ClassifierURL  string
	WorkDir        string

	Workers        int
	RequestTimeout time.Duration
	MaxRetries     int

	Threshold         float64
	MinDiagonalArcsec float64
	RadiusDivisor     float64
	CatalogLimit      int
	ScaleMargin       float64
	EnforceMinPixels  bool

	LogLevel  string
	LogFormat string

	Tracing observability.TracingConfig
}

// Default returns the settings used when no variable is set.
func Default() Config {
	return Config{
		Port:              "8080",
		CutoutBaseURL:     cutout.DefaultBaseURL,
		CatalogBaseURL:    catalog.DefaultBaseURL,
		Workers:           filter.DefaultWorkers,
		RequestTimeout:    services.DefaultTimeout,
		MaxRetries:        services.DefaultMaxRetries,
		Threshold:         filters.DefaultThreshold,
		MinDiagonalArcsec: filter.DefaultMinDiagonalArcsec,
		RadiusDivisor:     filter.DefaultRadiusDivisor,
		CatalogLimit:      catalog.DefaultLimit,
		ScaleMargin:       cutout.DefaultScaleMargin,
		LogLevel:          "info",
		LogFormat:         "console",
		Tracing: observability.TracingConfig{
			ServiceName: "galaxy-roi",
			Exporter:    "stdout",
			SampleRatio: 1,
		},
	}
}

// Load reads the environment on top of Default and validates the result.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Default()
	r := reader{getenv: getenv}

	cfg.Port = r.str("PORT", cfg.Port)
	cfg.CutoutBaseURL = r.str("CUTOUT_BASE_URL", cfg.CutoutBaseURL)
	cfg.CatalogBaseURL = r.str("CATALOG_BASE_URL", cfg.CatalogBaseURL)
	cfg.ClassifierURL = r.str("CLASSIFIER_URL", cfg.ClassifierURL)
	cfg.WorkDir = r.str("WORK_DIR", cfg.WorkDir)

	cfg.Workers = r.int("WORKERS", cfg.Workers)
	cfg.RequestTimeout = r.duration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.MaxRetries = r.int("MAX_RETRIES", cfg.MaxRetries)

	cfg.Threshold = r.float("THRESHOLD", cfg.Threshold)
	cfg.MinDiagonalArcsec = r.float("MIN_DIAGONAL_ARCSEC", cfg.MinDiagonalArcsec)
	cfg.RadiusDivisor = r.float("RADIUS_DIVISOR", cfg.RadiusDivisor)
	cfg.CatalogLimit = r.int("CATALOG_LIMIT", cfg.CatalogLimit)
	cfg.ScaleMargin = r.float("SCALE_MARGIN", cfg.ScaleMargin)
	cfg.EnforceMinPixels = r.bool("ENFORCE_MIN_PIXELS", cfg.EnforceMinPixels)

	cfg.LogLevel = r.str("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(r.str("LOG_FORMAT", cfg.LogFormat))

	cfg.Tracing.Enabled = r.bool("TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = strings.ToLower(r.str("TRACING_EXPORTER", cfg.Tracing.Exporter))
	cfg.Tracing.Endpoint = r.str("OTLP_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.SampleRatio = r.float("TRACING_SAMPLE_RATIO", cfg.Tracing.SampleRatio)

	if r.err != nil {
		return Config{}, r.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Port == "":
		return fmt.Errorf("PORT must not be empty")
	case c.Workers < 1:
		return fmt.Errorf("WORKERS must be positive, got %d", c.Workers)
	case c.RequestTimeout <= 0:
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	case c.MaxRetries < 1:
		return fmt.Errorf("MAX_RETRIES must be positive, got %d", c.MaxRetries)
	case c.CatalogLimit < 1:
		return fmt.Errorf("CATALOG_LIMIT must be positive, got %d", c.CatalogLimit)
	case c.LogFormat != "console" && c.LogFormat != "json":
		return fmt.Errorf("LOG_FORMAT must be console or json, got %q", c.LogFormat)
	}

	for name, v := range map[string]float64{
		"THRESHOLD":           c.Threshold,
		"MIN_DIAGONAL_ARCSEC": c.MinDiagonalArcsec,
		"RADIUS_DIVISOR":      c.RadiusDivisor,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%s must be a positive number, got %v", name, v)
		}
	}
	if math.IsNaN(c.ScaleMargin) || math.IsInf(c.ScaleMargin, 0) || c.ScaleMargin < 0 {
		return fmt.Errorf("SCALE_MARGIN must not be negative, got %v", c.ScaleMargin)
	}
	if c.Threshold >= 255 {
		return fmt.Errorf("THRESHOLD must be below 255, got %v", c.Threshold)
	}
	if r := c.Tracing.SampleRatio; math.IsNaN(r) || r < 0 || r > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATIO must be within [0, 1], got %v", r)
	}
	return nil
}

// Addr is the listen address for Port.
func (c Config) Addr() string {
	return ":" + c.Port
}

// reader keeps the first parse error so Load can report it once.
type reader struct {
	getenv func(string) string
	err    error
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) int(key string, def int) int {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		r.fail(key, raw, err)
		return def
	}
	return v
}

func (r *reader) float(key string, def float64) float64 {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		r.fail(key, raw, err)
		return def
	}
	return v
}

func (r *reader) bool(key string, def bool) bool {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		r.fail(key, raw, err)
		return def
	}
	return v
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		r.fail(key, raw, err)
		return def
	}
	return v
}

func (r *reader) fail(key, raw string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s=%q: %w", key, raw, err)
	}
}
