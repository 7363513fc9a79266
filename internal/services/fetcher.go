// Package services holds the HTTP plumbing shared by the clients of the
// external cutout, catalog and classifier services.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"galaxy-roi/internal/logger"
	"galaxy-roi/internal/models"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	maxBodyBytes      = 64 << 20
)

// RequestObserver receives one call per attempt-group made by a Fetcher.
type RequestObserver interface {
	ObserveRequest(service, outcome string, elapsed time.Duration)
}

// Options configure a Fetcher. Zero values fall back to the defaults.
type Options struct {
	Service      string
	Timeout      time.Duration
	MaxRetries   int
	InitialDelay time.Duration
	Client       *http.Client
	Observer     RequestObserver
	Logger       logger.Logger
}

// Fetcher performs GET and POST requests with a per-attempt timeout and
// exponential backoff. Transport errors and 5xx/429 responses are retried;
// other non-2xx responses fail immediately.
type Fetcher struct {
	service      string
	timeout      time.Duration
	maxRetries   int
	initialDelay time.Duration
	client       *http.Client
	observer     RequestObserver
	log          logger.Logger
}

func NewFetcher(opts Options) *Fetcher {
	f := &Fetcher{
		service:      opts.Service,
		timeout:      opts.Timeout,
		maxRetries:   opts.MaxRetries,
		initialDelay: opts.InitialDelay,
		client:       opts.Client,
		observer:     opts.Observer,
		log:          opts.Logger,
	}
	if f.service == "" {
		f.service = "http"
	}
	if f.timeout <= 0 {
		f.timeout = DefaultTimeout
	}
	if f.maxRetries <= 0 {
		f.maxRetries = DefaultMaxRetries
	}
	if f.initialDelay <= 0 {
		f.initialDelay = 250 * time.Millisecond
	}
	if f.client == nil {
		f.client = &http.Client{}
	}
	if f.log == nil {
		f.log = logger.Nop()
	}
	return f
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// RequestBuilder creates a fresh request for each attempt.
type RequestBuilder func(ctx context.Context) (*http.Request, error)

// Get fetches url and returns the response body. Every failure wraps
// models.ErrServiceFailure.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	return f.Do(ctx, url, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
}

// Do runs build under the retry policy. label identifies the request in
// logs and spans.
func (f *Fetcher) Do(ctx context.Context, label string, build RequestBuilder) ([]byte, error) {
	ctx, span := otel.Tracer("galaxy-roi/services").Start(ctx, f.service+".request")
	defer span.End()
	span.SetAttributes(attribute.String("http.url", label))

	start := time.Now()
	attempts := 0

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.initialDelay

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempts++
		body, err := f.attempt(ctx, build)
		if err == nil {
			return body, nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !retryableStatus(statusErr.StatusCode) {
			return nil, backoff.Permanent(err)
		}

		f.log.Debug(f.service, "request attempt failed", map[string]interface{}{
			"url":     label,
			"attempt": attempts,
			"error":   err.Error(),
		})
		return nil, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(f.maxRetries)))

	span.SetAttributes(attribute.Int("http.attempts", attempts))

	if err != nil {
		f.observe("error", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%s request failed after %d attempts: %w: %w",
			f.service, attempts, err, models.ErrServiceFailure)
	}

	f.observe("ok", time.Since(start))
	return body, nil
}

func (f *Fetcher) attempt(ctx context.Context, build RequestBuilder) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := build(ctx)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Method: req.Method, URL: req.URL.String(), StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (f *Fetcher) observe(outcome string, elapsed time.Duration) {
	if f.observer != nil {
		f.observer.ObserveRequest(f.service, outcome, elapsed)
	}
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}
