// Package filter narrows detected candidates to confirmed galaxy regions:
// first by angular size, then by a catalog lookup around each centroid.
package filter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"galaxy-roi/internal/catalog"
	"galaxy-roi/internal/detect"
	"galaxy-roi/internal/logger"
	"galaxy-roi/internal/services"
	"galaxy-roi/internal/sky"
)

const component = "RegionFilter"

const (
	// DefaultMinDiagonalArcsec is the exclusive lower bound on a box's
	// corner-to-corner angular size.
	DefaultMinDiagonalArcsec = 13.0

	// DefaultRadiusDivisor turns a diagonal into a catalog search radius.
	DefaultRadiusDivisor = 7.5

	DefaultWorkers = 4
)

// Reason explains a candidate's outcome.
type Reason string

const (
	ReasonConfirmed    Reason = "confirmed"
	ReasonTooSmall     Reason = "too_small"
	ReasonDegenerate   Reason = "degenerate"
	ReasonNoGalaxy     Reason = "no_galaxy"
	ReasonServiceError Reason = "service_error"
	ReasonCancelled    Reason = "cancelled"
)

// Outcome is the per-candidate result of both stages.
type Outcome struct {
	Candidate      detect.Candidate
	DiagonalArcsec float64
	Center         sky.Coordinate
	RadiusArcmin   float64
	Confirmed      bool
	Reason         Reason
	Err            error
}

type Result struct {
	Outcomes  []Outcome
	Confirmed []detect.Candidate
}

// Observer is told about every finished candidate.
type Observer interface {
	ObserveCandidate(reason string)
}

type Config struct {
	MinDiagonalArcsec float64
	RadiusDivisor     float64
	Workers           int
}

func DefaultConfig() Config {
	return Config{
		MinDiagonalArcsec: DefaultMinDiagonalArcsec,
		RadiusDivisor:     DefaultRadiusDivisor,
		Workers:           DefaultWorkers,
	}
}

type Filter struct {
	cfg      Config
	searcher catalog.Searcher
	pool     *services.WorkerPool
	observer Observer
	log      logger.Logger
}

func New(cfg Config, searcher catalog.Searcher, observer Observer, log logger.Logger) *Filter {
	if cfg.MinDiagonalArcsec <= 0 {
		cfg.MinDiagonalArcsec = DefaultMinDiagonalArcsec
	}
	if cfg.RadiusDivisor <= 0 {
		cfg.RadiusDivisor = DefaultRadiusDivisor
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Filter{
		cfg:      cfg,
		searcher: searcher,
		pool:     services.NewWorkerPool(cfg.Workers),
		observer: observer,
		log:      log,
	}
}

// Keep reports whether a diagonal passes the size stage. The bound is
// exclusive.
func (f *Filter) Keep(diagArcsec float64) bool {
	return diagArcsec > f.cfg.MinDiagonalArcsec
}

// RadiusArcmin is the catalog search radius for a box with the given
// diagonal.
func (f *Filter) RadiusArcmin(diagArcsec float64) float64 {
	return diagArcsec / f.cfg.RadiusDivisor / 60
}

// Apply runs both stages. Per-candidate failures are recorded in the
// outcome; the only error returned is ctx's.
func (f *Filter) Apply(ctx context.Context, frame sky.Frame, candidates []detect.Candidate) (Result, error) {
	ctx, span := otel.Tracer("galaxy-roi/filter").Start(ctx, "filter.Apply")
	defer span.End()

	outcomes := make([]Outcome, len(candidates))
	var sized []int

	for i, c := range candidates {
		outcomes[i] = f.sizeStage(frame, c)
		if outcomes[i].Reason == "" {
			sized = append(sized, i)
		}
	}

	f.log.Debug(component, "size stage finished", map[string]interface{}{
		"candidates": len(candidates),
		"kept":       len(sized),
	})

	err := f.pool.Each(ctx, len(sized), func(ctx context.Context, j int) {
		i := sized[j]
		f.catalogStage(ctx, frame, &outcomes[i])
	})

	res := Result{Outcomes: outcomes}
	for i := range outcomes {
		o := &outcomes[i]
		if o.Reason == "" {
			o.Reason = ReasonCancelled
			o.Err = err
		}
		if o.Confirmed {
			res.Confirmed = append(res.Confirmed, o.Candidate)
		}
		if f.observer != nil {
			f.observer.ObserveCandidate(string(o.Reason))
		}
	}

	span.SetAttributes(
		attribute.Int("candidates", len(candidates)),
		attribute.Int("confirmed", len(res.Confirmed)),
	)

	if err != nil {
		return res, fmt.Errorf("region filter: %w", err)
	}

	f.log.Info(component, "regions confirmed", map[string]interface{}{
		"candidates": len(candidates),
		"confirmed":  len(res.Confirmed),
	})
	return res, nil
}

// sizeStage leaves Reason empty for candidates that move on to the catalog.
func (f *Filter) sizeStage(frame sky.Frame, c detect.Candidate) Outcome {
	o := Outcome{Candidate: c}

	diag, err := frame.BoxDiagonalArcsec(c.Box)
	if err != nil {
		o.Reason = ReasonDegenerate
		o.Err = err
		return o
	}
	o.DiagonalArcsec = diag

	if !f.Keep(diag) {
		o.Reason = ReasonTooSmall
	}
	return o
}

func (f *Filter) catalogStage(ctx context.Context, frame sky.Frame, o *Outcome) {
	p := o.Candidate.Center()
	o.Center = sky.PixelToEquatorial(frame, p.X, p.Y)
	o.RadiusArcmin = f.RadiusArcmin(o.DiagonalArcsec)

	rows, err := f.searcher.Search(ctx, o.Center, o.RadiusArcmin)
	if err != nil {
		o.Reason = ReasonServiceError
		o.Err = err
		f.log.Warning(component, "catalog lookup failed", map[string]interface{}{
			"index": o.Candidate.Index,
			"error": err.Error(),
		})
		return
	}

	if catalog.ContainsGalaxy(rows) {
		o.Confirmed = true
		o.Reason = ReasonConfirmed
		return
	}
	o.Reason = ReasonNoGalaxy
}
