// Package pipeline drives one region-of-interest run from two sky corners
// to a set of confirmed, framed and optionally classified regions.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"galaxy-roi/internal/catalog"
	"galaxy-roi/internal/cutout"
	"galaxy-roi/internal/detect"
	"galaxy-roi/internal/filter"
	"galaxy-roi/internal/logger"
	"galaxy-roi/internal/opencv/memory"
	"galaxy-roi/internal/pipeline/stages"
	"galaxy-roi/internal/processing/filters"
	"galaxy-roi/internal/render"
	"galaxy-roi/internal/roi"
	"galaxy-roi/internal/services"
	"galaxy-roi/internal/sky"
)

const component = "PipelineCoordinator"

// Options wires a Coordinator. Classifier, Saver and Recorder may be nil.
// Zero numeric settings take their DefaultOptions values.
type Options struct {
	Images     ImageSource
	Catalog    catalog.Searcher
	Classifier Classifier
	Saver      *stages.Saver
	Recorder   Recorder
	Allocator  memory.Allocator
	Logger     logger.Logger
	Observer   filter.Observer

	Threshold   float32
	Bounds      sky.Bounds
	ScaleMargin float64
	Filter      filter.Config
	Workers     int
}

// DefaultOptions carries the detection and framing settings of a standard
// run. Collaborators are left for the caller to set.
func DefaultOptions() Options {
	return Options{
		Threshold:   filters.DefaultThreshold,
		Bounds:      sky.DefaultBounds,
		ScaleMargin: cutout.DefaultScaleMargin,
		Filter:      filter.DefaultConfig(),
		Workers:     filter.DefaultWorkers,
	}
}

type Coordinator struct {
	images     ImageSource
	classifier Classifier
	saver      *stages.Saver
	recorder   Recorder
	log        logger.Logger

	bounds   sky.Bounds
	loader   *stages.Loader
	detector *detect.Detector
	filter   *filter.Filter
	builder  cutout.Builder
	denoiser *stages.Denoiser
	pool     *services.WorkerPool
}

func NewCoordinator(opts Options) *Coordinator {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	alloc := opts.Allocator
	if alloc == nil {
		alloc = memory.Direct()
	}
	bounds := opts.Bounds
	if bounds.Max == 0 {
		bounds = sky.DefaultBounds
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = filter.DefaultWorkers
	}
	filterCfg := opts.Filter
	if filterCfg.Workers <= 0 {
		filterCfg.Workers = workers
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = filters.DefaultThreshold
	}
	margin := opts.ScaleMargin
	if margin <= 0 {
		margin = cutout.DefaultScaleMargin
	}

	return &Coordinator{
		images:     opts.Images,
		classifier: opts.Classifier,
		saver:      opts.Saver,
		recorder:   opts.Recorder,
		log:        log,
		bounds:     bounds,
		loader:     stages.NewLoader(log),
		detector:   detect.NewDetector(threshold, alloc, log),
		filter:     filter.New(filterCfg, opts.Catalog, opts.Observer, log),
		builder:    cutout.NewBuilder(bounds, margin),
		denoiser:   stages.NewDenoiser(alloc),
		pool:       services.NewWorkerPool(workers),
	}
}

// FrameURL is the wide-field cutout URL for the two corners.
func (c *Coordinator) FrameURL(c1, c2 sky.Coordinate) (string, error) {
	frame, err := sky.NewFrame(c1, c2, c.bounds)
	if err != nil {
		return "", err
	}
	return c.images.URL(cutout.FrameRequest(frame)), nil
}

// Run fetches the frame, detects and filters candidates, and fetches a
// denoised cutout for every confirmed region. A failed region fetch is
// recorded on its RegionImage and does not fail the run.
func (c *Coordinator) Run(ctx context.Context, c1, c2 sky.Coordinate) (*Run, error) {
	run := &Run{ID: uuid.NewString(), StartedAt: time.Now()}

	ctx, span := otel.Tracer("galaxy-roi/pipeline").Start(ctx, "pipeline.Run")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", run.ID))

	err := c.run(ctx, run, c1, c2)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Error(component, err, map[string]interface{}{"run_id": run.ID})
		return nil, err
	}

	c.log.Info(component, "run finished", map[string]interface{}{
		"run_id":     run.ID,
		"candidates": len(run.Candidates),
		"regions":    run.Store.Total(),
		"elapsed":    time.Since(run.StartedAt).String(),
	})
	return run, nil
}

func (c *Coordinator) run(ctx context.Context, run *Run, c1, c2 sky.Coordinate) error {
	frame, err := sky.NewFrame(c1, c2, c.bounds)
	if err != nil {
		return err
	}
	run.Frame = frame
	run.FrameURL = c.images.URL(cutout.FrameRequest(frame))

	err = c.stage(ctx, "fetch_frame", func(ctx context.Context) error {
		run.FrameImage, err = c.images.FetchURL(ctx, run.FrameURL)
		if err != nil {
			return fmt.Errorf("wide-field image: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if c.saver != nil {
		if err := c.saver.SaveFrame(run.ID, run.FrameImage, roi.NewFrameRecord(frame, run.FrameURL)); err != nil {
			return err
		}
	}

	err = c.stage(ctx, "detect", func(ctx context.Context) error {
		img, err := c.loader.Load(run.FrameImage, "frame")
		if err != nil {
			// The bytes came from the cutout service, not the caller.
			return fmt.Errorf("wide-field image: %w: %w", err, ErrServiceFailure)
		}
		defer img.Close()

		run.Candidates, err = c.detector.Detect(ctx, img.Mat)
		return err
	})
	if err != nil {
		return err
	}

	if c.saver != nil {
		c.saveCandidates(run)
	}

	err = c.stage(ctx, "filter", func(ctx context.Context) error {
		run.Filter, err = c.filter.Apply(ctx, frame, run.Candidates)
		return err
	})
	if err != nil {
		return err
	}

	run.Store = roi.NewStore(frame, run.FrameURL)
	requests := make([]cutout.Request, len(run.Filter.Confirmed))
	requestErrs := make([]error, len(run.Filter.Confirmed))
	for i, cand := range run.Filter.Confirmed {
		url := ""
		requests[i], requestErrs[i] = c.builder.RegionRequest(frame, cand.Box)
		if requestErrs[i] == nil {
			url = c.images.URL(requests[i])
		}
		run.Store.Add(cand.Box, url)
	}

	err = c.stage(ctx, "fetch_regions", func(ctx context.Context) error {
		run.RegionImages = make([]RegionImage, run.Store.Total())
		return c.pool.Each(ctx, run.Store.Total(), func(ctx context.Context, i int) {
			run.RegionImages[i] = c.fetchRegion(ctx, run.Store.Regions[i], requestErrs[i])
		})
	})
	if err != nil {
		return err
	}

	if c.saver != nil {
		if err := c.saver.SaveRegions(run.ID, run.Store, run.Images()); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) fetchRegion(ctx context.Context, r roi.Region, requestErr error) RegionImage {
	out := RegionImage{Index: r.Index}
	if requestErr != nil {
		out.Err = requestErr
		return out
	}

	data, err := c.images.FetchURL(ctx, r.CutoutURL)
	if err == nil {
		data, err = c.denoiser.Denoise(ctx, data)
	}
	if err != nil {
		out.Err = err
		c.log.Warning(component, "region image unavailable", map[string]interface{}{
			"index": r.Index,
			"error": err.Error(),
		})
		return out
	}
	out.Data = data
	return out
}

func (c *Coordinator) saveCandidates(run *Run) {
	contours := make([][]image.Point, len(run.Candidates))
	for i, cand := range run.Candidates {
		contours[i] = cand.Contour
	}
	overlay, err := render.Contours(run.FrameImage, contours)
	if err == nil {
		err = c.saver.SaveCandidates(run.ID, overlay)
	}
	if err != nil {
		c.log.Warning(component, "candidate overlay not saved", map[string]interface{}{
			"run_id": run.ID,
			"error":  err.Error(),
		})
	}
}

// Classify labels every region that has an image. Regions the classifier
// fails on stay unclassified. It is a no-op without a classifier.
func (c *Coordinator) Classify(ctx context.Context, run *Run) error {
	if c.classifier == nil || run.Store == nil {
		return nil
	}

	results := make([]*roi.Classification, len(run.RegionImages))
	err := c.stage(ctx, "classify", func(ctx context.Context) error {
		return c.pool.Each(ctx, len(run.RegionImages), func(ctx context.Context, i int) {
			img := run.RegionImages[i]
			if img.Err != nil || img.Data == nil {
				return
			}
			class, err := c.classifier.Classify(ctx, img.Data)
			if err != nil {
				c.log.Warning(component, "classification failed", map[string]interface{}{
					"index": img.Index,
					"error": err.Error(),
				})
				return
			}
			results[i] = &class
		})
	})
	if err != nil {
		return err
	}

	byIndex := make(map[int]roi.Classification)
	for i, r := range results {
		if r != nil {
			byIndex[run.RegionImages[i].Index] = *r
		}
	}
	run.Store.ApplyClassifications(byIndex)

	if c.saver != nil {
		return c.saver.SaveClassified(run.ID, run.Store)
	}
	return nil
}

// Render draws the run's regions onto the frame and stores the JPEG on the
// run.
func (c *Coordinator) Render(ctx context.Context, run *Run) ([]byte, error) {
	err := c.stage(ctx, "render", func(context.Context) error {
		out, err := render.Render(run.FrameImage, run.Store)
		if err != nil {
			return err
		}
		run.Result = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	if c.saver != nil {
		if _, err := c.saver.SaveResult(run.ID, run.Result); err != nil {
			return nil, err
		}
	}
	return run.Result, nil
}

// Process is Run followed by Classify and Render.
func (c *Coordinator) Process(ctx context.Context, c1, c2 sky.Coordinate) (run *Run, err error) {
	defer func() {
		if c.recorder == nil {
			return
		}
		regions := 0
		if run != nil && run.Store != nil {
			regions = run.Store.Total()
		}
		c.recorder.ObserveRun(err, regions)
	}()

	run, err = c.Run(ctx, c1, c2)
	if err != nil {
		return nil, err
	}
	if err = c.Classify(ctx, run); err != nil {
		return nil, err
	}
	if _, err = c.Render(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// stage runs fn inside a span and records its duration.
func (c *Coordinator) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := otel.Tracer("galaxy-roi/pipeline").Start(ctx, name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	if c.recorder != nil {
		c.recorder.ObserveStage(name, elapsed)
	}
	c.log.Debug(component, "stage finished", map[string]interface{}{
		"stage":   name,
		"elapsed": elapsed.String(),
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return err
}
