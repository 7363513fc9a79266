package pipeline

import (
	"context"
	"time"

	"galaxy-roi/internal/cutout"
	"galaxy-roi/internal/roi"
)

// ImageSource resolves and downloads cutout images.
type ImageSource interface {
	URL(req cutout.Request) string
	FetchURL(ctx context.Context, url string) ([]byte, error)
}

// Classifier labels one region image.
type Classifier interface {
	Classify(ctx context.Context, img []byte) (roi.Classification, error)
}

// Recorder receives stage timings and run outcomes.
type Recorder interface {
	ObserveStage(stage string, elapsed time.Duration)
	ObserveRun(err error, regions int)
}
