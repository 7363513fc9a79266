package filters

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	"galaxy-roi/internal/opencv/memory"
	"galaxy-roi/internal/opencv/safe"
)

// GrayscaleConverter reduces a BGR or BGRA Mat to one intensity channel.
type GrayscaleConverter struct {
	alloc memory.Allocator
}

func NewGrayscaleConverter(alloc memory.Allocator) *GrayscaleConverter {
	if alloc == nil {
		alloc = memory.Direct()
	}
	return &GrayscaleConverter{alloc: alloc}
}

func (g *GrayscaleConverter) Name() string {
	return "grayscale_converter"
}

func (g *GrayscaleConverter) Apply(ctx context.Context, input *safe.Mat) (*safe.Mat, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := safe.ValidateMatForOperation(input, g.Name()); err != nil {
		return nil, err
	}

	dst, err := g.alloc.GetMat(input.Rows(), input.Cols(), gocv.MatTypeCV8UC1, "gray")
	if err != nil {
		return nil, fmt.Errorf("destination Mat creation failed: %w", err)
	}

	srcMat := input.GetMat()

	switch input.Channels() {
	case 1:
		srcMat.CopyTo(dst.Ptr())
	case 3:
		gocv.CvtColor(srcMat, dst.Ptr(), gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(srcMat, dst.Ptr(), gocv.ColorBGRAToGray)
	default:
		g.alloc.ReleaseMat(dst)
		return nil, fmt.Errorf("unsupported channel count for grayscale conversion: %d", input.Channels())
	}

	return dst, nil
}
