package filters

import (
	"context"
	"fmt"

	"galaxy-roi/internal/opencv/memory"
	"galaxy-roi/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// NonLocalMeansColor denoises a BGR region cutout. The defaults match the
// parameters earlier pipeline output was produced with.
type NonLocalMeansColor struct {
	H              float32
	HColor         float32
	TemplateWindow int
	SearchWindow   int
	alloc          memory.Allocator
}

func NewNonLocalMeansColor(alloc memory.Allocator) *NonLocalMeansColor {
	if alloc == nil {
		alloc = memory.Direct()
	}
	return &NonLocalMeansColor{
		H:              10,
		HColor:         10,
		TemplateWindow: 7,
		SearchWindow:   21,
		alloc:          alloc,
	}
}

func (n *NonLocalMeansColor) Name() string {
	return "non_local_means_color"
}

func (n *NonLocalMeansColor) Apply(ctx context.Context, input *safe.Mat) (*safe.Mat, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := safe.ValidateChannels(input, 3, n.Name()); err != nil {
		return nil, err
	}

	result, err := n.alloc.GetMat(input.Rows(), input.Cols(), input.Type(), "denoised")
	if err != nil {
		return nil, fmt.Errorf("failed to create result Mat: %w", err)
	}

	gocv.FastNlMeansDenoisingColoredWithParams(input.GetMat(), result.Ptr(),
		n.H, n.HColor, n.TemplateWindow, n.SearchWindow)

	return result, nil
}
