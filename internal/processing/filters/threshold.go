package filters

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	"galaxy-roi/internal/opencv/memory"
	"galaxy-roi/internal/opencv/safe"
)

// DefaultThreshold is the global brightness cut applied to wide-field frames.
const DefaultThreshold = 50

// BinaryThreshold turns a single-channel image into a 0/MaxValue mask. Pixels
// strictly above Threshold become MaxValue.
type BinaryThreshold struct {
	Threshold float32
	MaxValue  float32
	alloc     memory.Allocator
}

func NewBinaryThreshold(threshold float32, alloc memory.Allocator) *BinaryThreshold {
	if alloc == nil {
		alloc = memory.Direct()
	}
	return &BinaryThreshold{
		Threshold: threshold,
		MaxValue:  255,
		alloc:     alloc,
	}
}

func (b *BinaryThreshold) Name() string {
	return "binary_threshold"
}

func (b *BinaryThreshold) Apply(ctx context.Context, input *safe.Mat) (*safe.Mat, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := safe.ValidateChannels(input, 1, b.Name()); err != nil {
		return nil, err
	}

	dst, err := b.alloc.GetMat(input.Rows(), input.Cols(), gocv.MatTypeCV8UC1, "mask")
	if err != nil {
		return nil, fmt.Errorf("destination Mat creation failed: %w", err)
	}

	gocv.Threshold(input.GetMat(), dst.Ptr(), b.Threshold, b.MaxValue, gocv.ThresholdBinary)

	return dst, nil
}
