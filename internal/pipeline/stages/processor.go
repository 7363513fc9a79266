package stages

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	"galaxy-roi/internal/models"
	"galaxy-roi/internal/opencv/memory"
	"galaxy-roi/internal/opencv/safe"
	"galaxy-roi/internal/processing/chain"
	"galaxy-roi/internal/processing/filters"
)

// Denoiser cleans fetched region cutouts with colour non-local means.
type Denoiser struct {
	chain *chain.ProcessingChain
	alloc memory.Allocator
}

func NewDenoiser(alloc memory.Allocator) *Denoiser {
	if alloc == nil {
		alloc = memory.Direct()
	}
	return &Denoiser{
		chain: chain.NewProcessingChain(alloc, filters.NewNonLocalMeansColor(alloc)),
		alloc: alloc,
	}
}

// Denoise decodes data, filters it and re-encodes it as JPEG.
func (d *Denoiser) Denoise(ctx context.Context, data []byte) ([]byte, error) {
	src, err := safe.Decode(data, "region")
	if err != nil {
		return nil, fmt.Errorf("region image: %v: %w", err, models.ErrMalformedInput)
	}
	defer src.Close()

	out, err := d.chain.Execute(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("denoise: %w", err)
	}
	defer d.alloc.ReleaseMat(out)

	return out.Encode(gocv.JPEGFileExt)
}
