// Package detect finds bright connected regions in a wide-field frame and
// reports their bounding boxes and centroids in discovery order.
package detect

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"galaxy-roi/internal/logger"
	"galaxy-roi/internal/models"
	"galaxy-roi/internal/opencv/memory"
	"galaxy-roi/internal/opencv/safe"
	"galaxy-roi/internal/processing/chain"
	"galaxy-roi/internal/processing/filters"
	"galaxy-roi/internal/sky"
)

const component = "RegionDetector"

// Candidate is one detected contour. Index is the contour's position in
// discovery order and is carried through every later stage.
type Candidate struct {
	Index       int
	Box         sky.PixelBox
	Centroid    image.Point
	HasCentroid bool
	Contour     []image.Point
}

// Center returns the contour centroid, or the box centre when the contour
// encloses no area.
func (c Candidate) Center() image.Point {
	if c.HasCentroid {
		return c.Centroid
	}
	x, y := c.Box.Center()
	return image.Point{X: x, Y: y}
}

type Detector struct {
	chain *chain.ProcessingChain
	alloc memory.Allocator
	log   logger.Logger
}

// NewDetector builds the grayscale + binary threshold chain used to find
// contours. threshold is on a 0..255 scale.
func NewDetector(threshold float32, alloc memory.Allocator, log logger.Logger) *Detector {
	if alloc == nil {
		alloc = memory.Direct()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Detector{
		chain: chain.NewProcessingChain(alloc,
			filters.NewGrayscaleConverter(alloc),
			filters.NewBinaryThreshold(threshold, alloc),
		),
		alloc: alloc,
		log:   log,
	}
}

// DetectBytes decodes an encoded frame and runs Detect on it.
func (d *Detector) DetectBytes(ctx context.Context, data []byte) ([]Candidate, error) {
	img, err := safe.Decode(data, "frame")
	if err != nil {
		return nil, fmt.Errorf("frame image: %v: %w", err, models.ErrMalformedInput)
	}
	defer img.Close()

	return d.Detect(ctx, img)
}

// Detect thresholds img, extracts the full contour tree and returns one
// candidate per contour.
func (d *Detector) Detect(ctx context.Context, img *safe.Mat) ([]Candidate, error) {
	if err := safe.ValidateMatForOperation(img, "Detect"); err != nil {
		return nil, fmt.Errorf("%v: %w", err, models.ErrMalformedInput)
	}

	mask, err := d.chain.Execute(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("threshold frame: %w", err)
	}
	defer d.alloc.ReleaseMat(mask)

	contours := gocv.FindContours(mask.GetMat(), gocv.RetrievalTree, gocv.ChainApproxSimple)
	defer contours.Close()

	candidates := make([]Candidate, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		rect := gocv.BoundingRect(contour)
		c, ok := centroid(contour)

		candidates = append(candidates, Candidate{
			Index: i,
			Box: sky.PixelBox{
				X:      rect.Min.X,
				Y:      rect.Min.Y,
				Width:  rect.Dx(),
				Height: rect.Dy(),
			},
			Centroid:    c,
			HasCentroid: ok,
			Contour:     contour.ToPoints(),
		})
	}

	d.log.Debug(component, "contours extracted", map[string]interface{}{
		"count":  len(candidates),
		"width":  img.Cols(),
		"height": img.Rows(),
	})

	return candidates, nil
}
