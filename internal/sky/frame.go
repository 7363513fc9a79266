package sky

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"galaxy-roi/internal/models"
)

const (
	// MaxPixels is the pixel length given to the longer angular axis.
	MaxPixels = 2048
	// MinPixels is the declared lower bound for the shorter axis. Only
	// applied when Bounds.EnforceMin is set.
	MinPixels = 64
)

// Bounds controls the pixel budget used by FrameDimensions.
type Bounds struct {
	Max        int
	Min        int
	EnforceMin bool
}

// DefaultBounds leaves the lower bound unenforced.
var DefaultBounds = Bounds{Max: MaxPixels, Min: MinPixels}

// PixelBox is an axis-aligned box in image space, origin top-left, y down.
type PixelBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the integer midpoint of the box.
func (b PixelBox) Center() (int, int) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Frame is the sky context of one wide-field cutout.
type Frame struct {
	Corner1 Coordinate
	Corner2 Coordinate
	Scale   float64 // arcsec per pixel
	Width   int
	Height  int
}

// FrameDimensions sizes a cutout bounded by c1 and c2 using DefaultBounds.
func FrameDimensions(c1, c2 Coordinate) (scale float64, width, height int, err error) {
	return DefaultBounds.FrameDimensions(c1, c2)
}

// FrameDimensions measures the RA and DEC extents between the corners, gives
// the larger one b.Max pixels and derives the scale and the other dimension
// from it.
func (b Bounds) FrameDimensions(c1, c2 Coordinate) (scale float64, width, height int, err error) {
	raExtent, err := AngularSeparationArcsec(
		Coordinate{RA: c1.RA, Dec: c1.Dec},
		Coordinate{RA: c2.RA, Dec: c1.Dec},
	)
	if err != nil {
		return 0, 0, 0, err
	}

	decExtent, err := AngularSeparationArcsec(
		Coordinate{RA: c1.RA, Dec: c1.Dec},
		Coordinate{RA: c1.RA, Dec: c2.Dec},
	)
	if err != nil {
		return 0, 0, 0, err
	}

	if floats.Max([]float64{raExtent, decExtent}) == 0 {
		return 0, 0, 0, fmt.Errorf("corners (%v) and (%v) have no extent: %w", c1, c2, models.ErrGeometryDegenerate)
	}

	if raExtent > decExtent {
		width = b.Max
		scale = raExtent / float64(width)
		height = b.secondary(decExtent / scale)
	} else {
		height = b.Max
		scale = decExtent / float64(height)
		width = b.secondary(raExtent / scale)
	}

	return scale, width, height, nil
}

func (b Bounds) secondary(pixels float64) int {
	n := int(math.Floor(pixels))
	if b.EnforceMin && n < b.Min {
		return b.Min
	}
	return n
}

// NewFrame builds the frame for a wide-field request. Frames with a zero
// pixel dimension are rejected since no pixel could be mapped back onto them.
func NewFrame(c1, c2 Coordinate, b Bounds) (Frame, error) {
	scale, width, height, err := b.FrameDimensions(c1, c2)
	if err != nil {
		return Frame{}, err
	}
	if width <= 0 || height <= 0 {
		return Frame{}, fmt.Errorf("frame %dx%d for corners (%v) and (%v): %w",
			width, height, c1, c2, models.ErrGeometryDegenerate)
	}

	return Frame{
		Corner1: c1,
		Corner2: c2,
		Scale:   scale,
		Width:   width,
		Height:  height,
	}, nil
}

// Center is the midpoint of the two corners.
func (f Frame) Center() Coordinate {
	return CenterCoordinate(f.Corner1, f.Corner2)
}

// PixelToEquatorial maps pixel (x, y) linearly onto the frame's RA/DEC span.
// RA falls as x grows and DEC falls as y grows, so (0, 0) is the corner with
// the largest RA and the largest DEC.
func PixelToEquatorial(f Frame, x, y int) Coordinate {
	raMax := math.Max(f.Corner1.RA, f.Corner2.RA)
	raMin := math.Min(f.Corner1.RA, f.Corner2.RA)
	decMax := math.Max(f.Corner1.Dec, f.Corner2.Dec)
	decMin := math.Min(f.Corner1.Dec, f.Corner2.Dec)

	return Coordinate{
		RA:  rescale(f.Width, raMax, raMin, x),
		Dec: rescale(f.Height, decMax, decMin, y),
	}
}

// rescale maps p in [0, maxPx] onto [from, to] walking down from "from".
func rescale(maxPx int, from, to float64, p int) float64 {
	return from - float64(p)*math.Abs(from-to)/float64(maxPx)
}

// BoxCorners returns the equatorial coordinates of the box's top-left and
// bottom-right pixel corners.
func (f Frame) BoxCorners(b PixelBox) (topLeft, bottomRight Coordinate) {
	topLeft = PixelToEquatorial(f, b.X, b.Y)
	bottomRight = PixelToEquatorial(f, b.X+b.Width, b.Y+b.Height)
	return topLeft, bottomRight
}

// BoxDiagonalArcsec is the angular length of the box diagonal.
func (f Frame) BoxDiagonalArcsec(b PixelBox) (float64, error) {
	tl, br := f.BoxCorners(b)
	return AngularSeparationArcsec(tl, br)
}
