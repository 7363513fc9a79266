// Package render draws regions and their labels onto the wide-field frame.
package render

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"galaxy-roi/internal/models"
	"galaxy-roi/internal/opencv/safe"
	"galaxy-roi/internal/roi"
	"galaxy-roi/internal/sky"
)

const (
	Thickness   = 3
	FontScale   = 3.0
	LabelOffset = 15

	// UnclassifiedLabel marks regions the classifier did not label.
	UnclassifiedLabel = "?"
)

var (
	// RegionColor is BGR (36, 255, 12).
	RegionColor = color.RGBA{R: 12, G: 255, B: 36}

	// CandidateColor is plain green, used for the contour overlay.
	CandidateColor = color.RGBA{G: 255}
)

// Render draws every region of store with its class label and returns the
// result as JPEG.
func Render(frameImage []byte, store *roi.Store) ([]byte, error) {
	img, err := safe.Decode(frameImage, "render")
	if err != nil {
		return nil, fmt.Errorf("frame image: %v: %w", err, models.ErrMalformedInput)
	}
	defer img.Close()

	for _, r := range store.Regions {
		label := UnclassifiedLabel
		if r.Classification != nil {
			label = r.Classification.Class
		}
		drawBox(img.Ptr(), r.Box, RegionColor)
		gocv.PutText(img.Ptr(), label, image.Pt(r.Box.X, r.Box.Y-LabelOffset),
			gocv.FontHersheySimplex, FontScale, RegionColor, Thickness)
	}

	return img.Encode(gocv.JPEGFileExt)
}

// Contours outlines every detected contour, unlabelled, and returns the
// result as JPEG.
func Contours(frameImage []byte, contours [][]image.Point) ([]byte, error) {
	img, err := safe.Decode(frameImage, "render_contours")
	if err != nil {
		return nil, fmt.Errorf("frame image: %v: %w", err, models.ErrMalformedInput)
	}
	defer img.Close()

	if len(contours) > 0 {
		pv := gocv.NewPointsVectorFromPoints(contours)
		defer pv.Close()
		if err := gocv.DrawContours(img.Ptr(), pv, -1, CandidateColor, Thickness); err != nil {
			return nil, fmt.Errorf("draw contours: %w", err)
		}
	}
	return img.Encode(gocv.JPEGFileExt)
}

func drawBox(img *gocv.Mat, b sky.PixelBox, c color.RGBA) {
	gocv.Rectangle(img, image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height), c, Thickness)
}
