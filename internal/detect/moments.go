package detect

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

// centroid returns (m10/m00, m01/m00) of the contour polygon truncated to
// pixels. ok is false for contours that enclose no area.
func centroid(contour gocv.PointVector) (image.Point, bool) {
	pts := gocv.NewMatFromPointVector(contour, true)
	defer pts.Close()
	if pts.Empty() {
		return image.Point{}, false
	}

	m := gocv.Moments(pts, false)
	m00 := m["m00"]
	if math.Abs(m00) < 1e-12 {
		return image.Point{}, false
	}
	return image.Point{X: int(m["m10"] / m00), Y: int(m["m01"] / m00)}, true
}
