// Package sky holds the coordinate geometry shared by every pipeline stage:
// angular separation on the celestial sphere, frame sizing and the linear
// pixel to equatorial mapping of a cutout.
package sky

import (
	"fmt"
	"math"

	"galaxy-roi/internal/models"
)

// ArcsecPerRadian converts radians to arc-seconds.
const ArcsecPerRadian = 206264.806247

// Coordinate is an equatorial position in degrees.
type Coordinate struct {
	RA  float64 `json:"ra"`
	Dec float64 `json:"dec"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%v, %v", c.RA, c.Dec)
}

// IsFinite reports whether both components are finite numbers.
func (c Coordinate) IsFinite() bool {
	return isFinite(c.RA) && isFinite(c.Dec)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// AngularSeparationArcsec returns the great-circle distance between a and b
// in arc-seconds. It uses the Vincenty form of the separation, which stays
// accurate for both tiny and near-antipodal separations.
func AngularSeparationArcsec(a, b Coordinate) (float64, error) {
	if !a.IsFinite() || !b.IsFinite() {
		return 0, fmt.Errorf("separation between (%v) and (%v): %w", a, b, models.ErrGeometryDegenerate)
	}

	lon1 := a.RA * math.Pi / 180
	lat1 := a.Dec * math.Pi / 180
	lon2 := b.RA * math.Pi / 180
	lat2 := b.Dec * math.Pi / 180

	sdlon, cdlon := math.Sincos(lon2 - lon1)
	slat1, clat1 := math.Sincos(lat1)
	slat2, clat2 := math.Sincos(lat2)

	num1 := clat2 * sdlon
	num2 := clat1*slat2 - slat1*clat2*cdlon
	denominator := slat1*slat2 + clat1*clat2*cdlon

	return math.Atan2(math.Hypot(num1, num2), denominator) * ArcsecPerRadian, nil
}

// CenterCoordinate is the component-wise midpoint of a and b. It is not the
// spherical midpoint and is only meant for small fields.
func CenterCoordinate(a, b Coordinate) Coordinate {
	return Coordinate{
		RA:  (a.RA + b.RA) / 2,
		Dec: (a.Dec + b.Dec) / 2,
	}
}
