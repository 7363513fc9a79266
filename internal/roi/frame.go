package roi

import (
	"encoding/json"
	"fmt"

	"galaxy-roi/internal/models"
	"galaxy-roi/internal/sky"
)

// FrameRecord describes the wide-field cutout of a run.
type FrameRecord struct {
	URL    string         `json:"url"`
	Coord1 sky.Coordinate `json:"coord1"`
	Coord2 sky.Coordinate `json:"coord2"`
	Center sky.Coordinate `json:"coordenada_centro"`
	Width  int            `json:"width"`
	Height int            `json:"height"`
	Scale  float64        `json:"scale"`
}

func NewFrameRecord(f sky.Frame, url string) FrameRecord {
	return FrameRecord{
		URL:    url,
		Coord1: f.Corner1,
		Coord2: f.Corner2,
		Center: f.Center(),
		Width:  f.Width,
		Height: f.Height,
		Scale:  f.Scale,
	}
}

// Frame rebuilds the sky frame the record was written from.
func (r FrameRecord) Frame() sky.Frame {
	return sky.Frame{
		Corner1: r.Coord1,
		Corner2: r.Coord2,
		Scale:   r.Scale,
		Width:   r.Width,
		Height:  r.Height,
	}
}

func (r FrameRecord) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

func ParseFrameRecord(data []byte) (FrameRecord, error) {
	var r FrameRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return FrameRecord{}, fmt.Errorf("frame record: %v: %w", err, models.ErrMetadataInconsistency)
	}
	if r.Width <= 0 || r.Height <= 0 || r.Scale <= 0 {
		return FrameRecord{}, fmt.Errorf("frame record %dx%d at scale %v: %w",
			r.Width, r.Height, r.Scale, models.ErrMetadataInconsistency)
	}
	return r, nil
}
