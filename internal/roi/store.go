// Package roi holds the confirmed regions of one run and their JSON hand-off
// records: the frame record, the region record and the classified record.
package roi

import (
	"encoding/json"
	"fmt"
	"strconv"

	"galaxy-roi/internal/models"
	"galaxy-roi/internal/sky"
)

// Classes are the morphology labels a classifier may return.
var Classes = []string{"de canto", "eliptica", "en fusion", "espiral"}

// ValidClass reports whether label is one of Classes.
func ValidClass(label string) bool {
	for _, c := range Classes {
		if c == label {
			return true
		}
	}
	return false
}

// Classification is a morphology label with a confidence in 0..100.
type Classification struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// Region is one confirmed region of interest.
type Region struct {
	Index          int
	Box            sky.PixelBox
	TopLeft        sky.Coordinate
	BottomRight    sky.Coordinate
	CutoutURL      string
	Classification *Classification
}

// Store aggregates the regions of one run. Regions[i].Index is always i.
type Store struct {
	Frame    sky.Frame
	FrameURL string
	Regions  []Region
}

func NewStore(frame sky.Frame, frameURL string) *Store {
	return &Store{Frame: frame, FrameURL: frameURL}
}

func (s *Store) Total() int {
	return len(s.Regions)
}

// Add appends a region for box and assigns it the next index.
func (s *Store) Add(box sky.PixelBox, cutoutURL string) Region {
	tl, br := s.Frame.BoxCorners(box)
	r := Region{
		Index:       len(s.Regions),
		Box:         box,
		TopLeft:     tl,
		BottomRight: br,
		CutoutURL:   cutoutURL,
	}
	s.Regions = append(s.Regions, r)
	return r
}

// ApplyClassifications attaches results by region index. Unknown indices
// are ignored.
func (s *Store) ApplyClassifications(results map[int]Classification) {
	for i, c := range results {
		if i < 0 || i >= len(s.Regions) {
			continue
		}
		c := c
		s.Regions[i].Classification = &c
	}
}

type regionRecord struct {
	URL            string          `json:"url"`
	X              int             `json:"x"`
	Y              int             `json:"y"`
	Width          int             `json:"width"`
	Height         int             `json:"height"`
	CoordTopLeft   [2]float64      `json:"coord_top_left"`
	CoordBotRight  [2]float64      `json:"coord_bot_right"`
	Classification *Classification `json:"classification,omitempty"`
}

type record struct {
	Total   string                  `json:"rdis_total"`
	Regions map[string]regionRecord `json:"rdis"`
}

// storedRegion is the decode side of regionRecord. Every field is required,
// so absence is kept distinguishable from zero.
type storedRegion struct {
	URL            string          `json:"url"`
	X              *int            `json:"x"`
	Y              *int            `json:"y"`
	Width          *int            `json:"width"`
	Height         *int            `json:"height"`
	CoordTopLeft   []float64       `json:"coord_top_left"`
	CoordBotRight  []float64       `json:"coord_bot_right"`
	Classification *Classification `json:"classification,omitempty"`
}

type storedRecord struct {
	Total   string                  `json:"rdis_total"`
	Regions map[string]storedRegion `json:"rdis"`
}

func (r storedRegion) region(i int) (Region, error) {
	if r.X == nil || r.Y == nil || r.Width == nil || r.Height == nil {
		return Region{}, fmt.Errorf("region %d: missing pixel box field: %w", i, models.ErrMetadataInconsistency)
	}
	if len(r.CoordTopLeft) != 2 || len(r.CoordBotRight) != 2 {
		return Region{}, fmt.Errorf("region %d: corners need [ra, dec], got %v and %v: %w",
			i, r.CoordTopLeft, r.CoordBotRight, models.ErrMetadataInconsistency)
	}
	return Region{
		Index:          i,
		Box:            sky.PixelBox{X: *r.X, Y: *r.Y, Width: *r.Width, Height: *r.Height},
		TopLeft:        sky.Coordinate{RA: r.CoordTopLeft[0], Dec: r.CoordTopLeft[1]},
		BottomRight:    sky.Coordinate{RA: r.CoordBotRight[0], Dec: r.CoordBotRight[1]},
		CutoutURL:      r.URL,
		Classification: r.Classification,
	}, nil
}

func toRecord(r Region, withClass bool) regionRecord {
	rec := regionRecord{
		URL:           r.CutoutURL,
		X:             r.Box.X,
		Y:             r.Box.Y,
		Width:         r.Box.Width,
		Height:        r.Box.Height,
		CoordTopLeft:  [2]float64{r.TopLeft.RA, r.TopLeft.Dec},
		CoordBotRight: [2]float64{r.BottomRight.RA, r.BottomRight.Dec},
	}
	if withClass {
		rec.Classification = r.Classification
	}
	return rec
}

func (s *Store) regionRecords(withClass bool) map[string]regionRecord {
	out := make(map[string]regionRecord, len(s.Regions))
	for _, r := range s.Regions {
		out[strconv.Itoa(r.Index)] = toRecord(r, withClass)
	}
	return out
}

// Serialize writes the region record: the total as a decimal string and one
// entry per region keyed by its index.
func (s *Store) Serialize() ([]byte, error) {
	return json.Marshal(record{
		Total:   strconv.Itoa(s.Total()),
		Regions: s.regionRecords(false),
	})
}

// ClassifiedRecord writes the per-index region entries, each with its
// classification when one is attached.
func (s *Store) ClassifiedRecord() ([]byte, error) {
	return json.Marshal(s.regionRecords(true))
}

// Load parses a region record written by Serialize for the given frame.
func Load(data []byte, frame sky.Frame) (*Store, error) {
	var rec storedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("region record: %v: %w", err, models.ErrMetadataInconsistency)
	}

	total, err := strconv.Atoi(rec.Total)
	if err != nil || total < 0 {
		return nil, fmt.Errorf("region record total %q: %w", rec.Total, models.ErrMetadataInconsistency)
	}
	if total != len(rec.Regions) {
		return nil, fmt.Errorf("region record declares %d regions, holds %d: %w",
			total, len(rec.Regions), models.ErrMetadataInconsistency)
	}

	regions := make([]Region, total)
	seen := make([]bool, total)
	for key, r := range rec.Regions {
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= total || strconv.Itoa(i) != key {
			return nil, fmt.Errorf("region record key %q: %w", key, models.ErrMetadataInconsistency)
		}
		if seen[i] {
			return nil, fmt.Errorf("region record key %q repeated: %w", key, models.ErrMetadataInconsistency)
		}
		seen[i] = true
		if regions[i], err = r.region(i); err != nil {
			return nil, err
		}
	}

	return &Store{Frame: frame, Regions: regions}, nil
}

