package pipeline

import (
	"time"

	"galaxy-roi/internal/detect"
	"galaxy-roi/internal/filter"
	"galaxy-roi/internal/roi"
	"galaxy-roi/internal/sky"
)

// Run is the state of one pipeline execution. Nothing in it is shared with
// other runs.
type Run struct {
	ID        string
	StartedAt time.Time

	Frame      sky.Frame
	FrameURL   string
	FrameImage []byte

	Candidates []detect.Candidate
	Filter     filter.Result
	Store      *roi.Store

	// RegionImages is indexed like Store.Regions.
	RegionImages []RegionImage

	Result []byte
}

// RegionImage is the denoised cutout of one region, or the error that
// prevented fetching it.
type RegionImage struct {
	Index int
	Data  []byte
	Err   error
}

// Images returns the fetched region images keyed by region index.
func (r *Run) Images() map[int][]byte {
	out := make(map[int][]byte, len(r.RegionImages))
	for _, img := range r.RegionImages {
		if img.Err == nil && img.Data != nil {
			out[img.Index] = img.Data
		}
	}
	return out
}
