package filter

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"

	"gonum.org/v1/gonum/floats"

	"galaxy-roi/internal/catalog"
	"galaxy-roi/internal/detect"
	"galaxy-roi/internal/models"
	"galaxy-roi/internal/sky"
)

type fakeSearcher struct {
	mu      sync.Mutex
	answers map[sky.Coordinate]fakeAnswer
	radii   map[sky.Coordinate]float64
}

type fakeAnswer struct {
	rows []catalog.Row
	err  error
}

func (s *fakeSearcher) Search(_ context.Context, center sky.Coordinate, radius float64) ([]catalog.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.radii == nil {
		s.radii = map[sky.Coordinate]float64{}
	}
	s.radii[center] = radius
	a, ok := s.answers[center]
	if !ok {
		return nil, nil
	}
	return a.rows, a.err
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) ObserveCandidate(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	o.counts[reason]++
}

func testFrame(t *testing.T) sky.Frame {
	t.Helper()
	f, err := sky.NewFrame(sky.Coordinate{RA: 10.3, Dec: 20.0}, sky.Coordinate{RA: 10.0, Dec: 20.2}, sky.DefaultBounds)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func candidate(i, x, y, w, h int) detect.Candidate {
	return detect.Candidate{
		Index:       i,
		Box:         sky.PixelBox{X: x, Y: y, Width: w, Height: h},
		Centroid:    image.Point{X: x + w/2, Y: y + h/2},
		HasCentroid: true,
	}
}

func centerOf(f sky.Frame, c detect.Candidate) sky.Coordinate {
	p := c.Center()
	return sky.PixelToEquatorial(f, p.X, p.Y)
}

func TestKeepBoundaryIsExclusive(t *testing.T) {
	f := New(DefaultConfig(), &fakeSearcher{}, nil, nil)

	tests := []struct {
		diag float64
		want bool
	}{
		{12.9, false},
		{13, false},
		{13.0001, true},
		{40, true},
	}
	for _, tt := range tests {
		if got := f.Keep(tt.diag); got != tt.want {
			t.Errorf("Keep(%v) = %v, want %v", tt.diag, got, tt.want)
		}
	}
}

func TestRadiusArcmin(t *testing.T) {
	f := New(DefaultConfig(), &fakeSearcher{}, nil, nil)
	if got := f.RadiusArcmin(45); !floats.EqualWithinAbs(got, 0.1, 1e-12) {
		t.Fatalf("RadiusArcmin(45) = %v, want 0.1", got)
	}
}

func TestApplyOutcomes(t *testing.T) {
	frame := testFrame(t)

	cands := []detect.Candidate{
		candidate(0, 100, 100, 60, 40),  // galaxy
		candidate(1, 10, 10, 4, 4),      // too small
		candidate(2, 400, 300, 60, 40),  // empty rows
		candidate(3, 800, 500, 60, 40),  // service error
		candidate(4, 1200, 700, 80, 80), // known object
		candidate(5, 1500, 900, 60, 40), // stars only
	}

	searcher := &fakeSearcher{answers: map[sky.Coordinate]fakeAnswer{
		centerOf(frame, cands[0]): {rows: []catalog.Row{{Type: 6}, {Type: catalog.TypeGalaxy}}},
		centerOf(frame, cands[2]): {rows: []catalog.Row{}},
		centerOf(frame, cands[3]): {err: models.ErrServiceFailure},
		centerOf(frame, cands[4]): {rows: []catalog.Row{{Type: catalog.TypeKnown}}},
		centerOf(frame, cands[5]): {rows: []catalog.Row{{Type: 6}}},
	}}
	obs := &countingObserver{}

	cfg := DefaultConfig()
	cfg.Workers = 2
	res, err := New(cfg, searcher, obs, nil).Apply(context.Background(), frame, cands)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	want := []Reason{ReasonConfirmed, ReasonTooSmall, ReasonNoGalaxy, ReasonServiceError, ReasonConfirmed, ReasonNoGalaxy}
	if len(res.Outcomes) != len(want) {
		t.Fatalf("got %d outcomes", len(res.Outcomes))
	}
	for i, o := range res.Outcomes {
		if o.Candidate.Index != i {
			t.Errorf("outcome %d carries index %d", i, o.Candidate.Index)
		}
		if o.Reason != want[i] {
			t.Errorf("outcome %d reason = %s, want %s", i, o.Reason, want[i])
		}
	}
	if !errors.Is(res.Outcomes[3].Err, models.ErrServiceFailure) {
		t.Errorf("service error not recorded: %v", res.Outcomes[3].Err)
	}

	if len(res.Confirmed) != 2 || res.Confirmed[0].Index != 0 || res.Confirmed[1].Index != 4 {
		t.Fatalf("confirmed = %+v", res.Confirmed)
	}

	if obs.counts[string(ReasonConfirmed)] != 2 || obs.counts[string(ReasonTooSmall)] != 1 {
		t.Errorf("observer counts = %v", obs.counts)
	}

	o := res.Outcomes[0]
	if got := searcher.radii[o.Center]; !floats.EqualWithinAbs(got, o.DiagonalArcsec/7.5/60, 1e-12) {
		t.Errorf("search radius = %v for diagonal %v", got, o.DiagonalArcsec)
	}
}

func TestApplyOrderingWithManyCandidates(t *testing.T) {
	frame := testFrame(t)
	searcher := &fakeSearcher{answers: map[sky.Coordinate]fakeAnswer{}}

	var cands []detect.Candidate
	for i := 0; i < 40; i++ {
		c := candidate(i, 20+i*45, 50+i*20, 40, 40)
		cands = append(cands, c)
		if i%3 == 0 {
			searcher.answers[centerOf(frame, c)] = fakeAnswer{rows: []catalog.Row{{Type: catalog.TypeGalaxy}}}
		}
	}

	res, err := New(DefaultConfig(), searcher, nil, nil).Apply(context.Background(), frame, cands)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	prev := -1
	for _, c := range res.Confirmed {
		if c.Index%3 != 0 {
			t.Errorf("candidate %d confirmed unexpectedly", c.Index)
		}
		if c.Index <= prev {
			t.Fatalf("confirmed out of order: %d after %d", c.Index, prev)
		}
		prev = c.Index
	}
	if len(res.Confirmed) != 14 {
		t.Fatalf("confirmed %d, want 14", len(res.Confirmed))
	}
}

func TestDegenerateCentroidFallsBackToBoxCentre(t *testing.T) {
	frame := testFrame(t)
	c := detect.Candidate{Index: 0, Box: sky.PixelBox{X: 100, Y: 100, Width: 60, Height: 1}}

	searcher := &fakeSearcher{answers: map[sky.Coordinate]fakeAnswer{
		sky.PixelToEquatorial(frame, 130, 100): {rows: []catalog.Row{{Type: catalog.TypeGalaxy}}},
	}}

	res, err := New(DefaultConfig(), searcher, nil, nil).Apply(context.Background(), frame, []detect.Candidate{c})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Outcomes[0].Confirmed {
		t.Fatalf("outcome = %+v", res.Outcomes[0])
	}
}

func TestApplyCancelled(t *testing.T) {
	frame := testFrame(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New(DefaultConfig(), &fakeSearcher{}, nil, nil).Apply(ctx, frame, []detect.Candidate{candidate(0, 100, 100, 60, 40)})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.Outcomes[0].Reason != ReasonCancelled {
		t.Fatalf("reason = %s", res.Outcomes[0].Reason)
	}
}

func TestApplyEmpty(t *testing.T) {
	res, err := New(DefaultConfig(), &fakeSearcher{}, nil, nil).Apply(context.Background(), testFrame(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Outcomes) != 0 || len(res.Confirmed) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}
