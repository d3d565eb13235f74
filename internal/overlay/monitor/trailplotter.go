package monitor

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/overlay/internal/overlay/l2detect"
	"github.com/banshee-data/overlay/internal/overlay/pipeline"
)

// ErrNoTrails is returned by WritePNG before any track has been sampled.
var ErrNoTrails = errors.New("no trails recorded")

// TrailPlotter keeps the recent centre path of each track and renders the
// paths as a PNG. It implements pipeline.Publisher.
type TrailPlotter struct {
	mu        sync.Mutex
	maxTracks int
	maxPoints int
	trails    map[uint64]*trail
	frame     uint64
}

type trail struct {
	label    string
	points   plotter.XYs
	lastSeen uint64 // frame counter at the last sample
}

// NewTrailPlotter keeps at most maxTracks trails of maxPoints centres each.
func NewTrailPlotter(maxTracks, maxPoints int) *TrailPlotter {
	if maxTracks <= 0 {
		maxTracks = 64
	}
	if maxPoints <= 0 {
		maxPoints = 300
	}
	return &TrailPlotter{
		maxTracks: maxTracks,
		maxPoints: maxPoints,
		trails:    make(map[uint64]*trail),
	}
}

// Publish records the centre of every track in res.
func (tp *TrailPlotter) Publish(res pipeline.Result) {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	tp.frame++
	for _, tr := range res.Tracks {
		t, ok := tp.trails[tr.ID]
		if !ok {
			t = &trail{label: tr.Label}
			tp.trails[tr.ID] = t
		}
		c := tr.Rect.Center()
		// Image y grows downwards; flip so the plot reads like the frame.
		t.points = append(t.points, plotter.XY{X: c.X, Y: 1 - c.Y})
		if len(t.points) > tp.maxPoints {
			t.points = t.points[len(t.points)-tp.maxPoints:]
		}
		t.lastSeen = tp.frame
	}
	tp.evictLocked()
}

// evictLocked drops the least recently seen trails over maxTracks.
func (tp *TrailPlotter) evictLocked() {
	if len(tp.trails) <= tp.maxTracks {
		return
	}
	ids := make([]uint64, 0, len(tp.trails))
	for id := range tp.trails {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := tp.trails[ids[i]], tp.trails[ids[j]]
		if a.lastSeen != b.lastSeen {
			return a.lastSeen < b.lastSeen
		}
		return ids[i] < ids[j]
	})
	for _, id := range ids[:len(ids)-tp.maxTracks] {
		delete(tp.trails, id)
	}
}

// Len returns the number of trails held.
func (tp *TrailPlotter) Len() int {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return len(tp.trails)
}

// Reset forgets every trail.
func (tp *TrailPlotter) Reset() {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.trails = make(map[uint64]*trail)
}

// WritePNG renders the trails in normalised frame coordinates.
func (tp *TrailPlotter) WritePNG(w io.Writer, width, height vg.Length) error {
	p, err := tp.plot()
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("trail plot writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write trail plot: %w", err)
	}
	return nil
}

func (tp *TrailPlotter) plot() (*plot.Plot, error) {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if len(tp.trails) == 0 {
		return nil, ErrNoTrails
	}

	p := plot.New()
	p.Title.Text = "Track trails"
	p.X.Label.Text = "x (normalised)"
	p.Y.Label.Text = "y (normalised, flipped)"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1
	p.Add(plotter.NewGrid())

	ids := make([]uint64, 0, len(tp.trails))
	for id := range tp.trails {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	legend := make(map[string]bool)
	for _, id := range ids {
		t := tp.trails[id]
		pts := make(plotter.XYs, len(t.points))
		copy(pts, t.points)

		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", id, err)
		}
		line.Color = l2detect.LabelColor(t.label)
		line.Width = vg.Points(1.5)
		p.Add(line)
		if !legend[t.label] {
			p.Legend.Add(t.label, line)
			legend[t.label] = true
		}
	}
	p.Legend.Top = true
	return p, nil
}
