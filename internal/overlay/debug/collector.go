// Package debug provides instrumentation for the overlay tracker.
// The Collector captures association decisions, spawns and fade steps for
// a frame so they can be inspected over HTTP while tuning.
package debug

import "sync"

const (
	defaultAssociationCapacity = 32
	defaultTrackCapacity       = 16
)

// Collector accumulates artefacts during a single Update call.
//
// Call BeginFrame, then the Record* methods, then Emit. The last emitted
// frame is retained and returned by Last so a reader on another goroutine
// can fetch it without racing the tracker.
type Collector struct {
	mu      sync.Mutex
	enabled bool
	current *Frame
	last    *Frame
}

// Frame contains every artefact recorded for one tracker update.
type Frame struct {
	FrameID      uint64              `json:"frame_id"`
	Associations []AssociationRecord `json:"associations"`
	Spawns       []SpawnRecord       `json:"spawns"`
	Fades        []FadeRecord        `json:"fades"`
}

// AssociationRecord is one track/detection pair the matcher evaluated.
type AssociationRecord struct {
	TrackID        uint64  `json:"track_id"`
	DetectionIndex int     `json:"detection_index"`
	Label          string  `json:"label"`
	Distance       float64 `json:"distance"`
	Accepted       bool    `json:"accepted"`
}

// SpawnRecord notes an unmatched detection that did or did not start a track.
type SpawnRecord struct {
	DetectionIndex int     `json:"detection_index"`
	Confidence     float64 `json:"confidence"`
	TrackID        uint64  `json:"track_id,omitempty"` // zero when rejected
}

// FadeRecord is one decay step applied to an unmatched track.
type FadeRecord struct {
	TrackID      uint64  `json:"track_id"`
	FadeProgress float64 `json:"fade_progress"`
	Alpha        float64 `json:"alpha"`
	Smoothed     float64 `json:"smoothed_confidence"`
	Removed      bool    `json:"removed"`
}

// NewCollector returns a disabled collector.
func NewCollector() *Collector {
	return &Collector{}
}

// SetEnabled turns recording on or off. Disabling drops any frame in progress.
func (c *Collector) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
	if !enabled {
		c.current = nil
	}
}

func (c *Collector) IsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// BeginFrame starts a new frame. Record calls before BeginFrame are ignored.
func (c *Collector) BeginFrame(frameID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	c.current = &Frame{
		FrameID:      frameID,
		Associations: make([]AssociationRecord, 0, defaultAssociationCapacity),
		Spawns:       make([]SpawnRecord, 0, defaultTrackCapacity),
		Fades:        make([]FadeRecord, 0, defaultTrackCapacity),
	}
}

func (c *Collector) RecordAssociation(r AssociationRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.Associations = append(c.current.Associations, r)
	}
}

func (c *Collector) RecordSpawn(r SpawnRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.Spawns = append(c.current.Spawns, r)
	}
}

func (c *Collector) RecordFade(r FadeRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.Fades = append(c.current.Fades, r)
	}
}

// Emit finishes the current frame, stores it as Last and returns it.
// Returns nil when disabled or no frame was begun.
func (c *Collector) Emit() *Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled || c.current == nil {
		return nil
	}
	f := c.current
	c.current = nil
	c.last = f
	return f
}

// Last returns the most recently emitted frame, or nil.
func (c *Collector) Last() *Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Reset discards the in-progress frame.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
}
