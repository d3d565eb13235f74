package l3tracks

import (
	"fmt"
	"time"

	"github.com/banshee-data/overlay/internal/config"
)

// Fixed smoothing constants. These are not tunable.
const (
	// SpawnAlpha is the alpha of a newly created track and the floor of
	// the fade-in ramp.
	SpawnAlpha = 0.3
	// AlphaApproach is the fraction of the remaining gap to the alpha
	// target closed on each matched frame.
	AlphaApproach = 0.2
	// VelocityRetain weights the previous velocity in the velocity EMA;
	// the instantaneous sample gets 1-VelocityRetain.
	VelocityRetain = 0.8
	// FadeConfidenceDecay scales the per-frame multiplicative confidence
	// decay while fading.
	FadeConfidenceDecay = 0.3
)

// TrackerConfig holds the tunables read on every Update call.
type TrackerConfig struct {
	ConfidenceThreshold float64       // minimum raw confidence to spawn a track
	HysteresisMargin    float64       // confidence below threshold-margin does not feed the EMA
	SmoothingFactor     float64       // EMA factor for SmoothedConfidence
	ObjectPersistence   time.Duration // fade window for unmatched tracks
	MinDetectionCount   int           // matched frames before a track is Confirmed
	MaxTrackingDistance float64       // centre-distance gate, normalised units
	HistoryCap          int           // position history length
	SmoothingEnabled    bool          // false selects pass-through mode
}

// DefaultTrackerConfig returns the default tracker configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		ConfidenceThreshold: config.DefaultConfidenceThreshold,
		HysteresisMargin:    config.DefaultHysteresisMargin,
		SmoothingFactor:     config.DefaultSmoothingFactor,
		ObjectPersistence:   config.DefaultObjectPersistence,
		MinDetectionCount:   config.DefaultMinDetectionCount,
		MaxTrackingDistance: config.DefaultMaxTrackingDistance,
		HistoryCap:          config.DefaultHistoryCap,
		SmoothingEnabled:    true,
	}
}

// TrackerConfigFromTuning converts a TuningConfig, falling back to defaults
// for unset fields.
func TrackerConfigFromTuning(tc *config.TuningConfig) TrackerConfig {
	if tc == nil {
		return DefaultTrackerConfig()
	}
	return TrackerConfig{
		ConfidenceThreshold: tc.GetConfidenceThreshold(),
		HysteresisMargin:    tc.GetHysteresisMargin(),
		SmoothingFactor:     tc.GetSmoothingFactor(),
		ObjectPersistence:   tc.GetObjectPersistence(),
		MinDetectionCount:   tc.GetMinDetectionCount(),
		MaxTrackingDistance: tc.GetMaxTrackingDistance(),
		HistoryCap:          tc.GetHistoryCap(),
		SmoothingEnabled:    tc.GetSmoothingEnabled(),
	}
}

// Validate reports the first out-of-range field.
func (c TrackerConfig) Validate() error {
	switch {
	case c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1:
		return fmt.Errorf("%w: confidence threshold %f outside [0,1]", config.ErrInvalid, c.ConfidenceThreshold)
	case c.HysteresisMargin < 0 || c.HysteresisMargin > 1:
		return fmt.Errorf("%w: hysteresis margin %f outside [0,1]", config.ErrInvalid, c.HysteresisMargin)
	case c.SmoothingFactor <= 0 || c.SmoothingFactor > 1:
		return fmt.Errorf("%w: smoothing factor %f outside (0,1]", config.ErrInvalid, c.SmoothingFactor)
	case c.ObjectPersistence <= 0:
		return fmt.Errorf("%w: object persistence %s must be positive", config.ErrInvalid, c.ObjectPersistence)
	case c.MinDetectionCount < 1:
		return fmt.Errorf("%w: min detection count %d must be at least 1", config.ErrInvalid, c.MinDetectionCount)
	case c.MaxTrackingDistance <= 0:
		return fmt.Errorf("%w: max tracking distance %f must be positive", config.ErrInvalid, c.MaxTrackingDistance)
	case c.HistoryCap < 1:
		return fmt.Errorf("%w: history cap %d must be at least 1", config.ErrInvalid, c.HistoryCap)
	}
	return nil
}

// normalised clamps values Update cannot work with. Update never fails, so
// a bad config degrades instead of erroring.
func (c TrackerConfig) normalised() TrackerConfig {
	if c.HistoryCap < 1 {
		c.HistoryCap = 1
	}
	if c.MinDetectionCount < 1 {
		c.MinDetectionCount = 1
	}
	if c.ObjectPersistence <= 0 {
		c.ObjectPersistence = time.Nanosecond
	}
	if c.SmoothingFactor < 0 {
		c.SmoothingFactor = 0
	} else if c.SmoothingFactor > 1 {
		c.SmoothingFactor = 1
	}
	if c.HysteresisMargin < 0 {
		c.HysteresisMargin = 0
	}
	return c
}

// hysteresisFloor is the lowest raw confidence that still feeds the EMA.
func (c TrackerConfig) hysteresisFloor() float64 {
	return c.ConfidenceThreshold - c.HysteresisMargin
}

// MinDetectorConfidence is the lowest confidence a detector is asked to
// report, however low the tuning goes.
const MinDetectorConfidence = 0.05

// DetectorFloor is the confidence a detector should filter at: the
// hysteresis floor, so detections that still feed a live track reach it.
func (c TrackerConfig) DetectorFloor() float64 {
	return max(MinDetectorConfidence, c.hysteresisFloor())
}

// removalFloor is the smoothed confidence below which a fading track is
// removed.
func (c TrackerConfig) removalFloor() float64 {
	return 0.5 * c.hysteresisFloor()
}
