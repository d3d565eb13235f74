package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// DefaultConfigPath is the canonical tuning defaults file, relative to the
// repository root.
const DefaultConfigPath = "config/tuning.defaults.json"

// ErrInvalid wraps every validation failure returned by Validate.
var ErrInvalid = errors.New("invalid tuning config")

// Defaults used by the Get* accessors when a field is unset.
const (
	DefaultConfidenceThreshold = 0.5
	DefaultHysteresisMargin    = 0.1
	DefaultSmoothingFactor     = 0.15
	DefaultObjectPersistence   = 500 * time.Millisecond
	DefaultMinDetectionCount   = 3
	DefaultMaxTrackingDistance = 0.3
	DefaultHistoryCap          = 5
	DefaultMaxFrameRate        = 30.0
	DefaultModelPath           = "models/yolov8n.onnx"
	DefaultNMSThreshold        = 0.45
	DefaultInputSize           = 640
)

// TuningConfig holds tracker and pipeline parameters. The schema matches the
// /api/params endpoint so the same JSON serves as startup configuration and
// as a runtime update. Nil fields fall back to the defaults above.
type TuningConfig struct {
	// Tracker
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	HysteresisMargin    *float64 `json:"hysteresis_margin,omitempty"`
	SmoothingFactor     *float64 `json:"smoothing_factor,omitempty"`
	ObjectPersistence   *string  `json:"object_persistence,omitempty"` // duration string like "500ms"
	MinDetectionCount   *int     `json:"min_detection_count,omitempty"`
	MaxTrackingDistance *float64 `json:"max_tracking_distance,omitempty"`
	HistoryCap          *int     `json:"history_cap,omitempty"`
	SmoothingEnabled    *bool    `json:"smoothing_enabled,omitempty"`

	// Pipeline and detector
	MaxFrameRate *float64 `json:"max_frame_rate,omitempty"`
	ModelPath    *string  `json:"model_path,omitempty"`
	NMSThreshold *float64 `json:"nms_threshold,omitempty"`
	InputSize    *int     `json:"input_size,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with every field unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// from the package defaults.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		ConfidenceThreshold: ptrFloat64(DefaultConfidenceThreshold),
		HysteresisMargin:    ptrFloat64(DefaultHysteresisMargin),
		SmoothingFactor:     ptrFloat64(DefaultSmoothingFactor),
		ObjectPersistence:   ptrString(DefaultObjectPersistence.String()),
		MinDetectionCount:   ptrInt(DefaultMinDetectionCount),
		MaxTrackingDistance: ptrFloat64(DefaultMaxTrackingDistance),
		HistoryCap:          ptrInt(DefaultHistoryCap),
		SmoothingEnabled:    ptrBool(true),
		MaxFrameRate:        ptrFloat64(DefaultMaxFrameRate),
		ModelPath:           ptrString(DefaultModelPath),
		NMSThreshold:        ptrFloat64(DefaultNMSThreshold),
		InputSize:           ptrInt(DefaultInputSize),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must have
// a .json extension and be at most 1 MiB. Omitted fields stay nil so partial
// configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseTuningConfig(data)
}

// ParseTuningConfig decodes and validates JSON. Unknown fields are rejected
// so typos in runtime updates are reported instead of silently ignored.
func ParseTuningConfig(data []byte) (*TuningConfig, error) {
	cfg := EmptyTuningConfig()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks the set fields. Unset fields are always valid.
func (c *TuningConfig) Validate() error {
	if v := c.ConfidenceThreshold; v != nil && (*v < 0 || *v > 1) {
		return invalid("confidence_threshold must be between 0 and 1, got %f", *v)
	}
	if v := c.HysteresisMargin; v != nil && (*v < 0 || *v > 1) {
		return invalid("hysteresis_margin must be between 0 and 1, got %f", *v)
	}
	if v := c.SmoothingFactor; v != nil && (*v <= 0 || *v > 1) {
		return invalid("smoothing_factor must be in (0, 1], got %f", *v)
	}
	if c.ObjectPersistence != nil && *c.ObjectPersistence != "" {
		d, err := time.ParseDuration(*c.ObjectPersistence)
		if err != nil {
			return fmt.Errorf("%w: object_persistence %q: %v", ErrInvalid, *c.ObjectPersistence, err)
		}
		if d <= 0 {
			return invalid("object_persistence must be positive, got %s", d)
		}
	}
	if v := c.MinDetectionCount; v != nil && *v < 1 {
		return invalid("min_detection_count must be at least 1, got %d", *v)
	}
	if v := c.MaxTrackingDistance; v != nil && *v <= 0 {
		return invalid("max_tracking_distance must be positive, got %f", *v)
	}
	if v := c.HistoryCap; v != nil && *v < 1 {
		return invalid("history_cap must be at least 1, got %d", *v)
	}
	if v := c.MaxFrameRate; v != nil && *v <= 0 {
		return invalid("max_frame_rate must be positive, got %f", *v)
	}
	if v := c.NMSThreshold; v != nil && (*v < 0 || *v > 1) {
		return invalid("nms_threshold must be between 0 and 1, got %f", *v)
	}
	if v := c.InputSize; v != nil && (*v <= 0 || *v%32 != 0) {
		return invalid("input_size must be a positive multiple of 32, got %d", *v)
	}
	return nil
}

// Merge overlays the set fields of other onto a copy of c and returns it.
// Neither input is modified.
func (c *TuningConfig) Merge(other *TuningConfig) *TuningConfig {
	out := *c
	if other == nil {
		return &out
	}
	if other.ConfidenceThreshold != nil {
		out.ConfidenceThreshold = ptrFloat64(*other.ConfidenceThreshold)
	}
	if other.HysteresisMargin != nil {
		out.HysteresisMargin = ptrFloat64(*other.HysteresisMargin)
	}
	if other.SmoothingFactor != nil {
		out.SmoothingFactor = ptrFloat64(*other.SmoothingFactor)
	}
	if other.ObjectPersistence != nil {
		out.ObjectPersistence = ptrString(*other.ObjectPersistence)
	}
	if other.MinDetectionCount != nil {
		out.MinDetectionCount = ptrInt(*other.MinDetectionCount)
	}
	if other.MaxTrackingDistance != nil {
		out.MaxTrackingDistance = ptrFloat64(*other.MaxTrackingDistance)
	}
	if other.HistoryCap != nil {
		out.HistoryCap = ptrInt(*other.HistoryCap)
	}
	if other.SmoothingEnabled != nil {
		out.SmoothingEnabled = ptrBool(*other.SmoothingEnabled)
	}
	if other.MaxFrameRate != nil {
		out.MaxFrameRate = ptrFloat64(*other.MaxFrameRate)
	}
	if other.ModelPath != nil {
		out.ModelPath = ptrString(*other.ModelPath)
	}
	if other.NMSThreshold != nil {
		out.NMSThreshold = ptrFloat64(*other.NMSThreshold)
	}
	if other.InputSize != nil {
		out.InputSize = ptrInt(*other.InputSize)
	}
	return &out
}

// GetConfidenceThreshold returns the confidence_threshold value or the default.
func (c *TuningConfig) GetConfidenceThreshold() float64 {
	if c.ConfidenceThreshold == nil {
		return DefaultConfidenceThreshold
	}
	return *c.ConfidenceThreshold
}

// GetHysteresisMargin returns the hysteresis_margin value or the default.
func (c *TuningConfig) GetHysteresisMargin() float64 {
	if c.HysteresisMargin == nil {
		return DefaultHysteresisMargin
	}
	return *c.HysteresisMargin
}

// GetSmoothingFactor returns the smoothing_factor value or the default.
func (c *TuningConfig) GetSmoothingFactor() float64 {
	if c.SmoothingFactor == nil {
		return DefaultSmoothingFactor
	}
	return *c.SmoothingFactor
}

// GetObjectPersistence parses and returns ObjectPersistence as a time.Duration.
func (c *TuningConfig) GetObjectPersistence() time.Duration {
	if c.ObjectPersistence == nil || *c.ObjectPersistence == "" {
		return DefaultObjectPersistence
	}
	d, err := time.ParseDuration(*c.ObjectPersistence)
	if err != nil {
		return DefaultObjectPersistence
	}
	return d
}

// GetMinDetectionCount returns the min_detection_count value or the default.
func (c *TuningConfig) GetMinDetectionCount() int {
	if c.MinDetectionCount == nil {
		return DefaultMinDetectionCount
	}
	return *c.MinDetectionCount
}

// GetMaxTrackingDistance returns the max_tracking_distance value or the default.
func (c *TuningConfig) GetMaxTrackingDistance() float64 {
	if c.MaxTrackingDistance == nil {
		return DefaultMaxTrackingDistance
	}
	return *c.MaxTrackingDistance
}

// GetHistoryCap returns the history_cap value or the default.
func (c *TuningConfig) GetHistoryCap() int {
	if c.HistoryCap == nil {
		return DefaultHistoryCap
	}
	return *c.HistoryCap
}

// GetSmoothingEnabled returns the smoothing_enabled value or the default.
func (c *TuningConfig) GetSmoothingEnabled() bool {
	if c.SmoothingEnabled == nil {
		return true
	}
	return *c.SmoothingEnabled
}

// GetMaxFrameRate returns the max_frame_rate value or the default.
func (c *TuningConfig) GetMaxFrameRate() float64 {
	if c.MaxFrameRate == nil {
		return DefaultMaxFrameRate
	}
	return *c.MaxFrameRate
}

// GetFrameInterval is 1/max_frame_rate.
func (c *TuningConfig) GetFrameInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.GetMaxFrameRate())
}

// GetModelPath returns the model_path value or the default.
func (c *TuningConfig) GetModelPath() string {
	if c.ModelPath == nil || *c.ModelPath == "" {
		return DefaultModelPath
	}
	return *c.ModelPath
}

// GetNMSThreshold returns the nms_threshold value or the default.
func (c *TuningConfig) GetNMSThreshold() float64 {
	if c.NMSThreshold == nil {
		return DefaultNMSThreshold
	}
	return *c.NMSThreshold
}

// GetInputSize returns the input_size value or the default.
func (c *TuningConfig) GetInputSize() int {
	if c.InputSize == nil {
		return DefaultInputSize
	}
	return *c.InputSize
}

// Store holds the live TuningConfig. Readers on the frame path call Load
// without locking; the HTTP params handler swaps in merged copies.
type Store struct {
	cur atomic.Pointer[TuningConfig]
}

// NewStore returns a Store seeded with cfg, or with an empty config if nil.
func NewStore(cfg *TuningConfig) *Store {
	s := &Store{}
	if cfg == nil {
		cfg = EmptyTuningConfig()
	}
	s.cur.Store(cfg)
	return s
}

// Load returns the current config. Callers must not mutate it.
func (s *Store) Load() *TuningConfig {
	return s.cur.Load()
}

// Update validates patch, merges it over the current config and publishes
// the result. The current config is unchanged on error.
func (s *Store) Update(patch *TuningConfig) (*TuningConfig, error) {
	if patch == nil {
		return s.Load(), nil
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	for {
		old := s.cur.Load()
		next := old.Merge(patch)
		if err := next.Validate(); err != nil {
			return nil, err
		}
		if s.cur.CompareAndSwap(old, next) {
			return next, nil
		}
	}
}
