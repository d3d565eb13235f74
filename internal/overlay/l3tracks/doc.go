// Package l3tracks owns Layer 3 (Tracks) of the overlay data model.
//
// Responsibilities: turning each frame's detection list into temporally
// stable tracks. That covers label-partitioned greedy association on centre
// distance, weighted-history smoothing of the box, hysteresis-gated
// confidence, the fade-in / fade-out alpha lifecycle, and tracking metrics.
// Key types: Tracker, Track, TrackerConfig.
//
// Update is synchronous and performs no I/O. Configuration is passed on
// every call and never cached, so a runtime parameter change takes effect
// on the next frame.
//
// Dependency rule: L3 may depend on L1 and L2, but never on storage,
// transport or the pipeline.
package l3tracks
