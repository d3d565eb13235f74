package l3tracks

import (
	"time"

	"github.com/banshee-data/overlay/internal/overlay/l1geom"
	"github.com/banshee-data/overlay/internal/overlay/l2detect"
)

// weightedAverage returns the recency-weighted mean centre and size of
// history. Sample i has weight i+1. An empty history yields ok=false.
func weightedAverage(history []Sample) (l1geom.Point, l1geom.Size, bool) {
	if len(history) == 0 {
		return l1geom.Point{}, l1geom.Size{}, false
	}
	var c l1geom.Point
	var s l1geom.Size
	var total float64
	for i, h := range history {
		w := float64(i + 1)
		c = c.Add(h.Center.Scale(w))
		s.W += h.Size.W * w
		s.H += h.Size.H * w
		total += w
	}
	return c.Scale(1 / total), l1geom.Size{W: s.W / total, H: s.H / total}, true
}

// alphaTarget is the alpha a matched track approaches. It is 1 once the
// track has enough detections; below that it ramps linearly from SpawnAlpha
// so each extra match raises the target. A flat SpawnAlpha target would
// hold a pending track at its spawn alpha until confirmation; the ramp is
// intended.
func alphaTarget(count, minCount int) float64 {
	if count >= minCount || minCount <= 1 {
		return 1
	}
	if count < 1 {
		count = 1
	}
	return SpawnAlpha + (1-SpawnAlpha)*float64(count-1)/float64(minCount-1)
}

// applyMatch folds det into tr. Steps run in a fixed order: history,
// smoothed rect, velocity, confidence, count, alpha, timestamps.
func (tr *track) applyMatch(det l2detect.Detection, now time.Time, cfg TrackerConfig) {
	// Velocity and path are measured against the centre at the last match,
	// not the dead-reckoned centre of a fading track.
	prevCentre := tr.lastMatchedCentre

	tr.History = append(tr.History, Sample{Center: det.Box.Center(), Size: det.Box.Size()})
	if over := len(tr.History) - cfg.HistoryCap; over > 0 {
		tr.History = append(tr.History[:0], tr.History[over:]...)
	}

	if c, s, ok := weightedAverage(tr.History); ok && s.W > 0 && s.H > 0 {
		tr.Rect = l1geom.RectFromCenter(c, s)
	}

	if dt := now.Sub(tr.LastUpdate).Seconds(); dt > 0 {
		inst := tr.Rect.Center().Sub(prevCentre).Scale(1 / dt)
		tr.Velocity = tr.Velocity.Scale(VelocityRetain).Add(inst.Scale(1 - VelocityRetain))
	}
	tr.pathLength += tr.Rect.Center().Sub(prevCentre).Norm()
	tr.lastMatchedCentre = tr.Rect.Center()

	tr.Confidence = det.Confidence
	if det.Confidence >= cfg.hysteresisFloor() {
		a := cfg.SmoothingFactor
		tr.SmoothedConfidence = (1-a)*tr.SmoothedConfidence + a*det.Confidence
	}
	if det.Confidence > tr.peakConfidence {
		tr.peakConfidence = det.Confidence
	}

	tr.DetectionCount++

	tr.Alpha += (alphaTarget(tr.DetectionCount, cfg.MinDetectionCount) - tr.Alpha) * AlphaApproach
	tr.Alpha = l1geom.Clamp01(tr.Alpha)
	tr.fadeFrom = tr.Alpha

	tr.State = matchedState(tr.DetectionCount, cfg.MinDetectionCount)
	if tr.State == TrackConfirmed {
		tr.wasConfirmed = true
	}
	tr.LastUpdate = now
	tr.lastTouched = now
}

// applyMiss ages an unmatched track and returns its fade progress.
// Order: dead-reckon, then alpha decay, then confidence decay, then the
// removal check. The track is marked Removed rather than deleted; the
// caller sweeps the arena.
func (tr *track) applyMiss(now time.Time, cfg TrackerConfig) float64 {
	elapsed := now.Sub(tr.LastUpdate)
	progress := l1geom.Clamp01(float64(elapsed) / float64(cfg.ObjectPersistence))

	if step := now.Sub(tr.lastTouched).Seconds(); step > 0 {
		tr.Rect = tr.Rect.Translate(tr.Velocity.Scale(step))
	}

	tr.Alpha = l1geom.Clamp01(tr.fadeFrom * (1 - progress))
	tr.SmoothedConfidence *= 1 - progress*FadeConfidenceDecay

	tr.State = TrackFading
	if tr.Alpha <= 0 || tr.SmoothedConfidence < cfg.removalFloor() {
		tr.State = TrackRemoved
	}
	tr.lastTouched = now
	return progress
}
