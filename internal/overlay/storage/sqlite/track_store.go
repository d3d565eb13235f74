package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/overlay/internal/overlay/l1geom"
	"github.com/banshee-data/overlay/internal/overlay/l3tracks"
)

// TrackRecord is a finished track as stored in overlay_tracks.
type TrackRecord struct {
	SessionID      string      `json:"session_id"`
	TrackID        uint64      `json:"track_id"`
	Label          string      `json:"label"`
	FirstSeen      time.Time   `json:"first_seen"`
	LastSeen       time.Time   `json:"last_seen"`
	RemovedAt      time.Time   `json:"removed_at"`
	DetectionCount int         `json:"detection_count"`
	PeakConfidence float64     `json:"peak_confidence"`
	PathLength     float64     `json:"path_length"`
	FinalRect      l1geom.Rect `json:"final_rect"`
}

// RecordFromRemoved flattens a removed track for storage.
func RecordFromRemoved(sessionID string, rt l3tracks.RemovedTrack) TrackRecord {
	return TrackRecord{
		SessionID:      sessionID,
		TrackID:        rt.ID,
		Label:          rt.Label,
		FirstSeen:      rt.CreatedAt.UTC(),
		LastSeen:       rt.LastUpdate.UTC(),
		RemovedAt:      rt.RemovedAt.UTC(),
		DetectionCount: rt.DetectionCount,
		PeakConfidence: rt.PeakConfidence,
		PathLength:     rt.PathLength,
		FinalRect:      rt.Rect,
	}
}

// TrackStore manages overlay_tracks rows.
type TrackStore struct {
	db *sql.DB
}

// NewTrackStore returns a store backed by db.
func NewTrackStore(db *sql.DB) *TrackStore {
	return &TrackStore{db: db}
}

// Insert writes rec. Writing the same (session, track) twice keeps the
// later row.
func (s *TrackStore) Insert(ctx context.Context, rec TrackRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO overlay_tracks (
			session_id, track_id, label,
			first_unix_nanos, last_unix_nanos, removed_unix_nanos,
			detection_count, peak_confidence, path_length,
			final_x, final_y, final_w, final_h
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, track_id) DO UPDATE SET
			label = excluded.label,
			last_unix_nanos = excluded.last_unix_nanos,
			removed_unix_nanos = excluded.removed_unix_nanos,
			detection_count = excluded.detection_count,
			peak_confidence = excluded.peak_confidence,
			path_length = excluded.path_length,
			final_x = excluded.final_x,
			final_y = excluded.final_y,
			final_w = excluded.final_w,
			final_h = excluded.final_h`,
		rec.SessionID, int64(rec.TrackID), rec.Label,
		rec.FirstSeen.UnixNano(), rec.LastSeen.UnixNano(), rec.RemovedAt.UnixNano(),
		rec.DetectionCount, rec.PeakConfidence, rec.PathLength,
		rec.FinalRect.X, rec.FinalRect.Y, rec.FinalRect.W, rec.FinalRect.H,
	)
	if err != nil {
		return fmt.Errorf("insert track %d: %w", rec.TrackID, err)
	}
	return nil
}

// Recent returns up to limit tracks across all sessions, most recently
// removed first.
func (s *TrackStore) Recent(ctx context.Context, limit int) ([]TrackRecord, error) {
	return s.query(ctx, `
		SELECT `+trackColumns+` FROM overlay_tracks
		ORDER BY removed_unix_nanos DESC, track_id DESC LIMIT ?`, clampLimit(limit))
}

// BySession returns up to limit tracks of one session in removal order.
func (s *TrackStore) BySession(ctx context.Context, sessionID string, limit int) ([]TrackRecord, error) {
	return s.query(ctx, `
		SELECT `+trackColumns+` FROM overlay_tracks WHERE session_id = ?
		ORDER BY removed_unix_nanos, track_id LIMIT ?`, sessionID, clampLimit(limit))
}

// CountByLabel returns the number of stored tracks per label.
func (s *TrackStore) CountByLabel(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT label, COUNT(*) FROM overlay_tracks GROUP BY label`)
	if err != nil {
		return nil, fmt.Errorf("count tracks: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("scan label count: %w", err)
		}
		out[label] = n
	}
	return out, rows.Err()
}

const trackColumns = `session_id, track_id, label,
	first_unix_nanos, last_unix_nanos, removed_unix_nanos,
	detection_count, peak_confidence, path_length,
	final_x, final_y, final_w, final_h`

func (s *TrackStore) query(ctx context.Context, q string, args ...any) ([]TrackRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()

	var out []TrackRecord
	for rows.Next() {
		var (
			rec                    TrackRecord
			id                     int64
			first, last, removedAt int64
		)
		err := rows.Scan(&rec.SessionID, &id, &rec.Label,
			&first, &last, &removedAt,
			&rec.DetectionCount, &rec.PeakConfidence, &rec.PathLength,
			&rec.FinalRect.X, &rec.FinalRect.Y, &rec.FinalRect.W, &rec.FinalRect.H)
		if err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		rec.TrackID = uint64(id)
		rec.FirstSeen = time.Unix(0, first).UTC()
		rec.LastSeen = time.Unix(0, last).UTC()
		rec.RemovedAt = time.Unix(0, removedAt).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	}
	return limit
}
