package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/overlay/internal/config"
	"github.com/banshee-data/overlay/internal/timeutil"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("sqlite: not found")

// Session is one run of the overlay against a source.
type Session struct {
	ID        string     `json:"session_id"`
	Source    string     `json:"source"`
	ModelPath string     `json:"model_path"`
	Config    string     `json:"config_json"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// SessionStore manages overlay_sessions rows.
type SessionStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewSessionStore returns a store backed by db. A nil clock selects the
// real clock.
func NewSessionStore(db *sql.DB, clock timeutil.Clock) *SessionStore {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SessionStore{db: db, clock: clock}
}

// Start records a new session with a fresh UUID and the tuning in force.
func (s *SessionStore) Start(ctx context.Context, source, modelPath string, tuning *config.TuningConfig) (Session, error) {
	cfgJSON := []byte("{}")
	if tuning != nil {
		var err error
		if cfgJSON, err = json.Marshal(tuning); err != nil {
			return Session{}, fmt.Errorf("marshal tuning: %w", err)
		}
	}

	sess := Session{
		ID:        uuid.NewString(),
		Source:    source,
		ModelPath: modelPath,
		Config:    string(cfgJSON),
		StartedAt: s.clock.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO overlay_sessions (session_id, source, model_path, config_json, started_unix_nanos)
		VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.Source, sess.ModelPath, sess.Config, sess.StartedAt.UnixNano())
	if err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// End stamps the session's end time.
func (s *SessionStore) End(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE overlay_sessions SET ended_unix_nanos = ? WHERE session_id = ?`,
		s.clock.Now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("end session %s: %w", id, ErrNotFound)
	}
	return nil
}

// Get loads one session.
func (s *SessionStore) Get(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, source, model_path, config_json, started_unix_nanos, ended_unix_nanos
		FROM overlay_sessions WHERE session_id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return sess, err
}

// List returns up to limit sessions, newest first.
func (s *SessionStore) List(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, source, model_path, config_json, started_unix_nanos, ended_unix_nanos
		FROM overlay_sessions ORDER BY started_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var (
		sess    Session
		started int64
		ended   sql.NullInt64
	)
	if err := row.Scan(&sess.ID, &sess.Source, &sess.ModelPath, &sess.Config, &started, &ended); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.StartedAt = time.Unix(0, started).UTC()
	if ended.Valid {
		t := time.Unix(0, ended.Int64).UTC()
		sess.EndedAt = &t
	}
	return sess, nil
}
