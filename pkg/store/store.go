// Package store provides SQLite persistence for go-gaze: calibration
// profiles and recorded sessions.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/calibration"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/pipeline"
)

// ErrNotFound is returned when a requested profile or session does not
// exist.
var ErrNotFound = errors.New("store: not found")

// Store handles SQLite persistence. All methods are safe for concurrent
// use via an internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// CalibrationRecord is a saved calibration profile. Blob is the
// versioned model dump; Hash identifies it in session metadata.
type CalibrationRecord struct {
	Profile   string    `json:"profile"`
	Blob      []byte    `json:"-"`
	RMSE      float64   `json:"rmse"`
	AOI       gaze.AOI  `json:"aoi"`
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionRecord is the stored metadata for one recording session.
type SessionRecord struct {
	ID        string        `json:"id"`
	Profile   string        `json:"profile"`
	ModelHash string        `json:"model_hash"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
	Summary   *gaze.Summary `json:"summary,omitempty"`
}

// Open creates a Store at the given database path, creating tables as
// needed. WAL mode is enabled for file-based databases.
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// Shared cache so every pooled connection sees the same
		// in-memory database.
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	log.Info("database initialized", "path", dbPath)
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS calibrations (
		profile TEXT PRIMARY KEY,
		model BLOB NOT NULL,
		rmse REAL NOT NULL,
		aoi TEXT NOT NULL,
		hash TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		profile TEXT NOT NULL,
		model_hash TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		summary TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at DESC);

	CREATE TABLE IF NOT EXISTS samples (
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		mono_ns INTEGER NOT NULL,
		wall DATETIME NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		confidence REAL NOT NULL,
		raw_state TEXT NOT NULL,
		committed_state TEXT NOT NULL,
		face_detected INTEGER NOT NULL,
		auto_paused INTEGER NOT NULL,
		PRIMARY KEY (session_id, seq)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		from_state TEXT NOT NULL,
		to_state TEXT NOT NULL,
		start_ns INTEGER NOT NULL,
		end_ns INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);

	CREATE TABLE IF NOT EXISTS markers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		mono_ns INTEGER NOT NULL,
		wall DATETIME NOT NULL,
		label TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_markers_session ON markers(session_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveCalibration inserts or replaces a calibration profile. The content
// hash is derived from the model blob.
func (s *Store) SaveCalibration(profile string, blob []byte, rmse float64, aoi gaze.AOI) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	aoiJSON, err := json.Marshal(aoi)
	if err != nil {
		return fmt.Errorf("marshal aoi: %w", err)
	}
	hash := calibration.Hash(blob)
	_, err = s.db.Exec(`
		INSERT INTO calibrations (profile, model, rmse, aoi, hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile) DO UPDATE SET
			model = excluded.model,
			rmse = excluded.rmse,
			aoi = excluded.aoi,
			hash = excluded.hash,
			created_at = excluded.created_at
	`, profile, blob, rmse, string(aoiJSON), hash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save calibration %q: %w", profile, err)
	}

	log.Info("calibration saved", "profile", profile, "rmse", rmse, "hash", hash)
	return nil
}

// LoadCalibration fetches a calibration profile by name.
func (s *Store) LoadCalibration(profile string) (*CalibrationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec := CalibrationRecord{Profile: profile}
	var aoiJSON string
	err := s.db.QueryRow(`
		SELECT model, rmse, aoi, hash, created_at
		FROM calibrations WHERE profile = ?
	`, profile).Scan(&rec.Blob, &rec.RMSE, &aoiJSON, &rec.Hash, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("calibration %q: %w", profile, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load calibration %q: %w", profile, err)
	}
	if err := json.Unmarshal([]byte(aoiJSON), &rec.AOI); err != nil {
		return nil, fmt.Errorf("unmarshal aoi for %q: %w", profile, err)
	}
	return &rec, nil
}

// ListCalibrations returns all saved profiles, newest first, without the
// model blobs.
func (s *Store) ListCalibrations() ([]CalibrationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT profile, rmse, aoi, hash, created_at
		FROM calibrations ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CalibrationRecord
	for rows.Next() {
		var rec CalibrationRecord
		var aoiJSON string
		if err := rows.Scan(&rec.Profile, &rec.RMSE, &aoiJSON, &rec.Hash, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(aoiJSON), &rec.AOI); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// BeginSession records session metadata at start time.
func (s *Store) BeginSession(id, profile, modelHash string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO sessions (id, profile, model_hash, started_at)
		VALUES (?, ?, ?, ?)
	`, id, profile, modelHash, startedAt.UTC())
	if err != nil {
		return fmt.Errorf("begin session %s: %w", id, err)
	}
	return nil
}

// EndSession closes a session record with its end time and summary.
func (s *Store) EndSession(id string, endedAt time.Time, summary gaze.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	res, err := s.db.Exec(`
		UPDATE sessions SET ended_at = ?, summary = ? WHERE id = ?
	`, endedAt.UTC(), string(summaryJSON), id)
	if err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetSession fetches session metadata, including the summary when the
// session has ended.
func (s *Store) GetSession(id string) (*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec := SessionRecord{}
	var ended sql.NullTime
	var summaryJSON sql.NullString
	err := s.db.QueryRow(`
		SELECT id, profile, model_hash, started_at, ended_at, summary
		FROM sessions WHERE id = ?
	`, id).Scan(&rec.ID, &rec.Profile, &rec.ModelHash, &rec.StartedAt, &ended, &summaryJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	if ended.Valid {
		t := ended.Time
		rec.EndedAt = &t
	}
	if summaryJSON.Valid {
		var sum gaze.Summary
		if err := json.Unmarshal([]byte(summaryJSON.String), &sum); err != nil {
			return nil, fmt.Errorf("unmarshal summary for %s: %w", id, err)
		}
		rec.Summary = &sum
	}
	return &rec, nil
}

// ListSessions returns session metadata, newest first, without
// summaries.
func (s *Store) ListSessions(limit int) ([]SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, profile, model_hash, started_at, ended_at
		FROM sessions ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var ended sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.Profile, &rec.ModelHash, &rec.StartedAt, &ended); err != nil {
			return nil, err
		}
		if ended.Valid {
			t := ended.Time
			rec.EndedAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AppendResults batch-inserts per-frame results for a session.
func (s *Store) AppendResults(results []pipeline.Result) error {
	if len(results) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO samples
			(session_id, seq, mono_ns, wall, x, y, confidence,
			 raw_state, committed_state, face_detected, auto_paused)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range results {
		_, err := stmt.Exec(
			r.SessionID, r.Seq, int64(r.Mono), r.Wall.UTC(),
			r.Point.X, r.Point.Y, r.Confidence,
			string(r.Raw), string(r.Committed),
			boolInt(r.FaceDetected), boolInt(r.AutoPaused),
		)
		if err != nil {
			return fmt.Errorf("insert sample %d: %w", r.Seq, err)
		}
	}
	return tx.Commit()
}

// AppendEvent records one committed state transition.
func (s *Store) AppendEvent(sessionID string, ev gaze.StateEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO events (session_id, from_state, to_state, start_ns, end_ns)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, string(ev.From), string(ev.To), int64(ev.Start), int64(ev.End))
	return err
}

// AppendMarker records one operator annotation.
func (s *Store) AppendMarker(sessionID string, m pipeline.Marker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO markers (session_id, mono_ns, wall, label)
		VALUES (?, ?, ?, ?)
	`, sessionID, int64(m.Mono), m.Wall.UTC(), m.Label)
	return err
}

// SampleCount returns the number of stored samples for a session.
func (s *Store) SampleCount(sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM samples WHERE session_id = ?", sessionID,
	).Scan(&count)
	return count, err
}

// Events returns the stored transitions for a session in insertion
// order.
func (s *Store) Events(sessionID string) ([]gaze.StateEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT from_state, to_state, start_ns, end_ns
		FROM events WHERE session_id = ? ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []gaze.StateEvent
	for rows.Next() {
		var from, to string
		var start, end int64
		if err := rows.Scan(&from, &to, &start, &end); err != nil {
			return nil, err
		}
		out = append(out, gaze.StateEvent{
			From:  gaze.State(from),
			To:    gaze.State(to),
			Start: time.Duration(start),
			End:   time.Duration(end),
		})
	}
	return out, rows.Err()
}

// Markers returns the stored annotations for a session in insertion
// order.
func (s *Store) Markers(sessionID string) ([]pipeline.Marker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT mono_ns, wall, label
		FROM markers WHERE session_id = ? ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pipeline.Marker
	for rows.Next() {
		var mono int64
		var m pipeline.Marker
		if err := rows.Scan(&mono, &m.Wall, &m.Label); err != nil {
			return nil, err
		}
		m.Mono = time.Duration(mono)
		out = append(out, m)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
