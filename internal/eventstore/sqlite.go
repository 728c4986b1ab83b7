// Package eventstore persists job lifecycle events to SQLite.
//
// The log is diagnostic history, not a system of record: the pipeline never
// reads it to make decisions, and losing it costs nothing but the status
// page's recent-activity view.
package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	ferrors "git.home.luguber.info/inful/autodoc/internal/foundation/errors"
)

// Record is one persisted job event.
type Record struct {
	ID        int64             `json:"id"`
	JobID     string            `json:"job_id"`
	File      string            `json:"file"`
	EventType string            `json:"event_type"`
	Timestamp time.Time         `json:"timestamp"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// SQLiteStore implements the job-history log using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (and initializes) the database at dbPath.
// Use ":memory:" for an in-memory log.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryEventStore, "open sqlite database").
			WithContext("path", dbPath).Build()
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryEventStore, "initialize schema").Build()
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS job_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL,
		file TEXT NOT NULL,
		event_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		detail TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_job_events_file ON job_events(file);
	CREATE INDEX IF NOT EXISTS idx_job_events_timestamp ON job_events(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append adds one event to the log.
func (s *SQLiteStore) Append(ctx context.Context, jobID, file, eventType string, detail map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var detailJSON []byte
	if detail != nil {
		var err error
		detailJSON, err = json.Marshal(detail)
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryEventStore, "marshal event detail").Build()
		}
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO job_events (job_id, file, event_type, timestamp, detail) VALUES (?, ?, ?, ?, ?)",
		jobID, file, eventType, time.Now().UnixMilli(), detailJSON,
	)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryEventStore, "insert event").
			WithContext("job_id", jobID).Build()
	}
	return nil
}

// Recent returns the newest events, most recent first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, job_id, file, event_type, timestamp, detail FROM job_events ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryEventStore, "query recent events").Build()
	}
	defer rows.Close()
	return scanRecords(rows)
}

// RecentForFile returns the newest events for one file, most recent first.
func (s *SQLiteStore) RecentForFile(ctx context.Context, file string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, job_id, file, event_type, timestamp, detail FROM job_events WHERE file = ? ORDER BY id DESC LIMIT ?",
		file, limit,
	)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryEventStore, "query file events").
			WithContext("file", file).Build()
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Prune deletes events older than the cutoff, returning how many were removed.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM job_events WHERE timestamp < ?", olderThan.UnixMilli())
	if err != nil {
		return 0, ferrors.WrapError(err, ferrors.CategoryEventStore, "prune events").Build()
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var (
			r          Record
			tsMillis   int64
			detailJSON sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.JobID, &r.File, &r.EventType, &tsMillis, &detailJSON); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryEventStore, "scan event row").Build()
		}
		r.Timestamp = time.UnixMilli(tsMillis).UTC()
		if detailJSON.Valid && detailJSON.String != "" {
			if err := json.Unmarshal([]byte(detailJSON.String), &r.Detail); err != nil {
				return nil, ferrors.WrapError(err, ferrors.CategoryEventStore, "decode event detail").Build()
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
