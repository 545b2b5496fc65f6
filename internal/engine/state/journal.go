// Package state keeps an append-only history of download transitions in SQLite.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/surge-downloader/sdm/internal/engine/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS transitions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id     TEXT    NOT NULL,
	url         TEXT    NOT NULL,
	destination TEXT    NOT NULL,
	from_status INTEGER NOT NULL,
	status      INTEGER NOT NULL,
	downloaded  INTEGER NOT NULL,
	total       INTEGER NOT NULL,
	http_status INTEGER NOT NULL,
	error_kind  INTEGER NOT NULL,
	at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transitions_task ON transitions(task_id);
`

// Entry is a single recorded status change
type Entry struct {
	TaskID      string
	URL         string
	Destination string
	From        types.DownloadStatus
	Status      types.DownloadStatus
	Downloaded  int64
	Total       int64
	HTTPStatus  int
	Kind        types.ErrorKind
	At          time.Time
}

// Journal records transitions. It is safe for concurrent use.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if needed) the journal database at path
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// One writer keeps SQLite away from SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialise journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record appends e. A zero At is replaced by the current time.
func (j *Journal) Record(e Entry) error {
	if j == nil {
		return nil
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO transitions (task_id, url, destination, from_status, status, downloaded, total, http_status, error_kind, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TaskID, e.URL, e.Destination, int32(e.From), int32(e.Status), e.Downloaded, e.Total, e.HTTPStatus, int(e.Kind), e.At.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first
func (j *Journal) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT task_id, url, destination, from_status, status, downloaded, total, http_status, error_kind, at
		 FROM transitions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e            Entry
			from, status int
			kind         int
			at           int64
		)
		if err := rows.Scan(&e.TaskID, &e.URL, &e.Destination, &from, &status, &e.Downloaded, &e.Total, &e.HTTPStatus, &kind, &at); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		e.From = types.StatusFromInt(from)
		e.Status = types.StatusFromInt(status)
		e.Kind = types.ErrorKindFromInt(kind)
		e.At = time.Unix(0, at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Clear drops every recorded entry
func (j *Journal) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.db.Exec(`DELETE FROM transitions`); err != nil {
		return fmt.Errorf("failed to clear journal: %w", err)
	}
	return nil
}

// Close releases the database handle
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.db.Close()
}
