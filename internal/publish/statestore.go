package publish

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/boardscout/boardscout/pkg/metric"
)

// Compile-time interface guard.
var _ metric.Publisher = (*StateStore)(nil)

// StateStore keeps the latest value per reading name in a local SQLite
// database. It is a latest-value store, not a time series: each publish
// upserts the row for its reading name.
type StateStore struct {
	db *sql.DB
}

// NewStateStore opens (or creates) the database at path and prepares the
// readings table.
func NewStateStore(path string) (*StateStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// SQLite performs best with a single write connection. WAL enables
	// concurrent readers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}

	// modernc.org/sqlite requires SQL statements for pragmas, not DSN params.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS readings (
			name       TEXT PRIMARY KEY,
			value      TEXT,
			unit       TEXT NOT NULL DEFAULT '',
			quality    TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create readings table: %w", err)
	}

	return &StateStore{db: db}, nil
}

// Publish upserts the reading's latest value.
func (s *StateStore) Publish(ctx context.Context, r metric.Reading) error {
	value, err := json.Marshal(r.Value)
	if err != nil {
		return fmt.Errorf("statestore: marshal value for %q: %w", r.Name, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO readings (name, value, unit, quality, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			value = excluded.value,
			unit = excluded.unit,
			quality = excluded.quality,
			updated_at = excluded.updated_at`,
		r.Name, string(value), r.Unit, string(r.Quality),
		r.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("statestore: upsert %q: %w", r.Name, err)
	}
	return nil
}

// StoredReading is one row of the latest-value table.
type StoredReading struct {
	Name      string
	Value     string
	Unit      string
	Quality   metric.Quality
	UpdatedAt time.Time
}

// Get returns the stored row for a reading name, or sql.ErrNoRows.
func (s *StateStore) Get(ctx context.Context, name string) (*StoredReading, error) {
	var row StoredReading
	var updated string
	err := s.db.QueryRowContext(ctx,
		"SELECT name, value, unit, quality, updated_at FROM readings WHERE name = ?",
		name,
	).Scan(&row.Name, &row.Value, &row.Unit, &row.Quality, &updated)
	if err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return nil, fmt.Errorf("statestore: parse timestamp for %q: %w", name, err)
	}
	row.UpdatedAt = ts
	return &row, nil
}

// Close closes the underlying database connection.
func (s *StateStore) Close() error {
	return s.db.Close()
}
