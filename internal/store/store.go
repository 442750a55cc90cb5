// Package store keeps run history and the set of article URLs already
// published, in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"dailyintel/internal/core"
)

// ErrRunNotFound is returned when no run exists for a date.
var ErrRunNotFound = errors.New("run not found")

// DBFile is the database file name inside the data directory.
const DBFile = "dailyintel.db"

// batchSize keeps multi-row statements under SQLite's variable limit.
const batchSize = 200

// Store represents the SQLite-based run store
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the database in dataDir.
func NewStore(dataDir string) (*Store, error) {
	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return Open(filepath.Join(dataDir, DBFile))
}

// Open opens the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, path: path}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, nil
}

// initialize creates the necessary tables
func (s *Store) initialize() error {
	runsTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		run_date TEXT NOT NULL UNIQUE,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		backend TEXT,
		degraded INTEGER NOT NULL DEFAULT 0,
		discovered INTEGER NOT NULL DEFAULT 0,
		selected INTEGER NOT NULL DEFAULT 0,
		rejected INTEGER NOT NULL DEFAULT 0,
		source_failures INTEGER NOT NULL DEFAULT 0,
		record_json TEXT NOT NULL
	);`

	seenTable := `
	CREATE TABLE IF NOT EXISTS seen_urls (
		url TEXT PRIMARY KEY,
		first_seen_date TEXT NOT NULL
	);`

	seenIndex := `CREATE INDEX IF NOT EXISTS idx_seen_urls_date ON seen_urls (first_seen_date);`

	for _, stmt := range []string{runsTable, seenTable, seenIndex} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Ping verifies the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun stores the record for its run date, replacing any earlier record
// for the same date. A record without an ID is given one.
func (s *Store) SaveRun(ctx context.Context, rec core.RunRecord) error {
	if rec.RunDate == "" {
		return fmt.Errorf("run record has no run date")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode run record: %w", err)
	}

	query, args, err := sq.Replace("runs").
		Columns("id", "run_date", "started_at", "finished_at", "backend", "degraded",
			"discovered", "selected", "rejected", "source_failures", "record_json").
		Values(rec.ID, rec.RunDate, formatTime(rec.StartedAt), formatTime(rec.FinishedAt), rec.Backend, rec.Degraded,
			rec.Discovered, rec.Selected, rec.Rejected, len(rec.SourceFailures), string(data)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.RunDate, err)
	}
	return nil
}

// GetRun returns the record stored for runDate.
func (s *Store) GetRun(ctx context.Context, runDate string) (core.RunRecord, error) {
	query, args, err := sq.Select("record_json").
		From("runs").
		Where(sq.Eq{"run_date": runDate}).
		ToSql()
	if err != nil {
		return core.RunRecord{}, fmt.Errorf("failed to build query: %w", err)
	}

	var data string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, runDate)
		}
		return core.RunRecord{}, fmt.Errorf("failed to get run %s: %w", runDate, err)
	}
	return decodeRecord(data)
}

// ListRuns returns up to limit records, newest run date first. A limit of
// zero or less returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]core.RunRecord, error) {
	builder := sq.Select("record_json").From("runs").OrderBy("run_date DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var records []core.RunRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MarkSeen records that urls were published on runDate. A URL keeps the
// earliest date it was ever marked with.
func (s *Store) MarkSeen(ctx context.Context, runDate string, urls []string) error {
	urls = dedupe(urls)
	if len(urls) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for start := 0; start < len(urls); start += batchSize {
		end := min(start+batchSize, len(urls))

		builder := sq.Insert("seen_urls").Columns("url", "first_seen_date")
		for _, u := range urls[start:end] {
			builder = builder.Values(u, runDate)
		}
		query, args, err := builder.
			Suffix("ON CONFLICT(url) DO UPDATE SET first_seen_date = MIN(first_seen_date, excluded.first_seen_date)").
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to mark urls seen: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seen urls: %w", err)
	}
	return nil
}

// SeenBefore reports which of urls were first published on a date earlier
// than runDate. URLs first seen on runDate itself are not included, so a
// re-run of the same date sees the same input.
func (s *Store) SeenBefore(ctx context.Context, runDate string, urls []string) (map[string]bool, error) {
	urls = dedupe(urls)
	seen := make(map[string]bool)

	for start := 0; start < len(urls); start += batchSize {
		end := min(start+batchSize, len(urls))

		query, args, err := sq.Select("url").
			From("seen_urls").
			Where(sq.And{
				sq.Eq{"url": urls[start:end]},
				sq.Lt{"first_seen_date": runDate},
			}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build query: %w", err)
		}

		if err := s.collect(ctx, query, args, seen); err != nil {
			return nil, err
		}
	}
	return seen, nil
}

func (s *Store) collect(ctx context.Context, query string, args []any, into map[string]bool) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query seen urls: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return fmt.Errorf("failed to scan seen url: %w", err)
		}
		into[u] = true
	}
	return rows.Err()
}

func decodeRecord(data string) (core.RunRecord, error) {
	var rec core.RunRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return rec, fmt.Errorf("failed to decode run record: %w", err)
	}
	return rec, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
