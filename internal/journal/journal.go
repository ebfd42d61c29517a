// ============================================================================
// SpiritFlow - Guided Meditation Companion
// ============================================================================
//
// Package:     journal
// Description: SQLite journal of generated meditations
// Author:      Mike Stoffels with Claude
// Created:     2025-12-08
// License:     MIT
// ============================================================================

package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/msto63/spiritflow/internal/meditation"
)

// ErrNotFound is returned when an entry does not exist
var ErrNotFound = errors.New("journal entry not found")

// Entry is one generated meditation
type Entry struct {
	ID         string                  `json:"id"`
	Flow       meditation.Flow         `json:"flow"`
	Intentions meditation.IntentionSet `json:"intentions"`
	Script     string                  `json:"script"`
	Voice      string                  `json:"voice"`
	Duration   time.Duration           `json:"duration"`
	Elapsed    time.Duration           `json:"elapsed"`
	CreatedAt  time.Time               `json:"created_at"`
}

// Filter narrows List results
type Filter struct {
	Flow   meditation.Flow
	Limit  int
	Offset int
}

// Stats summarizes the journal
type Stats struct {
	Total   int                     `json:"total"`
	PerFlow map[meditation.Flow]int `json:"per_flow"`
	Last    time.Time               `json:"last,omitempty"`
}

// Store persists journal entries
type Store interface {
	Record(ctx context.Context, e *Entry) error
	Get(ctx context.Context, id string) (*Entry, error)
	List(ctx context.Context, f Filter) ([]*Entry, error)
	Delete(ctx context.Context, id string) error
	Statistics(ctx context.Context) (*Stats, error)
	Close() error
}

// Config holds journal configuration
type Config struct {
	Path string
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Path: "./data/journal.db",
	}
}

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates or opens the journal database
func Open(cfg Config) (*SQLiteStore, error) {
	dsn := cfg.Path
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn += "?_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.Path == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		flow TEXT NOT NULL,
		intentions TEXT NOT NULL,
		script TEXT NOT NULL,
		voice TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_entries_flow ON entries(flow);
	CREATE INDEX IF NOT EXISTS idx_entries_created ON entries(created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Record stores an entry. ID and CreatedAt are filled in when empty.
func (s *SQLiteStore) Record(ctx context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !e.Flow.Valid() {
		return fmt.Errorf("invalid flow %q", e.Flow)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.Intentions.Flow = e.Flow

	intentions, err := json.Marshal(e.Intentions)
	if err != nil {
		return fmt.Errorf("failed to encode intentions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entries (id, flow, intentions, script, voice, duration_ms, elapsed_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, string(e.Flow), string(intentions), e.Script, e.Voice,
		e.Duration.Milliseconds(), e.Elapsed.Milliseconds(), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record entry: %w", err)
	}

	return nil
}

// Get retrieves an entry by ID
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, flow, intentions, script, voice, duration_ms, elapsed_ms, created_at
		FROM entries WHERE id = ?
	`, id)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return e, nil
}

// List returns entries, newest first
func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if f.Limit <= 0 {
		f.Limit = 20
	}

	query := `
		SELECT id, flow, intentions, script, voice, duration_ms, elapsed_ms, created_at
		FROM entries`
	args := []interface{}{}
	if f.Flow != "" {
		query += ` WHERE flow = ?`
		args = append(args, string(f.Flow))
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Delete removes an entry
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Statistics returns entry counts per flow
func (s *SQLiteStore) Statistics(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{PerFlow: make(map[meditation.Flow]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT flow, COUNT(*) FROM entries GROUP BY flow`)
	if err != nil {
		return nil, fmt.Errorf("failed to count entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var flow string
		var count int
		if err := rows.Scan(&flow, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		stats.PerFlow[meditation.Flow(flow)] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if stats.Total > 0 {
		var last time.Time
		row := s.db.QueryRowContext(ctx, `SELECT created_at FROM entries ORDER BY created_at DESC LIMIT 1`)
		if err := row.Scan(&last); err != nil {
			return nil, fmt.Errorf("failed to read last entry: %w", err)
		}
		stats.Last = last
	}

	return stats, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(sc scanner) (*Entry, error) {
	var e Entry
	var flow, intentions string
	var durationMS, elapsedMS int64

	if err := sc.Scan(&e.ID, &flow, &intentions, &e.Script, &e.Voice, &durationMS, &elapsedMS, &e.CreatedAt); err != nil {
		return nil, err
	}

	e.Flow = meditation.Flow(flow)
	if err := json.Unmarshal([]byte(intentions), &e.Intentions); err != nil {
		return nil, fmt.Errorf("invalid intentions for %s: %w", e.ID, err)
	}
	e.Duration = time.Duration(durationMS) * time.Millisecond
	e.Elapsed = time.Duration(elapsedMS) * time.Millisecond

	return &e, nil
}
