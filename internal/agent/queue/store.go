package queue

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

	_ "modernc.org/sqlite"
)

// MemoryStore keeps the queue in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...), nil
}

func (s *MemoryStore) Save(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]Entry(nil), entries...)
	return nil
}

// AbandonedEntry is a dead-letter row.
type AbandonedEntry struct {
	Entry       Entry     `json:"entry"`
	Reason      string    `json:"reason"`
	AbandonedAt time.Time `json:"abandonedAt"`
}

// SQLiteStore persists the queue as a JSON document in a key-value table
// and keeps abandoned punches for manual reconciliation.
type SQLiteStore struct {
	db  *sql.DB
	key string
}

// OpenSQLiteStore opens (or creates) the database at path. ":memory:" is
// accepted for tests.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite has a single writer and each ":memory:"
	// connection would otherwise get its own database.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, key: StoreKey}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS dead_letter (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		queue_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		reason TEXT NOT NULL,
		abandoned_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create queue tables: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) ([]Entry, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, s.key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("failed to decode queue: %w", err)
	}
	return entries, nil
}

func (s *SQLiteStore) Save(ctx context.Context, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode queue: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		s.key, string(raw))
	if err != nil {
		return fmt.Errorf("failed to write queue: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordAbandoned(ctx context.Context, entry Entry, reason string) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode abandoned entry: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dead_letter (queue_id, payload, reason, abandoned_at) VALUES (?, ?, ?, ?)`,
		entry.QueueID, string(payload), reason, time.Now().UTC())
	return err
}

// Abandoned lists dead-letter rows, most recent first.
func (s *SQLiteStore) Abandoned(ctx context.Context, limit int) ([]AbandonedEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload, reason, abandoned_at FROM dead_letter ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	defer rows.Close()

	var out []AbandonedEntry
	for rows.Next() {
		var payload string
		var a AbandonedEntry
		if err := rows.Scan(&payload, &a.Reason, &a.AbandonedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &a.Entry); err != nil {
			return nil, fmt.Errorf("failed to decode dead letter: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
