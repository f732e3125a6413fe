package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps one row per fingerprint in an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}

	if err := store.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database tables: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS search_cache (
			fingerprint TEXT PRIMARY KEY,
			keyword TEXT NOT NULL,
			max_results INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			results TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_search_cache_created_at ON search_cache(created_at)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute SQL: %s, error: %w", query, err)
		}
	}
	return nil
}

// Get returns the entry for fingerprint or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, fingerprint string) (*Entry, error) {
	var (
		entry     Entry
		createdAt int64
		results   string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT fingerprint, keyword, max_results, created_at, results FROM search_cache WHERE fingerprint = ?",
		fingerprint,
	).Scan(&entry.Fingerprint, &entry.Keyword, &entry.MaxResults, &createdAt, &results)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if err := json.Unmarshal([]byte(results), &entry.Results); err != nil {
		return nil, fmt.Errorf("corrupt cache entry %s: %w", fingerprint, err)
	}
	entry.CreatedAt = time.Unix(0, createdAt).UTC()

	return &entry, nil
}

// Put upserts entry in a single statement.
func (s *SQLiteStore) Put(ctx context.Context, entry *Entry) error {
	results, err := json.Marshal(entry.Results)
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO search_cache (fingerprint, keyword, max_results, created_at, results)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET
			keyword = excluded.keyword,
			max_results = excluded.max_results,
			created_at = excluded.created_at,
			results = excluded.results`,
		entry.Fingerprint, entry.Keyword, entry.MaxResults, entry.CreatedAt.UnixNano(), string(results),
	)
	if err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
