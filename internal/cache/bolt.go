package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("search_cache")

// BoltStore keeps entries as JSON values in a bbolt bucket. Each Put is a
// single read-write transaction, so readers never see a partial entry.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) the bbolt file at dbPath.
func NewBoltStore(dbPath string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for BoltDB: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Get returns the entry for fingerprint or ErrNotFound.
func (s *BoltStore) Get(_ context.Context, fingerprint string) (*Entry, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(fingerprint))
		if v != nil {
			// v is only valid inside the transaction
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}
	if data == nil {
		return nil, ErrNotFound
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("corrupt cache entry %s: %w", fingerprint, err)
	}
	return &entry, nil
}

// Put replaces the entry stored under entry.Fingerprint.
func (s *BoltStore) Put(_ context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(entry.Fingerprint), data)
	})
}

// Close closes the BoltDB database
func (s *BoltStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
