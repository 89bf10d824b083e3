package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
)

// Store is the durable key-value mirror of all orchestration state. It is
// what lets a user navigate away from the dashboard mid-run and come back to
// a live view of the same job. Values are JSON-encoded; a missing or
// malformed value reads back as the caller's default.
type Store struct {
	db *badger.DB
}

func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(dataDir, "badger"))
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Set serializes v and writes it through immediately. A read issued after
// Set returns observes the new value.
func (s *Store) Set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// Get deserializes the value at key into out and reports whether a
// well-formed value was present. On a missing key or undecodable data, out
// keeps whatever default the caller put in it; Get never propagates storage
// or decoding errors.
func (s *Store) Get(key string, out any) bool {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})
	if err != nil {
		if err != badger.ErrKeyNotFound {
			slog.Warn("store read failed", "key", key, "error", err)
		}
		return false
	}

	if err := json.Unmarshal(data, out); err != nil {
		slog.Warn("store value malformed, treating as absent", "key", key, "error", err)
		return false
	}
	return true
}

func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}
