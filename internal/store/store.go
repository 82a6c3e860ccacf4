// Package store provides best-effort persisted key-value state backed by a
// single bbolt file. It holds the rate cache, search history, favorites,
// and user preferences under namespaced keys. Reads tolerate a missing or
// corrupted file by reporting "absent"; persistence failures are never
// fatal to callers.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// KeyPrefix namespaces every key, matching the storage prefix used by
// earlier releases so existing state stays readable.
const KeyPrefix = "bluecoinverse_"

var bucketName = []byte("state")

// Store is a bbolt-backed key-value store.
type Store struct {
	db *bolt.DB
}

// DefaultPath returns the store location under the user config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "coinverse", "state.bolt")
}

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the raw value stored under key, or nil, false when the key
// is absent or the store is unusable.
func (s *Store) Get(key string) ([]byte, bool) {
	if s == nil || s.db == nil {
		return nil, false
	}
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(KeyPrefix + key)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || out == nil {
		return nil, false
	}
	return out, true
}

// Put stores value under key. The returned error exists for callers that
// care; most treat persistence as best-effort and ignore it.
func (s *Store) Put(key string, value []byte) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		return b.Put([]byte(KeyPrefix+key), value)
	})
}

// Delete removes key from the store.
func (s *Store) Delete(keys ...string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		for _, key := range keys {
			if err := b.Delete([]byte(KeyPrefix + key)); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetJSON unmarshals the value under key into v. A missing key or a
// corrupted entry reports false; the entry is treated as absent.
func (s *Store) GetJSON(key string, v any) bool {
	raw, ok := s.Get(key)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

// PutJSON marshals v and stores it under key, best-effort.
func (s *Store) PutJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(key, raw)
}
