// Package cursor persists per-file delivery progress across runs.
package cursor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"

	"github.com/SashaStrek/influxfeed/pkg/types"
)

const bucketName = "cursors"

// Store is a bbolt-backed cursor store. Commits are single bbolt update
// transactions, so a crash mid-commit leaves the previous cursor intact.
// The bbolt file lock also guarantees that only one run writes the store
// at a time; a second runner fails fast on Open.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the cursor store at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cursor store (held by another run?): %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cursor bucket: %w", err)
	}

	log.Debug().Str("path", dbPath).Msg("Cursor store opened")

	return &Store{db: db}, nil
}

// Load returns all persisted cursors keyed by file path.
func (s *Store) Load() (map[string]types.FileCursor, error) {
	cursors := make(map[string]types.FileCursor)

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("cursor bucket not found")
		}
		return b.ForEach(func(k, v []byte) error {
			var c types.FileCursor
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("corrupt cursor for %s: %w", string(k), err)
			}
			cursors[string(k)] = c
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load cursors: %w", err)
	}

	return cursors, nil
}

// Commit durably records that all lines of c.Path up to and including
// c.Line have been delivered downstream.
func (s *Store) Commit(c types.FileCursor) error {
	val, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal cursor: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("cursor bucket not found")
		}
		return b.Put([]byte(c.Path), val)
	})
	if err != nil {
		return fmt.Errorf("failed to commit cursor for %s: %w", c.Path, err)
	}

	log.Debug().
		Str("path", c.Path).
		Int("line", c.Line).
		Bool("complete", c.Complete).
		Msg("Cursor committed")

	return nil
}

// Delete removes the cursor for a file.
func (s *Store) Delete(path string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("cursor bucket not found")
		}
		return b.Delete([]byte(path))
	})
	if err != nil {
		return fmt.Errorf("failed to delete cursor for %s: %w", path, err)
	}
	return nil
}

// Close closes the store and releases its file lock.
func (s *Store) Close() error {
	return s.db.Close()
}
