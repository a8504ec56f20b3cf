// Package jobs serializes pipeline runs: one run per job family at a time,
// bounded in wall-clock time, with a persisted task counter for log
// correlation.
package jobs

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Family identifies one independently lockable job family.
type Family string

const (
	FamilyTed         Family = "ted"
	FamilyTedRange    Family = "ted-range"
	FamilyBescha      Family = "bescha"
	FamilyBeschaRange Family = "bescha-range"
)

const (
	lockBucket    = "locks"
	counterBucket = "counters"
)

// State persists per-family lock markers and monotonic task counters in a
// BoltDB file.
type State struct {
	db *bolt.DB
}

// OpenState initializes the job-state database at path.
func OpenState(path string) (*State, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create job state directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open job state db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{lockBucket, counterBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init job state buckets: %w", err)
	}
	return &State{db: db}, nil
}

// Close closes the underlying database.
func (s *State) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// TryLock attempts to take the family's lock marker. It returns false when a
// run is already in progress.
func (s *State) TryLock(f Family) (bool, error) {
	acquired := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(lockBucket))
		if bucket == nil {
			return fmt.Errorf("lock bucket missing")
		}
		if bucket.Get([]byte(f)) != nil {
			return nil
		}
		acquired = true
		return bucket.Put([]byte(f), []byte(time.Now().UTC().Format(time.RFC3339)))
	})
	return acquired, err
}

// Unlock removes the family's lock marker. Safe to call when not held.
func (s *State) Unlock(f Family) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(lockBucket))
		if bucket == nil {
			return fmt.Errorf("lock bucket missing")
		}
		return bucket.Delete([]byte(f))
	})
}

// Locked reports whether the family's lock marker exists.
func (s *State) Locked(f Family) (bool, error) {
	var locked bool
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(lockBucket))
		if bucket == nil {
			return fmt.Errorf("lock bucket missing")
		}
		locked = bucket.Get([]byte(f)) != nil
		return nil
	})
	return locked, err
}

// NextTask increments and returns the family's task counter. The counter
// exists for log correlation only.
func (s *State) NextTask(f Family) (uint64, error) {
	var next uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(counterBucket))
		if bucket == nil {
			return fmt.Errorf("counter bucket missing")
		}
		if v := bucket.Get([]byte(f)); len(v) == 8 {
			next = binary.BigEndian.Uint64(v)
		}
		next++
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, next)
		return bucket.Put([]byte(f), buf)
	})
	return next, err
}
