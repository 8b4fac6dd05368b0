// Package history keeps a record of pipeline runs in an embedded BadgerDB
// under the state directory. Each run is one JSON value keyed by its start
// time, so a prefix scan in reverse yields the newest runs first.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when a run ID is unknown.
var ErrNotFound = errors.New("history: run not found")

const (
	runPrefix   = "run/"
	indexPrefix = "id/"
)

// Status is the final state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// StageRecord is what happened to one stage.
type StageRecord struct {
	Stage    string        `json:"stage"`
	Outcome  string        `json:"outcome"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Run is one persisted pipeline invocation.
type Run struct {
	ID          string        `json:"id"`
	ConfigName  string        `json:"config"`
	Board       string        `json:"board"`
	Buildroot   string        `json:"buildroot"`
	BuildNumber int           `json:"build_number"`
	Clobber     bool          `json:"clobber"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at,omitempty"`
	Status      Status        `json:"status"`
	Error       string        `json:"error,omitempty"`
	SyncRetries int           `json:"sync_retries,omitempty"`
	Stages      []StageRecord `json:"stages,omitempty"`
}

// Store persists runs.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the store in dir. An empty dir opens an
// in-memory store.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(nil).WithNumVersionsToKeep(1)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save writes run, replacing any earlier version with the same ID.
func (s *Store) Save(run Run) error {
	if run.ID == "" {
		return fmt.Errorf("history: run id is required")
	}
	encoded, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("history: encode %s: %w", run.ID, err)
	}
	key := runKey(run)
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, encoded); err != nil {
			return err
		}
		return txn.Set([]byte(indexPrefix+run.ID), key)
	})
}

// Get loads the run with id.
func (s *Store) Get(id string) (Run, error) {
	var run Run
	err := s.db.View(func(txn *badger.Txn) error {
		idx, err := txn.Get([]byte(indexPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		key, err := idx.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &run)
		})
	})
	return run, err
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(limit int) ([]Run, error) {
	if limit <= 0 {
		return nil, nil
	}
	var runs []Run
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(runPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		// A reverse scan starts at the largest key with the prefix.
		seek := append([]byte(runPrefix), 0xff)
		for it.Seek(seek); it.ValidForPrefix(opts.Prefix) && len(runs) < limit; it.Next() {
			var run Run
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &run)
			}); err != nil {
				return err
			}
			runs = append(runs, run)
		}
		return nil
	})
	return runs, err
}

func runKey(run Run) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", runPrefix, run.StartedAt.UnixNano(), run.ID))
}
