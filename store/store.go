// Package store persists dictation artifacts: transcripts on every
// completed run and failure-context reports on every failed one. Each
// save returns a location string callers record in the run snapshot.
package store

import (
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// Transcript kinds.
const (
	KindPrimary = "primary"
	KindRaw     = "raw"
	KindRefined = "refined"
)

// failurePrefix namespaces failure-context reports.
const failurePrefix = "failure"

// Options configures the store.
type Options struct {
	Dir string
	// FailureTTL bounds how long failure contexts are kept. Zero keeps
	// them forever.
	FailureTTL time.Duration
}

// DefaultOptions returns the store defaults for the given directory.
func DefaultOptions(dir string) Options {
	return Options{
		Dir:        dir,
		FailureTTL: 14 * 24 * time.Hour,
	}
}

// Store is a badger-backed artifact store.
type Store struct {
	db         *badger.DB
	failureTTL time.Duration
	now        func() time.Time
}

// Open opens or creates the store at opts.Dir.
func Open(opts Options) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(opts.Dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &Store{
		db:         db,
		failureTTL: opts.FailureTTL,
		now:        time.Now,
	}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveTranscript stores one transcript variant and returns its location.
func (s *Store) SaveTranscript(kind, backend, runID, text string) (string, error) {
	key := s.key(kind, backend, runID)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(text))
	})
	if err != nil {
		return "", fmt.Errorf("save transcript: %w", err)
	}
	return key, nil
}

// SaveFailureContext stores a failure report, bounded by the failure TTL.
func (s *Store) SaveFailureContext(backend, runID, report string) (string, error) {
	key := s.key(failurePrefix, backend, runID)
	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), []byte(report))
		if s.failureTTL > 0 {
			entry = entry.WithTTL(s.failureTTL)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return "", fmt.Errorf("save failure context: %w", err)
	}
	return key, nil
}

// Get returns the artifact at location.
func (s *Store) Get(location string) (string, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(location))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("get %s: %w", location, err)
	}
	return string(value), nil
}

// List returns all locations under the given kind prefix, newest last.
func (s *Store) List(kind string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(kind + "/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return keys, nil
}

// key layout: kind/backend/timestamp-runID. Timestamps sort
// lexicographically so iteration returns runs in order.
func (s *Store) key(kind, backend, runID string) string {
	ts := s.now().UTC().Format("20060102T150405.000")
	return fmt.Sprintf("%s/%s/%s-%s", kind, backend, ts, runID)
}
