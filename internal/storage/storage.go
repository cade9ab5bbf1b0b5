// Package storage owns the single in-memory Database and the
// reader/writer lease discipline that lets many queries run concurrently
// against a stable snapshot while a hot-reload swaps in a new schema
// under exclusion (spec §3, §4.1).
package storage

import (
	"sync"

	"github.com/yamlbase/yamlbase/internal/catalog"
)

// Storage owns exactly one catalog.Database and arbitrates access to it
// through reader/writer leases. Constructed once from a parsed schema and
// mutated only by hot-reload.
type Storage struct {
	mu sync.RWMutex
	db *catalog.Database

	tableIndexes map[*catalog.Table]*tableIndexes
	indexesMu    sync.Mutex
}

// New wraps db, ready to serve leases.
func New(db *catalog.Database) *Storage {
	return &Storage{
		db:           db,
		tableIndexes: make(map[*catalog.Table]*tableIndexes),
	}
}

// ReadLease is a shared, read-only snapshot reference. A query must acquire
// one lease for its entire execution and release it only after the last
// row has been streamed to the client, never per row, so the observed
// snapshot stays stable even across a concurrent hot-reload.
type ReadLease struct {
	s  *Storage
	db *catalog.Database
}

// Database returns the snapshot this lease observes.
func (r ReadLease) Database() *catalog.Database { return r.db }

// Release relinquishes the lease, allowing a pending writer to proceed.
func (r ReadLease) Release() { r.s.mu.RUnlock() }

// Reader acquires a shared read lease over the current database snapshot.
func (s *Storage) Reader() ReadLease {
	s.mu.RLock()
	return ReadLease{s: s, db: s.db}
}

// WriteLease is an exclusive lease used by hot-reload to install a new
// schema. All readers are excluded for its duration.
type WriteLease struct {
	s *Storage
}

// Replace installs db as the new snapshot and clears any cached indexes,
// since row positions under the new schema are unrelated to the old one.
func (w WriteLease) Replace(db *catalog.Database) {
	w.s.db = db
	w.s.indexesMu.Lock()
	w.s.tableIndexes = make(map[*catalog.Table]*tableIndexes)
	w.s.indexesMu.Unlock()
}

// Release relinquishes the exclusive lease.
func (w WriteLease) Release() { w.s.mu.Unlock() }

// Writer acquires the exclusive write lease, blocking until every current
// reader has released.
func (s *Storage) Writer() WriteLease {
	s.mu.Lock()
	return WriteLease{s: s}
}
