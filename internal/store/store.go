// Package store holds the instrument records served by stockd and the loaders
// that read them from the analysis step's output.
//
// A Store is built once and never modified afterwards, so any number of
// goroutines may read it without coordination.
package store

import (
	"stockd/internal/types"
)

// Store is an immutable, load-ordered collection of records.
type Store struct {
	records []types.Record
	source  string
}

// New builds a store from records in order. The slice is copied; later
// changes to it are not observed. A nil or empty slice yields a usable,
// empty store.
func New(records []types.Record) *Store {
	return newWithSource(records, "")
}

func newWithSource(records []types.Record, source string) *Store {
	s := &Store{
		records: make([]types.Record, len(records)),
		source:  source,
	}
	copy(s.records, records)
	return s
}

// All returns every record in load order. The returned slice is a copy.
func (s *Store) All() []types.Record {
	out := make([]types.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.records)
}

// Empty reports whether the store holds no records.
func (s *Store) Empty() bool {
	return len(s.records) == 0
}

// Source names where the records came from, if they were loaded from disk.
func (s *Store) Source() string {
	return s.source
}
