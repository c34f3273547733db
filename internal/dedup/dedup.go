// Package dedup records which inbound event identifiers have been processed.
package dedup

import (
	"time"

	"github.com/h1v3-io/jirabot/internal/keyed"
)

// Set is the set of handled event IDs. It only grows; nothing is evicted
// for the lifetime of the process.
type Set struct {
	seen *keyed.Map[time.Time]
	now  func() time.Time
}

// New creates an empty Set.
func New() *Set {
	return &Set{
		seen: keyed.New[time.Time](),
		now:  time.Now,
	}
}

// HasBeenHandled reports whether id was marked before.
func (s *Set) HasBeenHandled(id string) bool {
	lease := s.seen.Acquire(id)
	defer lease.Release()
	_, ok := lease.Load()
	return ok
}

// MarkHandled records id. Marking twice keeps the first timestamp.
func (s *Set) MarkHandled(id string) {
	s.MarkIfNew(id)
}

// MarkIfNew marks id and returns true if it was not already handled.
// The check and the mark happen under one lease, so concurrent callers with
// the same id see exactly one true.
func (s *Set) MarkIfNew(id string) bool {
	lease := s.seen.Acquire(id)
	defer lease.Release()
	if _, ok := lease.Load(); ok {
		return false
	}
	lease.Store(s.now())
	return true
}

// Len returns how many IDs have been handled.
func (s *Set) Len() int {
	return s.seen.Len()
}
