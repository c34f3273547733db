// Package keyed provides a lock-guarded key-value store where every
// check-or-mutate sequence on a key happens under an explicit lease.
package keyed

import (
	"sort"
	"sync"
)

// Map stores values by string key. Callers Acquire a key, read and write it
// through the returned Lease, then Release it. Leases on different keys never
// block each other; leases on the same key are granted one at a time.
type Map[V any] struct {
	mu     sync.Mutex
	values map[string]V
	locks  map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int // holders plus waiters; guarded by Map.mu
}

// New creates an empty Map.
func New[V any]() *Map[V] {
	return &Map[V]{
		values: make(map[string]V),
		locks:  make(map[string]*keyLock),
	}
}

// Acquire blocks until the caller holds key exclusively.
func (m *Map[V]) Acquire(key string) *Lease[V] {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return &Lease[V]{m: m, key: key, lock: l}
}

// With runs fn while holding key.
func (m *Map[V]) With(key string, fn func(*Lease[V])) {
	lease := m.Acquire(key)
	defer lease.Release()
	fn(lease)
}

// Len returns the number of stored values.
func (m *Map[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values)
}

// Keys returns the stored keys in sorted order.
func (m *Map[V]) Keys() []string {
	m.mu.Lock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	m.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of all stored values. It does not take per-key
// leases, so a value being rewritten concurrently shows its last stored state.
func (m *Map[V]) Snapshot() map[string]V {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]V, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// Lease is exclusive access to a single key. It must be released exactly once.
type Lease[V any] struct {
	m        *Map[V]
	key      string
	lock     *keyLock
	released bool
}

// Key returns the leased key.
func (l *Lease[V]) Key() string { return l.key }

// Load returns the stored value and whether one exists.
func (l *Lease[V]) Load() (V, bool) {
	l.mustHold()
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	v, ok := l.m.values[l.key]
	return v, ok
}

// Store sets the value for the leased key.
func (l *Lease[V]) Store(v V) {
	l.mustHold()
	l.m.mu.Lock()
	l.m.values[l.key] = v
	l.m.mu.Unlock()
}

// Delete removes the value for the leased key.
func (l *Lease[V]) Delete() {
	l.mustHold()
	l.m.mu.Lock()
	delete(l.m.values, l.key)
	l.m.mu.Unlock()
}

// Release gives up the lease. Calling it again is a no-op.
func (l *Lease[V]) Release() {
	if l.released {
		return
	}
	l.released = true
	l.lock.mu.Unlock()

	l.m.mu.Lock()
	l.lock.refs--
	if l.lock.refs == 0 {
		delete(l.m.locks, l.key)
	}
	l.m.mu.Unlock()
}

func (l *Lease[V]) mustHold() {
	if l.released {
		panic("keyed: use of released lease for key " + l.key)
	}
}
