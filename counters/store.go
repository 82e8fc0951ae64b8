package counters

import (
	"sync"
	"time"
)

type key struct {
	name string
	typ  Type
}

// Store is a thread-safe collection of counters. The zero value is not
// usable; create one with NewStore.
type Store struct {
	mu    sync.Mutex
	index map[key]int
	items []Counter
	now   func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock sets the time source used for Updated and TimestampNow.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty Store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		index: make(map[key]int),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Increment adds 1 to the named Increment counter.
func (s *Store) Increment(name string) {
	s.IncrementBy(name, 1)
}

// IncrementBy adds v to the named Increment counter.
func (s *Store) IncrementBy(name string, v float64) {
	s.update(name, Increment, func(cur Value) Value {
		c, _ := cur.(Count)
		c.N += v
		return c
	})
}

// Last records v as the value of the named LastValue counter.
func (s *Store) Last(name string, v float64) {
	s.update(name, LastValue, func(Value) Value {
		return Last{Value: v}
	})
}

// TimestampNow sets the named Timestamp counter to the current time.
func (s *Store) TimestampNow(name string) {
	s.Timestamp(name, s.now())
}

// Timestamp sets the named Timestamp counter to t.
func (s *Store) Timestamp(name string, t time.Time) {
	s.update(name, Timestamp, func(Value) Value {
		return Stamp{Time: t}
	})
}

// Stats records an observation on the named Statistics counter.
func (s *Store) Stats(name string, v float64) {
	s.update(name, Statistics, func(cur Value) Value {
		st, _ := cur.(Stats)
		return st.observe(v)
	})
}

// update applies fn to the counter identified by name and typ under the lock,
// creating the counter if needed.
func (s *Store) update(name string, typ Type, fn func(Value) Value) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	k := key{name: name, typ: typ}
	if i, ok := s.index[k]; ok {
		s.items[i].Value = fn(s.items[i].Value)
		s.items[i].Updated = now
		return
	}
	s.index[k] = len(s.items)
	s.items = append(s.items, Counter{
		Name:    name,
		Value:   fn(nil),
		Updated: now,
	})
}

// Get returns the counter with the given name and type.
func (s *Store) Get(name string, typ Type) (Counter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[key{name: name, typ: typ}]
	if !ok {
		return Counter{}, false
	}
	return s.items[i], true
}

// GetAll returns a copy of every counter in insertion order.
func (s *Store) GetAll() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.copyLocked()
}

// ClearAll removes every counter. Counters are recreated by the next update.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearLocked()
}

// Drain returns a copy of every counter and clears the store in a single
// critical section, so no concurrent update is lost or counted twice.
func (s *Store) Drain() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.copyLocked()
	s.clearLocked()
	return snapshot
}

// Len returns the number of counters held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.items)
}

func (s *Store) copyLocked() Snapshot {
	result := make(Snapshot, len(s.items))
	copy(result, s.items)
	return result
}

func (s *Store) clearLocked() {
	s.index = make(map[key]int)
	s.items = nil
}
