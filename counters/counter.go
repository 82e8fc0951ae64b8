// Package counters accumulates named application counters in memory.
//
// Four kinds of counter are supported:
//   - Increment: a running total, bumped by Increment or IncrementBy
//   - LastValue: the most recently recorded value
//   - Statistics: min, max, average and number of observations
//   - Timestamp: a recorded point in time
//
// A counter is identified by its name and type, and is created on first use.
//
// Example usage:
//
//	store := counters.NewStore()
//	store.Increment("orders.created")
//	store.Stats("orders.latency", 12.5)
//	snapshot := store.GetAll()
package counters

import (
	"fmt"
	"time"
)

// Type identifies the accumulation semantics of a counter.
type Type int

const (
	Increment Type = iota
	LastValue
	Statistics
	Timestamp
)

func (t Type) String() string {
	switch t {
	case Increment:
		return "increment"
	case LastValue:
		return "last_value"
	case Statistics:
		return "statistics"
	case Timestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Value holds the recorded data of a counter. The concrete type is one of
// Count, Last, Stats or Stamp, and determines the counter's Type.
type Value interface {
	counterType() Type
}

// Count is the value of an Increment counter.
type Count struct {
	N float64
}

// Last is the value of a LastValue counter.
type Last struct {
	Value float64
}

// Stats is the value of a Statistics counter.
type Stats struct {
	Min     float64
	Max     float64
	Average float64
	Count   int64
}

// Stamp is the value of a Timestamp counter.
type Stamp struct {
	Time time.Time
}

func (Count) counterType() Type { return Increment }
func (Last) counterType() Type  { return LastValue }
func (Stats) counterType() Type { return Statistics }
func (Stamp) counterType() Type { return Timestamp }

// observe folds v into the statistics using a streaming mean.
func (s Stats) observe(v float64) Stats {
	if s.Count == 0 {
		return Stats{Min: v, Max: v, Average: v, Count: 1}
	}
	s.Count++
	s.Min = min(s.Min, v)
	s.Max = max(s.Max, v)
	s.Average += (v - s.Average) / float64(s.Count)
	return s
}

// Counter is a named, typed accumulator captured at a point in time.
type Counter struct {
	Name  string
	Value Value
	// Updated is when the counter was last written.
	Updated time.Time
}

// Type returns the counter's type, derived from its value.
func (c Counter) Type() Type {
	if c.Value == nil {
		return Increment
	}
	return c.Value.counterType()
}

// Snapshot is an ordered capture of counters. Order is first insertion into
// the store. Callers must treat it as read-only.
type Snapshot []Counter
