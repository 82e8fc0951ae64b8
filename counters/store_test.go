package counters

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestStore_Increment(t *testing.T) {
	store := NewStore()

	for i := 0; i < 7; i++ {
		store.Increment("requests")
	}

	c, ok := store.Get("requests", Increment)
	require.True(t, ok)
	assert.Equal(t, Increment, c.Type())
	assert.Equal(t, Count{N: 7}, c.Value)
}

func TestStore_IncrementBy(t *testing.T) {
	store := NewStore()

	store.IncrementBy("bytes", 1.5)
	store.IncrementBy("bytes", 2)
	store.Increment("bytes")

	c, ok := store.Get("bytes", Increment)
	require.True(t, ok)
	assert.Equal(t, Count{N: 4.5}, c.Value)
}

func TestStore_Last(t *testing.T) {
	store := NewStore()

	store.Last("queue.depth", 10)
	store.Last("queue.depth", 3)

	c, ok := store.Get("queue.depth", LastValue)
	require.True(t, ok)
	assert.Equal(t, Last{Value: 3}, c.Value)
}

func TestStore_Timestamp(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(WithClock(fixedClock(now)))

	store.TimestampNow("started")
	explicit := now.Add(-time.Hour)
	store.Timestamp("deployed", explicit)

	c, ok := store.Get("started", Timestamp)
	require.True(t, ok)
	assert.Equal(t, Stamp{Time: now}, c.Value)
	assert.Equal(t, now, c.Updated)

	c, ok = store.Get("deployed", Timestamp)
	require.True(t, ok)
	assert.Equal(t, Stamp{Time: explicit}, c.Value)
}

func TestStore_Stats(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   Stats
	}{
		{
			name:   "single observation",
			values: []float64{2},
			want:   Stats{Min: 2, Max: 2, Average: 2, Count: 1},
		},
		{
			name:   "several observations",
			values: []float64{4, 1, 9, 2},
			want:   Stats{Min: 1, Max: 9, Average: 4, Count: 4},
		},
		{
			name:   "negative values",
			values: []float64{-3, -1, -2},
			want:   Stats{Min: -3, Max: -1, Average: -2, Count: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore()
			for _, v := range tt.values {
				store.Stats("latency", v)
			}

			c, ok := store.Get("latency", Statistics)
			require.True(t, ok)
			got, ok := c.Value.(Stats)
			require.True(t, ok)
			assert.Equal(t, tt.want.Min, got.Min)
			assert.Equal(t, tt.want.Max, got.Max)
			assert.Equal(t, tt.want.Count, got.Count)
			assert.InDelta(t, tt.want.Average, got.Average, 1e-9)
		})
	}
}

func TestStore_SameNameDifferentTypes(t *testing.T) {
	store := NewStore()

	store.Increment("jobs")
	store.Last("jobs", 42)

	all := store.GetAll()
	require.Len(t, all, 2)
	assert.Equal(t, Increment, all[0].Type())
	assert.Equal(t, LastValue, all[1].Type())
}

func TestStore_GetAll_InsertionOrder(t *testing.T) {
	store := NewStore()

	store.Last("c", 1)
	store.Increment("a")
	store.Stats("b", 1)
	store.Increment("a")

	all := store.GetAll()
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].Name)
	assert.Equal(t, "a", all[1].Name)
	assert.Equal(t, "b", all[2].Name)
}

func TestStore_GetAll_ReturnsCopy(t *testing.T) {
	store := NewStore()
	store.Increment("requests")

	first := store.GetAll()
	first[0].Value = Count{N: 100}
	first[0].Name = "modified"

	second := store.GetAll()
	require.Len(t, second, 1)
	assert.Equal(t, "requests", second[0].Name)
	assert.Equal(t, Count{N: 1}, second[0].Value)
}

func TestStore_ClearAll(t *testing.T) {
	store := NewStore()
	store.Increment("test.counter1")
	store.Stats("test.counter2", 2)
	store.Last("test.counter3", 3)
	store.TimestampNow("test.counter4")

	store.ClearAll()

	assert.Equal(t, 0, store.Len())
	_, ok := store.Get("test.counter1", Increment)
	assert.False(t, ok)
	_, ok = store.Get("test.counter2", Statistics)
	assert.False(t, ok)
	_, ok = store.Get("test.counter3", LastValue)
	assert.False(t, ok)
	_, ok = store.Get("test.counter4", Timestamp)
	assert.False(t, ok)

	// Updates resume cleanly after a clear.
	store.Increment("test.counter1")
	c, ok := store.Get("test.counter1", Increment)
	require.True(t, ok)
	assert.Equal(t, Count{N: 1}, c.Value)
}

func TestStore_Drain(t *testing.T) {
	store := NewStore()
	store.Increment("a")
	store.Last("b", 2)

	drained := store.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, "a", drained[0].Name)
	assert.Equal(t, "b", drained[1].Name)
	assert.Empty(t, store.GetAll())
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	store := NewStore()

	const goroutines = 20
	const perGoroutine = 250

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				store.Increment("shared")
				store.Stats("stats", float64(j))
				store.Last(fmt.Sprintf("worker.%d", id), float64(j))
			}
		}(i)
	}
	wg.Wait()

	c, ok := store.Get("shared", Increment)
	require.True(t, ok)
	assert.Equal(t, Count{N: goroutines * perGoroutine}, c.Value)

	c, ok = store.Get("stats", Statistics)
	require.True(t, ok)
	st := c.Value.(Stats)
	assert.Equal(t, int64(goroutines*perGoroutine), st.Count)
	assert.Equal(t, 0.0, st.Min)
	assert.Equal(t, float64(perGoroutine-1), st.Max)
	assert.InDelta(t, float64(perGoroutine-1)/2, st.Average, 1e-6)
}

func TestStore_DrainConcurrentWithIncrement(t *testing.T) {
	store := NewStore()

	const total = 5000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			store.Increment("hits")
		}
	}()

	var drained float64
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			for _, c := range store.Drain() {
				drained += c.Value.(Count).N
			}
			if drained == total {
				return
			}
		}
	}()

	wg.Wait()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for drain")
	}
	assert.Equal(t, float64(total), drained)
}

func TestType_String(t *testing.T) {
	assert.Equal(t, "increment", Increment.String())
	assert.Equal(t, "last_value", LastValue.String())
	assert.Equal(t, "statistics", Statistics.String())
	assert.Equal(t, "timestamp", Timestamp.String())
	assert.Equal(t, "Type(9)", Type(9).String())
}
