package dedup

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func TestCache_SeenOnce(t *testing.T) {
	c := New(10, time.Minute)

	assert.False(t, c.Seen("sig1"))
	assert.True(t, c.Seen("sig1"))
	assert.True(t, c.Seen("sig1"))
	assert.False(t, c.Seen("sig2"))
	assert.Equal(t, 2, c.Len())
}

func TestCache_OverflowEvictsOldest(t *testing.T) {
	c := New(3, time.Hour)

	for _, s := range []string{"a", "b", "c"} {
		require.False(t, c.Seen(s))
	}
	// Lookups must not refresh "a".
	require.True(t, c.Seen("a"))

	assert.False(t, c.Seen("d"))
	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Contains("a"), "oldest entry should be evicted")
	assert.True(t, c.Contains("b"))
	assert.True(t, c.Contains("c"))
	assert.True(t, c.Contains("d"))

	// Evicted entry is treated as new.
	assert.False(t, c.Seen("a"))
	assert.False(t, c.Contains("b"))
}

func TestCache_TTLExpiry(t *testing.T) {
	clock := newClock()
	c := New(10, time.Minute, WithClock(clock.Now))

	require.False(t, c.Seen("sig"))
	clock.Advance(59 * time.Second)
	assert.True(t, c.Seen("sig"))

	clock.Advance(2 * time.Second)
	assert.False(t, c.Contains("sig"))
	assert.False(t, c.Seen("sig"), "expired entry should be treated as new")
	assert.Equal(t, 1, c.Len())
}

func TestCache_Sweep(t *testing.T) {
	clock := newClock()
	c := New(10, time.Minute, WithClock(clock.Now))

	c.Seen("old1")
	c.Seen("old2")
	clock.Advance(30 * time.Second)
	c.Seen("new")
	clock.Advance(31 * time.Second)

	assert.Equal(t, 2, c.Sweep())
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Contains("new"))
	assert.Equal(t, 0, c.Sweep())
}

func TestCache_ConcurrentSeenSingleWinner(t *testing.T) {
	c := New(1000, time.Hour)

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.Seen("same") {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestCache_Run(t *testing.T) {
	clock := newClock()
	c := New(10, time.Millisecond, WithClock(clock.Now))
	for i := 0; i < 5; i++ {
		c.Seen(fmt.Sprintf("sig%d", i))
	}
	clock.Advance(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	swept := make(chan int, 10)
	done := make(chan struct{})
	go func() {
		c.Run(ctx, 5*time.Millisecond, func(n int) {
			select {
			case swept <- n:
			default:
			}
		})
		close(done)
	}()

	select {
	case n := <-swept:
		assert.Equal(t, 5, n)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not run")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestNew_Defaults(t *testing.T) {
	c := New(0, 0)
	assert.Equal(t, DefaultCapacity, c.capacity)
	assert.Equal(t, DefaultTTL, c.ttl)
}
