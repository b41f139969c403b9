package infra

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindow_AdmitsUpToLimitWithoutWaiting(t *testing.T) {
	clock := newFakeClock()
	w := NewSlidingWindow(18, time.Minute, WithWindowClock(clock.Now, clock.Sleep))

	for i := 0; i < 18; i++ {
		require.NoError(t, w.Acquire(context.Background()))
	}
	assert.Empty(t, clock.Sleeps())
	assert.Equal(t, 18, w.InWindow())
}

func TestSlidingWindow_NineteenthWaitsForOldestPlusMargin(t *testing.T) {
	clock := newFakeClock()
	w := NewSlidingWindow(18, time.Minute, WithWindowClock(clock.Now, clock.Sleep))

	start := clock.Now()
	for i := 0; i < 18; i++ {
		require.NoError(t, w.Acquire(context.Background()))
		clock.Advance(time.Second)
	}

	require.NoError(t, w.Acquire(context.Background()))

	sleeps := clock.Sleeps()
	require.Len(t, sleeps, 1)
	// oldest em start, agora start+18s: espera 42s + 1s de margem
	assert.Equal(t, 43*time.Second, sleeps[0])
	assert.True(t, clock.Now().Sub(start) >= time.Minute)
}

func TestSlidingWindow_NeverExceedsLimitInAnyWindow(t *testing.T) {
	clock := newFakeClock()
	w := NewSlidingWindow(18, time.Minute, WithWindowClock(clock.Now, clock.Sleep))

	var stamps []time.Time
	for i := 0; i < 60; i++ {
		require.NoError(t, w.Acquire(context.Background()))
		stamps = append(stamps, clock.Now())
		clock.Advance(500 * time.Millisecond)
	}

	for i := range stamps {
		n := 0
		for j := i; j < len(stamps) && stamps[j].Sub(stamps[i]) < time.Minute; j++ {
			n++
		}
		assert.LessOrEqual(t, n, 18, "window starting at %d", i)
	}
}

func TestSlidingWindow_ConcurrentAcquireRespectsLimit(t *testing.T) {
	clock := newFakeClock()
	blocked := make(chan struct{}, 100)
	sleep := func(ctx context.Context, d time.Duration) error {
		blocked <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}
	w := NewSlidingWindow(5, time.Minute, WithWindowClock(clock.Now, sleep))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if w.Acquire(ctx) == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	for i := 0; i < 15; i++ {
		<-blocked
	}
	cancel()
	wg.Wait()

	assert.Equal(t, 5, admitted)
}

func TestSlidingWindow_CanceledContext(t *testing.T) {
	w := NewSlidingWindow(1, time.Minute)
	require.NoError(t, w.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := w.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSlidingWindow_CustomMargin(t *testing.T) {
	clock := newFakeClock()
	w := NewSlidingWindow(1, 10*time.Second,
		WithWindowClock(clock.Now, clock.Sleep),
		WithSafetyMargin(0))

	require.NoError(t, w.Acquire(context.Background()))
	require.NoError(t, w.Acquire(context.Background()))
	assert.Equal(t, []time.Duration{10 * time.Second}, clock.Sleeps())
}
