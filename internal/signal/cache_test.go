package signal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/domain/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func longVerdict() *models.Verdict {
	return &models.Verdict{Symbol: "BTCUSDT", Exchange: "bybit", SignalType: models.SignalLong}
}

func TestGetOrComputeSingleComputationPerTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)}
	sc := NewCache(nil, WithClock(clock.Now), WithTTL(5*time.Minute))

	var calls int32
	fn := func(context.Context) (*models.Verdict, error) {
		atomic.AddInt32(&calls, 1)
		return longVerdict(), nil
	}

	key := sc.Key("bybit", "BTCUSDT")
	v1, hit1, err := sc.GetOrCompute(context.Background(), key, fn)
	require.NoError(t, err)
	assert.False(t, hit1)

	v2, hit2, err := sc.GetOrCompute(context.Background(), key, fn)
	require.NoError(t, err)
	assert.True(t, hit2)
	assert.Same(t, v1, v2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrComputeRecomputesAfterTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	sc := NewCache(nil, WithClock(clock.Now), WithTTL(5*time.Minute))

	var calls int32
	fn := func(context.Context) (*models.Verdict, error) {
		atomic.AddInt32(&calls, 1)
		return longVerdict(), nil
	}

	key := sc.Key("bybit", "BTCUSDT")
	_, _, err := sc.GetOrCompute(context.Background(), key, fn)
	require.NoError(t, err)

	clock.Advance(5*time.Minute + time.Second)
	_, hit, err := sc.GetOrCompute(context.Background(), key, fn)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestKeyChangesWithTimeBucket(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 59, 0, time.UTC)}
	sc := NewCache(nil, WithClock(clock.Now), WithBucket(time.Minute))

	k1 := sc.Key("bybit", "BTCUSDT")
	clock.Advance(2 * time.Second)
	k2 := sc.Key("bybit", "BTCUSDT")
	assert.NotEqual(t, k1, k2, "crossing a minute boundary must change the key")
	assert.Equal(t, k1.Symbol, k2.Symbol)
}

func TestFailedComputationIsNotCached(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	sc := NewCache(nil, WithClock(clock.Now))

	sentinel := errors.New("model offline")
	var calls int32
	failing := func(context.Context) (*models.Verdict, error) {
		atomic.AddInt32(&calls, 1)
		return nil, sentinel
	}

	key := sc.Key("bybit", "BTCUSDT")
	_, _, err := sc.GetOrCompute(context.Background(), key, failing)
	require.ErrorIs(t, err, sentinel)

	_, _, err = sc.GetOrCompute(context.Background(), key, failing)
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "errors must not be memoized")
	assert.Zero(t, sc.Len())
}

func TestConcurrentCallersShareOneComputation(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	sc := NewCache(nil, WithClock(clock.Now))

	var calls int32
	release := make(chan struct{})
	fn := func(context.Context) (*models.Verdict, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return longVerdict(), nil
	}

	key := sc.Key("bybit", "BTCUSDT")
	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := sc.GetOrCompute(context.Background(), key, fn)
			assert.NoError(t, err)
		}()
	}
	// let the goroutines pile up on the inflight call, then release
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	sc := NewCache(nil, WithClock(clock.Now), WithTTL(time.Minute))

	fn := func(context.Context) (*models.Verdict, error) { return longVerdict(), nil }
	_, _, err := sc.GetOrCompute(context.Background(), sc.Key("bybit", "BTCUSDT"), fn)
	require.NoError(t, err)
	require.Equal(t, 1, sc.Len())

	assert.Zero(t, sc.Sweep(), "fresh entries survive the sweep")

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, sc.Sweep())
	assert.Zero(t, sc.Len())
}
