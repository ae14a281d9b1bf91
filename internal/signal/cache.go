package signal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/domain/models"
	pkgcache "github.com/obertruper/BOT-AI-V3-sub003/pkg/cache"
	applogger "github.com/obertruper/BOT-AI-V3-sub003/pkg/logger"
	"github.com/obertruper/BOT-AI-V3-sub003/pkg/util"
)

// Clock is injectable for deterministic TTL tests.
type Clock func() time.Time

// CacheKey identifies one verdict slot. The time bucket is part of the key,
// never an afterthought: without it the cache returns stale verdicts across
// genuinely different market states.
type CacheKey struct {
	Exchange string
	Symbol   string
	Bucket   int64
}

func (k CacheKey) String() string {
	return pkgcache.GenerateKeyWithParams("botai:signal", k.Exchange, k.Symbol, k.Bucket)
}

// ComputeFn produces a verdict on cache miss.
type ComputeFn func(ctx context.Context) (*models.Verdict, error)

type cacheEntry struct {
	verdict *models.Verdict
	created time.Time
}

type inflightCall struct {
	done    chan struct{}
	verdict *models.Verdict
	err     error
}

// Cache memoizes verdicts per (exchange, symbol, time bucket) with TTL.
// Concurrent callers for the same key share one computation. An optional
// backend (Redis) makes hits survive process restarts.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*cacheEntry
	inflight map[string]*inflightCall

	ttl     time.Duration
	bucket  time.Duration
	clock   Clock
	backend pkgcache.Service
	log     *applogger.Logger
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock pins the cache clock.
func WithClock(c Clock) CacheOption {
	return func(sc *Cache) { sc.clock = c }
}

// WithBackend attaches a shared second-level store.
func WithBackend(b pkgcache.Service) CacheOption {
	return func(sc *Cache) { sc.backend = b }
}

// WithTTL overrides the entry lifetime.
func WithTTL(ttl time.Duration) CacheOption {
	return func(sc *Cache) { sc.ttl = ttl }
}

// WithBucket overrides the key time-bucket granularity.
func WithBucket(d time.Duration) CacheOption {
	return func(sc *Cache) { sc.bucket = d }
}

// NewCache builds a cache with a 1-minute bucket and 5-minute TTL.
func NewCache(log *applogger.Logger, opts ...CacheOption) *Cache {
	sc := &Cache{
		entries:  make(map[string]*cacheEntry),
		inflight: make(map[string]*inflightCall),
		ttl:      5 * time.Minute,
		bucket:   time.Minute,
		clock:    time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

// Key builds the current-bucket key for a symbol.
func (sc *Cache) Key(exchange, symbol string) CacheKey {
	return CacheKey{
		Exchange: exchange,
		Symbol:   symbol,
		Bucket:   util.TimeBucket(sc.clock(), sc.bucket),
	}
}

// GetOrCompute returns the cached verdict for key, or runs fn at most once
// per key per TTL window. Failed computations are not cached.
func (sc *Cache) GetOrCompute(ctx context.Context, key CacheKey, fn ComputeFn) (*models.Verdict, bool, error) {
	ks := key.String()
	now := sc.clock()

	sc.mu.Lock()
	if e, ok := sc.entries[ks]; ok {
		if now.Sub(e.created) < sc.ttl {
			sc.mu.Unlock()
			return e.verdict, true, nil
		}
		delete(sc.entries, ks)
	}
	if call, ok := sc.inflight[ks]; ok {
		sc.mu.Unlock()
		select {
		case <-call.done:
			if call.err != nil {
				return nil, false, call.err
			}
			return call.verdict, true, nil
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	call := &inflightCall{done: make(chan struct{})}
	sc.inflight[ks] = call
	sc.mu.Unlock()

	verdict, err := sc.compute(ctx, ks, fn)

	sc.mu.Lock()
	if err == nil {
		sc.entries[ks] = &cacheEntry{verdict: verdict, created: sc.clock()}
	}
	delete(sc.inflight, ks)
	sc.mu.Unlock()

	call.verdict = verdict
	call.err = err
	close(call.done)

	if err != nil {
		return nil, false, err
	}
	return verdict, false, nil
}

func (sc *Cache) compute(ctx context.Context, ks string, fn ComputeFn) (*models.Verdict, error) {
	if sc.backend != nil {
		var stored models.Verdict
		err := sc.backend.Get(ctx, ks, &stored)
		if err == nil {
			return &stored, nil
		}
		if !errors.Is(err, pkgcache.ErrCacheMiss) && sc.log != nil {
			sc.log.Warn("signal cache backend read failed", applogger.Error(err))
		}
	}

	verdict, err := fn(ctx)
	if err != nil {
		return nil, err
	}

	if sc.backend != nil {
		if err := sc.backend.Set(ctx, ks, verdict, sc.ttl); err != nil && sc.log != nil {
			sc.log.Warn("signal cache backend write failed", applogger.Error(err))
		}
	}
	return verdict, nil
}

// Sweep removes expired entries. Called periodically from RunSweeper and
// usable directly in tests.
func (sc *Cache) Sweep() int {
	now := sc.clock()
	sc.mu.Lock()
	defer sc.mu.Unlock()
	removed := 0
	for k, e := range sc.entries {
		if now.Sub(e.created) >= sc.ttl {
			delete(sc.entries, k)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps expired entries until ctx is cancelled.
func (sc *Cache) RunSweeper(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sc.Sweep(); n > 0 && sc.log != nil {
				sc.log.Debug("signal cache swept", applogger.Int("removed", n))
			}
		}
	}
}

// Len reports the live entry count.
func (sc *Cache) Len() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.entries)
}
