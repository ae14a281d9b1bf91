package usecase

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/domain/models"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/features"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/features/registry"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/signal"
)

type fakeStore struct {
	series *models.CandleSeries
	err    error
	calls  int
}

func (s *fakeStore) Fetch(ctx context.Context, symbol, exchange string, interval time.Duration, since, until time.Time) (*models.CandleSeries, error) {
	return s.series, s.err
}

func (s *fakeStore) Latest(ctx context.Context, symbol, exchange string, interval time.Duration, n int) (*models.CandleSeries, error) {
	s.calls++
	return s.series, s.err
}

func (s *fakeStore) Health(ctx context.Context) error { return nil }
func (s *fakeStore) Close() error                     { return nil }

type fakeRunner struct {
	mu     sync.Mutex
	calls  int
	out    models.RawModelOutput
	err    error
	loaded bool
}

func (r *fakeRunner) Infer(ctx context.Context, window [][]float64) (models.RawModelOutput, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.out, nil
}

func (r *fakeRunner) ContextLength() int { return 96 }
func (r *fakeRunner) Loaded() bool       { return r.loaded }

type fakePublisher struct {
	mu       sync.Mutex
	verdicts []*models.Verdict
}

func (p *fakePublisher) Publish(ctx context.Context, v *models.Verdict) error {
	p.mu.Lock()
	p.verdicts = append(p.verdicts, v)
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func longTensor() models.RawModelOutput {
	return models.RawModelOutput{
		0.002, -0.001, 0.005, 0.001,
		2.0, -1.0, -1.5,
		1.5, -0.5, -1.0,
		0.8, -0.3, -0.8,
		0.3, 1.8, -0.5,
		0.1, 0.2, 0.15, 0.18,
	}
}

func testSeries(n int) *models.CandleSeries {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]*models.Candle, n)
	price := 50000.0
	for i := 0; i < n; i++ {
		delta := 100*math.Sin(float64(i)/9) + 30*math.Cos(float64(i)/4) + 2
		open := price
		price += delta
		candles[i] = &models.Candle{
			Timestamp: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:      open,
			High:      math.Max(open, price) + 20,
			Low:       math.Min(open, price) - 20,
			Close:     price,
			Volume:    1000,
			Turnover:  1000 * price,
		}
	}
	return &models.CandleSeries{
		Symbol:   "BTCUSDT",
		Exchange: "bybit",
		Interval: 15 * time.Minute,
		Candles:  candles,
	}
}

func newTestPredictor(t *testing.T, store *fakeStore, runner *fakeRunner, pub *fakePublisher) *Predictor {
	t.Helper()
	reg, err := registry.New(nil)
	require.NoError(t, err)
	engineer := features.NewEngineer(reg, features.NewScalerStore(nil), nil)

	clock := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	cache := signal.NewCache(nil, signal.WithClock(func() time.Time { return clock }))
	monitor := signal.NewDiversityMonitor(nil)

	opts := []PredictorOption{}
	if pub != nil {
		opts = append(opts, WithPublisher(pub))
	}
	return NewPredictor(store, engineer, runner, signal.NewInterpreter(), cache, monitor, nil, opts...)
}

func TestPredictEndToEnd(t *testing.T) {
	store := &fakeStore{series: testSeries(300)}
	runner := &fakeRunner{out: longTensor(), loaded: true}
	pub := &fakePublisher{}
	p := newTestPredictor(t, store, runner, pub)

	v, err := p.Predict(context.Background(), "BTCUSDT", "bybit")
	require.NoError(t, err)
	assert.Equal(t, models.SignalLong, v.SignalType)
	assert.Equal(t, models.RiskLow, v.RiskLevel)
	assert.Equal(t, "BTCUSDT", v.Symbol)
	assert.NotZero(t, v.CurrentPrice)

	require.Len(t, pub.verdicts, 1)
	assert.Equal(t, 1, p.Diversity().Total)
}

func TestPredictUsesCacheWithinBucket(t *testing.T) {
	store := &fakeStore{series: testSeries(300)}
	runner := &fakeRunner{out: longTensor(), loaded: true}
	pub := &fakePublisher{}
	p := newTestPredictor(t, store, runner, pub)

	v1, err := p.Predict(context.Background(), "BTCUSDT", "bybit")
	require.NoError(t, err)
	v2, err := p.Predict(context.Background(), "BTCUSDT", "bybit")
	require.NoError(t, err)

	assert.Same(t, v1, v2)
	assert.Equal(t, 1, runner.calls, "one inference per time bucket")
	assert.Equal(t, 1, store.calls)
	assert.Len(t, pub.verdicts, 1, "cache hits are not republished")
	assert.Equal(t, 1, p.Diversity().Total, "cache hits are not re-observed")
}

func TestPredictShortHistoryFails(t *testing.T) {
	store := &fakeStore{series: testSeries(50)}
	runner := &fakeRunner{out: longTensor(), loaded: true}
	p := newTestPredictor(t, store, runner, nil)

	_, err := p.Predict(context.Background(), "BTCUSDT", "bybit")
	require.ErrorIs(t, err, features.ErrInsufficientHistory)
	assert.Zero(t, runner.calls)
}

func TestPredictInferenceFailureIsNotCached(t *testing.T) {
	store := &fakeStore{series: testSeries(300)}
	runner := &fakeRunner{err: context.DeadlineExceeded, loaded: true}
	p := newTestPredictor(t, store, runner, nil)

	_, err := p.Predict(context.Background(), "BTCUSDT", "bybit")
	require.Error(t, err)

	// recovery on the next call once the model responds
	runner.err = nil
	runner.out = longTensor()
	v, err := p.Predict(context.Background(), "BTCUSDT", "bybit")
	require.NoError(t, err)
	assert.Equal(t, models.SignalLong, v.SignalType)
}

func TestHealth(t *testing.T) {
	store := &fakeStore{series: testSeries(300)}
	p := newTestPredictor(t, store, &fakeRunner{loaded: true}, nil)
	assert.NoError(t, p.Health(context.Background()))

	p = newTestPredictor(t, store, &fakeRunner{loaded: false}, nil)
	assert.Error(t, p.Health(context.Background()))
}
