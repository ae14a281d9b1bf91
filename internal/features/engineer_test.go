package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/domain/models"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/features/registry"
)

func testSeries(t *testing.T, n int) *models.CandleSeries {
	t.Helper()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]*models.Candle, n)
	price := 50000.0
	for i := 0; i < n; i++ {
		// deterministic wave with drift, no RNG so failures reproduce exactly
		delta := 120*math.Sin(float64(i)/9) + 35*math.Cos(float64(i)/4) + 3
		open := price
		price += delta
		high := math.Max(open, price) + 25
		low := math.Min(open, price) - 25
		vol := 1000 + 400*math.Sin(float64(i)/7)
		candles[i] = &models.Candle{
			Timestamp: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     price,
			Volume:    vol,
			Turnover:  vol * (open + price) / 2,
		}
	}
	return &models.CandleSeries{
		Symbol:   "BTCUSDT",
		Exchange: "bybit",
		Interval: 15 * time.Minute,
		Candles:  candles,
	}
}

func newTestEngineer(t *testing.T) *Engineer {
	t.Helper()
	reg, err := registry.New(nil)
	require.NoError(t, err)
	return NewEngineer(reg, NewScalerStore(nil), nil)
}

func TestComputeInferenceVectorContract(t *testing.T) {
	e := newTestEngineer(t)
	reg, _ := registry.New(nil)

	f, err := e.Compute(testSeries(t, 200), true)
	require.NoError(t, err)

	names := f.Names()
	require.Len(t, names, registry.RequiredFeatureCount)
	assert.Equal(t, reg.Names(), names, "inference frame must follow registry order")

	for _, name := range names {
		col, ok := f.Get(name)
		require.True(t, ok)
		require.Len(t, col, 200)
		for i, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("feature %s row %d is not finite: %v", name, i, v)
			}
		}
	}
}

func TestComputeDeterministic(t *testing.T) {
	e := newTestEngineer(t)

	f1, err := e.Compute(testSeries(t, 150), true)
	require.NoError(t, err)
	f2, err := e.Compute(testSeries(t, 150), true)
	require.NoError(t, err)

	for _, name := range f1.Names() {
		c1, _ := f1.Get(name)
		c2, _ := f2.Get(name)
		assert.Equal(t, c1, c2, "feature %s differs between identical runs", name)
	}
}

func TestComputeInsufficientHistory(t *testing.T) {
	e := newTestEngineer(t)

	_, err := e.Compute(testSeries(t, 95), true)
	require.ErrorIs(t, err, ErrInsufficientHistory)

	_, err = e.Compute(nil, true)
	require.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestComputeNoTargetsInInference(t *testing.T) {
	e := newTestEngineer(t)

	inf, err := e.Compute(testSeries(t, 150), true)
	require.NoError(t, err)
	assert.False(t, inf.Has("target_return_1"))
	assert.False(t, inf.Has("target_direction_48"))

	train, err := e.Compute(testSeries(t, 150), false)
	require.NoError(t, err)
	assert.True(t, train.Has("target_return_1"))
	assert.True(t, train.Has("target_return_48"))
}

func TestTargetTrailingRowsAreZero(t *testing.T) {
	e := newTestEngineer(t)

	f, err := e.Compute(testSeries(t, 150), false)
	require.NoError(t, err)
	col, ok := f.Get("target_return_48")
	require.True(t, ok)
	for i := 150 - 48; i < 150; i++ {
		assert.Zero(t, col[i], "row %d has no future data and must stay zero", i)
	}
}

func TestVWAPStaysNearClose(t *testing.T) {
	e := newTestEngineer(t)

	f, err := e.Compute(testSeries(t, 150), true)
	require.NoError(t, err)
	ratio, ok := f.Get("vwap_ratio")
	require.True(t, ok)
	for i, v := range ratio {
		assert.GreaterOrEqual(t, v, 0.95-1e-9, "row %d", i)
		assert.LessOrEqual(t, v, 1.05+1e-9, "row %d", i)
	}
}

func TestInferenceWindowShape(t *testing.T) {
	e := newTestEngineer(t)

	f, err := e.Compute(testSeries(t, 150), true)
	require.NoError(t, err)

	win, err := e.InferenceWindow(f, 96)
	require.NoError(t, err)
	require.Len(t, win, 96)
	for _, row := range win {
		require.Len(t, row, registry.RequiredFeatureCount)
	}

	_, err = e.InferenceWindow(f, 151)
	require.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestCrossAssetFallbacksWithoutReference(t *testing.T) {
	e := newTestEngineer(t)

	f, err := e.Compute(testSeries(t, 150), true)
	require.NoError(t, err)

	corr, _ := f.Get("btc_correlation_96")
	beta, _ := f.Get("btc_beta_96")
	for i := range corr {
		assert.Equal(t, 0.5, corr[i])
		assert.Equal(t, 1.0, beta[i])
	}
}

func TestCrossAssetWithReference(t *testing.T) {
	reg, err := registry.New(nil)
	require.NoError(t, err)

	// reference perfectly tracks the asset, so long-window correlation is high
	provider := func(times []time.Time) ([]float64, bool) {
		out := make([]float64, len(times))
		price := 50000.0
		for i := range times {
			price += 120*math.Sin(float64(i)/9) + 35*math.Cos(float64(i)/4) + 3
			out[i] = price
		}
		return out, true
	}
	e := NewEngineer(reg, NewScalerStore(nil), nil, WithReference(provider))

	f, err := e.Compute(testSeries(t, 200), true)
	require.NoError(t, err)
	corr, _ := f.Get("btc_correlation_96")
	assert.Greater(t, corr[len(corr)-1], 0.9)
}
