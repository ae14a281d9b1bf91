package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitRobustParameters(t *testing.T) {
	rows := [][]float64{
		{1, 100},
		{2, 200},
		{3, 300},
		{4, 400},
		{5, 500},
	}
	s, err := FitRobust(rows)
	require.NoError(t, err)
	assert.Equal(t, 3.0, s.Median[0])
	assert.Equal(t, 300.0, s.Median[1])
	assert.Equal(t, 2.0, s.IQR[0])
	assert.Equal(t, 200.0, s.IQR[1])
}

func TestTransformCentersAndClips(t *testing.T) {
	s, err := NewRobustScaler([]float64{10, 0}, []float64{2, 1})
	require.NoError(t, err)

	out, err := s.Transform([]float64{10, 1e9})
	require.NoError(t, err)
	assert.Zero(t, out[0], "value at the median scales to zero")
	assert.Equal(t, scaleClip, out[1], "extreme values clip to the bound")

	_, err = s.Transform([]float64{1})
	assert.Error(t, err, "width mismatch must fail")
}

func TestFitRobustRejectsBadInput(t *testing.T) {
	_, err := FitRobust(nil)
	assert.Error(t, err)

	_, err = FitRobust([][]float64{{1, 2}, {1}})
	assert.Error(t, err)
}

func TestWalkForwardFitIsStable(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	names := []string{"a"}

	mkFrame := func(n int) *Frame {
		times := make([]time.Time, n)
		col := make([]float64, n)
		for i := 0; i < n; i++ {
			times[i] = start.Add(time.Duration(i) * 15 * time.Minute)
			col[i] = float64(i)
		}
		f := NewFrame("BTCUSDT", times)
		require.NoError(t, f.Set("a", col))
		return f
	}

	store := NewScalerStore(nil)
	cutoff := start.Add(50 * 15 * time.Minute)

	s1, err := store.FitUpTo("BTCUSDT", cutoff, mkFrame(60), names)
	require.NoError(t, err)

	// refit with a longer history and the same cutoff: identical parameters
	s2, err := store.FitUpTo("BTCUSDT", cutoff, mkFrame(120), names)
	require.NoError(t, err)
	assert.Same(t, s1, s2)

	// a later cutoff produces its own fit
	s3, err := store.FitUpTo("BTCUSDT", cutoff.Add(time.Hour), mkFrame(120), names)
	require.NoError(t, err)
	assert.NotEqual(t, s1.Median, s3.Median)
}

func TestFitUpToNoRowsBeforeCutoff(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f := NewFrame("BTCUSDT", []time.Time{start})
	require.NoError(t, f.Set("a", []float64{1}))

	store := NewScalerStore(nil)
	_, err := store.FitUpTo("BTCUSDT", start, f, []string{"a"})
	assert.Error(t, err)
}
