package model

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tinyCheckpoint() *Checkpoint {
	const (
		input  = 2
		hidden = 2
		ctxLen = 3
	)
	mat := func(rows, cols int, v float64) [][]float64 {
		m := make([][]float64, rows)
		for i := range m {
			m[i] = make([]float64, cols)
			for j := range m[i] {
				m[i][j] = v
			}
		}
		return m
	}
	vec := func(n int, v float64) []float64 {
		xs := make([]float64, n)
		for i := range xs {
			xs[i] = v
		}
		return xs
	}
	return &Checkpoint{
		Version:       "test-1",
		InputSize:     input,
		ContextLength: ctxLen,
		HiddenSize:    hidden,
		OutputSize:    requiredOutputSize,
		Scaler: ScalerParams{
			Median: vec(input, 0),
			IQR:    vec(input, 1),
		},
		GRU: GRUWeights{
			WIH: mat(3*hidden, input, 0.1),
			WHH: mat(3*hidden, hidden, 0.1),
			BIH: vec(3*hidden, 0.01),
			BHH: vec(3*hidden, 0.01),
		},
		Head: DenseWeights{
			Weight: mat(requiredOutputSize, hidden, 0.5),
			Bias:   vec(requiredOutputSize, 0.1),
		},
	}
}

func writeCheckpoint(t *testing.T, cp *Checkpoint) string {
	t.Helper()
	raw, err := json.Marshal(cp)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func TestLoadAndInfer(t *testing.T) {
	r := NewRunner(nil, WithExpectedShape(2, 3))
	require.NoError(t, r.Load(writeCheckpoint(t, tinyCheckpoint())))
	require.True(t, r.Loaded())
	require.NotNil(t, r.Scaler())
	assert.Equal(t, 3, r.ContextLength())

	window := [][]float64{{1, 2}, {0.5, -1}, {0, 0.25}}
	out, err := r.Infer(context.Background(), window)
	require.NoError(t, err)
	require.Len(t, []float64(out), requiredOutputSize)
	for i, v := range out {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "output %d not finite", i)
	}

	// same input, same output
	out2, err := r.Infer(context.Background(), window)
	require.NoError(t, err)
	assert.Equal(t, out, out2)
}

func TestInferBeforeLoad(t *testing.T) {
	r := NewRunner(nil, WithExpectedShape(2, 3))
	_, err := r.Infer(context.Background(), [][]float64{{1, 2}})
	assert.ErrorIs(t, err, ErrPredictionUnavailable)
}

func TestInferRejectsWrongWindow(t *testing.T) {
	r := NewRunner(nil, WithExpectedShape(2, 3))
	require.NoError(t, r.Load(writeCheckpoint(t, tinyCheckpoint())))

	_, err := r.Infer(context.Background(), [][]float64{{1, 2}})
	assert.ErrorIs(t, err, ErrPredictionUnavailable)

	_, err = r.Infer(context.Background(), [][]float64{{1}, {2}, {3}})
	assert.ErrorIs(t, err, ErrPredictionUnavailable)
}

func TestInferHonorsContext(t *testing.T) {
	r := NewRunner(nil, WithExpectedShape(2, 3))
	require.NoError(t, r.Load(writeCheckpoint(t, tinyCheckpoint())))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Infer(ctx, [][]float64{{1, 2}, {1, 2}, {1, 2}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	r := NewRunner(nil, WithExpectedShape(2, 3))
	assert.Error(t, r.Load(filepath.Join(t.TempDir(), "absent.json")))
}

func TestLoadRejectsShapeMismatch(t *testing.T) {
	cp := tinyCheckpoint()
	path := writeCheckpoint(t, cp)

	r := NewRunner(nil, WithExpectedShape(240, 96))
	assert.Error(t, r.Load(path))
}

func TestCheckpointValidate(t *testing.T) {
	cp := tinyCheckpoint()
	require.NoError(t, cp.Validate())

	bad := tinyCheckpoint()
	bad.OutputSize = 19
	assert.Error(t, bad.Validate())

	bad = tinyCheckpoint()
	bad.GRU.BIH = bad.GRU.BIH[:1]
	assert.Error(t, bad.Validate())

	bad = tinyCheckpoint()
	bad.Head.Weight = bad.Head.Weight[:5]
	assert.Error(t, bad.Validate())

	bad = tinyCheckpoint()
	bad.Scaler.Median = bad.Scaler.Median[:1]
	assert.Error(t, bad.Validate())
}
