package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/domain/models"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/features"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/features/registry"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/features/safemath"
	applogger "github.com/obertruper/BOT-AI-V3-sub003/pkg/logger"
)

// ErrPredictionUnavailable is returned when inference cannot run; callers
// degrade to "no signal" rather than fabricating one.
var ErrPredictionUnavailable = errors.New("model: prediction unavailable")

// Runner owns the loaded checkpoint and executes the forward pass. It is
// safe for concurrent Infer calls; Load is serialized.
type Runner struct {
	mu     sync.RWMutex
	cp     *Checkpoint
	scaler *features.RobustScaler
	log    *applogger.Logger

	expectedInput   int
	expectedContext int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithExpectedShape overrides the input/context contract (tests use small nets).
func WithExpectedShape(inputSize, contextLength int) RunnerOption {
	return func(r *Runner) {
		r.expectedInput = inputSize
		r.expectedContext = contextLength
	}
}

// NewRunner builds an unloaded runner with the production shape contract.
func NewRunner(log *applogger.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		log:             log,
		expectedInput:   registry.RequiredFeatureCount,
		expectedContext: 96,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load reads the checkpoint and verifies it against the runtime contract.
// Loading again replaces the active checkpoint atomically.
func (r *Runner) Load(path string) error {
	start := time.Now()
	cp, err := LoadCheckpoint(path)
	if err != nil {
		return err
	}
	if cp.InputSize != r.expectedInput {
		return fmt.Errorf("model: checkpoint input size %d, runtime requires %d", cp.InputSize, r.expectedInput)
	}
	if cp.ContextLength != r.expectedContext {
		return fmt.Errorf("model: checkpoint context %d, runtime requires %d", cp.ContextLength, r.expectedContext)
	}
	scaler, err := features.NewRobustScaler(cp.Scaler.Median, cp.Scaler.IQR)
	if err != nil {
		return fmt.Errorf("model: %w", err)
	}

	r.mu.Lock()
	r.cp = cp
	r.scaler = scaler
	r.mu.Unlock()

	if r.log != nil {
		r.log.Info("model checkpoint loaded",
			applogger.String("path", path),
			applogger.String("version", cp.Version),
			applogger.Int("hidden_size", cp.HiddenSize),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

// Loaded reports whether a checkpoint is active.
func (r *Runner) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cp != nil
}

// Scaler returns the checkpoint's scaler, or nil before Load.
func (r *Runner) Scaler() *features.RobustScaler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scaler
}

// ContextLength returns the loaded context window, or the expected one
// before Load.
func (r *Runner) ContextLength() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cp != nil {
		return r.cp.ContextLength
	}
	return r.expectedContext
}

// Infer scales the raw feature window and runs the forward pass. The window
// must be exactly contextLength rows of inputSize features, oldest first.
func (r *Runner) Infer(ctx context.Context, window [][]float64) (models.RawModelOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	cp, scaler := r.cp, r.scaler
	r.mu.RUnlock()
	if cp == nil {
		return nil, fmt.Errorf("%w: checkpoint not loaded", ErrPredictionUnavailable)
	}
	if len(window) != cp.ContextLength {
		return nil, fmt.Errorf("%w: window has %d rows, model requires %d",
			ErrPredictionUnavailable, len(window), cp.ContextLength)
	}

	scaled, err := scaler.TransformMatrix(window)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPredictionUnavailable, err)
	}

	h := make([]float64, cp.HiddenSize)
	for _, x := range scaled {
		h = gruStep(cp, x, h)
	}

	out := make([]float64, cp.OutputSize)
	for o := 0; o < cp.OutputSize; o++ {
		sum := cp.Head.Bias[o]
		row := cp.Head.Weight[o]
		for j, hv := range h {
			sum += row[j] * hv
		}
		out[o] = safemath.ReplaceNonFinite(sum, 0)
	}
	return models.RawModelOutput(out), nil
}

// gruStep advances one GRU time step. Gate rows are stacked reset/update/new.
func gruStep(cp *Checkpoint, x, h []float64) []float64 {
	hs := cp.HiddenSize
	gi := make([]float64, 3*hs)
	gh := make([]float64, 3*hs)
	for g := 0; g < 3*hs; g++ {
		si := cp.GRU.BIH[g]
		for j, xv := range x {
			si += cp.GRU.WIH[g][j] * xv
		}
		gi[g] = si
		sh := cp.GRU.BHH[g]
		for j, hv := range h {
			sh += cp.GRU.WHH[g][j] * hv
		}
		gh[g] = sh
	}

	next := make([]float64, hs)
	for i := 0; i < hs; i++ {
		reset := logistic(gi[i] + gh[i])
		update := logistic(gi[hs+i] + gh[hs+i])
		cand := math.Tanh(gi[2*hs+i] + reset*gh[2*hs+i])
		next[i] = (1-update)*cand + update*h[i]
	}
	return next
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-safemath.Clip(x, -60, 60)))
}
