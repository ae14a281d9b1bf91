// Package features turns a raw candle series into the fixed-length,
// fixed-order numeric vector the model consumes. Stages run in a fixed order;
// an individual feature that fails to compute is zero-filled and logged,
// never fatal.
package features

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/domain/models"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/features/registry"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/features/safemath"
	applogger "github.com/obertruper/BOT-AI-V3-sub003/pkg/logger"
)

// ErrInsufficientHistory is returned when the series is shorter than the
// model context window. Callers should treat it as retryable later.
var ErrInsufficientHistory = errors.New("features: not enough candle history")

const (
	// extremeMoveThreshold flags single-step price moves above 15%.
	extremeMoveThreshold = 0.15
	// gapFactor flags timestamp gaps above 8x the expected interval.
	gapFactor = 8
)

// ReferenceProvider supplies the reference asset's close series aligned to
// the given timestamps for cross-asset features. ok=false means unavailable.
type ReferenceProvider func(times []time.Time) (closes []float64, ok bool)

// Engineer computes the feature pipeline.
type Engineer struct {
	reg       *registry.Registry
	scalers   *ScalerStore
	log       *applogger.Logger
	interval  time.Duration
	minRows   int
	reference ReferenceProvider
}

// EngineerOption configures an Engineer.
type EngineerOption func(*Engineer)

// WithReference sets the cross-asset reference series provider.
func WithReference(p ReferenceProvider) EngineerOption {
	return func(e *Engineer) { e.reference = p }
}

// WithInterval overrides the expected candle interval.
func WithInterval(d time.Duration) EngineerOption {
	return func(e *Engineer) { e.interval = d }
}

// WithMinRows overrides the minimum accepted series length.
func WithMinRows(n int) EngineerOption {
	return func(e *Engineer) { e.minRows = n }
}

// NewEngineer builds a feature engineer. The scaler store is injected so
// walk-forward scaler state has one owner per process.
func NewEngineer(reg *registry.Registry, scalers *ScalerStore, log *applogger.Logger, opts ...EngineerOption) *Engineer {
	e := &Engineer{
		reg:      reg,
		scalers:  scalers,
		log:      log,
		interval: 15 * time.Minute,
		minRows:  96,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute runs the full pipeline. With inferenceMode=true the result contains
// exactly the registry's features in registry order; otherwise the full
// computed superset (including training targets) is returned for inspection.
func (e *Engineer) Compute(series *models.CandleSeries, inferenceMode bool) (*Frame, error) {
	if series == nil || series.Len() < e.minRows {
		got := 0
		if series != nil {
			got = series.Len()
		}
		return nil, fmt.Errorf("%w: have %d candles, need %d", ErrInsufficientHistory, got, e.minRows)
	}
	start := time.Now()

	f, err := e.coerce(series)
	if err != nil {
		return nil, err
	}

	e.basicFeatures(f)
	e.technicalIndicators(f)
	e.microstructureFeatures(f)
	e.rallyFeatures(f)
	e.qualityFeatures(f)
	e.futuresProxies(f)
	e.statisticalFeatures(f)
	e.temporalFeatures(f)
	e.crossAssetFeatures(f)
	if !inferenceMode {
		e.targetVariables(f)
	}
	e.fillMissing(f)

	if inferenceMode {
		out, err := e.selectRegistry(f)
		if err != nil {
			return nil, err
		}
		e.logDone(series.Symbol, out, start)
		return out, nil
	}
	e.logDone(series.Symbol, f, start)
	return f, nil
}

// InferenceWindow extracts the last contextLen rows of an inference-mode
// frame as a row-major matrix in registry order.
func (e *Engineer) InferenceWindow(f *Frame, contextLen int) ([][]float64, error) {
	if f.Len() < contextLen {
		return nil, fmt.Errorf("%w: frame has %d rows, context needs %d", ErrInsufficientHistory, f.Len(), contextLen)
	}
	names := e.reg.Names()
	if err := e.reg.Validate(f.Names()); err != nil {
		return nil, err
	}
	out := make([][]float64, contextLen)
	offset := f.Len() - contextLen
	for i := 0; i < contextLen; i++ {
		out[i] = f.Row(offset+i, names)
	}
	return out, nil
}

// coerce validates the raw series and builds the base frame (stage 1).
// Data-quality anomalies are warnings only.
func (e *Engineer) coerce(series *models.CandleSeries) (*Frame, error) {
	if err := series.Validate(); err != nil {
		return nil, err
	}
	n := series.Len()
	times := make([]time.Time, n)
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	closeC := make([]float64, n)
	volume := make([]float64, n)
	turnover := make([]float64, n)

	interval := e.interval
	if series.Interval > 0 {
		interval = series.Interval
	}

	extremes, gaps := 0, 0
	for i, c := range series.Candles {
		c.DeriveTurnover()
		times[i] = c.Timestamp
		open[i] = safemath.ReplaceNonFinite(c.Open, 0)
		high[i] = safemath.ReplaceNonFinite(c.High, 0)
		low[i] = safemath.ReplaceNonFinite(c.Low, 0)
		closeC[i] = safemath.ReplaceNonFinite(c.Close, 0)
		volume[i] = safemath.ReplaceNonFinite(c.Volume, 0)
		turnover[i] = safemath.ReplaceNonFinite(c.Turnover, 0)

		if i > 0 {
			prev := closeC[i-1]
			if prev > 0 && math.Abs(closeC[i]-prev)/prev > extremeMoveThreshold {
				extremes++
			}
			if times[i].Sub(times[i-1]) > time.Duration(gapFactor)*interval {
				gaps++
			}
		}
	}

	// forward-fill zero/invalid prices, then backward-fill a leading gap
	forwardFillPositive(open)
	forwardFillPositive(high)
	forwardFillPositive(low)
	forwardFillPositive(closeC)

	if extremes > 0 && e.log != nil {
		e.log.Warn("extreme price moves detected",
			applogger.String("symbol", series.Symbol),
			applogger.Int("count", extremes),
		)
	}
	if gaps > 0 && e.log != nil {
		e.log.Warn("large timestamp gaps detected",
			applogger.String("symbol", series.Symbol),
			applogger.Int("count", gaps),
		)
	}

	f := NewFrame(series.Symbol, times)
	_ = f.Set("open", open)
	_ = f.Set("high", high)
	_ = f.Set("low", low)
	_ = f.Set("close", closeC)
	_ = f.Set("volume", volume)
	_ = f.Set("turnover", turnover)
	return f, nil
}

// selectRegistry is the stage-14 inference selection: exactly the registry's
// names in registry order, fallback-filled where computation failed upstream.
func (e *Engineer) selectRegistry(f *Frame) (*Frame, error) {
	out := NewFrame(f.Symbol, f.Times)
	missing := make([]string, 0, 4)
	for _, name := range e.reg.Names() {
		if col, ok := f.Get(name); ok {
			if err := out.Set(name, col); err != nil {
				return nil, err
			}
			continue
		}
		missing = append(missing, name)
		if err := out.Set(name, fill(f.Len(), e.reg.Fallback(name))); err != nil {
			return nil, err
		}
	}
	if len(missing) > 0 && e.log != nil {
		e.log.Warn("features missing, fallback applied",
			applogger.String("symbol", f.Symbol),
			applogger.Int("count", len(missing)),
			applogger.Any("names", missing),
		)
	}
	if err := e.reg.Validate(out.Names()); err != nil {
		return nil, err
	}
	return out, nil
}

// setFeature applies the degrade-don't-crash policy: on error the column is
// zero-filled and the failure logged with feature context.
func (e *Engineer) setFeature(f *Frame, name string, vals []float64, err error) {
	if err != nil {
		if e.log != nil {
			e.log.Warn("feature computation failed, zero-filled",
				applogger.String("symbol", f.Symbol),
				applogger.String("feature", name),
				applogger.Error(err),
			)
		}
		_ = f.Set(name, fill(f.Len(), 0))
		return
	}
	_ = f.Set(name, safemath.ReplaceNonFiniteSlice(vals, 0))
}

func (e *Engineer) logDone(symbol string, f *Frame, start time.Time) {
	if e.log == nil {
		return
	}
	e.log.Debug("features computed",
		applogger.String("symbol", symbol),
		applogger.Int("rows", f.Len()),
		applogger.Int("columns", len(f.Names())),
		applogger.Duration("duration_ms", time.Since(start)),
	)
}

func featName(format string, w int) string { return fmt.Sprintf(format, w) }

func forwardFillPositive(xs []float64) {
	last := 0.0
	for i, v := range xs {
		if v > 0 {
			last = v
		} else if last > 0 {
			xs[i] = last
		}
	}
	// backward fill any leading zeros
	for i := len(xs) - 1; i >= 0; i-- {
		if xs[i] > 0 {
			last = xs[i]
		} else if last > 0 {
			xs[i] = last
		}
	}
}
