// Package usecase wires the prediction pipeline: candle history in, cached
// verdict out.
package usecase

import (
	"fmt"
	"time"

	"context"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/domain/models"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/domain/repository"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/features"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/signal"
	applogger "github.com/obertruper/BOT-AI-V3-sub003/pkg/logger"
)

// historyBars covers the 96-bar context window plus indicator warm-up.
const historyBars = 300

// ModelRunner is the inference surface the predictor needs.
type ModelRunner interface {
	Infer(ctx context.Context, window [][]float64) (models.RawModelOutput, error)
	ContextLength() int
	Loaded() bool
}

// Predictor runs the full chain per request: fetch candles, build features,
// infer, interpret, cache, observe, publish.
type Predictor struct {
	store     repository.CandleStore
	engineer  *features.Engineer
	runner    ModelRunner
	interp    *signal.Interpreter
	cache     *signal.Cache
	monitor   *signal.DiversityMonitor
	publisher repository.VerdictPublisher
	metrics   repository.Metrics
	log       *applogger.Logger
	interval  time.Duration
}

// PredictorOption configures a Predictor.
type PredictorOption func(*Predictor)

// WithPublisher attaches a downstream verdict publisher.
func WithPublisher(p repository.VerdictPublisher) PredictorOption {
	return func(pr *Predictor) { pr.publisher = p }
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m repository.Metrics) PredictorOption {
	return func(pr *Predictor) { pr.metrics = m }
}

// WithCandleInterval overrides the candle interval (default 15m).
func WithCandleInterval(d time.Duration) PredictorOption {
	return func(pr *Predictor) { pr.interval = d }
}

// NewPredictor assembles the pipeline.
func NewPredictor(
	store repository.CandleStore,
	engineer *features.Engineer,
	runner ModelRunner,
	interp *signal.Interpreter,
	cache *signal.Cache,
	monitor *signal.DiversityMonitor,
	log *applogger.Logger,
	opts ...PredictorOption,
) *Predictor {
	p := &Predictor{
		store:    store,
		engineer: engineer,
		runner:   runner,
		interp:   interp,
		cache:    cache,
		monitor:  monitor,
		log:      log,
		interval: 15 * time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Predict returns the verdict for a symbol's current time bucket, computing
// it at most once per bucket per TTL.
func (p *Predictor) Predict(ctx context.Context, symbol, exchange string) (*models.Verdict, error) {
	key := p.cache.Key(exchange, symbol)
	verdict, hit, err := p.cache.GetOrCompute(ctx, key, func(ctx context.Context) (*models.Verdict, error) {
		return p.compute(ctx, symbol, exchange)
	})
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordError("predict")
		}
		return nil, err
	}

	if p.metrics != nil {
		if hit {
			p.metrics.RecordCacheHit(symbol)
		} else {
			p.metrics.RecordCacheMiss(symbol)
		}
	}
	if !hit {
		p.monitor.Observe(verdict)
		if p.metrics != nil {
			p.metrics.RecordPrediction(symbol, string(verdict.SignalType))
		}
		if p.publisher != nil {
			if perr := p.publisher.Publish(ctx, verdict); perr != nil {
				if p.log != nil {
					p.log.Warn("verdict publish failed",
						applogger.String("symbol", symbol),
						applogger.Error(perr),
					)
				}
				if p.metrics != nil {
					p.metrics.RecordError("publish")
				}
			}
		}
	}
	return verdict, nil
}

func (p *Predictor) compute(ctx context.Context, symbol, exchange string) (*models.Verdict, error) {
	start := time.Now()

	series, err := p.store.Latest(ctx, symbol, exchange, p.interval, historyBars)
	if err != nil {
		return nil, fmt.Errorf("predict %s/%s: %w", exchange, symbol, err)
	}

	frame, err := p.engineer.Compute(series, true)
	if err != nil {
		return nil, fmt.Errorf("predict %s/%s: %w", exchange, symbol, err)
	}
	window, err := p.engineer.InferenceWindow(frame, p.runner.ContextLength())
	if err != nil {
		return nil, fmt.Errorf("predict %s/%s: %w", exchange, symbol, err)
	}

	raw, err := p.runner.Infer(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("predict %s/%s: %w", exchange, symbol, err)
	}

	last := series.Last()
	if last == nil {
		return nil, fmt.Errorf("predict %s/%s: empty candle series", exchange, symbol)
	}
	verdict, err := p.interp.Interpret(symbol, exchange, last.Close, last.Timestamp, raw)
	if err != nil {
		return nil, fmt.Errorf("predict %s/%s: %w", exchange, symbol, err)
	}

	if p.metrics != nil {
		p.metrics.RecordLatency("predict", time.Since(start).Seconds())
	}
	if p.log != nil {
		p.log.Info("verdict computed",
			applogger.String("symbol", symbol),
			applogger.String("exchange", exchange),
			applogger.String("signal", string(verdict.SignalType)),
			applogger.Float64("confidence", verdict.Confidence),
			applogger.String("risk", string(verdict.RiskLevel)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return verdict, nil
}

// Diversity exposes the monitor's current distribution.
func (p *Predictor) Diversity() signal.DiversitySnapshot {
	return p.monitor.Snapshot()
}

// Health verifies the store connection and model readiness.
func (p *Predictor) Health(ctx context.Context) error {
	if !p.runner.Loaded() {
		return fmt.Errorf("health: model checkpoint not loaded")
	}
	return p.store.Health(ctx)
}
