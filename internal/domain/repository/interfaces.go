package repository

import (
	"context"
	"time"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/domain/models"
)

// CandleStore provides read access to persisted OHLCV history. Implementations
// must return candles sorted by timestamp ascending with no duplicates.
type CandleStore interface {
	Fetch(ctx context.Context, symbol, exchange string, interval time.Duration, since, until time.Time) (*models.CandleSeries, error)
	Latest(ctx context.Context, symbol, exchange string, interval time.Duration, n int) (*models.CandleSeries, error)
	Health(ctx context.Context) error
	Close() error
}

// VerdictPublisher delivers interpreted verdicts to downstream consumers
// (order placement applies its own thresholds before acting).
type VerdictPublisher interface {
	Publish(ctx context.Context, v *models.Verdict) error
	Close() error
}

// MarketStream is a live source of closed candles.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Candle, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Metrics records pipeline observability signals.
type Metrics interface {
	RecordPrediction(symbol string, signal string)
	RecordCacheHit(symbol string)
	RecordCacheMiss(symbol string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordDiversityAlert(level string)
}
