package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/domain/models"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/features"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/model"
	applogger "github.com/obertruper/BOT-AI-V3-sub003/pkg/logger"
)

// CandleWriter persists closed candles.
type CandleWriter interface {
	Insert(ctx context.Context, exchange string, interval time.Duration, candles []*models.Candle, symbol string) error
}

// StreamProcessor is the downstream of the realtime pipeline: persist the
// closed candle, then trigger a prediction for its symbol. Prediction
// failures from thin history are expected during warm-up and not propagated.
type StreamProcessor struct {
	writer    CandleWriter
	predictor *Predictor
	exchange  string
	interval  time.Duration
	log       *applogger.Logger
}

// NewStreamProcessor builds the processor for one exchange/interval feed.
func NewStreamProcessor(writer CandleWriter, predictor *Predictor, exchange string, interval time.Duration, log *applogger.Logger) *StreamProcessor {
	return &StreamProcessor{
		writer:    writer,
		predictor: predictor,
		exchange:  exchange,
		interval:  interval,
		log:       log,
	}
}

// Process persists one candle and kicks off a prediction.
func (s *StreamProcessor) Process(ctx context.Context, c *models.Candle) error {
	if err := s.writer.Insert(ctx, s.exchange, s.interval, []*models.Candle{c}, c.Symbol); err != nil {
		return fmt.Errorf("stream persist %s: %w", c.Symbol, err)
	}

	_, err := s.predictor.Predict(ctx, c.Symbol, s.exchange)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, features.ErrInsufficientHistory):
		if s.log != nil {
			s.log.Debug("prediction skipped, history still warming up",
				applogger.String("symbol", c.Symbol),
			)
		}
		return nil
	case errors.Is(err, model.ErrPredictionUnavailable):
		if s.log != nil {
			s.log.Warn("prediction unavailable for streamed candle",
				applogger.String("symbol", c.Symbol),
				applogger.Error(err),
			)
		}
		return nil
	default:
		return fmt.Errorf("stream predict %s: %w", c.Symbol, err)
	}
}
