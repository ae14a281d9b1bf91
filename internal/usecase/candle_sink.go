package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	applogger "github.com/obertruper/BOT-AI-V3-sub003/pkg/logger"
)

const defaultCandleCloseTopic = "botai.candles.closed"

// CandleCloseEvent announces that a candle finished for a symbol. The
// ingestion service emits one per (symbol, interval) bar close.
type CandleCloseEvent struct {
	Symbol    string    `json:"symbol"`
	Exchange  string    `json:"exchange"`
	Interval  string    `json:"interval"`
	Timestamp time.Time `json:"timestamp"`
}

// CandleCloseHandler triggers a prediction whenever a candle closes. It
// plugs into the Kafka consumer's MessageHandler registry.
type CandleCloseHandler struct {
	predictor *Predictor
	topic     string
	timeout   time.Duration
	log       *applogger.Logger
}

// CandleCloseOption configures the handler.
type CandleCloseOption func(*CandleCloseHandler)

// WithCandleCloseTopic overrides the subscription topic.
func WithCandleCloseTopic(topic string) CandleCloseOption {
	return func(h *CandleCloseHandler) { h.topic = topic }
}

// WithPredictTimeout bounds each triggered prediction.
func WithPredictTimeout(d time.Duration) CandleCloseOption {
	return func(h *CandleCloseHandler) { h.timeout = d }
}

// NewCandleCloseHandler builds the handler.
func NewCandleCloseHandler(predictor *Predictor, log *applogger.Logger, opts ...CandleCloseOption) *CandleCloseHandler {
	h := &CandleCloseHandler{
		predictor: predictor,
		topic:     defaultCandleCloseTopic,
		timeout:   30 * time.Second,
		log:       log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Topic names the subscribed Kafka topic.
func (h *CandleCloseHandler) Topic() string { return h.topic }

// Handle decodes one close event and runs a bounded prediction. A decode
// failure is permanent, so it is logged and dropped rather than retried.
func (h *CandleCloseHandler) Handle(ctx context.Context, payload []byte) error {
	var evt CandleCloseEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		if h.log != nil {
			h.log.Warn("candle close event malformed, dropped", applogger.Error(err))
		}
		return nil
	}
	if evt.Symbol == "" || evt.Exchange == "" {
		if h.log != nil {
			h.log.Warn("candle close event missing symbol or exchange, dropped")
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if _, err := h.predictor.Predict(ctx, evt.Symbol, evt.Exchange); err != nil {
		return fmt.Errorf("candle close predict %s/%s: %w", evt.Exchange, evt.Symbol, err)
	}
	return nil
}
