package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandleCloseHandlerTriggersPrediction(t *testing.T) {
	store := &fakeStore{series: testSeries(300)}
	runner := &fakeRunner{out: longTensor(), loaded: true}
	p := newTestPredictor(t, store, runner, nil)
	h := NewCandleCloseHandler(p, nil)

	assert.Equal(t, "botai.candles.closed", h.Topic())

	payload := []byte(`{"symbol":"BTCUSDT","exchange":"bybit","interval":"15m"}`)
	require.NoError(t, h.Handle(context.Background(), payload))
	assert.Equal(t, 1, runner.calls)
}

func TestCandleCloseHandlerDropsMalformedEvents(t *testing.T) {
	store := &fakeStore{series: testSeries(300)}
	runner := &fakeRunner{out: longTensor(), loaded: true}
	p := newTestPredictor(t, store, runner, nil)
	h := NewCandleCloseHandler(p, nil)

	assert.NoError(t, h.Handle(context.Background(), []byte("{not json")))
	assert.NoError(t, h.Handle(context.Background(), []byte(`{"symbol":""}`)))
	assert.Zero(t, runner.calls, "bad events must not reach the predictor")
}
