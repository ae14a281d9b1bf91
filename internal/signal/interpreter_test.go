package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/domain/models"
)

// referenceTensor decodes to LONG for the first three horizons, SHORT for the
// fourth, aggregates to LONG and lands in the LOW risk bucket.
var referenceTensor = models.RawModelOutput{
	0.002, -0.001, 0.005, 0.001,
	2.0, -1.0, -1.5,
	1.5, -0.5, -1.0,
	0.8, -0.3, -0.8,
	0.3, 1.8, -0.5,
	0.1, 0.2, 0.15, 0.18,
}

func TestInterpretReferenceTensor(t *testing.T) {
	it := NewInterpreter()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	v, err := it.Interpret("BTCUSDT", "bybit", 50000, ts, referenceTensor)
	require.NoError(t, err)

	require.Len(t, v.Horizons, Horizons)
	assert.Equal(t, models.SignalLong, v.Horizons[0].Direction)
	assert.Equal(t, models.SignalLong, v.Horizons[1].Direction)
	assert.Equal(t, models.SignalLong, v.Horizons[2].Direction)
	assert.Equal(t, models.SignalShort, v.Horizons[3].Direction)

	assert.Equal(t, models.SignalLong, v.SignalType)
	assert.Equal(t, models.RiskLow, v.RiskLevel)
	assert.InDelta(t, 0.1575, v.RiskScore, 1e-9)

	assert.Equal(t, "15m", v.Horizons[0].Horizon)
	assert.InDelta(t, 0.002, v.Horizons[0].ForecastReturn, 1e-12)
	assert.InDelta(t, 0.001, v.Horizons[3].ForecastReturn, 1e-12)

	require.NotNil(t, v.StopLossPct)
	require.NotNil(t, v.TakeProfitPct)
	assert.InDelta(t, *v.StopLossPct*2, *v.TakeProfitPct, 1e-9)

	assert.Greater(t, v.Confidence, 0.5)
	assert.LessOrEqual(t, v.Confidence, 1.0)
	assert.Greater(t, v.Strength, 0.0)
	assert.LessOrEqual(t, v.Strength, 1.0)
}

func TestInterpretIsPure(t *testing.T) {
	it := NewInterpreter()
	ts := time.Now().UTC()

	v1, err := it.Interpret("BTCUSDT", "bybit", 50000, ts, referenceTensor)
	require.NoError(t, err)
	v2, err := it.Interpret("BTCUSDT", "bybit", 50000, ts, referenceTensor)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestInterpretTieBreaksToNeutral(t *testing.T) {
	it := NewInterpreter()

	// horizons 1+4 LONG (0.4+0.1) vs 2+3 SHORT (0.3+0.2): dead heat
	raw := models.RawModelOutput{
		0, 0, 0, 0,
		3.0, -1.0, -2.0,
		-1.0, 3.0, -2.0,
		-1.0, 3.0, -2.0,
		3.0, -1.0, -2.0,
		0.5, 0.5, 0.5, 0.5,
	}
	v, err := it.Interpret("ETHUSDT", "bybit", 3000, time.Now(), raw)
	require.NoError(t, err)
	assert.Equal(t, models.SignalNeutral, v.SignalType)
	assert.Nil(t, v.StopLossPct, "NEUTRAL carries no stop level")
	assert.Nil(t, v.TakeProfitPct, "NEUTRAL carries no take level")
	assert.Equal(t, models.RiskMedium, v.RiskLevel)
}

func TestInterpretHighRisk(t *testing.T) {
	it := NewInterpreter()
	raw := make(models.RawModelOutput, TensorSize)
	copy(raw, referenceTensor)
	raw[16], raw[17], raw[18], raw[19] = 0.9, 0.8, 0.85, 0.95

	v, err := it.Interpret("BTCUSDT", "bybit", 50000, time.Now(), raw)
	require.NoError(t, err)
	assert.Equal(t, models.RiskHigh, v.RiskLevel)
}

func TestInterpretRejectsMalformedTensor(t *testing.T) {
	it := NewInterpreter()

	_, err := it.Interpret("BTCUSDT", "bybit", 50000, time.Now(), make(models.RawModelOutput, TensorSize-1))
	assert.Error(t, err)

	_, err = it.Interpret("BTCUSDT", "bybit", 50000, time.Now(), nil)
	assert.Error(t, err)
}

func TestClassTable(t *testing.T) {
	assert.Equal(t, models.SignalLong, ClassAt(0))
	assert.Equal(t, models.SignalShort, ClassAt(1))
	assert.Equal(t, models.SignalNeutral, ClassAt(2))
}

func TestSoftmaxProperties(t *testing.T) {
	probs := softmax([]float64{2.0, -1.0, -1.5})
	sum := 0.0
	for _, p := range probs {
		assert.Greater(t, p, 0.0)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.Greater(t, probs[0], probs[1])
	assert.Greater(t, probs[1], probs[2])
}
