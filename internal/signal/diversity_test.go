package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/domain/models"
)

func verdictOf(cls models.SignalType) *models.Verdict {
	return &models.Verdict{Symbol: "BTCUSDT", Exchange: "bybit", SignalType: cls}
}

func TestMonitorCriticalOnFullCollapse(t *testing.T) {
	var alerts []AlertLevel
	var classes []models.SignalType
	m := NewDiversityMonitor(nil, WithAlertFunc(func(level AlertLevel, cls models.SignalType, pct float64) {
		alerts = append(alerts, level)
		classes = append(classes, cls)
	}))

	for i := 0; i < 10; i++ {
		m.Observe(verdictOf(models.SignalLong))
	}

	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCritical, alerts[0])
	assert.Equal(t, models.SignalLong, classes[0])
	assert.Zero(t, m.Snapshot().Total, "critical alert resets the window")
}

func TestMonitorWarningOnSkew(t *testing.T) {
	var alerts []AlertLevel
	m := NewDiversityMonitor(nil, WithAlertFunc(func(level AlertLevel, cls models.SignalType, pct float64) {
		alerts = append(alerts, level)
	}))

	for i := 0; i < 8; i++ {
		m.Observe(verdictOf(models.SignalShort))
	}
	m.Observe(verdictOf(models.SignalLong))
	m.Observe(verdictOf(models.SignalNeutral))

	require.NotEmpty(t, alerts)
	assert.Equal(t, AlertWarning, alerts[0])
	assert.Equal(t, 10, m.Snapshot().Total, "warnings never reset the window")
}

func TestMonitorBalancedStreamIsQuiet(t *testing.T) {
	fired := false
	m := NewDiversityMonitor(nil, WithAlertFunc(func(AlertLevel, models.SignalType, float64) {
		fired = true
	}))

	seq := []models.SignalType{
		models.SignalLong, models.SignalShort, models.SignalNeutral,
		models.SignalLong, models.SignalShort, models.SignalNeutral,
		models.SignalLong, models.SignalShort, models.SignalNeutral,
		models.SignalLong,
	}
	for _, cls := range seq {
		m.Observe(verdictOf(cls))
	}

	assert.False(t, fired)
	snap := m.Snapshot()
	assert.Equal(t, 10, snap.Total)
	assert.InDelta(t, 0.4, snap.LongPct, 1e-9)
	assert.InDelta(t, 0.3, snap.ShortPct, 1e-9)
	assert.InDelta(t, 0.3, snap.NeutralPct, 1e-9)
}

func TestMonitorCustomWindow(t *testing.T) {
	var alerts []AlertLevel
	m := NewDiversityMonitor(nil,
		WithWindow(4),
		WithAlertFunc(func(level AlertLevel, cls models.SignalType, pct float64) {
			alerts = append(alerts, level)
		}),
	)

	for i := 0; i < 4; i++ {
		m.Observe(verdictOf(models.SignalNeutral))
	}
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCritical, alerts[0])
}

func TestMonitorIgnoresNil(t *testing.T) {
	m := NewDiversityMonitor(nil)
	m.Observe(nil)
	assert.Zero(t, m.Snapshot().Total)
}

func TestMonitorReset(t *testing.T) {
	m := NewDiversityMonitor(nil)
	m.Observe(verdictOf(models.SignalLong))
	m.Observe(verdictOf(models.SignalShort))
	m.Reset()
	assert.Zero(t, m.Snapshot().Total)
}
