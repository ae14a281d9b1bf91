package signal

import (
	"sync"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/domain/models"
	applogger "github.com/obertruper/BOT-AI-V3-sub003/pkg/logger"
)

// AlertLevel grades a diversity finding.
type AlertLevel string

const (
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// AlertFunc receives diversity alerts (metrics, paging). Called outside the
// monitor lock.
type AlertFunc func(level AlertLevel, class models.SignalType, pct float64)

// DiversitySnapshot is the current class distribution.
type DiversitySnapshot struct {
	Total      int     `json:"total"`
	LongPct    float64 `json:"long_pct"`
	ShortPct   float64 `json:"short_pct"`
	NeutralPct float64 `json:"neutral_pct"`
}

// DiversityMonitor watches the verdict stream for direction collapse. A
// single class above 70% of the window is a warning; 100% is critical and
// resets the counters. This catches pipeline regressions (a feature-order
// bug flattens every prediction to one class) before they reach trading.
type DiversityMonitor struct {
	mu     sync.Mutex
	window int
	counts map[models.SignalType]int
	total  int
	log    *applogger.Logger
	alert  AlertFunc
}

// MonitorOption configures a DiversityMonitor.
type MonitorOption func(*DiversityMonitor)

// WithWindow overrides the observation window (default 10).
func WithWindow(n int) MonitorOption {
	return func(m *DiversityMonitor) {
		if n > 0 {
			m.window = n
		}
	}
}

// WithAlertFunc installs an alert sink.
func WithAlertFunc(fn AlertFunc) MonitorOption {
	return func(m *DiversityMonitor) { m.alert = fn }
}

// NewDiversityMonitor builds a monitor with the default 10-verdict window.
func NewDiversityMonitor(log *applogger.Logger, opts ...MonitorOption) *DiversityMonitor {
	m := &DiversityMonitor{
		window: 10,
		counts: make(map[models.SignalType]int),
		log:    log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Observe records one verdict and evaluates the window when it fills.
func (m *DiversityMonitor) Observe(v *models.Verdict) {
	if v == nil {
		return
	}
	m.mu.Lock()
	m.counts[v.SignalType]++
	m.total++
	var fire func()
	if m.total >= m.window {
		fire = m.evaluateLocked()
	}
	m.mu.Unlock()
	if fire != nil {
		fire()
	}
}

// evaluateLocked checks the distribution and returns the alert thunk to run
// unlocked. Critical findings reset the counters.
func (m *DiversityMonitor) evaluateLocked() func() {
	total := float64(m.total)
	var worstClass models.SignalType
	worstPct := 0.0
	for _, cls := range []models.SignalType{models.SignalLong, models.SignalShort, models.SignalNeutral} {
		pct := float64(m.counts[cls]) / total
		if pct > worstPct {
			worstPct = pct
			worstClass = cls
		}
	}

	switch {
	case worstPct >= 1.0:
		m.counts = make(map[models.SignalType]int)
		m.total = 0
		cls, pct, log, alert := worstClass, worstPct, m.log, m.alert
		return func() {
			if log != nil {
				log.Error("signal diversity collapsed, counters reset",
					applogger.String("class", string(cls)),
					applogger.Float64("pct", pct),
				)
			}
			if alert != nil {
				alert(AlertCritical, cls, pct)
			}
		}
	case worstPct > 0.7:
		cls, pct, log, alert := worstClass, worstPct, m.log, m.alert
		return func() {
			if log != nil {
				log.Warn("signal diversity skewed",
					applogger.String("class", string(cls)),
					applogger.Float64("pct", pct),
				)
			}
			if alert != nil {
				alert(AlertWarning, cls, pct)
			}
		}
	}
	return nil
}

// Snapshot returns the current distribution.
func (m *DiversityMonitor) Snapshot() DiversitySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := DiversitySnapshot{Total: m.total}
	if m.total == 0 {
		return s
	}
	total := float64(m.total)
	s.LongPct = float64(m.counts[models.SignalLong]) / total
	s.ShortPct = float64(m.counts[models.SignalShort]) / total
	s.NeutralPct = float64(m.counts[models.SignalNeutral]) / total
	return s
}

// Reset clears the window.
func (m *DiversityMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = make(map[models.SignalType]int)
	m.total = 0
}
