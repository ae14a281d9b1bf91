package models

import "time"

// SignalType is the aggregated trade direction of a verdict.
type SignalType string

const (
	SignalLong    SignalType = "LONG"
	SignalShort   SignalType = "SHORT"
	SignalNeutral SignalType = "NEUTRAL"
)

// RiskLevel buckets the mean of the model's risk metrics.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// HorizonDetail is the decoded per-horizon forecast.
type HorizonDetail struct {
	Horizon        string     `json:"horizon"` // "15m", "1h", "4h", "12h"
	ForecastReturn float64    `json:"forecast_return"`
	Direction      SignalType `json:"direction"`
	Probability    float64    `json:"probability"` // winning class probability
}

// Verdict is the interpreted model output for one symbol at one time bucket.
// StopLossPct/TakeProfitPct are nil for NEUTRAL verdicts: absence is a distinct
// state, not zero.
type Verdict struct {
	Symbol       string          `json:"symbol"`
	Exchange     string          `json:"exchange"`
	Timestamp    time.Time       `json:"timestamp"`
	SignalType   SignalType      `json:"signal_type"`
	Confidence   float64         `json:"confidence"` // [0,1]
	Strength     float64         `json:"strength"`   // [0,1]
	StopLossPct  *float64        `json:"stop_loss_pct,omitempty"`
	TakeProfitPct *float64       `json:"take_profit_pct,omitempty"`
	RiskLevel    RiskLevel       `json:"risk_level"`
	RiskScore    float64         `json:"risk_score"` // mean of raw risk metrics
	Horizons     []HorizonDetail `json:"horizons"`
	CurrentPrice float64         `json:"current_price"`
}

// RawModelOutput is the flat tensor produced by one forward pass.
// Layout (H=4 horizons, R=4 risk metrics):
//
//	[0:H)        per-horizon forecast return
//	[H:H+3H)     per-horizon direction logits, row-major H x 3
//	[H+3H:H+3H+R) risk metrics
type RawModelOutput []float64
