package models

import (
	"fmt"
	"time"
)

// Candle represents one OHLCV record. Turnover is quote-denominated volume;
// when the exchange does not report it, DeriveTurnover fills it as close*volume.
// Symbol is set on candles that travel alone (live stream events) and may be
// empty inside a CandleSeries, where the series carries it.
type Candle struct {
	Symbol    string    `json:"symbol,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Turnover  float64   `json:"turnover"`
}

// DeriveTurnover fills Turnover from close*volume when absent.
func (c *Candle) DeriveTurnover() {
	if c.Turnover == 0 && c.Volume > 0 {
		c.Turnover = c.Close * c.Volume
	}
}

// CandleSeries is an ordered sequence of candles for one symbol with strictly
// increasing timestamps.
type CandleSeries struct {
	Symbol   string
	Exchange string
	Interval time.Duration
	Candles  []*Candle
}

// Validate checks ordering and timestamp uniqueness.
func (s *CandleSeries) Validate() error {
	for i := 1; i < len(s.Candles); i++ {
		if !s.Candles[i].Timestamp.After(s.Candles[i-1].Timestamp) {
			return fmt.Errorf("candle series %s: non-increasing timestamp at index %d (%v >= %v)",
				s.Symbol, i, s.Candles[i-1].Timestamp, s.Candles[i].Timestamp)
		}
	}
	return nil
}

// Len returns the number of candles.
func (s *CandleSeries) Len() int { return len(s.Candles) }

// Last returns the most recent candle, or nil if empty.
func (s *CandleSeries) Last() *Candle {
	if len(s.Candles) == 0 {
		return nil
	}
	return s.Candles[len(s.Candles)-1]
}
