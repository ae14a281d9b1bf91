package features

import (
	"math"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/features/safemath"
)

// futuresProxies is stage 7: perpetual-market quantities approximated from
// spot OHLCV. Real funding, open interest and taker flows come from a
// different feed; these proxies keep the vector layout stable without it.
func (e *Engineer) futuresProxies(f *Frame) {
	closeC, _ := f.Get("close")
	volume, _ := f.Get("volume")
	turnover, _ := f.Get("turnover")
	n := f.Len()

	// basis against the rolling 96-bar VWAP
	volSum := rollingSum(volume, 96)
	turnSum := rollingSum(turnover, 96)
	basis := make([]float64, n)
	for i := 0; i < n; i++ {
		vwap := safemath.Divide(turnSum[i], volSum[i], closeC[i], 1e9, safemath.DefaultMinDenominator)
		basis[i] = safemath.Clip(safemath.Divide(closeC[i]-vwap, vwap, 0, 1, safemath.DefaultMinDenominator), -0.2, 0.2)
	}
	e.setFeature(f, "basis_proxy", basis, nil)

	// funding tracks the premium, clamped to the usual exchange bounds
	funding := make([]float64, n)
	for i := 0; i < n; i++ {
		funding[i] = safemath.Clip(basis[i]/10, -0.0075, 0.0075)
	}
	e.setFeature(f, "funding_rate_proxy", funding, nil)
	e.setFeature(f, "funding_rate_ma", rollingMean(funding, 96), nil)

	// open interest proxied by short-term turnover share of the 96-bar total
	turn24 := rollingSum(turnover, 24)
	oi := make([]float64, n)
	for i := 0; i < n; i++ {
		oi[i] = safemath.Clip(safemath.Divide(turn24[i]*4, turnSum[i], 1, 50, safemath.DefaultMinDenominator), 0, 10)
	}
	e.setFeature(f, "open_interest_proxy", oi, nil)
	oiChange := diff(oi, 4)
	e.setFeature(f, "oi_change_proxy", oiChange, nil)
	e.setFeature(f, "oi_momentum_proxy", ema(oiChange, 12), nil)

	buyRatio := colOrZeros(f, "buy_volume_ratio", n)
	sellRatio := colOrZeros(f, "sell_volume_ratio", n)
	lsr := make([]float64, n)
	for i := 0; i < n; i++ {
		lsr[i] = safemath.Clip(safemath.Divide(buyRatio[i], sellRatio[i], 1, 10, safemath.DefaultMinDenominator), 0.1, 10)
	}
	e.setFeature(f, "long_short_ratio_proxy", lsr, nil)
	e.setFeature(f, "taker_buy_ratio_proxy", ema(buyRatio, 8), nil)
	e.setFeature(f, "taker_sell_ratio_proxy", ema(sellRatio, 8), nil)

	// liquidation pressure rises with volatility and one-sided moves
	atr := colOrZeros(f, "atr_norm_14", n)
	ret4 := colOrZeros(f, "ret_4", n)
	liq := make([]float64, n)
	for i := 0; i < n; i++ {
		liq[i] = sigmoid(20*atr[i] + 10*math.Abs(ret4[i]) - 2)
	}
	e.setFeature(f, "liquidation_risk_proxy", liq, nil)
}
