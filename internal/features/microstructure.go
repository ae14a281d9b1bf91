package features

import (
	"math"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/features/safemath"
)

// barsPerYear15m annualizes realized volatility for the 15-minute interval.
const barsPerYear15m = 365 * 24 * 4

// microstructureFeatures is stage 4: spread, imbalance, illiquidity and
// volatility estimates derived purely from OHLCV (no book data available).
func (e *Engineer) microstructureFeatures(f *Frame) {
	closeC, _ := f.Get("close")
	_, _ = f.Get("open")
	high, _ := f.Get("high")
	low, _ := f.Get("low")
	volume, _ := f.Get("volume")
	turnover, _ := f.Get("turnover")
	n := f.Len()

	spread := make([]float64, n)
	for i := 0; i < n; i++ {
		spread[i] = safemath.Divide(high[i]-low[i], closeC[i], 0, 1, safemath.DefaultMinDenominator)
	}
	e.setFeature(f, "spread_proxy", spread, nil)
	spreadMA := rollingMean(spread, 24)
	smr := make([]float64, n)
	for i := 0; i < n; i++ {
		smr[i] = safemath.Divide(spread[i], spreadMA[i], 1, 50, safemath.DefaultMinDenominator)
	}
	e.setFeature(f, "spread_ma_ratio", smr, nil)

	// direction-split volume: close position inside the bar approximates
	// the taker buy share
	imb := make([]float64, n)
	buyVol := make([]float64, n)
	sellVol := make([]float64, n)
	for i := 0; i < n; i++ {
		pos := safemath.Clip(safemath.Divide(closeC[i]-low[i], high[i]-low[i], 0.5, 1, safemath.DefaultMinDenominator), 0, 1)
		buyVol[i] = volume[i] * pos
		sellVol[i] = volume[i] * (1 - pos)
		imb[i] = safemath.Divide(buyVol[i]-sellVol[i], volume[i], 0, 1, safemath.DefaultMinDenominator)
	}
	e.setFeature(f, "order_imbalance", imb, nil)
	e.setFeature(f, "order_imbalance_ma", rollingMean(imb, 24), nil)

	buySum := rollingSum(buyVol, 24)
	sellSum := rollingSum(sellVol, 24)
	volSum := rollingSum(volume, 24)
	buyRatio := make([]float64, n)
	sellRatio := make([]float64, n)
	for i := 0; i < n; i++ {
		buyRatio[i] = safemath.Clip(safemath.Divide(buySum[i], volSum[i], 0.5, 1, safemath.DefaultMinDenominator), 0, 1)
		sellRatio[i] = safemath.Clip(safemath.Divide(sellSum[i], volSum[i], 0.5, 1, safemath.DefaultMinDenominator), 0, 1)
	}
	e.setFeature(f, "buy_volume_ratio", buyRatio, nil)
	e.setFeature(f, "sell_volume_ratio", sellRatio, nil)

	ret1 := logReturns(closeC, 1)

	// Amihud: |return| per unit of turnover, scaled up to a usable magnitude
	amihud := make([]float64, n)
	for i := 0; i < n; i++ {
		amihud[i] = safemath.Divide(math.Abs(ret1[i])*1e6, turnover[i], 0, 1e3, safemath.DefaultMinDenominator)
	}
	e.setFeature(f, "amihud_illiquidity", rollingMean(amihud, 24), nil)
	e.setFeature(f, "amihud_ma", rollingMean(amihud, 96), nil)

	// Kyle's lambda: regression slope of return on signed volume
	signedVol := make([]float64, n)
	for i := 0; i < n; i++ {
		if ret1[i] >= 0 {
			signedVol[i] = volume[i]
		} else {
			signedVol[i] = -volume[i]
		}
	}
	lambda := rollingSlope(signedVol, ret1, 48)
	scaled := make([]float64, n)
	for i := 0; i < n; i++ {
		scaled[i] = safemath.Clip(lambda[i]*1e6, -100, 100)
	}
	e.setFeature(f, "kyle_lambda", scaled, checkLen(n, 48))

	for _, w := range []int{6, 12, 24, 48, 96} {
		rv := rollingApply(ret1, w, func(win []float64) float64 {
			return stdOf(win) * math.Sqrt(barsPerYear15m)
		})
		e.setFeature(f, featName("realized_vol_%d", w), rv, checkLen(n, w))
	}
	if rv24, ok := f.Get("realized_vol_24"); ok {
		e.setFeature(f, "vol_of_vol", rollingStd(rv24, 48), nil)
	}

	// bounded per-bar price impact and its exponential-decay toxicity score
	impact := make([]float64, n)
	for i := 0; i < n; i++ {
		lv := math.Log1p(math.Max(volume[i], 0))
		impact[i] = safemath.Clip(safemath.Divide(math.Abs(ret1[i])*100, lv, 0, 10, safemath.DefaultMinDenominator), 0, 10)
	}
	e.setFeature(f, "price_impact", impact, nil)
	e.setFeature(f, "toxicity", ema(impact, 12), nil)

	sv := rollingMean(signedVol, 24)
	vMean := rollingMean(volume, 24)
	svr := make([]float64, n)
	for i := 0; i < n; i++ {
		svr[i] = safemath.Divide(sv[i], vMean[i], 0, 1, safemath.DefaultMinDenominator)
	}
	e.setFeature(f, "signed_volume_ma", svr, nil)
}

// rollingSlope computes the least-squares slope of y on x per window.
func rollingSlope(x, y []float64, window int) []float64 {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	out := make([]float64, len(x))
	for i := window - 1; i < n; i++ {
		lo := i - window + 1
		mx := meanOf(x[lo : i+1])
		my := meanOf(y[lo : i+1])
		cov, varX := 0.0, 0.0
		for j := lo; j <= i; j++ {
			dx := x[j] - mx
			cov += dx * (y[j] - my)
			varX += dx * dx
		}
		out[i] = safemath.Divide(cov, varX, 0, 1e6, safemath.DefaultMinDenominator)
	}
	return out
}
