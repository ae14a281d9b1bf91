package features

import (
	"math"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/features/safemath"
)

// qualityFeatures is stage 6: composite scores built from the stage-3
// indicators. Component weights are fixed and documented inline.
func (e *Engineer) qualityFeatures(f *Frame) {
	closeC, _ := f.Get("close")
	volume, _ := f.Get("volume")
	n := f.Len()

	rsi14 := colOrZeros(f, "rsi_14", n)
	rsi7 := colOrZeros(f, "rsi_7", n)
	macdHist := colOrZeros(f, "macd_hist_norm", n)
	macdFastHist := colOrZeros(f, "macd_fast_hist_norm", n)
	adx14 := colOrZeros(f, "adx_14", n)
	diDiff := colOrZeros(f, "di_diff", n)
	aroonOsc := colOrZeros(f, "aroon_osc", n)
	stochK := colOrZeros(f, "stoch_k_14", n)
	bbPos := colOrZeros(f, "bb_position_20", n)
	bbWidth := colOrZeros(f, "bb_width_20", n)
	dcPos := colOrZeros(f, "dc_position_20", n)
	volRatio := colOrZeros(f, "volume_ratio_24", n)
	emaSlope := colOrZeros(f, "ema_slope_20", n)
	ret16 := colOrZeros(f, "ret_16", n)
	ret4 := colOrZeros(f, "ret_4", n)

	// momentum: 0.4 RSI deviation + 0.4 MACD histogram + 0.2 recent return
	momentum := make([]float64, n)
	momentumFast := make([]float64, n)
	for i := 0; i < n; i++ {
		momentum[i] = safemath.Clip(0.4*(rsi14[i]-50)/50+0.4*macdHist[i]*100+0.2*ret16[i]*10, -1, 1)
		momentumFast[i] = safemath.Clip(0.4*(rsi7[i]-50)/50+0.4*macdFastHist[i]*100+0.2*ret4[i]*10, -1, 1)
	}
	e.setFeature(f, "momentum_score", momentum, nil)
	e.setFeature(f, "momentum_score_fast", momentumFast, nil)

	strength := make([]float64, n)
	for i := 0; i < n; i++ {
		dir := safemath.Clip(diDiff[i]/25, -1, 1)
		strength[i] = safemath.Clip(adx14[i]/50, 0, 1) * dir
	}
	e.setFeature(f, "trend_strength", strength, nil)

	ret1 := logReturns(closeC, 1)
	consistency := rollingApply(ret1, 20, func(w []float64) float64 {
		pos := 0
		for _, v := range w {
			if v > 0 {
				pos++
			}
		}
		// centered: +1 all up, -1 all down
		return 2*float64(pos)/float64(len(w)) - 1
	})
	e.setFeature(f, "trend_consistency", consistency, checkLen(n, 20))
	e.setFeature(f, "trend_acceleration", diff(emaSlope, 3), nil)

	overbought := make([]float64, n)
	oversold := make([]float64, n)
	for i := 0; i < n; i++ {
		ob := 0.0
		if rsi14[i] > 70 {
			ob += 0.4 * (rsi14[i] - 70) / 30
		}
		if stochK[i] > 80 {
			ob += 0.3 * (stochK[i] - 80) / 20
		}
		if bbPos[i] > 0.95 {
			ob += 0.3
		}
		overbought[i] = safemath.Clip(ob, 0, 1)

		os := 0.0
		if rsi14[i] < 30 {
			os += 0.4 * (30 - rsi14[i]) / 30
		}
		if stochK[i] < 20 {
			os += 0.3 * (20 - stochK[i]) / 20
		}
		if bbPos[i] < 0.05 {
			os += 0.3
		}
		oversold[i] = safemath.Clip(os, 0, 1)
	}
	e.setFeature(f, "overbought_score", overbought, nil)
	e.setFeature(f, "oversold_score", oversold, nil)

	// divergence: price and oscillator moving in opposite directions over
	// the window flags a potential reversal
	priceDelta := diff(closeC, 16)
	rsiDelta := diff(rsi14, 16)
	macdDelta := diff(macdHist, 16)
	bullDiv := make([]float64, n)
	bearDiv := make([]float64, n)
	for i := 0; i < n; i++ {
		if priceDelta[i] < 0 && rsiDelta[i] > 0 {
			bullDiv[i] = 1
		}
		if priceDelta[i] > 0 && rsiDelta[i] < 0 {
			bearDiv[i] = 1
		}
	}
	e.setFeature(f, "bullish_divergence", bullDiv, nil)
	e.setFeature(f, "bearish_divergence", bearDiv, nil)

	rsiDivScore := rollingCorr(normalizeSeries(priceDelta, closeC), rsiDelta, 20)
	for i := range rsiDivScore {
		rsiDivScore[i] = -rsiDivScore[i] // anti-correlation is divergence
	}
	e.setFeature(f, "rsi_divergence_score", rsiDivScore, checkLen(n, 20))
	macdDivScore := rollingCorr(normalizeSeries(priceDelta, closeC), macdDelta, 20)
	for i := range macdDivScore {
		macdDivScore[i] = -macdDivScore[i]
	}
	e.setFeature(f, "macd_divergence_score", macdDivScore, checkLen(n, 20))

	breakout := make([]float64, n)
	reversal := make([]float64, n)
	for i := 0; i < n; i++ {
		edge := 0.0
		if dcPos[i] > 0.9 || dcPos[i] < 0.1 {
			edge = 1
		}
		volBoost := safemath.Clip((volRatio[i]-1)/2, 0, 1)
		breakout[i] = sigmoid(3*edge + 2*volBoost - 2)
		reversal[i] = sigmoid(2*(overbought[i]+oversold[i]) + bullDiv[i] + bearDiv[i] - 2)
	}
	e.setFeature(f, "breakout_prob", breakout, nil)
	e.setFeature(f, "reversal_prob", reversal, nil)

	low, _ := f.Get("low")
	high, _ := f.Get("high")
	support := rollingMin(low, 96)
	resistance := rollingMax(high, 96)
	supDist := make([]float64, n)
	resDist := make([]float64, n)
	for i := 0; i < n; i++ {
		supDist[i] = safemath.Divide(closeC[i]-support[i], closeC[i], 0, 1, safemath.DefaultMinDenominator)
		resDist[i] = safemath.Divide(resistance[i]-closeC[i], closeC[i], 0, 1, safemath.DefaultMinDenominator)
	}
	e.setFeature(f, "support_distance", supDist, checkLen(n, 96))
	e.setFeature(f, "resistance_distance", resDist, checkLen(n, 96))

	agreement := make([]float64, n)
	for i := 0; i < n; i++ {
		votes := 0.0
		votes += signOf(rsi14[i] - 50)
		votes += signOf(macdHist[i])
		votes += signOf(diDiff[i])
		votes += signOf(aroonOsc[i])
		agreement[i] = votes / 4
	}
	e.setFeature(f, "signal_agreement", agreement, nil)

	absRet := make([]float64, n)
	for i := 0; i < n; i++ {
		absRet[i] = safemath.Clip(ret1[i], -1, 1)
		if absRet[i] < 0 {
			absRet[i] = -absRet[i]
		}
	}
	e.setFeature(f, "volume_confirmation", rollingCorr(absRet, volume, 20), checkLen(n, 20))

	bbWidthMA := rollingMean(bbWidth, 48)
	consolidation := make([]float64, n)
	for i := 0; i < n; i++ {
		r := safemath.Divide(bbWidth[i], bbWidthMA[i], 1, 10, safemath.DefaultMinDenominator)
		consolidation[i] = safemath.Clip(1-r, 0, 1)
	}
	e.setFeature(f, "consolidation_score", consolidation, nil)
}

func colOrZeros(f *Frame, name string, n int) []float64 {
	if c, ok := f.Get(name); ok {
		return c
	}
	return make([]float64, n)
}

func signOf(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func normalizeSeries(xs, base []float64) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		out[i] = safemath.Divide(xs[i], base[i], 0, 1, safemath.DefaultMinDenominator)
	}
	return out
}

// rollingCorr computes the Pearson correlation of x and y per window.
func rollingCorr(x, y []float64, window int) []float64 {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	out := make([]float64, len(x))
	for i := window - 1; i < n; i++ {
		lo := i - window + 1
		mx := meanOf(x[lo : i+1])
		my := meanOf(y[lo : i+1])
		cov, vx, vy := 0.0, 0.0, 0.0
		for j := lo; j <= i; j++ {
			dx := x[j] - mx
			dy := y[j] - my
			cov += dx * dy
			vx += dx * dx
			vy += dy * dy
		}
		denom := vx * vy
		if denom <= 0 {
			continue
		}
		out[i] = safemath.Clip(cov/math.Sqrt(denom), -1, 1)
	}
	return out
}
