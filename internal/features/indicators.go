package features

import (
	"fmt"
	"math"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/features/safemath"
)

// technicalIndicators is stage 3. Every indicator returns (values, error);
// the engineer zero-fills on error so a short series degrades instead of
// aborting the batch.
func (e *Engineer) technicalIndicators(f *Frame) {
	closeC, _ := f.Get("close")
	open, _ := f.Get("open")
	high, _ := f.Get("high")
	low, _ := f.Get("low")
	volume, _ := f.Get("volume")
	_ = open
	n := f.Len()

	// moving averages with price-distance and slope variants
	for _, w := range []int{8, 14, 20, 50, 100, 200} {
		sma := rollingMean(closeC, w)
		dist := make([]float64, n)
		for i := 0; i < n; i++ {
			dist[i] = safemath.Divide(closeC[i]-sma[i], sma[i], 0, 1, safemath.DefaultMinDenominator)
		}
		e.setFeature(f, featName("sma_dist_%d", w), dist, checkLen(n, w))
		if w == 20 || w == 50 {
			slope := make([]float64, n)
			prev := shift(sma, 3)
			for i := 0; i < n; i++ {
				slope[i] = safemath.Divide(sma[i]-prev[i], prev[i], 0, 1, safemath.DefaultMinDenominator)
			}
			e.setFeature(f, featName("sma_slope_%d", w), slope, checkLen(n, w))
		}
	}
	for _, w := range []int{8, 12, 20, 26, 50, 100} {
		emaW := ema(closeC, w)
		dist := make([]float64, n)
		for i := 0; i < n; i++ {
			dist[i] = safemath.Divide(closeC[i]-emaW[i], emaW[i], 0, 1, safemath.DefaultMinDenominator)
		}
		e.setFeature(f, featName("ema_dist_%d", w), dist, checkLen(n, w))
		if w == 20 || w == 50 {
			slope := make([]float64, n)
			prev := shift(emaW, 3)
			for i := 0; i < n; i++ {
				slope[i] = safemath.Divide(emaW[i]-prev[i], prev[i], 0, 1, safemath.DefaultMinDenominator)
			}
			e.setFeature(f, featName("ema_slope_%d", w), slope, checkLen(n, w))
		}
	}

	sma20 := rollingMean(closeC, 20)
	sma50 := rollingMean(closeC, 50)
	cross := make([]float64, n)
	for i := 0; i < n; i++ {
		cross[i] = safemath.Divide(sma20[i]-sma50[i], closeC[i], 0, 1, safemath.DefaultMinDenominator)
	}
	e.setFeature(f, "sma_cross_20_50", cross, checkLen(n, 50))

	ema12 := ema(closeC, 12)
	ema26 := ema(closeC, 26)
	ecross := make([]float64, n)
	for i := 0; i < n; i++ {
		ecross[i] = safemath.Divide(ema12[i]-ema26[i], closeC[i], 0, 1, safemath.DefaultMinDenominator)
	}
	e.setFeature(f, "ema_cross_12_26", ecross, checkLen(n, 26))

	// momentum oscillators
	for _, w := range []int{5, 7, 9, 14, 21, 28} {
		vals, err := rsi(closeC, w)
		e.setFeature(f, featName("rsi_%d", w), vals, err)
	}
	for _, w := range []int{14, 21} {
		k, d, err := stochastic(high, low, closeC, w, 3)
		e.setFeature(f, featName("stoch_k_%d", w), k, err)
		e.setFeature(f, featName("stoch_d_%d", w), d, err)
	}
	if k14, ok := f.Get("stoch_k_14"); ok {
		if d14, ok2 := f.Get("stoch_d_14"); ok2 {
			sd := make([]float64, n)
			for i := 0; i < n; i++ {
				sd[i] = k14[i] - d14[i]
			}
			e.setFeature(f, "stoch_diff", sd, nil)
		}
	}
	for _, w := range []int{7, 14, 21} {
		vals, err := williamsR(high, low, closeC, w)
		e.setFeature(f, featName("williams_r_%d", w), vals, err)
	}
	for _, w := range []int{7, 14, 20, 28} {
		vals, err := cci(high, low, closeC, w)
		e.setFeature(f, featName("cci_%d", w), vals, err)
	}
	for _, w := range []int{7, 14, 21} {
		vals, err := mfi(high, low, closeC, volume, w)
		e.setFeature(f, featName("mfi_%d", w), vals, err)
	}

	// MACD variants normalized by price
	macdLine, macdSig, macdHist := macd(closeC, 12, 26, 9)
	e.setFeature(f, "macd_norm", normalizeBy(macdLine, closeC), checkLen(n, 26))
	e.setFeature(f, "macd_signal_norm", normalizeBy(macdSig, closeC), checkLen(n, 26))
	e.setFeature(f, "macd_hist_norm", normalizeBy(macdHist, closeC), checkLen(n, 26))
	fastLine, _, fastHist := macd(closeC, 5, 13, 5)
	e.setFeature(f, "macd_fast_norm", normalizeBy(fastLine, closeC), checkLen(n, 13))
	e.setFeature(f, "macd_fast_hist_norm", normalizeBy(fastHist, closeC), checkLen(n, 13))

	// trend strength
	adxV, plusDI, minusDI, err := adx(high, low, closeC, 14)
	e.setFeature(f, "adx_14", adxV, err)
	e.setFeature(f, "plus_di_14", plusDI, err)
	e.setFeature(f, "minus_di_14", minusDI, err)
	dd := make([]float64, n)
	if err == nil {
		for i := 0; i < n; i++ {
			dd[i] = plusDI[i] - minusDI[i]
		}
	}
	e.setFeature(f, "di_diff", dd, err)

	up, down, err := aroon(high, low, 25)
	e.setFeature(f, "aroon_up", up, err)
	e.setFeature(f, "aroon_down", down, err)
	osc := make([]float64, n)
	if err == nil {
		for i := 0; i < n; i++ {
			osc[i] = up[i] - down[i]
		}
	}
	e.setFeature(f, "aroon_osc", osc, err)

	atr14 := atr(high, low, closeC, 14)
	psar, trend := parabolicSAR(high, low, 0.02, 0.2)
	psarDist := make([]float64, n)
	for i := 0; i < n; i++ {
		psarDist[i] = safemath.Divide(closeC[i]-psar[i], atr14[i], 0, 20, safemath.DefaultMinDenominator)
	}
	e.setFeature(f, "psar_dist_atr", psarDist, checkLen(n, 14))
	e.setFeature(f, "psar_trend", trend, checkLen(n, 2))

	for _, w := range []int{7, 14, 21, 28} {
		atrW := atr(high, low, closeC, w)
		norm := normalizeBy(atrW, closeC)
		e.setFeature(f, featName("atr_norm_%d", w), norm, checkLen(n, w))
	}

	// volatility bands: width and close position inside the band
	for _, w := range []int{10, 20, 50} {
		width, pos := bollinger(closeC, w, 2)
		e.setFeature(f, featName("bb_width_%d", w), width, checkLen(n, w))
		e.setFeature(f, featName("bb_position_%d", w), pos, checkLen(n, w))
	}
	for _, w := range []int{10, 20, 50} {
		width, pos := keltner(high, low, closeC, w, 2)
		e.setFeature(f, featName("kc_width_%d", w), width, checkLen(n, w))
		e.setFeature(f, featName("kc_position_%d", w), pos, checkLen(n, w))
	}
	for _, w := range []int{10, 20, 50} {
		width, pos := donchian(high, low, closeC, w)
		e.setFeature(f, featName("dc_width_%d", w), width, checkLen(n, w))
		e.setFeature(f, featName("dc_position_%d", w), pos, checkLen(n, w))
	}

	// volume indicators
	obvRaw := obv(closeC, volume)
	volSum := rollingSum(volume, 96)
	obvNorm := make([]float64, n)
	for i := 0; i < n; i++ {
		obvNorm[i] = safemath.Divide(obvRaw[i], volSum[i], 0, 10, safemath.DefaultMinDenominator)
	}
	e.setFeature(f, "obv_norm", obvNorm, nil)
	obvSmooth := ema(obvNorm, 10)
	e.setFeature(f, "obv_slope", diff(obvSmooth, 5), nil)
	obvMean := rollingMean(obvRaw, 50)
	obvStd := rollingStd(obvRaw, 50)
	obvZ := make([]float64, n)
	for i := 0; i < n; i++ {
		obvZ[i] = safemath.Divide(obvRaw[i]-obvMean[i], obvStd[i], 0, 10, safemath.DefaultMinDenominator)
	}
	e.setFeature(f, "obv_zscore", obvZ, checkLen(n, 50))

	for _, w := range []int{20, 50} {
		vals, err := chaikinMoneyFlow(high, low, closeC, volume, w)
		e.setFeature(f, featName("cmf_%d", w), vals, err)
	}
}

func checkLen(n, need int) error {
	if n < need {
		return fmt.Errorf("series length %d below indicator window %d", n, need)
	}
	return nil
}

func normalizeBy(xs, base []float64) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		out[i] = safemath.Divide(xs[i], base[i], 0, 1, safemath.DefaultMinDenominator)
	}
	return out
}

func rsi(closeC []float64, period int) ([]float64, error) {
	n := len(closeC)
	if n < period+1 {
		return nil, fmt.Errorf("rsi: need %d candles, have %d", period+1, n)
	}
	out := make([]float64, n)
	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		d := closeC[i] - closeC[i-1]
		if d > 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)
	for i := period + 1; i < n; i++ {
		d := closeC[i] - closeC[i-1]
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	for i := 0; i < period; i++ {
		out[i] = 50
	}
	return out, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	rs := safemath.Divide(avgGain, avgLoss, 1, 1e6, safemath.DefaultMinDenominator)
	return 100 - 100/(1+rs)
}

func stochastic(high, low, closeC []float64, period, smooth int) ([]float64, []float64, error) {
	n := len(closeC)
	if n < period {
		return nil, nil, fmt.Errorf("stochastic: need %d candles, have %d", period, n)
	}
	hh := rollingMax(high, period)
	ll := rollingMin(low, period)
	k := make([]float64, n)
	for i := 0; i < n; i++ {
		k[i] = 100 * safemath.Clip(safemath.Divide(closeC[i]-ll[i], hh[i]-ll[i], 0.5, 1, safemath.DefaultMinDenominator), 0, 1)
	}
	d := rollingMean(k, smooth)
	return k, d, nil
}

func williamsR(high, low, closeC []float64, period int) ([]float64, error) {
	n := len(closeC)
	if n < period {
		return nil, fmt.Errorf("williams %%R: need %d candles, have %d", period, n)
	}
	hh := rollingMax(high, period)
	ll := rollingMin(low, period)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = -100 * safemath.Clip(safemath.Divide(hh[i]-closeC[i], hh[i]-ll[i], 0.5, 1, safemath.DefaultMinDenominator), 0, 1)
	}
	return out, nil
}

func cci(high, low, closeC []float64, period int) ([]float64, error) {
	n := len(closeC)
	if n < period {
		return nil, fmt.Errorf("cci: need %d candles, have %d", period, n)
	}
	tp := make([]float64, n)
	for i := 0; i < n; i++ {
		tp[i] = (high[i] + low[i] + closeC[i]) / 3
	}
	sma := rollingMean(tp, period)
	meanDev := rollingApply(tp, period, func(w []float64) float64 {
		m := meanOf(w)
		s := 0.0
		for _, v := range w {
			s += math.Abs(v - m)
		}
		return s / float64(len(w))
	})
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = safemath.Divide(tp[i]-sma[i], 0.015*meanDev[i], 0, 500, safemath.DefaultMinDenominator)
	}
	return out, nil
}

func mfi(high, low, closeC, volume []float64, period int) ([]float64, error) {
	n := len(closeC)
	if n < period+1 {
		return nil, fmt.Errorf("mfi: need %d candles, have %d", period+1, n)
	}
	out := make([]float64, n)
	tp := make([]float64, n)
	for i := 0; i < n; i++ {
		tp[i] = (high[i] + low[i] + closeC[i]) / 3
	}
	for i := period; i < n; i++ {
		posFlow, negFlow := 0.0, 0.0
		for j := i - period + 1; j <= i; j++ {
			flow := tp[j] * volume[j]
			if tp[j] > tp[j-1] {
				posFlow += flow
			} else if tp[j] < tp[j-1] {
				negFlow += flow
			}
		}
		ratio := safemath.Divide(posFlow, negFlow, 1, 1e6, safemath.DefaultMinDenominator)
		out[i] = 100 - 100/(1+ratio)
	}
	for i := 0; i < period; i++ {
		out[i] = 50
	}
	return out, nil
}

func macd(closeC []float64, fast, slow, signal int) (line, sig, hist []float64) {
	n := len(closeC)
	emaFast := ema(closeC, fast)
	emaSlow := ema(closeC, slow)
	line = make([]float64, n)
	for i := 0; i < n; i++ {
		line[i] = emaFast[i] - emaSlow[i]
	}
	sig = ema(line, signal)
	hist = make([]float64, n)
	for i := 0; i < n; i++ {
		hist[i] = line[i] - sig[i]
	}
	return line, sig, hist
}

func atr(high, low, closeC []float64, period int) []float64 {
	n := len(closeC)
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		hl := high[i] - low[i]
		if i == 0 {
			tr[i] = hl
			continue
		}
		hc := math.Abs(high[i] - closeC[i-1])
		lc := math.Abs(low[i] - closeC[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	return ema(tr, period)
}

func adx(high, low, closeC []float64, period int) (adxOut, plusDI, minusDI []float64, err error) {
	n := len(closeC)
	if n < 2*period {
		return nil, nil, nil, fmt.Errorf("adx: need %d candles, have %d", 2*period, n)
	}
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		upMove := high[i] - high[i-1]
		downMove := low[i-1] - low[i]
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}
	atrP := atr(high, low, closeC, period)
	plusSm := ema(plusDM, period)
	minusSm := ema(minusDM, period)
	plusDI = make([]float64, n)
	minusDI = make([]float64, n)
	dx := make([]float64, n)
	for i := 0; i < n; i++ {
		plusDI[i] = 100 * safemath.Divide(plusSm[i], atrP[i], 0, 100, safemath.DefaultMinDenominator)
		minusDI[i] = 100 * safemath.Divide(minusSm[i], atrP[i], 0, 100, safemath.DefaultMinDenominator)
		dx[i] = 100 * safemath.Divide(math.Abs(plusDI[i]-minusDI[i]), plusDI[i]+minusDI[i], 0, 1, safemath.DefaultMinDenominator)
	}
	adxOut = ema(dx, period)
	return adxOut, plusDI, minusDI, nil
}

func aroon(high, low []float64, period int) (up, down []float64, err error) {
	n := len(high)
	if n < period {
		return nil, nil, fmt.Errorf("aroon: need %d candles, have %d", period, n)
	}
	up = make([]float64, n)
	down = make([]float64, n)
	for i := 0; i < n; i++ {
		lo := i - period + 1
		if lo < 0 {
			lo = 0
		}
		hiIdx, loIdx := lo, lo
		for j := lo; j <= i; j++ {
			if high[j] >= high[hiIdx] {
				hiIdx = j
			}
			if low[j] <= low[loIdx] {
				loIdx = j
			}
		}
		span := float64(i - lo + 1)
		up[i] = 100 * float64(hiIdx-lo+1) / span
		down[i] = 100 * float64(loIdx-lo+1) / span
	}
	return up, down, nil
}

func parabolicSAR(high, low []float64, step, maxStep float64) (sar, trend []float64) {
	n := len(high)
	sar = make([]float64, n)
	trend = make([]float64, n)
	if n == 0 {
		return sar, trend
	}
	up := true
	af := step
	ep := high[0]
	sar[0] = low[0]
	trend[0] = 1
	for i := 1; i < n; i++ {
		sar[i] = sar[i-1] + af*(ep-sar[i-1])
		if up {
			if low[i] < sar[i] {
				up = false
				sar[i] = ep
				ep = low[i]
				af = step
			} else if high[i] > ep {
				ep = high[i]
				af = math.Min(af+step, maxStep)
			}
		} else {
			if high[i] > sar[i] {
				up = true
				sar[i] = ep
				ep = high[i]
				af = step
			} else if low[i] < ep {
				ep = low[i]
				af = math.Min(af+step, maxStep)
			}
		}
		if up {
			trend[i] = 1
		} else {
			trend[i] = -1
		}
	}
	return sar, trend
}

func bollinger(closeC []float64, period int, mult float64) (width, position []float64) {
	n := len(closeC)
	mid := rollingMean(closeC, period)
	sd := rollingStd(closeC, period)
	width = make([]float64, n)
	position = make([]float64, n)
	for i := 0; i < n; i++ {
		upper := mid[i] + mult*sd[i]
		lower := mid[i] - mult*sd[i]
		width[i] = safemath.Divide(upper-lower, mid[i], 0, 2, safemath.DefaultMinDenominator)
		position[i] = safemath.Clip(safemath.Divide(closeC[i]-lower, upper-lower, 0.5, 1, safemath.DefaultMinDenominator), 0, 1)
	}
	return width, position
}

func keltner(high, low, closeC []float64, period int, mult float64) (width, position []float64) {
	n := len(closeC)
	mid := ema(closeC, period)
	atrP := atr(high, low, closeC, period)
	width = make([]float64, n)
	position = make([]float64, n)
	for i := 0; i < n; i++ {
		upper := mid[i] + mult*atrP[i]
		lower := mid[i] - mult*atrP[i]
		width[i] = safemath.Divide(upper-lower, mid[i], 0, 2, safemath.DefaultMinDenominator)
		position[i] = safemath.Clip(safemath.Divide(closeC[i]-lower, upper-lower, 0.5, 1, safemath.DefaultMinDenominator), 0, 1)
	}
	return width, position
}

func donchian(high, low, closeC []float64, period int) (width, position []float64) {
	n := len(closeC)
	upper := rollingMax(high, period)
	lower := rollingMin(low, period)
	mid := make([]float64, n)
	width = make([]float64, n)
	position = make([]float64, n)
	for i := 0; i < n; i++ {
		mid[i] = (upper[i] + lower[i]) / 2
		width[i] = safemath.Divide(upper[i]-lower[i], mid[i], 0, 2, safemath.DefaultMinDenominator)
		position[i] = safemath.Clip(safemath.Divide(closeC[i]-lower[i], upper[i]-lower[i], 0.5, 1, safemath.DefaultMinDenominator), 0, 1)
	}
	return width, position
}

func obv(closeC, volume []float64) []float64 {
	n := len(closeC)
	out := make([]float64, n)
	for i := 1; i < n; i++ {
		switch {
		case closeC[i] > closeC[i-1]:
			out[i] = out[i-1] + volume[i]
		case closeC[i] < closeC[i-1]:
			out[i] = out[i-1] - volume[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

func chaikinMoneyFlow(high, low, closeC, volume []float64, period int) ([]float64, error) {
	n := len(closeC)
	if n < period {
		return nil, fmt.Errorf("cmf: need %d candles, have %d", period, n)
	}
	mfv := make([]float64, n)
	for i := 0; i < n; i++ {
		mult := safemath.Divide((closeC[i]-low[i])-(high[i]-closeC[i]), high[i]-low[i], 0, 1, safemath.DefaultMinDenominator)
		mfv[i] = mult * volume[i]
	}
	mfvSum := rollingSum(mfv, period)
	volSum := rollingSum(volume, period)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = safemath.Divide(mfvSum[i], volSum[i], 0, 1, safemath.DefaultMinDenominator)
	}
	return out, nil
}
