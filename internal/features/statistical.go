package features

import (
	"math"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/features/safemath"
)

// statisticalFeatures is stage 8: long-memory and distribution statistics,
// candlestick pattern flags and discretized market regimes.
func (e *Engineer) statisticalFeatures(f *Frame) {
	closeC, _ := f.Get("close")
	open, _ := f.Get("open")
	high, _ := f.Get("high")
	low, _ := f.Get("low")
	volume, _ := f.Get("volume")
	n := f.Len()

	ret1 := logReturns(closeC, 1)

	e.setFeature(f, "hurst_exponent", rollingApply(ret1, 96, hurstRS), checkLen(n, 96))
	e.setFeature(f, "fractal_dimension", rollingApply(closeC, 96, higuchiFD), checkLen(n, 96))
	e.setFeature(f, "return_entropy", rollingApply(ret1, 48, shannonEntropy), checkLen(n, 48))
	e.setFeature(f, "volume_entropy", rollingApply(volume, 48, shannonEntropy), checkLen(n, 48))

	for _, lag := range []int{1, 2, 3, 5, 10, 20} {
		e.setFeature(f, featName("autocorr_%d", lag), rollingAutocorr(ret1, lag, 48), checkLen(n, 48+lag))
	}

	// jump: |return| above 4 rolling standard deviations
	vol48 := rollingStd(ret1, 48)
	jump := make([]float64, n)
	intensity := make([]float64, n)
	for i := 0; i < n; i++ {
		z := safemath.Divide(math.Abs(ret1[i]), vol48[i], 0, 100, safemath.DefaultMinDenominator)
		if z > 4 {
			jump[i] = 1
		}
		intensity[i] = safemath.Clip(z/4, 0, 10)
	}
	e.setFeature(f, "jump_detected", jump, nil)
	e.setFeature(f, "jump_intensity", rollingMean(intensity, 24), nil)

	for _, w := range []int{8, 20, 50, 96} {
		mean := rollingMean(closeC, w)
		std := rollingStd(closeC, w)
		z := make([]float64, n)
		for i := 0; i < n; i++ {
			z[i] = safemath.Clip(safemath.Divide(closeC[i]-mean[i], std[i], 0, 10, safemath.DefaultMinDenominator), -10, 10)
		}
		e.setFeature(f, featName("zscore_%d", w), z, checkLen(n, w))
	}
	for _, w := range []int{8, 20, 96} {
		e.setFeature(f, featName("skew_%d", w), rollingSkew(ret1, w), checkLen(n, w))
		e.setFeature(f, featName("kurtosis_%d", w), rollingKurtosis(ret1, w), checkLen(n, w))
	}

	e.candlestickPatterns(f, open, high, low, closeC)

	// adaptive measures use an efficiency-ratio weighted window blend
	er := efficiencyRatio(closeC, 20)
	mom8 := diffRatio(closeC, 8)
	mom32 := diffRatio(closeC, 32)
	vol8 := rollingStd(ret1, 8)
	vol32 := rollingStd(ret1, 32)
	adMom := make([]float64, n)
	adVol := make([]float64, n)
	adTrend := make([]float64, n)
	volRatio := make([]float64, n)
	for i := 0; i < n; i++ {
		w := safemath.Clip(er[i], 0, 1)
		adMom[i] = w*mom8[i] + (1-w)*mom32[i]
		adVol[i] = w*vol8[i] + (1-w)*vol32[i]
		adTrend[i] = safemath.Clip(er[i]*signOf(mom32[i]), -1, 1)
		volRatio[i] = safemath.Clip(safemath.Divide(vol8[i], vol32[i], 1, 50, safemath.DefaultMinDenominator), 0, 10)
	}
	e.setFeature(f, "adaptive_momentum", adMom, nil)
	e.setFeature(f, "adaptive_volatility", adVol, nil)
	e.setFeature(f, "adaptive_trend", adTrend, nil)
	e.setFeature(f, "volatility_ratio", volRatio, nil)

	// regimes are coarse buckets in {0,1,2}
	e.setFeature(f, "vol_regime", bucketByQuantile(vol48, 96), checkLen(n, 96))
	trendScore := colOrZeros(f, "trend_strength", n)
	trendRegime := make([]float64, n)
	momRegime := make([]float64, n)
	mom := colOrZeros(f, "momentum_score", n)
	for i := 0; i < n; i++ {
		switch {
		case trendScore[i] > 0.15:
			trendRegime[i] = 2
		case trendScore[i] < -0.15:
			trendRegime[i] = 0
		default:
			trendRegime[i] = 1
		}
		switch {
		case mom[i] > 0.2:
			momRegime[i] = 2
		case mom[i] < -0.2:
			momRegime[i] = 0
		default:
			momRegime[i] = 1
		}
	}
	e.setFeature(f, "trend_regime", trendRegime, nil)
	e.setFeature(f, "momentum_regime", momRegime, nil)
	e.setFeature(f, "volume_regime", bucketByQuantile(volume, 96), checkLen(n, 96))

	q25 := rollingQuantile(closeC, 96, 0.25)
	q75 := rollingQuantile(closeC, 96, 0.75)
	pos25 := make([]float64, n)
	pos75 := make([]float64, n)
	for i := 0; i < n; i++ {
		pos25[i] = safemath.Clip(safemath.Divide(closeC[i]-q25[i], closeC[i], 0, 1, safemath.DefaultMinDenominator), -1, 1)
		pos75[i] = safemath.Clip(safemath.Divide(closeC[i]-q75[i], closeC[i], 0, 1, safemath.DefaultMinDenominator), -1, 1)
	}
	e.setFeature(f, "quantile_pos_25", pos25, checkLen(n, 96))
	e.setFeature(f, "quantile_pos_75", pos75, checkLen(n, 96))

	streak := make([]float64, n)
	run := 0.0
	for i := 0; i < n; i++ {
		s := signOf(ret1[i])
		if i > 0 && s != 0 && s == signOf(ret1[i-1]) {
			run += s
		} else {
			run = s
		}
		streak[i] = safemath.Clip(run, -20, 20)
	}
	e.setFeature(f, "return_sign_streak", streak, nil)
}

func (e *Engineer) candlestickPatterns(f *Frame, open, high, low, closeC []float64) {
	n := len(closeC)
	engBull := make([]float64, n)
	engBear := make([]float64, n)
	doji := make([]float64, n)
	hammer := make([]float64, n)
	shooting := make([]float64, n)
	morning := make([]float64, n)
	evening := make([]float64, n)
	soldiers := make([]float64, n)
	crows := make([]float64, n)

	body := func(i int) float64 { return closeC[i] - open[i] }
	rng := func(i int) float64 { return math.Max(high[i]-low[i], safemath.DefaultMinDenominator) }

	for i := 0; i < n; i++ {
		b := body(i)
		r := rng(i)
		upper := high[i] - math.Max(open[i], closeC[i])
		lower := math.Min(open[i], closeC[i]) - low[i]

		if math.Abs(b) < 0.1*r {
			doji[i] = 1
		}
		if lower > 2*math.Abs(b) && upper < math.Abs(b) {
			hammer[i] = 1
		}
		if upper > 2*math.Abs(b) && lower < math.Abs(b) {
			shooting[i] = 1
		}

		if i >= 1 {
			pb := body(i - 1)
			if pb < 0 && b > 0 && open[i] <= closeC[i-1] && closeC[i] >= open[i-1] {
				engBull[i] = 1
			}
			if pb > 0 && b < 0 && open[i] >= closeC[i-1] && closeC[i] <= open[i-1] {
				engBear[i] = 1
			}
		}
		if i >= 2 {
			b0, b1, b2 := body(i-2), body(i-1), b
			if b0 < 0 && math.Abs(b1) < 0.3*rng(i-1) && b2 > 0 && closeC[i] > (open[i-2]+closeC[i-2])/2 {
				morning[i] = 1
			}
			if b0 > 0 && math.Abs(b1) < 0.3*rng(i-1) && b2 < 0 && closeC[i] < (open[i-2]+closeC[i-2])/2 {
				evening[i] = 1
			}
			if b0 > 0 && b1 > 0 && b2 > 0 && closeC[i] > closeC[i-1] && closeC[i-1] > closeC[i-2] {
				soldiers[i] = 1
			}
			if b0 < 0 && b1 < 0 && b2 < 0 && closeC[i] < closeC[i-1] && closeC[i-1] < closeC[i-2] {
				crows[i] = 1
			}
		}
	}

	e.setFeature(f, "engulfing_bull", engBull, nil)
	e.setFeature(f, "engulfing_bear", engBear, nil)
	e.setFeature(f, "doji", doji, nil)
	e.setFeature(f, "hammer", hammer, nil)
	e.setFeature(f, "shooting_star", shooting, nil)
	e.setFeature(f, "morning_star", morning, nil)
	e.setFeature(f, "evening_star", evening, nil)
	e.setFeature(f, "three_white_soldiers", soldiers, nil)
	e.setFeature(f, "three_black_crows", crows, nil)
}

// hurstRS estimates the Hurst exponent of a return window via rescaled range
// over dyadic sub-window sizes.
func hurstRS(ret []float64) float64 {
	n := len(ret)
	if n < 16 {
		return 0.5
	}
	var logSizes, logRS []float64
	for size := 8; size <= n/2; size *= 2 {
		chunks := n / size
		rsSum, rsCount := 0.0, 0
		for c := 0; c < chunks; c++ {
			w := ret[c*size : (c+1)*size]
			m := meanOf(w)
			cum, minC, maxC, ss := 0.0, 0.0, 0.0, 0.0
			for _, v := range w {
				d := v - m
				cum += d
				if cum < minC {
					minC = cum
				}
				if cum > maxC {
					maxC = cum
				}
				ss += d * d
			}
			sd := math.Sqrt(ss / float64(size))
			if sd <= 0 {
				continue
			}
			rsSum += (maxC - minC) / sd
			rsCount++
		}
		if rsCount == 0 {
			continue
		}
		logSizes = append(logSizes, math.Log(float64(size)))
		logRS = append(logRS, math.Log(rsSum/float64(rsCount)))
	}
	if len(logSizes) < 2 {
		return 0.5
	}
	h := slopeOf(logSizes, logRS)
	return safemath.Clip(h, 0, 1)
}

// higuchiFD is the Higuchi fractal dimension with kMax=8.
func higuchiFD(xs []float64) float64 {
	n := len(xs)
	const kMax = 8
	if n < kMax*2 {
		return 1.5
	}
	var logK, logL []float64
	for k := 1; k <= kMax; k++ {
		lk := 0.0
		valid := 0
		for m := 0; m < k; m++ {
			steps := (n - 1 - m) / k
			if steps < 1 {
				continue
			}
			sum := 0.0
			for j := 1; j <= steps; j++ {
				sum += math.Abs(xs[m+j*k] - xs[m+(j-1)*k])
			}
			norm := float64(n-1) / (float64(steps) * float64(k))
			lk += sum * norm / float64(k)
			valid++
		}
		if valid == 0 || lk <= 0 {
			continue
		}
		logK = append(logK, math.Log(1/float64(k)))
		logL = append(logL, math.Log(lk/float64(valid)))
	}
	if len(logK) < 2 {
		return 1.5
	}
	return safemath.Clip(slopeOf(logK, logL), 1, 2)
}

// shannonEntropy bins the window into 10 equal-width bins and returns the
// normalized entropy in [0,1].
func shannonEntropy(xs []float64) float64 {
	const bins = 10
	minV, maxV := xs[0], xs[0]
	for _, v := range xs {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	if maxV-minV < safemath.DefaultMinDenominator {
		return 0
	}
	counts := make([]int, bins)
	for _, v := range xs {
		b := int((v - minV) / (maxV - minV) * bins)
		if b >= bins {
			b = bins - 1
		}
		counts[b]++
	}
	h := 0.0
	total := float64(len(xs))
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / total
		h -= p * math.Log(p)
	}
	return h / math.Log(bins)
}

func rollingAutocorr(xs []float64, lag, window int) []float64 {
	out := make([]float64, len(xs))
	for i := window + lag - 1; i < len(xs); i++ {
		a := xs[i-window+1 : i+1]
		b := xs[i-window+1-lag : i+1-lag]
		ma, mb := meanOf(a), meanOf(b)
		cov, va, vb := 0.0, 0.0, 0.0
		for j := range a {
			da := a[j] - ma
			db := b[j] - mb
			cov += da * db
			va += da * da
			vb += db * db
		}
		if va*vb <= 0 {
			continue
		}
		out[i] = safemath.Clip(cov/math.Sqrt(va*vb), -1, 1)
	}
	return out
}

// efficiencyRatio is Kaufman's ratio of net move to path length.
func efficiencyRatio(closeC []float64, window int) []float64 {
	n := len(closeC)
	out := make([]float64, n)
	for i := window; i < n; i++ {
		net := math.Abs(closeC[i] - closeC[i-window])
		path := 0.0
		for j := i - window + 1; j <= i; j++ {
			path += math.Abs(closeC[j] - closeC[j-1])
		}
		out[i] = safemath.Clip(safemath.Divide(net, path, 0, 1, safemath.DefaultMinDenominator), 0, 1)
	}
	return out
}

func diffRatio(xs []float64, k int) []float64 {
	out := make([]float64, len(xs))
	for i := k; i < len(xs); i++ {
		out[i] = safemath.Divide(xs[i]-xs[i-k], xs[i-k], 0, 10, safemath.DefaultMinDenominator)
	}
	return out
}

// bucketByQuantile maps each value to {0,1,2} against its own rolling
// 33/66 percentile bands.
func bucketByQuantile(xs []float64, window int) []float64 {
	lo := rollingQuantile(xs, window, 1.0/3)
	hi := rollingQuantile(xs, window, 2.0/3)
	out := make([]float64, len(xs))
	for i := range xs {
		switch {
		case xs[i] > hi[i]:
			out[i] = 2
		case xs[i] > lo[i]:
			out[i] = 1
		default:
			out[i] = 0
		}
	}
	return out
}

func slopeOf(x, y []float64) float64 {
	mx, my := meanOf(x), meanOf(y)
	cov, varX := 0.0, 0.0
	for i := range x {
		dx := x[i] - mx
		cov += dx * (y[i] - my)
		varX += dx * dx
	}
	if varX <= 0 {
		return 0
	}
	return cov / varX
}
