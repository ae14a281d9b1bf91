package features

import (
	"math"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/features/safemath"
)

// turningWindow is the half-width used for centered local extrema detection.
const turningWindow = 5

// rallyFeatures is stage 5: turning-point detection, the magnitude/duration/
// velocity of the active rally or drawdown, rolling extremum distances and a
// sigmoid probability of reaching fixed return thresholds.
func (e *Engineer) rallyFeatures(f *Frame) {
	closeC, _ := f.Get("close")
	high, _ := f.Get("high")
	low, _ := f.Get("low")
	n := f.Len()

	peakIdx, troughIdx := turningPoints(closeC, turningWindow)

	rallyActive := make([]float64, n)
	rallyMag := make([]float64, n)
	rallyDur := make([]float64, n)
	rallyVel := make([]float64, n)
	ddActive := make([]float64, n)
	ddMag := make([]float64, n)
	ddDur := make([]float64, n)
	ddVel := make([]float64, n)
	tpAge := make([]float64, n)

	lastPeak, lastTrough := -1, -1
	pi, ti := 0, 0
	for i := 0; i < n; i++ {
		for pi < len(peakIdx) && peakIdx[pi] <= i {
			lastPeak = peakIdx[pi]
			pi++
		}
		for ti < len(troughIdx) && troughIdx[ti] <= i {
			lastTrough = troughIdx[ti]
			ti++
		}

		// rally runs from the most recent trough, drawdown from the most
		// recent peak; whichever is newer defines the active move
		if lastTrough >= 0 && lastTrough >= lastPeak {
			rallyActive[i] = 1
			mag := safemath.Divide(closeC[i]-closeC[lastTrough], closeC[lastTrough], 0, 10, safemath.DefaultMinDenominator)
			dur := float64(i-lastTrough) + 1
			rallyMag[i] = mag
			rallyDur[i] = dur / 96
			rallyVel[i] = safemath.Divide(mag, dur, 0, 1, safemath.DefaultMinDenominator)
		}
		if lastPeak >= 0 && lastPeak > lastTrough {
			ddActive[i] = 1
			mag := safemath.Divide(closeC[lastPeak]-closeC[i], closeC[lastPeak], 0, 10, safemath.DefaultMinDenominator)
			dur := float64(i-lastPeak) + 1
			ddMag[i] = mag
			ddDur[i] = dur / 96
			ddVel[i] = safemath.Divide(mag, dur, 0, 1, safemath.DefaultMinDenominator)
		}
		last := lastPeak
		if lastTrough > last {
			last = lastTrough
		}
		if last >= 0 {
			tpAge[i] = float64(i-last) / 96
		}
	}

	e.setFeature(f, "rally_active", rallyActive, nil)
	e.setFeature(f, "rally_magnitude", rallyMag, nil)
	e.setFeature(f, "rally_duration", rallyDur, nil)
	e.setFeature(f, "rally_velocity", rallyVel, nil)
	e.setFeature(f, "drawdown_active", ddActive, nil)
	e.setFeature(f, "drawdown_magnitude", ddMag, nil)
	e.setFeature(f, "drawdown_duration", ddDur, nil)
	e.setFeature(f, "drawdown_velocity", ddVel, nil)

	// distance to rolling extrema over 1h/4h/12h/24h of 15m bars
	for _, w := range []int{4, 16, 48, 96} {
		hi := rollingMax(high, w)
		lo := rollingMin(low, w)
		dh := make([]float64, n)
		dl := make([]float64, n)
		for i := 0; i < n; i++ {
			dh[i] = safemath.Divide(hi[i]-closeC[i], closeC[i], 0, 1, safemath.DefaultMinDenominator)
			dl[i] = safemath.Divide(closeC[i]-lo[i], closeC[i], 0, 1, safemath.DefaultMinDenominator)
		}
		e.setFeature(f, featName("dist_from_high_%d", w), dh, checkLen(n, w))
		e.setFeature(f, featName("dist_from_low_%d", w), dl, checkLen(n, w))
	}

	// sigmoid probability of reaching a return threshold, driven by the
	// momentum/volatility ratio; an approximation, not a calibrated model
	ret1 := logReturns(closeC, 1)
	mom := rollingMean(ret1, 16)
	vol := rollingStd(ret1, 16)
	for _, th := range []float64{0.01, 0.02, 0.03} {
		prob := make([]float64, n)
		for i := 0; i < n; i++ {
			drive := safemath.Divide(mom[i]*16, th, 0, 50, safemath.DefaultMinDenominator)
			noise := safemath.Divide(vol[i]*4, th, 0, 50, safemath.DefaultMinDenominator)
			prob[i] = sigmoid(drive + noise - 1)
		}
		name := featName("reach_prob_%dpct", int(th*100))
		e.setFeature(f, name, prob, nil)
	}

	e.setFeature(f, "turning_point_age", tpAge, nil)
}

// turningPoints finds centered rolling-window local extrema indices.
func turningPoints(xs []float64, half int) (peaks, troughs []int) {
	n := len(xs)
	for i := half; i < n-half; i++ {
		isPeak, isTrough := true, true
		for j := i - half; j <= i+half; j++ {
			if j == i {
				continue
			}
			if xs[j] >= xs[i] {
				isPeak = false
			}
			if xs[j] <= xs[i] {
				isTrough = false
			}
		}
		if isPeak {
			peaks = append(peaks, i)
		}
		if isTrough {
			troughs = append(troughs, i)
		}
	}
	return peaks, troughs
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-safemath.Clip(x, -30, 30)))
}
