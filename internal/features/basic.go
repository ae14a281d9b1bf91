package features

import (
	"math"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/features/safemath"
)

var retWindows = []int{1, 2, 3, 4, 6, 8, 12, 16, 24, 32, 48, 64, 96}

// basicFeatures is stage 2: log returns, candle shape ratios, volume and
// turnover ratios against rolling means, and the triple-clamped VWAP.
func (e *Engineer) basicFeatures(f *Frame) {
	closeC, _ := f.Get("close")
	open, _ := f.Get("open")
	high, _ := f.Get("high")
	low, _ := f.Get("low")
	volume, _ := f.Get("volume")
	turnover, _ := f.Get("turnover")
	n := f.Len()

	for _, w := range retWindows {
		e.setFeature(f, featName("ret_%d", w), logReturns(closeC, w), nil)
	}

	hl := make([]float64, n)
	co := make([]float64, n)
	cp := make([]float64, n)
	for i := 0; i < n; i++ {
		hl[i] = safemath.Divide(high[i], low[i], 1, 100, safemath.DefaultMinDenominator)
		co[i] = safemath.Divide(closeC[i], open[i], 1, 100, safemath.DefaultMinDenominator)
		cp[i] = safemath.Divide(closeC[i]-low[i], high[i]-low[i], 0.5, 1, safemath.DefaultMinDenominator)
		cp[i] = safemath.Clip(cp[i], 0, 1)
	}
	e.setFeature(f, "high_low_ratio", hl, nil)
	e.setFeature(f, "close_open_ratio", co, nil)
	e.setFeature(f, "close_position", cp, nil)

	for _, w := range []int{8, 24, 96} {
		hiW := rollingMax(high, w)
		loW := rollingMin(low, w)
		pos := make([]float64, n)
		for i := 0; i < n; i++ {
			pos[i] = safemath.Clip(safemath.Divide(closeC[i]-loW[i], hiW[i]-loW[i], 0.5, 1, safemath.DefaultMinDenominator), 0, 1)
		}
		e.setFeature(f, featName("close_position_%d", w), pos, nil)
	}

	for _, w := range []int{8, 24, 48, 96} {
		ma := rollingMean(volume, w)
		ratio := make([]float64, n)
		for i := 0; i < n; i++ {
			ratio[i] = safemath.Divide(volume[i], ma[i], 1, 100, safemath.DefaultMinDenominator)
		}
		e.setFeature(f, featName("volume_ratio_%d", w), ratio, nil)
	}
	for _, w := range []int{24, 96} {
		ma := rollingMean(turnover, w)
		ratio := make([]float64, n)
		for i := 0; i < n; i++ {
			ratio[i] = safemath.Divide(turnover[i], ma[i], 1, 100, safemath.DefaultMinDenominator)
		}
		e.setFeature(f, featName("turnover_ratio_%d", w), ratio, nil)
	}

	vwap := e.computeVWAP(closeC, volume, turnover)
	vwapRatio := make([]float64, n)
	vwapDist := make([]float64, n)
	for i := 0; i < n; i++ {
		vwapRatio[i] = safemath.Divide(vwap[i], closeC[i], 1, 2, safemath.DefaultMinDenominator)
		vwapDist[i] = safemath.Divide(closeC[i]-vwap[i], vwap[i], 0, 1, safemath.DefaultMinDenominator)
	}
	e.setFeature(f, "vwap_ratio", vwapRatio, nil)
	e.setFeature(f, "vwap_dist", vwapDist, nil)

	logVol := make([]float64, n)
	logTurn := make([]float64, n)
	for i := 0; i < n; i++ {
		logVol[i] = math.Log1p(math.Max(volume[i], 0))
		logTurn[i] = math.Log1p(math.Max(turnover[i], 0))
	}
	e.setFeature(f, "log_volume", logVol, nil)
	e.setFeature(f, "log_turnover", logTurn, nil)

	volMean := rollingMean(volume, 24)
	volStd := rollingStd(volume, 24)
	vz := make([]float64, n)
	for i := 0; i < n; i++ {
		vz[i] = safemath.Divide(volume[i]-volMean[i], volStd[i], 0, 10, safemath.DefaultMinDenominator)
	}
	e.setFeature(f, "volume_zscore_24", vz, nil)
}

// computeVWAP derives turnover/volume with a three-stage clamp. VWAP on
// illiquid symbols can diverge wildly; the staged clamp keeps the feature
// within close±5% no matter what the raw quotient says.
func (e *Engineer) computeVWAP(closeC, volume, turnover []float64) []float64 {
	n := len(closeC)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		c := closeC[i]
		v := safemath.Divide(turnover[i], volume[i], c, 1e12, safemath.DefaultMinDenominator)
		// clamp 1: close +/-100%
		v = safemath.Clip(v, 0, 2*c)
		// clamp 2: close +/-30%
		v = safemath.Clip(v, 0.7*c, 1.3*c)
		// clamp 3: anything still outside +/-5% is replaced by close
		if c > 0 && math.Abs(v/c-1) > 0.05 {
			v = c
		}
		out[i] = v
	}
	return out
}
