package features

import (
	"math"
	"sort"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/features/safemath"
)

// Rolling-window primitives over float64 slices. All return a slice of the
// input length; positions with an incomplete window repeat the first full
// value (leading warm-up) so downstream stages never see NaN.

func rollingApply(xs []float64, window int, fn func(win []float64) float64) []float64 {
	n := len(xs)
	out := make([]float64, n)
	if window < 1 {
		window = 1
	}
	firstFull := -1
	for i := 0; i < n; i++ {
		lo := i - window + 1
		if lo < 0 {
			continue
		}
		out[i] = safemath.ReplaceNonFinite(fn(xs[lo:i+1]), 0)
		if firstFull < 0 {
			firstFull = i
		}
	}
	if firstFull > 0 {
		for i := 0; i < firstFull; i++ {
			out[i] = out[firstFull]
		}
	}
	return out
}

func rollingMean(xs []float64, window int) []float64 {
	return rollingApply(xs, window, func(w []float64) float64 {
		s := 0.0
		for _, v := range w {
			s += v
		}
		return s / float64(len(w))
	})
}

func rollingSum(xs []float64, window int) []float64 {
	return rollingApply(xs, window, func(w []float64) float64 {
		s := 0.0
		for _, v := range w {
			s += v
		}
		return s
	})
}

func rollingStd(xs []float64, window int) []float64 {
	return rollingApply(xs, window, func(w []float64) float64 {
		n := float64(len(w))
		if n < 2 {
			return 0
		}
		mean, sum2 := 0.0, 0.0
		for _, v := range w {
			mean += v
		}
		mean /= n
		for _, v := range w {
			d := v - mean
			sum2 += d * d
		}
		return math.Sqrt(sum2 / (n - 1))
	})
}

func rollingMax(xs []float64, window int) []float64 {
	return rollingApply(xs, window, func(w []float64) float64 {
		m := w[0]
		for _, v := range w[1:] {
			if v > m {
				m = v
			}
		}
		return m
	})
}

func rollingMin(xs []float64, window int) []float64 {
	return rollingApply(xs, window, func(w []float64) float64 {
		m := w[0]
		for _, v := range w[1:] {
			if v < m {
				m = v
			}
		}
		return m
	})
}

func rollingQuantile(xs []float64, window int, q float64) []float64 {
	return rollingApply(xs, window, func(w []float64) float64 {
		tmp := append([]float64(nil), w...)
		sort.Float64s(tmp)
		pos := q * float64(len(tmp)-1)
		lo := int(math.Floor(pos))
		hi := int(math.Ceil(pos))
		if lo == hi {
			return tmp[lo]
		}
		frac := pos - float64(lo)
		return tmp[lo]*(1-frac) + tmp[hi]*frac
	})
}

func rollingSkew(xs []float64, window int) []float64 {
	return rollingApply(xs, window, func(w []float64) float64 {
		n := float64(len(w))
		if n < 3 {
			return 0
		}
		mean := 0.0
		for _, v := range w {
			mean += v
		}
		mean /= n
		m2, m3 := 0.0, 0.0
		for _, v := range w {
			d := v - mean
			m2 += d * d
			m3 += d * d * d
		}
		m2 /= n
		m3 /= n
		if m2 <= 0 {
			return 0
		}
		return safemath.Clip(m3/math.Pow(m2, 1.5), -10, 10)
	})
}

func rollingKurtosis(xs []float64, window int) []float64 {
	return rollingApply(xs, window, func(w []float64) float64 {
		n := float64(len(w))
		if n < 4 {
			return 0
		}
		mean := 0.0
		for _, v := range w {
			mean += v
		}
		mean /= n
		m2, m4 := 0.0, 0.0
		for _, v := range w {
			d := v - mean
			m2 += d * d
			m4 += d * d * d * d
		}
		m2 /= n
		m4 /= n
		if m2 <= 0 {
			return 0
		}
		// excess kurtosis
		return safemath.Clip(m4/(m2*m2)-3, -10, 50)
	})
}

// ema computes an exponential moving average seeded with the first value.
func ema(xs []float64, period int) []float64 {
	n := len(xs)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	if period < 1 {
		period = 1
	}
	alpha := 2.0 / (float64(period) + 1)
	out[0] = xs[0]
	for i := 1; i < n; i++ {
		out[i] = alpha*xs[i] + (1-alpha)*out[i-1]
	}
	return out
}

// shift moves values forward by k (positive k looks back); vacated slots
// repeat the first available value.
func shift(xs []float64, k int) []float64 {
	n := len(xs)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		j := i - k
		if j < 0 {
			j = 0
		} else if j >= n {
			j = n - 1
		}
		out[i] = xs[j]
	}
	return out
}

// diff returns xs[i]-xs[i-k] with zero warm-up.
func diff(xs []float64, k int) []float64 {
	n := len(xs)
	out := make([]float64, n)
	for i := k; i < n; i++ {
		out[i] = xs[i] - xs[i-k]
	}
	return out
}

// logReturns computes ln(x_i / x_{i-k}) with a zero warm-up prefix.
func logReturns(xs []float64, k int) []float64 {
	n := len(xs)
	out := make([]float64, n)
	for i := k; i < n; i++ {
		prev, cur := xs[i-k], xs[i]
		if prev <= 0 || cur <= 0 {
			continue
		}
		out[i] = safemath.ReplaceNonFinite(math.Log(cur/prev), 0)
	}
	return out
}

func fill(n int, v float64) []float64 {
	out := make([]float64, n)
	if v != 0 {
		for i := range out {
			out[i] = v
		}
	}
	return out
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, v := range xs {
		s += v
	}
	return s / float64(len(xs))
}

func stdOf(xs []float64) float64 {
	n := float64(len(xs))
	if n < 2 {
		return 0
	}
	mean := meanOf(xs)
	sum2 := 0.0
	for _, v := range xs {
		d := v - mean
		sum2 += d * d
	}
	return math.Sqrt(sum2 / (n - 1))
}
