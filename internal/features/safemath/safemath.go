// Package safemath provides the numerically-stable primitives every feature
// computation is built on. Divide is the only division used downstream, which
// is what keeps the whole pipeline free of NaN/Inf from arithmetic alone.
package safemath

import "math"

// DefaultMinDenominator is the floor applied to near-zero denominators.
const DefaultMinDenominator = 1e-10

// Divide divides num by den with three guarantees:
// (a) |den| < minDen is replaced by minDen with den's sign preserved,
// (b) the result is clipped to [-maxValue, maxValue],
// (c) a NaN or Inf result is replaced by fill.
func Divide(num, den, fill, maxValue, minDen float64) float64 {
	if minDen <= 0 {
		minDen = DefaultMinDenominator
	}
	if math.Abs(den) < minDen {
		if math.Signbit(den) {
			den = -minDen
		} else {
			den = minDen
		}
	}
	r := num / den
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return fill
	}
	return Clip(r, -maxValue, maxValue)
}

// Div is Divide with fill=0, maxValue=1e6 and the default denominator floor.
func Div(num, den float64) float64 {
	return Divide(num, den, 0, 1e6, DefaultMinDenominator)
}

// DivideSlice applies Divide element-wise. Slices must have equal length;
// the shorter length wins otherwise.
func DivideSlice(num, den []float64, fill, maxValue, minDen float64) []float64 {
	n := len(num)
	if len(den) < n {
		n = len(den)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = Divide(num[i], den[i], fill, maxValue, minDen)
	}
	return out
}

// Clip bounds v to [lo, hi].
func Clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ReplaceNonFinite returns fill when v is NaN or Inf, v otherwise.
func ReplaceNonFinite(v, fill float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fill
	}
	return v
}

// ReplaceNonFiniteSlice sanitizes a slice in place and returns it.
func ReplaceNonFiniteSlice(xs []float64, fill float64) []float64 {
	for i, v := range xs {
		xs[i] = ReplaceNonFinite(v, fill)
	}
	return xs
}

// IsFinite reports whether v is neither NaN nor Inf.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
