package features

import (
	"math"
	"sort"
)

// baseColumns are raw inputs exempt from indicator gap-filling.
var baseColumns = map[string]bool{
	"open": true, "high": true, "low": true,
	"close": true, "volume": true, "turnover": true,
}

// fillMissing is the cleanup stage that runs after all feature stages:
// forward-fill interior gaps in indicator columns, replace remaining NaN with
// zero and pull infinities back to the column's 1st/99th finite percentile.
func (e *Engineer) fillMissing(f *Frame) {
	for _, name := range f.Names() {
		if baseColumns[name] {
			continue
		}
		col, _ := f.Get(name)

		lo, hi, haveFinite := finitePercentiles(col)
		last := math.NaN()
		for i, v := range col {
			switch {
			case math.IsInf(v, 1):
				if haveFinite {
					col[i] = hi
				} else {
					col[i] = 0
				}
			case math.IsInf(v, -1):
				if haveFinite {
					col[i] = lo
				} else {
					col[i] = 0
				}
			case math.IsNaN(v):
				if !math.IsNaN(last) {
					col[i] = last
				} else {
					col[i] = 0
				}
			}
			last = col[i]
		}
	}
}

// finitePercentiles returns the 1st and 99th percentile of the finite values.
func finitePercentiles(xs []float64) (lo, hi float64, ok bool) {
	finite := make([]float64, 0, len(xs))
	for _, v := range xs {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return 0, 0, false
	}
	sort.Float64s(finite)
	n := len(finite)
	lo = finite[int(0.01*float64(n-1))]
	hi = finite[int(0.99*float64(n-1))]
	return lo, hi, true
}
