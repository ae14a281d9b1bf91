package features

import (
	"github.com/obertruper/BOT-AI-V3-sub003/internal/features/safemath"
)

// targetHorizons are the label horizons in 15-minute bars (15m/1h/4h/12h).
var targetHorizons = []int{1, 4, 16, 48}

// targetVariables is the training-only stage: forward returns and their
// direction labels. It looks ahead, so it must never run in inference mode.
// The trailing rows that have no future data are left at zero.
func (e *Engineer) targetVariables(f *Frame) {
	closeC, _ := f.Get("close")
	n := f.Len()

	for _, h := range targetHorizons {
		future := make([]float64, n)
		dir := make([]float64, n)
		for i := 0; i+h < n; i++ {
			r := safemath.Divide(closeC[i+h]-closeC[i], closeC[i], 0, 10, safemath.DefaultMinDenominator)
			future[i] = r
			switch {
			case r > 0.001:
				dir[i] = 1
			case r < -0.001:
				dir[i] = -1
			}
		}
		e.setFeature(f, featName("target_return_%d", h), future, nil)
		e.setFeature(f, featName("target_direction_%d", h), dir, nil)
	}
}
