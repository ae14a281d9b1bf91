package features

import (
	"github.com/obertruper/BOT-AI-V3-sub003/internal/features/safemath"
)

// crossAssetFeatures is stage 10: dependence on the market reference asset.
// When no reference provider is configured or it reports unavailable, the
// stage emits documented neutral values (correlation 0.5, beta 1.0).
func (e *Engineer) crossAssetFeatures(f *Frame) {
	n := f.Len()

	var ref []float64
	ok := false
	if e.reference != nil {
		ref, ok = e.reference(f.Times)
	}
	if !ok || len(ref) != n {
		for _, name := range []string{
			"btc_correlation_24", "btc_correlation_96", "btc_beta_96",
			"btc_relative_return", "btc_corr_change", "btc_lead_return",
			"btc_volatility_ratio", "btc_return_divergence",
		} {
			e.setFeature(f, name, fill(n, e.reg.Fallback(name)), nil)
		}
		return
	}

	closeC, _ := f.Get("close")
	ret := logReturns(closeC, 1)
	refRet := logReturns(ref, 1)

	corr24 := rollingCorr(ret, refRet, 24)
	corr96 := rollingCorr(ret, refRet, 96)
	e.setFeature(f, "btc_correlation_24", corr24, checkLen(n, 24))
	e.setFeature(f, "btc_correlation_96", corr96, checkLen(n, 96))

	beta := rollingSlope(refRet, ret, 96)
	clamped := make([]float64, n)
	for i := 0; i < n; i++ {
		clamped[i] = safemath.Clip(beta[i], -5, 5)
	}
	e.setFeature(f, "btc_beta_96", clamped, checkLen(n, 96))

	rel := make([]float64, n)
	divergence := make([]float64, n)
	lead := shift(refRet, 1)
	for i := 0; i < n; i++ {
		rel[i] = safemath.Clip(ret[i]-refRet[i], -1, 1)
		divergence[i] = safemath.Clip(ret[i]-clamped[i]*refRet[i], -1, 1)
	}
	e.setFeature(f, "btc_relative_return", rel, nil)
	e.setFeature(f, "btc_corr_change", diff(corr24, 8), nil)
	e.setFeature(f, "btc_lead_return", lead, nil)

	volSelf := rollingStd(ret, 48)
	volRef := rollingStd(refRet, 48)
	vr := make([]float64, n)
	for i := 0; i < n; i++ {
		vr[i] = safemath.Clip(safemath.Divide(volSelf[i], volRef[i], 1, 50, safemath.DefaultMinDenominator), 0, 10)
	}
	e.setFeature(f, "btc_volatility_ratio", vr, checkLen(n, 48))
	e.setFeature(f, "btc_return_divergence", divergence, nil)
}
