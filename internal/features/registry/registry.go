// Package registry holds the authoritative ordered catalogue of features the
// model checkpoint was trained against. Changing the count or the order is a
// breaking change that requires a new checkpoint.
package registry

import (
	"fmt"

	applogger "github.com/obertruper/BOT-AI-V3-sub003/pkg/logger"
)

// RequiredFeatureCount is the production contract. The checkpoint loader
// cross-checks its declared input width against this value at startup.
const RequiredFeatureCount = 240

// Fallback values for features where zero is not a neutral reading.
var fallbacks = map[string]float64{
	"btc_correlation_24":   0.5,
	"btc_correlation_96":   0.5,
	"btc_beta_96":          1.0,
	"btc_volatility_ratio": 1.0,
}

// Registry is the ordered, named feature catalogue.
type Registry struct {
	names []string
	index map[string]int
	log   *applogger.Logger
}

// New builds the canonical registry and verifies the count invariant.
func New(log *applogger.Logger) (*Registry, error) {
	names := buildNames()
	if len(names) != RequiredFeatureCount {
		return nil, fmt.Errorf("feature registry: built %d names, contract requires %d", len(names), RequiredFeatureCount)
	}
	idx := make(map[string]int, len(names))
	for i, n := range names {
		if _, dup := idx[n]; dup {
			return nil, fmt.Errorf("feature registry: duplicate name %q", n)
		}
		idx[n] = i
	}
	return &Registry{names: names, index: idx, log: log}, nil
}

// Names returns the registry order. Callers must not mutate the slice.
func (r *Registry) Names() []string { return r.names }

// Size returns the feature count.
func (r *Registry) Size() int { return len(r.names) }

// Index returns the position of name, or -1 if unknown.
func (r *Registry) Index(name string) int {
	if i, ok := r.index[name]; ok {
		return i
	}
	return -1
}

// Fallback returns the value to use when a listed feature cannot be computed.
// Zero for everything except documented non-zero neutrals (correlation, beta).
func (r *Registry) Fallback(name string) float64 {
	if v, ok := fallbacks[name]; ok {
		return v
	}
	return 0
}

// Validate compares keys against the registry by length and per-position
// equality, logging every differing position before failing.
func (r *Registry) Validate(keys []string) error {
	if len(keys) != len(r.names) {
		if r.log != nil {
			r.log.Error("feature vector length mismatch",
				applogger.Int("got", len(keys)),
				applogger.Int("want", len(r.names)),
			)
		}
		return fmt.Errorf("feature vector has %d keys, registry requires %d", len(keys), len(r.names))
	}
	mismatches := 0
	for i, k := range keys {
		if k != r.names[i] {
			mismatches++
			if r.log != nil {
				r.log.Error("feature order mismatch",
					applogger.Int("position", i),
					applogger.String("got", k),
					applogger.String("want", r.names[i]),
				)
			}
		}
	}
	if mismatches > 0 {
		return fmt.Errorf("feature vector order differs from registry at %d positions", mismatches)
	}
	return nil
}

func buildNames() []string {
	names := make([]string, 0, RequiredFeatureCount)
	add := func(ns ...string) { names = append(names, ns...) }
	addw := func(format string, windows ...int) {
		for _, w := range windows {
			names = append(names, fmt.Sprintf(format, w))
		}
	}

	// Basic ratios (30)
	addw("ret_%d", 1, 2, 3, 4, 6, 8, 12, 16, 24, 32, 48, 64, 96)
	add("high_low_ratio", "close_open_ratio", "close_position")
	addw("close_position_%d", 8, 24, 96)
	addw("volume_ratio_%d", 8, 24, 48, 96)
	addw("turnover_ratio_%d", 24, 96)
	add("vwap_ratio", "vwap_dist")
	add("log_volume", "log_turnover", "volume_zscore_24")

	// Technical indicators (80)
	addw("sma_dist_%d", 8, 14, 20, 50, 100, 200)
	addw("sma_slope_%d", 20, 50)
	addw("ema_dist_%d", 8, 12, 20, 26, 50, 100)
	addw("ema_slope_%d", 20, 50)
	add("sma_cross_20_50", "ema_cross_12_26")
	addw("rsi_%d", 5, 7, 9, 14, 21, 28)
	add("stoch_k_14", "stoch_d_14", "stoch_k_21", "stoch_d_21", "stoch_diff")
	addw("williams_r_%d", 7, 14, 21)
	addw("cci_%d", 7, 14, 20, 28)
	addw("mfi_%d", 7, 14, 21)
	add("macd_norm", "macd_signal_norm", "macd_hist_norm", "macd_fast_norm", "macd_fast_hist_norm")
	add("adx_14", "plus_di_14", "minus_di_14", "di_diff")
	add("aroon_up", "aroon_down", "aroon_osc")
	add("psar_dist_atr", "psar_trend")
	addw("atr_norm_%d", 7, 14, 21, 28)
	for _, w := range []int{10, 20, 50} {
		add(fmt.Sprintf("bb_width_%d", w), fmt.Sprintf("bb_position_%d", w))
	}
	for _, w := range []int{10, 20, 50} {
		add(fmt.Sprintf("kc_width_%d", w), fmt.Sprintf("kc_position_%d", w))
	}
	for _, w := range []int{10, 20, 50} {
		add(fmt.Sprintf("dc_width_%d", w), fmt.Sprintf("dc_position_%d", w))
	}
	add("obv_norm", "obv_slope", "obv_zscore")
	addw("cmf_%d", 20, 50)

	// Microstructure (18)
	add("spread_proxy", "spread_ma_ratio",
		"order_imbalance", "order_imbalance_ma",
		"buy_volume_ratio", "sell_volume_ratio",
		"amihud_illiquidity", "amihud_ma", "kyle_lambda")
	addw("realized_vol_%d", 6, 12, 24, 48, 96)
	add("vol_of_vol", "price_impact", "toxicity", "signed_volume_ma")

	// Rally / drawdown (20)
	add("rally_active", "rally_magnitude", "rally_duration", "rally_velocity",
		"drawdown_active", "drawdown_magnitude", "drawdown_duration", "drawdown_velocity")
	addw("dist_from_high_%d", 4, 16, 48, 96)
	addw("dist_from_low_%d", 4, 16, 48, 96)
	add("reach_prob_1pct", "reach_prob_2pct", "reach_prob_3pct", "turning_point_age")

	// Signal quality (18)
	add("momentum_score", "momentum_score_fast",
		"trend_strength", "trend_consistency", "trend_acceleration",
		"overbought_score", "oversold_score",
		"bullish_divergence", "bearish_divergence",
		"rsi_divergence_score", "macd_divergence_score",
		"breakout_prob", "reversal_prob",
		"support_distance", "resistance_distance",
		"signal_agreement", "volume_confirmation", "consolidation_score")

	// Futures proxies (10)
	add("funding_rate_proxy", "funding_rate_ma",
		"open_interest_proxy", "oi_change_proxy", "oi_momentum_proxy",
		"long_short_ratio_proxy", "taker_buy_ratio_proxy", "taker_sell_ratio_proxy",
		"liquidation_risk_proxy", "basis_proxy")

	// Statistical / ML-optimized (42)
	add("hurst_exponent", "fractal_dimension", "return_entropy", "volume_entropy")
	addw("autocorr_%d", 1, 2, 3, 5, 10, 20)
	add("jump_detected", "jump_intensity")
	addw("zscore_%d", 8, 20, 50, 96)
	addw("skew_%d", 8, 20, 96)
	addw("kurtosis_%d", 8, 20, 96)
	add("engulfing_bull", "engulfing_bear", "doji", "hammer", "shooting_star",
		"morning_star", "evening_star", "three_white_soldiers", "three_black_crows")
	add("adaptive_momentum", "adaptive_volatility", "adaptive_trend", "volatility_ratio")
	add("vol_regime", "trend_regime", "momentum_regime", "volume_regime")
	add("quantile_pos_25", "quantile_pos_75", "return_sign_streak")

	// Temporal cyclic (14)
	add("hour_sin", "hour_cos", "dow_sin", "dow_cos",
		"week_sin", "week_cos", "month_sin", "month_cos")
	add("is_weekend", "is_month_start", "is_month_end", "is_quarter_end",
		"is_asia_session", "is_us_session")

	// Cross-asset (8)
	add("btc_correlation_24", "btc_correlation_96", "btc_beta_96",
		"btc_relative_return", "btc_corr_change", "btc_lead_return",
		"btc_volatility_ratio", "btc_return_divergence")

	return names
}
