package features

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/features/safemath"
	applogger "github.com/obertruper/BOT-AI-V3-sub003/pkg/logger"
)

// scaleClip bounds scaled values so a single corrupt input cannot dominate
// the model context.
const scaleClip = 20.0

// RobustScaler centers by the median and scales by the interquartile range,
// per feature column.
type RobustScaler struct {
	Median []float64 `json:"median"`
	IQR    []float64 `json:"iqr"`
}

// NewRobustScaler wraps pretrained parameters, validating their shape.
func NewRobustScaler(median, iqr []float64) (*RobustScaler, error) {
	if len(median) == 0 || len(median) != len(iqr) {
		return nil, fmt.Errorf("scaler: median/iqr length mismatch (%d vs %d)", len(median), len(iqr))
	}
	return &RobustScaler{Median: median, IQR: iqr}, nil
}

// FitRobust estimates parameters from a row-major matrix.
func FitRobust(rows [][]float64) (*RobustScaler, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("scaler: cannot fit on empty matrix")
	}
	width := len(rows[0])
	median := make([]float64, width)
	iqr := make([]float64, width)
	col := make([]float64, len(rows))
	for j := 0; j < width; j++ {
		for i, row := range rows {
			if len(row) != width {
				return nil, fmt.Errorf("scaler: ragged matrix at row %d", i)
			}
			col[i] = row[j]
		}
		sort.Float64s(col)
		median[j] = quantileSorted(col, 0.5)
		iqr[j] = quantileSorted(col, 0.75) - quantileSorted(col, 0.25)
	}
	return &RobustScaler{Median: median, IQR: iqr}, nil
}

// Width returns the number of feature columns the scaler was fitted on.
func (s *RobustScaler) Width() int { return len(s.Median) }

// Transform scales one row in place-safe fashion and returns a new slice.
func (s *RobustScaler) Transform(row []float64) ([]float64, error) {
	if len(row) != len(s.Median) {
		return nil, fmt.Errorf("scaler: row width %d, fitted width %d", len(row), len(s.Median))
	}
	out := make([]float64, len(row))
	for j, v := range row {
		scaled := safemath.Divide(v-s.Median[j], s.IQR[j], 0, scaleClip, safemath.DefaultMinDenominator)
		out[j] = safemath.Clip(safemath.ReplaceNonFinite(scaled, 0), -scaleClip, scaleClip)
	}
	return out, nil
}

// TransformMatrix scales a row-major matrix.
func (s *RobustScaler) TransformMatrix(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		t, err := s.Transform(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = t
	}
	return out, nil
}

type scalerKey struct {
	symbol string
	cutoff int64
}

// ScalerStore owns scaler state per symbol. Walk-forward fits are keyed by
// their cutoff time, so refitting with a longer history never rewrites the
// parameters an earlier cutoff produced.
type ScalerStore struct {
	mu         sync.RWMutex
	pretrained *RobustScaler
	fitted     map[scalerKey]*RobustScaler
	log        *applogger.Logger
}

// NewScalerStore builds an empty store.
func NewScalerStore(log *applogger.Logger) *ScalerStore {
	return &ScalerStore{
		fitted: make(map[scalerKey]*RobustScaler),
		log:    log,
	}
}

// SetPretrained installs the checkpoint's scaler, used for all inference.
func (st *ScalerStore) SetPretrained(s *RobustScaler) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.pretrained = s
}

// Pretrained returns the inference scaler, or nil if none was loaded.
func (st *ScalerStore) Pretrained() *RobustScaler {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.pretrained
}

// FitUpTo fits (or returns the cached) scaler using only the frame rows
// strictly before cutoff. Rows at or after the cutoff never leak into the
// parameters.
func (st *ScalerStore) FitUpTo(symbol string, cutoff time.Time, f *Frame, names []string) (*RobustScaler, error) {
	key := scalerKey{symbol: symbol, cutoff: cutoff.UnixNano()}
	st.mu.RLock()
	if s, ok := st.fitted[key]; ok {
		st.mu.RUnlock()
		return s, nil
	}
	st.mu.RUnlock()

	limit := 0
	for limit < f.Len() && f.Times[limit].Before(cutoff) {
		limit++
	}
	if limit == 0 {
		return nil, fmt.Errorf("scaler: no rows before cutoff %s for %s", cutoff.Format(time.RFC3339), symbol)
	}
	rows := make([][]float64, limit)
	for i := 0; i < limit; i++ {
		rows[i] = f.Row(i, names)
	}
	s, err := FitRobust(rows)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	if prev, ok := st.fitted[key]; ok {
		st.mu.Unlock()
		return prev, nil
	}
	st.fitted[key] = s
	st.mu.Unlock()

	if st.log != nil {
		st.log.Debug("walk-forward scaler fitted",
			applogger.String("symbol", symbol),
			applogger.Time("cutoff", cutoff),
			applogger.Int("rows", limit),
		)
	}
	return s, nil
}

func quantileSorted(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}
