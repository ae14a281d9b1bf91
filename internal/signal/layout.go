// Package signal decodes raw model tensors into verdicts and guards the
// output stream with caching and diversity monitoring.
package signal

import (
	"github.com/obertruper/BOT-AI-V3-sub003/internal/domain/models"
)

// Tensor layout constants. These mirror the training export exactly; a
// change on either side requires a matching change on the other.
const (
	Horizons         = 4
	DirectionClasses = 3
	RiskMetrics      = 4

	returnsOffset = 0
	logitsOffset  = Horizons
	riskOffset    = Horizons + Horizons*DirectionClasses

	// TensorSize is the required RawModelOutput length.
	TensorSize = riskOffset + RiskMetrics
)

// HorizonLabels name the forecast offsets, nearest first.
var HorizonLabels = [Horizons]string{"15m", "1h", "4h", "12h"}

// HorizonWeights weight the per-horizon vote, nearest horizons heavier.
var HorizonWeights = [Horizons]float64{0.4, 0.3, 0.2, 0.1}

// classBySlot is the trained label-encoder mapping. Verified against the
// checkpoint export; positional assumptions are forbidden elsewhere.
var classBySlot = [DirectionClasses]models.SignalType{
	models.SignalLong,
	models.SignalShort,
	models.SignalNeutral,
}

// ClassAt maps a logit slot to its signal class.
func ClassAt(slot int) models.SignalType { return classBySlot[slot] }

func horizonReturn(raw models.RawModelOutput, h int) float64 {
	return raw[returnsOffset+h]
}

func horizonLogits(raw models.RawModelOutput, h int) []float64 {
	start := logitsOffset + h*DirectionClasses
	return raw[start : start+DirectionClasses]
}

func riskSlice(raw models.RawModelOutput) []float64 {
	return raw[riskOffset : riskOffset+RiskMetrics]
}
