package signal

import (
	"fmt"
	"math"
	"time"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/domain/models"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/features/safemath"
)

// Interpreter decodes raw tensors into verdicts. Interpret is pure; the
// struct only carries the stop/take sizing configuration.
type Interpreter struct {
	riskReward  float64
	baseStopPct float64
}

// InterpreterOption configures an Interpreter.
type InterpreterOption func(*Interpreter)

// WithRiskReward sets the take-profit to stop-loss ratio.
func WithRiskReward(rr float64) InterpreterOption {
	return func(it *Interpreter) { it.riskReward = rr }
}

// WithBaseStopPct sets the stop-loss percentage at risk score 0.5.
func WithBaseStopPct(pct float64) InterpreterOption {
	return func(it *Interpreter) { it.baseStopPct = pct }
}

// NewInterpreter builds an interpreter with 2:1 reward/risk and a 1% base stop.
func NewInterpreter(opts ...InterpreterOption) *Interpreter {
	it := &Interpreter{riskReward: 2.0, baseStopPct: 1.0}
	for _, opt := range opts {
		opt(it)
	}
	return it
}

// Interpret decodes one tensor. The tensor length is validated against the
// layout; a malformed shape fails instead of producing a garbage verdict.
func (it *Interpreter) Interpret(symbol, exchange string, price float64, ts time.Time, raw models.RawModelOutput) (*models.Verdict, error) {
	if len(raw) != TensorSize {
		return nil, fmt.Errorf("signal: tensor has %d values, layout requires %d", len(raw), TensorSize)
	}

	details := make([]models.HorizonDetail, Horizons)
	votes := map[models.SignalType]float64{}
	for h := 0; h < Horizons; h++ {
		probs := softmax(horizonLogits(raw, h))
		winner, prob := 0, probs[0]
		for c := 1; c < DirectionClasses; c++ {
			if probs[c] > prob {
				winner, prob = c, probs[c]
			}
		}
		cls := ClassAt(winner)
		details[h] = models.HorizonDetail{
			Horizon:        HorizonLabels[h],
			ForecastReturn: horizonReturn(raw, h),
			Direction:      cls,
			Probability:    prob,
		}
		votes[cls] += HorizonWeights[h]
	}

	// strict plurality, otherwise NEUTRAL
	winner := models.SignalNeutral
	best, runnerUp := 0.0, 0.0
	for _, cls := range classBySlot {
		v := votes[cls]
		if v > best {
			runnerUp = best
			best = v
			winner = cls
		} else if v > runnerUp {
			runnerUp = v
		}
	}
	if best <= runnerUp {
		winner = models.SignalNeutral
	}

	agreeing, probSum := 0, 0.0
	for _, d := range details {
		if d.Direction == winner {
			agreeing++
			probSum += d.Probability
		}
	}
	confidence := 0.0
	if agreeing > 0 {
		confidence = probSum / float64(agreeing)
	}
	agreement := float64(agreeing) / Horizons

	riskScore := safemath.Clip(meanRisk(riskSlice(raw)), 0, 1)
	strength := safemath.Clip(0.5*confidence+0.3*agreement+0.2*(1-riskScore), 0, 1)

	v := &models.Verdict{
		Symbol:       symbol,
		Exchange:     exchange,
		Timestamp:    ts,
		SignalType:   winner,
		Confidence:   safemath.Clip(confidence, 0, 1),
		Strength:     strength,
		RiskLevel:    bucketRisk(riskScore),
		RiskScore:    riskScore,
		Horizons:     details,
		CurrentPrice: price,
	}
	if winner != models.SignalNeutral {
		stop := it.baseStopPct * (0.5 + riskScore)
		take := stop * it.riskReward
		v.StopLossPct = &stop
		v.TakeProfitPct = &take
	}
	return v, nil
}

func bucketRisk(score float64) models.RiskLevel {
	switch {
	case score < 0.3:
		return models.RiskLow
	case score < 0.7:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}

func meanRisk(xs []float64) float64 {
	s := 0.0
	for _, v := range xs {
		s += safemath.ReplaceNonFinite(v, 0)
	}
	return s / float64(len(xs))
}

// softmax with max subtraction for numeric stability.
func softmax(logits []float64) []float64 {
	maxL := logits[0]
	for _, v := range logits[1:] {
		if v > maxL {
			maxL = v
		}
	}
	out := make([]float64, len(logits))
	sum := 0.0
	for i, v := range logits {
		out[i] = math.Exp(safemath.Clip(v-maxL, -60, 0))
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
