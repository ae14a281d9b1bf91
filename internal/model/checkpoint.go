// Package model loads the pretrained checkpoint and runs inference over a
// scaled feature window. The checkpoint is a JSON artifact exported from the
// training pipeline; weights are plain row-major matrices.
package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// requiredOutputSize is the flat output layout the interpreter consumes:
// 4 horizon returns, 4x3 direction logits, 4 risk metrics.
const requiredOutputSize = 20

// ScalerParams is the robust-scaler state the model was trained with.
type ScalerParams struct {
	Median []float64 `json:"median"`
	IQR    []float64 `json:"iqr"`
}

// GRUWeights holds one GRU layer with gates stacked reset/update/new,
// so each matrix has 3*HiddenSize rows.
type GRUWeights struct {
	WIH [][]float64 `json:"w_ih"`
	WHH [][]float64 `json:"w_hh"`
	BIH []float64   `json:"b_ih"`
	BHH []float64   `json:"b_hh"`
}

// DenseWeights is the output head applied to the final hidden state.
type DenseWeights struct {
	Weight [][]float64 `json:"weight"`
	Bias   []float64   `json:"bias"`
}

// Checkpoint is the on-disk model artifact.
type Checkpoint struct {
	Version       string       `json:"version"`
	InputSize     int          `json:"input_size"`
	ContextLength int          `json:"context_length"`
	HiddenSize    int          `json:"hidden_size"`
	OutputSize    int          `json:"output_size"`
	Scaler        ScalerParams `json:"scaler"`
	GRU           GRUWeights   `json:"gru"`
	Head          DenseWeights `json:"head"`
}

// LoadCheckpoint reads and structurally validates a checkpoint file.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint read %s: %w", path, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("checkpoint parse %s: %w", path, err)
	}
	if err := cp.Validate(); err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", path, err)
	}
	return &cp, nil
}

// Validate checks internal shape consistency of all weight matrices against
// the declared sizes.
func (cp *Checkpoint) Validate() error {
	if cp.InputSize <= 0 || cp.HiddenSize <= 0 || cp.ContextLength <= 0 {
		return fmt.Errorf("non-positive dimensions: input=%d hidden=%d context=%d",
			cp.InputSize, cp.HiddenSize, cp.ContextLength)
	}
	if cp.OutputSize != requiredOutputSize {
		return fmt.Errorf("output size %d, runtime requires %d", cp.OutputSize, requiredOutputSize)
	}

	gateRows := 3 * cp.HiddenSize
	if err := checkMatrix("gru.w_ih", cp.GRU.WIH, gateRows, cp.InputSize); err != nil {
		return err
	}
	if err := checkMatrix("gru.w_hh", cp.GRU.WHH, gateRows, cp.HiddenSize); err != nil {
		return err
	}
	if len(cp.GRU.BIH) != gateRows {
		return fmt.Errorf("gru.b_ih has %d values, want %d", len(cp.GRU.BIH), gateRows)
	}
	if len(cp.GRU.BHH) != gateRows {
		return fmt.Errorf("gru.b_hh has %d values, want %d", len(cp.GRU.BHH), gateRows)
	}
	if err := checkMatrix("head.weight", cp.Head.Weight, cp.OutputSize, cp.HiddenSize); err != nil {
		return err
	}
	if len(cp.Head.Bias) != cp.OutputSize {
		return fmt.Errorf("head.bias has %d values, want %d", len(cp.Head.Bias), cp.OutputSize)
	}

	if len(cp.Scaler.Median) != cp.InputSize || len(cp.Scaler.IQR) != cp.InputSize {
		return fmt.Errorf("scaler has %d/%d params, want %d",
			len(cp.Scaler.Median), len(cp.Scaler.IQR), cp.InputSize)
	}
	return nil
}

func checkMatrix(name string, m [][]float64, rows, cols int) error {
	if len(m) != rows {
		return fmt.Errorf("%s has %d rows, want %d", name, len(m), rows)
	}
	for i, row := range m {
		if len(row) != cols {
			return fmt.Errorf("%s row %d has %d cols, want %d", name, i, len(row), cols)
		}
	}
	return nil
}
