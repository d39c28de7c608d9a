package estimate

import (
	"encoding/json"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
)

// checkpoint is the JSON layout of a saved model. Weights are stored
// row-major so a checkpoint is portable across architectures with the
// same config.
type checkpoint struct {
	Config NetworkConfig `json:"config"`
	W1     []float64     `json:"w1"`
	W2     []float64     `json:"w2"`
	W3     []float64     `json:"w3"`
	B1     []float64     `json:"b1"`
	B2     []float64     `json:"b2"`
	B3     []float64     `json:"b3"`
	Scaler *Scaler       `json:"scaler"`
}

// Save writes the model to path as JSON.
func (m *Model) Save(path string) error {
	ckpt := checkpoint{
		Config: m.Net.cfg,
		W1:     rawCopy(m.Net.W1),
		W2:     rawCopy(m.Net.W2),
		W3:     rawCopy(m.Net.W3),
		B1:     m.Net.B1,
		B2:     m.Net.B2,
		B3:     m.Net.B3,
		Scaler: m.Scaler,
	}
	data, err := json.Marshal(ckpt)
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model to %s: %w", path, err)
	}
	return nil
}

// Load reads a model previously written by Save.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model from %s: %w", path, err)
	}
	var ckpt checkpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return nil, fmt.Errorf("failed to decode model %s: %w", path, err)
	}
	if ckpt.Scaler == nil {
		return nil, fmt.Errorf("model %s has no scaler", path)
	}

	cfg := ckpt.Config
	net := &Network{cfg: cfg}
	kc, kh := cfg.KernelSize*cfg.InputDim, cfg.KernelSize*cfg.HiddenSize
	if net.W1, err = denseFrom(kc, cfg.HiddenSize, ckpt.W1); err != nil {
		return nil, fmt.Errorf("model %s: w1: %w", path, err)
	}
	if net.W2, err = denseFrom(kh, cfg.HiddenSize, ckpt.W2); err != nil {
		return nil, fmt.Errorf("model %s: w2: %w", path, err)
	}
	if net.W3, err = denseFrom(cfg.HiddenSize, OutputDim, ckpt.W3); err != nil {
		return nil, fmt.Errorf("model %s: w3: %w", path, err)
	}
	net.B1, net.B2, net.B3 = ckpt.B1, ckpt.B2, ckpt.B3
	if len(net.B1) != cfg.HiddenSize || len(net.B2) != cfg.HiddenSize || len(net.B3) != OutputDim {
		return nil, fmt.Errorf("model %s: bias sizes do not match config", path)
	}
	return &Model{Net: net, Scaler: ckpt.Scaler}, nil
}

func rawCopy(m *mat.Dense) []float64 {
	raw := m.RawMatrix().Data
	out := make([]float64, len(raw))
	copy(out, raw)
	return out
}

func denseFrom(rows, cols int, data []float64) (*mat.Dense, error) {
	if len(data) != rows*cols {
		return nil, fmt.Errorf("have %d values, want %dx%d", len(data), rows, cols)
	}
	return mat.NewDense(rows, cols, data), nil
}
