package estimate

import (
	"fmt"
	"math"

	"github.com/stride-data/gaitmoment/internal/assemble"
)

// Scaler holds per-channel min/max ranges fitted on training inputs and
// maps each channel into [0, 1]. Fitting on the training split only keeps
// held-out subjects out of the normalisation statistics.
type Scaler struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

// FitScaler computes per-channel ranges over every timestep of every
// sample.
func FitScaler(samples []*assemble.StepSample) (*Scaler, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples to fit scaler on")
	}
	c := len(samples[0].Inputs[0])
	s := &Scaler{
		Min: make([]float64, c),
		Max: make([]float64, c),
	}
	for i := 0; i < c; i++ {
		s.Min[i] = math.Inf(1)
		s.Max[i] = math.Inf(-1)
	}
	for _, sample := range samples {
		for _, row := range sample.Inputs {
			if len(row) != c {
				return nil, fmt.Errorf("sample %s/%d has %d channels, want %d",
					sample.SessionID, sample.StepID, len(row), c)
			}
			for i, v := range row {
				if v < s.Min[i] {
					s.Min[i] = v
				}
				if v > s.Max[i] {
					s.Max[i] = v
				}
			}
		}
	}
	return s, nil
}

// Transform returns a scaled copy of the input sequence. Channels with a
// degenerate range pass through at zero rather than dividing by it.
func (s *Scaler) Transform(inputs [][]float64) [][]float64 {
	out := make([][]float64, len(inputs))
	for t, row := range inputs {
		scaled := make([]float64, len(row))
		for i, v := range row {
			span := s.Max[i] - s.Min[i]
			if span > 0 {
				scaled[i] = (v - s.Min[i]) / span
			}
		}
		out[t] = scaled
	}
	return out
}

// Channels returns the number of channels the scaler was fitted on.
func (s *Scaler) Channels() int { return len(s.Min) }
