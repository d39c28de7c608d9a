package estimate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/stride-data/gaitmoment/internal/assemble"
)

// Metrics summarises prediction quality for one output channel, computed
// over every timestep of every evaluated step.
type Metrics struct {
	Channel  string  `json:"channel"`
	RMSE     float64 `json:"rmse"`
	MAE      float64 `json:"mae"`
	R2       float64 `json:"r2"`
	RelRMSE  float64 `json:"rel_rmse"` // RMSE over the observed label range, in percent
	Pearson  float64 `json:"pearson"`
	NumSteps int     `json:"num_steps"`
}

func (m Metrics) String() string {
	return fmt.Sprintf("%s: rmse=%.4f mae=%.4f r2=%.4f rrmse=%.2f%% r=%.4f (%d steps)",
		m.Channel, m.RMSE, m.MAE, m.R2, m.RelRMSE, m.Pearson, m.NumSteps)
}

// Evaluate predicts every labeled sample with the model and computes
// per-channel metrics against the labels. Channel names come from the
// moment ordering the assembler established.
func Evaluate(m *Model, samples []*assemble.StepSample, channels []string) ([]Metrics, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples to evaluate")
	}
	if len(channels) != OutputDim {
		return nil, fmt.Errorf("want %d channel names, got %d", OutputDim, len(channels))
	}

	truth := make([][]float64, OutputDim)
	pred := make([][]float64, OutputDim)
	for _, s := range samples {
		if !s.HasLabels() {
			return nil, fmt.Errorf("sample %s/%d has no labels", s.SessionID, s.StepID)
		}
		p, err := m.PredictSample(s)
		if err != nil {
			return nil, fmt.Errorf("predict %s/%d: %w", s.SessionID, s.StepID, err)
		}
		for t := range p {
			for j := 0; j < OutputDim; j++ {
				truth[j] = append(truth[j], s.Labels[t][j])
				pred[j] = append(pred[j], p[t][j])
			}
		}
	}

	out := make([]Metrics, OutputDim)
	for j := 0; j < OutputDim; j++ {
		out[j] = channelMetrics(channels[j], truth[j], pred[j])
		out[j].NumSteps = len(samples)
	}
	return out, nil
}

func channelMetrics(name string, truth, pred []float64) Metrics {
	n := float64(len(truth))
	var sse, sae float64
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range truth {
		diff := pred[i] - truth[i]
		sse += diff * diff
		sae += math.Abs(diff)
		if truth[i] < lo {
			lo = truth[i]
		}
		if truth[i] > hi {
			hi = truth[i]
		}
	}
	rmse := math.Sqrt(sse / n)

	mean := stat.Mean(truth, nil)
	var sst float64
	for _, v := range truth {
		sst += (v - mean) * (v - mean)
	}
	r2 := math.NaN()
	if sst > 0 {
		r2 = 1 - sse/sst
	}
	relRMSE := math.NaN()
	if hi > lo {
		relRMSE = rmse / (hi - lo) * 100
	}

	return Metrics{
		Channel: name,
		RMSE:    rmse,
		MAE:     sae / n,
		R2:      r2,
		RelRMSE: relRMSE,
		Pearson: stat.Correlation(truth, pred, nil),
	}
}
