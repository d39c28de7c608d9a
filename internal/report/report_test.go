package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stride-data/gaitmoment/internal/assemble"
	"github.com/stride-data/gaitmoment/internal/estimate"
	"github.com/stride-data/gaitmoment/internal/imu"
	"github.com/stride-data/gaitmoment/internal/timeutil"
)

func trainedModel(t *testing.T) (*estimate.Model, []*assemble.StepSample, []float64) {
	t.Helper()
	samples := make([]*assemble.StepSample, 0, 12)
	for s := 0; s < 12; s++ {
		inputs := make([][]float64, 20)
		labels := make([][]float64, 20)
		for i := range inputs {
			x := float64(i) / 19
			inputs[i] = []float64{x, 1 - x, 0.5}
			labels[i] = []float64{x - 0.5, 0.5 - x}
		}
		samples = append(samples, &assemble.StepSample{
			SessionID: "sess", SubjectID: "subj", StepID: s,
			Inputs: inputs, Labels: labels,
		})
	}
	tr := estimate.NewTrainer(estimate.TrainConfig{
		Epochs: 3, BatchSize: 4, LearningRate: 0.01,
		HiddenSize: 4, KernelSize: 3, Seed: 1,
	}, timeutil.NewMockClock(time.Unix(0, 0)))
	model, losses, err := tr.Train(samples)
	require.NoError(t, err)
	return model, samples, losses
}

func TestWriteCurvePlots(t *testing.T) {
	t.Parallel()

	model, samples, _ := trainedModel(t)
	dir := t.TempDir()
	require.NoError(t, WriteCurvePlots(dir, model, samples, imu.MomentChannels))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	// Four plots per channel: best, median, worst, band.
	assert.Len(t, names, 8)
	for _, tag := range []string{"best", "median", "worst", "band"} {
		assert.Contains(t, names, "knee_adduction_moment_"+tag+".png")
		assert.Contains(t, names, "knee_flexion_moment_"+tag+".png")
	}
}

func TestWriteCurvePlotsNoLabels(t *testing.T) {
	t.Parallel()

	model, samples, _ := trainedModel(t)
	for _, s := range samples {
		s.Labels = nil
	}
	err := WriteCurvePlots(t.TempDir(), model, samples, imu.MomentChannels)
	assert.Error(t, err)
}

func TestWriteLossChart(t *testing.T) {
	t.Parallel()

	_, _, losses := trainedModel(t)
	file := filepath.Join(t.TempDir(), "loss.html")
	require.NoError(t, WriteLossChart(file, losses))

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "Training Loss"))
}

func TestWriteLossChartEmpty(t *testing.T) {
	t.Parallel()

	assert.Error(t, WriteLossChart(filepath.Join(t.TempDir(), "loss.html"), nil))
}
