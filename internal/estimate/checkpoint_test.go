package estimate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stride-data/gaitmoment/internal/timeutil"
)

func TestCheckpointRoundTrip(t *testing.T) {
	t.Parallel()

	cfg := TrainConfig{
		Epochs:       3,
		BatchSize:    8,
		LearningRate: 0.005,
		HiddenSize:   8,
		KernelSize:   3,
		Seed:         7,
	}
	samples := linearSamples(12, 10, 9)
	model, _, err := NewTrainer(cfg, timeutil.NewMockClock(time.Unix(0, 0))).Train(samples)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, model.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, model.Net.Config(), loaded.Net.Config())
	assert.Equal(t, model.Scaler.Min, loaded.Scaler.Min)
	assert.Equal(t, model.Scaler.Max, loaded.Scaler.Max)

	want, err := model.PredictSample(samples[0])
	require.NoError(t, err)
	got, err := loaded.PredictSample(samples[0])
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadRejectsCorruptCheckpoint(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"config":{"SeqLen":10}}`), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
