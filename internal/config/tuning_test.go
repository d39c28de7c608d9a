package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	c := EmptyTuningConfig()
	assert.Equal(t, 0.0, c.GetTargetRateHz())
	assert.Equal(t, 11, c.GetFilterWindow())
	assert.Equal(t, 3, c.GetFilterOrder())
	assert.Equal(t, 100.0, c.GetGapThresholdMs())
	assert.Equal(t, 3, c.GetMinStreamSamples())
	assert.Equal(t, "", c.GetReferenceSensor())
	assert.Equal(t, 2000.0, c.GetMinOverlapMs())
	assert.False(t, c.GetCorrelationAlign())
	assert.Equal(t, 500.0, c.GetMaxLagMs())
	assert.Equal(t, "R_SHANK", c.GetDetectionSensor())
	assert.Equal(t, 250.0, c.GetDetectionWindowMs())
	assert.Equal(t, 500.0, c.GetMinStepIntervalMs())
	assert.Equal(t, 2.0, c.GetDetectionThreshold())
	assert.Equal(t, 4, c.GetMinSteps())
	assert.Equal(t, 100, c.GetCanonicalLength())
	assert.Equal(t, 4, c.GetWorkers())
	assert.Equal(t, 30, c.GetEpochs())
	assert.Equal(t, 20, c.GetBatchSize())
	assert.Equal(t, 1e-3, c.GetLearningRate())
	assert.Equal(t, 1e-5, c.GetWeightDecay())
	assert.Equal(t, 32, c.GetHiddenSize())
	assert.Equal(t, 5, c.GetKernelSize())
	assert.Equal(t, int64(42), c.GetSeed())
}

func TestLoadTuningConfigPartial(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "tuning.json", `{
		"filter_window": 21,
		"detection_threshold": 1.5,
		"hidden_size": 64
	}`)
	c, err := LoadTuningConfig(path)
	require.NoError(t, err)

	// Overridden fields.
	assert.Equal(t, 21, c.GetFilterWindow())
	assert.Equal(t, 1.5, c.GetDetectionThreshold())
	assert.Equal(t, 64, c.GetHiddenSize())
	// Everything else keeps its default.
	assert.Equal(t, 3, c.GetFilterOrder())
	assert.Equal(t, 100, c.GetCanonicalLength())
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "tuning.yaml", "filter_window: 21")
	_, err := LoadTuningConfig(path)
	assert.ErrorContains(t, err, ".json")
}

func TestLoadTuningConfigMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadTuningConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadTuningConfigBadJSON(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "tuning.json", "{not json")
	_, err := LoadTuningConfig(path)
	assert.ErrorContains(t, err, "parse")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	bad := func(mutate func(c *TuningConfig)) error {
		c := EmptyTuningConfig()
		mutate(c)
		return c.Validate()
	}

	f := func(v float64) *float64 { return &v }
	i := func(v int) *int { return &v }

	assert.Error(t, bad(func(c *TuningConfig) { c.TargetRateHz = f(-100) }))
	assert.Error(t, bad(func(c *TuningConfig) { c.FilterWindow = i(10) }), "even window")
	assert.Error(t, bad(func(c *TuningConfig) { c.FilterWindow = i(1) }), "too small")
	assert.Error(t, bad(func(c *TuningConfig) { c.FilterWindow = i(5); c.FilterOrder = i(5) }))
	assert.Error(t, bad(func(c *TuningConfig) { c.MinStepIntervalMs = f(0) }))
	assert.Error(t, bad(func(c *TuningConfig) { c.CanonicalLength = i(1) }))
	assert.Error(t, bad(func(c *TuningConfig) { c.BatchSize = i(0) }))
	assert.Error(t, bad(func(c *TuningConfig) { c.LearningRate = f(0) }))

	assert.NoError(t, EmptyTuningConfig().Validate())
}
