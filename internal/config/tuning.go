// Package config holds the tuning parameters for the gait pipeline and the
// moment estimator. All thresholds that vary between sensor placements and
// subject populations live here rather than being hard-coded in the stages.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TuningConfig represents the root configuration for pipeline and training
// parameters. Fields are pointers so a partial JSON file only overrides what
// it names; the Get* methods supply defaults for everything else.
type TuningConfig struct {
	// Signal conditioner params
	TargetRateHz     *float64 `json:"target_rate_hz,omitempty"`
	FilterWindow     *int     `json:"filter_window,omitempty"`      // Savitzky-Golay window (odd, samples)
	FilterOrder      *int     `json:"filter_order,omitempty"`       // polynomial order
	GapThresholdMs   *float64 `json:"gap_threshold_ms,omitempty"`   // gaps longer than this split the stream
	MinStreamSamples *int     `json:"min_stream_samples,omitempty"` // below this, conditioning fails

	// Synchronizer params
	ReferenceSensor  *string  `json:"reference_sensor,omitempty"` // empty: slowest-rate sensor
	MinOverlapMs     *float64 `json:"min_overlap_ms,omitempty"`
	CorrelationAlign *bool    `json:"correlation_align,omitempty"` // estimate inter-stream lag via cross-correlation
	MaxLagMs         *float64 `json:"max_lag_ms,omitempty"`        // lag search bound for correlation alignment

	// Step segmenter params
	DetectionSensor    *string  `json:"detection_sensor,omitempty"` // segment whose gyro drives event detection
	DetectionWindowMs  *float64 `json:"detection_window_ms,omitempty"`
	MinStepIntervalMs  *float64 `json:"min_step_interval_ms,omitempty"`
	DetectionThreshold *float64 `json:"detection_threshold,omitempty"` // rad/s on the detection signal
	MinSteps           *int     `json:"min_steps,omitempty"`

	// Step assembler params
	CanonicalLength *int `json:"canonical_length,omitempty"` // fixed per-step sequence length L

	// Pipeline params
	Workers *int `json:"workers,omitempty"`

	// Training params
	Epochs       *int     `json:"epochs,omitempty"`
	BatchSize    *int     `json:"batch_size,omitempty"`
	LearningRate *float64 `json:"learning_rate,omitempty"`
	WeightDecay  *float64 `json:"weight_decay,omitempty"`
	HiddenSize   *int     `json:"hidden_size,omitempty"`
	KernelSize   *int     `json:"kernel_size,omitempty"`
	Seed         *int64   `json:"seed,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset so every
// accessor falls through to its default.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the JSON retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *TuningConfig) Validate() error {
	if c.TargetRateHz != nil && *c.TargetRateHz <= 0 {
		return fmt.Errorf("target_rate_hz must be positive, got %f", *c.TargetRateHz)
	}
	if c.FilterWindow != nil {
		if *c.FilterWindow < 3 || *c.FilterWindow%2 == 0 {
			return fmt.Errorf("filter_window must be an odd integer >= 3, got %d", *c.FilterWindow)
		}
	}
	if c.FilterOrder != nil && c.FilterWindow != nil && *c.FilterOrder >= *c.FilterWindow {
		return fmt.Errorf("filter_order %d must be smaller than filter_window %d",
			*c.FilterOrder, *c.FilterWindow)
	}
	if c.MinStepIntervalMs != nil && *c.MinStepIntervalMs <= 0 {
		return fmt.Errorf("min_step_interval_ms must be positive, got %f", *c.MinStepIntervalMs)
	}
	if c.CanonicalLength != nil && *c.CanonicalLength < 2 {
		return fmt.Errorf("canonical_length must be at least 2, got %d", *c.CanonicalLength)
	}
	if c.BatchSize != nil && *c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1, got %d", *c.BatchSize)
	}
	if c.LearningRate != nil && *c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive, got %f", *c.LearningRate)
	}
	return nil
}

// GetTargetRateHz returns the conditioning target sample rate. Zero (the
// default) means each stream is conditioned at its own nominal rate and the
// synchronizer chooses the common grid afterwards.
func (c *TuningConfig) GetTargetRateHz() float64 {
	if c.TargetRateHz == nil {
		return 0
	}
	return *c.TargetRateHz
}

// GetFilterWindow returns the smoothing filter window length or the default.
func (c *TuningConfig) GetFilterWindow() int {
	if c.FilterWindow == nil {
		return 11
	}
	return *c.FilterWindow
}

// GetFilterOrder returns the smoothing polynomial order or the default.
func (c *TuningConfig) GetFilterOrder() int {
	if c.FilterOrder == nil {
		return 3
	}
	return *c.FilterOrder
}

// GetGapThresholdMs returns the gap-split threshold or the default.
func (c *TuningConfig) GetGapThresholdMs() float64 {
	if c.GapThresholdMs == nil {
		return 100.0
	}
	return *c.GapThresholdMs
}

// GetMinStreamSamples returns the minimum samples needed to condition a stream.
func (c *TuningConfig) GetMinStreamSamples() int {
	if c.MinStreamSamples == nil {
		return 3
	}
	return *c.MinStreamSamples
}

// GetReferenceSensor returns the synchronization reference sensor, empty
// meaning the slowest-rate sensor is chosen per session.
func (c *TuningConfig) GetReferenceSensor() string {
	if c.ReferenceSensor == nil {
		return ""
	}
	return *c.ReferenceSensor
}

// GetMinOverlapMs returns the minimum usable sensor overlap or the default.
func (c *TuningConfig) GetMinOverlapMs() float64 {
	if c.MinOverlapMs == nil {
		return 2000.0
	}
	return *c.MinOverlapMs
}

// GetCorrelationAlign returns whether cross-correlation lag estimation runs
// before grid alignment.
func (c *TuningConfig) GetCorrelationAlign() bool {
	if c.CorrelationAlign == nil {
		return false
	}
	return *c.CorrelationAlign
}

// GetMaxLagMs returns the correlation lag search bound or the default.
func (c *TuningConfig) GetMaxLagMs() float64 {
	if c.MaxLagMs == nil {
		return 500.0
	}
	return *c.MaxLagMs
}

// GetDetectionSensor returns the segment whose angular rate drives gait
// event detection.
func (c *TuningConfig) GetDetectionSensor() string {
	if c.DetectionSensor == nil {
		return "R_SHANK"
	}
	return *c.DetectionSensor
}

// GetDetectionWindowMs returns the event detection window or the default.
func (c *TuningConfig) GetDetectionWindowMs() float64 {
	if c.DetectionWindowMs == nil {
		return 250.0
	}
	return *c.DetectionWindowMs
}

// GetMinStepIntervalMs returns the minimum inter-event distance or the default.
func (c *TuningConfig) GetMinStepIntervalMs() float64 {
	if c.MinStepIntervalMs == nil {
		return 500.0
	}
	return *c.MinStepIntervalMs
}

// GetDetectionThreshold returns the event detection threshold or the default.
func (c *TuningConfig) GetDetectionThreshold() float64 {
	if c.DetectionThreshold == nil {
		return 2.0
	}
	return *c.DetectionThreshold
}

// GetMinSteps returns the minimum detected steps per session or the default.
func (c *TuningConfig) GetMinSteps() int {
	if c.MinSteps == nil {
		return 4
	}
	return *c.MinSteps
}

// GetCanonicalLength returns the fixed per-step sequence length L.
func (c *TuningConfig) GetCanonicalLength() int {
	if c.CanonicalLength == nil {
		return 100
	}
	return *c.CanonicalLength
}

// GetWorkers returns the parallel session worker count or the default.
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil || *c.Workers < 1 {
		return 4
	}
	return *c.Workers
}

// GetEpochs returns the training epoch count or the default.
func (c *TuningConfig) GetEpochs() int {
	if c.Epochs == nil {
		return 30
	}
	return *c.Epochs
}

// GetBatchSize returns the training batch size or the default.
func (c *TuningConfig) GetBatchSize() int {
	if c.BatchSize == nil {
		return 20
	}
	return *c.BatchSize
}

// GetLearningRate returns the optimizer learning rate or the default.
func (c *TuningConfig) GetLearningRate() float64 {
	if c.LearningRate == nil {
		return 1e-3
	}
	return *c.LearningRate
}

// GetWeightDecay returns the optimizer weight decay or the default.
func (c *TuningConfig) GetWeightDecay() float64 {
	if c.WeightDecay == nil {
		return 1e-5
	}
	return *c.WeightDecay
}

// GetHiddenSize returns the estimator hidden feature width or the default.
func (c *TuningConfig) GetHiddenSize() int {
	if c.HiddenSize == nil {
		return 32
	}
	return *c.HiddenSize
}

// GetKernelSize returns the temporal convolution kernel size or the default.
func (c *TuningConfig) GetKernelSize() int {
	if c.KernelSize == nil {
		return 5
	}
	return *c.KernelSize
}

// GetSeed returns the training RNG seed or the default.
func (c *TuningConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 42
	}
	return *c.Seed
}
