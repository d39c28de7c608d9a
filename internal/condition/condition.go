// Package condition implements the per-stream signal conditioner: uniform
// resampling, low-pass smoothing, and unit normalization of raw sensor
// streams. Full trials are processed offline so the smoothing filter is
// zero-phase.
package condition

import (
	"fmt"
	"strings"
	"time"

	"github.com/pconstantinou/savitzkygolay"
	"gonum.org/v1/gonum/interp"

	"github.com/stride-data/gaitmoment/internal/config"
	"github.com/stride-data/gaitmoment/internal/imu"
	"github.com/stride-data/gaitmoment/internal/units"
)

// Config holds conditioning parameters for one run.
type Config struct {
	TargetRateHz float64
	FilterWindow int // Savitzky-Golay window length (odd)
	FilterOrder  int // Savitzky-Golay polynomial order
	GapThreshold time.Duration
	MinSamples   int
}

// ConfigFromTuning derives a conditioner config from the shared tuning file.
func ConfigFromTuning(t *config.TuningConfig) Config {
	return Config{
		TargetRateHz: t.GetTargetRateHz(),
		FilterWindow: t.GetFilterWindow(),
		FilterOrder:  t.GetFilterOrder(),
		GapThreshold: time.Duration(t.GetGapThresholdMs() * float64(time.Millisecond)),
		MinSamples:   t.GetMinStreamSamples(),
	}
}

// Condition resamples a raw stream onto a uniform grid at the target rate,
// smooths it, and converts channel values to canonical units. Gaps longer
// than the configured threshold split the stream: each disjoint valid
// segment is conditioned independently and returned as its own stream,
// never silently merged across the gap.
//
// Returns InsufficientDataError when the stream is too short to
// interpolate meaningfully.
func Condition(stream *imu.SensorStream, cfg Config) ([]*imu.SensorStream, error) {
	if cfg.MinSamples < 3 {
		cfg.MinSamples = 3
	}
	if err := stream.Validate(); err != nil {
		return nil, err
	}
	if len(stream.Samples) < cfg.MinSamples {
		return nil, &imu.InsufficientDataError{
			SensorID: stream.SensorID,
			Samples:  len(stream.Samples),
			Minimum:  cfg.MinSamples,
		}
	}
	if cfg.TargetRateHz <= 0 {
		return nil, fmt.Errorf("stream %s: target rate %f must be positive",
			stream.SensorID, cfg.TargetRateHz)
	}

	accelUnit, gyroUnit, err := parseUnit(stream.Unit)
	if err != nil {
		return nil, fmt.Errorf("stream %s: %w", stream.SensorID, err)
	}

	var out []*imu.SensorStream
	for _, seg := range splitAtGaps(stream.Samples, cfg.GapThreshold) {
		if len(seg) < cfg.MinSamples {
			// Segment too short to interpolate; dropped, not merged.
			continue
		}
		cond, err := conditionSegment(stream, seg, cfg, accelUnit, gyroUnit)
		if err != nil {
			return nil, err
		}
		out = append(out, cond)
	}
	if len(out) == 0 {
		return nil, &imu.InsufficientDataError{
			SensorID: stream.SensorID,
			Samples:  len(stream.Samples),
			Minimum:  cfg.MinSamples,
		}
	}
	return out, nil
}

// splitAtGaps partitions samples into runs whose inter-sample spacing never
// exceeds the threshold. A zero threshold keeps the stream whole.
func splitAtGaps(samples []imu.Sample, threshold time.Duration) [][]imu.Sample {
	if threshold <= 0 {
		return [][]imu.Sample{samples}
	}
	var segs [][]imu.Sample
	start := 0
	for i := 1; i < len(samples); i++ {
		if samples[i].TSNanos-samples[i-1].TSNanos > int64(threshold) {
			segs = append(segs, samples[start:i])
			start = i
		}
	}
	segs = append(segs, samples[start:])
	return segs
}

func conditionSegment(stream *imu.SensorStream, seg []imu.Sample, cfg Config, accelUnit, gyroUnit string) (*imu.SensorStream, error) {
	startNanos := seg[0].TSNanos
	endNanos := seg[len(seg)-1].TSNanos
	periodNanos := int64(float64(time.Second) / cfg.TargetRateHz)

	// Grid timestamps on [start, end]; no extrapolation past recorded data.
	n := int((endNanos-startNanos)/periodNanos) + 1
	gridNanos := make([]int64, n)
	gridSec := make([]float64, n)
	for i := range gridNanos {
		gridNanos[i] = startNanos + int64(i)*periodNanos
		gridSec[i] = float64(gridNanos[i]-startNanos) / 1e9
	}

	// Interpolation abscissae in seconds relative to segment start; the
	// relative origin keeps float64 precision over long absolute epochs.
	xs := make([]float64, len(seg))
	for i, sm := range seg {
		xs[i] = float64(sm.TSNanos-startNanos) / 1e9
	}

	resampled := make([][]float64, len(stream.Channels))
	for ch := range stream.Channels {
		ys := make([]float64, len(seg))
		for i, sm := range seg {
			ys[i] = sm.Values[ch]
		}

		var pl interp.PiecewiseLinear
		if err := pl.Fit(xs, ys); err != nil {
			return nil, fmt.Errorf("stream %s channel %s: interpolation fit: %w",
				stream.SensorID, stream.Channels[ch], err)
		}
		grid := make([]float64, n)
		for i, x := range gridSec {
			grid[i] = pl.Predict(x)
		}

		if cfg.FilterWindow >= 3 && n >= cfg.FilterWindow {
			filter, err := savitzkygolay.NewFilter(cfg.FilterWindow, 0, cfg.FilterOrder)
			if err != nil {
				return nil, fmt.Errorf("stream %s: filter setup: %w", stream.SensorID, err)
			}
			smoothed, err := filter.Process(grid, gridSec)
			if err != nil {
				return nil, fmt.Errorf("stream %s channel %s: filter: %w",
					stream.SensorID, stream.Channels[ch], err)
			}
			grid = smoothed
		}

		unit := channelUnit(stream.Channels[ch], accelUnit, gyroUnit)
		for i := range grid {
			grid[i] = units.ToCanonical(grid[i], unit)
		}
		resampled[ch] = grid
	}

	out := &imu.SensorStream{
		SensorID:      stream.SensorID,
		Channels:      append([]string(nil), stream.Channels...),
		Unit:          canonicalUnitLabel(accelUnit, gyroUnit),
		NominalRateHz: cfg.TargetRateHz,
		Samples:       make([]imu.Sample, n),
	}
	for i := range out.Samples {
		vals := make([]float64, len(stream.Channels))
		for ch := range stream.Channels {
			vals[ch] = resampled[ch][i]
		}
		out.Samples[i] = imu.Sample{TSNanos: gridNanos[i], Values: vals}
	}
	return out, nil
}

// parseUnit splits a stream unit declaration into acceleration and angular
// rate units. Accepted forms: "" (already canonical), a single unit applied
// to all channels, or "accel/gyro" such as "g/degps".
func parseUnit(unit string) (accel, gyro string, err error) {
	if unit == "" {
		return units.MPS2, units.RADPS, nil
	}
	parts := strings.Split(unit, "/")
	switch len(parts) {
	case 1:
		if !units.IsValid(parts[0]) {
			return "", "", fmt.Errorf("unknown unit %q, valid: %s", parts[0], units.GetValidUnitsString())
		}
		return parts[0], parts[0], nil
	case 2:
		if !units.IsValid(parts[0]) || !units.IsValid(parts[1]) {
			return "", "", fmt.Errorf("unknown unit %q, valid: %s", unit, units.GetValidUnitsString())
		}
		return parts[0], parts[1], nil
	default:
		return "", "", fmt.Errorf("malformed unit %q", unit)
	}
}

func channelUnit(channel, accelUnit, gyroUnit string) string {
	if strings.HasPrefix(channel, "Gyro") {
		return gyroUnit
	}
	if strings.HasPrefix(channel, "Accel") {
		return accelUnit
	}
	return ""
}

func canonicalUnitLabel(accelUnit, gyroUnit string) string {
	return units.CanonicalUnit(accelUnit) + "/" + units.CanonicalUnit(gyroUnit)
}
