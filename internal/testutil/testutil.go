// Package testutil provides shared test utilities and fixtures.
//
// This package centralises synthetic signal generators used across test
// files so each package does not grow its own copy.
package testutil

import (
	"fmt"
	"math"
	"testing"

	"github.com/stride-data/gaitmoment/internal/imu"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertInDelta fails the test if got is not within delta of want.
func AssertInDelta(t *testing.T, want, got, delta float64) {
	t.Helper()
	if math.Abs(want-got) > delta {
		t.Errorf("got %v, want %v (delta %v)", got, want, delta)
	}
}

// SineStream builds a sensor stream whose six channels carry sinusoids at
// freqHz, sampled uniformly at rateHz starting at startNanos. The gyro
// channels carry the same waveform scaled by gyroScale so magnitude-based
// detection sees a periodic signal.
func SineStream(sensorID string, rateHz, freqHz, durSec float64, startNanos int64, gyroScale float64) *imu.SensorStream {
	periodNanos := int64(1e9 / rateHz)
	n := int(durSec * rateHz)
	samples := make([]imu.Sample, n)
	for i := 0; i < n; i++ {
		ts := startNanos + int64(i)*periodNanos
		sec := float64(ts-startNanos) / 1e9
		v := math.Sin(2 * math.Pi * freqHz * sec)
		samples[i] = imu.Sample{
			TSNanos: ts,
			Values:  []float64{v, v * 0.5, 9.81, v * gyroScale, 0, 0},
		}
	}
	return &imu.SensorStream{
		SensorID:      sensorID,
		Channels:      imu.SensorChannels(sensorID),
		Unit:          "mps2/radps",
		NominalRateHz: rateHz,
		Samples:       samples,
	}
}

// PulseStream builds a stream whose GyroX channel is near zero except for
// triangular pulses of the given amplitude centred on pulseTimes (in
// seconds from start). Accel channels hold a constant gravity reading.
func PulseStream(sensorID string, rateHz, durSec float64, startNanos int64, amplitude, pulseWidthSec float64, pulseTimes []float64) *imu.SensorStream {
	periodNanos := int64(1e9 / rateHz)
	n := int(durSec * rateHz)
	samples := make([]imu.Sample, n)
	for i := 0; i < n; i++ {
		ts := startNanos + int64(i)*periodNanos
		sec := float64(i) / rateHz
		var g float64
		for _, pt := range pulseTimes {
			if d := math.Abs(sec - pt); d < pulseWidthSec {
				if v := amplitude * (1 - d/pulseWidthSec); v > g {
					g = v
				}
			}
		}
		samples[i] = imu.Sample{
			TSNanos: ts,
			Values:  []float64{0, 0, 9.81, g, 0, 0},
		}
	}
	return &imu.SensorStream{
		SensorID:      sensorID,
		Channels:      imu.SensorChannels(sensorID),
		Unit:          "mps2/radps",
		NominalRateHz: rateHz,
		Samples:       samples,
	}
}

// MomentStream builds a two-channel moment label stream with smooth
// periodic curves at freqHz.
func MomentStream(rateHz, freqHz, durSec float64, startNanos int64) *imu.SensorStream {
	periodNanos := int64(1e9 / rateHz)
	n := int(durSec * rateHz)
	samples := make([]imu.Sample, n)
	for i := 0; i < n; i++ {
		ts := startNanos + int64(i)*periodNanos
		sec := float64(ts-startNanos) / 1e9
		phase := 2 * math.Pi * freqHz * sec
		samples[i] = imu.Sample{
			TSNanos: ts,
			Values:  []float64{0.4 * math.Sin(phase), 0.6 * math.Cos(phase)},
		}
	}
	return &imu.SensorStream{
		SensorID:      "moments",
		Channels:      imu.MomentChannels,
		Unit:          "",
		NominalRateHz: rateHz,
		Samples:       samples,
	}
}

// WalkingSession assembles a session with periodic gait-like streams on
// the given sensor segments plus a moment label stream, all sharing a
// clock. stepHz controls cadence.
func WalkingSession(sessionID, subjectID string, segments []string, rateHz, stepHz, durSec float64) *imu.Session {
	streams := make([]*imu.SensorStream, 0, len(segments))
	for i, seg := range segments {
		// Offset scales keep the streams distinguishable.
		streams = append(streams, SineStream(seg, rateHz, stepHz, durSec, 0, 3.0+float64(i)))
	}
	return &imu.Session{
		SessionID:       sessionID,
		SubjectID:       subjectID,
		TrialID:         fmt.Sprintf("%s-trial", sessionID),
		Side:            "R",
		SubjectWeightKG: 70,
		SubjectHeightM:  1.75,
		Streams:         streams,
		Moments:         MomentStream(rateHz, stepHz, durSec, 0),
	}
}
