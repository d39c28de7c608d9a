package gait

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stride-data/gaitmoment/internal/imu"
)

// frameSession builds a synchronized single-sensor session whose GyroX
// channel is the given signal, sampled at 100Hz.
func frameSession(t *testing.T, gyroX []float64) *imu.Session {
	t.Helper()
	schema, err := imu.NewSchema(imu.SensorChannels(imu.SegmentRightShank))
	require.NoError(t, err)

	session := &imu.Session{SessionID: "seg", Schema: schema}
	for i, g := range gyroX {
		session.Frames = append(session.Frames, imu.SynchronizedFrame{
			TSNanos: int64(i) * 10_000_000,
			Values:  []float64{0, 0, 9.81, g, 0, 0},
		})
	}
	return session
}

// pulseSignal returns a zero signal of n samples with triangular peaks of
// the given height at the given indices.
func pulseSignal(n int, height float64, peaks ...int) []float64 {
	out := make([]float64, n)
	for _, p := range peaks {
		for d := -5; d <= 5; d++ {
			i := p + d
			if i < 0 || i >= n {
				continue
			}
			v := height * (1 - float64(absInt(d))/6)
			if v > out[i] {
				out[i] = v
			}
		}
	}
	return out
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func defaultCfg() Config {
	return Config{
		DetectionSensor: imu.SegmentRightShank,
		DetectionWindow: 250 * time.Millisecond,
		MinStepInterval: 500 * time.Millisecond,
		Threshold:       2.0,
		MinSteps:        4,
	}
}

func TestSegmentFivePeaksFourSteps(t *testing.T) {
	t.Parallel()

	peaks := []int{100, 200, 300, 400, 500}
	session := frameSession(t, pulseSignal(600, 5, peaks...))

	steps, err := Segment(session, defaultCfg())
	require.NoError(t, err)
	require.Len(t, steps, 4, "five events bound four steps")

	for i, st := range steps {
		assert.Equal(t, i, st.ID)
		assert.Equal(t, peaks[i], st.Start)
		assert.Equal(t, peaks[i+1], st.End)
		assert.Equal(t, "right", st.Side)
		assert.Equal(t, int64(peaks[i])*10_000_000, st.StartNanos)
		assert.Equal(t, 100, st.Len())
	}

	// Consecutive steps share a boundary but never overlap.
	for i := 1; i < len(steps); i++ {
		assert.Equal(t, steps[i-1].End, steps[i].Start)
	}
}

func TestSegmentSuppressesCloseEvents(t *testing.T) {
	t.Parallel()

	// A weaker echo 200ms after each true event must not split steps.
	signal := pulseSignal(700, 5, 100, 250, 400, 550)
	echo := pulseSignal(700, 3, 130, 280, 430, 580)
	for i := range signal {
		if echo[i] > signal[i] {
			signal[i] = echo[i]
		}
	}
	session := frameSession(t, signal)

	cfg := defaultCfg()
	cfg.MinSteps = 3
	steps, err := Segment(session, cfg)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, 100, steps[0].Start)
	assert.Equal(t, 250, steps[0].End)
}

func TestSegmentBelowThresholdIgnored(t *testing.T) {
	t.Parallel()

	// Peaks of height 1 sit below the 2.0 threshold.
	session := frameSession(t, pulseSignal(600, 1, 100, 200, 300, 400, 500))

	_, err := Segment(session, defaultCfg())
	var insufficient *imu.InsufficientStepsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 0, insufficient.Detected)
}

func TestSegmentTooFewSteps(t *testing.T) {
	t.Parallel()

	session := frameSession(t, pulseSignal(600, 5, 150, 300, 450))

	_, err := Segment(session, defaultCfg())
	var insufficient *imu.InsufficientStepsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 2, insufficient.Detected)
	assert.Equal(t, 4, insufficient.Minimum)
}

func TestSegmentEdgeEventsDiscarded(t *testing.T) {
	t.Parallel()

	// Peaks within the detection window of either edge cannot be verified
	// as local maxima and are dropped.
	cfg := defaultCfg()
	cfg.MinSteps = 1
	session := frameSession(t, pulseSignal(600, 5, 10, 150, 300, 450, 595))

	steps, err := Segment(session, cfg)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 150, steps[0].Start)
	assert.Equal(t, 450, steps[1].End)
}

func TestSegmentMissingDetectionChannels(t *testing.T) {
	t.Parallel()

	session := frameSession(t, pulseSignal(600, 5, 100, 200))
	cfg := defaultCfg()
	cfg.DetectionSensor = imu.SegmentLeftShank

	_, err := Segment(session, cfg)
	assert.ErrorContains(t, err, "detection sensor")
}

func TestSegmentNoFrames(t *testing.T) {
	t.Parallel()

	_, err := Segment(&imu.Session{SessionID: "empty"}, defaultCfg())
	assert.Error(t, err)
}

func TestStepIDs(t *testing.T) {
	t.Parallel()

	steps := []imu.Step{
		{ID: 0, Start: 2, End: 5},
		{ID: 1, Start: 5, End: 8},
	}
	ids := StepIDs(10, steps)
	assert.Equal(t, []int{-1, -1, 0, 0, 0, 1, 1, 1, -1, -1}, ids)
}

func TestSideFromSegment(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "right", sideFromSegment(imu.SegmentRightShank))
	assert.Equal(t, "left", sideFromSegment(imu.SegmentLeftThigh))
	assert.Equal(t, "", sideFromSegment(imu.SegmentWaist))
}
