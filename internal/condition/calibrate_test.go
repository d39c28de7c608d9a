package condition

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stride-data/gaitmoment/internal/imu"
)

// tiltedStatic builds a static trial of a sensor tilted by the given roll
// and pitch, so its accelerometer reads gravity rotated into the sensor
// frame.
func tiltedStatic(roll, pitch float64) *imu.SensorStream {
	g := 9.80665
	ax := -g * math.Sin(pitch)
	ay := g * math.Cos(pitch) * math.Sin(roll)
	az := g * math.Cos(pitch) * math.Cos(roll)

	s := &imu.SensorStream{
		SensorID:      imu.SegmentRightShank,
		Channels:      imu.SensorChannels(imu.SegmentRightShank),
		NominalRateHz: 100,
	}
	for i := 0; i < 20; i++ {
		s.Samples = append(s.Samples, imu.Sample{
			TSNanos: int64(i) * 10_000_000,
			Values:  []float64{ax, ay, az, 0.1, 0.2, 0.3},
		})
	}
	return s
}

func TestCalibrateAlignsGravity(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name        string
		roll, pitch float64
	}{
		{"level", 0, 0},
		{"rolled", 0.3, 0},
		{"pitched", 0, -0.4},
		{"both", 0.25, 0.15},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			static := tiltedStatic(tc.roll, tc.pitch)
			cal, err := CalibrateFromStatic(static)
			require.NoError(t, err)

			require.NoError(t, cal.Apply(static))
			accel := static.Samples[0].Values

			assert.InDelta(t, 0, accel[0], 1e-9)
			assert.InDelta(t, 0, accel[1], 1e-9)
			assert.InDelta(t, 9.80665, accel[2], 1e-9)
		})
	}
}

func TestCalibrateRotatesGyroToo(t *testing.T) {
	t.Parallel()

	static := tiltedStatic(0.3, 0.2)
	cal, err := CalibrateFromStatic(static)
	require.NoError(t, err)

	before := append([]float64(nil), static.Samples[0].Values[3:6]...)
	require.NoError(t, cal.Apply(static))
	after := static.Samples[0].Values[3:6]

	assert.NotEqual(t, before, after)
	// Rotation preserves magnitude.
	norm := func(v []float64) float64 {
		return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	}
	assert.InDelta(t, norm(before), norm(after), 1e-9)
}

func TestCalibrateEmptyStatic(t *testing.T) {
	t.Parallel()

	_, err := CalibrateFromStatic(&imu.SensorStream{SensorID: "x"})
	assert.Error(t, err)
}

func TestCalibrateWrongSensor(t *testing.T) {
	t.Parallel()

	static := tiltedStatic(0, 0)
	cal, err := CalibrateFromStatic(static)
	require.NoError(t, err)

	other := tiltedStatic(0, 0)
	other.SensorID = imu.SegmentRightThigh
	other.Channels = imu.SensorChannels(imu.SegmentRightThigh)
	assert.Error(t, cal.Apply(other))
}
