package condition

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/stride-data/gaitmoment/internal/imu"
)

// Calibration holds the orientation correction for one sensor, estimated
// from a static standing trial: the rotation that maps the sensor's mean
// gravity direction onto the vertical axis.
type Calibration struct {
	SensorID string
	Rotation *mat.Dense // 3x3
}

// CalibrateFromStatic estimates a gravity-alignment rotation from a static
// trial recording of the same sensor. Roll and pitch come from the mean
// acceleration vector; yaw is unobservable from gravity and left at zero.
func CalibrateFromStatic(static *imu.SensorStream) (*Calibration, error) {
	if len(static.Samples) == 0 {
		return nil, fmt.Errorf("stream %s: empty static trial", static.SensorID)
	}
	var ax, ay, az float64
	idx, err := accelIndices(static)
	if err != nil {
		return nil, err
	}
	for _, sm := range static.Samples {
		ax += sm.Values[idx[0]]
		ay += sm.Values[idx[1]]
		az += sm.Values[idx[2]]
	}
	n := float64(len(static.Samples))
	ax, ay, az = ax/n, ay/n, az/n

	roll := math.Atan2(ay, az)
	pitch := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	cr, sr := math.Cos(roll), math.Sin(roll)
	cp, sp := math.Cos(pitch), math.Sin(pitch)
	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, cr, -sr,
		0, sr, cr,
	})
	ry := mat.NewDense(3, 3, []float64{
		cp, 0, sp,
		0, 1, 0,
		-sp, 0, cp,
	})
	rot := mat.NewDense(3, 3, nil)
	rot.Mul(ry, rx)

	return &Calibration{SensorID: static.SensorID, Rotation: rot}, nil
}

// Apply rotates the acceleration and angular rate triples of a conditioned
// stream in place using the calibration rotation.
func (c *Calibration) Apply(stream *imu.SensorStream) error {
	if stream.SensorID != c.SensorID {
		return fmt.Errorf("calibration for %s applied to stream %s", c.SensorID, stream.SensorID)
	}
	accIdx, err := accelIndices(stream)
	if err != nil {
		return err
	}
	gyrIdx, err := gyroIndices(stream)
	if err != nil {
		return err
	}
	v := mat.NewVecDense(3, nil)
	rotated := mat.NewVecDense(3, nil)
	for i := range stream.Samples {
		for _, idx := range [][3]int{accIdx, gyrIdx} {
			v.SetVec(0, stream.Samples[i].Values[idx[0]])
			v.SetVec(1, stream.Samples[i].Values[idx[1]])
			v.SetVec(2, stream.Samples[i].Values[idx[2]])
			rotated.MulVec(c.Rotation, v)
			stream.Samples[i].Values[idx[0]] = rotated.AtVec(0)
			stream.Samples[i].Values[idx[1]] = rotated.AtVec(1)
			stream.Samples[i].Values[idx[2]] = rotated.AtVec(2)
		}
	}
	return nil
}

func accelIndices(s *imu.SensorStream) ([3]int, error) {
	return tripleIndices(s, "Accel")
}

func gyroIndices(s *imu.SensorStream) ([3]int, error) {
	return tripleIndices(s, "Gyro")
}

func tripleIndices(s *imu.SensorStream, prefix string) ([3]int, error) {
	var out [3]int
	for i, axis := range []string{"X", "Y", "Z"} {
		found := -1
		for ch, name := range s.Channels {
			if name == prefix+axis+"_"+s.SensorID || name == prefix+axis {
				found = ch
				break
			}
		}
		if found < 0 {
			return out, fmt.Errorf("stream %s: missing %s%s channel", s.SensorID, prefix, axis)
		}
		out[i] = found
	}
	return out, nil
}
