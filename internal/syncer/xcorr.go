package syncer

import (
	"fmt"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/stat"

	"github.com/stride-data/gaitmoment/internal/imu"
)

// EstimateLag estimates the clock offset of other relative to ref by
// maximising the normalised cross-correlation of their angular-rate
// magnitudes. A positive result means other's clock runs late: an event
// stamped t on the reference appears at t+lag on other.
//
// Both signals are compared on the reference sensor's grid; maxLag bounds
// the search on either side.
func EstimateLag(ref, other *imu.SensorStream, maxLag time.Duration) (time.Duration, error) {
	if maxLag <= 0 {
		return 0, nil
	}
	if len(ref.Samples) < 2 || len(other.Samples) < 2 {
		return 0, fmt.Errorf("streams too short for correlation")
	}

	periodNanos := int64(float64(time.Second) / ref.NominalRateHz)
	if periodNanos <= 0 {
		return 0, fmt.Errorf("reference rate %f invalid", ref.NominalRateHz)
	}

	a := detectionMagnitude(ref)
	b, err := magnitudeOnGrid(other, ref, periodNanos)
	if err != nil {
		return 0, err
	}

	a = zscore(a)
	b = zscore(b)
	if a == nil || b == nil {
		// A flat signal carries no alignment information.
		return 0, nil
	}

	maxLagSamples := int(int64(maxLag) / periodNanos)
	if maxLagSamples < 1 {
		return 0, nil
	}

	// other's first sample sits startDelta reference periods after ref's
	// first sample; the correlation searches residual lag around that. An
	// event appearing d samples later in other peaks at lag -d, so the
	// residual enters the total with its sign flipped.
	startDelta := float64(other.StartNanos()-ref.StartNanos()) / float64(periodNanos)

	bestVal := math.Inf(-1)
	bestLag := 0
	for lag := -maxLagSamples; lag <= maxLagSamples; lag++ {
		var x, y []float64
		if lag >= 0 {
			if lag >= len(a) {
				continue
			}
			x, y = a[lag:], b
		} else {
			if -lag >= len(b) {
				continue
			}
			x, y = a, b[-lag:]
		}
		n := min(len(x), len(y))
		if n < 10 {
			continue
		}
		var s float64
		for i := 0; i < n; i++ {
			s += x[i] * y[i]
		}
		s /= float64(n)
		if s > bestVal {
			bestVal = s
			bestLag = lag
		}
	}
	if math.IsInf(bestVal, -1) {
		return 0, fmt.Errorf("no usable correlation overlap within %v", maxLag)
	}

	lagNanos := int64(math.Round(startDelta-float64(bestLag))) * periodNanos
	return time.Duration(lagNanos), nil
}

// detectionMagnitude derives the alignment signal for one stream: the
// Euclidean magnitude of its gyro channels, falling back to all channels
// for sensors without angular rate.
func detectionMagnitude(s *imu.SensorStream) []float64 {
	var idx []int
	for i, c := range s.Channels {
		if strings.HasPrefix(c, "Gyro") {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		idx = make([]int, len(s.Channels))
		for i := range idx {
			idx[i] = i
		}
	}
	out := make([]float64, len(s.Samples))
	for i, sm := range s.Samples {
		var sum float64
		for _, j := range idx {
			sum += sm.Values[j] * sm.Values[j]
		}
		out[i] = math.Sqrt(sum)
	}
	return out
}

// magnitudeOnGrid resamples other's detection magnitude onto a grid at the
// reference period, starting at other's own first sample.
func magnitudeOnGrid(other, ref *imu.SensorStream, periodNanos int64) ([]float64, error) {
	mag := detectionMagnitude(other)
	xs := make([]float64, len(other.Samples))
	start := other.StartNanos()
	for i, sm := range other.Samples {
		xs[i] = float64(sm.TSNanos - start)
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, mag); err != nil {
		return nil, err
	}
	span := other.EndNanos() - start
	n := int(span/periodNanos) + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = pl.Predict(float64(int64(i) * periodNanos))
	}
	return out, nil
}

// zscore centres and scales a signal to unit variance; returns nil for
// signals with no variance.
func zscore(xs []float64) []float64 {
	mean, std := stat.MeanStdDev(xs, nil)
	if std < 1e-12 {
		return nil
	}
	out := make([]float64, len(xs))
	for i, v := range xs {
		out[i] = (v - mean) / std
	}
	return out
}
