// Package syncer aligns the conditioned sensor streams of a session onto
// one common time base. The common grid is the reference sensor's own
// sample grid restricted to the intersection of all sensors' valid ranges;
// every other stream is interpolated onto that grid. Output is fully
// deterministic for identical input.
package syncer

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/interp"

	"github.com/stride-data/gaitmoment/internal/config"
	"github.com/stride-data/gaitmoment/internal/imu"
)

// Config holds synchronization parameters.
type Config struct {
	// ReferenceSensor names the stream whose grid becomes the common time
	// base. Empty selects the slowest-rate sensor, which avoids fabricating
	// temporal resolution no sensor recorded.
	ReferenceSensor string

	// MinOverlap is the shortest usable intersection of sensor ranges.
	MinOverlap time.Duration

	// CorrelationAlign enables cross-correlation lag estimation between
	// each stream and the reference before grid alignment, compensating
	// for independent clock start offsets.
	CorrelationAlign bool

	// MaxLag bounds the correlation lag search.
	MaxLag time.Duration
}

// ConfigFromTuning derives a synchronizer config from the shared tuning file.
func ConfigFromTuning(t *config.TuningConfig) Config {
	return Config{
		ReferenceSensor:  t.GetReferenceSensor(),
		MinOverlap:       time.Duration(t.GetMinOverlapMs() * float64(time.Millisecond)),
		CorrelationAlign: t.GetCorrelationAlign(),
		MaxLag:           time.Duration(t.GetMaxLagMs() * float64(time.Millisecond)),
	}
}

// Synchronize fills session.Schema and session.Frames from the session's
// conditioned streams (and ground-truth moment stream when present). The
// output covers only the overlap of all contributing streams; samples
// outside it are dropped, and no frame timestamp ever falls outside any
// stream's recorded range.
//
// Returns SynchronizationError when the overlap is empty or shorter than
// the configured minimum.
func Synchronize(session *imu.Session, cfg Config) error {
	streams := make([]*imu.SensorStream, 0, len(session.Streams)+1)
	streams = append(streams, session.Streams...)
	if session.Moments != nil {
		streams = append(streams, session.Moments)
	}
	if len(streams) == 0 {
		return fmt.Errorf("session %s: no streams to synchronize", session.SessionID)
	}
	for _, s := range streams {
		if len(s.Samples) == 0 {
			return fmt.Errorf("session %s: stream %s is empty", session.SessionID, s.SensorID)
		}
	}

	ref, err := pickReference(session.Streams, cfg.ReferenceSensor)
	if err != nil {
		return fmt.Errorf("session %s: %w", session.SessionID, err)
	}

	// Per-stream clock offsets relative to the reference. A positive shift
	// means the stream's clock runs late and its timestamps are pulled back.
	shifts := make(map[string]int64, len(streams))
	if cfg.CorrelationAlign {
		for _, s := range session.Streams {
			if s == ref {
				continue
			}
			lag, err := EstimateLag(ref, s, cfg.MaxLag)
			if err != nil {
				return fmt.Errorf("session %s: lag estimation %s vs %s: %w",
					session.SessionID, s.SensorID, ref.SensorID, err)
			}
			shifts[s.SensorID] = int64(lag)
		}
	}

	// Overlap of all shifted valid ranges.
	overlapStart := int64(-1 << 62)
	overlapEnd := int64(1<<62 - 1)
	for _, s := range streams {
		start := s.StartNanos() - shifts[s.SensorID]
		end := s.EndNanos() - shifts[s.SensorID]
		if start > overlapStart {
			overlapStart = start
		}
		if end < overlapEnd {
			overlapEnd = end
		}
	}
	overlap := time.Duration(overlapEnd - overlapStart)
	if overlap <= 0 || overlap < cfg.MinOverlap {
		return &imu.SynchronizationError{
			SessionID: session.SessionID,
			Overlap:   overlap,
			Minimum:   cfg.MinOverlap,
		}
	}

	// Common grid: reference sensor samples inside the overlap.
	var gridNanos []int64
	for _, sm := range ref.Samples {
		ts := sm.TSNanos - shifts[ref.SensorID]
		if ts >= overlapStart && ts <= overlapEnd {
			gridNanos = append(gridNanos, ts)
		}
	}
	if len(gridNanos) == 0 {
		return &imu.SynchronizationError{
			SessionID: session.SessionID,
			Overlap:   overlap,
			Minimum:   cfg.MinOverlap,
		}
	}

	// Channel order: sensor streams sorted by ID for cross-session
	// stability, ground-truth moment channels last.
	ordered := make([]*imu.SensorStream, len(session.Streams))
	copy(ordered, session.Streams)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].SensorID < ordered[j].SensorID })

	var channels []string
	for _, s := range ordered {
		channels = append(channels, s.Channels...)
	}
	if session.Moments != nil {
		channels = append(channels, session.Moments.Channels...)
	}
	schema, err := imu.NewSchema(channels)
	if err != nil {
		return fmt.Errorf("session %s: %w", session.SessionID, err)
	}

	frames := make([]imu.SynchronizedFrame, len(gridNanos))
	for i, ts := range gridNanos {
		frames[i] = imu.SynchronizedFrame{TSNanos: ts, Values: make([]float64, 0, schema.Len())}
	}

	sources := ordered
	if session.Moments != nil {
		sources = append(append([]*imu.SensorStream{}, ordered...), session.Moments)
	}
	for _, s := range sources {
		shift := shifts[s.SensorID]
		xs := make([]float64, len(s.Samples))
		for i, sm := range s.Samples {
			xs[i] = float64(sm.TSNanos - shift - overlapStart)
		}
		for ch := range s.Channels {
			ys := make([]float64, len(s.Samples))
			for i, sm := range s.Samples {
				ys[i] = sm.Values[ch]
			}
			var pl interp.PiecewiseLinear
			if err := pl.Fit(xs, ys); err != nil {
				return fmt.Errorf("session %s: stream %s channel %s: %w",
					session.SessionID, s.SensorID, s.Channels[ch], err)
			}
			for i, ts := range gridNanos {
				frames[i].Values = append(frames[i].Values, pl.Predict(float64(ts-overlapStart)))
			}
		}
	}

	session.Schema = schema
	session.Frames = frames
	return nil
}

// pickReference selects the configured reference stream, or the
// slowest-rate stream when none is configured. Rate ties break by sensor ID
// so the choice is deterministic.
func pickReference(streams []*imu.SensorStream, name string) (*imu.SensorStream, error) {
	if len(streams) == 0 {
		return nil, fmt.Errorf("no sensor streams")
	}
	if name != "" {
		for _, s := range streams {
			if s.SensorID == name {
				return s, nil
			}
		}
		return nil, fmt.Errorf("reference sensor %q not present", name)
	}
	ref := streams[0]
	for _, s := range streams[1:] {
		if s.NominalRateHz < ref.NominalRateHz ||
			(s.NominalRateHz == ref.NominalRateHz && s.SensorID < ref.SensorID) {
			ref = s
		}
	}
	return ref, nil
}
