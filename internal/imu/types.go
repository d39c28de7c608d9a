// Package imu defines the shared data model for wearable inertial sensor
// recordings: raw per-sensor streams, synchronized frames, walking sessions,
// and detected gait cycles. Every pipeline stage operates on these types so
// the channel schema is defined once here and referenced everywhere.
package imu

import (
	"fmt"
	"time"
)

// Sample is a single timestamped reading from one sensor: one value per
// channel in the owning stream's channel order.
type Sample struct {
	TSNanos int64
	Values  []float64
}

// SensorStream is one physical sensor's recording. Timestamps must be
// strictly increasing. NominalRateHz is the advertised rate only; real
// devices drift, so downstream code never assumes exact spacing.
type SensorStream struct {
	SensorID      string
	Channels      []string // channel names, e.g. "AccelX_R_SHANK"
	Unit          string
	NominalRateHz float64
	Samples       []Sample
}

// StartNanos returns the timestamp of the first sample, or 0 for an empty stream.
func (s *SensorStream) StartNanos() int64 {
	if len(s.Samples) == 0 {
		return 0
	}
	return s.Samples[0].TSNanos
}

// EndNanos returns the timestamp of the last sample, or 0 for an empty stream.
func (s *SensorStream) EndNanos() int64 {
	if len(s.Samples) == 0 {
		return 0
	}
	return s.Samples[len(s.Samples)-1].TSNanos
}

// Duration returns the recorded span of the stream.
func (s *SensorStream) Duration() time.Duration {
	return time.Duration(s.EndNanos() - s.StartNanos())
}

// Validate checks the stream invariants: non-empty channel list, sample
// width matching the channel count, and strictly increasing timestamps.
func (s *SensorStream) Validate() error {
	if len(s.Channels) == 0 {
		return fmt.Errorf("stream %s: no channels", s.SensorID)
	}
	for i, sm := range s.Samples {
		if len(sm.Values) != len(s.Channels) {
			return fmt.Errorf("stream %s: sample %d has %d values, want %d",
				s.SensorID, i, len(sm.Values), len(s.Channels))
		}
		if i > 0 && sm.TSNanos <= s.Samples[i-1].TSNanos {
			return fmt.Errorf("stream %s: timestamps not strictly increasing at sample %d",
				s.SensorID, i)
		}
	}
	return nil
}

// Channel returns one channel's values as a contiguous slice.
func (s *SensorStream) Channel(name string) ([]float64, error) {
	idx := -1
	for i, c := range s.Channels {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("stream %s: no channel %q", s.SensorID, name)
	}
	out := make([]float64, len(s.Samples))
	for i, sm := range s.Samples {
		out[i] = sm.Values[idx]
	}
	return out, nil
}

// Timestamps returns all sample timestamps in nanoseconds.
func (s *SensorStream) Timestamps() []int64 {
	out := make([]int64, len(s.Samples))
	for i, sm := range s.Samples {
		out[i] = sm.TSNanos
	}
	return out
}

// SynchronizedFrame is one row on the session's common time base: one value
// per schema channel, every sensor represented, no gaps.
type SynchronizedFrame struct {
	TSNanos int64
	Values  []float64
}

// Session is the ownership root for one walking trial: the raw streams
// recorded together, optional ground-truth knee moment channels, and
// subject/trial metadata. The pipeline transforms Streams in place through
// conditioning and fills Frames/Schema at synchronization; after step IDs
// are assigned the frames are treated as read-only.
type Session struct {
	SessionID string
	SubjectID string
	TrialID   string
	Side      string // "left", "right", or "" when not determinable

	// Static subject data carried onto every assembled step.
	SubjectWeightKG float64
	SubjectHeightM  float64

	Streams []*SensorStream

	// Moments holds the lab-measured moment curves (adduction, flexion)
	// when available; nil for inference-only sessions.
	Moments *SensorStream

	// Set by the synchronizer.
	Schema Schema
	Frames []SynchronizedFrame
}

// FrameTimestamps returns the timestamps of all synchronized frames.
func (s *Session) FrameTimestamps() []int64 {
	out := make([]int64, len(s.Frames))
	for i, f := range s.Frames {
		out[i] = f.TSNanos
	}
	return out
}

// FrameChannel extracts one schema channel across all synchronized frames.
func (s *Session) FrameChannel(name string) ([]float64, error) {
	idx := s.Schema.Index(name)
	if idx < 0 {
		return nil, fmt.Errorf("session %s: no synchronized channel %q", s.SessionID, name)
	}
	out := make([]float64, len(s.Frames))
	for i, f := range s.Frames {
		out[i] = f.Values[idx]
	}
	return out, nil
}

// Step is a contiguous span of synchronized frames between two consecutive
// detected gait events. Frame indices are half-open: [Start, End).
// IDs are unique and increase with start time within a session.
type Step struct {
	ID         int
	Side       string
	Start, End int
	StartNanos int64
	EndNanos   int64
}

// Len returns the number of frames in the step.
func (st Step) Len() int { return st.End - st.Start }
