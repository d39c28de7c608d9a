// Package gait detects gait-cycle boundaries in a synchronized frame
// sequence. Heel strikes show up as sharp peaks in the shank angular-rate
// magnitude, so the detector is a tunable peak/threshold pass over that
// derived signal with a minimum inter-event distance to reject noise.
package gait

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/stride-data/gaitmoment/internal/config"
	"github.com/stride-data/gaitmoment/internal/imu"
)

// Config holds segmentation parameters.
type Config struct {
	// DetectionSensor is the body segment whose gyro channels drive event
	// detection (typically the shank on the instrumented side).
	DetectionSensor string

	// DetectionWindow is the span a candidate must dominate to count as a
	// local peak.
	DetectionWindow time.Duration

	// MinStepInterval is the minimum distance between consecutive events;
	// the higher-magnitude candidate wins inside it.
	MinStepInterval time.Duration

	// Threshold is the minimum detection-signal magnitude for a candidate.
	Threshold float64

	// MinSteps is the fewest usable cycles a session may produce.
	MinSteps int
}

// ConfigFromTuning derives a segmenter config from the shared tuning file.
func ConfigFromTuning(t *config.TuningConfig) Config {
	return Config{
		DetectionSensor: t.GetDetectionSensor(),
		DetectionWindow: time.Duration(t.GetDetectionWindowMs() * float64(time.Millisecond)),
		MinStepInterval: time.Duration(t.GetMinStepIntervalMs() * float64(time.Millisecond)),
		Threshold:       t.GetDetectionThreshold(),
		MinSteps:        t.GetMinSteps(),
	}
}

// Segment detects heel-strike events in the session's synchronized frames
// and returns the ordered, non-overlapping steps between consecutive
// events. Step IDs increase with start time. Frames before the first event
// or after the last are left unlabeled and excluded from downstream use.
//
// Returns InsufficientStepsError when fewer than the configured minimum
// number of cycles is found.
func Segment(session *imu.Session, cfg Config) ([]imu.Step, error) {
	if len(session.Frames) < 2 {
		return nil, fmt.Errorf("session %s: no synchronized frames to segment", session.SessionID)
	}

	signal, err := detectionSignal(session, cfg.DetectionSensor)
	if err != nil {
		return nil, err
	}

	n := len(session.Frames)
	periodNanos := (session.Frames[n-1].TSNanos - session.Frames[0].TSNanos) / int64(n-1)
	if periodNanos <= 0 {
		return nil, fmt.Errorf("session %s: degenerate frame spacing", session.SessionID)
	}
	window := int(int64(cfg.DetectionWindow) / periodNanos)
	if window < 1 {
		window = 1
	}
	minDist := int(int64(cfg.MinStepInterval) / periodNanos)
	if minDist < 1 {
		minDist = 1
	}

	events := detectEvents(signal, cfg.Threshold, window, minDist)

	steps := make([]imu.Step, 0, max(0, len(events)-1))
	side := sideFromSegment(cfg.DetectionSensor)
	for i := 0; i+1 < len(events); i++ {
		start, end := events[i], events[i+1]
		steps = append(steps, imu.Step{
			ID:         i,
			Side:       side,
			Start:      start,
			End:        end,
			StartNanos: session.Frames[start].TSNanos,
			EndNanos:   session.Frames[end].TSNanos,
		})
	}
	if len(steps) < cfg.MinSteps {
		return nil, &imu.InsufficientStepsError{
			SessionID: session.SessionID,
			Detected:  len(steps),
			Minimum:   cfg.MinSteps,
		}
	}
	return steps, nil
}

// detectEvents finds local peaks above the threshold. A candidate must be
// the maximum of its surrounding window; candidates closer together than
// minDist are resolved in favour of the higher magnitude (earlier index on
// exact ties, keeping detection deterministic). Candidates too close to the
// recording edges to verify a full window are discarded.
func detectEvents(signal []float64, threshold float64, window, minDist int) []int {
	var candidates []int
	for i := window; i < len(signal)-window; i++ {
		v := signal[i]
		if v < threshold {
			continue
		}
		isPeak := true
		for j := i - window; j <= i+window; j++ {
			if signal[j] > v || (signal[j] == v && j < i) {
				isPeak = false
				break
			}
		}
		if isPeak {
			candidates = append(candidates, i)
		}
	}

	// Greedy suppression by magnitude: strongest candidates claim their
	// exclusion zone first.
	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ca, cb := candidates[order[a]], candidates[order[b]]
		if signal[ca] != signal[cb] {
			return signal[ca] > signal[cb]
		}
		return ca < cb
	})

	kept := make([]int, 0, len(candidates))
	for _, oi := range order {
		idx := candidates[oi]
		ok := true
		for _, k := range kept {
			if abs(idx-k) < minDist {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, idx)
		}
	}
	sort.Ints(kept)
	return kept
}

// StepIDs maps every frame index to its step ID, with -1 for frames outside
// any detected cycle. Spans are half-open so a shared boundary frame
// belongs only to the later step.
func StepIDs(frameCount int, steps []imu.Step) []int {
	ids := make([]int, frameCount)
	for i := range ids {
		ids[i] = -1
	}
	for _, st := range steps {
		for i := st.Start; i < st.End && i < frameCount; i++ {
			ids[i] = st.ID
		}
	}
	return ids
}

// detectionSignal builds the angular-rate magnitude of the detection sensor
// across all frames.
func detectionSignal(session *imu.Session, segment string) ([]float64, error) {
	var idx []int
	for _, axis := range []string{"X", "Y", "Z"} {
		i := session.Schema.Index("Gyro" + axis + "_" + segment)
		if i < 0 {
			return nil, fmt.Errorf("session %s: detection sensor %s has no Gyro%s channel",
				session.SessionID, segment, axis)
		}
		idx = append(idx, i)
	}
	out := make([]float64, len(session.Frames))
	for i, f := range session.Frames {
		var sum float64
		for _, j := range idx {
			sum += f.Values[j] * f.Values[j]
		}
		out[i] = math.Sqrt(sum)
	}
	return out, nil
}

func sideFromSegment(segment string) string {
	switch {
	case strings.HasPrefix(segment, "R_"):
		return "right"
	case strings.HasPrefix(segment, "L_"):
		return "left"
	default:
		return ""
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
