// Package pipeline composes the per-session processing stages into a
// dataset builder: conditioning each sensor stream, synchronizing the
// session onto a common clock, segmenting gait cycles, and assembling
// canonical step samples. Sessions are independent, so a worker pool
// processes them concurrently and failures in one session never abort
// the run.
package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/stride-data/gaitmoment/internal/assemble"
	"github.com/stride-data/gaitmoment/internal/condition"
	"github.com/stride-data/gaitmoment/internal/config"
	"github.com/stride-data/gaitmoment/internal/gait"
	"github.com/stride-data/gaitmoment/internal/imu"
	"github.com/stride-data/gaitmoment/internal/monitoring"
	"github.com/stride-data/gaitmoment/internal/syncer"
)

var logf = monitoring.Component("Pipeline")

// Config carries the stage configurations plus the worker count.
type Config struct {
	Workers   int
	Condition condition.Config
	Sync      syncer.Config
	Gait      gait.Config
	Assemble  assemble.Config
}

// ConfigFromTuning builds a pipeline Config from the tuning file.
func ConfigFromTuning(t *config.TuningConfig) Config {
	return Config{
		Workers:   t.GetWorkers(),
		Condition: condition.ConfigFromTuning(t),
		Sync:      syncer.ConfigFromTuning(t),
		Gait:      gait.ConfigFromTuning(t),
		Assemble:  assemble.ConfigFromTuning(t),
	}
}

// SessionResult is the output of processing one session.
type SessionResult struct {
	Session *imu.Session
	Steps   []imu.Step
	Samples []*assemble.StepSample
	Schema  imu.Schema // input channel schema of the assembled samples

	// StepIDs labels each synchronized frame with the step it belongs
	// to, -1 outside any step.
	StepIDs []int
}

// Pipeline runs sessions through the processing stages and accumulates
// the resulting step samples into a shared dataset.
type Pipeline struct {
	cfg Config

	// Calibrations maps sensor IDs to orientation corrections estimated
	// from static trials. Sensors without an entry pass through
	// unrotated.
	Calibrations map[string]*condition.Calibration
}

// New creates a pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Pipeline{cfg: cfg, Calibrations: make(map[string]*condition.Calibration)}
}

// ProcessSession runs one session through conditioning, synchronization,
// segmentation, and assembly. The session is modified in place: streams
// are replaced by their conditioned versions and the synchronized frames
// are attached.
func (p *Pipeline) ProcessSession(session *imu.Session) (*SessionResult, error) {
	if len(session.Streams) == 0 {
		return nil, fmt.Errorf("session %s has no streams", session.SessionID)
	}

	for i, stream := range session.Streams {
		if cal := p.Calibrations[stream.SensorID]; cal != nil {
			if err := cal.Apply(stream); err != nil {
				return nil, fmt.Errorf("session %s: calibrate %s: %w", session.SessionID, stream.SensorID, err)
			}
		}
		conditioned, err := p.conditionStream(stream)
		if err != nil {
			return nil, fmt.Errorf("session %s: condition %s: %w", session.SessionID, stream.SensorID, err)
		}
		session.Streams[i] = conditioned
	}

	if err := syncer.Synchronize(session, p.cfg.Sync); err != nil {
		return nil, fmt.Errorf("session %s: %w", session.SessionID, err)
	}

	steps, err := gait.Segment(session, p.cfg.Gait)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", session.SessionID, err)
	}

	samples, schema, err := assemble.AssembleSession(session, steps, p.cfg.Assemble)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", session.SessionID, err)
	}

	return &SessionResult{
		Session: session,
		Steps:   steps,
		Samples: samples,
		Schema:  schema,
		StepIDs: gait.StepIDs(len(session.Frames), steps),
	}, nil
}

// conditionStream conditions one stream at its resolved target rate and
// keeps the longest contiguous segment when gaps split the recording.
// Dropped segments are logged with their spans.
func (p *Pipeline) conditionStream(stream *imu.SensorStream) (*imu.SensorStream, error) {
	cfg := p.cfg.Condition
	if cfg.TargetRateHz <= 0 {
		cfg.TargetRateHz = stream.NominalRateHz
	}
	segments, err := condition.Condition(stream, cfg)
	if err != nil {
		return nil, err
	}
	best := segments[0]
	for _, seg := range segments[1:] {
		if len(seg.Samples) > len(best.Samples) {
			best = seg
		}
	}
	if len(segments) > 1 {
		logf("sensor %s split into %d segments by gaps, keeping longest (%d samples, %v)",
			stream.SensorID, len(segments), len(best.Samples), best.Duration())
	}
	return best, nil
}

// SessionError pairs a failed session with its error.
type SessionError struct {
	SessionID string
	SubjectID string
	Err       error
}

func (e SessionError) Error() string {
	return fmt.Sprintf("session %s (subject %s): %v", e.SessionID, e.SubjectID, e.Err)
}

// Run processes the sessions with the configured worker pool, merging
// every successful session into the returned dataset. Per-session data
// failures are logged and reported, never fatal to the run. A schema
// mismatch between sessions is different: it means the run is
// misconfigured, so it aborts the whole run with a non-nil error and no
// dataset. Results come back sorted by session ID so output order is
// stable regardless of worker scheduling.
func (p *Pipeline) Run(sessions []*imu.Session) (*assemble.Dataset, []*SessionResult, []SessionError, error) {
	dataset := assemble.NewDataset()
	results := make([]*SessionResult, 0, len(sessions))
	var failures []SessionError
	var fatal error

	jobs := make(chan *imu.Session)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < p.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for session := range jobs {
				res, err := p.ProcessSession(session)
				if err != nil {
					mu.Lock()
					failures = append(failures, SessionError{
						SessionID: session.SessionID,
						SubjectID: session.SubjectID,
						Err:       err,
					})
					mu.Unlock()
					logf("session %s (subject %s) failed: %v",
						session.SessionID, session.SubjectID, err)
					continue
				}
				mergeErr := dataset.Merge(session.SessionID, res.Schema, res.Samples)
				mu.Lock()
				var mismatch *imu.SchemaMismatchError
				switch {
				case errors.As(mergeErr, &mismatch):
					if fatal == nil {
						fatal = mergeErr
					}
				case mergeErr != nil:
					failures = append(failures, SessionError{
						SessionID: session.SessionID,
						SubjectID: session.SubjectID,
						Err:       mergeErr,
					})
					logf("session %s rejected by dataset: %v", session.SessionID, mergeErr)
				default:
					results = append(results, res)
				}
				mu.Unlock()
			}
		}()
	}

	for _, session := range sessions {
		mu.Lock()
		aborted := fatal != nil
		mu.Unlock()
		if aborted {
			break
		}
		jobs <- session
	}
	close(jobs)
	wg.Wait()

	if fatal != nil {
		logf("run aborted: %v", fatal)
		return nil, nil, nil, fatal
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Session.SessionID < results[j].Session.SessionID
	})
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].SessionID < failures[j].SessionID
	})

	logf("processed %d sessions: %d ok (%d steps), %d failed",
		len(sessions), len(results), dataset.Len(), len(failures))
	return dataset, results, failures, nil
}
