// Package assemble turns variable-length gait cycles into fixed-length
// step samples and collects them into the step-indexed dataset consumed by
// the moment estimator. Length normalization is interpolation-based:
// stretching or compressing the cycle preserves its shape, where padding
// with sentinels would introduce discontinuities the model would have to
// learn to ignore.
package assemble

import (
	"fmt"
	"sync"

	"github.com/stride-data/gaitmoment/internal/config"
	"github.com/stride-data/gaitmoment/internal/imu"
)

// Config holds assembly parameters.
type Config struct {
	// CanonicalLength is the fixed sequence length L every step is
	// resampled to.
	CanonicalLength int
}

// ConfigFromTuning derives an assembler config from the shared tuning file.
func ConfigFromTuning(t *config.TuningConfig) Config {
	return Config{CanonicalLength: t.GetCanonicalLength()}
}

// StepSample is the canonical fixed-length representation of one gait
// cycle: input channels resampled to length L, paired with the
// ground-truth moment curves when the session carried them. Immutable once
// assembled.
type StepSample struct {
	SessionID string
	SubjectID string
	TrialID   string
	StepID    int
	Side      string

	// Inputs is L x C in the dataset's channel order.
	Inputs [][]float64

	// Labels is L x 2 (adduction, flexion), nil for inference-only samples.
	Labels [][]float64

	StartNanos int64
	EndNanos   int64
}

// HasLabels reports whether ground-truth moments accompany the sample.
func (s *StepSample) HasLabels() bool { return s.Labels != nil }

// AssembleSession converts a session's detected steps into StepSamples.
// The returned schema lists the input channels: every synchronized sensor
// channel (moment channels excluded), then the supplementary gait-phase
// and subject weight/height channels. The order is identical for every
// session built from the same synchronized schema.
func AssembleSession(session *imu.Session, steps []imu.Step, cfg Config) ([]*StepSample, imu.Schema, error) {
	if cfg.CanonicalLength < 2 {
		return nil, imu.Schema{}, fmt.Errorf("canonical length %d too small", cfg.CanonicalLength)
	}
	L := cfg.CanonicalLength

	inputIdx, momentIdx, err := partitionChannels(session.Schema)
	if err != nil {
		return nil, imu.Schema{}, fmt.Errorf("session %s: %w", session.SessionID, err)
	}
	hasLabels := session.Moments != nil && len(momentIdx) == len(imu.MomentChannels)

	channels := make([]string, 0, len(inputIdx)+3)
	for _, i := range inputIdx {
		channels = append(channels, session.Schema.Channels[i])
	}
	channels = append(channels, imu.ChannelPhase, imu.ChannelBodyMass, imu.ChannelBodyTall)
	schema, err := imu.NewSchema(channels)
	if err != nil {
		return nil, imu.Schema{}, fmt.Errorf("session %s: %w", session.SessionID, err)
	}

	samples := make([]*StepSample, 0, len(steps))
	for _, st := range steps {
		if st.Start < 0 || st.End > len(session.Frames) || st.Len() < 2 {
			return nil, imu.Schema{}, fmt.Errorf("session %s: step %d span [%d,%d) invalid",
				session.SessionID, st.ID, st.Start, st.End)
		}

		inputs := make([][]float64, L)
		for i := range inputs {
			inputs[i] = make([]float64, schema.Len())
		}
		for col, chIdx := range inputIdx {
			curve := frameColumn(session.Frames, st, chIdx)
			resampled := ResampleToLength(curve, L)
			for i := range resampled {
				inputs[i][col] = resampled[i]
			}
		}
		for i := 0; i < L; i++ {
			inputs[i][len(inputIdx)] = float64(i) / float64(L-1) // gait phase 0..1
			inputs[i][len(inputIdx)+1] = session.SubjectWeightKG
			inputs[i][len(inputIdx)+2] = session.SubjectHeightM
		}

		var labels [][]float64
		if hasLabels {
			labels = make([][]float64, L)
			for i := range labels {
				labels[i] = make([]float64, len(momentIdx))
			}
			for col, chIdx := range momentIdx {
				curve := frameColumn(session.Frames, st, chIdx)
				resampled := ResampleToLength(curve, L)
				for i := range resampled {
					labels[i][col] = resampled[i]
				}
			}
		}

		samples = append(samples, &StepSample{
			SessionID:  session.SessionID,
			SubjectID:  session.SubjectID,
			TrialID:    session.TrialID,
			StepID:     st.ID,
			Side:       st.Side,
			Inputs:     inputs,
			Labels:     labels,
			StartNanos: st.StartNanos,
			EndNanos:   st.EndNanos,
		})
	}
	return samples, schema, nil
}

// ResampleToLength linearly interpolates a curve onto a new length,
// preserving the first and last values exactly.
func ResampleToLength(curve []float64, length int) []float64 {
	out := make([]float64, length)
	if len(curve) == 0 {
		return out
	}
	if len(curve) == 1 {
		for i := range out {
			out[i] = curve[0]
		}
		return out
	}
	scale := float64(len(curve)-1) / float64(length-1)
	for i := range out {
		pos := float64(i) * scale
		j := int(pos)
		if j >= len(curve)-1 {
			out[i] = curve[len(curve)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = curve[j]*(1-frac) + curve[j+1]*frac
	}
	return out
}

// partitionChannels splits a synchronized schema into input channel indices
// and moment (label) channel indices, the latter in imu.MomentChannels order.
func partitionChannels(schema imu.Schema) (inputs []int, moments []int, err error) {
	isMoment := make(map[string]bool, len(imu.MomentChannels))
	for _, m := range imu.MomentChannels {
		isMoment[m] = true
	}
	for i, c := range schema.Channels {
		if !isMoment[c] {
			inputs = append(inputs, i)
		}
	}
	for _, m := range imu.MomentChannels {
		if i := schema.Index(m); i >= 0 {
			moments = append(moments, i)
		}
	}
	if len(moments) != 0 && len(moments) != len(imu.MomentChannels) {
		return nil, nil, fmt.Errorf("partial moment channel set: have %d of %d",
			len(moments), len(imu.MomentChannels))
	}
	if len(inputs) == 0 {
		return nil, nil, fmt.Errorf("no input channels in schema")
	}
	return inputs, moments, nil
}

func frameColumn(frames []imu.SynchronizedFrame, st imu.Step, chIdx int) []float64 {
	out := make([]float64, st.Len())
	for i := st.Start; i < st.End; i++ {
		out[i-st.Start] = frames[i].Values[chIdx]
	}
	return out
}

// Dataset is the step-indexed dataset: an append-only, schema-checked
// collection of StepSamples with stable subject/session provenance. Merge
// is the pipeline's single serialization point, so it is safe for
// concurrent use.
type Dataset struct {
	mu      sync.Mutex
	schema  imu.Schema
	samples []*StepSample
}

// NewDataset creates an empty dataset; the first merged session fixes the
// schema.
func NewDataset() *Dataset {
	return &Dataset{}
}

// Merge appends one session's samples. The first merge adopts the schema;
// any later session whose schema differs aborts with SchemaMismatchError:
// a differing channel set is a configuration defect, and dropping channels
// would corrupt everything trained downstream.
func (d *Dataset) Merge(sessionID string, schema imu.Schema, samples []*StepSample) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.schema.Len() == 0 {
		d.schema = schema
	} else if !d.schema.Equal(schema) {
		return &imu.SchemaMismatchError{
			SessionID: sessionID,
			Want:      d.schema.Channels,
			Got:       schema.Channels,
		}
	}
	d.samples = append(d.samples, samples...)
	return nil
}

// Schema returns the dataset's input channel schema.
func (d *Dataset) Schema() imu.Schema {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.schema
}

// Samples returns the assembled samples in merge order.
func (d *Dataset) Samples() []*StepSample {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*StepSample, len(d.samples))
	copy(out, d.samples)
	return out
}

// Len returns the number of assembled samples.
func (d *Dataset) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.samples)
}

// Subjects returns the distinct subject IDs in first-appearance order.
func (d *Dataset) Subjects() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, s := range d.samples {
		if !seen[s.SubjectID] {
			seen[s.SubjectID] = true
			out = append(out, s.SubjectID)
		}
	}
	return out
}

// Labeled returns the subset of samples carrying ground-truth moments.
// Inference-only samples are retained in the dataset but never reach a
// training split.
func (d *Dataset) Labeled() []*StepSample {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*StepSample
	for _, s := range d.samples {
		if s.HasLabels() {
			out = append(out, s)
		}
	}
	return out
}

// SplitBySubjects partitions the labeled samples into train and held-out
// sets disjoint by subject: every sample of a subject named in holdOut
// lands in the held-out set, everything else in train. Splitting by
// subject rather than by step is what makes the evaluation measure
// generalization to unseen people.
func (d *Dataset) SplitBySubjects(holdOut []string) (train, test []*StepSample) {
	held := make(map[string]bool, len(holdOut))
	for _, s := range holdOut {
		held[s] = true
	}
	for _, s := range d.Labeled() {
		if held[s.SubjectID] {
			test = append(test, s)
		} else {
			train = append(train, s)
		}
	}
	return train, test
}
