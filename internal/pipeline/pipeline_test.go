package pipeline

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stride-data/gaitmoment/internal/config"
	"github.com/stride-data/gaitmoment/internal/imu"
	"github.com/stride-data/gaitmoment/internal/testutil"
)

func defaultConfig() Config {
	return ConfigFromTuning(&config.TuningConfig{})
}

func walkingSession(id, subject string) *imu.Session {
	return testutil.WalkingSession(id, subject,
		[]string{imu.SegmentRightShank, imu.SegmentRightThigh}, 100, 0.8, 10)
}

func TestProcessSessionEndToEnd(t *testing.T) {
	t.Parallel()

	p := New(defaultConfig())
	res, err := p.ProcessSession(walkingSession("s1", "subj1"))
	require.NoError(t, err)

	assert.NotEmpty(t, res.Session.Frames)
	assert.GreaterOrEqual(t, len(res.Steps), 4)
	assert.Equal(t, len(res.Steps), len(res.Samples))
	assert.Len(t, res.StepIDs, len(res.Session.Frames))

	// Every sample has the canonical length and carries labels.
	for _, s := range res.Samples {
		assert.Len(t, s.Inputs, 100)
		require.True(t, s.HasLabels())
		assert.Len(t, s.Labels, 100)
		assert.Equal(t, "subj1", s.SubjectID)
	}

	// Input schema carries the auxiliary channels but no moment channel.
	assert.GreaterOrEqual(t, res.Schema.Index(imu.ChannelPhase), 0)
	assert.GreaterOrEqual(t, res.Schema.Index(imu.ChannelBodyMass), 0)
	assert.GreaterOrEqual(t, res.Schema.Index(imu.ChannelBodyTall), 0)
	for _, m := range imu.MomentChannels {
		assert.Less(t, res.Schema.Index(m), 0)
	}

	// Frames inside detected steps are labeled, edges are not.
	assert.Equal(t, -1, res.StepIDs[0])
	assert.Equal(t, 0, res.StepIDs[res.Steps[0].Start])
}

func TestProcessSessionDeterministic(t *testing.T) {
	t.Parallel()

	p := New(defaultConfig())
	r1, err := p.ProcessSession(walkingSession("s1", "subj1"))
	require.NoError(t, err)
	r2, err := p.ProcessSession(walkingSession("s1", "subj1"))
	require.NoError(t, err)

	if diff := cmp.Diff(r1.Samples, r2.Samples); diff != "" {
		t.Errorf("repeated runs differ (-first +second):\n%s", diff)
	}
	assert.Equal(t, r1.Steps, r2.Steps)
}

func TestProcessSessionNoStreams(t *testing.T) {
	t.Parallel()

	p := New(defaultConfig())
	_, err := p.ProcessSession(&imu.Session{SessionID: "empty"})
	assert.Error(t, err)
}

func TestRunIsolatesFailures(t *testing.T) {
	t.Parallel()

	sessions := []*imu.Session{
		walkingSession("s1", "subj1"),
		{SessionID: "broken", SubjectID: "subj2"},
		walkingSession("s3", "subj3"),
	}

	cfg := defaultConfig()
	cfg.Workers = 2
	ds, results, failures, err := New(cfg).Run(sessions)
	require.NoError(t, err)

	require.Len(t, failures, 1)
	assert.Equal(t, "broken", failures[0].SessionID)
	assert.Contains(t, failures[0].Error(), "subj2")

	require.Len(t, results, 2)
	assert.Equal(t, "s1", results[0].Session.SessionID)
	assert.Equal(t, "s3", results[1].Session.SessionID)

	assert.Equal(t, len(results[0].Samples)+len(results[1].Samples), ds.Len())
	assert.ElementsMatch(t, []string{"subj1", "subj3"}, ds.Subjects())
}

func TestRunMergesIntoOneDataset(t *testing.T) {
	t.Parallel()

	sessions := []*imu.Session{
		walkingSession("a", "subj1"),
		walkingSession("b", "subj2"),
	}
	ds, results, failures, err := New(defaultConfig()).Run(sessions)
	require.NoError(t, err)
	require.Empty(t, failures)
	require.Len(t, results, 2)

	// Both sessions share one schema.
	assert.True(t, ds.Schema().Equal(results[0].Schema))
	assert.True(t, ds.Schema().Equal(results[1].Schema))
	assert.Len(t, ds.Labeled(), ds.Len())
}

func TestRunAbortsOnSchemaMismatch(t *testing.T) {
	t.Parallel()

	// Sessions recorded with different sensor sets produce different
	// dataset schemas. That is a configuration defect, not a data
	// failure, so the run must abort instead of skipping sessions.
	sessions := []*imu.Session{
		walkingSession("a", "subj1"),
		testutil.WalkingSession("b", "subj2", []string{imu.SegmentRightShank}, 100, 0.8, 10),
	}

	cfg := defaultConfig()
	cfg.Workers = 2
	ds, results, failures, err := New(cfg).Run(sessions)

	var mismatch *imu.SchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Nil(t, ds)
	assert.Nil(t, results)
	assert.Nil(t, failures)
}
