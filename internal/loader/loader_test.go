package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stride-data/gaitmoment/internal/imu"
)

func writeSensorCSV(t *testing.T, path string, channels []string, rows int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("ts_nanos," + strings.Join(channels, ",") + "\n")
	for i := 0; i < rows; i++ {
		b.WriteString(fmt.Sprintf("%d", int64(i)*10_000_000))
		for c := range channels {
			b.WriteString(fmt.Sprintf(",%g", float64(i)*0.1+float64(c)))
		}
		b.WriteString("\n")
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func writeSessionDir(t *testing.T, root, name string, withMoments bool) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	writeSensorCSV(t, filepath.Join(dir, "R_SHANK.csv"), imu.SensorChannels(imu.SegmentRightShank), 50)
	writeSensorCSV(t, filepath.Join(dir, "static_R_SHANK.csv"), imu.SensorChannels(imu.SegmentRightShank), 20)

	meta := `{
		"subject_id": "subj1",
		"trial_id": "baseline",
		"side": "right",
		"weight_kg": 72.5,
		"height_m": 1.8,
		"sensors": [
			{"segment": "R_SHANK", "rate_hz": 100, "unit": "mps2/radps", "static_file": "static_R_SHANK.csv"}
		]`
	if withMoments {
		writeSensorCSV(t, filepath.Join(dir, "moments.csv"), imu.MomentChannels, 50)
		meta += `,
		"moments": {"file": "moments.csv", "rate_hz": 100}`
	}
	meta += "\n}"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meta.json"), []byte(meta), 0o644))
	return dir
}

func TestLoadSession(t *testing.T) {
	t.Parallel()

	dir := writeSessionDir(t, t.TempDir(), "session-01", true)
	session, cals, err := LoadSession(dir)
	require.NoError(t, err)

	assert.Equal(t, "session-01", session.SessionID)
	assert.Equal(t, "subj1", session.SubjectID)
	assert.Equal(t, 72.5, session.SubjectWeightKG)
	require.Len(t, session.Streams, 1)
	assert.Equal(t, imu.SegmentRightShank, session.Streams[0].SensorID)
	assert.Len(t, session.Streams[0].Samples, 50)
	assert.Equal(t, 100.0, session.Streams[0].NominalRateHz)

	require.NotNil(t, session.Moments)
	assert.Equal(t, imu.MomentChannels, session.Moments.Channels)

	require.Contains(t, cals, imu.SegmentRightShank)
}

func TestLoadSessionWithoutMoments(t *testing.T) {
	t.Parallel()

	dir := writeSessionDir(t, t.TempDir(), "session-02", false)
	session, _, err := LoadSession(dir)
	require.NoError(t, err)
	assert.Nil(t, session.Moments)
}

func TestLoadSessionBadHeader(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := writeSessionDir(t, root, "session-03", false)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "R_SHANK.csv"),
		[]byte("time,a,b\n1,2,3\n"), 0o644))

	_, _, err := LoadSession(dir)
	assert.ErrorContains(t, err, "header")
}

func TestLoadSessionMissingMeta(t *testing.T) {
	t.Parallel()

	_, _, err := LoadSession(t.TempDir())
	assert.Error(t, err)
}

func TestLoadSessions(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeSessionDir(t, root, "b-session", false)
	writeSessionDir(t, root, "a-session", true)

	sessions, cals, err := LoadSessions(root)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	// Name order, not directory creation order.
	assert.Equal(t, "a-session", sessions[0].SessionID)
	assert.Equal(t, "b-session", sessions[1].SessionID)
	assert.Contains(t, cals, imu.SegmentRightShank)
}

func TestLoadSessionsEmptyRoot(t *testing.T) {
	t.Parallel()

	_, _, err := LoadSessions(t.TempDir())
	assert.Error(t, err)
}
