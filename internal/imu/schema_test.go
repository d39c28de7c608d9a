package imu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchema(t *testing.T) {
	t.Parallel()

	s, err := NewSchema([]string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 1, s.Index("b"))
	assert.Equal(t, -1, s.Index("z"))
}

func TestNewSchemaRejectsDuplicates(t *testing.T) {
	t.Parallel()

	_, err := NewSchema([]string{"a", "b", "a"})
	assert.Error(t, err)

	_, err = NewSchema([]string{"a", ""})
	assert.Error(t, err)
}

func TestSchemaEqual(t *testing.T) {
	t.Parallel()

	a, err := NewSchema([]string{"x", "y"})
	require.NoError(t, err)
	b, err := NewSchema([]string{"x", "y"})
	require.NoError(t, err)
	c, err := NewSchema([]string{"y", "x"})
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c), "channel order is part of the schema")
}

func TestSensorChannels(t *testing.T) {
	t.Parallel()

	got := SensorChannels(SegmentLeftShank)
	assert.Equal(t, []string{
		"AccelX_L_SHANK", "AccelY_L_SHANK", "AccelZ_L_SHANK",
		"GyroX_L_SHANK", "GyroY_L_SHANK", "GyroZ_L_SHANK",
	}, got)
}
