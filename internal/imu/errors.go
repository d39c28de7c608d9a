package imu

import (
	"fmt"
	"strings"
	"time"
)

// InsufficientDataError reports a sensor stream too short to resample
// onto a uniform grid.
type InsufficientDataError struct {
	SensorID string
	Samples  int
	Minimum  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("stream %s: %d samples, need at least %d to condition",
		e.SensorID, e.Samples, e.Minimum)
}

// SynchronizationError reports that a session's sensors share no usable
// overlapping time range.
type SynchronizationError struct {
	SessionID string
	Overlap   time.Duration
	Minimum   time.Duration
}

func (e *SynchronizationError) Error() string {
	if e.Overlap <= 0 {
		return fmt.Sprintf("session %s: sensor time ranges do not overlap", e.SessionID)
	}
	return fmt.Sprintf("session %s: sensor overlap %v shorter than minimum %v",
		e.SessionID, e.Overlap, e.Minimum)
}

// InsufficientStepsError reports that segmentation found too few usable
// gait cycles; the session is excluded rather than contributing a
// near-empty slice of the dataset.
type InsufficientStepsError struct {
	SessionID string
	Detected  int
	Minimum   int
}

func (e *InsufficientStepsError) Error() string {
	return fmt.Sprintf("session %s: detected %d steps, need at least %d",
		e.SessionID, e.Detected, e.Minimum)
}

// SchemaMismatchError reports that a session's channel set differs from the
// dataset it is being merged into. This is a configuration defect, not a
// data defect: the merge must abort rather than silently drop channels.
type SchemaMismatchError struct {
	SessionID string
	Want, Got []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("session %s: schema mismatch: dataset has [%s], session has [%s]",
		e.SessionID, strings.Join(e.Want, " "), strings.Join(e.Got, " "))
}
