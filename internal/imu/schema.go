package imu

import "fmt"

// Schema is the ordered list of channel names shared by every synchronized
// frame and every assembled step sample. A single Schema value flows from
// synchronization through assembly so the channel order cannot drift
// between stages.
type Schema struct {
	Channels []string
}

// NewSchema builds a schema, rejecting duplicate channel names.
func NewSchema(channels []string) (Schema, error) {
	seen := make(map[string]bool, len(channels))
	for _, c := range channels {
		if c == "" {
			return Schema{}, fmt.Errorf("schema: empty channel name")
		}
		if seen[c] {
			return Schema{}, fmt.Errorf("schema: duplicate channel %q", c)
		}
		seen[c] = true
	}
	out := Schema{Channels: make([]string, len(channels))}
	copy(out.Channels, channels)
	return out, nil
}

// Len returns the number of channels.
func (s Schema) Len() int { return len(s.Channels) }

// Index returns the position of a channel name, or -1 if absent.
func (s Schema) Index(name string) int {
	for i, c := range s.Channels {
		if c == name {
			return i
		}
	}
	return -1
}

// Equal reports whether two schemas have identical channels in identical order.
func (s Schema) Equal(other Schema) bool {
	if len(s.Channels) != len(other.Channels) {
		return false
	}
	for i, c := range s.Channels {
		if c != other.Channels[i] {
			return false
		}
	}
	return true
}

// Standard channel name components. Sensors are identified by body segment;
// channel names compose field and segment, e.g. "GyroZ_R_SHANK".
const (
	SegmentRightShank = "R_SHANK"
	SegmentRightThigh = "R_THIGH"
	SegmentLeftShank  = "L_SHANK"
	SegmentLeftThigh  = "L_THIGH"
	SegmentRightFoot  = "R_FOOT"
	SegmentLeftFoot   = "L_FOOT"
	SegmentWaist      = "WAIST"
	SegmentChest      = "CHEST"
)

// IMUFields are the per-sensor channel fields in canonical order.
var IMUFields = []string{"AccelX", "AccelY", "AccelZ", "GyroX", "GyroY", "GyroZ"}

// Supplementary channels appended by the assembler.
const (
	ChannelPhase    = "gait_phase"
	ChannelBodyMass = "body_weight"
	ChannelBodyTall = "body_height"
)

// Target output channels: the two knee moment curves, in fixed order.
var MomentChannels = []string{"KNEE_ADDUCTION_MOMENT", "KNEE_FLEXION_MOMENT"}

// SensorChannels returns the canonical channel names for one sensor segment.
func SensorChannels(segment string) []string {
	out := make([]string, 0, len(IMUFields))
	for _, f := range IMUFields {
		out = append(out, f+"_"+segment)
	}
	return out
}
