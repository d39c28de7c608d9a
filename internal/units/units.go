// Package units provides shared constants and conversion for IMU channel units
package units

import "math"

// Unit constants for raw sensor recordings
const (
	MPS2   = "mps2"   // metres per second squared (canonical acceleration)
	G      = "g"      // standard gravity multiples
	MILLIG = "mg"     // thousandths of standard gravity
	RADPS  = "radps"  // radians per second (canonical angular rate)
	DEGPS  = "degps"  // degrees per second
	MDEGPS = "mdegps" // thousandths of a degree per second
)

// StandardGravity is the conventional value used for g-unit conversion.
const StandardGravity = 9.80665

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS2, G, MILLIG, RADPS, DEGPS, MDEGPS}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "mps2, g, mg, radps, degps, mdegps"
}

// ToCanonical converts a raw channel value to the canonical unit for its
// kind: m/s² for accelerations, rad/s for angular rates. Values already in
// canonical units pass through unchanged. The conditioner validates units
// before conversion, so an unknown unit here means canonical.
func ToCanonical(value float64, unit string) float64 {
	switch unit {
	case G:
		return value * StandardGravity
	case MILLIG:
		return value * StandardGravity / 1000
	case DEGPS:
		return value * math.Pi / 180
	case MDEGPS:
		return value * math.Pi / 180 / 1000
	default:
		return value
	}
}

// CanonicalUnit returns the canonical unit a raw unit converts to.
func CanonicalUnit(unit string) string {
	switch unit {
	case G, MILLIG, MPS2:
		return MPS2
	case DEGPS, MDEGPS, RADPS:
		return RADPS
	default:
		return unit
	}
}
