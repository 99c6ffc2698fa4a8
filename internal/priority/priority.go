// Package priority defines the shared ordering convention for pipeline
// units, trigger rules, resolution groups, and candidates: an integer in
// [0,100] where higher runs or is tried first, with ties broken by
// registration order.
package priority

const (
	// Min is the lowest valid priority.
	Min = 0
	// Max is the highest valid priority.
	Max = 100
	// Default is used when a component declares no priority of its own.
	Default = 50
)

// Clamp forces p into [Min, Max]. Out-of-range configured values are
// clamped rather than rejected.
func Clamp(p int) int {
	if p < Min {
		return Min
	}
	if p > Max {
		return Max
	}
	return p
}
