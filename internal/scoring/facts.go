// Package scoring turns a snapshot of SMART attributes into a health score,
// a component breakdown, and a list of escalated attributes. Every function
// here is pure: same DeviceFacts in, same ScoringResult out, no clock reads,
// no I/O.
package scoring

import "github.com/ghostwatch/ghostwatchd/internal/device"

// DeviceFacts is the input to Score. It is derived from a device.DeviceRecord
// by the caller, never constructed by the reader directly.
type DeviceFacts struct {
	Attributes device.AttributeMap
	Rotational bool

	// HasWearData is true when both total_lbas_written and a rated
	// endurance are known for this model. Age and temperature presence are
	// derived from the attribute map itself (IDs 9 and 194) so absent
	// readings redistribute weight the same way any other absent
	// attribute does. total_lbas_written and RatedEndurance are compared
	// directly, in whatever unit the model's rated-endurance table uses.
	HasWearData    bool
	RatedEndurance uint64 // only meaningful when HasWearData
}

const hoursPerYear = 8760

// ageYears converts power_on_hours into a year count for ageCurve.
func (f DeviceFacts) ageYears() (float64, bool) {
	attr, ok := f.Attributes.Get(device.AttrPowerOnHours)
	if !ok {
		return 0, false
	}
	return float64(attr.RawValue) / hoursPerYear, true
}

// ScoringResult is the pure output of Score.
type ScoringResult struct {
	HealthScore int // clamped to [-100, 100]
	HealthState device.HealthState
	Breakdown   device.ComponentBreakdown
	Escalated   []device.EscalatedAttribute
}
