// Package decision turns a scored DeviceRecord into an operator-facing
// severity and an unmount eligibility flag. Every function here is a pure
// function of its inputs.
package decision

import "github.com/ghostwatch/ghostwatchd/internal/device"

// reallocatedCritical, reallocatedEmergency, pendingCritical, and the
// emergency temperature tiers have no corresponding settings key: the
// config file can move the warning lines and the temperature critical
// lines, not the reallocated/pending critical lines or any emergency tier.
const (
	reallocatedCritical  = 50
	reallocatedEmergency = 500

	pendingCritical = 50

	tempHDDEmergency = 65
	tempSSDEmergency = 75
)

// Thresholds holds every warning/critical line Decide consults. Zero value
// is never used directly; callers should start from DefaultThresholds and
// override only the fields alert_thresholds.* supplies.
type Thresholds struct {
	ReallocatedWarning uint64
	PendingWarning     uint64
	// UncorrectableWarning and TimeoutWarning have no dedicated decision
	// tier of their own: spec's decision-threshold table never lists
	// reported_uncorrectable or command_timeout as decision signals, but
	// alert_thresholds.smart.{uncorrectable,timeout} still have to move
	// something, so crossing either line contributes a WARNING-level
	// signal here (never critical or emergency).
	UncorrectableWarning uint64
	TimeoutWarning       uint64

	TempHDDWarning  int
	TempHDDCritical int
	TempSSDWarning  int
	TempSSDCritical int
}

// DefaultThresholds returns the warning lines ghostwatchd ships with before
// any settings file is read.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ReallocatedWarning:   5,
		PendingWarning:       1,
		UncorrectableWarning: 1,
		TimeoutWarning:       5,
		TempHDDWarning:       50,
		TempHDDCritical:      60,
		TempSSDWarning:       60,
		TempSSDCritical:      70,
	}
}

// Decide evaluates curr against t and, where available, prev (the
// previously completed record for the same device) for the trending-up
// emergency signal. prev may be nil for a device's first completed scan.
func Decide(prev, curr *device.DeviceRecord, t Thresholds) device.Decision {
	if curr.GDCState == "UNASSESSABLE" {
		return device.Decision{Status: device.StatusOK, Reasons: nil, Notes: []string{"unassessable"}}
	}

	reallocated := curr.Attributes.RawOrZero(device.AttrReallocatedSectors)
	pending := curr.Attributes.RawOrZero(device.AttrPendingSectors)
	temp := curr.Attributes.RawOrZero(device.AttrTemperature)
	uncorrectable := curr.Attributes.RawOrZero(device.AttrReportedUncorrectable)
	timeout := curr.Attributes.RawOrZero(device.AttrCommandTimeout)

	warnWarning, warnCritical, warnEmergencyCandidates, reasons := evaluateSignals(curr, t, reallocated, pending, temp, uncorrectable, timeout)

	trendingCandidate := false
	if prev != nil {
		prevReallocated := prev.Attributes.RawOrZero(device.AttrReallocatedSectors)
		prevPending := prev.Attributes.RawOrZero(device.AttrPendingSectors)
		if reallocated > prevReallocated && pending > prevPending {
			trendingCandidate = true
			reasons = append(reasons, "pending_and_reallocated_both_increasing")
		}
	}

	emergencyCandidateCount := warnEmergencyCandidates
	if trendingCandidate {
		emergencyCandidateCount++
	}

	var notes []string
	status := device.StatusOK
	switch {
	case emergencyCandidateCount >= 2 || trendingCandidate:
		status = device.StatusEmergency
	case emergencyCandidateCount == 1:
		status = device.StatusCritical
		notes = append(notes, "near_miss_emergency: single emergency signal, requires a second to promote")
	case warnCritical:
		status = device.StatusCritical
	case warnWarning:
		status = device.StatusWarning
	}

	return device.Decision{
		Status:              status,
		Reasons:             reasons,
		CanEmergencyUnmount: status == device.StatusEmergency,
		Notes:               notes,
	}
}

// evaluateSignals returns whether any signal crosses warning/critical, how
// many independent emergency candidates are present, and the reason tags
// collected along the way.
func evaluateSignals(curr *device.DeviceRecord, t Thresholds, reallocated, pending, temp, uncorrectable, timeout uint64) (warning, critical bool, emergencyCandidates int, reasons []string) {
	tempWarn, tempCrit, tempEmerg := t.TempHDDWarning, t.TempHDDCritical, tempHDDEmergency
	if !curr.Rotational {
		tempWarn, tempCrit, tempEmerg = t.TempSSDWarning, t.TempSSDCritical, tempSSDEmergency
	}

	if reallocated >= reallocatedEmergency {
		emergencyCandidates++
		reasons = append(reasons, "reallocated_sectors_emergency")
	}
	switch {
	case reallocated >= reallocatedCritical:
		critical = true
		reasons = append(reasons, "reallocated_sectors_critical")
	case reallocated >= t.ReallocatedWarning:
		warning = true
		reasons = append(reasons, "reallocated_sectors_warning")
	}

	switch {
	case pending >= pendingCritical:
		critical = true
		reasons = append(reasons, "pending_sectors_critical")
	case pending >= t.PendingWarning:
		warning = true
		reasons = append(reasons, "pending_sectors_warning")
	}

	if temp >= uint64(tempEmerg) {
		emergencyCandidates++
		reasons = append(reasons, "temperature_emergency")
	}
	switch {
	case temp >= uint64(tempCrit):
		critical = true
		reasons = append(reasons, "temperature_critical")
	case temp >= uint64(tempWarn):
		warning = true
		reasons = append(reasons, "temperature_warning")
	}

	if uncorrectable >= t.UncorrectableWarning {
		warning = true
		reasons = append(reasons, "reported_uncorrectable_warning")
	}
	if timeout >= t.TimeoutWarning {
		warning = true
		reasons = append(reasons, "command_timeout_warning")
	}

	return warning, critical, emergencyCandidates, reasons
}
