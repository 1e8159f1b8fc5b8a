package scoring

import (
	"sort"

	"github.com/ghostwatch/ghostwatchd/internal/device"
)

// component is one weighted term of the health score. present is evaluated
// against the facts so an absent attribute can be excluded and its weight
// redistributed, per the absent-vs-zero rule.
type component struct {
	name    string
	weight  float64
	present func(DeviceFacts) bool
	value   func(DeviceFacts) float64 // only called when present
}

func hasAttr(id device.AttrID) func(DeviceFacts) bool {
	return func(f DeviceFacts) bool {
		_, ok := f.Attributes.Get(id)
		return ok
	}
}

func rawOf(id device.AttrID) func(DeviceFacts) uint64 {
	return func(f DeviceFacts) uint64 { return f.Attributes.RawOrZero(id) }
}

func hddComponents() []component {
	return []component{
		{"reallocated_sectors", 0.35, hasAttr(device.AttrReallocatedSectors), func(f DeviceFacts) float64 {
			return reallocatedCurve(rawOf(device.AttrReallocatedSectors)(f))
		}},
		{"pending_sectors", 0.25, hasAttr(device.AttrPendingSectors), func(f DeviceFacts) float64 {
			return pendingCurve(rawOf(device.AttrPendingSectors)(f))
		}},
		{"power_cycle_count", 0.10, hasAttr(device.AttrPowerCycleCount), func(f DeviceFacts) float64 {
			return powerCycleCurve(rawOf(device.AttrPowerCycleCount)(f))
		}},
		{"reported_uncorrectable", 0.10, hasAttr(device.AttrReportedUncorrectable), func(f DeviceFacts) float64 {
			return reportedUncorrectableCurve(rawOf(device.AttrReportedUncorrectable)(f))
		}},
		{"command_timeout", 0.10, hasAttr(device.AttrCommandTimeout), func(f DeviceFacts) float64 {
			return commandTimeoutCurve(rawOf(device.AttrCommandTimeout)(f))
		}},
		{"age", 0.05, func(f DeviceFacts) bool { _, ok := f.ageYears(); return ok }, func(f DeviceFacts) float64 {
			years, _ := f.ageYears()
			return ageCurve(years)
		}},
		{"temperature", 0.05, hasAttr(device.AttrTemperature), func(f DeviceFacts) float64 {
			return temperatureCurveHDD(rawOf(device.AttrTemperature)(f))
		}},
	}
}

func ssdComponents(hasWear bool) []component {
	if hasWear {
		return []component{
			{"reallocated_sectors", 0.35, hasAttr(device.AttrReallocatedSectors), func(f DeviceFacts) float64 {
				return reallocatedCurve(rawOf(device.AttrReallocatedSectors)(f))
			}},
			{"pending_sectors", 0.25, hasAttr(device.AttrPendingSectors), func(f DeviceFacts) float64 {
				return pendingCurve(rawOf(device.AttrPendingSectors)(f))
			}},
			{"wear", 0.15, func(f DeviceFacts) bool { return f.HasWearData }, func(f DeviceFacts) float64 {
				written := rawOf(device.AttrTotalLBAsWritten)(f)
				return wearCurve(written, f.RatedEndurance)
			}},
			{"temperature", 0.10, hasAttr(device.AttrTemperature), func(f DeviceFacts) float64 {
				return temperatureCurveSSD(rawOf(device.AttrTemperature)(f))
			}},
			{"reported_uncorrectable", 0.08, hasAttr(device.AttrReportedUncorrectable), func(f DeviceFacts) float64 {
				return reportedUncorrectableCurve(rawOf(device.AttrReportedUncorrectable)(f))
			}},
			{"command_timeout", 0.05, hasAttr(device.AttrCommandTimeout), func(f DeviceFacts) float64 {
				return commandTimeoutCurve(rawOf(device.AttrCommandTimeout)(f))
			}},
			{"age", 0.02, func(f DeviceFacts) bool { _, ok := f.ageYears(); return ok }, func(f DeviceFacts) float64 {
				years, _ := f.ageYears()
				return ageCurve(years)
			}},
		}
	}
	return []component{
		{"reallocated_sectors", 0.40, hasAttr(device.AttrReallocatedSectors), func(f DeviceFacts) float64 {
			return reallocatedCurve(rawOf(device.AttrReallocatedSectors)(f))
		}},
		{"pending_sectors", 0.25, hasAttr(device.AttrPendingSectors), func(f DeviceFacts) float64 {
			return pendingCurve(rawOf(device.AttrPendingSectors)(f))
		}},
		{"temperature", 0.10, hasAttr(device.AttrTemperature), func(f DeviceFacts) float64 {
			return temperatureCurveSSD(rawOf(device.AttrTemperature)(f))
		}},
		{"reported_uncorrectable", 0.10, hasAttr(device.AttrReportedUncorrectable), func(f DeviceFacts) float64 {
			return reportedUncorrectableCurve(rawOf(device.AttrReportedUncorrectable)(f))
		}},
		{"command_timeout", 0.10, hasAttr(device.AttrCommandTimeout), func(f DeviceFacts) float64 {
			return commandTimeoutCurve(rawOf(device.AttrCommandTimeout)(f))
		}},
		{"age", 0.05, func(f DeviceFacts) bool { _, ok := f.ageYears(); return ok }, func(f DeviceFacts) float64 {
			years, _ := f.ageYears()
			return ageCurve(years)
		}},
	}
}

// Score computes the weighted health score, component breakdown, and
// escalated-attribute list for one device snapshot. It never reads a clock
// or touches the filesystem.
func Score(f DeviceFacts) ScoringResult {
	var components []component
	switch {
	case f.Rotational:
		components = hddComponents()
	case f.HasWearData:
		components = ssdComponents(true)
	default:
		components = ssdComponents(false)
	}

	present := make([]component, 0, len(components))
	presentWeight := 0.0
	for _, c := range components {
		if c.present(f) {
			present = append(present, c)
			presentWeight += c.weight
		}
	}

	breakdown := make(device.ComponentBreakdown, len(present))
	weighted := 0.0
	if presentWeight > 0 {
		for _, c := range present {
			value := c.value(f)
			redistributed := c.weight / presentWeight
			partial := value * redistributed
			weighted += partial
			breakdown[c.name] = device.ComponentScore{
				Value:        value,
				Weight:       redistributed,
				PartialScore: partial,
			}
		}
	}

	if attr, ok := f.Attributes.Get(device.AttrPercentLifetimeRemain); ok {
		weighted += percentLifetimePenalty(attr.RawValue)
	}

	escalated := escalate(f)

	total := clampScore(weighted)
	return ScoringResult{
		HealthScore: total,
		HealthState: classify(total, len(escalated) == 0),
		Breakdown:   breakdown,
		Escalated:   escalated,
	}
}

func clampScore(v float64) int {
	if v > 100 {
		return 100
	}
	if v < -100 {
		return -100
	}
	return int(v)
}

// classify maps a score to its discrete label. zeroDefects is true when no
// attribute was escalated, required for the "excellent" band.
func classify(score int, zeroDefects bool) device.HealthState {
	switch {
	case score < 0:
		return device.HealthDead
	case score >= 95 && zeroDefects:
		return device.HealthExcellent
	case score >= 80:
		return device.HealthGood
	case score >= 60:
		return device.HealthAcceptable
	case score >= 40:
		return device.HealthWarning
	case score >= 20:
		return device.HealthPoor
	default:
		return device.HealthCritical
	}
}

// escalate applies the severity rules independently of the weighted score,
// and returns them ordered by severity (critical first) then value
// descending.
func escalate(f DeviceFacts) []device.EscalatedAttribute {
	var out []device.EscalatedAttribute

	checks := []struct {
		id       device.AttrID
		name     string
		warning  uint64
		critical uint64
	}{
		{device.AttrReallocatedSectors, "reallocated_sectors", 1, 50},
		{device.AttrPendingSectors, "pending_sectors", 1, 50},
		{device.AttrReportedUncorrectable, "reported_uncorrectable", 1, 2},
		{device.AttrCommandTimeout, "command_timeout", 6, 50},
	}

	for _, c := range checks {
		attr, ok := f.Attributes.Get(c.id)
		if !ok {
			continue
		}
		switch {
		case attr.RawValue >= c.critical:
			out = append(out, device.EscalatedAttribute{Name: c.name, ID: c.id, Value: attr.RawValue, Severity: device.SeverityCritical})
		case attr.RawValue >= c.warning:
			out = append(out, device.EscalatedAttribute{Name: c.name, ID: c.id, Value: attr.RawValue, Severity: device.SeverityWarning})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity == device.SeverityCritical
		}
		return out[i].Value > out[j].Value
	})
	return out
}
