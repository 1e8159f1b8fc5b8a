// Package smartlog persists DeviceRecord snapshots to per-device,
// per-day JSONL history files, triggered by a small deterministic rule
// set rather than ad hoc logging calls scattered through the caller.
package smartlog

import (
	"time"

	"github.com/ghostwatch/ghostwatchd/internal/device"
)

// Reason tags the trigger that caused a line to be written.
type Reason string

const (
	ReasonFirstScan   Reason = "first_scan"
	ReasonHourly      Reason = "hourly"
	ReasonSmartChange Reason = "smart_change"
	ReasonManual      Reason = "manual"
)

// CriticalAttributes is the compact set of raw counters carried on every
// history line, independent of the full breakdown.
type CriticalAttributes struct {
	Reallocated   uint64 `json:"reallocated"`
	Pending       uint64 `json:"pending"`
	Uncorrectable uint64 `json:"uncorrectable"`
	Timeout       uint64 `json:"timeout"`
	Temperature   uint64 `json:"temperature"`
}

// Entry is one self-contained history line.
type Entry struct {
	Timestamp          time.Time                 `json:"timestamp"`
	Identity           device.Identity           `json:"identity"`
	ScanOutcome        device.ScanOutcome        `json:"-"`
	ScanOutcomeName    string                    `json:"scan_outcome"`
	HealthScore        int                       `json:"health_score"`
	ComponentBreakdown device.ComponentBreakdown `json:"component_breakdown"`
	Decision           device.Decision           `json:"decision"`
	GDCState           string                    `json:"gdc_state"`
	LogReason          Reason                    `json:"log_reason"`
	AttributesCritical CriticalAttributes        `json:"attributes_critical"`
}

// EntryFromRecord builds a history Entry from a completed DeviceRecord.
func EntryFromRecord(rec *device.DeviceRecord, now time.Time, reason Reason) Entry {
	return Entry{
		Timestamp:          now,
		Identity:           rec.Identity,
		ScanOutcome:        rec.Outcome,
		ScanOutcomeName:    rec.Outcome.String(),
		HealthScore:        rec.HealthScore,
		ComponentBreakdown: rec.Breakdown,
		Decision:           rec.Decision,
		GDCState:           rec.GDCState,
		LogReason:          reason,
		AttributesCritical: CriticalAttributes{
			Reallocated:   rec.Attributes.RawOrZero(device.AttrReallocatedSectors),
			Pending:       rec.Attributes.RawOrZero(device.AttrPendingSectors),
			Uncorrectable: rec.Attributes.RawOrZero(device.AttrReportedUncorrectable),
			Timeout:       rec.Attributes.RawOrZero(device.AttrCommandTimeout),
			Temperature:   rec.Attributes.RawOrZero(device.AttrTemperature),
		},
	}
}
