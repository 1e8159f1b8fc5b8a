// Package scanengine drives the periodic SMART poll cycle: it owns the
// device inventory, dispatches bounded worker tasks, applies results in
// dispatch order, and invokes the decision, logging, and unmount layers
// synchronously for every completed scan.
package scanengine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghostwatch/ghostwatchd/internal/decision"
	"github.com/ghostwatch/ghostwatchd/internal/device"
	"github.com/ghostwatch/ghostwatchd/internal/gdc"
	"github.com/ghostwatch/ghostwatchd/internal/metrics"
	"github.com/ghostwatch/ghostwatchd/internal/notify"
	"github.com/ghostwatch/ghostwatchd/internal/scoring"
	"github.com/ghostwatch/ghostwatchd/internal/smartlog"
	"github.com/ghostwatch/ghostwatchd/internal/smartreader"
	"github.com/ghostwatch/ghostwatchd/internal/unmount"
)

// entry is the inventory's internal bookkeeping for one OS device name:
// the published record plus dispatch metadata invisible to snapshot()
// callers.
type entry struct {
	record        device.DeviceRecord
	preScanRecord device.DeviceRecord // snapshot taken just before a placeholder is installed
	dispatchToken uuid.UUID
	dispatchedAt  time.Time
	monitored     bool
	gdcManager    *gdc.Manager
}

// Reader is the subset of smartreader.Reader the engine depends on,
// narrowed for testability.
type Reader interface {
	Read(ctx context.Context, osName string, busHint device.Bus) smartreader.Outcome
	ScanDevices(ctx context.Context) ([]string, map[string]string, error)
}

// Engine owns the inventory and runs the scan cycle.
type Engine struct {
	cfg      Config
	reader   Reader
	logger   *smartlog.Logger
	executor *unmount.Executor
	notifier notify.Sink
	metrics  *metrics.Registry

	mu        sync.Mutex
	inventory map[string]*entry
	lastLast  map[string]*device.DeviceRecord // last completed record per OS name, for decision trending

	thresholds            decision.Thresholds
	ratedEnduranceByModel map[string]uint64
	monitoredOverrides    map[string]bool // per-device opt-out read at discovery time only

	inFlightTick bool
	lastTickAt   time.Time
}

// NewEngine constructs an Engine. notifier and reg may be nil — nil notify.Sink
// falls back to notify.NoopSink, nil metrics skips metric emission. Decision
// thresholds and the rated-endurance table start at their defaults; callers
// wire config-sourced values in with SetThresholds, SetRatedEndurance, and
// SetMonitoredOverrides after construction.
func NewEngine(cfg Config, reader Reader, logger *smartlog.Logger, executor *unmount.Executor, notifier notify.Sink, reg *metrics.Registry) *Engine {
	if notifier == nil {
		notifier = notify.NoopSink{}
	}
	return &Engine{
		cfg:        cfg,
		reader:     reader,
		logger:     logger,
		executor:   executor,
		notifier:   notifier,
		metrics:    reg,
		inventory:  make(map[string]*entry),
		lastLast:   make(map[string]*device.DeviceRecord),
		thresholds: decision.DefaultThresholds(),
	}
}

// SetThresholds replaces the decision thresholds consulted by every scan
// completed after this call returns. Safe to call while the engine is
// running; takes effect on the next completed scan.
func (e *Engine) SetThresholds(t decision.Thresholds) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.thresholds = t
}

// SetRatedEndurance replaces the model-to-rated-endurance table scoring
// consults for the SSD lifetime-data weighting profile. A model absent
// from the table scores under the no-lifetime-data profile instead.
func (e *Engine) SetRatedEndurance(byModel map[string]uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ratedEnduranceByModel = byModel
}

// SetMonitoredOverrides replaces the per-device opt-out map consulted when
// a device not yet in the inventory is first discovered. Devices already
// in the inventory are unaffected: use ToggleMonitoring for those.
func (e *Engine) SetMonitoredOverrides(overrides map[string]bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.monitoredOverrides = overrides
}

// Snapshot returns a consistent copy of every record currently in the
// inventory, keyed by OS device name.
func (e *Engine) Snapshot() map[string]device.DeviceRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]device.DeviceRecord, len(e.inventory))
	for name, ent := range e.inventory {
		out[name] = ent.record.Clone()
	}
	return out
}

// ToggleMonitoring excludes or re-includes osName from future scans
// without touching its history. Idempotent: calling it twice with the
// same value leaves the inventory state unchanged by the second call.
func (e *Engine) ToggleMonitoring(osName string, enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ent, ok := e.inventory[osName]; ok {
		ent.monitored = enabled
	}
}

func busHintFromType(parserHint string) device.Bus {
	switch parserHint {
	case "nvme":
		return device.BusNVMe
	case "sat":
		return device.BusSAT
	case "scsi":
		return device.BusSCSI
	default:
		return device.BusUnknown
	}
}

// composeSuccessRecord computes scoring and decision for a successful read and
// returns the completed DeviceRecord. ent.record carries the
// pre-existing Identity/bus/capacity fields, which are overwritten from
// the fresh read outcome.
func (e *Engine) composeSuccessRecord(osName string, ent *entry, outcome smartreader.Outcome, dispatchedAt time.Time) device.DeviceRecord {
	facts := scoring.DeviceFacts{
		Attributes: outcome.Attributes,
		Rotational: outcome.Rotational,
	}
	_, hasWritten := outcome.Attributes.Get(device.AttrTotalLBAsWritten)
	if rated, ok := e.ratedEnduranceByModel[outcome.Identity.Model]; ok && hasWritten {
		facts.HasWearData = true
		facts.RatedEndurance = rated
	}

	result := scoring.Score(facts)

	rec := device.DeviceRecord{
		Identity:           outcome.Identity,
		OSName:             osName,
		Capacity:           outcome.Capacity,
		Rotational:         outcome.Rotational,
		Bus:                outcome.Bus,
		Attributes:         outcome.Attributes,
		Outcome:            device.OutcomeSuccess,
		HealthScore:        result.HealthScore,
		HealthState:        result.HealthState,
		Breakdown:          result.Breakdown,
		Escalated:          result.Escalated,
		ScanningInProgress: false,
		DispatchedAt:       dispatchedAt,
		LastResponseTime:   outcome.Elapsed,
	}

	prev := e.lastLast[osName]
	rec.Decision = decision.Decide(prev, &rec, e.thresholds)
	return rec
}

func (e *Engine) composeFailureRecord(osName string, ent *entry, outcome device.ScanOutcome, elapsed time.Duration, now time.Time) device.DeviceRecord {
	rec := ent.record
	rec.Outcome = outcome
	rec.OSName = osName
	rec.ScanningInProgress = false
	rec.DispatchedAt = now
	rec.LastResponseTime = elapsed
	rec.Decision = decision.Decide(e.lastLast[osName], &rec, e.thresholds)
	return rec
}
