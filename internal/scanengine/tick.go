package scanengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/ghostwatch/ghostwatchd/internal/device"
	"github.com/ghostwatch/ghostwatchd/internal/gdc"
	"github.com/ghostwatch/ghostwatchd/internal/notify"
	"github.com/ghostwatch/ghostwatchd/internal/smartreader"
)

// dispatchJob is what a worker goroutine needs to poll one device and
// report its result back for application under the inventory mutex.
type dispatchJob struct {
	osName  string
	busHint device.Bus
	token   uuid.UUID
}

// Tick advances the cadence once: enumerate devices, reconcile the
// inventory, install placeholders, and dispatch a bounded worker per
// eligible device. It is a no-op if a tick is already running.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	e.mu.Lock()
	if e.inFlightTick {
		e.mu.Unlock()
		return
	}
	e.inFlightTick = true
	e.lastTickAt = now
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.inFlightTick = false
		e.mu.Unlock()
	}()

	e.runCycle(ctx, now, false)
}

// ForceScan immediately scans every device, including those in
// SUSPECT/CONFIRMED, and arms the 5-minute GDC freeze window for them.
func (e *Engine) ForceScan(ctx context.Context, now time.Time) {
	e.mu.Lock()
	for _, ent := range e.inventory {
		ent.gdcManager.Freeze(now)
	}
	e.mu.Unlock()

	e.runCycle(ctx, now, true)
}

func (e *Engine) runCycle(ctx context.Context, now time.Time, forced bool) {
	names, hints, err := e.reader.ScanDevices(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("device enumeration failed, skipping this cycle")
		return
	}

	jobs := e.reconcileAndInstallPlaceholders(now, names, hints)
	if len(jobs) == 0 {
		return
	}

	poolSize := workerPoolSize(e.cfg.WorkerPoolSize, len(jobs))
	sem := semaphore.NewWeighted(poolSize)
	var wg sync.WaitGroup

	for _, job := range jobs {
		job := job
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Warn().Err(err).Msg("worker pool acquire interrupted, stopping dispatch")
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			e.runWorker(ctx, job, now, forced)
		}()
	}
	wg.Wait()
}

// reconcileAndInstallPlaceholders enumerates the current device set
// against the inventory, evicts vanished devices, inserts new ones, and
// installs a scanning-in-progress placeholder on every monitored,
// non-terminal device. It returns the jobs to dispatch.
func (e *Engine) reconcileAndInstallPlaceholders(now time.Time, names []string, hints map[string]string) []dispatchJob {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]bool, len(names))
	for _, name := range names {
		seen[name] = true
		if _, ok := e.inventory[name]; !ok {
			monitored := true
			if v, ok := e.monitoredOverrides[name]; ok {
				monitored = v
			}
			e.inventory[name] = &entry{
				record: device.DeviceRecord{
					OSName: name,
					Bus:    busHintFromType(hints[name]),
				},
				monitored:  monitored,
				gdcManager: gdc.NewManager(),
			}
			log.Info().Str("device", name).Bool("monitored", monitored).Msg("device discovered")
		}
	}

	for name, ent := range e.inventory {
		if seen[name] {
			continue
		}
		ent.record.AbsenceCount++
		if ent.record.AbsenceCount < e.cfg.AbsenceEvictN {
			continue
		}
		e.flushVanishedLocked(name, ent, now)
		delete(e.inventory, name)
	}
	if e.metrics != nil {
		e.metrics.SetDeviceCount(len(e.inventory))
	}

	jobs := make([]dispatchJob, 0, len(e.inventory))
	for name, ent := range e.inventory {
		if !ent.monitored {
			continue
		}
		state := ent.gdcManager.State()
		if state == gdc.TERMINAL || state == gdc.UNASSESSABLE {
			continue
		}

		ent.preScanRecord = ent.record
		token := uuid.New()
		ent.dispatchToken = token
		ent.dispatchedAt = now
		ent.record.ScanningInProgress = true
		ent.record.Outcome = device.OutcomeNone
		ent.record.DispatchedAt = now

		jobs = append(jobs, dispatchJob{osName: name, busHint: ent.record.Bus, token: token})
	}
	return jobs
}

func (e *Engine) flushVanishedLocked(name string, ent *entry, now time.Time) {
	gdcState, _ := ent.gdcManager.Update(now, device.OutcomeVanished, !ent.record.Identity.IsZero(), ent.record.Bus)
	rec := ent.record
	rec.Outcome = device.OutcomeVanished
	rec.GDCState = gdcState.String()
	rec.ScanningInProgress = false
	if e.logger != nil {
		if _, err := e.logger.Log(&rec, now, true); err != nil {
			log.Error().Err(err).Str("device", name).Msg("failed to flush vanished device to history")
		}
	}
	delete(e.lastLast, name)
}

// runWorker performs one device's poll and applies the result, recovering
// from a panic by treating it as a ParseError.
func (e *Engine) runWorker(ctx context.Context, job dispatchJob, dispatchedAt time.Time, forced bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("device", job.osName).Msg("scan worker panicked")
			e.applyResult(job, smartreader.Outcome{Kind: smartreader.KindParseError, Err: fmt.Errorf("worker panic: %v", r)}, dispatchedAt, forced)
		}
	}()

	deadline := e.cfg.SmartDeadline
	if deadline <= 0 {
		deadline = 15 * time.Second
	}
	readCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	outcome := e.reader.Read(readCtx, job.osName, job.busHint)
	e.applyResult(job, outcome, dispatchedAt, forced)
}

func (e *Engine) applyResult(job dispatchJob, outcome smartreader.Outcome, now time.Time, forced bool) {
	e.mu.Lock()
	ent, ok := e.inventory[job.osName]
	if !ok || ent.dispatchToken != job.token {
		e.mu.Unlock()
		return // device evicted, or a newer dispatch has already superseded this one
	}

	scanOutcome := scanOutcomeFromKind(outcome.Kind)
	hasIdentity := !outcome.Identity.IsZero()
	gdcState, evict := ent.gdcManager.Update(now, scanOutcome, hasIdentity, ent.record.Bus)

	var rec device.DeviceRecord
	if scanOutcome == device.OutcomeSuccess {
		rec = e.composeSuccessRecord(job.osName, ent, outcome, now)
	} else {
		rec = e.composeFailureRecord(job.osName, ent, scanOutcome, outcome.Elapsed, now)
	}
	rec.GDCState = gdcState.String()
	ent.record = rec

	if evict {
		e.flushVanishedLocked(job.osName, ent, now)
		delete(e.inventory, job.osName)
	}
	prevForIdentity := e.lastLast[job.osName]
	recCopy := rec.Clone()
	e.lastLast[job.osName] = &recCopy
	e.mu.Unlock()

	e.afterApply(job.osName, &rec, prevForIdentity, now, forced)
}

func scanOutcomeFromKind(kind smartreader.OutcomeKind) device.ScanOutcome {
	switch kind {
	case smartreader.KindSuccess:
		return device.OutcomeSuccess
	case smartreader.KindTimeout:
		return device.OutcomeTimeout
	case smartreader.KindParseError:
		return device.OutcomeParseError
	case smartreader.KindNoSupport:
		return device.OutcomeNoSupport
	case smartreader.KindVanished:
		return device.OutcomeVanished
	default:
		return device.OutcomeParseError
	}
}

// afterApply runs the decision-adjacent side effects outside the
// inventory mutex: history logging, emergency unmount evaluation,
// notification, and metrics.
func (e *Engine) afterApply(osName string, rec *device.DeviceRecord, prev *device.DeviceRecord, now time.Time, forced bool) {
	if e.logger != nil {
		if _, err := e.logger.Log(rec, now, forced); err != nil {
			log.Error().Err(err).Str("device", osName).Msg("failed to write history entry")
		}
	}

	if rec.Decision.Status == device.StatusEmergency && e.executor != nil {
		attempt := e.executor.Evaluate(context.Background(), rec, now)
		if attempt.Refused {
			log.Warn().Str("device", osName).Str("reason", string(attempt.Reason)).Msg("emergency unmount refused")
		}
	}

	if prev == nil || prev.Decision.Status != rec.Decision.Status {
		event := notify.Event{Identity: rec.Identity, OSName: osName, Status: rec.Decision.Status, Reasons: rec.Decision.Reasons}
		if err := e.notifier.Publish(context.Background(), event); err != nil {
			log.Debug().Err(err).Str("device", osName).Msg("notification publish failed")
		}
	}

	if e.metrics != nil {
		e.metrics.Observe(rec, rec.LastResponseTime.Seconds())
	}
}
