package scanengine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Run drives the cadence and watchdog loops until ctx is cancelled. It is
// meant to be started once from the daemon's top-level wiring, in its own
// goroutine.
func (e *Engine) Run(ctx context.Context) {
	interval := e.cfg.PollingInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	watchdogInterval := e.cfg.WatchdogInterval
	if watchdogInterval <= 0 {
		watchdogInterval = 60 * time.Second
	}

	pollTicker := time.NewTicker(interval)
	defer pollTicker.Stop()
	watchdogTicker := time.NewTicker(watchdogInterval)
	defer watchdogTicker.Stop()

	e.Tick(ctx, time.Now())

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-pollTicker.C:
			e.Tick(ctx, t)
		case t := <-watchdogTicker.C:
			e.sweepStuck(t)
		}
	}
}

// sweepStuck clears any placeholder that has been scanning_in_progress
// longer than WatchdogThreshold, reverting it to the last known good
// record rather than fabricating a new one.
func (e *Engine) sweepStuck(now time.Time) {
	threshold := e.cfg.WatchdogThreshold
	if threshold <= 0 {
		threshold = 30 * time.Second
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for name, ent := range e.inventory {
		if !ent.record.ScanningInProgress {
			continue
		}
		if now.Sub(ent.dispatchedAt) < threshold {
			continue
		}
		log.Warn().
			Str("device", name).
			Dur("stuck_for", now.Sub(ent.dispatchedAt)).
			Msg("scan worker stuck past watchdog threshold, reverting to last known state")
		ent.record = ent.preScanRecord
		ent.dispatchToken = [16]byte{} // invalidate: a late-arriving result for this dispatch is now stale
	}
}
