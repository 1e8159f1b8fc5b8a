// Package unmount implements the emergency unmount executor: a five-gate
// validation in front of an external `umount` invocation, so a failing
// drive can be pulled out of service before it takes a filesystem down
// with it.
package unmount

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ghostwatch/ghostwatchd/internal/device"
	"github.com/rs/zerolog/log"
)

// Mode selects whether the executor acts on a passing evaluation.
type Mode string

const (
	// ModePassive evaluates every gate but never calls umount. It is the
	// only safe default and the one used whenever the configured mode
	// cannot be determined.
	ModePassive Mode = "PASSIVE"
	ModeActive  Mode = "ACTIVE"
)

// RefusalReason names which of the five gates failed.
type RefusalReason string

const (
	ReasonNotEmergency   RefusalReason = "not_emergency"
	ReasonCannotUnmount  RefusalReason = "cannot_emergency_unmount"
	ReasonNoMountpoint   RefusalReason = "no_mountpoint"
	ReasonCriticalPath   RefusalReason = "critical_path"
	ReasonCooldownActive RefusalReason = "cooldown_active"
)

// criticalPrefixes are the only paths a mountpoint may never be unmounted
// from, no matter how severe the device's condition.
var criticalPrefixes = []string{"/", "/boot", "/home", "/usr", "/var"}

// eligiblePrefixes are the only roots an automatic unmount is allowed to
// touch at all.
var eligiblePrefixes = []string{"/mnt/", "/media/"}

const defaultCooldown = 30 * time.Minute

// MountLister abstracts the OS mountpoint query so tests can supply a
// fixed partition table instead of reading the live system.
type MountLister interface {
	MountpointsFor(osName string) ([]string, error)
}

// Attempt is the recorded outcome of one unmount evaluation, logged
// regardless of whether the unmount itself ran or succeeded.
type Attempt struct {
	Identity  device.Identity
	At        time.Time
	Refused   bool
	Reason    RefusalReason
	Mountpoints []string
	Errors    []string
}

// Executor evaluates and, in ACTIVE mode, performs emergency unmounts.
type Executor struct {
	Mode     Mode
	Cooldown time.Duration
	Mounts   MountLister

	mu           sync.Mutex
	lastAttempt  map[string]time.Time
}

// NewExecutor constructs an Executor. cooldown <= 0 uses the default 30
// minutes. Any configuration error upstream should resolve to ModePassive
// before this constructor is ever called.
func NewExecutor(mode Mode, cooldown time.Duration, mounts MountLister) *Executor {
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	if mode != ModeActive {
		mode = ModePassive
	}
	return &Executor{Mode: mode, Cooldown: cooldown, Mounts: mounts, lastAttempt: make(map[string]time.Time)}
}

// Evaluate runs the five gates for rec and, in ACTIVE mode, performs the
// unmount when every gate passes. PASSIVE mode always stops after gate
// evaluation. The cooldown timer starts at attempt time, not at success,
// so a storm of EMERGENCY decisions cannot re-trigger unmounts every tick.
func (e *Executor) Evaluate(ctx context.Context, rec *device.DeviceRecord, now time.Time) Attempt {
	key := rec.Identity.String()

	if rec.Decision.Status != device.StatusEmergency {
		e.arm(key, now)
		return Attempt{Identity: rec.Identity, At: now, Refused: true, Reason: ReasonNotEmergency}
	}
	if !rec.Decision.CanEmergencyUnmount {
		e.arm(key, now)
		return Attempt{Identity: rec.Identity, At: now, Refused: true, Reason: ReasonCannotUnmount}
	}

	mountpoints, err := e.Mounts.MountpointsFor(rec.OSName)
	if err != nil || len(mountpoints) == 0 {
		e.arm(key, now)
		return Attempt{Identity: rec.Identity, At: now, Refused: true, Reason: ReasonNoMountpoint}
	}

	eligible := make([]string, 0, len(mountpoints))
	for _, mp := range mountpoints {
		if isCriticalPath(mp) {
			e.arm(key, now)
			return Attempt{Identity: rec.Identity, At: now, Refused: true, Reason: ReasonCriticalPath, Mountpoints: mountpoints}
		}
		if isEligiblePath(mp) {
			eligible = append(eligible, mp)
		}
	}
	if len(eligible) == 0 {
		e.arm(key, now)
		return Attempt{Identity: rec.Identity, At: now, Refused: true, Reason: ReasonNoMountpoint, Mountpoints: mountpoints}
	}

	e.mu.Lock()
	last, seen := e.lastAttempt[key]
	cooledDown := !seen || now.Sub(last) >= e.Cooldown
	if cooledDown {
		e.lastAttempt[key] = now
	}
	e.mu.Unlock()
	if !cooledDown {
		return Attempt{Identity: rec.Identity, At: now, Refused: true, Reason: ReasonCooldownActive, Mountpoints: eligible}
	}

	attempt := Attempt{Identity: rec.Identity, At: now, Refused: false, Mountpoints: eligible}
	if e.Mode != ModeActive {
		log.Info().Str("identity", key).Strs("mountpoints", eligible).Msg("emergency unmount eligible, PASSIVE mode takes no action")
		return attempt
	}

	for _, mp := range eligible {
		if err := e.unmount(ctx, mp); err != nil {
			attempt.Errors = append(attempt.Errors, err.Error())
			log.Error().Str("identity", key).Str("mountpoint", mp).Err(err).Msg("emergency unmount failed")
		} else {
			log.Warn().Str("identity", key).Str("mountpoint", mp).Msg("emergency unmount succeeded")
		}
	}
	return attempt
}

// arm records now as the latest attempt time for key. Called on every
// refusal at gates 1-4 (a cooldown refusal leaves the recorded time as it
// is), and the cooldown gate records every real attempt, so a device stuck
// failing gate 3 or 4 every tick cannot be re-evaluated faster than the
// cooldown allows.
func (e *Executor) arm(key string, now time.Time) {
	e.mu.Lock()
	e.lastAttempt[key] = now
	e.mu.Unlock()
}

func (e *Executor) unmount(ctx context.Context, mountpoint string) error {
	cmd := exec.CommandContext(ctx, "umount", mountpoint)
	return cmd.Run()
}

func isCriticalPath(mountpoint string) bool {
	mountpoint = strings.TrimRight(mountpoint, "/")
	if mountpoint == "" {
		mountpoint = "/"
	}
	for _, prefix := range criticalPrefixes {
		if mountpoint == prefix {
			return true
		}
		if prefix != "/" && strings.HasPrefix(mountpoint+"/", prefix+"/") {
			return true
		}
	}
	return false
}

func isEligiblePath(mountpoint string) bool {
	for _, prefix := range eligiblePrefixes {
		if strings.HasPrefix(mountpoint, prefix) {
			return true
		}
	}
	return false
}
