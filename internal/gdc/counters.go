package gdc

import "time"

const (
	suspectAtFailures   = 3
	confirmedAtFailures = 6
	terminalAtFailures  = 50
	vanishedEvictAfter  = 3
	missingIdentityUSB  = 2
	freezeDuration      = 5 * time.Minute
)

// Counters tracks the running totals a Manager needs to evaluate
// transitions. It holds no state machine logic itself.
type Counters struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	TotalFailures        int
	TotalSuccesses       int
	HasEverSucceeded     bool

	// MissingIdentityPolls counts consecutive polls on a USB-bus device
	// that returned no usable (model, serial) identity.
	MissingIdentityPolls int

	// VanishedPolls counts consecutive enumeration misses since the last
	// successful poll, independent of AbsenceCount on the device record.
	VanishedPolls int
}

func (c *Counters) recordSuccess() {
	c.ConsecutiveFailures = 0
	c.ConsecutiveSuccesses++
	c.TotalSuccesses++
	c.HasEverSucceeded = true
}

func (c *Counters) recordFailure() {
	c.ConsecutiveSuccesses = 0
	c.ConsecutiveFailures++
	c.TotalFailures++
}

// Freeze captures the counters and deadline for an in-flight operator
// force-scan freeze window, per the freeze-mode semantics.
type Freeze struct {
	Active   bool
	Until    time.Time
	Snapshot Counters
}
