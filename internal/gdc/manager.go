package gdc

import (
	"time"

	"github.com/ghostwatch/ghostwatchd/internal/device"
)

// Manager tracks the Ghost Drive Condition for a single device across
// scans. It takes the current time as an explicit parameter rather than
// reading the clock itself, so transitions stay testable without sleeps.
type Manager struct {
	state            State
	counters         Counters
	freeze           Freeze
	firstObservation bool
}

// NewManager returns a Manager starting in OK with no poll history yet.
func NewManager() *Manager {
	return &Manager{state: OK, firstObservation: true}
}

// State returns the current Ghost Drive Condition.
func (m *Manager) State() State { return m.state }

// Counters returns a copy of the running counters, for logging/inspection.
func (m *Manager) Counters() Counters { return m.counters }

// Freeze arms a 5-minute freeze window for a device currently in
// SUSPECT/CONFIRMED, triggered by an operator force-scan. Devices in other
// states are unaffected.
func (m *Manager) Freeze(now time.Time) {
	if m.state != SUSPECT && m.state != CONFIRMED {
		return
	}
	m.freeze = Freeze{Active: true, Until: now.Add(freezeDuration), Snapshot: m.counters}
}

// Frozen reports whether a force-scan freeze window is currently active.
func (m *Manager) Frozen(now time.Time) bool {
	return m.freeze.Active && now.Before(m.freeze.Until)
}

// Update applies one poll outcome and returns the resulting state and
// whether the device should now be evicted from the inventory (a Vanished
// streak, which is not itself a GDC state).
func (m *Manager) Update(now time.Time, outcome device.ScanOutcome, hasIdentity bool, bus device.Bus) (State, bool) {
	if m.state == TERMINAL {
		return TERMINAL, false
	}

	if outcome == device.OutcomeVanished {
		m.counters.VanishedPolls++
		return m.state, m.counters.VanishedPolls >= vanishedEvictAfter
	}
	m.counters.VanishedPolls = 0

	if outcome == device.OutcomeNoSupport {
		if m.firstObservation {
			m.state = UNASSESSABLE
		}
		m.firstObservation = false
		return m.state, false
	}
	m.firstObservation = false

	if bus == device.BusUSB && !hasIdentity {
		m.counters.MissingIdentityPolls++
		if m.state == OK && m.counters.MissingIdentityPolls >= missingIdentityUSB {
			m.state = UNASSESSABLE
			return m.state, false
		}
	} else {
		m.counters.MissingIdentityPolls = 0
	}

	if m.freeze.Active {
		if outcome == device.OutcomeSuccess {
			m.counters.recordSuccess()
			m.state = OK
			m.freeze = Freeze{}
			return m.state, false
		}
		if now.Before(m.freeze.Until) {
			return m.state, false
		}
		m.counters = m.freeze.Snapshot
		m.freeze = Freeze{}
	}

	switch outcome {
	case device.OutcomeSuccess:
		m.counters.recordSuccess()
		switch m.state {
		case SUSPECT:
			m.state = OK
		case CONFIRMED:
			if m.counters.ConsecutiveSuccesses >= 3 {
				m.state = OK
			}
		case UNASSESSABLE:
			// sticky: a success never leaves UNASSESSABLE
		default:
			m.state = OK
		}
	case device.OutcomeTimeout, device.OutcomeParseError:
		m.counters.recordFailure()
		switch m.state {
		case OK:
			if m.counters.ConsecutiveFailures >= suspectAtFailures {
				m.state = SUSPECT
			}
		case SUSPECT:
			if m.counters.ConsecutiveFailures >= confirmedAtFailures {
				m.state = CONFIRMED
			}
		case CONFIRMED:
			if m.counters.ConsecutiveFailures >= terminalAtFailures && !m.counters.HasEverSucceeded {
				m.state = TERMINAL
			}
		}
	}

	return m.state, false
}
