package gdc

import (
	"testing"
	"time"

	"github.com/ghostwatch/ghostwatchd/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestManager_SuccessStreakStaysOK(t *testing.T) {
	m := NewManager()
	for i := 0; i < 5; i++ {
		state, evict := m.Update(baseTime, device.OutcomeSuccess, true, device.BusSAT)
		assert.Equal(t, OK, state)
		assert.False(t, evict)
	}
}

func TestManager_FailuresEscalateThroughSuspectAndConfirmed(t *testing.T) {
	m := NewManager()
	for i := 0; i < 2; i++ {
		state, _ := m.Update(baseTime, device.OutcomeTimeout, true, device.BusSAT)
		assert.Equal(t, OK, state)
	}
	state, _ := m.Update(baseTime, device.OutcomeTimeout, true, device.BusSAT)
	assert.Equal(t, SUSPECT, state)

	for i := 0; i < 2; i++ {
		m.Update(baseTime, device.OutcomeTimeout, true, device.BusSAT)
	}
	state, _ = m.Update(baseTime, device.OutcomeTimeout, true, device.BusSAT)
	assert.Equal(t, CONFIRMED, state)
}

func TestManager_ConfirmedReturnsToOKAfterThreeSuccesses(t *testing.T) {
	m := NewManager()
	for i := 0; i < 6; i++ {
		m.Update(baseTime, device.OutcomeTimeout, true, device.BusSAT)
	}
	require.Equal(t, CONFIRMED, m.State())

	state, _ := m.Update(baseTime, device.OutcomeSuccess, true, device.BusSAT)
	assert.Equal(t, CONFIRMED, state)
	state, _ = m.Update(baseTime, device.OutcomeSuccess, true, device.BusSAT)
	assert.Equal(t, CONFIRMED, state)
	state, _ = m.Update(baseTime, device.OutcomeSuccess, true, device.BusSAT)
	assert.Equal(t, OK, state)
}

func TestManager_ConfirmedEscalatesToTerminalWithoutEverSucceeding(t *testing.T) {
	m := NewManager()
	for i := 0; i < 49; i++ {
		m.Update(baseTime, device.OutcomeTimeout, true, device.BusSAT)
	}
	require.Equal(t, CONFIRMED, m.State())
	state, _ := m.Update(baseTime, device.OutcomeTimeout, true, device.BusSAT)
	assert.Equal(t, TERMINAL, state)

	// TERMINAL is sticky: a later success cannot revive it.
	state, _ = m.Update(baseTime, device.OutcomeSuccess, true, device.BusSAT)
	assert.Equal(t, TERMINAL, state)
}

func TestManager_NoSupportOnFirstObservationIsUnassessableAndSticky(t *testing.T) {
	m := NewManager()
	state, _ := m.Update(baseTime, device.OutcomeNoSupport, false, device.BusUSB)
	assert.Equal(t, UNASSESSABLE, state)

	state, _ = m.Update(baseTime, device.OutcomeSuccess, true, device.BusUSB)
	assert.Equal(t, UNASSESSABLE, state)
}

func TestManager_USBMissingIdentityTwicePushesUnassessable(t *testing.T) {
	m := NewManager()
	state, _ := m.Update(baseTime, device.OutcomeSuccess, false, device.BusUSB)
	assert.Equal(t, OK, state)
	state, _ = m.Update(baseTime, device.OutcomeSuccess, false, device.BusUSB)
	assert.Equal(t, UNASSESSABLE, state)
}

func TestManager_VanishedEvictsAfterThreeConsecutivePolls(t *testing.T) {
	m := NewManager()
	_, evict := m.Update(baseTime, device.OutcomeVanished, true, device.BusSAT)
	assert.False(t, evict)
	_, evict = m.Update(baseTime, device.OutcomeVanished, true, device.BusSAT)
	assert.False(t, evict)
	_, evict = m.Update(baseTime, device.OutcomeVanished, true, device.BusSAT)
	assert.True(t, evict)
}

func TestManager_FreezeAbsorbsFailuresAndResumesCountersAfterExpiry(t *testing.T) {
	m := NewManager()
	for i := 0; i < 6; i++ {
		m.Update(baseTime, device.OutcomeTimeout, true, device.BusSAT)
	}
	require.Equal(t, CONFIRMED, m.State())
	preFreeze := m.Counters()

	m.Freeze(baseTime)
	require.True(t, m.Frozen(baseTime))

	state, _ := m.Update(baseTime.Add(time.Minute), device.OutcomeTimeout, true, device.BusSAT)
	assert.Equal(t, CONFIRMED, state)

	afterExpiry := baseTime.Add(freezeDuration + time.Second)
	state, _ = m.Update(afterExpiry, device.OutcomeTimeout, true, device.BusSAT)
	assert.Equal(t, CONFIRMED, state)
	assert.Equal(t, preFreeze.ConsecutiveFailures+1, m.Counters().ConsecutiveFailures)
}

func TestManager_FreezeSuccessReturnsToOKImmediately(t *testing.T) {
	m := NewManager()
	for i := 0; i < 6; i++ {
		m.Update(baseTime, device.OutcomeTimeout, true, device.BusSAT)
	}
	m.Freeze(baseTime)

	state, _ := m.Update(baseTime.Add(time.Minute), device.OutcomeSuccess, true, device.BusSAT)
	assert.Equal(t, OK, state)
	assert.False(t, m.Frozen(baseTime.Add(time.Minute)))
}
