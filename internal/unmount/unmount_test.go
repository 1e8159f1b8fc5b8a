package unmount

import (
	"context"
	"testing"
	"time"

	"github.com/ghostwatch/ghostwatchd/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMounts struct {
	byDevice map[string][]string
}

func (f fakeMounts) MountpointsFor(osName string) ([]string, error) {
	return f.byDevice[osName], nil
}

func emergencyRecord(osName string) *device.DeviceRecord {
	return &device.DeviceRecord{
		OSName: osName,
		Decision: device.Decision{
			Status:              device.StatusEmergency,
			CanEmergencyUnmount: true,
		},
	}
}

func TestEvaluate_RefusesWhenNotEmergency(t *testing.T) {
	exec := NewExecutor(ModePassive, time.Minute, fakeMounts{})
	rec := emergencyRecord("sda")
	rec.Decision.Status = device.StatusCritical

	attempt := exec.Evaluate(context.Background(), rec, time.Now())
	assert.True(t, attempt.Refused)
	assert.Equal(t, ReasonNotEmergency, attempt.Reason)
}

func TestEvaluate_RefusesWhenNoMountpoint(t *testing.T) {
	exec := NewExecutor(ModePassive, time.Minute, fakeMounts{byDevice: map[string][]string{}})
	attempt := exec.Evaluate(context.Background(), emergencyRecord("sda"), time.Now())
	assert.True(t, attempt.Refused)
	assert.Equal(t, ReasonNoMountpoint, attempt.Reason)
}

func TestEvaluate_RefusesCriticalPath(t *testing.T) {
	mounts := fakeMounts{byDevice: map[string][]string{"sda": {"/home"}}}
	exec := NewExecutor(ModeActive, time.Minute, mounts)
	attempt := exec.Evaluate(context.Background(), emergencyRecord("sda"), time.Now())
	assert.True(t, attempt.Refused)
	assert.Equal(t, ReasonCriticalPath, attempt.Reason)
}

func TestEvaluate_PassiveModeNeverUnmounts(t *testing.T) {
	mounts := fakeMounts{byDevice: map[string][]string{"sdb": {"/mnt/backup"}}}
	exec := NewExecutor(ModePassive, time.Minute, mounts)
	attempt := exec.Evaluate(context.Background(), emergencyRecord("sdb"), time.Now())
	assert.False(t, attempt.Refused)
	assert.Equal(t, []string{"/mnt/backup"}, attempt.Mountpoints)
}

// A gate-3/gate-4 refusal arms the same cooldown clock a real attempt
// would: once the mountpoint situation is fixed, the very next evaluation
// still finds the cooldown active instead of proceeding straight to an
// unmount.
func TestEvaluate_CriticalPathRefusalArmsCooldown(t *testing.T) {
	mounts := fakeMounts{byDevice: map[string][]string{"sda": {"/home"}}}
	exec := NewExecutor(ModeActive, time.Hour, mounts)
	now := time.Now()

	first := exec.Evaluate(context.Background(), emergencyRecord("sda"), now)
	require.True(t, first.Refused)
	require.Equal(t, ReasonCriticalPath, first.Reason)

	mounts.byDevice["sda"] = []string{"/mnt/data"}
	second := exec.Evaluate(context.Background(), emergencyRecord("sda"), now.Add(time.Minute))
	assert.True(t, second.Refused)
	assert.Equal(t, ReasonCooldownActive, second.Reason)
}

func TestEvaluate_NoMountpointRefusalArmsCooldown(t *testing.T) {
	mounts := fakeMounts{byDevice: map[string][]string{}}
	exec := NewExecutor(ModeActive, time.Hour, mounts)
	now := time.Now()

	first := exec.Evaluate(context.Background(), emergencyRecord("sda"), now)
	require.True(t, first.Refused)
	require.Equal(t, ReasonNoMountpoint, first.Reason)

	mounts.byDevice["sda"] = []string{"/mnt/data"}
	second := exec.Evaluate(context.Background(), emergencyRecord("sda"), now.Add(time.Minute))
	assert.True(t, second.Refused)
	assert.Equal(t, ReasonCooldownActive, second.Reason)
}

func TestEvaluate_CooldownBlocksSecondAttempt(t *testing.T) {
	mounts := fakeMounts{byDevice: map[string][]string{"sdb": {"/mnt/backup"}}}
	exec := NewExecutor(ModePassive, time.Hour, mounts)
	now := time.Now()

	first := exec.Evaluate(context.Background(), emergencyRecord("sdb"), now)
	require.False(t, first.Refused)

	second := exec.Evaluate(context.Background(), emergencyRecord("sdb"), now.Add(time.Minute))
	assert.True(t, second.Refused)
	assert.Equal(t, ReasonCooldownActive, second.Reason)

	third := exec.Evaluate(context.Background(), emergencyRecord("sdb"), now.Add(2*time.Hour))
	assert.False(t, third.Refused)
}

func TestEvaluate_DefaultsToPassiveOnInvalidMode(t *testing.T) {
	exec := NewExecutor(Mode("bogus"), time.Minute, fakeMounts{})
	assert.Equal(t, ModePassive, exec.Mode)
}
