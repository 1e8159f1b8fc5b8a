package decision

import (
	"testing"

	"github.com/ghostwatch/ghostwatchd/internal/device"
	"github.com/stretchr/testify/assert"
)

func recordWith(reallocated, pending, temp uint64, rotational bool) *device.DeviceRecord {
	return &device.DeviceRecord{
		Rotational: rotational,
		GDCState:   "OK",
		Attributes: device.AttributeMap{
			device.AttrReallocatedSectors: {RawValue: reallocated},
			device.AttrPendingSectors:     {RawValue: pending},
			device.AttrTemperature:        {RawValue: temp},
		},
	}
}

func TestDecide_PristineDeviceIsOK(t *testing.T) {
	curr := recordWith(0, 0, 31, true)
	d := Decide(nil, curr, DefaultThresholds())
	assert.Equal(t, device.StatusOK, d.Status)
	assert.False(t, d.CanEmergencyUnmount)
}

func TestDecide_HighReallocatedAndRisingPendingIsEmergency(t *testing.T) {
	prev := recordWith(1400, 60, 40, true)
	curr := recordWith(1500, 85, 40, true)

	d := Decide(prev, curr, DefaultThresholds())

	assert.Equal(t, device.StatusEmergency, d.Status)
	assert.True(t, d.CanEmergencyUnmount)
	assert.Contains(t, d.Reasons, "pending_and_reallocated_both_increasing")
}

func TestDecide_LoneEmergencyCandidateDowngradesToCriticalWithNote(t *testing.T) {
	curr := recordWith(600, 0, 30, true) // reallocated alone crosses the emergency line
	d := Decide(nil, curr, DefaultThresholds())

	assert.Equal(t, device.StatusCritical, d.Status)
	assert.False(t, d.CanEmergencyUnmount)
	assert.NotEmpty(t, d.Notes)
}

func TestDecide_TwoIndependentEmergencyCandidatesPromote(t *testing.T) {
	curr := recordWith(600, 0, 66, true) // reallocated emergency + temperature emergency
	d := Decide(nil, curr, DefaultThresholds())

	assert.Equal(t, device.StatusEmergency, d.Status)
	assert.True(t, d.CanEmergencyUnmount)
}

func TestDecide_SSDUsesSSDTemperatureThresholds(t *testing.T) {
	curr := recordWith(0, 0, 65, false) // HDD-emergency level, but only above SSD-warning
	d := Decide(nil, curr, DefaultThresholds())
	assert.Equal(t, device.StatusWarning, d.Status)
}

func TestDecide_UnassessableDeviceIsOKWithNote(t *testing.T) {
	curr := recordWith(0, 0, 20, true)
	curr.GDCState = "UNASSESSABLE"
	d := Decide(nil, curr, DefaultThresholds())
	assert.Equal(t, device.StatusOK, d.Status)
	assert.Contains(t, d.Notes, "unassessable")
}

func TestDecide_CustomThresholdsLowerTheWarningLine(t *testing.T) {
	curr := recordWith(2, 0, 30, true) // below the default reallocated warning line of 5
	custom := DefaultThresholds()
	custom.ReallocatedWarning = 1
	d := Decide(nil, curr, custom)
	assert.Equal(t, device.StatusWarning, d.Status)
}

func TestDecide_UncorrectableAboveThresholdIsWarning(t *testing.T) {
	curr := recordWith(0, 0, 30, true)
	curr.Attributes[device.AttrReportedUncorrectable] = device.Attribute{RawValue: 3}
	d := Decide(nil, curr, DefaultThresholds())
	assert.Equal(t, device.StatusWarning, d.Status)
	assert.Contains(t, d.Reasons, "reported_uncorrectable_warning")
}
