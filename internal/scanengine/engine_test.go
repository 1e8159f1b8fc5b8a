package scanengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostwatch/ghostwatchd/internal/device"
	"github.com/ghostwatch/ghostwatchd/internal/notify"
	"github.com/ghostwatch/ghostwatchd/internal/smartreader"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeReader is a scripted Reader double: ScanDevices always returns the
// configured device set, and Read returns the next queued outcome for a
// device (or the last one if the queue is exhausted).
type fakeReader struct {
	names     []string
	hints     map[string]string
	outcomes  map[string][]smartreader.Outcome
	callCount map[string]int
}

func newFakeReader(names []string) *fakeReader {
	return &fakeReader{
		names:     names,
		hints:     map[string]string{},
		outcomes:  map[string][]smartreader.Outcome{},
		callCount: map[string]int{},
	}
}

func (f *fakeReader) ScanDevices(ctx context.Context) ([]string, map[string]string, error) {
	return f.names, f.hints, nil
}

func (f *fakeReader) Read(ctx context.Context, osName string, busHint device.Bus) smartreader.Outcome {
	queue := f.outcomes[osName]
	i := f.callCount[osName]
	f.callCount[osName]++
	if i >= len(queue) {
		if len(queue) == 0 {
			return smartreader.Outcome{Kind: smartreader.KindSuccess, Identity: device.Identity{Model: "M", Serial: "S-" + osName}}
		}
		return queue[len(queue)-1]
	}
	return queue[i]
}

func successOutcome(serial string) smartreader.Outcome {
	return smartreader.Outcome{
		Kind:       smartreader.KindSuccess,
		Identity:   device.Identity{Model: "TestModel", Serial: serial},
		Bus:        device.BusSAT,
		Capacity:   1_000_000_000,
		Rotational: true,
		Attributes: device.AttributeMap{
			device.AttrReallocatedSectors: {RawValue: 0},
			device.AttrPendingSectors:     {RawValue: 0},
			device.AttrTemperature:        {RawValue: 35},
			device.AttrPowerOnHours:       {RawValue: 100},
		},
	}
}

func TestEngine_TickDiscoversAndScansNewDevice(t *testing.T) {
	reader := newFakeReader([]string{"/dev/sda"})
	reader.outcomes["/dev/sda"] = []smartreader.Outcome{successOutcome("ABC123")}

	eng := NewEngine(DefaultConfig(), reader, nil, nil, notify.NoopSink{}, nil)
	eng.Tick(context.Background(), baseTime)

	snap := eng.Snapshot()
	require.Contains(t, snap, "/dev/sda")
	rec := snap["/dev/sda"]
	assert.False(t, rec.ScanningInProgress)
	assert.Equal(t, device.OutcomeSuccess, rec.Outcome)
	assert.Equal(t, "ABC123", rec.Identity.Serial)
	assert.Equal(t, "OK", rec.GDCState)
}

func TestEngine_TickAppliesFailureAndAdvancesGDC(t *testing.T) {
	reader := newFakeReader([]string{"/dev/sda"})
	reader.outcomes["/dev/sda"] = []smartreader.Outcome{
		{Kind: smartreader.KindTimeout},
		{Kind: smartreader.KindTimeout},
		{Kind: smartreader.KindTimeout},
	}

	eng := NewEngine(DefaultConfig(), reader, nil, nil, notify.NoopSink{}, nil)
	for i := 0; i < 3; i++ {
		eng.Tick(context.Background(), baseTime.Add(time.Duration(i)*time.Minute))
	}

	rec := eng.Snapshot()["/dev/sda"]
	assert.Equal(t, device.OutcomeTimeout, rec.Outcome)
	assert.Equal(t, "SUSPECT", rec.GDCState)
}

func TestEngine_ToggleMonitoringExcludesDeviceFromFutureTicks(t *testing.T) {
	reader := newFakeReader([]string{"/dev/sda"})
	reader.outcomes["/dev/sda"] = []smartreader.Outcome{successOutcome("ABC123")}

	eng := NewEngine(DefaultConfig(), reader, nil, nil, notify.NoopSink{}, nil)
	eng.Tick(context.Background(), baseTime)
	eng.ToggleMonitoring("/dev/sda", false)

	before := eng.Snapshot()["/dev/sda"]
	eng.Tick(context.Background(), baseTime.Add(time.Minute))
	after := eng.Snapshot()["/dev/sda"]

	assert.Equal(t, before.DispatchedAt, after.DispatchedAt)
}

func TestEngine_DeviceEvictedAfterAbsenceThreshold(t *testing.T) {
	reader := newFakeReader([]string{"/dev/sda"})
	reader.outcomes["/dev/sda"] = []smartreader.Outcome{successOutcome("ABC123")}

	eng := NewEngine(DefaultConfig(), reader, nil, nil, notify.NoopSink{}, nil)
	eng.Tick(context.Background(), baseTime)
	require.Contains(t, eng.Snapshot(), "/dev/sda")

	reader.names = nil
	for i := 1; i <= DefaultConfig().AbsenceEvictN; i++ {
		eng.Tick(context.Background(), baseTime.Add(time.Duration(i)*time.Minute))
	}

	assert.NotContains(t, eng.Snapshot(), "/dev/sda")
}

func TestEngine_StuckPlaceholderRevertsOnWatchdogSweep(t *testing.T) {
	reader := newFakeReader([]string{"/dev/sda"})
	reader.outcomes["/dev/sda"] = []smartreader.Outcome{successOutcome("ABC123")}

	eng := NewEngine(DefaultConfig(), reader, nil, nil, notify.NoopSink{}, nil)
	eng.Tick(context.Background(), baseTime)
	good := eng.Snapshot()["/dev/sda"]
	require.False(t, good.ScanningInProgress)

	// Manually install a stuck placeholder, bypassing the worker's
	// normal apply step, to simulate a hung smartctl invocation.
	eng.mu.Lock()
	ent := eng.inventory["/dev/sda"]
	ent.preScanRecord = ent.record
	ent.dispatchedAt = baseTime
	ent.record.ScanningInProgress = true
	eng.mu.Unlock()

	eng.sweepStuck(baseTime.Add(time.Hour))

	rec := eng.Snapshot()["/dev/sda"]
	assert.False(t, rec.ScanningInProgress)
	assert.Equal(t, good.Identity, rec.Identity)
}

func TestEngine_ForceScanFreezesSuspectAndConfirmedDevices(t *testing.T) {
	reader := newFakeReader([]string{"/dev/sda"})
	reader.outcomes["/dev/sda"] = []smartreader.Outcome{
		{Kind: smartreader.KindTimeout},
		{Kind: smartreader.KindTimeout},
		{Kind: smartreader.KindTimeout},
	}

	eng := NewEngine(DefaultConfig(), reader, nil, nil, notify.NoopSink{}, nil)
	for i := 0; i < 3; i++ {
		eng.Tick(context.Background(), baseTime.Add(time.Duration(i)*time.Minute))
	}
	require.Equal(t, "SUSPECT", eng.Snapshot()["/dev/sda"].GDCState)

	reader.outcomes["/dev/sda"] = append(reader.outcomes["/dev/sda"], successOutcome("ABC123"))
	eng.ForceScan(context.Background(), baseTime.Add(10*time.Minute))

	rec := eng.Snapshot()["/dev/sda"]
	assert.Equal(t, "OK", rec.GDCState)
}
