package smartlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ghostwatch/ghostwatchd/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(identity device.Identity, reallocated uint64, score int) *device.DeviceRecord {
	return &device.DeviceRecord{
		Identity:    identity,
		Outcome:     device.OutcomeSuccess,
		HealthScore: score,
		GDCState:    "OK",
		Attributes: device.AttributeMap{
			device.AttrReallocatedSectors: {RawValue: reallocated},
		},
	}
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	scanner := bufio.NewScanner(f)
	n := 0
	for scanner.Scan() {
		n++
	}
	return n
}

func TestLogger_FirstScanAlwaysLogs(t *testing.T) {
	logger := NewLogger(t.TempDir(), 0)
	id := device.Identity{Model: "WDC", Serial: "S1"}
	rec := newRecord(id, 0, 100)

	fired, err := logger.Log(rec, time.Now(), false)
	require.NoError(t, err)
	assert.True(t, fired)

	path := filepath.Join(logger.HistoryRoot, id.HistoryDir(), time.Now().UTC().Format("2006-01-02")+".jsonl")
	assert.Equal(t, 1, countLines(t, path))
}

func TestLogger_NoChangeDoesNotLogAgain(t *testing.T) {
	logger := NewLogger(t.TempDir(), 0)
	id := device.Identity{Model: "WDC", Serial: "S1"}
	rec := newRecord(id, 0, 100)
	now := time.Now()

	_, err := logger.Log(rec, now, false)
	require.NoError(t, err)

	fired, err := logger.Log(rec, now.Add(time.Minute), false)
	require.NoError(t, err)
	assert.False(t, fired)
}

func TestLogger_SmartChangeTriggersNewLine(t *testing.T) {
	logger := NewLogger(t.TempDir(), 0)
	id := device.Identity{Model: "WDC", Serial: "S1"}
	now := time.Now()

	_, err := logger.Log(newRecord(id, 0, 100), now, false)
	require.NoError(t, err)

	fired, err := logger.Log(newRecord(id, 5, 95), now.Add(time.Minute), false)
	require.NoError(t, err)
	assert.True(t, fired)
}

func TestLogger_HourlyBoundaryForcesALine(t *testing.T) {
	logger := NewLogger(t.TempDir(), 0)
	id := device.Identity{Model: "WDC", Serial: "S1"}
	now := time.Now()

	_, err := logger.Log(newRecord(id, 0, 100), now, false)
	require.NoError(t, err)

	fired, err := logger.Log(newRecord(id, 0, 100), now.Add(61*time.Minute), false)
	require.NoError(t, err)
	assert.True(t, fired)
}

func TestLogger_ForceAlwaysLogsRegardlessOfChange(t *testing.T) {
	logger := NewLogger(t.TempDir(), 0)
	id := device.Identity{Model: "WDC", Serial: "S1"}
	now := time.Now()

	_, err := logger.Log(newRecord(id, 0, 100), now, false)
	require.NoError(t, err)

	fired, err := logger.Log(newRecord(id, 0, 100), now.Add(time.Second), true)
	require.NoError(t, err)
	assert.True(t, fired)
}

func TestLogger_EntryRoundTripsThroughJSON(t *testing.T) {
	logger := NewLogger(t.TempDir(), 0)
	id := device.Identity{Model: "Samsung", Serial: "S2"}
	rec := newRecord(id, 3, 88)

	_, err := logger.Log(rec, time.Now(), false)
	require.NoError(t, err)

	path := filepath.Join(logger.HistoryRoot, id.HistoryDir(), time.Now().UTC().Format("2006-01-02")+".jsonl")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded Entry
	require.NoError(t, json.Unmarshal(data[:len(data)-1], &decoded))
	assert.Equal(t, rec.HealthScore, decoded.HealthScore)
	assert.Equal(t, rec.Identity, decoded.Identity)
}

func TestRotateIfNeeded_RotatesOversizedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2026-01-01.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	require.NoError(t, rotateIfNeeded(path, 5))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(path + ".1")
	assert.NoError(t, err)
}
