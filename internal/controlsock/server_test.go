package controlsock

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostwatch/ghostwatchd/internal/device"
)

type fakeEngine struct {
	snapshot   map[string]device.DeviceRecord
	toggled    map[string]bool
	forceCount int
}

func (f *fakeEngine) Snapshot() map[string]device.DeviceRecord { return f.snapshot }
func (f *fakeEngine) ToggleMonitoring(osName string, enabled bool) {
	if f.toggled == nil {
		f.toggled = map[string]bool{}
	}
	f.toggled[osName] = enabled
}
func (f *fakeEngine) ForceScan(ctx context.Context, now time.Time) { f.forceCount++ }

func startTestServer(t *testing.T, engine Engine) (*Server, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "control.sock")
	s := NewServer(path, engine)
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)
	return s, path
}

func roundTrip(t *testing.T, path string, req Request) Response {
	t.Helper()
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	line, err := json.Marshal(req)
	require.NoError(t, err)
	_, err = conn.Write(append(line, '\n'))
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.NewDecoder(bufio.NewReader(conn)).Decode(&resp))
	return resp
}

func TestServer_SnapshotReturnsDevices(t *testing.T) {
	engine := &fakeEngine{snapshot: map[string]device.DeviceRecord{
		"/dev/sda": {OSName: "/dev/sda", HealthScore: 90},
	}}
	_, path := startTestServer(t, engine)

	resp := roundTrip(t, path, Request{Method: "snapshot"})
	assert.True(t, resp.Success)
	assert.Equal(t, 90, resp.Devices["/dev/sda"].HealthScore)
}

func TestServer_ToggleMonitoringInvokesEngine(t *testing.T) {
	engine := &fakeEngine{snapshot: map[string]device.DeviceRecord{}}
	_, path := startTestServer(t, engine)

	resp := roundTrip(t, path, Request{Method: "toggle_monitoring", OSName: "/dev/sda", Enable: false})
	assert.True(t, resp.Success)
	assert.False(t, engine.toggled["/dev/sda"])
}

func TestServer_ForceScanInvokesEngineAndReturnsSnapshot(t *testing.T) {
	engine := &fakeEngine{snapshot: map[string]device.DeviceRecord{"/dev/sda": {}}}
	_, path := startTestServer(t, engine)

	resp := roundTrip(t, path, Request{Method: "force_scan"})
	assert.True(t, resp.Success)
	assert.Equal(t, 1, engine.forceCount)
	assert.Contains(t, resp.Devices, "/dev/sda")
}

func TestServer_UnknownMethodReturnsError(t *testing.T) {
	engine := &fakeEngine{}
	_, path := startTestServer(t, engine)

	resp := roundTrip(t, path, Request{Method: "bogus"})
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}
