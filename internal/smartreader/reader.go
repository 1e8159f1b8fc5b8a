package smartreader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ghostwatch/ghostwatchd/internal/device"
	"github.com/rs/zerolog/log"
)

// Outcome kinds. Exactly one is produced per Read call.
type OutcomeKind int

const (
	KindSuccess OutcomeKind = iota
	KindTimeout
	KindParseError
	KindNoSupport
	KindVanished
)

// Outcome is the closed tagged variant returned by Read.
type Outcome struct {
	Kind     OutcomeKind
	Identity device.Identity
	Bus      device.Bus

	Attributes device.AttributeMap
	// TemperatureMaxLifetime is the lifetime-max temperature carried
	// alongside the current reading on controllers that report it (0 if
	// unavailable).
	TemperatureMaxLifetime uint8
	Capacity               uint64
	Rotational             bool

	Elapsed time.Duration
	Err     error
}

// Sentinel errors for errors.Is comparisons at call sites.
var (
	ErrTimeout   = errors.New("smartreader: read timed out")
	ErrParse     = errors.New("smartreader: could not parse smartctl output")
	ErrNoSupport = errors.New("smartreader: device does not support SMART")
	ErrVanished  = errors.New("smartreader: device path no longer present")
)

const defaultDeadline = 15 * time.Second

// Reader invokes smartctl as a child process and classifies its result. Its
// only state is a per-device parser-type cache, safe for concurrent Read
// calls: no writes to the device, no health inference.
type Reader struct {
	binPath  string
	deadline time.Duration
	// parserHint remembers, per OS device name, which protocol parser last
	// succeeded so a later call can skip detection.
	mu         sync.Mutex
	parserHint map[string]string
}

// NewReader locates the smartctl binary and constructs a Reader with the
// given per-call deadline.
func NewReader(deadline time.Duration) (*Reader, error) {
	if deadline <= 0 {
		deadline = defaultDeadline
	}
	path, err := detectSmartctl()
	if err != nil {
		return nil, err
	}
	return &Reader{binPath: path, deadline: deadline, parserHint: make(map[string]string)}, nil
}

func detectSmartctl() (string, error) {
	if path, err := exec.LookPath("smartctl"); err == nil {
		return path, nil
	}
	locations := []string{"/usr/sbin/smartctl", "/sbin/smartctl", "/opt/homebrew/bin/smartctl"}
	if runtime.GOOS == "windows" {
		locations = []string{`C:\Program Files\smartmontools\bin\smartctl.exe`}
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc, nil
		}
	}
	return "", errors.New("smartctl not found")
}

// ScanDevices runs `smartctl --scan -j` and returns the OS device names and
// type hints smartctl discovered. Used by the scan engine to build its
// inventory.
func (r *Reader) ScanDevices(ctx context.Context) ([]string, map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, r.binPath, "--scan", "-j")
	output, err := cmd.Output()
	if err != nil {
		return nil, nil, fmt.Errorf("smartctl --scan: %w", err)
	}
	var scan scanOutput
	if err := json.Unmarshal(output, &scan); err != nil {
		return nil, nil, fmt.Errorf("smartctl --scan: %w", ErrParse)
	}
	names := make([]string, 0, len(scan.Devices))
	hints := make(map[string]string, len(scan.Devices))
	for _, d := range scan.Devices {
		if d.Name == "" {
			continue
		}
		names = append(names, d.Name)
		hints[d.Name] = normalizeParserType(d.Type)
	}
	return names, hints, nil
}

// Read performs one SMART poll of osName, classifying the result exactly as
// one of Success/Timeout/ParseError/NoSupport/Vanished.
func (r *Reader) Read(ctx context.Context, osName string, busHint device.Bus) Outcome {
	if _, err := os.Stat(osName); err != nil && runtime.GOOS != "windows" {
		return Outcome{Kind: KindVanished, Err: fmt.Errorf("%w: %s", ErrVanished, osName)}
	}

	start := time.Now()
	r.mu.Lock()
	parserType := r.parserHint[osName]
	r.mu.Unlock()
	args := buildArgs(osName, parserType, true)

	ctx, cancel := context.WithTimeout(ctx, r.deadline)
	defer cancel()
	cmd := exec.CommandContext(ctx, r.binPath, args...)
	output, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		return Outcome{Kind: KindTimeout, Elapsed: elapsed, Err: fmt.Errorf("%w after %s", ErrTimeout, elapsed)}
	}

	// Exit status 2 from smartctl means the device is in standby; retry
	// bypassing standby only if we have never established a parser type for
	// it yet, mirroring CollectSmart's cache-aware standby handling.
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 2 && parserType == "" {
		args = buildArgs(osName, parserType, false)
		cmd2 := exec.CommandContext(ctx, r.binPath, args...)
		output, err = cmd2.CombinedOutput()
		elapsed = time.Since(start)
	}

	outcome, detected := r.parse(osName, parserType, output)
	if outcome.Kind == KindSuccess {
		r.mu.Lock()
		r.parserHint[osName] = detected
		r.mu.Unlock()
	}
	outcome.Elapsed = elapsed
	if busHint != "" && outcome.Bus == "" {
		outcome.Bus = busHint
	}
	if outcome.Kind != KindSuccess && outcome.Kind != KindNoSupport && err != nil {
		log.Debug().Str("device", osName).Err(err).Msg("smartctl invocation failed")
	}
	return outcome
}

func buildArgs(osName, parserType string, standby bool) []string {
	args := make([]string, 0, 6)
	if parserType != "" {
		args = append(args, "-d", parserType)
	}
	args = append(args, "-a", "--json=c")
	if standby {
		args = append(args, "-n", "standby")
	}
	args = append(args, osName)
	return args
}

func normalizeParserType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "nvme", "sntasmedia", "sntrealtek":
		return "nvme"
	case "sat", "ata":
		return "sat"
	case "scsi":
		return "scsi"
	default:
		return ""
	}
}

// parse tries each protocol parser in order, preferring parserType when
// known, and returns the first that succeeds.
func (r *Reader) parse(osName, parserType string, output []byte) (Outcome, string) {
	order := []string{"nvme", "sat", "scsi"}
	if parserType != "" {
		order = append([]string{parserType}, order...)
	} else if detected := detectOutputType(output); detected != "" {
		order = append([]string{detected}, order...)
	}

	seen := make(map[string]bool, 3)
	for _, kind := range order {
		if seen[kind] {
			continue
		}
		seen[kind] = true
		switch kind {
		case "nvme":
			if o, ok := parseNVMe(output); ok {
				return o, "nvme"
			}
		case "sat":
			if o, ok := parseSata(output); ok {
				return o, "sat"
			}
		case "scsi":
			if o, ok := parseScsi(output); ok {
				return o, "scsi"
			}
		}
	}

	if len(bytes.TrimSpace(output)) == 0 {
		return Outcome{Kind: KindNoSupport, Err: ErrNoSupport}, ""
	}
	if isNoSupportOutput(output) {
		return Outcome{Kind: KindNoSupport, Err: ErrNoSupport}, ""
	}
	return Outcome{Kind: KindParseError, Err: ErrParse}, ""
}

func isNoSupportOutput(output []byte) bool {
	lower := strings.ToLower(string(output))
	return strings.Contains(lower, "smart support is: unavailable") ||
		strings.Contains(lower, "smart support is: disabled") ||
		strings.Contains(lower, "device lacks smart capability") ||
		strings.Contains(lower, "unable to detect device type")
}

func detectOutputType(output []byte) string {
	var hints struct {
		Ata  json.RawMessage `json:"ata_smart_attributes"`
		NVMe json.RawMessage `json:"nvme_smart_health_information_log"`
		Scsi json.RawMessage `json:"scsi_error_counter_log"`
	}
	if err := json.Unmarshal(output, &hints); err != nil {
		return ""
	}
	switch {
	case hasValue(hints.NVMe):
		return "nvme"
	case hasValue(hints.Ata):
		return "sat"
	case hasValue(hints.Scsi):
		return "scsi"
	default:
		return ""
	}
}

func hasValue(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null"
}

// isVirtualModel reports whether a model/vendor string identifies a virtual
// disk (QEMU, VirtualBox, Hyper-V, iSCSI target) rather than physical media,
// so hypervisor-presented block devices don't get scored as real drives.
func isVirtualModel(fields ...string) bool {
	for _, f := range fields {
		u := strings.ToUpper(f)
		switch {
		case strings.Contains(u, "IET"),
			strings.Contains(u, "VIRTUAL"),
			strings.Contains(u, "QEMU"),
			strings.Contains(u, "VBOX"),
			strings.Contains(u, "VMWARE"),
			strings.Contains(u, "MSFT"):
			return true
		}
	}
	return false
}

func parseSata(output []byte) (Outcome, bool) {
	var data sataPayload
	if err := json.Unmarshal(output, &data); err != nil {
		return Outcome{}, false
	}
	if data.SerialNumber == "" {
		return Outcome{}, false
	}
	if isVirtualModel(data.ModelName, data.ScsiVendor, data.ScsiProduct) {
		return Outcome{Kind: KindNoSupport, Err: ErrNoSupport}, true
	}

	attrs := make(device.AttributeMap, len(data.AtaSmartAttributes.Table))
	for _, a := range data.AtaSmartAttributes.Table {
		attrs[device.AttrID(a.ID)] = device.Attribute{
			RawValue:   a.Raw.Value,
			Normalized: uint8(a.Value),
			Worst:      uint8(a.Worst),
			Threshold:  uint8(a.Thresh),
		}
	}
	if data.PowerOnTime.Hours > 0 {
		if _, ok := attrs[device.AttrPowerOnHours]; !ok {
			attrs[device.AttrPowerOnHours] = device.Attribute{RawValue: data.PowerOnTime.Hours}
		}
	}

	return Outcome{
		Kind: KindSuccess,
		Identity: device.Identity{
			Model:  firstNonEmpty(data.ModelName, data.ScsiProduct),
			Serial: data.SerialNumber,
		},
		Bus:                    busFromParser(data.Device.Type, device.BusSAT),
		Attributes:             attrs,
		Capacity:               data.UserCapacity.Bytes,
		Rotational:             data.RotationRate == 0 || data.RotationRate > 1,
		TemperatureMaxLifetime: data.Temperature.Current,
	}, true
}

func parseNVMe(output []byte) (Outcome, bool) {
	var data nvmePayload
	if err := json.Unmarshal(output, &data); err != nil {
		return Outcome{}, false
	}
	if data.SerialNumber == "" {
		return Outcome{}, false
	}
	if isVirtualModel(data.ModelName) {
		return Outcome{Kind: KindNoSupport, Err: ErrNoSupport}, true
	}

	health := data.NVMeSmartHealthInformationLog
	attrs := device.AttributeMap{
		device.AttrPowerOnHours:          {RawValue: uint64(health.PowerOnHours)},
		device.AttrPowerCycleCount:       {RawValue: uint64(health.PowerCycles)},
		device.AttrTemperature:           {RawValue: uint64(health.Temperature)},
		device.AttrPercentLifetimeRemain: {RawValue: uint64(100 - clampPercent(health.PercentageUsed))},
		device.AttrTotalLBAsWritten:      {RawValue: health.DataUnitsWritten},
		// NVMe has no direct reallocated/pending-sector analog; media_errors
		// is the closest uncorrectable-error counter.
		device.AttrReportedUncorrectable: {RawValue: uint64(health.MediaErrors)},
	}

	return Outcome{
		Kind: KindSuccess,
		Identity: device.Identity{
			Model:  data.ModelName,
			Serial: data.SerialNumber,
		},
		Bus:                    device.BusNVMe,
		Attributes:             attrs,
		Capacity:               data.UserCapacity.Bytes,
		Rotational:             false,
		TemperatureMaxLifetime: health.Temperature,
	}, true
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func parseScsi(output []byte) (Outcome, bool) {
	var data scsiPayload
	if err := json.Unmarshal(output, &data); err != nil {
		return Outcome{}, false
	}
	if data.SerialNumber == "" {
		return Outcome{}, false
	}
	if isVirtualModel(data.ScsiVendor, data.ScsiProduct, data.ScsiModelName) {
		return Outcome{Kind: KindNoSupport, Err: ErrNoSupport}, true
	}

	attrs := device.AttributeMap{
		device.AttrPowerOnHours:          {RawValue: data.PowerOnTime.Hours},
		device.AttrPendingSectors:        {RawValue: data.ScsiGrownDefectList},
		device.AttrReportedUncorrectable: {RawValue: uint64(data.ScsiErrorCounterLog.Read.TotalUncorrectedErrors + data.ScsiErrorCounterLog.Write.TotalUncorrectedErrors)},
	}

	return Outcome{
		Kind: KindSuccess,
		Identity: device.Identity{
			Model:  firstNonEmpty(data.ScsiModelName, data.ScsiProduct),
			Serial: data.SerialNumber,
		},
		Bus:                    device.BusSCSI,
		Attributes:             attrs,
		Capacity:               data.UserCapacity.Bytes,
		Rotational:             true,
		TemperatureMaxLifetime: data.Temperature.Current,
	}, true
}

func busFromParser(smartctlType string, fallback device.Bus) device.Bus {
	switch normalizeParserType(smartctlType) {
	case "nvme":
		return device.BusNVMe
	case "sat":
		return device.BusSAT
	case "scsi":
		return device.BusSCSI
	default:
		return fallback
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
