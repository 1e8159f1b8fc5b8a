// Package device defines the data model shared by every ghostwatchd
// component: device identity, the SMART attribute map, and the DeviceRecord
// that the scan engine publishes to readers.
package device

import (
	"fmt"
	"regexp"
	"strings"
)

// Identity is the stable key for a device: (model, serial). The OS-level
// name (sda, nvme0n1) is ephemeral and never used as a history key.
type Identity struct {
	Model  string
	Serial string
}

func (id Identity) String() string {
	return fmt.Sprintf("%s/%s", id.Model, id.Serial)
}

// IsZero reports whether the identity carries no usable information, which
// happens for devices that never produced a valid SMART response (e.g. a
// USB bridge that doesn't pass SMART through).
func (id Identity) IsZero() bool {
	return id.Model == "" && id.Serial == ""
}

var sanitizeRe = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// HistoryDir returns the sanitized "<model>_<serial>" directory name used
// under the history root.
func (id Identity) HistoryDir() string {
	model := sanitizeRe.ReplaceAllString(strings.TrimSpace(id.Model), "_")
	serial := sanitizeRe.ReplaceAllString(strings.TrimSpace(id.Serial), "_")
	if model == "" {
		model = "unknown"
	}
	if serial == "" {
		serial = "unknown"
	}
	return model + "_" + serial
}

// Bus identifies the transport a device is attached through.
type Bus string

const (
	BusATA     Bus = "ata"
	BusSAT     Bus = "sat"
	BusNVMe    Bus = "nvme"
	BusUSB     Bus = "usb"
	BusSCSI    Bus = "scsi"
	BusUnknown Bus = "unknown"
)
