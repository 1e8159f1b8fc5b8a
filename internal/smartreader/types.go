// Package smartreader wraps the external smartctl binary and turns its JSON
// output into a device.AttributeMap or a typed failure. It never infers
// health from a failure: failures are aggregated by the gdc package.
package smartreader

import (
	"encoding/json"
	"strconv"
	"strings"
)

// smartctlInfo mirrors the "smartctl" block common to every smartctl -j
// invocation.
type smartctlInfo struct {
	ExitStatus int      `json:"exit_status"`
	Messages   []string `json:"-"`
}

type deviceInfo struct {
	Name     string `json:"name"`
	InfoName string `json:"info_name"`
	Type     string `json:"type"`
	Protocol string `json:"protocol"`
}

type userCapacity struct {
	Blocks uint64 `json:"blocks"`
	Bytes  uint64 `json:"bytes"`
}

type smartStatus struct {
	Passed bool `json:"passed"`
}

type temperatureInfo struct {
	Current uint8 `json:"current"`
}

// rawValue handles smartctl's raw.value field, which is sometimes a plain
// integer and sometimes a human string like "7344 (253d 8h)" or
// "0h+12m+30.000s" for power-on-hours style counters.
type rawValue struct {
	Value uint64
}

func (r *rawValue) UnmarshalJSON(data []byte) error {
	var tmp struct {
		Value  json.RawMessage `json:"value"`
		String string          `json:"string"`
	}
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	if len(tmp.Value) > 0 {
		var n uint64
		if err := json.Unmarshal(tmp.Value, &n); err == nil {
			r.Value = n
		}
	}
	if parsed, ok := parseRawValueString(tmp.String); ok {
		r.Value = parsed
	}
	return nil
}

// parseRawValueString extracts the leading numeric quantity from smartctl's
// human-friendly raw strings.
func parseRawValueString(value string) (uint64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if parsed, err := strconv.ParseUint(value, 10, 64); err == nil {
		return parsed, true
	}
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			continue
		}
		end := i + 1
		for end < len(value) && value[end] >= '0' && value[end] <= '9' {
			end++
		}
		if parsed, err := strconv.ParseUint(value[i:end], 10, 64); err == nil {
			return parsed, true
		}
		i = end
	}
	return 0, false
}

type ataAttribute struct {
	ID     uint16   `json:"id"`
	Name   string   `json:"name"`
	Value  uint16   `json:"value"`
	Worst  uint16   `json:"worst"`
	Thresh uint16   `json:"thresh"`
	Raw    rawValue `json:"raw"`
}

type sataPayload struct {
	Smartctl        smartctlInfo `json:"smartctl"`
	Device          deviceInfo   `json:"device"`
	ModelName       string       `json:"model_name"`
	SerialNumber    string       `json:"serial_number"`
	FirmwareVersion string       `json:"firmware_version"`
	UserCapacity    userCapacity `json:"user_capacity"`
	RotationRate    int          `json:"rotation_rate"`
	ScsiVendor      string       `json:"scsi_vendor"`
	ScsiProduct     string       `json:"scsi_product"`
	Temperature     temperatureInfo `json:"temperature"`
	SmartStatus     smartStatus  `json:"smart_status"`
	AtaSmartAttributes struct {
		Table []ataAttribute `json:"table"`
	} `json:"ata_smart_attributes"`
	PowerOnTime struct {
		Hours uint64 `json:"hours"`
	} `json:"power_on_time"`
}

type nvmeLog struct {
	CriticalWarning  int    `json:"critical_warning"`
	Temperature      uint8  `json:"temperature"`
	AvailableSpare   int    `json:"available_spare"`
	PercentageUsed   int    `json:"percentage_used"`
	DataUnitsRead    uint64 `json:"data_units_read"`
	DataUnitsWritten uint64 `json:"data_units_written"`
	PowerCycles      int    `json:"power_cycles"`
	PowerOnHours     int    `json:"power_on_hours"`
	MediaErrors      int    `json:"media_errors"`
}

type nvmePayload struct {
	Smartctl                      smartctlInfo `json:"smartctl"`
	Device                        deviceInfo   `json:"device"`
	ModelName                     string       `json:"model_name"`
	SerialNumber                  string       `json:"serial_number"`
	FirmwareVersion               string       `json:"firmware_version"`
	UserCapacity                  userCapacity `json:"user_capacity"`
	SmartStatus                   smartStatus  `json:"smart_status"`
	NVMeSmartHealthInformationLog nvmeLog      `json:"nvme_smart_health_information_log"`
}

type scsiErrorStats struct {
	TotalUncorrectedErrors int64 `json:"total_uncorrected_errors"`
}

type scsiPayload struct {
	Smartctl      smartctlInfo `json:"smartctl"`
	Device        deviceInfo   `json:"device"`
	ScsiModelName string       `json:"scsi_model_name"`
	SerialNumber  string       `json:"serial_number"`
	ScsiRevision  string       `json:"scsi_revision"`
	ScsiVendor    string       `json:"scsi_vendor"`
	ScsiProduct   string       `json:"scsi_product"`
	UserCapacity  userCapacity `json:"user_capacity"`
	Temperature   temperatureInfo `json:"temperature"`
	SmartStatus   smartStatus  `json:"smart_status"`
	ScsiGrownDefectList uint64 `json:"scsi_grown_defect_list"`
	PowerOnTime   struct {
		Hours uint64 `json:"hours"`
	} `json:"power_on_time"`
	ScsiErrorCounterLog struct {
		Read  scsiErrorStats `json:"read"`
		Write scsiErrorStats `json:"write"`
	} `json:"scsi_error_counter_log"`
}

// scanOutput is the shape of `smartctl --scan -j`.
type scanOutput struct {
	Devices []deviceInfo `json:"devices"`
}
