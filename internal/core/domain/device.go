package domain

import (
	"fmt"
	"maps"
	"slices"
)

// DeviceInfo identifies the connected inverter. Built once by the device
// driver and never modified afterwards.
type DeviceInfo struct {
	Model           string `json:"model"`
	DeviceName      string `json:"device_name"`
	Manufacturer    string `json:"manufacturer"`
	FirmwareVersion string `json:"firmware_version"`
	SerialNumber    string `json:"serial_number"`
	ProtocolID      string `json:"protocol_id"`
}

func (i DeviceInfo) String() string {
	return fmt.Sprintf("%s | %s -> %s", i.DeviceName, i.Model, i.FirmwareVersion)
}

// ResponseMapping is the structured result of a driver call, keyed by field name.
// Values are float64, int, bool, string or nested slices of those.
type ResponseMapping map[string]any

func (m ResponseMapping) Keys() []string {
	return slices.Sorted(maps.Keys(m))
}

func (m ResponseMapping) Float(key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint16:
		return float64(v), true
	default:
		return 0, false
	}
}

func (m ResponseMapping) Int(key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint16:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func (m ResponseMapping) Bool(key string) (bool, bool) {
	v, ok := m[key].(bool)
	return v, ok
}

func (m ResponseMapping) Text(key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

// Merge copies every entry of other into a new mapping. Keys of other win.
func (m ResponseMapping) Merge(other ResponseMapping) ResponseMapping {
	merged := make(ResponseMapping, len(m)+len(other))
	maps.Copy(merged, m)
	maps.Copy(merged, other)
	return merged
}

// keys a device driver reports from FetchSettings when the model supports them
const (
	SETTING_KEY_OUTPUT_SOURCE_PRIORITY  = "output_source_priority"
	SETTING_KEY_CHARGER_SOURCE_PRIORITY = "charger_source_priority"
	SETTING_KEY_BUZZER_ENABLED          = "buzzer_enabled"
	SETTING_KEY_BACKLIGHT_ENABLED       = "backlight_enabled"
)
