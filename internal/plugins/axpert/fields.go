package axpert

import (
	"fmt"
	"strconv"
	"strings"

	. "github.com/berfenger/voltronic2mqtt/internal/core/domain"
)

type fieldKind int

const (
	kindFloat fieldKind = iota
	kindInt
	kindText
	// b7..b0 style bit string, expanded through bits
	kindBits
)

type bitField struct {
	index int
	key   string
}

type field struct {
	key  string
	kind fieldKind
	bits []bitField
}

// QPIGS: device general status parameters
var qpigsFields = []field{
	{key: "grid_voltage", kind: kindFloat},
	{key: "grid_frequency", kind: kindFloat},
	{key: "ac_output_voltage", kind: kindFloat},
	{key: "ac_output_frequency", kind: kindFloat},
	{key: "ac_output_apparent_power", kind: kindInt},
	{key: "ac_output_active_power", kind: kindInt},
	{key: "output_load_percent", kind: kindInt},
	{key: "bus_voltage", kind: kindInt},
	{key: "battery_voltage", kind: kindFloat},
	{key: "battery_charging_current", kind: kindInt},
	{key: "battery_capacity", kind: kindInt},
	{key: "inverter_heat_sink_temperature", kind: kindInt},
	{key: "pv_input_current", kind: kindFloat},
	{key: "pv_input_voltage", kind: kindFloat},
	{key: "battery_voltage_from_scc", kind: kindFloat},
	{key: "battery_discharge_current", kind: kindInt},
	{key: "device_status", kind: kindBits, bits: []bitField{
		{index: 0, key: "sbu_priority_version"},
		{index: 1, key: "configuration_changed"},
		{index: 2, key: "scc_firmware_updated"},
		{index: 3, key: "load_on"},
		{index: 4, key: "battery_voltage_steady"},
		{index: 5, key: "charging_on"},
		{index: 6, key: "scc_charging_on"},
		{index: 7, key: "ac_charging_on"},
	}},
	{key: "battery_voltage_offset_for_fans", kind: kindInt},
	{key: "eeprom_version", kind: kindText},
	{key: "pv_charging_power", kind: kindInt},
	{key: "device_status_2", kind: kindBits, bits: []bitField{
		{index: 0, key: "charging_to_floating"},
		{index: 1, key: "switch_on"},
	}},
}

// QPIRI: device rating information
var qpiriFields = []field{
	{key: "grid_rating_voltage", kind: kindFloat},
	{key: "grid_rating_current", kind: kindFloat},
	{key: "ac_output_rating_voltage", kind: kindFloat},
	{key: "ac_output_rating_frequency", kind: kindFloat},
	{key: "ac_output_rating_current", kind: kindFloat},
	{key: "ac_output_rating_apparent_power", kind: kindInt},
	{key: "ac_output_rating_active_power", kind: kindInt},
	{key: "battery_rating_voltage", kind: kindFloat},
	{key: "battery_recharge_voltage", kind: kindFloat},
	{key: "battery_under_voltage", kind: kindFloat},
	{key: "battery_bulk_voltage", kind: kindFloat},
	{key: "battery_float_voltage", kind: kindFloat},
	{key: "battery_type", kind: kindInt},
	{key: "max_ac_charging_current", kind: kindInt},
	{key: "max_charging_current", kind: kindInt},
	{key: "input_voltage_range", kind: kindInt},
	{key: SETTING_KEY_OUTPUT_SOURCE_PRIORITY, kind: kindInt},
	{key: SETTING_KEY_CHARGER_SOURCE_PRIORITY, kind: kindInt},
	{key: "parallel_max_num", kind: kindInt},
	{key: "machine_type", kind: kindText},
	{key: "topology", kind: kindInt},
	{key: "output_mode", kind: kindInt},
	{key: "battery_redischarge_voltage", kind: kindFloat},
	{key: "pv_ok_condition_for_parallel", kind: kindInt},
	{key: "pv_power_balance", kind: kindInt},
}

var deviceModes = map[string]string{
	"P": "Power on",
	"S": "Standby",
	"L": "Line",
	"B": "Battery",
	"F": "Fault",
	"H": "Power saving",
	"D": "Shutdown",
}

// QFLAG letters
const (
	FLAG_BUZZER    = 'a'
	FLAG_BACKLIGHT = 'x'
)

// parseFields maps the space separated payload onto fields. Extra values
// are ignored; missing ones are an error.
func parseFields(payload string, fields []field) (ResponseMapping, error) {
	values := strings.Fields(payload)
	if len(values) < len(fields) {
		return nil, fmt.Errorf("expected %d fields, got %d", len(fields), len(values))
	}
	result := make(ResponseMapping, len(fields))
	for i, f := range fields {
		v := values[i]
		switch f.kind {
		case kindFloat:
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.key, err)
			}
			result[f.key] = n
		case kindInt:
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.key, err)
			}
			result[f.key] = n
		case kindText:
			result[f.key] = v
		case kindBits:
			result[f.key] = v
			for _, b := range f.bits {
				if b.index < len(v) {
					result[b.key] = v[b.index] == '1'
				}
			}
		}
	}
	return result, nil
}

func parseMode(payload string) (string, error) {
	mode, ok := deviceModes[strings.TrimSpace(payload)]
	if !ok {
		return "", fmt.Errorf("unknown device mode %q", payload)
	}
	return mode, nil
}

// parseFlags reads a QFLAG payload: letters after E are enabled, letters
// after D are disabled.
func parseFlags(payload string) map[rune]bool {
	flags := map[rune]bool{}
	enabled := true
	for _, c := range payload {
		switch c {
		case 'E':
			enabled = true
		case 'D':
			enabled = false
		default:
			flags[c] = enabled
		}
	}
	return flags
}

// parseFirmware strips the "VERFW:" prefix of a QVFW payload.
func parseFirmware(payload string) string {
	if _, version, ok := strings.Cut(payload, ":"); ok {
		return strings.TrimSpace(version)
	}
	return strings.TrimSpace(payload)
}

func describeSensors() []SensorDescription {
	return []SensorDescription{
		{Key: SENSOR_ID_DEVICE_MODE, Name: "Device mode", Icon: "mdi:state-machine"},
		{Key: "grid_voltage", Name: "Grid voltage", UnitOfMeasurement: "V", StateClass: STATE_CLASS_MEASUREMENT, DeviceClass: DEVICE_CLASS_VOLTAGE, Decimals: 1},
		{Key: "grid_frequency", Name: "Grid frequency", UnitOfMeasurement: "Hz", StateClass: STATE_CLASS_MEASUREMENT, DeviceClass: DEVICE_CLASS_FREQUENCY, Decimals: 1},
		{Key: "ac_output_voltage", Name: "AC output voltage", UnitOfMeasurement: "V", StateClass: STATE_CLASS_MEASUREMENT, DeviceClass: DEVICE_CLASS_VOLTAGE, Decimals: 1},
		{Key: "ac_output_frequency", Name: "AC output frequency", UnitOfMeasurement: "Hz", StateClass: STATE_CLASS_MEASUREMENT, DeviceClass: DEVICE_CLASS_FREQUENCY, Decimals: 1},
		{Key: "ac_output_apparent_power", Name: "AC output apparent power", UnitOfMeasurement: "VA", StateClass: STATE_CLASS_MEASUREMENT, DeviceClass: DEVICE_CLASS_APPARENT_POWER},
		{Key: "ac_output_active_power", Name: "AC output active power", UnitOfMeasurement: "W", StateClass: STATE_CLASS_MEASUREMENT, DeviceClass: DEVICE_CLASS_POWER},
		{Key: "output_load_percent", Name: "Output load", UnitOfMeasurement: "%", StateClass: STATE_CLASS_MEASUREMENT, Icon: "mdi:gauge"},
		{Key: "bus_voltage", Name: "Bus voltage", UnitOfMeasurement: "V", StateClass: STATE_CLASS_MEASUREMENT, DeviceClass: DEVICE_CLASS_VOLTAGE, EntityCategory: ENTITY_CLASS_DIAGNOSTIC},
		{Key: "battery_voltage", Name: "Battery voltage", UnitOfMeasurement: "V", StateClass: STATE_CLASS_MEASUREMENT, DeviceClass: DEVICE_CLASS_VOLTAGE, Decimals: 2},
		{Key: "battery_charging_current", Name: "Battery charging current", UnitOfMeasurement: "A", StateClass: STATE_CLASS_MEASUREMENT, DeviceClass: DEVICE_CLASS_CURRENT},
		{Key: "battery_capacity", Name: "Battery capacity", UnitOfMeasurement: "%", StateClass: STATE_CLASS_MEASUREMENT, DeviceClass: DEVICE_CLASS_BATTERY},
		{Key: "inverter_heat_sink_temperature", Name: "Heat sink temperature", UnitOfMeasurement: "°C", StateClass: STATE_CLASS_MEASUREMENT, DeviceClass: DEVICE_CLASS_TEMPERATURE},
		{Key: "pv_input_current", Name: "PV input current", UnitOfMeasurement: "A", StateClass: STATE_CLASS_MEASUREMENT, DeviceClass: DEVICE_CLASS_CURRENT, Decimals: 1},
		{Key: "pv_input_voltage", Name: "PV input voltage", UnitOfMeasurement: "V", StateClass: STATE_CLASS_MEASUREMENT, DeviceClass: DEVICE_CLASS_VOLTAGE, Decimals: 1},
		{Key: "battery_voltage_from_scc", Name: "Battery voltage from SCC", UnitOfMeasurement: "V", StateClass: STATE_CLASS_MEASUREMENT, DeviceClass: DEVICE_CLASS_VOLTAGE, EntityCategory: ENTITY_CLASS_DIAGNOSTIC, Decimals: 2},
		{Key: "battery_discharge_current", Name: "Battery discharge current", UnitOfMeasurement: "A", StateClass: STATE_CLASS_MEASUREMENT, DeviceClass: DEVICE_CLASS_CURRENT},
		{Key: "pv_charging_power", Name: "PV charging power", UnitOfMeasurement: "W", StateClass: STATE_CLASS_MEASUREMENT, DeviceClass: DEVICE_CLASS_POWER},
		{Key: "load_on", Name: "Load", SensorType: SENSOR_TYPE_BINARY, DeviceClass: DEVICE_CLASS_RUNNING},
		{Key: "charging_on", Name: "Charging", SensorType: SENSOR_TYPE_BINARY, DeviceClass: DEVICE_CLASS_BATTERY_CHARGING},
		{Key: "scc_charging_on", Name: "Solar charging", SensorType: SENSOR_TYPE_BINARY, DeviceClass: DEVICE_CLASS_BATTERY_CHARGING},
		{Key: "ac_charging_on", Name: "AC charging", SensorType: SENSOR_TYPE_BINARY, DeviceClass: DEVICE_CLASS_BATTERY_CHARGING},
		{Key: "charging_to_floating", Name: "Floating charge", SensorType: SENSOR_TYPE_BINARY, EntityCategory: ENTITY_CLASS_DIAGNOSTIC},
	}
}
