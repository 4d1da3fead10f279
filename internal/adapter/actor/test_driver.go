package actor

import (
	"context"
	"sync"

	"github.com/berfenger/voltronic2mqtt/internal/core/domain"
)

// TestDeviceDriver is an in-memory device driver. Err, when set, is
// returned by every call.
type TestDeviceDriver struct {
	Info     domain.DeviceInfo
	Status   domain.ResponseMapping
	Settings domain.ResponseMapping
	Sensors  []domain.SensorDescription
	Err      error

	mu       sync.Mutex
	invoked  []string
	statuses int
	settings int
}

func NewTestDeviceDriver() *TestDeviceDriver {
	return &TestDeviceDriver{
		Info: domain.DeviceInfo{
			Model:           "Axpert King 5kW",
			DeviceName:      "Axpert King",
			Manufacturer:    "Voltronic Power",
			FirmwareVersion: "00072.70",
			SerialNumber:    "92932004102453",
			ProtocolID:      "PI30",
		},
		Status: domain.ResponseMapping{
			"grid_voltage":               230.4,
			"battery_capacity":           87,
			"load_on":                    true,
			domain.SENSOR_ID_DEVICE_MODE: "Line",
		},
		Settings: domain.ResponseMapping{
			domain.SETTING_KEY_OUTPUT_SOURCE_PRIORITY:  2,
			domain.SETTING_KEY_CHARGER_SOURCE_PRIORITY: 3,
			domain.SETTING_KEY_BUZZER_ENABLED:          false,
			domain.SETTING_KEY_BACKLIGHT_ENABLED:       true,
		},
		Sensors: []domain.SensorDescription{
			{Key: domain.SENSOR_ID_DEVICE_MODE, Name: "Device mode"},
			{Key: "grid_voltage", Name: "Grid voltage", UnitOfMeasurement: "V", Decimals: 1},
			{Key: "battery_capacity", Name: "Battery capacity", UnitOfMeasurement: "%"},
			{Key: "load_on", Name: "Load", SensorType: domain.SENSOR_TYPE_BINARY},
		},
	}
}

func (d *TestDeviceDriver) Invoke(_ context.Context, command string) (domain.ResponseMapping, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.invoked = append(d.invoked, command)
	if d.Err != nil {
		return nil, d.Err
	}
	return domain.ResponseMapping{"command": command, "payload": "ACK"}, nil
}

func (d *TestDeviceDriver) FetchDeviceInformation(context.Context) (*domain.DeviceInfo, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	info := d.Info
	return &info, nil
}

func (d *TestDeviceDriver) FetchSettings(context.Context) (domain.ResponseMapping, error) {
	d.mu.Lock()
	d.settings++
	d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Settings, nil
}

func (d *TestDeviceDriver) FetchStatus(context.Context) (domain.ResponseMapping, error) {
	d.mu.Lock()
	d.statuses++
	d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Status, nil
}

func (d *TestDeviceDriver) DescribeSensors() []domain.SensorDescription {
	return d.Sensors
}

func (d *TestDeviceDriver) Invoked() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.invoked...)
}

func (d *TestDeviceDriver) StatusCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.statuses
}

func (d *TestDeviceDriver) SettingsCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings
}
