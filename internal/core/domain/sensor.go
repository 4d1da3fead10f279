package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE                  = "bridge"
	SENSOR_ID_DEVICE_MODE                   = "device_mode"
	SWITCH_ID_BUZZER                        = "buzzer"
	SWITCH_ID_BACKLIGHT                     = "backlight"
	INPUT_NUMBER_ID_OUTPUT_SOURCE_PRIORITY  = "output_source_priority"
	INPUT_NUMBER_ID_CHARGER_SOURCE_PRIORITY = "charger_source_priority"
	STATE_CLASS_MEASUREMENT                 = "measurement"
	STATE_CLASS_TOTAL_INCREASING            = "total_increasing"
	DEVICE_CLASS_BATTERY                    = "battery"
	DEVICE_CLASS_CURRENT                    = "current"
	DEVICE_CLASS_FREQUENCY                  = "frequency"
	DEVICE_CLASS_POWER                      = "power"
	DEVICE_CLASS_APPARENT_POWER             = "apparent_power"
	DEVICE_CLASS_TEMPERATURE                = "temperature"
	DEVICE_CLASS_VOLTAGE                    = "voltage"
	DEVICE_CLASS_CONNECTIVITY               = "connectivity"
	DEVICE_CLASS_RUNNING                    = "running"
	DEVICE_CLASS_BATTERY_CHARGING           = "battery_charging"
	ENTITY_CLASS_DIAGNOSTIC                 = "diagnostic"
	ENTITY_CLASS_CONFIG                     = "config"
	SENSOR_TYPE_SENSOR                      = "sensor"
	SENSOR_TYPE_BINARY                      = "binary_sensor"
	INPUT_NUMBER_MODE_BOX                   = "box"
	INPUT_NUMBER_MODE_SLIDER                = "slider"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("voltronic_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "Voltronic2MQTT",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Voltronic2MQTT %s", md5HashShort(baseTopic)),
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{
		{
			Device:         bridgeDevice,
			Id:             SENSOR_ID_BRIDGE_STATE,
			SensorType:     SENSOR_TYPE_BINARY,
			Name:           "Connection state",
			DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
			EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
			UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
		},
	}
}

func InverterDevice(info *DeviceInfo) Device {
	return Device{
		Id:           fmt.Sprintf("vlt_inverter_%s", md5HashShort(info.SerialNumber)),
		Version:      info.FirmwareVersion,
		Manufacturer: info.Manufacturer,
		Model:        info.Model,
		Name:         fmt.Sprintf("%s %s", info.DeviceName, md5HashShort(info.SerialNumber)),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

// InverterSensors turns driver descriptions into discovery sensors.
// Only the first sensor carries the full device block.
func InverterSensors(inverterDevice Device, descriptions []SensorDescription) []GenericSensor {
	sensors := make([]GenericSensor, 0, len(descriptions))
	for i, d := range descriptions {
		device := inverterDevice
		if i > 0 {
			device = IdDevice(inverterDevice)
		}
		sensorType := d.SensorType
		if sensorType == "" {
			sensorType = SENSOR_TYPE_SENSOR
		}
		sensors = append(sensors, GenericSensor{
			Device:            device,
			Id:                d.Key,
			SensorType:        sensorType,
			Name:              d.Name,
			UnitOfMeasurement: d.UnitOfMeasurement,
			StateClass:        d.StateClass,
			DeviceClass:       d.DeviceClass,
			EntityCategory:    d.EntityCategory,
			Icon:              d.Icon,
			UniqueId:          uniqueId(inverterDevice.Id, d.Key),
		})
	}
	return sensors
}

func SettingsSwitches(inverterDevice Device) []GenericSwitch {
	device := IdDevice(inverterDevice)
	return []GenericSwitch{
		{
			Device:   device,
			Id:       SWITCH_ID_BUZZER,
			Name:     "Buzzer",
			UniqueId: uniqueId(inverterDevice.Id, SWITCH_ID_BUZZER),
			Icon:     "mdi:volume-high",
		},
		{
			Device:   device,
			Id:       SWITCH_ID_BACKLIGHT,
			Name:     "LCD backlight",
			UniqueId: uniqueId(inverterDevice.Id, SWITCH_ID_BACKLIGHT),
			Icon:     "mdi:brightness-6",
		},
	}
}

func SettingsInputNumbers(inverterDevice Device) []GenericInputNumber {
	device := IdDevice(inverterDevice)
	return []GenericInputNumber{
		{
			Device:   device,
			Id:       INPUT_NUMBER_ID_OUTPUT_SOURCE_PRIORITY,
			Name:     "Output source priority (0 utility, 1 solar, 2 SBU)",
			UniqueId: uniqueId(inverterDevice.Id, INPUT_NUMBER_ID_OUTPUT_SOURCE_PRIORITY),
			Icon:     "mdi:transmission-tower-export",
			Min:      0,
			Max:      2,
			Step:     1,
			Mode:     INPUT_NUMBER_MODE_BOX,
		},
		{
			Device:   device,
			Id:       INPUT_NUMBER_ID_CHARGER_SOURCE_PRIORITY,
			Name:     "Charger source priority (0 utility, 1 solar, 2 solar+utility, 3 solar only)",
			UniqueId: uniqueId(inverterDevice.Id, INPUT_NUMBER_ID_CHARGER_SOURCE_PRIORITY),
			Icon:     "mdi:battery-charging",
			Min:      0,
			Max:      3,
			Step:     1,
			Mode:     INPUT_NUMBER_MODE_BOX,
		},
	}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}
