package events

import (
	"testing"

	"github.com/berfenger/voltronic2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestStatusToUpdateEvents(t *testing.T) {
	assert := assert.New(t)
	descriptions := []domain.SensorDescription{
		{Key: "battery_voltage", SensorType: domain.SENSOR_TYPE_SENSOR, Decimals: 2},
		{Key: "load_on", SensorType: domain.SENSOR_TYPE_BINARY},
		{Key: "device_mode", SensorType: domain.SENSOR_TYPE_SENSOR},
		{Key: "missing", SensorType: domain.SENSOR_TYPE_SENSOR},
	}
	status := domain.ResponseMapping{
		"battery_voltage": 54.5,
		"load_on":         true,
		"device_mode":     "Battery",
		"undescribed":     1.0,
	}

	evs := StatusToUpdateEvents(status, descriptions)
	assert.Equal([]any{
		domain.NewFloatSensorUpdateEvent("battery_voltage", 54.5, 2),
		domain.NewBinarySensorUpdateEvent("load_on", true),
		domain.NewTextSensorUpdateEvent("device_mode", "Battery"),
	}, evs)
}

func TestSettingsToUpdateEvents(t *testing.T) {
	assert := assert.New(t)
	evs := SettingsToUpdateEvents(domain.ResponseMapping{
		domain.SETTING_KEY_OUTPUT_SOURCE_PRIORITY:  2,
		domain.SETTING_KEY_CHARGER_SOURCE_PRIORITY: 3,
		domain.SETTING_KEY_BUZZER_ENABLED:          false,
		domain.SETTING_KEY_BACKLIGHT_ENABLED:       true,
	})
	assert.Equal([]any{
		domain.NewInputNumberSensorUpdateEvent(domain.INPUT_NUMBER_ID_OUTPUT_SOURCE_PRIORITY, 2),
		domain.NewInputNumberSensorUpdateEvent(domain.INPUT_NUMBER_ID_CHARGER_SOURCE_PRIORITY, 3),
		domain.NewSwitchSensorUpdateEvent(domain.SWITCH_ID_BUZZER, false),
		domain.NewSwitchSensorUpdateEvent(domain.SWITCH_ID_BACKLIGHT, true),
	}, evs)

	assert.Empty(SettingsToUpdateEvents(domain.ResponseMapping{}))
}
