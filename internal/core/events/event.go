package events

import (
	. "github.com/berfenger/voltronic2mqtt/internal/core/domain"
)

// StatusToUpdateEvents maps the described keys of a status mapping to
// sensor update events. Keys without a description are not published.
func StatusToUpdateEvents(status ResponseMapping, descriptions []SensorDescription) []any {
	var events []any
	for _, d := range descriptions {
		if _, ok := status[d.Key]; !ok {
			continue
		}
		if d.IsBinary() {
			if v, ok := status.Bool(d.Key); ok {
				events = append(events, NewBinarySensorUpdateEvent(d.Key, v))
			}
			continue
		}
		if v, ok := status.Float(d.Key); ok {
			events = append(events, NewFloatSensorUpdateEvent(d.Key, v, d.Decimals))
		} else if v, ok := status.Text(d.Key); ok {
			events = append(events, NewTextSensorUpdateEvent(d.Key, v))
		}
	}
	return events
}

func SettingsToUpdateEvents(settings ResponseMapping) []any {
	var events []any
	// Output source priority
	if v, ok := settings.Int(SETTING_KEY_OUTPUT_SOURCE_PRIORITY); ok {
		events = append(events, NewInputNumberSensorUpdateEvent(INPUT_NUMBER_ID_OUTPUT_SOURCE_PRIORITY, float64(v)))
	}
	// Charger source priority
	if v, ok := settings.Int(SETTING_KEY_CHARGER_SOURCE_PRIORITY); ok {
		events = append(events, NewInputNumberSensorUpdateEvent(INPUT_NUMBER_ID_CHARGER_SOURCE_PRIORITY, float64(v)))
	}
	// Buzzer
	if v, ok := settings.Bool(SETTING_KEY_BUZZER_ENABLED); ok {
		events = append(events, NewSwitchSensorUpdateEvent(SWITCH_ID_BUZZER, v))
	}
	// LCD backlight
	if v, ok := settings.Bool(SETTING_KEY_BACKLIGHT_ENABLED); ok {
		events = append(events, NewSwitchSensorUpdateEvent(SWITCH_ID_BACKLIGHT, v))
	}
	return events
}

func BridgeStateEvent(online bool) any {
	return BridgeStateUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_BRIDGE_STATE,
		},
		Value: online,
	}
}
