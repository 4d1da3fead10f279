package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/berfenger/voltronic2mqtt/internal/config"
	"github.com/berfenger/voltronic2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

type testMessage struct {
	topic   string
	payload string
}

func (m testMessage) Duplicate() bool   { return false }
func (m testMessage) Qos() byte         { return 1 }
func (m testMessage) Retained() bool    { return false }
func (m testMessage) Topic() string     { return m.topic }
func (m testMessage) MessageID() uint16 { return 1 }
func (m testMessage) Payload() []byte   { return []byte(m.payload) }
func (m testMessage) Ack()              {}

func testClient() *MQTTClient {
	return NewMQTTClient(config.MQTTConfig{BaseTopic: "voltronic", HADiscoveryTopic: "homeassistant"}, nil)
}

func TestSwitchCommandParse(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/switch/my_device/command"
	r := switchCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(matches[0][1], "my_device", "device extract")
}

func TestSwitchCommandParseFail(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/switch/my_device/state"
	r := switchCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(len(matches), 0, "no matches")
}

func TestInputNumberCommandParse(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/number/number_name/set"
	r := inputNumberCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(matches[0][1], "number_name", "number_id extract")
}

func TestInputNumberCommandParseFail(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/switch/number_name/command"
	r := inputNumberCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(len(matches), 0, "no matches")
}

func TestParseMQTTCommand(t *testing.T) {
	assert := assert.New(t)
	client := testClient()

	cmd, err := client.ParseMQTTCommand(testMessage{topic: "voltronic/command/send", payload: " QPIGS\n"})
	assert.NoError(err)
	assert.Equal(&ParsedMQTTCommand{Command: COMMAND_SEND, Payload: "QPIGS"}, cmd)

	cmd, err = client.ParseMQTTCommand(testMessage{topic: "voltronic/switch/buzzer/command", payload: "ON"})
	assert.NoError(err)
	assert.Equal(&ParsedMQTTCommand{DeviceId: "buzzer", Command: COMMAND_SWITCH, Payload: "on"}, cmd)

	cmd, err = client.ParseMQTTCommand(testMessage{topic: "voltronic/number/output_source_priority/set", payload: "2"})
	assert.NoError(err)
	assert.Equal(&ParsedMQTTCommand{DeviceId: "output_source_priority", Command: COMMAND_NUMBER, Payload: "2"}, cmd)

	_, err = client.ParseMQTTCommand(testMessage{topic: "voltronic/number/output_source_priority/set", payload: "two"})
	assert.Error(err)

	_, err = client.ParseMQTTCommand(testMessage{topic: "voltronic/sensor/grid_voltage/state", payload: "230.1"})
	assert.ErrorIs(err, ErrNotACommand)

	// other base topics are ignored
	_, err = client.ParseMQTTCommand(testMessage{topic: "other/switch/buzzer/command", payload: "on"})
	assert.ErrorIs(err, ErrNotACommand)
}

func TestSensorUpdateMessage(t *testing.T) {
	assert := assert.New(t)
	client := testClient()

	msg, ok := client.SensorUpdateMessage(domain.NewFloatSensorUpdateEvent("grid_voltage", 229.96, 1))
	assert.True(ok)
	assert.Equal(Message{Topic: "voltronic/sensor/grid_voltage/state", Payload: "230.0"}, msg)

	msg, ok = client.SensorUpdateMessage(domain.NewBinarySensorUpdateEvent("load_on", true))
	assert.True(ok)
	assert.Equal(Message{Topic: "voltronic/binary_sensor/load_on/state", Payload: "on"}, msg)

	msg, ok = client.SensorUpdateMessage(domain.NewSwitchSensorUpdateEvent(domain.SWITCH_ID_BUZZER, false))
	assert.True(ok)
	assert.Equal(Message{Topic: "voltronic/switch/buzzer/state", Payload: "off", Retain: true}, msg)

	msg, ok = client.SensorUpdateMessage(domain.NewInputNumberSensorUpdateEvent(domain.INPUT_NUMBER_ID_CHARGER_SOURCE_PRIORITY, 3))
	assert.True(ok)
	assert.Equal(Message{Topic: "voltronic/number/charger_source_priority/state", Payload: "3", Retain: true}, msg)

	msg, ok = client.SensorUpdateMessage(domain.NewTextSensorUpdateEvent(domain.SENSOR_ID_DEVICE_MODE, "Line"))
	assert.True(ok)
	assert.Equal("voltronic/sensor/device_mode/state", msg.Topic)

	msg, ok = client.SensorUpdateMessage(domain.BridgeStateUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: domain.SENSOR_ID_BRIDGE_STATE},
		Value:                  true,
	})
	assert.True(ok)
	assert.Equal(Message{Topic: "voltronic/bridge/state", Payload: "online", Retain: true}, msg)
}

func TestTopics(t *testing.T) {
	assert := assert.New(t)
	client := testClient()

	assert.Equal("voltronic/command/result", client.Topic("command/result"))
	assert.Equal("voltronic/command/result", client.Topic("/command/result"))
	assert.Equal("voltronic/command/send", client.CommandSendTopic())
	assert.Equal("voltronic/#", client.commandTopic())
}

func TestDiscoveryMessages(t *testing.T) {
	assert := assert.New(t)
	client := testClient()

	info := &domain.DeviceInfo{Model: "Axpert King 5kW", DeviceName: "Axpert King", Manufacturer: "Voltronic Power",
		FirmwareVersion: "00072.70", SerialNumber: "92932004102453"}
	inverter := domain.InverterDevice(info)
	sensors := domain.InverterSensors(inverter, []domain.SensorDescription{
		{Key: "grid_voltage", Name: "Grid voltage", UnitOfMeasurement: "V", DeviceClass: domain.DEVICE_CLASS_VOLTAGE},
		{Key: "load_on", Name: "Load", SensorType: domain.SENSOR_TYPE_BINARY},
	})

	messages, err := client.DiscoveryMessages(sensors, domain.SettingsSwitches(inverter), domain.SettingsInputNumbers(inverter))
	assert.NoError(err)
	assert.Len(messages, 6)

	assert.Equal("homeassistant/sensor/"+inverter.Id+"/grid_voltage/config", messages[0].Topic)
	assert.True(messages[0].Retain)

	var binary HADiscoveryConfig
	assert.NoError(json.Unmarshal([]byte(messages[1].Payload), &binary))
	assert.Equal("voltronic/binary_sensor/load_on/state", binary.StateTopic)
	assert.Equal(MQTT_PAYLOAD_ON, binary.PayloadOn)
	assert.Equal("voltronic/bridge/state", binary.AvTopic)

	var buzzer HADiscoveryConfig
	assert.NoError(json.Unmarshal([]byte(messages[2].Payload), &buzzer))
	assert.Equal("homeassistant/switch/"+inverter.Id+"/buzzer/config", messages[2].Topic)
	assert.Equal("voltronic/switch/buzzer/command", buzzer.CommandTopic)

	var priority HADiscoveryConfig
	assert.NoError(json.Unmarshal([]byte(messages[4].Payload), &priority))
	assert.Equal("voltronic/number/output_source_priority/set", priority.CommandTopic)
	assert.Equal(float64(2), priority.Max)
}
