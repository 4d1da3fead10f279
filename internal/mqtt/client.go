package mqtt

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/berfenger/voltronic2mqtt/internal/config"
	"github.com/berfenger/voltronic2mqtt/internal/core/domain"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"
	MQTT_PAYLOAD_ON      = "on"
	MQTT_PAYLOAD_OFF     = "off"

	COMMAND_SWITCH = "switch"
	COMMAND_NUMBER = "number"
	COMMAND_SEND   = "send"
)

var ErrNotACommand = errors.New("not a command topic")

func OptsFromConfig(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	opts.SetClientID(fmt.Sprintf("voltronic_%s", strings.ReplaceAll(uuid.NewString(), "-", "")[:12]))
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = bridgeStateTopic(cfg.MQTT.BaseTopic)
	opts.WillQos = 0

	return opts
}

func CreateMQTTClient(cfg *config.Config, opts *mqtt.ClientOptions, onConnectHandler func(client mqtt.Client),
	onConnectionLostHandler func(mqtt.Client, error)) *MQTTClient {
	if onConnectHandler != nil {
		opts.OnConnect = onConnectHandler
	}
	if onConnectionLostHandler != nil {
		opts.OnConnectionLost = onConnectionLostHandler
	}
	return NewMQTTClient(cfg.MQTT, mqtt.NewClient(opts))
}

// NewMQTTClient wraps an existing paho client.
func NewMQTTClient(cfg config.MQTTConfig, client mqtt.Client) *MQTTClient {
	return &MQTTClient{
		client:                   client,
		cfg:                      cfg,
		switchCommandRegexp:      switchCommandExtractor(cfg.BaseTopic),
		inputNumberCommandRegexp: inputNumberCommandExtractor(cfg.BaseTopic),
	}
}

type MQTTClient struct {
	client                   mqtt.Client
	cfg                      config.MQTTConfig
	switchCommandRegexp      *regexp.Regexp
	inputNumberCommandRegexp *regexp.Regexp
}

type ParsedMQTTCommand struct {
	DeviceId string
	Command  string
	Payload  string
}

// Message is a payload ready to be published.
type Message struct {
	Topic   string
	Payload string
	Retain  bool
}

func (c *MQTTClient) baseTopic() string {
	return c.cfg.BaseTopic
}

// Topic builds a topic below the base topic.
func (c *MQTTClient) Topic(suffix string) string {
	return fmt.Sprintf("%s/%s", c.baseTopic(), strings.TrimPrefix(suffix, "/"))
}

func (c *MQTTClient) BridgeStateTopic() string {
	return bridgeStateTopic(c.baseTopic())
}

func (c *MQTTClient) SensorStateTopic(sensorId string) string {
	return fmt.Sprintf("%s/sensor/%s/state", c.baseTopic(), sensorId)
}

func (c *MQTTClient) BinarySensorStateTopic(sensorId string) string {
	return fmt.Sprintf("%s/binary_sensor/%s/state", c.baseTopic(), sensorId)
}

func (c *MQTTClient) SwitchStateTopic(switchId string) string {
	return fmt.Sprintf("%s/switch/%s/state", c.baseTopic(), switchId)
}

func (c *MQTTClient) SwitchCommandTopic(switchId string) string {
	return fmt.Sprintf("%s/switch/%s/command", c.baseTopic(), switchId)
}

func (c *MQTTClient) InputNumberStateTopic(id string) string {
	return fmt.Sprintf("%s/number/%s/state", c.baseTopic(), id)
}

func (c *MQTTClient) InputNumberCommandTopic(id string) string {
	return fmt.Sprintf("%s/number/%s/set", c.baseTopic(), id)
}

// CommandSendTopic receives raw inverter commands, e.g. QPIGS or PEa.
func (c *MQTTClient) CommandSendTopic() string {
	return fmt.Sprintf("%s/command/send", c.baseTopic())
}

func (c *MQTTClient) DiscoveryPrefix() string {
	if c.cfg.HADiscoveryTopic == "" {
		return "homeassistant"
	}
	return c.cfg.HADiscoveryTopic
}

func (c *MQTTClient) ParseMQTTCommand(msg mqtt.Message) (*ParsedMQTTCommand, error) {
	if msg.Topic() == c.CommandSendTopic() {
		return &ParsedMQTTCommand{
			Command: COMMAND_SEND,
			Payload: strings.TrimSpace(string(msg.Payload())),
		}, nil
	}
	switchCmd, err := c.parseSwitchMQTTCommand(msg)
	if err == nil {
		return switchCmd, nil
	}
	if !errors.Is(err, ErrNotACommand) {
		return nil, err
	}
	return c.parseInputNumberMQTTCommand(msg)
}

func (c *MQTTClient) parseSwitchMQTTCommand(msg mqtt.Message) (*ParsedMQTTCommand, error) {
	matches := c.switchCommandRegexp.FindStringSubmatch(msg.Topic())
	if len(matches) != 2 {
		return nil, ErrNotACommand
	}
	return &ParsedMQTTCommand{
		DeviceId: matches[1],
		Command:  COMMAND_SWITCH,
		Payload:  strings.ToLower(strings.TrimSpace(string(msg.Payload()))),
	}, nil
}

func (c *MQTTClient) parseInputNumberMQTTCommand(msg mqtt.Message) (*ParsedMQTTCommand, error) {
	matches := c.inputNumberCommandRegexp.FindStringSubmatch(msg.Topic())
	if len(matches) != 2 {
		return nil, ErrNotACommand
	}

	payload := strings.TrimSpace(string(msg.Payload()))
	// try to parse a valid number
	if _, err := strconv.ParseFloat(payload, 64); err != nil {
		return nil, err
	}

	return &ParsedMQTTCommand{
		DeviceId: matches[1],
		Command:  COMMAND_NUMBER,
		Payload:  payload,
	}, nil
}

// SensorUpdateMessage maps a sensor update event to its state topic and payload.
func (c *MQTTClient) SensorUpdateMessage(event domain.SensorUpdateEvent) (Message, bool) {
	switch msg := event.(type) {
	case domain.FloatSensorUpdateEvent:
		return Message{
			Topic:   c.SensorStateTopic(msg.Id),
			Payload: strconv.FormatFloat(msg.Value, 'f', int(msg.Decimals), 64),
		}, true
	case domain.BinarySensorUpdateEvent:
		return Message{
			Topic:   c.BinarySensorStateTopic(msg.Id),
			Payload: Bool2MQTTPayload(msg.Value),
		}, true
	case domain.SwitchSensorUpdateEvent:
		return Message{
			Topic:   c.SwitchStateTopic(msg.Id),
			Payload: Bool2MQTTPayload(msg.Value),
			Retain:  true,
		}, true
	case domain.InputNumberSensorUpdateEvent:
		return Message{
			Topic:   c.InputNumberStateTopic(msg.Id),
			Payload: strconv.FormatFloat(msg.Value, 'f', int(msg.Decimals), 64),
			Retain:  true,
		}, true
	case domain.TextSensorUpdateEvent:
		return Message{
			Topic:   c.SensorStateTopic(msg.Id),
			Payload: msg.Value,
		}, true
	case domain.BridgeStateUpdateEvent:
		payload := MQTT_PAYLOAD_OFFLINE
		if msg.Value {
			payload = MQTT_PAYLOAD_ONLINE
		}
		return Message{
			Topic:   c.BridgeStateTopic(),
			Payload: payload,
			Retain:  true,
		}, true
	default:
		return Message{}, false
	}
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	token := c.client.Publish(topic, qos, retain, payload)
	go waitToken(token, "publish", continuation, timeout)
}

func (c *MQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	token := c.client.Subscribe(topic, qos, handler)
	go waitToken(token, "subscribe", continuation, timeout)
}

func (c *MQTTClient) SubscribeToCommandTopic(handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	c.Subscribe(c.commandTopic(), 1, handler, continuation, timeout)
}

func (c *MQTTClient) Unsubscribe(topic string, continuation func(error), timeout time.Duration) {
	token := c.client.Unsubscribe(topic)
	go waitToken(token, "unsubscribe", continuation, timeout)
}

func (c *MQTTClient) Connect(continuation func(error), timeout time.Duration) {
	token := c.client.Connect()
	go waitToken(token, "connect", continuation, timeout)
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func waitToken(token mqtt.Token, op string, continuation func(error), timeout time.Duration) {
	if !token.WaitTimeout(timeout) {
		continuation(fmt.Errorf("MQTT %s timed out", op))
		return
	}
	continuation(token.Error())
}

func (c *MQTTClient) commandTopic() string {
	return fmt.Sprintf("%s/#", c.baseTopic())
}

func Bool2MQTTPayload(value bool) string {
	if value {
		return MQTT_PAYLOAD_ON
	}
	return MQTT_PAYLOAD_OFF
}

func switchCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/switch/([a-zA-Z0-9_]+)/command$", regexp.QuoteMeta(baseTopic)))
}

func inputNumberCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/number/([a-zA-Z0-9_]+)/set$", regexp.QuoteMeta(baseTopic)))
}

func bridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}
