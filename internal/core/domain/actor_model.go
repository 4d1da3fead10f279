package domain

import "github.com/berfenger/voltronic2mqtt/pkg/voltronic"

const (
	ACTOR_ID_MASTER        = "master"
	ACTOR_ID_INVERTER      = "inverter"
	ACTOR_ID_STATUS        = "status"
	ACTOR_ID_SETTINGS      = "settings"
	ACTOR_ID_MQTT          = "mqtt"
	ACTOR_ID_HA_DISCOVERY  = "hadiscovery"
	ACTOR_ID_COMMAND_QUEUE = "command_queue"
)

type GetDeviceInfoRequest struct {
	ActorRequestMixIn
}

type GetDeviceInfoResponse struct {
	ActorResponseMixIn
	Info    *DeviceInfo
	Sensors []SensorDescription
}

type GetStatusRequest struct {
	ActorRequestMixIn
}

type GetStatusResponse struct {
	ActorResponseMixIn
	Status ResponseMapping
}

type GetSettingsRequest struct {
	ActorRequestMixIn
}

type GetSettingsResponse struct {
	ActorResponseMixIn
	Settings ResponseMapping
}

type InvokeCommandRequest struct {
	ActorRequestMixIn
	Command string
}

type InvokeCommandResponse struct {
	ActorResponseMixIn
	Command string
	Result  ResponseMapping
}

// QueueCommandRequest puts a raw command in the dispatcher's pending queue.
// With Wait the request blocks until there is room, otherwise a full
// queue is reported as voltronic.ErrQueueFull.
type QueueCommandRequest struct {
	ActorRequestMixIn
	Command string
	Wait    bool
}

type QueueCommandResponse struct {
	ActorResponseMixIn
	Pending voltronic.PendingCommand
}

type CommandResultEvent struct {
	Result voltronic.PendingResult
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

// PublishMessagesRequest publishes payloads keyed by topic suffix under the base topic.
type PublishMessagesRequest struct {
	ActorRequestMixIn
	Messages map[string]string
	Retain   bool
}

type PublishMessagesResponse struct {
	ActorResponseMixIn
	Published int
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors      []GenericSensor
	Switches     []GenericSwitch
	InputNumbers []GenericInputNumber
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
