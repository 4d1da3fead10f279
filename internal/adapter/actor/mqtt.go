package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/voltronic2mqtt/internal/config"
	"github.com/berfenger/voltronic2mqtt/internal/core/domain"
	"github.com/berfenger/voltronic2mqtt/internal/mqtt"
	"github.com/berfenger/voltronic2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const PUBLISH_TIMEOUT = 5 * time.Second

type MQTTActor struct {
	config       *config.Config
	behavior     actor.Behavior
	stash        *actorutil.Stash
	client       *mqtt.MQTTClient
	eventStream  *eventstream.EventStream
	subscription *eventstream.Subscription
	logger       *zap.Logger
	dummy        *dummyRecord
}

type MQTTConnected struct {
}

type MQTTSubscribed struct {
}

type MQTTConnectionLost struct {
	Error error
}

type publishResult struct {
	ReplyTo *actor.PID
	// number of messages accepted by the broker
	Published int
	Total     int
	Error     error
}

type ParsedCommand struct {
	Command *mqtt.ParsedMQTTCommand
}

func NewMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")
		root, self := ctx.ActorSystem().Root, ctx.Self()

		// create MQTT client
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), nil,
			func(_ pahomqtt.Client, err error) {
				root.Send(self, MQTTConnectionLost{Error: err})
			})

		// connect to MQTT server
		state.client.Connect(func(err error) {
			if err != nil {
				root.Send(self, MQTTConnectionLost{Error: err})
			} else {
				root.Send(self, MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Debug("mqtt@starting connected")
		root, self := ctx.ActorSystem().Root, ctx.Self()

		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)

		// subscribe to MQTT command topic
		state.client.SubscribeToCommandTopic(func(c pahomqtt.Client, m pahomqtt.Message) {
			cmd, err := state.client.ParseMQTTCommand(m)
			if err == nil && cmd != nil {
				root.Send(self, ParsedCommand{Command: cmd})
			} else if !errors.Is(err, mqtt.ErrNotACommand) {
				state.logger.Warn("mqtt@default invalid command", zap.String("topic", m.Topic()), zap.Error(err))
			}
		}, func(err error) {
			if err != nil {
				root.Send(self, MQTTConnectionLost{Error: err})
			} else {
				root.Send(self, MQTTSubscribed{})
			}
		}, 1*time.Second)
	case MQTTSubscribed:
		// init completed, transition to default state
		state.logger.Debug("mqtt@starting subscribed")
		state.subscribeToEvents(ctx)
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: false,
			State:   "starting",
		})
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case ParsedCommand:
		// route command to parent
		state.logger.Debug("mqtt@default parsedCommand", zap.Any("command", msg.Command))
		ctx.Send(ctx.Parent(), msg)
	case domain.PublishMessageRequest:
		state.logger.Debug("mqtt@default PublishMessageRequest", zap.String("topic", msg.Topic))
		state.publish(ctx, []mqtt.Message{{Topic: msg.Topic, Payload: msg.Payload, Retain: msg.Retain}},
			actorutil.ForRequest(msg).ReplyTo(ctx))
		state.behavior.BecomeStacked(state.MessagePublishResultReceive)
	case domain.PublishMessagesRequest:
		state.logger.Debug("mqtt@default PublishMessagesRequest", zap.Int("count", len(msg.Messages)))
		messages := make([]mqtt.Message, 0, len(msg.Messages))
		for suffix, payload := range msg.Messages {
			messages = append(messages, mqtt.Message{Topic: state.client.Topic(suffix), Payload: payload, Retain: msg.Retain})
		}
		state.publish(ctx, messages, actorutil.ForRequest(msg).ReplyTo(ctx))
		state.behavior.BecomeStacked(state.MessagesPublishResultReceive)
	case domain.PublishSensorUpdateRequest:
		// receive message from event bus and publish to MQTT if needed
		state.logger.Debug("mqtt@default PublishSensorUpdateRequest", zap.String("type", fmt.Sprintf("%T", msg.Event)))
		message, ok := state.client.SensorUpdateMessage(msg.Event)
		if !ok {
			return
		}
		message.Retain = message.Retain || msg.Retain
		state.publish(ctx, []mqtt.Message{message}, (*actor.PID)(msg.ReplyTo()))
		state.behavior.BecomeStacked(state.EventPublishResultReceive)
	case domain.PublishDiscoveryRequest:
		state.logger.Debug("mqtt@default PublishHADiscovery")
		messages, err := state.client.DiscoveryMessages(msg.Sensors, msg.Switches, msg.InputNumbers)
		if err != nil {
			state.logger.Error("mqtt@default PublishHADiscovery error", zap.Error(err))
			actorutil.ForRequest(msg).Respond(ctx, domain.PublishDiscoveryResponse{ActorResponseMixIn: domain.ErrorResponse(err)})
			return
		}
		state.publish(ctx, messages, actorutil.ForRequest(msg).ReplyTo(ctx))
		state.behavior.BecomeStacked(state.DiscoveryPublishResultReceive)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// publish sends every message and reports a single publishResult once the
// broker answered all of them.
func (state *MQTTActor) publish(ctx actor.Context, messages []mqtt.Message, replyTo *actor.PID) {
	root, self := ctx.ActorSystem().Root, ctx.Self()
	results := make(chan error, len(messages))
	for _, m := range messages {
		state.logger.Debug("mqtt@publish", zap.String("topic", m.Topic), zap.String("payload", m.Payload))
		state.client.Publish(m.Topic, m.Payload, 1, m.Retain, func(err error) {
			results <- err
		}, PUBLISH_TIMEOUT)
	}
	go func() {
		result := publishResult{ReplyTo: replyTo, Total: len(messages)}
		for range messages {
			if err := <-results; err != nil {
				result.Error = errors.Join(result.Error, err)
			} else {
				result.Published++
			}
		}
		root.Send(self, result)
	}()
}

func (state *MQTTActor) MessagePublishResultReceive(ctx actor.Context) {
	state.publishResultReceive(ctx, func(r publishResult) domain.ActorResponse {
		return domain.PublishMessageResponse{ActorResponseMixIn: domain.ErrorResponse(r.Error)}
	})
}

func (state *MQTTActor) MessagesPublishResultReceive(ctx actor.Context) {
	state.publishResultReceive(ctx, func(r publishResult) domain.ActorResponse {
		return domain.PublishMessagesResponse{ActorResponseMixIn: domain.ErrorResponse(r.Error), Published: r.Published}
	})
}

func (state *MQTTActor) EventPublishResultReceive(ctx actor.Context) {
	state.publishResultReceive(ctx, func(r publishResult) domain.ActorResponse {
		return domain.PublishSensorUpdateResponse{ActorResponseMixIn: domain.ErrorResponse(r.Error)}
	})
}

func (state *MQTTActor) DiscoveryPublishResultReceive(ctx actor.Context) {
	state.publishResultReceive(ctx, func(r publishResult) domain.ActorResponse {
		return domain.PublishDiscoveryResponse{ActorResponseMixIn: domain.ErrorResponse(r.Error)}
	})
}

func (state *MQTTActor) publishResultReceive(ctx actor.Context, response func(publishResult) domain.ActorResponse) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		// log error and return to default state
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message",
				zap.Int("published", msg.Published), zap.Int("total", msg.Total), zap.Error(msg.Error))
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, response(msg))
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	case *actor.Stopping:
		state.stop()
	case MQTTConnectionLost:
		state.logger.Error("mqtt@publishing connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// subscribeToEvents forwards sensor updates of the event stream to self.
func (state *MQTTActor) subscribeToEvents(ctx actor.Context) {
	if state.eventStream == nil || state.subscription != nil {
		return
	}
	root, self := ctx.ActorSystem().Root, ctx.Self()
	state.subscription = state.eventStream.Subscribe(func(evt any) {
		if event, ok := evt.(domain.SensorUpdateEvent); ok {
			root.Send(self, domain.PublishSensorUpdateRequest{Event: event})
		}
	})
}

func (state *MQTTActor) stop() {
	if state.subscription != nil {
		state.eventStream.Unsubscribe(state.subscription)
		state.subscription = nil
	}
	if state.client != nil {
		state.logger.Debug("mqtt: disconnect")
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.client.Disconnect(500 * time.Millisecond)
		state.client = nil
	}
}

// Dummy actor, never connects to a broker. Published payloads are kept in
// Published for inspection.
func NewTestMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

// TestPublishedRequest asks a dummy MQTT actor for what it received.
type TestPublishedRequest struct {
	domain.ActorRequestMixIn
}

type TestPublishedResponse struct {
	domain.ActorResponseMixIn
	Messages  []mqtt.Message
	Discovery []domain.PublishDiscoveryRequest
	Forwarded int
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.client = mqtt.NewMQTTClient(state.config.MQTT, nil)
		state.dummy = &dummyRecord{}
		root, self := ctx.ActorSystem().Root, ctx.Self()
		if state.eventStream != nil {
			state.subscription = state.eventStream.Subscribe(func(evt any) {
				if event, ok := evt.(domain.SensorUpdateEvent); ok {
					root.Send(self, domain.PublishSensorUpdateRequest{Event: event})
				}
			})
		}
	case *actor.Stopping:
		if state.subscription != nil {
			state.eventStream.Unsubscribe(state.subscription)
			state.subscription = nil
		}
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case ParsedCommand:
		state.dummy.forwarded++
		ctx.Send(ctx.Parent(), msg)
	case domain.PublishSensorUpdateRequest:
		if m, ok := state.client.SensorUpdateMessage(msg.Event); ok {
			state.dummy.messages = append(state.dummy.messages, m)
		}
		if msg.ReplyToRef != nil {
			ctx.Send((*actor.PID)(msg.ReplyToRef), domain.PublishSensorUpdateResponse{})
		}
	case domain.PublishMessageRequest:
		state.dummy.messages = append(state.dummy.messages, mqtt.Message{Topic: msg.Topic, Payload: msg.Payload, Retain: msg.Retain})
		actorutil.ForRequest(msg).Respond(ctx, domain.PublishMessageResponse{})
	case domain.PublishMessagesRequest:
		for suffix, payload := range msg.Messages {
			state.dummy.messages = append(state.dummy.messages, mqtt.Message{Topic: state.client.Topic(suffix), Payload: payload, Retain: msg.Retain})
		}
		actorutil.ForRequest(msg).Respond(ctx, domain.PublishMessagesResponse{Published: len(msg.Messages)})
	case domain.PublishDiscoveryRequest:
		state.dummy.discovery = append(state.dummy.discovery, msg)
		actorutil.ForRequest(msg).Respond(ctx, domain.PublishDiscoveryResponse{})
	case TestPublishedRequest:
		ctx.Respond(TestPublishedResponse{
			Messages:  append([]mqtt.Message(nil), state.dummy.messages...),
			Discovery: append([]domain.PublishDiscoveryRequest(nil), state.dummy.discovery...),
			Forwarded: state.dummy.forwarded,
		})
	}
}

type dummyRecord struct {
	messages  []mqtt.Message
	discovery []domain.PublishDiscoveryRequest
	forwarded int
}
