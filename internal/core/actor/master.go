package actor

import (
	"errors"
	"fmt"
	"time"

	adactor "github.com/berfenger/voltronic2mqtt/internal/adapter/actor"
	"github.com/berfenger/voltronic2mqtt/internal/config"
	"github.com/berfenger/voltronic2mqtt/internal/core/domain"
	"github.com/berfenger/voltronic2mqtt/internal/core/port"
	"github.com/berfenger/voltronic2mqtt/internal/core/service"
	. "github.com/berfenger/voltronic2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

const (
	HEALTH_CHECK_TIMEOUT   = 500 * time.Millisecond
	DEVICE_REQUEST_TIMEOUT = 30 * time.Second
)

type InverterActorProvider func() *adactor.InverterActor

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type CommandQueueActorProvider func(publisher port.Publisher, eventStream *eventstream.EventStream) *adactor.CommandQueueActor

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck        healthCheckResult
	eventStream               *eventstream.EventStream
	inverterActor             *actor.PID
	mqttActor                 *actor.PID
	commandQueueActor         *actor.PID
	statusActor               *actor.PID
	settingsActor             *actor.PID
	inverterActorProvider     InverterActorProvider
	mqttActorProvider         MQTTActorProvider
	commandQueueActorProvider CommandQueueActorProvider
	settingsControl           port.SettingsControlLogic
	logger                    *zap.Logger
}

type healthCheckResult struct {
	healthy        map[string]bool
	expected       int
	checksReceived int
	respondTo      *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, inverterActorProvider InverterActorProvider, mqttActorProvider MQTTActorProvider,
	commandQueueActorProvider CommandQueueActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:                    config,
		behavior:                  actor.NewBehavior(),
		stash:                     &Stash{},
		logger:                    ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:               &eventstream.EventStream{},
		inverterActorProvider:     inverterActorProvider,
		mqttActorProvider:         mqttActorProvider,
		commandQueueActorProvider: commandQueueActorProvider,
		settingsControl:           &service.DefaultSettingsControlLogic{Logger: logger},
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		var err error
		// the inverter actor owns the device, everything else depends on it
		if state.inverterActor, err = state.startInverterActor(ctx); err != nil {
			panic(err)
		}
		if state.mqttActor, err = state.startMQTTActor(ctx); err != nil {
			panic(err)
		}
		if state.commandQueueActor, err = state.startCommandQueueActor(ctx); err != nil {
			panic(err)
		}
		if state.statusActor, err = state.startStatusActor(ctx); err != nil {
			panic(err)
		}
		if state.settingsActor, err = state.startSettingsActor(ctx); err != nil {
			panic(err)
		}
		if state.config.MQTT.HADiscoveryEnable {
			if _, err := state.startHADiscoveryActor(ctx); err != nil {
				panic(err)
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		children := map[string]*actor.PID{
			domain.ACTOR_ID_INVERTER:      state.inverterActor,
			domain.ACTOR_ID_MQTT:          state.mqttActor,
			domain.ACTOR_ID_COMMAND_QUEUE: state.commandQueueActor,
			domain.ACTOR_ID_STATUS:        state.statusActor,
		}
		state.currentHealthCheck.reset(len(children))
		state.currentHealthCheck.respondTo = ctx.Sender()
		for id, pid := range children {
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, HEALTH_CHECK_TIMEOUT), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      id,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case adactor.ParsedCommand:
		// MQTT commands end up in the command queue
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command == nil {
			return
		}
		req, err := ParsedMQTTCommandToRequest(*msg.Command, state.settingsControl)
		if err != nil {
			state.logger.Warn("master@default invalid command", zap.Any("command", msg.Command), zap.Error(err))
			return
		}
		ctx.Send(state.commandQueueActor, req)
	case domain.GetDeviceInfoRequest, domain.GetStatusRequest, domain.InvokeCommandRequest:
		ctx.Forward(state.inverterActor)
	case domain.GetSettingsRequest, RefreshSettingsRequest:
		ctx.Forward(state.settingsActor)
	case domain.QueueCommandRequest:
		ctx.Forward(state.commandQueueActor)
	case *actor.Terminated:
		// if the device actor dies there is nothing left to do
		if msg.Who.Id == state.inverterActor.Id {
			state.logger.Error("master@default inverter actor terminated")
			panic(errors.New("inverter terminated"))
		}
	default:
		state.logger.Debug("master@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.CancelReceiveTimeout()
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		state.currentHealthCheck.healthy[msg.Id] = msg.Healthy
		if state.currentHealthCheck.allReceived() {
			ctx.CancelReceiveTimeout()
			state.currentHealthCheck.respond(ctx)
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) startInverterActor(ctx actor.Context) (*actor.PID, error) {
	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	props := actor.PropsFromProducer(func() actor.Actor {
		return state.inverterActorProvider()
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, domain.ACTOR_ID_INVERTER)
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {
	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	props := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, domain.ACTOR_ID_MQTT)
}

func (state *MasterOfPuppetsActor) startCommandQueueActor(ctx actor.Context) (*actor.PID, error) {
	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	publisher := adactor.NewActorPublisher(ctx.ActorSystem().Root, state.mqttActor, adactor.PUBLISH_TIMEOUT)
	props := actor.PropsFromProducer(func() actor.Actor {
		return state.commandQueueActorProvider(publisher, state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, domain.ACTOR_ID_COMMAND_QUEUE)
}

func (state *MasterOfPuppetsActor) startStatusActor(ctx actor.Context) (*actor.PID, error) {
	supervisor := actor.NewOneForOneStrategy(10, 10*time.Second, restartDecider(state.logger))

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewStatusActor(&state.config, state.inverterActor, state.eventStream, DEVICE_REQUEST_TIMEOUT, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, domain.ACTOR_ID_STATUS)
}

func (state *MasterOfPuppetsActor) startSettingsActor(ctx actor.Context) (*actor.PID, error) {
	supervisor := actor.NewOneForOneStrategy(10, 10*time.Second, restartDecider(state.logger))

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewSettingsActor(&state.config, state.inverterActor, state.eventStream, DEVICE_REQUEST_TIMEOUT, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, domain.ACTOR_ID_SETTINGS)
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {
	supervisor := actor.NewOneForOneStrategy(5, 30*time.Second, restartDecider(state.logger))

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.inverterActor, state.mqttActor, DEVICE_REQUEST_TIMEOUT, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, domain.ACTOR_ID_HA_DISCOVERY)
}

func restartDecider(logger *zap.Logger) actor.DeciderFunc {
	return func(reason interface{}) actor.Directive {
		logger.Warn("master@supervisor handling failure for child", zap.Any("reason", reason))
		return actor.RestartDirective
	}
}

func (state *healthCheckResult) reset(expected int) {
	state.healthy = make(map[string]bool, expected)
	state.expected = expected
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived >= state.expected
}

func (state *healthCheckResult) allHealthy() bool {
	if len(state.healthy) < state.expected {
		return false
	}
	for _, healthy := range state.healthy {
		if !healthy {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
