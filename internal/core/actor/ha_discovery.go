package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/voltronic2mqtt/internal/config"
	"github.com/berfenger/voltronic2mqtt/internal/core/domain"
	"github.com/berfenger/voltronic2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

var ErrDependenciesUnhealthy = errors.New("MQTT actor or inverter actor are not healthy")

// HADiscoveryActor announces the bridge and inverter entities to Home
// Assistant once both the inverter and MQTT actors are up.
type HADiscoveryActor struct {
	config               *config.Config
	behavior             actor.Behavior
	stash                *actorutil.Stash
	inverterActor        *actor.PID
	mqttActor            *actor.PID
	requestTimeout       time.Duration
	inverterActorHealthy bool
	mqttActorHealthy     bool
	healthyRecv          int

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, inverterActor *actor.PID, mqttActor *actor.PID, requestTimeout time.Duration, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:         config,
		inverterActor:  inverterActor,
		mqttActor:      mqttActor,
		requestTimeout: requestTimeout,
		behavior:       actor.NewBehavior(),
		stash:          &actorutil.Stash{},
		logger:         actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// Check inverter and MQTT actor healthy
		state.healthyRecv = 0
		state.inverterActorHealthy = false
		state.mqttActorHealthy = false
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.inverterActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_INVERTER,
				Healthy: false,
			}
		})
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.healthyRecv++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_INVERTER:
				state.inverterActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.mqttActorHealthy = true
			}
		}
		if state.healthyRecv == 2 {
			if !state.inverterActorHealthy || !state.mqttActorHealthy {
				// restarted by the supervisor, which checks again
				panic(ErrDependenciesUnhealthy)
			}
			actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.inverterActor, domain.GetDeviceInfoRequest{}, state.requestTimeout), func(err error) any {
				return domain.GetDeviceInfoResponse{
					ActorResponseMixIn: domain.ErrorResponse(err),
				}
			})
			state.behavior.Become(state.WaitingInfoReceive)
			state.stash.UnstashAll(ctx)
		}
	default:
		state.logger.Debug("hadiscovery@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingInfoReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetDeviceInfoResponse:
		if msg.HasResponseError() {
			panic(msg.GetResponseError())
		}
		state.logger.Debug("hadiscovery@info GetDeviceInfoResponse", zap.Stringer("device", msg.Info))

		ctx.Send(state.mqttActor, DiscoveryRequest(state.config.MQTT.BaseTopic, msg.Info, msg.Sensors))
		state.behavior.Become(state.Done)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HA_DISCOVERY,
			Healthy: true,
			State:   "waitingInfo",
		})
	default:
		state.logger.Debug("hadiscovery@info default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) Done(ctx actor.Context) {
	switch ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HA_DISCOVERY,
			Healthy: true,
			State:   "done",
		})
	}
}

// DiscoveryRequest lists the bridge entities, every described inverter
// sensor and the settings controls.
func DiscoveryRequest(baseTopic string, info *domain.DeviceInfo, descriptions []domain.SensorDescription) domain.PublishDiscoveryRequest {
	bridgeDevice := domain.BridgeDevice(baseTopic)
	sensors := domain.BridgeSensors(bridgeDevice)

	inverterDevice := domain.InverterDevice(info)
	inverterDevice.ViaDevice = bridgeDevice.Id
	sensors = append(sensors, domain.InverterSensors(inverterDevice, descriptions)...)

	return domain.PublishDiscoveryRequest{
		Sensors:      sensors,
		Switches:     domain.SettingsSwitches(inverterDevice),
		InputNumbers: domain.SettingsInputNumbers(inverterDevice),
	}
}
