package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/voltronic2mqtt/internal/config"
	"github.com/berfenger/voltronic2mqtt/internal/core/domain"
	"github.com/berfenger/voltronic2mqtt/internal/core/events"
	. "github.com/berfenger/voltronic2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// StatusActor polls the inverter status and publishes one sensor update
// event per described key.
type StatusActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	inverterActor  *actor.PID
	config         *config.Config
	eventStream    *eventstream.EventStream
	requestTimeout time.Duration
	sensors        []domain.SensorDescription
	failures       uint

	logger *zap.Logger
}

type statusTick struct {
}

type statusInfoRetry struct {
}

func NewStatusActor(config *config.Config, inverterActor *actor.PID, eventStream *eventstream.EventStream, requestTimeout time.Duration, logger *zap.Logger) *StatusActor {
	act := &StatusActor{
		config:         config,
		inverterActor:  inverterActor,
		behavior:       actor.NewBehavior(),
		stash:          &Stash{},
		logger:         ActorLogger(domain.ACTOR_ID_STATUS, logger),
		eventStream:    eventStream,
		requestTimeout: requestTimeout,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *StatusActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *StatusActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("status@starting started")

		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.scheduler.RequestOnce(state.config.Monitor.PollInterval(), ctx.Self(), statusTick{})

		state.requestInfo(ctx)
		state.behavior.Become(state.WaitingInfoReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("status@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *StatusActor) WaitingInfoReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetDeviceInfoResponse:
		if msg.HasResponseError() {
			state.logger.Error("status@waitingInfo GetDeviceInfoResponse error", zap.Error(msg.GetResponseError()))
			state.scheduler.RequestOnce(state.config.Monitor.PollInterval(), ctx.Self(), statusInfoRetry{})
			return
		}
		state.logger.Debug("status@waitingInfo GetDeviceInfoResponse", zap.Int("sensors", len(msg.Sensors)))
		state.sensors = msg.Sensors
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case statusInfoRetry:
		state.requestInfo(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_STATUS,
			Healthy: false,
			State:   "waitingInfo",
		})
	default:
		state.logger.Debug("status@waitingInfo stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *StatusActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("status@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_STATUS,
			Healthy: true,
			State:   "idle",
		})
	case statusTick:
		state.logger.Debug("status@default tick")
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.inverterActor, domain.GetStatusRequest{}, state.requestTimeout), func(err error) any {
			return domain.GetStatusResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
			}
		})

		// schedule next tick
		state.scheduler.RequestOnce(state.config.Monitor.PollInterval(), ctx.Self(), statusTick{})
		state.behavior.BecomeStacked(state.WaitingStatusReceive)
	default:
		state.logger.Debug("status@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *StatusActor) WaitingStatusReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetStatusResponse:
		if msg.HasResponseError() {
			state.failures++
			state.logger.Error("status@waiting GetStatusResponse error", zap.Uint("failures", state.failures), zap.Error(msg.GetResponseError()))
		} else {
			state.logger.Debug("status@waiting GetStatusResponse")
			state.failures = 0
			for _, ev := range events.StatusToUpdateEvents(msg.Status, state.sensors) {
				state.eventStream.Publish(ev)
			}
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_STATUS,
			Healthy: true,
			State:   "polling",
		})
	default:
		state.logger.Debug("status@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *StatusActor) requestInfo(ctx actor.Context) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.inverterActor, domain.GetDeviceInfoRequest{}, state.requestTimeout), func(err error) any {
		return domain.GetDeviceInfoResponse{
			ActorResponseMixIn: domain.ErrorResponse(err),
		}
	})
}
