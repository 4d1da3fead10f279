package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/voltronic2mqtt/internal/config"
	"github.com/berfenger/voltronic2mqtt/internal/core/domain"
	"github.com/berfenger/voltronic2mqtt/internal/core/events"
	"github.com/berfenger/voltronic2mqtt/internal/core/service"
	. "github.com/berfenger/voltronic2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

// SettingsActor reads the inverter settings on a cron schedule and after
// every setting command that went through, and publishes them as switch
// and number states.
type SettingsActor struct {
	ActorWithStates
	scheduler    *scheduler.TimerScheduler
	cancelTick   scheduler.CancelFunc
	trigger      *quartz.CronTrigger
	stash        *Stash
	subscription *eventstream.Subscription

	inverterActor  *actor.PID
	config         *config.Config
	eventStream    *eventstream.EventStream
	requestTimeout time.Duration
	settings       domain.ResponseMapping
	// a refresh was asked for while a read was running
	refreshPending bool

	logger *zap.Logger
}

var ErrSettingsUnavailable = errors.New("settings have not been read yet")

type settingsTick struct {
}

// RefreshSettingsRequest asks for an immediate settings read.
type RefreshSettingsRequest struct {
	domain.ActorRequestMixIn
}

func NewSettingsActor(config *config.Config, inverterActor *actor.PID, eventStream *eventstream.EventStream, requestTimeout time.Duration, logger *zap.Logger) *SettingsActor {
	act := &SettingsActor{
		config:          config,
		inverterActor:   inverterActor,
		stash:           &Stash{},
		logger:          ActorLogger(domain.ACTOR_ID_SETTINGS, logger),
		eventStream:     eventStream,
		requestTimeout:  requestTimeout,
		ActorWithStates: NewActorWithStates(),
	}
	act.Become(SettingsStartingState{actor: act})
	return act
}

func (state *SettingsActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type SettingsStartingState struct {
	ActorState
	actor *SettingsActor
}

func (state SettingsStartingState) Name() string {
	return "starting"
}

func (state SettingsStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("settings@starting started")

		trigger, err := quartz.NewCronTrigger(state.actor.config.Monitor.SettingsCron)
		if err != nil {
			state.actor.logger.Error("settings@starting invalid cron expression", zap.Error(err))
			panic(err)
		}
		state.actor.trigger = trigger
		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)
		state.actor.subscribeToCommandResults(ctx)

		// first read right away, then follow the schedule
		state.actor.Become(SettingsFetchingState{actor: state.actor}.OnEnter(ctx))
	case *actor.Restarting:
		state.actor.unsubscribe()
	default:
		state.actor.logger.Debug("settings@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Idle state

type SettingsIdleState struct {
	ActorState
	actor *SettingsActor
}

func (state SettingsIdleState) Name() string {
	return "idle"
}

func (state SettingsIdleState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.actor.logger.Debug("settings@idle ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SETTINGS,
			Healthy: true,
			State:   state.Name(),
		})
	case settingsTick:
		state.actor.logger.Debug("settings@idle tick")
		state.actor.Become(SettingsFetchingState{actor: state.actor}.OnEnter(ctx))
	case RefreshSettingsRequest:
		state.actor.logger.Debug("settings@idle RefreshSettingsRequest")
		state.actor.Become(SettingsFetchingState{actor: state.actor}.OnEnter(ctx))
	case domain.GetSettingsRequest:
		resp := domain.GetSettingsResponse{Settings: state.actor.settings}
		if resp.Settings == nil {
			resp.ActorResponseMixIn = domain.ErrorResponse(ErrSettingsUnavailable)
		}
		ForRequest(msg).Respond(ctx, resp)
	case *actor.Stopping, *actor.Restarting:
		state.actor.unsubscribe()
	default:
		state.actor.logger.Debug("settings@idle recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Fetching state

type SettingsFetchingState struct {
	ActorState
	actor *SettingsActor
}

func (state SettingsFetchingState) Name() string {
	return "fetching"
}

func (state SettingsFetchingState) OnEnter(ctx actor.Context) SettingsFetchingState {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.inverterActor, domain.GetSettingsRequest{}, state.actor.requestTimeout), func(err error) any {
		return domain.GetSettingsResponse{
			ActorResponseMixIn: domain.ErrorResponse(err),
		}
	})
	return state
}

func (state SettingsFetchingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetSettingsResponse:
		if msg.HasResponseError() {
			state.actor.logger.Error("settings@fetching GetSettingsResponse error", zap.Error(msg.GetResponseError()))
		} else {
			state.actor.logger.Debug("settings@fetching GetSettingsResponse")
			state.actor.settings = msg.Settings
			for _, ev := range events.SettingsToUpdateEvents(msg.Settings) {
				state.actor.eventStream.Publish(ev)
			}
		}
		if state.actor.refreshPending {
			state.actor.refreshPending = false
			state.OnEnter(ctx)
			return
		}
		state.actor.scheduleNext(ctx)
		state.actor.Become(SettingsIdleState{actor: state.actor})
		state.actor.stash.UnstashAll(ctx)
	case RefreshSettingsRequest:
		state.actor.refreshPending = true
	case settingsTick:
		// a read is already running
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SETTINGS,
			Healthy: true,
			State:   state.Name(),
		})
	case *actor.Stopping, *actor.Restarting:
		state.actor.unsubscribe()
	default:
		state.actor.logger.Debug("settings@fetching stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// scheduleNext replaces any pending tick with one at the next cron fire time.
func (state *SettingsActor) scheduleNext(ctx actor.Context) {
	if state.cancelTick != nil {
		state.cancelTick()
		state.cancelTick = nil
	}
	next, err := state.trigger.NextFireTime(time.Now().UnixNano())
	if err != nil {
		state.logger.Error("settings@schedule no next fire time", zap.Error(err))
		return
	}
	delay := time.Until(time.Unix(0, next))
	state.logger.Debug("settings@schedule next read", zap.Duration("in", delay))
	state.cancelTick = state.scheduler.RequestOnce(delay, ctx.Self(), settingsTick{})
}

// subscribeToCommandResults triggers a read whenever a queued setting
// command has been answered.
func (state *SettingsActor) subscribeToCommandResults(ctx actor.Context) {
	if state.eventStream == nil {
		return
	}
	root, self := ctx.ActorSystem().Root, ctx.Self()
	state.subscription = state.eventStream.Subscribe(func(evt any) {
		if ev, ok := evt.(domain.CommandResultEvent); ok && ev.Result.Error == nil && service.IsSettingCommand(ev.Result.Command) {
			root.Send(self, RefreshSettingsRequest{})
		}
	})
}

func (state *SettingsActor) unsubscribe() {
	if state.subscription != nil {
		state.eventStream.Unsubscribe(state.subscription)
		state.subscription = nil
	}
}
