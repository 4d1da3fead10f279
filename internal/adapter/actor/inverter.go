package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/voltronic2mqtt/internal/core/domain"
	"github.com/berfenger/voltronic2mqtt/internal/core/port"
	"github.com/berfenger/voltronic2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const DEFAULT_DEVICE_TASK_TIMEOUT = 30 * time.Second

var ErrNoDriver = errors.New("no device driver")

// InverterActor owns the device driver. Requests are served one at a time
// in a background task; anything arriving meanwhile is stashed.
type InverterActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	driver   port.DeviceDriver
	timeout  time.Duration
	logger   *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewInverterActor(driver port.DeviceDriver, timeout time.Duration, logger *zap.Logger) *InverterActor {
	if timeout <= 0 {
		timeout = DEFAULT_DEVICE_TASK_TIMEOUT
	}
	act := &InverterActor{
		driver:   driver,
		timeout:  timeout,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_INVERTER, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *InverterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *InverterActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("inverter@starting started")
		if state.driver == nil {
			panic(ErrNoDriver)
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("inverter@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *InverterActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("inverter@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_INVERTER,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetDeviceInfoRequest:
		state.logger.Debug("inverter@default GetDeviceInfoRequest")
		runDeviceTask(state, ctx, actorutil.ForRequest(msg).ReplyTo(ctx), state.getDeviceInfo,
			func(err error) domain.GetDeviceInfoResponse {
				return domain.GetDeviceInfoResponse{ActorResponseMixIn: domain.ErrorResponse(err)}
			})
	case domain.GetStatusRequest:
		state.logger.Debug("inverter@default GetStatusRequest")
		runDeviceTask(state, ctx, actorutil.ForRequest(msg).ReplyTo(ctx), state.getStatus,
			func(err error) domain.GetStatusResponse {
				return domain.GetStatusResponse{ActorResponseMixIn: domain.ErrorResponse(err)}
			})
	case domain.GetSettingsRequest:
		state.logger.Debug("inverter@default GetSettingsRequest")
		runDeviceTask(state, ctx, actorutil.ForRequest(msg).ReplyTo(ctx), state.getSettings,
			func(err error) domain.GetSettingsResponse {
				return domain.GetSettingsResponse{ActorResponseMixIn: domain.ErrorResponse(err)}
			})
	case domain.InvokeCommandRequest:
		state.logger.Debug("inverter@default InvokeCommandRequest", zap.String("command", msg.Command))
		command := msg.Command
		runDeviceTask(state, ctx, actorutil.ForRequest(msg).ReplyTo(ctx),
			func(c context.Context) (*domain.InvokeCommandResponse, error) {
				return state.invoke(c, command)
			},
			func(err error) domain.InvokeCommandResponse {
				return domain.InvokeCommandResponse{ActorResponseMixIn: domain.ErrorResponse(err), Command: command}
			})
	default:
		state.logger.Debug("inverter@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *InverterActor) WaitingDevice(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("inverter@waiting backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_INVERTER,
			Healthy: true,
			State:   "busy",
		})
	default:
		state.logger.Debug("inverter@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// runDeviceTask runs fn in the background and switches to WaitingDevice
// until its result comes back.
func runDeviceTask[T any](state *InverterActor, ctx actor.Context, replyTo *actor.PID,
	fn func(context.Context) (*T, error), onError func(error) T) {
	timeout := state.timeout
	task := actorutil.NewBackgroundTask(ctx, func() (*T, error) {
		c, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return fn(c)
	})
	actorutil.MapBackgroundTask(task, mapTaskResult[T](replyTo)).Recover(func(err error) backgroundTaskResult {
		state.logger.Warn("inverter@waiting device task failed", zap.Error(err))
		return backgroundTaskResult{
			message: onError(err),
			replyTo: replyTo,
		}
	}).WithTimeout(timeout + time.Second).PipeTo(ctx.Self())
	state.behavior.BecomeStacked(state.WaitingDevice)
}

func (state *InverterActor) getDeviceInfo(ctx context.Context) (*domain.GetDeviceInfoResponse, error) {
	info, err := state.driver.FetchDeviceInformation(ctx)
	if err != nil {
		return nil, err
	}
	resp := &domain.GetDeviceInfoResponse{Info: info}
	if describer, ok := state.driver.(port.SensorDescriber); ok {
		resp.Sensors = describer.DescribeSensors()
	}
	return resp, nil
}

func (state *InverterActor) getStatus(ctx context.Context) (*domain.GetStatusResponse, error) {
	status, err := state.driver.FetchStatus(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.GetStatusResponse{Status: status}, nil
}

func (state *InverterActor) getSettings(ctx context.Context) (*domain.GetSettingsResponse, error) {
	settings, err := state.driver.FetchSettings(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.GetSettingsResponse{Settings: settings}, nil
}

func (state *InverterActor) invoke(ctx context.Context, command string) (*domain.InvokeCommandResponse, error) {
	result, err := state.driver.Invoke(ctx, command)
	if err != nil {
		return nil, err
	}
	return &domain.InvokeCommandResponse{Command: command, Result: result}, nil
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
