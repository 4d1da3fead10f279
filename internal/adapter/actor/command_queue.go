package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/voltronic2mqtt/internal/core/domain"
	"github.com/berfenger/voltronic2mqtt/internal/core/port"
	"github.com/berfenger/voltronic2mqtt/internal/core/service"
	"github.com/berfenger/voltronic2mqtt/internal/util/actorutil"
	"github.com/berfenger/voltronic2mqtt/pkg/voltronic"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

const QUEUE_WAIT_TIMEOUT = 10 * time.Second

// CommandRunner is a dispatcher that can drain its own pending queue.
type CommandRunner interface {
	port.Dispatcher
	Run(ctx context.Context, handler func(voltronic.PendingResult)) error
}

var _ CommandRunner = (*voltronic.Dispatcher)(nil)

// CommandQueueActor accepts commands into the dispatcher's pending queue
// and runs the worker that sends them, reporting every result through a
// publisher. Results are also published on the event stream.
type CommandQueueActor struct {
	runner      CommandRunner
	publisher   port.Publisher
	eventStream *eventstream.EventStream
	verify      bool
	logger      *zap.Logger
	cancel      context.CancelFunc
	processed   uint64
	failed      uint64
}

type runnerStopped struct {
	Error error
}

func NewCommandQueueActor(runner CommandRunner, publisher port.Publisher, eventStream *eventstream.EventStream, verifyChecksum bool, logger *zap.Logger) *CommandQueueActor {
	return &CommandQueueActor{
		runner:      runner,
		publisher:   publisher,
		eventStream: eventStream,
		verify:      verifyChecksum,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_COMMAND_QUEUE, logger),
	}
}

func (state *CommandQueueActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("command_queue@default started")
		state.startRunner(ctx)
	case *actor.Restarting:
		state.stopRunner()
	case *actor.Stopping:
		state.stopRunner()
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_COMMAND_QUEUE,
			Healthy: state.cancel != nil,
			State:   fmt.Sprintf("processed %d, failed %d", state.processed, state.failed),
		})
	case domain.QueueCommandRequest:
		state.logger.Debug("command_queue@default QueueCommandRequest", zap.String("command", msg.Command), zap.Bool("wait", msg.Wait))
		state.queue(ctx, msg)
	case domain.CommandResultEvent:
		state.processed++
		if msg.Result.Error != nil {
			state.failed++
		}
	case runnerStopped:
		if state.cancel == nil || errors.Is(msg.Error, context.Canceled) {
			return
		}
		// let the supervisor restart the worker
		state.logger.Error("command_queue@default worker stopped", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("command_queue@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *CommandQueueActor) queue(ctx actor.Context, msg domain.QueueCommandRequest) {
	req := actorutil.ForRequest(msg)
	if !msg.Wait {
		pending, err := state.runner.TryQueuePendingCommand(msg.Command)
		if err != nil {
			state.logger.Warn("command_queue@default command not queued", zap.String("command", msg.Command), zap.Error(err))
		}
		req.Respond(ctx, domain.QueueCommandResponse{ActorResponseMixIn: domain.ErrorResponse(err), Pending: pending})
		return
	}

	replyTo := req.ReplyTo(ctx)
	command := msg.Command
	task := actorutil.NewBackgroundTask(ctx, func() (*domain.QueueCommandResponse, error) {
		c, cancel := context.WithTimeout(context.Background(), QUEUE_WAIT_TIMEOUT)
		defer cancel()
		pending, err := state.runner.QueuePendingCommand(c, command)
		if err != nil {
			return nil, err
		}
		return &domain.QueueCommandResponse{Pending: pending}, nil
	}).Recover(func(err error) domain.QueueCommandResponse {
		state.logger.Warn("command_queue@default command not queued", zap.String("command", command), zap.Error(err))
		return domain.QueueCommandResponse{ActorResponseMixIn: domain.ErrorResponse(err)}
	})
	if replyTo != nil {
		task.PipeTo(replyTo)
	} else {
		go task.Run()
	}
}

func (state *CommandQueueActor) startRunner(ctx actor.Context) {
	runCtx, cancel := context.WithCancel(context.Background())
	state.cancel = cancel

	root, self, es := ctx.ActorSystem().Root, ctx.Self(), state.eventStream
	reporter := &service.CommandResultReporter{
		Publisher:      state.publisher,
		VerifyChecksum: state.verify,
		Logger:         state.logger,
	}
	go func() {
		err := state.runner.Run(runCtx, func(result voltronic.PendingResult) {
			reporter.Report(result)
			event := domain.CommandResultEvent{Result: result}
			root.Send(self, event)
			if es != nil {
				es.Publish(event)
			}
		})
		root.Send(self, runnerStopped{Error: err})
	}()
}

func (state *CommandQueueActor) stopRunner() {
	if state.cancel != nil {
		state.cancel()
		state.cancel = nil
	}
}

// ActorPublisher publishes through the MQTT actor and waits for the broker
// to acknowledge.
type ActorPublisher struct {
	root    *actor.RootContext
	target  *actor.PID
	timeout time.Duration
}

var _ port.Publisher = (*ActorPublisher)(nil)

func NewActorPublisher(root *actor.RootContext, target *actor.PID, timeout time.Duration) *ActorPublisher {
	return &ActorPublisher{root: root, target: target, timeout: timeout}
}

func (p *ActorPublisher) Publish(messages map[string]string) bool {
	result, err := p.root.RequestFuture(p.target, domain.PublishMessagesRequest{Messages: messages}, p.timeout).Result()
	if err != nil {
		return false
	}
	resp, ok := result.(domain.PublishMessagesResponse)
	return ok && !resp.HasResponseError() && resp.Published == len(messages)
}
