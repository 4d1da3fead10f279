package voltronic

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Dispatcher owns the device link. Commands are sent one at a time.
type Dispatcher struct {
	transport Transport
	queue     *CommandQueue
	logger    *zap.Logger
	mu        sync.Mutex
	state     atomic.Int32
}

// NewDispatcher picks the serial or HID transport from cfg.
func NewDispatcher(cfg DeviceConfig, queueSize int, logger *zap.Logger) *Dispatcher {
	var transport Transport
	if cfg.IsSerial {
		transport = NewSerialTransport(cfg)
	} else {
		transport = NewHIDTransport(cfg)
	}
	return NewDispatcherWithTransport(transport, queueSize, logger)
}

func NewDispatcherWithTransport(transport Transport, queueSize int, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		transport: transport,
		queue:     NewCommandQueue(queueSize),
		logger:    logger.With(zap.String("component", "dispatcher"), zap.String("interface", transport.Interface())),
	}
}

func (d *Dispatcher) Interface() string {
	return d.transport.Interface()
}

func (d *Dispatcher) State() DispatchState {
	return DispatchState(d.state.Load())
}

func (d *Dispatcher) Queue() *CommandQueue {
	return d.queue
}

func (d *Dispatcher) setState(s DispatchState) {
	d.state.Store(int32(s))
	d.logger.Debug("dispatcher@" + s.String())
}

type sendResult struct {
	response *RawResponse
	err      error
}

// Dispatch frames text and sends it. Any transport failure is logged and
// returned as a *TransportError with a nil response.
// When ctx ends first the caller stops waiting but the in-flight
// transport operation runs to completion.
func (d *Dispatcher) Dispatch(ctx context.Context, text string) (*RawResponse, error) {
	if text == "" {
		return nil, ErrEmptyCommand
	}
	cmd := Command{
		text:     text,
		checksum: ComputeWithLogger(text, d.logger),
	}

	done := make(chan sendResult, 1)
	go func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if err := ctx.Err(); err != nil {
			done <- sendResult{err: err}
			return
		}
		response, err := d.transport.Send(cmd, d.setState)
		done <- sendResult{response: response, err: err}
	}()

	select {
	case result := <-done:
		if result.err != nil {
			return nil, d.failed(cmd, result.err)
		}
		d.logger.Debug("dispatcher@done command sent",
			zap.String("command", text),
			zap.Int("written", result.response.Written),
			zap.Int("received", len(result.response.Data)))
		return result.response, nil
	case <-ctx.Done():
		d.logger.Warn("dispatcher@abandoned caller stopped waiting", zap.String("command", text), zap.Error(ctx.Err()))
		return nil, ctx.Err()
	}
}

func (d *Dispatcher) failed(cmd Command, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var terr *TransportError
	if !errors.As(err, &terr) {
		terr = &TransportError{Op: "send", Interface: d.transport.Interface(), Err: err}
	}
	d.logger.Error("dispatcher@failed no response",
		zap.String("command", cmd.Text()),
		zap.String("op", terr.Op),
		zap.Error(terr.Err))
	return terr
}

// QueuePendingCommand waits for room in the pending queue.
func (d *Dispatcher) QueuePendingCommand(ctx context.Context, text string) (PendingCommand, error) {
	pc, err := d.queue.Put(ctx, text)
	if err != nil {
		return pc, err
	}
	d.logger.Debug("dispatcher@queued", zap.String("id", pc.Id), zap.String("command", text), zap.Int("pending", d.queue.Len()))
	return pc, nil
}

func (d *Dispatcher) TryQueuePendingCommand(text string) (PendingCommand, error) {
	pc, err := d.queue.TryPut(text)
	if err != nil {
		return pc, err
	}
	d.logger.Debug("dispatcher@queued", zap.String("id", pc.Id), zap.String("command", text), zap.Int("pending", d.queue.Len()))
	return pc, nil
}

// Run drains the pending queue in order until ctx ends or the queue is closed.
// A command taken off the queue when ctx ends is reported once with the
// context error and is not queued again.
func (d *Dispatcher) Run(ctx context.Context, handler func(PendingResult)) error {
	for {
		pc, err := d.queue.Next(ctx)
		if err != nil {
			return err
		}
		response, err := d.Dispatch(ctx, pc.Command)
		if handler != nil {
			handler(PendingResult{
				PendingCommand: pc,
				Response:       response,
				Error:          err,
			})
		}
	}
}
