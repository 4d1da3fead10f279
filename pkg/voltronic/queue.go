package voltronic

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DEFAULT_QUEUE_SIZE = 25

type PendingCommand struct {
	Id         string    `json:"id"`
	Command    string    `json:"command"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type PendingResult struct {
	PendingCommand
	Response *RawResponse
	Error    error
}

// CommandQueue is a bounded FIFO of commands waiting for the dispatcher.
type CommandQueue struct {
	pending   chan PendingCommand
	closed    chan struct{}
	closeOnce sync.Once
}

func NewCommandQueue(capacity int) *CommandQueue {
	if capacity <= 0 {
		capacity = DEFAULT_QUEUE_SIZE
	}
	return &CommandQueue{
		pending: make(chan PendingCommand, capacity),
		closed:  make(chan struct{}),
	}
}

// Put blocks until the command fits in the queue or ctx ends.
func (q *CommandQueue) Put(ctx context.Context, command string) (PendingCommand, error) {
	pc, err := q.newPending(command)
	if err != nil {
		return PendingCommand{}, err
	}
	select {
	case q.pending <- pc:
		return pc, nil
	case <-q.closed:
		return PendingCommand{}, ErrQueueClosed
	case <-ctx.Done():
		return PendingCommand{}, ctx.Err()
	}
}

// TryPut enqueues without waiting, ErrQueueFull when there is no room.
func (q *CommandQueue) TryPut(command string) (PendingCommand, error) {
	pc, err := q.newPending(command)
	if err != nil {
		return PendingCommand{}, err
	}
	select {
	case q.pending <- pc:
		return pc, nil
	default:
		return PendingCommand{}, ErrQueueFull
	}
}

// Next waits for the oldest pending command.
func (q *CommandQueue) Next(ctx context.Context) (PendingCommand, error) {
	select {
	case pc := <-q.pending:
		return pc, nil
	case <-q.closed:
		return PendingCommand{}, ErrQueueClosed
	case <-ctx.Done():
		return PendingCommand{}, ctx.Err()
	}
}

func (q *CommandQueue) Len() int {
	return len(q.pending)
}

func (q *CommandQueue) Cap() int {
	return cap(q.pending)
}

func (q *CommandQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.closed)
	})
}

func (q *CommandQueue) newPending(command string) (PendingCommand, error) {
	if command == "" {
		return PendingCommand{}, ErrEmptyCommand
	}
	select {
	case <-q.closed:
		return PendingCommand{}, ErrQueueClosed
	default:
	}
	return PendingCommand{
		Id:         uuid.NewString(),
		Command:    command,
		EnqueuedAt: time.Now(),
	}, nil
}
