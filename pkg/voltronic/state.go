package voltronic

import (
	"errors"
	"fmt"
)

type DispatchState int32

const (
	DispatchStateIdle DispatchState = iota
	DispatchStateConnecting
	DispatchStateWriting
	DispatchStateAwaitingResponse
	DispatchStateDone
	DispatchStateFailed
)

func (s DispatchState) String() string {
	switch s {
	case DispatchStateIdle:
		return "idle"
	case DispatchStateConnecting:
		return "connecting"
	case DispatchStateWriting:
		return "writing"
	case DispatchStateAwaitingResponse:
		return "awaiting_response"
	case DispatchStateDone:
		return "done"
	case DispatchStateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// StateObserver is notified by transports on every state transition.
type StateObserver func(DispatchState)

func (o StateObserver) notify(s DispatchState) {
	if o != nil {
		o(s)
	}
}

var (
	// ErrNoResponse is matched by every transport failure surfaced by the dispatcher.
	ErrNoResponse  = errors.New("voltronic: no response")
	ErrTimeout     = errors.New("voltronic: transport timeout")
	ErrQueueFull   = errors.New("voltronic: pending command queue is full")
	ErrQueueClosed = errors.New("voltronic: pending command queue is closed")
)

const (
	TRANSPORT_OP_OPEN  = "open"
	TRANSPORT_OP_WRITE = "write"
	TRANSPORT_OP_READ  = "read"
)

// TransportError is a connect, write or read failure on the device link.
type TransportError struct {
	Op        string
	Interface string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("voltronic: %s %s: %v", e.Op, e.Interface, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrNoResponse
}
