package port

import (
	"context"

	"github.com/berfenger/voltronic2mqtt/internal/core/domain"
	"github.com/berfenger/voltronic2mqtt/pkg/voltronic"
)

// DeviceDriver knows one inverter model: which commands to send and how
// to read the answers.
type DeviceDriver interface {
	Invoke(ctx context.Context, command string) (domain.ResponseMapping, error)
	FetchDeviceInformation(ctx context.Context) (*domain.DeviceInfo, error)
	FetchSettings(ctx context.Context) (domain.ResponseMapping, error)
	FetchStatus(ctx context.Context) (domain.ResponseMapping, error)
}

// ProtocolDriver speaks one wire protocol on top of the dispatcher.
type ProtocolDriver interface {
	Invoke(ctx context.Context, command string) (domain.ResponseMapping, error)
}

// SensorDescriber is implemented by device drivers that can describe the
// keys returned by FetchStatus.
type SensorDescriber interface {
	DescribeSensors() []domain.SensorDescription
}

// Dispatcher is the device link as seen by drivers.
type Dispatcher interface {
	Dispatch(ctx context.Context, command string) (*voltronic.RawResponse, error)
	QueuePendingCommand(ctx context.Context, command string) (voltronic.PendingCommand, error)
	TryQueuePendingCommand(command string) (voltronic.PendingCommand, error)
}

// Publisher delivers payloads keyed by topic suffix. It reports whether
// every message was accepted.
type Publisher interface {
	Publish(messages map[string]string) bool
}

var _ Dispatcher = (*voltronic.Dispatcher)(nil)
