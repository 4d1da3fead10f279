// Package pi30 is the protocol driver for the PI30 ASCII protocol spoken
// by Voltronic inverters over USB HID and RS232.
package pi30

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/berfenger/voltronic2mqtt/internal/core/domain"
	"github.com/berfenger/voltronic2mqtt/internal/core/plugin"
	"github.com/berfenger/voltronic2mqtt/internal/core/port"
	"github.com/berfenger/voltronic2mqtt/pkg/voltronic"

	"go.uber.org/zap"
)

const (
	MODULE_ID = "pi30"

	KEY_COMMAND = "command"
	KEY_PAYLOAD = "payload"
	KEY_FIELDS  = "fields"
	KEY_WRITTEN = "written"
)

var ErrNoPayload = errors.New("pi30: response carries no payload")

type Driver struct {
	dispatcher     port.Dispatcher
	verifyChecksum bool
	logger         *zap.Logger
}

var _ port.ProtocolDriver = (*Driver)(nil)

func Module(r plugin.Registrar) error {
	r.RegisterProtocol(MODULE_ID, func(deps plugin.Deps) (port.ProtocolDriver, error) {
		return New(deps)
	})
	return nil
}

func New(deps plugin.Deps) (*Driver, error) {
	if deps.Dispatcher == nil {
		return nil, errors.New("pi30: a dispatcher is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		dispatcher:     deps.Dispatcher,
		verifyChecksum: deps.VerifyChecksum,
		logger:         logger,
	}, nil
}

// Invoke sends command and returns its payload split in space separated
// fields. A link that only writes (serial without response reading)
// yields the number of bytes written instead.
func (d *Driver) Invoke(ctx context.Context, command string) (domain.ResponseMapping, error) {
	resp, err := d.dispatcher.Dispatch(ctx, command)
	if err != nil {
		return nil, err
	}
	if !resp.HasData() {
		return domain.ResponseMapping{
			KEY_COMMAND: command,
			KEY_WRITTEN: resp.Written,
		}, nil
	}
	payload, err := voltronic.ParseResponse(resp.Data, d.verifyChecksum)
	if err != nil {
		d.logger.Warn("pi30@invoke invalid response", zap.String("command", command), zap.ByteString("raw", resp.Data), zap.Error(err))
		return nil, fmt.Errorf("%s: %w", command, err)
	}
	d.logger.Debug("pi30@invoke response", zap.String("command", command), zap.String("payload", payload))
	return domain.ResponseMapping{
		KEY_COMMAND: command,
		KEY_PAYLOAD: payload,
		KEY_FIELDS:  strings.Fields(payload),
	}, nil
}

// Payload extracts the payload of an Invoke result.
func Payload(result domain.ResponseMapping) (string, error) {
	payload, ok := result.Text(KEY_PAYLOAD)
	if !ok {
		return "", ErrNoPayload
	}
	return payload, nil
}
