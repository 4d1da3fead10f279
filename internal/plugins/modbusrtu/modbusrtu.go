// Package modbusrtu is a protocol driver reading and writing Modbus
// registers over the serial line of the configured device.
package modbusrtu

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/berfenger/voltronic2mqtt/internal/core/domain"
	"github.com/berfenger/voltronic2mqtt/internal/core/plugin"
	"github.com/berfenger/voltronic2mqtt/internal/core/port"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

const (
	MODULE_ID       = "modbusrtu"
	DEFAULT_UNIT_ID = 1
	DEFAULT_TIMEOUT = 2 * time.Second

	// registers per read request allowed by the protocol
	MAX_READ_QUANTITY = 125

	OP_READ  = "read"
	OP_WRITE = "write"

	KEY_COMMAND   = "command"
	KEY_REGISTERS = "registers"
	KEY_WRITTEN   = "written"
)

var ErrInvalidCommand = errors.New("modbusrtu: invalid command")

type request struct {
	op       string
	regType  modbus.RegType
	address  uint16
	quantity uint16
	value    uint16
}

type ClientFactory func() (RegisterClient, error)

type Driver struct {
	newClient  ClientFactory
	unitId     uint8
	instrument []Instrument
	logger     *zap.Logger
	// one transaction on the line at a time
	mu sync.Mutex
}

var _ port.ProtocolDriver = (*Driver)(nil)

func Module(r plugin.Registrar) error {
	r.RegisterProtocol(MODULE_ID, func(deps plugin.Deps) (port.ProtocolDriver, error) {
		if deps.Device.Interface == "" {
			return nil, errors.New("modbusrtu: no device interface configured")
		}
		return New(newRTUClientFactory(deps), DEFAULT_UNIT_ID, deps.Logger), nil
	})
	return nil
}

func newRTUClientFactory(deps plugin.Deps) ClientFactory {
	timeout := deps.Device.ReadTimeout
	if timeout <= 0 {
		timeout = DEFAULT_TIMEOUT
	}
	return func() (RegisterClient, error) {
		client, err := modbus.NewClient(&modbus.ClientConfiguration{
			URL:      fmt.Sprintf("rtu://%s", deps.Device.Interface),
			Speed:    uint(deps.Device.BaudRate),
			DataBits: 8,
			Parity:   modbus.PARITY_NONE,
			StopBits: 1,
			Timeout:  timeout,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func New(newClient ClientFactory, unitId uint8, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		newClient:  newClient,
		unitId:     unitId,
		instrument: []Instrument{debugLoggerInstrumentation(logger)},
		logger:     logger,
	}
}

// Invoke runs "read <holding|input> <addr> <qty>" or "write <addr> <value>".
func (d *Driver) Invoke(ctx context.Context, command string) (domain.ResponseMapping, error) {
	req, err := parseCommand(command)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	client, err := d.newClient()
	if err != nil {
		return nil, err
	}
	if err := client.SetUnitId(d.unitId); err != nil {
		return nil, err
	}
	if err := client.Open(); err != nil {
		return nil, fmt.Errorf("modbusrtu: open: %w", err)
	}
	defer client.Close()

	c := instrumentedClient{client: client, instrument: d.instrument}
	switch req.op {
	case OP_READ:
		values, err := c.readRegisters(req.address, req.quantity, req.regType)
		if err != nil {
			d.logger.Warn("modbus@read failed", zap.String("command", command), zap.Error(err))
			return nil, err
		}
		registers := make([]int, len(values))
		for i, v := range values {
			registers[i] = int(v)
		}
		return domain.ResponseMapping{KEY_COMMAND: command, KEY_REGISTERS: registers}, nil
	default:
		if err := c.writeRegister(req.address, req.value); err != nil {
			d.logger.Warn("modbus@write failed", zap.String("command", command), zap.Error(err))
			return nil, err
		}
		return domain.ResponseMapping{KEY_COMMAND: command, KEY_WRITTEN: 1}, nil
	}
}

func parseCommand(command string) (*request, error) {
	parts := strings.Fields(strings.ToLower(command))
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidCommand)
	}
	switch parts[0] {
	case OP_READ:
		if len(parts) != 4 {
			return nil, fmt.Errorf("%w: expected read <holding|input> <addr> <qty>", ErrInvalidCommand)
		}
		var regType modbus.RegType
		switch parts[1] {
		case "holding":
			regType = modbus.HOLDING_REGISTER
		case "input":
			regType = modbus.INPUT_REGISTER
		default:
			return nil, fmt.Errorf("%w: unknown register type %q", ErrInvalidCommand, parts[1])
		}
		addr, err := parseUint16(parts[2])
		if err != nil {
			return nil, err
		}
		qty, err := parseUint16(parts[3])
		if err != nil {
			return nil, err
		}
		if qty == 0 || qty > MAX_READ_QUANTITY {
			return nil, fmt.Errorf("%w: quantity must be within 1..%d", ErrInvalidCommand, MAX_READ_QUANTITY)
		}
		return &request{op: OP_READ, regType: regType, address: addr, quantity: qty}, nil
	case OP_WRITE:
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: expected write <addr> <value>", ErrInvalidCommand)
		}
		addr, err := parseUint16(parts[1])
		if err != nil {
			return nil, err
		}
		value, err := parseUint16(parts[2])
		if err != nil {
			return nil, err
		}
		return &request{op: OP_WRITE, address: addr, value: value}, nil
	default:
		return nil, fmt.Errorf("%w: unknown operation %q", ErrInvalidCommand, parts[0])
	}
}

// parseUint16 accepts decimal and 0x prefixed hex.
func parseUint16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a 16 bit value", ErrInvalidCommand, s)
	}
	return uint16(v), nil
}
