// Package axpert is the device driver for the Voltronic Axpert King 5kW,
// built on top of the pi30 protocol driver.
package axpert

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/berfenger/voltronic2mqtt/internal/core/domain"
	"github.com/berfenger/voltronic2mqtt/internal/core/plugin"
	"github.com/berfenger/voltronic2mqtt/internal/core/port"
	"github.com/berfenger/voltronic2mqtt/internal/plugins/pi30"

	"go.uber.org/zap"
)

const (
	MODULE_ID     = "axpert"
	PROTOCOL_NAME = "pi30"

	DEVICE_NAME   = "Axpert King"
	DEFAULT_MODEL = "Axpert King 5kW"
	MANUFACTURER  = "Voltronic Power"

	CMD_PROTOCOL_ID = "QPI"
	CMD_SERIAL      = "QID"
	CMD_FIRMWARE    = "QVFW"
	CMD_MODEL       = "QMN"
	CMD_STATUS      = "QPIGS"
	CMD_MODE        = "QMOD"
	CMD_RATING      = "QPIRI"
	CMD_FLAGS       = "QFLAG"
)

type Driver struct {
	protocol port.ProtocolDriver
	logger   *zap.Logger

	mu   sync.Mutex
	info *domain.DeviceInfo
}

var (
	_ port.DeviceDriver    = (*Driver)(nil)
	_ port.SensorDescriber = (*Driver)(nil)
)

func Module(r plugin.Registrar) error {
	r.RegisterDevice(MODULE_ID, func(deps plugin.Deps) (port.DeviceDriver, error) {
		protocol, err := deps.Protocol(PROTOCOL_NAME)
		if err != nil {
			return nil, err
		}
		return New(protocol, deps.Logger), nil
	})
	return nil
}

func New(protocol port.ProtocolDriver, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{protocol: protocol, logger: logger}
}

func (d *Driver) Invoke(ctx context.Context, command string) (domain.ResponseMapping, error) {
	return d.protocol.Invoke(ctx, command)
}

// FetchDeviceInformation identifies the inverter. The result is built once
// and reused afterwards.
func (d *Driver) FetchDeviceInformation(ctx context.Context) (*domain.DeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.info != nil {
		return d.info, nil
	}

	protocolID, err := d.payload(ctx, CMD_PROTOCOL_ID)
	if err != nil {
		return nil, err
	}
	serial, err := d.payload(ctx, CMD_SERIAL)
	if err != nil {
		return nil, err
	}
	firmware, err := d.payload(ctx, CMD_FIRMWARE)
	if err != nil {
		return nil, err
	}
	model, err := d.payload(ctx, CMD_MODEL)
	if err != nil {
		// older firmwares do not know QMN
		d.logger.Warn("axpert@info model query failed, using default", zap.Error(err))
		model = DEFAULT_MODEL
	}

	d.info = &domain.DeviceInfo{
		Model:           model,
		DeviceName:      DEVICE_NAME,
		Manufacturer:    MANUFACTURER,
		FirmwareVersion: parseFirmware(firmware),
		SerialNumber:    serial,
		ProtocolID:      protocolID,
	}
	d.logger.Info("axpert@info device identified", zap.Stringer("device", d.info))
	return d.info, nil
}

// FetchSettings reads the rating information plus the enabled flags.
func (d *Driver) FetchSettings(ctx context.Context) (domain.ResponseMapping, error) {
	payload, err := d.payload(ctx, CMD_RATING)
	if err != nil {
		return nil, err
	}
	settings, err := parseFields(payload, qpiriFields)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", CMD_RATING, err)
	}

	flags, err := d.payload(ctx, CMD_FLAGS)
	if err != nil {
		d.logger.Warn("axpert@settings flag query failed", zap.Error(err))
		return settings, nil
	}
	parsed := parseFlags(flags)
	if v, ok := parsed[FLAG_BUZZER]; ok {
		settings[domain.SETTING_KEY_BUZZER_ENABLED] = v
	}
	if v, ok := parsed[FLAG_BACKLIGHT]; ok {
		settings[domain.SETTING_KEY_BACKLIGHT_ENABLED] = v
	}
	return settings, nil
}

// FetchStatus reads the general status and the working mode.
func (d *Driver) FetchStatus(ctx context.Context) (domain.ResponseMapping, error) {
	payload, err := d.payload(ctx, CMD_STATUS)
	if err != nil {
		return nil, err
	}
	status, err := parseFields(payload, qpigsFields)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", CMD_STATUS, err)
	}

	modePayload, err := d.payload(ctx, CMD_MODE)
	if err == nil {
		var mode string
		mode, err = parseMode(modePayload)
		if err == nil {
			status[domain.SENSOR_ID_DEVICE_MODE] = mode
		}
	}
	if err != nil {
		d.logger.Warn("axpert@status mode query failed", zap.Error(err))
	}
	return status, nil
}

func (d *Driver) DescribeSensors() []domain.SensorDescription {
	return describeSensors()
}

func (d *Driver) payload(ctx context.Context, command string) (string, error) {
	result, err := d.protocol.Invoke(ctx, command)
	if err != nil {
		return "", err
	}
	payload, err := pi30.Payload(result)
	if errors.Is(err, pi30.ErrNoPayload) {
		return "", fmt.Errorf("%s: %w", command, err)
	}
	return payload, err
}
