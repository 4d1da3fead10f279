package modbusrtu

import (
	"context"
	"errors"
	"testing"

	"github.com/berfenger/voltronic2mqtt/internal/core/plugin"
	"github.com/berfenger/voltronic2mqtt/pkg/voltronic"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	unitId    uint8
	opened    bool
	closed    bool
	openErr   error
	registers map[uint16]uint16
	lastType  modbus.RegType
}

func (c *fakeClient) Open() error {
	c.opened = true
	return c.openErr
}

func (c *fakeClient) Close() error {
	c.closed = true
	return nil
}

func (c *fakeClient) SetUnitId(id uint8) error {
	c.unitId = id
	return nil
}

func (c *fakeClient) ReadRegisters(addr uint16, quantity uint16, regType modbus.RegType) ([]uint16, error) {
	c.lastType = regType
	values := make([]uint16, quantity)
	for i := range values {
		values[i] = c.registers[addr+uint16(i)]
	}
	return values, nil
}

func (c *fakeClient) WriteRegister(addr uint16, value uint16) error {
	c.registers[addr] = value
	return nil
}

func newFakeDriver(client *fakeClient) *Driver {
	return New(func() (RegisterClient, error) { return client, nil }, DEFAULT_UNIT_ID, nil)
}

func TestReadRegisters(t *testing.T) {
	assert := assert.New(t)
	client := &fakeClient{registers: map[uint16]uint16{10: 2300, 11: 500}}
	d := newFakeDriver(client)

	result, err := d.Invoke(context.Background(), "read input 10 2")
	require.NoError(t, err)
	assert.Equal([]int{2300, 500}, result[KEY_REGISTERS])
	assert.Equal(modbus.INPUT_REGISTER, client.lastType)
	assert.Equal(uint8(DEFAULT_UNIT_ID), client.unitId)
	assert.True(client.opened)
	assert.True(client.closed)
}

func TestWriteRegister(t *testing.T) {
	client := &fakeClient{registers: map[uint16]uint16{}}
	result, err := newFakeDriver(client).Invoke(context.Background(), "write 0x20 7")
	require.NoError(t, err)
	assert.Equal(t, 1, result[KEY_WRITTEN])
	assert.Equal(t, uint16(7), client.registers[0x20])
}

func TestOpenFailure(t *testing.T) {
	client := &fakeClient{openErr: errors.New("no such device")}
	_, err := newFakeDriver(client).Invoke(context.Background(), "read holding 0 1")
	assert.ErrorIs(t, err, client.openErr)
}

func TestParseCommand(t *testing.T) {
	for _, tc := range []struct {
		command string
		valid   bool
	}{
		{"read holding 0 1", true},
		{"READ INPUT 0x10 125", true},
		{"write 1 65535", true},
		{"read coil 0 1", false},
		{"read holding 0 0", false},
		{"read holding 0 126", false},
		{"read holding 0", false},
		{"write 1 65536", false},
		{"write -1 1", false},
		{"erase 1", false},
		{"", false},
	} {
		_, err := parseCommand(tc.command)
		if tc.valid {
			assert.NoError(t, err, tc.command)
		} else {
			assert.ErrorIs(t, err, ErrInvalidCommand, tc.command)
		}
	}
}

func TestModuleRequiresInterface(t *testing.T) {
	registry := plugin.NewRegistry()
	require.NoError(t, Module(registry))
	unit := registry.Take()
	require.NotNil(t, unit)
	assert.Equal(t, plugin.KindProtocol, unit.Kind)

	_, err := unit.Protocol(plugin.Deps{})
	assert.Error(t, err)

	driver, err := unit.Protocol(plugin.Deps{Device: voltronic.DeviceConfig{Interface: "/dev/ttyUSB0", BaudRate: 9600}})
	assert.NoError(t, err)
	assert.NotNil(t, driver)
}
