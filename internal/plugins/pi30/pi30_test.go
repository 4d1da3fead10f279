package pi30

import (
	"context"
	"testing"

	"github.com/berfenger/voltronic2mqtt/internal/core/plugin"
	"github.com/berfenger/voltronic2mqtt/pkg/voltronic"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newDriver(t *testing.T, transport voltronic.Transport, verify bool) *Driver {
	t.Helper()
	d, err := New(plugin.Deps{
		Dispatcher:     voltronic.NewDispatcherWithTransport(transport, 0, zap.NewNop()),
		VerifyChecksum: verify,
	})
	require.NoError(t, err)
	return d
}

func TestInvokeSplitsFields(t *testing.T) {
	assert := assert.New(t)
	transport := voltronic.NewTestTransport().Respond("QMOD", "L").Respond("QPIGS", "230.0 50.0 229.9 50.0")
	d := newDriver(t, transport, true)

	result, err := d.Invoke(context.Background(), "QPIGS")
	assert.NoError(err)
	assert.Equal("QPIGS", result[KEY_COMMAND])
	assert.Equal([]string{"230.0", "50.0", "229.9", "50.0"}, result[KEY_FIELDS])
	payload, err := Payload(result)
	assert.NoError(err)
	assert.Equal("230.0 50.0 229.9 50.0", payload)
}

func TestInvokeRejected(t *testing.T) {
	transport := voltronic.NewTestTransport().Respond("PEa", voltronic.RESPONSE_NAK_PAYLOAD)
	_, err := newDriver(t, transport, true).Invoke(context.Background(), "PEa")
	assert.ErrorIs(t, err, voltronic.ErrCommandRejected)
}

func TestInvokeBadChecksum(t *testing.T) {
	assert := assert.New(t)
	transport := voltronic.NewTestTransport().RespondRaw("QPI", []byte("(PI30\x00\x00\r"))

	_, err := newDriver(t, transport, true).Invoke(context.Background(), "QPI")
	assert.ErrorIs(err, voltronic.ErrProtocolMismatch)

	result, err := newDriver(t, transport, false).Invoke(context.Background(), "QPI")
	assert.NoError(err)
	assert.Equal("PI30", result[KEY_PAYLOAD])
}

func TestInvokeWriteOnlyLink(t *testing.T) {
	assert := assert.New(t)
	transport := voltronic.NewTestTransport().RespondRaw("POP02", nil)

	result, err := newDriver(t, transport, true).Invoke(context.Background(), "POP02")
	assert.NoError(err)
	assert.Equal(len(voltronic.NewCommand("POP02").Frame()), result[KEY_WRITTEN])
	_, err = Payload(result)
	assert.ErrorIs(err, ErrNoPayload)
}

func TestInvokeTransportFailure(t *testing.T) {
	_, err := newDriver(t, voltronic.NewTestTransport(), true).Invoke(context.Background(), "QPI")
	assert.ErrorIs(t, err, voltronic.ErrNoResponse)
}

func TestNewRequiresDispatcher(t *testing.T) {
	_, err := New(plugin.Deps{})
	assert.Error(t, err)
}

func TestModuleRegistersProtocol(t *testing.T) {
	registry := plugin.NewRegistry()
	assert.NoError(t, Module(registry))
	unit := registry.Take()
	if assert.NotNil(t, unit) {
		assert.Equal(t, MODULE_ID, unit.Module)
		assert.Equal(t, plugin.KindProtocol, unit.Kind)
	}
}
