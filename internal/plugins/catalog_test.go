package plugins

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/berfenger/voltronic2mqtt/internal/core/plugin"
	"github.com/berfenger/voltronic2mqtt/pkg/voltronic"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func pluginsDir(t *testing.T) string {
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "..", "..", "plugins")
}

func TestBundledPluginsLoad(t *testing.T) {
	assert := assert.New(t)
	transport := voltronic.NewTestTransport().
		Respond("QPI", "PI30").
		Respond("QID", "92932004102443").
		Respond("QVFW", "VERFW:00072.70").
		Respond("QMN", "VMII-5000")
	deps := plugin.Deps{
		Device:         voltronic.DeviceConfig{Interface: "/dev/hidraw0"},
		Dispatcher:     voltronic.NewDispatcherWithTransport(transport, 0, zap.NewNop()),
		VerifyChecksum: true,
	}

	loader := plugin.NewLoader(pluginsDir(t), Catalog(), deps, zap.NewNop())
	discovery, err := loader.Discover(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(discovery.Errors)
	for _, name := range []string{"axpert-king-5kw", "pi30", "modbus-rtu"} {
		_, ok := discovery.Lookup(name)
		assert.True(ok, name)
	}

	device, err := loader.Device("axpert")
	require.NoError(t, err)
	info, err := device.FetchDeviceInformation(context.Background())
	require.NoError(t, err)
	assert.Equal("92932004102443", info.SerialNumber)
}
