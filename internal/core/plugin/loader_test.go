package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/berfenger/voltronic2mqtt/internal/core/domain"
	"github.com/berfenger/voltronic2mqtt/internal/core/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProtocol struct {
	name string
}

func (p *fakeProtocol) Invoke(_ context.Context, command string) (domain.ResponseMapping, error) {
	return domain.ResponseMapping{"command": command, "protocol": p.name}, nil
}

type fakeDevice struct {
	protocol port.ProtocolDriver
}

func (d *fakeDevice) Invoke(ctx context.Context, command string) (domain.ResponseMapping, error) {
	return d.protocol.Invoke(ctx, command)
}

func (d *fakeDevice) FetchDeviceInformation(context.Context) (*domain.DeviceInfo, error) {
	return &domain.DeviceInfo{Model: "fake"}, nil
}

func (d *fakeDevice) FetchSettings(context.Context) (domain.ResponseMapping, error) {
	return domain.ResponseMapping{}, nil
}

func (d *fakeDevice) FetchStatus(context.Context) (domain.ResponseMapping, error) {
	return domain.ResponseMapping{}, nil
}

func protocolModule(id string) Module {
	return func(r Registrar) error {
		r.RegisterProtocol(id, func(Deps) (port.ProtocolDriver, error) {
			return &fakeProtocol{name: id}, nil
		})
		return nil
	}
}

func deviceModule(id, protocol string) Module {
	return func(r Registrar) error {
		r.RegisterDevice(id, func(deps Deps) (port.DeviceDriver, error) {
			p, err := deps.Protocol(protocol)
			if err != nil {
				return nil, err
			}
			return &fakeDevice{protocol: p}, nil
		})
		return nil
	}
}

func writePlugin(t *testing.T, root, dir, manifest string) {
	t.Helper()
	path := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(path, 0o755))
	if manifest != "" {
		require.NoError(t, os.WriteFile(filepath.Join(path, MANIFEST_FILE), []byte(manifest), 0o644))
	}
}

func manifest(name, alias, main, version string, requirements ...Requirement) string {
	text := fmt.Sprintf("name: %s\nalias: %s\nruntime:\n  main: %s\nversion: %s\n", name, alias, main, version)
	if len(requirements) > 0 {
		text += "requirements:\n"
		for _, r := range requirements {
			text += fmt.Sprintf("  - name: %s\n    version: %s\n", r.Name, r.Version)
		}
	}
	return text
}

func TestDiscoverLoadsProtocolBeforeDevice(t *testing.T) {
	assert := assert.New(t)
	root := t.TempDir()
	writePlugin(t, root, "axpert", manifest("axpert-king-5kw", "axpert", "axpert", "1.0.0", Requirement{Name: "pi30", Version: "1.0.0"}))
	writePlugin(t, root, "pi30", manifest("pi30", "", "pi30", "1.1.0"))
	catalog := Catalog{
		"axpert": deviceModule("axpert", "pi30"),
		"pi30":   protocolModule("pi30"),
	}

	loader := NewLoader(root, catalog, Deps{}, zap.NewNop())
	discovery, err := loader.Discover(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(discovery.Errors)
	assert.Len(discovery.Plugins, 2)

	device, err := loader.Device("axpert")
	require.NoError(t, err)
	result, err := device.Invoke(context.Background(), "QPI")
	assert.NoError(err)
	assert.Equal("pi30", result["protocol"])

	plugins := loader.Plugins()
	if assert.Len(plugins, 2) {
		assert.Equal("axpert-king-5kw", plugins[0].Manifest.Name)
		assert.Equal(KindDevice, plugins[0].Kind)
		assert.Equal(KindProtocol, plugins[1].Kind)
	}

	_, err = loader.Device("pi30")
	assert.ErrorIs(err, ErrNotDevicePlugin)
	_, err = loader.Device("nope")
	assert.ErrorIs(err, ErrPluginNotFound)
}

func TestDiscoverSkipsDirectoriesWithoutEntryPoint(t *testing.T) {
	assert := assert.New(t)
	root := t.TempDir()
	writePlugin(t, root, "empty", "")
	writePlugin(t, root, "unknown", manifest("unknown", "", "missing", "1.0.0"))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("plugins"), 0o644))

	discovery, err := NewLoader(root, Catalog{}, Deps{}, nil).Discover(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(discovery.Plugins)
	assert.Empty(discovery.Errors)
	assert.Len(discovery.Skipped, 2)
}

func TestDiscoverReportsIdentityMismatchAndContinues(t *testing.T) {
	assert := assert.New(t)
	root := t.TempDir()
	writePlugin(t, root, "impostor", manifest("impostor", "", "impostor", "1.0.0"))
	writePlugin(t, root, "silent", manifest("silent", "", "silent", "1.0.0"))
	writePlugin(t, root, "pi30", manifest("pi30", "", "pi30", "1.0.0"))
	catalog := Catalog{
		"impostor": protocolModule("someone-else"),
		"silent":   func(Registrar) error { return nil },
		"pi30":     protocolModule("pi30"),
	}

	discovery, err := NewLoader(root, catalog, Deps{}, nil).Discover(context.Background(), true)
	require.NoError(t, err)
	assert.Len(discovery.Plugins, 1)
	_, ok := discovery.Lookup("pi30")
	assert.True(ok)

	reasons := map[string]string{}
	for _, e := range discovery.Errors {
		reasons[e.Plugin] = e.Reason
	}
	assert.Equal(map[string]string{
		"impostor": LOAD_REASON_IDENTITY_MISMATCH,
		"silent":   LOAD_REASON_NOT_REGISTERED,
	}, reasons)
}

func TestDiscoverModuleAndFactoryFailures(t *testing.T) {
	assert := assert.New(t)
	root := t.TempDir()
	writePlugin(t, root, "broken", manifest("broken", "", "broken", "1.0.0"))
	writePlugin(t, root, "orphan", manifest("orphan", "", "orphan", "1.0.0"))
	importErr := errors.New("bad module")
	catalog := Catalog{
		"broken": func(r Registrar) error {
			r.RegisterProtocol("broken", nil)
			return importErr
		},
		// device without its protocol
		"orphan": deviceModule("orphan", "pi30"),
	}

	loader := NewLoader(root, catalog, Deps{}, nil)
	discovery, err := loader.Discover(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(discovery.Plugins)
	require.Len(t, discovery.Errors, 2)
	assert.Equal(LOAD_REASON_IMPORT, discovery.Errors[0].Reason)
	assert.ErrorIs(discovery.Errors[0], importErr)
	assert.Equal(LOAD_REASON_INSTANTIATION, discovery.Errors[1].Reason)

	// nothing leaks into the next attempt
	assert.Nil(loader.registry.Take())
}

func TestDiscoverPanickingModuleDoesNotAbortPass(t *testing.T) {
	assert := assert.New(t)
	root := t.TempDir()
	writePlugin(t, root, "exploding", manifest("exploding", "", "exploding", "1.0.0"))
	writePlugin(t, root, "pi30", manifest("pi30", "", "pi30", "1.0.0"))
	catalog := Catalog{
		"exploding": func(r Registrar) error {
			r.RegisterProtocol("exploding", func(Deps) (port.ProtocolDriver, error) {
				return &fakeProtocol{name: "exploding"}, nil
			})
			panic("import blew up")
		},
		"pi30": protocolModule("pi30"),
	}

	loader := NewLoader(root, catalog, Deps{}, nil)
	var discovery *Discovery
	var err error
	assert.NotPanics(func() {
		discovery, err = loader.Discover(context.Background(), true)
	})
	require.NoError(t, err)
	require.NotNil(t, discovery)

	_, ok := discovery.Lookup("pi30")
	assert.True(ok)
	_, ok = discovery.Lookup("exploding")
	assert.False(ok)
	require.Len(t, discovery.Errors, 1)
	assert.Equal("exploding", discovery.Errors[0].Plugin)
	assert.Equal(LOAD_REASON_IMPORT, discovery.Errors[0].Reason)
	assert.ErrorContains(discovery.Errors[0], "import blew up")
	assert.Nil(loader.registry.Take())
}

func TestDiscoverUnmetRequirement(t *testing.T) {
	assert := assert.New(t)
	root := t.TempDir()
	writePlugin(t, root, "axpert", manifest("axpert-king-5kw", "axpert", "axpert", "1.0.0", Requirement{Name: "pi30", Version: "2.0.0"}))
	writePlugin(t, root, "pi30", manifest("pi30", "", "pi30", "1.4.2"))
	catalog := Catalog{
		"axpert": deviceModule("axpert", "pi30"),
		"pi30":   protocolModule("pi30"),
	}

	discovery, err := NewLoader(root, catalog, Deps{}, nil).Discover(context.Background(), true)
	require.NoError(t, err)
	assert.Len(discovery.Plugins, 1)
	require.Len(t, discovery.Errors, 1)
	assert.Equal("axpert-king-5kw", discovery.Errors[0].Plugin)
	assert.Equal(LOAD_REASON_REQUIREMENT, discovery.Errors[0].Reason)
}

func TestDiscoverWithoutReloadKeepsPreviousResult(t *testing.T) {
	assert := assert.New(t)
	root := t.TempDir()
	writePlugin(t, root, "pi30", manifest("pi30", "", "pi30", "1.0.0"))
	catalog := Catalog{"pi30": protocolModule("pi30")}
	loader := NewLoader(root, catalog, Deps{}, nil)

	first, err := loader.Discover(context.Background(), false)
	require.NoError(t, err)
	assert.Len(first.Plugins, 1)

	require.NoError(t, os.RemoveAll(filepath.Join(root, "pi30")))
	second, err := loader.Discover(context.Background(), false)
	require.NoError(t, err)
	assert.Same(first, second)

	third, err := loader.Discover(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(third.Plugins)
}

func TestDiscoverMissingRoot(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "nope"), Catalog{}, Deps{}, nil).Discover(context.Background(), true)
	assert.Error(t, err)
}
