package plugin

import (
	"fmt"

	"github.com/berfenger/voltronic2mqtt/internal/core/port"
	"github.com/berfenger/voltronic2mqtt/pkg/voltronic"

	"go.uber.org/zap"
)

// Deps is the device context every driver is built with.
type Deps struct {
	Device         voltronic.DeviceConfig
	Dispatcher     port.Dispatcher
	VerifyChecksum bool
	Logger         *zap.Logger

	protocols func(name string) (port.ProtocolDriver, bool)
}

// Protocol returns a loaded protocol driver by plugin name or alias.
// Protocol plugins are instantiated before device plugins.
func (d Deps) Protocol(name string) (port.ProtocolDriver, error) {
	if d.protocols != nil {
		if p, ok := d.protocols(name); ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("protocol plugin %q is not loaded", name)
}

// WithProtocols returns a copy of d resolving protocols through lookup.
func (d Deps) WithProtocols(lookup func(name string) (port.ProtocolDriver, bool)) Deps {
	d.protocols = lookup
	return d
}

func (d Deps) withPluginLogger(plugin string) Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	d.Logger = d.Logger.With(zap.String("plugin", plugin))
	return d
}
