// Package plugins lists the plugin entry points compiled into the bridge.
package plugins

import (
	"github.com/berfenger/voltronic2mqtt/internal/core/plugin"
	"github.com/berfenger/voltronic2mqtt/internal/plugins/axpert"
	"github.com/berfenger/voltronic2mqtt/internal/plugins/modbusrtu"
	"github.com/berfenger/voltronic2mqtt/internal/plugins/pi30"
)

func Catalog() plugin.Catalog {
	return plugin.Catalog{
		axpert.MODULE_ID:    axpert.Module,
		pi30.MODULE_ID:      pi30.Module,
		modbusrtu.MODULE_ID: modbusrtu.Module,
	}
}
