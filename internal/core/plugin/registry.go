package plugin

import (
	"fmt"
	"sync"

	"github.com/berfenger/voltronic2mqtt/internal/core/port"
)

type Kind int

const (
	KindDevice Kind = iota + 1
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindDevice:
		return "device"
	case KindProtocol:
		return "protocol"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

type DeviceFactory func(deps Deps) (port.DeviceDriver, error)

type ProtocolFactory func(deps Deps) (port.ProtocolDriver, error)

// Unit is what a plugin module registers: one driver factory tagged with
// the id of the module that registered it.
type Unit struct {
	Module   string
	Kind     Kind
	Device   DeviceFactory
	Protocol ProtocolFactory
}

type Registrar interface {
	RegisterDevice(module string, factory DeviceFactory)
	RegisterProtocol(module string, factory ProtocolFactory)
}

// Module is a compiled-in plugin entry point. Running it registers the
// plugin's unit.
type Module func(r Registrar) error

// Catalog maps manifest entry points (runtime.main) to modules.
type Catalog map[string]Module

// Registry holds the unit registered by the module currently being loaded.
// The slot is cleared by Take after every load attempt.
type Registry struct {
	mu      sync.Mutex
	pending *Unit
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) RegisterDevice(module string, factory DeviceFactory) {
	r.set(&Unit{Module: module, Kind: KindDevice, Device: factory})
}

func (r *Registry) RegisterProtocol(module string, factory ProtocolFactory) {
	r.set(&Unit{Module: module, Kind: KindProtocol, Protocol: factory})
}

// Take returns the pending unit, if any, and empties the slot.
func (r *Registry) Take() *Unit {
	r.mu.Lock()
	defer r.mu.Unlock()
	unit := r.pending
	r.pending = nil
	return unit
}

func (r *Registry) Reset() {
	r.Take()
}

// last registration wins
func (r *Registry) set(unit *Unit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = unit
}

var _ Registrar = (*Registry)(nil)
