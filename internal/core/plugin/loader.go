package plugin

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/berfenger/voltronic2mqtt/internal/core/port"

	"go.uber.org/zap"
	"golang.org/x/mod/semver"
)

var (
	ErrPluginNotFound    = errors.New("plugin not found")
	ErrNotDevicePlugin   = errors.New("plugin is not a device plugin")
	ErrNothingRegistered = errors.New("entry point registered nothing")
)

// Plugin is a loaded and instantiated plugin.
type Plugin struct {
	Manifest *Manifest
	Dir      string
	Kind     Kind
	Device   port.DeviceDriver
	Protocol port.ProtocolDriver
}

type Skipped struct {
	Dir    string
	Reason string
}

// Discovery is the result of one scan of the plugin root.
type Discovery struct {
	Plugins map[string]*Plugin
	Skipped []Skipped
	Errors  []*PluginLoadError
}

// Lookup finds a plugin by name or alias.
func (d *Discovery) Lookup(nameOrAlias string) (*Plugin, bool) {
	if d == nil {
		return nil, false
	}
	if p, ok := d.Plugins[nameOrAlias]; ok {
		return p, true
	}
	for _, name := range slices.Sorted(maps.Keys(d.Plugins)) {
		p := d.Plugins[name]
		if p.Manifest.Alias != "" && p.Manifest.Alias == nameOrAlias {
			return p, true
		}
	}
	return nil, false
}

type Loader struct {
	root     string
	catalog  Catalog
	deps     Deps
	registry *Registry
	logger   *zap.Logger

	mu        sync.Mutex
	discovery *Discovery
}

func NewLoader(root string, catalog Catalog, deps Deps, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		root:     root,
		catalog:  catalog,
		deps:     deps,
		registry: NewRegistry(),
		logger:   logger.With(zap.String("component", "plugins")),
	}
}

// candidate is a plugin whose module ran and registered a matching unit
// but has not been instantiated yet.
type candidate struct {
	manifest *Manifest
	dir      string
	unit     *Unit
}

// Discover scans the plugin root. Without reload, a previous result is
// returned untouched.
func (l *Loader) Discover(ctx context.Context, reload bool) (*Discovery, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.discovery != nil && !reload {
		return l.discovery, nil
	}
	l.registry.Reset()

	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, fmt.Errorf("could not read plugin directory %s: %w", l.root, err)
	}

	discovery := &Discovery{Plugins: make(map[string]*Plugin)}
	candidates := make(map[string]*candidate)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(l.root, entry.Name())
		c, skip, loadErr := l.load(dir)
		switch {
		case skip != nil:
			l.logger.Debug("plugins@discover skipping directory", zap.String("dir", dir), zap.String("reason", skip.Reason))
			discovery.Skipped = append(discovery.Skipped, *skip)
		case loadErr != nil:
			l.reportError(discovery, loadErr)
		default:
			if _, dup := candidates[c.manifest.Name]; dup {
				l.reportError(discovery, &PluginLoadError{Plugin: c.manifest.Name, Dir: dir, Reason: LOAD_REASON_DUPLICATE,
					Err: fmt.Errorf("plugin name already taken")})
				continue
			}
			candidates[c.manifest.Name] = c
		}
	}

	for _, name := range slices.Sorted(maps.Keys(candidates)) {
		c := candidates[name]
		if err := checkRequirements(c.manifest, candidates); err != nil {
			l.reportError(discovery, &PluginLoadError{Plugin: name, Dir: c.dir, Reason: LOAD_REASON_REQUIREMENT, Err: err})
			delete(candidates, name)
		}
	}

	deps := l.deps.WithProtocols(func(name string) (port.ProtocolDriver, bool) {
		p, ok := discovery.Lookup(name)
		if !ok || p.Protocol == nil {
			return nil, false
		}
		return p.Protocol, true
	})

	// protocols first so device factories can resolve them
	for _, kind := range []Kind{KindProtocol, KindDevice} {
		for _, name := range slices.Sorted(maps.Keys(candidates)) {
			c := candidates[name]
			if c.unit.Kind != kind {
				continue
			}
			p, err := instantiate(c, deps.withPluginLogger(name))
			if err != nil {
				l.reportError(discovery, &PluginLoadError{Plugin: name, Dir: c.dir, Reason: LOAD_REASON_INSTANTIATION, Err: err})
				continue
			}
			discovery.Plugins[name] = p
			l.logger.Info("plugins@discover loaded plugin",
				zap.String("plugin", name),
				zap.String("kind", kind.String()),
				zap.String("version", c.manifest.Version))
		}
	}

	l.discovery = discovery
	return discovery, nil
}

func (l *Loader) load(dir string) (*candidate, *Skipped, *PluginLoadError) {
	manifest, err := LoadManifest(dir)
	if errors.Is(err, ErrManifestNotFound) {
		return nil, &Skipped{Dir: dir, Reason: "no manifest"}, nil
	}
	if err != nil {
		return nil, nil, &PluginLoadError{Plugin: filepath.Base(dir), Dir: dir, Reason: LOAD_REASON_MANIFEST, Err: err}
	}
	module, ok := l.catalog[manifest.Runtime.Main]
	if !ok || manifest.Runtime.Main == "" {
		return nil, &Skipped{Dir: dir, Reason: fmt.Sprintf("entry point %q not found", manifest.Runtime.Main)}, nil
	}

	unit, err := runModule(module, l.registry)
	if err != nil {
		return nil, nil, &PluginLoadError{Plugin: manifest.Name, Dir: dir, Reason: LOAD_REASON_IMPORT, Err: err}
	}
	if unit == nil {
		return nil, nil, &PluginLoadError{Plugin: manifest.Name, Dir: dir, Reason: LOAD_REASON_NOT_REGISTERED, Err: ErrNothingRegistered}
	}
	if unit.Module != manifest.Runtime.Main {
		return nil, nil, &PluginLoadError{Plugin: manifest.Name, Dir: dir, Reason: LOAD_REASON_IDENTITY_MISMATCH,
			Err: fmt.Errorf("registered by %q, expected %q", unit.Module, manifest.Runtime.Main)}
	}
	return &candidate{manifest: manifest, dir: dir, unit: unit}, nil, nil
}

// runModule runs an entry point against the registry and takes what it
// registered. The pending slot is empty afterwards, even when the module panics.
func runModule(module Module, registry *Registry) (unit *Unit, err error) {
	defer func() {
		unit = registry.Take()
		if r := recover(); r != nil {
			err = fmt.Errorf("module panicked: %v", r)
		}
	}()
	return nil, module(registry)
}

func (l *Loader) reportError(discovery *Discovery, err *PluginLoadError) {
	l.logger.Error("plugins@discover could not load plugin", zap.Error(err))
	discovery.Errors = append(discovery.Errors, err)
}

// Lookup finds a plugin of the last discovery by name or alias.
func (l *Loader) Lookup(nameOrAlias string) (*Plugin, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.discovery.Lookup(nameOrAlias)
}

// Plugins returns the loaded plugins sorted by name.
func (l *Loader) Plugins() []*Plugin {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.discovery == nil {
		return nil
	}
	plugins := make([]*Plugin, 0, len(l.discovery.Plugins))
	for _, name := range slices.Sorted(maps.Keys(l.discovery.Plugins)) {
		plugins = append(plugins, l.discovery.Plugins[name])
	}
	return plugins
}

// Device returns the device driver of the plugin named nameOrAlias.
func (l *Loader) Device(nameOrAlias string) (port.DeviceDriver, error) {
	p, ok := l.Lookup(nameOrAlias)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, nameOrAlias)
	}
	if p.Device == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotDevicePlugin, nameOrAlias)
	}
	return p.Device, nil
}

func instantiate(c *candidate, deps Deps) (p *Plugin, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("factory panicked: %v", r)
		}
	}()
	p = &Plugin{Manifest: c.manifest, Dir: c.dir, Kind: c.unit.Kind}
	switch c.unit.Kind {
	case KindDevice:
		if c.unit.Device == nil {
			return nil, errors.New("nil device factory")
		}
		p.Device, err = c.unit.Device(deps)
	case KindProtocol:
		if c.unit.Protocol == nil {
			return nil, errors.New("nil protocol factory")
		}
		p.Protocol, err = c.unit.Protocol(deps)
	default:
		err = fmt.Errorf("unknown plugin kind %s", c.unit.Kind)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// checkRequirements only verifies requirements naming other discovered plugins.
func checkRequirements(m *Manifest, candidates map[string]*candidate) error {
	for _, req := range m.Requirements {
		other, ok := candidates[req.Name]
		if !ok {
			continue
		}
		have, want := canonicalVersion(other.manifest.Version), canonicalVersion(req.Version)
		if !semver.IsValid(want) {
			return fmt.Errorf("requirement %s: invalid version", req)
		}
		if !semver.IsValid(have) {
			return fmt.Errorf("requirement %s: %s has invalid version %q", req, req.Name, other.manifest.Version)
		}
		if semver.Compare(have, want) < 0 {
			return fmt.Errorf("requirement %s not met: found %s", req, other.manifest.Version)
		}
	}
	return nil
}

func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
