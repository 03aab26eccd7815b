// Package manager owns the plugin registry and drives every plugin through
// its lifecycle: registration, enable, disable, uninstall, settings updates
// and the bootstrap of built-in plugins.
//
// The Manager is the boundary that converts plugin failures into log lines,
// "plugin:error" events and boolean results. Nothing it calls on behalf of a
// plugin can make it panic or return a plugin's error to the caller.
package manager

import (
	"context"
	"fmt"
	"sync"

	"mdviewer/internal/events"
	"mdviewer/internal/state"
	"mdviewer/pkg/plugin"

	"go.uber.org/zap"
)

// APIFactory mints scoped plugin APIs and purges the registries.
type APIFactory interface {
	CreateAPI(pluginID string) *plugin.API
	ClearExtensions(pluginID string) int
}

// Info is the list view of a registered plugin.
type Info struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Version      string              `json:"version"`
	Description  string              `json:"description"`
	Author       string              `json:"author"`
	Homepage     string              `json:"homepage"`
	Capabilities plugin.Capabilities `json:"capabilities"`
	BuiltIn      bool                `json:"builtIn"`
	Enabled      bool                `json:"enabled"`
	Settings     plugin.Schema       `json:"-"`
}

// Event is the payload of the registered, enabled, disabled and
// uninstalled events.
type Event struct {
	PluginID string `json:"pluginId"`
}

// ErrorEvent is the payload of "plugin:error".
type ErrorEvent struct {
	PluginID string `json:"pluginId"`
	Op       string `json:"op"`
	Message  string `json:"error"`
	Err      error  `json:"-"`
}

// SettingsEvent is the payload of "plugin:settingsChanged".
type SettingsEvent struct {
	PluginID string          `json:"pluginId"`
	Settings plugin.Settings `json:"settings"`
}

type entry struct {
	def     plugin.Definition
	builtIn bool

	// transition serializes enable, disable and settings delivery for
	// one plugin. Held without Manager.mu.
	transition sync.Mutex

	// Guarded by Manager.mu.
	enabled  bool
	instance plugin.Plugin
}

// Manager is the plugin orchestrator.
type Manager struct {
	factory  APIFactory
	bus      *events.Bus
	store    *state.Store
	builtins *plugin.BuiltinRegistry
	logger   *zap.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

// NewManager creates a manager. A nil builtins registry uses
// plugin.Builtins().
func NewManager(
	factory APIFactory,
	bus *events.Bus,
	store *state.Store,
	builtins *plugin.BuiltinRegistry,
	logger *zap.Logger,
) *Manager {
	if builtins == nil {
		builtins = plugin.Builtins()
	}
	return &Manager{
		factory:  factory,
		bus:      bus,
		store:    store,
		builtins: builtins,
		logger:   logger.Named("plugins"),
		entries:  make(map[string]*entry),
	}
}

// Register adds a plugin in the disabled state. Registering an id twice
// logs a warning and leaves the first registration in place.
func (m *Manager) Register(def plugin.Definition) error {
	return m.register(def, false)
}

func (m *Manager) register(def plugin.Definition, builtIn bool) error {
	if err := def.Validate(); err != nil {
		m.logger.Error("Rejected plugin definition", zap.Error(err))
		return fmt.Errorf("invalid plugin definition: %w", err)
	}

	m.mu.Lock()
	if _, exists := m.entries[def.ID]; exists {
		m.mu.Unlock()
		m.logger.Warn("Plugin already registered, skipping",
			zap.String("plugin", def.ID))
		return fmt.Errorf("%s: %w", def.ID, ErrAlreadyRegistered)
	}
	m.entries[def.ID] = &entry{def: def, builtIn: builtIn}
	m.order = append(m.order, def.ID)
	m.mu.Unlock()

	m.logger.Info("Registered plugin",
		zap.String("plugin", def.ID),
		zap.String("version", def.Version),
		zap.Bool("built_in", builtIn))

	m.bus.Publish(events.PluginRegistered, Event{PluginID: def.ID})
	return nil
}

func (m *Manager) lookup(id string) (*entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	return e, ok
}

func (m *Manager) notFound(op, id string) {
	m.logger.Error("Plugin operation failed",
		zap.String("op", op),
		zap.String("plugin", id),
		zap.Error(ErrPluginNotFound))
}

// Enable instantiates and initializes the plugin. It reports whether the
// plugin is enabled afterwards. A failing factory or Init leaves the plugin
// disabled with nothing attached and publishes "plugin:error".
func (m *Manager) Enable(ctx context.Context, id string) bool {
	e, ok := m.lookup(id)
	if !ok {
		m.notFound("enable", id)
		return false
	}

	e.transition.Lock()
	already, err := m.enable(ctx, e)
	if err == nil && !already {
		m.addEnabled(id)
	}
	e.transition.Unlock()

	if already {
		return true
	}
	if err != nil {
		m.reportError(id, "enable", err)
		return false
	}

	m.logger.Info("Enabled plugin", zap.String("plugin", id))
	m.bus.Publish(events.PluginEnabled, Event{PluginID: id})
	return true
}

// enable runs with e.transition held.
func (m *Manager) enable(ctx context.Context, e *entry) (already bool, err error) {
	id := e.def.ID

	m.mu.RLock()
	already = e.enabled
	m.mu.RUnlock()
	if already {
		return true, nil
	}

	api := m.factory.CreateAPI(id)

	var inst plugin.Plugin
	err = guard("factory", func() error {
		var ferr error
		inst, ferr = e.def.Factory(api)
		if ferr == nil && inst == nil {
			ferr = fmt.Errorf("factory returned no instance")
		}
		return ferr
	})
	if err != nil {
		m.factory.ClearExtensions(id)
		return false, err
	}

	if override, ok := m.storedSettings(id); ok {
		normalized, problems := e.def.Settings.Normalize(override)
		for _, p := range problems {
			m.logger.Warn("Dropping stored setting",
				zap.String("plugin", id),
				zap.Error(p))
		}
		err = guard("updateSettings", func() error {
			inst.UpdateSettings(normalized)
			return nil
		})
	}
	if err == nil {
		err = guard("init", func() error { return inst.Init(ctx) })
	}

	if err != nil {
		// Release whatever Init managed to set up before failing.
		if derr := guard("destroy", func() error { return inst.Destroy(ctx) }); derr != nil {
			m.logger.Warn("Cleanup after failed enable failed",
				zap.String("plugin", id),
				zap.Error(derr))
		}
		m.factory.ClearExtensions(id)
		return false, err
	}

	m.mu.Lock()
	e.instance = inst
	e.enabled = true
	m.mu.Unlock()
	return false, nil
}

// Disable destroys the running instance and purges its extensions. The
// plugin ends up disabled even when Destroy fails.
func (m *Manager) Disable(ctx context.Context, id string) bool {
	return m.disable(ctx, id, true)
}

func (m *Manager) disable(ctx context.Context, id string, persist bool) bool {
	e, ok := m.lookup(id)
	if !ok {
		m.notFound("disable", id)
		return false
	}

	e.transition.Lock()
	wasEnabled, err := m.teardown(ctx, e)
	if wasEnabled && persist {
		m.removeEnabled(id)
	}
	e.transition.Unlock()

	if !wasEnabled {
		return true
	}
	if err != nil {
		m.reportError(id, "disable", err)
	}

	m.logger.Info("Disabled plugin", zap.String("plugin", id))
	m.bus.Publish(events.PluginDisabled, Event{PluginID: id})
	return true
}

// teardown runs with e.transition held.
func (m *Manager) teardown(ctx context.Context, e *entry) (wasEnabled bool, err error) {
	m.mu.RLock()
	wasEnabled = e.enabled
	inst := e.instance
	m.mu.RUnlock()
	if !wasEnabled {
		return false, nil
	}

	err = guard("destroy", func() error { return inst.Destroy(ctx) })
	m.factory.ClearExtensions(e.def.ID)

	m.mu.Lock()
	e.instance = nil
	e.enabled = false
	m.mu.Unlock()
	return true, err
}

// Toggle enables a disabled plugin and disables an enabled one. It reports
// whether the transition succeeded.
func (m *Manager) Toggle(ctx context.Context, id string) bool {
	if _, ok := m.lookup(id); !ok {
		m.notFound("toggle", id)
		return false
	}
	if m.IsEnabled(id) {
		return m.Disable(ctx, id)
	}
	return m.Enable(ctx, id)
}

// Uninstall disables the plugin, removes it and forgets its settings.
// Built-in plugins are refused.
func (m *Manager) Uninstall(ctx context.Context, id string) bool {
	e, ok := m.lookup(id)
	if !ok {
		m.notFound("uninstall", id)
		return false
	}
	if e.builtIn {
		m.logger.Warn("Refusing to uninstall plugin",
			zap.String("plugin", id),
			zap.Error(ErrBuiltInPlugin))
		return false
	}

	m.Disable(ctx, id)

	e.transition.Lock()
	// A concurrent Enable may have won the race with Disable.
	if _, err := m.teardown(ctx, e); err != nil {
		m.reportError(id, "uninstall", err)
	}
	m.mu.Lock()
	delete(m.entries, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	m.removeEnabled(id)
	m.deleteStoredSettings(id)
	e.transition.Unlock()

	m.logger.Info("Uninstalled plugin", zap.String("plugin", id))
	m.bus.Publish(events.PluginUninstalled, Event{PluginID: id})
	return true
}

// SavePluginSettings replaces the stored settings record of id with
// settings and, when the plugin is running, hands the same record to the
// live instance.
func (m *Manager) SavePluginSettings(id string, settings plugin.Settings) bool {
	e, ok := m.lookup(id)
	if !ok {
		m.notFound("saveSettings", id)
		return false
	}

	record := settings.Clone()
	m.writeStoredSettings(id, record)

	e.transition.Lock()
	m.mu.RLock()
	inst := e.instance
	m.mu.RUnlock()
	var err error
	if inst != nil {
		err = guard("updateSettings", func() error {
			inst.UpdateSettings(record.Clone())
			return nil
		})
	}
	e.transition.Unlock()

	if err != nil {
		m.reportError(id, "updateSettings", err)
	}

	m.bus.Publish(events.PluginSettingsChanged, SettingsEvent{PluginID: id, Settings: record.Clone()})
	return true
}

// GetPluginSettings returns the live settings of a running plugin, or the
// defaults overlaid with the stored record for a disabled one.
func (m *Manager) GetPluginSettings(id string) (plugin.Settings, bool) {
	e, ok := m.lookup(id)
	if !ok {
		return nil, false
	}

	m.mu.RLock()
	inst := e.instance
	m.mu.RUnlock()
	if inst != nil {
		return inst.GetSettings(), true
	}

	settings := e.def.DefaultSettings()
	if override, ok := m.storedSettings(id); ok {
		normalized, _ := e.def.Settings.Normalize(override)
		settings = settings.Merge(normalized)
	}
	return settings, true
}

// GetPluginList lists every registered plugin in registration order.
func (m *Manager) GetPluginList() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]Info, 0, len(m.order))
	for _, id := range m.order {
		list = append(list, m.infoLocked(m.entries[id]))
	}
	return list
}

// Get returns the list view of one plugin.
func (m *Manager) Get(id string) (Info, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return Info{}, false
	}
	return m.infoLocked(e), true
}

func (m *Manager) infoLocked(e *entry) Info {
	d := e.def
	return Info{
		ID:           d.ID,
		Name:         d.Name,
		Version:      d.Version,
		Description:  d.Description,
		Author:       d.Author,
		Homepage:     d.Homepage,
		Capabilities: d.Capabilities,
		BuiltIn:      e.builtIn,
		Enabled:      e.enabled,
		Settings:     d.Settings,
	}
}

// IsEnabled reports whether id is registered and running.
func (m *Manager) IsEnabled(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	return ok && e.enabled
}

// Instance returns the running instance of id.
func (m *Manager) Instance(id string) (plugin.Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok || e.instance == nil {
		return nil, false
	}
	return e.instance, true
}

// Shutdown disables every running plugin in reverse registration order
// without changing the stored enabled set, so the same plugins come back on
// the next start.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	ids := append([]string(nil), m.order...)
	m.mu.RUnlock()

	for i := len(ids) - 1; i >= 0; i-- {
		if m.IsEnabled(ids[i]) {
			m.disable(ctx, ids[i], false)
		}
	}
	m.logger.Info("Plugin manager shut down")
}

func (m *Manager) reportError(id, op string, err error) {
	m.logger.Error("Plugin lifecycle call failed",
		zap.String("plugin", id),
		zap.String("op", op),
		zap.Error(err))
	m.bus.Publish(events.PluginError, ErrorEvent{
		PluginID: id,
		Op:       op,
		Message:  err.Error(),
		Err:      err,
	})
}

// guard runs fn and turns a panic into an error.
func guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", op, r)
		}
	}()
	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
