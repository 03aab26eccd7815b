// Package extension holds the process-wide collections of plugin
// contributions that the host renderer and toolbar read at render time.
// Every entry records the plugin that owns it so that all of a plugin's
// contributions can be purged in one sweep when it is disabled.
package extension

import (
	"sort"
	"sync"

	"mdviewer/pkg/plugin"

	"go.uber.org/zap"
)

// MarkdownExtension is a syntax extension tagged with its owner.
type MarkdownExtension struct {
	PluginID  string
	Extension plugin.MarkdownExtension
}

// Renderer is the renderer installed for one element type.
type Renderer struct {
	PluginID string
	Render   plugin.RenderFunc
}

// RenderHook is a before- or after-render transform.
type RenderHook struct {
	PluginID string
	Hook     plugin.RenderHook
}

// ToolbarButton is a button whose ID has been made unique across plugins.
type ToolbarButton struct {
	PluginID string
	Button   plugin.ToolbarButton
}

// ToolbarGroup is a group whose ID has been made unique across plugins.
type ToolbarGroup struct {
	PluginID string
	Group    plugin.ToolbarGroup
}

// SettingsSection is a settings panel section.
type SettingsSection struct {
	PluginID string
	Section  plugin.SettingsSection
}

// Registry owns the markdown hooks and UI extensions.
type Registry struct {
	logger *zap.Logger
	mu     sync.RWMutex

	// Markdown hooks
	extensions   []MarkdownExtension
	renderers    map[string]Renderer
	beforeRender []RenderHook
	afterRender  []RenderHook

	// UI extensions
	toolbarButtons   []ToolbarButton
	toolbarGroups    []ToolbarGroup
	settingsSections []SettingsSection
}

// NewRegistry creates empty registries.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:    logger.Named("extensions"),
		renderers: make(map[string]Renderer),
	}
}

// AddExtension appends a markdown extension.
func (r *Registry) AddExtension(pluginID string, ext plugin.MarkdownExtension) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extensions = append(r.extensions, MarkdownExtension{PluginID: pluginID, Extension: ext})
}

// SetRenderer installs the renderer for elementType, replacing whatever was
// installed before regardless of owner.
func (r *Registry) SetRenderer(pluginID, elementType string, fn plugin.RenderFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.renderers[elementType]; ok && prev.PluginID != pluginID {
		r.logger.Debug("Renderer replaced",
			zap.String("element", elementType),
			zap.String("previous", prev.PluginID),
			zap.String("plugin", pluginID))
	}
	r.renderers[elementType] = Renderer{PluginID: pluginID, Render: fn}
}

// AddBeforeRender appends a hook run on markdown source before rendering.
func (r *Registry) AddBeforeRender(pluginID string, fn plugin.RenderHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeRender = append(r.beforeRender, RenderHook{PluginID: pluginID, Hook: fn})
}

// AddAfterRender appends a hook run on the rendered HTML.
func (r *Registry) AddAfterRender(pluginID string, fn plugin.RenderHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterRender = append(r.afterRender, RenderHook{PluginID: pluginID, Hook: fn})
}

// AddToolbarButton appends a button. The caller provides the unique id.
func (r *Registry) AddToolbarButton(pluginID string, btn plugin.ToolbarButton) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolbarButtons = append(r.toolbarButtons, ToolbarButton{PluginID: pluginID, Button: btn})
}

// RemoveToolbarButton removes the button with id owned by pluginID. It
// reports whether one was found.
func (r *Registry) RemoveToolbarButton(pluginID, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, b := range r.toolbarButtons {
		if b.Button.ID == id && b.PluginID == pluginID {
			r.toolbarButtons = append(r.toolbarButtons[:i:i], r.toolbarButtons[i+1:]...)
			return true
		}
	}
	return false
}

// AddToolbarGroup appends a group. The caller provides the unique id.
func (r *Registry) AddToolbarGroup(pluginID string, group plugin.ToolbarGroup) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolbarGroups = append(r.toolbarGroups, ToolbarGroup{PluginID: pluginID, Group: group})
}

// AddSettingsSection appends a settings section.
func (r *Registry) AddSettingsSection(pluginID string, section plugin.SettingsSection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settingsSections = append(r.settingsSections, SettingsSection{PluginID: pluginID, Section: section})
}

// Clear removes every entry owned by pluginID from every collection and
// returns how many were removed.
func (r *Registry) Clear(pluginID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	r.extensions, removed = without(r.extensions, pluginID, removed, func(e MarkdownExtension) string { return e.PluginID })
	r.beforeRender, removed = without(r.beforeRender, pluginID, removed, func(h RenderHook) string { return h.PluginID })
	r.afterRender, removed = without(r.afterRender, pluginID, removed, func(h RenderHook) string { return h.PluginID })
	r.toolbarButtons, removed = without(r.toolbarButtons, pluginID, removed, func(b ToolbarButton) string { return b.PluginID })
	r.toolbarGroups, removed = without(r.toolbarGroups, pluginID, removed, func(g ToolbarGroup) string { return g.PluginID })
	r.settingsSections, removed = without(r.settingsSections, pluginID, removed, func(s SettingsSection) string { return s.PluginID })

	for name, rd := range r.renderers {
		if rd.PluginID == pluginID {
			delete(r.renderers, name)
			removed++
		}
	}

	r.logger.Debug("Cleared plugin extensions",
		zap.String("plugin", pluginID),
		zap.Int("removed", removed))

	return removed
}

func without[T any](items []T, pluginID string, removed int, owner func(T) string) ([]T, int) {
	kept := items[:0:0]
	for _, it := range items {
		if owner(it) == pluginID {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	return kept, removed
}

// CountFor returns how many entries pluginID owns across all collections.
func (r *Registry) CountFor(pluginID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.extensions {
		if e.PluginID == pluginID {
			n++
		}
	}
	for _, rd := range r.renderers {
		if rd.PluginID == pluginID {
			n++
		}
	}
	for _, h := range r.beforeRender {
		if h.PluginID == pluginID {
			n++
		}
	}
	for _, h := range r.afterRender {
		if h.PluginID == pluginID {
			n++
		}
	}
	for _, b := range r.toolbarButtons {
		if b.PluginID == pluginID {
			n++
		}
	}
	for _, g := range r.toolbarGroups {
		if g.PluginID == pluginID {
			n++
		}
	}
	for _, s := range r.settingsSections {
		if s.PluginID == pluginID {
			n++
		}
	}
	return n
}

// Extensions returns the markdown extensions in registration order.
func (r *Registry) Extensions() []MarkdownExtension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]MarkdownExtension(nil), r.extensions...)
}

// Renderer returns the renderer installed for elementType.
func (r *Registry) Renderer(elementType string) (Renderer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rd, ok := r.renderers[elementType]
	return rd, ok
}

// Renderers returns a copy of the renderer map.
func (r *Registry) Renderers() map[string]Renderer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Renderer, len(r.renderers))
	for k, v := range r.renderers {
		out[k] = v
	}
	return out
}

// BeforeRender returns the before-render hooks in registration order.
func (r *Registry) BeforeRender() []RenderHook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]RenderHook(nil), r.beforeRender...)
}

// AfterRender returns the after-render hooks in registration order.
func (r *Registry) AfterRender() []RenderHook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]RenderHook(nil), r.afterRender...)
}

// ToolbarButtons returns the buttons sorted by Order, keeping registration
// order among equals.
func (r *Registry) ToolbarButtons() []ToolbarButton {
	r.mu.RLock()
	out := append([]ToolbarButton(nil), r.toolbarButtons...)
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Button.Order < out[j].Button.Order })
	return out
}

// ToolbarButton looks up a button by its unique id.
func (r *Registry) ToolbarButton(id string) (ToolbarButton, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.toolbarButtons {
		if b.Button.ID == id {
			return b, true
		}
	}
	return ToolbarButton{}, false
}

// ToolbarGroups returns the groups sorted by Order.
func (r *Registry) ToolbarGroups() []ToolbarGroup {
	r.mu.RLock()
	out := append([]ToolbarGroup(nil), r.toolbarGroups...)
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Group.Order < out[j].Group.Order })
	return out
}

// SettingsSections returns the settings sections in registration order.
func (r *Registry) SettingsSections() []SettingsSection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]SettingsSection(nil), r.settingsSections...)
}
