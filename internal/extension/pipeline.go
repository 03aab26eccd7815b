package extension

import (
	"fmt"

	"mdviewer/pkg/plugin"

	"go.uber.org/zap"
)

// RunBeforeRender passes the markdown source through every before-render
// hook in order. A panicking hook is logged and skipped.
func (r *Registry) RunBeforeRender(src string) string {
	return r.runHooks("before", r.BeforeRender(), src)
}

// RunAfterRender passes the rendered HTML through every after-render hook
// in order. A panicking hook is logged and skipped.
func (r *Registry) RunAfterRender(html string) string {
	return r.runHooks("after", r.AfterRender(), html)
}

func (r *Registry) runHooks(phase string, hooks []RenderHook, content string) string {
	for _, h := range hooks {
		out, err := safeHook(h.Hook, content)
		if err != nil {
			r.logger.Error("Render hook failed",
				zap.String("phase", phase),
				zap.String("plugin", h.PluginID),
				zap.Error(err))
			continue
		}
		content = out
	}
	return content
}

func safeHook(fn plugin.RenderHook, content string) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(content), nil
}

// RenderToken renders tok with the renderer installed for its type. It
// reports false when no renderer is installed, the renderer declines, or it
// panics; the host then uses its default rendering.
func (r *Registry) RenderToken(tok plugin.Token) (html string, handled bool) {
	rd, ok := r.Renderer(tok.Type)
	if !ok {
		return "", false
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Renderer failed",
				zap.String("element", tok.Type),
				zap.String("plugin", rd.PluginID),
				zap.Error(fmt.Errorf("panic: %v", rec)))
			html, handled = "", false
		}
	}()
	return rd.Render(tok)
}

// Snapshot is the JSON view of the registries handed to the host UI.
type Snapshot struct {
	Markdown MarkdownSnapshot `json:"markdown"`
	UI       UISnapshot       `json:"ui"`
}

// MarkdownSnapshot lists the owners of each markdown hook.
type MarkdownSnapshot struct {
	Extensions   []NamedEntry      `json:"extensions"`
	Renderers    map[string]string `json:"renderers"`
	BeforeRender []string          `json:"beforeRender"`
	AfterRender  []string          `json:"afterRender"`
}

// NamedEntry names an entry and its owner.
type NamedEntry struct {
	Name     string `json:"name"`
	PluginID string `json:"pluginId"`
}

// UISnapshot carries the UI descriptors.
type UISnapshot struct {
	ToolbarButtons   []ButtonEntry  `json:"toolbarButtons"`
	ToolbarGroups    []GroupEntry   `json:"toolbarGroups"`
	SettingsSections []SectionEntry `json:"settingsSections"`
}

// ButtonEntry is a toolbar button with its owner.
type ButtonEntry struct {
	plugin.ToolbarButton
	PluginID string `json:"pluginId"`
}

// GroupEntry is a toolbar group with its owner.
type GroupEntry struct {
	plugin.ToolbarGroup
	PluginID string `json:"pluginId"`
}

// SectionEntry is a settings section with its owner.
type SectionEntry struct {
	plugin.SettingsSection
	PluginID string `json:"pluginId"`
}

// Snapshot captures the current registries.
func (r *Registry) Snapshot() Snapshot {
	s := Snapshot{
		Markdown: MarkdownSnapshot{
			Extensions:   []NamedEntry{},
			Renderers:    map[string]string{},
			BeforeRender: []string{},
			AfterRender:  []string{},
		},
		UI: UISnapshot{
			ToolbarButtons:   []ButtonEntry{},
			ToolbarGroups:    []GroupEntry{},
			SettingsSections: []SectionEntry{},
		},
	}

	for _, e := range r.Extensions() {
		s.Markdown.Extensions = append(s.Markdown.Extensions, NamedEntry{Name: e.Extension.Name, PluginID: e.PluginID})
	}
	for name, rd := range r.Renderers() {
		s.Markdown.Renderers[name] = rd.PluginID
	}
	for _, h := range r.BeforeRender() {
		s.Markdown.BeforeRender = append(s.Markdown.BeforeRender, h.PluginID)
	}
	for _, h := range r.AfterRender() {
		s.Markdown.AfterRender = append(s.Markdown.AfterRender, h.PluginID)
	}
	for _, b := range r.ToolbarButtons() {
		s.UI.ToolbarButtons = append(s.UI.ToolbarButtons, ButtonEntry{ToolbarButton: b.Button, PluginID: b.PluginID})
	}
	for _, g := range r.ToolbarGroups() {
		s.UI.ToolbarGroups = append(s.UI.ToolbarGroups, GroupEntry{ToolbarGroup: g.Group, PluginID: g.PluginID})
	}
	for _, sec := range r.SettingsSections() {
		s.UI.SettingsSections = append(s.UI.SettingsSections, SectionEntry{SettingsSection: sec.Section, PluginID: sec.PluginID})
	}
	return s
}
