package capability

import (
	"mdviewer/internal/events"
	"mdviewer/internal/extension"
	"mdviewer/pkg/plugin"
)

type markdownAPI struct {
	bus      *events.Bus
	registry *extension.Registry
	pluginID string
}

func (a *markdownAPI) AddExtension(ext plugin.MarkdownExtension) {
	a.registry.AddExtension(a.pluginID, ext)
	a.changed()
}

func (a *markdownAPI) AddRenderer(elementType string, fn plugin.RenderFunc) {
	a.registry.SetRenderer(a.pluginID, elementType, fn)
	a.changed()
}

func (a *markdownAPI) OnBeforeRender(fn plugin.RenderHook) {
	a.registry.AddBeforeRender(a.pluginID, fn)
	a.changed()
}

func (a *markdownAPI) OnAfterRender(fn plugin.RenderHook) {
	a.registry.AddAfterRender(a.pluginID, fn)
	a.changed()
}

func (a *markdownAPI) changed() {
	a.bus.Publish(events.MarkdownExtensionsChanged, map[string]any{"pluginId": a.pluginID})
}
