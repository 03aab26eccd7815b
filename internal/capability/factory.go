// Package capability mints the scoped API each plugin instance receives.
// Every sub-API closes over the plugin id, so a plugin can only emit into
// its own event namespace, write its own store keys and register UI
// extensions under ids prefixed with its own id.
package capability

import (
	"mdviewer/internal/clock"
	"mdviewer/internal/dom"
	"mdviewer/internal/events"
	"mdviewer/internal/extension"
	"mdviewer/internal/state"
	"mdviewer/pkg/plugin"

	"go.uber.org/zap"
)

// Factory builds plugin APIs over the shared host services.
type Factory struct {
	bus      *events.Bus
	store    *state.Store
	registry *extension.Registry
	document *dom.Document
	clock    clock.Clock
	logger   *zap.Logger
}

// NewFactory creates a factory. A nil clock uses the real clock.
func NewFactory(
	bus *events.Bus,
	store *state.Store,
	registry *extension.Registry,
	document *dom.Document,
	clk clock.Clock,
	logger *zap.Logger,
) *Factory {
	if clk == nil {
		clk = clock.NewReal()
	}
	return &Factory{
		bus:      bus,
		store:    store,
		registry: registry,
		document: document,
		clock:    clk,
		logger:   logger,
	}
}

// CreateAPI returns a fresh API bound to pluginID. Results are never cached;
// every enable gets its own.
func (f *Factory) CreateAPI(pluginID string) *plugin.API {
	logger := f.logger.Named("plugin." + pluginID)

	return &plugin.API{
		PluginID: pluginID,
		Events:   &eventsAPI{bus: f.bus, pluginID: pluginID},
		Store:    &storeAPI{store: f.store, pluginID: pluginID},
		Markdown: &markdownAPI{bus: f.bus, registry: f.registry, pluginID: pluginID},
		UI: &uiAPI{
			bus:      f.bus,
			registry: f.registry,
			document: f.document,
			pluginID: pluginID,
			logger:   logger,
		},
		DOM:    f.document,
		Utils:  &utilsAPI{clock: f.clock, pluginID: pluginID},
		Logger: logger,
	}
}

// ClearExtensions removes every markdown hook and UI extension pluginID
// registered and tells the host when anything went away.
func (f *Factory) ClearExtensions(pluginID string) int {
	removed := f.registry.Clear(pluginID)
	if removed > 0 {
		f.bus.Publish(events.MarkdownExtensionsChanged, nil)
		f.bus.Publish(events.UIExtensionsChanged, nil)
	}
	return removed
}
