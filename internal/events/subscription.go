package events

import "sync"

// Subscription is a handle to one registered handler.
type Subscription struct {
	bus   *Bus
	event string
	id    uint64
	once  sync.Once
}

// Event returns the event name the subscription listens to.
func (s *Subscription) Event() string {
	return s.event
}

// Unsubscribe removes the handler. Calling it more than once is harmless.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s.event, s.id)
	})
}

// Names of events published by the host core.
const (
	PluginRegistered      = "plugin:registered"
	PluginEnabled         = "plugin:enabled"
	PluginDisabled        = "plugin:disabled"
	PluginUninstalled     = "plugin:uninstalled"
	PluginError           = "plugin:error"
	PluginSettingsChanged = "plugin:settingsChanged"
	PluginsLoaded         = "plugins:loaded"

	MarkdownExtensionsChanged = "markdown:extensionsChanged"
	UIExtensionsChanged       = "ui:extensionsChanged"
	NotificationShow          = "notification:show"
)

// PluginEvent builds the event name a plugin's scoped emitter publishes:
// "plugin:<pluginID>:<event>".
func PluginEvent(pluginID, event string) string {
	return "plugin" + Separator + pluginID + Separator + event
}
