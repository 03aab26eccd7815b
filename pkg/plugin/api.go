package plugin

import (
	"time"

	"go.uber.org/zap"
)

// API is the capability-scoped host surface handed to one plugin instance.
// Every sub-API is bound to PluginID. A fresh API is built on each enable
// and must not be shared with other plugins.
type API struct {
	// PluginID is the identifier every sub-API is scoped to.
	PluginID string

	// Events gives unrestricted listening and namespaced emitting.
	Events Events

	// Store gives unrestricted reads of global state and writes confined to
	// the plugin's own key namespace.
	Store Store

	// Markdown registers render-time hooks.
	Markdown Markdown

	// UI registers toolbar and settings extensions and shows notifications
	// and modals.
	UI UI

	// DOM exposes the host document.
	DOM DOM

	// Utils provides id generation and timing helpers.
	Utils Utils

	// Logger is named after the plugin.
	Logger *zap.Logger
}

// Events is the plugin view of the event bus.
type Events interface {
	On(event string, handler EventHandler) Subscription
	Once(event string, handler EventHandler) Subscription
	// Off removes sub from event, or every handler of event when sub is nil.
	Off(event string, sub Subscription)
	// Emit publishes "plugin:<id>:<event>".
	Emit(event string, data any)
	// EmitGlobal publishes event without a prefix.
	EmitGlobal(event string, data any)
}

// Store is the plugin view of the key/value store.
type Store interface {
	Get(key string) any
	Subscribe(key string, handler ChangeHandler) Subscription
	Theme() string
	Language() string
	// Set writes "plugin:<id>:<key>" and reports whether the value changed.
	Set(key string, value any) bool
	// GetPluginData reads back a key written with Set.
	GetPluginData(key string) any
}

// ExtensionLevel says where a markdown extension applies.
type ExtensionLevel string

const (
	LevelBlock  ExtensionLevel = "block"
	LevelInline ExtensionLevel = "inline"
)

// MarkdownExtension is a syntax extension handed to the host's markdown
// engine. Start and Tokenize follow the host engine's conventions: Start
// returns the index where the construct may begin (or -1) and Tokenize
// consumes it from the front of src.
type MarkdownExtension struct {
	Name     string
	Level    ExtensionLevel
	Start    func(src string) int
	Tokenize func(src string) (token *Token, consumed int)
	Render   RenderFunc
}

// Token is a parsed markdown element as seen by renderers.
type Token struct {
	Type  string            `json:"type"`
	Lang  string            `json:"lang,omitempty"`
	Text  string            `json:"text"`
	Raw   string            `json:"raw,omitempty"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// RenderFunc renders a token to HTML. Returning handled=false lets the host
// fall back to its default rendering.
type RenderFunc func(token Token) (html string, handled bool)

// RenderHook transforms the markdown source (before render) or the produced
// HTML (after render).
type RenderHook func(content string) string

// Markdown registers render-time hooks for the plugin.
type Markdown interface {
	AddExtension(ext MarkdownExtension)
	// AddRenderer installs the renderer for an element type. A later call
	// for the same type replaces it, whichever plugin made it.
	AddRenderer(elementType string, fn RenderFunc)
	OnBeforeRender(fn RenderHook)
	OnAfterRender(fn RenderHook)
}

// ToolbarButton is a toolbar button contributed by a plugin.
type ToolbarButton struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Icon    string `json:"icon,omitempty"`
	Group   string `json:"group,omitempty"`
	Order   int    `json:"order"`
	OnClick func() `json:"-"`
}

// ToolbarGroup is a named cluster of toolbar buttons.
type ToolbarGroup struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Order   int      `json:"order"`
	Buttons []string `json:"buttons,omitempty"`
}

// SettingsSection adds a section to the host settings panel.
type SettingsSection struct {
	ID     string        `json:"id"`
	Title  string        `json:"title"`
	Fields Schema        `json:"-"`
	Render func() string `json:"-"`
}

// NotificationType is the severity of a notification.
type NotificationType string

const (
	NotifyInfo    NotificationType = "info"
	NotifySuccess NotificationType = "success"
	NotifyWarning NotificationType = "warning"
	NotifyError   NotificationType = "error"
)

// NotificationOptions adjusts ShowNotification.
type NotificationOptions struct {
	Type     NotificationType
	Duration time.Duration
}

// Notification is the payload of the notification event.
type Notification struct {
	Message  string           `json:"message"`
	Type     NotificationType `json:"type"`
	Duration time.Duration    `json:"duration"`
	PluginID string           `json:"pluginId"`
}

// ModalButton is an action button in a modal footer. CloseOnClick defaults
// to true when nil.
type ModalButton struct {
	Label        string
	Class        string
	OnClick      func()
	CloseOnClick *bool
}

// ModalConfig describes a modal dialog.
type ModalConfig struct {
	Title   string
	Content string
	Class   string
	Buttons []ModalButton
	OnClose func()
}

// Modal controls an open modal.
type Modal interface {
	Close()
	Element() Element
}

// UI registers UI extensions for the plugin.
type UI interface {
	// AddToolbarButton registers btn under "plugin-<id>-<btn.ID>" and
	// returns that id.
	AddToolbarButton(btn ToolbarButton) string
	// AddToolbarGroup registers group under "plugin-<id>-<group.ID>" and
	// returns that id.
	AddToolbarGroup(group ToolbarGroup) string
	// RemoveToolbarButton accepts the raw or the prefixed id.
	RemoveToolbarButton(id string) bool
	AddSettingsSection(section SettingsSection)
	ShowNotification(message string, opts NotificationOptions)
	CreateModal(cfg ModalConfig) (Modal, error)
}

// Element is a node of the host document.
type Element interface {
	ID() string
	Tag() string
	Attr(key string) string
	SetAttr(key, value string)
	Text() string
	SetText(text string)
	AppendChild(child Element) error
	Query(selector string) Element
	// On registers a listener for a DOM event such as "click".
	On(event string, fn func())
	// Dispatch fires the listeners of event.
	Dispatch(event string)
	Remove()
	Attached() bool
}

// DOM is the host document as seen by plugins.
type DOM interface {
	Body() Element
	ContentContainer() Element
	Toolbar() Element
	Query(selector string) Element
	QueryAll(selector string) []Element
	CreateElement(tag string, attrs map[string]string) Element
}

// Utils provides helpers scoped to the plugin.
type Utils interface {
	// GenerateID returns a collision-resistant id built from prefix, the
	// plugin id, the current time and a random suffix.
	GenerateID(prefix string) string
	// Debounce returns a function that runs fn once calls have stopped
	// for delay.
	Debounce(fn func(), delay time.Duration) func()
	// Throttle returns a function that runs fn at most once per limit.
	Throttle(fn func(), limit time.Duration) func()
}
