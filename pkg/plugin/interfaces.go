// Package plugin defines the contract between the viewer and its plugins:
// the static Definition every plugin publishes, the Plugin lifecycle
// interface, the capability-scoped API a running plugin receives, and the
// Base helper that tracks a plugin's subscriptions and DOM nodes so they can
// be released on disable.
//
// Built-in plugins register a Loader with RegisterBuiltin from an init()
// function, allowing private builds to override a built-in by registering
// the same ID with a higher priority.
package plugin

import "context"

// Plugin is the lifecycle interface every running plugin implements.
// Embedding *Base provides everything except a meaningful Init.
type Plugin interface {
	// Init is called once on enable, after persisted settings have been
	// applied. It sets up subscriptions, markdown hooks and UI extensions.
	// A returned error (or panic) aborts the enable.
	Init(ctx context.Context) error

	// Destroy is called once on disable. It must release every
	// subscription and DOM node the plugin created. Errors are logged; the
	// plugin is disabled regardless.
	Destroy(ctx context.Context) error

	// GetSettings returns a copy of the current settings.
	GetSettings() Settings

	// UpdateSettings shallow-merges partial into the current settings.
	UpdateSettings(partial Settings)
}

// Factory creates a plugin instance bound to its scoped API.
type Factory func(api *API) (Plugin, error)

// Subscription is an active event or store subscription.
type Subscription interface {
	Unsubscribe()
}

// EventHandler receives an event payload.
type EventHandler func(payload any)

// ChangeHandler receives a store change.
type ChangeHandler func(newValue, oldValue any, key string)
