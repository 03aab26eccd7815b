package manager

import "errors"

var (
	// ErrPluginNotFound is reported for operations on an unregistered id.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrBuiltInPlugin is reported when uninstalling a built-in plugin.
	ErrBuiltInPlugin = errors.New("built-in plugins cannot be uninstalled")

	// ErrAlreadyRegistered is reported when an id is registered twice.
	ErrAlreadyRegistered = errors.New("plugin already registered")
)
