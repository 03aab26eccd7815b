package plugin

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Capabilities declares which host surfaces a plugin touches.
type Capabilities struct {
	UsesMarkdownHooks bool `json:"usesMarkdownHooks"`
	UsesUIExtensions  bool `json:"usesUIExtensions"`
	UsesToolbar       bool `json:"usesToolbar"`
	HasSettings       bool `json:"hasSettings"`
}

// Definition is the static description of a plugin. It is never mutated
// after registration.
type Definition struct {
	// ID is the unique, version-stable identifier (e.g., "mermaid").
	ID string

	Name        string
	Version     string // Semantic version (e.g., "1.2.0")
	Description string
	Author      string
	Homepage    string

	Capabilities Capabilities

	// Settings is the ordered settings schema; its defaults form the
	// plugin's default settings record.
	Settings Schema

	// Factory creates the running instance.
	Factory Factory
}

// Validate checks the definition before registration.
func (d Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("plugin id cannot be empty")
	}
	if d.Factory == nil {
		return fmt.Errorf("plugin %s: factory cannot be nil", d.ID)
	}
	if _, err := semver.NewVersion(d.Version); err != nil {
		return fmt.Errorf("plugin %s: invalid version %q: %w", d.ID, d.Version, err)
	}
	if err := d.Settings.Validate(); err != nil {
		return fmt.Errorf("plugin %s: %w", d.ID, err)
	}
	return nil
}

// DefaultSettings returns a fresh copy of the schema defaults.
func (d Definition) DefaultSettings() Settings {
	return d.Settings.Defaults()
}
