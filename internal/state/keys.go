package state

// Variable describes a well-known store key.
type Variable struct {
	Key       string // Store key (e.g., "theme")
	Default   any    // Value reported before anything is set
	Persisted bool   // Written to durable storage on every accepted Set
}

// Well-known keys.
const (
	KeyTheme          = "theme"
	KeySystemTheme    = "systemTheme"
	KeyResolvedTheme  = "resolvedTheme"
	KeyLanguage       = "language"
	KeyFontSize       = "fontSize"
	KeyEnabledPlugins = "enabledPlugins"
	KeyPluginSettings = "pluginSettings"
	KeyRecentFiles    = "recentFiles"
	KeyCurrentFile    = "currentFile"
	KeyEditMode       = "editMode"
)

// AllVariables lists the keys the host core knows about. Keys that are not
// listed are accepted by the store but live in memory only.
var AllVariables = []Variable{
	{Key: KeyTheme, Default: "auto", Persisted: true},
	{Key: KeyLanguage, Default: "en", Persisted: true},
	{Key: KeyFontSize, Default: 16.0, Persisted: true},
	{Key: KeyEnabledPlugins, Default: []any{}, Persisted: true},
	{Key: KeyPluginSettings, Default: map[string]any{}, Persisted: true},
	{Key: KeyRecentFiles, Default: []any{}, Persisted: true},

	// Memory only
	{Key: KeySystemTheme, Default: "light"},
	{Key: KeyResolvedTheme, Default: "light"},
	{Key: KeyCurrentFile, Default: ""},
	{Key: KeyEditMode, Default: false},
}

// VariablesByKey indexes AllVariables by key.
func VariablesByKey() map[string]Variable {
	vars := make(map[string]Variable, len(AllVariables))
	for _, v := range AllVariables {
		vars[v.Key] = v
	}
	return vars
}

// PersistedKeys returns the default persistence allow-list.
func PersistedKeys() []string {
	keys := make([]string, 0, len(AllVariables))
	for _, v := range AllVariables {
		if v.Persisted {
			keys = append(keys, v.Key)
		}
	}
	return keys
}
