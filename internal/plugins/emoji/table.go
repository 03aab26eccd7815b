package emoji

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed shortcodes.yaml
var shortcodesYAML []byte

// Table holds the shortcode sets.
type Table struct {
	Sets map[string]map[string]string `yaml:"sets"`
}

// LoadTable parses a shortcode table.
func LoadTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse shortcode table: %w", err)
	}
	if len(t.Sets) == 0 {
		return nil, fmt.Errorf("shortcode table has no sets")
	}
	for name, codes := range t.Sets {
		if len(codes) == 0 {
			return nil, fmt.Errorf("shortcode set %s is empty", name)
		}
	}
	return &t, nil
}

// SetNames returns the set names in sorted order.
func (t *Table) SetNames() []string {
	names := make([]string, 0, len(t.Sets))
	for name := range t.Sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Active merges the named sets into one shortcode lookup. Unknown names are
// ignored.
func (t *Table) Active(names []string) map[string]string {
	out := make(map[string]string)
	for _, name := range names {
		for code, emoji := range t.Sets[strings.TrimSpace(name)] {
			out[code] = emoji
		}
	}
	return out
}

// ParseSets splits a comma separated set list.
func ParseSets(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
