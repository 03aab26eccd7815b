// Package emoji turns :shortcode: sequences into emoji, both through an
// inline markdown extension and a source rewrite before rendering.
package emoji

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"mdviewer/pkg/plugin"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// ID is the plugin identifier.
const ID = "emoji"

var shortcodePattern = regexp.MustCompile(`:([a-z0-9_+\-]+):`)

func init() {
	if err := plugin.RegisterBuiltin(plugin.BuiltinInfo{
		ID:       ID,
		Priority: plugin.PriorityDefault,
		Order:    30,
		Loader:   load,
	}); err != nil {
		panic(fmt.Sprintf("register %s: %v", ID, err))
	}
}

func load(context.Context) (plugin.Definition, error) {
	table, err := LoadTable(shortcodesYAML)
	if err != nil {
		return plugin.Definition{}, err
	}
	return Definition(table), nil
}

// Definition describes the plugin for the given shortcode table.
func Definition(table *Table) plugin.Definition {
	return plugin.Definition{
		ID:          ID,
		Name:        "Emoji",
		Version:     "0.9.1",
		Description: "Converts :shortcodes: to emoji",
		Author:      "mdviewer",
		Capabilities: plugin.Capabilities{
			UsesMarkdownHooks: true,
			HasSettings:       true,
		},
		Settings: plugin.Schema{
			{
				Key:         "enabledSets",
				Kind:        plugin.KindString,
				Description: plugin.Text("Comma separated list of: " + strings.Join(table.SetNames(), ", ")),
				Default:     strings.Join(table.SetNames(), ","),
			},
		},
		Factory: func(api *plugin.API) (plugin.Plugin, error) {
			p, err := New(api, table)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
	}
}

// Plugin is the running emoji plugin.
type Plugin struct {
	*plugin.Base
	table *Table

	mu     sync.RWMutex
	active map[string]string
}

// New creates the plugin.
func New(api *plugin.API, table *Table) (*Plugin, error) {
	if table == nil {
		return nil, fmt.Errorf("emoji plugin needs a shortcode table")
	}
	p := &Plugin{Base: plugin.NewBase(api, Definition(table)), table: table}
	p.rebuild()
	p.OnSettingsChange(func(plugin.Settings) { p.rebuild() })
	return p, nil
}

// Init registers the inline extension and the source rewrite.
func (p *Plugin) Init(context.Context) error {
	p.API.Markdown.AddExtension(plugin.MarkdownExtension{
		Name:     ID,
		Level:    plugin.LevelInline,
		Start:    func(src string) int { return strings.IndexByte(src, ':') },
		Tokenize: p.tokenize,
		Render:   render,
	})
	p.API.Markdown.OnBeforeRender(p.Replace)
	return nil
}

func (p *Plugin) rebuild() {
	sets, _ := p.Setting("enabledSets").(string)
	active := p.table.Active(ParseSets(sets))

	p.mu.Lock()
	p.active = active
	p.mu.Unlock()

	p.Logger.Debug("Emoji sets active",
		zap.String("sets", sets),
		zap.Int("shortcodes", len(active)))
}

// Lookup returns the emoji for a shortcode in the active sets.
func (p *Plugin) Lookup(code string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.active[code]
	return e, ok
}

func (p *Plugin) tokenize(src string) (*plugin.Token, int) {
	loc := shortcodePattern.FindStringSubmatchIndex(src)
	if loc == nil || loc[0] != 0 {
		return nil, 0
	}
	code := src[loc[2]:loc[3]]
	e, ok := p.Lookup(code)
	if !ok {
		return nil, 0
	}
	return &plugin.Token{Type: ID, Text: e, Raw: src[:loc[1]]}, loc[1]
}

func render(tok plugin.Token) (string, bool) {
	return fmt.Sprintf(`<span class="emoji" title="%s">%s</span>`,
		html.EscapeString(tok.Raw), html.EscapeString(tok.Text)), true
}

// Replace rewrites known shortcodes in markdown source. Fenced code blocks
// and inline code spans are left alone.
func (p *Plugin) Replace(src string) string {
	lines := strings.Split(src, "\n")
	fenced := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			fenced = !fenced
			continue
		}
		if fenced {
			continue
		}
		parts := strings.Split(line, "`")
		for j := 0; j < len(parts); j += 2 {
			parts[j] = shortcodePattern.ReplaceAllStringFunc(parts[j], func(m string) string {
				if e, ok := p.Lookup(m[1 : len(m)-1]); ok {
					return e
				}
				return m
			})
		}
		lines[i] = strings.Join(parts, "`")
	}
	return strings.Join(lines, "\n")
}
