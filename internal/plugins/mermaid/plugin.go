// Package mermaid renders ```mermaid code blocks as diagram containers the
// host's diagram script picks up, and keeps them in step with the theme.
package mermaid

import (
	"context"
	"fmt"

	"mdviewer/internal/state"
	"mdviewer/pkg/plugin"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// ID is the plugin identifier.
const ID = "mermaid"

// Diagram themes.
const (
	ThemeAuto    = "auto"
	ThemeDefault = "default"
	ThemeDark    = "dark"
	ThemeForest  = "forest"
	ThemeNeutral = "neutral"
)

// diagramClass marks rendered diagram containers in the document.
const diagramClass = "mermaid"

func init() {
	if err := plugin.RegisterBuiltin(plugin.BuiltinInfo{
		ID:       ID,
		Priority: plugin.PriorityDefault,
		Order:    10,
		Loader:   plugin.Static(Definition()),
	}); err != nil {
		panic(fmt.Sprintf("register %s: %v", ID, err))
	}
}

// Definition describes the plugin.
func Definition() plugin.Definition {
	return plugin.Definition{
		ID:          ID,
		Name:        "Mermaid Diagrams",
		Version:     "1.2.0",
		Description: "Renders mermaid code blocks as diagrams",
		Author:      "mdviewer",
		Capabilities: plugin.Capabilities{
			UsesMarkdownHooks: true,
			HasSettings:       true,
		},
		Settings: plugin.Schema{
			{
				Key:         "theme",
				Kind:        plugin.KindEnum,
				Label:       plugin.Translated(map[string]string{"en": "Diagram theme", "de": "Diagramm-Design"}),
				Description: plugin.Text("Auto follows the application theme"),
				Default:     ThemeAuto,
				Options: []plugin.Option{
					{Value: ThemeAuto, Label: plugin.Text("Auto")},
					{Value: ThemeDefault, Label: plugin.Text("Default")},
					{Value: ThemeDark, Label: plugin.Text("Dark")},
					{Value: ThemeForest, Label: plugin.Text("Forest")},
					{Value: ThemeNeutral, Label: plugin.Text("Neutral")},
				},
			},
		},
		Factory: New,
	}
}

// Plugin is the running mermaid plugin.
type Plugin struct {
	*plugin.Base
}

// New creates the plugin.
func New(api *plugin.API) (plugin.Plugin, error) {
	p := &Plugin{Base: plugin.NewBase(api, Definition())}
	p.OnSettingsChange(func(plugin.Settings) { p.retheme() })
	return p, nil
}

// Init installs the code renderer and follows theme changes.
func (p *Plugin) Init(context.Context) error {
	p.API.Markdown.AddRenderer("code", p.render)
	p.Subscribe(state.KeyResolvedTheme, func(any, any, string) { p.retheme() })

	p.Logger.Debug("Mermaid renderer installed", zap.String("theme", p.Theme()))
	return nil
}

// Theme is the diagram theme in effect.
func (p *Plugin) Theme() string {
	theme, _ := p.Setting("theme").(string)
	if theme != "" && theme != ThemeAuto {
		return theme
	}
	if resolved, _ := p.API.Store.Get(state.KeyResolvedTheme).(string); resolved == "dark" {
		return ThemeDark
	}
	return ThemeDefault
}

func (p *Plugin) render(tok plugin.Token) (string, bool) {
	if tok.Lang != "mermaid" {
		return "", false
	}
	id := p.API.Utils.GenerateID("diagram")
	return fmt.Sprintf(`<div class="%s" id="%s" data-theme="%s">%s</div>`,
		diagramClass, id, p.Theme(), html.EscapeString(tok.Text)), true
}

// retheme updates diagrams already in the document.
func (p *Plugin) retheme() {
	theme := p.Theme()
	diagrams := p.API.DOM.QueryAll("." + diagramClass)
	for _, el := range diagrams {
		el.SetAttr("data-theme", theme)
	}
	if len(diagrams) > 0 {
		p.Logger.Debug("Re-themed diagrams",
			zap.String("theme", theme),
			zap.Int("count", len(diagrams)))
	}
}
