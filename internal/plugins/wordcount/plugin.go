// Package wordcount counts the words of every rendered document and shows
// the count and an estimated reading time in the toolbar.
package wordcount

import (
	"context"
	"fmt"
	"math"
	"sync"

	"mdviewer/pkg/plugin"

	"go.uber.org/zap"
)

// ID is the plugin identifier.
const ID = "word-count"

// CountedEvent is emitted (as "plugin:word-count:counted") after each render.
const CountedEvent = "counted"

const buttonID = "counter"

func init() {
	if err := plugin.RegisterBuiltin(plugin.BuiltinInfo{
		ID:       ID,
		Priority: plugin.PriorityDefault,
		Order:    20,
		Loader:   plugin.Static(Definition()),
	}); err != nil {
		panic(fmt.Sprintf("register %s: %v", ID, err))
	}
}

// Definition describes the plugin.
func Definition() plugin.Definition {
	return plugin.Definition{
		ID:          ID,
		Name:        "Word Count",
		Version:     "1.0.3",
		Description: "Shows word count and reading time",
		Author:      "mdviewer",
		Capabilities: plugin.Capabilities{
			UsesMarkdownHooks: true,
			UsesUIExtensions:  true,
			UsesToolbar:       true,
			HasSettings:       true,
		},
		Settings: plugin.Schema{
			{
				Key:     "showInToolbar",
				Kind:    plugin.KindBoolean,
				Label:   plugin.Translated(map[string]string{"en": "Show in toolbar", "fr": "Afficher dans la barre"}),
				Default: true,
			},
			{
				Key:     "wordsPerMinute",
				Kind:    plugin.KindRange,
				Default: 200,
				Min:     50,
				Max:     1000,
				Step:    10,
			},
		},
		Factory: New,
	}
}

// Stats describes the last rendered document.
type Stats struct {
	Words          int `json:"words"`
	Characters     int `json:"characters"`
	ReadingMinutes int `json:"readingMinutes"`
}

// Plugin is the running word count plugin.
type Plugin struct {
	*plugin.Base

	mu       sync.Mutex
	started  bool
	stats    Stats
	buttonID string
	badge    plugin.Element
}

// New creates the plugin.
func New(api *plugin.API) (plugin.Plugin, error) {
	p := &Plugin{Base: plugin.NewBase(api, Definition())}
	p.OnSettingsChange(func(plugin.Settings) { p.syncToolbar() })
	return p, nil
}

// Init hooks the render pipeline and shows the toolbar badge.
func (p *Plugin) Init(context.Context) error {
	p.API.Markdown.OnAfterRender(p.afterRender)

	p.mu.Lock()
	p.started = true
	p.mu.Unlock()

	p.syncToolbar()
	return nil
}

// Stats returns the figures for the last render.
func (p *Plugin) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Plugin) afterRender(content string) string {
	words, chars := Count(content)
	stats := Stats{
		Words:          words,
		Characters:     chars,
		ReadingMinutes: ReadingMinutes(words, p.wordsPerMinute()),
	}

	p.mu.Lock()
	p.stats = stats
	badge := p.badge
	p.mu.Unlock()

	if badge != nil {
		badge.SetText(label(stats))
	}
	p.API.Store.Set("stats", stats)
	p.API.Events.Emit(CountedEvent, stats)
	return content
}

func (p *Plugin) wordsPerMinute() float64 {
	switch v := p.Setting("wordsPerMinute").(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	return 200
}

// ReadingMinutes rounds words/wpm up to whole minutes.
func ReadingMinutes(words int, wpm float64) int {
	if words == 0 || wpm <= 0 {
		return 0
	}
	return int(math.Ceil(float64(words) / wpm))
}

func label(s Stats) string {
	return fmt.Sprintf("%d words · %d min", s.Words, s.ReadingMinutes)
}

// syncToolbar adds or removes the toolbar button and badge to match the
// showInToolbar setting. Settings applied before Init take effect in Init.
func (p *Plugin) syncToolbar() {
	show, _ := p.Setting("showInToolbar").(bool)

	p.mu.Lock()
	started := p.started
	shown := p.buttonID != ""
	p.mu.Unlock()

	if !started {
		return
	}

	switch {
	case show && !shown:
		id := p.API.UI.AddToolbarButton(plugin.ToolbarButton{
			ID:      buttonID,
			Title:   "Word count",
			Icon:    "📊",
			Order:   90,
			OnClick: p.showDetails,
		})

		// The badge is created once and re-attached on every show.
		p.mu.Lock()
		badge := p.badge
		p.mu.Unlock()
		if badge == nil {
			badge = p.TrackElement(p.API.DOM.CreateElement("span", map[string]string{
				"id":    id,
				"class": "word-count-badge",
			}))
		}
		badge.SetText(label(p.Stats()))
		if err := p.API.DOM.Toolbar().AppendChild(badge); err != nil {
			p.Logger.Warn("Failed to attach word count badge", zap.Error(err))
		}

		p.mu.Lock()
		p.buttonID, p.badge = id, badge
		p.mu.Unlock()

	case !show && shown:
		p.mu.Lock()
		id, badge := p.buttonID, p.badge
		p.buttonID = ""
		p.mu.Unlock()

		p.API.UI.RemoveToolbarButton(id)
		badge.Remove()
	}
}

func (p *Plugin) showDetails() {
	s := p.Stats()
	_, err := p.API.UI.CreateModal(plugin.ModalConfig{
		Title: "Document statistics",
		Content: fmt.Sprintf("Words: %d\nCharacters: %d\nReading time: %d min",
			s.Words, s.Characters, s.ReadingMinutes),
		Class:   "word-count-modal",
		Buttons: []plugin.ModalButton{{Label: "Close", Class: "primary"}},
	})
	if err != nil {
		p.API.UI.ShowNotification("Could not show statistics", plugin.NotificationOptions{Type: plugin.NotifyError})
		p.Logger.Error("Failed to open statistics", zap.Error(err))
	}
}
