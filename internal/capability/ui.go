package capability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"mdviewer/internal/dom"
	"mdviewer/internal/events"
	"mdviewer/internal/extension"
	"mdviewer/pkg/plugin"

	"go.uber.org/zap"
)

// DefaultNotificationDuration applies when ShowNotification gets no duration.
const DefaultNotificationDuration = 3 * time.Second

type uiAPI struct {
	bus      *events.Bus
	registry *extension.Registry
	document *dom.Document
	pluginID string
	logger   *zap.Logger
}

func (a *uiAPI) prefix() string {
	return "plugin-" + a.pluginID + "-"
}

func (a *uiAPI) AddToolbarButton(btn plugin.ToolbarButton) string {
	btn.ID = a.prefix() + btn.ID
	a.registry.AddToolbarButton(a.pluginID, btn)
	a.changed()
	return btn.ID
}

func (a *uiAPI) AddToolbarGroup(group plugin.ToolbarGroup) string {
	group.ID = a.prefix() + group.ID
	a.registry.AddToolbarGroup(a.pluginID, group)
	a.changed()
	return group.ID
}

// RemoveToolbarButton accepts the id returned by AddToolbarButton or the raw
// id it was given. Buttons of other plugins are never removed, even when
// their id shares this plugin's prefix.
func (a *uiAPI) RemoveToolbarButton(id string) bool {
	if !strings.HasPrefix(id, a.prefix()) {
		id = a.prefix() + id
	}
	if !a.registry.RemoveToolbarButton(a.pluginID, id) {
		return false
	}
	a.changed()
	return true
}

func (a *uiAPI) AddSettingsSection(section plugin.SettingsSection) {
	a.registry.AddSettingsSection(a.pluginID, section)
	a.changed()
}

func (a *uiAPI) ShowNotification(message string, opts plugin.NotificationOptions) {
	if opts.Type == "" {
		opts.Type = plugin.NotifyInfo
	}
	if opts.Duration <= 0 {
		opts.Duration = DefaultNotificationDuration
	}
	a.bus.Publish(events.NotificationShow, plugin.Notification{
		Message:  message,
		Type:     opts.Type,
		Duration: opts.Duration,
		PluginID: a.pluginID,
	})
}

func (a *uiAPI) changed() {
	a.bus.Publish(events.UIExtensionsChanged, map[string]any{"pluginId": a.pluginID})
}

// CreateModal inserts a modal into the document body. The backdrop and the
// close button close it; action buttons close it after their handler unless
// CloseOnClick is false.
func (a *uiAPI) CreateModal(cfg plugin.ModalConfig) (plugin.Modal, error) {
	d := a.document

	class := "plugin-modal"
	if cfg.Class != "" {
		class += " " + cfg.Class
	}

	backdrop := d.CreateElement("div", map[string]string{
		"class":       "modal-backdrop",
		"data-plugin": a.pluginID,
	})
	box := d.CreateElement("div", map[string]string{"class": class})
	header := d.CreateElement("div", map[string]string{"class": "modal-header"})
	title := d.CreateElement("h3", map[string]string{"class": "modal-title"})
	title.SetText(cfg.Title)
	closeBtn := d.CreateElement("button", map[string]string{"class": "modal-close", "title": "Close"})
	closeBtn.SetText("×")
	body := d.CreateElement("div", map[string]string{"class": "modal-body"})
	body.SetText(cfg.Content)

	m := &modal{el: backdrop, onClose: cfg.OnClose}

	pairs := [][2]plugin.Element{
		{header, title},
		{header, closeBtn},
		{box, header},
		{box, body},
	}
	if len(cfg.Buttons) > 0 {
		footer := d.CreateElement("div", map[string]string{"class": "modal-footer"})
		for _, b := range cfg.Buttons {
			btnClass := "modal-btn"
			if b.Class != "" {
				btnClass += " " + b.Class
			}
			el := d.CreateElement("button", map[string]string{"class": btnClass})
			el.SetText(b.Label)
			el.On("click", m.actionHandler(b))
			pairs = append(pairs, [2]plugin.Element{footer, el})
		}
		pairs = append(pairs, [2]plugin.Element{box, footer})
	}
	pairs = append(pairs, [2]plugin.Element{backdrop, box}, [2]plugin.Element{d.Body(), backdrop})

	for _, p := range pairs {
		if err := p[0].AppendChild(p[1]); err != nil {
			return nil, fmt.Errorf("failed to build modal: %w", err)
		}
	}

	closeBtn.On("click", m.Close)
	backdrop.On("click", m.Close)

	a.logger.Debug("Created modal", zap.String("title", cfg.Title))
	return m, nil
}

type modal struct {
	el      plugin.Element
	onClose func()
	once    sync.Once
}

// Close removes the modal and runs OnClose. Only the first call has effect.
func (m *modal) Close() {
	m.once.Do(func() {
		m.el.Remove()
		if m.onClose != nil {
			m.onClose()
		}
	})
}

func (m *modal) Element() plugin.Element {
	return m.el
}

func (m *modal) actionHandler(b plugin.ModalButton) func() {
	return func() {
		if b.OnClick != nil {
			b.OnClick()
		}
		if b.CloseOnClick == nil || *b.CloseOnClick {
			m.Close()
		}
	}
}
