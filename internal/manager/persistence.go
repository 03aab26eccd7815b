package manager

import (
	"slices"

	"mdviewer/internal/state"
	"mdviewer/pkg/plugin"

	"go.uber.org/zap"
)

// The enabled set and the settings records live in the store under
// state.KeyEnabledPlugins and state.KeyPluginSettings. Both are advisory:
// unreadable values are logged and treated as empty, and ids that are not
// registered are ignored. Every change goes through Store.Update so that
// concurrent transitions of different plugins do not lose each other's
// writes.

func (m *Manager) enabledSet() []string {
	return m.decodeEnabled(m.store.Get(state.KeyEnabledPlugins))
}

func (m *Manager) decodeEnabled(value any) []string {
	if value == nil {
		return nil
	}
	var ids []string
	if err := state.DecodeValue(value, &ids); err != nil {
		m.logger.Warn("Ignoring unreadable enabled plugin set", zap.Error(err))
		return nil
	}
	return ids
}

func (m *Manager) updateEnabledSet(change func(ids []string) ([]string, bool)) {
	if !m.store.Initialized() {
		m.logger.Warn("Enabled plugin set not saved", zap.Error(state.ErrNotInitialized))
		return
	}
	m.store.Update(state.KeyEnabledPlugins, func(current any) (any, bool) {
		ids, ok := change(m.decodeEnabled(current))
		if !ok {
			return nil, false
		}
		if ids == nil {
			ids = []string{}
		}
		return ids, true
	})
}

func (m *Manager) addEnabled(id string) {
	m.updateEnabledSet(func(ids []string) ([]string, bool) {
		if slices.Contains(ids, id) {
			return nil, false
		}
		return append(ids, id), true
	})
}

func (m *Manager) removeEnabled(id string) {
	m.updateEnabledSet(func(ids []string) ([]string, bool) {
		kept := slices.DeleteFunc(slices.Clone(ids), func(existing string) bool {
			return existing == id
		})
		return kept, len(kept) != len(ids)
	})
}

func (m *Manager) decodeSettings(value any) map[string]plugin.Settings {
	all := map[string]plugin.Settings{}
	if value == nil {
		return all
	}
	if err := state.DecodeValue(value, &all); err != nil {
		m.logger.Warn("Ignoring unreadable plugin settings", zap.Error(err))
		return map[string]plugin.Settings{}
	}
	if all == nil {
		all = map[string]plugin.Settings{}
	}
	return all
}

func (m *Manager) allStoredSettings() map[string]plugin.Settings {
	return m.decodeSettings(m.store.Get(state.KeyPluginSettings))
}

func (m *Manager) storedSettings(id string) (plugin.Settings, bool) {
	s, ok := m.allStoredSettings()[id]
	if !ok || s == nil {
		return nil, false
	}
	return s, true
}

func (m *Manager) writeStoredSettings(id string, record plugin.Settings) {
	if !m.store.Initialized() {
		m.logger.Warn("Plugin settings not saved",
			zap.String("plugin", id),
			zap.Error(state.ErrNotInitialized))
		return
	}
	m.store.Update(state.KeyPluginSettings, func(current any) (any, bool) {
		all := m.decodeSettings(current)
		all[id] = record
		return all, true
	})
}

func (m *Manager) deleteStoredSettings(id string) {
	if !m.store.Initialized() {
		return
	}
	m.store.Update(state.KeyPluginSettings, func(current any) (any, bool) {
		all := m.decodeSettings(current)
		if _, ok := all[id]; !ok {
			return nil, false
		}
		delete(all, id)
		return all, true
	})
}
