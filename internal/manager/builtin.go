package manager

import (
	"context"
	"fmt"

	"mdviewer/internal/events"
	"mdviewer/pkg/plugin"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type loaded struct {
	def plugin.Definition
	err error
}

// Initialize loads every built-in plugin, registers them in bootstrap order
// and enables those in the stored enabled set. When the stored set is empty
// every built-in is enabled. One failing built-in does not stop the others.
// "plugins:loaded" is published with the resulting list.
func (m *Manager) Initialize(ctx context.Context) error {
	infos := m.builtins.List()
	results := make([]loaded, len(infos))

	// Loaders may do I/O; resolve them together, then register in order.
	var g errgroup.Group
	for i, info := range infos {
		g.Go(func() error {
			def, err := runLoader(ctx, info)
			results[i] = loaded{def: def, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("plugin bootstrap cancelled: %w", err)
	}

	enabled := m.enabledSet()
	firstRun := len(enabled) == 0
	if firstRun {
		m.logger.Info("No enabled plugins stored, enabling all built-ins")
	}
	want := make(map[string]bool, len(enabled))
	for _, id := range enabled {
		want[id] = true
	}

	started := 0
	for i, info := range infos {
		res := results[i]
		if res.err != nil {
			m.reportError(info.ID, "load", res.err)
			continue
		}
		if err := m.register(res.def, true); err != nil {
			m.reportError(info.ID, "register", err)
			continue
		}
		if (firstRun || want[res.def.ID]) && m.Enable(ctx, res.def.ID) {
			started++
		}
	}

	list := m.GetPluginList()
	m.logger.Info("Built-in plugins loaded",
		zap.Int("available", len(infos)),
		zap.Int("registered", len(list)),
		zap.Int("enabled", started))

	m.bus.Publish(events.PluginsLoaded, list)
	return nil
}

func runLoader(ctx context.Context, info plugin.BuiltinInfo) (def plugin.Definition, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loader for %s panicked: %v", info.ID, r)
		}
	}()

	def, err = info.Loader(ctx)
	if err != nil {
		return plugin.Definition{}, fmt.Errorf("loader for %s: %w", info.ID, err)
	}
	if def.ID != info.ID {
		return plugin.Definition{}, fmt.Errorf("loader for %s produced plugin %q", info.ID, def.ID)
	}
	return def, nil
}
