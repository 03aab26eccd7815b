package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"mdviewer/internal/capability"
	"mdviewer/internal/clock"
	"mdviewer/internal/dom"
	"mdviewer/internal/events"
	"mdviewer/internal/extension"
	"mdviewer/internal/state"
	"mdviewer/internal/storage"
	"mdviewer/pkg/plugin"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testPlugin is a configurable plugin that records what the manager did to
// it.
type testPlugin struct {
	*plugin.Base

	initErr    error
	initPanic  bool
	destroyErr error
	setup      func(p *testPlugin)

	initCalls      int
	destroyCalls   int
	settingsAtInit plugin.Settings
}

func (p *testPlugin) Init(context.Context) error {
	p.initCalls++
	p.settingsAtInit = p.GetSettings()
	if p.setup != nil {
		p.setup(p)
	}
	if p.initPanic {
		panic("init exploded")
	}
	return p.initErr
}

func (p *testPlugin) Destroy(ctx context.Context) error {
	p.destroyCalls++
	err := p.Base.Destroy(ctx)
	if p.destroyErr != nil {
		return p.destroyErr
	}
	return err
}

type harness struct {
	ctx      context.Context
	bus      *events.Bus
	backend  *storage.Memory
	store    *state.Store
	registry *extension.Registry
	builtins *plugin.BuiltinRegistry
	mgr      *Manager

	instances map[string][]*testPlugin
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, storage.NewMemory())
}

func newHarnessWith(t *testing.T, backend *storage.Memory) *harness {
	t.Helper()
	logger := zap.NewNop()

	h := &harness{
		ctx:       context.Background(),
		bus:       events.NewBus(logger),
		backend:   backend,
		registry:  extension.NewRegistry(logger),
		builtins:  plugin.NewBuiltinRegistry(),
		instances: make(map[string][]*testPlugin),
	}
	h.store = state.NewStore(backend, logger, nil)
	h.store.Init(h.ctx)

	factory := capability.NewFactory(h.bus, h.store, h.registry, dom.NewDocument(logger), clock.NewMock(clock.NewReal().Now()), logger)
	h.mgr = NewManager(factory, h.bus, h.store, h.builtins, logger)
	return h
}

// def builds a definition whose factory creates testPlugins configured by
// configure.
func (h *harness) def(id string, configure func(p *testPlugin)) plugin.Definition {
	var d plugin.Definition
	d = plugin.Definition{
		ID:      id,
		Name:    id,
		Version: "1.0.0",
		Settings: plugin.Schema{
			{Key: "count", Kind: plugin.KindNumber, Default: 0},
			{Key: "label", Kind: plugin.KindString, Default: "x"},
		},
		Factory: func(api *plugin.API) (plugin.Plugin, error) {
			p := &testPlugin{Base: plugin.NewBase(api, d)}
			if configure != nil {
				configure(p)
			}
			h.instances[id] = append(h.instances[id], p)
			return p, nil
		},
	}
	return d
}

func (h *harness) record(event string) *[]any {
	var got []any
	h.bus.Subscribe(event, func(payload any) { got = append(got, payload) })
	return &got
}

func (h *harness) last(id string) *testPlugin {
	list := h.instances[id]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

func (h *harness) storedEnabled(t *testing.T) []string {
	t.Helper()
	var ids []string
	require.NoError(t, h.store.Decode(state.KeyEnabledPlugins, &ids))
	return ids
}

// busy registers every kind of extension plus event and store subscriptions.
func busy(p *testPlugin) {
	api := p.API
	api.Markdown.AddExtension(plugin.MarkdownExtension{Name: "ext"})
	api.Markdown.AddRenderer("code", func(plugin.Token) (string, bool) { return "", true })
	api.Markdown.OnBeforeRender(func(s string) string { return s })
	api.Markdown.OnAfterRender(func(s string) string { return s })
	api.UI.AddToolbarButton(plugin.ToolbarButton{ID: "btn"})
	api.UI.AddToolbarGroup(plugin.ToolbarGroup{ID: "grp"})
	api.UI.AddSettingsSection(plugin.SettingsSection{ID: "sec"})
	p.On("file:opened", func(any) { p.initCalls += 100 })
	p.Subscribe(state.KeyTheme, func(any, any, string) { p.initCalls += 1000 })
}

func TestRegister(t *testing.T) {
	h := newHarness(t)
	registered := h.record(events.PluginRegistered)

	require.NoError(t, h.mgr.Register(h.def("p1", nil)))

	info, ok := h.mgr.Get("p1")
	require.True(t, ok)
	assert.False(t, info.Enabled)
	assert.False(t, info.BuiltIn)
	assert.Equal(t, []any{Event{PluginID: "p1"}}, *registered)

	// Duplicate is a warning and a no-op.
	dup := h.def("p1", nil)
	dup.Name = "other"
	err := h.mgr.Register(dup)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	info, _ = h.mgr.Get("p1")
	assert.Equal(t, "p1", info.Name)
	assert.Len(t, *registered, 1)
	assert.Len(t, h.mgr.GetPluginList(), 1)
}

func TestRegister_InvalidDefinition(t *testing.T) {
	h := newHarness(t)

	bad := h.def("p1", nil)
	bad.Version = "not-a-version"
	assert.Error(t, h.mgr.Register(bad))

	_, ok := h.mgr.Get("p1")
	assert.False(t, ok)
}

func TestEnable_Idempotent(t *testing.T) {
	h := newHarness(t)
	enabled := h.record(events.PluginEnabled)
	require.NoError(t, h.mgr.Register(h.def("p1", busy)))

	assert.True(t, h.mgr.Enable(h.ctx, "p1"))
	countAfterFirst := h.registry.CountFor("p1")

	assert.True(t, h.mgr.Enable(h.ctx, "p1"))

	assert.Len(t, h.instances["p1"], 1)
	assert.Equal(t, 1, h.last("p1").initCalls)
	assert.Equal(t, countAfterFirst, h.registry.CountFor("p1"))
	assert.Len(t, *enabled, 1)
	assert.Equal(t, []string{"p1"}, h.storedEnabled(t))
	assert.True(t, h.mgr.IsEnabled("p1"))
}

func TestDisable_Idempotent(t *testing.T) {
	h := newHarness(t)
	disabled := h.record(events.PluginDisabled)
	require.NoError(t, h.mgr.Register(h.def("p1", nil)))

	assert.True(t, h.mgr.Disable(h.ctx, "p1"), "already disabled")
	assert.Empty(t, *disabled)

	require.True(t, h.mgr.Enable(h.ctx, "p1"))
	assert.True(t, h.mgr.Disable(h.ctx, "p1"))
	assert.True(t, h.mgr.Disable(h.ctx, "p1"))

	assert.Equal(t, 1, h.last("p1").destroyCalls)
	assert.Len(t, *disabled, 1)
	assert.Empty(t, h.storedEnabled(t))
}

func TestUnknownPlugin(t *testing.T) {
	h := newHarness(t)

	assert.False(t, h.mgr.Enable(h.ctx, "ghost"))
	assert.False(t, h.mgr.Disable(h.ctx, "ghost"))
	assert.False(t, h.mgr.Toggle(h.ctx, "ghost"))
	assert.False(t, h.mgr.Uninstall(h.ctx, "ghost"))
	assert.False(t, h.mgr.SavePluginSettings("ghost", plugin.Settings{}))
	assert.False(t, h.mgr.IsEnabled("ghost"))
	_, ok := h.mgr.GetPluginSettings("ghost")
	assert.False(t, ok)
}

func TestDisable_LeavesNothingBehind(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.mgr.Register(h.def("p1", busy)))
	require.True(t, h.mgr.Enable(h.ctx, "p1"))

	p := h.last("p1")
	assert.Equal(t, 7, h.registry.CountFor("p1"))
	subs, _ := p.Tracked()
	assert.Equal(t, 2, subs)

	require.True(t, h.mgr.Disable(h.ctx, "p1"))

	assert.Equal(t, 0, h.registry.CountFor("p1"))
	before := p.initCalls
	h.bus.Publish("file:opened", nil)
	h.store.Set(state.KeyTheme, "dark")
	assert.Equal(t, before, p.initCalls, "no subscription fires after disable")
	assert.Equal(t, 0, h.bus.HandlerCount("file:opened"))
}

func TestEnable_InitFailureIsAtomic(t *testing.T) {
	tests := []struct {
		name      string
		configure func(p *testPlugin)
	}{
		{
			name: "error",
			configure: func(p *testPlugin) {
				p.setup = busy
				p.initErr = errors.New("no renderer available")
			},
		},
		{
			name: "panic",
			configure: func(p *testPlugin) {
				p.setup = busy
				p.initPanic = true
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			errs := h.record(events.PluginError)
			enabled := h.record(events.PluginEnabled)
			require.NoError(t, h.mgr.Register(h.def("p1", tt.configure)))

			assert.False(t, h.mgr.Enable(h.ctx, "p1"))

			assert.False(t, h.mgr.IsEnabled("p1"))
			_, ok := h.mgr.Instance("p1")
			assert.False(t, ok)
			assert.Empty(t, *enabled)
			assert.Empty(t, h.storedEnabled(t))
			assert.Equal(t, 0, h.registry.CountFor("p1"), "partial registrations are purged")
			assert.Equal(t, 0, h.bus.HandlerCount("file:opened"))

			require.Len(t, *errs, 1)
			ev := (*errs)[0].(ErrorEvent)
			assert.Equal(t, "p1", ev.PluginID)
			assert.Equal(t, "enable", ev.Op)
			assert.Error(t, ev.Err)
		})
	}
}

func TestEnable_FactoryFailure(t *testing.T) {
	h := newHarness(t)
	errs := h.record(events.PluginError)

	def := h.def("p1", nil)
	def.Factory = func(*plugin.API) (plugin.Plugin, error) {
		return nil, errors.New("missing dependency")
	}
	require.NoError(t, h.mgr.Register(def))

	assert.False(t, h.mgr.Enable(h.ctx, "p1"))
	assert.False(t, h.mgr.IsEnabled("p1"))
	assert.Len(t, *errs, 1)
}

func TestDisable_DestroyFailureStillDisables(t *testing.T) {
	h := newHarness(t)
	errs := h.record(events.PluginError)
	disabled := h.record(events.PluginDisabled)

	require.NoError(t, h.mgr.Register(h.def("p1", func(p *testPlugin) {
		p.setup = busy
		p.destroyErr = errors.New("teardown failed")
	})))
	require.True(t, h.mgr.Enable(h.ctx, "p1"))

	assert.True(t, h.mgr.Disable(h.ctx, "p1"))

	assert.False(t, h.mgr.IsEnabled("p1"))
	_, ok := h.mgr.Instance("p1")
	assert.False(t, ok)
	assert.Equal(t, 0, h.registry.CountFor("p1"))
	assert.Len(t, *disabled, 1)
	require.Len(t, *errs, 1)
	assert.Equal(t, "disable", (*errs)[0].(ErrorEvent).Op)
}

func TestDisable_DestroyPanicStillDisables(t *testing.T) {
	h := newHarness(t)

	def := h.def("p1", busy)
	inner := def.Factory
	def.Factory = func(api *plugin.API) (plugin.Plugin, error) {
		p, err := inner(api)
		return &panickyDestroy{Plugin: p}, err
	}
	require.NoError(t, h.mgr.Register(def))
	require.True(t, h.mgr.Enable(h.ctx, "p1"))

	assert.True(t, h.mgr.Disable(h.ctx, "p1"))
	assert.False(t, h.mgr.IsEnabled("p1"))
	assert.Equal(t, 0, h.registry.CountFor("p1"))
}

type panickyDestroy struct {
	plugin.Plugin
}

func (p *panickyDestroy) Destroy(context.Context) error {
	panic("destroy exploded")
}

func TestToggle(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.mgr.Register(h.def("p1", nil)))

	assert.True(t, h.mgr.Toggle(h.ctx, "p1"))
	assert.True(t, h.mgr.IsEnabled("p1"))

	assert.True(t, h.mgr.Toggle(h.ctx, "p1"))
	assert.False(t, h.mgr.IsEnabled("p1"))
}

func TestUninstall(t *testing.T) {
	h := newHarness(t)
	uninstalled := h.record(events.PluginUninstalled)
	require.NoError(t, h.mgr.Register(h.def("p1", busy)))
	require.True(t, h.mgr.Enable(h.ctx, "p1"))
	require.True(t, h.mgr.SavePluginSettings("p1", plugin.Settings{"count": 3}))

	assert.True(t, h.mgr.Uninstall(h.ctx, "p1"))

	_, ok := h.mgr.Get("p1")
	assert.False(t, ok)
	assert.Empty(t, h.mgr.GetPluginList())
	assert.Equal(t, 0, h.registry.CountFor("p1"))
	assert.Equal(t, 1, h.last("p1").destroyCalls)
	assert.Empty(t, h.storedEnabled(t))
	assert.Equal(t, []any{Event{PluginID: "p1"}}, *uninstalled)

	var all map[string]plugin.Settings
	require.NoError(t, h.store.Decode(state.KeyPluginSettings, &all))
	assert.NotContains(t, all, "p1")

	// It can be registered again from scratch.
	require.NoError(t, h.mgr.Register(h.def("p1", nil)))
	settings, _ := h.mgr.GetPluginSettings("p1")
	assert.Equal(t, plugin.Settings{"count": 0, "label": "x"}, settings)
}

func TestUninstall_BuiltInRefused(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		h := newHarness(t)
		require.NoError(t, h.builtins.Register(plugin.BuiltinInfo{ID: "mermaid", Loader: plugin.Static(h.def("mermaid", nil))}))
		require.NoError(t, h.mgr.Initialize(h.ctx))
		if !enabled {
			require.True(t, h.mgr.Disable(h.ctx, "mermaid"))
		}

		assert.False(t, h.mgr.Uninstall(h.ctx, "mermaid"))

		info, ok := h.mgr.Get("mermaid")
		require.True(t, ok)
		assert.True(t, info.BuiltIn)
		assert.Equal(t, enabled, info.Enabled)
	}
}

func TestSettings_HydratedBeforeInit(t *testing.T) {
	backend := storage.NewMemory()
	require.NoError(t, backend.Save(context.Background(), state.KeyPluginSettings,
		[]byte(`{"p1":{"count":7,"label":42,"extra":"kept"}}`)))

	h := newHarnessWith(t, backend)
	require.NoError(t, h.mgr.Register(h.def("p1", nil)))
	require.True(t, h.mgr.Enable(h.ctx, "p1"))

	// The malformed label falls back to its default.
	assert.Equal(t, plugin.Settings{"count": 7.0, "label": "x", "extra": "kept"}, h.last("p1").settingsAtInit)
}

func TestSavePluginSettings_LiveUpdate(t *testing.T) {
	h := newHarness(t)
	changed := h.record(events.PluginSettingsChanged)

	var hookSaw plugin.Settings
	require.NoError(t, h.mgr.Register(h.def("P1", func(p *testPlugin) {
		p.OnSettingsChange(func(s plugin.Settings) { hookSaw = s })
	})))
	require.True(t, h.mgr.Enable(h.ctx, "P1"))

	assert.True(t, h.mgr.SavePluginSettings("P1", plugin.Settings{"count": 7}))

	inst, ok := h.mgr.Instance("P1")
	require.True(t, ok)
	assert.Equal(t, 7, inst.GetSettings()["count"])
	assert.Equal(t, 7, hookSaw["count"])
	require.Len(t, *changed, 1)
	assert.Equal(t, SettingsEvent{PluginID: "P1", Settings: plugin.Settings{"count": 7}}, (*changed)[0])

	settings, ok := h.mgr.GetPluginSettings("P1")
	require.True(t, ok)
	assert.Equal(t, 7, settings["count"])
}

func TestSavePluginSettings_ReplacesStoredRecord(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.mgr.Register(h.def("p1", nil)))

	require.True(t, h.mgr.SavePluginSettings("p1", plugin.Settings{"count": 1, "label": "a"}))
	require.True(t, h.mgr.SavePluginSettings("p1", plugin.Settings{"count": 2}))

	stored, ok := h.mgr.storedSettings("p1")
	require.True(t, ok)
	assert.Equal(t, plugin.Settings{"count": 2.0}, stored, "replaced, not merged")

	// Disabled plugins report defaults overlaid with the stored record.
	settings, _ := h.mgr.GetPluginSettings("p1")
	assert.Equal(t, plugin.Settings{"count": 2.0, "label": "x"}, settings)
}

func TestPersistence_MalformedValuesIgnored(t *testing.T) {
	backend := storage.NewMemory()
	ctx := context.Background()
	require.NoError(t, backend.Save(ctx, state.KeyEnabledPlugins, []byte(`{"not":"a list"}`)))
	require.NoError(t, backend.Save(ctx, state.KeyPluginSettings, []byte(`["not","a","map"]`)))

	h := newHarnessWith(t, backend)
	require.NoError(t, h.mgr.Register(h.def("p1", nil)))

	assert.True(t, h.mgr.Enable(h.ctx, "p1"))
	assert.Equal(t, []string{"p1"}, h.storedEnabled(t))

	settings, _ := h.mgr.GetPluginSettings("p1")
	assert.Equal(t, plugin.Settings{"count": 0, "label": "x"}, settings)
}

func TestGetPluginList_RegistrationOrder(t *testing.T) {
	h := newHarness(t)
	for _, id := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, h.mgr.Register(h.def(id, nil)))
	}
	require.True(t, h.mgr.Enable(h.ctx, "alpha"))

	list := h.mgr.GetPluginList()
	require.Len(t, list, 3)
	assert.Equal(t, "zeta", list[0].ID)
	assert.Equal(t, "alpha", list[1].ID)
	assert.True(t, list[1].Enabled)
	assert.Equal(t, "mid", list[2].ID)
	assert.False(t, list[2].Enabled)
}

func TestRendererLastWriterWins(t *testing.T) {
	h := newHarness(t)
	renderer := func(tag string) func(p *testPlugin) {
		return func(p *testPlugin) {
			p.setup = func(p *testPlugin) {
				p.API.Markdown.AddRenderer("code", func(tok plugin.Token) (string, bool) {
					return "<" + tag + ">", true
				})
			}
		}
	}
	require.NoError(t, h.mgr.Register(h.def("A", renderer("a"))))
	require.NoError(t, h.mgr.Register(h.def("B", renderer("b"))))
	require.True(t, h.mgr.Enable(h.ctx, "A"))
	require.True(t, h.mgr.Enable(h.ctx, "B"))

	rd, ok := h.registry.Renderer("code")
	require.True(t, ok)
	assert.Equal(t, "B", rd.PluginID)

	require.True(t, h.mgr.Disable(h.ctx, "B"))
	_, ok = h.registry.Renderer("code")
	assert.False(t, ok, "A's renderer is not restored")
	assert.True(t, h.mgr.IsEnabled("A"))
}

func TestShutdown_KeepsEnabledSet(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.mgr.Register(h.def("p1", busy)))
	require.NoError(t, h.mgr.Register(h.def("p2", nil)))
	require.True(t, h.mgr.Enable(h.ctx, "p1"))
	require.True(t, h.mgr.Enable(h.ctx, "p2"))

	h.mgr.Shutdown(h.ctx)

	assert.False(t, h.mgr.IsEnabled("p1"))
	assert.False(t, h.mgr.IsEnabled("p2"))
	assert.Equal(t, 1, h.last("p1").destroyCalls)
	assert.Equal(t, 0, h.registry.CountFor("p1"))
	assert.Equal(t, []string{"p1", "p2"}, h.storedEnabled(t))
}

// bare builds a definition whose instances are plain Bases. Safe to enable
// from several goroutines.
func bare(id string) plugin.Definition {
	var d plugin.Definition
	d = plugin.Definition{
		ID:      id,
		Name:    id,
		Version: "1.0.0",
		Factory: func(api *plugin.API) (plugin.Plugin, error) {
			return plugin.NewBase(api, d), nil
		},
	}
	return d
}

func TestEnable_ConcurrentKeepsEnabledSet(t *testing.T) {
	h := newHarness(t)

	ids := make([]string, 64)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%02d", i)
		require.NoError(t, h.mgr.Register(bare(ids[i])))
	}

	run := func(op func(ctx context.Context, id string) bool, targets []string) {
		start := make(chan struct{})
		var wg sync.WaitGroup
		for _, id := range targets {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				op(h.ctx, id)
			}()
		}
		close(start)
		wg.Wait()
	}

	run(h.mgr.Enable, ids)
	for _, id := range ids {
		assert.True(t, h.mgr.IsEnabled(id), id)
	}
	assert.ElementsMatch(t, ids, h.storedEnabled(t))

	run(h.mgr.Disable, ids[:32])
	assert.ElementsMatch(t, ids[32:], h.storedEnabled(t))
}

func TestEnableDisable_SameIDRaceMatchesStoredSet(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.mgr.Register(bare("p1")))

	for round := 0; round < 50; round++ {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if i%2 == 0 {
					h.mgr.Enable(h.ctx, "p1")
				} else {
					h.mgr.Disable(h.ctx, "p1")
				}
			}()
		}
		wg.Wait()

		if h.mgr.IsEnabled("p1") {
			require.Equal(t, []string{"p1"}, h.storedEnabled(t), "round %d", round)
		} else {
			require.Empty(t, h.storedEnabled(t), "round %d", round)
		}
	}
}

func TestSavePluginSettings_ConcurrentKeepsEveryRecord(t *testing.T) {
	h := newHarness(t)

	ids := make([]string, 32)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%02d", i)
		require.NoError(t, h.mgr.Register(bare(ids[i])))
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.mgr.SavePluginSettings(id, plugin.Settings{"n": i})
		}()
	}
	wg.Wait()

	var all map[string]plugin.Settings
	require.NoError(t, h.store.Decode(state.KeyPluginSettings, &all))
	assert.Len(t, all, len(ids))
}

func TestInitialize_FailingBuiltinDoesNotStopOthers(t *testing.T) {
	tests := []struct {
		name       string
		loader     func(h *harness) plugin.Loader
		registered bool
		op         string
	}{
		{
			name: "loader error",
			loader: func(*harness) plugin.Loader {
				return func(context.Context) (plugin.Definition, error) {
					return plugin.Definition{}, errors.New("bundle missing")
				}
			},
			op: "load",
		},
		{
			name: "loader panic",
			loader: func(*harness) plugin.Loader {
				return func(context.Context) (plugin.Definition, error) {
					panic("loader exploded")
				}
			},
			op: "load",
		},
		{
			name: "wrong id",
			loader: func(h *harness) plugin.Loader {
				return plugin.Static(h.def("impostor", nil))
			},
			op: "load",
		},
		{
			name: "init fails",
			loader: func(h *harness) plugin.Loader {
				return plugin.Static(h.def("broken", func(p *testPlugin) {
					p.setup = busy
					p.initErr = errors.New("no renderer available")
				}))
			},
			registered: true,
			op:         "enable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			errs := h.record(events.PluginError)
			loadedEvents := h.record(events.PluginsLoaded)

			require.NoError(t, h.builtins.Register(plugin.BuiltinInfo{ID: "broken", Order: 10, Loader: tt.loader(h)}))
			require.NoError(t, h.builtins.Register(plugin.BuiltinInfo{ID: "healthy", Order: 20, Loader: plugin.Static(h.def("healthy", busy))}))

			require.NoError(t, h.mgr.Initialize(h.ctx))

			assert.True(t, h.mgr.IsEnabled("healthy"))
			assert.False(t, h.mgr.IsEnabled("broken"))
			assert.Equal(t, 7, h.registry.CountFor("healthy"))
			assert.Zero(t, h.registry.CountFor("broken"))
			assert.Equal(t, []string{"healthy"}, h.storedEnabled(t))

			info, ok := h.mgr.Get("broken")
			assert.Equal(t, tt.registered, ok)
			if ok {
				assert.True(t, info.BuiltIn)
				assert.False(t, info.Enabled)
			}
			_, ok = h.mgr.Get("impostor")
			assert.False(t, ok)

			require.Len(t, *errs, 1)
			ev := (*errs)[0].(ErrorEvent)
			assert.Equal(t, "broken", ev.PluginID)
			assert.Equal(t, tt.op, ev.Op)

			require.Len(t, *loadedEvents, 1)
			list := (*loadedEvents)[0].([]Info)
			var ids []string
			for _, info := range list {
				ids = append(ids, info.ID)
			}
			if tt.registered {
				assert.Equal(t, []string{"broken", "healthy"}, ids)
			} else {
				assert.Equal(t, []string{"healthy"}, ids)
			}
		})
	}
}

func TestInitialize_IgnoresStaleEnabledIDs(t *testing.T) {
	backend := storage.NewMemory()
	require.NoError(t, backend.Save(context.Background(), state.KeyEnabledPlugins,
		[]byte(`["ghost","healthy"]`)))

	h := newHarnessWith(t, backend)
	require.NoError(t, h.builtins.Register(plugin.BuiltinInfo{ID: "healthy", Loader: plugin.Static(h.def("healthy", nil))}))
	require.NoError(t, h.builtins.Register(plugin.BuiltinInfo{ID: "off", Loader: plugin.Static(h.def("off", nil))}))
	errs := h.record(events.PluginError)

	require.NoError(t, h.mgr.Initialize(h.ctx))

	assert.True(t, h.mgr.IsEnabled("healthy"))
	assert.False(t, h.mgr.IsEnabled("off"), "a stored set is not a first run")
	_, ok := h.mgr.Get("ghost")
	assert.False(t, ok)
	assert.Empty(t, *errs)
	assert.Equal(t, []string{"ghost", "healthy"}, h.storedEnabled(t))
}
