package state

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"mdviewer/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*Store, *storage.Memory) {
	t.Helper()
	backend := storage.NewMemory()
	store := NewStore(backend, zap.NewNop(), nil)
	store.Init(context.Background())
	return store, backend
}

type change struct {
	newValue, oldValue any
	key                string
}

func TestStore_GetDefaults(t *testing.T) {
	store, _ := newTestStore(t)

	assert.Equal(t, "auto", store.Theme())
	assert.Equal(t, "en", store.Language())
	assert.Equal(t, 16.0, store.Get(KeyFontSize))
	assert.Nil(t, store.Get("unknown"))
}

func TestStore_SetNotifiesSubscribers(t *testing.T) {
	store, _ := newTestStore(t)
	var direct, wildcard []change

	store.Subscribe(KeyTheme, func(n, o any, k string) { direct = append(direct, change{n, o, k}) })
	store.Subscribe(WildcardKey, func(n, o any, k string) { wildcard = append(wildcard, change{n, o, k}) })

	assert.True(t, store.Set(KeyTheme, "dark"))
	assert.True(t, store.Set(KeyCurrentFile, "notes.md"))

	require.Len(t, direct, 1)
	assert.Equal(t, change{"dark", "auto", KeyTheme}, direct[0])
	assert.Equal(t, []change{
		{"dark", "auto", KeyTheme},
		{"notes.md", "", KeyCurrentFile},
	}, wildcard)
}

func TestStore_EqualValueIsNoop(t *testing.T) {
	store, backend := newTestStore(t)
	count := 0
	store.Subscribe(KeyTheme, func(any, any, string) { count++ })

	require.True(t, store.Set(KeyTheme, "dark"))
	require.NoError(t, backend.Delete(context.Background(), KeyTheme))

	assert.False(t, store.Set(KeyTheme, "dark"))
	assert.Equal(t, 1, count)
	_, ok, _ := backend.Load(context.Background(), KeyTheme)
	assert.False(t, ok, "an ignored set must not write storage")

	t.Run("structured values compare by value", func(t *testing.T) {
		require.True(t, store.Set(KeyRecentFiles, []string{"a.md"}))
		assert.False(t, store.Set(KeyRecentFiles, []string{"a.md"}))
	})

	t.Run("force", func(t *testing.T) {
		assert.True(t, store.Set(KeyTheme, "dark", WithForce()))
		assert.Equal(t, 2, count)
		_, ok, _ := backend.Load(context.Background(), KeyTheme)
		assert.True(t, ok)
	})
}

func TestStore_SelectivePersistence(t *testing.T) {
	ctx := context.Background()
	store, backend := newTestStore(t)

	store.Set(KeyTheme, "dark")
	store.Set(KeyCurrentFile, "notes.md")
	store.Set("plugin:wordcount:total", 12)

	v, ok, err := backend.Load(ctx, KeyTheme)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `"dark"`, string(v))

	assert.ElementsMatch(t, []string{KeyTheme}, backend.Keys())

	restarted := NewStore(backend, zap.NewNop(), nil)
	restarted.Init(ctx)
	assert.Equal(t, "dark", restarted.Theme())
	assert.Equal(t, "", restarted.Get(KeyCurrentFile))
}

func TestStore_CustomAllowList(t *testing.T) {
	backend := storage.NewMemory()
	store := NewStore(backend, zap.NewNop(), []string{"zoom"})
	store.Init(context.Background())

	store.Set(KeyTheme, "dark")
	store.Set("zoom", 1.5)

	assert.Equal(t, []string{"zoom"}, backend.Keys())
}

func TestStore_MalformedPersistedValueIgnored(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	require.NoError(t, backend.Save(ctx, KeyLanguage, []byte("{broken")))
	require.NoError(t, backend.Save(ctx, KeyTheme, []byte(`"dark"`)))

	store := NewStore(backend, zap.NewNop(), nil)
	store.Init(ctx)

	assert.Equal(t, "en", store.Language())
	assert.Equal(t, "dark", store.Theme())
}

func TestStore_PanickingSubscriberIsIsolated(t *testing.T) {
	store, _ := newTestStore(t)
	called := false

	store.Subscribe(KeyTheme, func(any, any, string) { panic("boom") })
	store.Subscribe(KeyTheme, func(any, any, string) { called = true })

	assert.NotPanics(t, func() { store.Set(KeyTheme, "dark") })
	assert.True(t, called)
}

func TestStore_Unsubscribe(t *testing.T) {
	store, _ := newTestStore(t)
	count := 0

	sub := store.Subscribe(KeyTheme, func(any, any, string) { count++ })
	store.Set(KeyTheme, "dark")
	sub.Unsubscribe()
	sub.Unsubscribe()
	store.Set(KeyTheme, "light")

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, store.SubscriberCount(KeyTheme))
}

func TestStore_ReentrantSet(t *testing.T) {
	store, _ := newTestStore(t)

	store.Subscribe(KeyTheme, func(n, _ any, _ string) {
		store.Set(KeyCurrentFile, "theme-"+n.(string))
	})
	store.Set(KeyTheme, "dark")

	assert.Equal(t, "theme-dark", store.Get(KeyCurrentFile))
}

func TestStore_UpdateIsAtomic(t *testing.T) {
	store, backend := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Update(KeyEnabledPlugins, func(current any) (any, bool) {
				ids := append([]any(nil), current.([]any)...)
				return append(ids, "p"), true
			})
		}()
	}
	wg.Wait()

	assert.Len(t, store.Get(KeyEnabledPlugins), 100)

	data, ok, err := backend.Load(context.Background(), KeyEnabledPlugins)
	require.NoError(t, err)
	require.True(t, ok)
	var persisted []string
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Len(t, persisted, 100, "the last write reaches storage last")
}

func TestStore_Update(t *testing.T) {
	store, _ := newTestStore(t)
	var changes []change
	store.Subscribe(KeyTheme, func(n, o any, k string) {
		changes = append(changes, change{n, o, k})
		// Subscribers run after the update lock is released.
		store.Update(KeyCurrentFile, func(any) (any, bool) { return "from-subscriber", true })
	})

	assert.False(t, store.Update(KeyTheme, func(any) (any, bool) { return nil, false }))
	assert.Empty(t, changes)

	assert.True(t, store.Update(KeyTheme, func(current any) (any, bool) {
		return current.(string) + "-dark", true
	}))
	assert.Equal(t, []change{{"auto-dark", "auto", KeyTheme}}, changes)
	assert.Equal(t, "from-subscriber", store.Get(KeyCurrentFile))

	store.ResetAll(context.Background())
	assert.False(t, store.Update(KeyTheme, func(any) (any, bool) { return "x", true }))
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	store, backend := newTestStore(t)

	store.Set(KeyTheme, "dark")
	store.Set(KeyLanguage, "de")

	var changes []change
	store.Subscribe(KeyTheme, func(n, o any, k string) { changes = append(changes, change{n, o, k}) })

	t.Run("single key", func(t *testing.T) {
		store.Reset(ctx, KeyTheme)

		assert.Equal(t, "auto", store.Theme())
		assert.Equal(t, "de", store.Language())
		assert.Equal(t, []change{{"auto", "dark", KeyTheme}}, changes)
		assert.Equal(t, []string{KeyLanguage}, backend.Keys())
	})

	t.Run("everything", func(t *testing.T) {
		store.ResetAll(ctx)

		assert.Empty(t, backend.Keys())
		assert.Equal(t, "en", store.Language())
		assert.False(t, store.Initialized())
		assert.False(t, store.Set(KeyTheme, "dark"), "sets are refused until Init")

		store.Init(ctx)
		assert.True(t, store.Set(KeyTheme, "dark"))
	})
}

func TestStore_Decode(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	require.NoError(t, backend.Save(ctx, KeyPluginSettings, []byte(`{"wordcount":{"wordsPerMinute":250}}`)))

	store := NewStore(backend, zap.NewNop(), nil)
	store.Init(ctx)

	var settings map[string]map[string]any
	require.NoError(t, store.Decode(KeyPluginSettings, &settings))
	assert.Equal(t, 250.0, settings["wordcount"]["wordsPerMinute"])

	var ids []string
	assert.Error(t, store.Decode("missing", &ids))
}

func TestStore_ComputedResolvedTheme(t *testing.T) {
	store, _ := newTestStore(t)
	subs := store.SetupComputedState()
	defer func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}()

	assert.Equal(t, "light", store.Get(KeyResolvedTheme))

	store.Set(KeySystemTheme, "dark")
	assert.Equal(t, "dark", store.Get(KeyResolvedTheme))

	store.Set(KeyTheme, "sepia")
	assert.Equal(t, "sepia", store.Get(KeyResolvedTheme))
}
