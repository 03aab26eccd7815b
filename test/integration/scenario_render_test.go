package integration

import (
	"context"
	"testing"

	"mdviewer/internal/events"
	"mdviewer/internal/plugins/emoji"
	"mdviewer/internal/plugins/mermaid"
	"mdviewer/internal/plugins/wordcount"
	"mdviewer/internal/state"
	"mdviewer/internal/storage"
	"mdviewer/pkg/plugin"
	"mdviewer/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	diagram   = plugin.Token{Type: "code", Lang: "mermaid", Text: "graph TD"}
	paragraph = plugin.Token{Type: "paragraph", Text: "hello world again"}
	goCode    = plugin.Token{Type: "code", Lang: "go", Text: "package main"}
)

func TestRenderPipeline_AllBuiltins(t *testing.T) {
	env := setupTest(t, storage.NewMemory())
	defer env.Cleanup()

	processed, rendered := env.Render("Launch :rocket: now", diagram, paragraph, goCode)

	assert.Equal(t, "Launch 🚀 now", processed)
	assert.Contains(t, rendered, `class="mermaid"`)
	assert.Contains(t, rendered, `data-theme="default"`)
	assert.Contains(t, rendered, "<p>hello world again</p>")
	assert.Contains(t, rendered, "<p>package main</p>", "non-mermaid code falls back")

	inst, ok := env.Plugins.Instance(wordcount.ID)
	require.True(t, ok)
	stats := inst.(*wordcount.Plugin).Stats()
	assert.Equal(t, 7, stats.Words)
	assert.Equal(t, 1, stats.ReadingMinutes)

	counted := testutil.FilterEvents(env.Events().Events(), events.PluginEvent(wordcount.ID, wordcount.CountedEvent))
	require.Len(t, counted, 1)
	assert.Equal(t, stats, counted[0].Data)

	badge := env.Document.Query(".word-count-badge")
	require.NotNil(t, badge)
	assert.Contains(t, badge.Text(), "7 words")
}

func TestRenderPipeline_DisabledPluginsStopContributing(t *testing.T) {
	ctx := context.Background()
	env := setupTest(t, storage.NewMemory())
	defer env.Cleanup()

	require.True(t, env.Plugins.Disable(ctx, emoji.ID))
	require.True(t, env.Plugins.Disable(ctx, mermaid.ID))

	processed, rendered := env.Render("Launch :rocket: now", diagram)
	assert.Equal(t, "Launch :rocket: now", processed)
	assert.Equal(t, "<p>graph TD</p>", rendered)

	require.True(t, env.Plugins.Enable(ctx, mermaid.ID))
	_, rendered = env.Render("", diagram)
	assert.Contains(t, rendered, `class="mermaid"`)
}

func TestRenderPipeline_ThemeFollowsStore(t *testing.T) {
	env := setupTest(t, storage.NewMemory())
	defer env.Cleanup()

	env.Store.Set(state.KeyTheme, "dark")
	_, rendered := env.Render("", diagram)
	assert.Contains(t, rendered, `data-theme="dark"`)

	env.Store.Set(state.KeyTheme, "auto")
	env.Store.Set(state.KeySystemTheme, "light")
	_, rendered = env.Render("", diagram)
	assert.Contains(t, rendered, `data-theme="default"`)

	require.True(t, env.Plugins.SavePluginSettings(mermaid.ID, plugin.Settings{"theme": "forest"}))
	_, rendered = env.Render("", diagram)
	assert.Contains(t, rendered, `data-theme="forest"`)
}

func TestRenderPipeline_EmojiSetsFromSettings(t *testing.T) {
	env := setupTest(t, storage.NewMemory())
	defer env.Cleanup()

	require.True(t, env.Plugins.SavePluginSettings(emoji.ID, plugin.Settings{"enabledSets": "nature"}))

	processed, _ := env.Render(":rocket: :fire:")
	assert.Equal(t, ":rocket: 🔥", processed)

	changed := testutil.FindEventForPlugin(env.Events().Events(), events.PluginSettingsChanged, emoji.ID)
	require.NotNil(t, changed)
}
