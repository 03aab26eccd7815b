// Package testutil provides testing utilities for mdviewer plugins.
// This file provides a TestEnv that runs the complete plugin host in
// process, so plugin authors can test a plugin against the real manager,
// store and registries.
package testutil

import (
	"context"
	"fmt"
	"html"
	"net/http/httptest"
	"time"

	"mdviewer/internal/api"
	"mdviewer/internal/capability"
	"mdviewer/internal/clock"
	"mdviewer/internal/dom"
	"mdviewer/internal/events"
	"mdviewer/internal/extension"
	"mdviewer/internal/manager"
	"mdviewer/internal/state"
	"mdviewer/internal/storage"
	"mdviewer/pkg/plugin"

	"go.uber.org/zap"
)

// Epoch is the time the mock clock of a new TestEnv starts at.
var Epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// TestEnv is a fully wired plugin host.
type TestEnv struct {
	Backend  storage.Storage
	Bus      *events.Bus
	Store    *state.Store
	Registry *extension.Registry
	Document *dom.Document
	Clock    *clock.Mock
	Plugins  *manager.Manager
	Logger   *zap.Logger

	builtins *plugin.BuiltinRegistry
	recorder *EventRecorder
	computed []state.Subscription
	server   *httptest.Server
}

// NewTestEnv wires a host on backend. builtins are the bundled plugins
// Start loads; nil means none. Every event in the host namespaces is
// recorded from the start.
//
// Example usage:
//
//	env := testutil.NewTestEnv(storage.NewMemory(), builtins)
//	defer env.Cleanup()
//	if err := env.Start(ctx); err != nil {
//	    t.Fatal(err)
//	}
func NewTestEnv(backend storage.Storage, builtins *plugin.BuiltinRegistry) *TestEnv {
	logger, _ := zap.NewDevelopment()
	if builtins == nil {
		builtins = plugin.NewBuiltinRegistry()
	}

	e := &TestEnv{
		Backend:  backend,
		Bus:      events.NewBus(logger),
		Registry: extension.NewRegistry(logger),
		Document: dom.NewDocument(logger),
		Clock:    clock.NewMock(Epoch),
		Logger:   logger,
		builtins: builtins,
	}
	e.Store = state.NewStore(backend, logger, nil)
	e.recorder = NewEventRecorder(e.Bus, e.Clock, HostNamespaces...)

	factory := capability.NewFactory(e.Bus, e.Store, e.Registry, e.Document, e.Clock, logger)
	e.Plugins = manager.NewManager(factory, e.Bus, e.Store, builtins, logger)
	return e
}

// Start loads the store and bootstraps the built-in plugins, the same way
// the host binary does.
func (e *TestEnv) Start(ctx context.Context) error {
	e.Store.Init(ctx)
	e.computed = e.Store.SetupComputedState()
	if err := e.Plugins.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize plugins: %w", err)
	}
	return nil
}

// Events returns the recorder attached to the bus.
func (e *TestEnv) Events() *EventRecorder {
	return e.recorder
}

// Restart shuts this host down and starts a new one on the same backend
// and built-ins, as happens when the application is relaunched.
func (e *TestEnv) Restart(ctx context.Context) (*TestEnv, error) {
	e.stop(ctx)
	next := NewTestEnv(e.Backend, e.builtins)
	if err := next.Start(ctx); err != nil {
		return nil, err
	}
	return next, nil
}

// ServeAPI starts the HTTP API on a local port and returns its base URL.
// namespaces are the streamed event namespaces; none means HostNamespaces.
func (e *TestEnv) ServeAPI(namespaces ...string) string {
	if e.server != nil {
		return e.server.URL
	}
	if len(namespaces) == 0 {
		namespaces = HostNamespaces
	}
	srv := api.NewServer(e.Plugins, e.Registry, e.Store, e.Bus, namespaces, e.Logger, 0)
	e.server = httptest.NewServer(srv.Handler())
	return e.server.URL
}

// Render runs a document through the registered render pipeline: the
// before-render hooks on src, then each block through its renderer, then
// the after-render hooks on the joined HTML. Blocks without a renderer are
// emitted as escaped paragraphs.
func (e *TestEnv) Render(src string, blocks ...plugin.Token) (processed, rendered string) {
	processed = e.Registry.RunBeforeRender(src)

	out := ""
	for _, tok := range blocks {
		if block, ok := e.Registry.RenderToken(tok); ok {
			out += block
			continue
		}
		out += "<p>" + html.EscapeString(tok.Text) + "</p>"
	}
	return processed, e.Registry.RunAfterRender(out)
}

// Cleanup stops all components in the correct order.
// Always call this in a defer after creating the TestEnv.
func (e *TestEnv) Cleanup() {
	e.stop(context.Background())
}

func (e *TestEnv) stop(ctx context.Context) {
	if e.server != nil {
		e.server.Close()
		e.server = nil
	}
	e.Plugins.Shutdown(ctx)
	for _, sub := range e.computed {
		sub.Unsubscribe()
	}
	e.computed = nil
	e.recorder.Stop()
}
