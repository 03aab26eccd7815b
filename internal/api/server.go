package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"mdviewer/internal/events"
	"mdviewer/internal/extension"
	"mdviewer/internal/manager"
	"mdviewer/internal/state"
	"mdviewer/pkg/plugin"

	"go.uber.org/zap"
)

// Server provides the HTTP API the host UI uses to drive the plugin system.
type Server struct {
	plugins    *manager.Manager
	registry   *extension.Registry
	store      *state.Store
	bus        *events.Bus
	namespaces []string
	logger     *zap.Logger
	server     *http.Server
}

// NewServer creates a new API server. namespaces are the event namespaces
// streamed on /api/events.
func NewServer(
	plugins *manager.Manager,
	registry *extension.Registry,
	store *state.Store,
	bus *events.Bus,
	namespaces []string,
	logger *zap.Logger,
	port int,
) *Server {
	s := &Server{
		plugins:    plugins,
		registry:   registry,
		store:      store,
		bus:        bus,
		namespaces: namespaces,
		logger:     logger.Named("api"),
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleSitemap)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/plugins", s.handleListPlugins)
	mux.HandleFunc("GET /api/plugins/{id}", s.handleGetPlugin)
	mux.HandleFunc("POST /api/plugins/{id}/enable", s.handleTransition(s.plugins.Enable))
	mux.HandleFunc("POST /api/plugins/{id}/disable", s.handleTransition(s.plugins.Disable))
	mux.HandleFunc("POST /api/plugins/{id}/toggle", s.handleTransition(s.plugins.Toggle))
	mux.HandleFunc("DELETE /api/plugins/{id}", s.handleUninstall)
	mux.HandleFunc("GET /api/plugins/{id}/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/plugins/{id}/settings", s.handlePutSettings)
	mux.HandleFunc("GET /api/extensions", s.handleExtensions)
	mux.HandleFunc("GET /api/state", s.handleGetState)
	mux.HandleFunc("POST /api/toolbar/{id}/click", s.handleToolbarClick)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"initialized": s.store.Initialized(),
	})
}

func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.plugins.GetPluginList())
	s.logger.Debug("Plugin list served", zap.String("remote_addr", r.RemoteAddr))
}

func (s *Server) handleGetPlugin(w http.ResponseWriter, r *http.Request) {
	info, ok := s.plugins.Get(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, manager.ErrPluginNotFound.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

// handleTransition adapts Enable, Disable and Toggle. The response is the
// plugin's state after the call.
func (s *Server) handleTransition(op func(context.Context, string) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := s.plugins.Get(id); !ok {
			s.writeError(w, http.StatusNotFound, manager.ErrPluginNotFound.Error())
			return
		}

		ok := op(r.Context(), id)
		info, _ := s.plugins.Get(id)
		if !ok {
			s.writeJSON(w, http.StatusInternalServerError, TransitionResponse{
				Plugin: info,
				Error:  "transition failed",
			})
			return
		}
		s.writeJSON(w, http.StatusOK, TransitionResponse{Plugin: info})
	}
}

func (s *Server) handleUninstall(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	info, ok := s.plugins.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, manager.ErrPluginNotFound.Error())
		return
	}
	if info.BuiltIn {
		s.writeError(w, http.StatusForbidden, manager.ErrBuiltInPlugin.Error())
		return
	}
	if !s.plugins.Uninstall(r.Context(), id) {
		s.writeError(w, http.StatusInternalServerError, "uninstall failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	info, ok := s.plugins.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, manager.ErrPluginNotFound.Error())
		return
	}
	values, _ := s.plugins.GetPluginSettings(id)

	lang := r.URL.Query().Get("lang")
	if lang == "" {
		lang = s.store.Language()
	}
	s.writeJSON(w, http.StatusOK, SettingsResponse{
		PluginID: id,
		Language: lang,
		Fields:   schemaView(info.Settings, lang),
		Values:   values,
	})
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.plugins.Get(id); !ok {
		s.writeError(w, http.StatusNotFound, manager.ErrPluginNotFound.Error())
		return
	}

	var settings plugin.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid settings: %v", err))
		return
	}
	if settings == nil {
		settings = plugin.Settings{}
	}

	if !s.plugins.SavePluginSettings(id, settings) {
		s.writeError(w, http.StatusInternalServerError, "save failed")
		return
	}
	values, _ := s.plugins.GetPluginSettings(id)
	s.writeJSON(w, http.StatusOK, values)
}

func (s *Server) handleExtensions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.Snapshot())
}

// handleGetState returns every value currently held by the store
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.GetAllValues())
}

func (s *Server) handleToolbarClick(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	btn, ok := s.registry.ToolbarButton(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "toolbar button not found")
		return
	}
	if btn.Button.OnClick != nil {
		if err := clickSafely(btn.Button.OnClick); err != nil {
			s.logger.Error("Toolbar button failed",
				zap.String("button", id),
				zap.String("plugin", btn.PluginID),
				zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func clickSafely(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	fn()
	return nil
}

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

var endpoints = []Endpoint{
	{Path: "/health", Method: "GET", Description: "Health check"},
	{Path: "/api/plugins", Method: "GET", Description: "List registered plugins"},
	{Path: "/api/plugins/{id}", Method: "GET", Description: "One plugin"},
	{Path: "/api/plugins/{id}/enable", Method: "POST", Description: "Enable a plugin"},
	{Path: "/api/plugins/{id}/disable", Method: "POST", Description: "Disable a plugin"},
	{Path: "/api/plugins/{id}/toggle", Method: "POST", Description: "Toggle a plugin"},
	{Path: "/api/plugins/{id}", Method: "DELETE", Description: "Uninstall a non built-in plugin"},
	{Path: "/api/plugins/{id}/settings", Method: "GET", Description: "Settings schema and values"},
	{Path: "/api/plugins/{id}/settings", Method: "PUT", Description: "Replace stored settings"},
	{Path: "/api/extensions", Method: "GET", Description: "Registered markdown and UI extensions"},
	{Path: "/api/state", Method: "GET", Description: "Every value held by the store"},
	{Path: "/api/toolbar/{id}/click", Method: "POST", Description: "Press a toolbar button"},
	{Path: "/api/events", Method: "GET", Description: "WebSocket stream of plugin events"},
}

// handleSitemap lists the available endpoints as plain text.
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "mdviewer plugin API\n")
	fmt.Fprintf(w, "===================\n\n")
	for _, ep := range endpoints {
		fmt.Fprintf(w, "  %-7s %-28s %s\n", ep.Method, ep.Path, ep.Description)
	}
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
