package api

import (
	"encoding/json"
	"net/http"
	"time"

	"mdviewer/internal/events"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	streamBuffer = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamMessage is one bus event forwarded to a WebSocket client.
type StreamMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// handleEvents upgrades the connection and forwards every event published
// in the configured namespaces until the client goes away. Events that
// arrive while the client's buffer is full are dropped.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := s.logger.With(zap.String("remote_addr", r.RemoteAddr))
	queue := make(chan StreamMessage, streamBuffer)

	var subs []*events.Subscription
	for _, ns := range s.namespaces {
		subs = append(subs, s.bus.Subscribe(ns+events.Separator+events.Wildcard, func(payload any) {
			we, ok := payload.(events.WildcardEvent)
			if !ok {
				return
			}
			data, err := json.Marshal(we.Data)
			if err != nil {
				logger.Debug("Event payload not serializable",
					zap.String("event", we.Event),
					zap.Error(err))
				data = []byte("null")
			}
			select {
			case queue <- StreamMessage{Event: we.Event, Data: data}:
			default:
				logger.Warn("Event stream client too slow, dropping event",
					zap.String("event", we.Event))
			}
		}))
	}
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()

	logger.Info("Event stream client connected", zap.Strings("namespaces", s.namespaces))

	// The read loop only watches for the close frame and pongs.
	closed := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-queue:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug("Event stream write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			logger.Info("Event stream client disconnected")
			return
		case <-r.Context().Done():
			return
		}
	}
}
