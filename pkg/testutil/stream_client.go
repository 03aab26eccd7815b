package testutil

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"mdviewer/internal/api"

	"github.com/gorilla/websocket"
)

// StreamClient is a WebSocket client of the /api/events stream that keeps
// every message it receives.
type StreamClient struct {
	conn *websocket.Conn
	done chan struct{}

	mu       sync.Mutex
	messages []api.StreamMessage
	notify   chan struct{}
}

// DialStream connects to the event stream of the API at baseURL.
func DialStream(baseURL string) (*StreamClient, error) {
	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial event stream: %w", err)
	}

	c := &StreamClient{
		conn:   conn,
		done:   make(chan struct{}),
		notify: make(chan struct{}, 1),
	}
	go c.readLoop()
	return c, nil
}

func (c *StreamClient) readLoop() {
	defer close(c.done)
	for {
		var msg api.StreamMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		c.mu.Lock()
		c.messages = append(c.messages, msg)
		c.mu.Unlock()

		select {
		case c.notify <- struct{}{}:
		default:
		}
	}
}

// Messages returns a copy of the received messages.
func (c *StreamClient) Messages() []api.StreamMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]api.StreamMessage(nil), c.messages...)
}

// WaitFor blocks until a message for event has arrived or timeout passes.
func (c *StreamClient) WaitFor(event string, timeout time.Duration) (api.StreamMessage, bool) {
	deadline := time.After(timeout)
	for {
		for _, msg := range c.Messages() {
			if msg.Event == event {
				return msg, true
			}
		}
		select {
		case <-c.notify:
		case <-c.done:
			return api.StreamMessage{}, false
		case <-deadline:
			return api.StreamMessage{}, false
		}
	}
}

// Close disconnects and waits for the read loop to finish.
func (c *StreamClient) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}
