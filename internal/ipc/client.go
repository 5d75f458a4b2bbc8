// Package ipc follows the sync events a running daemon publishes on its
// websocket endpoint.
package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ramonehamilton/matchup-companion/internal/daemon"
)

// AnyEvent registers a handler for every event type.
const AnyEvent = "*"

// DefaultReconnectDelay is the wait between connection attempts.
const DefaultReconnectDelay = 5 * time.Second

// Event is one message received from the daemon.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SyncEvent decodes the payload of a scheduler event.
func (e Event) SyncEvent() (daemon.SyncEvent, error) {
	var se daemon.SyncEvent
	if err := json.Unmarshal(e.Data, &se); err != nil {
		return se, fmt.Errorf("decode %s event: %w", e.Type, err)
	}
	return se, nil
}

// EventHandler handles one event. Handlers run on the reading goroutine in
// arrival order.
type EventHandler func(Event)

// Client is a reconnecting websocket client for the daemon's event stream.
type Client struct {
	url            string
	logger         *slog.Logger
	reconnectDelay time.Duration

	handlersMu sync.RWMutex
	handlers   map[string][]EventHandler

	connected atomic.Bool
}

// NewClient creates a client for url. A nil logger falls back to slog.Default().
func NewClient(url string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:            url,
		logger:         logger,
		reconnectDelay: DefaultReconnectDelay,
		handlers:       make(map[string][]EventHandler),
	}
}

// URLFor returns the websocket URL of a daemon listening on addr.
func URLFor(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "ws://" + addr + "/ws"
}

// SetReconnectDelay changes the wait between connection attempts.
func (c *Client) SetReconnectDelay(d time.Duration) {
	c.reconnectDelay = d
}

// On registers an event handler for a specific event type, or AnyEvent.
func (c *Client) On(eventType string, handler EventHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[eventType] = append(c.handlers[eventType], handler)
}

// IsConnected returns whether the client is currently connected.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// URL returns the WebSocket URL.
func (c *Client) URL() string {
	return c.url
}

// Run connects and dispatches events until ctx is done, reconnecting after
// every dropped or refused connection.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.session(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("daemon connection lost", "url", c.url, "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.reconnectDelay):
			c.logger.Debug("reconnecting to daemon", "url", c.url)
		}
	}
}

// session runs one connection until it fails or ctx is done.
func (c *Client) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	c.connected.Store(true)
	defer c.connected.Store(false)
	c.logger.Info("connected to daemon", "url", c.url)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer func() {
		stop()
		_ = conn.Close()
	}()

	for {
		var event Event
		if err := conn.ReadJSON(&event); err != nil {
			return err
		}
		c.dispatch(event)
	}
}

// dispatch calls the handlers for the event's type, then the catch-all ones.
func (c *Client) dispatch(event Event) {
	c.handlersMu.RLock()
	handlers := append(append([]EventHandler(nil), c.handlers[event.Type]...), c.handlers[AnyEvent]...)
	c.handlersMu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}
