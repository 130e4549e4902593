package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is a push notification from the backend event stream.
type Event struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id,omitempty"`
	AnalysisID string `json:"analysis_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Event types pushed by the backend.
const (
	EventSessionUpdated      = "session_updated"
	EventSessionDeleted      = "session_deleted"
	EventAnalysisInvalidated = "analysis_invalidated"
	EventPing                = "ping"
)

// Subscribe opens the backend event stream and invokes onEvent for each
// message until ctx is canceled or the stream closes. Return an error from
// onEvent to abort.
func (c *Client) Subscribe(ctx context.Context, onEvent func(Event) error) error {
	// Convert HTTP endpoint to WebSocket endpoint
	wsEndpoint := c.baseURL + "/events"
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}
	defer conn.Close()

	// Track connection state for proper cleanup
	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	// Handle context cancellation in a separate goroutine
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var event Event
		if err := conn.ReadJSON(&event); err != nil {
			// Check if this was due to context cancellation
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}

		if event.Type == EventPing {
			// Ignore keep-alive messages
			continue
		}

		if err := onEvent(event); err != nil {
			return err
		}
	}
}
