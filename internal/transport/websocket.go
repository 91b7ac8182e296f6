// Package transport provides the realtime chat socket the supervisor
// watches over.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/moachat/pushkit/internal/logger"
)

// MessageHandler receives raw frames from the socket read loop.
type MessageHandler func(payload []byte)

// WebSocketConnection is a realtime chat transport over a single websocket.
// It deliberately does not auto-reconnect: recovery policy belongs to the
// connection supervisor, which knows whether the app is foreground and
// whether a room needs rejoining.
type WebSocketConnection struct {
	serverURL string
	authToken string
	onMessage MessageHandler
	log       logger.Logger

	mu   sync.RWMutex
	conn *websocket.Conn
}

// NewWebSocketConnection creates an unconnected transport. onMessage may be
// nil when the caller only probes liveness.
func NewWebSocketConnection(serverURL, authToken string, onMessage MessageHandler, log logger.Logger) *WebSocketConnection {
	return &WebSocketConnection{
		serverURL: serverURL,
		authToken: authToken,
		onMessage: onMessage,
		log:       log,
	}
}

// Connected reports whether a live socket is attached.
func (c *WebSocketConnection) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Reconnect drops any existing socket and dials a fresh one. Safe to call
// on a never-connected transport.
func (c *WebSocketConnection) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	header := http.Header{}
	if c.authToken != "" {
		header.Set("Authorization", "Bearer "+c.authToken)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.serverURL, header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.serverURL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.log.Info("realtime socket connected", logger.String("url", c.serverURL))
	go c.readLoop(conn)
	return nil
}

// Send writes v as a JSON frame.
func (c *WebSocketConnection) Send(v any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("socket not connected")
	}
	if err := conn.WriteJSON(v); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Close shuts the socket down. The supervisor will not be told; callers
// stop the supervisor first on teardown.
func (c *WebSocketConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *WebSocketConnection) readLoop(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			// Detach only if this socket is still the current one; a
			// Reconnect may have swapped it already.
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			c.log.Debug("realtime socket closed", logger.Error(err))
			return
		}
		if c.onMessage != nil {
			c.onMessage(msg)
		}
	}
}

const (
	frameKindJoin  = "JOIN_ROOM"
	frameKindLeave = "LEAVE_ROOM"
)

// roomFrame is the join/leave control frame the chat server expects.
type roomFrame struct {
	Kind   string `json:"type"`
	RoomID string `json:"roomId"`
}

// ChatSession tracks room membership on top of a WebSocketConnection. The
// server forgets membership when the socket drops, so the session keeps the
// intended room locally and can re-enter it on demand.
type ChatSession struct {
	conn *WebSocketConnection

	mu   sync.RWMutex
	room string
}

// NewChatSession creates a session with no room attached.
func NewChatSession(conn *WebSocketConnection) *ChatSession {
	return &ChatSession{conn: conn}
}

// Room returns the room this session intends to be in, or "".
func (s *ChatSession) Room() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

// Join enters roomID and records it as the intended room.
func (s *ChatSession) Join(_ context.Context, roomID string) error {
	if err := s.conn.Send(roomFrame{Kind: frameKindJoin, RoomID: roomID}); err != nil {
		return err
	}
	s.mu.Lock()
	s.room = roomID
	s.mu.Unlock()
	return nil
}

// Rejoin re-enters roomID after a reconnect without touching local state.
func (s *ChatSession) Rejoin(_ context.Context, roomID string) error {
	return s.conn.Send(roomFrame{Kind: frameKindJoin, RoomID: roomID})
}

// Leave exits the current room on the server and clears local state.
func (s *ChatSession) Leave(_ context.Context) error {
	s.mu.Lock()
	room := s.room
	s.room = ""
	s.mu.Unlock()
	if room == "" {
		return nil
	}
	return s.conn.Send(roomFrame{Kind: frameKindLeave, RoomID: room})
}

// Detach forgets the room locally without telling the server. Used when a
// click routes the user to a different room: the user is switching, not
// exiting, and the navigation target will issue its own join.
func (s *ChatSession) Detach() {
	s.mu.Lock()
	s.room = ""
	s.mu.Unlock()
}
