package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/streamnest/live-session-service/internal/config"
	pkglog "github.com/streamnest/live-session-service/pkg/log"
)

// ConnState is the per-connection state: the gateway-asserted identity
// and the session the connection is currently joined to.
type ConnState struct {
	UserID       string
	Username     string
	SessionID    string
	PeerID       string
	LastActiveAt time.Time
	mu           sync.RWMutex
}

// Identify sets the asserted identity for the connection.
func (s *ConnState) Identify(userID, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UserID = userID
	s.Username = username
	s.LastActiveAt = time.Now()
}

// Identity returns the asserted user id and name.
func (s *ConnState) Identity() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.UserID, s.Username
}

// JoinSession records the session this connection is joined to.
func (s *ConnState) JoinSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SessionID = sessionID
	s.LastActiveAt = time.Now()
}

// LeaveSession clears the current session.
func (s *ConnState) LeaveSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SessionID = ""
	s.PeerID = ""
	s.LastActiveAt = time.Now()
}

// CurrentSession returns the session id the connection is joined to.
func (s *ConnState) CurrentSession() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.SessionID
}

// SetPeer records the connection's active handshake id.
func (s *ConnState) SetPeer(peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PeerID = peerID
}

// CurrentPeer returns the connection's active handshake id.
func (s *ConnState) CurrentPeer() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.PeerID
}

// UpdateActivity updates the last active timestamp.
func (s *ConnState) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
}

// DisconnectHandler is called when a client disconnects.
type DisconnectHandler func(*Client)

// Client represents a connected WebSocket client.
type Client struct {
	ID                string
	Hub               *Hub
	Conn              *websocket.Conn
	Send              chan []byte
	State             *ConnState
	config            config.WebSocketConfig
	disconnectHandler DisconnectHandler
}

// NewClient creates a client bound to a hub and connection.
func NewClient(id string, hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	return &Client{
		ID:     id,
		Hub:    hub,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		State:  &ConnState{LastActiveAt: time.Now()},
		config: cfg,
	}
}

// SetDisconnectHandler sets the handler to be called on disconnect.
func (c *Client) SetDisconnectHandler(handler DisconnectHandler) {
	c.disconnectHandler = handler
}

// ReadPump pumps messages from the WebSocket connection to the handler.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		if c.disconnectHandler != nil {
			c.disconnectHandler(c)
		}
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := pkglog.L()
				l.Error().Err(err).Msg("websocket error")
			}
			break
		}

		c.State.UpdateActivity()
		handler(c, message)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage sends a message to the client.
func (c *Client) SendMessage(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case c.Send <- data:
	default:
		return nil
	}
	return nil
}
