package hub

import (
	"encoding/json"
	"sync"

	pkglog "github.com/streamnest/live-session-service/pkg/log"
)

// Hub manages all WebSocket connections and their session membership.
type Hub struct {
	clients    map[string]*Client
	sessions   map[string]map[string]*Client // sessionID -> clientID -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *SessionMessage
	mu         sync.RWMutex
}

// SessionMessage is a message to be broadcast to a session's clients.
type SessionMessage struct {
	SessionID string
	Message   []byte
	Exclude   string // Client ID to exclude from broadcast
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		sessions:   make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *SessionMessage, 256),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	l := pkglog.L()
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			l.Info().Str(pkglog.FieldClientID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for sessionID, clients := range h.sessions {
					delete(clients, client.ID)
					if len(clients) == 0 {
						delete(h.sessions, sessionID)
					}
				}
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()
			l.Info().Str(pkglog.FieldClientID, client.ID).Msg("client unregistered")

		case msg := <-h.broadcast:
			h.mu.RLock()
			if clients, ok := h.sessions[msg.SessionID]; ok {
				for clientID, client := range clients {
					if clientID == msg.Exclude {
						continue
					}
					select {
					case client.Send <- msg.Message:
					default:
						// Client's send buffer is full
						go h.removeClient(client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// JoinSession adds a client to a session's broadcast group.
func (h *Hub) JoinSession(client *Client, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[sessionID]; !ok {
		h.sessions[sessionID] = make(map[string]*Client)
	}
	h.sessions[sessionID][client.ID] = client
	l := pkglog.L()
	l.Info().Str(pkglog.FieldClientID, client.ID).Str(pkglog.FieldSessionID, sessionID).Msg("client joined session")
}

// LeaveSession removes a client from a session's broadcast group.
func (h *Hub) LeaveSession(client *Client, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.sessions[sessionID]; ok {
		delete(clients, client.ID)
		if len(clients) == 0 {
			delete(h.sessions, sessionID)
		}
	}
	l := pkglog.L()
	l.Info().Str(pkglog.FieldClientID, client.ID).Str(pkglog.FieldSessionID, sessionID).Msg("client left session")
}

// BroadcastToSession sends a message to all clients joined to a session.
func (h *Hub) BroadcastToSession(sessionID string, message interface{}, exclude string) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.broadcast <- &SessionMessage{
		SessionID: sessionID,
		Message:   data,
		Exclude:   exclude,
	}
	return nil
}

// SendToUser sends a message to every connection asserting the given
// user id within a session. Used for targeted signaling relay.
func (h *Hub) SendToUser(sessionID, userID string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.sessions[sessionID] {
		if id, _ := client.State.Identity(); id != userID {
			continue
		}
		select {
		case client.Send <- data:
		default:
			go h.removeClient(client)
		}
	}
	return nil
}

// SendToClient sends a message to a specific client.
func (h *Hub) SendToClient(clientID string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()

	if !ok {
		return nil
	}

	select {
	case client.Send <- data:
	default:
		go h.removeClient(client)
	}
	return nil
}

// SessionClientCount returns the number of connections in a session group.
func (h *Hub) SessionClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

func (h *Hub) removeClient(client *Client) {
	h.unregister <- client
}
