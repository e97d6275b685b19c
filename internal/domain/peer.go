package domain

import (
	"encoding/json"
	"time"
)

// PeerState represents the state of a signaling handshake.
type PeerState string

const (
	PeerStatePending      PeerState = "pending"
	PeerStateConnecting   PeerState = "connecting"
	PeerStateConnected    PeerState = "connected"
	PeerStateDisconnected PeerState = "disconnected"
	PeerStateFailed       PeerState = "failed"
)

// PeerConnection tracks one endpoint's handshake: offer, answer and ICE
// candidates. SDP and ICE payloads are opaque blobs relayed without
// interpretation; media bytes never pass through this service.
type PeerConnection struct {
	PeerID      string            `json:"peer_id"`
	UserID      string            `json:"user_id"`
	SessionID   string            `json:"session_id"`
	State       PeerState         `json:"state"`
	Offer       json.RawMessage   `json:"offer,omitempty"`
	Answer      json.RawMessage   `json:"answer,omitempty"`
	Candidates  []json.RawMessage `json:"candidates,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	ConnectedAt *time.Time        `json:"connected_at,omitempty"`
}

// Clone returns a copy safe to hand to callers.
func (p *PeerConnection) Clone() *PeerConnection {
	cp := *p
	cp.Candidates = make([]json.RawMessage, len(p.Candidates))
	copy(cp.Candidates, p.Candidates)
	return &cp
}

// PeerStats aggregates connection-state counts for one session.
type PeerStats struct {
	SessionID  string `json:"session_id"`
	Total      int    `json:"total"`
	Pending    int    `json:"pending"`
	Connecting int    `json:"connecting"`
	Connected  int    `json:"connected"`
	Failed     int    `json:"failed"`
}
