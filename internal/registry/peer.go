package registry

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/streamnest/live-session-service/internal/domain"
)

var (
	ErrPeerNotFound   = errors.New("peer connection not found")
	ErrPeerExists     = errors.New("peer connection already exists")
	ErrPeerTerminated = errors.New("peer connection already terminated")
)

// PeerRegistry tracks one handshake record per connecting endpoint.
// Signaling state is transport scaffolding, not durable history: closed
// connections are deleted outright, and a fresh handshake requires a
// new peer id.
type PeerRegistry struct {
	peers        map[string]*domain.PeerConnection
	sessionPeers map[string]map[string]struct{} // sessionID -> peerIDs
	mu           sync.RWMutex
}

// NewPeerRegistry creates a peer signaling registry.
func NewPeerRegistry() *PeerRegistry {
	return &PeerRegistry{
		peers:        make(map[string]*domain.PeerConnection),
		sessionPeers: make(map[string]map[string]struct{}),
	}
}

// CreatePeerConnection registers a handshake record in state pending.
func (r *PeerRegistry) CreatePeerConnection(peerID, userID, sessionID string) (*domain.PeerConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[peerID]; ok {
		return nil, ErrPeerExists
	}

	peer := &domain.PeerConnection{
		PeerID:    peerID,
		UserID:    userID,
		SessionID: sessionID,
		State:     domain.PeerStatePending,
		CreatedAt: time.Now().UTC(),
	}
	r.peers[peerID] = peer

	if _, ok := r.sessionPeers[sessionID]; !ok {
		r.sessionPeers[sessionID] = make(map[string]struct{})
	}
	r.sessionPeers[sessionID][peerID] = struct{}{}

	return peer.Clone(), nil
}

// SetOffer stores the SDP offer and moves the handshake to connecting.
func (r *PeerRegistry) SetOffer(peerID string, offer json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, ok := r.peers[peerID]
	if !ok {
		return ErrPeerNotFound
	}
	if terminated(peer.State) {
		return ErrPeerTerminated
	}
	peer.Offer = offer
	peer.State = domain.PeerStateConnecting
	return nil
}

// SetAnswer stores the SDP answer, moves the handshake to connected and
// stamps the connect time.
func (r *PeerRegistry) SetAnswer(peerID string, answer json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, ok := r.peers[peerID]
	if !ok {
		return ErrPeerNotFound
	}
	if terminated(peer.State) {
		return ErrPeerTerminated
	}
	now := time.Now().UTC()
	peer.Answer = answer
	peer.State = domain.PeerStateConnected
	peer.ConnectedAt = &now
	return nil
}

// AddICECandidate appends a candidate in arrival order. Duplicates are
// tolerated, consistent with ICE semantics.
func (r *PeerRegistry) AddICECandidate(peerID string, candidate json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, ok := r.peers[peerID]
	if !ok {
		return ErrPeerNotFound
	}
	if terminated(peer.State) {
		return ErrPeerTerminated
	}
	peer.Candidates = append(peer.Candidates, candidate)
	return nil
}

// FailPeerConnection marks the handshake failed. The record is kept
// until closed so stats can report the failure.
func (r *PeerRegistry) FailPeerConnection(peerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, ok := r.peers[peerID]
	if !ok {
		return ErrPeerNotFound
	}
	if terminated(peer.State) {
		return ErrPeerTerminated
	}
	peer.State = domain.PeerStateFailed
	return nil
}

// ClosePeerConnection marks the handshake disconnected and deletes the
// record along with its session-index entry.
func (r *PeerRegistry) ClosePeerConnection(peerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, ok := r.peers[peerID]
	if !ok {
		return ErrPeerNotFound
	}
	r.deleteLocked(peer)
	return nil
}

// ClosePeersForSession tears down every handshake belonging to a session
// and returns the count closed. Called when the owning session ends so
// in-flight connections are not orphaned.
func (r *PeerRegistry) ClosePeersForSession(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	closed := 0
	for peerID := range r.sessionPeers[sessionID] {
		if peer, ok := r.peers[peerID]; ok {
			r.deleteLocked(peer)
			closed++
		}
	}
	return closed
}

func (r *PeerRegistry) deleteLocked(peer *domain.PeerConnection) {
	peer.State = domain.PeerStateDisconnected
	delete(r.peers, peer.PeerID)
	if peers, ok := r.sessionPeers[peer.SessionID]; ok {
		delete(peers, peer.PeerID)
		if len(peers) == 0 {
			delete(r.sessionPeers, peer.SessionID)
		}
	}
}

// GetPeerConnection returns a copy of the handshake record.
func (r *PeerRegistry) GetPeerConnection(peerID string) (*domain.PeerConnection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peer, ok := r.peers[peerID]
	if !ok {
		return nil, ErrPeerNotFound
	}
	return peer.Clone(), nil
}

// GetSessionPeers returns copies of every handshake in a session.
func (r *PeerRegistry) GetSessionPeers(sessionID string) []*domain.PeerConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.PeerConnection
	for peerID := range r.sessionPeers[sessionID] {
		if peer, ok := r.peers[peerID]; ok {
			result = append(result, peer.Clone())
		}
	}
	return result
}

// GetSessionStats returns connection-state counts for a session.
func (r *PeerRegistry) GetSessionStats(sessionID string) domain.PeerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := domain.PeerStats{SessionID: sessionID}
	for peerID := range r.sessionPeers[sessionID] {
		peer, ok := r.peers[peerID]
		if !ok {
			continue
		}
		stats.Total++
		switch peer.State {
		case domain.PeerStatePending:
			stats.Pending++
		case domain.PeerStateConnecting:
			stats.Connecting++
		case domain.PeerStateConnected:
			stats.Connected++
		case domain.PeerStateFailed:
			stats.Failed++
		}
	}
	return stats
}

func terminated(state domain.PeerState) bool {
	return state == domain.PeerStateDisconnected || state == domain.PeerStateFailed
}
