package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streamnest/live-session-service/internal/domain"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionEnded      = errors.New("session has ended")
	ErrSessionFull       = errors.New("session is full")
	ErrAlreadyJoined     = errors.New("user already joined this session")
	ErrHostRoleReserved  = errors.New("host role is assigned at session creation")
	ErrInvalidCapacity   = errors.New("max participants must be at least 2")
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrInvalidAmount     = errors.New("amount must be non-negative")
)

// nextStates holds the legal forward transitions of the session
// lifecycle. Any state may additionally jump straight to ended.
var nextStates = map[domain.SessionState]domain.SessionState{
	domain.SessionStatePending:  domain.SessionStateStarting,
	domain.SessionStateStarting: domain.SessionStateLive,
	domain.SessionStateLive:     domain.SessionStateEnding,
	domain.SessionStateEnding:   domain.SessionStateEnded,
}

// EvictHook is called after an ended session is garbage-collected from
// the registry, so dependent registries can release per-session state.
type EvictHook func(sessionID string)

// SessionRegistry owns the canonical room records. All state is
// in-process; a restart loses active sessions, which is acceptable for
// inherently transient rooms.
type SessionRegistry struct {
	sessions  map[string]*domain.Session
	userIndex map[string]string // userID -> sessionID
	retention time.Duration
	onEvict   EvictHook
	mu        sync.RWMutex
}

// NewSessionRegistry creates a session registry. Ended sessions are kept
// for the retention window so late stat readers still succeed, then
// removed from the active map.
func NewSessionRegistry(retention time.Duration) *SessionRegistry {
	return &SessionRegistry{
		sessions:  make(map[string]*domain.Session),
		userIndex: make(map[string]string),
		retention: retention,
	}
}

// SetEvictHook registers the eviction callback. Call before serving traffic.
func (r *SessionRegistry) SetEvictHook(hook EvictHook) {
	r.onEvict = hook
}

// CreateSession allocates a new session in state pending with the host
// auto-enrolled as its sole host participant. The host consumes one slot.
func (r *SessionRegistry) CreateSession(hostID, hostUsername string, req *domain.CreateSessionRequest) (*domain.Session, error) {
	if req.MaxParticipants < 2 {
		return nil, ErrInvalidCapacity
	}

	mediaType := req.MediaType
	if mediaType == "" {
		mediaType = domain.MediaTypeVideo
	}
	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	now := time.Now().UTC()
	session := &domain.Session{
		ID:              uuid.New().String(),
		HostID:          hostID,
		HostUsername:    hostUsername,
		Title:           req.Title,
		Description:     req.Description,
		MediaType:       mediaType,
		IsPublic:        isPublic,
		State:           domain.SessionStatePending,
		MaxParticipants: req.MaxParticipants,
		Participants: map[string]*domain.Participant{
			hostID: {
				UserID:   hostID,
				Username: hostUsername,
				Role:     domain.RoleHost,
				JoinedAt: now,
			},
		},
		CreatedAt: now,
	}

	r.mu.Lock()
	r.sessions[session.ID] = session
	r.userIndex[hostID] = session.ID
	r.mu.Unlock()

	return session.Clone(), nil
}

// AddParticipant enrolls a user. The guest-count bound check and the
// insert are a single critical section, so two concurrent joins can
// never both squeeze past the bound.
func (r *SessionRegistry) AddParticipant(sessionID, userID, username string, role domain.ParticipantRole) error {
	if role == domain.RoleHost {
		return ErrHostRoleReserved
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if session.Ended() {
		return ErrSessionEnded
	}
	if _, ok := session.Participants[userID]; ok {
		return ErrAlreadyJoined
	}
	if role == domain.RoleGuest && session.GuestCount() >= session.MaxParticipants-1 {
		return ErrSessionFull
	}

	session.Participants[userID] = &domain.Participant{
		UserID:   userID,
		Username: username,
		Role:     role,
		JoinedAt: time.Now().UTC(),
	}
	if role == domain.RoleViewer {
		session.ViewerCount++
	}
	r.userIndex[userID] = sessionID

	return nil
}

// RemoveParticipant detaches a user from the session. Removing the host
// always terminates the session; there is no host migration. The
// returned flag reports whether this call ended the session.
func (r *SessionRegistry) RemoveParticipant(sessionID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return false, ErrSessionNotFound
	}
	participant, ok := session.Participants[userID]
	if !ok {
		return false, nil
	}

	delete(session.Participants, userID)
	if participant.Role == domain.RoleViewer && session.ViewerCount > 0 {
		session.ViewerCount--
	}
	if r.userIndex[userID] == sessionID {
		delete(r.userIndex, userID)
	}

	if participant.Role == domain.RoleHost && !session.Ended() {
		r.endLocked(session)
		return true, nil
	}
	return false, nil
}

// SetParticipantPeer records or clears the participant's active
// handshake reference. Unknown participants are ignored: the handshake
// may outlive a departure by a moment.
func (r *SessionRegistry) SetParticipantPeer(sessionID, userID, peerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if participant, ok := session.Participants[userID]; ok {
		participant.PeerID = peerID
	}
	return nil
}

// SetState applies a lifecycle transition. Setting the current state
// again is a no-op; setting ended routes through the teardown path.
// Authorization of the caller is the integration layer's contract.
func (r *SessionRegistry) SetState(sessionID string, state domain.SessionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if session.State == state {
		return nil
	}
	if session.Ended() {
		return ErrSessionEnded
	}

	if state == domain.SessionStateEnded {
		r.endLocked(session)
		return nil
	}
	if nextStates[session.State] != state {
		return ErrInvalidTransition
	}

	session.State = state
	if state == domain.SessionStateLive && session.WentLiveAt == nil {
		now := time.Now().UTC()
		session.WentLiveAt = &now
	}
	return nil
}

// AddGiftRevenue monotonically increases accumulated gift revenue, in
// minor currency units.
func (r *SessionRegistry) AddGiftRevenue(sessionID string, amount int64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if session.Ended() {
		return ErrSessionEnded
	}
	session.GiftRevenue += amount
	return nil
}

// GetSession returns a copy of the session.
func (r *SessionRegistry) GetSession(sessionID string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session.Clone(), nil
}

// GetUserSession returns the session a user is currently enrolled in.
func (r *SessionRegistry) GetUserSession(userID string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessionID, ok := r.userIndex[userID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session.Clone(), nil
}

// GetPublicSessions returns a snapshot of sessions that are public and live.
func (r *SessionRegistry) GetPublicSessions() []*domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Session
	for _, session := range r.sessions {
		if session.IsPublic && session.State == domain.SessionStateLive {
			result = append(result, session.Clone())
		}
	}
	return result
}

// CloseSession forces the session to ended and returns its final
// telemetry. Idempotent: a second close returns the record with
// ErrSessionEnded so callers can tell they were not the first.
func (r *SessionRegistry) CloseSession(sessionID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if session.Ended() {
		return session.Clone(), ErrSessionEnded
	}

	r.endLocked(session)
	return session.Clone(), nil
}

// endLocked stamps the end time, detaches all participants from the
// reverse index, and schedules deferred removal from the active map.
// Callers must hold the write lock and ensure the session has not
// already ended, so the GC timer is armed exactly once.
func (r *SessionRegistry) endLocked(session *domain.Session) {
	now := time.Now().UTC()
	session.State = domain.SessionStateEnded
	session.EndedAt = &now

	for userID := range session.Participants {
		if r.userIndex[userID] == session.ID {
			delete(r.userIndex, userID)
		}
	}

	sessionID := session.ID
	time.AfterFunc(r.retention, func() {
		r.mu.Lock()
		delete(r.sessions, sessionID)
		r.mu.Unlock()
		if r.onEvict != nil {
			r.onEvict(sessionID)
		}
	})
}

// Count returns the number of sessions currently tracked, ended but
// not yet evicted included.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
