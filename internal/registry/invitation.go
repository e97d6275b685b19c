package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streamnest/live-session-service/internal/domain"
)

var (
	ErrInvitationNotFound  = errors.New("invitation not found")
	ErrInvitationExpired   = errors.New("invitation has expired")
	ErrInvitationResolved  = errors.New("invitation already resolved")
	ErrInvitationNotSender = errors.New("only the sender can cancel an invitation")
)

// InvitationRegistry tracks time-bounded requests to join a session as a
// privileged participant. Resolved invitations are retained for audit.
//
// Expiry is dual-path on purpose: every read and response applies lazy
// expiry against the clock, and a periodic sweep flips stale pending
// records in bulk. The lazy path is the correctness guarantee; the sweep
// only bounds how long stale records stay nominally pending.
type InvitationRegistry struct {
	invitations map[string]*domain.Invitation
	defaultTTL  time.Duration
	mu          sync.RWMutex
}

// NewInvitationRegistry creates an invitation registry with the given
// default TTL for invitations sent without an explicit one.
func NewInvitationRegistry(defaultTTL time.Duration) *InvitationRegistry {
	return &InvitationRegistry{
		invitations: make(map[string]*domain.Invitation),
		defaultTTL:  defaultTTL,
	}
}

// Send creates a pending invitation expiring at now + ttl. A ttl of zero
// or less selects the configured default.
func (r *InvitationRegistry) Send(sessionID, fromID, fromName, toID, toName, message string, ttl time.Duration) *domain.Invitation {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}

	now := time.Now().UTC()
	inv := &domain.Invitation{
		ID:           uuid.New().String(),
		SessionID:    sessionID,
		FromUserID:   fromID,
		FromUsername: fromName,
		ToUserID:     toID,
		ToUsername:   toName,
		Message:      message,
		State:        domain.InvitationPending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}

	r.mu.Lock()
	r.invitations[inv.ID] = inv
	r.mu.Unlock()

	cp := *inv
	return &cp
}

// expireLocked flips a pending invitation past its expiry to expired.
// Returns true if the invitation is (now) expired.
func expireLocked(inv *domain.Invitation, now time.Time) bool {
	if inv.State == domain.InvitationPending && now.After(inv.ExpiresAt) {
		inv.State = domain.InvitationExpired
	}
	return inv.State == domain.InvitationExpired
}

// Accept resolves a pending invitation to accepted.
func (r *InvitationRegistry) Accept(id string) (*domain.Invitation, error) {
	return r.resolve(id, domain.InvitationAccepted, "")
}

// Reject resolves a pending invitation to rejected.
func (r *InvitationRegistry) Reject(id string) (*domain.Invitation, error) {
	return r.resolve(id, domain.InvitationRejected, "")
}

// Cancel is the sender-side withdrawal, legal only while pending.
func (r *InvitationRegistry) Cancel(id, senderID string) (*domain.Invitation, error) {
	return r.resolve(id, domain.InvitationCancelled, senderID)
}

func (r *InvitationRegistry) resolve(id string, target domain.InvitationState, senderID string) (*domain.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.invitations[id]
	if !ok {
		return nil, ErrInvitationNotFound
	}
	if senderID != "" && inv.FromUserID != senderID {
		return nil, ErrInvitationNotSender
	}
	if expireLocked(inv, time.Now().UTC()) {
		return nil, ErrInvitationExpired
	}
	if inv.State.Terminal() {
		return nil, ErrInvitationResolved
	}

	now := time.Now().UTC()
	inv.State = target
	inv.RespondedAt = &now

	cp := *inv
	return &cp, nil
}

// Get returns the invitation with lazy expiry applied.
func (r *InvitationRegistry) Get(id string) (*domain.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.invitations[id]
	if !ok {
		return nil, ErrInvitationNotFound
	}
	expireLocked(inv, time.Now().UTC())
	cp := *inv
	return &cp, nil
}

// GetPendingForUser returns a user's still-pending, unexpired invitations.
func (r *InvitationRegistry) GetPendingForUser(userID string) []*domain.Invitation {
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*domain.Invitation
	for _, inv := range r.invitations {
		if inv.ToUserID != userID || expireLocked(inv, now) || inv.State.Terminal() {
			continue
		}
		cp := *inv
		result = append(result, &cp)
	}
	return result
}

// GetUserInvitations returns every invitation addressed to a user,
// resolved ones included.
func (r *InvitationRegistry) GetUserInvitations(userID string) []*domain.Invitation {
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*domain.Invitation
	for _, inv := range r.invitations {
		if inv.ToUserID != userID {
			continue
		}
		expireLocked(inv, now)
		cp := *inv
		result = append(result, &cp)
	}
	return result
}

// GetSessionInvitations returns every invitation targeting a session.
func (r *InvitationRegistry) GetSessionInvitations(sessionID string) []*domain.Invitation {
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*domain.Invitation
	for _, inv := range r.invitations {
		if inv.SessionID != sessionID {
			continue
		}
		expireLocked(inv, now)
		cp := *inv
		result = append(result, &cp)
	}
	return result
}

// CleanupExpired sweeps all pending invitations past expiry to expired
// and returns the count swept. Intended for a periodic tick.
func (r *InvitationRegistry) CleanupExpired() int {
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	swept := 0
	for _, inv := range r.invitations {
		if inv.State == domain.InvitationPending && now.After(inv.ExpiresAt) {
			inv.State = domain.InvitationExpired
			swept++
		}
	}
	return swept
}
