package domain

import "time"

// InvitationState represents the state of a session invitation.
// pending is the only non-terminal state.
type InvitationState string

const (
	InvitationPending   InvitationState = "pending"
	InvitationAccepted  InvitationState = "accepted"
	InvitationRejected  InvitationState = "rejected"
	InvitationExpired   InvitationState = "expired"
	InvitationCancelled InvitationState = "cancelled"
)

// Terminal reports whether the state can no longer change.
func (s InvitationState) Terminal() bool {
	return s != InvitationPending
}

// Invitation is a short-lived request for a user to join a session as a
// privileged participant. Records are retained after resolution for audit.
type Invitation struct {
	ID           string          `json:"id"`
	SessionID    string          `json:"session_id"`
	FromUserID   string          `json:"from_user_id"`
	FromUsername string          `json:"from_username"`
	ToUserID     string          `json:"to_user_id"`
	ToUsername   string          `json:"to_username"`
	Message      string          `json:"message,omitempty"`
	State        InvitationState `json:"state"`
	CreatedAt    time.Time       `json:"created_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
	RespondedAt  *time.Time      `json:"responded_at,omitempty"`
}

// SendInvitationRequest represents an invitation send request.
type SendInvitationRequest struct {
	SessionID  string `json:"session_id" binding:"required"`
	ToUserID   string `json:"to_user_id" binding:"required"`
	ToUsername string `json:"to_username" binding:"required"`
	Message    string `json:"message" binding:"max=500"`
	TTLSeconds int    `json:"ttl_seconds"`
}
