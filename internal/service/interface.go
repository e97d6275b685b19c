package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/streamnest/live-session-service/internal/domain"
)

// Broadcaster fans mutation results out to connected clients. The core
// never pushes on its own; results are handed to the transport layer.
type Broadcaster interface {
	BroadcastToSession(sessionID string, message interface{}, exclude string) error
}

// LiveService is the coordination facade the transport handlers call.
// Identity arguments are gateway-asserted: callers are responsible for
// having authenticated them.
type LiveService interface {
	// Sessions
	CreateSession(ctx context.Context, hostID, hostUsername string, req *domain.CreateSessionRequest) (*domain.SessionResponse, error)
	GetSession(ctx context.Context, sessionID string) (*domain.SessionResponse, error)
	ListPublicSessions(ctx context.Context) []domain.SessionResponse
	JoinSession(ctx context.Context, sessionID, userID, username string, role domain.ParticipantRole) (*domain.SessionResponse, error)
	LeaveSession(ctx context.Context, sessionID, userID string) error
	StartSession(ctx context.Context, sessionID, actorID string) error
	SetSessionState(ctx context.Context, sessionID, actorID string, state domain.SessionState) error
	EndSession(ctx context.Context, sessionID, actorID string) (*domain.LiveReward, error)
	SendGift(ctx context.Context, sessionID, userID, username string, amount int64, giftName string) error

	// Chat & moderation
	SendChatMessage(ctx context.Context, sessionID, userID, username, content string, msgType domain.MessageType) (*domain.ChatMessage, error)
	AddReaction(ctx context.Context, sessionID, userID, username, emoji string) (*domain.Reaction, error)
	PinMessage(ctx context.Context, sessionID, actorID, messageID string, pinned bool) error
	MuteUser(ctx context.Context, sessionID, actorID, targetID string, undo bool) error
	BanUser(ctx context.Context, sessionID, actorID, targetID string, undo bool) error
	GetChatMessages(ctx context.Context, sessionID string, limit int) []*domain.ChatMessage
	GetRecentMessages(ctx context.Context, sessionID string, since time.Time, limit int) []*domain.ChatMessage
	GetPinnedMessages(ctx context.Context, sessionID string) []*domain.ChatMessage
	GetChatStats(ctx context.Context, sessionID string) domain.ChatStats

	// Invitations
	SendInvitation(ctx context.Context, fromID, fromUsername string, req *domain.SendInvitationRequest) (*domain.Invitation, error)
	AcceptInvitation(ctx context.Context, invitationID, userID, username string) (*domain.SessionResponse, error)
	RejectInvitation(ctx context.Context, invitationID, userID string) error
	CancelInvitation(ctx context.Context, invitationID, userID string) error
	GetPendingInvitations(ctx context.Context, userID string) []*domain.Invitation
	GetUserInvitations(ctx context.Context, userID string) []*domain.Invitation
	GetSessionInvitations(ctx context.Context, sessionID string) []*domain.Invitation

	// Signaling
	CreatePeer(ctx context.Context, sessionID, userID, peerID string) (*domain.PeerConnection, error)
	SetPeerOffer(ctx context.Context, peerID string, offer json.RawMessage) error
	SetPeerAnswer(ctx context.Context, peerID string, answer json.RawMessage) error
	AddICECandidate(ctx context.Context, peerID string, candidate json.RawMessage) error
	ClosePeer(ctx context.Context, peerID string) error
	GetPeer(ctx context.Context, peerID string) (*domain.PeerConnection, error)
	GetSessionPeers(ctx context.Context, sessionID string) []*domain.PeerConnection
	GetPeerStats(ctx context.Context, sessionID string) domain.PeerStats

	// Rewards (read + settlement side for the payout collaborator)
	GetReward(ctx context.Context, rewardID string) (*domain.LiveReward, error)
	GetHostRewards(ctx context.Context, hostID string) []*domain.LiveReward
	GetTotalHostRewards(ctx context.Context, hostID string) int64
	GetRewardStats(ctx context.Context, hostID string) domain.RewardStats
	MarkRewardProcessing(ctx context.Context, rewardID string) error
	CompleteReward(ctx context.Context, rewardID string) error
	FailReward(ctx context.Context, rewardID, reason string) error

	// Start starts background goroutines (invitation sweeper).
	Start(ctx context.Context) error

	// Stop stops background goroutines.
	Stop() error
}
