package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/streamnest/live-session-service/internal/audit"
	"github.com/streamnest/live-session-service/internal/domain"
	"github.com/streamnest/live-session-service/internal/registry"
	"github.com/streamnest/live-session-service/internal/reward"
	pkglog "github.com/streamnest/live-session-service/pkg/log"
)

var (
	ErrNotHost        = errors.New("only the session host may perform this action")
	ErrNotParticipant = errors.New("user is not a participant of this session")
	ErrUserMuted      = errors.New("user is muted in this session")
	ErrUserBanned     = errors.New("user is banned from this session")
	ErrNotInvitee     = errors.New("invitation is addressed to another user")
)

// noopBroadcaster is used when no transport layer is attached.
type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastToSession(string, interface{}, string) error { return nil }

type liveService struct {
	sessions    *registry.SessionRegistry
	chat        *registry.ChatLog
	invitations *registry.InvitationRegistry
	peers       *registry.PeerRegistry
	rewards     *reward.Engine
	broadcaster Broadcaster

	sweepInterval time.Duration
	cancel        context.CancelFunc
}

// NewLiveService composes the registries into the coordination facade.
// A nil broadcaster disables fan-out (useful in tests). The session
// registry's eviction hook is wired here so chat and signaling state is
// released when an ended session is garbage-collected.
func NewLiveService(
	sessions *registry.SessionRegistry,
	chat *registry.ChatLog,
	invitations *registry.InvitationRegistry,
	peers *registry.PeerRegistry,
	rewards *reward.Engine,
	broadcaster Broadcaster,
	sweepInterval time.Duration,
) LiveService {
	if broadcaster == nil {
		broadcaster = noopBroadcaster{}
	}
	s := &liveService{
		sessions:      sessions,
		chat:          chat,
		invitations:   invitations,
		peers:         peers,
		rewards:       rewards,
		broadcaster:   broadcaster,
		sweepInterval: sweepInterval,
	}

	sessions.SetEvictHook(func(sessionID string) {
		chat.RemoveSession(sessionID)
		peers.ClosePeersForSession(sessionID)
	})

	return s
}

// CreateSession allocates a new pending session owned by the host.
func (s *liveService) CreateSession(ctx context.Context, hostID, hostUsername string, req *domain.CreateSessionRequest) (*domain.SessionResponse, error) {
	session, err := s.sessions.CreateSession(hostID, hostUsername, req)
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.ActionCreateSession, hostID, "session created")
	resp := session.ToResponse()
	return &resp, nil
}

// GetSession retrieves a session by ID.
func (s *liveService) GetSession(ctx context.Context, sessionID string) (*domain.SessionResponse, error) {
	session, err := s.sessions.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	resp := session.ToResponse()
	return &resp, nil
}

// ListPublicSessions returns the sessions that are public and live.
func (s *liveService) ListPublicSessions(ctx context.Context) []domain.SessionResponse {
	sessions := s.sessions.GetPublicSessions()
	result := make([]domain.SessionResponse, len(sessions))
	for i, session := range sessions {
		result[i] = session.ToResponse()
	}
	return result
}

// JoinSession enrolls a user and announces the join to the room.
func (s *liveService) JoinSession(ctx context.Context, sessionID, userID, username string, role domain.ParticipantRole) (*domain.SessionResponse, error) {
	if s.chat.IsBanned(sessionID, userID) {
		return nil, ErrUserBanned
	}
	if role == "" {
		role = domain.RoleViewer
	}

	if err := s.sessions.AddParticipant(sessionID, userID, username, role); err != nil {
		return nil, err
	}

	s.broadcaster.BroadcastToSession(sessionID, &domain.ParticipantEventMessage{
		Type:      domain.MsgTypeUserJoined,
		SessionID: sessionID,
		UserID:    userID,
		Username:  username,
		Role:      role,
	}, "")

	return s.GetSession(ctx, sessionID)
}

// LeaveSession removes a user; host departure terminates the session.
func (s *liveService) LeaveSession(ctx context.Context, sessionID, userID string) error {
	ended, err := s.sessions.RemoveParticipant(sessionID, userID)
	if err != nil {
		return err
	}

	s.broadcaster.BroadcastToSession(sessionID, &domain.ParticipantEventMessage{
		Type:      domain.MsgTypeUserLeft,
		SessionID: sessionID,
		UserID:    userID,
	}, "")

	if ended {
		s.finalizeEnded(ctx, sessionID, "host departed")
	}
	return nil
}

// StartSession walks the session from pending through starting to live.
func (s *liveService) StartSession(ctx context.Context, sessionID, actorID string) error {
	if err := s.requireHost(sessionID, actorID); err != nil {
		return err
	}
	if err := s.sessions.SetState(sessionID, domain.SessionStateStarting); err != nil {
		return err
	}
	return s.sessions.SetState(sessionID, domain.SessionStateLive)
}

// SetSessionState applies a single lifecycle transition. Ending a
// session routes through EndSession so teardown side effects run.
func (s *liveService) SetSessionState(ctx context.Context, sessionID, actorID string, state domain.SessionState) error {
	if err := s.requireHost(sessionID, actorID); err != nil {
		return err
	}
	if state == domain.SessionStateEnded {
		_, err := s.EndSession(ctx, sessionID, actorID)
		return err
	}
	return s.sessions.SetState(sessionID, state)
}

// EndSession closes the session and, on the first close of a session
// that went live, mints the host reward from its final telemetry.
// Idempotent: a repeated end returns no error and no reward.
func (s *liveService) EndSession(ctx context.Context, sessionID, actorID string) (*domain.LiveReward, error) {
	if actorID != "" {
		if err := s.requireHost(sessionID, actorID); err != nil {
			return nil, err
		}
	}

	session, err := s.sessions.CloseSession(sessionID)
	if err != nil {
		if errors.Is(err, registry.ErrSessionEnded) {
			return nil, nil
		}
		return nil, err
	}

	audit.Log(ctx, audit.ActionEndSession, session.HostID, "session ended")
	return s.finalize(ctx, session, "host ended the session"), nil
}

// finalizeEnded looks the already-ended session back up and runs teardown.
func (s *liveService) finalizeEnded(ctx context.Context, sessionID, reason string) {
	session, err := s.sessions.GetSession(sessionID)
	if err != nil {
		return
	}
	s.finalize(ctx, session, reason)
}

// finalize tears down an ended session: peers are actively closed rather
// than orphaned, the room is notified, and a reward is minted if the
// session ever went live.
func (s *liveService) finalize(ctx context.Context, session *domain.Session, reason string) *domain.LiveReward {
	closed := s.peers.ClosePeersForSession(session.ID)

	s.broadcaster.BroadcastToSession(session.ID, &domain.SessionEndedMessage{
		Type:      domain.MsgTypeSessionEnded,
		SessionID: session.ID,
		Reason:    reason,
	}, "")

	l := pkglog.Ctx(ctx)
	l.Info().
		Str(pkglog.FieldSessionID, session.ID).
		Int("peers_closed", closed).
		Msg("session finalized")

	if session.WentLiveAt == nil {
		return nil
	}

	rw, err := s.rewards.CreateReward(
		session.ID,
		session.HostID,
		len(session.Participants),
		session.LiveMinutes(),
		session.GiftRevenue,
		"",
	)
	if err != nil {
		l.Error().Err(err).Str(pkglog.FieldSessionID, session.ID).Msg("failed to create reward")
		return nil
	}

	audit.LogWithDetail(ctx, audit.ActionCreateReward, session.HostID, rw.ID, "reward created")
	return rw
}

// SendGift attributes gift revenue to the session and fans the event out.
func (s *liveService) SendGift(ctx context.Context, sessionID, userID, username string, amount int64, giftName string) error {
	if err := s.requireParticipant(sessionID, userID); err != nil {
		return err
	}
	if err := s.sessions.AddGiftRevenue(sessionID, amount); err != nil {
		return err
	}

	if _, err := s.chat.AppendMessage(sessionID, userID, username, giftName, domain.MessageTypeGift, false); err != nil && !errors.Is(err, registry.ErrEmptyContent) {
		l := pkglog.Ctx(ctx)
		l.Warn().Err(err).Str(pkglog.FieldSessionID, sessionID).Msg("failed to log gift message")
	}

	return s.broadcaster.BroadcastToSession(sessionID, &domain.GiftEventMessage{
		Type:      domain.MsgTypeGiftReceived,
		SessionID: sessionID,
		UserID:    userID,
		Username:  username,
		Amount:    amount,
		GiftName:  giftName,
	}, "")
}

// SendChatMessage appends a message after membership and moderation
// checks, then fans it out to the room.
func (s *liveService) SendChatMessage(ctx context.Context, sessionID, userID, username, content string, msgType domain.MessageType) (*domain.ChatMessage, error) {
	session, err := s.sessions.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if _, ok := session.Participants[userID]; !ok {
		return nil, ErrNotParticipant
	}
	if s.chat.IsBanned(sessionID, userID) {
		return nil, ErrUserBanned
	}
	if s.chat.IsMuted(sessionID, userID) {
		return nil, ErrUserMuted
	}

	msg, err := s.chat.AppendMessage(sessionID, userID, username, content, msgType, userID == session.HostID)
	if err != nil {
		return nil, err
	}

	s.broadcaster.BroadcastToSession(sessionID, &domain.ChatEventMessage{
		Type:    domain.MsgTypeChatMessage,
		Message: msg,
	}, "")
	return msg, nil
}

// AddReaction appends a reaction and fans it out. Mute does not block
// reactions; it is advisory for message sends only.
func (s *liveService) AddReaction(ctx context.Context, sessionID, userID, username, emoji string) (*domain.Reaction, error) {
	if err := s.requireParticipant(sessionID, userID); err != nil {
		return nil, err
	}

	reaction, err := s.chat.AddReaction(sessionID, userID, username, emoji)
	if err != nil {
		return nil, err
	}

	s.broadcaster.BroadcastToSession(sessionID, &domain.ReactionEventMessage{
		Type:     domain.MsgTypeReaction,
		Reaction: reaction,
	}, "")
	return reaction, nil
}

// PinMessage toggles a message's pinned flag. Host only.
func (s *liveService) PinMessage(ctx context.Context, sessionID, actorID, messageID string, pinned bool) error {
	if err := s.requireHost(sessionID, actorID); err != nil {
		return err
	}
	if !s.chat.SetPinned(sessionID, messageID, pinned) {
		return registry.ErrSessionNotFound
	}

	return s.broadcaster.BroadcastToSession(sessionID, &domain.PinEventMessage{
		Type:      domain.MsgTypeMessagePinned,
		SessionID: sessionID,
		MessageID: messageID,
		Pinned:    pinned,
	}, "")
}

// MuteUser mutes or unmutes a user in the session. Host only.
func (s *liveService) MuteUser(ctx context.Context, sessionID, actorID, targetID string, undo bool) error {
	if err := s.requireHost(sessionID, actorID); err != nil {
		return err
	}

	if undo {
		s.chat.UnmuteUser(sessionID, targetID)
	} else {
		s.chat.MuteUser(sessionID, targetID)
		audit.LogWithDetail(ctx, audit.ActionMuteUser, actorID, targetID, "user muted")
	}

	return s.broadcaster.BroadcastToSession(sessionID, &domain.ModerationEventMessage{
		Type:      domain.MsgTypeUserMuted,
		SessionID: sessionID,
		UserID:    targetID,
		Undo:      undo,
	}, "")
}

// BanUser bans a user: their message history is purged, they are
// force-removed from the session and their handshakes are closed.
// Unban lifts the ban without restoring purged messages. Host only.
func (s *liveService) BanUser(ctx context.Context, sessionID, actorID, targetID string, undo bool) error {
	if err := s.requireHost(sessionID, actorID); err != nil {
		return err
	}

	if undo {
		s.chat.UnbanUser(sessionID, targetID)
	} else {
		s.chat.BanUser(sessionID, targetID)
		s.sessions.RemoveParticipant(sessionID, targetID)
		for _, peer := range s.peers.GetSessionPeers(sessionID) {
			if peer.UserID == targetID {
				s.peers.ClosePeerConnection(peer.PeerID)
			}
		}
		audit.LogWithDetail(ctx, audit.ActionBanUser, actorID, targetID, "user banned")
	}

	return s.broadcaster.BroadcastToSession(sessionID, &domain.ModerationEventMessage{
		Type:      domain.MsgTypeUserBanned,
		SessionID: sessionID,
		UserID:    targetID,
		Undo:      undo,
	}, "")
}

func (s *liveService) GetChatMessages(ctx context.Context, sessionID string, limit int) []*domain.ChatMessage {
	return s.chat.GetMessages(sessionID, limit)
}

func (s *liveService) GetRecentMessages(ctx context.Context, sessionID string, since time.Time, limit int) []*domain.ChatMessage {
	return s.chat.GetRecentMessages(sessionID, since, limit)
}

func (s *liveService) GetPinnedMessages(ctx context.Context, sessionID string) []*domain.ChatMessage {
	return s.chat.GetPinnedMessages(sessionID)
}

func (s *liveService) GetChatStats(ctx context.Context, sessionID string) domain.ChatStats {
	return s.chat.Stats(sessionID)
}

// SendInvitation creates an invitation; the sender must belong to the
// session, and the session must still be running.
func (s *liveService) SendInvitation(ctx context.Context, fromID, fromUsername string, req *domain.SendInvitationRequest) (*domain.Invitation, error) {
	session, err := s.sessions.GetSession(req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Ended() {
		return nil, registry.ErrSessionEnded
	}
	if _, ok := session.Participants[fromID]; !ok {
		return nil, ErrNotParticipant
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	inv := s.invitations.Send(req.SessionID, fromID, fromUsername, req.ToUserID, req.ToUsername, req.Message, ttl)
	return inv, nil
}

// AcceptInvitation resolves the invitation and enrolls the recipient as
// a guest. If the room has filled in the meantime, the invitation stays
// accepted and the join error is returned.
func (s *liveService) AcceptInvitation(ctx context.Context, invitationID, userID, username string) (*domain.SessionResponse, error) {
	inv, err := s.invitations.Get(invitationID)
	if err != nil {
		return nil, err
	}
	if inv.ToUserID != userID {
		return nil, ErrNotInvitee
	}

	inv, err = s.invitations.Accept(invitationID)
	if err != nil {
		return nil, err
	}

	return s.JoinSession(ctx, inv.SessionID, userID, username, domain.RoleGuest)
}

// RejectInvitation resolves the invitation as rejected.
func (s *liveService) RejectInvitation(ctx context.Context, invitationID, userID string) error {
	inv, err := s.invitations.Get(invitationID)
	if err != nil {
		return err
	}
	if inv.ToUserID != userID {
		return ErrNotInvitee
	}
	_, err = s.invitations.Reject(invitationID)
	return err
}

// CancelInvitation is the sender-side withdrawal.
func (s *liveService) CancelInvitation(ctx context.Context, invitationID, userID string) error {
	_, err := s.invitations.Cancel(invitationID, userID)
	return err
}

func (s *liveService) GetPendingInvitations(ctx context.Context, userID string) []*domain.Invitation {
	return s.invitations.GetPendingForUser(userID)
}

func (s *liveService) GetUserInvitations(ctx context.Context, userID string) []*domain.Invitation {
	return s.invitations.GetUserInvitations(userID)
}

func (s *liveService) GetSessionInvitations(ctx context.Context, sessionID string) []*domain.Invitation {
	return s.invitations.GetSessionInvitations(sessionID)
}

// CreatePeer registers a handshake for a session participant and links
// it to their participant record.
func (s *liveService) CreatePeer(ctx context.Context, sessionID, userID, peerID string) (*domain.PeerConnection, error) {
	if err := s.requireParticipant(sessionID, userID); err != nil {
		return nil, err
	}
	peer, err := s.peers.CreatePeerConnection(peerID, userID, sessionID)
	if err != nil {
		return nil, err
	}
	s.sessions.SetParticipantPeer(sessionID, userID, peerID)
	return peer, nil
}

func (s *liveService) SetPeerOffer(ctx context.Context, peerID string, offer json.RawMessage) error {
	return s.peers.SetOffer(peerID, offer)
}

func (s *liveService) SetPeerAnswer(ctx context.Context, peerID string, answer json.RawMessage) error {
	return s.peers.SetAnswer(peerID, answer)
}

func (s *liveService) AddICECandidate(ctx context.Context, peerID string, candidate json.RawMessage) error {
	return s.peers.AddICECandidate(peerID, candidate)
}

func (s *liveService) ClosePeer(ctx context.Context, peerID string) error {
	peer, err := s.peers.GetPeerConnection(peerID)
	if err != nil {
		return err
	}
	if err := s.peers.ClosePeerConnection(peerID); err != nil {
		return err
	}
	s.sessions.SetParticipantPeer(peer.SessionID, peer.UserID, "")
	return nil
}

func (s *liveService) GetPeer(ctx context.Context, peerID string) (*domain.PeerConnection, error) {
	return s.peers.GetPeerConnection(peerID)
}

func (s *liveService) GetSessionPeers(ctx context.Context, sessionID string) []*domain.PeerConnection {
	return s.peers.GetSessionPeers(sessionID)
}

func (s *liveService) GetPeerStats(ctx context.Context, sessionID string) domain.PeerStats {
	return s.peers.GetSessionStats(sessionID)
}

func (s *liveService) GetReward(ctx context.Context, rewardID string) (*domain.LiveReward, error) {
	return s.rewards.GetReward(rewardID)
}

func (s *liveService) GetHostRewards(ctx context.Context, hostID string) []*domain.LiveReward {
	return s.rewards.GetHostRewards(hostID)
}

func (s *liveService) GetTotalHostRewards(ctx context.Context, hostID string) int64 {
	return s.rewards.GetTotalHostRewards(hostID)
}

func (s *liveService) GetRewardStats(ctx context.Context, hostID string) domain.RewardStats {
	return s.rewards.GetRewardStats(hostID)
}

func (s *liveService) MarkRewardProcessing(ctx context.Context, rewardID string) error {
	return s.rewards.MarkProcessing(rewardID)
}

func (s *liveService) CompleteReward(ctx context.Context, rewardID string) error {
	return s.rewards.CompleteReward(rewardID)
}

func (s *liveService) FailReward(ctx context.Context, rewardID, reason string) error {
	return s.rewards.FailReward(rewardID, reason)
}

// Start launches the invitation sweeper. Reads apply lazy expiry on
// their own; the sweep bounds how long stale records linger.
func (s *liveService) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.sweepLoop(ctx)

	l := pkglog.L()
	l.Info().Dur("sweep_interval", s.sweepInterval).Msg("live service started")
	return nil
}

// Stop stops background goroutines.
func (s *liveService) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *liveService) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if swept := s.invitations.CleanupExpired(); swept > 0 {
				l := pkglog.L()
				l.Debug().Int("swept", swept).Msg("expired invitations swept")
			}
			if days := s.rewards.RetentionDays(); days > 0 {
				if purged := s.rewards.CleanupOldRewards(days); purged > 0 {
					l := pkglog.L()
					l.Debug().Int("purged", purged).Msg("old completed rewards purged")
				}
			}
		}
	}
}

func (s *liveService) requireHost(sessionID, actorID string) error {
	session, err := s.sessions.GetSession(sessionID)
	if err != nil {
		return err
	}
	if session.HostID != actorID {
		return ErrNotHost
	}
	return nil
}

func (s *liveService) requireParticipant(sessionID, userID string) error {
	session, err := s.sessions.GetSession(sessionID)
	if err != nil {
		return err
	}
	if _, ok := session.Participants[userID]; !ok {
		return ErrNotParticipant
	}
	return nil
}
