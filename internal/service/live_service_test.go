package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamnest/live-session-service/internal/domain"
	"github.com/streamnest/live-session-service/internal/registry"
	"github.com/streamnest/live-session-service/internal/reward"
)

// recordingBroadcaster captures fan-out instead of delivering it.
type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []interface{}
}

func (b *recordingBroadcaster) BroadcastToSession(sessionID string, message interface{}, exclude string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, message)
	return nil
}

func (b *recordingBroadcaster) byType(msgType string) []interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	var result []interface{}
	for _, msg := range b.messages {
		switch m := msg.(type) {
		case *domain.ParticipantEventMessage:
			if m.Type == msgType {
				result = append(result, m)
			}
		case *domain.SessionEndedMessage:
			if m.Type == msgType {
				result = append(result, m)
			}
		case *domain.ChatEventMessage:
			if m.Type == msgType {
				result = append(result, m)
			}
		case *domain.GiftEventMessage:
			if m.Type == msgType {
				result = append(result, m)
			}
		case *domain.ModerationEventMessage:
			if m.Type == msgType {
				result = append(result, m)
			}
		}
	}
	return result
}

func testRewardConfig() reward.Config {
	return reward.Config{
		Tiers: []reward.Tier{
			{MinParticipants: 1, Rate: 200},
			{MinParticipants: 6, Rate: 350},
			{MinParticipants: 16, Rate: 500},
			{MinParticipants: 31, Rate: 750},
			{MinParticipants: 51, Rate: 1000},
		},
		PerMinuteRate:        150,
		EngagementMultiplier: 0.25,
		DefaultCurrency:      "USD",
	}
}

func newTestService(t *testing.T) (LiveService, *recordingBroadcaster) {
	t.Helper()

	engine, err := reward.NewEngine(testRewardConfig())
	require.NoError(t, err)

	broadcaster := &recordingBroadcaster{}
	svc := NewLiveService(
		registry.NewSessionRegistry(time.Minute),
		registry.NewChatLog(2000, 8),
		registry.NewInvitationRegistry(time.Minute),
		registry.NewPeerRegistry(),
		engine,
		broadcaster,
		time.Minute,
	)
	return svc, broadcaster
}

func createLiveSession(t *testing.T, svc LiveService) *domain.SessionResponse {
	t.Helper()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "host-1", "alice", &domain.CreateSessionRequest{
		Title:           "evening stream",
		MaxParticipants: 10,
	})
	require.NoError(t, err)
	require.NoError(t, svc.StartSession(ctx, session.ID, "host-1"))
	return session
}

func TestSessionLifecycleMintsReward(t *testing.T) {
	svc, broadcaster := newTestService(t)
	ctx := context.Background()

	session := createLiveSession(t, svc)

	_, err := svc.JoinSession(ctx, session.ID, "guest-1", "bob", domain.RoleGuest)
	require.NoError(t, err)
	_, err = svc.JoinSession(ctx, session.ID, "viewer-1", "carol", "")
	require.NoError(t, err)

	require.NoError(t, svc.SendGift(ctx, session.ID, "viewer-1", "carol", 1000, "rocket"))

	rw, err := svc.EndSession(ctx, session.ID, "host-1")
	require.NoError(t, err)
	require.NotNil(t, rw)

	// host + guest + viewer at teardown, no whole minutes elapsed
	assert.Equal(t, 3, rw.ParticipantCount)
	assert.Equal(t, int64(600), rw.Base)
	assert.Equal(t, int64(0), rw.DurationBonus)
	assert.Equal(t, int64(250), rw.EngagementBonus)
	assert.Equal(t, int64(850), rw.Total)
	assert.Equal(t, "USD", rw.Currency)

	assert.Len(t, svc.GetHostRewards(ctx, "host-1"), 1)
	assert.Len(t, broadcaster.byType(domain.MsgTypeSessionEnded), 1)

	// A repeated end is a no-op with no second reward
	again, err := svc.EndSession(ctx, session.ID, "host-1")
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.Len(t, svc.GetHostRewards(ctx, "host-1"), 1)
}

func TestEndSessionRequiresHost(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session := createLiveSession(t, svc)
	_, err := svc.JoinSession(ctx, session.ID, "viewer-1", "bob", "")
	require.NoError(t, err)

	_, err = svc.EndSession(ctx, session.ID, "viewer-1")
	assert.ErrorIs(t, err, ErrNotHost)
}

func TestStartSessionRequiresHost(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "host-1", "alice", &domain.CreateSessionRequest{
		Title:           "show",
		MaxParticipants: 5,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.StartSession(ctx, session.ID, "someone-else"), ErrNotHost)
}

func TestNoRewardWithoutGoingLive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "host-1", "alice", &domain.CreateSessionRequest{
		Title:           "cancelled before start",
		MaxParticipants: 5,
	})
	require.NoError(t, err)

	rw, err := svc.EndSession(ctx, session.ID, "host-1")
	require.NoError(t, err)
	assert.Nil(t, rw)
	assert.Empty(t, svc.GetHostRewards(ctx, "host-1"))
}

func TestHostDepartureEndsSession(t *testing.T) {
	svc, broadcaster := newTestService(t)
	ctx := context.Background()

	session := createLiveSession(t, svc)
	_, err := svc.JoinSession(ctx, session.ID, "viewer-1", "bob", "")
	require.NoError(t, err)

	require.NoError(t, svc.LeaveSession(ctx, session.ID, "host-1"))

	got, err := svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStateEnded, got.State)

	// The departure path still mints the reward for a live session
	rewards := svc.GetHostRewards(ctx, "host-1")
	require.Len(t, rewards, 1)
	assert.Equal(t, 1, rewards[0].ParticipantCount)

	assert.Len(t, broadcaster.byType(domain.MsgTypeSessionEnded), 1)
}

func TestSetSessionStateEndRoutesThroughTeardown(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session := createLiveSession(t, svc)
	require.NoError(t, svc.SetSessionState(ctx, session.ID, "host-1", domain.SessionStateEnded))

	assert.Len(t, svc.GetHostRewards(ctx, "host-1"), 1)
}

func TestChatFlow(t *testing.T) {
	svc, broadcaster := newTestService(t)
	ctx := context.Background()

	session := createLiveSession(t, svc)
	_, err := svc.JoinSession(ctx, session.ID, "viewer-1", "bob", "")
	require.NoError(t, err)

	// Non-participants cannot post
	_, err = svc.SendChatMessage(ctx, session.ID, "stranger", "eve", "hi", "")
	assert.ErrorIs(t, err, ErrNotParticipant)

	msg, err := svc.SendChatMessage(ctx, session.ID, "viewer-1", "bob", "hello", "")
	require.NoError(t, err)
	assert.False(t, msg.IsModerator)

	hostMsg, err := svc.SendChatMessage(ctx, session.ID, "host-1", "alice", "welcome", "")
	require.NoError(t, err)
	assert.True(t, hostMsg.IsModerator)

	history := svc.GetChatMessages(ctx, session.ID, 10)
	require.Len(t, history, 2)
	assert.Equal(t, "hello", history[0].Content)

	assert.Len(t, broadcaster.byType(domain.MsgTypeChatMessage), 2)
}

func TestMuteBlocksChat(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session := createLiveSession(t, svc)
	_, err := svc.JoinSession(ctx, session.ID, "viewer-1", "bob", "")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.MuteUser(ctx, session.ID, "viewer-1", "host-1", false), ErrNotHost)
	require.NoError(t, svc.MuteUser(ctx, session.ID, "host-1", "viewer-1", false))

	_, err = svc.SendChatMessage(ctx, session.ID, "viewer-1", "bob", "hello", "")
	assert.ErrorIs(t, err, ErrUserMuted)

	// Reactions are not gated by mute
	_, err = svc.AddReaction(ctx, session.ID, "viewer-1", "bob", "👏")
	assert.NoError(t, err)

	require.NoError(t, svc.MuteUser(ctx, session.ID, "host-1", "viewer-1", true))
	_, err = svc.SendChatMessage(ctx, session.ID, "viewer-1", "bob", "hello", "")
	assert.NoError(t, err)
}

func TestBanFlow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session := createLiveSession(t, svc)
	_, err := svc.JoinSession(ctx, session.ID, "troll", "mallory", domain.RoleGuest)
	require.NoError(t, err)

	_, err = svc.SendChatMessage(ctx, session.ID, "troll", "mallory", "spam", "")
	require.NoError(t, err)
	_, err = svc.SendChatMessage(ctx, session.ID, "host-1", "alice", "welcome", "")
	require.NoError(t, err)

	require.NoError(t, svc.BanUser(ctx, session.ID, "host-1", "troll", false))

	// History is purged retroactively
	history := svc.GetChatMessages(ctx, session.ID, 10)
	require.Len(t, history, 1)
	assert.Equal(t, "welcome", history[0].Content)

	// Banned users are removed and cannot rejoin
	got, err := svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ParticipantCount)

	_, err = svc.JoinSession(ctx, session.ID, "troll", "mallory", "")
	assert.ErrorIs(t, err, ErrUserBanned)

	// Unban lifts the block without restoring history
	require.NoError(t, svc.BanUser(ctx, session.ID, "host-1", "troll", true))
	_, err = svc.JoinSession(ctx, session.ID, "troll", "mallory", "")
	assert.NoError(t, err)
	assert.Len(t, svc.GetChatMessages(ctx, session.ID, 10), 1)
}

func TestPinRequiresHost(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session := createLiveSession(t, svc)
	_, err := svc.JoinSession(ctx, session.ID, "viewer-1", "bob", "")
	require.NoError(t, err)

	msg, err := svc.SendChatMessage(ctx, session.ID, "viewer-1", "bob", "pin me", "")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.PinMessage(ctx, session.ID, "viewer-1", msg.ID, true), ErrNotHost)
	require.NoError(t, svc.PinMessage(ctx, session.ID, "host-1", msg.ID, true))

	pinned := svc.GetPinnedMessages(ctx, session.ID)
	require.Len(t, pinned, 1)
	assert.Equal(t, msg.ID, pinned[0].ID)
}

func TestInvitationAcceptJoinsAsGuest(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session := createLiveSession(t, svc)

	inv, err := svc.SendInvitation(ctx, "host-1", "alice", &domain.SendInvitationRequest{
		SessionID:  session.ID,
		ToUserID:   "guest-1",
		ToUsername: "bob",
		Message:    "come on stage",
	})
	require.NoError(t, err)

	// Only the invitee may act on it
	_, err = svc.AcceptInvitation(ctx, inv.ID, "impostor", "eve")
	assert.ErrorIs(t, err, ErrNotInvitee)

	joined, err := svc.AcceptInvitation(ctx, inv.ID, "guest-1", "bob")
	require.NoError(t, err)

	got, err := svc.GetSession(ctx, joined.ID)
	require.NoError(t, err)
	found := false
	for _, p := range got.Participants {
		if p.UserID == "guest-1" {
			found = true
			assert.Equal(t, domain.RoleGuest, p.Role)
		}
	}
	assert.True(t, found)

	pending := svc.GetPendingInvitations(ctx, "guest-1")
	assert.Empty(t, pending)
}

func TestSendInvitationRequiresMembership(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session := createLiveSession(t, svc)

	_, err := svc.SendInvitation(ctx, "stranger", "eve", &domain.SendInvitationRequest{
		SessionID:  session.ID,
		ToUserID:   "guest-1",
		ToUsername: "bob",
	})
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = svc.EndSession(ctx, session.ID, "host-1")
	require.NoError(t, err)

	_, err = svc.SendInvitation(ctx, "host-1", "alice", &domain.SendInvitationRequest{
		SessionID:  session.ID,
		ToUserID:   "guest-1",
		ToUsername: "bob",
	})
	assert.ErrorIs(t, err, registry.ErrSessionEnded)
}

func TestRejectInvitation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session := createLiveSession(t, svc)
	inv, err := svc.SendInvitation(ctx, "host-1", "alice", &domain.SendInvitationRequest{
		SessionID:  session.ID,
		ToUserID:   "guest-1",
		ToUsername: "bob",
	})
	require.NoError(t, err)

	require.NoError(t, svc.RejectInvitation(ctx, inv.ID, "guest-1"))

	got, err := svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ParticipantCount)
}

func TestPeerFlowAndTeardown(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session := createLiveSession(t, svc)
	_, err := svc.JoinSession(ctx, session.ID, "guest-1", "bob", domain.RoleGuest)
	require.NoError(t, err)

	// Signaling is for enrolled participants only
	_, err = svc.CreatePeer(ctx, session.ID, "stranger", "p0")
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = svc.CreatePeer(ctx, session.ID, "guest-1", "p1")
	require.NoError(t, err)

	// The handshake is linked on the participant record
	got, err := svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	for _, p := range got.Participants {
		if p.UserID == "guest-1" {
			assert.Equal(t, "p1", p.PeerID)
		}
	}

	require.NoError(t, svc.SetPeerOffer(ctx, "p1", []byte(`{"type":"offer"}`)))
	require.NoError(t, svc.SetPeerAnswer(ctx, "p1", []byte(`{"type":"answer"}`)))

	stats := svc.GetPeerStats(ctx, session.ID)
	assert.Equal(t, 1, stats.Connected)

	// Ending the session actively closes every handshake
	_, err = svc.EndSession(ctx, session.ID, "host-1")
	require.NoError(t, err)

	stats = svc.GetPeerStats(ctx, session.ID)
	assert.Equal(t, 0, stats.Total)
	_, err = svc.GetPeer(ctx, "p1")
	assert.ErrorIs(t, err, registry.ErrPeerNotFound)
}

func TestListPublicSessions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	createLiveSession(t, svc)

	hidden := false
	private, err := svc.CreateSession(ctx, "host-2", "bob", &domain.CreateSessionRequest{
		Title:           "backstage",
		MaxParticipants: 5,
		IsPublic:        &hidden,
	})
	require.NoError(t, err)
	require.NoError(t, svc.StartSession(ctx, private.ID, "host-2"))

	listed := svc.ListPublicSessions(ctx)
	require.Len(t, listed, 1)
	assert.Equal(t, "evening stream", listed[0].Title)
}

func TestRewardSettlement(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session := createLiveSession(t, svc)
	rw, err := svc.EndSession(ctx, session.ID, "host-1")
	require.NoError(t, err)
	require.NotNil(t, rw)

	assert.Equal(t, int64(0), svc.GetTotalHostRewards(ctx, "host-1"))

	require.NoError(t, svc.MarkRewardProcessing(ctx, rw.ID))
	require.NoError(t, svc.CompleteReward(ctx, rw.ID))

	assert.Equal(t, rw.Total, svc.GetTotalHostRewards(ctx, "host-1"))
	assert.ErrorIs(t, svc.FailReward(ctx, rw.ID, "too late"), reward.ErrRewardFinalized)
}
