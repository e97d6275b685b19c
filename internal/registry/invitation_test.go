package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamnest/live-session-service/internal/domain"
)

func newTestInvitations() *InvitationRegistry {
	return NewInvitationRegistry(time.Minute)
}

func sendTestInvitation(r *InvitationRegistry, ttl time.Duration) *domain.Invitation {
	return r.Send("s1", "host-1", "alice", "guest-1", "bob", "join me", ttl)
}

func TestSendInvitation(t *testing.T) {
	r := newTestInvitations()

	inv := sendTestInvitation(r, 0)
	assert.NotEmpty(t, inv.ID)
	assert.Equal(t, domain.InvitationPending, inv.State)

	// A non-positive TTL selects the configured default
	assert.WithinDuration(t, inv.CreatedAt.Add(time.Minute), inv.ExpiresAt, time.Second)

	short := sendTestInvitation(r, 10*time.Second)
	assert.WithinDuration(t, short.CreatedAt.Add(10*time.Second), short.ExpiresAt, time.Second)
}

func TestAcceptInvitation(t *testing.T) {
	r := newTestInvitations()
	inv := sendTestInvitation(r, time.Minute)

	accepted, err := r.Accept(inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationAccepted, accepted.State)
	require.NotNil(t, accepted.RespondedAt)

	// Terminal states are final
	_, err = r.Accept(inv.ID)
	assert.ErrorIs(t, err, ErrInvitationResolved)
	_, err = r.Reject(inv.ID)
	assert.ErrorIs(t, err, ErrInvitationResolved)
}

func TestRejectInvitation(t *testing.T) {
	r := newTestInvitations()
	inv := sendTestInvitation(r, time.Minute)

	rejected, err := r.Reject(inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationRejected, rejected.State)
}

func TestCancelInvitation(t *testing.T) {
	r := newTestInvitations()
	inv := sendTestInvitation(r, time.Minute)

	_, err := r.Cancel(inv.ID, "guest-1")
	assert.ErrorIs(t, err, ErrInvitationNotSender)

	cancelled, err := r.Cancel(inv.ID, "host-1")
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationCancelled, cancelled.State)
}

func TestResolveUnknownInvitation(t *testing.T) {
	r := newTestInvitations()

	_, err := r.Accept("missing")
	assert.ErrorIs(t, err, ErrInvitationNotFound)
	_, err = r.Get("missing")
	assert.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestLazyExpiry(t *testing.T) {
	r := newTestInvitations()
	inv := sendTestInvitation(r, 10*time.Millisecond)

	time.Sleep(20 * time.Millisecond)

	// No sweep has run; the read alone must observe the expiry
	got, err := r.Get(inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationExpired, got.State)

	_, err = r.Accept(inv.ID)
	assert.ErrorIs(t, err, ErrInvitationExpired)
}

func TestGetPendingForUser(t *testing.T) {
	r := newTestInvitations()

	pending := sendTestInvitation(r, time.Minute)
	resolved := sendTestInvitation(r, time.Minute)
	_, err := r.Reject(resolved.ID)
	require.NoError(t, err)
	expired := sendTestInvitation(r, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	got := r.GetPendingForUser("guest-1")
	require.Len(t, got, 1)
	assert.Equal(t, pending.ID, got[0].ID)

	// The full listing keeps resolved and expired records for audit
	all := r.GetUserInvitations("guest-1")
	assert.Len(t, all, 3)
	for _, inv := range all {
		if inv.ID == expired.ID {
			assert.Equal(t, domain.InvitationExpired, inv.State)
		}
	}
}

func TestGetSessionInvitations(t *testing.T) {
	r := newTestInvitations()

	sendTestInvitation(r, time.Minute)
	sendTestInvitation(r, time.Minute)
	r.Send("s2", "host-2", "carol", "guest-2", "dave", "", time.Minute)

	assert.Len(t, r.GetSessionInvitations("s1"), 2)
	assert.Len(t, r.GetSessionInvitations("s2"), 1)
	assert.Empty(t, r.GetSessionInvitations("s3"))
}

func TestCleanupExpired(t *testing.T) {
	r := newTestInvitations()

	sendTestInvitation(r, time.Millisecond)
	sendTestInvitation(r, time.Millisecond)
	keep := sendTestInvitation(r, time.Minute)
	time.Sleep(5 * time.Millisecond)

	assert.Equal(t, 2, r.CleanupExpired())
	assert.Equal(t, 0, r.CleanupExpired())

	got, err := r.Get(keep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationPending, got.State)
}
