package registry

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamnest/live-session-service/internal/domain"
)

func newTestChatLog() *ChatLog {
	return NewChatLog(2000, 8)
}

func appendTestMessage(t *testing.T, l *ChatLog, sessionID, userID, content string) *domain.ChatMessage {
	t.Helper()
	msg, err := l.AppendMessage(sessionID, userID, userID, content, domain.MessageTypeText, false)
	require.NoError(t, err)
	return msg
}

func TestAppendAndGetMessages(t *testing.T) {
	l := newTestChatLog()

	appendTestMessage(t, l, "s1", "u1", "first")
	appendTestMessage(t, l, "s1", "u2", "second")
	appendTestMessage(t, l, "s1", "u1", "third")

	// Asking for the last two returns them in chronological order
	got := l.GetMessages("s1", 2)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].Content)
	assert.Equal(t, "third", got[1].Content)

	// A limit above the log size returns everything
	assert.Len(t, l.GetMessages("s1", 10), 3)
	assert.Nil(t, l.GetMessages("s1", 0))
	assert.Nil(t, l.GetMessages("unknown", 10))
}

func TestMessageValidation(t *testing.T) {
	l := newTestChatLog()

	_, err := l.AppendMessage("s1", "u1", "u1", "", domain.MessageTypeText, false)
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = l.AppendMessage("s1", "u1", "u1", strings.Repeat("x", 2001), domain.MessageTypeText, false)
	assert.ErrorIs(t, err, ErrContentTooLong)

	// Empty type defaults to text
	msg := appendTestMessage(t, l, "s1", "u1", "hello")
	assert.Equal(t, domain.MessageTypeText, msg.Type)
}

func TestSeqOrdering(t *testing.T) {
	l := newTestChatLog()

	var prev uint64
	for i := 0; i < 10; i++ {
		msg := appendTestMessage(t, l, "s1", "u1", "msg")
		assert.Greater(t, msg.Seq, prev)
		prev = msg.Seq
	}

	// Sequences are per session
	other := appendTestMessage(t, l, "s2", "u1", "msg")
	assert.Equal(t, uint64(1), other.Seq)
}

func TestGetRecentMessages(t *testing.T) {
	l := newTestChatLog()

	appendTestMessage(t, l, "s1", "u1", "old")
	cutoff := time.Now().UTC()
	time.Sleep(5 * time.Millisecond)
	appendTestMessage(t, l, "s1", "u1", "new-1")
	appendTestMessage(t, l, "s1", "u1", "new-2")

	got := l.GetRecentMessages("s1", cutoff, 10)
	require.Len(t, got, 2)
	assert.Equal(t, "new-1", got[0].Content)

	got = l.GetRecentMessages("s1", cutoff, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "new-1", got[0].Content)
}

func TestPinning(t *testing.T) {
	l := newTestChatLog()

	msg := appendTestMessage(t, l, "s1", "u1", "important")
	appendTestMessage(t, l, "s1", "u1", "noise")

	assert.True(t, l.SetPinned("s1", msg.ID, true))
	assert.False(t, l.SetPinned("s1", "missing", true))
	assert.False(t, l.SetPinned("unknown", msg.ID, true))

	pinned := l.GetPinnedMessages("s1")
	require.Len(t, pinned, 1)
	assert.Equal(t, msg.ID, pinned[0].ID)

	assert.True(t, l.SetPinned("s1", msg.ID, false))
	assert.Empty(t, l.GetPinnedMessages("s1"))
}

func TestReactions(t *testing.T) {
	l := newTestChatLog()

	reaction, err := l.AddReaction("s1", "u1", "u1", "🔥")
	require.NoError(t, err)
	assert.Equal(t, "🔥", reaction.Emoji)

	_, err = l.AddReaction("s1", "u1", "u1", "")
	assert.ErrorIs(t, err, ErrInvalidEmoji)

	_, err = l.AddReaction("s1", "u1", "u1", strings.Repeat("🔥", 9))
	assert.ErrorIs(t, err, ErrInvalidEmoji)

	assert.Len(t, l.GetReactions("s1"), 1)
}

func TestMuteUnmute(t *testing.T) {
	l := newTestChatLog()

	assert.False(t, l.IsMuted("s1", "u1"))
	l.MuteUser("s1", "u1")
	assert.True(t, l.IsMuted("s1", "u1"))
	assert.False(t, l.IsMuted("s1", "u2"))

	l.UnmuteUser("s1", "u1")
	assert.False(t, l.IsMuted("s1", "u1"))
}

func TestBanPurgesMessagesKeepsReactions(t *testing.T) {
	l := newTestChatLog()

	appendTestMessage(t, l, "s1", "troll", "spam-1")
	appendTestMessage(t, l, "s1", "u2", "legit")
	appendTestMessage(t, l, "s1", "troll", "spam-2")
	_, err := l.AddReaction("s1", "troll", "troll", "😀")
	require.NoError(t, err)

	l.BanUser("s1", "troll")

	assert.True(t, l.IsBanned("s1", "troll"))
	got := l.GetMessages("s1", 10)
	require.Len(t, got, 1)
	assert.Equal(t, "legit", got[0].Content)

	// Reactions survive the purge
	assert.Len(t, l.GetReactions("s1"), 1)

	// Unban lifts the flag but does not restore messages
	l.UnbanUser("s1", "troll")
	assert.False(t, l.IsBanned("s1", "troll"))
	assert.Len(t, l.GetMessages("s1", 10), 1)
}

func TestCleanupOldMessages(t *testing.T) {
	l := newTestChatLog()

	appendTestMessage(t, l, "s1", "u1", "a")
	appendTestMessage(t, l, "s1", "u1", "b")

	assert.Equal(t, 0, l.CleanupOldMessages("s1", time.Hour))
	assert.Len(t, l.GetMessages("s1", 10), 2)

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 2, l.CleanupOldMessages("s1", 0))
	assert.Empty(t, l.GetMessages("s1", 10))
}

func TestChatStats(t *testing.T) {
	l := newTestChatLog()

	msg := appendTestMessage(t, l, "s1", "u1", "hello")
	appendTestMessage(t, l, "s1", "u2", "hi")
	appendTestMessage(t, l, "s1", "u1", "again")
	l.SetPinned("s1", msg.ID, true)
	_, err := l.AddReaction("s1", "u3", "u3", "👏")
	require.NoError(t, err)
	l.MuteUser("s1", "u2")

	stats := l.Stats("s1")
	assert.Equal(t, 3, stats.MessageCount)
	assert.Equal(t, 1, stats.ReactionCount)
	assert.Equal(t, 2, stats.UniqueAuthors)
	assert.Equal(t, 1, stats.PinnedCount)
	assert.Equal(t, 1, stats.MutedCount)
	assert.Equal(t, 0, stats.BannedCount)

	// Unknown sessions report zeroes rather than erroring
	empty := l.Stats("unknown")
	assert.Equal(t, 0, empty.MessageCount)
}

func TestRemoveSession(t *testing.T) {
	l := newTestChatLog()

	appendTestMessage(t, l, "s1", "u1", "hello")
	l.BanUser("s1", "troll")

	l.RemoveSession("s1")

	assert.Empty(t, l.GetMessages("s1", 10))
	assert.False(t, l.IsBanned("s1", "troll"))
}
