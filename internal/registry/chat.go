package registry

import (
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/streamnest/live-session-service/internal/domain"
)

var (
	ErrEmptyContent   = errors.New("message content is empty")
	ErrContentTooLong = errors.New("message content exceeds maximum length")
	ErrInvalidEmoji   = errors.New("invalid emoji")
)

// roomLog holds one session's chat history and moderation state.
type roomLog struct {
	messages  []*domain.ChatMessage
	reactions []*domain.Reaction
	muted     map[string]struct{}
	banned    map[string]struct{}
	seq       uint64
}

// ChatLog is the per-session ordered chat history plus mute/ban sets.
// Chat operations are best-effort telemetry: lookups on unknown
// sessions return empty results rather than errors, and appends lazily
// create the log. Mute/ban enforcement before a send is the router's
// contract; this component only exposes the predicates.
type ChatLog struct {
	rooms         map[string]*roomLog
	maxMessageLen int
	maxEmojiLen   int
	mu            sync.RWMutex
}

// NewChatLog creates a chat log with the given validation limits
// (message length in bytes, emoji length in runes).
func NewChatLog(maxMessageLen, maxEmojiLen int) *ChatLog {
	return &ChatLog{
		rooms:         make(map[string]*roomLog),
		maxMessageLen: maxMessageLen,
		maxEmojiLen:   maxEmojiLen,
	}
}

func (l *ChatLog) roomLocked(sessionID string) *roomLog {
	room, ok := l.rooms[sessionID]
	if !ok {
		room = &roomLog{
			muted:  make(map[string]struct{}),
			banned: make(map[string]struct{}),
		}
		l.rooms[sessionID] = room
	}
	return room
}

// AppendMessage validates and appends a message to the session's log.
// Seq is assigned under the lock, so log order is the insertion order
// regardless of wall-clock ties between concurrent senders.
func (l *ChatLog) AppendMessage(sessionID, userID, username, content string, msgType domain.MessageType, isModerator bool) (*domain.ChatMessage, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}
	if len(content) > l.maxMessageLen {
		return nil, ErrContentTooLong
	}
	if msgType == "" {
		msgType = domain.MessageTypeText
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	room := l.roomLocked(sessionID)
	room.seq++
	msg := &domain.ChatMessage{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		UserID:      userID,
		Username:    username,
		Type:        msgType,
		Content:     content,
		Timestamp:   time.Now().UTC(),
		Seq:         room.seq,
		IsModerator: isModerator,
	}
	room.messages = append(room.messages, msg)
	return msg, nil
}

// GetMessages returns the most recent limit messages in chronological order.
func (l *ChatLog) GetMessages(sessionID string, limit int) []*domain.ChatMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()

	room, ok := l.rooms[sessionID]
	if !ok || limit <= 0 {
		return nil
	}

	start := len(room.messages) - limit
	if start < 0 {
		start = 0
	}
	result := make([]*domain.ChatMessage, len(room.messages)-start)
	for i, msg := range room.messages[start:] {
		cp := *msg
		result[i] = &cp
	}
	return result
}

// GetRecentMessages returns up to limit messages strictly after the
// given timestamp, in chronological order.
func (l *ChatLog) GetRecentMessages(sessionID string, since time.Time, limit int) []*domain.ChatMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()

	room, ok := l.rooms[sessionID]
	if !ok || limit <= 0 {
		return nil
	}

	var result []*domain.ChatMessage
	for _, msg := range room.messages {
		if !msg.Timestamp.After(since) {
			continue
		}
		cp := *msg
		result = append(result, &cp)
		if len(result) == limit {
			break
		}
	}
	return result
}

// SetPinned toggles a message's pinned flag. Returns false if the
// session or message is unknown.
func (l *ChatLog) SetPinned(sessionID, messageID string, pinned bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	room, ok := l.rooms[sessionID]
	if !ok {
		return false
	}
	for _, msg := range room.messages {
		if msg.ID == messageID {
			msg.Pinned = pinned
			return true
		}
	}
	return false
}

// GetPinnedMessages filters the log for pinned messages. The pin set is
// derived from message flags, not separately authoritative.
func (l *ChatLog) GetPinnedMessages(sessionID string) []*domain.ChatMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()

	room, ok := l.rooms[sessionID]
	if !ok {
		return nil
	}
	var result []*domain.ChatMessage
	for _, msg := range room.messages {
		if msg.Pinned {
			cp := *msg
			result = append(result, &cp)
		}
	}
	return result
}

// AddReaction validates and appends an emoji reaction. Reactions are
// append-only and survive moderation actions against their author.
func (l *ChatLog) AddReaction(sessionID, userID, username, emoji string) (*domain.Reaction, error) {
	if n := utf8.RuneCountInString(emoji); n == 0 || n > l.maxEmojiLen {
		return nil, ErrInvalidEmoji
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	room := l.roomLocked(sessionID)
	reaction := &domain.Reaction{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		UserID:    userID,
		Username:  username,
		Emoji:     emoji,
		Timestamp: time.Now().UTC(),
	}
	room.reactions = append(room.reactions, reaction)
	return reaction, nil
}

// GetReactions returns the session's reactions in insertion order.
func (l *ChatLog) GetReactions(sessionID string) []*domain.Reaction {
	l.mu.RLock()
	defer l.mu.RUnlock()

	room, ok := l.rooms[sessionID]
	if !ok {
		return nil
	}
	result := make([]*domain.Reaction, len(room.reactions))
	for i, reaction := range room.reactions {
		cp := *reaction
		result[i] = &cp
	}
	return result
}

// MuteUser adds the user to the session's mute set. Muting is advisory
// for future sends and has no effect on message history.
func (l *ChatLog) MuteUser(sessionID, userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roomLocked(sessionID).muted[userID] = struct{}{}
}

// UnmuteUser removes the user from the session's mute set.
func (l *ChatLog) UnmuteUser(sessionID, userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if room, ok := l.rooms[sessionID]; ok {
		delete(room.muted, userID)
	}
}

// IsMuted reports whether a user is muted in the session.
func (l *ChatLog) IsMuted(sessionID, userID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	room, ok := l.rooms[sessionID]
	if !ok {
		return false
	}
	_, muted := room.muted[userID]
	return muted
}

// BanUser adds the user to the session's ban set and retroactively
// purges all of that user's messages from the log. Reactions are kept.
func (l *ChatLog) BanUser(sessionID, userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	room := l.roomLocked(sessionID)
	room.banned[userID] = struct{}{}

	kept := room.messages[:0]
	for _, msg := range room.messages {
		if msg.UserID != userID {
			kept = append(kept, msg)
		}
	}
	room.messages = kept
}

// UnbanUser removes the user from the ban set. Purged messages are not
// restored.
func (l *ChatLog) UnbanUser(sessionID, userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if room, ok := l.rooms[sessionID]; ok {
		delete(room.banned, userID)
	}
}

// IsBanned reports whether a user is banned in the session.
func (l *ChatLog) IsBanned(sessionID, userID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	room, ok := l.rooms[sessionID]
	if !ok {
		return false
	}
	_, banned := room.banned[userID]
	return banned
}

// CleanupOldMessages removes messages older than maxAge and returns the
// count removed. Used for bounded memory during long-lived sessions.
func (l *ChatLog) CleanupOldMessages(sessionID string, maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	l.mu.Lock()
	defer l.mu.Unlock()

	room, ok := l.rooms[sessionID]
	if !ok {
		return 0
	}
	kept := room.messages[:0]
	removed := 0
	for _, msg := range room.messages {
		if msg.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, msg)
	}
	room.messages = kept
	return removed
}

// Stats aggregates the session's chat activity.
func (l *ChatLog) Stats(sessionID string) domain.ChatStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := domain.ChatStats{SessionID: sessionID}
	room, ok := l.rooms[sessionID]
	if !ok {
		return stats
	}

	authors := make(map[string]struct{})
	for _, msg := range room.messages {
		authors[msg.UserID] = struct{}{}
		if msg.Pinned {
			stats.PinnedCount++
		}
	}
	stats.MessageCount = len(room.messages)
	stats.ReactionCount = len(room.reactions)
	stats.UniqueAuthors = len(authors)
	stats.MutedCount = len(room.muted)
	stats.BannedCount = len(room.banned)
	return stats
}

// RemoveSession drops the session's log and moderation state. Called
// when the session is garbage-collected.
func (l *ChatLog) RemoveSession(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.rooms, sessionID)
}
