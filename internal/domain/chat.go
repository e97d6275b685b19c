package domain

import "time"

// MessageType represents the kind of chat message.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeEmoji  MessageType = "emoji"
	MessageTypeGift   MessageType = "gift"
	MessageTypeSystem MessageType = "system"
)

// ChatMessage is one entry in a session's ordered chat log.
// Seq is a server-assigned per-session insertion counter; it is the
// authoritative ordering tiebreak since wall clocks of concurrent
// senders can collide at millisecond resolution.
type ChatMessage struct {
	ID          string      `json:"id"`
	SessionID   string      `json:"session_id"`
	UserID      string      `json:"user_id"`
	Username    string      `json:"username"`
	Type        MessageType `json:"type"`
	Content     string      `json:"content"`
	Timestamp   time.Time   `json:"timestamp"`
	Seq         uint64      `json:"seq"`
	IsModerator bool        `json:"is_moderator"`
	Pinned      bool        `json:"pinned"`
}

// Reaction is an append-only emoji reaction within a session.
type Reaction struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Emoji     string    `json:"emoji"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatStats aggregates per-session chat activity.
type ChatStats struct {
	SessionID     string `json:"session_id"`
	MessageCount  int    `json:"message_count"`
	ReactionCount int    `json:"reaction_count"`
	UniqueAuthors int    `json:"unique_authors"`
	MutedCount    int    `json:"muted_count"`
	BannedCount   int    `json:"banned_count"`
	PinnedCount   int    `json:"pinned_count"`
}
