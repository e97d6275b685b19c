package domain

import "encoding/json"

// WebSocket message types from client.
const (
	MsgTypeJoinSession  = "join_session"
	MsgTypeLeaveSession = "leave_session"
	MsgTypeChatMessage  = "chat_message"
	MsgTypeReaction     = "reaction"
	MsgTypePinMessage   = "pin_message"
	MsgTypeMuteUser     = "mute_user"
	MsgTypeBanUser      = "ban_user"
	MsgTypeGift         = "gift"
	MsgTypePeerOffer    = "peer_offer"
	MsgTypePeerAnswer   = "peer_answer"
	MsgTypeICECandidate = "ice_candidate"
	MsgTypePeerClose    = "peer_close"
	MsgTypePing         = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeSessionJoined = "session_joined"
	MsgTypeUserJoined    = "user_joined"
	MsgTypeUserLeft      = "user_left"
	MsgTypeMessagePinned = "message_pinned"
	MsgTypeUserMuted     = "user_muted"
	MsgTypeUserBanned    = "user_banned"
	MsgTypeGiftReceived  = "gift_received"
	MsgTypeSessionEnded  = "session_ended"
	MsgTypeError         = "error"
	MsgTypePong          = "pong"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

// JoinSessionMessage is sent by a client to join a session. Identity is
// gateway-asserted: the upstream edge has already authenticated the user.
type JoinSessionMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id"`
	Username  string          `json:"username"`
	Role      ParticipantRole `json:"role"`
}

// LeaveSessionMessage is sent by a client to leave its session.
type LeaveSessionMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// ChatMessageMessage carries one chat message to append and fan out.
type ChatMessageMessage struct {
	Type        string      `json:"type"`
	SessionID   string      `json:"session_id"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"message_type"`
}

// ReactionMessage carries one emoji reaction.
type ReactionMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Emoji     string `json:"emoji"`
}

// PinMessageMessage toggles a message's pinned flag.
type PinMessageMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	Pinned    bool   `json:"pinned"`
}

// ModerationMessage targets a user for mute/unmute or ban/unban.
type ModerationMessage struct {
	Type         string `json:"type"`
	SessionID    string `json:"session_id"`
	TargetUserID string `json:"target_user_id"`
	Undo         bool   `json:"undo"`
}

// GiftMessage attributes gift revenue (minor units) to the session.
type GiftMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Amount    int64  `json:"amount"`
	GiftName  string `json:"gift_name"`
}

// PeerOfferMessage registers a new handshake and its SDP offer.
type PeerOfferMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	PeerID    string          `json:"peer_id"`
	Offer     json.RawMessage `json:"offer"`
}

// PeerAnswerMessage carries the SDP answer for a handshake.
type PeerAnswerMessage struct {
	Type   string          `json:"type"`
	PeerID string          `json:"peer_id"`
	Answer json.RawMessage `json:"answer"`
}

// ICECandidateMessage appends one ICE candidate to a handshake.
type ICECandidateMessage struct {
	Type      string          `json:"type"`
	PeerID    string          `json:"peer_id"`
	Candidate json.RawMessage `json:"candidate"`
}

// PeerCloseMessage tears down a handshake.
type PeerCloseMessage struct {
	Type   string `json:"type"`
	PeerID string `json:"peer_id"`
}

// Server -> Client messages

// SessionJoinedMessage confirms a successful join.
type SessionJoinedMessage struct {
	Type    string          `json:"type"`
	Session SessionResponse `json:"session"`
}

// ParticipantEventMessage announces a participant joining or leaving.
type ParticipantEventMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id"`
	Username  string          `json:"username"`
	Role      ParticipantRole `json:"role,omitempty"`
}

// ChatEventMessage fans out an appended chat message.
type ChatEventMessage struct {
	Type    string       `json:"type"`
	Message *ChatMessage `json:"message"`
}

// ReactionEventMessage fans out an appended reaction.
type ReactionEventMessage struct {
	Type     string    `json:"type"`
	Reaction *Reaction `json:"reaction"`
}

// PinEventMessage announces a pin/unpin.
type PinEventMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	Pinned    bool   `json:"pinned"`
}

// ModerationEventMessage announces a mute or ban taking effect.
type ModerationEventMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Undo      bool   `json:"undo,omitempty"`
}

// GiftEventMessage announces attributed gift revenue.
type GiftEventMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Amount    int64  `json:"amount"`
	GiftName  string `json:"gift_name,omitempty"`
}

// SessionEndedMessage announces session teardown.
type SessionEndedMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Reason    string `json:"reason,omitempty"`
}

// PeerEventMessage relays handshake payloads between endpoints.
type PeerEventMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	PeerID    string          `json:"peer_id"`
	UserID    string          `json:"user_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ErrorMessage is sent when an operation fails.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeSessionFull   = "SESSION_FULL"
	ErrCodeSessionEnded  = "SESSION_ENDED"
	ErrCodeMuted         = "MUTED"
	ErrCodeBanned        = "BANNED"
	ErrCodeNotInSession  = "NOT_IN_SESSION"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// NewErrorMessage creates a new error message.
func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}
