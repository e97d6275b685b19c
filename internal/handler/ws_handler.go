package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/streamnest/live-session-service/internal/config"
	"github.com/streamnest/live-session-service/internal/domain"
	"github.com/streamnest/live-session-service/internal/hub"
	"github.com/streamnest/live-session-service/internal/registry"
	"github.com/streamnest/live-session-service/internal/service"
	"github.com/streamnest/live-session-service/pkg/log"
)

// WSHandler handles WebSocket connections for the room surface:
// join/leave, chat, moderation, gifts and signaling relay.
type WSHandler struct {
	live     service.LiveService
	hub      *hub.Hub
	wsConfig config.WebSocketConfig
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(live service.LiveService, h *hub.Hub, wsConfig config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		live:     live,
		hub:      h,
		wsConfig: wsConfig,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin checks happen at the gateway
				return true
			},
		},
	}
}

// RegisterRoutes registers the WebSocket route.
func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket upgrades the connection and starts the pumps.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	l := log.Ctx(c.Request.Context())

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsConfig)
	client.SetDisconnectHandler(h.handleDisconnect)

	if userID := c.GetHeader(headerUserID); userID != "" {
		client.State.Identify(userID, c.GetHeader(headerUsername))
	}

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.handleMessage)
}

// handleDisconnect tears a dropped connection's room state down: its
// handshake is closed and the user leaves the session as if they had
// sent leave_session themselves.
func (h *WSHandler) handleDisconnect(client *hub.Client) {
	ctx := context.Background()

	if peerID := client.State.CurrentPeer(); peerID != "" {
		h.live.ClosePeer(ctx, peerID)
	}

	sessionID := client.State.CurrentSession()
	if sessionID == "" {
		return
	}
	h.hub.LeaveSession(client, sessionID)

	userID, _ := client.State.Identity()
	if userID == "" {
		return
	}
	if err := h.live.LeaveSession(ctx, sessionID, userID); err != nil &&
		!errors.Is(err, registry.ErrSessionNotFound) &&
		!errors.Is(err, service.ErrNotParticipant) {
		l := log.L()
		l.Warn().Err(err).
			Str(log.FieldSessionID, sessionID).
			Str(log.FieldUserID, userID).
			Msg("failed to leave session on disconnect")
	}
}

// handleMessage dispatches one inbound frame.
func (h *WSHandler) handleMessage(client *hub.Client, data []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid message format"))
		return
	}

	ctx := context.Background()

	switch base.Type {
	case domain.MsgTypeJoinSession:
		h.handleJoin(ctx, client, data)
	case domain.MsgTypeLeaveSession:
		h.handleLeave(ctx, client)
	case domain.MsgTypeChatMessage:
		h.handleChat(ctx, client, data)
	case domain.MsgTypeReaction:
		h.handleReaction(ctx, client, data)
	case domain.MsgTypePinMessage:
		h.handlePin(ctx, client, data)
	case domain.MsgTypeMuteUser:
		h.handleModeration(ctx, client, data, true)
	case domain.MsgTypeBanUser:
		h.handleModeration(ctx, client, data, false)
	case domain.MsgTypeGift:
		h.handleGift(ctx, client, data)
	case domain.MsgTypePeerOffer:
		h.handlePeerOffer(ctx, client, data)
	case domain.MsgTypePeerAnswer:
		h.handlePeerAnswer(ctx, client, data)
	case domain.MsgTypeICECandidate:
		h.handleICECandidate(ctx, client, data)
	case domain.MsgTypePeerClose:
		h.handlePeerClose(ctx, client, data)
	case domain.MsgTypePing:
		client.SendMessage(&domain.BaseMessage{Type: domain.MsgTypePong})
	default:
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "unknown message type"))
	}
}

func (h *WSHandler) handleJoin(ctx context.Context, client *hub.Client, data []byte) {
	var msg domain.JoinSessionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid join message"))
		return
	}

	userID, username := client.State.Identity()
	if userID == "" {
		// Fall back to the identity asserted in the payload
		userID, username = msg.UserID, msg.Username
		client.State.Identify(userID, username)
	}
	if userID == "" || msg.SessionID == "" {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "user_id and session_id are required"))
		return
	}

	session, err := h.live.JoinSession(ctx, msg.SessionID, userID, username, msg.Role)
	if err != nil {
		h.sendError(client, err)
		return
	}

	client.State.JoinSession(msg.SessionID)
	h.hub.JoinSession(client, msg.SessionID)

	client.SendMessage(&domain.SessionJoinedMessage{
		Type:    domain.MsgTypeSessionJoined,
		Session: *session,
	})
}

func (h *WSHandler) handleLeave(ctx context.Context, client *hub.Client) {
	sessionID := client.State.CurrentSession()
	if sessionID == "" {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeNotInSession, "not joined to a session"))
		return
	}

	userID, _ := client.State.Identity()
	if err := h.live.LeaveSession(ctx, sessionID, userID); err != nil {
		h.sendError(client, err)
		return
	}

	h.hub.LeaveSession(client, sessionID)
	client.State.LeaveSession()
}

func (h *WSHandler) handleChat(ctx context.Context, client *hub.Client, data []byte) {
	var msg domain.ChatMessageMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid chat message"))
		return
	}

	sessionID, userID, username, ok := h.roomContext(client, msg.SessionID)
	if !ok {
		return
	}

	if _, err := h.live.SendChatMessage(ctx, sessionID, userID, username, msg.Content, msg.MessageType); err != nil {
		h.sendError(client, err)
	}
}

func (h *WSHandler) handleReaction(ctx context.Context, client *hub.Client, data []byte) {
	var msg domain.ReactionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid reaction message"))
		return
	}

	sessionID, userID, username, ok := h.roomContext(client, msg.SessionID)
	if !ok {
		return
	}

	if _, err := h.live.AddReaction(ctx, sessionID, userID, username, msg.Emoji); err != nil {
		h.sendError(client, err)
	}
}

func (h *WSHandler) handlePin(ctx context.Context, client *hub.Client, data []byte) {
	var msg domain.PinMessageMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid pin message"))
		return
	}

	sessionID, userID, _, ok := h.roomContext(client, msg.SessionID)
	if !ok {
		return
	}

	if err := h.live.PinMessage(ctx, sessionID, userID, msg.MessageID, msg.Pinned); err != nil {
		h.sendError(client, err)
	}
}

func (h *WSHandler) handleModeration(ctx context.Context, client *hub.Client, data []byte, mute bool) {
	var msg domain.ModerationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid moderation message"))
		return
	}

	sessionID, userID, _, ok := h.roomContext(client, msg.SessionID)
	if !ok {
		return
	}

	var err error
	if mute {
		err = h.live.MuteUser(ctx, sessionID, userID, msg.TargetUserID, msg.Undo)
	} else {
		err = h.live.BanUser(ctx, sessionID, userID, msg.TargetUserID, msg.Undo)
	}
	if err != nil {
		h.sendError(client, err)
	}
}

func (h *WSHandler) handleGift(ctx context.Context, client *hub.Client, data []byte) {
	var msg domain.GiftMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid gift message"))
		return
	}

	sessionID, userID, username, ok := h.roomContext(client, msg.SessionID)
	if !ok {
		return
	}

	if err := h.live.SendGift(ctx, sessionID, userID, username, msg.Amount, msg.GiftName); err != nil {
		h.sendError(client, err)
	}
}

// handlePeerOffer registers the handshake and relays the offer to the
// session host, who answers it.
func (h *WSHandler) handlePeerOffer(ctx context.Context, client *hub.Client, data []byte) {
	var msg domain.PeerOfferMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid offer message"))
		return
	}

	sessionID, userID, _, ok := h.roomContext(client, msg.SessionID)
	if !ok {
		return
	}

	peerID := msg.PeerID
	if peerID == "" {
		peerID = uuid.New().String()
	}

	if _, err := h.live.CreatePeer(ctx, sessionID, userID, peerID); err != nil {
		h.sendError(client, err)
		return
	}
	if err := h.live.SetPeerOffer(ctx, peerID, msg.Offer); err != nil {
		h.sendError(client, err)
		return
	}
	client.State.SetPeer(peerID)

	session, err := h.live.GetSession(ctx, sessionID)
	if err != nil {
		h.sendError(client, err)
		return
	}
	h.hub.SendToUser(sessionID, session.HostID, &domain.PeerEventMessage{
		Type:      domain.MsgTypePeerOffer,
		SessionID: sessionID,
		PeerID:    peerID,
		UserID:    userID,
		Payload:   msg.Offer,
	})
}

// handlePeerAnswer records the answer and relays it back to the
// handshake's owner.
func (h *WSHandler) handlePeerAnswer(ctx context.Context, client *hub.Client, data []byte) {
	var msg domain.PeerAnswerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid answer message"))
		return
	}

	if err := h.live.SetPeerAnswer(ctx, msg.PeerID, msg.Answer); err != nil {
		h.sendError(client, err)
		return
	}

	peer, err := h.live.GetPeer(ctx, msg.PeerID)
	if err != nil {
		h.sendError(client, err)
		return
	}
	h.hub.SendToUser(peer.SessionID, peer.UserID, &domain.PeerEventMessage{
		Type:      domain.MsgTypePeerAnswer,
		SessionID: peer.SessionID,
		PeerID:    peer.PeerID,
		Payload:   msg.Answer,
	})
}

// handleICECandidate appends the candidate and relays it to the far end:
// the host when the sender owns the handshake, the owner otherwise.
func (h *WSHandler) handleICECandidate(ctx context.Context, client *hub.Client, data []byte) {
	var msg domain.ICECandidateMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid candidate message"))
		return
	}

	if err := h.live.AddICECandidate(ctx, msg.PeerID, msg.Candidate); err != nil {
		h.sendError(client, err)
		return
	}

	peer, err := h.live.GetPeer(ctx, msg.PeerID)
	if err != nil {
		h.sendError(client, err)
		return
	}

	userID, _ := client.State.Identity()
	target := peer.UserID
	if userID == peer.UserID {
		session, err := h.live.GetSession(ctx, peer.SessionID)
		if err != nil {
			h.sendError(client, err)
			return
		}
		target = session.HostID
	}
	h.hub.SendToUser(peer.SessionID, target, &domain.PeerEventMessage{
		Type:      domain.MsgTypeICECandidate,
		SessionID: peer.SessionID,
		PeerID:    peer.PeerID,
		UserID:    userID,
		Payload:   msg.Candidate,
	})
}

func (h *WSHandler) handlePeerClose(ctx context.Context, client *hub.Client, data []byte) {
	var msg domain.PeerCloseMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid close message"))
		return
	}

	if err := h.live.ClosePeer(ctx, msg.PeerID); err != nil {
		h.sendError(client, err)
		return
	}
	if client.State.CurrentPeer() == msg.PeerID {
		client.State.SetPeer("")
	}
}

// roomContext resolves the session and identity a frame applies to. The
// frame may name a session explicitly; otherwise the connection's joined
// session is used.
func (h *WSHandler) roomContext(client *hub.Client, sessionID string) (string, string, string, bool) {
	if sessionID == "" {
		sessionID = client.State.CurrentSession()
	}
	if sessionID == "" {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeNotInSession, "not joined to a session"))
		return "", "", "", false
	}
	userID, username := client.State.Identity()
	if userID == "" {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "join a session first"))
		return "", "", "", false
	}
	return sessionID, userID, username, true
}

// sendError maps a core error onto a wire error frame.
func (h *WSHandler) sendError(client *hub.Client, err error) {
	switch {
	case errors.Is(err, registry.ErrSessionFull):
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeSessionFull, err.Error()))
	case errors.Is(err, registry.ErrSessionEnded):
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeSessionEnded, err.Error()))
	case errors.Is(err, service.ErrUserMuted):
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeMuted, err.Error()))
	case errors.Is(err, service.ErrUserBanned):
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBanned, err.Error()))
	case errors.Is(err, service.ErrNotParticipant):
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeNotInSession, err.Error()))
	case errors.Is(err, service.ErrNotHost), errors.Is(err, service.ErrNotInvitee):
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeForbidden, err.Error()))
	case errors.Is(err, registry.ErrSessionNotFound),
		errors.Is(err, registry.ErrPeerNotFound),
		errors.Is(err, registry.ErrInvitationNotFound):
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeNotFound, err.Error()))
	case errors.Is(err, registry.ErrAlreadyJoined),
		errors.Is(err, registry.ErrPeerExists),
		errors.Is(err, registry.ErrEmptyContent),
		errors.Is(err, registry.ErrContentTooLong),
		errors.Is(err, registry.ErrInvalidEmoji),
		errors.Is(err, registry.ErrInvalidAmount),
		errors.Is(err, registry.ErrHostRoleReserved):
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, err.Error()))
	default:
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeInternalError, "internal error"))
	}
}
