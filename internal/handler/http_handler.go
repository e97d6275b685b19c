package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/streamnest/live-session-service/internal/domain"
	"github.com/streamnest/live-session-service/internal/registry"
	"github.com/streamnest/live-session-service/internal/reward"
	"github.com/streamnest/live-session-service/internal/service"
	"github.com/streamnest/live-session-service/pkg/log"
	"github.com/streamnest/live-session-service/pkg/response"
)

// Identity headers asserted by the upstream gateway, which has already
// authenticated the caller. This service trusts them as-is.
const (
	headerUserID   = "X-User-ID"
	headerUsername = "X-Username"
)

// Handler handles HTTP requests for the live-session service.
type Handler struct {
	live                   service.LiveService
	defaultMaxParticipants int
	historyLimit           int
}

// NewHandler creates a new HTTP handler. historyLimit caps how many chat
// messages one history read may return.
func NewHandler(live service.LiveService, defaultMaxParticipants, historyLimit int) *Handler {
	return &Handler{
		live:                   live,
		defaultMaxParticipants: defaultMaxParticipants,
		historyLimit:           historyLimit,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		sessions := api.Group("/sessions")
		{
			sessions.GET("", h.ListPublicSessions)
			sessions.GET("/:id", h.GetSession)
			sessions.GET("/:id/messages", h.GetMessages)
			sessions.GET("/:id/messages/pinned", h.GetPinnedMessages)
			sessions.GET("/:id/chat/stats", h.GetChatStats)
			sessions.GET("/:id/peers", h.GetSessionPeers)
			sessions.GET("/:id/peers/stats", h.GetPeerStats)
			sessions.GET("/:id/invitations", h.GetSessionInvitations)

			sessions.POST("", h.requireIdentity(), h.CreateSession)
			sessions.POST("/:id/join", h.requireIdentity(), h.JoinSession)
			sessions.POST("/:id/leave", h.requireIdentity(), h.LeaveSession)
			sessions.POST("/:id/start", h.requireIdentity(), h.StartSession)
			sessions.POST("/:id/gifts", h.requireIdentity(), h.SendGift)
			sessions.DELETE("/:id", h.requireIdentity(), h.EndSession)
		}

		invitations := api.Group("/invitations", h.requireIdentity())
		{
			invitations.POST("", h.SendInvitation)
			invitations.GET("", h.GetUserInvitations)
			invitations.GET("/pending", h.GetPendingInvitations)
			invitations.POST("/:id/accept", h.AcceptInvitation)
			invitations.POST("/:id/reject", h.RejectInvitation)
			invitations.POST("/:id/cancel", h.CancelInvitation)
		}

		rewards := api.Group("/rewards")
		{
			rewards.GET("/:id", h.GetReward)
			rewards.POST("/:id/processing", h.MarkRewardProcessing)
			rewards.POST("/:id/complete", h.CompleteReward)
			rewards.POST("/:id/fail", h.FailReward)
		}

		hosts := api.Group("/hosts")
		{
			hosts.GET("/:id/rewards", h.GetHostRewards)
			hosts.GET("/:id/rewards/stats", h.GetRewardStats)
			hosts.GET("/:id/rewards/total", h.GetTotalHostRewards)
		}
	}
}

// requireIdentity rejects requests missing the gateway identity headers
// and exposes the actor to the request logger.
func (h *Handler) requireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(headerUserID)
		if userID == "" {
			response.Unauthorized(c, "missing identity")
			c.Abort()
			return
		}
		c.Set(log.FieldUserID, userID)
		if username := c.GetHeader(headerUsername); username != "" {
			c.Set(log.FieldUsername, username)
		}
		c.Next()
	}
}

func identity(c *gin.Context) (string, string) {
	return c.GetHeader(headerUserID), c.GetHeader(headerUsername)
}

// fail maps the core's sentinel errors onto the response envelope.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registry.ErrSessionNotFound),
		errors.Is(err, registry.ErrInvitationNotFound),
		errors.Is(err, registry.ErrPeerNotFound),
		errors.Is(err, reward.ErrRewardNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, registry.ErrSessionFull),
		errors.Is(err, registry.ErrAlreadyJoined),
		errors.Is(err, registry.ErrSessionEnded),
		errors.Is(err, registry.ErrInvitationResolved),
		errors.Is(err, registry.ErrInvitationExpired),
		errors.Is(err, registry.ErrInvalidTransition),
		errors.Is(err, reward.ErrRewardFinalized):
		response.Conflict(c, err.Error())
	case errors.Is(err, service.ErrNotHost),
		errors.Is(err, service.ErrNotInvitee),
		errors.Is(err, registry.ErrInvitationNotSender),
		errors.Is(err, service.ErrUserBanned),
		errors.Is(err, service.ErrUserMuted):
		response.Forbidden(c, err.Error())
	case errors.Is(err, service.ErrNotParticipant),
		errors.Is(err, registry.ErrInvalidCapacity),
		errors.Is(err, registry.ErrInvalidAmount),
		errors.Is(err, registry.ErrHostRoleReserved),
		errors.Is(err, registry.ErrEmptyContent),
		errors.Is(err, registry.ErrContentTooLong),
		errors.Is(err, registry.ErrInvalidEmoji),
		errors.Is(err, reward.ErrInvalidInput):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, "internal error")
	}
}

// CreateSession creates a new session.
func (h *Handler) CreateSession(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	userID, username := identity(c)

	var req domain.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind create session request")
		response.BadRequest(c, err.Error())
		return
	}
	if req.MaxParticipants == 0 {
		req.MaxParticipants = h.defaultMaxParticipants
	}

	session, err := h.live.CreateSession(ctx, userID, username, &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, session)
}

// GetSession retrieves a session by ID.
func (h *Handler) GetSession(c *gin.Context) {
	session, err := h.live.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, session)
}

// ListPublicSessions lists public live sessions.
func (h *Handler) ListPublicSessions(c *gin.Context) {
	sessions := h.live.ListPublicSessions(c.Request.Context())
	response.Success(c, gin.H{"sessions": sessions, "total": len(sessions)})
}

type joinRequest struct {
	Role domain.ParticipantRole `json:"role"`
}

// JoinSession enrolls the caller in a session.
func (h *Handler) JoinSession(c *gin.Context) {
	userID, username := identity(c)

	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.BadRequest(c, err.Error())
		return
	}

	session, err := h.live.JoinSession(c.Request.Context(), c.Param("id"), userID, username, req.Role)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, session)
}

// LeaveSession removes the caller from a session.
func (h *Handler) LeaveSession(c *gin.Context) {
	userID, _ := identity(c)
	if err := h.live.LeaveSession(c.Request.Context(), c.Param("id"), userID); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "left session"})
}

// StartSession transitions the caller's session to live.
func (h *Handler) StartSession(c *gin.Context) {
	userID, _ := identity(c)
	if err := h.live.StartSession(c.Request.Context(), c.Param("id"), userID); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "session live"})
}

// EndSession ends the caller's session and returns the minted reward,
// if any.
func (h *Handler) EndSession(c *gin.Context) {
	userID, _ := identity(c)
	rw, err := h.live.EndSession(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "session ended", "reward": rw})
}

type giftRequest struct {
	Amount   int64  `json:"amount" binding:"required,min=1"`
	GiftName string `json:"gift_name"`
}

// SendGift attributes gift revenue to a session.
func (h *Handler) SendGift(c *gin.Context) {
	userID, username := identity(c)

	var req giftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.live.SendGift(c.Request.Context(), c.Param("id"), userID, username, req.Amount, req.GiftName); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "gift recorded"})
}

// GetMessages returns a session's recent chat history.
func (h *Handler) GetMessages(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit < 1 || limit > h.historyLimit {
		limit = h.historyLimit
	}

	if sinceStr := c.Query("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339Nano, sinceStr)
		if err != nil {
			response.BadRequest(c, "since must be RFC3339")
			return
		}
		response.Success(c, h.live.GetRecentMessages(ctx, sessionID, since, limit))
		return
	}

	response.Success(c, h.live.GetChatMessages(ctx, sessionID, limit))
}

// GetPinnedMessages returns a session's pinned messages.
func (h *Handler) GetPinnedMessages(c *gin.Context) {
	response.Success(c, h.live.GetPinnedMessages(c.Request.Context(), c.Param("id")))
}

// GetChatStats returns aggregate chat activity for a session.
func (h *Handler) GetChatStats(c *gin.Context) {
	response.Success(c, h.live.GetChatStats(c.Request.Context(), c.Param("id")))
}

// GetSessionPeers returns a session's handshake records.
func (h *Handler) GetSessionPeers(c *gin.Context) {
	response.Success(c, h.live.GetSessionPeers(c.Request.Context(), c.Param("id")))
}

// GetPeerStats returns connection-state counts for a session.
func (h *Handler) GetPeerStats(c *gin.Context) {
	response.Success(c, h.live.GetPeerStats(c.Request.Context(), c.Param("id")))
}

// SendInvitation invites a user to the caller's session.
func (h *Handler) SendInvitation(c *gin.Context) {
	ctx := c.Request.Context()
	userID, username := identity(c)

	var req domain.SendInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	inv, err := h.live.SendInvitation(ctx, userID, username, &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, inv)
}

// AcceptInvitation resolves an invitation and joins the session as guest.
func (h *Handler) AcceptInvitation(c *gin.Context) {
	userID, username := identity(c)
	session, err := h.live.AcceptInvitation(c.Request.Context(), c.Param("id"), userID, username)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, session)
}

// RejectInvitation resolves an invitation as rejected.
func (h *Handler) RejectInvitation(c *gin.Context) {
	userID, _ := identity(c)
	if err := h.live.RejectInvitation(c.Request.Context(), c.Param("id"), userID); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "invitation rejected"})
}

// CancelInvitation withdraws an invitation the caller sent.
func (h *Handler) CancelInvitation(c *gin.Context) {
	userID, _ := identity(c)
	if err := h.live.CancelInvitation(c.Request.Context(), c.Param("id"), userID); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "invitation cancelled"})
}

// GetUserInvitations returns every invitation addressed to the caller.
func (h *Handler) GetUserInvitations(c *gin.Context) {
	userID, _ := identity(c)
	response.Success(c, h.live.GetUserInvitations(c.Request.Context(), userID))
}

// GetPendingInvitations returns the caller's unresolved invitations.
func (h *Handler) GetPendingInvitations(c *gin.Context) {
	userID, _ := identity(c)
	response.Success(c, h.live.GetPendingInvitations(c.Request.Context(), userID))
}

// GetSessionInvitations returns every invitation for a session.
func (h *Handler) GetSessionInvitations(c *gin.Context) {
	response.Success(c, h.live.GetSessionInvitations(c.Request.Context(), c.Param("id")))
}

// GetReward returns one reward record.
func (h *Handler) GetReward(c *gin.Context) {
	rw, err := h.live.GetReward(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, rw)
}

// MarkRewardProcessing moves a reward to processing.
func (h *Handler) MarkRewardProcessing(c *gin.Context) {
	if err := h.live.MarkRewardProcessing(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "reward processing"})
}

// CompleteReward applies the completed terminal status.
func (h *Handler) CompleteReward(c *gin.Context) {
	if err := h.live.CompleteReward(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "reward completed"})
}

type failRewardRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// FailReward applies the failed terminal status with a reason.
func (h *Handler) FailReward(c *gin.Context) {
	var req failRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.live.FailReward(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "reward failed"})
}

// GetHostRewards returns every reward minted for a host.
func (h *Handler) GetHostRewards(c *gin.Context) {
	response.Success(c, h.live.GetHostRewards(c.Request.Context(), c.Param("id")))
}

// GetRewardStats returns aggregate reward stats for a host.
func (h *Handler) GetRewardStats(c *gin.Context) {
	response.Success(c, h.live.GetRewardStats(c.Request.Context(), c.Param("id")))
}

// GetTotalHostRewards returns the sum of a host's completed rewards.
func (h *Handler) GetTotalHostRewards(c *gin.Context) {
	response.Success(c, gin.H{"host_id": c.Param("id"), "total": h.live.GetTotalHostRewards(c.Request.Context(), c.Param("id"))})
}
