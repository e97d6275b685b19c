package domain

import (
	"time"
)

// SessionState represents the lifecycle state of a live session.
type SessionState string

const (
	SessionStatePending  SessionState = "pending"
	SessionStateStarting SessionState = "starting"
	SessionStateLive     SessionState = "live"
	SessionStateEnding   SessionState = "ending"
	SessionStateEnded    SessionState = "ended"
)

// MediaType represents the kind of media a session broadcasts.
type MediaType string

const (
	MediaTypeVideo  MediaType = "video"
	MediaTypeAudio  MediaType = "audio"
	MediaTypeScreen MediaType = "screen"
)

// ParticipantRole represents a participant's role within a session.
type ParticipantRole string

const (
	RoleHost   ParticipantRole = "host"
	RoleGuest  ParticipantRole = "guest"
	RoleViewer ParticipantRole = "viewer"
)

// Participant is a user enrolled in a live session.
type Participant struct {
	UserID     string          `json:"user_id"`
	Username   string          `json:"username"`
	Role       ParticipantRole `json:"role"`
	JoinedAt   time.Time       `json:"joined_at"`
	AudioMuted bool            `json:"audio_muted"`
	VideoOff   bool            `json:"video_off"`
	PeerID     string          `json:"peer_id,omitempty"`
}

// Session is one live broadcast instance: a host, its participants, and
// accumulated telemetry. GiftRevenue is in minor currency units.
type Session struct {
	ID              string                  `json:"id"`
	HostID          string                  `json:"host_id"`
	HostUsername    string                  `json:"host_username"`
	Title           string                  `json:"title"`
	Description     string                  `json:"description,omitempty"`
	MediaType       MediaType               `json:"media_type"`
	IsPublic        bool                    `json:"is_public"`
	State           SessionState            `json:"state"`
	MaxParticipants int                     `json:"max_participants"`
	ViewerCount     int                     `json:"viewer_count"`
	GiftRevenue     int64                   `json:"gift_revenue"`
	Participants    map[string]*Participant `json:"participants"`
	CreatedAt       time.Time               `json:"created_at"`
	WentLiveAt      *time.Time              `json:"went_live_at,omitempty"`
	EndedAt         *time.Time              `json:"ended_at,omitempty"`
}

// GuestCount returns the number of participants with the guest role.
func (s *Session) GuestCount() int {
	n := 0
	for _, p := range s.Participants {
		if p.Role == RoleGuest {
			n++
		}
	}
	return n
}

// Ended reports whether the session has reached its terminal state.
func (s *Session) Ended() bool {
	return s.State == SessionStateEnded
}

// LiveMinutes returns whole minutes spent live, zero if the session
// never went live or has not ended.
func (s *Session) LiveMinutes() int {
	if s.WentLiveAt == nil || s.EndedAt == nil {
		return 0
	}
	return int(s.EndedAt.Sub(*s.WentLiveAt).Minutes())
}

// Clone returns a deep copy safe to hand to callers.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Participants = make(map[string]*Participant, len(s.Participants))
	for id, p := range s.Participants {
		pc := *p
		cp.Participants[id] = &pc
	}
	return &cp
}

// CreateSessionRequest represents a create session request.
type CreateSessionRequest struct {
	Title           string    `json:"title" binding:"required,min=1,max=200"`
	Description     string    `json:"description"`
	MediaType       MediaType `json:"media_type"`
	IsPublic        *bool     `json:"is_public"`
	MaxParticipants int       `json:"max_participants"`
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	ID               string        `json:"id"`
	HostID           string        `json:"host_id"`
	HostUsername     string        `json:"host_username"`
	Title            string        `json:"title"`
	Description      string        `json:"description,omitempty"`
	MediaType        MediaType     `json:"media_type"`
	IsPublic         bool          `json:"is_public"`
	State            SessionState  `json:"state"`
	MaxParticipants  int           `json:"max_participants"`
	ParticipantCount int           `json:"participant_count"`
	ViewerCount      int           `json:"viewer_count"`
	GiftRevenue      int64         `json:"gift_revenue"`
	Participants     []Participant `json:"participants,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	EndedAt          *time.Time    `json:"ended_at,omitempty"`
}

// ToResponse converts Session to SessionResponse.
func (s *Session) ToResponse() SessionResponse {
	participants := make([]Participant, 0, len(s.Participants))
	for _, p := range s.Participants {
		participants = append(participants, *p)
	}
	return SessionResponse{
		ID:               s.ID,
		HostID:           s.HostID,
		HostUsername:     s.HostUsername,
		Title:            s.Title,
		Description:      s.Description,
		MediaType:        s.MediaType,
		IsPublic:         s.IsPublic,
		State:            s.State,
		MaxParticipants:  s.MaxParticipants,
		ParticipantCount: len(s.Participants),
		ViewerCount:      s.ViewerCount,
		GiftRevenue:      s.GiftRevenue,
		Participants:     participants,
		CreatedAt:        s.CreatedAt,
		EndedAt:          s.EndedAt,
	}
}
