package domain

import "time"

// RewardStatus represents the settlement status of a host reward.
// Transitions are monotonic: pending → processing → completed or failed.
type RewardStatus string

const (
	RewardPending    RewardStatus = "pending"
	RewardProcessing RewardStatus = "processing"
	RewardCompleted  RewardStatus = "completed"
	RewardFailed     RewardStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s RewardStatus) Terminal() bool {
	return s == RewardCompleted || s == RewardFailed
}

// LiveReward is a host payout computed once at session teardown.
// All monetary amounts are integer minor currency units and the
// breakdown is immutable after creation: Total = Base + DurationBonus +
// EngagementBonus, never recomputed.
type LiveReward struct {
	ID               string       `json:"id"`
	SessionID        string       `json:"session_id"`
	HostID           string       `json:"host_id"`
	ParticipantCount int          `json:"participant_count"`
	DurationMinutes  int          `json:"duration_minutes"`
	Base             int64        `json:"base"`
	DurationBonus    int64        `json:"duration_bonus"`
	EngagementBonus  int64        `json:"engagement_bonus"`
	Total            int64        `json:"total"`
	Currency         string       `json:"currency"`
	Status           RewardStatus `json:"status"`
	Reason           string       `json:"reason,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
}

// RewardStats aggregates a host's completed rewards.
type RewardStats struct {
	HostID  string  `json:"host_id"`
	Count   int     `json:"count"`
	Total   int64   `json:"total"`
	Average float64 `json:"average"`
	Max     int64   `json:"max"`
}
