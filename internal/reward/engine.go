package reward

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streamnest/live-session-service/internal/domain"
)

var (
	ErrRewardNotFound  = errors.New("reward not found")
	ErrRewardFinalized = errors.New("reward already in terminal state")
	ErrInvalidInput    = errors.New("reward inputs must be non-negative")
)

// Tier is one band of the participant-count step function. MinParticipants
// is the inclusive lower bound; the band with the highest bound not
// exceeding the count wins.
type Tier struct {
	MinParticipants int   `mapstructure:"min_participants"`
	Rate            int64 `mapstructure:"rate"`
}

// Config holds the business-tunable reward parameters. All rates are in
// minor currency units.
type Config struct {
	Tiers                []Tier  `mapstructure:"tiers"`
	PerMinuteRate        int64   `mapstructure:"per_minute_rate"`
	EngagementMultiplier float64 `mapstructure:"engagement_multiplier"`
	DefaultCurrency      string  `mapstructure:"default_currency"`
	RetentionDays        int     `mapstructure:"retention_days"`
}

// Validate rejects malformed tier tables. A bad table is a programmer /
// deployment error and must abort startup, not surface at payout time.
func (c *Config) Validate() error {
	if len(c.Tiers) == 0 {
		return errors.New("reward config: at least one tier is required")
	}
	prev := -1
	for i, tier := range c.Tiers {
		if tier.MinParticipants <= prev {
			return fmt.Errorf("reward config: tier %d bounds must be strictly ascending", i)
		}
		if tier.Rate < 0 {
			return fmt.Errorf("reward config: tier %d rate must be non-negative", i)
		}
		prev = tier.MinParticipants
	}
	if c.Tiers[0].MinParticipants > 1 {
		return errors.New("reward config: first tier must cover small sessions")
	}
	if c.PerMinuteRate < 0 || c.EngagementMultiplier < 0 {
		return errors.New("reward config: rates must be non-negative")
	}
	return nil
}

// Engine computes host payouts from session telemetry and keeps the
// resulting ledger. The breakdown is fixed at creation time and never
// recomputed, even if the configuration changes afterwards.
type Engine struct {
	cfg     Config
	rewards map[string]*domain.LiveReward
	mu      sync.RWMutex
}

// NewEngine creates a reward engine. The configuration is validated once
// here; callers should treat an error as fatal.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:     cfg,
		rewards: make(map[string]*domain.LiveReward),
	}, nil
}

// RetentionDays returns how long completed records are kept before the
// periodic cleanup may purge them. Zero disables purging.
func (e *Engine) RetentionDays() int {
	return e.cfg.RetentionDays
}

// TierRate returns the per-participant rate for a session of the given size.
func (e *Engine) TierRate(participantCount int) int64 {
	rate := e.cfg.Tiers[0].Rate
	for _, tier := range e.cfg.Tiers {
		if participantCount < tier.MinParticipants {
			break
		}
		rate = tier.Rate
	}
	return rate
}

// CreateReward mints a pending reward from final session telemetry:
//
//	base       = participants × tierRate(participants)
//	duration   = floor(minutes × perMinuteRate)
//	engagement = floor(giftRevenue × engagementMultiplier)
//	total      = base + duration + engagement
func (e *Engine) CreateReward(sessionID, hostID string, participantCount, durationMinutes int, giftRevenue int64, currency string) (*domain.LiveReward, error) {
	if participantCount < 0 || durationMinutes < 0 || giftRevenue < 0 {
		return nil, ErrInvalidInput
	}
	if currency == "" {
		currency = e.cfg.DefaultCurrency
	}

	base := int64(participantCount) * e.TierRate(participantCount)
	durationBonus := int64(durationMinutes) * e.cfg.PerMinuteRate
	engagementBonus := int64(math.Floor(float64(giftRevenue) * e.cfg.EngagementMultiplier))

	reward := &domain.LiveReward{
		ID:               uuid.New().String(),
		SessionID:        sessionID,
		HostID:           hostID,
		ParticipantCount: participantCount,
		DurationMinutes:  durationMinutes,
		Base:             base,
		DurationBonus:    durationBonus,
		EngagementBonus:  engagementBonus,
		Total:            base + durationBonus + engagementBonus,
		Currency:         currency,
		Status:           domain.RewardPending,
		CreatedAt:        time.Now().UTC(),
	}

	e.mu.Lock()
	e.rewards[reward.ID] = reward
	e.mu.Unlock()

	cp := *reward
	return &cp, nil
}

// MarkProcessing moves a pending reward to processing. Used by the
// payout collaborator when it picks a record up.
func (e *Engine) MarkProcessing(id string) error {
	return e.transition(id, domain.RewardProcessing, "")
}

// CompleteReward applies the completed terminal status.
func (e *Engine) CompleteReward(id string) error {
	return e.transition(id, domain.RewardCompleted, "")
}

// FailReward applies the failed terminal status with a reason.
func (e *Engine) FailReward(id, reason string) error {
	return e.transition(id, domain.RewardFailed, reason)
}

func (e *Engine) transition(id string, status domain.RewardStatus, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	reward, ok := e.rewards[id]
	if !ok {
		return ErrRewardNotFound
	}
	if reward.Status.Terminal() {
		return ErrRewardFinalized
	}
	if status == domain.RewardProcessing && reward.Status != domain.RewardPending {
		return ErrRewardFinalized
	}

	reward.Status = status
	if reason != "" {
		reward.Reason = reason
	}
	if status.Terminal() {
		now := time.Now().UTC()
		reward.CompletedAt = &now
	}
	return nil
}

// GetReward returns a copy of the reward.
func (e *Engine) GetReward(id string) (*domain.LiveReward, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	reward, ok := e.rewards[id]
	if !ok {
		return nil, ErrRewardNotFound
	}
	cp := *reward
	return &cp, nil
}

// GetHostRewards returns every reward minted for a host.
func (e *Engine) GetHostRewards(hostID string) []*domain.LiveReward {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var result []*domain.LiveReward
	for _, reward := range e.rewards {
		if reward.HostID == hostID {
			cp := *reward
			result = append(result, &cp)
		}
	}
	return result
}

// GetTotalHostRewards sums a host's completed rewards. In-flight and
// failed records are not money owed.
func (e *Engine) GetTotalHostRewards(hostID string) int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var total int64
	for _, reward := range e.rewards {
		if reward.HostID == hostID && reward.Status == domain.RewardCompleted {
			total += reward.Total
		}
	}
	return total
}

// GetRewardStats aggregates a host's completed rewards.
func (e *Engine) GetRewardStats(hostID string) domain.RewardStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := domain.RewardStats{HostID: hostID}
	for _, reward := range e.rewards {
		if reward.HostID != hostID || reward.Status != domain.RewardCompleted {
			continue
		}
		stats.Count++
		stats.Total += reward.Total
		if reward.Total > stats.Max {
			stats.Max = reward.Total
		}
	}
	if stats.Count > 0 {
		stats.Average = float64(stats.Total) / float64(stats.Count)
	}
	return stats
}

// CleanupOldRewards purges completed records older than the cutoff and
// returns the count removed. Pending, processing and failed records are
// never dropped regardless of age: unresolved money must stay visible.
func (e *Engine) CleanupOldRewards(olderThanDays int) int {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)

	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for id, reward := range e.rewards {
		if reward.Status == domain.RewardCompleted && reward.CreatedAt.Before(cutoff) {
			delete(e.rewards, id)
			removed++
		}
	}
	return removed
}
