package reward

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamnest/live-session-service/internal/domain"
)

func testConfig() Config {
	return Config{
		Tiers: []Tier{
			{MinParticipants: 1, Rate: 200},
			{MinParticipants: 6, Rate: 350},
			{MinParticipants: 16, Rate: 500},
			{MinParticipants: 31, Rate: 750},
			{MinParticipants: 51, Rate: 1000},
		},
		PerMinuteRate:        150,
		EngagementMultiplier: 0.25,
		DefaultCurrency:      "USD",
		RetentionDays:        90,
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(testConfig())
	require.NoError(t, err)
	return engine
}

func TestConfigValidate(t *testing.T) {
	valid := testConfig()
	require.NoError(t, valid.Validate())

	empty := testConfig()
	empty.Tiers = nil
	assert.Error(t, empty.Validate())

	unordered := testConfig()
	unordered.Tiers[1].MinParticipants = 0
	assert.Error(t, unordered.Validate())

	gap := testConfig()
	gap.Tiers[0].MinParticipants = 5
	assert.Error(t, gap.Validate())

	negative := testConfig()
	negative.PerMinuteRate = -1
	assert.Error(t, negative.Validate())
}

func TestTierRate(t *testing.T) {
	engine := newTestEngine(t)

	cases := []struct {
		participants int
		rate         int64
	}{
		{1, 200},
		{5, 200},
		{6, 350},
		{15, 350},
		{16, 500},
		{30, 500},
		{31, 750},
		{50, 750},
		{51, 1000},
		{500, 1000},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.rate, engine.TierRate(tc.participants), "participants=%d", tc.participants)
	}
}

func TestCreateReward(t *testing.T) {
	engine := newTestEngine(t)

	rw, err := engine.CreateReward("s1", "host-1", 10, 10, 1000, "USD")
	require.NoError(t, err)

	assert.Equal(t, int64(3500), rw.Base)
	assert.Equal(t, int64(1500), rw.DurationBonus)
	assert.Equal(t, int64(250), rw.EngagementBonus)
	assert.Equal(t, int64(5250), rw.Total)
	assert.Equal(t, "USD", rw.Currency)
	assert.Equal(t, domain.RewardPending, rw.Status)
}

func TestCreateRewardDefaultsCurrency(t *testing.T) {
	engine := newTestEngine(t)

	rw, err := engine.CreateReward("s1", "host-1", 1, 0, 0, "")
	require.NoError(t, err)
	assert.Equal(t, "USD", rw.Currency)
}

func TestCreateRewardRejectsNegativeInputs(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.CreateReward("s1", "host-1", -1, 0, 0, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = engine.CreateReward("s1", "host-1", 0, -1, 0, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = engine.CreateReward("s1", "host-1", 0, 0, -1, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestTotalEqualsBreakdownSum(t *testing.T) {
	engine := newTestEngine(t)

	cases := []struct {
		participants int
		minutes      int
		gifts        int64
	}{
		{0, 0, 0},
		{1, 1, 1},
		{7, 45, 333},
		{52, 120, 99999},
	}
	for _, tc := range cases {
		rw, err := engine.CreateReward("s1", "host-1", tc.participants, tc.minutes, tc.gifts, "")
		require.NoError(t, err)
		assert.Equal(t, rw.Base+rw.DurationBonus+rw.EngagementBonus, rw.Total)
	}
}

func TestRewardTransitions(t *testing.T) {
	engine := newTestEngine(t)

	rw, err := engine.CreateReward("s1", "host-1", 5, 10, 0, "")
	require.NoError(t, err)

	require.NoError(t, engine.MarkProcessing(rw.ID))
	require.NoError(t, engine.CompleteReward(rw.ID))

	got, err := engine.GetReward(rw.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RewardCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	// Terminal states are final
	assert.ErrorIs(t, engine.CompleteReward(rw.ID), ErrRewardFinalized)
	assert.ErrorIs(t, engine.MarkProcessing(rw.ID), ErrRewardFinalized)
	assert.ErrorIs(t, engine.FailReward(rw.ID, "too late"), ErrRewardFinalized)
}

func TestFailReward(t *testing.T) {
	engine := newTestEngine(t)

	rw, err := engine.CreateReward("s1", "host-1", 5, 10, 0, "")
	require.NoError(t, err)

	require.NoError(t, engine.FailReward(rw.ID, "payout provider unavailable"))

	got, err := engine.GetReward(rw.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RewardFailed, got.Status)
	assert.Equal(t, "payout provider unavailable", got.Reason)
}

func TestMarkProcessingOnlyFromPending(t *testing.T) {
	engine := newTestEngine(t)

	rw, err := engine.CreateReward("s1", "host-1", 5, 10, 0, "")
	require.NoError(t, err)

	require.NoError(t, engine.MarkProcessing(rw.ID))
	assert.ErrorIs(t, engine.MarkProcessing(rw.ID), ErrRewardFinalized)
}

func TestHostTotalsCountCompletedOnly(t *testing.T) {
	engine := newTestEngine(t)

	first, err := engine.CreateReward("s1", "host-1", 10, 10, 1000, "")
	require.NoError(t, err)
	second, err := engine.CreateReward("s2", "host-1", 1, 0, 0, "")
	require.NoError(t, err)
	_, err = engine.CreateReward("s3", "host-2", 1, 0, 0, "")
	require.NoError(t, err)

	require.NoError(t, engine.CompleteReward(first.ID))
	require.NoError(t, engine.FailReward(second.ID, "declined"))

	assert.Equal(t, int64(5250), engine.GetTotalHostRewards("host-1"))
	assert.Len(t, engine.GetHostRewards("host-1"), 2)

	stats := engine.GetRewardStats("host-1")
	assert.Equal(t, 1, stats.Count)
	assert.Equal(t, int64(5250), stats.Total)
	assert.Equal(t, int64(5250), stats.Max)
	assert.Equal(t, float64(5250), stats.Average)
}

func TestCleanupOldRewards(t *testing.T) {
	engine := newTestEngine(t)

	completed, err := engine.CreateReward("s1", "host-1", 5, 10, 0, "")
	require.NoError(t, err)
	require.NoError(t, engine.CompleteReward(completed.ID))

	pending, err := engine.CreateReward("s2", "host-1", 5, 10, 0, "")
	require.NoError(t, err)
	failed, err := engine.CreateReward("s3", "host-1", 5, 10, 0, "")
	require.NoError(t, err)
	require.NoError(t, engine.FailReward(failed.ID, "declined"))

	// A zero-day horizon makes every record "old"; only the completed
	// one may be dropped
	assert.Equal(t, 1, engine.CleanupOldRewards(0))

	_, err = engine.GetReward(completed.ID)
	assert.ErrorIs(t, err, ErrRewardNotFound)
	_, err = engine.GetReward(pending.ID)
	assert.NoError(t, err)
	_, err = engine.GetReward(failed.ID)
	assert.NoError(t, err)
}
