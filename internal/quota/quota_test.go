package quota

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"farmBoxAPI/internal/types/subscription"
)

func TestTryConsumePauseStopsAtCap(t *testing.T) {
	tracker := Tracker{MaxPauses: 4, MaxSkips: 2}

	for i := 0; i < 4; i++ {
		assert.True(t, tracker.TryConsumePause())
	}
	assert.False(t, tracker.TryConsumePause(), "fifth pause must be refused")
	assert.Equal(t, 4, tracker.PausesUsed, "counter never exceeds the cap")
}

func TestTryConsumeSkipStopsAtCap(t *testing.T) {
	tracker := Tracker{MaxPauses: 4, MaxSkips: 2}

	assert.True(t, tracker.TryConsumeSkip())
	assert.True(t, tracker.TryConsumeSkip())
	assert.False(t, tracker.TryConsumeSkip())
	assert.Equal(t, 2, tracker.SkipsUsed)
}

func TestReleaseSkipRoundTrip(t *testing.T) {
	tracker := Tracker{MaxPauses: 4, MaxSkips: 2, SkipsUsed: 1}

	assert.True(t, tracker.TryConsumeSkip())
	tracker.ReleaseSkip()

	assert.Equal(t, 1, tracker.SkipsUsed, "skip then unskip restores the prior count")
}

func TestReleaseSkipFloorsAtZero(t *testing.T) {
	tracker := Tracker{MaxPauses: 4, MaxSkips: 2}

	tracker.ReleaseSkip()

	assert.Equal(t, 0, tracker.SkipsUsed)
}

func TestResetsAreIdempotent(t *testing.T) {
	tracker := Tracker{MaxPauses: 4, MaxSkips: 2, PausesUsed: 3, SkipsUsed: 2}

	tracker.ResetMonthly()
	tracker.ResetMonthly()
	assert.Equal(t, 0, tracker.SkipsUsed)
	assert.Equal(t, 3, tracker.PausesUsed, "monthly reset leaves pauses alone")

	tracker.ResetYearly()
	tracker.ResetYearly()
	assert.Equal(t, 0, tracker.PausesUsed)
}

func TestFromSubscription(t *testing.T) {
	sub := &subscription.Subscription{
		PausesUsedThisYear: 2,
		MaxPausesPerYear:   4,
		SkipsThisMonth:     1,
		MaxSkipsPerMonth:   2,
	}

	tracker := FromSubscription(sub)

	assert.Equal(t, 2, tracker.PausesRemaining())
	assert.Equal(t, 1, tracker.SkipsRemaining())
}
