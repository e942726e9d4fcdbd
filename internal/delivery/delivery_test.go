package delivery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"farmBoxAPI/internal/types/subscription"
)

// Wed 2025-06-11, a fixed anchor so tests never depend on the real clock.
var wednesday = time.Date(2025, 6, 11, 10, 30, 0, 0, time.UTC)

func TestNextDeliveryDateLandsOnRequestedWeekday(t *testing.T) {
	for weekday := time.Sunday; weekday <= time.Saturday; weekday++ {
		for _, freq := range []subscription.Frequency{subscription.FrequencyWeekly, subscription.FrequencyBiweekly} {
			got := NextDeliveryDate(wednesday, weekday, freq, wednesday)

			assert.Equal(t, weekday, got.Weekday(), "freq=%s weekday=%d", freq, weekday)
			assert.True(t, got.After(wednesday.Truncate(24*time.Hour)), "must be strictly in the future")
			assert.True(t, got.Sub(StartOfDay(wednesday)) >= 24*time.Hour, "never lands on the from date itself")
		}
	}
}

func TestNextDeliveryDateSameWeekdayGoesToNextWeek(t *testing.T) {
	// Asking for Wednesday on a Wednesday must not return today.
	got := NextDeliveryDate(wednesday, time.Wednesday, subscription.FrequencyWeekly, wednesday)

	assert.Equal(t, time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC), got)
}

func TestNextDeliveryDateWeekly(t *testing.T) {
	// Wednesday asking for Friday -> this Friday.
	got := NextDeliveryDate(wednesday, time.Friday, subscription.FrequencyWeekly, wednesday)
	assert.Equal(t, time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC), got)

	// Wednesday asking for Monday -> next Monday.
	got = NextDeliveryDate(wednesday, time.Monday, subscription.FrequencyWeekly, wednesday)
	assert.Equal(t, time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC), got)
}

func TestNextDeliveryDateBiweeklyPushesCloseCandidates(t *testing.T) {
	// This Friday is only 2 days out, so biweekly pushes one more week.
	got := NextDeliveryDate(wednesday, time.Friday, subscription.FrequencyBiweekly, wednesday)

	assert.Equal(t, time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC), got)
}

func TestNextDeliveryDateBiweeklyKeepsFarCandidates(t *testing.T) {
	// Wednesday asking for Wednesday lands 7 days out, which clears the
	// one-week minimum, so no extra push.
	got := NextDeliveryDate(wednesday, time.Wednesday, subscription.FrequencyBiweekly, wednesday)

	assert.Equal(t, time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC), got)
}

func TestNextDeliveryDateBiweeklyAnchorsOnNowNotFrom(t *testing.T) {
	// A future from (three weeks out) produces a candidate only a few days
	// past from, but well over a week past now. The too-soon check runs
	// against now, so the candidate stays where it is. Anchoring on from
	// instead would have pushed it a week further: the two readings diverge
	// exactly here.
	futureFrom := wednesday.AddDate(0, 0, 21) // Wed 2025-07-02
	got := NextDeliveryDate(futureFrom, time.Friday, subscription.FrequencyBiweekly, wednesday)

	assert.Equal(t, time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC), got)

	// The from-anchored reading for the same inputs:
	fromAnchored := NextDeliveryDate(futureFrom, time.Friday, subscription.FrequencyBiweekly, futureFrom)
	assert.Equal(t, time.Date(2025, 7, 11, 0, 0, 0, 0, time.UTC), fromAnchored)
}

func TestStartOfDay(t *testing.T) {
	got := StartOfDay(wednesday)

	assert.Equal(t, time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC), got)
	assert.Equal(t, wednesday.Location(), got.Location())
}
