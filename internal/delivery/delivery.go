package delivery

import (
	"time"

	"farmBoxAPI/internal/types/subscription"
)

// StartOfDay drops the time-of-day component, keeping the location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// NextDeliveryDate returns the first delivery date strictly after from that
// lands on the configured weekday. For biweekly subscriptions a candidate
// falling less than 7 days from now is pushed out one more week, so two
// consecutive deliveries keep roughly a two week gap.
//
// The "too soon" check is anchored on wall-clock now, not on from. Callers
// that pass a future from (e.g. rescheduling off a stored next delivery) can
// therefore get a candidate closer than 14 days to a prior delivery; that is
// the convention everywhere in this codebase.
func NextDeliveryDate(from time.Time, weekday time.Weekday, frequency subscription.Frequency, now time.Time) time.Time {
	from = StartOfDay(from)

	delta := int(weekday) - int(from.Weekday())
	if delta <= 0 {
		delta += 7 // never land on from itself
	}
	candidate := from.AddDate(0, 0, delta)

	if frequency == subscription.FrequencyBiweekly {
		if candidate.Sub(StartOfDay(now)) < 7*24*time.Hour {
			candidate = candidate.AddDate(0, 0, 7)
		}
	}

	return candidate
}
