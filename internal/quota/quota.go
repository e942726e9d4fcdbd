package quota

import "farmBoxAPI/internal/types/subscription"

// Tracker holds the two time-windowed allowances attached to a subscription:
// pauses per calendar year and skips per calendar month. It is plain counter
// math; callers run it inside a row-locked transaction so a check-and-
// increment can never race past the cap.
type Tracker struct {
	PausesUsed int
	MaxPauses  int
	SkipsUsed  int
	MaxSkips   int
}

// FromSubscription snapshots the counters off a loaded subscription row.
func FromSubscription(sub *subscription.Subscription) Tracker {
	return Tracker{
		PausesUsed: sub.PausesUsedThisYear,
		MaxPauses:  sub.MaxPausesPerYear,
		SkipsUsed:  sub.SkipsThisMonth,
		MaxSkips:   sub.MaxSkipsPerMonth,
	}
}

// TryConsumePause claims one pause from the yearly allowance. Returns false
// without mutating when the cap is already reached.
func (t *Tracker) TryConsumePause() bool {
	if t.PausesUsed >= t.MaxPauses {
		return false
	}
	t.PausesUsed++
	return true
}

// TryConsumeSkip claims one skip from the monthly allowance.
func (t *Tracker) TryConsumeSkip() bool {
	if t.SkipsUsed >= t.MaxSkips {
		return false
	}
	t.SkipsUsed++
	return true
}

// ReleaseSkip gives a skip back on unskip. Floors at zero.
func (t *Tracker) ReleaseSkip() {
	if t.SkipsUsed > 0 {
		t.SkipsUsed--
	}
}

func (t *Tracker) ResetMonthly() {
	t.SkipsUsed = 0
}

func (t *Tracker) ResetYearly() {
	t.PausesUsed = 0
}

func (t *Tracker) PausesRemaining() int {
	return t.MaxPauses - t.PausesUsed
}

func (t *Tracker) SkipsRemaining() int {
	return t.MaxSkips - t.SkipsUsed
}
