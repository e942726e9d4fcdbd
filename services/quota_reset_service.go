package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"farmBoxAPI/internal/types/subscription"
)

// QuotaResetService zeroes the time-windowed counters. An external cron
// caller hits these once per period; each call is idempotent, so a double
// trigger or retry leaves the same end state.
type QuotaResetService struct {
	db *pgxpool.Pool
}

func NewQuotaResetService(db *pgxpool.Pool) *QuotaResetService {
	return &QuotaResetService{db: db}
}

// ResetAllMonthlySkips zeroes the skip counter on every active
// subscription. Returns how many rows actually changed.
func (s *QuotaResetService) ResetAllMonthlySkips(ctx context.Context) (int64, error) {
	query := `
		UPDATE subscriptions
		SET skips_this_month = 0, updated_at = $1
		WHERE status = $2 AND skips_this_month <> 0
	`
	tag, err := s.db.Exec(ctx, query, time.Now(), subscription.StatusActive)
	if err != nil {
		return 0, fmt.Errorf("failed to reset monthly skips: %w", err)
	}

	log.Printf("Monthly skip reset: %d subscriptions updated", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

// ResetAllYearlyPauses zeroes the pause counter on every subscription,
// whatever its status: a paused or cancelled-and-reactivated customer
// starts the year with a full allowance too.
func (s *QuotaResetService) ResetAllYearlyPauses(ctx context.Context) (int64, error) {
	query := `
		UPDATE subscriptions
		SET pauses_used_this_year = 0, updated_at = $1
		WHERE pauses_used_this_year <> 0
	`
	tag, err := s.db.Exec(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to reset yearly pauses: %w", err)
	}

	log.Printf("Yearly pause reset: %d subscriptions updated", tag.RowsAffected())
	return tag.RowsAffected(), nil
}
