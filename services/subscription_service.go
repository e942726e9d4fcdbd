package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"farmBoxAPI/internal/apperrors"
	"farmBoxAPI/internal/delivery"
	"farmBoxAPI/internal/quota"
	"farmBoxAPI/internal/types/notification"
	"farmBoxAPI/internal/types/subscription"
	"farmBoxAPI/utils"
)

// Skips must be requested at least this far ahead of the delivery date, so
// the farm side can still re-plan the box.
const skipCutoff = 48 * time.Hour

// Pause windows are bounded to keep subscriptions from going dormant
// silently.
const maxPauseDays = 28

const subscriptionColumns = `id, customer_id, farm_id, category, box_size, frequency,
		delivery_day, delivery_zone, delivery_address, excluded_items, preferred_farms,
		notes, max_farms_per_box, status, start_date, next_delivery, paused_until,
		pauses_used_this_year, max_pauses_per_year, skips_this_month, max_skips_per_month,
		trial_converted, auto_renew, audit_log, created_at, updated_at`

type SubscriptionService struct {
	db            *pgxpool.Pool
	notifications *NotificationService
	now           func() time.Time
}

func NewSubscriptionService(db *pgxpool.Pool, notifications *NotificationService) *SubscriptionService {
	return &SubscriptionService{
		db:            db,
		notifications: notifications,
		now:           time.Now,
	}
}

// SetClock swaps the time source; used by tests.
func (s *SubscriptionService) SetClock(now func() time.Time) {
	s.now = now
}

// subscriptionParams is a fully validated create payload. Built from a
// customer request or from a trial conversion.
type subscriptionParams struct {
	farmID         *uuid.UUID
	category       *string
	boxSize        subscription.BoxSize
	frequency      subscription.Frequency
	deliveryDay    int
	deliveryZone   string
	address        string
	excludedItems  []string
	preferredFarms []uuid.UUID
	notes          string
	maxFarmsPerBox int
	autoRenew      bool
	trialConverted bool
}

func parseCreateRequest(req *subscription.CreateSubscriptionRequest) (*subscriptionParams, error) {
	p := &subscriptionParams{
		deliveryDay:    req.DeliveryDay,
		deliveryZone:   strings.TrimSpace(req.DeliveryZone),
		address:        strings.TrimSpace(req.DeliveryAddress),
		excludedItems:  req.ExcludedItems,
		notes:          req.Notes,
		maxFarmsPerBox: subscription.DefaultMaxFarmsPerBox,
		autoRenew:      true,
	}

	if (req.FarmID == nil) == (req.Category == nil) {
		return nil, apperrors.Validation("exactly one of farmId or category must be set")
	}
	if req.FarmID != nil {
		farmID, err := uuid.Parse(*req.FarmID)
		if err != nil {
			return nil, apperrors.Validation("invalid farm id")
		}
		p.farmID = &farmID
	}
	if req.Category != nil {
		category := strings.ToLower(strings.TrimSpace(*req.Category))
		if !subscription.IsValidCategory(category) {
			return nil, apperrors.Validation("unknown category: %s", *req.Category)
		}
		p.category = &category
	}

	p.boxSize = subscription.BoxSize(strings.ToUpper(req.BoxSize))
	if !p.boxSize.IsValid() {
		return nil, apperrors.Validation("unknown box size: %s", req.BoxSize)
	}

	p.frequency = subscription.Frequency(strings.ToUpper(req.Frequency))
	if !p.frequency.IsValid() {
		return nil, apperrors.Validation("unknown frequency: %s", req.Frequency)
	}

	if req.DeliveryDay < 0 || req.DeliveryDay > 6 {
		return nil, apperrors.Validation("delivery day must be 0 (Sunday) through 6 (Saturday)")
	}
	if p.deliveryZone == "" {
		return nil, apperrors.Validation("delivery zone is required")
	}
	if p.address == "" {
		return nil, apperrors.Validation("delivery address is required")
	}

	if req.MaxFarmsPerBox != nil {
		if *req.MaxFarmsPerBox < 1 {
			return nil, apperrors.Validation("max farms per box must be at least 1")
		}
		p.maxFarmsPerBox = *req.MaxFarmsPerBox
	}
	if req.AutoRenew != nil {
		p.autoRenew = *req.AutoRenew
	}

	preferred, err := parseFarmIDs(req.PreferredFarms)
	if err != nil {
		return nil, err
	}
	p.preferredFarms = preferred

	return p, nil
}

func parseFarmIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			return nil, apperrors.Validation("invalid preferred farm id: %s", r)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *SubscriptionService) CreateSubscription(ctx context.Context, clerkID string, req *subscription.CreateSubscriptionRequest) (*subscription.Subscription, error) {
	params, err := parseCreateRequest(req)
	if err != nil {
		return nil, err
	}

	customerID, err := getOrCreateCustomerID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	sub, err := s.insertSubscription(ctx, tx, customerID, params)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.notifications.Notify(customerID, notification.NotificationSubscriptionCreated,
		"Subscription started",
		fmt.Sprintf("Your first box arrives %s.", utils.FormatDate(*sub.NextDelivery)),
		map[string]any{"subscriptionId": sub.ID.String()},
	)

	return sub, nil
}

// insertSubscription enforces the one-active-per-target rule and seeds the
// first delivery date. Runs inside the caller's transaction so trial
// conversion stays a single atomic unit.
func (s *SubscriptionService) insertSubscription(ctx context.Context, tx pgx.Tx, customerID uuid.UUID, params *subscriptionParams) (*subscription.Subscription, error) {
	var exists bool
	dupQuery := `
		SELECT EXISTS (
			SELECT 1 FROM subscriptions
			WHERE customer_id = $1
			  AND status = $2
			  AND (farm_id = $3 OR category = $4)
		)
	`
	err := tx.QueryRow(ctx, dupQuery, customerID, subscription.StatusActive, params.farmID, params.category).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing subscription: %w", err)
	}
	if exists {
		return nil, apperrors.Conflict("an active subscription for this target already exists")
	}

	now := s.now()
	nextDelivery := delivery.NextDeliveryDate(now, time.Weekday(params.deliveryDay), params.frequency, now)

	sub := &subscription.Subscription{
		ID:               uuid.New(),
		CustomerID:       customerID,
		FarmID:           params.farmID,
		Category:         params.category,
		BoxSize:          params.boxSize,
		Frequency:        params.frequency,
		DeliveryDay:      params.deliveryDay,
		DeliveryZone:     params.deliveryZone,
		DeliveryAddress:  params.address,
		ExcludedItems:    params.excludedItems,
		PreferredFarms:   params.preferredFarms,
		Notes:            params.notes,
		MaxFarmsPerBox:   params.maxFarmsPerBox,
		Status:           subscription.StatusActive,
		StartDate:        delivery.StartOfDay(now),
		NextDelivery:     &nextDelivery,
		MaxPausesPerYear: subscription.DefaultMaxPausesPerYear,
		MaxSkipsPerMonth: subscription.DefaultMaxSkipsPerMonth,
		TrialConverted:   params.trialConverted,
		AutoRenew:        params.autoRenew,
		AuditLog:         auditLine(now, "created"),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if sub.ExcludedItems == nil {
		sub.ExcludedItems = []string{}
	}
	if sub.PreferredFarms == nil {
		sub.PreferredFarms = []uuid.UUID{}
	}

	insertQuery := `
		INSERT INTO subscriptions (
			id, customer_id, farm_id, category, box_size, frequency, delivery_day,
			delivery_zone, delivery_address, excluded_items, preferred_farms, notes,
			max_farms_per_box, status, start_date, next_delivery, paused_until,
			pauses_used_this_year, max_pauses_per_year, skips_this_month,
			max_skips_per_month, trial_converted, auto_renew, audit_log, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
				NULL, 0, $17, 0, $18, $19, $20, $21, $22, $23)
	`
	_, err = tx.Exec(ctx, insertQuery,
		sub.ID,
		sub.CustomerID,
		sub.FarmID,
		sub.Category,
		sub.BoxSize,
		sub.Frequency,
		sub.DeliveryDay,
		sub.DeliveryZone,
		sub.DeliveryAddress,
		sub.ExcludedItems,
		sub.PreferredFarms,
		sub.Notes,
		sub.MaxFarmsPerBox,
		sub.Status,
		sub.StartDate,
		sub.NextDelivery,
		sub.MaxPausesPerYear,
		sub.MaxSkipsPerMonth,
		sub.TrialConverted,
		sub.AutoRenew,
		sub.AuditLog,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert subscription: %w", err)
	}

	return sub, nil
}

func (s *SubscriptionService) GetSubscription(ctx context.Context, clerkID string, subID uuid.UUID) (*subscription.Subscription, error) {
	customerID, err := getOrCreateCustomerID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1 AND customer_id = $2`
	sub, err := scanSubscription(s.db.QueryRow(ctx, query, subID, customerID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("subscription not found")
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return sub, nil
}

func (s *SubscriptionService) ListSubscriptions(ctx context.Context, clerkID string) ([]*subscription.Subscription, error) {
	customerID, err := getOrCreateCustomerID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE customer_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.Query(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []*subscription.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

// Pause stops deliveries for a bounded window. The window comes either from
// durationWeeks (starting today) or from an explicit start/end pair.
func (s *SubscriptionService) Pause(ctx context.Context, clerkID string, subID uuid.UUID, req *subscription.PauseRequest) (*subscription.Subscription, error) {
	now := s.now()

	start, end, err := resolvePauseWindow(req, now)
	if err != nil {
		return nil, err
	}

	customerID, err := getOrCreateCustomerID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	sub, err := s.lockSubscription(ctx, tx, subID, customerID)
	if err != nil {
		return nil, err
	}

	if sub.Status != subscription.StatusActive {
		return nil, apperrors.Precondition("only active subscriptions can be paused")
	}

	tracker := quota.FromSubscription(sub)
	if !tracker.TryConsumePause() {
		return nil, apperrors.QuotaExceeded("pause limit reached: %d per year", sub.MaxPausesPerYear)
	}

	pause := subscription.Pause{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		StartDate:      start,
		EndDate:        end,
		Reason:         req.Reason,
		CreatedAt:      now,
	}
	insertQuery := `
		INSERT INTO subscription_pauses (id, subscription_id, start_date, end_date, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = tx.Exec(ctx, insertQuery, pause.ID, pause.SubscriptionID, pause.StartDate, pause.EndDate, pause.Reason, pause.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert pause record: %w", err)
	}

	updateQuery := `
		UPDATE subscriptions
		SET status = $1, paused_until = $2, pauses_used_this_year = $3,
			audit_log = audit_log || $4, updated_at = $5
		WHERE id = $6
	`
	_, err = tx.Exec(ctx, updateQuery,
		subscription.StatusPaused,
		end,
		tracker.PausesUsed,
		auditLine(now, fmt.Sprintf("paused until %s: %s", utils.FormatDate(end), req.Reason)),
		now,
		sub.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	sub.Status = subscription.StatusPaused
	sub.PausedUntil = &end
	sub.PausesUsedThisYear = tracker.PausesUsed
	sub.UpdatedAt = now

	s.notifications.Notify(customerID, notification.NotificationSubscriptionPaused,
		"Subscription paused",
		fmt.Sprintf("Deliveries pause until %s.", utils.FormatDate(end)),
		map[string]any{"subscriptionId": sub.ID.String()},
	)

	return sub, nil
}

func resolvePauseWindow(req *subscription.PauseRequest, now time.Time) (time.Time, time.Time, error) {
	var start, end time.Time

	switch {
	case req.DurationWeeks != nil:
		if *req.DurationWeeks < 1 {
			return start, end, apperrors.Validation("pause duration must be at least 1 week")
		}
		start = delivery.StartOfDay(now)
		end = start.AddDate(0, 0, *req.DurationWeeks*7)
	case req.StartDate != nil && req.EndDate != nil:
		var err error
		start, err = utils.ParseDate(*req.StartDate)
		if err != nil {
			return start, end, apperrors.Validation("invalid start date, want YYYY-MM-DD")
		}
		end, err = utils.ParseDate(*req.EndDate)
		if err != nil {
			return start, end, apperrors.Validation("invalid end date, want YYYY-MM-DD")
		}
	default:
		return start, end, apperrors.Validation("either durationWeeks or startDate and endDate are required")
	}

	span := end.Sub(start)
	if span < 24*time.Hour {
		return start, end, apperrors.Validation("pause must cover at least 1 day")
	}
	if span > maxPauseDays*24*time.Hour {
		return start, end, apperrors.Validation("pause cannot exceed %d days", maxPauseDays)
	}

	return start, end, nil
}

// Resume reactivates a paused subscription early (or on schedule). The open
// pause record is truncated to now, never deleted: pause history is audit
// data.
func (s *SubscriptionService) Resume(ctx context.Context, clerkID string, subID uuid.UUID) (*subscription.Subscription, error) {
	customerID, err := getOrCreateCustomerID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	now := s.now()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	sub, err := s.lockSubscription(ctx, tx, subID, customerID)
	if err != nil {
		return nil, err
	}

	if sub.Status != subscription.StatusPaused {
		return nil, apperrors.Precondition("only paused subscriptions can be resumed")
	}

	truncateQuery := `
		UPDATE subscription_pauses
		SET end_date = $1
		WHERE id = (
			SELECT id FROM subscription_pauses
			WHERE subscription_id = $2 AND end_date > $1
			ORDER BY created_at DESC
			LIMIT 1
		)
	`
	if _, err = tx.Exec(ctx, truncateQuery, now, sub.ID); err != nil {
		return nil, fmt.Errorf("failed to truncate pause record: %w", err)
	}

	nextDelivery := delivery.NextDeliveryDate(now, time.Weekday(sub.DeliveryDay), sub.Frequency, now)

	updateQuery := `
		UPDATE subscriptions
		SET status = $1, paused_until = NULL, next_delivery = $2,
			audit_log = audit_log || $3, updated_at = $4
		WHERE id = $5
	`
	_, err = tx.Exec(ctx, updateQuery,
		subscription.StatusActive,
		nextDelivery,
		auditLine(now, "resumed"),
		now,
		sub.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	sub.Status = subscription.StatusActive
	sub.PausedUntil = nil
	sub.NextDelivery = &nextDelivery
	sub.UpdatedAt = now

	s.notifications.Notify(customerID, notification.NotificationSubscriptionResumed,
		"Subscription resumed",
		fmt.Sprintf("Your next box arrives %s.", utils.FormatDate(nextDelivery)),
		map[string]any{"subscriptionId": sub.ID.String()},
	)

	return sub, nil
}

// Skip opts out of a single delivery date. Duplicate dates are rejected, as
// are dates closer than the 48 hour cutoff.
func (s *SubscriptionService) Skip(ctx context.Context, clerkID string, subID uuid.UUID, req *subscription.SkipRequest) (*subscription.Skip, error) {
	skipDate, err := utils.ParseDate(req.Date)
	if err != nil {
		return nil, apperrors.Validation("invalid skip date, want YYYY-MM-DD")
	}

	now := s.now()
	if !skipLeadTimeOK(skipDate, now) {
		return nil, apperrors.Validation("skips must be requested at least 48 hours ahead")
	}

	customerID, err := getOrCreateCustomerID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	sub, err := s.lockSubscription(ctx, tx, subID, customerID)
	if err != nil {
		return nil, err
	}

	if sub.Status != subscription.StatusActive {
		return nil, apperrors.Precondition("only active subscriptions can skip a delivery")
	}

	var exists bool
	dupQuery := `SELECT EXISTS (SELECT 1 FROM subscription_skips WHERE subscription_id = $1 AND skip_date = $2)`
	if err = tx.QueryRow(ctx, dupQuery, sub.ID, skipDate).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check for existing skip: %w", err)
	}
	if exists {
		return nil, apperrors.Conflict("this delivery date is already skipped")
	}

	tracker := quota.FromSubscription(sub)
	if !tracker.TryConsumeSkip() {
		return nil, apperrors.QuotaExceeded("skip limit reached: %d per month", sub.MaxSkipsPerMonth)
	}

	skip := &subscription.Skip{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		SkipDate:       skipDate,
		Reason:         req.Reason,
		CreatedAt:      now,
	}
	insertQuery := `
		INSERT INTO subscription_skips (id, subscription_id, skip_date, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = tx.Exec(ctx, insertQuery, skip.ID, skip.SubscriptionID, skip.SkipDate, skip.Reason, skip.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert skip record: %w", err)
	}

	updateQuery := `
		UPDATE subscriptions
		SET skips_this_month = $1, audit_log = audit_log || $2, updated_at = $3
		WHERE id = $4
	`
	_, err = tx.Exec(ctx, updateQuery,
		tracker.SkipsUsed,
		auditLine(now, fmt.Sprintf("skipped %s: %s", utils.FormatDate(skipDate), req.Reason)),
		now,
		sub.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return skip, nil
}

// skipLeadTimeOK reports whether the skip date leaves the farm side at least
// the cutoff's worth of notice.
func skipLeadTimeOK(skipDate, now time.Time) bool {
	return skipDate.Sub(now) >= skipCutoff
}

// Unskip removes a previously requested skip and hands the quota back.
func (s *SubscriptionService) Unskip(ctx context.Context, clerkID string, subID uuid.UUID, req *subscription.UnskipRequest) (*subscription.Subscription, error) {
	skipDate, err := utils.ParseDate(req.Date)
	if err != nil {
		return nil, apperrors.Validation("invalid skip date, want YYYY-MM-DD")
	}

	customerID, err := getOrCreateCustomerID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	now := s.now()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	sub, err := s.lockSubscription(ctx, tx, subID, customerID)
	if err != nil {
		return nil, err
	}

	var skipID uuid.UUID
	deleteQuery := `DELETE FROM subscription_skips WHERE subscription_id = $1 AND skip_date = $2 RETURNING id`
	err = tx.QueryRow(ctx, deleteQuery, sub.ID, skipDate).Scan(&skipID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("no skip exists for %s", utils.FormatDate(skipDate))
		}
		return nil, fmt.Errorf("failed to delete skip record: %w", err)
	}

	tracker := quota.FromSubscription(sub)
	tracker.ReleaseSkip()

	updateQuery := `
		UPDATE subscriptions
		SET skips_this_month = $1, audit_log = audit_log || $2, updated_at = $3
		WHERE id = $4
	`
	_, err = tx.Exec(ctx, updateQuery,
		tracker.SkipsUsed,
		auditLine(now, fmt.Sprintf("unskipped %s", utils.FormatDate(skipDate))),
		now,
		sub.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	sub.SkipsThisMonth = tracker.SkipsUsed
	sub.UpdatedAt = now
	return sub, nil
}

// Cancel is a soft delete: status flips, the row and its history stay.
func (s *SubscriptionService) Cancel(ctx context.Context, clerkID string, subID uuid.UUID, req *subscription.CancelRequest) (*subscription.Subscription, error) {
	customerID, err := getOrCreateCustomerID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	now := s.now()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	sub, err := s.lockSubscription(ctx, tx, subID, customerID)
	if err != nil {
		return nil, err
	}

	if sub.Status == subscription.StatusCancelled {
		return nil, apperrors.Precondition("subscription is already cancelled")
	}

	updateQuery := `
		UPDATE subscriptions
		SET status = $1, next_delivery = NULL, paused_until = NULL,
			audit_log = audit_log || $2, updated_at = $3
		WHERE id = $4
	`
	_, err = tx.Exec(ctx, updateQuery,
		subscription.StatusCancelled,
		auditLine(now, fmt.Sprintf("cancelled: %s", req.Reason)),
		now,
		sub.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	sub.Status = subscription.StatusCancelled
	sub.NextDelivery = nil
	sub.PausedUntil = nil
	sub.UpdatedAt = now

	s.notifications.Notify(customerID, notification.NotificationSubscriptionCancelled,
		"Subscription cancelled",
		"Sorry to see you go. Your delivery history stays in your account.",
		map[string]any{"subscriptionId": sub.ID.String()},
	)

	return sub, nil
}

// UpdatePreferences changes configuration without touching lifecycle state.
// A frequency or delivery day change re-anchors the next delivery on the
// currently scheduled one (or on today when there is none).
func (s *SubscriptionService) UpdatePreferences(ctx context.Context, clerkID string, subID uuid.UUID, req *subscription.UpdatePreferencesRequest) (*subscription.Subscription, error) {
	customerID, err := getOrCreateCustomerID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	now := s.now()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	sub, err := s.lockSubscription(ctx, tx, subID, customerID)
	if err != nil {
		return nil, err
	}

	scheduleChanged := false

	if req.Frequency != nil {
		freq := subscription.Frequency(strings.ToUpper(*req.Frequency))
		if !freq.IsValid() {
			return nil, apperrors.Validation("unknown frequency: %s", *req.Frequency)
		}
		if freq != sub.Frequency {
			sub.Frequency = freq
			scheduleChanged = true
		}
	}
	if req.DeliveryDay != nil {
		if *req.DeliveryDay < 0 || *req.DeliveryDay > 6 {
			return nil, apperrors.Validation("delivery day must be 0 (Sunday) through 6 (Saturday)")
		}
		if *req.DeliveryDay != sub.DeliveryDay {
			sub.DeliveryDay = *req.DeliveryDay
			scheduleChanged = true
		}
	}
	if req.ExcludedItems != nil {
		sub.ExcludedItems = *req.ExcludedItems
	}
	if req.PreferredFarms != nil {
		preferred, err := parseFarmIDs(*req.PreferredFarms)
		if err != nil {
			return nil, err
		}
		sub.PreferredFarms = preferred
	}
	if req.Notes != nil {
		sub.Notes = *req.Notes
	}
	if req.MaxFarmsPerBox != nil {
		if *req.MaxFarmsPerBox < 1 {
			return nil, apperrors.Validation("max farms per box must be at least 1")
		}
		sub.MaxFarmsPerBox = *req.MaxFarmsPerBox
	}
	if req.DeliveryZone != nil {
		if strings.TrimSpace(*req.DeliveryZone) == "" {
			return nil, apperrors.Validation("delivery zone cannot be empty")
		}
		sub.DeliveryZone = *req.DeliveryZone
	}
	if req.DeliveryAddress != nil {
		if strings.TrimSpace(*req.DeliveryAddress) == "" {
			return nil, apperrors.Validation("delivery address cannot be empty")
		}
		sub.DeliveryAddress = *req.DeliveryAddress
	}
	if req.AutoRenew != nil {
		sub.AutoRenew = *req.AutoRenew
	}

	if scheduleChanged && sub.Status != subscription.StatusCancelled {
		anchor := now
		if sub.NextDelivery != nil {
			anchor = *sub.NextDelivery
		}
		next := delivery.NextDeliveryDate(anchor, time.Weekday(sub.DeliveryDay), sub.Frequency, now)
		sub.NextDelivery = &next
	}

	if sub.ExcludedItems == nil {
		sub.ExcludedItems = []string{}
	}
	if sub.PreferredFarms == nil {
		sub.PreferredFarms = []uuid.UUID{}
	}

	updateQuery := `
		UPDATE subscriptions
		SET frequency = $1, delivery_day = $2, delivery_zone = $3, delivery_address = $4,
			excluded_items = $5, preferred_farms = $6, notes = $7, max_farms_per_box = $8,
			auto_renew = $9, next_delivery = $10, updated_at = $11
		WHERE id = $12
	`
	_, err = tx.Exec(ctx, updateQuery,
		sub.Frequency,
		sub.DeliveryDay,
		sub.DeliveryZone,
		sub.DeliveryAddress,
		sub.ExcludedItems,
		sub.PreferredFarms,
		sub.Notes,
		sub.MaxFarmsPerBox,
		sub.AutoRenew,
		sub.NextDelivery,
		now,
		sub.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	sub.UpdatedAt = now
	return sub, nil
}

func (s *SubscriptionService) ListSkips(ctx context.Context, clerkID string, subID uuid.UUID) ([]*subscription.Skip, error) {
	sub, err := s.GetSubscription(ctx, clerkID, subID)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, subscription_id, skip_date, reason, created_at
		FROM subscription_skips
		WHERE subscription_id = $1
		ORDER BY skip_date
	`
	rows, err := s.db.Query(ctx, query, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list skips: %w", err)
	}
	defer rows.Close()

	skips := []*subscription.Skip{}
	for rows.Next() {
		var skip subscription.Skip
		if err := rows.Scan(&skip.ID, &skip.SubscriptionID, &skip.SkipDate, &skip.Reason, &skip.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan skip: %w", err)
		}
		skips = append(skips, &skip)
	}

	return skips, rows.Err()
}

func (s *SubscriptionService) ListPauses(ctx context.Context, clerkID string, subID uuid.UUID) ([]*subscription.Pause, error) {
	sub, err := s.GetSubscription(ctx, clerkID, subID)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, subscription_id, start_date, end_date, reason, created_at
		FROM subscription_pauses
		WHERE subscription_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.Query(ctx, query, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pauses: %w", err)
	}
	defer rows.Close()

	pauses := []*subscription.Pause{}
	for rows.Next() {
		var pause subscription.Pause
		if err := rows.Scan(&pause.ID, &pause.SubscriptionID, &pause.StartDate, &pause.EndDate, &pause.Reason, &pause.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pause: %w", err)
		}
		pauses = append(pauses, &pause)
	}

	return pauses, rows.Err()
}

// lockSubscription loads the row FOR UPDATE so the precondition check and
// the following writes are one atomic unit per subscription.
func (s *SubscriptionService) lockSubscription(ctx context.Context, tx pgx.Tx, subID, customerID uuid.UUID) (*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1 AND customer_id = $2 FOR UPDATE`
	sub, err := scanSubscription(tx.QueryRow(ctx, query, subID, customerID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("subscription not found")
		}
		return nil, fmt.Errorf("failed to lock subscription: %w", err)
	}
	return sub, nil
}

func scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var sub subscription.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.CustomerID,
		&sub.FarmID,
		&sub.Category,
		&sub.BoxSize,
		&sub.Frequency,
		&sub.DeliveryDay,
		&sub.DeliveryZone,
		&sub.DeliveryAddress,
		&sub.ExcludedItems,
		&sub.PreferredFarms,
		&sub.Notes,
		&sub.MaxFarmsPerBox,
		&sub.Status,
		&sub.StartDate,
		&sub.NextDelivery,
		&sub.PausedUntil,
		&sub.PausesUsedThisYear,
		&sub.MaxPausesPerYear,
		&sub.SkipsThisMonth,
		&sub.MaxSkipsPerMonth,
		&sub.TrialConverted,
		&sub.AutoRenew,
		&sub.AuditLog,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func auditLine(now time.Time, event string) string {
	return now.UTC().Format(time.RFC3339) + " " + event + "\n"
}
