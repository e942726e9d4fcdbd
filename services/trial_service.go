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
	"farmBoxAPI/internal/types/notification"
	"farmBoxAPI/internal/types/subscription"
	"farmBoxAPI/internal/types/trial"
)

const trialColumns = `id, customer_id, farm_id, box_size, discount_percent, status,
		expires_at, converted_to_sub, order_id, created_at, updated_at`

type TrialService struct {
	db            *pgxpool.Pool
	catalog       *CatalogService
	subscriptions *SubscriptionService
	notifications *NotificationService
	now           func() time.Time
}

func NewTrialService(db *pgxpool.Pool, catalog *CatalogService, subscriptions *SubscriptionService, notifications *NotificationService) *TrialService {
	return &TrialService{
		db:            db,
		catalog:       catalog,
		subscriptions: subscriptions,
		notifications: notifications,
		now:           time.Now,
	}
}

// SetClock swaps the time source; used by tests.
func (s *TrialService) SetClock(now func() time.Time) {
	s.now = now
}

// CreateTrial starts a one-shot discounted box. One trial per
// (customer, farm), ever.
func (s *TrialService) CreateTrial(ctx context.Context, clerkID string, req *trial.CreateTrialRequest) (*trial.TrialBox, error) {
	farmID, err := uuid.Parse(req.FarmID)
	if err != nil {
		return nil, apperrors.Validation("invalid farm id")
	}

	boxSize := subscription.BoxSize(strings.ToUpper(req.BoxSize))
	if !boxSize.IsValid() {
		return nil, apperrors.Validation("unknown box size: %s", req.BoxSize)
	}

	farm, err := s.catalog.GetFarm(ctx, farmID)
	if err != nil {
		return nil, err
	}
	if !farm.IsActive {
		return nil, apperrors.Validation("farm is not accepting orders")
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

	var exists bool
	dupQuery := `SELECT EXISTS (SELECT 1 FROM trial_boxes WHERE customer_id = $1 AND farm_id = $2)`
	if err = tx.QueryRow(ctx, dupQuery, customerID, farmID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check for existing trial: %w", err)
	}
	if exists {
		return nil, apperrors.Conflict("you have already trialled this farm")
	}

	t := &trial.TrialBox{
		ID:              uuid.New(),
		CustomerID:      customerID,
		FarmID:          farmID,
		BoxSize:         string(boxSize),
		DiscountPercent: trial.DiscountPercent,
		Status:          trial.StatusPending,
		ExpiresAt:       now.AddDate(0, 0, trial.ExpiryDays),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	insertQuery := `
		INSERT INTO trial_boxes (id, customer_id, farm_id, box_size, discount_percent,
			status, expires_at, converted_to_sub, order_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, NULL, $8, $9)
	`
	_, err = tx.Exec(ctx, insertQuery,
		t.ID, t.CustomerID, t.FarmID, t.BoxSize, t.DiscountPercent,
		t.Status, t.ExpiresAt, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert trial: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return t, nil
}

// ListTrials returns the caller's trials. Pending trials past their expiry
// are flipped to EXPIRED and persisted before returning, so callers never
// see a stale PENDING.
func (s *TrialService) ListTrials(ctx context.Context, clerkID string) ([]*trial.TrialBox, error) {
	customerID, err := getOrCreateCustomerID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + trialColumns + ` FROM trial_boxes WHERE customer_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.Query(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trials: %w", err)
	}
	defer rows.Close()

	trials := []*trial.TrialBox{}
	for rows.Next() {
		t, err := scanTrial(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trial: %w", err)
		}
		trials = append(trials, t)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	for _, t := range trials {
		if err := s.expireIfDue(ctx, t, now); err != nil {
			return nil, err
		}
	}

	return trials, nil
}

func (s *TrialService) GetTrial(ctx context.Context, clerkID string, trialID uuid.UUID) (*trial.TrialBox, error) {
	customerID, err := getOrCreateCustomerID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + trialColumns + ` FROM trial_boxes WHERE id = $1 AND customer_id = $2`
	t, err := scanTrial(s.db.QueryRow(ctx, query, trialID, customerID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("trial not found")
		}
		return nil, fmt.Errorf("failed to get trial: %w", err)
	}

	if err := s.expireIfDue(ctx, t, s.now()); err != nil {
		return nil, err
	}

	return t, nil
}

// MarkDelivered is called by the fulfillment side once the linked order
// lands on the doorstep. Not customer-facing.
func (s *TrialService) MarkDelivered(ctx context.Context, trialID uuid.UUID, req *trial.MarkDeliveredRequest) (*trial.TrialBox, error) {
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		return nil, apperrors.Validation("invalid order id")
	}

	now := s.now()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + trialColumns + ` FROM trial_boxes WHERE id = $1 FOR UPDATE`
	t, err := scanTrial(tx.QueryRow(ctx, query, trialID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("trial not found")
		}
		return nil, fmt.Errorf("failed to lock trial: %w", err)
	}

	if t.Status == trial.StatusPending && now.After(t.ExpiresAt) {
		if err = s.persistExpiry(ctx, tx, t, now); err != nil {
			return nil, err
		}
		if err = tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil, apperrors.Precondition("trial has expired")
	}
	if t.Status != trial.StatusPending {
		return nil, apperrors.Precondition("trial is %s, expected PENDING", t.Status)
	}

	updateQuery := `UPDATE trial_boxes SET status = $1, order_id = $2, updated_at = $3 WHERE id = $4`
	if _, err = tx.Exec(ctx, updateQuery, trial.StatusDelivered, orderID, now, t.ID); err != nil {
		return nil, fmt.Errorf("failed to update trial: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	t.Status = trial.StatusDelivered
	t.OrderID = &orderID
	t.UpdatedAt = now
	return t, nil
}

// Convert turns a delivered trial into a full subscription for the same
// farm and box size, atomically with the trial's own status flip.
func (s *TrialService) Convert(ctx context.Context, clerkID string, trialID uuid.UUID, req *trial.ConvertTrialRequest) (*subscription.Subscription, error) {
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

	query := `SELECT ` + trialColumns + ` FROM trial_boxes WHERE id = $1 AND customer_id = $2 FOR UPDATE`
	t, err := scanTrial(tx.QueryRow(ctx, query, trialID, customerID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("trial not found")
		}
		return nil, fmt.Errorf("failed to lock trial: %w", err)
	}

	if t.Status == trial.StatusPending && now.After(t.ExpiresAt) {
		if err = s.persistExpiry(ctx, tx, t, now); err != nil {
			return nil, err
		}
		if err = tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil, apperrors.Precondition("trial has expired")
	}
	if t.ConvertedToSub {
		return nil, apperrors.Precondition("trial is already converted")
	}
	if t.Status != trial.StatusDelivered {
		return nil, apperrors.Precondition("trial must be delivered before converting, currently %s", t.Status)
	}

	farmID := t.FarmID.String()
	params, err := parseCreateRequest(&subscription.CreateSubscriptionRequest{
		FarmID:          &farmID,
		BoxSize:         t.BoxSize,
		Frequency:       req.Frequency,
		DeliveryDay:     req.DeliveryDay,
		DeliveryZone:    req.DeliveryZone,
		DeliveryAddress: req.DeliveryAddress,
		ExcludedItems:   req.ExcludedItems,
		PreferredFarms:  req.PreferredFarms,
		Notes:           req.Notes,
		MaxFarmsPerBox:  req.MaxFarmsPerBox,
	})
	if err != nil {
		return nil, err
	}
	params.trialConverted = true

	sub, err := s.subscriptions.insertSubscription(ctx, tx, customerID, params)
	if err != nil {
		return nil, err
	}

	updateQuery := `UPDATE trial_boxes SET status = $1, converted_to_sub = TRUE, updated_at = $2 WHERE id = $3`
	if _, err = tx.Exec(ctx, updateQuery, trial.StatusConverted, now, t.ID); err != nil {
		return nil, fmt.Errorf("failed to update trial: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.notifications.Notify(customerID, notification.NotificationTrialConverted,
		"Welcome aboard",
		"Your trial box is now a full subscription.",
		map[string]any{"subscriptionId": sub.ID.String(), "trialId": t.ID.String()},
	)

	return sub, nil
}

// expireIfDue persists the lazy PENDING -> EXPIRED flip outside a caller
// transaction.
func (s *TrialService) expireIfDue(ctx context.Context, t *trial.TrialBox, now time.Time) error {
	if t.Status != trial.StatusPending || !now.After(t.ExpiresAt) {
		return nil
	}

	query := `UPDATE trial_boxes SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	_, err := s.db.Exec(ctx, query, trial.StatusExpired, now, t.ID, trial.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to expire trial: %w", err)
	}

	t.Status = trial.StatusExpired
	t.UpdatedAt = now
	return nil
}

func (s *TrialService) persistExpiry(ctx context.Context, tx pgx.Tx, t *trial.TrialBox, now time.Time) error {
	query := `UPDATE trial_boxes SET status = $1, updated_at = $2 WHERE id = $3`
	if _, err := tx.Exec(ctx, query, trial.StatusExpired, now, t.ID); err != nil {
		return fmt.Errorf("failed to expire trial: %w", err)
	}
	t.Status = trial.StatusExpired
	t.UpdatedAt = now
	return nil
}

func scanTrial(row pgx.Row) (*trial.TrialBox, error) {
	var t trial.TrialBox
	err := row.Scan(
		&t.ID,
		&t.CustomerID,
		&t.FarmID,
		&t.BoxSize,
		&t.DiscountPercent,
		&t.Status,
		&t.ExpiresAt,
		&t.ConvertedToSub,
		&t.OrderID,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
