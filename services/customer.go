package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// getOrCreateCustomerID maps a Clerk subject to our customers row, creating
// one on first contact. Shared by the subscription and trial services.
func getOrCreateCustomerID(ctx context.Context, db *pgxpool.Pool, clerkID string) (uuid.UUID, error) {
	var customerID uuid.UUID

	query := `SELECT id FROM customers WHERE clerk_id = $1`
	err := db.QueryRow(ctx, query, clerkID).Scan(&customerID)
	if err == nil {
		return customerID, nil
	}
	if err != pgx.ErrNoRows {
		return uuid.Nil, fmt.Errorf("failed to get customer: %w", err)
	}

	customerID = uuid.New()
	insertQuery := `
		INSERT INTO customers (id, clerk_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (clerk_id) DO UPDATE SET clerk_id = EXCLUDED.clerk_id
		RETURNING id
	`
	err = db.QueryRow(ctx, insertQuery, customerID, clerkID, time.Now()).Scan(&customerID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create customer: %w", err)
	}

	return customerID, nil
}
