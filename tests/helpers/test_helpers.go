package helpers

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SetupTestDB creates a test database connection. Tests that need a database
// are skipped when neither TEST_DATABASE_URL nor DATABASE_URL is set.
func SetupTestDB(t *testing.T) *pgxpool.Pool {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL or DATABASE_URL must be set for database tests")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("Failed to ping test database: %v", err)
	}

	return pool
}

// CleanupTestDB removes rows created by test customers (clerk ids with the
// customer_test_ prefix) and closes the pool. Order matters because of the
// foreign keys.
func CleanupTestDB(t *testing.T, pool *pgxpool.Pool) {
	ctx := context.Background()

	statements := []string{
		`DELETE FROM subscription_skips WHERE subscription_id IN
			(SELECT s.id FROM subscriptions s JOIN customers c ON c.id = s.customer_id WHERE c.clerk_id LIKE 'customer_test_%')`,
		`DELETE FROM subscription_pauses WHERE subscription_id IN
			(SELECT s.id FROM subscriptions s JOIN customers c ON c.id = s.customer_id WHERE c.clerk_id LIKE 'customer_test_%')`,
		`DELETE FROM subscriptions WHERE customer_id IN
			(SELECT id FROM customers WHERE clerk_id LIKE 'customer_test_%')`,
		`DELETE FROM trial_boxes WHERE customer_id IN
			(SELECT id FROM customers WHERE clerk_id LIKE 'customer_test_%')`,
		`DELETE FROM notifications WHERE customer_id IN
			(SELECT id FROM customers WHERE clerk_id LIKE 'customer_test_%')`,
		`DELETE FROM device_tokens WHERE customer_id IN
			(SELECT id FROM customers WHERE clerk_id LIKE 'customer_test_%')`,
		`DELETE FROM customers WHERE clerk_id LIKE 'customer_test_%'`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Logf("Warning: failed to cleanup test data: %v", err)
		}
	}

	pool.Close()
}

// TestClerkID returns a unique clerk id carrying the prefix CleanupTestDB
// looks for.
func TestClerkID() string {
	return "customer_test_" + time.Now().Format("20060102150405.000")
}

// SeedFarm inserts an active farm for trial and farm-scoped subscription tests.
func SeedFarm(t *testing.T, pool *pgxpool.Pool, name string) uuid.UUID {
	ctx := context.Background()
	farmID := uuid.New()

	query := `INSERT INTO farms (id, name, delivery_zone, is_active, created_at) VALUES ($1, $2, $3, TRUE, $4)`
	if _, err := pool.Exec(ctx, query, farmID, name, "zone-1", time.Now()); err != nil {
		t.Fatalf("Failed to seed farm: %v", err)
	}

	t.Cleanup(func() {
		pool.Exec(context.Background(), `DELETE FROM products WHERE farm_id = $1`, farmID)
		pool.Exec(context.Background(), `DELETE FROM farms WHERE id = $1`, farmID)
	})

	return farmID
}

// SeedProduct inserts an available product on the given farm.
func SeedProduct(t *testing.T, pool *pgxpool.Pool, farmID uuid.UUID, name, category string, priceCents int, popularity float64) uuid.UUID {
	ctx := context.Background()
	productID := uuid.New()

	query := `
		INSERT INTO products (id, farm_id, name, category, price_cents, popularity_score, available, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
	`
	if _, err := pool.Exec(ctx, query, productID, farmID, name, category, priceCents, popularity, time.Now()); err != nil {
		t.Fatalf("Failed to seed product: %v", err)
	}

	return productID
}

// GenerateMockClerkJWT generates a mock JWT token for testing
func GenerateMockClerkJWT(clerkID string) (string, error) {
	// Use a test secret key
	secretKey := []byte("test-secret-key-for-testing-only")

	claims := jwt.MapClaims{
		"sub": clerkID,                               // Clerk customer ID
		"iss": "https://clerk.test",                  // Issuer
		"iat": time.Now().Unix(),                     // Issued at
		"exp": time.Now().Add(time.Hour * 24).Unix(), // Expires in 24 hours
		"azp": "test-app-id",                         // Authorized party
		"sid": "sess_test123",                        // Session ID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}
