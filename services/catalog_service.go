package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"farmBoxAPI/internal/apperrors"
	"farmBoxAPI/internal/curation"
	"farmBoxAPI/internal/types/product"
)

// CatalogService is the read-only product source backing the curation
// engine. It satisfies curation.Catalog.
type CatalogService struct {
	db *pgxpool.Pool
}

func NewCatalogService(db *pgxpool.Pool) *CatalogService {
	return &CatalogService{db: db}
}

// FindAvailableProducts returns available products matching the filter,
// most popular first, newest first on ties.
func (s *CatalogService) FindAvailableProducts(ctx context.Context, filter curation.ProductFilter) ([]product.Product, error) {
	query := `
		SELECT id, farm_id, name, category, price_cents, popularity_score, available, created_at
		FROM products
		WHERE available = TRUE
		  AND ($1::text[] IS NULL OR category = ANY($1))
		  AND ($2::uuid IS NULL OR farm_id = $2)
		  AND (cardinality($3::text[]) = 0 OR name <> ALL($3))
		ORDER BY popularity_score DESC, created_at DESC
	`

	var categories []string
	if len(filter.Categories) > 0 {
		categories = filter.Categories
	}
	excluded := filter.ExcludedNames
	if excluded == nil {
		excluded = []string{}
	}

	rows, err := s.db.Query(ctx, query, categories, filter.FarmID, excluded)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []product.Product
	for rows.Next() {
		var p product.Product
		err := rows.Scan(
			&p.ID,
			&p.FarmID,
			&p.Name,
			&p.Category,
			&p.PriceCents,
			&p.PopularityScore,
			&p.Available,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

func (s *CatalogService) FindProductByID(ctx context.Context, id uuid.UUID) (*product.Product, error) {
	query := `
		SELECT id, farm_id, name, category, price_cents, popularity_score, available, created_at
		FROM products
		WHERE id = $1
	`

	var p product.Product
	err := s.db.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.FarmID,
		&p.Name,
		&p.Category,
		&p.PriceCents,
		&p.PopularityScore,
		&p.Available,
		&p.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("product not found")
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return &p, nil
}

// GetFarm looks up a farm; used to validate farm-scoped subscriptions and
// trials.
func (s *CatalogService) GetFarm(ctx context.Context, id uuid.UUID) (*product.Farm, error) {
	query := `SELECT id, name, delivery_zone, is_active, created_at FROM farms WHERE id = $1`

	var f product.Farm
	err := s.db.QueryRow(ctx, query, id).Scan(
		&f.ID,
		&f.Name,
		&f.DeliveryZone,
		&f.IsActive,
		&f.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("farm not found")
		}
		return nil, fmt.Errorf("failed to get farm: %w", err)
	}

	return &f, nil
}
