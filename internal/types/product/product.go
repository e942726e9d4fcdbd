package product

import (
	"time"

	"github.com/google/uuid"
)

// Product is a catalog entry offered by a farm. Prices are stored in cents.
type Product struct {
	ID              uuid.UUID `json:"id" db:"id"`
	FarmID          uuid.UUID `json:"farmId" db:"farm_id"`
	Name            string    `json:"name" db:"name"`
	Category        string    `json:"category" db:"category"`
	PriceCents      int       `json:"priceCents" db:"price_cents"`
	PopularityScore float64   `json:"popularityScore" db:"popularity_score"`
	Available       bool      `json:"available" db:"available"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}

// Farm is the seller behind products and farm-scoped subscriptions.
type Farm struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	DeliveryZone string    `json:"deliveryZone" db:"delivery_zone"`
	IsActive     bool      `json:"isActive" db:"is_active"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
