package trial

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"   // Ordered, not yet delivered
	StatusDelivered Status = "DELIVERED" // Fulfillment marked the linked order delivered
	StatusExpired   Status = "EXPIRED"   // 7 days passed without delivery
	StatusConverted Status = "CONVERTED" // Turned into a full subscription
)

// How long a trial stays claimable before it lapses.
const ExpiryDays = 7

// Every trial box ships at the same flat discount.
const DiscountPercent = 25

// TrialBox is a one-shot discounted box. A customer gets at most one per
// farm, ever.
type TrialBox struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	CustomerID      uuid.UUID  `json:"customerId" db:"customer_id"`
	FarmID          uuid.UUID  `json:"farmId" db:"farm_id"`
	BoxSize         string     `json:"boxSize" db:"box_size"`
	DiscountPercent int        `json:"discountPercent" db:"discount_percent"`
	Status          Status     `json:"status" db:"status"`
	ExpiresAt       time.Time  `json:"expiresAt" db:"expires_at"`
	ConvertedToSub  bool       `json:"convertedToSub" db:"converted_to_sub"`
	OrderID         *uuid.UUID `json:"orderId,omitempty" db:"order_id"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time  `json:"updatedAt" db:"updated_at"`
}

type CreateTrialRequest struct {
	FarmID  string `json:"farmId"`
	BoxSize string `json:"boxSize"`
}

type MarkDeliveredRequest struct {
	OrderID string `json:"orderId"`
}

// ConvertTrialRequest carries the delivery setup for the subscription the
// trial turns into. Box size and farm come from the trial itself.
type ConvertTrialRequest struct {
	Frequency       string   `json:"frequency"`
	DeliveryDay     int      `json:"deliveryDay"`
	DeliveryZone    string   `json:"deliveryZone"`
	DeliveryAddress string   `json:"deliveryAddress"`
	ExcludedItems   []string `json:"excludedItems,omitempty"`
	PreferredFarms  []string `json:"preferredFarms,omitempty"`
	Notes           string   `json:"notes,omitempty"`
	MaxFarmsPerBox  *int     `json:"maxFarmsPerBox,omitempty"`
}
