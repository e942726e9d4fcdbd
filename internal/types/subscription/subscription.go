package subscription

import (
	"time"

	"github.com/google/uuid"
)

type Status string
type BoxSize string
type Frequency string

const (
	StatusActive    Status = "ACTIVE"    // Deliveries running
	StatusPaused    Status = "PAUSED"    // Temporarily stopped, resumed by the customer
	StatusCancelled Status = "CANCELLED" // Terminal, history kept for audit

	BoxSizeSmall  BoxSize = "SMALL"
	BoxSizeMedium BoxSize = "MEDIUM"
	BoxSizeLarge  BoxSize = "LARGE"
	BoxSizeFamily BoxSize = "FAMILY"

	FrequencyWeekly   Frequency = "WEEKLY"
	FrequencyBiweekly Frequency = "BIWEEKLY"
)

// Defaults applied on create when the request leaves them out.
const (
	DefaultMaxPausesPerYear = 4
	DefaultMaxSkipsPerMonth = 2
	DefaultMaxFarmsPerBox   = 3
)

// Categories a category-scoped subscription can target. "mixed" is expanded
// by the curation engine into its member categories.
const (
	CategoryMixed      = "mixed"
	CategoryVegetables = "vegetables"
	CategoryFruits     = "fruits"
	CategoryHerbs      = "herbs"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCancelled:
		return true
	}
	return false
}

func (b BoxSize) IsValid() bool {
	switch b {
	case BoxSizeSmall, BoxSizeMedium, BoxSizeLarge, BoxSizeFamily:
		return true
	}
	return false
}

func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyWeekly, FrequencyBiweekly:
		return true
	}
	return false
}

func IsValidCategory(c string) bool {
	switch c {
	case CategoryMixed, CategoryVegetables, CategoryFruits, CategoryHerbs:
		return true
	}
	return false
}

// Subscription is a recurring box delivery. Exactly one of FarmID / Category
// is set: FarmID for a farm-scoped box, Category for a category box.
type Subscription struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	CustomerID uuid.UUID  `json:"customerId" db:"customer_id"`
	FarmID     *uuid.UUID `json:"farmId,omitempty" db:"farm_id"`
	Category   *string    `json:"category,omitempty" db:"category"`

	BoxSize         BoxSize   `json:"boxSize" db:"box_size"`
	Frequency       Frequency `json:"frequency" db:"frequency"`
	DeliveryDay     int       `json:"deliveryDay" db:"delivery_day"` // 0=Sunday .. 6=Saturday
	DeliveryZone    string    `json:"deliveryZone" db:"delivery_zone"`
	DeliveryAddress string    `json:"deliveryAddress" db:"delivery_address"`

	ExcludedItems  []string    `json:"excludedItems" db:"excluded_items"`
	PreferredFarms []uuid.UUID `json:"preferredFarms" db:"preferred_farms"` // soft ranking, order matters
	Notes          string      `json:"notes" db:"notes"`
	MaxFarmsPerBox int         `json:"maxFarmsPerBox" db:"max_farms_per_box"`

	Status       Status     `json:"status" db:"status"`
	StartDate    time.Time  `json:"startDate" db:"start_date"`
	NextDelivery *time.Time `json:"nextDelivery,omitempty" db:"next_delivery"` // nil once cancelled
	PausedUntil  *time.Time `json:"pausedUntil,omitempty" db:"paused_until"`   // set iff PAUSED

	PausesUsedThisYear int `json:"pausesUsedThisYear" db:"pauses_used_this_year"`
	MaxPausesPerYear   int `json:"maxPausesPerYear" db:"max_pauses_per_year"`
	SkipsThisMonth     int `json:"skipsThisMonth" db:"skips_this_month"`
	MaxSkipsPerMonth   int `json:"maxSkipsPerMonth" db:"max_skips_per_month"`

	TrialConverted bool   `json:"trialConverted" db:"trial_converted"`
	AutoRenew      bool   `json:"autoRenew" db:"auto_renew"`
	AuditLog       string `json:"-" db:"audit_log"` // append-only, one line per lifecycle event

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Pause is one granted pause window. Early resume truncates EndDate instead
// of deleting the row.
type Pause struct {
	ID             uuid.UUID `json:"id" db:"id"`
	SubscriptionID uuid.UUID `json:"subscriptionId" db:"subscription_id"`
	StartDate      time.Time `json:"startDate" db:"start_date"`
	EndDate        time.Time `json:"endDate" db:"end_date"`
	Reason         string    `json:"reason" db:"reason"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

// Skip marks one delivery date the customer opted out of. Unique per
// (subscription, date).
type Skip struct {
	ID             uuid.UUID `json:"id" db:"id"`
	SubscriptionID uuid.UUID `json:"subscriptionId" db:"subscription_id"`
	SkipDate       time.Time `json:"skipDate" db:"skip_date"`
	Reason         string    `json:"reason" db:"reason"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

type CreateSubscriptionRequest struct {
	FarmID          *string  `json:"farmId,omitempty"`
	Category        *string  `json:"category,omitempty"`
	BoxSize         string   `json:"boxSize"`
	Frequency       string   `json:"frequency"`
	DeliveryDay     int      `json:"deliveryDay"`
	DeliveryZone    string   `json:"deliveryZone"`
	DeliveryAddress string   `json:"deliveryAddress"`
	ExcludedItems   []string `json:"excludedItems,omitempty"`
	PreferredFarms  []string `json:"preferredFarms,omitempty"`
	Notes           string   `json:"notes,omitempty"`
	MaxFarmsPerBox  *int     `json:"maxFarmsPerBox,omitempty"`
	AutoRenew       *bool    `json:"autoRenew,omitempty"`
}

// PauseRequest takes either a duration in weeks or an explicit window.
type PauseRequest struct {
	DurationWeeks *int    `json:"durationWeeks,omitempty"`
	StartDate     *string `json:"startDate,omitempty"` // YYYY-MM-DD
	EndDate       *string `json:"endDate,omitempty"`   // YYYY-MM-DD
	Reason        string  `json:"reason"`
}

type SkipRequest struct {
	Date   string `json:"date"` // YYYY-MM-DD
	Reason string `json:"reason"`
}

type UnskipRequest struct {
	Date string `json:"date"` // YYYY-MM-DD
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

// UpdatePreferencesRequest carries only the fields the caller wants changed.
type UpdatePreferencesRequest struct {
	ExcludedItems   *[]string `json:"excludedItems,omitempty"`
	PreferredFarms  *[]string `json:"preferredFarms,omitempty"`
	Notes           *string   `json:"notes,omitempty"`
	MaxFarmsPerBox  *int      `json:"maxFarmsPerBox,omitempty"`
	Frequency       *string   `json:"frequency,omitempty"`
	DeliveryDay     *int      `json:"deliveryDay,omitempty"`
	DeliveryZone    *string   `json:"deliveryZone,omitempty"`
	DeliveryAddress *string   `json:"deliveryAddress,omitempty"`
	AutoRenew       *bool     `json:"autoRenew,omitempty"`
}
