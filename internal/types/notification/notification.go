package notification

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationSubscriptionCreated   NotificationType = "subscription_created"
	NotificationSubscriptionPaused    NotificationType = "subscription_paused"
	NotificationSubscriptionResumed   NotificationType = "subscription_resumed"
	NotificationSubscriptionCancelled NotificationType = "subscription_cancelled"
	NotificationDeliveryUpcoming      NotificationType = "delivery_upcoming"
	NotificationTrialConverted        NotificationType = "trial_converted"
)

type Notification struct {
	ID         uuid.UUID        `json:"id" db:"id"`
	CustomerID uuid.UUID        `json:"customerId" db:"customer_id"`
	Type       NotificationType `json:"type" db:"type"`
	Title      string           `json:"title" db:"title"`
	Body       string           `json:"body" db:"body"`
	Data       map[string]any   `json:"data" db:"data"`
	IsRead     bool             `json:"isRead" db:"is_read"`
	CreatedAt  time.Time        `json:"createdAt" db:"created_at"`
}

// DeviceToken is a registered push target. Registration itself happens in
// the mobile app's backend flow, we only read them.
type DeviceToken struct {
	Token    string `json:"token" db:"token"`
	Platform string `json:"platform" db:"platform"`
}
