package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"farmBoxAPI/internal/apperrors"
	"farmBoxAPI/internal/curation"
	"farmBoxAPI/internal/types/notification"
	"farmBoxAPI/internal/types/subscription"
	"farmBoxAPI/middleware"
	"farmBoxAPI/services"
	"farmBoxAPI/utils"
)

// Previews this close to the delivery date also queue a heads-up notice.
const upcomingWindow = 48 * time.Hour

type CurationHandler struct {
	subscriptionService *services.SubscriptionService
	engine              *curation.Engine
	notificationService *services.NotificationService
}

func NewCurationHandler(subscriptionService *services.SubscriptionService, engine *curation.Engine, notificationService *services.NotificationService) *CurationHandler {
	return &CurationHandler{
		subscriptionService: subscriptionService,
		engine:              engine,
		notificationService: notificationService,
	}
}

// PreviewNextBox curates the upcoming box without reserving anything, so it
// is safe to hit repeatedly.
func (h *CurationHandler) PreviewNextBox(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	subID, ok := pathUUID(r, "id")
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid subscription id")
		return
	}

	sub, err := h.subscriptionService.GetSubscription(ctx, clerkID, subID)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	if sub.Status == subscription.StatusCancelled {
		respondWithDomainError(w, apperrors.Precondition("cancelled subscriptions have no next box"))
		return
	}

	selection, err := h.engine.Curate(ctx, sub)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	if selection.Undershot {
		middleware.RecordCurationUndershoot()
	}

	if sub.NextDelivery != nil && time.Until(*sub.NextDelivery) <= upcomingWindow {
		h.notificationService.Notify(sub.CustomerID, notification.NotificationDeliveryUpcoming,
			"Box on the way",
			fmt.Sprintf("Your box arrives %s.", utils.FormatDate(*sub.NextDelivery)),
			map[string]any{"subscriptionId": sub.ID.String()},
		)
	}

	respondWithJSON(w, http.StatusOK, selection)
}
