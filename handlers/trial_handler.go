package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"farmBoxAPI/internal/types/trial"
	"farmBoxAPI/middleware"
	"farmBoxAPI/services"
)

type TrialHandler struct {
	trialService *services.TrialService
}

func NewTrialHandler(trialService *services.TrialService) *TrialHandler {
	return &TrialHandler{
		trialService: trialService,
	}
}

func (h *TrialHandler) CreateTrial(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req trial.CreateTrialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	t, err := h.trialService.CreateTrial(ctx, clerkID, &req)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, t)
}

func (h *TrialHandler) ListTrials(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	trials, err := h.trialService.ListTrials(ctx, clerkID)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, trials)
}

func (h *TrialHandler) GetTrial(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	trialID, ok := pathUUID(r, "id")
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid trial id")
		return
	}

	t, err := h.trialService.GetTrial(ctx, clerkID, trialID)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, t)
}

func (h *TrialHandler) ConvertTrial(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	trialID, ok := pathUUID(r, "id")
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid trial id")
		return
	}

	var req trial.ConvertTrialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sub, err := h.trialService.Convert(ctx, clerkID, trialID, &req)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, sub)
}

// MarkTrialDelivered is the fulfillment-side callback, routed under
// /internal behind basic auth rather than Clerk.
func (h *TrialHandler) MarkTrialDelivered(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	trialID, ok := pathUUID(r, "id")
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid trial id")
		return
	}

	var req trial.MarkDeliveredRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	t, err := h.trialService.MarkDelivered(ctx, trialID, &req)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, t)
}
