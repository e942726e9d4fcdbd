package handlers

import (
	"context"
	"net/http"
	"time"

	"farmBoxAPI/services"
)

// CronHandler exposes the quota reset jobs to the external scheduler. The
// routes sit under /internal behind basic auth; both jobs are idempotent so
// a cron retry is harmless.
type CronHandler struct {
	quotaResetService *services.QuotaResetService
}

func NewCronHandler(quotaResetService *services.QuotaResetService) *CronHandler {
	return &CronHandler{
		quotaResetService: quotaResetService,
	}
}

func (h *CronHandler) ResetMonthlySkips(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	updated, err := h.quotaResetService.ResetAllMonthlySkips(ctx)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

func (h *CronHandler) ResetYearlyPauses(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	updated, err := h.quotaResetService.ResetAllYearlyPauses(ctx)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}
