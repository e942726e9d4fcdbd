package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmBoxAPI/handlers"
	"farmBoxAPI/internal/types/subscription"
	"farmBoxAPI/middleware"
	"farmBoxAPI/services"
	"farmBoxAPI/tests/helpers"
)

func authedRequest(method, target, body, clerkID string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	ctx := context.WithValue(req.Context(), middleware.ClerkIDKey, clerkID)
	return req.WithContext(ctx)
}

// TestSubscriptionLifecycleFlow walks one subscription through create, skip,
// unskip, pause, resume and cancel, the way the app drives it.
func TestSubscriptionLifecycleFlow(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notificationService := services.NewNotificationService(pool)
	defer notificationService.Stop()
	subscriptionService := services.NewSubscriptionService(pool, notificationService)
	subscriptionHandler := handlers.NewSubscriptionHandler(subscriptionService)

	clerkID := helpers.TestClerkID()

	// Step 1: create a category subscription
	t.Log("Step 1: Create subscription")

	createBody := `{
		"category": "mixed",
		"boxSize": "medium",
		"frequency": "weekly",
		"deliveryDay": 4,
		"deliveryZone": "zone-1",
		"deliveryAddress": "12 Orchard Lane"
	}`
	req1 := authedRequest(http.MethodPost, "/api/v1/subscriptions", createBody, clerkID)
	rr1 := httptest.NewRecorder()

	subscriptionHandler.CreateSubscription(rr1, req1)
	require.Equal(t, http.StatusCreated, rr1.Code, rr1.Body.String())

	var sub subscription.Subscription
	require.NoError(t, json.Unmarshal(rr1.Body.Bytes(), &sub))
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, subscription.BoxSizeMedium, sub.BoxSize)
	require.NotNil(t, sub.NextDelivery)
	assert.Equal(t, time.Thursday, sub.NextDelivery.Weekday())
	assert.True(t, sub.NextDelivery.After(time.Now()))

	subID := sub.ID.String()
	vars := map[string]string{"id": subID}

	// Step 2: skip a delivery far enough ahead of the cutoff
	t.Log("Step 2: Skip a delivery")

	skipDate := time.Now().AddDate(0, 0, 10).Format("2006-01-02")
	req2 := authedRequest(http.MethodPost, "/api/v1/subscriptions/"+subID+"/skip",
		`{"date": "`+skipDate+`", "reason": "on vacation"}`, clerkID)
	rr2 := httptest.NewRecorder()

	subscriptionHandler.SkipDelivery(rr2, mux.SetURLVars(req2, vars))
	require.Equal(t, http.StatusCreated, rr2.Code, rr2.Body.String())

	// Step 3: the same date again must conflict
	t.Log("Step 3: Duplicate skip is rejected")

	req3 := authedRequest(http.MethodPost, "/api/v1/subscriptions/"+subID+"/skip",
		`{"date": "`+skipDate+`", "reason": "on vacation"}`, clerkID)
	rr3 := httptest.NewRecorder()

	subscriptionHandler.SkipDelivery(rr3, mux.SetURLVars(req3, vars))
	assert.Equal(t, http.StatusConflict, rr3.Code)

	// Step 4: unskip hands the quota back
	t.Log("Step 4: Unskip the delivery")

	req4 := authedRequest(http.MethodDelete, "/api/v1/subscriptions/"+subID+"/skip",
		`{"date": "`+skipDate+`"}`, clerkID)
	rr4 := httptest.NewRecorder()

	subscriptionHandler.UnskipDelivery(rr4, mux.SetURLVars(req4, vars))
	require.Equal(t, http.StatusOK, rr4.Code, rr4.Body.String())

	var afterUnskip subscription.Subscription
	require.NoError(t, json.Unmarshal(rr4.Body.Bytes(), &afterUnskip))
	assert.Equal(t, 0, afterUnskip.SkipsThisMonth)

	// Step 5: pause for two weeks
	t.Log("Step 5: Pause")

	req5 := authedRequest(http.MethodPost, "/api/v1/subscriptions/"+subID+"/pause",
		`{"durationWeeks": 2, "reason": "travelling"}`, clerkID)
	rr5 := httptest.NewRecorder()

	subscriptionHandler.PauseSubscription(rr5, mux.SetURLVars(req5, vars))
	require.Equal(t, http.StatusOK, rr5.Code, rr5.Body.String())

	var paused subscription.Subscription
	require.NoError(t, json.Unmarshal(rr5.Body.Bytes(), &paused))
	assert.Equal(t, subscription.StatusPaused, paused.Status)
	assert.Equal(t, 1, paused.PausesUsedThisYear)
	require.NotNil(t, paused.PausedUntil)

	// Step 6: skipping while paused fails the precondition
	t.Log("Step 6: Skip while paused is rejected")

	otherDate := time.Now().AddDate(0, 0, 12).Format("2006-01-02")
	req6 := authedRequest(http.MethodPost, "/api/v1/subscriptions/"+subID+"/skip",
		`{"date": "`+otherDate+`"}`, clerkID)
	rr6 := httptest.NewRecorder()

	subscriptionHandler.SkipDelivery(rr6, mux.SetURLVars(req6, vars))
	assert.Equal(t, http.StatusConflict, rr6.Code)

	// Step 7: resume early
	t.Log("Step 7: Resume")

	req7 := authedRequest(http.MethodPost, "/api/v1/subscriptions/"+subID+"/resume", "", clerkID)
	rr7 := httptest.NewRecorder()

	subscriptionHandler.ResumeSubscription(rr7, mux.SetURLVars(req7, vars))
	require.Equal(t, http.StatusOK, rr7.Code, rr7.Body.String())

	var resumed subscription.Subscription
	require.NoError(t, json.Unmarshal(rr7.Body.Bytes(), &resumed))
	assert.Equal(t, subscription.StatusActive, resumed.Status)
	assert.Nil(t, resumed.PausedUntil)
	require.NotNil(t, resumed.NextDelivery)
	assert.Equal(t, time.Thursday, resumed.NextDelivery.Weekday())

	// Step 8: cancel, then verify the row survives as CANCELLED
	t.Log("Step 8: Cancel")

	req8 := authedRequest(http.MethodPost, "/api/v1/subscriptions/"+subID+"/cancel",
		`{"reason": "moving away"}`, clerkID)
	rr8 := httptest.NewRecorder()

	subscriptionHandler.CancelSubscription(rr8, mux.SetURLVars(req8, vars))
	require.Equal(t, http.StatusOK, rr8.Code, rr8.Body.String())

	var cancelled subscription.Subscription
	require.NoError(t, json.Unmarshal(rr8.Body.Bytes(), &cancelled))
	assert.Equal(t, subscription.StatusCancelled, cancelled.Status)
	assert.Nil(t, cancelled.NextDelivery)

	// Cancelling twice is a precondition failure, not a 500
	rr9 := httptest.NewRecorder()
	req9 := authedRequest(http.MethodPost, "/api/v1/subscriptions/"+subID+"/cancel",
		`{"reason": "again"}`, clerkID)
	subscriptionHandler.CancelSubscription(rr9, mux.SetURLVars(req9, vars))
	assert.Equal(t, http.StatusConflict, rr9.Code)

	ctx := context.Background()
	kept, err := subscriptionService.GetSubscription(ctx, clerkID, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, kept.Status)
}

func TestDuplicateActiveSubscriptionRejected(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notificationService := services.NewNotificationService(pool)
	defer notificationService.Stop()
	subscriptionService := services.NewSubscriptionService(pool, notificationService)
	subscriptionHandler := handlers.NewSubscriptionHandler(subscriptionService)

	clerkID := helpers.TestClerkID()

	createBody := `{
		"category": "fruits",
		"boxSize": "medium",
		"frequency": "weekly",
		"deliveryDay": 3,
		"deliveryZone": "zone-1",
		"deliveryAddress": "7 Cider Row"
	}`

	req1 := authedRequest(http.MethodPost, "/api/v1/subscriptions", createBody, clerkID)
	rr1 := httptest.NewRecorder()
	subscriptionHandler.CreateSubscription(rr1, req1)
	require.Equal(t, http.StatusCreated, rr1.Code, rr1.Body.String())

	// A second ACTIVE subscription for the same category must conflict.
	req2 := authedRequest(http.MethodPost, "/api/v1/subscriptions", createBody, clerkID)
	rr2 := httptest.NewRecorder()
	subscriptionHandler.CreateSubscription(rr2, req2)
	assert.Equal(t, http.StatusConflict, rr2.Code, rr2.Body.String())

	// After cancelling the first, the same target is free again.
	var sub subscription.Subscription
	require.NoError(t, json.Unmarshal(rr1.Body.Bytes(), &sub))

	reqCancel := authedRequest(http.MethodPost, "/api/v1/subscriptions/"+sub.ID.String()+"/cancel",
		`{"reason": "switching"}`, clerkID)
	rrCancel := httptest.NewRecorder()
	subscriptionHandler.CancelSubscription(rrCancel, mux.SetURLVars(reqCancel, map[string]string{"id": sub.ID.String()}))
	require.Equal(t, http.StatusOK, rrCancel.Code, rrCancel.Body.String())

	req3 := authedRequest(http.MethodPost, "/api/v1/subscriptions", createBody, clerkID)
	rr3 := httptest.NewRecorder()
	subscriptionHandler.CreateSubscription(rr3, req3)
	assert.Equal(t, http.StatusCreated, rr3.Code, rr3.Body.String())
}

func TestSkipQuotaExhaustion(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notificationService := services.NewNotificationService(pool)
	defer notificationService.Stop()
	subscriptionService := services.NewSubscriptionService(pool, notificationService)
	subscriptionHandler := handlers.NewSubscriptionHandler(subscriptionService)

	clerkID := helpers.TestClerkID()

	createBody := `{
		"category": "vegetables",
		"boxSize": "small",
		"frequency": "weekly",
		"deliveryDay": 2,
		"deliveryZone": "zone-2",
		"deliveryAddress": "3 Mill Road"
	}`
	req := authedRequest(http.MethodPost, "/api/v1/subscriptions", createBody, clerkID)
	rr := httptest.NewRecorder()
	subscriptionHandler.CreateSubscription(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var sub subscription.Subscription
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sub))
	vars := map[string]string{"id": sub.ID.String()}

	// Default quota is two skips a month. The third attempt must come back 429.
	for i := 0; i < subscription.DefaultMaxSkipsPerMonth; i++ {
		date := time.Now().AddDate(0, 0, 7+i).Format("2006-01-02")
		r := authedRequest(http.MethodPost, "/api/v1/subscriptions/"+sub.ID.String()+"/skip",
			`{"date": "`+date+`"}`, clerkID)
		w := httptest.NewRecorder()
		subscriptionHandler.SkipDelivery(w, mux.SetURLVars(r, vars))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	date := time.Now().AddDate(0, 0, 20).Format("2006-01-02")
	r := authedRequest(http.MethodPost, "/api/v1/subscriptions/"+sub.ID.String()+"/skip",
		`{"date": "`+date+`"}`, clerkID)
	w := httptest.NewRecorder()
	subscriptionHandler.SkipDelivery(w, mux.SetURLVars(r, vars))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
