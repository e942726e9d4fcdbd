package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmBoxAPI/handlers"
	"farmBoxAPI/internal/types/subscription"
	"farmBoxAPI/internal/types/trial"
	"farmBoxAPI/services"
	"farmBoxAPI/tests/helpers"
)

// TestTrialToSubscriptionFlow orders a trial box, has fulfillment mark it
// delivered, then converts it into a farm-scoped subscription.
func TestTrialToSubscriptionFlow(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notificationService := services.NewNotificationService(pool)
	defer notificationService.Stop()
	catalogService := services.NewCatalogService(pool)
	subscriptionService := services.NewSubscriptionService(pool, notificationService)
	trialService := services.NewTrialService(pool, catalogService, subscriptionService, notificationService)
	trialHandler := handlers.NewTrialHandler(trialService)

	clerkID := helpers.TestClerkID()
	farmID := helpers.SeedFarm(t, pool, "Green Meadow Farm")

	// Step 1: order the trial
	t.Log("Step 1: Order trial box")

	createBody := `{"farmId": "` + farmID.String() + `", "boxSize": "small"}`
	req1 := authedRequest(http.MethodPost, "/api/v1/trials", createBody, clerkID)
	rr1 := httptest.NewRecorder()

	trialHandler.CreateTrial(rr1, req1)
	require.Equal(t, http.StatusCreated, rr1.Code, rr1.Body.String())

	var tb trial.TrialBox
	require.NoError(t, json.Unmarshal(rr1.Body.Bytes(), &tb))
	assert.Equal(t, trial.StatusPending, tb.Status)
	assert.Equal(t, trial.DiscountPercent, tb.DiscountPercent)

	vars := map[string]string{"id": tb.ID.String()}

	// Step 2: a second trial for the same farm is refused
	t.Log("Step 2: Duplicate trial is rejected")

	req2 := authedRequest(http.MethodPost, "/api/v1/trials", createBody, clerkID)
	rr2 := httptest.NewRecorder()

	trialHandler.CreateTrial(rr2, req2)
	assert.Equal(t, http.StatusConflict, rr2.Code)

	// Step 3: converting before delivery fails
	t.Log("Step 3: Convert before delivery is rejected")

	convertBody := `{
		"frequency": "weekly",
		"deliveryDay": 5,
		"deliveryZone": "zone-1",
		"deliveryAddress": "8 Harbor Street"
	}`
	req3 := authedRequest(http.MethodPost, "/api/v1/trials/"+tb.ID.String()+"/convert", convertBody, clerkID)
	rr3 := httptest.NewRecorder()

	trialHandler.ConvertTrial(rr3, mux.SetURLVars(req3, vars))
	assert.Equal(t, http.StatusConflict, rr3.Code)

	// Step 4: fulfillment marks it delivered
	t.Log("Step 4: Mark delivered")

	orderID := uuid.New()
	deliveredBody := `{"orderId": "` + orderID.String() + `"}`
	req4 := httptest.NewRequest(http.MethodPost, "/internal/trials/"+tb.ID.String()+"/delivered",
		strings.NewReader(deliveredBody))
	req4.Header.Set("Content-Type", "application/json")
	rr4 := httptest.NewRecorder()

	trialHandler.MarkTrialDelivered(rr4, mux.SetURLVars(req4, vars))
	require.Equal(t, http.StatusOK, rr4.Code, rr4.Body.String())

	var delivered trial.TrialBox
	require.NoError(t, json.Unmarshal(rr4.Body.Bytes(), &delivered))
	assert.Equal(t, trial.StatusDelivered, delivered.Status)
	require.NotNil(t, delivered.OrderID)
	assert.Equal(t, orderID, *delivered.OrderID)

	// Step 5: convert into a subscription
	t.Log("Step 5: Convert")

	req5 := authedRequest(http.MethodPost, "/api/v1/trials/"+tb.ID.String()+"/convert", convertBody, clerkID)
	rr5 := httptest.NewRecorder()

	trialHandler.ConvertTrial(rr5, mux.SetURLVars(req5, vars))
	require.Equal(t, http.StatusCreated, rr5.Code, rr5.Body.String())

	var sub subscription.Subscription
	require.NoError(t, json.Unmarshal(rr5.Body.Bytes(), &sub))
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.True(t, sub.TrialConverted)
	require.NotNil(t, sub.FarmID)
	assert.Equal(t, farmID, *sub.FarmID)
	assert.Equal(t, subscription.BoxSizeSmall, sub.BoxSize)

	// Step 6: the trial now reads CONVERTED and cannot convert again
	t.Log("Step 6: Trial is CONVERTED")

	req6 := authedRequest(http.MethodGet, "/api/v1/trials/"+tb.ID.String(), "", clerkID)
	rr6 := httptest.NewRecorder()

	trialHandler.GetTrial(rr6, mux.SetURLVars(req6, vars))
	require.Equal(t, http.StatusOK, rr6.Code)

	var converted trial.TrialBox
	require.NoError(t, json.Unmarshal(rr6.Body.Bytes(), &converted))
	assert.Equal(t, trial.StatusConverted, converted.Status)
	assert.True(t, converted.ConvertedToSub)

	req7 := authedRequest(http.MethodPost, "/api/v1/trials/"+tb.ID.String()+"/convert", convertBody, clerkID)
	rr7 := httptest.NewRecorder()
	trialHandler.ConvertTrial(rr7, mux.SetURLVars(req7, vars))
	assert.Equal(t, http.StatusConflict, rr7.Code)
}
