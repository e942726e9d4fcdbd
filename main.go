package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"farmBoxAPI/handlers"
	"farmBoxAPI/internal/curation"
	"farmBoxAPI/internal/notification"
	"farmBoxAPI/internal/workers"
	"farmBoxAPI/middleware"
	"farmBoxAPI/services"

	_ "net/http/pprof"
)

var (
	dbPool              *pgxpool.Pool
	notificationService *services.NotificationService
	catalogService      *services.CatalogService
	subscriptionService *services.SubscriptionService
	trialService        *services.TrialService
	quotaResetService   *services.QuotaResetService
	curationEngine      *curation.Engine
	fcmService          *notification.FCMService
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	clerkSecretKey := os.Getenv("CLERK_SECRET_KEY")
	if clerkSecretKey == "" {
		log.Fatal("CLERK_SECRET_KEY environment variable is not set")
	}
	clerk.SetKey(clerkSecretKey)
	log.Println("Clerk initialized successfully")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatal("Failed to parse database URL:", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal("Failed to create connection pool:", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	log.Println("Successfully connected to Postgres")

	notificationService = services.NewNotificationService(dbPool)
	catalogService = services.NewCatalogService(dbPool)
	subscriptionService = services.NewSubscriptionService(dbPool, notificationService)
	trialService = services.NewTrialService(dbPool, catalogService, subscriptionService, notificationService)
	quotaResetService = services.NewQuotaResetService(dbPool)
	curationEngine = curation.NewEngine(catalogService)

	fcmService, err = notification.NewFCMService("./serviceAccountKey.json")
	if err != nil {
		log.Printf("Warning: Could not initialize FCM: %v", err)
	} else {
		notificationService.SetPushProvider(fcmService)
		log.Println("FCM Push Provider initialized successfully")
	}

	middleware.InitPrometheus()
}

func main() {
	defer func() {
		log.Println("Closing database connection pool...")
		notificationService.Stop()
		dbPool.Close()
	}()

	// Initialize handlers
	subscriptionHandler := handlers.NewSubscriptionHandler(subscriptionService)
	trialHandler := handlers.NewTrialHandler(trialService)
	curationHandler := handlers.NewCurationHandler(subscriptionService, curationEngine, notificationService)
	cronHandler := handlers.NewCronHandler(quotaResetService)

	workers.StartTrialExpiryWorker(dbPool)

	r := mux.NewRouter()

	go middleware.CleanupVisitors()

	r.Use(middleware.RateLimitMiddleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))
	r.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(http.DefaultServeMux))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := dbPool.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "farmBox-api"}`))
	}).Methods("GET")

	// -------------------------------------------------------------------------
	// INTERNAL ROUTES (CRON + FULFILLMENT, BASIC AUTH)
	// -------------------------------------------------------------------------
	internal := r.PathPrefix("/internal").Subrouter()
	internal.Use(middleware.BasicAuthMiddleware)

	internal.HandleFunc("/cron/reset-monthly-skips", cronHandler.ResetMonthlySkips).Methods("POST")
	internal.HandleFunc("/cron/reset-yearly-pauses", cronHandler.ResetYearlyPauses).Methods("POST")
	internal.HandleFunc("/trials/{id}/delivered", trialHandler.MarkTrialDelivered).Methods("POST")

	// -------------------------------------------------------------------------
	// PROTECTED ROUTES (REQUIRE AUTH HEADER)
	// -------------------------------------------------------------------------
	api := r.PathPrefix("/api/v1").Subrouter()
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.ClerkAuthMiddleware)

	protected.HandleFunc("/subscriptions", subscriptionHandler.CreateSubscription).Methods("POST")
	protected.HandleFunc("/subscriptions", subscriptionHandler.ListSubscriptions).Methods("GET")
	protected.HandleFunc("/subscriptions/{id}", subscriptionHandler.GetSubscription).Methods("GET")
	protected.HandleFunc("/subscriptions/{id}/preferences", subscriptionHandler.UpdatePreferences).Methods("PUT")
	protected.HandleFunc("/subscriptions/{id}/pause", subscriptionHandler.PauseSubscription).Methods("POST")
	protected.HandleFunc("/subscriptions/{id}/resume", subscriptionHandler.ResumeSubscription).Methods("POST")
	protected.HandleFunc("/subscriptions/{id}/skip", subscriptionHandler.SkipDelivery).Methods("POST")
	protected.HandleFunc("/subscriptions/{id}/skip", subscriptionHandler.UnskipDelivery).Methods("DELETE")
	protected.HandleFunc("/subscriptions/{id}/cancel", subscriptionHandler.CancelSubscription).Methods("POST")
	protected.HandleFunc("/subscriptions/{id}/skips", subscriptionHandler.ListSkips).Methods("GET")
	protected.HandleFunc("/subscriptions/{id}/pauses", subscriptionHandler.ListPauses).Methods("GET")
	protected.HandleFunc("/subscriptions/{id}/next-box", curationHandler.PreviewNextBox).Methods("GET")

	protected.HandleFunc("/trials", trialHandler.CreateTrial).Methods("POST")
	protected.HandleFunc("/trials", trialHandler.ListTrials).Methods("GET")
	protected.HandleFunc("/trials/{id}", trialHandler.GetTrial).Methods("GET")
	protected.HandleFunc("/trials/{id}/convert", trialHandler.ConvertTrial).Methods("POST")

	// CORS configuration
	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3333"
	}
	port = ":" + port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
}
