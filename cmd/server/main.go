package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ispdesk/backend/docs"
	"github.com/ispdesk/backend/internal/config"
	"github.com/ispdesk/backend/internal/database"
	"github.com/ispdesk/backend/internal/handlers"
	"github.com/ispdesk/backend/internal/jobs"
	"github.com/ispdesk/backend/internal/logger"
	mW "github.com/ispdesk/backend/internal/middleware"
	"github.com/ispdesk/backend/internal/services"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// @title ISP Desk Ledger API
// @version 1.0
// @description Back-office ledger for customer payments, expenses, transfers and employee balances
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	config.BindEnv()
	configErr := viper.ReadInConfig()

	log, err := logger.New()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if configErr != nil {
		log.Info("config file not found, using defaults", zap.Error(configErr))
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "ISP Desk Ledger API"
	docs.SwaggerInfo.Description = "Back-office ledger for customer payments, expenses, transfers and employee balances"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	cfg := config.LoadLedgerConfig()

	// Initialize storage
	var store database.Store
	switch cfg.Store {
	case "memory":
		log.Warn("using in-memory ledger store, data is lost on restart")
		store = database.NewMemoryStore()
	default:
		dbCfg := database.GetConfig()
		db, err := database.InitDB(dbCfg, log)
		if err != nil {
			log.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		if err := database.Migrate(context.Background(), db, dbCfg.Name, log); err != nil {
			log.Fatal("failed to apply migrations", zap.Error(err))
		}
		store = database.NewPostgresStore(db, dbCfg.LockTimeout)
	}

	redisClient := database.InitRedis(log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Initialize services
	var locks services.LockManager = services.NewMemoryLockManager(cfg.LockWait)
	if cfg.LockBackend == "redis" {
		if redisClient == nil {
			log.Warn("redis lock backend requested but redis is unavailable, using in-process locks")
		} else {
			locks = services.NewRedisLockManager(redisClient, cfg.LockWait, cfg.LockTTL, log)
		}
	}

	var opts []services.EngineOption
	if cfg.InvoiceBaseURL != "" {
		opts = append(opts, services.WithInvoiceMarker(services.NewHTTPInvoiceClient(cfg.InvoiceBaseURL, cfg.InvoiceTimeout, log)))
	} else {
		log.Warn("invoices.base_url not set, invoices will not be marked paid")
	}
	if redisClient != nil {
		opts = append(opts, services.WithEventPublisher(services.NewRedisEventPublisher(redisClient, cfg.EventsQueue)))
	}

	engine := services.NewEngine(store, locks, cfg, log, opts...)
	aggregation := services.NewAggregationService(store)
	reconciler := services.NewReconciliationService(engine, aggregation)

	api := &handlers.API{
		Payments: handlers.NewPaymentHandler(engine,
			services.NewVerificationWorkflow(engine),
			services.NewReceiptService(store, redisClient)),
		Transactions: handlers.NewTransactionHandler(engine),
		Reports:      handlers.NewReportHandler(aggregation),
		Admin:        handlers.NewAdminHandler(services.NewAdminService(store, log), engine, reconciler),
	}

	scheduler, err := jobs.NewScheduler(cfg, engine, reconciler, log)
	if err != nil {
		log.Fatal("failed to configure scheduled jobs", zap.Error(err))
	}
	scheduler.Start()

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", api.Routes)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 65 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	scheduler.Stop(ctx)

	log.Info("server stopped")
}
