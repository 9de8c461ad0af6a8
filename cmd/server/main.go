package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/careerforge/backend/docs"
	"github.com/careerforge/backend/internal/config"
	"github.com/careerforge/backend/internal/database"
	"github.com/careerforge/backend/internal/handlers"
	mW "github.com/careerforge/backend/internal/middleware"
	"github.com/careerforge/backend/internal/services"
)

// @title CareerForge Backend API
// @version 1.0
// @description Identity verification and credit ledger API
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
	viper.ReadInConfig()        // read .env file

	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("payments.internal_key", "PAYMENTS_INTERNAL_KEY")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "CareerForge Backend API"
	docs.SwaggerInfo.Description = "Identity verification and credit ledger API"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	fraudCfg := config.LoadFraudConfig()
	creditsCfg := config.LoadCreditsConfig()

	ledgerService := services.NewLedgerService(db)
	accountService := services.NewAccountService(db)
	idempotencyService := services.NewIdempotencyService(db)
	fraudService := services.NewFraudService(fraudCfg)
	verificationService := services.NewVerificationService(db, redisClient, fraudService, ledgerService, accountService, creditsCfg)
	productService := services.NewWorkProductService(db, ledgerService, idempotencyService, creditsCfg)
	guaranteeService := services.NewGuaranteeService(db, ledgerService, productService, creditsCfg)
	creditsService := services.NewCreditsService(db, ledgerService, creditsCfg)
	handoffService := services.NewHandoffService(redisClient)

	verificationHandler := handlers.NewVerificationHandler(verificationService, handoffService)
	managerHandler := handlers.NewManagerHandler(verificationService)
	guaranteeHandler := handlers.NewGuaranteeHandler(guaranteeService)
	creditsHandler := handlers.NewCreditsHandler(creditsService)
	productHandler := handlers.NewProductHandler(productService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Internal-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Payment provider webhook (internal key, not user auth)
		r.Group(func(r chi.Router) {
			r.Use(mW.InternalKeyMiddleware)
			r.Post("/credits/payment-event", creditsHandler.PaymentEvent)
		})

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			// Verification endpoints
			r.Post("/verify/start", verificationHandler.Start)
			r.Post("/verify/upload", verificationHandler.Upload)
			r.Get("/verify/status", verificationHandler.Status)
			r.Post("/verify/agent-decision", verificationHandler.AgentDecide)
			r.Post("/verify/handoff", verificationHandler.CreateHandoff)
			r.Post("/verify/handoff/claim", verificationHandler.ClaimHandoff)

			// Credits endpoints
			r.Get("/credits/balance", creditsHandler.Balance)
			r.Get("/credits/events", creditsHandler.Events)

			// Product endpoints
			r.Post("/products/generate", productHandler.Generate)
			r.Get("/products", productHandler.List)

			// Guarantee endpoints
			r.Get("/guarantee/status", guaranteeHandler.Status)
			r.Post("/guarantee/request", guaranteeHandler.Request)

			// Manager endpoints
			r.Group(func(r chi.Router) {
				r.Use(mW.RequireManager)

				r.Get("/manager/verifications", managerHandler.ListPending)
				r.Get("/manager/verifications/{id}", managerHandler.GetSession)
				r.Get("/manager/verifications/{id}/documents/{type}", managerHandler.GetDocument)
				r.Post("/manager/verifications/{id}/review", managerHandler.Review)

				r.Get("/manager/guarantees", guaranteeHandler.ListPending)
				r.Post("/manager/guarantees/{id}/resolve", guaranteeHandler.Resolve)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
