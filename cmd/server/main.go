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
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/vikray/backend/internal/database"
	"github.com/vikray/backend/internal/events/kafka"
	"github.com/vikray/backend/internal/interfaces"
	"github.com/vikray/backend/internal/messaging"
	mW "github.com/vikray/backend/internal/middleware"
	"github.com/vikray/backend/internal/services"
)

// @title Vikray Settlement API
// @version 1.0
// @description Marketplace ledger, settlement and manual funding backend
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

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

	viper.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize stores
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	var messenger interfaces.SystemMessenger
	if redisClient != nil {
		messenger = messaging.NewRedisMessenger(redisClient)
	}

	var publisher interfaces.EventPublisher
	if brokers := viper.GetStringSlice("kafka.brokers"); len(brokers) > 0 {
		kafkaPublisher := kafka.NewPublisher(brokers)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	} else {
		log.Println("Kafka brokers not configured, settlement events disabled")
	}

	// Initialize services
	ledgerService := services.NewLedgerService(db)
	catalogService := services.NewCatalogService(db)
	settingsService := services.NewSettingsService(db)
	settlementService := services.NewSettlementService(db, ledgerService, catalogService, settingsService, publisher)
	escrowService := services.NewEscrowService(db, catalogService, settingsService, settlementService, messenger)
	fundingService := services.NewFundingService(db, ledgerService, settingsService)

	// Setup router
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			// Purchases and wallet
			r.Post("/purchases/wallet", settlementService.PurchaseWithWallet)
			r.Post("/purchases/gateway", settlementService.PurchaseWithGateway)
			r.Get("/wallet/balance", settlementService.GetBalance)
			r.Get("/wallet/transactions", settlementService.ListWalletTransactions)

			// Escrow deal channels
			r.Post("/channels", escrowService.OpenChannel)
			r.Post("/channels/{channelId}/mark-done", escrowService.MarkDone)
			r.Post("/channels/{channelId}/confirm", escrowService.Confirm)
			r.Post("/channels/{channelId}/escalate", escrowService.Escalate)
			r.Post("/channels/{channelId}/join", escrowService.Join)
			r.Post("/channels/{channelId}/close", escrowService.Close)
			r.Post("/channels/{channelId}/reopen", escrowService.Reopen)

			// Manual funding queue
			r.Post("/funding/deposits", fundingService.SubmitDeposit)
			r.Post("/funding/withdrawals", fundingService.SubmitWithdrawal)
			r.Get("/funding/deposit-address", fundingService.GetDepositAddress)

			// Admin surface
			r.Group(func(r chi.Router) {
				r.Use(mW.RequireAdmin)

				r.Post("/purchases/{purchaseId}/refund", settlementService.RefundPurchase)
				r.Post("/funding/{requestId}/decide", fundingService.DecideRequest)
				r.Get("/admin/funding", fundingService.ListFunding)
				r.Get("/admin/settings", settingsService.GetSettings)
				r.Put("/admin/settings", settingsService.UpdateSettings)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

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
