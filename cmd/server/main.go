package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/rs/cors"

	"github.com/openvest/brokerlink/internal/cache"
	"github.com/openvest/brokerlink/internal/config"
	"github.com/openvest/brokerlink/internal/database"
	"github.com/openvest/brokerlink/internal/handlers"
	"github.com/openvest/brokerlink/internal/logger"
	"github.com/openvest/brokerlink/internal/middleware"
	"github.com/openvest/brokerlink/internal/monitoring"
	"github.com/openvest/brokerlink/internal/provider"
	"github.com/openvest/brokerlink/internal/repository"
	"github.com/openvest/brokerlink/internal/services/broker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	// Database
	sqlDB, err := sql.Open("postgres", cfg.GetDatabaseURL())
	if err != nil {
		appLogger.Fatalf("Failed to connect to database: %v", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		appLogger.Fatalf("Failed to ping database: %v", err)
	}
	db := database.New(sqlDB)

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
	})
	defer redisClient.Close()

	// Monitoring
	metrics := monitoring.NewMetrics("brokerlink")
	healthChecker := monitoring.NewHealthChecker(sqlDB)

	// Provider client
	providerCfg := provider.Config{
		BaseURL:     cfg.Provider.BaseURL,
		ClientID:    cfg.Provider.ClientID,
		ConsumerKey: cfg.Provider.ConsumerKey,
		Timeout:     cfg.Provider.Timeout,
	}
	if !providerCfg.Configured() {
		appLogger.Warn("Provider credentials not configured; broker operations will fail")
	}
	providerClient := provider.NewClient(providerCfg, appLogger, metrics)

	// Repositories and services
	connections := repository.NewConnectionRepository(db)
	assets := repository.NewAssetRepository(db)
	holdingsCache := cache.NewHoldingsCache(redisClient, cfg.Redis.HoldingsTTL)

	registrar := broker.NewRegistrar(providerClient, connections, appLogger)
	linkGenerator := broker.NewLinkGenerator(providerClient, connections, registrar, appLogger)
	syncEngine := broker.NewSyncEngine(providerClient, connections, assets, holdingsCache, appLogger, metrics)
	disconnector := broker.NewDisconnector(providerClient, connections, holdingsCache, appLogger)

	brokerHandler := handlers.NewBrokerHandler(
		registrar,
		linkGenerator,
		syncEngine,
		disconnector,
		providerClient,
		providerCfg.Configured(),
		appLogger,
	)

	authMiddleware := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret)

	// Router
	router := mux.NewRouter()
	router.Use(middleware.Recovery)
	router.Use(middleware.SecureHeaders())
	router.Use(middleware.APIRateLimit(float64(cfg.App.RateLimit), cfg.App.RateLimit*2))
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.App.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler)

	router.Handle("/health", healthChecker.Handler()).Methods("GET")
	router.Handle("/metrics", metrics.Handler()).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()

	brokerAPI := api.PathPrefix("/broker").Subrouter()
	brokerAPI.Use(authMiddleware.Authenticate)
	brokerAPI.Use(middleware.NoCache)
	brokerAPI.Use(middleware.MaxBodySize(1 << 20))

	brokerAPI.HandleFunc("/register", brokerHandler.Register).Methods("POST")
	brokerAPI.HandleFunc("/link", brokerHandler.CreateLink).Methods("POST")
	brokerAPI.HandleFunc("/callback", brokerHandler.Callback).Methods("GET")
	brokerAPI.HandleFunc("/holdings", brokerHandler.Holdings).Methods("GET")
	brokerAPI.HandleFunc("/accounts", brokerHandler.Accounts).Methods("GET")
	brokerAPI.HandleFunc("/connections/{authorizationId}", brokerHandler.Disconnect).Methods("DELETE")
	brokerAPI.HandleFunc("/status", brokerHandler.Status).Methods("GET")

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLogger.Infof("Server starting on port %d", cfg.App.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Fatalf("Server forced to shutdown: %v", err)
	}

	appLogger.Info("Server stopped")
}
