package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/federated-storage/proofpay/internal/config"
	"github.com/federated-storage/proofpay/internal/epoch"
	"github.com/federated-storage/proofpay/internal/handlers"
	"github.com/federated-storage/proofpay/internal/ledger"
	"github.com/federated-storage/proofpay/internal/middleware"
	"github.com/federated-storage/proofpay/internal/p2p"
	"github.com/federated-storage/proofpay/internal/services"
	"github.com/federated-storage/proofpay/internal/storage"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.toml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Warning: failed to load config from %s: %v", configPath, err)
		log.Println("Using default configuration")
		cfg = config.DefaultConfig()
	}

	// Initialize database
	db, err := storage.New(cfg.Database.DatabaseURL())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations
	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		// Get the directory of the executable to find migrations
		execPath, err := os.Executable()
		if err == nil {
			execDir := filepath.Dir(execPath)
			migrationsPath = filepath.Join(execDir, "..", "..", "migrations")
		} else {
			migrationsPath = "./migrations"
		}
	}
	if err := db.Migrate(migrationsPath); err != nil {
		log.Printf("Warning: migrations failed: %v", err)
	}

	store := storage.NewPGStore(db)
	rails := ledger.NewStoreLedger(store)
	clock := epoch.NewSystemClock(cfg.Chain.GenesisUnix, cfg.Chain.EpochSeconds)

	// Start the event announcer
	announcer, err := p2p.NewAnnouncer(p2p.AnnouncerConfig{
		ListenAddresses: cfg.P2P.ListenAddresses,
		BootstrapPeers:  cfg.P2P.BootstrapPeers,
		ObserverPeers:   cfg.P2P.ObserverPeers,
		EnableTCP:       cfg.P2P.EnableTCP,
		EnableQUIC:      cfg.P2P.EnableQUIC,
	})
	if err != nil {
		log.Fatalf("Failed to create event announcer: %v", err)
	}
	if err := announcer.Start(); err != nil {
		log.Fatalf("Failed to start event announcer: %v", err)
	}
	defer announcer.Close()

	log.Printf("Event announcer started with ID: %s", announcer.ID())

	// Amounts were validated at config load
	pricePerTiBMonth, _ := cfg.Pricing.PricePerTiBMonthInt()
	minRate, _ := cfg.Pricing.MinRateInt()
	creationFee, _ := cfg.Payments.CreationFeeInt()

	// Initialize services
	authService := services.NewAuthService(store, cfg.Service.Identity)
	providerService := services.NewProviderService(store)
	rateService := services.NewRateService(store, rails, announcer, services.RateParams{
		PricePerTiBMonth: pricePerTiBMonth,
		MinRate:          minRate,
		FreeTierBytes:    cfg.Pricing.FreeTierBytes,
		LeafSizeBytes:    cfg.Pricing.LeafSizeBytes,
		EpochsPerMonth:   cfg.Pricing.EpochsPerMonth,
	})
	datasetService := services.NewDatasetService(store, rails, authService, announcer, services.DatasetParams{
		Token:         cfg.Payments.Token,
		CommissionBps: cfg.Payments.CommissionBps,
		CreationFee:   creationFee,
		LockupPeriod:  cfg.Payments.LockupPeriod,
		ServiceID:     cfg.Service.Identity,
	})
	provingService := services.NewProvingService(store, rateService, clock, announcer, services.ProvingParams{
		PeriodLength:    cfg.Proving.PeriodLength,
		ChallengeWindow: cfg.Proving.ChallengeWindow,
		MinChallenges:   cfg.Proving.MinChallenges,
	})
	arbitrationService := services.NewArbitrationService(store, provingService, announcer)

	// Set up HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "epoch": clock.Current()})
	})

	// Initialize handlers
	payerHandler := handlers.NewPayerHandler(authService)
	providerHandler := handlers.NewProviderHandler(providerService)
	datasetHandler := handlers.NewDatasetHandler(datasetService, provingService, store)
	provingHandler := handlers.NewProvingHandler(provingService)
	arbitrationHandler := handlers.NewArbitrationHandler(arbitrationService)

	jwtSecret := os.Getenv("JWT_SECRET")
	verifierAuth := middleware.VerifierAuthMiddleware(func(verifierID string) (string, error) {
		key, ok := cfg.Service.VerifierKeys[verifierID]
		if !ok {
			return "", fmt.Errorf("unknown verifier: %s", verifierID)
		}
		return key, nil
	})

	// API routes
	api := router.Group("/api/v1")
	{
		// Payer routes (public)
		api.POST("/payers/register", payerHandler.Register)

		// Provider allow-list routes (operator only)
		providers := api.Group("/providers")
		{
			providers.GET("", providerHandler.List)
			providers.POST("", middleware.JWTMiddleware(jwtSecret), providerHandler.Approve)
			providers.DELETE("/:address", middleware.JWTMiddleware(jwtSecret), providerHandler.Revoke)
		}

		// Dataset routes (payer-signed mutations)
		datasets := api.Group("/datasets")
		{
			datasets.POST("", datasetHandler.Create)
			datasets.GET("/:id", datasetHandler.Get)
			datasets.POST("/:id/pieces", datasetHandler.AddPieces)
			datasets.POST("/:id/removals", datasetHandler.ScheduleRemoval)
			datasets.DELETE("/:id", datasetHandler.Delete)
			datasets.GET("/:id/proven", datasetHandler.Proven)
			datasets.GET("/:id/events", datasetHandler.Events)

			// Proving routes (possession verifier only)
			datasets.POST("/:id/proofs", verifierAuth, provingHandler.RecordProof)
			datasets.POST("/:id/proving/next", verifierAuth, provingHandler.NextPeriod)
		}

		// Settlement callback for the payment ledger
		api.POST("/arbitration", arbitrationHandler.Arbitrate)
	}

	// Start HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("Settlement coordinator starting on %s:%d", cfg.Server.Host, cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}

	log.Println("Server exited")
}
