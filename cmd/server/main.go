package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/icxcommander/icxcommander/internal/api"
	"github.com/icxcommander/icxcommander/internal/config"
	"github.com/icxcommander/icxcommander/internal/database"
	"github.com/icxcommander/icxcommander/internal/health"
	"github.com/icxcommander/icxcommander/internal/identity"
	"github.com/icxcommander/icxcommander/internal/inventory"
	"github.com/icxcommander/icxcommander/internal/ippool"
	"github.com/icxcommander/icxcommander/internal/logger"
	"github.com/icxcommander/icxcommander/internal/metrics"
	"github.com/icxcommander/icxcommander/internal/ops"
	"github.com/icxcommander/icxcommander/internal/provisioner"
	"github.com/icxcommander/icxcommander/internal/shutdown"
	"github.com/icxcommander/icxcommander/internal/terminal"
	"github.com/icxcommander/icxcommander/internal/topology"
)

const version = "1.0.0"

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logger
	var baseLogger *zap.Logger
	if cfg.Server.Mode == "production" {
		baseLogger, err = logger.NewProductionLogger(cfg.Logging.Output)
	} else {
		baseLogger, err = logger.NewDevelopmentLogger()
	}
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer baseLogger.Sync()

	baseLogger.Info("Starting ICXCommander",
		zap.String("version", version),
		zap.String("mode", cfg.Server.Mode),
		zap.Strings("seed_switches", cfg.Seed.Switches))

	// Initialize shutdown manager
	shutdownManager := shutdown.NewManager(30*time.Second, baseLogger)
	shutdownManager.Listen()

	// Initialize database
	db, err := database.Initialize(cfg.Database.Path, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		baseLogger.Fatal("Failed to initialize database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		baseLogger.Fatal("Failed to run migrations", zap.Error(err))
	}
	shutdownManager.Register("database", func(ctx context.Context) error {
		return db.Close()
	})

	store := database.NewStore(db, baseLogger)

	// Initialize metrics
	metricsInstance := metrics.NewMetrics(baseLogger)

	ctx, cancel := context.WithCancel(context.Background())
	go metricsInstance.StartMetricsCollection(ctx, db)
	shutdownManager.Register("metrics", func(shutdownCtx context.Context) error {
		cancel()
		return nil
	})

	// Initialize fleet state
	inv := inventory.New(baseLogger)

	pool, err := ippool.New(cfg.Pool.CIDR, cfg.Pool.Gateway)
	if err != nil {
		baseLogger.Fatal("Failed to initialize management IP pool", zap.Error(err))
	}

	// Base configuration is optional; provisioning works without it
	var baseConfig string
	if cfg.Seed.BaseConfigFile != "" {
		raw, err := os.ReadFile(cfg.Seed.BaseConfigFile)
		if err != nil {
			baseLogger.Fatal("Failed to read base config file",
				zap.String("path", cfg.Seed.BaseConfigFile),
				zap.Error(err))
		}
		baseConfig = string(raw)
	}

	// Initialize the provisioning engine
	transport := terminal.NewSSHTransport()
	operations := ops.New(cfg.SSH.CommandTimeout, baseLogger)
	discoverer := topology.NewDiscoverer(topology.Options{
		TraceAttempts:  cfg.Provisioner.TraceAttempts,
		TraceDelay:     cfg.Provisioner.TraceDelay,
		CommandTimeout: cfg.SSH.CommandTimeout,
	}, baseLogger)
	extractor := identity.New()

	prov := provisioner.New(cfg, transport, inv, pool, operations, discoverer, extractor,
		store, metricsInstance, baseConfig, baseLogger)

	prov.Start()
	shutdownManager.Register("provisioner", func(ctx context.Context) error {
		prov.Stop()
		return nil
	})

	// Initialize health service
	healthService := health.NewHealthService(version, baseLogger)
	healthService.RegisterChecker(health.NewDatabaseChecker("database", db))
	healthService.RegisterChecker(health.NewProvisionerChecker("provisioner",
		cfg.Provisioner.PollInterval, prov.Running, prov.LastCycle))

	// Setup Gin router
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metricsInstance.HTTPMiddleware())

	// Health check endpoints
	router.GET("/health", healthService.HealthHandler())
	router.GET("/ready", healthService.ReadinessHandler())
	router.GET("/live", healthService.LivenessHandler())

	// Metrics endpoint
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(metricsInstance.Handler()))
	}

	// API routes
	apiHandler := api.NewHandler(cfg, inv, prov, store, baseLogger)
	apiHandler.RegisterRoutes(router.Group("/api/v1"))

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdownManager.Register("http-server", func(shutdownCtx context.Context) error {
		baseLogger.Info("Stopping HTTP server...")
		return srv.Shutdown(shutdownCtx)
	})

	go func() {
		baseLogger.Info("Starting HTTP server",
			zap.String("host", cfg.Server.Host),
			zap.String("port", cfg.Server.Port))

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			baseLogger.Error("HTTP server error", zap.Error(err))
			shutdownManager.Shutdown()
		}
	}()

	baseLogger.Info("Server started successfully. Waiting for shutdown signal...")
	shutdownManager.Wait()
	baseLogger.Info("Server shutdown complete")
}
