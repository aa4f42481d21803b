package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"service-marketplace-server/config"
	"service-marketplace-server/database"
	"service-marketplace-server/jobs"
	"service-marketplace-server/metrics"
	"service-marketplace-server/middleware"
	"service-marketplace-server/routes"
	"service-marketplace-server/services"
	"service-marketplace-server/storage"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	config.Load()
	cfg := config.AppConfig
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	if cfg.Server.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := context.Background()

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	if _, err := database.SeedCategories(ctx, db); err != nil {
		log.Printf("⚠️ Category seeding failed: %v", err)
	}

	denylist, err := services.NewDenylist(ctx, cfg.Redis.URL)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatal("Failed to initialize file storage:", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	jwtService := services.NewJWTService(db, cfg.JWT, denylist, logger)
	svc := &routes.Services{
		JWT:      jwtService,
		Identity: services.NewIdentityService(db, jwtService, services.LogResetNotifier{Logger: logger}, logger, m),
		Verification: services.NewVerificationService(db, store, logger, m, services.VerificationOptions{
			AlwaysMarkProfileComplete: cfg.Features.VerifyAlwaysMarksProfileComplete,
			MaxUploadSize:             cfg.Storage.MaxUploadSize,
		}),
		ProviderRequests: services.NewProviderRequestService(db, logger, m),
		Catalog:          services.NewCatalogService(db, store, logger, m, cfg.Storage.MaxUploadSize),
		Contracts:        services.NewContractService(db, logger, m),
		Dashboard:        services.NewDashboardService(db),
	}

	limiter := middleware.NewRateLimiter()
	router := routes.SetupRouter(svc, routes.Options{
		Metrics:        m,
		Gatherer:       registry,
		RateLimiter:    limiter,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxBodyBytes:   cfg.Storage.MaxUploadSize + 1<<20,
	})

	cleanupJob := jobs.NewCleanupJob(jwtService, limiter, time.Duration(cfg.Jobs.CleanupIntervalMinutes)*time.Minute)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ Server forced to shutdown: %v", err)
	}
}
