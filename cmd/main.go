package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kkkkikiki/coupon-verify/internal/auth"
	"github.com/kkkkikiki/coupon-verify/internal/config"
	"github.com/kkkkikiki/coupon-verify/internal/database"
	"github.com/kkkkikiki/coupon-verify/internal/handler"
	"github.com/kkkkikiki/coupon-verify/internal/logging"
	"github.com/kkkkikiki/coupon-verify/internal/service"
	"github.com/kkkkikiki/coupon-verify/internal/tracing"
)

func main() {
	ctx := context.Background()

	// Load configuration from environment variables
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logLevel := cfg.App.LogLevel
	if cfg.App.Debug {
		logLevel = "debug"
	}
	logger, err := logging.New(logLevel, cfg.App.Environment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting coupon-verify", zap.String("environment", cfg.App.Environment))

	shutdownTracing, err := tracing.Init(ctx, logger, cfg.Tracing.OTLPEndpoint, cfg.Tracing.ServiceName, cfg.App.Environment)
	if err != nil {
		logger.Fatal("failed to initialise tracing", zap.Error(err))
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	// Initialize database connections
	db, err := database.NewDB(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("error closing database connections", zap.Error(err))
		}
	}()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db.Postgres); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}
	}
	if cfg.Database.Seed {
		if err := database.Seed(ctx, db.Postgres, cfg.Seed, cfg.Auth.BcryptCost, logger); err != nil {
			logger.Fatal("failed to seed database", zap.Error(err))
		}
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if cfg.Auth.JWTSecret == "change-me-in-production" && cfg.App.IsProduction() {
		logger.Warn("AUTH_JWT_SECRET is still the default value")
	}

	h := handler.NewHandler(
		service.NewAuthService(db.Postgres, tokens, logger),
		service.NewCouponService(db.Postgres, nil, cfg.Coupon.GenerateMaxAttempts, logger),
		service.NewCompanyService(db.Postgres),
		service.NewRecordService(db.Postgres, cfg.App.Location()),
		db.Postgres,
		logger,
	)
	router := handler.NewRouter(h, cfg.Server.CORSAllowedOrigins)

	// Create server with configuration optimized for high concurrency
	server := &http.Server{
		Addr:           cfg.Server.GetServerAddr(),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
		// Use h2c so we can serve HTTP/2 without TLS
		Handler: h2c.NewHandler(otelhttp.NewHandler(router, "coupon-verify"), &http2.Server{
			MaxConcurrentStreams: 1000,
		}),
	}

	// Start server in goroutine
	go func() {
		logger.Info("listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return
	}

	logger.Info("server exited gracefully")
}
