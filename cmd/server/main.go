// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/creatorshield-backend/internal/cache"
	"github.com/javajoker/creatorshield-backend/internal/config"
	"github.com/javajoker/creatorshield-backend/internal/database"
	"github.com/javajoker/creatorshield-backend/internal/oracle"
	"github.com/javajoker/creatorshield-backend/internal/router"
	"github.com/javajoker/creatorshield-backend/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize database")
	}
	defer database.Close(db)

	// Run database migrations
	if err := database.RunMigrations(db); err != nil {
		logrus.WithError(err).Fatal("Failed to run migrations")
	}

	analyticsCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		// Analytics fall back to direct queries.
		logrus.WithError(err).Warn("Redis unavailable, analytics caching disabled")
		analyticsCache = nil
	}
	defer analyticsCache.Close()

	storage, err := services.NewS3Storage(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize evidence storage")
	}

	riskOracle := oracle.New(cfg.Oracle, cfg.Billing.FallbackPremium)
	notifications := services.NewNotificationService(services.NewSMTPNotifier(cfg.Email), cfg)
	defer notifications.Wait()

	premiums := services.NewPremiumService(db, cfg, riskOracle, services.NewPaymentGateway(cfg), notifications)
	analytics := services.NewAnalyticsService(db, analyticsCache)
	engine := router.Services{
		Policies:  services.NewPolicyService(db, premiums, notifications, cfg.Billing.DefaultCurrency),
		Premiums:  premiums,
		Claims:    services.NewClaimService(db, riskOracle, storage, notifications, analytics),
		Deadlines: services.NewDeadlineService(db, cfg.Claims.AtRiskLookahead),
		Analytics: analytics,
	}

	r := router.Initialize(cfg, engine)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logrus.WithFields(logrus.Fields{
			"port":   cfg.Server.Port,
			"oracle": cfg.Oracle.Provider,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	}

	logrus.Info("Server exited")
}
