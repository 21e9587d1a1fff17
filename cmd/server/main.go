// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/classroom-app/classroom-backend/internal/config"
	"github.com/classroom-app/classroom-backend/internal/database"
	"github.com/classroom-app/classroom-backend/internal/i18n"
	"github.com/classroom-app/classroom-backend/internal/middleware"
	"github.com/classroom-app/classroom-backend/internal/router"
	"github.com/classroom-app/classroom-backend/internal/scheduler"
	"github.com/classroom-app/classroom-backend/internal/services"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	configureLogging(cfg)
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize i18n
	if err := i18n.Initialize(cfg.I18n.DefaultLocale); err != nil {
		logrus.WithError(err).Fatal("Failed to initialize i18n")
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
	if err := database.SeedInitialData(db, cfg.Seed.AdminEmail, cfg.Seed.AdminPassword); err != nil {
		logrus.WithError(err).Fatal("Failed to seed initial data")
	}

	svc, err := services.NewContainer(db, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize services")
	}

	// Background jobs
	var jobs *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		jobs = scheduler.New(cfg.Scheduler, svc.Fulfillment, svc.Vimeo, svc.Imweb)
		if err := jobs.Start(); err != nil {
			logrus.WithError(err).Fatal("Failed to start scheduler")
		}
	}

	stop := make(chan struct{})
	limiters := middleware.DefaultRateLimiters()
	limiters.Start(stop)

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := router.Initialize(db, cfg, svc, limiters)

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
		logrus.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
	if jobs != nil {
		jobs.Stop()
	}
	close(stop)

	logrus.Info("Server exited")
}

func configureLogging(cfg *config.Config) {
	if cfg.IsProduction() {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		logrus.SetLevel(logrus.InfoLevel)
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetLevel(logrus.DebugLevel)
}
