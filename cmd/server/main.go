package main

import (
	"alcyxob/fitness-share/internal/api" // Import API package
	"alcyxob/fitness-share/internal/bootstrap"
	"alcyxob/fitness-share/internal/config"
	"alcyxob/fitness-share/internal/logging"
	"alcyxob/fitness-share/internal/service"
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// --- Configuration ---
	loader := config.NewLoader(".")
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}

	// --- Logging ---
	logger, level, err := logging.NewLogger(cfg.App.Environment, cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("FATAL: Could not build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting fitness share server",
		zap.String("environment", cfg.App.Environment),
		zap.String("backend", cfg.Store.Backend),
	)
	if cfg.JWT.Secret == "" {
		logger.Fatal("jwt.secret is required (set JWT_SECRET)")
	}

	// Only the log level is applied live; everything else needs a restart.
	if file := loader.ConfigFileUsed(); file != "" {
		loader.Watch(func(next config.Config) {
			if err := logging.SetLevel(level, next.App.LogLevel); err != nil {
				logger.Warn("ignoring invalid log level", zap.String("level", next.App.LogLevel), zap.Error(err))
				return
			}
			logger.Info("config reloaded", zap.String("logLevel", level.String()))
		}, func(err error) {
			logger.Warn("config reload rejected", zap.Error(err))
		})
		logger.Info("watching config file", zap.String("file", file))
	}

	// --- Plan Store ---
	startCtx, cancelStart := context.WithTimeout(context.Background(), 1*time.Minute)
	store, err := bootstrap.OpenStore(startCtx, cfg, logger)
	cancelStart()
	if err != nil {
		logger.Fatal("could not open share store", zap.Error(err))
	}
	defer store.Close()

	// --- Initialize Services ---
	tokenService := service.NewTokenService(cfg.JWT.Secret, cfg.JWT.Expiration)
	shareService := service.NewShareService(store.Repo, logger, service.ShareOptions{
		TTL:             cfg.Share.TTL,
		NeverExpire:     cfg.Share.NeverExpire,
		MaxAttempts:     cfg.Share.MaxAttempts,
		StrictOwnership: cfg.Share.StrictOwnership,
	})

	// --- Initialize Gin Engine ---
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(logger, cfg.Server.RequestTimeout)
	shareHandler := api.NewShareHandler(shareService, cfg.Server.PublicURL, cfg.App.IsProduction(), logger)
	api.SetupRoutes(router, tokenService, shareHandler)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful Shutdown ---
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down server", zap.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("server failed", zap.Error(err))
	}

	// The context is used to inform the server it has 5 seconds to finish
	// the requests it is currently handling
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}
