package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/temani/adapters/mongo"
	"github.com/satriahrh/temani/internal/api"
	"github.com/satriahrh/temani/internal/config"
	"github.com/satriahrh/temani/internal/relay"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize persistence
	mongoClient, err := mongo.NewClient(cfg.MongoURI, cfg.MongoDatabase, logger)
	if err != nil {
		logger.Fatal("mongodb connection failed", zap.Error(err))
	}
	store := mongo.NewStore(mongoClient.Database, cfg.EncryptionKey)

	// Initialize the relay hub
	hub := relay.NewHub(logger)
	go hub.Run()

	// Initialize API routes
	gateway := api.NewGateway(hub, store, cfg, api.DefaultProviderFactory, logger)
	api.InitRoutes(e, gateway)

	// Graceful shutdown
	go func() {
		if err := e.Start(cfg.Host + ":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("provider", string(cfg.Provider)))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.Shutdown()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	if err := mongoClient.Close(ctx); err != nil {
		logger.Error("mongodb disconnect failed", zap.Error(err))
	}

	logger.Info("Server exited")
}
