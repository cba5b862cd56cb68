package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kimtwitch/object-sync-for-salesforce/internal/app"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/config"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/db"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/router"

	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.StandardLogger()
	logger.SetFormatter(&logrus.JSONFormatter{})

	configPath := os.Getenv("CONFIG_PATH")
	if err := config.LoadConfig(configPath); err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	db.InitDB()

	container, err := app.InitializeContainer()
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize services")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	container.Start(ctx)

	r := router.SetupRouter(router.Handlers{
		AdminAuth: container.AdminAuthHandler,
		Mappings:  container.MappingsHandler,
		Sync:      container.SyncHandler,
		Settings:  container.SettingsHandler,
	}, logger)

	addr := fmt.Sprintf("%s:%d", config.AppConfig.Server.Host, config.AppConfig.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		logger.WithField("addr", addr).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Forced shutdown")
	}

	if err := container.Cleanup(); err != nil {
		logger.WithError(err).Error("Cleanup failed")
	}
}
