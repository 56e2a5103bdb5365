package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/shoplist/internal/config"
	"github.com/dukerupert/shoplist/internal/database"
	"github.com/dukerupert/shoplist/internal/logging"
	"github.com/dukerupert/shoplist/internal/seed"
	"github.com/dukerupert/shoplist/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = seed.Run(seedCtx, db, seed.Options{
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
		Catalog:       cfg.SeedCatalog,
	}, logger)
	seedCancel()
	if err != nil {
		logger.Error("failed to seed database", "error", err)
		os.Exit(1)
	}

	srv := server.New(db, server.Options{
		SessionTTL:    cfg.SessionTTL,
		RetryAttempts: cfg.RetryAttempts,
		LoginRate:     cfg.LoginRate,
	}, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Background cleanup goroutine
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.SessionStore().DeleteExpired(cleanupCtx); err != nil {
					logger.Error("cleanup expired sessions", "error", err)
				} else if n > 0 {
					logger.Info("cleaned up expired sessions", "count", n)
				}
				srv.RateLimiter().Cleanup(time.Hour)
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("shoplist starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cleanupCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
