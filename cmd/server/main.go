package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"appdepot/internal/server/api"
	"appdepot/internal/server/auth"
	"appdepot/internal/server/config"
	"appdepot/internal/server/database"
	"appdepot/internal/server/service"
	"appdepot/internal/server/storage"
)

func main() {
	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg := config.Load()
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"data_path", cfg.DataPath,
		"upload_path", cfg.UploadPath,
		"session_ttl", cfg.SessionTTL,
	)

	// Record store: a single JSON document, seeded on first run
	db := database.NewStore(cfg.DataPath, database.DefaultSeed)
	if err := db.Init(); err != nil {
		slog.Error("failed to initialize record store", "error", err)
		os.Exit(1)
	}
	slog.Info("record store ready", "path", cfg.DataPath)

	// Session store: in-memory unless Redis is configured
	var sessions auth.SessionStore
	if cfg.RedisAddr != "" {
		redisSessions := auth.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, cfg.SessionTTL)
		if err := redisSessions.Ping(context.Background()); err != nil {
			slog.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		sessions = redisSessions
		slog.Info("using redis session store", "addr", cfg.RedisAddr)
	} else {
		sessions = auth.NewMemorySessionStore(cfg.SessionTTL)
		slog.Info("using in-memory session store")
	}

	// Upload storage
	files := storage.NewFileSystemStore(cfg.UploadPath)
	if err := files.EnsureDir(); err != nil {
		slog.Error("failed to initialize upload storage", "error", err)
		os.Exit(1)
	}
	slog.Info("upload storage initialized", "path", cfg.UploadPath)

	// Catalog service
	catalog := service.NewCatalog(db, files)

	// Start orphan file sweeper
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	sweeper := storage.NewOrphanSweeper(db, files, cfg.SweepInterval)
	sweeper.Start(sweepCtx)

	// Setup HTTP router
	handler := api.NewHandler(catalog, sessions, db)
	e := api.SetupRouter(handler, sessions, cfg)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop the sweeper
	sweepCancel()
	sweeper.Wait()

	slog.Info("server exited cleanly")
}
