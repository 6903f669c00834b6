package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/TheGojiOG/serverhost/internal/api"
	"github.com/TheGojiOG/serverhost/internal/config"
	"github.com/TheGojiOG/serverhost/internal/console"
	"github.com/TheGojiOG/serverhost/internal/database"
	"github.com/TheGojiOG/serverhost/internal/server"
	"github.com/TheGojiOG/serverhost/internal/state"
	"github.com/TheGojiOG/serverhost/internal/websocket"
)

func serve(cfg *config.Config, logger *slog.Logger) error {
	// One supervisor per data directory
	lock, err := state.AcquireLock(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	// Initialize server definitions
	definitions, err := config.NewServerManager(logger, cfg.Storage.ConfigDir)
	if err != nil {
		return fmt.Errorf("failed to load server definitions: %w", err)
	}

	db, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize WebSocket hub
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	if err := definitions.Watch(ctx, func(defs []config.ServerDefinition) {
		logger.Info("server definitions reloaded", "count", len(defs))
	}); err != nil {
		logger.Warn("not watching server definitions", "error", err)
	}

	events := state.NewEventLog(db.DB)
	history := console.NewCommandHistory(db.DB)
	manager := server.NewManager(logger, server.ManagerOptions{
		Definitions: definitions,
		Factory: &server.Factory{
			Logger:       logger,
			HistoryLines: cfg.Process.OutputHistoryLines,
		},
		States:      state.NewSQLiteRepository(db.DB),
		Events:      events,
		History:     history,
		Publisher:   hub,
		StopTimeout: cfg.Process.StopTimeoutDuration(),
		LogDir:      filepath.Join(cfg.Storage.LogDir, "console"),
		ConsoleLog:  cfg.Process.ConsoleLog,
	})

	// Take back the servers that outlived the previous supervisor
	if err := manager.Restore(ctx); err != nil {
		logger.Warn("some servers could not be restored", "error", err)
	}

	router := api.SetupRouter(cfg, logger, definitions, manager, events, history, hub)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", "addr", srv.Addr, "tls", cfg.Server.TLS.Enabled)
		var err error
		if cfg.Server.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-serveErr:
		runErr = fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeoutDuration())
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server forced to shut down", "error", err)
	}

	// Stops every child process before the database goes away
	manager.Close()
	cancel()

	logger.Info("server exited")
	return runErr
}

func openDatabase(cfg *config.Config, logger *slog.Logger) (*database.DB, error) {
	db, err := database.NewDB(logger, cfg.Database.Path, database.Options{MaxOpenConns: cfg.Database.MaxConnections})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Run migrations automatically
	if err := db.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}
