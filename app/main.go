package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ryanxin/collector/app/api"
	"github.com/ryanxin/collector/app/cfg"
	"github.com/ryanxin/collector/app/collect"
	"github.com/ryanxin/collector/app/database"
	"github.com/ryanxin/collector/app/scheduler"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	appCfg, err := cfg.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting collector", "version", appCfg.Version, "data_dir", appCfg.DataDir)

	db, err := database.Open(appCfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	settings := database.NewSettingRepository(db)

	// A stored data_dir overrides the flag; the database at the stored
	// root is the one the user last pointed the app at.
	if stored, err := settings.GetSetting("data_dir"); err == nil && stored != "" && stored != db.DataDir() {
		slog.Info("Switching to stored data directory", "data_dir", stored)
		if err := db.Reopen(stored); err != nil {
			log.Fatalf("Failed to open stored data directory: %v", err)
		}
		settings = database.NewSettingRepository(db)
	}

	service := collect.NewService(db, appCfg.UserAgent)

	schedule := appCfg.CronSchedule
	if stored, err := settings.GetSetting("cron_schedule"); err == nil && stored != "" {
		schedule = stored
	}

	sched := scheduler.New(time.Local, func(ctx context.Context) {
		result, err := service.CollectAll(ctx)
		if err != nil {
			slog.Error("Scheduled collection failed", "error", err)
			return
		}
		slog.Info("Scheduled collection completed", "found", result.Found, "new", result.New)
	})
	if err := sched.Start(schedule); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	handler := api.NewHandler(db, service, sched, appCfg.Version)
	server := api.NewServer(handler, appCfg.APIAccessKey)

	// WriteTimeout must cover a full synchronous collection run
	// triggered through POST /api/collect.
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
