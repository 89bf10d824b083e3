package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fieldform/dashboard/internal/api"
	"github.com/fieldform/dashboard/internal/config"
	"github.com/fieldform/dashboard/internal/engine"
	"github.com/fieldform/dashboard/internal/orchestrator"
	"github.com/fieldform/dashboard/internal/store"
	"github.com/fieldform/dashboard/internal/ws"
)

func main() {
	configPath := flag.String("config", "dashboard.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.LogLevel)

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		slog.Error("open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	hub := ws.NewHub()
	eng := engine.NewClient(cfg.Engine.BaseURL, cfg.Engine.RequestTimeout)
	orch := orchestrator.New(st, eng, hub, orchestrator.Options{
		PollInterval: cfg.Jobs.PollInterval,
		HistoryLimit: cfg.Jobs.HistoryLimit,
	})

	// Pick up any run that was in flight before the last shutdown.
	rehydrateCtx, cancelRehydrate := context.WithTimeout(context.Background(), cfg.Engine.RequestTimeout)
	orch.Rehydrate(rehydrateCtx)
	cancelRehydrate()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(cfg, orch, hub),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server listening", "addr", cfg.Addr(), "engine", cfg.Engine.BaseURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server shutdown", "error", err)
	}
	orch.Shutdown()

	slog.Info("server stopped")
}

func setupLogger(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
