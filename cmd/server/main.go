// Command server starts the Lumina Transaction Monitor API.
//
// Usage:
//
//	go run ./cmd/server [flags]
//
// Flags:
//
//	-config  Path to a YAML config file (optional)
//	-env     Path to a .env file loaded before reading the environment (default: .env)
//	-port    HTTP port to listen on; overrides config and PORT
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"lumina/txn-monitor/internal/api"
	"lumina/txn-monitor/internal/config"
	"lumina/txn-monitor/internal/metrics"
	"lumina/txn-monitor/internal/rules"
	"lumina/txn-monitor/internal/webhook"
)

func main() {
	configFile := flag.String("config", "", "path to YAML config file")
	envFile := flag.String("env", ".env", "path to .env file")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	// Level was validated by config.Load.
	level, _ := config.ParseLevel(cfg.LogLevel)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))

	// ── Wire dependencies ─────────────────────────────────────────────────────
	m := metrics.New(prometheus.DefaultRegisterer)
	engine := rules.New(cfg.Rules, rules.WithMetrics(m))
	notifier := webhook.New(cfg.Webhooks)
	handler := api.NewHandler(engine, notifier)
	router := api.NewRouter(handler, prometheus.DefaultGatherer)

	// ── Start HTTP server ─────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server listening",
			"port", cfg.Server.Port,
			"large_amount_threshold", cfg.Rules.LargeAmountThreshold,
			"odd_hour_bound", cfg.Rules.OddHourBound,
			"parallel", cfg.Rules.Parallel,
			"webhooks", len(cfg.Webhooks.URLs),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	slog.Info("server stopped")
}
