// Command antigravity-proxy wires the Core components together behind an
// HTTP server: the account pool, traffic shaper, throttled fetch client,
// telemetry heartbeat loop, and the gateway's passthrough endpoints.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/antigravity-proxy/antigravity-proxy/internal/config"
	"github.com/antigravity-proxy/antigravity-proxy/internal/db"
	"github.com/antigravity-proxy/antigravity-proxy/internal/fetch"
	"github.com/antigravity-proxy/antigravity-proxy/internal/gateway"
	"github.com/antigravity-proxy/antigravity-proxy/internal/logger"
	"github.com/antigravity-proxy/antigravity-proxy/internal/models"
	"github.com/antigravity-proxy/antigravity-proxy/internal/pool"
	"github.com/antigravity-proxy/antigravity-proxy/internal/shaper"
	"github.com/antigravity-proxy/antigravity-proxy/internal/telemetry"
	"github.com/antigravity-proxy/antigravity-proxy/internal/usage"
	"github.com/antigravity-proxy/antigravity-proxy/internal/version"
)

func main() {
	if err := run(); err != nil {
		logger.Error("fatal startup error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	logger.Info(version.Info())

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = database.Close() }()

	accountPool, err := pool.New(cfg.AccountsPath,
		pool.WithTokenRefresher(pool.NewOAuthRefresher(cfg.GoogleClientID, cfg.GoogleClientSecret)))
	if err != nil {
		return fmt.Errorf("init account pool: %w", err)
	}
	defer func() { _ = accountPool.Close() }()

	fetcher := fetch.New(fetch.WithThrottle(cfg.RequestThrottlingEnabled, cfg.RequestDelayMs))
	trafficShaper := shaper.New(cfg.ShaperMinDelayMs, cfg.ShaperJitterMs)
	tracker, err := usage.New(cfg.UsageHistoryPath)
	if err != nil {
		return fmt.Errorf("init usage tracker: %w", err)
	}

	heartbeat := telemetry.New(accountPool, fetcher, sessionEventRecorder{database},
		telemetry.WithInterval(cfg.TelemetryIntervalMs, cfg.TelemetryJitterMs),
		telemetry.WithActiveWindow(cfg.ActiveSessionWindow))
	// The loop needs the pool to read accounts from, and the pool needs the
	// loop to notify on selection (spec §4.4 step 5) — wire the back edge
	// now that both exist.
	accountPool.SetActivityNotifier(heartbeat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	heartbeat.Initialize(ctx)

	gw := gateway.New(accountPool, trafficShaper, fetcher, tracker, gateway.WithCallRecorder(apiCallRecorder{database}))

	server := &http.Server{
		Addr:         ":8787",
		Handler:      gw.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("antigravity-proxy listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// apiCallRecorder adapts db.DB to gateway.CallRecorder.
type apiCallRecorder struct {
	db *db.DB
}

func (r apiCallRecorder) RecordAPICall(call *models.APICall) {
	if err := r.db.InsertAPICall(call); err != nil {
		logger.Warn("failed to persist api call", "error", err)
	}
}

// sessionEventRecorder adapts db.DB to telemetry.EventRecorder.
type sessionEventRecorder struct {
	db *db.DB
}

func (r sessionEventRecorder) RecordSessionEvent(event *models.SessionEvent) {
	if err := r.db.InsertSessionEvent(event); err != nil {
		logger.Warn("failed to persist session event", "error", err)
	}
}
