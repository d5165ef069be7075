// Package main is the entry point for the radio measurement engine service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/api"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/callback"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/clock"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/config"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/connection"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/neighbor"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/publisher"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/regdomain"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/rrm"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/scanengine"
)

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	if strings.EqualFold(cfg.Format, "console") {
		zcfg.Encoding = "console"
		zcfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	return zcfg.Build()
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	sugar := logger.Sugar()
	sugar.Info("Starting radio measurement engine service")
	sugar.Infow("Configuration loaded",
		"port", cfg.Server.Port,
		"country", cfg.Regulatory.Country,
		"sessions", cfg.Engine.SessionCapacity,
		"fragment_capacity", cfg.Engine.FragmentCapacity,
	)

	reg, err := regdomain.New(cfg.Regulatory.Country)
	if err != nil {
		sugar.Fatalf("Failed to load regulatory domain: %v", err)
	}

	// Initialize RabbitMQ publisher
	pub, err := publisher.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, sugar)
	if err != nil {
		sugar.Fatalf("Failed to initialize publisher: %v", err)
	}
	defer pub.Close()

	var reporter *callback.Reporter
	if cfg.Callback.URL != "" {
		reporter = callback.NewReporter(cfg.Callback.URL, cfg.Callback.APIKey, cfg.Callback.Timeout, sugar)
	}

	clk := clock.Real()
	scans := scanengine.New(cfg.ScanEngine.Engine(), clk, sugar)
	conns := connection.NewRegistry(pub, sugar)

	engine, err := rrm.New(cfg.Engine.RRM(), cfg.Neighbor.Subsystem(), rrm.Deps{
		Scanner:    scans,
		Conns:      conns,
		Sink:       pub,
		Regulatory: reg,
		Clock:      clk,
		Logger:     sugar,
	})
	if err != nil {
		sugar.Fatalf("Failed to initialize engine: %v", err)
	}
	scans.OnComplete(engine.ScanCompleted)

	if err := scans.Start(); err != nil {
		sugar.Fatalf("Failed to start scan engine: %v", err)
	}
	if err := engine.Start(); err != nil {
		sugar.Fatalf("Failed to start measurement engine: %v", err)
	}

	onResult := func(ctx context.Context, res neighbor.Result) {
		if err := pub.PublishNeighborResult(ctx, res); err != nil {
			sugar.Errorw("Failed to publish neighbor result", "error", err)
		}
		if reporter != nil {
			if err := reporter.ReportNeighborResult(ctx, res); err != nil {
				sugar.Warnw("Failed to deliver neighbor result callback", "error", err)
			}
		}
	}

	// Initialize API server
	server := api.New(cfg.Server, api.Deps{
		Engine:      engine,
		Scans:       scans,
		Connections: conns,
		OnResult:    onResult,
	}, sugar)

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		sugar.Infof("HTTP server listening on port %d", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sugar.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server first so no new requests reach the engine
	if err := httpServer.Shutdown(ctx); err != nil {
		sugar.Errorf("Server forced to shutdown: %v", err)
	}

	engine.Stop()
	scans.Stop()
	server.Close()

	sugar.Info("Server stopped")
}
