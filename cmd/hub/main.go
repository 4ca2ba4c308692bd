// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command hub starts the Aleutian tool-routing hub.
//
// The hub sits between an LLM agent and its back-end tool servers. It
// connects to every configured server over stdio or SSE, folds their
// tools into one classified catalog, and serves each conversation turn
// a filtered tool surface instead of the full union.
//
// Usage:
//
//	go run ./cmd/hub
//	go run ./cmd/hub -port 12240 -config hub.yaml
//	HUB_LOG_LEVEL=DEBUG go run ./cmd/hub -debug
//
// Example requests:
//
//	# Health check
//	curl http://localhost:12240/health
//
//	# Tools for a turn
//	curl -X POST http://localhost:12240/v1/hub/tools \
//	  -H "Content-Type: application/json" \
//	  -d '{"session_id": "dev", "query": "help me rebase my feature branch"}'
//
//	# Call a tool through the hub
//	curl -X POST http://localhost:12240/v1/hub/call \
//	  -H "Content-Type: application/json" \
//	  -d '{"session_id": "dev", "tool": "mcp__git__git_status", "args": {}}'
//
//	# Pin the security category for this session
//	curl -X POST http://localhost:12240/v1/hub/command \
//	  -H "Content-Type: application/json" \
//	  -d '{"session_id": "dev", "command": "/load-security"}'
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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianHub/pkg/logging"
	"github.com/AleutianAI/AleutianHub/services/hub"
	"github.com/AleutianAI/AleutianHub/services/hub/catalog"
	"github.com/AleutianAI/AleutianHub/services/hub/config"
	"github.com/AleutianAI/AleutianHub/services/hub/hubcache"
	"github.com/AleutianAI/AleutianHub/services/hub/router"
	"github.com/AleutianAI/AleutianHub/services/hub/telemetry"
)

// shutdownTimeout bounds draining of in-flight requests and exporters.
const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (optional)")
	port := flag.Int("port", 0, "Listen port (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	// A local .env is a developer convenience; containers set real env.
	_ = godotenv.Load()

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("HUB_LOG_LEVEL")),
		LogDir:  os.Getenv("HUB_LOG_DIR"),
		Service: "hub",
		JSON:    !*debug,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Configuration rejected", "error", err)
		if errors.Is(err, config.ErrInvalid) {
			os.Exit(2)
		}
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}

	if err := run(cfg, *debug); err != nil {
		slog.Error("Hub exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, debug bool) error {
	ctx := context.Background()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		return fmt.Errorf("telemetry init: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("Telemetry shutdown failed", "error", err)
		}
	}()

	// LoadCategoryMap reads the path from the environment so the file
	// key has to be exported before the load.
	if cfg.CategoryMapPath != "" {
		os.Setenv("HUB_CATEGORY_MAP_PATH", cfg.CategoryMapPath)
	}
	cmap, err := catalog.LoadCategoryMap()
	if err != nil {
		return fmt.Errorf("category map: %w", err)
	}

	registry := catalog.NewRegistry()
	sup, err := router.NewSupervisor(cfg.EnabledServers(), registry, cmap)
	if err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	connected := sup.ConnectAll(ctx)
	slog.Info("Server connections settled",
		"connected", connected,
		"configured", len(cfg.EnabledServers()),
		"tools", registry.Count(),
	)
	if connected == 0 && !cfg.Fallback {
		sup.Shutdown(ctx)
		return errors.New("no tool servers reachable and fallback is disabled")
	}

	var store hubcache.DecisionStore = hubcache.NopStore{}
	if cfg.StorePath != "" {
		bs, err := hubcache.OpenBadgerStore(hubcache.BadgerConfig{
			Path: cfg.StorePath,
			TTL:  cfg.DecisionTTL(),
		})
		if err != nil {
			slog.Warn("Decision store unavailable, running without persistence",
				"path", cfg.StorePath, "error", err)
		} else {
			store = bs
		}
	}

	h, err := hub.New(cfg, hub.Deps{
		Registry:   registry,
		Supervisor: sup,
		Store:      store,
		Logger:     slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("hub: %w", err)
	}

	// Set Gin mode
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	handlers := hub.NewHandlers(h)

	engine := gin.New()
	engine.Use(gin.Recovery())
	if debug {
		engine.Use(gin.Logger())
	}
	engine.Use(otelgin.Middleware("aleutian-hub"))

	v1 := engine.Group("/v1")
	hub.RegisterRoutes(v1, handlers)

	// Probes and metrics live at the root for ops tooling.
	engine.GET("/health", handlers.HandleHealth)
	engine.GET("/ready", handlers.HandleReady)
	if mh := telemetry.MetricsHandler(); mh != nil {
		engine.GET("/metrics", gin.WrapH(mh))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: engine,
	}

	// Handle graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		sig := <-quit
		slog.Info("Shutting down hub", "signal", sig.String())

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			slog.Warn("Graceful shutdown failed", "error", err)
		}
	}()

	printBanner(cfg.Port, connected, registry.Count())
	slog.Info("Starting hub server", "address", srv.Addr)

	serveErr := srv.ListenAndServe()
	if errors.Is(serveErr, http.ErrServerClosed) {
		serveErr = nil
	}

	cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := h.Close(cctx); err != nil {
		slog.Warn("Hub close failed", "error", err)
	}

	return serveErr
}

func printBanner(port, connected, tools int) {
	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                        ALEUTIAN HUB SERVER                        ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Tool routing between your agent and its tool servers.            ║
║  Connected servers: %-4d  Catalog tools: %-4d                     ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%d/health                          │  ║
║  │                                                             │  ║
║  │ # Tools for a turn                                          │  ║
║  │ curl -X POST http://localhost:%d/v1/hub/tools \          │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"session_id": "dev", "query": "commit my work"}'     │  ║
║  │                                                             │  ║
║  │ # Full catalog                                              │  ║
║  │ curl http://localhost:%d/v1/hub/catalog | jq             │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── Turn: /v1/hub/tools, /v1/hub/call, /v1/hub/command          ║
║  ├── Sessions: /v1/hub/sessions/:id (GET, DELETE)                ║
║  ├── Ops: /v1/hub/status, /v1/hub/catalog, /health, /ready       ║
║  └── Admin: /v1/hub/servers/:name/refresh, /metrics              ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, connected, tools, port, port, port)
}
