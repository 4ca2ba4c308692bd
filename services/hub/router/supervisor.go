// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package router owns the hub's connections to back-end tool servers and
// routes tool calls to whichever server owns the tool.
//
// # Description
//
// The Supervisor connects every enabled server at startup, discovers each
// server's tools into the shared catalog, and keeps serving with whatever
// subset came up; a dead back-end degrades the catalog instead of failing
// the hub. Dispatch resolves the hub-wide tool ID through the catalog and
// forwards the call using the descriptor's local name, so the ID convention
// never needs parsing.
//
// # Thread Safety
//
// Supervisor is safe for concurrent use after NewSupervisor returns.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianHub/services/hub/catalog"
	"github.com/AleutianAI/AleutianHub/services/hub/tsp"
)

// discoveryTimeout bounds one server's connect-plus-list at startup.
const discoveryTimeout = 30 * time.Second

// toolClient is what the supervisor needs from a TSP client. *tsp.Client
// satisfies it; tests substitute fakes.
type toolClient interface {
	Connect(ctx context.Context) error
	ListTools(ctx context.Context) ([]tsp.ToolInfo, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*tsp.CallToolResult, error)
	Shutdown(ctx context.Context) error
	State() tsp.ClientState
	Name() string
	FailReason() error
	InFlight() int
}

// clientFactory builds a client for one server config.
type clientFactory func(cfg tsp.ClientConfig) toolClient

// ServerStatus is one server's health snapshot for the status surface.
type ServerStatus struct {
	Name      string `json:"name"`
	Transport string `json:"transport"`
	State     string `json:"state"`
	Tools     int    `json:"tools"`
	InFlight  int    `json:"in_flight"`
	LastError string `json:"last_error,omitempty"`
}

// Supervisor owns the TSP clients and the discovery pipeline into the
// catalog.
type Supervisor struct {
	configs  map[string]tsp.ClientConfig
	registry *catalog.Registry
	cmap     *catalog.CategoryMap
	factory  clientFactory

	mu      sync.RWMutex
	clients map[string]toolClient

	shuttingDown bool
}

// NewSupervisor creates a supervisor over the given server configs.
//
// Inputs:
//
//	configs - All configured servers, enabled or not.
//	registry - Shared catalog registry discovery feeds into.
//	cmap - Category map used to classify discovered tools.
//
// Outputs:
//
//	*Supervisor - Ready for ConnectAll. Never nil.
//	error - Non-nil if configs are invalid or share a name.
func NewSupervisor(configs []tsp.ClientConfig, registry *catalog.Registry, cmap *catalog.CategoryMap) (*Supervisor, error) {
	byName := make(map[string]tsp.ClientConfig, len(configs))
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byName[cfg.Name]; dup {
			return nil, fmt.Errorf("duplicate server name %q", cfg.Name)
		}
		byName[cfg.Name] = cfg
	}
	return &Supervisor{
		configs:  byName,
		registry: registry,
		cmap:     cmap,
		clients:  make(map[string]toolClient),
		factory: func(cfg tsp.ClientConfig) toolClient {
			return tsp.NewClient(cfg)
		},
	}, nil
}

// ConnectAll connects every enabled server in parallel and discovers their
// tools.
//
// Description:
//
//	Connection failures are logged and skipped; the hub serves whatever
//	catalog the surviving servers produce. Returns the number of servers
//	that reached ready.
//
// Thread Safety: Call once at startup.
func (s *Supervisor) ConnectAll(ctx context.Context) int {
	var enabled []tsp.ClientConfig
	for _, cfg := range s.configs {
		if cfg.Enabled {
			enabled = append(enabled, cfg)
		}
	}

	results := make([]bool, len(enabled))
	g, gCtx := errgroup.WithContext(ctx)
	for i, cfg := range enabled {
		i, cfg := i, cfg // Capture loop variables

		g.Go(func() error {
			if err := s.connectOne(gCtx, cfg); err != nil {
				slog.Warn("Tool server unavailable at startup",
					slog.String("server", cfg.Name),
					slog.String("error", err.Error()))
				return nil // Degrade, never abort the group.
			}
			results[i] = true
			return nil
		})
	}
	_ = g.Wait()

	connected := 0
	for _, ok := range results {
		if ok {
			connected++
		}
	}
	RecordConnectedServers(connected)

	slog.Info("Tool server fleet connected",
		slog.Int("connected", connected),
		slog.Int("enabled", len(enabled)),
		slog.Int("tools", s.registry.Count()))
	return connected
}

// connectOne builds, connects, and discovers a single server.
func (s *Supervisor) connectOne(ctx context.Context, cfg tsp.ClientConfig) error {
	ctx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	client := s.factory(cfg)
	if err := client.Connect(ctx); err != nil {
		return err
	}

	if err := s.discover(ctx, client); err != nil {
		_ = client.Shutdown(ctx)
		return err
	}

	s.mu.Lock()
	s.clients[cfg.Name] = client
	s.mu.Unlock()
	return nil
}

// discover lists a server's tools and installs them in the catalog.
func (s *Supervisor) discover(ctx context.Context, client toolClient) error {
	tools, err := client.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("discover %s: %w", client.Name(), err)
	}

	descs := make([]*catalog.ToolDescriptor, 0, len(tools))
	for _, tool := range tools {
		d := s.cmap.Describe(client.Name(), tool.Name, tool.Description, tool.InputSchema)
		descs = append(descs, d)
		catalog.RecordClassification(d.Category)
	}

	installed := s.registry.ReplaceServer(client.Name(), descs)
	catalog.RecordServerTools(client.Name(), installed)
	catalog.RecordTokenTotal(s.registry.TotalTokenCost())

	slog.Info("Discovered tools",
		slog.String("server", client.Name()),
		slog.Int("advertised", len(tools)),
		slog.Int("installed", installed))
	return nil
}

// Refresh tears down one server's client and rebuilds it, rediscovering
// its tools.
//
// Description:
//
//	Used when a back-end was restarted or entered FAILED. On failure the
//	server's tools are removed from the catalog and the error returned;
//	the rest of the fleet is untouched.
//
// Thread Safety: Safe for concurrent use; concurrent refreshes of the same
// server serialize on the client map.
func (s *Supervisor) Refresh(ctx context.Context, serverID string) error {
	cfg, ok := s.configs[serverID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownServer, serverID)
	}
	if !cfg.Enabled {
		return fmt.Errorf("%w: %q", ErrServerDisabled, serverID)
	}

	s.mu.Lock()
	old := s.clients[serverID]
	delete(s.clients, serverID)
	s.mu.Unlock()

	if old != nil {
		_ = old.Shutdown(ctx)
	}
	s.registry.RemoveServer(serverID)
	catalog.RecordServerRemoved(serverID)

	if err := s.connectOne(ctx, cfg); err != nil {
		catalog.RecordTokenTotal(s.registry.TotalTokenCost())
		return fmt.Errorf("refresh %s: %w", serverID, err)
	}

	slog.Info("Refreshed tool server",
		slog.String("server", serverID))
	return nil
}

// Shutdown closes every client in parallel.
//
// Thread Safety: Safe to call once during hub shutdown.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	s.shuttingDown = true
	clients := make([]toolClient, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[string]toolClient)
	s.mu.Unlock()

	g := new(errgroup.Group)
	for _, c := range clients {
		c := c
		g.Go(func() error {
			_ = c.Shutdown(ctx)
			return nil
		})
	}
	_ = g.Wait()
	RecordConnectedServers(0)

	slog.Info("Tool server fleet shut down",
		slog.Int("servers", len(clients)))
}

// client returns the live client for a server, if any.
func (s *Supervisor) client(serverID string) (toolClient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[serverID]
	return c, ok
}

// isShuttingDown reports whether Shutdown has begun.
func (s *Supervisor) isShuttingDown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shuttingDown
}

// Statuses returns a health snapshot of every configured server, connected
// or not, sorted by name on the caller's side.
func (s *Supervisor) Statuses() []ServerStatus {
	counts := s.registry.ServerCount()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ServerStatus, 0, len(s.configs))
	for name, cfg := range s.configs {
		status := ServerStatus{
			Name:      name,
			Transport: string(cfg.Transport),
			State:     "disabled",
			Tools:     counts[name],
		}
		if cfg.Enabled {
			status.State = "disconnected"
		}
		if c, ok := s.clients[name]; ok {
			status.State = c.State().String()
			status.InFlight = c.InFlight()
			if reason := c.FailReason(); reason != nil {
				status.LastError = reason.Error()
			}
		}
		out = append(out, status)
	}
	return out
}

// ConnectedCount returns how many clients are currently ready.
func (s *Supervisor) ConnectedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.clients {
		if c.State() == tsp.StateReady {
			n++
		}
	}
	return n
}
