// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	hubURL       string
	outputJSON   bool
	timeoutSec   int
	sessionID    string
	callArgsJSON string
	strategyFlag string
	forceCats    []string
	disableCats  []string
	explainFlag  bool

	rootCmd = &cobra.Command{
		Use:   "hubctl",
		Short: "A cli to inspect and drive a running Aleutian hub",
		Long: `Hubctl talks to the hub's HTTP API. Point it at a hub with
--hub-url or the HUB_URL environment variable; the default is the
local development address http://localhost:12240.`,
	}

	// --- Ops ---
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show hub health, connected servers, and catalog totals",
		Run:   runStatus, // Defined in cmd_ops.go
	}
	catalogCmd = &cobra.Command{
		Use:   "catalog",
		Short: "Dump the full tool catalog",
		Run:   runCatalog, // Defined in cmd_ops.go
	}
	refreshCmd = &cobra.Command{
		Use:   "refresh [server]",
		Short: "Re-run tool discovery against one back-end server",
		Args:  cobra.ExactArgs(1),
		Run:   runRefresh, // Defined in cmd_ops.go
	}

	// --- Turn ---
	toolsCmd = &cobra.Command{
		Use:   "tools [query]",
		Short: "Ask the hub which tools a query would load",
		Long: `Runs one detect-plan cycle and prints the tool surface the hub
would serve for the query. With no query the hub falls back to the
safe default load.

Examples:
  hubctl tools "help me rebase my feature branch"
  hubctl tools --explain "scan this repo for leaked keys"
  hubctl tools --force security --strategy AGGRESSIVE "audit deps"`,
		Args: cobra.MaximumNArgs(1),
		Run:  runTools, // Defined in cmd_turn.go
	}
	callCmd = &cobra.Command{
		Use:   "call [tool]",
		Short: "Call one tool through the hub",
		Long: `Dispatches a tool call and prints the result content.

Examples:
  hubctl call mcp__git__git_status
  hubctl call mcp__core__read_file --args '{"path": "go.mod"}'`,
		Args: cobra.ExactArgs(1),
		Run:  runCall, // Defined in cmd_turn.go
	}
	commandCmd = &cobra.Command{
		Use:   "command [slash-command]",
		Short: "Apply a session command and show the re-planned tool surface",
		Long: `Applies one of the hub's slash commands to a session.

Examples:
  hubctl command /load-security --session dev
  hubctl command "/strategy AGGRESSIVE" --session dev
  hubctl command /reset --session dev`,
		Args: cobra.ExactArgs(1),
		Run:  runCommand, // Defined in cmd_turn.go
	}

	// --- Sessions ---
	endCmd = &cobra.Command{
		Use:   "end [session]",
		Short: "End a session and print its final summary",
		Args:  cobra.ExactArgs(1),
		Run:   runEnd, // Defined in cmd_ops.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&hubURL, "hub-url", "",
		"Hub base URL (default: $HUB_URL or http://localhost:12240)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false,
		"Output as JSON even on a terminal")
	rootCmd.PersistentFlags().IntVar(&timeoutSec, "timeout", 30,
		"Request timeout in seconds")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(refreshCmd)

	rootCmd.AddCommand(toolsCmd)
	toolsCmd.Flags().StringVar(&sessionID, "session", "", "Session ID (empty creates one)")
	toolsCmd.Flags().StringVar(&strategyFlag, "strategy", "", "Strategy override for this turn")
	toolsCmd.Flags().StringSliceVar(&forceCats, "force", nil, "Categories to force-load")
	toolsCmd.Flags().StringSliceVar(&disableCats, "disable", nil, "Categories to disable")
	toolsCmd.Flags().BoolVar(&explainFlag, "explain", false, "Include the per-category signal breakdown")

	rootCmd.AddCommand(callCmd)
	callCmd.Flags().StringVar(&sessionID, "session", "", "Session ID (empty creates one)")
	callCmd.Flags().StringVar(&callArgsJSON, "args", "", "Tool arguments as a JSON object")

	rootCmd.AddCommand(commandCmd)
	commandCmd.Flags().StringVar(&sessionID, "session", "", "Session ID (empty creates one)")

	rootCmd.AddCommand(endCmd)
}
