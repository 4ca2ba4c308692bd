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
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianHub/services/hub"
)

func runStatus(cmd *cobra.Command, args []string) {
	resp, err := newClient().Status()
	if err != nil {
		fail("status", err)
	}

	if !humanOutput() {
		outputJSONData(resp)
		os.Exit(CLIExitSuccess)
	}

	printStatusHuman(resp)
}

func printStatusHuman(resp *hub.StatusResponse) {
	filtering := "off"
	if resp.Filtering {
		filtering = "on"
	}
	fmt.Printf("Hub %s: %s, up %ds, filtering %s, strategy %s, %d sessions\n",
		resp.Version, resp.Status, resp.UptimeSec, filtering, resp.Strategy, resp.Sessions)
	fmt.Printf("Catalog: %d tools across %d servers, %d tokens if fully loaded\n",
		resp.Catalog.Tools, len(resp.Catalog.Servers), resp.Catalog.TokenCost)

	if len(resp.Servers) == 0 {
		fmt.Println("\nNo servers connected")
		return
	}

	fmt.Println()
	for _, s := range resp.Servers {
		line := fmt.Sprintf("  %-24s %-6s %-14s %3d tools", s.Name, s.Transport, s.State, s.Tools)
		if s.InFlight > 0 {
			line += fmt.Sprintf("  %d in flight", s.InFlight)
		}
		if s.LastError != "" {
			line += fmt.Sprintf("  last error: %s", s.LastError)
		}
		fmt.Println(line)
	}
}

func runCatalog(cmd *cobra.Command, args []string) {
	resp, err := newClient().Catalog()
	if err != nil {
		fail("catalog", err)
	}

	if !humanOutput() {
		outputJSONData(resp)
		os.Exit(CLIExitSuccess)
	}

	fmt.Printf("%d tools, %d tokens if fully loaded\n", resp.Info.Tools, resp.Info.TokenCost)

	servers := make([]string, 0, len(resp.Info.Servers))
	for name := range resp.Info.Servers {
		servers = append(servers, name)
	}
	sort.Strings(servers)
	for _, name := range servers {
		fmt.Printf("  %-24s %d tools\n", name, resp.Info.Servers[name])
	}

	fmt.Println()
	for _, t := range resp.Tools {
		essential := "  "
		if t.Essential {
			essential = " *"
		}
		fmt.Printf("  %s%s  %-44s %-14s %4d tokens\n",
			t.Tier, essential, t.ID, t.Category, t.TokenCost)
	}
}

func runEnd(cmd *cobra.Command, args []string) {
	sum, err := newClient().End(args[0])
	if err != nil {
		fail("end", err)
	}

	if !humanOutput() {
		outputJSONData(sum)
		os.Exit(CLIExitSuccess)
	}

	fmt.Printf("Session %s ended after %d turns\n", sum.ID, sum.Turns)
	fmt.Printf("Strategy %s, %d detections, %d fallbacks, %d errors\n",
		sum.Strategy, sum.Metrics.Detections, sum.Metrics.Fallbacks, sum.Metrics.Errors)
	if sum.Metrics.TokensBaseline > 0 {
		fmt.Printf("Loaded %d of %d baseline tokens (%.0f%% reduction)\n",
			sum.Metrics.TokensLoaded, sum.Metrics.TokensBaseline, 100*sum.TokenReduction)
	}
	if len(sum.Metrics.FunctionsUsed) > 0 {
		fmt.Println("Functions used:")
		names := make([]string, 0, len(sum.Metrics.FunctionsUsed))
		for name := range sum.Metrics.FunctionsUsed {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-44s %d\n", name, sum.Metrics.FunctionsUsed[name])
		}
	}
}

func runRefresh(cmd *cobra.Command, args []string) {
	resp, err := newClient().Refresh(args[0])
	if err != nil {
		fail("refresh", err)
	}

	if !humanOutput() {
		outputJSONData(resp)
		os.Exit(CLIExitSuccess)
	}

	fmt.Printf("Refreshed %s\n", args[0])
	printStatusHuman(resp)
}
