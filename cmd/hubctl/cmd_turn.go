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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianHub/services/hub"
)

func runTools(cmd *cobra.Command, args []string) {
	query := ""
	if len(args) > 0 {
		query = args[0]
	}

	req := hub.ToolsRequest{
		SessionID: sessionID,
		Query:     query,
	}
	if strategyFlag != "" || len(forceCats) > 0 || len(disableCats) > 0 {
		req.Overrides = &hub.OverridesRequest{
			Force:    forceCats,
			Disable:  disableCats,
			Strategy: strategyFlag,
		}
	}

	resp, err := newClient().Tools(req, explainFlag)
	if err != nil {
		fail("tools", err)
	}

	if !humanOutput() {
		outputJSONData(resp)
		os.Exit(CLIExitSuccess)
	}

	printToolsHuman(resp)
}

func printToolsHuman(resp *hub.ToolsResponse) {
	sessionNote := ""
	if resp.Created {
		sessionNote = " (new)"
	}
	fmt.Printf("Session %s%s\n", resp.SessionID, sessionNote)

	d := resp.Decision
	saved := 0.0
	if d.BaselineTokens > 0 {
		saved = 100 * (1 - float64(d.EstimatedTokens)/float64(d.BaselineTokens))
	}
	fmt.Printf("%d tools, ~%d of %d baseline tokens (%.0f%% lighter)\n",
		len(resp.Tools), d.EstimatedTokens, d.BaselineTokens, saved)

	line := fmt.Sprintf("Strategy %s, mean confidence %.2f", d.Strategy, d.ConfidenceMean)
	if d.FallbackTag != "" && d.FallbackTag != "none" {
		line += fmt.Sprintf(", fallback %s", d.FallbackTag)
	}
	if d.Cached {
		line += " [cached]"
	}
	fmt.Println(line)
	if len(d.OverridesApplied) > 0 {
		fmt.Printf("Overrides: %v\n", d.OverridesApplied)
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

	if resp.Explain != nil {
		fmt.Println("\nCategory confidence:")
		for cat, conf := range resp.Explain.Confidence {
			fmt.Printf("  %-14s %.2f\n", cat, conf)
		}
	}
}

func runCall(cmd *cobra.Command, args []string) {
	toolID := args[0]

	var toolArgs map[string]any
	if callArgsJSON != "" {
		if err := json.Unmarshal([]byte(callArgsJSON), &toolArgs); err != nil {
			fail("call", fmt.Errorf("--args is not a JSON object: %w", err))
		}
	}

	resp, err := newClient().Call(hub.CallRequest{
		SessionID: sessionID,
		Tool:      toolID,
		Args:      toolArgs,
	})
	if err != nil {
		fail("call", err)
	}

	if !humanOutput() {
		outputJSONData(resp)
		os.Exit(CLIExitSuccess)
	}

	if resp.IsError {
		fmt.Println("Tool reported an error:")
	}
	for _, block := range resp.Content {
		if block.Text != "" {
			fmt.Println(block.Text)
		} else {
			fmt.Printf("[%s content, %s]\n", block.Type, block.MimeType)
		}
	}
	fmt.Printf("\n%s via %s in %dms\n", resp.Tool, resp.Server, resp.DurationMs)
}

func runCommand(cmd *cobra.Command, args []string) {
	resp, err := newClient().Command(hub.CommandRequest{
		SessionID: sessionID,
		Command:   args[0],
	})
	if err != nil {
		fail("command", err)
	}

	if !humanOutput() {
		outputJSONData(resp)
		os.Exit(CLIExitSuccess)
	}

	fmt.Printf("Applied %s to session %s\n", resp.Applied, resp.SessionID)
	fmt.Printf("Strategy %s, %d tools now loaded (~%d tokens)\n",
		resp.Strategy, len(resp.Tools), resp.Decision.EstimatedTokens)
	for _, t := range resp.Tools {
		fmt.Printf("  %s  %-44s %s\n", t.Tier, t.ID, t.Category)
	}
}
