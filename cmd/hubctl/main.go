// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command hubctl is the operator CLI for a running hub.
//
// Usage:
//
//	hubctl status
//	hubctl catalog
//	hubctl tools "help me rebase my feature branch"
//	hubctl call mcp__git__git_status --args '{"short": true}'
//	hubctl command /load-security --session dev
//	hubctl end dev
//	hubctl refresh mcp__git
//
// The hub address comes from --hub-url or the HUB_URL environment
// variable, defaulting to http://localhost:12240. Output is
// human-readable on a terminal and JSON when piped or with --json.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
}
