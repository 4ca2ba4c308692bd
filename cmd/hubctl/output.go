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

	"github.com/mattn/go-isatty"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess = 0
	CLIExitError   = 2
)

// humanOutput reports whether to render for a person. Piped output and
// --json both get machine-readable JSON.
func humanOutput() bool {
	if outputJSON {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// outputJSONData writes data as indented JSON to stdout.
func outputJSONData(data any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		os.Exit(CLIExitError)
	}
}

// fail reports an error in the active output mode and exits.
func fail(command string, err error) {
	if humanOutput() {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	} else {
		outputJSONData(map[string]string{
			"command": command,
			"error":   err.Error(),
		})
	}
	os.Exit(CLIExitError)
}
