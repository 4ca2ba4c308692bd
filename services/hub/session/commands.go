// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianHub/services/hub/catalog"
	"github.com/AleutianAI/AleutianHub/services/hub/planner"
)

// Command grammar. Each command is sugar over the session's sticky
// overrides; the planner consumes the overrides, so commands and direct
// override payloads share one code path.
const (
	cmdLoadPrefix   = "/load-"
	cmdUnloadPrefix = "/unload-"
	cmdStrategy     = "/strategy"
	cmdReset        = "/reset"
)

var (
	// ErrUnknownCommand indicates input outside the command grammar.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrUnknownCategory indicates a load/unload target outside the
	// category set.
	ErrUnknownCategory = errors.New("unknown category")
)

// ApplyCommand parses one slash command and applies it to the session's
// sticky overrides.
//
// # Description
//
// Grammar:
//
//	/load-<category>    force the category on
//	/unload-<category>  disable the category
//	/strategy <name>    sticky strategy override
//	/reset              clear all sticky overrides
//
// Loading a category removes any standing disable for it, and vice versa,
// so the newest command wins. Applied commands are appended to the
// session's command log. The caller re-plans after a successful apply.
//
// # Inputs
//
//   - raw: The command text.
//
// # Outputs
//
//   - string: The override chip recorded ("force:git", "disable:security",
//     "strategy:AGGRESSIVE", "reset").
//   - error: ErrUnknownCommand, ErrUnknownCategory, or a strategy parse
//     error. Nothing is applied on error.
func (s *Session) ApplyCommand(raw string) (string, error) {
	cmd := strings.TrimSpace(raw)

	switch {
	case strings.HasPrefix(cmd, cmdLoadPrefix):
		cat := catalog.Category(strings.TrimPrefix(cmd, cmdLoadPrefix))
		if !cat.Valid() {
			return "", fmt.Errorf("%w: %q", ErrUnknownCategory, string(cat))
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.overrides.Force = appendCategory(s.overrides.Force, cat)
		s.overrides.Disable = removeCategory(s.overrides.Disable, cat)
		s.commands = append(s.commands, cmd)
		recordCommand("load")
		return "force:" + string(cat), nil

	case strings.HasPrefix(cmd, cmdUnloadPrefix):
		cat := catalog.Category(strings.TrimPrefix(cmd, cmdUnloadPrefix))
		if !cat.Valid() {
			return "", fmt.Errorf("%w: %q", ErrUnknownCategory, string(cat))
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.overrides.Disable = appendCategory(s.overrides.Disable, cat)
		s.overrides.Force = removeCategory(s.overrides.Force, cat)
		s.commands = append(s.commands, cmd)
		recordCommand("unload")
		return "disable:" + string(cat), nil

	case cmd == cmdStrategy || strings.HasPrefix(cmd, cmdStrategy+" "):
		arg := strings.TrimSpace(strings.TrimPrefix(cmd, cmdStrategy))
		if arg == "" {
			return "", fmt.Errorf("%w: /strategy needs a name", ErrUnknownCommand)
		}
		strategy, err := planner.ParseStrategy(arg)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.overrides.Strategy = strategy
		s.commands = append(s.commands, cmd)
		recordCommand("strategy")
		return "strategy:" + string(strategy), nil

	case cmd == cmdReset:
		s.mu.Lock()
		defer s.mu.Unlock()
		s.overrides = planner.Overrides{}
		s.commands = append(s.commands, cmd)
		recordCommand("reset")
		return "reset", nil

	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, raw)
	}
}

// appendCategory adds cat if absent.
func appendCategory(cats []catalog.Category, cat catalog.Category) []catalog.Category {
	for _, c := range cats {
		if c == cat {
			return cats
		}
	}
	return append(cats, cat)
}

// removeCategory drops every occurrence of cat.
func removeCategory(cats []catalog.Category, cat catalog.Category) []catalog.Category {
	out := cats[:0]
	for _, c := range cats {
		if c != cat {
			out = append(out, c)
		}
	}
	return out
}
