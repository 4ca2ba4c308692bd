// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hub

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/AleutianAI/AleutianHub/services/hub/catalog"
)

// argValidator checks call arguments against the owning tool's input
// schema before the call leaves the hub. Compiled schemas are cached by
// content hash, so a rediscovery that changes a tool's schema gets a
// fresh compile while unchanged tools keep theirs.
//
// Validation is best effort. A schema that does not compile is logged
// once and skipped; the back end stays the authority on its own
// arguments.
type argValidator struct {
	logger *slog.Logger

	mu sync.RWMutex
	// byHash maps sha256(schema) to the compiled schema. A nil entry
	// records a schema that failed to compile.
	byHash map[string]*jsonschema.Schema
}

func newArgValidator(logger *slog.Logger) *argValidator {
	return &argValidator{
		logger: logger,
		byHash: make(map[string]*jsonschema.Schema),
	}
}

// validate returns nil when args satisfy the tool's schema, when the
// tool has no schema, or when the schema is unusable. A non-nil error
// is a real violation the agent should see.
func (v *argValidator) validate(desc *catalog.ToolDescriptor, args map[string]any) error {
	if len(desc.InputSchema) == 0 {
		return nil
	}
	sch := v.compiled(desc)
	if sch == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	return sch.Validate(args)
}

func (v *argValidator) compiled(desc *catalog.ToolDescriptor) *jsonschema.Schema {
	sum := sha256.Sum256(desc.InputSchema)
	key := hex.EncodeToString(sum[:])

	v.mu.RLock()
	sch, seen := v.byHash[key]
	v.mu.RUnlock()
	if seen {
		return sch
	}

	sch = v.compile(desc)
	v.mu.Lock()
	v.byHash[key] = sch
	v.mu.Unlock()
	return sch
}

func (v *argValidator) compile(desc *catalog.ToolDescriptor) *jsonschema.Schema {
	var doc any
	if err := json.Unmarshal(desc.InputSchema, &doc); err != nil {
		v.logger.Warn("Tool schema is not valid JSON, skipping validation",
			"tool", desc.ID, "error", err)
		return nil
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("tool.json", doc); err != nil {
		v.logger.Warn("Tool schema rejected, skipping validation",
			"tool", desc.ID, "error", err)
		return nil
	}
	sch, err := c.Compile("tool.json")
	if err != nil {
		v.logger.Warn("Tool schema failed to compile, skipping validation",
			"tool", desc.ID, "error", err)
		return nil
	}
	return sch
}
