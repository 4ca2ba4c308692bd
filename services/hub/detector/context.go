// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package detector

import (
	"context"
	"strings"

	"github.com/AleutianAI/AleutianHub/services/hub/catalog"
)

// Context-analyzer token groups. A group credits its categories once when
// any of its tokens appears in the query, whatever the match count.
var (
	// errorTokens are substrings that mean the user is staring at a
	// failure. "failing" deliberately does not match "failed"; present
	// progressive phrasing is caught by the debug keyword sets instead.
	errorTokens = []string{
		"traceback", "exception", "failed", "error:", "warning:",
		"timeout", "404", "500", "502", "503",
	}

	// perfTokens are substrings that mean a performance question.
	perfTokens = []string{"slow", "memory", "performance", "optimization", "bottleneck"}
)

// codeExtensions marks file extensions that mean source code is in play.
// Shared with the safe-default quality bump.
var codeExtensions = map[string]struct{}{
	".py": {}, ".go": {}, ".js": {}, ".ts": {}, ".jsx": {}, ".tsx": {},
	".java": {}, ".rb": {}, ".rs": {}, ".c": {}, ".cpp": {}, ".h": {},
	".cs": {}, ".php": {},
}

// docExtensions marks documentation files.
var docExtensions = map[string]struct{}{
	".md": {}, ".rst": {}, ".adoc": {},
}

// infraExtensions marks deploy and pipeline files.
var infraExtensions = map[string]struct{}{
	".yaml": {}, ".yml": {}, ".tf": {}, ".dockerfile": {},
}

// Context-analyzer credits.
const (
	codeExtCredit  = 0.3 // quality
	docExtCredit   = 0.3 // analysis
	infraExtCredit = 0.3 // infrastructure
	errorCredit    = 0.6 // debug
	perfDebugCred  = 0.3 // debug
	perfAnalysis   = 0.4 // analysis
)

// analyzeContext scores categories from workspace file extensions and from
// failure and performance wording in the query.
//
// Outputs follow the same conventions as analyzeKeywords: per-group
// fire-once credits, clamped to [0,1], zero scores omitted.
func analyzeContext(ctx context.Context, query string, qctx *Context) (map[catalog.Category]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scores := make(map[catalog.Category]float64)
	add := func(cat catalog.Category, credit float64) {
		s := scores[cat] + credit
		if s > 1 {
			s = 1
		}
		scores[cat] = s
	}

	var code, docs, infra bool
	for _, ext := range qctx.FileExtensions {
		ext = strings.ToLower(ext)
		if _, ok := codeExtensions[ext]; ok {
			code = true
		}
		if _, ok := docExtensions[ext]; ok {
			docs = true
		}
		if _, ok := infraExtensions[ext]; ok {
			infra = true
		}
	}
	if code {
		add(catalog.CategoryQuality, codeExtCredit)
	}
	if docs {
		add(catalog.CategoryAnalysis, docExtCredit)
	}
	if infra {
		add(catalog.CategoryInfrastructure, infraExtCredit)
	}

	if anyKeyword(query, errorTokens) {
		add(catalog.CategoryDebug, errorCredit)
	}
	if anyKeyword(query, perfTokens) {
		add(catalog.CategoryDebug, perfDebugCred)
		add(catalog.CategoryAnalysis, perfAnalysis)
	}
	return scores, nil
}

// hasCodeExtension reports whether any extension names a source file.
func hasCodeExtension(exts []string) bool {
	for _, ext := range exts {
		if _, ok := codeExtensions[strings.ToLower(ext)]; ok {
			return true
		}
	}
	return false
}
