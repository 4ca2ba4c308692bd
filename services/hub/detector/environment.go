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

	"github.com/AleutianAI/AleutianHub/services/hub/catalog"
)

// Environment increments. Merge conflicts outweigh plain uncommitted work;
// a conflicted tree nearly always means git tooling is wanted next.
const (
	envUncommitted   = 0.3 // git
	envConflicts     = 0.4 // git
	envRecentCommits = 0.2 // git
	envTestDirs      = 0.3 // test
	envSecurityFiles = 0.3 // security
	envCIFiles       = 0.3 // infrastructure
	envDocs          = 0.2 // analysis
)

// analyzeEnvironment scores categories from workspace state flags.
func analyzeEnvironment(ctx context.Context, qctx *Context) (map[catalog.Category]float64, error) {
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

	if qctx.HasUncommittedChanges {
		add(catalog.CategoryGit, envUncommitted)
	}
	if qctx.HasMergeConflicts {
		add(catalog.CategoryGit, envConflicts)
	}
	if qctx.RecentCommits > 0 {
		add(catalog.CategoryGit, envRecentCommits)
	}
	if qctx.HasTestDirectories {
		add(catalog.CategoryTest, envTestDirs)
	}
	if qctx.HasSecurityFiles {
		add(catalog.CategorySecurity, envSecurityFiles)
	}
	if qctx.HasCIFiles {
		add(catalog.CategoryInfrastructure, envCIFiles)
	}
	if qctx.HasDocs {
		add(catalog.CategoryAnalysis, envDocs)
	}
	return scores, nil
}
