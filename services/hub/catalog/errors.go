// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import "errors"

var (
	// ErrUnknownCategory indicates a category name outside the closed set.
	ErrUnknownCategory = errors.New("unknown category")

	// ErrUnknownTier indicates a tier name other than T1, T2, or T3.
	ErrUnknownTier = errors.New("unknown tier")

	// ErrMapNotFound indicates no category map file at the given path.
	ErrMapNotFound = errors.New("category map not found")

	// ErrMapInvalid indicates the category map failed to parse or validate.
	ErrMapInvalid = errors.New("category map invalid")

	// ErrMapTooLarge indicates the category map file exceeds the size cap.
	ErrMapTooLarge = errors.New("category map too large")
)
