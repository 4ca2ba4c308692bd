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

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	catalogTools = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hub_catalog_tools",
		Help: "Number of registered tools by owning server",
	}, []string{"server"})

	catalogTokenTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_catalog_token_total",
		Help: "Summed token cost of the full catalog",
	})

	catalogClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_catalog_classified_total",
		Help: "Tools classified at discovery by category",
	}, []string{"category"})
)

// RecordServerTools updates the per-server tool gauge after a discovery pass.
//
// Thread Safety: Safe for concurrent use.
func RecordServerTools(serverID string, count int) {
	catalogTools.WithLabelValues(serverID).Set(float64(count))
}

// RecordServerRemoved clears the gauge for a retired server.
func RecordServerRemoved(serverID string) {
	catalogTools.DeleteLabelValues(serverID)
}

// RecordTokenTotal updates the catalog token baseline gauge.
func RecordTokenTotal(total int) {
	catalogTokenTotal.Set(float64(total))
}

// RecordClassification counts one classified tool.
func RecordClassification(c Category) {
	catalogClassified.WithLabelValues(string(c)).Inc()
}
