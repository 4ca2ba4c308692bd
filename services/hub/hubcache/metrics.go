// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hubcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_cache_hits_total",
		Help: "Cache hits, by cache name.",
	}, []string{"cache"})

	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_cache_misses_total",
		Help: "Cache misses, TTL expirations included, by cache name.",
	}, []string{"cache"})

	cacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_cache_evictions_total",
		Help: "Capacity evictions, by cache name.",
	}, []string{"cache"})

	storeOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_cache_store_ops_total",
		Help: "Persistent decision store operations, by op and status.",
	}, []string{"op", "status"})
)

func recordCacheHit(name string) {
	cacheHits.WithLabelValues(name).Inc()
}

func recordCacheMiss(name string) {
	cacheMisses.WithLabelValues(name).Inc()
}

func recordCacheEviction(name string) {
	cacheEvictions.WithLabelValues(name).Inc()
}

func recordStoreOp(op, status string) {
	storeOps.WithLabelValues(op, status).Inc()
}
