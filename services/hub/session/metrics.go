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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_sessions_created_total",
		Help: "Total sessions created.",
	})

	sessionsEndedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_sessions_ended_total",
		Help: "Total sessions ended explicitly by the agent.",
	})

	sessionsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_sessions_expired_total",
		Help: "Total sessions retired by the idle cleaner.",
	})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_sessions_active",
		Help: "Sessions currently live in the store.",
	})

	sessionCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_session_commands_total",
		Help: "Slash commands applied to sessions, by command.",
	}, []string{"command"})
)

func recordSessionCreated(active int) {
	sessionsCreatedTotal.Inc()
	sessionsActive.Set(float64(active))
}

func recordSessionEnded(active int) {
	sessionsEndedTotal.Inc()
	sessionsActive.Set(float64(active))
}

func recordSessionsExpired(count, active int) {
	sessionsExpiredTotal.Add(float64(count))
	sessionsActive.Set(float64(active))
}

func recordCommand(command string) {
	sessionCommandsTotal.WithLabelValues(command).Inc()
}
