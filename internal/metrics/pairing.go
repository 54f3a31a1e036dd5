// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PairingsInitiated tracks pairing invitations started
	PairingsInitiated = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pairings",
			Name:      "initiated_total",
			Help:      "Total number of pairing invitations initiated",
		},
		[]string{"role"}, // inviter, invitee
	)

	// PairingsCompleted tracks completed pairings
	PairingsCompleted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pairings",
			Name:      "completed_total",
			Help:      "Total number of pairings completed",
		},
		[]string{"status"}, // success, failure
	)

	// PairingsFailed tracks failed pairings by error type
	PairingsFailed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pairings",
			Name:      "failed_total",
			Help:      "Total number of failed pairings by error type",
		},
		[]string{"error_type"}, // expired_token, invalid_token, network
	)

	// PairingDuration tracks pairing stage durations
	PairingDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pairings",
			Name:      "duration_seconds",
			Help:      "Pairing stage duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to 2.048s
		},
		[]string{"stage"}, // invite, accept, establish
	)
)
