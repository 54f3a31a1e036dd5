// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TrustResolutionCacheHits counts trust.Resolver.GetKeyTrustInfo calls
	// served from the memo table.
	TrustResolutionCacheHits = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trust",
			Name:      "resolution_cache_hits_total",
			Help:      "Total number of trust resolutions served from the memo table",
		},
	)

	// TrustResolutionCacheMisses counts trust.Resolver.GetKeyTrustInfo
	// calls that had to walk the certificate chain.
	TrustResolutionCacheMisses = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trust",
			Name:      "resolution_cache_misses_total",
			Help:      "Total number of trust resolutions requiring a certificate-chain walk",
		},
	)
)
