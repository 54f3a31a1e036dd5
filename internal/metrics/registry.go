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

// Package metrics exposes Prometheus collectors for the route, pairing,
// channel, trust, and crypto subsystems, plus a small in-process
// MetricsCollector for the percentile snapshots the health endpoint reports.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// namespace prefixes every collector registered on Registry.
const namespace = "onesync"

// Registry is the Prometheus registry every onesync collector registers
// against. A package-local registry (rather than prometheus.DefaultRegisterer)
// keeps the metrics surface self-contained and lets Handler/StartServer
// export exactly onesync's own collectors.
var Registry = prometheus.NewRegistry()
