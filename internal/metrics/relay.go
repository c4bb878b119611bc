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
	// RelayWrites tracks write-gate outcomes for EVENT frames.
	RelayWrites = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "writes_total",
			Help:      "Total number of relay writes by outcome",
		},
		[]string{"outcome"}, // stored, deleted, rejected_signature, rejected_payment, rejected_store
	)

	// RelayBroadcasts tracks subscription fan-out per accepted write.
	RelayBroadcasts = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "broadcasts_total",
			Help:      "Total number of messages broadcast to matching subscriptions",
		},
	)

	// RelayOutboundDrops tracks droppable frames evicted under backpressure.
	RelayOutboundDrops = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "outbound_drops_total",
			Help:      "Total number of droppable outbound frames evicted under backpressure",
		},
	)

	// RelayActiveConnections tracks currently open relay connections.
	RelayActiveConnections = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "active_connections",
			Help:      "Number of currently open relay WebSocket connections",
		},
	)

	// RelayActiveSubscriptions tracks open REQ subscriptions across all
	// connections.
	RelayActiveSubscriptions = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "active_subscriptions",
			Help:      "Number of currently open subscriptions across all connections",
		},
	)
)
