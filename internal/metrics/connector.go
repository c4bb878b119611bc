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
	// PacketsSent tracks packets sent through the connector by outcome.
	PacketsSent = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connector",
			Name:      "packets_sent_total",
			Help:      "Total number of packets sent through the connector",
		},
		[]string{"outcome"}, // fulfill, reject, timeout
	)

	// PacketLatency tracks round-trip packet latency.
	PacketLatency = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "connector",
			Name:      "packet_latency_seconds",
			Help:      "Round-trip packet latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
	)

	// ChannelsOpen tracks currently open settlement channels.
	ChannelsOpen = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connector",
			Name:      "channels_open",
			Help:      "Number of currently open settlement channels",
		},
	)

	// PeersRegistered tracks the connector's peer table size.
	PeersRegistered = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connector",
			Name:      "peers_registered",
			Help:      "Number of peers currently registered with the connector",
		},
	)
)
