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

package health

import (
	"encoding/json"
	"net/http"
)

// BootstrapPhase reports the orchestrator's current phase and table sizes;
// callers pass a closure over *bootstrap.Machine rather than this package
// importing pkg/bootstrap directly.
type BootstrapPhase func() (phase string, peerCount, channelCount int)

// response is the shape GET /health reports.
type response struct {
	Status         Status `json:"status"`
	BootstrapPhase string `json:"bootstrapPhase"`
	PeerCount      int    `json:"peerCount"`
	ChannelCount   int    `json:"channelCount"`
}

// Handler builds the GET /health endpoint: overall component status plus
// the bootstrap orchestrator's phase and table sizes.
func Handler(checker *HealthChecker, bootstrap BootstrapPhase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := checker.GetOverallStatus(r.Context())

		var phase string
		var peerCount, channelCount int
		if bootstrap != nil {
			phase, peerCount, channelCount = bootstrap()
		}

		resp := response{
			Status:         status,
			BootstrapPhase: phase,
			PeerCount:      peerCount,
			ChannelCount:   channelCount,
		}

		w.Header().Set("Content-Type", "application/json")
		if status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
}
