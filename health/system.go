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
	"context"
	"fmt"
	"runtime"
)

// Memory usage thresholds, as a percentage of Go's reported Sys (total
// memory obtained from the OS). Above the degraded threshold the check
// fails so the node shows unhealthy under sustained memory pressure.
const (
	MemoryThresholdDegraded = 85.0
)

// SystemHealthCheck reports on the running process's own resource usage:
// heap allocation, total memory obtained from the OS, and goroutine count.
// Unlike the bootstrap/store/connector checks, this has no dependency to
// ping - it always runs against runtime.MemStats.
func SystemHealthCheck() HealthCheck {
	return func(ctx context.Context) error {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		usedMB := m.Alloc / 1024 / 1024
		totalMB := m.Sys / 1024 / 1024
		goroutines := runtime.NumGoroutine()

		if totalMB == 0 {
			return nil
		}

		percent := float64(usedMB) / float64(totalMB) * 100
		if percent >= MemoryThresholdDegraded {
			return fmt.Errorf("memory usage %.1f%% (%dMB/%dMB), %d goroutines", percent, usedMB, totalMB, goroutines)
		}
		return nil
	}
}
