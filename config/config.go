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

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadFromFile loads configuration from a file, trying YAML then JSON.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)

	return cfg, nil
}

// SaveToFile saves configuration to a file, choosing format by extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setDefaults fills in zero-valued fields with this module's defaults.
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.Relay.ListenAddr == "" {
		cfg.Relay.ListenAddr = ":8765"
	}
	if cfg.Relay.MaxSubscriptionsPerConn == 0 {
		cfg.Relay.MaxSubscriptionsPerConn = 20
	}
	if cfg.Relay.MaxFiltersPerSub == 0 {
		cfg.Relay.MaxFiltersPerSub = 10
	}
	if cfg.Relay.OutboundQueueCapacity == 0 {
		cfg.Relay.OutboundQueueCapacity = 256
	}

	if cfg.Pricing.AssetScale == 0 {
		cfg.Pricing.AssetScale = 9
	}
	if cfg.Pricing.HandshakeRequestKind == 0 {
		cfg.Pricing.HandshakeRequestKind = 20100
	}

	if cfg.Trust.MaxHops == 0 {
		cfg.Trust.MaxHops = 3
	}
	if cfg.Trust.CacheTTL == 0 {
		cfg.Trust.CacheTTL = 5 * time.Minute
	}

	if cfg.Connector.Mode == "" {
		cfg.Connector.Mode = ConnectorModeDirect
	}
	if cfg.Connector.MaxRetries == 0 {
		cfg.Connector.MaxRetries = 3
	}
	if cfg.Connector.RetryDelay == 0 {
		cfg.Connector.RetryDelay = time.Second
	}
	if cfg.Connector.RequestTimeout == 0 {
		cfg.Connector.RequestTimeout = 30 * time.Second
	}

	if cfg.Bootstrap.ReverseDiscoveryCooldown == 0 {
		cfg.Bootstrap.ReverseDiscoveryCooldown = time.Minute
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Health.Addr == "" {
		cfg.Health.Addr = ":8090"
	}
	if cfg.Health.Path == "" {
		cfg.Health.Path = "/health"
	}
}

// ValidationIssue is one configuration problem found by Validate.
type ValidationIssue struct {
	Field   string
	Message string
	Level   string // "error" or "warning"
}

// Validate checks cfg for problems a loader should surface before startup.
// Error-level issues should block startup; warnings should only be logged.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Relay.ListenAddr == "" {
		issues = append(issues, ValidationIssue{Field: "relay.listen_addr", Message: "relay listen address is required", Level: "error"})
	}
	if cfg.Owner.Key == "" {
		issues = append(issues, ValidationIssue{Field: "owner.key", Message: "no owner key configured; every write will be priced", Level: "warning"})
	}
	if cfg.Connector.Mode == ConnectorModeRemote && cfg.Connector.RemoteBaseURL == "" {
		issues = append(issues, ValidationIssue{Field: "connector.remote_base_url", Message: "remote connector mode requires a base URL", Level: "error"})
	}
	for _, gp := range cfg.Bootstrap.GenesisPeers {
		if gp.Key == "" || gp.TransportEndpoint == "" {
			issues = append(issues, ValidationIssue{Field: "bootstrap.genesis_peers", Message: "genesis peer missing key or transport endpoint", Level: "error"})
		}
	}

	return issues
}
