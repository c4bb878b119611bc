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

package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// envVarPattern matches ${VAR} or ${VAR:default}
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// LoadDotEnv loads a .env file into the process environment if present; a
// missing file is not an error, since production deployments typically
// supply the environment directly rather than via a file.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// SubstituteEnvVars replaces ${VAR} or ${VAR:default} with environment
// variable values.
func SubstituteEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		value := os.Getenv(varName)
		if value == "" {
			return defaultValue
		}
		return value
	})
}

// SubstituteEnvVarsInConfig recursively substitutes environment variables
// across every string field that plausibly carries a ${VAR} reference.
func SubstituteEnvVarsInConfig(cfg *Config) {
	if cfg == nil {
		return
	}

	cfg.Relay.ListenAddr = SubstituteEnvVars(cfg.Relay.ListenAddr)
	cfg.Owner.Key = SubstituteEnvVars(cfg.Owner.Key)
	cfg.Connector.RemoteBaseURL = SubstituteEnvVars(cfg.Connector.RemoteBaseURL)
	cfg.Bootstrap.EnvPeersVar = SubstituteEnvVars(cfg.Bootstrap.EnvPeersVar)

	for i := range cfg.Bootstrap.GenesisPeers {
		cfg.Bootstrap.GenesisPeers[i].Key = SubstituteEnvVars(cfg.Bootstrap.GenesisPeers[i].Key)
		cfg.Bootstrap.GenesisPeers[i].TransportEndpoint = SubstituteEnvVars(cfg.Bootstrap.GenesisPeers[i].TransportEndpoint)
		cfg.Bootstrap.GenesisPeers[i].RoutingAddress = SubstituteEnvVars(cfg.Bootstrap.GenesisPeers[i].RoutingAddress)
	}

	cfg.Logging.Level = SubstituteEnvVars(cfg.Logging.Level)
	cfg.Logging.Format = SubstituteEnvVars(cfg.Logging.Format)
	cfg.Logging.Output = SubstituteEnvVars(cfg.Logging.Output)
	cfg.Logging.FilePath = SubstituteEnvVars(cfg.Logging.FilePath)

	cfg.Metrics.Addr = SubstituteEnvVars(cfg.Metrics.Addr)
	cfg.Metrics.Path = SubstituteEnvVars(cfg.Metrics.Path)
	cfg.Health.Addr = SubstituteEnvVars(cfg.Health.Addr)
	cfg.Health.Path = SubstituteEnvVars(cfg.Health.Path)
}

// ParseEnvPeers parses the comma-separated "key@transportEndpoint" entries
// an EnvPeersVar environment variable carries, into genesis peer configs.
func ParseEnvPeers(raw string) []GenesisPeerConfig {
	if raw == "" {
		return nil
	}
	var peers []GenesisPeerConfig
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "@", 2)
		if len(parts) != 2 {
			continue
		}
		peers = append(peers, GenesisPeerConfig{Key: parts[0], TransportEndpoint: parts[1]})
	}
	return peers
}

// GetEnvironment returns the current environment from PAIDMESH_ENV or
// ENVIRONMENT, defaulting to development.
func GetEnvironment() string {
	env := os.Getenv("PAIDMESH_ENV")
	if env == "" {
		env = os.Getenv("ENVIRONMENT")
	}
	if env == "" {
		env = "development"
	}
	return strings.ToLower(env)
}

// IsProduction returns true if running in the production environment.
func IsProduction() bool {
	return GetEnvironment() == "production"
}

// IsDevelopment returns true if running in development or local.
func IsDevelopment() bool {
	env := GetEnvironment()
	return env == "development" || env == "local"
}

// envUint64 reads an environment variable as a uint64, returning ok=false
// if unset or unparsable.
func envUint64(name string) (uint64, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
