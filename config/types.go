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

import "time"

// Config is the root configuration structure for a node: relay, pricing,
// connector, bootstrap, trust, and the ambient logging/metrics/health
// sections.
type Config struct {
	Environment string          `yaml:"environment" json:"environment"`
	Relay       RelayConfig     `yaml:"relay" json:"relay"`
	Pricing     PricingConfig   `yaml:"pricing" json:"pricing"`
	Owner       OwnerConfig     `yaml:"owner" json:"owner"`
	Trust       TrustConfig     `yaml:"trust" json:"trust"`
	Connector   ConnectorConfig `yaml:"connector" json:"connector"`
	Bootstrap   BootstrapConfig `yaml:"bootstrap" json:"bootstrap"`
	Logging     LoggingConfig   `yaml:"logging" json:"logging"`
	Metrics     MetricsConfig   `yaml:"metrics" json:"metrics"`
	Health      HealthConfig    `yaml:"health" json:"health"`
}

// RelayConfig configures the paid gossip relay (C4).
type RelayConfig struct {
	ListenAddr              string `yaml:"listen_addr" json:"listen_addr"`
	MaxSubscriptionsPerConn int    `yaml:"max_subscriptions_per_conn" json:"max_subscriptions_per_conn"`
	MaxFiltersPerSub        int    `yaml:"max_filters_per_sub" json:"max_filters_per_sub"`
	OutboundQueueCapacity   int    `yaml:"outbound_queue_capacity" json:"outbound_queue_capacity"`
}

// KindRule is one kind's override of the default pricing rule.
type KindRule struct {
	Kind             uint16 `yaml:"kind" json:"kind"`
	FlatAmount       uint64 `yaml:"flat_amount" json:"flat_amount"`
	BasePricePerByte uint64 `yaml:"base_price_per_byte" json:"base_price_per_byte"`
}

// PricingConfig configures the write-gate pricing policy (C3).
type PricingConfig struct {
	AssetScale           int        `yaml:"asset_scale" json:"asset_scale"`
	DefaultFlatAmount    uint64     `yaml:"default_flat_amount" json:"default_flat_amount"`
	DefaultPricePerByte  uint64     `yaml:"default_price_per_byte" json:"default_price_per_byte"`
	KindRules            []KindRule `yaml:"kind_rules" json:"kind_rules"`
	HandshakeRequestKind uint16     `yaml:"handshake_request_kind" json:"handshake_request_kind"`
	BootstrapZeroPrice   bool       `yaml:"bootstrap_zero_price" json:"bootstrap_zero_price"`
}

// OwnerConfig identifies the node operator's own key, which bypasses
// pricing on its own writes per §4.3.
type OwnerConfig struct {
	Key string `yaml:"key" json:"key"`

	// SupportedChains and SettlementAddresses are this node's own
	// handshake-negotiation offer, advertised to peers during chain
	// negotiation (C5) and published in its own peer record (C8 phase 4).
	SupportedChains     []string          `yaml:"supported_chains" json:"supported_chains"`
	SettlementAddresses map[string]string `yaml:"settlement_addresses" json:"settlement_addresses"`
}

// TrustConfig configures the composite trust engine (per pkg/trust).
type TrustConfig struct {
	SocialDistanceWeight        float64       `yaml:"social_distance_weight" json:"social_distance_weight"`
	MutualFollowersWeight       float64       `yaml:"mutual_followers_weight" json:"mutual_followers_weight"`
	ReactionScoreWeight         float64       `yaml:"reaction_score_weight" json:"reaction_score_weight"`
	ZapVolumeWeight             float64       `yaml:"zap_volume_weight" json:"zap_volume_weight"`
	ZapDiversityWeight          float64       `yaml:"zap_diversity_weight" json:"zap_diversity_weight"`
	SettlementReliabilityWeight float64       `yaml:"settlement_reliability_weight" json:"settlement_reliability_weight"`
	QualityLabelWeight          float64       `yaml:"quality_label_weight" json:"quality_label_weight"`
	BadgeWeight                 float64       `yaml:"badge_weight" json:"badge_weight"`
	ReportPenaltyWeight         float64       `yaml:"report_penalty_weight" json:"report_penalty_weight"`
	MaxHops                     int           `yaml:"max_hops" json:"max_hops"`
	CacheTTL                    time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	MinCreditLimit              int64         `yaml:"min_credit_limit" json:"min_credit_limit"`
	MaxCreditLimit              int64         `yaml:"max_credit_limit" json:"max_credit_limit"`
}

// ConnectorMode selects between the in-process direct connector (tests,
// single-node deployments) and the remote HTTP admin/runtime API.
type ConnectorMode string

const (
	ConnectorModeDirect ConnectorMode = "direct"
	ConnectorModeRemote ConnectorMode = "remote"
)

// ConnectorConfig configures the connector client (C7).
type ConnectorConfig struct {
	Mode           ConnectorMode `yaml:"mode" json:"mode"`
	RemoteBaseURL  string        `yaml:"remote_base_url" json:"remote_base_url"`
	MaxRetries     int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay" json:"retry_delay"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// GenesisPeerConfig is one statically-configured bootstrap peer.
type GenesisPeerConfig struct {
	Key               string `yaml:"key" json:"key"`
	TransportEndpoint string `yaml:"transport_endpoint" json:"transport_endpoint"`
	RoutingAddress    string `yaml:"routing_address" json:"routing_address"`
}

// BootstrapConfig configures the five-phase orchestrator (C8).
type BootstrapConfig struct {
	GenesisPeers             []GenesisPeerConfig `yaml:"genesis_peers" json:"genesis_peers"`
	EnvPeersVar              string              `yaml:"env_peers_var" json:"env_peers_var"`
	AnnouncePrice            uint64              `yaml:"announce_price" json:"announce_price"`
	ReverseDiscoveryCooldown time.Duration       `yaml:"reverse_discovery_cooldown" json:"reverse_discovery_cooldown"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}

// HealthConfig configures the health endpoint.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}
