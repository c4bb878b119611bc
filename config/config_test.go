package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFromFileYAMLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := &Config{
		Environment: "staging",
		Relay:       RelayConfig{ListenAddr: ":9999"},
		Owner:       OwnerConfig{Key: "deadbeef"},
	}
	require.NoError(t, SaveToFile(cfg, path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "staging", loaded.Environment)
	require.Equal(t, ":9999", loaded.Relay.ListenAddr)
	require.Equal(t, "deadbeef", loaded.Owner.Key)
	// setDefaults fills everything LoadFromFile didn't see explicitly set.
	require.Equal(t, 20, loaded.Relay.MaxSubscriptionsPerConn)
	require.Equal(t, 9, loaded.Pricing.AssetScale)
	require.Equal(t, ConnectorModeDirect, loaded.Connector.Mode)
}

func TestLoadFromFileMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestSetDefaultsFillsZeroValues(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	require.Equal(t, "development", cfg.Environment)
	require.Equal(t, ":8765", cfg.Relay.ListenAddr)
	require.Equal(t, 256, cfg.Relay.OutboundQueueCapacity)
	require.Equal(t, 3, cfg.Connector.MaxRetries)
	require.Equal(t, time.Minute, cfg.Bootstrap.ReverseDiscoveryCooldown)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "/metrics", cfg.Metrics.Path)
	require.Equal(t, "/health", cfg.Health.Path)
}

func TestValidateFlagsMissingRemoteBaseURL(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)
	cfg.Connector.Mode = ConnectorModeRemote
	cfg.Connector.RemoteBaseURL = ""

	issues := Validate(cfg)
	var found bool
	for _, i := range issues {
		if i.Field == "connector.remote_base_url" && i.Level == "error" {
			found = true
		}
	}
	require.True(t, found)
}

func TestValidateWarnsOnMissingOwnerKey(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	issues := Validate(cfg)
	var found bool
	for _, i := range issues {
		if i.Field == "owner.key" && i.Level == "warning" {
			found = true
		}
	}
	require.True(t, found)
}

func TestSubstituteEnvVars(t *testing.T) {
	require.NoError(t, os.Setenv("PAIDMESH_TEST_VAR", "resolved"))
	defer os.Unsetenv("PAIDMESH_TEST_VAR")

	require.Equal(t, "resolved", SubstituteEnvVars("${PAIDMESH_TEST_VAR}"))
	require.Equal(t, "fallback", SubstituteEnvVars("${PAIDMESH_TEST_VAR_UNSET:fallback}"))
}

func TestParseEnvPeers(t *testing.T) {
	peers := ParseEnvPeers("keyA@ws://a, keyB@ws://b")
	require.Len(t, peers, 2)
	require.Equal(t, "keyA", peers[0].Key)
	require.Equal(t, "ws://a", peers[0].TransportEndpoint)
	require.Equal(t, "keyB", peers[1].Key)
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Setenv("PAIDMESH_OWNER_KEY", "override-key"))
	defer os.Unsetenv("PAIDMESH_OWNER_KEY")

	cfg, err := Load(LoaderOptions{ConfigDir: dir, SkipValidation: true})
	require.NoError(t, err)
	require.Equal(t, "override-key", cfg.Owner.Key)
}
