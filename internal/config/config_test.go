package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.SSH.ConnectTimeout)
	assert.Equal(t, "192.168.10.0/24", cfg.Pool.CIDR)
	assert.Equal(t, "192.168.10.1", cfg.Pool.Gateway)
	assert.Equal(t, 10, cfg.Seed.ManagementVLAN)
	assert.Equal(t, []int{20, 30, 40}, cfg.Seed.WirelessVLANs)
	assert.Equal(t, 60*time.Second, cfg.Provisioner.PollInterval)
	assert.Empty(t, cfg.Seed.BaseConfigFile, "provisioning must work out of the box without a base config file")

	// Factory default credentials are always the fallback
	require.NotEmpty(t, cfg.Seed.Credentials)
	assert.Equal(t, Credential{Username: "super", Password: "sp-admin"}, cfg.Seed.Credentials[0])
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SEED_SWITCHES", "10.0.0.5, 10.0.0.6")
	t.Setenv("SEED_CREDENTIALS", "admin:secret1,super:sp-admin")
	t.Setenv("SEED_PREFERRED_PASSWORD", "FleetPass9")
	t.Setenv("SEED_MANAGEMENT_VLAN", "100")
	t.Setenv("SEED_WIRELESS_VLANS", "200, 300")
	t.Setenv("POOL_CIDR", "172.16.0.0/22")
	t.Setenv("PROVISIONER_POLL_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.5", "10.0.0.6"}, cfg.Seed.Switches)
	require.Len(t, cfg.Seed.Credentials, 2)
	assert.Equal(t, Credential{Username: "admin", Password: "secret1"}, cfg.Seed.Credentials[0])
	assert.Equal(t, "FleetPass9", cfg.Seed.PreferredPassword)
	assert.Equal(t, 100, cfg.Seed.ManagementVLAN)
	assert.Equal(t, []int{200, 300}, cfg.Seed.WirelessVLANs)
	assert.Equal(t, "172.16.0.0/22", cfg.Pool.CIDR)
	assert.Equal(t, 30*time.Second, cfg.Provisioner.PollInterval)
}

func TestLoadRejectsEmptyCredentials(t *testing.T) {
	// Pairs without a colon are dropped; an all-invalid list is fatal
	t.Setenv("SEED_CREDENTIALS", "no-colon-here")

	_, err := Load()
	assert.Error(t, err)
}

func TestCredentialParsingSkipsMalformedPairs(t *testing.T) {
	t.Setenv("SEED_CREDENTIALS", "admin:secret1, malformed ,super:sp-admin")

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Seed.Credentials, 2)
	assert.Equal(t, "admin", cfg.Seed.Credentials[0].Username)
	assert.Equal(t, "super", cfg.Seed.Credentials[1].Username)
}

func TestInvalidNumericFallsBackToDefault(t *testing.T) {
	t.Setenv("SEED_MANAGEMENT_VLAN", "not-a-number")
	t.Setenv("PROVISIONER_POLL_INTERVAL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Seed.ManagementVLAN)
	assert.Equal(t, 60*time.Second, cfg.Provisioner.PollInterval)
}
