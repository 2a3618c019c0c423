package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	yaml := `
general:
  instance_id: "test-node"
  dry_run: true
  log_level: "debug"

origins:
  pumpfun:
    - "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
  raydium:
    - "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"

entry:
  min_score: 65
  apex_score: 85

heat:
  window_min: 20
  min_accepts_per_hr: 3
`
	tmpFile, err := os.CreateTemp("", "launchguard-config-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	_, err = tmpFile.WriteString(yaml)
	require.NoError(t, err)
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	require.NoError(t, err)

	assert.Equal(t, "test-node", cfg.General.InstanceID)
	assert.True(t, cfg.General.DryRun)
	assert.Equal(t, []string{"6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"}, cfg.Origins.Pumpfun)
	assert.Equal(t, 65, cfg.Entry.MinScore)
	assert.Equal(t, 85, cfg.Entry.ApexScore)
	assert.Equal(t, 20, cfg.Heat.WindowMin)
	assert.Equal(t, 3.0, cfg.Heat.MinAcceptsPerHr)
}

func TestLoadConfigDefaults(t *testing.T) {
	yaml := `
general:
  dry_run: true
`
	tmpFile, err := os.CreateTemp("", "launchguard-config-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	_, err = tmpFile.WriteString(yaml)
	require.NoError(t, err)
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	require.NoError(t, err)

	assert.Equal(t, "launchguard-1", cfg.General.InstanceID)
	assert.Equal(t, "info", cfg.General.LogLevel)
	assert.Equal(t, 60, cfg.Entry.MinScore)
	assert.Equal(t, 80, cfg.Entry.ApexScore)
	assert.Equal(t, "deferred", cfg.MintVerify.Mode)
	assert.Equal(t, "pumpfun_only", cfg.TxLookup.Mode)
	assert.Equal(t, "launchguard.db", cfg.Store.Path)
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	os.Setenv("TEST_LAUNCHGUARD_INSTANCE", "env-node")
	defer os.Unsetenv("TEST_LAUNCHGUARD_INSTANCE")

	yaml := `
general:
  instance_id: "${TEST_LAUNCHGUARD_INSTANCE}"
`
	tmpFile, err := os.CreateTemp("", "launchguard-config-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	_, err = tmpFile.WriteString(yaml)
	require.NoError(t, err)
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	require.NoError(t, err)

	assert.Equal(t, "env-node", cfg.General.InstanceID)
}
