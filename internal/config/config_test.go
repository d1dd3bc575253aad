package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	assert.Equal(t, "filevault.db", cfg.DatabasePath)
	assert.Equal(t, "local", cfg.UserID)
	assert.Equal(t, 3*time.Second, cfg.OnlineCheckInterval)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5*time.Minute, cfg.CapabilityTTL)
}

func TestParseEnv_Overrides(t *testing.T) {
	t.Setenv("FILEVAULT_DB", "/tmp/override.db")
	t.Setenv("FILEVAULT_USER", "alice")
	t.Setenv("FILEVAULT_ONLINE_CHECK_INTERVAL", "10s")

	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)

	assert.Equal(t, "/tmp/override.db", cfg.DatabasePath)
	assert.Equal(t, "alice", cfg.UserID)
	assert.Equal(t, 10*time.Second, cfg.OnlineCheckInterval)
	// untouched values keep their defaults
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func TestParseEnv_IgnoresMalformedDuration(t *testing.T) {
	t.Setenv("FILEVAULT_REQUEST_TIMEOUT", "not-a-duration")

	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)

	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}
