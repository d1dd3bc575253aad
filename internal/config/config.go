// Package config assembles runtime settings for the vault CLI. Sources are
// layered: defaults, then a .env overlay, then an optional JSON file, then
// command-line flags — later sources win.
package config

import "time"

// Config holds runtime settings for the vault client.
type Config struct {
	// DatabasePath is the local sqlite database file, one per user.
	DatabasePath string
	// UserID namespaces all local and remote state.
	UserID string

	// RemoteDSN is the Postgres DSN of the document store; empty runs the
	// vault against the in-memory store (offline/dev mode).
	RemoteDSN string

	// OnlineCheckInterval is how often connectivity to the remote store is
	// probed.
	OnlineCheckInterval time.Duration
	// RequestTimeout bounds each network call.
	RequestTimeout time.Duration

	// CapabilitySecret signs share download capabilities.
	CapabilitySecret string
	// CapabilityTTL bounds a minted download capability.
	CapabilityTTL time.Duration

	// ShareRate / ShareBurst throttle share-link creation per user.
	ShareRate  float64
	ShareBurst int
	// UploadRate / UploadBurst throttle uploads per user.
	UploadRate  float64
	UploadBurst int

	// S3 settings shared by all provider backends; each provider gets its
	// own bucket.
	S3Endpoint     string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	StandardBucket string
	BulkBucket     string
	ArchiveBucket  string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabasePath = "filevault.db"
	c.UserID = "local"
	c.OnlineCheckInterval = 3 * time.Second
	c.RequestTimeout = 30 * time.Second
	c.CapabilitySecret = ""
	c.CapabilityTTL = 5 * time.Minute
	c.ShareRate = 1
	c.ShareBurst = 10
	c.UploadRate = 5
	c.UploadBurst = 20
	c.S3Region = "us-east-1"
	c.StandardBucket = "vault-standard"
	c.BulkBucket = "vault-bulk"
	c.ArchiveBucket = "vault-archive"
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from the environment (.env aware), JSON (if present) and command-line
// flags. Later sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
