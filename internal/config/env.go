package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays Config with environment variables, loading a .env file
// from the working directory first when one exists. Real environment
// variables win over .env entries (godotenv never overrides).
func parseEnv(cfg *Config) {
	_ = godotenv.Load()

	setString(&cfg.DatabasePath, "FILEVAULT_DB")
	setString(&cfg.UserID, "FILEVAULT_USER")
	setString(&cfg.RemoteDSN, "FILEVAULT_REMOTE_DSN")
	setString(&cfg.CapabilitySecret, "FILEVAULT_CAPABILITY_SECRET")
	setString(&cfg.S3Endpoint, "FILEVAULT_S3_ENDPOINT")
	setString(&cfg.S3Region, "FILEVAULT_S3_REGION")
	setString(&cfg.S3AccessKey, "FILEVAULT_S3_ACCESS_KEY")
	setString(&cfg.S3SecretKey, "FILEVAULT_S3_SECRET_KEY")
	setString(&cfg.StandardBucket, "FILEVAULT_BUCKET_STANDARD")
	setString(&cfg.BulkBucket, "FILEVAULT_BUCKET_BULK")
	setString(&cfg.ArchiveBucket, "FILEVAULT_BUCKET_ARCHIVE")
	setDuration(&cfg.OnlineCheckInterval, "FILEVAULT_ONLINE_CHECK_INTERVAL")
	setDuration(&cfg.RequestTimeout, "FILEVAULT_REQUEST_TIMEOUT")
	setDuration(&cfg.CapabilityTTL, "FILEVAULT_CAPABILITY_TTL")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
