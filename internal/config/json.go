package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/filevault/internal/flagx"
	"github.com/dmitrijs2005/filevault/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "3s"
// or as integer nanoseconds.
type JsonConfig struct {
	DatabasePath        string         `json:"database_path"`
	UserID              string         `json:"user_id"`
	RemoteDSN           string         `json:"remote_dsn"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	RequestTimeout      timex.Duration `json:"request_timeout"`
	CapabilitySecret    string         `json:"capability_secret"`
	CapabilityTTL       timex.Duration `json:"capability_ttl"`
	S3Endpoint          string         `json:"s3_endpoint"`
	S3Region            string         `json:"s3_region"`
	S3AccessKey         string         `json:"s3_access_key"`
	S3SecretKey         string         `json:"s3_secret_key"`
	StandardBucket      string         `json:"standard_bucket"`
	BulkBucket          string         `json:"bulk_bucket"`
	ArchiveBucket       string         `json:"archive_bucket"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// the -c/-config flag. Only fields present in the file override.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.UserID != "" {
		cfg.UserID = jc.UserID
	}
	if jc.RemoteDSN != "" {
		cfg.RemoteDSN = jc.RemoteDSN
	}
	if jc.OnlineCheckInterval.Duration != 0 {
		cfg.OnlineCheckInterval = time.Duration(jc.OnlineCheckInterval.Duration)
	}
	if jc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = time.Duration(jc.RequestTimeout.Duration)
	}
	if jc.CapabilitySecret != "" {
		cfg.CapabilitySecret = jc.CapabilitySecret
	}
	if jc.CapabilityTTL.Duration != 0 {
		cfg.CapabilityTTL = time.Duration(jc.CapabilityTTL.Duration)
	}
	if jc.S3Endpoint != "" {
		cfg.S3Endpoint = jc.S3Endpoint
	}
	if jc.S3Region != "" {
		cfg.S3Region = jc.S3Region
	}
	if jc.S3AccessKey != "" {
		cfg.S3AccessKey = jc.S3AccessKey
	}
	if jc.S3SecretKey != "" {
		cfg.S3SecretKey = jc.S3SecretKey
	}
	if jc.StandardBucket != "" {
		cfg.StandardBucket = jc.StandardBucket
	}
	if jc.BulkBucket != "" {
		cfg.BulkBucket = jc.BulkBucket
	}
	if jc.ArchiveBucket != "" {
		cfg.ArchiveBucket = jc.ArchiveBucket
	}
}
