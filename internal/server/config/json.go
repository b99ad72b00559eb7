package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/indexcp/indexcp/internal/flagx"
	"github.com/indexcp/indexcp/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "5m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, non-empty fields are copied into the runtime
// Config struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddr         string         `json:"endpoint_addr"`
	APIKey               string         `json:"api_key"`
	KeyDir               string         `json:"key_dir"`
	StorageMode          string         `json:"storage_mode"`
	DatabaseDSN          string         `json:"database_dsn"`
	BlobMode             string         `json:"blob_mode"`
	OutputDir            string         `json:"output_dir"`
	S3RootUser           string         `json:"s3_root_user"`
	S3RootPassword       string         `json:"s3_root_password"`
	S3Bucket             string         `json:"s3_bucket"`
	S3Region             string         `json:"s3_region"`
	S3BaseEndpoint       string         `json:"s3_base_endpoint"`
	SessionMaxIdle       timex.Duration `json:"session_max_idle"`
	SessionPurgeInterval timex.Duration `json:"session_purge_interval"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags; when neither
// is set, no JSON file is loaded. Fields absent from the file keep their
// current (default) values. If the file cannot be read or contains invalid
// JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	overlayString(&config.EndpointAddr, c.EndpointAddr)
	overlayString(&config.APIKey, c.APIKey)
	overlayString(&config.KeyDir, c.KeyDir)
	overlayString(&config.StorageMode, c.StorageMode)
	overlayString(&config.DatabaseDSN, c.DatabaseDSN)
	overlayString(&config.BlobMode, c.BlobMode)
	overlayString(&config.OutputDir, c.OutputDir)
	overlayString(&config.S3RootUser, c.S3RootUser)
	overlayString(&config.S3RootPassword, c.S3RootPassword)
	overlayString(&config.S3Bucket, c.S3Bucket)
	overlayString(&config.S3Region, c.S3Region)
	overlayString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	overlayDuration(&config.SessionMaxIdle, c.SessionMaxIdle)
	overlayDuration(&config.SessionPurgeInterval, c.SessionPurgeInterval)
}

func overlayString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func overlayDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
