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
// parsing both string values such as "1s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, non-empty fields are copied into the runtime
// Config struct which uses time.Duration.
type JsonConfig struct {
	ServerEndpointAddr string         `json:"server_endpoint_addr"`
	BufferDir          string         `json:"buffer_dir"`
	ChunkSize          int            `json:"chunk_size"`
	MaxAttempts        uint64         `json:"max_attempts"`
	InitialRetryDelay  timex.Duration `json:"initial_retry_delay"`
	RequestTimeout     timex.Duration `json:"request_timeout"`
	Workers            int            `json:"workers"`
	KeyCacheTTL        timex.Duration `json:"key_cache_ttl"`
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

	if c.ServerEndpointAddr != "" {
		config.ServerEndpointAddr = c.ServerEndpointAddr
	}
	if c.BufferDir != "" {
		config.BufferDir = c.BufferDir
	}
	if c.ChunkSize > 0 {
		config.ChunkSize = c.ChunkSize
	}
	if c.MaxAttempts > 0 {
		config.MaxAttempts = c.MaxAttempts
	}
	if c.InitialRetryDelay.Duration != 0 {
		config.InitialRetryDelay = time.Duration(c.InitialRetryDelay.Duration)
	}
	if c.RequestTimeout.Duration != 0 {
		config.RequestTimeout = time.Duration(c.RequestTimeout.Duration)
	}
	if c.Workers > 0 {
		config.Workers = c.Workers
	}
	if c.KeyCacheTTL.Duration != 0 {
		config.KeyCacheTTL = time.Duration(c.KeyCacheTTL.Duration)
	}
}
