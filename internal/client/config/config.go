// Package config handles configuration for the client component,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the indexcp client.
//
// Fields:
//   - ServerEndpointAddr: base URL of the receiver HTTP endpoint.
//   - BufferDir: directory for the local chunk buffer database. When empty,
//     ~/.indexcp is used.
//   - ChunkSize: split size in bytes for buffered files.
//   - MaxAttempts: transmission attempts per chunk, including the first.
//   - InitialRetryDelay: first backoff delay; it doubles on each retry.
//   - RequestTimeout: per-request HTTP timeout.
//   - Workers: chunks in flight per file.
//   - KeyCacheTTL: how long a fetched receiver public key stays valid.
type Config struct {
	ServerEndpointAddr string
	BufferDir          string
	ChunkSize          int
	MaxAttempts        uint64
	InitialRetryDelay  time.Duration
	RequestTimeout     time.Duration
	Workers            int
	KeyCacheTTL        time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "http://127.0.0.1:3000"
	c.BufferDir = ""
	c.ChunkSize = 1 << 20
	c.MaxAttempts = 3
	c.InitialRetryDelay = 1 * time.Second
	c.RequestTimeout = 30 * time.Second
	c.Workers = 4
	c.KeyCacheTTL = 5 * time.Minute
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
