package config

import (
	"flag"
	"os"
	"time"

	"github.com/indexcp/indexcp/internal/flagx"
)

// parseFlags populates selected client Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   receiver base URL (e.g., "http://127.0.0.1:3000")
//	-b string   buffer database directory
//	-z int      chunk size in bytes
//	-r int      transmission attempts per chunk
//	-w int      chunks in flight per file
//	-t int      per-request timeout, seconds
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - The timeout flag is accepted as an integer in seconds and then converted
//     to a time.Duration value.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-b", "-z", "-r", "-w", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.ServerEndpointAddr, "a", config.ServerEndpointAddr, "receiver base URL")
	fs.StringVar(&config.BufferDir, "b", config.BufferDir, "buffer database directory")
	fs.IntVar(&config.ChunkSize, "z", config.ChunkSize, "chunk size in bytes")
	fs.Uint64Var(&config.MaxAttempts, "r", config.MaxAttempts, "transmission attempts per chunk")
	fs.IntVar(&config.Workers, "w", config.Workers, "chunks in flight per file")

	requestTimeout := fs.Int("t", int(config.RequestTimeout.Seconds()), "request_timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.RequestTimeout = time.Duration(*requestTimeout) * time.Second
}
