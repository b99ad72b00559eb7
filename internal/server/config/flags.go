package config

import (
	"flag"
	"os"
	"time"

	"github.com/indexcp/indexcp/internal/flagx"
)

// parseFlags populates selected receiver Config fields from command-line
// flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":3000")
//	-s string   upload API key
//	-k string   receiver keypair directory
//	-m string   ledger storage mode ("memory" or "postgres")
//	-d string   PostgreSQL DSN
//	-l string   blob store mode ("fs" or "s3")
//	-o string   output directory for assembled files
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-i int      idle-session eviction threshold, minutes
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in minutes and then converted
//     to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-s", "-k", "-m", "-d", "-l", "-o", "-u", "-p", "-b", "-g", "-e", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.APIKey, "s", config.APIKey, "upload API key")
	fs.StringVar(&config.KeyDir, "k", config.KeyDir, "receiver keypair directory")
	fs.StringVar(&config.StorageMode, "m", config.StorageMode, "ledger storage mode (memory or postgres)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.BlobMode, "l", config.BlobMode, "blob store mode (fs or s3)")
	fs.StringVar(&config.OutputDir, "o", config.OutputDir, "output directory for assembled files")

	sessionMaxIdle := fs.Int("i", int(config.SessionMaxIdle.Minutes()), "session_max_idle (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionMaxIdle = time.Duration(*sessionMaxIdle) * time.Minute
}
