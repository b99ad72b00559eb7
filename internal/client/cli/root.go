package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the indexcp command tree bound to one App.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "indexcp",
		Short: "Resumable encrypted file uploads",
		Long: `indexcp buffers files into a local chunk queue and uploads them to a
receiver over HTTP. Uploads are encrypted end-to-end and resume from the
receiver's record of accepted chunks after an interruption.`,
		SilenceUsage: true,
	}

	// Config flags are consumed by the config package before the app is
	// built; they are declared here so cobra accepts them on the command line.
	pf := root.PersistentFlags()
	pf.StringP("server-addr", "a", "", "receiver base URL")
	pf.StringP("buffer-dir", "b", "", "buffer database directory")
	pf.IntP("chunk-size", "z", 0, "chunk size in bytes")
	pf.Uint64P("retries", "r", 0, "transmission attempts per chunk")
	pf.IntP("workers", "w", 0, "chunks in flight per file")
	pf.IntP("timeout", "t", 0, "request timeout in seconds")
	pf.StringP("config", "c", "", "path to JSON config file")

	root.AddCommand(
		newAddCmd(app),
		newSendCmd(app),
		newStatusCmd(app),
		newClearCmd(app),
	)

	return root
}

// Execute runs the command tree and returns its error for main to report.
func Execute(ctx context.Context, app *App) error {
	return NewRootCmd(app).ExecuteContext(ctx)
}
