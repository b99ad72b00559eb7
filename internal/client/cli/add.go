package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAddCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "add <file>",
		Short: "Buffer a file into the local chunk queue",
		Long: `Split a file into fixed-size chunks and buffer them in the local queue.
Re-adding a file replaces its previously buffered chunks.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID, n, err := app.buffer.AddFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Buffered %s: %d chunks\n", fileID, n)
			return nil
		},
	}
}
