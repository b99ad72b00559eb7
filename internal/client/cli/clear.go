package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every buffered chunk",
		Long: `Remove all chunks from the local buffer, including pending ones.
Chunks already accepted by the receiver are unaffected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.buffer.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Buffer cleared")
			return nil
		},
	}
}
