package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status <file-id>",
		Short: "Show transfer progress for a buffered file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fileID := args[0]

			total, err := app.buffer.Count(ctx, fileID)
			if err != nil {
				return err
			}

			received, err := app.client.Status(ctx, fileID)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d buffered locally, %d accepted by receiver\n",
				fileID, total, len(received))
			return nil
		},
	}
}
