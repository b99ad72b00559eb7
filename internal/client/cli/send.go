package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSendCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "send [file-id]",
		Short: "Upload buffered files to the receiver",
		Long: `Upload buffered chunks to the receiver and finalize the transfer.
Without arguments every buffered file is sent; with a file id only that file.

Interrupted uploads are safe to re-run: the receiver reports which chunks it
already holds and only the missing ones are retransmitted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if len(args) == 1 {
				if err := app.uploader.Upload(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Upload of %s complete\n", args[0])
				return nil
			}

			if err := app.uploader.SendAll(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All buffered files uploaded")
			return nil
		},
	}
}
