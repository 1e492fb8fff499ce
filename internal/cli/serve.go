package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command: materialize provisioned
// tables, then run the reconciler's sweep loop until interrupted.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the table-session reconciler until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rootOpts.openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := app.tables.MaterializeProvisioned(ctx, rootOpts.cfg.RestaurantID); err != nil {
				return err
			}

			if err := app.tables.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
