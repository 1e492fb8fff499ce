package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSweepCommand creates the sweep command: one manual reconciliation
// pass, useful after editing the store out-of-band.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one reconciliation pass over tables and orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rootOpts.openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			// A manual sweep always does the full pass; the dirty-set
			// optimization only matters on the periodic loop.
			app.tables.ForceResync()
			if err := app.tables.Sweep(cmd.Context()); err != nil {
				return err
			}

			sessions, err := app.tables.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sweep complete")
			return printSessions(cmd.OutOrStdout(), rootOpts.Format, sessions)
		},
	}
}
