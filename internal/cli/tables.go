package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// TablesOptions holds flags shared by the tables subcommands.
type TablesOptions struct {
	*RootOptions
	Count int
	Name  string
	At    string
	Notes string
}

// NewTablesCommand creates the tables command group.
func NewTablesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TablesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Inspect and manage table sessions",
	}
	cmd.AddCommand(newTablesListCommand(opts))
	cmd.AddCommand(newTablesProvisionCommand(opts))
	cmd.AddCommand(newTablesReserveCommand(opts))
	cmd.AddCommand(newTablesCleanCommand(opts))
	cmd.AddCommand(newTablesFreeCommand(opts))
	return cmd
}

func newTablesListCommand(opts *TablesOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every table with its occupancy state",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			sessions, err := app.tables.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			return printSessions(cmd.OutOrStdout(), opts.Format, sessions)
		},
	}
}

func newTablesProvisionCommand(opts *TablesOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Provision tables 1..N and materialize their sessions",
		Long: `Provision tables 1..N: write the QR registry entries for this
restaurant and create an available session row per table. Idempotent;
existing tables keep their state and nothing is removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}

			app, err := opts.openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			numbers := make([]int, opts.Count)
			for i := range numbers {
				numbers[i] = i + 1
			}
			if _, err := app.registry.Provision(cmd.Context(), opts.cfg.RestaurantID, opts.cfg.BaseURL, numbers); err != nil {
				return err
			}
			if err := app.tables.MaterializeProvisioned(cmd.Context(), opts.cfg.RestaurantID); err != nil {
				return err
			}

			sessions, err := app.tables.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			return printSessions(cmd.OutOrStdout(), opts.Format, sessions)
		},
	}
	cmd.Flags().IntVar(&opts.Count, "count", 0, "number of tables (required)")
	cmd.MarkFlagRequired("count")
	return cmd
}

func newTablesReserveCommand(opts *TablesOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reserve <table>",
		Short: "Reserve an available table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid table number %q", args[0])
			}
			at := time.Now()
			if opts.At != "" {
				at, err = time.Parse(time.RFC3339, opts.At)
				if err != nil {
					return fmt.Errorf("invalid --time (want RFC3339): %w", err)
				}
			}

			app, err := opts.openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.tables.Reserve(cmd.Context(), table, opts.Name, at, opts.Notes); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "table %d reserved for %s\n", table, opts.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "customer name (required)")
	cmd.Flags().StringVar(&opts.At, "time", "", "reservation time, RFC3339 (default now)")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "reservation notes")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newTablesCleanCommand(opts *TablesOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clean <table>",
		Short: "Mark a bussed table clean and available",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid table number %q", args[0])
			}

			app, err := opts.openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.tables.MarkClean(cmd.Context(), table); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "table %d available\n", table)
			return nil
		},
	}
}

func newTablesFreeCommand(opts *TablesOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "free <table>",
		Short: "Force-free a table (staff override, closes its open order)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid table number %q", args[0])
			}

			app, err := opts.openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.tables.MarkAvailable(cmd.Context(), table); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "table %d force-freed\n", table)
			return nil
		},
	}
}
