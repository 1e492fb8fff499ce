// Package cli is the operational front end: cobra commands over the order
// engine and the table reconciler. All commands share one app wiring
// (store, dispatcher, engine, reconciler, analytics recorder) built from
// the loaded config.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nbekov/dinesync/internal/analytics"
	"github.com/nbekov/dinesync/internal/bus"
	"github.com/nbekov/dinesync/internal/clock"
	"github.com/nbekov/dinesync/internal/config"
	"github.com/nbekov/dinesync/internal/order"
	"github.com/nbekov/dinesync/internal/qrprov"
	"github.com/nbekov/dinesync/internal/record"
	"github.com/nbekov/dinesync/internal/tables"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "json" | "text"

	cfg config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the dinesync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dinesync",
		Short: "Restaurant order lifecycle and table-session engine",
		Long: `dinesync keeps a restaurant's orders and table occupancy in sync:
an order lifecycle state machine, a table-session reconciler with
periodic repair sweeps, and a local document store underneath.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg

			level := cfg.SlogLevel()
			if opts.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to config file (YAML)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewOrdersCommand(opts))
	cmd.AddCommand(NewTablesCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// app bundles the wired components behind every command.
type app struct {
	cfg        config.Config
	store      record.Store
	dispatcher *bus.Dispatcher
	orders     *order.Engine
	tables     *tables.Reconciler
	registry   *qrprov.Registry
}

// openApp opens the store and wires the dispatcher, engine, reconciler and
// analytics recorder. The store's change notifications are bridged onto
// the dispatcher as store.changed events.
func (o *RootOptions) openApp() (*app, error) {
	store, err := record.OpenSQLite(o.cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", o.cfg.StorePath, err)
	}

	dispatcher := bus.NewDispatcher()
	store.Watch(func(key string) {
		dispatcher.Publish(bus.StoreChanged{Key: key})
	})

	engine := order.NewEngine(store, dispatcher)
	reconciler := tables.NewReconciler(store, engine, dispatcher,
		tables.WithSweepInterval(o.cfg.SweepInterval.Std()),
		tables.WithStaleOrderAge(o.cfg.StaleOrderAge.Std()),
		tables.WithFullResyncEvery(o.cfg.FullResyncEvery),
	)
	analytics.NewRecorder(store, engine, dispatcher, clock.System{})

	return &app{
		cfg:        o.cfg,
		store:      store,
		dispatcher: dispatcher,
		orders:     engine,
		tables:     reconciler,
		registry:   qrprov.NewRegistry(store),
	}, nil
}

// Close tears the app down: dispatcher first so no handler sees a closed
// store.
func (a *app) Close() {
	a.dispatcher.Close()
	if err := a.store.Close(); err != nil {
		slog.Warn("store close failed", "error", err)
	}
}
