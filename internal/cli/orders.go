package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nbekov/dinesync/internal/order"
)

// OrdersOptions holds flags shared by the orders subcommands.
type OrdersOptions struct {
	*RootOptions
	Table int
	Items []string
	Note  string
}

// NewOrdersCommand creates the orders command group.
func NewOrdersCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OrdersOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Place, advance and inspect orders",
	}
	cmd.AddCommand(newOrdersListCommand(opts))
	cmd.AddCommand(newOrdersShowCommand(opts))
	cmd.AddCommand(newOrdersPlaceCommand(opts))
	cmd.AddCommand(newOrdersAdvanceCommand(opts))
	cmd.AddCommand(newOrdersCancelCommand(opts))
	return cmd
}

func newOrdersListCommand(opts *OrdersOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List this restaurant's orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			orders, err := app.orders.ListByRestaurant(cmd.Context(), opts.cfg.RestaurantID)
			if err != nil {
				return err
			}
			return printOrders(cmd.OutOrStdout(), opts.Format, orders)
		},
	}
}

func newOrdersShowCommand(opts *OrdersOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <order-id>",
		Short: "Show one order with its status history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			o, err := app.orders.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printOrder(cmd.OutOrStdout(), opts.Format, o)
		},
	}
}

func newOrdersPlaceCommand(opts *OrdersOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "place",
		Short: "Place a new order for a table",
		Long: `Place a new order for a table.

Items are given as id:name:price:quantity, repeatable:

  dinesync orders place --table 2 \
      --item margherita:"Margherita":180:1 \
      --item cola:"Cola":60:2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := parseItems(opts.Items)
			if err != nil {
				return err
			}

			app, err := opts.openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			o, err := app.orders.PlaceOrder(cmd.Context(), opts.cfg.RestaurantID, opts.Table, items)
			if err != nil {
				return err
			}
			return printOrder(cmd.OutOrStdout(), opts.Format, o)
		},
	}
	cmd.Flags().IntVar(&opts.Table, "table", 0, "table number (required)")
	cmd.Flags().StringArrayVar(&opts.Items, "item", nil, "order line as id:name:price:quantity (repeatable)")
	cmd.MarkFlagRequired("table")
	cmd.MarkFlagRequired("item")
	return cmd
}

func newOrdersAdvanceCommand(opts *OrdersOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "advance <order-id> <status>",
		Short: "Transition an order to a new status",
		Long: `Transition an order to a new status.

Statuses follow the lifecycle PREPARING, READY, SERVED, BILL_REQUESTED,
FINISHED; skipping states is rejected.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			to := order.Status(strings.ToUpper(args[1]))
			o, err := app.orders.Transition(cmd.Context(), args[0], to, opts.Note)
			if err != nil {
				return err
			}
			return printOrder(cmd.OutOrStdout(), opts.Format, o)
		},
	}
	cmd.Flags().StringVar(&opts.Note, "note", "", "note recorded with the status change")
	return cmd
}

func newOrdersCancelCommand(opts *OrdersOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <order-id>",
		Short: "Cancel an order (legal before it is ready)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			o, err := app.orders.Transition(cmd.Context(), args[0], order.StatusCancelled, opts.Note)
			if err != nil {
				return err
			}
			return printOrder(cmd.OutOrStdout(), opts.Format, o)
		},
	}
	cmd.Flags().StringVar(&opts.Note, "note", "", "note recorded with the cancellation")
	return cmd
}

// parseItems converts id:name:price:quantity strings into order items.
func parseItems(raw []string) ([]order.Item, error) {
	var items []order.Item
	for _, r := range raw {
		parts := strings.Split(r, ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("invalid item %q: want id:name:price:quantity", r)
		}
		price, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid price in %q: %w", r, err)
		}
		qty, err := strconv.Atoi(parts[3])
		if err != nil || qty < 1 {
			return nil, fmt.Errorf("invalid quantity in %q", r)
		}
		items = append(items, order.Item{
			ItemID:    parts[0],
			Name:      parts[1],
			UnitPrice: price,
			Quantity:  qty,
			Kind:      "dish",
		})
	}
	return items, nil
}
