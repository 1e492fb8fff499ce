package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/nbekov/dinesync/internal/order"
	"github.com/nbekov/dinesync/internal/tables"
)

// moneyPrinter renders amounts with locale-aware digit grouping.
var moneyPrinter = message.NewPrinter(language.English)

// formatMoney renders a money amount for text output.
func formatMoney(v float64) string {
	return moneyPrinter.Sprintf("$%.2f", v)
}

// writeJSON emits any payload as indented JSON for --format json.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printOrders renders an order list in the configured format.
func printOrders(w io.Writer, format string, orders []order.Order) error {
	if format == "json" {
		return writeJSON(w, orders)
	}
	if len(orders) == 0 {
		fmt.Fprintln(w, "no orders")
		return nil
	}
	for _, o := range orders {
		fmt.Fprintf(w, "%s  table %d  %-14s  %s  (%d items)\n",
			o.ID, o.TableNumber, o.Status, formatMoney(o.Total), len(o.Items))
	}
	return nil
}

// printOrder renders one order with its history.
func printOrder(w io.Writer, format string, o order.Order) error {
	if format == "json" {
		return writeJSON(w, o)
	}
	fmt.Fprintf(w, "Order %s (table %d, %s)\n", o.ID, o.TableNumber, o.RestaurantID)
	for _, it := range o.Items {
		fmt.Fprintf(w, "  %dx %-24s %s\n", it.Quantity, it.Name, formatMoney(it.UnitPrice*float64(it.Quantity)))
	}
	fmt.Fprintf(w, "  subtotal %s  tax %s  total %s\n",
		formatMoney(o.Subtotal), formatMoney(o.TaxAmount), formatMoney(o.Total))
	fmt.Fprintf(w, "  status: %s\n", o.Status)
	for _, h := range o.StatusHistory {
		fmt.Fprintf(w, "    %s  %-14s  %s\n", h.Timestamp.Format("15:04:05"), h.Status, h.Note)
	}
	return nil
}

// printSessions renders the table overview.
func printSessions(w io.Writer, format string, sessions []tables.Session) error {
	if format == "json" {
		return writeJSON(w, sessions)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w, "no tables provisioned")
		return nil
	}
	for _, s := range sessions {
		line := fmt.Sprintf("table %2d  %-14s  customers=%d  revenue=%s",
			s.TableNumber, s.Status, s.Customers, formatMoney(s.Revenue))
		if s.CurrentOrder != nil {
			line += "  order=" + *s.CurrentOrder
		}
		if s.Status == tables.StatusReserved && s.ReservedBy != "" {
			line += "  reserved_by=" + s.ReservedBy
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
