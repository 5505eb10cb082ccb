package cli

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"labcore/pkg/domain"
)

func newInventoryCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Query stock levels, expirations and usage",
	}
	cmd.AddCommand(newInventoryLowCommand(opts))
	cmd.AddCommand(newInventoryExpiredCommand(opts))
	cmd.AddCommand(newInventoryAlertsCommand(opts))
	cmd.AddCommand(newInventoryReportCommand(opts))
	cmd.AddCommand(newInventoryUsageCommand(opts))
	return cmd
}

// resolveAsOf parses an optional YYYY-MM-DD flag value, defaulting to the
// service clock.
func resolveAsOf(a *app, raw string) (time.Time, error) {
	if raw == "" {
		return a.svc.Now(), nil
	}
	return domain.ValidateDateFormat("as-of", raw)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(domain.DateLayout)
}

func newInventoryLowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "low",
		Short: "List reagents strictly below their minimum threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app, p printer) error {
				low := slices.Collect(a.svc.BelowThreshold())
				return p.emit(map[string]any{"reagents": nonNil(low)}, func(w io.Writer) {
					printReagentTable(w, low)
				})
			})
		},
	}
}

func newInventoryExpiredCommand(opts *RootOptions) *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "expired",
		Short: "List reagents whose expiration date has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app, p printer) error {
				at, err := resolveAsOf(a, asOf)
				if err != nil {
					return err
				}
				expired := slices.Collect(a.svc.Expired(at))
				return p.emit(map[string]any{"as_of": at.Format(domain.DateLayout), "reagents": nonNil(expired)}, func(w io.Writer) {
					printReagentTable(w, expired)
				})
			})
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "reference date (YYYY-MM-DD), default today")
	return cmd
}

func newInventoryAlertsCommand(opts *RootOptions) *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Show low stock and expiration alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app, p printer) error {
				at, err := resolveAsOf(a, asOf)
				if err != nil {
					return err
				}
				alerts := a.svc.Alerts(at)
				return p.emit(map[string]any{"alerts": nonNil(alerts)}, func(w io.Writer) {
					if len(alerts) == 0 {
						fmt.Fprintln(w, "no alerts")
						return
					}
					fmt.Fprintln(w, "KIND\tREAGENT\tON HAND\tMIN\tDAYS LEFT")
					for _, al := range alerts {
						days := "-"
						if al.DaysLeft != nil {
							days = fmt.Sprint(*al.DaysLeft)
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", al.Kind, al.Reagent, al.Quantity, al.Minimum, days)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "reference date (YYYY-MM-DD), default today")
	return cmd
}

func newInventoryReportCommand(opts *RootOptions) *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app, p printer) error {
				at, err := resolveAsOf(a, asOf)
				if err != nil {
					return err
				}
				rep := a.svc.InventoryReport(at)
				return p.emit(rep, func(w io.Writer) {
					fmt.Fprintf(w, "reagents\t%d\n", rep.ReagentCount)
					fmt.Fprintf(w, "total value\t%s\n", rep.TotalValue.StringFixed(2))
					fmt.Fprintf(w, "low stock\t%d\n", rep.LowStock)
					fmt.Fprintf(w, "expired\t%d\n", rep.Expired)
					fmt.Fprintf(w, "expiring soon\t%d\n", rep.ExpiringSoon)
					fmt.Fprintf(w, "pending orders\t%d\n", rep.PendingOrder)
					for _, cat := range sortedKeys(rep.Categories) {
						fmt.Fprintf(w, "category %s\t%d reagents, value %s\n", cat, rep.Categories[cat], rep.ValueByCat[cat].StringFixed(2))
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "reference date (YYYY-MM-DD), default today")
	return cmd
}

func newInventoryUsageCommand(opts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show the most consumed reagents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app, p printer) error {
				stats := a.svc.UsageStatistics(limit)
				return p.emit(map[string]any{"usage": nonNil(stats)}, func(w io.Writer) {
					fmt.Fprintln(w, "REAGENT\tUSED\tUSES")
					for _, s := range stats {
						fmt.Fprintf(w, "%s\t%s %s\t%d\n", s.Reagent, s.TotalUsed, s.Unit, s.Uses)
					}
				})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 5, "maximum rows, 0 for all")
	return cmd
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
