package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"labcore/internal/catalog"
	"labcore/internal/core"
	"labcore/pkg/domain"
)

func newReagentCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reagent",
		Short: "Register, consume and restock reagents",
	}
	cmd.AddCommand(newReagentAddCommand(opts))
	cmd.AddCommand(newReagentListCommand(opts))
	cmd.AddCommand(newReagentShowCommand(opts))
	cmd.AddCommand(newReagentConsumeCommand(opts))
	cmd.AddCommand(newReagentReplenishCommand(opts))
	cmd.AddCommand(newReagentOrderCommand(opts))
	cmd.AddCommand(newReagentReceiveCommand(opts))
	return cmd
}

type reagentAddOptions struct {
	spec          catalog.ReagentSpec
	unitCost      string
	quantity      string
	minimum       string
	expiresInDays int
}

func newReagentAddCommand(opts *RootOptions) *cobra.Command {
	add := &reagentAddOptions{}
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a new reagent",
		Example: `  labcore reagent add Ethanol --category solvent --unit mL \
    --unit-cost 0.08 --quantity 2500 --min 500 --expires 2026-12-31`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := add.spec
			spec.Name = args[0]
			spec.UnitCost = json.Number(add.unitCost)
			spec.Quantity = json.Number(add.quantity)
			spec.MinimumThreshold = json.Number(add.minimum)
			if cmd.Flags().Changed("expires-in") {
				spec.ExpiresInDays = &add.expiresInDays
			}
			return withApp(cmd, opts, func(a *app, p printer) error {
				reagent, err := spec.Reagent(a.svc.Now())
				if err != nil {
					return err
				}
				created, res, err := a.svc.RegisterReagent(cmd.Context(), reagent)
				if err != nil {
					return err
				}
				return p.emit(map[string]any{"reagent": created, "warnings": res.Warnings()}, func(w io.Writer) {
					fmt.Fprintf(w, "registered %s: %s %s\n", created.Name, created.QuantityOnHand, created.Unit)
					printWarnings(w, res)
				})
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&add.spec.Category, "category", "", "reagent category")
	f.StringVar(&add.spec.Unit, "unit", "", "unit of measure")
	f.StringVar(&add.spec.Description, "description", "", "free text description")
	f.StringVar(&add.unitCost, "unit-cost", "", "cost per unit")
	f.StringVar(&add.quantity, "quantity", "", "initial quantity on hand")
	f.StringVar(&add.minimum, "min", "", "minimum stock threshold")
	f.StringVar(&add.spec.ExpirationDate, "expires", "", "expiration date (YYYY-MM-DD)")
	f.IntVar(&add.expiresInDays, "expires-in", 0, "expiration in days from today")
	f.StringVar(&add.spec.StorageLocation, "location", "", "storage location")
	f.StringToStringVar(&add.spec.SafetyInfo, "safety", nil, "safety notes as key=value")
	return cmd
}

func newReagentListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List reagents by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app, p printer) error {
				reagents := a.svc.ListReagents()
				return p.emit(map[string]any{"reagents": reagents}, func(w io.Writer) {
					printReagentTable(w, reagents)
				})
			})
		},
	}
}

func newReagentShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show one reagent with its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app, p printer) error {
				r, err := a.svc.GetReagent(args[0])
				if err != nil {
					return err
				}
				return p.emit(map[string]any{"reagent": r}, func(w io.Writer) {
					fmt.Fprintf(w, "name\t%s\n", r.Name)
					fmt.Fprintf(w, "category\t%s\n", r.Category)
					fmt.Fprintf(w, "on hand\t%s %s\n", r.QuantityOnHand, r.Unit)
					fmt.Fprintf(w, "minimum\t%s %s\n", r.MinimumThreshold, r.Unit)
					fmt.Fprintf(w, "unit cost\t%s\n", r.UnitCost)
					fmt.Fprintf(w, "stock value\t%s\n", r.StockValue())
					fmt.Fprintf(w, "expires\t%s\n", formatDate(r.ExpirationDate))
					fmt.Fprintf(w, "location\t%s\n", r.StorageLocation)
					for _, m := range r.UsageHistory {
						fmt.Fprintf(w, "used\t%s %s\t%s\t%s\n", m.Quantity, r.Unit, m.At.Format(domain.DateLayout), m.Reason)
					}
					for _, m := range r.PurchaseHistory {
						fmt.Fprintf(w, "bought\t%s %s\t%s\t%s\n", m.Quantity, r.Unit, m.At.Format(domain.DateLayout), m.Supplier)
					}
					for _, o := range r.PendingOrders {
						fmt.Fprintf(w, "order\t%s\t%s %s\t%s\n", o.ID, o.Quantity, r.Unit, o.Status)
					}
				})
			})
		},
	}
}

func parseQuantity(raw string) (decimal.Decimal, error) {
	return domain.ValidatePositiveNumber("quantity", raw)
}

func newReagentConsumeCommand(opts *RootOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "consume <name> <quantity>",
		Short: "Draw stock outside of an experiment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := parseQuantity(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(a *app, p printer) error {
				r, res, err := a.svc.ConsumeReagent(cmd.Context(), args[0], qty, reason)
				if err != nil {
					return err
				}
				return p.emit(map[string]any{"reagent": r, "warnings": res.Warnings()}, func(w io.Writer) {
					fmt.Fprintf(w, "%s: %s %s left\n", r.Name, r.QuantityOnHand, r.Unit)
					printWarnings(w, res)
				})
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "manual", "reason recorded in the usage history")
	return cmd
}

func newReagentReplenishCommand(opts *RootOptions) *cobra.Command {
	var supplier, reason string
	cmd := &cobra.Command{
		Use:   "replenish <name> <quantity>",
		Short: "Add stock and record the purchase",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := parseQuantity(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(a *app, p printer) error {
				r, _, err := a.svc.ReplenishReagent(cmd.Context(), args[0], qty, domain.PurchaseInfo{Supplier: supplier, Reason: reason})
				if err != nil {
					return err
				}
				return p.emit(map[string]any{"reagent": r}, func(w io.Writer) {
					fmt.Fprintf(w, "%s: %s %s on hand\n", r.Name, r.QuantityOnHand, r.Unit)
				})
			})
		},
	}
	cmd.Flags().StringVar(&supplier, "supplier", "", "supplier name")
	cmd.Flags().StringVar(&reason, "reason", "purchase", "reason recorded in the purchase history")
	return cmd
}

func newReagentOrderCommand(opts *RootOptions) *cobra.Command {
	var supplier string
	cmd := &cobra.Command{
		Use:   "order <name> <quantity>",
		Short: "Place a pending order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := parseQuantity(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(a *app, p printer) error {
				order, _, err := a.svc.PlaceOrder(cmd.Context(), args[0], qty, supplier)
				if err != nil {
					return err
				}
				return p.emit(map[string]any{"order": order}, func(w io.Writer) {
					fmt.Fprintf(w, "order %s placed with %s, expected %s\n", order.ID, order.Supplier, order.ExpectedDelivery.Format(domain.DateLayout))
				})
			})
		},
	}
	cmd.Flags().StringVar(&supplier, "supplier", "", "supplier name")
	return cmd
}

func newReagentReceiveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "receive <order-id>",
		Short: "Receive a pending order into stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app, p printer) error {
				r, _, err := a.svc.ReceiveOrder(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return p.emit(map[string]any{"reagent": r}, func(w io.Writer) {
					fmt.Fprintf(w, "%s: %s %s on hand\n", r.Name, r.QuantityOnHand, r.Unit)
				})
			})
		},
	}
}

func printReagentTable(w io.Writer, reagents []core.Reagent) {
	fmt.Fprintln(w, "NAME\tCATEGORY\tON HAND\tMIN\tEXPIRES\tLOCATION")
	for _, r := range reagents {
		fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\t%s\t%s\n", r.Name, r.Category, r.QuantityOnHand, r.Unit, r.MinimumThreshold, formatDate(r.ExpirationDate), r.StorageLocation)
	}
}

func printWarnings(w io.Writer, res core.Result) {
	for _, v := range res.Warnings() {
		fmt.Fprintf(w, "warning: %s\n", v.Message)
	}
}
