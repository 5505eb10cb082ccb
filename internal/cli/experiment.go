package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"labcore/internal/core"
	"labcore/internal/indicators"
	"labcore/pkg/domain"
)

func newExperimentCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "experiment",
		Short: "Execute recipes and browse the experiment history",
	}
	cmd.AddCommand(newExperimentRunCommand(opts))
	cmd.AddCommand(newExperimentListCommand(opts))
	cmd.AddCommand(newExperimentShowCommand(opts))
	return cmd
}

// parseMeasurements turns key=value pairs into numeric measurements.
func parseMeasurements(pairs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, domain.ValidationError{Field: "measure", Value: pair, Reason: "expected key=value"}
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, domain.ValidationError{Field: "measure", Value: pair, Reason: "value is not a number"}
		}
		key = strings.TrimSpace(key)
		if _, dup := out[key]; dup {
			return nil, domain.ValidationError{Field: "measure", Value: pair, Reason: "repeats an earlier key"}
		}
		out[key] = v
	}
	return out, nil
}

func newExperimentRunCommand(opts *RootOptions) *cobra.Command {
	var (
		people   []string
		measures []string
		notes    string
	)
	cmd := &cobra.Command{
		Use:   "run <recipe>",
		Short: "Execute a recipe against the ledger and record the run",
		Example: `  labcore experiment run "Acid-Base Titration" --by "Dr. Garcia" \
    --measure final_pH=7.02 --measure volume_used=24.8`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			measurements, err := parseMeasurements(measures)
			if err != nil {
				return err
			}
			req := core.ExecutionRequest{RecipeName: args[0], ResponsiblePeople: people, Measurements: measurements, Notes: notes}
			return withApp(cmd, opts, func(a *app, p printer) error {
				summary, res, err := a.svc.ExecuteExperiment(cmd.Context(), req)
				if err != nil {
					return err
				}
				out := map[string]any{
					"success":     summary.Success,
					"validations": summary.Validations,
					"cost":        summary.Cost,
					"record_id":   summary.RecordID,
					"warnings":    nonNil(res.Warnings()),
				}
				return p.emit(out, func(w io.Writer) {
					outcome := "succeeded"
					if !summary.Success {
						outcome = "failed validation"
					}
					fmt.Fprintf(w, "experiment %s %s\n", summary.RecordID, outcome)
					fmt.Fprintf(w, "cost\t%s\n", summary.Cost.StringFixed(2))
					for _, key := range sortedKeys(summary.Validations) {
						fmt.Fprintf(w, "%s\t%s\n", key, passLabel(summary.Validations[key]))
					}
					printWarnings(w, res)
				})
			})
		},
	}
	cmd.Flags().StringArrayVar(&people, "by", nil, "responsible researcher (repeatable)")
	cmd.Flags().StringArrayVar(&measures, "measure", nil, "measurement as key=value (repeatable)")
	cmd.Flags().StringVar(&notes, "notes", "", "free text notes")
	return cmd
}

func passLabel(ok bool) string {
	if ok {
		return "pass"
	}
	return "fail"
}

func newExperimentListCommand(opts *RootOptions) *cobra.Command {
	var recipe, researcher, from, to string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded experiments in execution order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := core.ExperimentFilter{Recipe: recipe, Researcher: researcher}
			if from != "" {
				t, err := domain.ValidateDateFormat("from", from)
				if err != nil {
					return err
				}
				filter.From = t
			}
			if to != "" {
				t, err := domain.ValidateDateFormat("to", to)
				if err != nil {
					return err
				}
				filter.To = t.Add(24*time.Hour - time.Nanosecond)
			}
			return withApp(cmd, opts, func(a *app, p printer) error {
				exps := a.svc.ListExperiments(filter)
				return p.emit(map[string]any{"experiments": nonNil(exps)}, func(w io.Writer) {
					fmt.Fprintln(w, "ID\tRECIPE\tWHEN\tBY\tSUCCESS\tCOST")
					for _, e := range exps {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n", e.ID, e.RecipeName, e.Timestamp.Format(time.DateTime), strings.Join(e.ResponsiblePeople, ", "), e.Success, e.TotalCost.StringFixed(2))
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&recipe, "recipe", "", "only runs of this recipe")
	cmd.Flags().StringVar(&researcher, "researcher", "", "only runs involving this researcher")
	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day (YYYY-MM-DD), inclusive")
	return cmd
}

func newExperimentShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one experiment record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app, p printer) error {
				e, err := a.svc.GetExperiment(args[0])
				if err != nil {
					return err
				}
				return p.emit(map[string]any{"experiment": e}, func(w io.Writer) {
					fmt.Fprintf(w, "id\t%s\n", e.ID)
					fmt.Fprintf(w, "recipe\t%s\n", e.RecipeName)
					fmt.Fprintf(w, "when\t%s\n", e.Timestamp.Format(time.DateTime))
					fmt.Fprintf(w, "by\t%s\n", strings.Join(e.ResponsiblePeople, ", "))
					fmt.Fprintf(w, "success\t%t\n", e.Success)
					fmt.Fprintf(w, "cost\t%s\n", e.TotalCost.StringFixed(2))
					for _, key := range sortedKeys(e.Validations) {
						value := "missing"
						if m, ok := e.Measurements[key]; ok {
							value = strconv.FormatFloat(m, 'g', -1, 64)
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%+.2f%%\n", key, value, passLabel(e.Validations[key]), e.Deviations[key])
					}
					for _, c := range e.Consumed {
						fmt.Fprintf(w, "used\t%s\t%s\t%s\n", c.Reagent, c.Quantity, c.Cost.StringFixed(2))
					}
					if e.Notes != "" {
						fmt.Fprintf(w, "notes\t%s\n", e.Notes)
					}
				})
			})
		},
	}
}

func newIndicatorsCommand(opts *RootOptions) *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "indicators",
		Short: "Compute efficiency, quality, safety and productivity indicators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app, p printer) error {
				at, err := resolveAsOf(a, asOf)
				if err != nil {
					return err
				}
				rep := indicators.New(a.svc.Store()).Report(at)
				return p.emit(rep, func(w io.Writer) {
					e, q, s, pr := rep.Efficiency, rep.Quality, rep.Safety, rep.Productivity
					fmt.Fprintf(w, "experiments\t%d\n", e.TotalExperiments)
					fmt.Fprintf(w, "success rate\t%.1f%%\n", e.SuccessRate)
					fmt.Fprintf(w, "total cost\t%s\n", e.TotalCost.StringFixed(2))
					fmt.Fprintf(w, "cost avg/median/sd\t%.2f / %.2f / %.2f\n", e.AverageCost, e.MedianCost, e.CostStdDev)
					fmt.Fprintf(w, "stock value\t%s\n", e.TotalStockValue.StringFixed(2))
					fmt.Fprintf(w, "compliance\t%.1f%%\n", q.Compliance)
					for _, key := range sortedKeys(q.PassRate) {
						fmt.Fprintf(w, "pass rate %s\t%.1f%%\n", key, q.PassRate[key])
					}
					fmt.Fprintf(w, "expired\t%d of %d\n", s.ExpiredCount, s.ReagentCount)
					fmt.Fprintf(w, "low stock\t%d\n", s.LowStockCount)
					if len(s.CriticalReagents) > 0 {
						fmt.Fprintf(w, "critical\t%s\n", strings.Join(s.CriticalReagents, ", "))
					}
					fmt.Fprintf(w, "active days\t%d\n", pr.ActiveDays)
					for _, person := range sortedKeys(pr.ExperimentsPerResearcher) {
						fmt.Fprintf(w, "researcher %s\t%d runs, %.1f%% success\n", person, pr.ExperimentsPerResearcher[person], pr.ResearcherSuccessRate[person])
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "reference date (YYYY-MM-DD), default today")
	return cmd
}
