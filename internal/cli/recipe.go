package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"labcore/internal/catalog"
)

func newRecipeCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipe",
		Short: "Define recipes and check what they need",
	}
	cmd.AddCommand(newRecipeAddCommand(opts))
	cmd.AddCommand(newRecipeListCommand(opts))
	cmd.AddCommand(newRecipeShowCommand(opts))
	cmd.AddCommand(newRecipeCostCommand(opts))
	cmd.AddCommand(newRecipeCheckCommand(opts))
	return cmd
}

func readRecipeSpec(path string) (catalog.RecipeSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return catalog.RecipeSpec{}, WrapExitError(ExitCommandError, "open recipe file", err)
	}
	defer f.Close()
	var spec catalog.RecipeSpec
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return catalog.RecipeSpec{}, WrapExitError(ExitCommandError, "parse recipe file", err)
	}
	return spec, nil
}

func newRecipeAddCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <file>",
		Short: "Register a recipe from a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := readRecipeSpec(args[0])
			if err != nil {
				return err
			}
			recipe, err := spec.Recipe()
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(a *app, p printer) error {
				created, _, err := a.svc.CreateRecipe(cmd.Context(), recipe)
				if err != nil {
					return err
				}
				return p.emit(map[string]any{"recipe": created}, func(w io.Writer) {
					fmt.Fprintf(w, "registered recipe %s (%d reagents)\n", created.Name, len(created.RequiredReagents))
				})
			})
		},
	}
}

func newRecipeListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recipes by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app, p printer) error {
				recipes := a.svc.ListRecipes()
				return p.emit(map[string]any{"recipes": recipes}, func(w io.Writer) {
					fmt.Fprintln(w, "NAME\tREAGENTS\tOBJECTIVE")
					for _, r := range recipes {
						fmt.Fprintf(w, "%s\t%d\t%s\n", r.Name, len(r.RequiredReagents), r.Objective)
					}
				})
			})
		},
	}
}

func newRecipeShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app, p printer) error {
				r, err := a.svc.GetRecipe(args[0])
				if err != nil {
					return err
				}
				return p.emit(map[string]any{"recipe": r}, func(w io.Writer) {
					fmt.Fprintf(w, "name\t%s\n", r.Name)
					fmt.Fprintf(w, "objective\t%s\n", r.Objective)
					for _, req := range r.RequiredReagents {
						fmt.Fprintf(w, "needs\t%s\t%s\n", req.Reagent, req.Quantity)
					}
					for _, key := range sortedKeys(r.ExpectedResults) {
						fmt.Fprintf(w, "expects\t%s\t%s\n", key, r.ExpectedResults[key])
					}
					for i, step := range r.Procedure {
						fmt.Fprintf(w, "step %d\t%s\n", i+1, step)
					}
				})
			})
		},
	}
}

func newRecipeCostCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cost <name>",
		Short: "Estimate the reagent cost of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app, p printer) error {
				cost, err := a.svc.EstimateRecipeCost(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return p.emit(map[string]any{"recipe": args[0], "cost": cost}, func(w io.Writer) {
					fmt.Fprintf(w, "%s: %s\n", args[0], cost.StringFixed(2))
				})
			})
		},
	}
}

func newRecipeCheckCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <name>",
		Short: "Check whether a recipe can run with current stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app, p printer) error {
				blocking, err := a.svc.CheckRecipeFeasibility(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return p.emit(map[string]any{"recipe": args[0], "feasible": len(blocking) == 0, "blocking": nonNil(blocking)}, func(w io.Writer) {
					if len(blocking) == 0 {
						fmt.Fprintf(w, "%s can run\n", args[0])
						return
					}
					fmt.Fprintf(w, "%s is blocked\n", args[0])
					fmt.Fprintln(w, "REAGENT\tREQUIRED\tAVAILABLE\tREASONS")
					for _, b := range blocking {
						reasons := make([]string, len(b.Reasons))
						for i, r := range b.Reasons {
							reasons[i] = string(r)
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.Reagent, b.Required, b.Available, strings.Join(reasons, ","))
					}
				})
			})
		},
	}
}
