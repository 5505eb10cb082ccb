package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"labcore/internal/catalog"
	"labcore/internal/labdoc"
)

func newCatalogCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Bulk-register reagents and recipes",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Register every reagent and recipe in a YAML or JSON catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "open catalog", err)
			}
			defer f.Close()
			c, err := catalog.Parse(f)
			if err != nil {
				return WrapExitError(ExitCommandError, "read catalog", err)
			}
			return applyCatalog(cmd, opts, c)
		},
	})
	return cmd
}

func newDemoCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Seed the ledger with demo reagents and recipes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := catalog.Demo()
			if err != nil {
				return err
			}
			return applyCatalog(cmd, opts, c)
		},
	}
}

func applyCatalog(cmd *cobra.Command, opts *RootOptions, c catalog.Catalog) error {
	return withApp(cmd, opts, func(a *app, p printer) error {
		sum, err := c.Apply(cmd.Context(), a.svc)
		if err != nil {
			return err
		}
		return p.emit(sum, func(w io.Writer) {
			fmt.Fprintf(w, "reagents registered\t%d\n", len(sum.Reagents))
			fmt.Fprintf(w, "recipes registered\t%d\n", len(sum.Recipes))
			fmt.Fprintf(w, "already present\t%d\n", len(sum.Skipped))
		})
	})
}

func newExportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write the full state as a JSON document (stdout when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app, _ printer) error {
				doc := labdoc.FromSnapshot(a.svc.ExportSnapshot(), a.svc.Now())
				if len(args) == 0 {
					return labdoc.Encode(cmd.OutOrStdout(), doc)
				}
				data, err := labdoc.Marshal(doc)
				if err != nil {
					return err
				}
				if err := os.WriteFile(args[0], data, 0o644); err != nil {
					return fmt.Errorf("write document: %w", err)
				}
				a.logger.Info("document exported", "path", args[0], "reagents", len(doc.Reagents), "experiments", len(doc.Experiments))
				return nil
			})
		},
	}
}

func newImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the full state with a JSON document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "open document", err)
			}
			defer f.Close()
			doc, err := labdoc.Decode(f)
			if err != nil {
				return WrapExitError(ExitCommandError, "read document", err)
			}
			return importDocument(cmd, opts, doc)
		},
	}
}

func importDocument(cmd *cobra.Command, opts *RootOptions, doc labdoc.Document) error {
	snap, err := doc.Snapshot()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid document", err)
	}
	return withApp(cmd, opts, func(a *app, p printer) error {
		if err := a.svc.ImportSnapshot(cmd.Context(), snap); err != nil {
			return err
		}
		counts := map[string]int{"reagents": len(snap.Reagents), "recipes": len(snap.Recipes), "experiments": len(snap.Experiments)}
		return p.emit(counts, func(w io.Writer) {
			fmt.Fprintf(w, "imported %d reagents, %d recipes, %d experiments\n", counts["reagents"], counts["recipes"], counts["experiments"])
		})
	})
}

func newArchiveCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Store state documents in the configured blob store",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "push",
		Short: "Archive the current state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app, p printer) error {
				archive, err := a.archive(cmd.Context())
				if err != nil {
					return err
				}
				info, err := archive.Save(cmd.Context(), labdoc.FromSnapshot(a.svc.ExportSnapshot(), a.svc.Now()))
				if err != nil {
					return err
				}
				return p.emit(info, func(w io.Writer) {
					fmt.Fprintf(w, "archived %s (%d bytes)\n", info.Key, info.Size)
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List archived documents, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app, p printer) error {
				archive, err := a.archive(cmd.Context())
				if err != nil {
					return err
				}
				infos, err := archive.List(cmd.Context())
				if err != nil {
					return err
				}
				return p.emit(map[string]any{"documents": nonNil(infos)}, func(w io.Writer) {
					fmt.Fprintln(w, "KEY\tSIZE\tREAGENTS\tEXPERIMENTS")
					for _, info := range infos {
						fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", info.Key, info.Size, info.Metadata["reagents"], info.Metadata["experiments"])
					}
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "pull [key]",
		Short: "Restore an archived document (the latest when no key is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc labdoc.Document
			err := withApp(cmd, opts, func(a *app, _ printer) error {
				archive, err := a.archive(cmd.Context())
				if err != nil {
					return err
				}
				if len(args) == 1 {
					doc, err = archive.Load(cmd.Context(), args[0])
				} else {
					doc, _, err = archive.Latest(cmd.Context())
				}
				return err
			})
			if errors.Is(err, labdoc.ErrEmptyArchive) {
				return WrapExitError(ExitFailure, "nothing to restore", err)
			}
			if err != nil {
				return err
			}
			return importDocument(cmd, opts, doc)
		},
	})

	var keep int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest archived documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app, p printer) error {
				archive, err := a.archive(cmd.Context())
				if err != nil {
					return err
				}
				removed, err := archive.Prune(cmd.Context(), keep)
				if err != nil {
					return err
				}
				return p.emit(map[string]any{"removed": removed}, func(w io.Writer) {
					fmt.Fprintf(w, "removed %d documents\n", removed)
				})
			})
		},
	}
	prune.Flags().IntVar(&keep, "keep", 10, "documents to keep")
	cmd.AddCommand(prune)

	return cmd
}
