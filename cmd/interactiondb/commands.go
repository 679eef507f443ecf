package main

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"interactiondb/internal/importer"
	"interactiondb/pkg/domain"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the storage schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, false, func(a *app) error {
				a.logger.Info().Str("driver", a.cfg.Storage.Driver).Msg("storage schema up to date")
				return nil
			})
		},
	}
}

func newImportCmd() *cobra.Command {
	var interactive bool
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import newline delimited JSON records",
		Long:  "Import reads one JSON record per line from file, or from stdin when file is omitted or \"-\".",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" || path == "-" {
				if interactive && cmd.Flags().Changed("interactive") {
					return errors.New("interactive conflict resolution needs records from a file")
				}
				interactive = false
			}
			return withApp(cmd, interactive, func(a *app) error {
				in, err := openInput(cmd, path)
				if err != nil {
					return errors.Wrap(err, "open records")
				}
				defer func() { _ = in.Close() }()
				stats, err := importer.New(a.svc, a.logger).Run(cmd.Context(), in)
				if err != nil {
					return err
				}
				a.logger.Info().Int("lines", stats.Lines).Interface("kinds", stats.ByKind).Msg("import finished")
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d records\n", stats.Lines)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&interactive, "interactive", true, "ask on the terminal when a reference conflict cannot be decided automatically")
	return cmd
}

func newMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <id> <id>...",
		Short: "Unify entities into the one with the smallest id",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withApp(cmd, false, func(a *app) error {
				out, err := a.svc.Merge(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "representative %d merged %v skipped %v\n", out.Representative, out.Merged, out.Skipped)
				return err
			})
		},
	}
}

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <urn>",
		Short: "Print the entity a reference is bound to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(a *app) error {
				id, ok, err := a.svc.Resolve(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return errors.WithStack(domain.ErrNotFound{Entity: "reference", ID: args[0]})
				}
				names, err := a.svc.Names(cmd.Context(), id)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d\t%v\n", id, names)
				return err
			})
		},
	}
}

func newDecisionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decisions",
		Short: "Inspect recorded conflict decisions",
	}
	cmd.AddCommand(newDecisionsExportCmd())
	return cmd
}

func newDecisionsExportCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every recorded decision to the document store as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, false, func(a *app) error {
				n, err := a.svc.ExportDecisions(cmd.Context(), key)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "exported %d decisions to %s\n", n, key)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "decisions.jsonl", "document store key to write")
	return cmd
}

func parseIDs(args []string) ([]domain.EntityID, error) {
	ids := make([]domain.EntityID, 0, len(args))
	for _, arg := range args {
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || n <= 0 {
			return nil, errors.Errorf("invalid entity id %q", arg)
		}
		ids = append(ids, domain.EntityID(n))
	}
	return ids, nil
}
