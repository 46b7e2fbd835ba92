package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codesapienbe/jobops/internal/config"
	"github.com/codesapienbe/jobops/internal/schema"
	"github.com/codesapienbe/jobops/internal/store"
)

func newShowCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "show <application-id>",
		Short: "Show one application with every dependent record",
		Example: "  jobops show 3f1c...\n" +
			"  jobops --json show 3f1c...",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageErrorf("show requires exactly one application id")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), deps, func(ctx context.Context, eng *store.Engine, cfg config.Config) error {
				agg, err := eng.GetAggregate(ctx, args[0])
				if err != nil {
					return err
				}
				if deps.globals.JSON {
					return printJSON(deps.out, agg)
				}
				if deps.globals.Quiet {
					return nil
				}

				if _, err := fmt.Fprintf(
					deps.out,
					"application %s\n  url=%v status=%v created_at=%v\n",
					args[0],
					agg.Application[schema.FieldCanonicalURL],
					agg.Application[schema.FieldStatus],
					agg.Application[schema.FieldCreatedAt],
				); err != nil {
					return err
				}
				for _, table := range schema.RootChildren() {
					records := agg.Children[table.String()]
					if len(records) == 0 {
						continue
					}
					if _, err := fmt.Fprintf(deps.out, "  %s: %d\n", table, len(records)); err != nil {
						return err
					}
				}
				assessments := 0
				for _, rows := range agg.SkillAssessments {
					assessments += len(rows)
				}
				if assessments > 0 {
					if _, err := fmt.Fprintf(deps.out, "  %s: %d\n", schema.SkillAssessments, assessments); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newListCommand(deps commandDeps) *cobra.Command {
	var parentID string
	cmd := &cobra.Command{
		Use:   "list <table>",
		Short: "List records of a table, optionally scoped to one parent",
		Long: "List records of a table. With --parent, only records whose foreign key\n" +
			"references that id are returned: the application id for the sixteen direct\n" +
			"child tables, the skills-matrix id for skill_assessments.",
		Example: "  jobops list job_applications\n" +
			"  jobops list notes --parent 3f1c...\n" +
			"  jobops --json list interview_rounds --parent 3f1c...",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageErrorf("list requires exactly one table name")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := parseTable(args[0])
			if err != nil {
				return err
			}
			if parentID != "" && table.ForeignKey() == "" {
				return usageErrorf("%s has no parent; drop --parent", table)
			}

			return withStore(cmd.Context(), deps, func(ctx context.Context, eng *store.Engine, cfg config.Config) error {
				var records []store.Record
				if parentID != "" {
					records, err = eng.ListByForeignKey(ctx, table, parentID)
				} else {
					records, err = eng.ExportTable(ctx, table)
				}
				if err != nil {
					return err
				}

				if deps.globals.JSON {
					if records == nil {
						records = []store.Record{}
					}
					return printJSON(deps.out, records)
				}
				if deps.globals.Quiet {
					return nil
				}
				for _, record := range records {
					if _, err := fmt.Fprintf(deps.out, "%v  created_at=%v\n",
						record[schema.FieldID], record[schema.FieldCreatedAt]); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&parentID, "parent", "", "Only records referencing this parent id")
	return cmd
}

func newDeleteCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <application-id>",
		Short: "Delete an application and every dependent record",
		Long: "Delete cascades across all dependent tables in one transaction. The\n" +
			"operation is irreversible and therefore requires --yes.",
		Example: "  jobops delete 3f1c... --yes",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageErrorf("delete requires exactly one application id")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.globals == nil || !deps.globals.Yes {
				return usageErrorf("delete removes the application and all dependent records; confirm with --yes")
			}
			return withStore(cmd.Context(), deps, func(ctx context.Context, eng *store.Engine, cfg config.Config) error {
				if err := eng.DeleteCascade(ctx, args[0]); err != nil {
					return err
				}
				if deps.globals.JSON {
					return printJSON(deps.out, map[string]any{"deleted": args[0]})
				}
				if deps.globals.Quiet {
					return nil
				}
				_, err := fmt.Fprintf(deps.out, "application deleted: %s\n", args[0])
				return err
			})
		},
	}
}
