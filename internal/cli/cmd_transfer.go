package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codesapienbe/jobops/internal/app"
	"github.com/codesapienbe/jobops/internal/config"
	"github.com/codesapienbe/jobops/internal/store"
)

func newExportCommand(deps commandDeps) *cobra.Command {
	var outputPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every application as a JSON bundle",
		Long: "Export writes every application aggregate in decoded form. A bundle\n" +
			"exported from an encrypted store contains plaintext; store it safely.",
		Example: "  jobops export --output backup.json\n" +
			"  jobops export > backup.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("export does not accept positional arguments")
			}
			return withStore(cmd.Context(), deps, func(ctx context.Context, eng *store.Engine, cfg config.Config) error {
				svc := app.NewTransferService(eng)

				if strings.TrimSpace(outputPath) == "" {
					payload, err := svc.ExportJSON(ctx, cfg.Export.Pretty)
					if err != nil {
						return err
					}
					_, err = deps.out.Write(append(payload, '\n'))
					return err
				}

				count, err := svc.ExportToFile(ctx, outputPath, cfg.Export.Pretty)
				if err != nil {
					return err
				}
				if deps.globals.JSON {
					return printJSON(deps.out, map[string]any{
						"output":       outputPath,
						"applications": count,
						"plaintext":    true,
					})
				}
				if deps.globals.Quiet {
					return nil
				}
				if _, err := fmt.Fprintf(deps.out, "exported %d applications to %s\n", count, outputPath); err != nil {
					return err
				}
				if eng.EncryptionActive() {
					_, err = fmt.Fprintln(deps.out, "note: the bundle is decrypted plaintext; store it safely")
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&outputPath, "output", "", "Bundle path (default stdout)")
	return cmd
}

func newImportCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the store's contents with a JSON bundle",
		Long: "Import clears the whole store first and then rebuilds it from the\n" +
			"bundle, assigning fresh ids throughout. The wipe is irreversible and\n" +
			"therefore requires --yes.",
		Example: "  jobops import backup.json --yes",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageErrorf("import requires exactly one bundle path")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.globals == nil || !deps.globals.Yes {
				return usageErrorf("import replaces the entire store; confirm with --yes")
			}
			return withStore(cmd.Context(), deps, func(ctx context.Context, eng *store.Engine, cfg config.Config) error {
				result, err := app.NewTransferService(eng).ImportFromFile(ctx, args[0])
				if err != nil {
					return err
				}
				if deps.globals.JSON {
					return printJSON(deps.out, result)
				}
				if deps.globals.Quiet {
					return nil
				}
				_, err = fmt.Fprintf(
					deps.out,
					"imported applications=%d children=%d skill_assessments=%d\n",
					result.Applications,
					result.Children,
					result.SkillAssessments,
				)
				return err
			})
		},
	}
}
