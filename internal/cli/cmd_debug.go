package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codesapienbe/jobops/internal/config"
	debugpkg "github.com/codesapienbe/jobops/internal/debug"
	"github.com/codesapienbe/jobops/internal/store"
)

func newDebugCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "debug",
		Short:   "Diagnostics helpers",
		Example: "  jobops debug bundle --output ./jobops-debug.json",
	}
	cmd.AddCommand(newDebugBundleCommand(deps))
	return cmd
}

func newDebugBundleCommand(deps commandDeps) *cobra.Command {
	var outputPath string
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Collect sanitized diagnostics into a JSON bundle",
		Long: "Bundle gathers build info, store shape, and row counts for support\n" +
			"requests. It never includes document payloads or key material.",
		Example: "  jobops debug bundle --output ./jobops-debug.json\n" +
			"  jobops --json debug bundle --output ./jobops-debug.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("debug bundle does not accept positional arguments")
			}
			if strings.TrimSpace(outputPath) == "" {
				return usageErrorf("debug bundle requires --output")
			}

			bundle := debugpkg.NewBundle()
			bundle.Version = map[string]any{
				"version":    deps.build.Version,
				"commit":     deps.build.Commit,
				"build_time": deps.build.BuildTime,
			}

			// A broken store must not block bundle collection; that is the
			// situation bundles exist for.
			storeErr := withStore(cmd.Context(), deps, func(ctx context.Context, eng *store.Engine, cfg config.Config) error {
				version, err := eng.SchemaVersion(ctx)
				if err != nil {
					return err
				}
				usage, err := eng.SpaceUsage(ctx)
				if err != nil {
					return err
				}
				tables := make(map[string]any, len(usage))
				for table, stats := range usage {
					tables[table.String()] = stats
				}
				bundle.Store = map[string]any{
					"path":           eng.Path(),
					"schema_version": version,
					"encrypted":      eng.EncryptionActive(),
					"tables":         tables,
				}
				return nil
			})
			if storeErr != nil {
				bundle.Checks = append(bundle.Checks, debugpkg.Check{Name: "store", OK: false, Message: storeErr.Error()})
			} else {
				bundle.Checks = append(bundle.Checks, debugpkg.Check{Name: "store", OK: true, Message: "reachable"})
			}

			if err := debugpkg.WriteBundle(outputPath, bundle); err != nil {
				return mapCommandError(err)
			}
			if deps.globals.JSON {
				return printJSON(deps.out, map[string]any{"output": outputPath})
			}
			if deps.globals.Quiet {
				return nil
			}
			_, err := fmt.Fprintf(deps.out, "debug bundle written: %s\n", outputPath)
			return mapCommandError(err)
		},
	}
	cmd.Flags().StringVar(&outputPath, "output", "", "Output JSON bundle path")
	return cmd
}
