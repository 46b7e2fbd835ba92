package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codesapienbe/jobops/internal/config"
	"github.com/codesapienbe/jobops/internal/schema"
	"github.com/codesapienbe/jobops/internal/store"
)

func newStatusCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show store health, schema version, and per-table usage",
		Example: "  jobops status\n" +
			"  jobops --json status",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("status does not accept positional arguments")
			}
			return withStore(cmd.Context(), deps, func(ctx context.Context, eng *store.Engine, cfg config.Config) error {
				version, err := eng.SchemaVersion(ctx)
				if err != nil {
					return err
				}
				usage, err := eng.SpaceUsage(ctx)
				if err != nil {
					return err
				}

				var totalRows, totalBytes int64
				tables := make(map[string]store.TableUsage, len(usage))
				for table, u := range usage {
					tables[table.String()] = u
					totalRows += u.Rows
					totalBytes += u.Bytes
				}

				if deps.globals.JSON {
					return printJSON(deps.out, map[string]any{
						"store_path":       eng.Path(),
						"schema_version":   version,
						"encryption_armed": eng.EncryptionActive(),
						"total_rows":       totalRows,
						"total_bytes":      totalBytes,
						"tables":           tables,
					})
				}
				if deps.globals.Quiet {
					return nil
				}

				if _, err := fmt.Fprintf(
					deps.out,
					"store=%s schema_version=%d encryption=%s rows=%d bytes=%d\n",
					eng.Path(),
					version,
					boolToState(eng.EncryptionActive(), "armed", "disarmed"),
					totalRows,
					totalBytes,
				); err != nil {
					return err
				}
				for _, table := range schema.All() {
					u := usage[table]
					if u.Rows == 0 {
						continue
					}
					if _, err := fmt.Fprintf(deps.out, "  %s: rows=%d bytes=%d\n", table, u.Rows, u.Bytes); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}
