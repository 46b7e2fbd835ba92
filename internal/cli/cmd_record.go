package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codesapienbe/jobops/internal/config"
	"github.com/codesapienbe/jobops/internal/schema"
	"github.com/codesapienbe/jobops/internal/store"
)

func newAddCommand(deps commandDeps) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "add <table>",
		Short: "Insert a record from a JSON object",
		Example: "  jobops add job_applications --data '{\"canonical_url\":\"https://example.com/jobs/1\",\"status\":\"new\"}'\n" +
			"  jobops add notes --data @note.json\n" +
			"  cat note.json | jobops add notes --data -",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageErrorf("add requires exactly one table name")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := parseTable(args[0])
			if err != nil {
				return err
			}
			record, err := readRecordData(cmd.InOrStdin(), data)
			if err != nil {
				return err
			}

			return withStore(cmd.Context(), deps, func(ctx context.Context, eng *store.Engine, cfg config.Config) error {
				id, err := eng.Insert(ctx, table, record)
				if err != nil {
					return err
				}
				if deps.globals.JSON {
					return printJSON(deps.out, map[string]any{"table": table.String(), "id": id})
				}
				if deps.globals.Quiet {
					return nil
				}
				_, err = fmt.Fprintln(deps.out, id)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "Record fields as a JSON object, @file, or - for stdin")
	return cmd
}

func newGetCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "get <table> <id>",
		Short: "Fetch one record by id",
		Example: "  jobops get job_applications 3f1c...\n" +
			"  jobops get notes 9d2a...",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return usageErrorf("get requires a table name and a record id")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := parseTable(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), deps, func(ctx context.Context, eng *store.Engine, cfg config.Config) error {
				record, err := eng.GetByID(ctx, table, args[1])
				if err != nil {
					return err
				}
				if record == nil {
					return asExitError(ExitCodeNotFound,
						fmt.Errorf("no %s record with id %s", table, args[1]))
				}
				return printJSON(deps.out, record)
			})
		},
	}
}

func newUpdateCommand(deps commandDeps) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "update <table> <id>",
		Short: "Merge JSON fields into an existing record",
		Example: "  jobops update job_applications 3f1c... --data '{\"status\":\"interviewing\"}'\n" +
			"  jobops update notes 9d2a... --data @note.json",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return usageErrorf("update requires a table name and a record id")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := parseTable(args[0])
			if err != nil {
				return err
			}
			partial, err := readRecordData(cmd.InOrStdin(), data)
			if err != nil {
				return err
			}

			return withStore(cmd.Context(), deps, func(ctx context.Context, eng *store.Engine, cfg config.Config) error {
				if err := eng.Update(ctx, table, args[1], partial); err != nil {
					return err
				}
				if deps.globals.JSON {
					return printJSON(deps.out, map[string]any{"table": table.String(), "id": args[1], "updated": true})
				}
				if deps.globals.Quiet {
					return nil
				}
				_, err := fmt.Fprintf(deps.out, "updated %s record %s\n", table, args[1])
				return err
			})
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "Fields to merge as a JSON object, @file, or - for stdin")
	return cmd
}

func parseTable(name string) (schema.Table, error) {
	table := schema.Table(strings.TrimSpace(name))
	if !table.Valid() {
		return "", usageErrorf("unknown table %q", name)
	}
	return table, nil
}

// readRecordData decodes the --data argument: an inline JSON object, @path,
// or - for stdin.
func readRecordData(stdin io.Reader, data string) (store.Record, error) {
	if strings.TrimSpace(data) == "" {
		return nil, usageErrorf("--data is required (JSON object, @file, or -)")
	}

	var raw []byte
	switch {
	case data == "-":
		var err error
		raw, err = io.ReadAll(stdin)
		if err != nil {
			return nil, mapCommandError(fmt.Errorf("read record data from stdin: %w", err))
		}
	case strings.HasPrefix(data, "@"):
		var err error
		raw, err = os.ReadFile(strings.TrimPrefix(data, "@"))
		if err != nil {
			return nil, mapCommandError(fmt.Errorf("read record data: %w", err))
		}
	default:
		raw = []byte(data)
	}

	var record store.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, usageErrorf("--data must be a JSON object: %v", err)
	}
	return record, nil
}
