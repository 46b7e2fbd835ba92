// Package cli implements the jobops command tree. Commands are thin: they
// parse flags, open the store through the runtime helpers, and translate
// store errors into process exit codes.
package cli

import (
	"io"
	"time"

	"github.com/spf13/cobra"
)

// BuildInfo carries the build metadata stamped into the binary at link time.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// GlobalOptions holds the persistent flags shared by every command.
type GlobalOptions struct {
	JSON           bool
	Quiet          bool
	Yes            bool
	ConfigPath     string
	StorePath      string
	PassphraseFile string
	Timeout        time.Duration
}

type commandDeps struct {
	out     io.Writer
	globals *GlobalOptions
	build   BuildInfo
}

func NewRootCommand(out io.Writer, build BuildInfo) *cobra.Command {
	globals := &GlobalOptions{}
	deps := commandDeps{out: out, globals: globals, build: build}

	cmd := &cobra.Command{
		Use:           "jobops",
		Short:         "Local encrypted store for tracking job applications",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageErrorf("%v", err)
	})

	flags := cmd.PersistentFlags()
	flags.BoolVar(&globals.JSON, "json", false, "Print machine-readable JSON output")
	flags.BoolVar(&globals.Quiet, "quiet", false, "Suppress non-essential output")
	flags.BoolVar(&globals.Yes, "yes", false, "Skip confirmation for destructive operations")
	flags.StringVar(&globals.ConfigPath, "config", "", "Path to the config file")
	flags.StringVar(&globals.StorePath, "store", "", "Path to the store database file")
	flags.StringVar(&globals.PassphraseFile, "passphrase-file", "", "Read the store passphrase from this file")
	flags.DurationVar(&globals.Timeout, "timeout", 0, "Per-command timeout (default 10s)")

	cmd.AddCommand(
		newInitCommand(deps),
		newStatusCommand(deps),
		newAddCommand(deps),
		newGetCommand(deps),
		newUpdateCommand(deps),
		newShowCommand(deps),
		newListCommand(deps),
		newDeleteCommand(deps),
		newExportCommand(deps),
		newImportCommand(deps),
		newEncryptionCommand(deps),
		newKeyringCommand(deps),
		newDebugCommand(deps),
		newVersionCommand(deps),
	)
	cmd.InitDefaultCompletionCmd()
	return cmd
}
