package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codesapienbe/jobops/internal/app"
	"github.com/codesapienbe/jobops/internal/config"
)

const defaultInitConfig = `[store]
# path defaults to the platform data directory; uncomment to relocate.
# path = "/path/to/store.db"
kdf_iterations = 310000

[encryption]
use_keyring = true
keyring_service = "jobops"

[logging]
level = "info"
file = ""
max_size_mb = 10
max_files = 5

[export]
dir = ""
pretty = true
`

func newInitCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the application store and a starter config",
		Example: "  jobops init\n" +
			"  jobops --store ./jobops.db --yes init",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("init does not accept positional arguments")
			}

			cfg, err := loadCommandConfig(deps)
			if err != nil {
				return mapCommandError(fmt.Errorf("load config: %w", err))
			}
			configPath, err := resolveInitConfigPath(deps)
			if err != nil {
				return mapCommandError(err)
			}
			yes := deps.globals != nil && deps.globals.Yes

			if !yes {
				if _, err := os.Stat(cfg.Store.Path); err == nil {
					return usageErrorf("store already exists: %s (use --yes to reinitialize)", cfg.Store.Path)
				} else if !errors.Is(err, os.ErrNotExist) {
					return mapCommandError(err)
				}
			}

			if err := app.BootstrapStore(cmd.Context(), cfg.Store.Path); err != nil {
				return mapCommandError(err)
			}
			if err := writeStarterConfig(configPath, yes); err != nil {
				return mapCommandError(err)
			}

			if deps.globals.JSON {
				return printJSON(deps.out, map[string]any{
					"initialized": true,
					"store_path":  cfg.Store.Path,
					"config_path": configPath,
				})
			}
			if deps.globals.Quiet {
				return nil
			}
			if _, err := fmt.Fprintf(deps.out, "initialized store: %s\n", cfg.Store.Path); err != nil {
				return mapCommandError(err)
			}
			_, err = fmt.Fprintf(deps.out, "wrote config: %s\n", configPath)
			return mapCommandError(err)
		},
	}
	return cmd
}

func resolveInitConfigPath(deps commandDeps) (string, error) {
	if deps.globals != nil {
		if path := strings.TrimSpace(deps.globals.ConfigPath); path != "" {
			return path, nil
		}
	}
	if path, ok := os.LookupEnv("JOBOPS_CONFIG_PATH"); ok && strings.TrimSpace(path) != "" {
		return path, nil
	}
	return config.DefaultConfigPath()
}

// writeStarterConfig lays down the annotated default config. An existing file
// is left alone unless overwrite is set.
func writeStarterConfig(path string, overwrite bool) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: config path is required", app.ErrValidation)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("init: create config directory: %w", err)
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("init: stat config path: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(defaultInitConfig), 0o600); err != nil {
		return fmt.Errorf("init: write config: %w", err)
	}
	return nil
}
