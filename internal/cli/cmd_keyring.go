package cli

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"

	"github.com/codesapienbe/jobops/internal/crypto"
)

func newKeyringCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyring",
		Short: "Manage the passphrase stored in the OS keyring",
		Example: "  jobops keyring set\n" +
			"  jobops keyring set --passphrase-file ./pass\n" +
			"  jobops keyring clear",
	}
	cmd.AddCommand(
		newKeyringSetCommand(deps),
		newKeyringClearCommand(deps),
	)
	return cmd
}

func newKeyringSetCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "set",
		Short: "Store the passphrase for this store in the OS keyring",
		Long: "Set saves the passphrase under the configured keyring service, keyed\n" +
			"by store path. Later runs arm encryption from it without prompting.",
		Example: "  jobops keyring set\n" +
			"  jobops keyring set --passphrase-file ./pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("keyring set does not accept positional arguments")
			}
			cfg, err := loadCommandConfig(deps)
			if err != nil {
				return mapCommandError(fmt.Errorf("load config: %w", err))
			}

			var passphrase []byte
			if deps.globals != nil && deps.globals.PassphraseFile != "" {
				passphrase, err = readPassphraseFile(deps.globals.PassphraseFile)
			} else {
				passphrase, err = promptNewPassphrase(deps.out)
			}
			if err != nil {
				return mapCommandError(err)
			}
			defer wipeBytes(passphrase)

			if utf8.RuneCount(passphrase) < crypto.MinPassphraseChars {
				return mapCommandError(fmt.Errorf(
					"%w: need at least %d characters", crypto.ErrPassphraseTooShort, crypto.MinPassphraseChars,
				))
			}
			if err := keyring.Set(cfg.Encryption.KeyringService, keyringAccount(cfg), string(passphrase)); err != nil {
				return mapCommandError(fmt.Errorf("save passphrase to keyring: %w", err))
			}

			if deps.globals.JSON {
				return printJSON(deps.out, map[string]any{
					"keyring": "present",
					"service": cfg.Encryption.KeyringService,
				})
			}
			if deps.globals.Quiet {
				return nil
			}
			_, err = fmt.Fprintf(deps.out, "passphrase stored in keyring service %q\n", cfg.Encryption.KeyringService)
			return err
		},
	}
}

func newKeyringClearCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:     "clear",
		Short:   "Remove this store's passphrase from the OS keyring",
		Example: "  jobops keyring clear",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("keyring clear does not accept positional arguments")
			}
			cfg, err := loadCommandConfig(deps)
			if err != nil {
				return mapCommandError(fmt.Errorf("load config: %w", err))
			}

			err = keyring.Delete(cfg.Encryption.KeyringService, keyringAccount(cfg))
			if err != nil && !errors.Is(err, keyring.ErrNotFound) {
				return mapCommandError(fmt.Errorf("clear keyring passphrase: %w", err))
			}

			if deps.globals.JSON {
				return printJSON(deps.out, map[string]any{"keyring": "empty"})
			}
			if deps.globals.Quiet {
				return nil
			}
			_, err = fmt.Fprintln(deps.out, "keyring passphrase cleared")
			return err
		},
	}
}
