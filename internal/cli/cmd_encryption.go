package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"

	"github.com/codesapienbe/jobops/internal/config"
	"github.com/codesapienbe/jobops/internal/store"
)

func newEncryptionCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encryption",
		Short: "Field encryption operations",
		Example: "  jobops encryption status\n" +
			"  jobops encryption enable --passphrase-file ./pass\n" +
			"  jobops encryption disable",
	}
	cmd.AddCommand(
		newEncryptionEnableCommand(deps),
		newEncryptionDisableCommand(deps),
		newEncryptionStatusCommand(deps),
	)
	return cmd
}

func newEncryptionEnableCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "enable",
		Short: "Encrypt sensitive fields on subsequent writes",
		Long: "Enable arms field encryption for this and future runs. The passphrase\n" +
			"comes from --passphrase-file, the OS keyring, or an interactive prompt,\n" +
			"in that order. Rows written before enabling stay plaintext until their\n" +
			"next update.",
		Example: "  jobops encryption enable\n" +
			"  jobops encryption enable --passphrase-file ./pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("encryption enable does not accept positional arguments")
			}
			return withStore(cmd.Context(), deps, func(ctx context.Context, eng *store.Engine, cfg config.Config) error {
				passphrase, source, err := enablePassphrase(deps, cfg)
				if err != nil {
					return err
				}
				defer wipeBytes(passphrase)

				if err := eng.ConfigureEncryption(ctx, true, passphrase); err != nil {
					return err
				}
				if cfg.Encryption.UseKeyring && source != passphraseFromKeyring {
					err := keyring.Set(cfg.Encryption.KeyringService, keyringAccount(cfg), string(passphrase))
					if err != nil && !errors.Is(err, keyring.ErrUnsupportedPlatform) {
						return fmt.Errorf("save passphrase to keyring: %w", err)
					}
				}

				if deps.globals.JSON {
					return printJSON(deps.out, map[string]any{
						"encryption": "armed",
						"source":     source,
					})
				}
				if deps.globals.Quiet {
					return nil
				}
				_, err = fmt.Fprintf(deps.out, "encryption armed (passphrase from %s)\n", source)
				return err
			})
		},
	}
}

func newEncryptionDisableCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Write sensitive fields as plaintext again",
		Long: "Disable drops the passphrase from the OS keyring so future runs write\n" +
			"plaintext. Rows written while encryption was armed stay encrypted until\n" +
			"their next update.",
		Example: "  jobops encryption disable",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("encryption disable does not accept positional arguments")
			}
			return withStore(cmd.Context(), deps, func(ctx context.Context, eng *store.Engine, cfg config.Config) error {
				if err := eng.ConfigureEncryption(ctx, false, nil); err != nil {
					return err
				}
				if cfg.Encryption.UseKeyring {
					err := keyring.Delete(cfg.Encryption.KeyringService, keyringAccount(cfg))
					if err != nil && !errors.Is(err, keyring.ErrNotFound) && !errors.Is(err, keyring.ErrUnsupportedPlatform) {
						return fmt.Errorf("clear keyring passphrase: %w", err)
					}
				}

				if deps.globals.JSON {
					return printJSON(deps.out, map[string]any{"encryption": "disarmed"})
				}
				if deps.globals.Quiet {
					return nil
				}
				_, err := fmt.Fprintln(deps.out, "encryption disarmed; new writes are plaintext")
				return err
			})
		},
	}
}

func newEncryptionStatusCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether new writes are encrypted",
		Example: "  jobops encryption status\n" +
			"  jobops --json encryption status",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("encryption status does not accept positional arguments")
			}
			return withStore(cmd.Context(), deps, func(ctx context.Context, eng *store.Engine, cfg config.Config) error {
				keyringState := "disabled"
				if cfg.Encryption.UseKeyring {
					_, err := keyring.Get(cfg.Encryption.KeyringService, keyringAccount(cfg))
					switch {
					case err == nil:
						keyringState = "present"
					case errors.Is(err, keyring.ErrNotFound):
						keyringState = "empty"
					case errors.Is(err, keyring.ErrUnsupportedPlatform):
						keyringState = "unavailable"
					default:
						return fmt.Errorf("read keyring: %w", err)
					}
				}

				if deps.globals.JSON {
					return printJSON(deps.out, map[string]any{
						"armed":          eng.EncryptionActive(),
						"keyring":        keyringState,
						"kdf_iterations": kdfFromConfig(cfg).Iterations,
					})
				}
				if deps.globals.Quiet {
					return nil
				}
				_, err := fmt.Fprintf(
					deps.out,
					"encryption=%s keyring=%s kdf_iterations=%d\n",
					boolToState(eng.EncryptionActive(), "armed", "disarmed"),
					keyringState,
					kdfFromConfig(cfg).Iterations,
				)
				return err
			})
		},
	}
}

type passphraseSource string

const (
	passphraseFromFile    passphraseSource = "file"
	passphraseFromKeyring passphraseSource = "keyring"
	passphraseFromPrompt  passphraseSource = "prompt"
)

// enablePassphrase resolves the passphrase for encryption enable. Unlike the
// per-run arming in withStore it may prompt, since enable is the one command
// expected to mint a passphrase.
func enablePassphrase(deps commandDeps, cfg config.Config) ([]byte, passphraseSource, error) {
	if deps.globals != nil && deps.globals.PassphraseFile != "" {
		passphrase, err := readPassphraseFile(deps.globals.PassphraseFile)
		if err != nil {
			return nil, "", err
		}
		return passphrase, passphraseFromFile, nil
	}
	if cfg.Encryption.UseKeyring {
		value, err := keyring.Get(cfg.Encryption.KeyringService, keyringAccount(cfg))
		if err == nil {
			return []byte(value), passphraseFromKeyring, nil
		}
		if !errors.Is(err, keyring.ErrNotFound) && !errors.Is(err, keyring.ErrUnsupportedPlatform) {
			return nil, "", fmt.Errorf("read keyring: %w", err)
		}
	}
	passphrase, err := promptNewPassphrase(deps.out)
	if err != nil {
		return nil, "", err
	}
	return passphrase, passphraseFromPrompt, nil
}
