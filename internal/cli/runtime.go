package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"

	"github.com/codesapienbe/jobops/internal/config"
	"github.com/codesapienbe/jobops/internal/crypto"
	"github.com/codesapienbe/jobops/internal/log"
	"github.com/codesapienbe/jobops/internal/store"
)

// Test seams.
var (
	loadConfigFn = config.Load
	readPassword = term.ReadPassword
)

const defaultCommandTimeout = 10 * time.Second

// withStore loads the effective config, opens the store, arms encryption when
// a non-interactive passphrase source is available, and hands the live engine
// to fn. The engine is closed when fn returns.
func withStore(cmdCtx context.Context, deps commandDeps, fn func(ctx context.Context, eng *store.Engine, cfg config.Config) error) error {
	timeout := defaultCommandTimeout
	if deps.globals != nil && deps.globals.Timeout > 0 {
		timeout = deps.globals.Timeout
	}
	ctx, cancel := context.WithTimeout(cmdCtx, timeout)
	defer cancel()

	cfg, err := loadCommandConfig(deps)
	if err != nil {
		return mapCommandError(fmt.Errorf("load config: %w", err))
	}

	logger, closeLogger, err := newCommandLogger(cfg)
	if err != nil {
		return mapCommandError(fmt.Errorf("init logging: %w", err))
	}
	defer func() { _ = closeLogger() }()

	eng, err := store.New(store.Options{
		Path:   cfg.Store.Path,
		KDF:    kdfFromConfig(cfg),
		Logger: logger,
	})
	if err != nil {
		return mapCommandError(err)
	}
	if err := eng.Open(ctx); err != nil {
		return mapCommandError(fmt.Errorf("open store: %w", err))
	}
	defer func() { _ = eng.Close() }()

	passphrase, ok, err := storedPassphrase(deps, cfg)
	if err != nil {
		return mapCommandError(err)
	}
	if ok {
		err := eng.ConfigureEncryption(ctx, true, passphrase)
		wipeBytes(passphrase)
		if err != nil {
			return mapCommandError(fmt.Errorf("arm encryption: %w", err))
		}
	}

	return mapCommandError(fn(ctx, eng, cfg))
}

func loadCommandConfig(deps commandDeps) (config.Config, error) {
	loadOpts := config.LoadOptions{}
	if deps.globals != nil {
		if configPath := strings.TrimSpace(deps.globals.ConfigPath); configPath != "" {
			loadOpts.ConfigPath = configPath
		}
		if storePath := strings.TrimSpace(deps.globals.StorePath); storePath != "" {
			loadOpts.Env = map[string]string{
				"JOBOPS_STORE_PATH": storePath,
			}
		}
	}
	return loadConfigFn(loadOpts)
}

// newCommandLogger builds the logger for one command run. Without a configured
// log file commands stay silent; stderr belongs to command output.
func newCommandLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	if strings.TrimSpace(cfg.Logging.File) == "" {
		return log.NewDiscard(), func() error { return nil }, nil
	}
	return log.New(log.Options{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
}

func kdfFromConfig(cfg config.Config) crypto.PBKDF2Params {
	params := crypto.DefaultPBKDF2Params()
	if cfg.Store.KDFIterations > 0 {
		params.Iterations = cfg.Store.KDFIterations
	}
	return params
}

// storedPassphrase resolves the passphrase from non-interactive sources:
// --passphrase-file first, then the OS keyring when enabled. It never
// prompts; commands that may mint a passphrase prompt explicitly.
func storedPassphrase(deps commandDeps, cfg config.Config) ([]byte, bool, error) {
	if deps.globals != nil && strings.TrimSpace(deps.globals.PassphraseFile) != "" {
		passphrase, err := readPassphraseFile(deps.globals.PassphraseFile)
		if err != nil {
			return nil, false, err
		}
		return passphrase, true, nil
	}
	if cfg.Encryption.UseKeyring {
		value, err := keyring.Get(cfg.Encryption.KeyringService, keyringAccount(cfg))
		if err == nil {
			return []byte(value), true, nil
		}
		if !errors.Is(err, keyring.ErrNotFound) && !errors.Is(err, keyring.ErrUnsupportedPlatform) {
			return nil, false, fmt.Errorf("read keyring: %w", err)
		}
	}
	return nil, false, nil
}

// keyringAccount keys the stored passphrase by store path, so separate store
// files keep separate credentials under one service name.
func keyringAccount(cfg config.Config) string {
	return cfg.Store.Path
}

func readPassphraseFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read passphrase file: %w", err)
	}
	passphrase := bytes.TrimRight(raw, "\r\n")
	if len(passphrase) == 0 {
		return nil, usageErrorf("passphrase file %s is empty", path)
	}
	return passphrase, nil
}

// promptPassphrase reads one passphrase from the controlling terminal without
// echo. Fails off-terminal; callers document --passphrase-file as the
// non-interactive alternative.
func promptPassphrase(out io.Writer, label string) ([]byte, error) {
	fmt.Fprintf(out, "%s: ", label)
	passphrase, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return nil, fmt.Errorf("read passphrase (use --passphrase-file off-terminal): %w", err)
	}
	return passphrase, nil
}

func promptNewPassphrase(out io.Writer) ([]byte, error) {
	first, err := promptPassphrase(out, "New passphrase")
	if err != nil {
		return nil, err
	}
	second, err := promptPassphrase(out, "Confirm passphrase")
	if err != nil {
		wipeBytes(first)
		return nil, err
	}
	defer wipeBytes(second)
	if !bytes.Equal(first, second) {
		wipeBytes(first)
		return nil, usageErrorf("passphrases do not match")
	}
	return first, nil
}

func printJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func boolToState(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}

func wipeBytes(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
