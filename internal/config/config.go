package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/codesapienbe/jobops/internal/crypto"
)

const (
	defaultKeyringService = "jobops"
	defaultLogLevel       = "info"
	defaultLogMaxSizeMB   = 10
	defaultLogMaxFiles    = 5
	defaultExportPretty   = true

	storeFileName = "store.db"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Store      StoreConfig      `toml:"store"`
	Encryption EncryptionConfig `toml:"encryption"`
	Logging    LoggingConfig    `toml:"logging"`
	Export     ExportConfig     `toml:"export"`
}

type StoreConfig struct {
	Path          string `toml:"path"`
	KDFIterations int    `toml:"kdf_iterations"`
}

type EncryptionConfig struct {
	UseKeyring     bool   `toml:"use_keyring"`
	KeyringService string `toml:"keyring_service"`
}

type LoggingConfig struct {
	Level     string `toml:"level"`
	File      string `toml:"file"`
	MaxSizeMB int    `toml:"max_size_mb"`
	MaxFiles  int    `toml:"max_files"`
}

type ExportConfig struct {
	Dir    string `toml:"dir"`
	Pretty bool   `toml:"pretty"`
}

type LoadOptions struct {
	ConfigPath string
	Env        map[string]string
	Flags      FlagOverrides
}

type FlagOverrides struct {
	StorePath *string
	LogLevel  *string
}

func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Path:          "",
			KDFIterations: crypto.DefaultPBKDF2Iterations,
		},
		Encryption: EncryptionConfig{
			UseKeyring:     true,
			KeyringService: defaultKeyringService,
		},
		Logging: LoggingConfig{
			Level:     defaultLogLevel,
			File:      "",
			MaxSizeMB: defaultLogMaxSizeMB,
			MaxFiles:  defaultLogMaxFiles,
		},
		Export: ExportConfig{
			Dir:    "",
			Pretty: defaultExportPretty,
		},
	}
}

// Load resolves the effective configuration: defaults, then the TOML file,
// then JOBOPS_* environment variables, then explicit flag overrides. A missing
// config file is not an error. The store path is always resolved to a concrete
// location.
func Load(opts LoadOptions) (Config, error) {
	cfg := DefaultConfig()

	configPath, err := resolveConfigPath(opts)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}
	if err := loadAndApplyFile(configPath, &cfg); err != nil {
		return Config{}, err
	}

	if err := applyEnvOverrides(&cfg, opts); err != nil {
		return Config{}, err
	}
	applyFlagOverrides(&cfg, opts.Flags)

	if cfg.Store.Path == "" {
		home, err := jobopsHome(opts)
		if err != nil {
			return Config{}, err
		}
		cfg.Store.Path = filepath.Join(home, storeFileName)
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type rawConfig struct {
	Store      *rawStore      `toml:"store"`
	Encryption *rawEncryption `toml:"encryption"`
	Logging    *rawLogging    `toml:"logging"`
	Export     *rawExport     `toml:"export"`
}

type rawStore struct {
	Path          *string `toml:"path"`
	KDFIterations *int    `toml:"kdf_iterations"`
}

type rawEncryption struct {
	UseKeyring     *bool   `toml:"use_keyring"`
	KeyringService *string `toml:"keyring_service"`
}

type rawLogging struct {
	Level     *string `toml:"level"`
	File      *string `toml:"file"`
	MaxSizeMB *int    `toml:"max_size_mb"`
	MaxFiles  *int    `toml:"max_files"`
}

type rawExport struct {
	Dir    *string `toml:"dir"`
	Pretty *bool   `toml:"pretty"`
}

func loadAndApplyFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %q: %w", path, err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: parse TOML file %q: %v", ErrInvalidConfig, path, err)
	}

	applyRawConfig(cfg, raw)
	return nil
}

func applyRawConfig(cfg *Config, raw rawConfig) {
	if raw.Store != nil {
		if raw.Store.Path != nil {
			cfg.Store.Path = *raw.Store.Path
		}
		if raw.Store.KDFIterations != nil {
			cfg.Store.KDFIterations = *raw.Store.KDFIterations
		}
	}

	if raw.Encryption != nil {
		if raw.Encryption.UseKeyring != nil {
			cfg.Encryption.UseKeyring = *raw.Encryption.UseKeyring
		}
		if raw.Encryption.KeyringService != nil {
			cfg.Encryption.KeyringService = *raw.Encryption.KeyringService
		}
	}

	if raw.Logging != nil {
		if raw.Logging.Level != nil {
			cfg.Logging.Level = *raw.Logging.Level
		}
		if raw.Logging.File != nil {
			cfg.Logging.File = *raw.Logging.File
		}
		if raw.Logging.MaxSizeMB != nil {
			cfg.Logging.MaxSizeMB = *raw.Logging.MaxSizeMB
		}
		if raw.Logging.MaxFiles != nil {
			cfg.Logging.MaxFiles = *raw.Logging.MaxFiles
		}
	}

	if raw.Export != nil {
		if raw.Export.Dir != nil {
			cfg.Export.Dir = *raw.Export.Dir
		}
		if raw.Export.Pretty != nil {
			cfg.Export.Pretty = *raw.Export.Pretty
		}
	}
}

func applyEnvOverrides(cfg *Config, opts LoadOptions) error {
	if value, ok := lookupEnv(opts, "JOBOPS_STORE_PATH"); ok {
		cfg.Store.Path = value
	}
	if value, ok := lookupEnv(opts, "JOBOPS_STORE_KDF_ITERATIONS"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: parse JOBOPS_STORE_KDF_ITERATIONS: %v", ErrInvalidConfig, err)
		}
		cfg.Store.KDFIterations = parsed
	}

	if value, ok := lookupEnv(opts, "JOBOPS_ENCRYPTION_USE_KEYRING"); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: parse JOBOPS_ENCRYPTION_USE_KEYRING: %v", ErrInvalidConfig, err)
		}
		cfg.Encryption.UseKeyring = parsed
	}
	if value, ok := lookupEnv(opts, "JOBOPS_ENCRYPTION_KEYRING_SERVICE"); ok {
		cfg.Encryption.KeyringService = value
	}

	if value, ok := lookupEnv(opts, "JOBOPS_LOG_LEVEL"); ok {
		cfg.Logging.Level = value
	}
	if value, ok := lookupEnv(opts, "JOBOPS_LOG_FILE"); ok {
		cfg.Logging.File = value
	}
	if value, ok := lookupEnv(opts, "JOBOPS_LOG_MAX_SIZE_MB"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: parse JOBOPS_LOG_MAX_SIZE_MB: %v", ErrInvalidConfig, err)
		}
		cfg.Logging.MaxSizeMB = parsed
	}
	if value, ok := lookupEnv(opts, "JOBOPS_LOG_MAX_FILES"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: parse JOBOPS_LOG_MAX_FILES: %v", ErrInvalidConfig, err)
		}
		cfg.Logging.MaxFiles = parsed
	}

	if value, ok := lookupEnv(opts, "JOBOPS_EXPORT_DIR"); ok {
		cfg.Export.Dir = value
	}
	if value, ok := lookupEnv(opts, "JOBOPS_EXPORT_PRETTY"); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: parse JOBOPS_EXPORT_PRETTY: %v", ErrInvalidConfig, err)
		}
		cfg.Export.Pretty = parsed
	}

	return nil
}

func applyFlagOverrides(cfg *Config, flags FlagOverrides) {
	if flags.StorePath != nil {
		cfg.Store.Path = *flags.StorePath
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
}

func validate(cfg Config) error {
	if cfg.Store.KDFIterations < crypto.MinPBKDF2Iterations {
		return fmt.Errorf("%w: store.kdf_iterations must be >= %d", ErrInvalidConfig, crypto.MinPBKDF2Iterations)
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: logging.level must be one of debug, info, warn, error", ErrInvalidConfig)
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		return fmt.Errorf("%w: logging.max_size_mb must be > 0", ErrInvalidConfig)
	}
	if cfg.Logging.MaxFiles < 1 {
		return fmt.Errorf("%w: logging.max_files must be >= 1", ErrInvalidConfig)
	}
	return nil
}

func resolveConfigPath(opts LoadOptions) (string, error) {
	if opts.ConfigPath != "" {
		return opts.ConfigPath, nil
	}
	if value, ok := lookupEnv(opts, "JOBOPS_CONFIG_PATH"); ok {
		return value, nil
	}
	return DefaultConfigPath()
}

func lookupEnv(opts LoadOptions, key string) (string, bool) {
	if opts.Env != nil {
		if value, ok := opts.Env[key]; ok {
			return value, true
		}
	}
	return os.LookupEnv(key)
}

func jobopsHome(opts LoadOptions) (string, error) {
	if value, ok := lookupEnv(opts, "JOBOPS_HOME"); ok {
		return value, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "JobOps"), nil
	}

	dataHome := filepath.Join(home, ".local", "share")
	if xdgDataHome, ok := lookupEnv(opts, "XDG_DATA_HOME"); ok && xdgDataHome != "" {
		dataHome = xdgDataHome
	}
	return filepath.Join(dataHome, "jobops"), nil
}

// DefaultConfigPath is where Load looks for config.toml when neither the
// ConfigPath option nor JOBOPS_CONFIG_PATH points elsewhere.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "JobOps", "config.toml"), nil
	}

	configHome := filepath.Join(home, ".config")
	if xdgConfigHome, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdgConfigHome != "" {
		configHome = xdgConfigHome
	}
	return filepath.Join(configHome, "jobops", "config.toml"), nil
}
