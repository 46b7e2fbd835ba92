package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/codesapienbe/jobops/internal/crypto"
	"github.com/codesapienbe/jobops/internal/schema"
)

const (
	pragmaJournalModeWAL = `PRAGMA journal_mode=WAL`
	pragmaForeignKeysOn  = `PRAGMA foreign_keys=ON`
	pragmaBusyTimeout    = `PRAGMA busy_timeout=5000`
)

type engineState int

const (
	stateClosed engineState = iota
	stateOpening
	stateOpen
)

// Engine owns the single live store handle of the process. It moves through
// Closed -> Opening -> Open -> Closed; every operation except Open fails with
// ErrNotInitialized outside Open, and concurrent opens during Opening await
// the one in-flight attempt instead of starting another.
type Engine struct {
	path   string
	kdf    crypto.PBKDF2Params
	logger *slog.Logger

	session *crypto.Session
	codec   *codec

	mu      sync.Mutex
	state   engineState
	opening chan struct{}
	openErr error
	db      *sql.DB
	salt    []byte
}

type Options struct {
	// Path of the SQLite database file. Required.
	Path string

	// KDF overrides the key-derivation parameters. Zero value means defaults.
	KDF crypto.PBKDF2Params

	// Logger receives lifecycle events. Nil means silent.
	Logger *slog.Logger
}

func New(opts Options) (*Engine, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("store: empty path")
	}
	if opts.KDF == (crypto.PBKDF2Params{}) {
		opts.KDF = crypto.DefaultPBKDF2Params()
	}
	if err := opts.KDF.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	session := crypto.NewSession()
	return &Engine{
		path:    opts.Path,
		kdf:     opts.KDF,
		logger:  opts.Logger,
		session: session,
		codec:   &codec{session: session},
	}, nil
}

// Open brings the engine to the Open state: connects, applies pragmas, runs
// migrations, tightens file permissions, and loads or creates the encryption
// salt. Opening an already-open engine is a no-op; a concurrent Open while
// another is in flight waits for that attempt and shares its result.
func (e *Engine) Open(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case stateOpen:
		e.mu.Unlock()
		return nil
	case stateOpening:
		wait := e.opening
		e.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.state == stateOpen {
			return nil
		}
		return e.openErr
	}
	e.state = stateOpening
	e.opening = make(chan struct{})
	e.mu.Unlock()

	db, salt, err := openDatabase(ctx, e.path)

	e.mu.Lock()
	defer e.mu.Unlock()
	defer close(e.opening)
	if err != nil {
		e.state = stateClosed
		e.openErr = err
		return err
	}
	e.db = db
	e.salt = salt
	e.state = stateOpen
	e.openErr = nil
	e.logger.Debug("store opened", "path", e.path, "schema_version", schema.CurrentVersion())
	return nil
}

// Close tears the handle down and wipes the session key. Closing a closed
// engine is a no-op.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case stateClosed:
		return nil
	case stateOpening:
		return fmt.Errorf("store: close while open is in flight")
	}

	e.session.Disable()
	err := e.db.Close()
	e.db = nil
	e.salt = nil
	e.state = stateClosed
	if err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	e.logger.Debug("store closed", "path", e.path)
	return nil
}

func (e *Engine) Path() string {
	return e.path
}

// handle returns the live database or ErrNotInitialized.
func (e *Engine) handle() (*sql.DB, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateOpen {
		return nil, ErrNotInitialized
	}
	return e.db, nil
}

func (e *Engine) withTx(ctx context.Context, fn func(tx dbtx) error) error {
	db, err := e.handle()
	if err != nil {
		return err
	}
	return withTx(ctx, db, fn)
}

// ConfigureEncryption turns payload encryption on or off for subsequent
// writes. Enabling derives the session key from the passphrase and the
// persisted salt; disabling wipes the key. Rows already on disk are not
// rewritten in either direction.
func (e *Engine) ConfigureEncryption(ctx context.Context, enabled bool, passphrase []byte) error {
	if _, err := e.handle(); err != nil {
		return err
	}
	if !enabled {
		e.session.Disable()
		e.logger.Debug("encryption disabled")
		return nil
	}

	e.mu.Lock()
	salt := append([]byte(nil), e.salt...)
	e.mu.Unlock()

	key, err := crypto.DeriveKey(passphrase, salt, e.kdf)
	if err != nil {
		return err
	}
	e.session.Enable(key)
	e.logger.Debug("encryption enabled")
	return nil
}

// EncryptionActive reports whether new writes will be encrypted.
func (e *Engine) EncryptionActive() bool {
	return e.session.Active()
}

// SchemaVersion reads the applied schema version from store metadata.
func (e *Engine) SchemaVersion(ctx context.Context) (int, error) {
	db, err := e.handle()
	if err != nil {
		return 0, err
	}
	raw, ok, err := readMeta(ctx, db, schema.MetaSchemaVersion)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("store: parse schema version %q: %w", raw, err)
	}
	return version, nil
}

func openDatabase(ctx context.Context, path string) (*sql.DB, []byte, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("store: create parent dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)

	if err := configureSQLite(db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	if err := schema.Run(db, schema.Migrations()); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	if err := ensureDBPermissions(path); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	salt, err := loadOrCreateSalt(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, salt, nil
}

func configureSQLite(db *sql.DB) error {
	pragmas := []string{pragmaJournalModeWAL, pragmaForeignKeysOn, pragmaBusyTimeout}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: configure sqlite %q: %w", stmt, err)
		}
	}
	return nil
}

func ensureDBPermissions(path string) error {
	if err := os.Chmod(path, 0o600); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("store: set db file permissions: %w", err)
		}
	}
	walPath := path + "-wal"
	if err := os.Chmod(walPath, 0o600); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("store: set wal file permissions: %w", err)
		}
	}
	return nil
}

// loadOrCreateSalt reads the persisted KDF salt, generating and persisting it
// on first open. The salt is not secret; only the derived key is.
func loadOrCreateSalt(ctx context.Context, db *sql.DB) ([]byte, error) {
	raw, ok, err := readMeta(ctx, db, schema.MetaEncryptionSalt)
	if err != nil {
		return nil, err
	}
	if ok {
		salt, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("store: decode encryption salt: %w", err)
		}
		return salt, nil
	}

	salt, err := crypto.GenerateSalt(crypto.DefaultSaltLen)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if err := writeMeta(ctx, db, schema.MetaEncryptionSalt, base64.StdEncoding.EncodeToString(salt)); err != nil {
		return nil, err
	}
	return salt, nil
}

func readMeta(ctx context.Context, q dbtx, key string) (string, bool, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: read meta %q: %w", key, err)
	}
	return value, true, nil
}

func writeMeta(ctx context.Context, q dbtx, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO store_meta(key, value, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, fmtTime(nowUTC()))
	if err != nil {
		return fmt.Errorf("store: write meta %q: %w", key, err)
	}
	return nil
}
