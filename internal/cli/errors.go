package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/zalando/go-keyring"

	"github.com/codesapienbe/jobops/internal/app"
	"github.com/codesapienbe/jobops/internal/config"
	"github.com/codesapienbe/jobops/internal/crypto"
	"github.com/codesapienbe/jobops/internal/schema"
	"github.com/codesapienbe/jobops/internal/store"
)

const (
	ExitCodeSuccess           = 0
	ExitCodeGeneric           = 1
	ExitCodeUsage             = 2
	ExitCodeNotFound          = 3
	ExitCodePermission        = 4
	ExitCodeAuthFailed        = 5
	ExitCodeDependencyMissing = 6
	ExitCodeIO                = 7
)

type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ExitError) ExitCode() int {
	if e == nil {
		return ExitCodeGeneric
	}
	return e.Code
}

func asExitError(code int, err error) error {
	if err == nil {
		return nil
	}
	var withExit interface{ ExitCode() int }
	if errors.As(err, &withExit) {
		return err
	}
	return &ExitError{Code: code, Err: err}
}

// mapCommandError assigns an exit code to an error surfaced by a command.
// Errors that already carry a code pass through unchanged.
func mapCommandError(err error) error {
	if err == nil {
		return nil
	}
	var withExit interface{ ExitCode() int }
	if errors.As(err, &withExit) {
		return err
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return asExitError(ExitCodeNotFound, err)
	case errors.Is(err, keyring.ErrNotFound):
		return asExitError(ExitCodeNotFound, err)
	case errors.Is(err, store.ErrUnknownTable),
		errors.Is(err, store.ErrDuplicateURL),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, app.ErrValidation),
		errors.Is(err, crypto.ErrPassphraseTooShort),
		errors.Is(err, crypto.ErrInvalidKDFParams):
		return asExitError(ExitCodeUsage, err)
	case errors.Is(err, crypto.ErrKeyMissing), errors.Is(err, crypto.ErrDecryptionFailed):
		return asExitError(ExitCodeAuthFailed, err)
	case errors.Is(err, schema.ErrSchemaTooNew), errors.Is(err, keyring.ErrUnsupportedPlatform):
		return asExitError(ExitCodeDependencyMissing, err)
	case errors.Is(err, os.ErrPermission):
		return asExitError(ExitCodePermission, err)
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) || errors.Is(err, os.ErrNotExist) {
		return asExitError(ExitCodeIO, err)
	}

	return asExitError(ExitCodeGeneric, err)
}

func usageErrorf(format string, args ...any) error {
	return &ExitError{
		Code: ExitCodeUsage,
		Err:  fmt.Errorf(format, args...),
	}
}
