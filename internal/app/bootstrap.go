package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/codesapienbe/jobops/internal/store"
)

// BootstrapStore creates the store file at path with the full schema applied
// and the encryption salt minted, then closes it again. Opening an existing
// store is harmless; migrations are idempotent.
func BootstrapStore(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("%w: store path is required", ErrValidation)
	}

	engine, err := store.New(store.Options{Path: filepath.Clean(path)})
	if err != nil {
		return fmt.Errorf("bootstrap store: %w", err)
	}
	if err := engine.Open(ctx); err != nil {
		return fmt.Errorf("bootstrap store: open: %w", err)
	}
	if err := engine.Close(); err != nil {
		return fmt.Errorf("bootstrap store: close: %w", err)
	}
	return nil
}
