package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/codesapienbe/jobops/internal/store"
)

// TransferService moves whole stores in and out of JSON bundles. Exports are
// always decoded logical form; imports replace the store's contents and
// regenerate every id, which the engine guarantees in one transaction.
type TransferService struct {
	engine *store.Engine
}

func NewTransferService(engine *store.Engine) *TransferService {
	return &TransferService{engine: engine}
}

// ExportJSON snapshots the store into a bundle payload.
func (s *TransferService) ExportJSON(ctx context.Context, pretty bool) ([]byte, error) {
	_, payload, err := s.exportBundle(ctx, pretty)
	return payload, err
}

// ExportToFile writes the bundle to path with 0600 permissions and returns
// the number of applications exported.
func (s *TransferService) ExportToFile(ctx context.Context, path string, pretty bool) (int, error) {
	if path == "" {
		return 0, fmt.Errorf("%w: output path is required", ErrValidation)
	}

	bundle, payload, err := s.exportBundle(ctx, pretty)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return 0, fmt.Errorf("export to file: create output directory: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return 0, fmt.Errorf("export to file: %w", err)
	}
	return len(bundle.Applications), nil
}

func (s *TransferService) exportBundle(ctx context.Context, pretty bool) (ExportBundle, []byte, error) {
	if s == nil || s.engine == nil {
		return ExportBundle{}, nil, fmt.Errorf("export: engine is nil")
	}

	aggregates, err := s.engine.ExportAll(ctx)
	if err != nil {
		return ExportBundle{}, nil, fmt.Errorf("export: %w", err)
	}
	bundle := ExportBundle{
		Version:      exportBundleVersion,
		ExportedAt:   time.Now().UTC().Format(time.RFC3339Nano),
		Applications: aggregates,
	}

	var payload []byte
	if pretty {
		payload, err = json.MarshalIndent(bundle, "", "  ")
	} else {
		payload, err = json.Marshal(bundle)
	}
	if err != nil {
		return ExportBundle{}, nil, fmt.Errorf("export: marshal bundle: %w", err)
	}
	return bundle, payload, nil
}

// ImportJSON replaces the whole store with the bundle's contents. The caller
// confirms the wipe before invoking; a failed import leaves the previous
// contents intact.
func (s *TransferService) ImportJSON(ctx context.Context, payload []byte) (ImportResult, error) {
	if s == nil || s.engine == nil {
		return ImportResult{}, fmt.Errorf("import json: engine is nil")
	}
	if len(payload) == 0 {
		return ImportResult{}, fmt.Errorf("%w: empty payload", ErrValidation)
	}

	var bundle ExportBundle
	if err := json.Unmarshal(payload, &bundle); err != nil {
		return ImportResult{}, fmt.Errorf("%w: decode bundle: %v", ErrValidation, err)
	}
	if bundle.Version != exportBundleVersion {
		return ImportResult{}, fmt.Errorf("%w: unsupported bundle version %d", ErrValidation, bundle.Version)
	}

	if err := s.engine.ImportAll(ctx, bundle.Applications); err != nil {
		return ImportResult{}, fmt.Errorf("import json: %w", err)
	}
	return countBundle(bundle), nil
}

// ImportFromFile reads a bundle from path and imports it.
func (s *TransferService) ImportFromFile(ctx context.Context, path string) (ImportResult, error) {
	if path == "" {
		return ImportResult{}, fmt.Errorf("%w: input path is required", ErrValidation)
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("import from file: %w", err)
	}
	return s.ImportJSON(ctx, payload)
}
