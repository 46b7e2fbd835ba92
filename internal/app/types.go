// Package app provides the service layer between the command surface and the
// store engine: store bootstrap and whole-store transfer as versioned JSON
// bundles.
package app

import (
	"errors"

	"github.com/codesapienbe/jobops/internal/store"
)

var ErrValidation = errors.New("app: validation failed")

const exportBundleVersion = 1

// ExportBundle is the on-disk transfer format: every application aggregate in
// decoded logical form, keyed by the application id it had in the source
// store. Bundles written from an encrypted store are sensitive plaintext.
type ExportBundle struct {
	Version      int                        `json:"version"`
	ExportedAt   string                     `json:"exported_at"`
	Applications map[string]store.Aggregate `json:"applications"`
}

// ImportResult counts what an import wrote.
type ImportResult struct {
	Applications     int `json:"applications"`
	Children         int `json:"children"`
	SkillAssessments int `json:"skill_assessments"`
}

func countBundle(bundle ExportBundle) ImportResult {
	result := ImportResult{Applications: len(bundle.Applications)}
	for _, agg := range bundle.Applications {
		for _, records := range agg.Children {
			result.Children += len(records)
		}
		for _, records := range agg.SkillAssessments {
			result.SkillAssessments += len(records)
		}
	}
	return result
}
