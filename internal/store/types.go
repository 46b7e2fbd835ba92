// Package store implements the local application store: a SQLite-backed
// document store over the fixed table set in internal/schema, with transparent
// payload encryption, cascading deletion, and whole-store export/import.
package store

import "errors"

var (
	ErrNotInitialized    = errors.New("store: not initialized")
	ErrNotFound          = errors.New("store: not found")
	ErrUnknownTable      = errors.New("store: unknown table")
	ErrTransactionFailed = errors.New("store: transaction failed")
	ErrDuplicateURL      = errors.New("store: duplicate canonical url")
)

// Record is one logical record in decoded form. Payload fields are
// caller-defined; the schema registry only owns the per-table index
// allow-list.
type Record = map[string]any

// Aggregate is one root record with every dependent collection, all in
// decoded logical form. Children is keyed by child table name and always
// carries one entry per direct child table; SkillAssessments is keyed by
// skills-matrix row id.
type Aggregate struct {
	Application      Record              `json:"job_application"`
	Children         map[string][]Record `json:"children"`
	SkillAssessments map[string][]Record `json:"skill_assessments"`
}

func cloneRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
