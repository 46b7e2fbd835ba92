package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/codesapienbe/jobops/internal/schema"
)

// GetAggregate fetches one application with every dependent collection inside
// a single read transaction, so the snapshot is consistent across tables.
func (e *Engine) GetAggregate(ctx context.Context, rootID string) (Aggregate, error) {
	var agg Aggregate
	err := e.withTx(ctx, func(tx dbtx) error {
		stored, ok, err := getRow(ctx, tx, schema.JobApplications, schema.FieldID, rootID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		root, err := e.codec.reconstruct(schema.JobApplications, stored)
		if err != nil {
			return err
		}
		agg, err = e.buildAggregate(ctx, tx, root)
		return err
	})
	return agg, err
}

// DeleteCascade removes an application and every descendant record across all
// dependent tables in one transaction. A missing root fails with ErrNotFound
// and deletes nothing; any sub-failure rolls the whole operation back.
func (e *Engine) DeleteCascade(ctx context.Context, rootID string) error {
	return e.withTx(ctx, func(tx dbtx) error {
		var n int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM job_applications WHERE id = ?`, rootID).Scan(&n); err != nil {
			return fmt.Errorf("store: cascade lookup: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM skill_assessments
			WHERE skills_matrix_id IN (SELECT id FROM skills_matrix WHERE job_application_id = ?)
		`, rootID); err != nil {
			return fmt.Errorf("store: cascade skill_assessments: %w", err)
		}
		for _, child := range schema.RootChildren() {
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`DELETE FROM %s WHERE job_application_id = ?`, child), rootID); err != nil {
				return fmt.Errorf("store: cascade %s: %w", child, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM job_applications WHERE id = ?`, rootID); err != nil {
			return fmt.Errorf("store: cascade root: %w", err)
		}
		return nil
	})
}

// ExportTable returns every record of one table in decoded logical form.
func (e *Engine) ExportTable(ctx context.Context, table schema.Table) ([]Record, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	db, err := e.handle()
	if err != nil {
		return nil, err
	}

	storedRows, err := listAllRows(ctx, db, table)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(storedRows))
	for _, stored := range storedRows {
		rec, err := e.codec.reconstruct(table, stored)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// ImportTable upserts records into one table, preserving ids and timestamps
// where present and filling them where absent. The whole batch is one
// transaction.
func (e *Engine) ImportTable(ctx context.Context, table schema.Table, records []Record) error {
	if !table.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return e.withTx(ctx, func(tx dbtx) error {
		for _, rec := range records {
			r := cloneRecord(rec)
			r[schema.FieldID] = ensureID(stringField(r, schema.FieldID))
			fillTimestamps(r)
			stored, err := e.codec.prepareForStore(table, r)
			if err != nil {
				return err
			}
			if err := upsertRow(ctx, tx, table, stored); err != nil {
				return err
			}
		}
		return nil
	})
}

// ExportAll snapshots the whole store as a map from application id to its
// aggregate, read inside one transaction. Aggregates are decoded logical
// form: an export of an encrypted store is sensitive plaintext.
func (e *Engine) ExportAll(ctx context.Context) (map[string]Aggregate, error) {
	out := map[string]Aggregate{}
	err := e.withTx(ctx, func(tx dbtx) error {
		storedRoots, err := listAllRows(ctx, tx, schema.JobApplications)
		if err != nil {
			return err
		}
		for _, stored := range storedRoots {
			root, err := e.codec.reconstruct(schema.JobApplications, stored)
			if err != nil {
				return err
			}
			agg, err := e.buildAggregate(ctx, tx, root)
			if err != nil {
				return err
			}
			out[stringField(root, schema.FieldID)] = agg
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ImportAll clears the store and rebuilds it from aggregates. Ids are not
// portable across stores: every root, child, and skills-matrix row gets a new
// id, with foreign keys rewritten consistently. Clearing and rebuilding happen
// in one transaction, so a failed import leaves the previous contents intact.
func (e *Engine) ImportAll(ctx context.Context, aggregates map[string]Aggregate) error {
	rootIDs := make([]string, 0, len(aggregates))
	for id := range aggregates {
		rootIDs = append(rootIDs, id)
	}
	sort.Strings(rootIDs)

	return e.withTx(ctx, func(tx dbtx) error {
		if err := clearTables(ctx, tx); err != nil {
			return err
		}
		for _, oldRootID := range rootIDs {
			if err := e.importAggregate(ctx, tx, aggregates[oldRootID]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *Engine) importAggregate(ctx context.Context, tx dbtx, agg Aggregate) error {
	newRootID := uuid.NewString()
	root := cloneRecord(agg.Application)
	root[schema.FieldID] = newRootID
	fillTimestamps(root)
	stored, err := e.codec.prepareForStore(schema.JobApplications, root)
	if err != nil {
		return err
	}
	if err := insertRow(ctx, tx, schema.JobApplications, stored); err != nil {
		return err
	}

	matrixIDs := map[string]string{}
	for _, child := range schema.RootChildren() {
		for _, rec := range agg.Children[child.String()] {
			r := cloneRecord(rec)
			oldID := stringField(r, schema.FieldID)
			newID := uuid.NewString()
			r[schema.FieldID] = newID
			r[schema.ForeignKeyRoot] = newRootID
			fillTimestamps(r)
			if child == schema.SkillsMatrix {
				matrixIDs[oldID] = newID
			}
			stored, err := e.codec.prepareForStore(child, r)
			if err != nil {
				return err
			}
			if err := insertRow(ctx, tx, child, stored); err != nil {
				return err
			}
		}
	}

	for oldMatrixID, assessments := range agg.SkillAssessments {
		newMatrixID, ok := matrixIDs[oldMatrixID]
		if !ok {
			return fmt.Errorf("store: import: skill assessments reference unknown skills matrix %q", oldMatrixID)
		}
		for _, rec := range assessments {
			r := cloneRecord(rec)
			r[schema.FieldID] = uuid.NewString()
			r[schema.ForeignKeySkillsMatrix] = newMatrixID
			fillTimestamps(r)
			stored, err := e.codec.prepareForStore(schema.SkillAssessments, r)
			if err != nil {
				return err
			}
			if err := insertRow(ctx, tx, schema.SkillAssessments, stored); err != nil {
				return err
			}
		}
	}
	return nil
}

// Clear removes every record from every entity table in one transaction,
// leaving schema and metadata (including the salt) in place. Irreversible;
// callers confirm before invoking.
func (e *Engine) Clear(ctx context.Context) error {
	return e.withTx(ctx, func(tx dbtx) error {
		return clearTables(ctx, tx)
	})
}

// TableUsage is one table's row in the space report.
type TableUsage struct {
	Rows  int64 `json:"rows"`
	Bytes int64 `json:"bytes"`
}

// SpaceUsage reports per-table row counts and stored document bytes. The scan
// is best-effort: a failing table reports zeros and the rest of the report
// still completes.
func (e *Engine) SpaceUsage(ctx context.Context) (map[schema.Table]TableUsage, error) {
	db, err := e.handle()
	if err != nil {
		return nil, err
	}

	out := make(map[schema.Table]TableUsage, len(schema.All()))
	for _, table := range schema.All() {
		var usage TableUsage
		err := db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT COUNT(*), COALESCE(SUM(LENGTH(doc)), 0) FROM %s`, table)).
			Scan(&usage.Rows, &usage.Bytes)
		if err != nil {
			e.logger.Warn("space usage scan failed", "table", table.String(), "error", err)
			out[table] = TableUsage{}
			continue
		}
		out[table] = usage
	}
	return out, nil
}

func (e *Engine) buildAggregate(ctx context.Context, tx dbtx, root Record) (Aggregate, error) {
	rootID := stringField(root, schema.FieldID)
	agg := Aggregate{
		Application:      root,
		Children:         make(map[string][]Record, len(schema.RootChildren())),
		SkillAssessments: map[string][]Record{},
	}

	for _, child := range schema.RootChildren() {
		recs, err := e.listDecoded(ctx, tx, child, child.ForeignKey(), rootID)
		if err != nil {
			return Aggregate{}, err
		}
		if recs == nil {
			recs = []Record{}
		}
		agg.Children[child.String()] = recs
	}

	for _, matrix := range agg.Children[schema.SkillsMatrix.String()] {
		matrixID := stringField(matrix, schema.FieldID)
		recs, err := e.listDecoded(ctx, tx, schema.SkillAssessments, schema.ForeignKeySkillsMatrix, matrixID)
		if err != nil {
			return Aggregate{}, err
		}
		if recs == nil {
			recs = []Record{}
		}
		agg.SkillAssessments[matrixID] = recs
	}
	return agg, nil
}

func clearTables(ctx context.Context, tx dbtx) error {
	all := schema.All()
	for i := len(all) - 1; i >= 0; i-- {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, all[i])); err != nil {
			return fmt.Errorf("store: clear %s: %w", all[i], err)
		}
	}
	return nil
}

func fillTimestamps(rec Record) {
	now := fmtTime(nowUTC())
	if stringField(rec, schema.FieldCreatedAt) == "" {
		rec[schema.FieldCreatedAt] = now
	}
	if stringField(rec, schema.FieldUpdatedAt) == "" {
		rec[schema.FieldUpdatedAt] = now
	}
}
