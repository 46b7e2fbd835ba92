package store

import (
	"context"
	"fmt"
	"time"

	"github.com/codesapienbe/jobops/internal/schema"
)

// Insert stores data as a new record and returns its id. A missing id is
// assigned; created_at and updated_at are always set to now. Root records
// must carry a canonical_url, and a duplicate one fails with ErrDuplicateURL.
func (e *Engine) Insert(ctx context.Context, table schema.Table, data Record) (string, error) {
	if !table.Valid() {
		return "", fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	db, err := e.handle()
	if err != nil {
		return "", err
	}

	rec := cloneRecord(data)
	id := ensureID(stringField(rec, schema.FieldID))
	now := fmtTime(nowUTC())
	rec[schema.FieldID] = id
	rec[schema.FieldCreatedAt] = now
	rec[schema.FieldUpdatedAt] = now

	if table == schema.JobApplications && stringField(rec, schema.FieldCanonicalURL) == "" {
		return "", fmt.Errorf("store: insert %s: canonical_url is required", table)
	}

	stored, err := e.codec.prepareForStore(table, rec)
	if err != nil {
		return "", err
	}
	if err := insertRow(ctx, db, table, stored); err != nil {
		return "", err
	}
	return id, nil
}

// GetByID returns the record in decoded logical form, or nil without error
// when no row has that id.
func (e *Engine) GetByID(ctx context.Context, table schema.Table, id string) (Record, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	db, err := e.handle()
	if err != nil {
		return nil, err
	}

	stored, ok, err := getRow(ctx, db, table, schema.FieldID, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return e.codec.reconstruct(table, stored)
}

// Update shallow-merges partial over the existing record and rewrites it. The
// merge happens on the decoded logical form, never on the stored form, so an
// encrypted payload survives partial updates intact. id and created_at are
// immutable; updated_at strictly increases even within one clock tick.
func (e *Engine) Update(ctx context.Context, table schema.Table, id string, partial Record) error {
	if !table.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return e.withTx(ctx, func(tx dbtx) error {
		stored, ok, err := getRow(ctx, tx, table, schema.FieldID, id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		logical, err := e.codec.reconstruct(table, stored)
		if err != nil {
			return err
		}

		merged := cloneRecord(logical)
		for k, v := range partial {
			merged[k] = v
		}
		merged[schema.FieldID] = id
		if created, exists := logical[schema.FieldCreatedAt]; exists {
			merged[schema.FieldCreatedAt] = created
		}
		merged[schema.FieldUpdatedAt] = fmtTime(nextUpdateTime(logical))

		rewritten, err := e.codec.prepareForStore(table, merged)
		if err != nil {
			return err
		}
		count, err := updateRow(ctx, tx, table, id, rewritten)
		if err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Delete removes a single record, failing with ErrNotFound when absent.
// Removing a root this way leaves its children in place; DeleteCascade is the
// sanctioned path for whole applications.
func (e *Engine) Delete(ctx context.Context, table schema.Table, id string) error {
	if !table.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	db, err := e.handle()
	if err != nil {
		return err
	}

	count, err := deleteRow(ctx, db, table, id)
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByForeignKey returns every record of table referencing foreignID,
// ordered by creation time.
func (e *Engine) ListByForeignKey(ctx context.Context, table schema.Table, foreignID string) ([]Record, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	fk := table.ForeignKey()
	if fk == "" {
		return nil, fmt.Errorf("store: %s has no foreign key", table)
	}
	db, err := e.handle()
	if err != nil {
		return nil, err
	}
	return e.listDecoded(ctx, db, table, fk, foreignID)
}

// GetByUniqueField looks a record up by one of its plaintext index fields
// (canonical-url lookups on the root table); nil without error when absent.
func (e *Engine) GetByUniqueField(ctx context.Context, table schema.Table, field, value string) (Record, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if !table.IsIndexField(field) {
		return nil, fmt.Errorf("store: %s has no index on %q", table, field)
	}
	db, err := e.handle()
	if err != nil {
		return nil, err
	}

	stored, ok, err := getRow(ctx, db, table, field, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return e.codec.reconstruct(table, stored)
}

// Count returns the number of rows in table.
func (e *Engine) Count(ctx context.Context, table schema.Table) (int64, error) {
	if !table.Valid() {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	db, err := e.handle()
	if err != nil {
		return 0, err
	}

	var n int64
	if err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count %s: %w", table, err)
	}
	return n, nil
}

func (e *Engine) listDecoded(ctx context.Context, q dbtx, table schema.Table, field, value string) ([]Record, error) {
	storedRows, err := listRows(ctx, q, table, field, value)
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

// nextUpdateTime returns now, nudged forward when the previous updated_at is
// not in the past.
func nextUpdateTime(prev Record) time.Time {
	next := nowUTC()
	if raw := stringField(prev, schema.FieldUpdatedAt); raw != "" {
		if last, err := parseTime(raw); err == nil && !next.After(last) {
			next = last.Add(time.Nanosecond)
		}
	}
	return next
}
