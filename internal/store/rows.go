package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codesapienbe/jobops/internal/schema"
)

// Low-level row access. Every entity table has the same shape: plaintext index
// columns for lookups plus a doc column holding the stored-form JSON verbatim.
// The root table carries two extra index columns; the 17 child tables are
// handled uniformly by name.

func ensureID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t, nil
}

func stringField(rec Record, key string) string {
	v, _ := rec[key].(string)
	return v
}

func insertRow(ctx context.Context, q dbtx, table schema.Table, stored Record) error {
	doc, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode %s row: %w", table, err)
	}

	if table == schema.JobApplications {
		_, err = q.ExecContext(ctx, `
			INSERT INTO job_applications(id, canonical_url, status, created_at, updated_at, doc)
			VALUES(?, ?, ?, ?, ?, ?)
		`, stringField(stored, schema.FieldID),
			stringField(stored, schema.FieldCanonicalURL),
			stringField(stored, schema.FieldStatus),
			stringField(stored, schema.FieldCreatedAt),
			stringField(stored, schema.FieldUpdatedAt),
			string(doc))
	} else {
		_, err = q.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s(id, %s, created_at, updated_at, doc)
			VALUES(?, ?, ?, ?, ?)
		`, table, table.ForeignKey()),
			stringField(stored, schema.FieldID),
			stringField(stored, table.ForeignKey()),
			stringField(stored, schema.FieldCreatedAt),
			stringField(stored, schema.FieldUpdatedAt),
			string(doc))
	}
	if err != nil {
		return mapConstraintErr(table, err)
	}
	return nil
}

func upsertRow(ctx context.Context, q dbtx, table schema.Table, stored Record) error {
	doc, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode %s row: %w", table, err)
	}

	if table == schema.JobApplications {
		_, err = q.ExecContext(ctx, `
			INSERT INTO job_applications(id, canonical_url, status, created_at, updated_at, doc)
			VALUES(?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				canonical_url = excluded.canonical_url,
				status = excluded.status,
				created_at = excluded.created_at,
				updated_at = excluded.updated_at,
				doc = excluded.doc
		`, stringField(stored, schema.FieldID),
			stringField(stored, schema.FieldCanonicalURL),
			stringField(stored, schema.FieldStatus),
			stringField(stored, schema.FieldCreatedAt),
			stringField(stored, schema.FieldUpdatedAt),
			string(doc))
	} else {
		fk := table.ForeignKey()
		_, err = q.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s(id, %s, created_at, updated_at, doc)
			VALUES(?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				%s = excluded.%s,
				created_at = excluded.created_at,
				updated_at = excluded.updated_at,
				doc = excluded.doc
		`, table, fk, fk, fk),
			stringField(stored, schema.FieldID),
			stringField(stored, fk),
			stringField(stored, schema.FieldCreatedAt),
			stringField(stored, schema.FieldUpdatedAt),
			string(doc))
	}
	if err != nil {
		return mapConstraintErr(table, err)
	}
	return nil
}

func updateRow(ctx context.Context, q dbtx, table schema.Table, id string, stored Record) (int64, error) {
	doc, err := json.Marshal(stored)
	if err != nil {
		return 0, fmt.Errorf("encode %s row: %w", table, err)
	}

	var result sql.Result
	if table == schema.JobApplications {
		result, err = q.ExecContext(ctx, `
			UPDATE job_applications
			SET canonical_url = ?, status = ?, updated_at = ?, doc = ?
			WHERE id = ?
		`, stringField(stored, schema.FieldCanonicalURL),
			stringField(stored, schema.FieldStatus),
			stringField(stored, schema.FieldUpdatedAt),
			string(doc), id)
	} else {
		fk := table.ForeignKey()
		result, err = q.ExecContext(ctx, fmt.Sprintf(`
			UPDATE %s
			SET %s = ?, updated_at = ?, doc = ?
			WHERE id = ?
		`, table, fk),
			stringField(stored, fk),
			stringField(stored, schema.FieldUpdatedAt),
			string(doc), id)
	}
	if err != nil {
		return 0, mapConstraintErr(table, err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update %s: rows affected: %w", table, err)
	}
	return count, nil
}

func deleteRow(ctx context.Context, q dbtx, table schema.Table, id string) (int64, error) {
	result, err := q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete from %s: rows affected: %w", table, err)
	}
	return count, nil
}

func getRow(ctx context.Context, q dbtx, table schema.Table, field, value string) (Record, bool, error) {
	var doc string
	err := q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT doc FROM %s WHERE %s = ? LIMIT 1`, table, field),
		value).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get from %s: %w", table, err)
	}
	stored, err := decodeDoc(table, doc)
	if err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

func listRows(ctx context.Context, q dbtx, table schema.Table, field, value string) ([]Record, error) {
	return queryDocs(ctx, q, table,
		fmt.Sprintf(`SELECT doc FROM %s WHERE %s = ? ORDER BY created_at, id`, table, field),
		value)
}

func listAllRows(ctx context.Context, q dbtx, table schema.Table) ([]Record, error) {
	return queryDocs(ctx, q, table,
		fmt.Sprintf(`SELECT doc FROM %s ORDER BY created_at, id`, table))
}

func queryDocs(ctx context.Context, q dbtx, table schema.Table, query string, args ...any) ([]Record, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list from %s: %w", table, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("list from %s: %w", table, err)
		}
		stored, err := decodeDoc(table, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list from %s: %w", table, err)
	}
	return out, nil
}

func decodeDoc(table schema.Table, doc string) (Record, error) {
	var stored Record
	if err := json.Unmarshal([]byte(doc), &stored); err != nil {
		return nil, fmt.Errorf("decode %s row: %w", table, err)
	}
	return stored, nil
}

// mapConstraintErr turns the unique canonical_url violation into its sentinel.
// Other constraint failures pass through with table context.
func mapConstraintErr(table schema.Table, err error) error {
	if table == schema.JobApplications &&
		strings.Contains(err.Error(), "UNIQUE constraint failed: job_applications.canonical_url") {
		return fmt.Errorf("%w: %s", ErrDuplicateURL, err)
	}
	return fmt.Errorf("write %s: %w", table, err)
}
