package schema

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSchemaTooNew is returned when the on-disk schema version is ahead of this
// build. Older builds must not write into a newer layout.
var ErrSchemaTooNew = errors.New("schema: store was created by a newer version")

// Migration is one additive schema step. Up runs inside its own transaction;
// the version bump and audit row are recorded in the same transaction, so a
// failed step leaves the store at the previous version.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// Migrations returns the full ordered history. Every step is idempotent
// (CREATE ... IF NOT EXISTS only), so replaying against an up-to-date store is
// harmless.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "core application tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{ddlRoot()}
				for _, t := range []Table{
					PositionDetails, CompensationDetails, CompanyProfiles,
					RecruiterContacts, InterviewRounds, OfferTerms,
					StatusHistory, Notes, FollowUpTasks, Attachments,
					ApplicationQuestions,
				} {
					stmts = append(stmts, ddlChild(t), ddlForeignKeyIndex(t))
				}
				stmts = append(stmts,
					ddlUniqueIndex(JobApplications, FieldCanonicalURL),
					ddlIndex(JobApplications, FieldStatus),
				)
				return execAll(tx, stmts)
			},
		},
		{
			Version:     2,
			Description: "skills matrix and per-skill assessments",
			Up: func(tx *sql.Tx) error {
				return execAll(tx, []string{
					ddlChild(SkillsMatrix),
					ddlForeignKeyIndex(SkillsMatrix),
					ddlChild(SkillAssessments),
					ddlForeignKeyIndex(SkillAssessments),
				})
			},
		},
		{
			Version:     3,
			Description: "communications, referrals, work arrangements, screening results; updated_at indexes",
			Up: func(tx *sql.Tx) error {
				stmts := []string{}
				for _, t := range []Table{Communications, Referrals, WorkArrangements, ScreeningResults} {
					stmts = append(stmts, ddlChild(t), ddlForeignKeyIndex(t))
				}
				for _, t := range All() {
					stmts = append(stmts, ddlIndex(t, FieldUpdatedAt))
				}
				return execAll(tx, stmts)
			},
		},
	}
}

// CurrentVersion is the schema version a fresh store ends up at.
func CurrentVersion() int {
	migs := Migrations()
	return migs[len(migs)-1].Version
}

// Run brings db up to the latest schema version. Already-applied steps are
// skipped; a store ahead of this build is rejected with ErrSchemaTooNew.
func Run(db *sql.DB, migrations []Migration) error {
	if err := ensureInfraTables(db); err != nil {
		return err
	}
	current, err := readVersion(db)
	if err != nil {
		return err
	}
	latest := 0
	if len(migrations) > 0 {
		latest = migrations[len(migrations)-1].Version
	}
	if current > latest {
		return fmt.Errorf("%w (store version %d, supported %d)", ErrSchemaTooNew, current, latest)
	}
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := apply(db, m); err != nil {
			return fmt.Errorf("schema: migration %d (%s): %w", m.Version, m.Description, err)
		}
	}
	return nil
}

func apply(db *sql.DB, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := m.Up(tx); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.Exec(
		`INSERT INTO store_meta (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		MetaSchemaVersion, fmt.Sprintf("%d", m.Version), now,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)`,
		m.Version, m.Description, now,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// ensureInfraTables creates the metadata and audit tables that exist at every
// schema version.
func ensureInfraTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS store_meta (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema: ensure metadata tables: %w", err)
		}
	}
	return nil
}

func readVersion(db *sql.DB) (int, error) {
	var raw string
	err := db.QueryRow(`SELECT value FROM store_meta WHERE key = ?`, MetaSchemaVersion).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("schema: read version: %w", err)
	}
	var v int
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil {
		return 0, fmt.Errorf("schema: parse version %q: %w", raw, err)
	}
	return v, nil
}

func execAll(tx *sql.Tx, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("%s: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func ddlRoot() string {
	return `CREATE TABLE IF NOT EXISTS job_applications (
		id            TEXT PRIMARY KEY,
		canonical_url TEXT NOT NULL DEFAULT '',
		status        TEXT NOT NULL DEFAULT '',
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL,
		doc           TEXT NOT NULL
	)`
}

func ddlChild(t Table) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id         TEXT PRIMARY KEY,
		%s         TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		doc        TEXT NOT NULL
	)`, t, t.ForeignKey())
}

func ddlForeignKeyIndex(t Table) string {
	return ddlIndex(t, t.ForeignKey())
}

func ddlIndex(t Table, field string) string {
	return fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)`, t, field, t, field)
}

func ddlUniqueIndex(t Table, field string) string {
	return fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)`, t, field, t, field)
}

func firstLine(stmt string) string {
	for i := 0; i < len(stmt); i++ {
		if stmt[i] == '\n' {
			return stmt[:i]
		}
	}
	return stmt
}
