package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codesapienbe/jobops/internal/schema"
)

func TestGetAggregate(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()

	rootID := seedApplication(t, e, "https://example.com/jobs/1")
	_, err := e.Insert(ctx, schema.PositionDetails,
		Record{"job_application_id": rootID, "title": "Backend Engineer"})
	require.NoError(t, err)
	_, err = e.Insert(ctx, schema.Notes, Record{"job_application_id": rootID, "body": "first note"})
	require.NoError(t, err)
	_, err = e.Insert(ctx, schema.Notes, Record{"job_application_id": rootID, "body": "second note"})
	require.NoError(t, err)

	matrixID, err := e.Insert(ctx, schema.SkillsMatrix,
		Record{"job_application_id": rootID, "source": "posting"})
	require.NoError(t, err)
	_, err = e.Insert(ctx, schema.SkillAssessments,
		Record{"skills_matrix_id": matrixID, "skill": "Go", "level": "strong"})
	require.NoError(t, err)
	_, err = e.Insert(ctx, schema.SkillAssessments,
		Record{"skills_matrix_id": matrixID, "skill": "SQL", "level": "medium"})
	require.NoError(t, err)

	agg, err := e.GetAggregate(ctx, rootID)
	require.NoError(t, err)
	require.Equal(t, rootID, agg.Application["id"])
	require.Len(t, agg.Children, len(schema.RootChildren()), "every child table appears, populated or not")
	require.Len(t, agg.Children[schema.PositionDetails.String()], 1)
	require.Len(t, agg.Children[schema.Notes.String()], 2)
	require.NotNil(t, agg.Children[schema.OfferTerms.String()])
	require.Empty(t, agg.Children[schema.OfferTerms.String()])
	require.Len(t, agg.SkillAssessments[matrixID], 2)

	_, err = e.GetAggregate(ctx, "no-such-id")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteCascadeRemovesApplicationAndAllChildren(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()

	rootID := seedApplication(t, e, "https://x.com/job/1")
	_, err := e.Insert(ctx, schema.PositionDetails,
		Record{"job_application_id": rootID, "title": "Backend Engineer"})
	require.NoError(t, err)
	matrixID, err := e.Insert(ctx, schema.SkillsMatrix,
		Record{"job_application_id": rootID, "source": "posting"})
	require.NoError(t, err)
	_, err = e.Insert(ctx, schema.SkillAssessments,
		Record{"skills_matrix_id": matrixID, "skill": "Go"})
	require.NoError(t, err)

	bystanderID := seedApplication(t, e, "https://x.com/job/2")
	bystanderNote, err := e.Insert(ctx, schema.Notes,
		Record{"job_application_id": bystanderID, "body": "keep me"})
	require.NoError(t, err)

	require.NoError(t, e.DeleteCascade(ctx, rootID))

	rec, err := e.GetByID(ctx, schema.JobApplications, rootID)
	require.NoError(t, err)
	require.Nil(t, rec)
	for _, table := range schema.RootChildren() {
		rows, err := e.ListByForeignKey(ctx, table, rootID)
		require.NoError(t, err)
		require.Emptyf(t, rows, "cascade left rows behind in %s", table)
	}
	assessments, err := e.ListByForeignKey(ctx, schema.SkillAssessments, matrixID)
	require.NoError(t, err)
	require.Empty(t, assessments, "nested assessments follow their matrix")

	rec, err = e.GetByID(ctx, schema.Notes, bystanderNote)
	require.NoError(t, err)
	require.NotNil(t, rec, "other applications are untouched")
}

func TestDeleteCascadeMissingRoot(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	require.ErrorIs(t, e.DeleteCascade(context.Background(), "no-such-id"), ErrNotFound)
}

func TestExportTableThenImportTablePreservesIDs(t *testing.T) {
	t.Parallel()

	source := newTestEngine(t)
	ctx := context.Background()

	first, err := source.Insert(ctx, schema.Notes, Record{"job_application_id": "app-1", "body": "alpha"})
	require.NoError(t, err)
	second, err := source.Insert(ctx, schema.Notes, Record{"job_application_id": "app-1", "body": "beta"})
	require.NoError(t, err)

	records, err := source.ExportTable(ctx, schema.Notes)
	require.NoError(t, err)
	require.Len(t, records, 2)

	target := newTestEngine(t)
	require.NoError(t, target.ImportTable(ctx, schema.Notes, records))

	for _, id := range []string{first, second} {
		rec, err := target.GetByID(ctx, schema.Notes, id)
		require.NoError(t, err)
		require.NotNil(t, rec, "single-table import keeps the exported ids")
	}
}

func TestImportTableUpsertsExistingRows(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()

	id, err := e.Insert(ctx, schema.Notes, Record{"job_application_id": "app-1", "body": "before"})
	require.NoError(t, err)

	records, err := e.ExportTable(ctx, schema.Notes)
	require.NoError(t, err)
	records[0]["body"] = "after"
	require.NoError(t, e.ImportTable(ctx, schema.Notes, records))

	count, err := e.Count(ctx, schema.Notes)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
	rec, err := e.GetByID(ctx, schema.Notes, id)
	require.NoError(t, err)
	require.Equal(t, "after", rec["body"])
}

func TestExportAllImportAllRoundTrip(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()

	rootOne := seedApplication(t, e, "https://example.com/jobs/1")
	_, err := e.Insert(ctx, schema.PositionDetails,
		Record{"job_application_id": rootOne, "title": "Backend Engineer"})
	require.NoError(t, err)
	matrixID, err := e.Insert(ctx, schema.SkillsMatrix,
		Record{"job_application_id": rootOne, "source": "posting"})
	require.NoError(t, err)
	_, err = e.Insert(ctx, schema.SkillAssessments,
		Record{"skills_matrix_id": matrixID, "skill": "Go"})
	require.NoError(t, err)
	_, err = e.Insert(ctx, schema.SkillAssessments,
		Record{"skills_matrix_id": matrixID, "skill": "SQL"})
	require.NoError(t, err)

	rootTwo := seedApplication(t, e, "https://example.com/jobs/2")
	_, err = e.Insert(ctx, schema.InterviewRounds,
		Record{"job_application_id": rootTwo, "round": "phone screen"})
	require.NoError(t, err)

	exported, err := e.ExportAll(ctx)
	require.NoError(t, err)
	require.Len(t, exported, 2)

	require.NoError(t, e.ImportAll(ctx, exported))

	reimported, err := e.ExportAll(ctx)
	require.NoError(t, err)
	require.Len(t, reimported, 2)

	oldByURL := aggregatesByURL(t, exported)
	newByURL := aggregatesByURL(t, reimported)
	for url, oldAgg := range oldByURL {
		newAgg, ok := newByURL[url]
		require.Truef(t, ok, "application %s missing after import", url)

		oldID := oldAgg.Application["id"].(string)
		newID := newAgg.Application["id"].(string)
		require.NotEqual(t, oldID, newID, "import regenerates every id")
		require.Equal(t, oldAgg.Application["created_at"], newAgg.Application["created_at"],
			"import keeps original timestamps")

		for _, table := range schema.RootChildren() {
			name := table.String()
			require.Lenf(t, newAgg.Children[name], len(oldAgg.Children[name]),
				"row count drifted for %s", name)
			for _, child := range newAgg.Children[name] {
				require.Equal(t, newID, child["job_application_id"],
					"children must point at the regenerated root id")
			}
		}

		require.ElementsMatch(t,
			assessmentSkills(oldAgg), assessmentSkills(newAgg),
			"nested assessments survive with their payloads")
		for newMatrixID, rows := range newAgg.SkillAssessments {
			require.NotContains(t, oldAgg.SkillAssessments, newMatrixID,
				"matrix ids are regenerated")
			for _, row := range rows {
				require.Equal(t, newMatrixID, row["skills_matrix_id"])
			}
		}
	}
}

func TestImportAllReplacesExistingContent(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()

	staleID := seedApplication(t, e, "https://example.com/jobs/stale")
	_, err := e.Insert(ctx, schema.Notes, Record{"job_application_id": staleID, "body": "stale"})
	require.NoError(t, err)

	incoming := map[string]Aggregate{
		"old-root": {
			Application: Record{"canonical_url": "https://example.com/jobs/fresh", "status": "applied"},
			Children: map[string][]Record{
				schema.Notes.String(): {{"body": "fresh"}},
			},
		},
	}
	require.NoError(t, e.ImportAll(ctx, incoming))

	rec, err := e.GetByID(ctx, schema.JobApplications, staleID)
	require.NoError(t, err)
	require.Nil(t, rec, "import replaces the whole store")

	count, err := e.Count(ctx, schema.JobApplications)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
	rec, err = e.GetByUniqueField(ctx, schema.JobApplications, schema.FieldCanonicalURL, "https://example.com/jobs/fresh")
	require.NoError(t, err)
	require.NotNil(t, rec)

	notes, err := e.ListByForeignKey(ctx, schema.Notes, rec["id"].(string))
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, "fresh", notes[0]["body"])
}

func TestImportAllRollsBackOnBadAggregate(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()

	keepID := seedApplication(t, e, "https://example.com/jobs/keep")

	bad := map[string]Aggregate{
		"old-root": {
			Application: Record{"canonical_url": "https://example.com/jobs/bad"},
			SkillAssessments: map[string][]Record{
				"dangling-matrix": {{"skill": "Go"}},
			},
		},
	}
	require.Error(t, e.ImportAll(ctx, bad))

	rec, err := e.GetByID(ctx, schema.JobApplications, keepID)
	require.NoError(t, err)
	require.NotNil(t, rec, "a failed import must leave the store as it was")
	count, err := e.Count(ctx, schema.JobApplications)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestExportAllProducesPlaintextAggregates(t *testing.T) {
	t.Parallel()

	e := newEncryptedEngine(t, testPassphrase)
	ctx := context.Background()

	rootID := seedApplication(t, e, "https://example.com/jobs/1")
	_, err := e.Insert(ctx, schema.PositionDetails,
		Record{"job_application_id": rootID, "title": "Backend Engineer"})
	require.NoError(t, err)

	exported, err := e.ExportAll(ctx)
	require.NoError(t, err)

	raw, err := json.Marshal(exported)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "envelope")
	require.NotContains(t, string(raw), "AES-GCM")
	require.Contains(t, string(raw), "Backend Engineer")
}

func TestImportAllIntoEncryptedStoreSealsRows(t *testing.T) {
	t.Parallel()

	plain := newTestEngine(t)
	ctx := context.Background()

	rootID := seedApplication(t, plain, "https://example.com/jobs/1")
	_, err := plain.Insert(ctx, schema.PositionDetails,
		Record{"job_application_id": rootID, "title": "Backend Engineer"})
	require.NoError(t, err)

	exported, err := plain.ExportAll(ctx)
	require.NoError(t, err)

	sealed := newEncryptedEngine(t, testPassphrase)
	require.NoError(t, sealed.ImportAll(ctx, exported))

	rec, err := sealed.GetByUniqueField(ctx, schema.JobApplications, schema.FieldCanonicalURL, "https://example.com/jobs/1")
	require.NoError(t, err)
	require.NotNil(t, rec)

	positions, err := sealed.ListByForeignKey(ctx, schema.PositionDetails, rec["id"].(string))
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, "Backend Engineer", positions[0]["title"])

	doc := rawDoc(t, sealed, schema.PositionDetails, positions[0]["id"].(string))
	require.Contains(t, doc, `"encrypted":true`)
	require.NotContains(t, doc, "Backend Engineer")
}

func TestClearEmptiesTablesButKeepsMeta(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()

	rootID := seedApplication(t, e, "https://example.com/jobs/1")
	_, err := e.Insert(ctx, schema.Notes, Record{"job_application_id": rootID, "body": "note"})
	require.NoError(t, err)

	require.NoError(t, e.Clear(ctx))

	for _, table := range schema.All() {
		count, err := e.Count(ctx, table)
		require.NoError(t, err)
		require.Zerof(t, count, "%s not emptied", table)
	}

	version, err := e.SchemaVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, schema.CurrentVersion(), version)

	db, err := e.handle()
	require.NoError(t, err)
	_, ok, err := readMeta(ctx, db, schema.MetaEncryptionSalt)
	require.NoError(t, err)
	require.True(t, ok, "clearing data must not discard the salt")
}

func TestSpaceUsage(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()

	rootID := seedApplication(t, e, "https://example.com/jobs/1")
	for i := 0; i < 3; i++ {
		_, err := e.Insert(ctx, schema.Notes, Record{"job_application_id": rootID, "body": "note"})
		require.NoError(t, err)
	}

	usage, err := e.SpaceUsage(ctx)
	require.NoError(t, err)
	require.Len(t, usage, len(schema.All()))
	require.Equal(t, int64(1), usage[schema.JobApplications].Rows)
	require.Equal(t, int64(3), usage[schema.Notes].Rows)
	require.Positive(t, usage[schema.Notes].Bytes)
	require.Zero(t, usage[schema.OfferTerms].Rows)
	require.Zero(t, usage[schema.OfferTerms].Bytes)
}

func seedApplication(t *testing.T, e *Engine, url string) string {
	t.Helper()
	id, err := e.Insert(context.Background(), schema.JobApplications,
		Record{"canonical_url": url, "status": "new"})
	require.NoError(t, err)
	return id
}

func aggregatesByURL(t *testing.T, aggregates map[string]Aggregate) map[string]Aggregate {
	t.Helper()
	out := make(map[string]Aggregate, len(aggregates))
	for _, agg := range aggregates {
		url, _ := agg.Application["canonical_url"].(string)
		require.NotEmpty(t, url)
		out[url] = agg
	}
	return out
}

func assessmentSkills(agg Aggregate) []string {
	var skills []string
	for _, rows := range agg.SkillAssessments {
		for _, row := range rows {
			if s, ok := row["skill"].(string); ok {
				skills = append(skills, s)
			}
		}
	}
	return skills
}
