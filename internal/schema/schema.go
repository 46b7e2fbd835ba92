// Package schema declares the fixed table set of the application store and the
// ordered, additive migrations that produce it. Migrations only ever add
// tables, indexes, or metadata; nothing is dropped or renamed.
package schema

// Table identifies one entity table. The set is closed: every operation on the
// store dispatches on one of the constants below.
type Table string

const (
	// JobApplications is the root table. Every other entity table hangs off
	// it, directly or through SkillsMatrix.
	JobApplications Table = "job_applications"

	PositionDetails      Table = "position_details"
	CompensationDetails  Table = "compensation_details"
	CompanyProfiles      Table = "company_profiles"
	RecruiterContacts    Table = "recruiter_contacts"
	InterviewRounds      Table = "interview_rounds"
	OfferTerms           Table = "offer_terms"
	StatusHistory        Table = "status_history"
	Notes                Table = "notes"
	FollowUpTasks        Table = "follow_up_tasks"
	Attachments          Table = "attachments"
	ApplicationQuestions Table = "application_questions"
	Communications       Table = "communications"
	Referrals            Table = "referrals"
	WorkArrangements     Table = "work_arrangements"
	ScreeningResults     Table = "screening_results"
	SkillsMatrix         Table = "skills_matrix"

	// SkillAssessments is the one second-level table: its rows reference a
	// skills_matrix row, not the root.
	SkillAssessments Table = "skill_assessments"
)

// Field names shared across tables.
const (
	FieldID           = "id"
	FieldCreatedAt    = "created_at"
	FieldUpdatedAt    = "updated_at"
	FieldCanonicalURL = "canonical_url"
	FieldStatus       = "status"

	ForeignKeyRoot         = "job_application_id"
	ForeignKeySkillsMatrix = "skills_matrix_id"
)

// Metadata keys persisted in store_meta.
const (
	MetaSchemaVersion  = "schema_version"
	MetaEncryptionSalt = "encryption_salt"
)

var rootChildren = []Table{
	PositionDetails,
	CompensationDetails,
	CompanyProfiles,
	RecruiterContacts,
	InterviewRounds,
	OfferTerms,
	StatusHistory,
	Notes,
	FollowUpTasks,
	Attachments,
	ApplicationQuestions,
	Communications,
	Referrals,
	WorkArrangements,
	ScreeningResults,
	SkillsMatrix,
}

// All returns every entity table, root first.
func All() []Table {
	out := make([]Table, 0, len(rootChildren)+2)
	out = append(out, JobApplications)
	out = append(out, rootChildren...)
	out = append(out, SkillAssessments)
	return out
}

// Children returns every dependent table, the second-level one last.
func Children() []Table {
	out := make([]Table, 0, len(rootChildren)+1)
	out = append(out, rootChildren...)
	out = append(out, SkillAssessments)
	return out
}

// RootChildren returns the tables whose rows reference the root directly.
func RootChildren() []Table {
	out := make([]Table, len(rootChildren))
	copy(out, rootChildren)
	return out
}

// Valid reports whether t names a declared entity table.
func (t Table) Valid() bool {
	if t == JobApplications || t == SkillAssessments {
		return true
	}
	for _, child := range rootChildren {
		if t == child {
			return true
		}
	}
	return false
}

func (t Table) String() string {
	return string(t)
}

// ForeignKey returns the name of the parent-reference field, or "" for the
// root table.
func (t Table) ForeignKey() string {
	switch t {
	case JobApplications:
		return ""
	case SkillAssessments:
		return ForeignKeySkillsMatrix
	default:
		return ForeignKeyRoot
	}
}

// Parent returns the table the foreign key resolves into, or "" for the root.
func (t Table) Parent() Table {
	switch t {
	case JobApplications:
		return ""
	case SkillAssessments:
		return SkillsMatrix
	default:
		return JobApplications
	}
}

// IndexFields returns the fields of t that stay plaintext to keep lookups
// working when record payloads are encrypted. The slice is a fresh copy.
func (t Table) IndexFields() []string {
	fields := []string{FieldID, FieldCreatedAt, FieldUpdatedAt}
	if fk := t.ForeignKey(); fk != "" {
		fields = append(fields, fk)
	}
	if t == JobApplications {
		fields = append(fields, FieldCanonicalURL, FieldStatus)
	}
	return fields
}

// IsIndexField reports whether name belongs to t's plaintext allow-list.
func (t Table) IsIndexField(name string) bool {
	for _, field := range t.IndexFields() {
		if field == name {
			return true
		}
	}
	return false
}
