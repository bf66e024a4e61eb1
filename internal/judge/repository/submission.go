package repository

import (
	"context"
	"time"

	"contestjudge/internal/common/db"
	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/sandbox/profile"
	appErr "contestjudge/pkg/errors"
	"contestjudge/pkg/repository"
)

// SubmissionRepository is the single source of truth for submission state.
// Terminal writes are version-checked.
type SubmissionRepository interface {
	FindByID(ctx context.Context, submissionID string) (*model.Submission, error)
	// SaveVerdict moves a submission to status/answer when its version is
	// still expectedVersion. A stale version yields VersionConflict.
	SaveVerdict(ctx context.Context, submissionID string, status model.Status, answer model.Answer, expectedVersion int64) error
	// ListByContest returns the contest's submissions ordered by creation
	// time, restricted to those created after createdAfter when it is set.
	ListByContest(ctx context.Context, contestID string, createdAfter *time.Time) ([]*model.Submission, error)
	ListByMemberProblem(ctx context.Context, memberID, problemID string) ([]*model.Submission, error)
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	db  db.Database
	now func() time.Time
}

// NewSubmissionRepository creates a submission repository.
func NewSubmissionRepository(database db.Database) *MySQLSubmissionRepository {
	return &MySQLSubmissionRepository{db: database, now: time.Now}
}

const submissionColumns = "id, contest_id, member_id, problem_id, language, status, answer, code_key, code_filename, created_at, updated_at, version"

// FindByID loads one submission.
func (r *MySQLSubmissionRepository) FindByID(ctx context.Context, submissionID string) (*model.Submission, error) {
	if submissionID == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	query := "SELECT " + submissionColumns + " FROM submission WHERE id = ? LIMIT 1"
	sub, err := scanSubmission(r.db.QueryRow(ctx, query, submissionID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, appErr.Wrapf(repository.ErrNotFound, appErr.SubmissionNotFound, "submission %s", submissionID)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load submission %s", submissionID)
	}
	return sub, nil
}

// SaveVerdict performs the optimistic compare-and-set on version.
func (r *MySQLSubmissionRepository) SaveVerdict(ctx context.Context, submissionID string, status model.Status, answer model.Answer, expectedVersion int64) error {
	return saveVerdict(ctx, r.db, r.now().UTC(), submissionID, status, answer, expectedVersion)
}

// saveVerdict runs the version-checked update on q, which may be a transaction.
func saveVerdict(ctx context.Context, q db.Querier, at time.Time, submissionID string, status model.Status, answer model.Answer, expectedVersion int64) error {
	if status == model.StatusJudging && answer != model.AnswerNoAnswer {
		return appErr.ValidationError("answer", "must be NO_ANSWER while judging")
	}
	query := `
		UPDATE submission
		SET status = ?, answer = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`
	result, err := q.Exec(ctx, query, string(status), string(answer), at, submissionID, expectedVersion)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "update submission %s", submissionID)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "update submission %s", submissionID)
	}
	if affected == 0 {
		conflict := appErr.ConflictError("submission "+submissionID, expectedVersion)
		conflict.Err = repository.ErrConflict
		return conflict
	}
	return nil
}

// ListByContest returns submissions in creation order.
func (r *MySQLSubmissionRepository) ListByContest(ctx context.Context, contestID string, createdAfter *time.Time) ([]*model.Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submission WHERE contest_id = ?"
	args := []interface{}{contestID}
	if createdAfter != nil {
		query += " AND created_at > ?"
		args = append(args, createdAfter.UTC())
	}
	query += " ORDER BY created_at ASC, id ASC"
	return r.list(ctx, query, args...)
}

// ListByMemberProblem returns one member's attempts at one problem in creation order.
func (r *MySQLSubmissionRepository) ListByMemberProblem(ctx context.Context, memberID, problemID string) ([]*model.Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submission WHERE member_id = ? AND problem_id = ? ORDER BY created_at ASC, id ASC"
	return r.list(ctx, query, memberID, problemID)
}

func (r *MySQLSubmissionRepository) list(ctx context.Context, query string, args ...interface{}) ([]*model.Submission, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list submissions")
	}
	defer rows.Close()

	var out []*model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan submission")
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list submissions")
	}
	return out, nil
}

func scanSubmission(row db.Row) (*model.Submission, error) {
	var (
		sub      model.Submission
		language string
		status   string
		answer   string
	)
	if err := row.Scan(
		&sub.ID,
		&sub.ContestID,
		&sub.MemberID,
		&sub.ProblemID,
		&language,
		&status,
		&answer,
		&sub.CodeKey,
		&sub.CodeFilename,
		&sub.CreatedAt,
		&sub.UpdatedAt,
		&sub.Version,
	); err != nil {
		return nil, err
	}
	sub.Language = profile.Language(language)
	sub.Status = model.Status(status)
	sub.Answer = model.Answer(answer)
	return &sub, nil
}
