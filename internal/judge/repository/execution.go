package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"contestjudge/internal/common/db"
	"contestjudge/internal/common/storage"
	"contestjudge/internal/judge/model"
	appErr "contestjudge/pkg/errors"
	"contestjudge/pkg/repository"

	"github.com/klauspost/compress/zstd"
)

const (
	executionOutputPrefix = "executions/"
	diagnosticsMaxBytes   = 32 << 20
)

// ExecutionRepository stores write-once execution records.
type ExecutionRepository interface {
	// CreateJudged stores execution and moves its submission to JUDGED with
	// the execution's answer in one transaction. A stale expectedVersion
	// yields VersionConflict and leaves no execution row behind.
	CreateJudged(ctx context.Context, execution *model.Execution, expectedVersion int64) error
	// FindLatest returns the newest execution of a submission with its
	// diagnostics loaded.
	FindLatest(ctx context.Context, submissionID string) (*model.Execution, error)
}

type diagnostics struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// MySQLExecutionRepository keeps the record in MySQL and the failing case's
// input and output zstd-compressed in object storage.
type MySQLExecutionRepository struct {
	db      db.Database
	storage storage.ObjectStorage
	bucket  string
	now     func() time.Time
}

// NewExecutionRepository creates an execution repository.
func NewExecutionRepository(database db.Database, objects storage.ObjectStorage, bucket string) *MySQLExecutionRepository {
	return &MySQLExecutionRepository{db: database, storage: objects, bucket: bucket, now: time.Now}
}

// CreateJudged uploads diagnostics first so a stored row never points at a
// missing object. A blob left by a rolled back transaction is unreferenced.
func (r *MySQLExecutionRepository) CreateJudged(ctx context.Context, execution *model.Execution, expectedVersion int64) error {
	if execution == nil || execution.ID == "" || execution.SubmissionID == "" {
		return appErr.ValidationError("execution", "id and submission_id are required")
	}
	if execution.Answer == model.AnswerNoAnswer || execution.Answer == "" {
		return appErr.ValidationError("answer", "a judged execution needs an answer")
	}
	if execution.Input != "" || execution.Output != "" {
		execution.OutputKey = executionOutputPrefix + execution.ID + ".json.zst"
		blob, err := compressDiagnostics(diagnostics{Input: execution.Input, Output: execution.Output})
		if err != nil {
			return appErr.Wrapf(err, appErr.StorageError, "compress execution diagnostics")
		}
		if err := r.storage.PutObject(ctx, r.bucket, execution.OutputKey, bytes.NewReader(blob), int64(len(blob)), "application/zstd"); err != nil {
			return appErr.Wrapf(err, appErr.StorageError, "upload execution diagnostics")
		}
	}

	err := r.db.Transaction(ctx, func(tx db.Transaction) error {
		if err := saveVerdict(ctx, tx, r.now().UTC(), execution.SubmissionID, model.StatusJudged, execution.Answer, expectedVersion); err != nil {
			return err
		}
		return insertExecution(ctx, tx, execution)
	})
	if err != nil && appErr.GetCode(err) == appErr.InternalServerError {
		// begin or commit failed
		return appErr.Wrapf(err, appErr.DatabaseError, "record verdict of %s", execution.SubmissionID)
	}
	return err
}

func insertExecution(ctx context.Context, q db.Querier, execution *model.Execution) error {
	query := `
		INSERT INTO execution
		(id, submission_id, answer, total_test_cases, last_test_case, approved_test_cases, output_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := q.Exec(ctx, query,
		execution.ID,
		execution.SubmissionID,
		string(execution.Answer),
		execution.TotalTestCases,
		execution.LastTestCase,
		execution.ApprovedTestCases,
		execution.OutputKey,
		execution.CreatedAt.UTC(),
	)
	if err != nil {
		if _, ok := db.UniqueViolation(err); ok {
			return appErr.Wrapf(repository.ErrAlreadyExists, appErr.RecordAlreadyExists, "execution %s", execution.ID)
		}
		return appErr.Wrapf(err, appErr.DatabaseError, "insert execution")
	}
	return nil
}

// FindLatest loads the newest execution for a submission.
func (r *MySQLExecutionRepository) FindLatest(ctx context.Context, submissionID string) (*model.Execution, error) {
	query := `
		SELECT id, submission_id, answer, total_test_cases, last_test_case, approved_test_cases, output_key, created_at
		FROM execution
		WHERE submission_id = ?
		ORDER BY created_at DESC
		LIMIT 1`
	var (
		e      model.Execution
		answer string
	)
	err := r.db.QueryRow(ctx, query, submissionID).Scan(
		&e.ID,
		&e.SubmissionID,
		&answer,
		&e.TotalTestCases,
		&e.LastTestCase,
		&e.ApprovedTestCases,
		&e.OutputKey,
		&e.CreatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, appErr.Wrapf(repository.ErrNotFound, appErr.RecordNotFound, "execution of %s", submissionID)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load execution")
	}
	e.Answer = model.Answer(answer)
	if e.OutputKey == "" {
		return &e, nil
	}

	blob, err := storage.ReadObject(ctx, r.storage, r.bucket, e.OutputKey, diagnosticsMaxBytes)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.StorageError, "download execution diagnostics")
	}
	d, err := decompressDiagnostics(blob)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.StorageError, "decode execution diagnostics")
	}
	e.Input, e.Output = d.Input, d.Output
	return &e, nil
}

func compressDiagnostics(d diagnostics) ([]byte, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(payload, nil), nil
}

func decompressDiagnostics(blob []byte) (diagnostics, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return diagnostics{}, err
	}
	defer dec.Close()
	payload, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return diagnostics{}, err
	}
	var d diagnostics
	if err := json.Unmarshal(payload, &d); err != nil {
		return diagnostics{}, err
	}
	return d, nil
}
