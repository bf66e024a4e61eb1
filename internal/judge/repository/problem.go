package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"contestjudge/internal/common/cache"
	"contestjudge/internal/common/db"
	"contestjudge/internal/common/storage"
	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/testcase"
	appErr "contestjudge/pkg/errors"
	"contestjudge/pkg/repository"
)

const (
	defaultProblemTTL   = 30 * time.Minute
	problemKeyPrefix    = "judge:problem:"
	testCasesKeyPrefix  = "judge:testcases:"
	defaultMaxTestBytes = 64 << 20
)

// ProblemRepository loads problems and their ordered test cases.
type ProblemRepository interface {
	FindByID(ctx context.Context, problemID string) (*model.Problem, error)
	FindTestCases(ctx context.Context, problem *model.Problem) ([]model.TestCase, error)
}

// ProblemRepositoryConfig configures bucket and cache behaviour.
type ProblemRepositoryConfig struct {
	Bucket string
	TTL    time.Duration
	// MaxTestCaseBytes caps the CSV attachment size.
	MaxTestCaseBytes int64
	// CacheTestCases keeps parsed test cases in the cache as CSV.
	CacheTestCases bool
}

// MySQLProblemRepository reads problem rows from MySQL and test cases from
// object storage, caching both.
type MySQLProblemRepository struct {
	db      db.Database
	cache   cache.Cache
	storage storage.ObjectStorage
	cfg     ProblemRepositoryConfig
}

// NewProblemRepository creates a problem repository. cacheClient may be nil.
func NewProblemRepository(database db.Database, cacheClient cache.Cache, objects storage.ObjectStorage, cfg ProblemRepositoryConfig) *MySQLProblemRepository {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultProblemTTL
	}
	if cfg.MaxTestCaseBytes <= 0 {
		cfg.MaxTestCaseBytes = defaultMaxTestBytes
	}
	return &MySQLProblemRepository{db: database, cache: cacheClient, storage: objects, cfg: cfg}
}

// FindByID loads a problem.
func (r *MySQLProblemRepository) FindByID(ctx context.Context, problemID string) (*model.Problem, error) {
	if problemID == "" {
		return nil, appErr.ValidationError("problem_id", "required")
	}
	if r.cache == nil {
		return r.findFromDB(ctx, problemID)
	}
	return cache.GetWithCached[*model.Problem](
		ctx,
		r.cache,
		problemKeyPrefix+problemID,
		r.cfg.TTL,
		marshalProblem,
		unmarshalProblem,
		func(ctx context.Context) (*model.Problem, error) {
			return r.findFromDB(ctx, problemID)
		},
	)
}

// FindTestCases downloads and parses the problem's CSV attachment.
// The cache is keyed by attachment key so a replaced attachment is never
// served stale.
func (r *MySQLProblemRepository) FindTestCases(ctx context.Context, problem *model.Problem) ([]model.TestCase, error) {
	if problem == nil || problem.TestCasesKey == "" {
		return nil, appErr.New(appErr.TestCaseNotFound).WithMessage("problem has no test cases attachment")
	}
	if r.cache == nil || !r.cfg.CacheTestCases {
		return r.loadTestCases(ctx, problem.TestCasesKey)
	}
	return cache.GetWithCached[[]model.TestCase](
		ctx,
		r.cache,
		testCasesKeyPrefix+problem.TestCasesKey,
		r.cfg.TTL,
		func(cases []model.TestCase) (string, error) {
			data, err := testcase.Serialize(cases)
			return string(data), err
		},
		func(data string) ([]model.TestCase, error) {
			return testcase.Parse([]byte(data))
		},
		func(ctx context.Context) ([]model.TestCase, error) {
			return r.loadTestCases(ctx, problem.TestCasesKey)
		},
	)
}

func (r *MySQLProblemRepository) loadTestCases(ctx context.Context, key string) ([]model.TestCase, error) {
	data, err := storage.ReadObject(ctx, r.storage, r.cfg.Bucket, key, r.cfg.MaxTestCaseBytes)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, appErr.Wrapf(err, appErr.TestCaseNotFound, "test cases %s", key)
		}
		return nil, appErr.Wrapf(err, appErr.StorageError, "download test cases %s", key)
	}
	return testcase.Parse(data)
}

func (r *MySQLProblemRepository) findFromDB(ctx context.Context, problemID string) (*model.Problem, error) {
	query := `
		SELECT id, contest_id, letter, title, time_limit_ms, memory_limit_mb, test_cases_key, description_key
		FROM problem
		WHERE id = ?
		LIMIT 1`
	var p model.Problem
	err := r.db.QueryRow(ctx, query, problemID).Scan(
		&p.ID,
		&p.ContestID,
		&p.Letter,
		&p.Title,
		&p.TimeLimitMs,
		&p.MemoryLimitMB,
		&p.TestCasesKey,
		&p.DescriptionKey,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, appErr.Wrapf(repository.ErrNotFound, appErr.ProblemNotFound, "problem %s", problemID)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load problem %s", problemID)
	}
	return &p, nil
}

func marshalProblem(p *model.Problem) (string, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func unmarshalProblem(data string) (*model.Problem, error) {
	var p model.Problem
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, errors.New("cached problem has no id")
	}
	return &p, nil
}
