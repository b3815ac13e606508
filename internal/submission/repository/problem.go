package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"competenest/internal/common/cache"
	"competenest/internal/common/db"
	"competenest/internal/submission/model"
)

const (
	defaultProblemCacheTTL      = 30 * time.Minute
	defaultProblemCacheEmptyTTL = 5 * time.Minute
	problemCacheKeyPrefix       = "problem:"
	testcasesCacheKeyPrefix     = "problem:testcases:"
	contestCacheKeyPrefix       = "contest:"
)

var (
	ErrProblemNotFound = errors.New("problem not found")
	ErrContestNotFound = errors.New("contest not found")
)

// ProblemRepository provides the read-only problem/testcase/contest access
// the dispatch flow needs. Management of these records is out of scope.
type ProblemRepository interface {
	GetByID(ctx context.Context, problemID string) (*model.Problem, error)
	ListTestcases(ctx context.Context, problemID string) ([]*model.Testcase, error)
	GetContest(ctx context.Context, contestID string) (*model.Contest, error)
}

// MySQLProblemRepository implements ProblemRepository with MySQL and a
// cache-aside layer; dispatch is read-heavy on problems.
type MySQLProblemRepository struct {
	db       db.Provider
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewProblemRepository creates a problem repository with default TTLs.
func NewProblemRepository(provider db.Provider, cacheClient cache.Cache) ProblemRepository {
	return NewProblemRepositoryWithTTL(provider, cacheClient, defaultProblemCacheTTL, defaultProblemCacheEmptyTTL)
}

// NewProblemRepositoryWithTTL creates a problem repository with custom TTLs.
func NewProblemRepositoryWithTTL(provider db.Provider, cacheClient cache.Cache, ttl, emptyTTL time.Duration) ProblemRepository {
	if ttl <= 0 {
		ttl = defaultProblemCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultProblemCacheEmptyTTL
	}
	return &MySQLProblemRepository{
		db:       provider,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

// GetByID retrieves a problem by id.
func (r *MySQLProblemRepository) GetByID(ctx context.Context, problemID string) (*model.Problem, error) {
	if problemID == "" {
		return nil, errors.New("problemID is required")
	}
	if r.cache == nil {
		return r.getProblemFromDB(ctx, problemID)
	}
	problem, err := cache.GetWithCached[*model.Problem](
		ctx,
		r.cache,
		problemCacheKeyPrefix+problemID,
		cache.JitterTTL(r.ttl),
		cache.JitterTTL(r.emptyTTL),
		func(p *model.Problem) bool { return p == nil },
		marshalJSON[*model.Problem],
		unmarshalJSON[*model.Problem],
		func(ctx context.Context) (*model.Problem, error) {
			problem, err := r.getProblemFromDB(ctx, problemID)
			if errors.Is(err, ErrProblemNotFound) {
				return nil, nil
			}
			return problem, err
		},
	)
	if err != nil {
		return nil, err
	}
	if problem == nil {
		return nil, ErrProblemNotFound
	}
	return problem, nil
}

// ListTestcases returns all testcases of a problem in a stable order.
func (r *MySQLProblemRepository) ListTestcases(ctx context.Context, problemID string) ([]*model.Testcase, error) {
	if problemID == "" {
		return nil, errors.New("problemID is required")
	}
	if r.cache == nil {
		return r.listTestcasesFromDB(ctx, problemID)
	}
	return cache.GetWithCached[[]*model.Testcase](
		ctx,
		r.cache,
		testcasesCacheKeyPrefix+problemID,
		cache.JitterTTL(r.ttl),
		cache.JitterTTL(r.emptyTTL),
		func(testcases []*model.Testcase) bool { return len(testcases) == 0 },
		marshalJSON[[]*model.Testcase],
		unmarshalJSON[[]*model.Testcase],
		func(ctx context.Context) ([]*model.Testcase, error) {
			return r.listTestcasesFromDB(ctx, problemID)
		},
	)
}

// GetContest retrieves a contest by id.
func (r *MySQLProblemRepository) GetContest(ctx context.Context, contestID string) (*model.Contest, error) {
	if contestID == "" {
		return nil, errors.New("contestID is required")
	}
	if r.cache == nil {
		return r.getContestFromDB(ctx, contestID)
	}
	contest, err := cache.GetWithCached[*model.Contest](
		ctx,
		r.cache,
		contestCacheKeyPrefix+contestID,
		cache.JitterTTL(r.ttl),
		cache.JitterTTL(r.emptyTTL),
		func(c *model.Contest) bool { return c == nil },
		marshalJSON[*model.Contest],
		unmarshalJSON[*model.Contest],
		func(ctx context.Context) (*model.Contest, error) {
			contest, err := r.getContestFromDB(ctx, contestID)
			if errors.Is(err, ErrContestNotFound) {
				return nil, nil
			}
			return contest, err
		},
	)
	if err != nil {
		return nil, err
	}
	if contest == nil {
		return nil, ErrContestNotFound
	}
	return contest, nil
}

func (r *MySQLProblemRepository) getProblemFromDB(ctx context.Context, problemID string) (*model.Problem, error) {
	database, err := db.CurrentDatabase(r.db)
	if err != nil {
		return nil, err
	}
	query := "SELECT problem_id, title, contest_id FROM problems WHERE problem_id = ? LIMIT 1"
	row := database.QueryRow(ctx, query, problemID)
	problem := &model.Problem{}
	var contestID *string
	if err := row.Scan(&problem.ProblemID, &problem.Title, &contestID); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrProblemNotFound
		}
		return nil, err
	}
	if contestID != nil {
		problem.ContestID = *contestID
	}
	return problem, nil
}

func (r *MySQLProblemRepository) listTestcasesFromDB(ctx context.Context, problemID string) ([]*model.Testcase, error) {
	database, err := db.CurrentDatabase(r.db)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT testcase_id, problem_id, input_path, expected_output_path, is_example
		FROM testcases
		WHERE problem_id = ?
		ORDER BY testcase_id
	`
	rows, err := database.Query(ctx, query, problemID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var testcases []*model.Testcase
	for rows.Next() {
		testcase := &model.Testcase{}
		if err := rows.Scan(
			&testcase.TestcaseID,
			&testcase.ProblemID,
			&testcase.InputPath,
			&testcase.ExpectedOutputPath,
			&testcase.IsExample,
		); err != nil {
			return nil, err
		}
		testcases = append(testcases, testcase)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return testcases, nil
}

func (r *MySQLProblemRepository) getContestFromDB(ctx context.Context, contestID string) (*model.Contest, error) {
	database, err := db.CurrentDatabase(r.db)
	if err != nil {
		return nil, err
	}
	query := "SELECT contest_id, title, start_time, end_time FROM contests WHERE contest_id = ? LIMIT 1"
	row := database.QueryRow(ctx, query, contestID)
	contest := &model.Contest{}
	if err := row.Scan(&contest.ContestID, &contest.Title, &contest.StartTime, &contest.EndTime); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrContestNotFound
		}
		return nil, err
	}
	return contest, nil
}

func marshalJSON[T any](value T) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalJSON[T any](data string) (T, error) {
	var value T
	if data == "" || data == cache.NullCacheValue {
		return value, nil
	}
	if err := json.Unmarshal([]byte(data), &value); err != nil {
		return value, err
	}
	return value, nil
}
