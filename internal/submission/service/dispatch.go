package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"competenest/internal/common/db"
	"competenest/internal/judge"
	"competenest/internal/submission/model"
	"competenest/internal/submission/repository"
	appErr "competenest/pkg/errors"
	"competenest/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	rateUserKeyPrefix = "submission:rate:user:"
	rateIPKeyPrefix   = "submission:rate:ip:"
	dedupeKeyPrefix   = "submission:dedupe:"
)

// DispatchInput describes a submission request. Code arrives
// base64-encoded from the client and is stored as received.
type DispatchInput struct {
	ProblemID  string
	UserID     string
	Code       string
	LanguageID int
	ContestID  string
	ClientIP   string
}

// DispatchResult is the created submission plus the URLs issued for it,
// positionally aligned with the problem's testcases.
type DispatchResult struct {
	Submission         *model.Submission
	InputURLs          []string
	ExpectedOutputURLs []string
	CallbackURLs       []string
}

// Dispatch creates a submission with one tracking row per testcase and
// enqueues every testcase on the judge. Presigned testcase URLs are
// resolved before anything is written, so a storage failure leaves no
// partial submission behind.
func (s *SubmissionService) Dispatch(ctx context.Context, input DispatchInput) (_ *DispatchResult, err error) {
	if err := s.validateDispatch(input); err != nil {
		return nil, err
	}
	if err := s.checkRateLimit(ctx, input.UserID, input.ClientIP); err != nil {
		return nil, err
	}
	dedupeKey, err := s.reserveDedupe(ctx, input)
	if err != nil {
		return nil, err
	}
	defer func() {
		// A failed dispatch frees the key so the client can retry at once.
		if err != nil {
			s.releaseDedupe(ctx, dedupeKey)
		}
	}()

	problem, testcases, err := s.loadProblem(ctx, input.ProblemID)
	if err != nil {
		return nil, err
	}
	if err := s.checkContestWindow(ctx, input.ContestID, problem); err != nil {
		return nil, err
	}

	urls, err := s.presignTestcases(ctx, testcases)
	if err != nil {
		return nil, err
	}

	submissionID := uuid.NewString()
	now := time.Now()
	submission := &model.Submission{
		SubmissionID:   submissionID,
		ProblemID:      input.ProblemID,
		UserID:         input.UserID,
		Code:           input.Code,
		LanguageID:     input.LanguageID,
		TotalTestcases: len(testcases),
		Status:         model.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	rows := make([]*model.SubmittedTestcase, 0, len(testcases))
	for _, testcase := range testcases {
		rows = append(rows, &model.SubmittedTestcase{
			ID:           uuid.NewString(),
			SubmissionID: submissionID,
			TestcaseID:   testcase.TestcaseID,
			StatusCode:   1,
			UpdatedAt:    now,
		})
	}

	if err := s.persistSubmission(ctx, submission, rows); err != nil {
		return nil, err
	}

	if err := s.enqueueJobs(ctx, input, problem.ContestID, rows, urls); err != nil {
		return nil, err
	}

	result := &DispatchResult{
		Submission:         submission,
		InputURLs:          make([]string, len(rows)),
		ExpectedOutputURLs: make([]string, len(rows)),
		CallbackURLs:       make([]string, len(rows)),
	}
	for i, row := range rows {
		result.InputURLs[i] = urls[i].input
		result.ExpectedOutputURLs[i] = urls[i].expectedOutput
		result.CallbackURLs[i] = s.buildCallbackURL(problem.ContestID, row.ID)
	}
	return result, nil
}

// SubmissionDetail pairs a submission with its per-testcase results.
type SubmissionDetail struct {
	Submission *model.Submission
	Testcases  []*model.SubmittedTestcase
}

// GetSubmission returns a submission and its tracking rows. This is the
// durable view for clients that missed push delivery.
func (s *SubmissionService) GetSubmission(ctx context.Context, submissionID string) (*SubmissionDetail, error) {
	if submissionID == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	submission, err := s.submissionRepo.GetByID(ctxDB.ctx, nil, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, appErr.New(appErr.SubmissionNotFound).WithMessage("submission not found")
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get submission failed")
	}
	rows, err := s.testcaseRepo.ListBySubmission(ctxDB.ctx, nil, submissionID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list submission testcases failed")
	}
	return &SubmissionDetail{Submission: submission, Testcases: rows}, nil
}

func (s *SubmissionService) validateDispatch(input DispatchInput) error {
	if strings.TrimSpace(input.ProblemID) == "" {
		return appErr.ValidationError("problem_id", "required")
	}
	if strings.TrimSpace(input.UserID) == "" {
		return appErr.ValidationError("user_id", "required")
	}
	if strings.TrimSpace(input.Code) == "" {
		return appErr.ValidationError("code", "required")
	}
	decoded, err := base64.StdEncoding.DecodeString(input.Code)
	if err != nil {
		return appErr.ValidationError("code", "must be base64 encoded")
	}
	if s.maxCodeBytes > 0 && len(decoded) > s.maxCodeBytes {
		return appErr.New(appErr.CodeTooLarge).WithMessage("source code too large")
	}
	if input.LanguageID <= 0 {
		return appErr.New(appErr.LanguageNotSupported).WithMessage("language is not supported")
	}
	return nil
}

func (s *SubmissionService) checkRateLimit(ctx context.Context, userID, clientIP string) error {
	if s.cache == nil || s.rateLimit.Window <= 0 || (s.rateLimit.UserMax <= 0 && s.rateLimit.IPMax <= 0) {
		return nil
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()

	if s.rateLimit.UserMax > 0 && userID != "" {
		if err := s.checkRateCounter(ctxCache.ctx, rateUserKeyPrefix+userID, s.rateLimit.UserMax); err != nil {
			return err
		}
	}
	if s.rateLimit.IPMax > 0 && clientIP != "" {
		if err := s.checkRateCounter(ctxCache.ctx, rateIPKeyPrefix+clientIP, s.rateLimit.IPMax); err != nil {
			return err
		}
	}
	return nil
}

func (s *SubmissionService) checkRateCounter(ctx context.Context, key string, max int) error {
	count, err := s.cache.Incr(ctx, key)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
	}
	if count == 1 {
		_ = s.cache.Expire(ctx, key, s.rateLimit.Window)
	}
	if int(count) > max {
		return appErr.New(appErr.SubmitTooFrequently).WithMessage("submit too frequently")
	}
	return nil
}

// reserveDedupe claims a short-lived key identifying this exact attempt
// (user, problem, language, code). A second identical attempt inside the
// window is rejected without touching storage or the judge.
func (s *SubmissionService) reserveDedupe(ctx context.Context, input DispatchInput) (string, error) {
	if s.cache == nil || s.dedupeTTL <= 0 {
		return "", nil
	}
	sum := sha256.Sum256([]byte(input.ProblemID + "\x00" + strconv.Itoa(input.LanguageID) + "\x00" + input.Code))
	key := dedupeKeyPrefix + input.UserID + ":" + hex.EncodeToString(sum[:16])

	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	ok, err := s.cache.SetNX(ctxCache.ctx, key, 1, s.dedupeTTL)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.CacheError, "dedupe check failed")
	}
	if !ok {
		return "", appErr.New(appErr.DuplicateSubmission)
	}
	return key, nil
}

func (s *SubmissionService) releaseDedupe(ctx context.Context, key string) {
	if key == "" || s.cache == nil {
		return
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.cache.Del(ctxCache.ctx, key); err != nil {
		logger.Warn(ctx, "release dedupe key failed",
			zap.String("key", key), zap.Error(err))
	}
}

func (s *SubmissionService) loadProblem(ctx context.Context, problemID string) (*model.Problem, []*model.Testcase, error) {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()

	problem, err := s.problemRepo.GetByID(ctxDB.ctx, problemID)
	if err != nil {
		if errors.Is(err, repository.ErrProblemNotFound) {
			return nil, nil, appErr.New(appErr.ProblemNotFound).WithMessage("problem not found")
		}
		return nil, nil, appErr.Wrapf(err, appErr.DatabaseError, "get problem failed")
	}
	testcases, err := s.problemRepo.ListTestcases(ctxDB.ctx, problemID)
	if err != nil {
		return nil, nil, appErr.Wrapf(err, appErr.DatabaseError, "list testcases failed")
	}
	if len(testcases) == 0 {
		return nil, nil, appErr.New(appErr.ProblemHasNoTestcases).WithMessage("problem has no testcases")
	}
	return problem, testcases, nil
}

// checkContestWindow enforces the contest window of contest-owned
// problems. The gate keys off the problem's own contest, not the route:
// a contest problem submitted through the plain route is gated all the
// same. The route's contest id, when present, must match the problem's.
func (s *SubmissionService) checkContestWindow(ctx context.Context, requestContestID string, problem *model.Problem) error {
	if requestContestID != "" && problem.ContestID != requestContestID {
		return appErr.New(appErr.ProblemNotFound).WithMessage("problem does not belong to this contest")
	}
	if problem.ContestID == "" {
		return nil
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()

	contest, err := s.problemRepo.GetContest(ctxDB.ctx, problem.ContestID)
	if err != nil {
		if errors.Is(err, repository.ErrContestNotFound) {
			return appErr.New(appErr.ContestNotFound).WithMessage("contest not found")
		}
		return appErr.Wrapf(err, appErr.DatabaseError, "get contest failed")
	}
	now := time.Now()
	if now.Before(contest.StartTime) {
		return appErr.New(appErr.ContestNotStarted).WithMessage("contest has not started")
	}
	if !contest.EndTime.IsZero() && now.After(contest.EndTime) {
		return appErr.New(appErr.ContestEnded).WithMessage("contest has ended")
	}
	return nil
}

type testcaseURLs struct {
	input          string
	expectedOutput string
}

// presignTestcases resolves presigned GET URLs for every testcase's input
// and expected output. All URLs are resolved before any row exists; a
// single failure aborts the whole dispatch.
func (s *SubmissionService) presignTestcases(ctx context.Context, testcases []*model.Testcase) ([]testcaseURLs, error) {
	ctxStorage := withTimeout(ctx, s.timeouts.Storage)
	defer ctxStorage.cancel()

	urls := make([]testcaseURLs, len(testcases))
	errs := make([]error, len(testcases))
	var wg sync.WaitGroup
	for i, testcase := range testcases {
		wg.Add(1)
		go func(i int, testcase *model.Testcase) {
			defer wg.Done()
			input, err := s.storage.PresignGetObject(ctxStorage.ctx, s.testcaseBucket, testcase.InputPath, s.presignTTL)
			if err != nil {
				errs[i] = err
				return
			}
			expected, err := s.storage.PresignGetObject(ctxStorage.ctx, s.testcaseBucket, testcase.ExpectedOutputPath, s.presignTTL)
			if err != nil {
				errs[i] = err
				return
			}
			urls[i] = testcaseURLs{input: input, expectedOutput: expected}
		}(i, testcase)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, appErr.UpstreamError(err, appErr.PresignFailed).WithMessage("presign testcase failed")
		}
	}
	return urls, nil
}

func (s *SubmissionService) persistSubmission(ctx context.Context, submission *model.Submission, rows []*model.SubmittedTestcase) error {
	database, err := db.CurrentDatabase(s.db)
	if err != nil {
		return appErr.InternalError(err)
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()

	txErr := database.Transaction(ctxDB.ctx, func(tx db.Transaction) error {
		if err := s.submissionRepo.Create(ctxDB.ctx, tx, submission); err != nil {
			return err
		}
		return s.testcaseRepo.CreateBatch(ctxDB.ctx, tx, rows)
	})
	if txErr != nil {
		return appErr.Wrapf(txErr, appErr.SubmissionCreateFailed, "create submission failed")
	}
	return nil
}

func (s *SubmissionService) enqueueJobs(ctx context.Context, input DispatchInput, contestID string, rows []*model.SubmittedTestcase, urls []testcaseURLs) error {
	source, err := base64.StdEncoding.DecodeString(input.Code)
	if err != nil {
		return appErr.ValidationError("code", "must be base64 encoded")
	}

	jobs := make([]judge.Job, 0, len(rows))
	for i, row := range rows {
		jobs = append(jobs, judge.Job{
			SourceCode:        string(source),
			LanguageID:        input.LanguageID,
			StdinURL:          urls[i].input,
			ExpectedOutputURL: urls[i].expectedOutput,
			CallbackURL:       s.buildCallbackURL(contestID, row.ID),
		})
	}

	ctxJudge := withTimeout(ctx, s.timeouts.Judge)
	defer ctxJudge.cancel()
	if _, err := s.judge.SubmitBatch(ctxJudge.ctx, jobs); err != nil {
		return appErr.UpstreamError(err, appErr.JudgeUpstreamError).WithMessage("enqueue on judge failed")
	}
	return nil
}

// buildCallbackURL produces the URL the judge PUTs the result to. The
// method is implied by the judge protocol; the path carries the tracking
// row id so a callback maps to exactly one testcase.
func (s *SubmissionService) buildCallbackURL(contestID, submittedTestcaseID string) string {
	base := strings.TrimRight(s.callbackBaseURL, "/")
	if contestID != "" {
		return fmt.Sprintf("%s/api/contests/%s/submissions/callback/%s", base, contestID, submittedTestcaseID)
	}
	return fmt.Sprintf("%s/api/submissions/callback/%s", base, submittedTestcaseID)
}
