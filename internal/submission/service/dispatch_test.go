package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"
	"time"

	"competenest/internal/submission/model"
	appErr "competenest/pkg/errors"
)

type dispatchFixture struct {
	service *SubmissionService
	store   *memStore
	storage *fakeStorage
	judge   *fakeJudge
	problem *fakeProblemRepo
}

func newDispatchFixture(t *testing.T, testcaseCount int) *dispatchFixture {
	t.Helper()

	store := newMemStore()
	storageClient := &fakeStorage{}
	judgeClient := &fakeJudge{}

	testcases := make([]*model.Testcase, 0, testcaseCount)
	for i := 0; i < testcaseCount; i++ {
		testcases = append(testcases, &model.Testcase{
			TestcaseID:         fmt.Sprintf("tc-%d", i+1),
			ProblemID:          "prob-1",
			InputPath:          fmt.Sprintf("prob-1/tc-%d/input", i+1),
			ExpectedOutputPath: fmt.Sprintf("prob-1/tc-%d/output", i+1),
		})
	}
	problemRepo := &fakeProblemRepo{
		problem:   &model.Problem{ProblemID: "prob-1", Title: "Two Sum"},
		testcases: testcases,
	}

	svc, err := NewSubmissionService(Config{
		DB:              dbProviderForTest(),
		SubmissionRepo:  &memSubmissionRepo{store: store},
		TestcaseRepo:    &memTestcaseRepo{store: store},
		ProblemRepo:     problemRepo,
		Storage:         storageClient,
		Judge:           judgeClient,
		TestcaseBucket:  "testcases",
		CallbackBaseURL: "http://core.test",
	})
	if err != nil {
		t.Fatalf("NewSubmissionService() error = %v", err)
	}

	return &dispatchFixture{
		service: svc,
		store:   store,
		storage: storageClient,
		judge:   judgeClient,
		problem: problemRepo,
	}
}

func validDispatchInput() DispatchInput {
	return DispatchInput{
		ProblemID:  "prob-1",
		UserID:     "user-1",
		Code:       base64.StdEncoding.EncodeToString([]byte("print(input())")),
		LanguageID: 71,
	}
}

func TestDispatchCreatesRowsAndEnqueues(t *testing.T) {
	t.Parallel()
	f := newDispatchFixture(t, 3)

	result, err := f.service.Dispatch(context.Background(), validDispatchInput())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if result.Submission.TotalTestcases != 3 {
		t.Fatalf("total testcases = %d, want 3", result.Submission.TotalTestcases)
	}
	if result.Submission.Status != model.StatusPending {
		t.Fatalf("status = %s, want Pending", result.Submission.Status)
	}
	if len(result.InputURLs) != 3 || len(result.ExpectedOutputURLs) != 3 || len(result.CallbackURLs) != 3 {
		t.Fatalf("url arrays = %d/%d/%d, want 3 each",
			len(result.InputURLs), len(result.ExpectedOutputURLs), len(result.CallbackURLs))
	}

	f.store.mu.Lock()
	rowCount := len(f.store.testcases)
	f.store.mu.Unlock()
	if rowCount != 3 {
		t.Fatalf("tracking rows = %d, want 3", rowCount)
	}

	if len(f.judge.batches) != 1 {
		t.Fatalf("judge batches = %d, want 1", len(f.judge.batches))
	}
	jobs := f.judge.batches[0]
	if len(jobs) != 3 {
		t.Fatalf("jobs in batch = %d, want 3", len(jobs))
	}
	for i, job := range jobs {
		if !strings.HasPrefix(job.CallbackURL, "http://core.test/api/submissions/callback/") {
			t.Fatalf("callback URL = %q, want submission callback path", job.CallbackURL)
		}
		if job.StdinURL == "" || job.ExpectedOutputURL == "" {
			t.Fatalf("job missing presigned URLs: %+v", job)
		}
		if result.InputURLs[i] != job.StdinURL || result.ExpectedOutputURLs[i] != job.ExpectedOutputURL ||
			result.CallbackURLs[i] != job.CallbackURL {
			t.Fatalf("result URLs at %d do not match dispatched job", i)
		}
	}
}

func TestDispatchContestCallbackPath(t *testing.T) {
	t.Parallel()
	f := newDispatchFixture(t, 1)
	f.problem.problem.ContestID = "contest-1"
	f.problem.contest = &model.Contest{
		ContestID: "contest-1",
		StartTime: time.Now().Add(-time.Hour),
		EndTime:   time.Now().Add(time.Hour),
	}

	input := validDispatchInput()
	input.ContestID = "contest-1"
	if _, err := f.service.Dispatch(context.Background(), input); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	job := f.judge.batches[0][0]
	if !strings.HasPrefix(job.CallbackURL, "http://core.test/api/contests/contest-1/submissions/callback/") {
		t.Fatalf("callback URL = %q, want contest callback path", job.CallbackURL)
	}
}

func TestDispatchContestProblemGatedOnPlainRoute(t *testing.T) {
	t.Parallel()
	f := newDispatchFixture(t, 1)
	f.problem.problem.ContestID = "contest-1"
	f.problem.contest = &model.Contest{
		ContestID: "contest-1",
		StartTime: time.Now().Add(time.Hour),
		EndTime:   time.Now().Add(2 * time.Hour),
	}

	// No contest id in the request: the problem's own contest still gates.
	_, err := f.service.Dispatch(context.Background(), validDispatchInput())
	if !appErr.Is(err, appErr.ContestNotStarted) {
		t.Fatalf("error = %v, want code %d", err, appErr.ContestNotStarted)
	}

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if len(f.store.submissions) != 0 || len(f.store.testcases) != 0 {
		t.Fatal("gated dispatch left rows behind")
	}
}

func TestDispatchContestProblemCallbacksOnPlainRoute(t *testing.T) {
	t.Parallel()
	f := newDispatchFixture(t, 1)
	f.problem.problem.ContestID = "contest-1"
	f.problem.contest = &model.Contest{
		ContestID: "contest-1",
		StartTime: time.Now().Add(-time.Hour),
		EndTime:   time.Now().Add(time.Hour),
	}

	result, err := f.service.Dispatch(context.Background(), validDispatchInput())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	want := "http://core.test/api/contests/contest-1/submissions/callback/"
	if !strings.HasPrefix(result.CallbackURLs[0], want) {
		t.Fatalf("callback URL = %q, want contest callback path", result.CallbackURLs[0])
	}
	if job := f.judge.batches[0][0]; !strings.HasPrefix(job.CallbackURL, want) {
		t.Fatalf("dispatched callback URL = %q, want contest callback path", job.CallbackURL)
	}
}

func TestDispatchContestMismatch(t *testing.T) {
	t.Parallel()
	f := newDispatchFixture(t, 1)
	f.problem.problem.ContestID = "contest-1"

	input := validDispatchInput()
	input.ContestID = "contest-2"
	_, err := f.service.Dispatch(context.Background(), input)
	if !appErr.Is(err, appErr.ProblemNotFound) {
		t.Fatalf("error = %v, want code %d", err, appErr.ProblemNotFound)
	}
}

func TestDispatchContestNotStarted(t *testing.T) {
	t.Parallel()
	f := newDispatchFixture(t, 1)
	f.problem.problem.ContestID = "contest-1"
	f.problem.contest = &model.Contest{
		ContestID: "contest-1",
		StartTime: time.Now().Add(time.Hour),
		EndTime:   time.Now().Add(2 * time.Hour),
	}

	input := validDispatchInput()
	input.ContestID = "contest-1"
	_, err := f.service.Dispatch(context.Background(), input)
	if !appErr.Is(err, appErr.ContestNotStarted) {
		t.Fatalf("error = %v, want code %d", err, appErr.ContestNotStarted)
	}

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if len(f.store.submissions) != 0 || len(f.store.testcases) != 0 {
		t.Fatal("rejected dispatch left rows behind")
	}
}

func TestDispatchPresignFailureLeavesNoState(t *testing.T) {
	t.Parallel()
	f := newDispatchFixture(t, 3)
	f.storage.presignErr = fmt.Errorf("connection refused")

	_, err := f.service.Dispatch(context.Background(), validDispatchInput())
	if !appErr.Is(err, appErr.PresignFailed) {
		t.Fatalf("error = %v, want code %d", err, appErr.PresignFailed)
	}

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if len(f.store.submissions) != 0 || len(f.store.testcases) != 0 {
		t.Fatal("failed dispatch left rows behind")
	}
	if len(f.judge.batches) != 0 {
		t.Fatal("failed dispatch reached the judge")
	}
}

func TestDispatchProblemWithoutTestcases(t *testing.T) {
	t.Parallel()
	f := newDispatchFixture(t, 0)

	_, err := f.service.Dispatch(context.Background(), validDispatchInput())
	if !appErr.Is(err, appErr.ProblemHasNoTestcases) {
		t.Fatalf("error = %v, want code %d", err, appErr.ProblemHasNoTestcases)
	}
}

func TestDispatchUnknownProblem(t *testing.T) {
	t.Parallel()
	f := newDispatchFixture(t, 1)

	input := validDispatchInput()
	input.ProblemID = "prob-404"
	_, err := f.service.Dispatch(context.Background(), input)
	if !appErr.Is(err, appErr.ProblemNotFound) {
		t.Fatalf("error = %v, want code %d", err, appErr.ProblemNotFound)
	}
}

func TestDispatchRejectsInvalidInput(t *testing.T) {
	t.Parallel()
	f := newDispatchFixture(t, 1)
	ctx := context.Background()

	cases := []struct {
		name     string
		mutate   func(*DispatchInput)
		wantCode appErr.ErrorCode
	}{
		{"missing problem", func(in *DispatchInput) { in.ProblemID = "" }, appErr.ValidationFailed},
		{"missing user", func(in *DispatchInput) { in.UserID = "" }, appErr.ValidationFailed},
		{"missing code", func(in *DispatchInput) { in.Code = "" }, appErr.ValidationFailed},
		{"code not base64", func(in *DispatchInput) { in.Code = "not base64!!" }, appErr.ValidationFailed},
		{"bad language", func(in *DispatchInput) { in.LanguageID = 0 }, appErr.LanguageNotSupported},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			input := validDispatchInput()
			tc.mutate(&input)
			_, err := f.service.Dispatch(ctx, input)
			if !appErr.Is(err, tc.wantCode) {
				t.Fatalf("error = %v, want code %d", err, tc.wantCode)
			}
		})
	}
}

func TestDispatchRejectsDuplicateInFlight(t *testing.T) {
	t.Parallel()
	f := newDispatchFixture(t, 1)
	f.service.cache = newFakeCache()

	if _, err := f.service.Dispatch(context.Background(), validDispatchInput()); err != nil {
		t.Fatalf("first Dispatch() error = %v", err)
	}
	_, err := f.service.Dispatch(context.Background(), validDispatchInput())
	if !appErr.Is(err, appErr.DuplicateSubmission) {
		t.Fatalf("second Dispatch() error = %v, want code %d", err, appErr.DuplicateSubmission)
	}

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if len(f.store.submissions) != 1 {
		t.Fatalf("submissions = %d, want 1", len(f.store.submissions))
	}
}

func TestDispatchFailureReleasesDedupeKey(t *testing.T) {
	t.Parallel()
	f := newDispatchFixture(t, 1)
	f.service.cache = newFakeCache()
	f.storage.presignErr = fmt.Errorf("connection refused")

	_, err := f.service.Dispatch(context.Background(), validDispatchInput())
	if !appErr.Is(err, appErr.PresignFailed) {
		t.Fatalf("error = %v, want code %d", err, appErr.PresignFailed)
	}

	// The failed attempt must not hold the key against an immediate retry.
	f.storage.mu.Lock()
	f.storage.presignErr = nil
	f.storage.mu.Unlock()
	if _, err := f.service.Dispatch(context.Background(), validDispatchInput()); err != nil {
		t.Fatalf("retry Dispatch() error = %v", err)
	}
}

func TestDispatchRateLimitPerUser(t *testing.T) {
	t.Parallel()
	f := newDispatchFixture(t, 1)
	f.service.cache = newFakeCache()
	f.service.dedupeTTL = 0
	f.service.rateLimit = RateLimitConfig{UserMax: 2, Window: time.Minute}

	for i := 0; i < 2; i++ {
		if _, err := f.service.Dispatch(context.Background(), validDispatchInput()); err != nil {
			t.Fatalf("Dispatch() %d error = %v", i+1, err)
		}
	}
	_, err := f.service.Dispatch(context.Background(), validDispatchInput())
	if !appErr.Is(err, appErr.SubmitTooFrequently) {
		t.Fatalf("error = %v, want code %d", err, appErr.SubmitTooFrequently)
	}
}

func TestGetSubmissionReturnsTestcaseRows(t *testing.T) {
	t.Parallel()
	f := newDispatchFixture(t, 2)

	result, err := f.service.Dispatch(context.Background(), validDispatchInput())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	detail, err := f.service.GetSubmission(context.Background(), result.Submission.SubmissionID)
	if err != nil {
		t.Fatalf("GetSubmission() error = %v", err)
	}
	if detail.Submission.SubmissionID != result.Submission.SubmissionID {
		t.Fatalf("submission id = %q, want %q", detail.Submission.SubmissionID, result.Submission.SubmissionID)
	}
	if len(detail.Testcases) != 2 {
		t.Fatalf("testcase rows = %d, want 2", len(detail.Testcases))
	}
	for _, row := range detail.Testcases {
		if row.SubmissionID != result.Submission.SubmissionID {
			t.Fatalf("row %s belongs to %q", row.ID, row.SubmissionID)
		}
	}
}

func TestGetSubmissionNotFound(t *testing.T) {
	t.Parallel()
	f := newDispatchFixture(t, 1)

	_, err := f.service.GetSubmission(context.Background(), "missing")
	if !appErr.Is(err, appErr.SubmissionNotFound) {
		t.Fatalf("error = %v, want code %d", err, appErr.SubmissionNotFound)
	}
}
