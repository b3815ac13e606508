package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"competenest/internal/submission/model"
	appErr "competenest/pkg/errors"
)

type ingestFixture struct {
	service  *SubmissionService
	store    *memStore
	notifier *fakeNotifier
	mq       *fakeMQ
	rowIDs   []string
}

func newIngestFixture(t *testing.T, totalTestcases int) *ingestFixture {
	t.Helper()

	store := newMemStore()
	notifier := &fakeNotifier{}
	mqClient := newFakeMQ()

	svc, err := NewSubmissionService(Config{
		DB:              dbProviderForTest(),
		SubmissionRepo:  &memSubmissionRepo{store: store},
		TestcaseRepo:    &memTestcaseRepo{store: store},
		ProblemRepo:     &fakeProblemRepo{},
		Storage:         &fakeStorage{},
		MQ:              mqClient,
		Judge:           &fakeJudge{},
		Notifier:        notifier,
		TestcaseBucket:  "testcases",
		CallbackBaseURL: "http://core.test",
		FinalEventTopic: "submission.final",
	})
	if err != nil {
		t.Fatalf("NewSubmissionService() error = %v", err)
	}

	now := time.Now()
	submission := &model.Submission{
		SubmissionID:   "sub-1",
		ProblemID:      "prob-1",
		UserID:         "user-1",
		Code:           "cHJpbnQoKQ==",
		LanguageID:     71,
		TotalTestcases: totalTestcases,
		Status:         model.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	store.submissions[submission.SubmissionID] = submission

	rowIDs := make([]string, 0, totalTestcases)
	for i := 0; i < totalTestcases; i++ {
		id := fmt.Sprintf("row-%d", i+1)
		store.testcases[id] = &model.SubmittedTestcase{
			ID:           id,
			SubmissionID: submission.SubmissionID,
			TestcaseID:   fmt.Sprintf("tc-%d", i+1),
			StatusCode:   1,
			UpdatedAt:    now,
		}
		rowIDs = append(rowIDs, id)
	}

	return &ingestFixture{
		service:  svc,
		store:    store,
		notifier: notifier,
		mq:       mqClient,
		rowIDs:   rowIDs,
	}
}

func (f *ingestFixture) submission(t *testing.T) *model.Submission {
	t.Helper()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	submission, ok := f.store.submissions["sub-1"]
	if !ok {
		t.Fatal("submission missing from store")
	}
	copied := *submission
	return &copied
}

func TestIngestResultAllAccepted(t *testing.T) {
	t.Parallel()
	f := newIngestFixture(t, 2)
	ctx := context.Background()

	event, err := f.service.IngestResult(ctx, CallbackInput{
		SubmittedTestcaseID: f.rowIDs[0],
		StatusCode:          3,
		Output:              "b2s=",
	})
	if err != nil {
		t.Fatalf("IngestResult() error = %v", err)
	}
	if event.Status != model.StatusPending {
		t.Fatalf("status after first result = %s, want Pending", event.Status)
	}
	if event.EvaluatedTestcases != 1 || event.AcceptedTestcases != 1 {
		t.Fatalf("counts after first result = %d/%d, want 1/1", event.EvaluatedTestcases, event.AcceptedTestcases)
	}

	event, err = f.service.IngestResult(ctx, CallbackInput{
		SubmittedTestcaseID: f.rowIDs[1],
		StatusCode:          3,
		Output:              "b2s=",
	})
	if err != nil {
		t.Fatalf("IngestResult() error = %v", err)
	}
	if event.Status != model.StatusAccepted {
		t.Fatalf("final status = %s, want Accepted", event.Status)
	}
	if event.EvaluatedTestcases != 2 || event.AcceptedTestcases != 2 {
		t.Fatalf("final counts = %d/%d, want 2/2", event.EvaluatedTestcases, event.AcceptedTestcases)
	}

	if got := len(f.notifier.all()); got != 2 {
		t.Fatalf("published events = %d, want 2", got)
	}
	if got := f.mq.count("submission.final"); got != 1 {
		t.Fatalf("final status events = %d, want 1", got)
	}
}

func TestIngestResultRejectedIsSticky(t *testing.T) {
	t.Parallel()
	f := newIngestFixture(t, 3)
	ctx := context.Background()

	results := []struct {
		rowID      string
		statusCode int
		wantStatus model.SubmissionStatus
	}{
		{f.rowIDs[0], 3, model.StatusPending},
		{f.rowIDs[1], 4, model.StatusRejected},
		{f.rowIDs[2], 3, model.StatusRejected},
	}
	for _, result := range results {
		event, err := f.service.IngestResult(ctx, CallbackInput{
			SubmittedTestcaseID: result.rowID,
			StatusCode:          result.statusCode,
		})
		if err != nil {
			t.Fatalf("IngestResult(%s) error = %v", result.rowID, err)
		}
		if event.Status != result.wantStatus {
			t.Fatalf("status after %s = %s, want %s", result.rowID, event.Status, result.wantStatus)
		}
	}

	final := f.submission(t)
	if final.Status != model.StatusRejected {
		t.Fatalf("stored status = %s, want Rejected", final.Status)
	}
	if final.EvaluatedTestcases != 3 || final.AcceptedTestcases != 2 {
		t.Fatalf("stored counts = %d/%d, want 3/2", final.EvaluatedTestcases, final.AcceptedTestcases)
	}
	if got := f.mq.count("submission.final"); got != 1 {
		t.Fatalf("final status events = %d, want 1", got)
	}
}

func TestIngestResultProcessingDoesNotCount(t *testing.T) {
	t.Parallel()
	f := newIngestFixture(t, 1)

	event, err := f.service.IngestResult(context.Background(), CallbackInput{
		SubmittedTestcaseID: f.rowIDs[0],
		StatusCode:          2,
	})
	if err != nil {
		t.Fatalf("IngestResult() error = %v", err)
	}
	if event.EvaluatedTestcases != 0 || event.AcceptedTestcases != 0 {
		t.Fatalf("counts after processing update = %d/%d, want 0/0", event.EvaluatedTestcases, event.AcceptedTestcases)
	}
	if event.Status != model.StatusPending {
		t.Fatalf("status = %s, want Pending", event.Status)
	}
	if event.TestcaseStatus != 2 {
		t.Fatalf("testcase status = %d, want 2", event.TestcaseStatus)
	}
}

func TestIngestResultRedeliveryDoesNotDoubleCount(t *testing.T) {
	t.Parallel()
	f := newIngestFixture(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.service.IngestResult(ctx, CallbackInput{
			SubmittedTestcaseID: f.rowIDs[0],
			StatusCode:          3,
		}); err != nil {
			t.Fatalf("IngestResult() attempt %d error = %v", i+1, err)
		}
	}

	submission := f.submission(t)
	if submission.EvaluatedTestcases != 1 || submission.AcceptedTestcases != 1 {
		t.Fatalf("counts after redelivery = %d/%d, want 1/1", submission.EvaluatedTestcases, submission.AcceptedTestcases)
	}
}

func TestIngestResultFinalEventNotRepeated(t *testing.T) {
	t.Parallel()
	f := newIngestFixture(t, 1)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.service.IngestResult(ctx, CallbackInput{
			SubmittedTestcaseID: f.rowIDs[0],
			StatusCode:          3,
		}); err != nil {
			t.Fatalf("IngestResult() attempt %d error = %v", i+1, err)
		}
	}

	if got := f.mq.count("submission.final"); got != 1 {
		t.Fatalf("final status events after redelivery = %d, want 1", got)
	}
}

func TestIngestResultIgnoresLateProcessingUpdate(t *testing.T) {
	t.Parallel()
	f := newIngestFixture(t, 1)
	ctx := context.Background()

	if _, err := f.service.IngestResult(ctx, CallbackInput{
		SubmittedTestcaseID: f.rowIDs[0],
		StatusCode:          4,
	}); err != nil {
		t.Fatalf("IngestResult() error = %v", err)
	}

	event, err := f.service.IngestResult(ctx, CallbackInput{
		SubmittedTestcaseID: f.rowIDs[0],
		StatusCode:          2,
	})
	if err != nil {
		t.Fatalf("IngestResult() error = %v", err)
	}
	if event != nil {
		t.Fatalf("event for late processing update = %+v, want nil", event)
	}

	f.store.mu.Lock()
	code := f.store.testcases[f.rowIDs[0]].StatusCode
	f.store.mu.Unlock()
	if code != 4 {
		t.Fatalf("row status code = %d, want 4", code)
	}
}

func TestIngestResultConflictWhileInFlight(t *testing.T) {
	t.Parallel()
	f := newIngestFixture(t, 1)

	if !f.service.guard.TryAcquire(f.rowIDs[0]) {
		t.Fatal("TryAcquire() = false, want true")
	}
	defer f.service.guard.Release(f.rowIDs[0])

	_, err := f.service.IngestResult(context.Background(), CallbackInput{
		SubmittedTestcaseID: f.rowIDs[0],
		StatusCode:          3,
	})
	if !appErr.Is(err, appErr.CallbackInFlight) {
		t.Fatalf("error = %v, want code %d", err, appErr.CallbackInFlight)
	}
}

func TestIngestResultUnknownRow(t *testing.T) {
	t.Parallel()
	f := newIngestFixture(t, 1)

	_, err := f.service.IngestResult(context.Background(), CallbackInput{
		SubmittedTestcaseID: "missing",
		StatusCode:          3,
	})
	if !appErr.Is(err, appErr.SubmittedTestcaseNotFound) {
		t.Fatalf("error = %v, want code %d", err, appErr.SubmittedTestcaseNotFound)
	}
}

func TestIngestResultInvalidStatusCode(t *testing.T) {
	t.Parallel()
	f := newIngestFixture(t, 1)

	_, err := f.service.IngestResult(context.Background(), CallbackInput{
		SubmittedTestcaseID: f.rowIDs[0],
		StatusCode:          0,
	})
	if !appErr.Is(err, appErr.UnknownJudgeStatus) {
		t.Fatalf("error = %v, want code %d", err, appErr.UnknownJudgeStatus)
	}
}

func TestIngestResultConcurrentDistinctTestcases(t *testing.T) {
	t.Parallel()
	const total = 16
	f := newIngestFixture(t, total)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, total)
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.IngestResult(ctx, CallbackInput{
				SubmittedTestcaseID: f.rowIDs[i],
				StatusCode:          3,
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("IngestResult(%d) error = %v", i, err)
		}
	}
	submission := f.submission(t)
	if submission.EvaluatedTestcases != total || submission.AcceptedTestcases != total {
		t.Fatalf("counts = %d/%d, want %d/%d", submission.EvaluatedTestcases, submission.AcceptedTestcases, total, total)
	}
	if submission.Status != model.StatusAccepted {
		t.Fatalf("status = %s, want Accepted", submission.Status)
	}
	if got := f.mq.count("submission.final"); got != 1 {
		t.Fatalf("final status events = %d, want 1", got)
	}
}
