package service

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	appErr "competenest/pkg/errors"
)

func TestRunEnqueuesScratchJob(t *testing.T) {
	t.Parallel()
	f := newDispatchFixture(t, 1)

	topic, err := f.service.Run(context.Background(), RunInput{
		Code:       base64.StdEncoding.EncodeToString([]byte("print(input())")),
		LanguageID: 71,
		Stdin:      "5",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if topic == "" {
		t.Fatal("Run() returned empty topic")
	}

	if len(f.judge.batches) != 1 || len(f.judge.batches[0]) != 1 {
		t.Fatalf("judge batches = %+v, want one batch with one job", f.judge.batches)
	}
	job := f.judge.batches[0][0]
	if job.CallbackURL != "http://core.test/api/run/callback/"+topic {
		t.Fatalf("callback URL = %q, want run callback with topic", job.CallbackURL)
	}
	if job.Stdin != "5" {
		t.Fatalf("job stdin = %q, want 5", job.Stdin)
	}

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if len(f.store.submissions) != 0 || len(f.store.testcases) != 0 {
		t.Fatal("scratch run persisted state")
	}
}

func TestRunRejectsInvalidCode(t *testing.T) {
	t.Parallel()
	f := newDispatchFixture(t, 1)

	_, err := f.service.Run(context.Background(), RunInput{Code: "not base64!!", LanguageID: 71})
	if !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("error = %v, want code %d", err, appErr.ValidationFailed)
	}
}

func TestIngestRunResultPublishesToTopic(t *testing.T) {
	t.Parallel()
	f := newIngestFixture(t, 1)

	err := f.service.IngestRunResult(context.Background(), RunCallbackInput{
		Topic:      "run-topic",
		StatusCode: 3,
		Output:     "NQ==",
	})
	if err != nil {
		t.Fatalf("IngestRunResult() error = %v", err)
	}

	events := f.notifier.all()
	if len(events) != 1 {
		t.Fatalf("published events = %d, want 1", len(events))
	}
	if events[0].topic != "run-topic" {
		t.Fatalf("event topic = %q, want run-topic", events[0].topic)
	}
	result, ok := events[0].event.(RunResultEvent)
	if !ok {
		t.Fatalf("event type = %T, want RunResultEvent", events[0].event)
	}
	if result.StatusName != "Accepted" || result.Output != "NQ==" {
		t.Fatalf("event = %+v, want Accepted with output NQ==", result)
	}
}

func TestIngestRunResultRejectsUnknownStatus(t *testing.T) {
	t.Parallel()
	f := newIngestFixture(t, 1)

	err := f.service.IngestRunResult(context.Background(), RunCallbackInput{
		Topic:      "run-topic",
		StatusCode: 0,
	})
	if !appErr.Is(err, appErr.UnknownJudgeStatus) {
		t.Fatalf("error = %v, want code %d", err, appErr.UnknownJudgeStatus)
	}
	if got := strings.TrimSpace(err.Error()); got == "" {
		t.Fatal("error has empty message")
	}
}
