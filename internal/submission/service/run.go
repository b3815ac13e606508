package service

import (
	"context"
	"encoding/base64"
	"strings"

	"competenest/internal/judge"
	appErr "competenest/pkg/errors"

	"github.com/google/uuid"
)

// RunInput describes a scratch execution request: code plus an inline
// stdin, run against no expected output. Nothing is persisted.
type RunInput struct {
	Code       string
	LanguageID int
	Stdin      string
}

// RunResultEvent is the single event a scratch run produces.
type RunResultEvent struct {
	Topic      string `json:"topic"`
	StatusCode int    `json:"status_code"`
	StatusName string `json:"status_name"`
	Output     string `json:"output"`
}

// Run enqueues a scratch execution and returns the topic its result will
// be pushed on. The topic exists only in flight: subscribers that join
// after the result arrived get nothing.
func (s *SubmissionService) Run(ctx context.Context, input RunInput) (string, error) {
	if strings.TrimSpace(input.Code) == "" {
		return "", appErr.ValidationError("code", "required")
	}
	source, err := base64.StdEncoding.DecodeString(input.Code)
	if err != nil {
		return "", appErr.ValidationError("code", "must be base64 encoded")
	}
	if s.maxCodeBytes > 0 && len(source) > s.maxCodeBytes {
		return "", appErr.New(appErr.CodeTooLarge).WithMessage("source code too large")
	}
	if input.LanguageID <= 0 {
		return "", appErr.New(appErr.LanguageNotSupported).WithMessage("language is not supported")
	}

	topic := uuid.NewString()
	job := judge.Job{
		SourceCode:  string(source),
		LanguageID:  input.LanguageID,
		Stdin:       input.Stdin,
		CallbackURL: s.buildRunCallbackURL(topic),
	}

	ctxJudge := withTimeout(ctx, s.timeouts.Judge)
	defer ctxJudge.cancel()
	if _, err := s.judge.Submit(ctxJudge.ctx, job); err != nil {
		return "", appErr.UpstreamError(err, appErr.RunDispatchFailed).WithMessage("enqueue run on judge failed")
	}
	return topic, nil
}

// RunCallbackInput is the judge result for a scratch run.
type RunCallbackInput struct {
	Topic      string
	StatusCode int
	Output     string
}

// IngestRunResult forwards a scratch run result to the topic's
// subscribers. There is no database state to reconcile, so delivery is
// the whole operation.
func (s *SubmissionService) IngestRunResult(_ context.Context, input RunCallbackInput) error {
	if input.Topic == "" {
		return appErr.ValidationError("topic", "required")
	}
	status, err := judge.FromCode(input.StatusCode)
	if err != nil {
		return appErr.Wrap(err, appErr.UnknownJudgeStatus).WithMessage("unknown judge status")
	}
	if s.notifier == nil {
		return nil
	}
	s.notifier.Publish(input.Topic, RunResultEvent{
		Topic:      input.Topic,
		StatusCode: status.Code,
		StatusName: status.Description(),
		Output:     input.Output,
	})
	return nil
}

func (s *SubmissionService) buildRunCallbackURL(topic string) string {
	return strings.TrimRight(s.callbackBaseURL, "/") + "/api/run/callback/" + topic
}
