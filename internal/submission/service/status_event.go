package service

import (
	"context"
	"encoding/json"
	"time"

	"competenest/internal/common/mq"
	"competenest/internal/submission/model"
	appErr "competenest/pkg/errors"
)

// FinalStatusEvent is published once per submission when its verdict
// becomes terminal. Downstream consumers (ranking, analytics) key on it.
type FinalStatusEvent struct {
	SubmissionID      string                 `json:"submission_id"`
	Status            model.SubmissionStatus `json:"status"`
	TotalTestcases    int                    `json:"total_testcases"`
	AcceptedTestcases int                    `json:"accepted_testcases"`
	FinishedAt        time.Time              `json:"finished_at"`
}

func (s *SubmissionService) emitFinalStatus(ctx context.Context, event *model.ProgressEvent) error {
	if s.mq == nil || s.finalEventTopic == "" {
		return nil
	}
	body, err := json.Marshal(FinalStatusEvent{
		SubmissionID:      event.SubmissionID,
		Status:            event.Status,
		TotalTestcases:    event.TotalTestcases,
		AcceptedTestcases: event.AcceptedTestcases,
		FinishedAt:        time.Now(),
	})
	if err != nil {
		return appErr.Wrapf(err, appErr.EventPublishFailed, "encode final status event failed")
	}
	message := mq.NewMessage(body)
	message.ID = event.SubmissionID

	ctxMQ := withTimeout(ctx, s.timeouts.MQ)
	defer ctxMQ.cancel()
	if err := s.mq.Publish(ctxMQ.ctx, s.finalEventTopic, message); err != nil {
		return appErr.Wrapf(err, appErr.EventPublishFailed, "publish final status event failed")
	}
	return nil
}
