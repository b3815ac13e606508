package service

import (
	"context"
	"errors"

	"competenest/internal/common/db"
	"competenest/internal/judge"
	"competenest/internal/submission/model"
	"competenest/internal/submission/repository"
	appErr "competenest/pkg/errors"
	"competenest/pkg/utils/logger"

	"go.uber.org/zap"
)

// CallbackInput is one judge result for one submitted testcase.
// Output arrives base64-encoded and is stored as received.
type CallbackInput struct {
	SubmittedTestcaseID string
	StatusCode          int
	Output              string
}

// IngestResult applies a judge callback: it records the per-testcase
// result and, for terminal statuses, advances the submission verdict in
// the same transaction. The parent row is locked for the update, so the
// read-and-increment is atomic even across instances; a concurrent
// callback for the same testcase on this instance is rejected up front.
//
// Re-delivery of a result the row already holds updates nothing and
// never increments counts a second time.
func (s *SubmissionService) IngestResult(ctx context.Context, input CallbackInput) (*model.ProgressEvent, error) {
	if input.SubmittedTestcaseID == "" {
		return nil, appErr.ValidationError("submitted_testcase_id", "required")
	}
	status, err := judge.FromCode(input.StatusCode)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.UnknownJudgeStatus).WithMessage("unknown judge status")
	}

	if !s.guard.TryAcquire(input.SubmittedTestcaseID) {
		return nil, appErr.ConflictError("testcase result is already being processed")
	}
	defer s.guard.Release(input.SubmittedTestcaseID)

	database, err := db.CurrentDatabase(s.db)
	if err != nil {
		return nil, appErr.InternalError(err)
	}

	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()

	var snapshot *model.ProgressEvent
	var becameFinal bool
	txErr := database.Transaction(ctxDB.ctx, func(tx db.Transaction) error {
		row, err := s.testcaseRepo.GetByID(ctxDB.ctx, tx, input.SubmittedTestcaseID)
		if err != nil {
			return err
		}

		rowWasTerminal := isTerminalCode(row.StatusCode)
		if rowWasTerminal && !status.IsTerminal() {
			// Out-of-order delivery: a queued/processing update arrived
			// after the final result. The row keeps its final state.
			snapshot = nil
			return nil
		}

		if err := s.testcaseRepo.UpdateResult(ctxDB.ctx, tx, row.ID, input.Output, status.Code); err != nil {
			return err
		}

		if !status.IsTerminal() || rowWasTerminal {
			parent, err := s.submissionRepo.GetByID(ctxDB.ctx, tx, row.SubmissionID)
			if err != nil {
				return err
			}
			snapshot = buildSnapshot(parent, row.TestcaseID, status.Code)
			return nil
		}

		parent, err := s.submissionRepo.GetForUpdate(ctxDB.ctx, tx, row.SubmissionID)
		if err != nil {
			return err
		}

		isFailure := parent.Status == model.StatusRejected || status.IsFailure()
		isLast := parent.EvaluatedTestcases+1 == parent.TotalTestcases

		newStatus := parent.Status
		if isFailure {
			newStatus = model.StatusRejected
		} else if isLast {
			newStatus = model.StatusAccepted
		}

		acceptedDelta := 0
		if status.Kind == judge.KindAccepted {
			acceptedDelta = 1
		}
		becameFinal = !parent.Status.IsTerminal() && newStatus.IsTerminal()

		if err := s.submissionRepo.ApplyEvaluation(ctxDB.ctx, tx, parent.SubmissionID, acceptedDelta, newStatus); err != nil {
			return err
		}

		parent.EvaluatedTestcases++
		parent.AcceptedTestcases += acceptedDelta
		parent.Status = newStatus
		snapshot = buildSnapshot(parent, row.TestcaseID, status.Code)
		return nil
	})
	if txErr != nil {
		return nil, mapIngestError(txErr)
	}
	if snapshot == nil {
		return nil, nil
	}

	s.notify(snapshot.SubmissionID, snapshot)
	// Only the callback that moved the verdict into a terminal state emits
	// the downstream event; later callbacks of a Rejected submission and
	// redeliveries keep the verdict terminal without re-announcing it.
	if becameFinal {
		s.publishFinalStatus(ctx, snapshot)
	}
	return snapshot, nil
}

func (s *SubmissionService) notify(topic string, event *model.ProgressEvent) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(topic, event)
}

func buildSnapshot(submission *model.Submission, testcaseID string, testcaseStatus int) *model.ProgressEvent {
	return &model.ProgressEvent{
		SubmissionID:       submission.SubmissionID,
		Status:             submission.Status,
		TotalTestcases:     submission.TotalTestcases,
		EvaluatedTestcases: submission.EvaluatedTestcases,
		AcceptedTestcases:  submission.AcceptedTestcases,
		TestcaseID:         testcaseID,
		TestcaseStatus:     testcaseStatus,
	}
}

func isTerminalCode(code int) bool {
	status, err := judge.FromCode(code)
	if err != nil {
		return false
	}
	return status.IsTerminal()
}

func mapIngestError(err error) error {
	switch {
	case errors.Is(err, repository.ErrSubmittedTestcaseNotFound):
		return appErr.New(appErr.SubmittedTestcaseNotFound).WithMessage("submitted testcase not found")
	case errors.Is(err, repository.ErrSubmissionNotFound):
		return appErr.New(appErr.SubmissionNotFound).WithMessage("submission not found")
	default:
		if appErr.GetError(err) != nil {
			return err
		}
		return appErr.Wrapf(err, appErr.VerdictUpdateFailed, "apply judge result failed")
	}
}

func (s *SubmissionService) publishFinalStatus(ctx context.Context, event *model.ProgressEvent) {
	if err := s.emitFinalStatus(ctx, event); err != nil {
		logger.Warn(ctx, "publish final status event failed",
			zap.String("submission_id", event.SubmissionID),
			zap.Error(err))
	}
}
