// Package model defines the records the submission core reads and mutates.
package model

import "time"

// SubmissionStatus is the aggregate verdict of a submission.
type SubmissionStatus string

const (
	// StatusPending holds while evaluated < total and no failure was observed.
	StatusPending SubmissionStatus = "Pending"
	// StatusAccepted is reached only by the callback that completes the count
	// with every testcase successful.
	StatusAccepted SubmissionStatus = "Accepted"
	// StatusRejected is sticky: once set it never reverts.
	StatusRejected SubmissionStatus = "Rejected"
)

// IsTerminal reports whether the verdict can no longer change.
func (s SubmissionStatus) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// Submission is one user attempt at a problem, tracked until all of its
// testcases are evaluated. TotalTestcases is fixed at creation;
// EvaluatedTestcases only ever grows, one increment per processed callback.
type Submission struct {
	SubmissionID       string
	ProblemID          string
	UserID             string
	Code               string // base64-encoded source
	LanguageID         int
	TotalTestcases     int
	EvaluatedTestcases int
	AcceptedTestcases  int
	Status             SubmissionStatus
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SubmittedTestcase is the per-submission, per-testcase record that receives
// the judge's verdict. Its id is embedded in the callback URL so the ingestor
// addresses the row directly. Written exactly once by the result ingestor.
type SubmittedTestcase struct {
	ID           string
	SubmissionID string
	TestcaseID   string
	Output       string
	StatusCode   int // raw judge code: 1 queued, 2 processing, 3 accepted, >=4 failure
	UpdatedAt    time.Time
}

// ProgressEvent is the submission snapshot pushed to live subscribers after
// each committed ingestion, and published downstream on terminal verdicts.
type ProgressEvent struct {
	SubmissionID       string           `json:"submission_id"`
	Status             SubmissionStatus `json:"status"`
	TotalTestcases     int              `json:"total_testcases"`
	EvaluatedTestcases int              `json:"evaluated_testcases"`
	AcceptedTestcases  int              `json:"accepted_testcases"`
	TestcaseID         string           `json:"testcase_id,omitempty"`
	TestcaseStatus     int              `json:"testcase_status,omitempty"`
}
