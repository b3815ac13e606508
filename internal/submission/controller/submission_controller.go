package controller

import (
	"competenest/internal/submission/service"
	"competenest/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// SubmissionController handles submission HTTP endpoints.
type SubmissionController struct {
	submissionService *service.SubmissionService
}

// NewSubmissionController creates a new SubmissionController.
func NewSubmissionController(submissionService *service.SubmissionService) *SubmissionController {
	return &SubmissionController{submissionService: submissionService}
}

// Create handles submission requests.
func (h *SubmissionController) Create(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	result, err := h.submissionService.Dispatch(c.Request.Context(), service.DispatchInput{
		ProblemID:  req.ProblemID,
		UserID:     req.UserID,
		Code:       req.Code,
		LanguageID: req.LanguageID,
		ContestID:  c.Param("contestID"),
		ClientIP:   c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, DispatchResponse{
		SubmissionID:       result.Submission.SubmissionID,
		Status:             string(result.Submission.Status),
		TotalTestcases:     result.Submission.TotalTestcases,
		InputURLs:          result.InputURLs,
		ExpectedOutputURLs: result.ExpectedOutputURLs,
		CallbackURLs:       result.CallbackURLs,
	})
}

// Get returns a submission by id.
func (h *SubmissionController) Get(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	detail, err := h.submissionService.GetSubmission(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, newSubmissionDetailResponse(detail))
}

// SubmitRequest defines the submission payload. Code is base64-encoded.
type SubmitRequest struct {
	ProblemID  string `json:"problem_id" binding:"required"`
	UserID     string `json:"user_id" binding:"required"`
	Code       string `json:"code" binding:"required"`
	LanguageID int    `json:"language_id" binding:"required"`
}

// DispatchResponse is returned on submission creation. The URL lists
// are positionally aligned with the problem's testcases.
type DispatchResponse struct {
	SubmissionID       string   `json:"submission_id"`
	Status             string   `json:"status"`
	TotalTestcases     int      `json:"total_testcases"`
	InputURLs          []string `json:"input_urls"`
	ExpectedOutputURLs []string `json:"expected_output_urls"`
	CallbackURLs       []string `json:"callback_urls"`
}

// SubmissionResponse is the submission view returned by the API. The
// testcases list follows dispatch order.
type SubmissionResponse struct {
	SubmissionID       string             `json:"submission_id"`
	ProblemID          string             `json:"problem_id"`
	UserID             string             `json:"user_id"`
	LanguageID         int                `json:"language_id"`
	Status             string             `json:"status"`
	TotalTestcases     int                `json:"total_testcases"`
	EvaluatedTestcases int                `json:"evaluated_testcases"`
	AcceptedTestcases  int                `json:"accepted_testcases"`
	CreatedAt          string             `json:"created_at"`
	Testcases          []TestcaseResponse `json:"testcases"`
}

// TestcaseResponse is one per-testcase result row.
type TestcaseResponse struct {
	ID         string `json:"id"`
	TestcaseID string `json:"testcase_id"`
	StatusCode int    `json:"status_code"`
	Output     string `json:"output,omitempty"`
}

func newSubmissionDetailResponse(detail *service.SubmissionDetail) SubmissionResponse {
	submission := detail.Submission
	testcases := make([]TestcaseResponse, 0, len(detail.Testcases))
	for _, row := range detail.Testcases {
		testcases = append(testcases, TestcaseResponse{
			ID:         row.ID,
			TestcaseID: row.TestcaseID,
			StatusCode: row.StatusCode,
			Output:     row.Output,
		})
	}
	return SubmissionResponse{
		SubmissionID:       submission.SubmissionID,
		ProblemID:          submission.ProblemID,
		UserID:             submission.UserID,
		LanguageID:         submission.LanguageID,
		Status:             string(submission.Status),
		TotalTestcases:     submission.TotalTestcases,
		EvaluatedTestcases: submission.EvaluatedTestcases,
		AcceptedTestcases:  submission.AcceptedTestcases,
		CreatedAt:          submission.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Testcases:          testcases,
	}
}
