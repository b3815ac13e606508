package controller

import (
	"competenest/internal/submission/service"
	"competenest/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// RunController handles scratch execution requests.
type RunController struct {
	submissionService *service.SubmissionService
}

// NewRunController creates a new RunController.
func NewRunController(submissionService *service.SubmissionService) *RunController {
	return &RunController{submissionService: submissionService}
}

// RunRequest defines the scratch execution payload. Code is
// base64-encoded; Input is plain text fed to stdin.
type RunRequest struct {
	Code       string `json:"code" binding:"required"`
	LanguageID int    `json:"language_id" binding:"required"`
	Input      string `json:"input"`
}

// RunResponse carries the run id, which doubles as the topic the result
// will be pushed on.
type RunResponse struct {
	RunID string `json:"run_id"`
}

// Create enqueues a scratch execution.
func (h *RunController) Create(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	topic, err := h.submissionService.Run(c.Request.Context(), service.RunInput{
		Code:       req.Code,
		LanguageID: req.LanguageID,
		Stdin:      req.Input,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, RunResponse{RunID: topic})
}
