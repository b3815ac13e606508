package controller

import (
	"competenest/internal/submission/service"
	"competenest/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// CallbackController receives judge results. The judge PUTs one result
// per enqueued job to the callback URL it was handed at dispatch.
type CallbackController struct {
	submissionService *service.SubmissionService
}

// NewCallbackController creates a new CallbackController.
func NewCallbackController(submissionService *service.SubmissionService) *CallbackController {
	return &CallbackController{submissionService: submissionService}
}

// CallbackRequest is the judge result payload. Stdout is base64-encoded
// and null for testcases that produced no output.
type CallbackRequest struct {
	Stdout *string `json:"stdout"`
	Status struct {
		ID int `json:"id"`
	} `json:"status"`
}

// Submission ingests the result for one submitted testcase. The same
// handler serves the contest-scoped callback route.
func (h *CallbackController) Submission(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, "Invalid callback id")
		return
	}
	var req CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid callback payload")
		return
	}
	output := ""
	if req.Stdout != nil {
		output = *req.Stdout
	}
	_, err := h.submissionService.IngestResult(c.Request.Context(), service.CallbackInput{
		SubmittedTestcaseID: id,
		StatusCode:          req.Status.ID,
		Output:              output,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"success": true})
}

// Run ingests the result of a scratch execution.
func (h *CallbackController) Run(c *gin.Context) {
	topic := c.Param("topic")
	if topic == "" {
		response.BadRequest(c, "Invalid callback topic")
		return
	}
	var req CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid callback payload")
		return
	}
	output := ""
	if req.Stdout != nil {
		output = *req.Stdout
	}
	err := h.submissionService.IngestRunResult(c.Request.Context(), service.RunCallbackInput{
		Topic:      topic,
		StatusCode: req.Status.ID,
		Output:     output,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"success": true})
}
