package controller

import (
	"context"

	"contestjudge/internal/judge/model"
	appErr "contestjudge/pkg/errors"
	"contestjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// SubmissionReader loads submissions and their latest execution.
type SubmissionReader interface {
	FindByID(ctx context.Context, submissionID string) (*model.Submission, error)
}

// ExecutionReader loads the latest execution of a submission.
type ExecutionReader interface {
	FindLatest(ctx context.Context, submissionID string) (*model.Execution, error)
}

// Dispatcher hands submissions to the judge queue.
type Dispatcher interface {
	EnqueueJudging(ctx context.Context, submissionID string) (*model.Submission, error)
	Requeue(ctx context.Context, submissionID string) (*model.Submission, error)
}

// SubmissionController handles submission HTTP endpoints.
type SubmissionController struct {
	submissions SubmissionReader
	executions  ExecutionReader
	dispatcher  Dispatcher
}

// NewSubmissionController creates a new SubmissionController.
func NewSubmissionController(submissions SubmissionReader, executions ExecutionReader, dispatcher Dispatcher) *SubmissionController {
	return &SubmissionController{submissions: submissions, executions: executions, dispatcher: dispatcher}
}

// RegisterRoutes mounts the submission endpoints on group.
func (h *SubmissionController) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/submissions/:id", h.Get)
	group.POST("/submissions/:id/enqueue", h.Enqueue)
	group.POST("/submissions/:id/requeue", h.Requeue)
}

// Get returns a submission with its latest execution, if any.
func (h *SubmissionController) Get(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	ctx := c.Request.Context()
	sub, err := h.submissions.FindByID(ctx, submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	resp := SubmissionResponse{Submission: sub}
	if sub.IsTerminal() {
		execution, err := h.executions.FindLatest(ctx, submissionID)
		switch {
		case err == nil:
			resp.Execution = execution
		case !appErr.Is(err, appErr.RecordNotFound):
			response.Error(c, err)
			return
		}
	}
	response.Success(c, resp)
}

// Enqueue publishes a freshly created submission for judging.
func (h *SubmissionController) Enqueue(c *gin.Context) {
	sub, err := h.dispatcher.EnqueueJudging(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, SubmissionResponse{Submission: sub})
}

// Requeue sends a failed submission back to the judge.
func (h *SubmissionController) Requeue(c *gin.Context) {
	sub, err := h.dispatcher.Requeue(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, SubmissionResponse{Submission: sub})
}
