package controller

import (
	"context"
	"strings"
	"time"

	judgemodel "contestjudge/internal/judge/model"
	"contestjudge/internal/leaderboard/model"
	"contestjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// LeaderboardService is the engine surface exposed over HTTP.
type LeaderboardService interface {
	Build(ctx context.Context, contestID string, asOf *time.Time) (*model.Leaderboard, error)
	BuildPartial(ctx context.Context, memberID, problemID string) (*model.Partial, error)
	Freeze(ctx context.Context, contestID string) (*model.Leaderboard, error)
	Unfreeze(ctx context.Context, contestID string) (*model.UnfreezeResult, error)
	FindAllSubmissionsSinceLastFreeze(ctx context.Context, contestID string) ([]*judgemodel.Submission, error)
}

// LeaderboardController handles leaderboard HTTP endpoints.
type LeaderboardController struct {
	svc LeaderboardService
}

// NewLeaderboardController creates a new LeaderboardController.
func NewLeaderboardController(svc LeaderboardService) *LeaderboardController {
	return &LeaderboardController{svc: svc}
}

// RegisterRoutes mounts the contest endpoints on group.
func (h *LeaderboardController) RegisterRoutes(group *gin.RouterGroup) {
	contests := group.Group("/contests/:id")
	contests.GET("/leaderboard", h.Get)
	contests.GET("/leaderboard/partial", h.GetPartial)
	contests.POST("/freeze", h.Freeze)
	contests.POST("/unfreeze", h.Unfreeze)
	contests.GET("/frozen-submissions", h.FrozenSubmissions)
}

// Get returns the standings. The optional as_of query (RFC 3339) overrides
// the freeze cutoff.
func (h *LeaderboardController) Get(c *gin.Context) {
	var asOf *time.Time
	if raw := strings.TrimSpace(c.Query("as_of")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.BadRequest(c, "as_of must be an RFC 3339 timestamp")
			return
		}
		asOf = &t
	}
	board, err := h.svc.Build(c.Request.Context(), c.Param("id"), asOf)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, board)
}

// GetPartial returns one member's cell for one problem.
func (h *LeaderboardController) GetPartial(c *gin.Context) {
	memberID := strings.TrimSpace(c.Query("member"))
	problemID := strings.TrimSpace(c.Query("problem"))
	if memberID == "" || problemID == "" {
		response.BadRequest(c, "member and problem are required")
		return
	}
	partial, err := h.svc.BuildPartial(c.Request.Context(), memberID, problemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if partial.ContestID != c.Param("id") {
		response.NotFound(c, "problem is not part of this contest")
		return
	}
	response.Success(c, partial)
}

func (h *LeaderboardController) Freeze(c *gin.Context) {
	board, err := h.svc.Freeze(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, board)
}

func (h *LeaderboardController) Unfreeze(c *gin.Context) {
	result, err := h.svc.Unfreeze(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// FrozenSubmissions lists submissions hidden by the current freeze.
func (h *LeaderboardController) FrozenSubmissions(c *gin.Context) {
	subs, err := h.svc.FindAllSubmissionsSinceLastFreeze(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, subs)
}
