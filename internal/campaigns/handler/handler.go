package handler

import (
	"errors"
	"net/http"

	"leadgen-server/internal/apierrors"
	"leadgen-server/internal/campaigns/processor"
	"leadgen-server/internal/leads"
	"leadgen-server/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	campaignProcessor *processor.Processor
	logger            *observability.Logger
}

// StartRunRequest mirrors leads.CampaignInput; binding rejects the obviously
// malformed payloads before the processor validates the semantics.
type StartRunRequest struct {
	SearchStrategy string   `json:"search_strategy" binding:"required"`
	TargetRoles    []string `json:"target_roles" binding:"required,min=1"`
	Agenda         string   `json:"agenda" binding:"required"`
	MaxLeads       int      `json:"max_leads" binding:"required,min=1,max=1000"`
	SearchDepth    int      `json:"search_depth" binding:"required,min=1,max=5"`
}

func New(campaignProcessor *processor.Processor, logger *observability.Logger) Handler {
	return Handler{campaignProcessor: campaignProcessor, logger: logger}
}

func (h *Handler) HandleStartRun(c *gin.Context) {
	ctx := c.Request.Context()
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.InfoWithError(ctx, "failed to bind request", err)
		apierrors.BadRequest(c, "INVALID_REQUEST", "invalid campaign request")
		return
	}

	input, err := leads.NewCampaignInput(req.SearchStrategy, req.TargetRoles, req.Agenda, req.MaxLeads, req.SearchDepth)
	if err != nil {
		apierrors.BadRequest(c, "INVALID_CAMPAIGN_INPUT", err.Error())
		return
	}

	runID, err := h.campaignProcessor.StartRun(ctx, userID, input)
	if err != nil {
		if errors.Is(err, leads.ErrInvalidCampaignInput) {
			apierrors.BadRequest(c, "INVALID_CAMPAIGN_INPUT", err.Error())
			return
		}
		h.logger.Error(ctx, "failed to start run", err)
		apierrors.InternalError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

func (h *Handler) HandleGetProgress(c *gin.Context) {
	ctx := c.Request.Context()
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	state, err := h.campaignProcessor.GetProgress(ctx, c.Param("runId"), userID)
	if err != nil {
		if errors.Is(err, processor.ErrRunNotFound) {
			apierrors.NotFound(c, "run not found")
			return
		}
		h.logger.Error(ctx, "failed to get progress", err)
		apierrors.InternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

func (h *Handler) HandleGetResult(c *gin.Context) {
	ctx := c.Request.Context()
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	result, err := h.campaignProcessor.GetResult(ctx, c.Param("runId"), userID)
	if err != nil {
		switch {
		case errors.Is(err, processor.ErrRunNotFound):
			apierrors.NotFound(c, "run not found")
		case errors.Is(err, processor.ErrRunNotFinished):
			apierrors.Conflict(c, "RUN_NOT_FINISHED", "run has not finished")
		default:
			h.logger.Error(ctx, "failed to get result", err)
			apierrors.InternalError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) HandleCancelRun(c *gin.Context) {
	ctx := c.Request.Context()
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	err := h.campaignProcessor.Cancel(ctx, c.Param("runId"), userID)
	if err != nil {
		switch {
		case errors.Is(err, processor.ErrRunNotFound):
			apierrors.NotFound(c, "run not found")
		case errors.Is(err, processor.ErrRunNotRunning):
			apierrors.Conflict(c, "RUN_NOT_RUNNING", "run is not running")
		default:
			h.logger.Error(ctx, "failed to cancel run", err)
			apierrors.InternalError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelling"})
}

func (h *Handler) HandleListRuns(c *gin.Context) {
	ctx := c.Request.Context()
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	runs, err := h.campaignProcessor.ListRuns(ctx, userID)
	if err != nil {
		h.logger.Error(ctx, "failed to list runs", err)
		apierrors.InternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// userID reads the authenticated user set by the JWT middleware. A missing or
// malformed value means the middleware did not run; treat it as unauthorized.
func (h *Handler) userID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.GetString("User-ID")
	if raw == "" {
		apierrors.Unauthorized(c, "missing authenticated user")
		return uuid.UUID{}, false
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		apierrors.Unauthorized(c, "invalid authenticated user")
		return uuid.UUID{}, false
	}
	return userID, true
}
