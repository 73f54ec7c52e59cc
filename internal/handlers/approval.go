// internal/handlers/approval.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/ndstrzz/taedal-v7-sub000/internal/events"
	"github.com/ndstrzz/taedal-v7-sub000/internal/models"
	"github.com/ndstrzz/taedal-v7-sub000/internal/services"
	"github.com/ndstrzz/taedal-v7-sub000/internal/utils"
)

type ApprovalHandler struct {
	negotiations *services.NegotiationService
	approvals    *services.ApprovalService
	events       events.Sink
}

func NewApprovalHandler(negotiations *services.NegotiationService, approvals *services.ApprovalService, sink events.Sink) *ApprovalHandler {
	return &ApprovalHandler{
		negotiations: negotiations,
		approvals:    approvals,
		events:       sink,
	}
}

type StageHistoryResponse struct {
	Stage    models.ApprovalStage    `json:"stage"`
	Decision models.ApprovalDecision `json:"decision"`
	History  []models.ApprovalRecord `json:"history"`
}

// POST /negotiations/:id/approvals
func (h *ApprovalHandler) RecordDecision(c *gin.Context) {
	req, ok := loadPartyRequest(c, h.negotiations)
	if !ok {
		return
	}
	userID, _ := utils.GetUserIDFromContext(c)

	var body services.RecordDecisionInput
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	record, evts, err := h.approvals.RecordDecision(c.Request.Context(), req.ID, userID, body)
	if err != nil {
		respondError(c, err)
		return
	}
	h.events.Dispatch(evts...)

	utils.CreatedResponse(c, record)
}

// GET /negotiations/:id/approvals[?stage=legal]
func (h *ApprovalHandler) GetApprovals(c *gin.Context) {
	req, ok := loadPartyRequest(c, h.negotiations)
	if !ok {
		return
	}

	stage := models.ApprovalStage(c.Query("stage"))
	if stage == "" {
		summary, err := h.approvals.Summary(c.Request.Context(), req.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		utils.SuccessResponse(c, summary)
		return
	}

	history, err := h.approvals.History(c.Request.Context(), req.ID, stage)
	if err != nil {
		respondError(c, err)
		return
	}
	if history == nil {
		history = []models.ApprovalRecord{}
	}

	utils.SuccessResponse(c, StageHistoryResponse{
		Stage:    stage,
		Decision: services.LatestDecision(history, stage),
		History:  history,
	})
}
