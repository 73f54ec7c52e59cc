// internal/handlers/negotiation.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ndstrzz/taedal-v7-sub000/internal/apperrors"
	"github.com/ndstrzz/taedal-v7-sub000/internal/events"
	"github.com/ndstrzz/taedal-v7-sub000/internal/models"
	"github.com/ndstrzz/taedal-v7-sub000/internal/render"
	"github.com/ndstrzz/taedal-v7-sub000/internal/services"
	"github.com/ndstrzz/taedal-v7-sub000/internal/utils"
)

type NegotiationHandler struct {
	negotiations *services.NegotiationService
	events       events.Sink
}

func NewNegotiationHandler(negotiations *services.NegotiationService, sink events.Sink) *NegotiationHandler {
	return &NegotiationHandler{
		negotiations: negotiations,
		events:       sink,
	}
}

// AcceptPatchRequest carries either an inline patch or the id of a thread
// message whose patch should be applied.
type AcceptPatchRequest struct {
	Patch     *models.TermsPatch `json:"patch,omitempty"`
	MessageID *uuid.UUID         `json:"message_id,omitempty"`
}

type TermsResponse struct {
	Terms  models.LicenseTerms `json:"terms"`
	Source models.TermsSource  `json:"source"`
}

// POST /negotiations
func (h *NegotiationHandler) CreateRequest(c *gin.Context) {
	requesterID, ok := callerID(c)
	if !ok {
		return
	}

	var req services.CreateRequestInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	created, evts, err := h.negotiations.CreateRequest(c.Request.Context(), requesterID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	h.events.Dispatch(evts...)

	utils.CreatedResponse(c, created)
}

// GET /negotiations
func (h *NegotiationHandler) ListRequests(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	requests, total, err := h.negotiations.ListRequests(c.Request.Context(), userID, services.ListRequestsParams{
		PaginationParams: params,
		Status:           models.RequestStatus(c.Query("status")),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	result := utils.CreatePaginationResult(requests, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /negotiations/:id
func (h *NegotiationHandler) GetRequest(c *gin.Context) {
	req, ok := h.partyRequest(c)
	if !ok {
		return
	}

	utils.SuccessResponse(c, req)
}

// GET /negotiations/:id/terms
func (h *NegotiationHandler) GetWorkingTerms(c *gin.Context) {
	req, ok := h.partyRequest(c)
	if !ok {
		return
	}

	terms, source := req.WorkingTerms()
	utils.SuccessResponse(c, TermsResponse{Terms: terms, Source: source})
}

// GET /negotiations/:id/draft
func (h *NegotiationHandler) GetDraft(c *gin.Context) {
	req, ok := h.partyRequest(c)
	if !ok {
		return
	}

	terms, source := req.WorkingTerms()
	html, err := render.Render(req, terms, source)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

// GET /negotiations/:id/messages
func (h *NegotiationHandler) ListMessages(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	messages, err := h.negotiations.ListMessages(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, messages)
}

// POST /negotiations/:id/messages
func (h *NegotiationHandler) PostMessage(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req services.PostMessageInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	msg, evts, err := h.negotiations.PostMessage(c.Request.Context(), id, userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	h.events.Dispatch(evts...)

	utils.CreatedResponse(c, msg)
}

// GET /negotiations/:id/messages/:messageId/diff
func (h *NegotiationHandler) DiffMessage(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	messageID, ok := pathID(c, "messageId")
	if !ok {
		return
	}

	changes, err := h.negotiations.DiffMessage(c.Request.Context(), id, messageID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, changes)
}

// POST /negotiations/:id/accept-patch
func (h *NegotiationHandler) AcceptPatch(c *gin.Context) {
	req, ok := h.partyRequest(c)
	if !ok {
		return
	}
	userID, _ := utils.GetUserIDFromContext(c)

	var body AcceptPatchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}
	if (body.Patch == nil) == (body.MessageID == nil) {
		respondError(c, apperrors.Validation("provide exactly one of patch or message_id"))
		return
	}

	patch := body.Patch
	if body.MessageID != nil {
		msg, err := h.negotiations.GetMessage(c.Request.Context(), req.ID, *body.MessageID, userID)
		if err != nil {
			respondError(c, err)
			return
		}
		if msg.Patch == nil {
			respondError(c, apperrors.Validation("message carries no terms patch"))
			return
		}
		patch = msg.Patch
	}
	if patch.IsEmpty() {
		respondError(c, apperrors.Validation("terms patch is empty"))
		return
	}

	updated, evts, err := h.negotiations.AcceptPatch(c.Request.Context(), req.ID, *patch)
	if err != nil {
		respondError(c, err)
		return
	}
	h.events.Dispatch(evts...)

	utils.SuccessResponse(c, updated)
}

// POST /negotiations/:id/accept
func (h *NegotiationHandler) AcceptOffer(c *gin.Context) {
	req, ok := h.partyRequest(c)
	if !ok {
		return
	}
	if userID, _ := utils.GetUserIDFromContext(c); userID != req.OwnerID {
		utils.ForbiddenResponse(c, "Only the artwork owner can accept the offer")
		return
	}

	updated, evts, err := h.negotiations.AcceptOffer(c.Request.Context(), req.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.events.Dispatch(evts...)

	utils.SuccessResponse(c, updated)
}

// POST /negotiations/:id/decline
func (h *NegotiationHandler) Decline(c *gin.Context) {
	h.setStatus(c, models.RequestStatusDeclined)
}

// POST /negotiations/:id/withdraw
func (h *NegotiationHandler) Withdraw(c *gin.Context) {
	h.setStatus(c, models.RequestStatusWithdrawn)
}

func (h *NegotiationHandler) setStatus(c *gin.Context, status models.RequestStatus) {
	req, ok := h.partyRequest(c)
	if !ok {
		return
	}

	// Check permissions
	userID, _ := utils.GetUserIDFromContext(c)
	switch {
	case status == models.RequestStatusDeclined && userID != req.OwnerID:
		utils.ForbiddenResponse(c, "Only the artwork owner can decline")
		return
	case status == models.RequestStatusWithdrawn && userID != req.RequesterID:
		utils.ForbiddenResponse(c, "Only the requester can withdraw")
		return
	}

	updated, evts, err := h.negotiations.SetStatus(c.Request.Context(), req.ID, status)
	if err != nil {
		respondError(c, err)
		return
	}
	h.events.Dispatch(evts...)

	utils.SuccessResponse(c, updated)
}

func (h *NegotiationHandler) partyRequest(c *gin.Context) (*models.LicenseRequest, bool) {
	return loadPartyRequest(c, h.negotiations)
}

// loadPartyRequest loads the :id request for an authenticated party, writing
// the error response otherwise.
func loadPartyRequest(c *gin.Context, negotiations *services.NegotiationService) (*models.LicenseRequest, bool) {
	userID, ok := callerID(c)
	if !ok {
		return nil, false
	}
	id, ok := pathID(c, "id")
	if !ok {
		return nil, false
	}

	req, err := negotiations.GetRequest(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return req, true
}
