// internal/handlers/execution.go
package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ndstrzz/taedal-v7-sub000/internal/apperrors"
	"github.com/ndstrzz/taedal-v7-sub000/internal/events"
	"github.com/ndstrzz/taedal-v7-sub000/internal/services"
	"github.com/ndstrzz/taedal-v7-sub000/internal/utils"
)

type ExecutionHandler struct {
	negotiations *services.NegotiationService
	executions   *services.ExecutionService
	events       events.Sink
	maxUpload    int64
	urlTTL       time.Duration
}

func NewExecutionHandler(negotiations *services.NegotiationService, executions *services.ExecutionService, sink events.Sink, maxUpload int64, urlTTL time.Duration) *ExecutionHandler {
	return &ExecutionHandler{
		negotiations: negotiations,
		executions:   executions,
		events:       sink,
		maxUpload:    maxUpload,
		urlTTL:       urlTTL,
	}
}

type VerifyResponse struct {
	Match bool   `json:"match"`
	Hash  string `json:"hash"`
}

type DocumentURLResponse struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in"`
}

// POST /negotiations/:id/execution
func (h *ExecutionHandler) RecordExecution(c *gin.Context) {
	req, ok := loadPartyRequest(c, h.negotiations)
	if !ok {
		return
	}

	document, ok := h.readDocument(c)
	if !ok {
		return
	}
	// Uploaded executions must be PDFs or scans
	if _, _, known := services.DetectDocumentType(document); !known {
		respondError(c, apperrors.Validation("", apperrors.FieldError{Field: "document", Tag: "filetype", Message: "document must be a PDF, PNG or JPEG file"}))
		return
	}

	result, evts, err := h.executions.RecordExecution(c.Request.Context(), req.ID, services.RecordExecutionInput{
		Document:    document,
		SignerName:  c.PostForm("signer_name"),
		SignerTitle: c.PostForm("signer_title"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	h.events.Dispatch(evts...)

	utils.CreatedResponse(c, result)
}

// POST /negotiations/:id/execution/verify
func (h *ExecutionHandler) VerifyDocument(c *gin.Context) {
	req, ok := loadPartyRequest(c, h.negotiations)
	if !ok {
		return
	}

	document, ok := h.readDocument(c)
	if !ok {
		return
	}

	match, err := h.executions.VerifyDocument(c.Request.Context(), req.ID, document)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, VerifyResponse{Match: match, Hash: utils.HashBytes(document)})
}

// GET /negotiations/:id/execution/url
func (h *ExecutionHandler) DocumentURL(c *gin.Context) {
	req, ok := loadPartyRequest(c, h.negotiations)
	if !ok {
		return
	}

	url, err := h.executions.DocumentURL(c.Request.Context(), req.ID, h.urlTTL)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, DocumentURLResponse{URL: url, ExpiresIn: int(h.urlTTL.Seconds())})
}

// readDocument reads the "document" multipart file, bounded by maxUpload.
func (h *ExecutionHandler) readDocument(c *gin.Context) ([]byte, bool) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}

	header, err := c.FormFile("document")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.ErrorResponse(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Document exceeds the upload limit", nil)
			return nil, false
		}
		respondError(c, apperrors.Validation("", apperrors.FieldError{Field: "document", Tag: "required", Message: "document is required"}))
		return nil, false
	}

	file, err := header.Open()
	if err != nil {
		utils.BadRequestResponse(c, "Unreadable document", nil)
		return nil, false
	}
	defer file.Close()

	document, err := io.ReadAll(file)
	if err != nil {
		utils.BadRequestResponse(c, "Unreadable document", nil)
		return nil, false
	}
	return document, true
}
