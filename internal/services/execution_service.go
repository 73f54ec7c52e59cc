// internal/services/execution_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ndstrzz/taedal-v7-sub000/internal/apperrors"
	"github.com/ndstrzz/taedal-v7-sub000/internal/events"
	"github.com/ndstrzz/taedal-v7-sub000/internal/models"
	"github.com/ndstrzz/taedal-v7-sub000/internal/store"
	"github.com/ndstrzz/taedal-v7-sub000/internal/utils"
)

type ExecutionService struct {
	store   store.Store
	objects ObjectStore
	mutator *requestMutator
	opts    serviceOptions
}

type RecordExecutionInput struct {
	Document    []byte
	SignerName  string
	SignerTitle string
}

type ExecutionResult struct {
	RequestID   uuid.UUID `json:"request_id"`
	Hash        string    `json:"hash"`
	StoredRef   string    `json:"stored_ref"`
	SignedAt    time.Time `json:"signed_at"`
	SignerName  string    `json:"signer_name"`
	SignerTitle *string   `json:"signer_title,omitempty"`
}

func NewExecutionService(st store.Store, objects ObjectStore, opts ...Option) *ExecutionService {
	o := buildOptions(opts)
	return &ExecutionService{
		store:   st,
		objects: objects,
		mutator: newRequestMutator(st, o),
		opts:    o,
	}
}

// RecordExecution stores a signed document and binds it to an accepted request.
func (s *ExecutionService) RecordExecution(ctx context.Context, requestID uuid.UUID, in RecordExecutionInput) (*ExecutionResult, []events.Event, error) {
	signerName := strings.TrimSpace(in.SignerName)

	// Validate request
	if len(in.Document) == 0 {
		return nil, nil, apperrors.Validation("", apperrors.FieldError{Field: "document", Tag: "required", Message: "document is required"})
	}
	if signerName == "" {
		return nil, nil, apperrors.Validation("", apperrors.FieldError{Field: "signer_name", Tag: "required", Message: "signer_name is required"})
	}
	contentType, ext, _ := DetectDocumentType(in.Document)

	// Check status before uploading anything
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	if req.Status != models.RequestStatusAccepted {
		return nil, nil, apperrors.Conflict("license request %s is %s, only accepted requests can be executed", requestID, req.Status)
	}

	hash := utils.HashBytes(in.Document)
	key := fmt.Sprintf("executions/%s/%s%s", requestID, hash, ext)

	ref, err := s.objects.Put(ctx, key, in.Document, contentType)
	if err != nil {
		return nil, nil, fmt.Errorf("store executed document: %w", err)
	}

	var signerTitle *string
	if title := strings.TrimSpace(in.SignerTitle); title != "" {
		signerTitle = &title
	}
	signedAt := s.opts.now()

	result, err := s.mutator.mutate(ctx, requestID, func(req *models.LicenseRequest) (bool, error) {
		if req.Status != models.RequestStatusAccepted {
			return false, apperrors.Conflict("license request %s is %s, only accepted requests can be executed", requestID, req.Status)
		}

		req.ExecutedDocumentRef = &ref
		req.ExecutedDocumentHash = &hash
		req.SignedAt = &signedAt
		req.SignerName = &signerName
		req.SignerTitle = signerTitle
		return true, nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.opts.metrics.ExecutionRecorded()

	out := &ExecutionResult{
		RequestID:   requestID,
		Hash:        hash,
		StoredRef:   ref,
		SignedAt:    signedAt,
		SignerName:  signerName,
		SignerTitle: signerTitle,
	}

	logrus.WithFields(logrus.Fields{
		"request_id": requestID,
		"hash":       hash,
		"version":    result.Request.Version,
	}).Info("Executed document recorded")

	return out, []events.Event{events.New(requestID, events.ExecutionRecorded, out, signedAt)}, nil
}

// VerifyDocument reports whether document matches the recorded execution.
func (s *ExecutionService) VerifyDocument(ctx context.Context, requestID uuid.UUID, document []byte) (bool, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return false, err
	}
	if !req.IsExecuted() {
		return false, apperrors.NotFound("execution record for license request %s", requestID)
	}

	return utils.ValidateFileHash(document, *req.ExecutedDocumentHash), nil
}

// DocumentURL returns a time-limited link to the executed document.
func (s *ExecutionService) DocumentURL(ctx context.Context, requestID uuid.UUID, ttl time.Duration) (string, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return "", err
	}
	if req.ExecutedDocumentRef == nil {
		return "", apperrors.NotFound("execution record for license request %s", requestID)
	}

	return s.objects.SignedURL(ctx, *req.ExecutedDocumentRef, ttl)
}
