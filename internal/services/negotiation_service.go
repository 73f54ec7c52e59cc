// internal/services/negotiation_service.go
package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ndstrzz/taedal-v7-sub000/internal/apperrors"
	"github.com/ndstrzz/taedal-v7-sub000/internal/events"
	"github.com/ndstrzz/taedal-v7-sub000/internal/models"
	"github.com/ndstrzz/taedal-v7-sub000/internal/store"
	"github.com/ndstrzz/taedal-v7-sub000/internal/utils"
)

type NegotiationService struct {
	store   store.Store
	mutator *requestMutator
	opts    serviceOptions
}

type CreateRequestInput struct {
	ArtworkID uuid.UUID           `json:"artwork_id" validate:"required"`
	OwnerID   uuid.UUID           `json:"owner_id" validate:"required"`
	Terms     models.LicenseTerms `json:"terms"`
	Message   string              `json:"message,omitempty" validate:"max=10000"`
}

type PostMessageInput struct {
	Body  string             `json:"body,omitempty" validate:"max=10000"`
	Patch *models.TermsPatch `json:"patch,omitempty" validate:"-"`
}

type ListRequestsParams struct {
	utils.PaginationParams
	Status models.RequestStatus `json:"status,omitempty"`
}

// RequestUpdate is the payload of request_created and request_updated events.
type RequestUpdate struct {
	Action  string                 `json:"action"`
	Request *models.LicenseRequest `json:"request"`
	Changes []models.TermsChange   `json:"changes,omitempty"`
}

func NewNegotiationService(st store.Store, opts ...Option) *NegotiationService {
	o := buildOptions(opts)
	return &NegotiationService{
		store:   st,
		mutator: newRequestMutator(st, o),
		opts:    o,
	}
}

// CreateRequest opens a license request on behalf of requesterID.
func (s *NegotiationService) CreateRequest(ctx context.Context, requesterID uuid.UUID, in CreateRequestInput) (*models.LicenseRequest, []events.Event, error) {
	in.Terms.Normalize()

	// Validate request
	if err := utils.CheckStruct(&in); err != nil {
		return nil, nil, err
	}
	if requesterID == uuid.Nil {
		return nil, nil, apperrors.Validation("requester is required")
	}
	if requesterID == in.OwnerID {
		return nil, nil, apperrors.Validation("cannot request a license on your own artwork")
	}

	now := s.opts.now()
	req := &models.LicenseRequest{
		ArtworkID:   in.ArtworkID,
		RequesterID: requesterID,
		OwnerID:     in.OwnerID,
		Requested:   in.Terms.Clone(),
		Status:      models.RequestStatusOpen,
		Version:     1,
	}
	req.CreatedAt = now
	req.UpdatedAt = now

	var msg *models.ThreadMessage
	if body := strings.TrimSpace(in.Message); body != "" {
		msg = &models.ThreadMessage{AuthorID: requesterID, Body: &body, CreatedAt: now}
	}

	err := s.store.WithinTx(ctx, func(tx store.Store) error {
		if err := tx.CreateRequest(ctx, req); err != nil {
			return err
		}
		if msg != nil {
			msg.RequestID = req.ID
			return tx.CreateMessage(ctx, msg)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	evts := []events.Event{events.New(req.ID, events.RequestCreated, RequestUpdate{Action: "created", Request: req}, now)}
	if msg != nil {
		s.opts.metrics.MessagePosted()
		evts = append(evts, events.New(req.ID, events.MessageInserted, msg, now))
	}

	logrus.WithFields(logrus.Fields{
		"request_id":   req.ID,
		"artwork_id":   req.ArtworkID,
		"requester_id": req.RequesterID,
		"owner_id":     req.OwnerID,
	}).Info("License request opened")

	return req, evts, nil
}

// GetRequest returns the request if callerID is one of its parties.
func (s *NegotiationService) GetRequest(ctx context.Context, id, callerID uuid.UUID) (*models.LicenseRequest, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	// Check permissions
	if !req.IsParty(callerID) {
		return nil, apperrors.Forbidden("not a party to license request %s", id)
	}

	return req, nil
}

// ListRequests returns the requests where callerID is requester or owner.
func (s *NegotiationService) ListRequests(ctx context.Context, callerID uuid.UUID, params ListRequestsParams) ([]models.LicenseRequest, int64, error) {
	if params.Status != "" && !params.Status.Valid() {
		return nil, 0, apperrors.Validation("unknown status " + string(params.Status))
	}

	return s.store.ListRequests(ctx, store.RequestFilter{
		PartyID:          callerID,
		Status:           params.Status,
		PaginationParams: params.PaginationParams,
	})
}

// PostMessage appends to the thread. It never changes the request itself.
func (s *NegotiationService) PostMessage(ctx context.Context, requestID, authorID uuid.UUID, in PostMessageInput) (*models.ThreadMessage, []events.Event, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}

	// Check permissions
	if !req.IsParty(authorID) {
		return nil, nil, apperrors.Forbidden("not a party to license request %s", requestID)
	}

	// Validate message
	body := strings.TrimSpace(in.Body)
	if body == "" && (in.Patch == nil || in.Patch.IsEmpty()) {
		return nil, nil, apperrors.Validation("message needs a body or a terms patch")
	}
	if err := utils.CheckStruct(&in); err != nil {
		return nil, nil, err
	}
	if in.Patch != nil && !in.Patch.IsEmpty() {
		if err := in.Patch.Validate(); err != nil {
			return nil, nil, err
		}
	}

	msg := &models.ThreadMessage{
		RequestID: requestID,
		AuthorID:  authorID,
		CreatedAt: s.opts.now(),
	}
	if body != "" {
		msg.Body = &body
	}
	if in.Patch != nil && !in.Patch.IsEmpty() {
		patch := *in.Patch
		msg.Patch = &patch
	}

	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, nil, err
	}
	s.opts.metrics.MessagePosted()

	return msg, []events.Event{events.New(requestID, events.MessageInserted, msg, msg.CreatedAt)}, nil
}

// ListMessages returns the thread oldest first.
func (s *NegotiationService) ListMessages(ctx context.Context, requestID, callerID uuid.UUID) ([]models.ThreadMessage, error) {
	if _, err := s.GetRequest(ctx, requestID, callerID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, requestID)
}

// GetMessage returns one message of the request's thread.
func (s *NegotiationService) GetMessage(ctx context.Context, requestID, messageID, callerID uuid.UUID) (*models.ThreadMessage, error) {
	if _, err := s.GetRequest(ctx, requestID, callerID); err != nil {
		return nil, err
	}

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.RequestID != requestID {
		return nil, apperrors.NotFound("thread message %s", messageID)
	}
	return msg, nil
}

// DiffMessage previews what accepting a message's patch would change.
func (s *NegotiationService) DiffMessage(ctx context.Context, requestID, messageID, callerID uuid.UUID) ([]models.TermsChange, error) {
	msg, err := s.GetMessage(ctx, requestID, messageID, callerID)
	if err != nil {
		return nil, err
	}
	if msg.Patch == nil {
		return []models.TermsChange{}, nil
	}

	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	changes := models.Diff(req.Requested, models.Merge(req.Requested, *msg.Patch))
	if changes == nil {
		changes = []models.TermsChange{}
	}
	return changes, nil
}

// AcceptPatch merges patch into the latest requested terms.
func (s *NegotiationService) AcceptPatch(ctx context.Context, requestID uuid.UUID, patch models.TermsPatch) (*models.LicenseRequest, []events.Event, error) {
	if err := patch.Validate(); err != nil {
		return nil, nil, err
	}

	var changes []models.TermsChange
	result, err := s.mutator.mutate(ctx, requestID, func(req *models.LicenseRequest) (bool, error) {
		if req.Status.IsTerminal() {
			return false, apperrors.Conflict("license request %s is %s", req.ID, req.Status)
		}

		next := models.Merge(req.Requested, patch)
		next.Normalize()
		if err := next.Validate(); err != nil {
			return false, err
		}

		changes = models.Diff(req.Requested, next)
		if len(changes) == 0 && req.Status == models.RequestStatusNegotiating {
			return false, nil
		}

		req.Requested = next
		req.Status = models.RequestStatusNegotiating
		return true, nil
	})
	if err != nil {
		return nil, nil, err
	}

	return result.Request, s.updateEvents(result, "patch_accepted", changes), nil
}

// AcceptOffer freezes the current requested terms as the accepted terms.
func (s *NegotiationService) AcceptOffer(ctx context.Context, requestID uuid.UUID) (*models.LicenseRequest, []events.Event, error) {
	result, err := s.mutator.mutate(ctx, requestID, func(req *models.LicenseRequest) (bool, error) {
		if req.Status.IsTerminal() {
			return false, apperrors.Conflict("license request %s is %s", req.ID, req.Status)
		}

		accepted := req.Requested.Clone()
		req.AcceptedTerms = &accepted
		req.Status = models.RequestStatusAccepted
		return true, nil
	})
	if err != nil {
		return nil, nil, err
	}

	return result.Request, s.updateEvents(result, "accepted", nil), nil
}

// SetStatus declines or withdraws an open or negotiating request.
func (s *NegotiationService) SetStatus(ctx context.Context, requestID uuid.UUID, status models.RequestStatus) (*models.LicenseRequest, []events.Event, error) {
	if status != models.RequestStatusDeclined && status != models.RequestStatusWithdrawn {
		return nil, nil, apperrors.Validation("status must be declined or withdrawn")
	}

	result, err := s.mutator.mutate(ctx, requestID, func(req *models.LicenseRequest) (bool, error) {
		if req.Status == models.RequestStatusAccepted {
			return false, apperrors.Conflict("license request %s is already accepted", req.ID)
		}
		if req.Status.IsTerminal() {
			return false, apperrors.Conflict("license request %s is %s", req.ID, req.Status)
		}

		req.Status = status
		return true, nil
	})
	if err != nil {
		return nil, nil, err
	}

	return result.Request, s.updateEvents(result, string(status), nil), nil
}

// WorkingTerms returns the accepted terms if present, else the requested ones.
func (s *NegotiationService) WorkingTerms(ctx context.Context, requestID uuid.UUID) (models.LicenseTerms, models.TermsSource, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return models.LicenseTerms{}, "", err
	}

	terms, source := req.WorkingTerms()
	return terms, source, nil
}

func (s *NegotiationService) updateEvents(result *mutationResult, action string, changes []models.TermsChange) []events.Event {
	if !result.Changed {
		return nil
	}

	req := result.Request
	if result.From != req.Status {
		logrus.WithFields(logrus.Fields{
			"request_id": req.ID,
			"from":       result.From,
			"to":         req.Status,
			"version":    req.Version,
		}).Info("License request status changed")
	}

	return []events.Event{events.New(req.ID, events.RequestUpdated, RequestUpdate{
		Action:  action,
		Request: req,
		Changes: changes,
	}, req.UpdatedAt)}
}
