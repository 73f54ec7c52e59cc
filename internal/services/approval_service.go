// internal/services/approval_service.go
package services

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ndstrzz/taedal-v7-sub000/internal/apperrors"
	"github.com/ndstrzz/taedal-v7-sub000/internal/events"
	"github.com/ndstrzz/taedal-v7-sub000/internal/models"
	"github.com/ndstrzz/taedal-v7-sub000/internal/store"
)

type ApprovalService struct {
	store store.Store
	opts  serviceOptions
}

type RecordDecisionInput struct {
	Stage    models.ApprovalStage    `json:"stage"`
	Decision models.ApprovalDecision `json:"decision"`
	Note     string                  `json:"note,omitempty"`
}

type ApprovalSummary struct {
	Stages      map[models.ApprovalStage]models.ApprovalDecision `json:"stages"`
	AllApproved bool                                             `json:"all_approved"`
	History     []models.ApprovalRecord                          `json:"history"`
}

func NewApprovalService(st store.Store, opts ...Option) *ApprovalService {
	return &ApprovalService{store: st, opts: buildOptions(opts)}
}

// RecordDecision appends a decision for one stage of a request.
func (s *ApprovalService) RecordDecision(ctx context.Context, requestID, approverID uuid.UUID, in RecordDecisionInput) (*models.ApprovalRecord, []events.Event, error) {
	stage := models.ApprovalStage(strings.ToLower(strings.TrimSpace(string(in.Stage))))
	decision := models.ApprovalDecision(strings.ToLower(strings.TrimSpace(string(in.Decision))))

	// Validate request
	if !stage.Valid() {
		return nil, nil, apperrors.Validation("", apperrors.FieldError{Field: "stage", Tag: "oneof", Message: "stage must be one of: legal finance brand"})
	}
	if !decision.Valid() {
		return nil, nil, apperrors.Validation("", apperrors.FieldError{Field: "decision", Tag: "oneof", Message: "decision must be one of: pending approved rejected"})
	}

	if _, err := s.store.GetRequest(ctx, requestID); err != nil {
		return nil, nil, err
	}

	now := s.opts.now()
	record := &models.ApprovalRecord{
		RequestID:  requestID,
		ApproverID: approverID,
		Stage:      stage,
		Decision:   decision,
		CreatedAt:  now,
	}
	if note := strings.TrimSpace(in.Note); note != "" {
		record.Note = &note
	}
	if decision != models.ApprovalDecisionPending {
		decidedAt := now
		record.DecidedAt = &decidedAt
	}

	if err := s.store.CreateApproval(ctx, record); err != nil {
		return nil, nil, err
	}
	s.opts.metrics.ApprovalRecorded(string(stage), string(decision))

	return record, []events.Event{events.New(requestID, events.ApprovalUpserted, record, now)}, nil
}

// CurrentDecision returns the latest decision for stage, pending if none.
func (s *ApprovalService) CurrentDecision(ctx context.Context, requestID uuid.UUID, stage models.ApprovalStage) (models.ApprovalDecision, error) {
	if !stage.Valid() {
		return "", apperrors.Validation("unknown approval stage " + string(stage))
	}

	records, err := s.store.ListApprovals(ctx, requestID, stage)
	if err != nil {
		return "", err
	}
	return LatestDecision(records, stage), nil
}

// History lists records oldest first. An empty stage lists every stage.
func (s *ApprovalService) History(ctx context.Context, requestID uuid.UUID, stage models.ApprovalStage) ([]models.ApprovalRecord, error) {
	if stage != "" && !stage.Valid() {
		return nil, apperrors.Validation("unknown approval stage " + string(stage))
	}
	return s.store.ListApprovals(ctx, requestID, stage)
}

// Summary folds the full history into the current decision per stage.
func (s *ApprovalService) Summary(ctx context.Context, requestID uuid.UUID) (*ApprovalSummary, error) {
	records, err := s.store.ListApprovals(ctx, requestID, "")
	if err != nil {
		return nil, err
	}

	summary := &ApprovalSummary{
		Stages:      make(map[models.ApprovalStage]models.ApprovalDecision, len(models.ApprovalStages)),
		AllApproved: true,
		History:     records,
	}
	for _, stage := range models.ApprovalStages {
		decision := LatestDecision(records, stage)
		summary.Stages[stage] = decision
		if decision != models.ApprovalDecisionApproved {
			summary.AllApproved = false
		}
	}
	if summary.History == nil {
		summary.History = []models.ApprovalRecord{}
	}

	return summary, nil
}

// LatestDecision picks the decision of the most recent record for stage.
// Equal timestamps are ordered by Seq, then by their given order.
func LatestDecision(records []models.ApprovalRecord, stage models.ApprovalStage) models.ApprovalDecision {
	staged := make([]models.ApprovalRecord, 0, len(records))
	for _, r := range records {
		if r.Stage == stage {
			staged = append(staged, r)
		}
	}
	if len(staged) == 0 {
		return models.ApprovalDecisionPending
	}

	sort.SliceStable(staged, func(i, j int) bool {
		a, b := staged[i], staged[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Seq < b.Seq
	})
	return staged[len(staged)-1].Decision
}
