// internal/store/gorm_store.go
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ndstrzz/taedal-v7-sub000/internal/apperrors"
	"github.com/ndstrzz/taedal-v7-sub000/internal/database"
	"github.com/ndstrzz/taedal-v7-sub000/internal/models"
	"github.com/ndstrzz/taedal-v7-sub000/internal/utils"
)

var requestSortFields = []string{"created_at", "updated_at", "status"}

// mutableColumns are the columns UpdateRequest rewrites.
var mutableColumns = []string{
	"requested", "status", "accepted_terms",
	"executed_document_ref", "executed_document_hash", "signed_at", "signer_name", "signer_title",
	"version", "updated_at",
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreateRequest(ctx context.Context, req *models.LicenseRequest) error {
	if req.Version == 0 {
		req.Version = 1
	}
	if err := s.db.WithContext(ctx).Create(req).Error; err != nil {
		return apperrors.Storage("create license request", err)
	}
	return nil
}

func (s *GormStore) GetRequest(ctx context.Context, id uuid.UUID) (*models.LicenseRequest, error) {
	return s.getRequest(s.db.WithContext(ctx), id)
}

func (s *GormStore) GetRequestForUpdate(ctx context.Context, id uuid.UUID) (*models.LicenseRequest, error) {
	return s.getRequest(s.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (s *GormStore) getRequest(db *gorm.DB, id uuid.UUID) (*models.LicenseRequest, error) {
	var req models.LicenseRequest
	if err := db.First(&req, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("license request %s", id)
		}
		return nil, apperrors.Storage("get license request", err)
	}
	return &req, nil
}

func (s *GormStore) ListRequests(ctx context.Context, filter RequestFilter) ([]models.LicenseRequest, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.LicenseRequest{}).
		Where("requester_id = ? OR owner_id = ?", filter.PartyID, filter.PartyID)

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Storage("count license requests", err)
	}

	query = utils.ApplySort(query, filter.PaginationParams, requestSortFields)
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var requests []models.LicenseRequest
	if err := query.Find(&requests).Error; err != nil {
		return nil, 0, apperrors.Storage("list license requests", err)
	}

	return requests, total, nil
}

func (s *GormStore) UpdateRequest(ctx context.Context, req *models.LicenseRequest, expectedVersion int) error {
	result := s.db.WithContext(ctx).
		Model(&models.LicenseRequest{BaseModel: models.BaseModel{ID: req.ID}}).
		Where("version = ?", expectedVersion).
		Select(mutableColumns).
		UpdateColumns(req)

	if result.Error != nil {
		return apperrors.Storage("update license request", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := s.GetRequest(ctx, req.ID); err != nil {
			return err
		}
		return fmt.Errorf("license request %s at version %d: %w", req.ID, expectedVersion, ErrStaleVersion)
	}
	return nil
}

func (s *GormStore) CreateMessage(ctx context.Context, msg *models.ThreadMessage) error {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return apperrors.Storage("create thread message", err)
	}
	return nil
}

func (s *GormStore) GetMessage(ctx context.Context, id uuid.UUID) (*models.ThreadMessage, error) {
	var msg models.ThreadMessage
	if err := s.db.WithContext(ctx).First(&msg, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("thread message %s", id)
		}
		return nil, apperrors.Storage("get thread message", err)
	}
	return &msg, nil
}

func (s *GormStore) ListMessages(ctx context.Context, requestID uuid.UUID) ([]models.ThreadMessage, error) {
	var messages []models.ThreadMessage
	err := s.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at asc").
		Order("id asc").
		Find(&messages).Error
	if err != nil {
		return nil, apperrors.Storage("list thread messages", err)
	}
	return messages, nil
}

// CreateApproval appends record with the next sequence number of its request.
// The request row lock serializes concurrent appends where the dialect has one.
func (s *GormStore) CreateApproval(ctx context.Context, record *models.ApprovalRecord) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked []uuid.UUID
		if err := tx.Model(&models.LicenseRequest{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", record.RequestID).
			Pluck("id", &locked).Error; err != nil {
			return err
		}

		var last int64
		if err := tx.Model(&models.ApprovalRecord{}).
			Where("request_id = ?", record.RequestID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&last).Error; err != nil {
			return err
		}

		record.Seq = last + 1
		return tx.Create(record).Error
	})
	if err != nil {
		return apperrors.Storage("create approval record", err)
	}
	return nil
}

// ListApprovals returns records oldest first, ties broken by insertion order.
// An empty stage lists all stages.
func (s *GormStore) ListApprovals(ctx context.Context, requestID uuid.UUID, stage models.ApprovalStage) ([]models.ApprovalRecord, error) {
	query := s.db.WithContext(ctx).Where("request_id = ?", requestID)
	if stage != "" {
		query = query.Where("stage = ?", stage)
	}

	var records []models.ApprovalRecord
	if err := query.Order("created_at asc, seq asc").Find(&records).Error; err != nil {
		return nil, apperrors.Storage("list approval records", err)
	}
	return records, nil
}

func (s *GormStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	return database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}
