// internal/store/store.go
package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ndstrzz/taedal-v7-sub000/internal/apperrors"
	"github.com/ndstrzz/taedal-v7-sub000/internal/models"
	"github.com/ndstrzz/taedal-v7-sub000/internal/utils"
)

// ErrStaleVersion is returned by UpdateRequest when the row moved past the
// expected version. It matches apperrors.ErrConflict.
var ErrStaleVersion = fmt.Errorf("stale version: %w", apperrors.ErrConflict)

type RequestFilter struct {
	PartyID uuid.UUID
	Status  models.RequestStatus
	utils.PaginationParams
}

// Store persists license requests and their append-only children.
type Store interface {
	CreateRequest(ctx context.Context, req *models.LicenseRequest) error
	GetRequest(ctx context.Context, id uuid.UUID) (*models.LicenseRequest, error)
	// GetRequestForUpdate locks the row for the rest of the transaction where
	// the dialect supports it.
	GetRequestForUpdate(ctx context.Context, id uuid.UUID) (*models.LicenseRequest, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]models.LicenseRequest, int64, error)
	// UpdateRequest writes every mutable column of req in one statement,
	// guarded by expectedVersion.
	UpdateRequest(ctx context.Context, req *models.LicenseRequest, expectedVersion int) error

	CreateMessage(ctx context.Context, msg *models.ThreadMessage) error
	GetMessage(ctx context.Context, id uuid.UUID) (*models.ThreadMessage, error)
	ListMessages(ctx context.Context, requestID uuid.UUID) ([]models.ThreadMessage, error)

	CreateApproval(ctx context.Context, record *models.ApprovalRecord) error
	ListApprovals(ctx context.Context, requestID uuid.UUID, stage models.ApprovalStage) ([]models.ApprovalRecord, error)

	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
