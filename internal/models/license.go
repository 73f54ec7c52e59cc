// internal/models/license.go
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RequestStatus string

const (
	RequestStatusOpen        RequestStatus = "open"
	RequestStatusNegotiating RequestStatus = "negotiating"
	RequestStatusAccepted    RequestStatus = "accepted"
	RequestStatusDeclined    RequestStatus = "declined"
	RequestStatusWithdrawn   RequestStatus = "withdrawn"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusOpen, RequestStatusNegotiating, RequestStatusAccepted,
		RequestStatusDeclined, RequestStatusWithdrawn:
		return true
	}
	return false
}

func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusAccepted || s == RequestStatusDeclined || s == RequestStatusWithdrawn
}

type TermsSource string

const (
	TermsSourceAccepted  TermsSource = "accepted"
	TermsSourceRequested TermsSource = "requested"
)

// LicenseRequest is the aggregate both parties negotiate on.
type LicenseRequest struct {
	BaseModel
	ArtworkID     uuid.UUID     `json:"artwork_id" gorm:"type:uuid;not null;index"`
	RequesterID   uuid.UUID     `json:"requester_id" gorm:"type:uuid;not null;index"`
	OwnerID       uuid.UUID     `json:"owner_id" gorm:"type:uuid;not null;index"`
	Requested     LicenseTerms  `json:"requested" gorm:"type:jsonb;serializer:json;not null"`
	Status        RequestStatus `json:"status" gorm:"type:varchar(20);not null;default:'open';index"`
	AcceptedTerms *LicenseTerms `json:"accepted_terms,omitempty" gorm:"type:jsonb;serializer:json"`

	// Execution
	ExecutedDocumentRef  *string    `json:"executed_document_ref,omitempty" gorm:"type:text"`
	ExecutedDocumentHash *string    `json:"executed_document_hash,omitempty" gorm:"size:64"`
	SignedAt             *time.Time `json:"signed_at,omitempty"`
	SignerName           *string    `json:"signer_name,omitempty" gorm:"size:255"`
	SignerTitle          *string    `json:"signer_title,omitempty" gorm:"size:255"`

	Version int `json:"version" gorm:"not null;default:1"`
}

// IsParty reports whether userID is the requester or the owner.
func (r *LicenseRequest) IsParty(userID uuid.UUID) bool {
	return userID != uuid.Nil && (userID == r.RequesterID || userID == r.OwnerID)
}

// WorkingTerms returns the accepted terms when present, else the requested ones.
func (r *LicenseRequest) WorkingTerms() (LicenseTerms, TermsSource) {
	if r.AcceptedTerms != nil {
		return r.AcceptedTerms.Clone(), TermsSourceAccepted
	}
	return r.Requested.Clone(), TermsSourceRequested
}

func (r *LicenseRequest) IsExecuted() bool {
	return r.ExecutedDocumentHash != nil
}

// ThreadMessage is an append-only entry in a request's negotiation thread.
type ThreadMessage struct {
	ID        uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	RequestID uuid.UUID   `json:"request_id" gorm:"type:uuid;not null;index"`
	AuthorID  uuid.UUID   `json:"author_id" gorm:"type:uuid;not null;index"`
	Body      *string     `json:"body,omitempty" gorm:"type:text"`
	Patch     *TermsPatch `json:"patch,omitempty" gorm:"type:jsonb;serializer:json"`
	CreatedAt time.Time   `json:"created_at"`
}

func (m *ThreadMessage) BeforeCreate(tx *gorm.DB) error {
	assignID(&m.ID)
	return nil
}

func (m *ThreadMessage) HasContent() bool {
	hasBody := m.Body != nil && strings.TrimSpace(*m.Body) != ""
	hasPatch := m.Patch != nil && !m.Patch.IsEmpty()
	return hasBody || hasPatch
}

type ApprovalStage string

const (
	ApprovalStageLegal   ApprovalStage = "legal"
	ApprovalStageFinance ApprovalStage = "finance"
	ApprovalStageBrand   ApprovalStage = "brand"
)

// ApprovalStages lists every stage in display order.
var ApprovalStages = []ApprovalStage{ApprovalStageLegal, ApprovalStageFinance, ApprovalStageBrand}

func (s ApprovalStage) Valid() bool {
	return s == ApprovalStageLegal || s == ApprovalStageFinance || s == ApprovalStageBrand
}

type ApprovalDecision string

const (
	ApprovalDecisionPending  ApprovalDecision = "pending"
	ApprovalDecisionApproved ApprovalDecision = "approved"
	ApprovalDecisionRejected ApprovalDecision = "rejected"
)

func (d ApprovalDecision) Valid() bool {
	return d == ApprovalDecisionPending || d == ApprovalDecisionApproved || d == ApprovalDecisionRejected
}

// ApprovalRecord is one append-only decision. The latest record per stage wins.
// Seq numbers the records of one request in insertion order.
type ApprovalRecord struct {
	ID         uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	RequestID  uuid.UUID        `json:"request_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_approval_records_request_seq,priority:1"`
	Seq        int64            `json:"seq" gorm:"not null;default:0;uniqueIndex:idx_approval_records_request_seq,priority:2"`
	ApproverID uuid.UUID        `json:"approver_id" gorm:"type:uuid;not null"`
	Stage      ApprovalStage    `json:"stage" gorm:"type:varchar(20);not null"`
	Decision   ApprovalDecision `json:"decision" gorm:"type:varchar(20);not null"`
	Note       *string          `json:"note,omitempty" gorm:"type:text"`
	DecidedAt  *time.Time       `json:"decided_at,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

func (a *ApprovalRecord) BeforeCreate(tx *gorm.DB) error {
	assignID(&a.ID)
	return nil
}
