// internal/services/payment_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"

	"github.com/ndstrzz/taedal-v7-sub000/internal/apperrors"
	"github.com/ndstrzz/taedal-v7-sub000/internal/config"
	"github.com/ndstrzz/taedal-v7-sub000/internal/models"
	"github.com/ndstrzz/taedal-v7-sub000/internal/store"
)

// PaymentService opens checkout intents for accepted license fees.
// Settlement happens at the provider.
type PaymentService struct {
	store        store.Store
	enabled      bool
	createIntent func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type PaymentIntentResponse struct {
	ClientSecret string  `json:"client_secret"`
	PaymentID    string  `json:"payment_id"`
	Status       string  `json:"status"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
}

func NewPaymentService(st store.Store, cfg *config.Config) *PaymentService {
	// Initialize Stripe
	stripe.Key = cfg.Payment.StripeSecretKey

	return &PaymentService{
		store:        st,
		enabled:      cfg.Payment.StripeSecretKey != "",
		createIntent: paymentintent.New,
	}
}

// CreateLicenseFeeIntent creates a PaymentIntent for the accepted fee of a request.
func (s *PaymentService) CreateLicenseFeeIntent(ctx context.Context, requestID, callerID uuid.UUID) (*PaymentIntentResponse, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	// Check permissions
	if callerID != req.RequesterID {
		return nil, apperrors.Forbidden("only the requester can pay the license fee")
	}
	if req.Status != models.RequestStatusAccepted || req.AcceptedTerms == nil {
		return nil, apperrors.Conflict("license request %s is %s, only accepted requests can be paid", requestID, req.Status)
	}

	fee := req.AcceptedTerms.Fee
	if fee == nil || fee.Amount <= 0 {
		return nil, apperrors.Validation("accepted terms carry no fee")
	}
	if !s.enabled {
		return nil, apperrors.Transport("stripe", errors.New("payment provider is not configured"))
	}

	// Convert amount to cents for Stripe
	amountInCents := int64(math.Round(fee.Amount * 100))
	currency := strings.ToLower(fee.Currency)

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountInCents),
		Currency: stripe.String(currency),
	}
	params.Context = ctx
	params.SetIdempotencyKey("license-fee-" + requestID.String())
	params.AddMetadata("license_request_id", requestID.String())
	params.AddMetadata("artwork_id", req.ArtworkID.String())
	params.AddMetadata("requester_id", req.RequesterID.String())
	params.AddMetadata("owner_id", req.OwnerID.String())

	pi, err := s.createIntent(params)
	if err != nil {
		return nil, apperrors.Transport("stripe", fmt.Errorf("failed to create payment intent: %w", err))
	}

	return &PaymentIntentResponse{
		ClientSecret: pi.ClientSecret,
		PaymentID:    pi.ID,
		Status:       string(pi.Status),
		Amount:       fee.Amount,
		Currency:     fee.Currency,
	}, nil
}
