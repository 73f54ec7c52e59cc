package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"github.com/ndstrzz/taedal-v7-sub000/internal/apperrors"
	"github.com/ndstrzz/taedal-v7-sub000/internal/events"
	"github.com/ndstrzz/taedal-v7-sub000/internal/metrics"
	"github.com/ndstrzz/taedal-v7-sub000/internal/models"
	"github.com/ndstrzz/taedal-v7-sub000/internal/store"
	"github.com/ndstrzz/taedal-v7-sub000/internal/utils"
)

type NegotiationServiceTestSuite struct {
	suite.Suite
	ctx       context.Context
	store     *store.GormStore
	service   *NegotiationService
	requester uuid.UUID
	owner     uuid.UUID
}

func (suite *NegotiationServiceTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.store = newTestStore(suite.T())
	suite.service = NewNegotiationService(suite.store,
		WithClock(newFakeClock().Now),
		WithMetrics(metrics.New(prometheus.NewRegistry())),
	)
	suite.requester = uuid.New()
	suite.owner = uuid.New()
}

func (suite *NegotiationServiceTestSuite) open() *models.LicenseRequest {
	return openRequest(suite.T(), suite.service, suite.requester, suite.owner)
}

func (suite *NegotiationServiceTestSuite) TestCreateRequest() {
	req, evts, err := suite.service.CreateRequest(suite.ctx, suite.requester, CreateRequestInput{
		ArtworkID: uuid.New(),
		OwnerID:   suite.owner,
		Terms:     models.LicenseTerms{Purpose: "Zine", TermMonths: 6, Exclusivity: "non-exclusive"},
		Message:   "Hi! Interested in licensing this piece.",
	})

	suite.Require().NoError(err)
	suite.Equal(models.RequestStatusOpen, req.Status)
	suite.Equal(1, req.Version)
	suite.Equal([]string{}, req.Requested.Media)
	suite.Equal(models.ExclusivityNonExclusive, req.Requested.Exclusivity)
	suite.Equal([]events.Type{events.RequestCreated, events.MessageInserted}, typesOf(evts))

	messages, err := suite.service.ListMessages(suite.ctx, req.ID, suite.owner)
	suite.Require().NoError(err)
	suite.Require().Len(messages, 1)
	suite.Equal(suite.requester, messages[0].AuthorID)
}

func (suite *NegotiationServiceTestSuite) TestCreateRequestValidation() {
	_, _, err := suite.service.CreateRequest(suite.ctx, suite.owner, CreateRequestInput{
		ArtworkID: uuid.New(),
		OwnerID:   suite.owner,
		Terms:     sampleTerms(),
	})
	suite.ErrorIs(err, apperrors.ErrValidation)

	bad := sampleTerms()
	bad.TermMonths = -3
	_, _, err = suite.service.CreateRequest(suite.ctx, suite.requester, CreateRequestInput{
		ArtworkID: uuid.New(),
		OwnerID:   suite.owner,
		Terms:     bad,
	})
	suite.ErrorIs(err, apperrors.ErrValidation)

	_, _, err = suite.service.CreateRequest(suite.ctx, suite.requester, CreateRequestInput{OwnerID: suite.owner, Terms: sampleTerms()})
	suite.ErrorIs(err, apperrors.ErrValidation)
}

func (suite *NegotiationServiceTestSuite) TestExclusivityIsRequired() {
	terms := sampleTerms()
	terms.Exclusivity = ""
	_, _, err := suite.service.CreateRequest(suite.ctx, suite.requester, CreateRequestInput{
		ArtworkID: uuid.New(),
		OwnerID:   suite.owner,
		Terms:     terms,
	})
	suite.ErrorIs(err, apperrors.ErrValidation)

	req := suite.open()
	for _, patch := range []models.TermsPatch{
		{Exclusivity: models.Some(models.Exclusivity(""))},
		{Exclusivity: models.Null[models.Exclusivity]()},
	} {
		_, _, err = suite.service.AcceptPatch(suite.ctx, req.ID, patch)
		suite.ErrorIs(err, apperrors.ErrValidation)
	}

	stored, err := suite.store.GetRequest(suite.ctx, req.ID)
	suite.Require().NoError(err)
	suite.Equal(models.ExclusivityNonExclusive, stored.Requested.Exclusivity)
	suite.Equal(models.RequestStatusOpen, stored.Status)
}

// Scenario: counter-offer, acceptance, frozen terms.
func (suite *NegotiationServiceTestSuite) TestNegotiateThenAccept() {
	req := suite.open()

	patch := models.TermsPatch{
		Media: models.Some([]string{"Web", "Social"}),
		Fee:   models.Some(models.Fee{Amount: 1500, Currency: "USD"}),
	}
	msg, evts, err := suite.service.PostMessage(suite.ctx, req.ID, suite.owner, PostMessageInput{Body: "Counter-offer attached", Patch: &patch})
	suite.Require().NoError(err)
	suite.NotNil(msg.Patch)
	suite.Equal([]events.Type{events.MessageInserted}, typesOf(evts))

	// posting alone does not change the request
	unchanged, err := suite.service.GetRequest(suite.ctx, req.ID, suite.requester)
	suite.Require().NoError(err)
	suite.Equal(models.RequestStatusOpen, unchanged.Status)
	suite.Equal(1, unchanged.Version)

	updated, evts, err := suite.service.AcceptPatch(suite.ctx, req.ID, *msg.Patch)
	suite.Require().NoError(err)
	suite.Equal(models.RequestStatusNegotiating, updated.Status)
	suite.Equal(2, updated.Version)
	suite.Equal([]string{"Web", "Social"}, updated.Requested.Media)
	suite.Equal(1500.0, updated.Requested.Fee.Amount)
	suite.True(updated.UpdatedAt.After(req.UpdatedAt))
	suite.Require().Len(evts, 1)
	payload := evts[0].Payload.(RequestUpdate)
	suite.Equal("patch_accepted", payload.Action)
	suite.Len(payload.Changes, 2)

	accepted, _, err := suite.service.AcceptOffer(suite.ctx, req.ID)
	suite.Require().NoError(err)
	suite.Equal(models.RequestStatusAccepted, accepted.Status)
	suite.Require().NotNil(accepted.AcceptedTerms)
	suite.Equal(updated.Requested, *accepted.AcceptedTerms)

	terms, source, err := suite.service.WorkingTerms(suite.ctx, req.ID)
	suite.Require().NoError(err)
	suite.Equal(models.TermsSourceAccepted, source)
	suite.Equal(*accepted.AcceptedTerms, terms)

	// accepted terms never change afterwards
	_, _, err = suite.service.AcceptPatch(suite.ctx, req.ID, models.TermsPatch{TermMonths: models.Some(60)})
	suite.ErrorIs(err, apperrors.ErrConflict)
	_, _, err = suite.service.AcceptOffer(suite.ctx, req.ID)
	suite.ErrorIs(err, apperrors.ErrConflict)
	_, _, err = suite.service.SetStatus(suite.ctx, req.ID, models.RequestStatusDeclined)
	suite.ErrorIs(err, apperrors.ErrConflict)

	final, err := suite.store.GetRequest(suite.ctx, req.ID)
	suite.Require().NoError(err)
	suite.Equal(*accepted.AcceptedTerms, *final.AcceptedTerms)
	suite.Equal(accepted.Version, final.Version)
}

// Scenario: decline from open, then every mutation conflicts.
func (suite *NegotiationServiceTestSuite) TestTerminalStatusIsMonotonic() {
	req := suite.open()

	declined, evts, err := suite.service.SetStatus(suite.ctx, req.ID, models.RequestStatusDeclined)
	suite.Require().NoError(err)
	suite.Equal(models.RequestStatusDeclined, declined.Status)
	suite.Len(evts, 1)

	_, _, err = suite.service.AcceptOffer(suite.ctx, req.ID)
	suite.ErrorIs(err, apperrors.ErrConflict)
	_, _, err = suite.service.SetStatus(suite.ctx, req.ID, models.RequestStatusWithdrawn)
	suite.ErrorIs(err, apperrors.ErrConflict)
	_, _, err = suite.service.AcceptPatch(suite.ctx, req.ID, models.TermsPatch{Purpose: models.Some("again")})
	suite.ErrorIs(err, apperrors.ErrConflict)

	// messages are still allowed
	_, _, err = suite.service.PostMessage(suite.ctx, req.ID, suite.requester, PostMessageInput{Body: "Understood, thanks."})
	suite.NoError(err)

	final, err := suite.store.GetRequest(suite.ctx, req.ID)
	suite.Require().NoError(err)
	suite.Equal(models.RequestStatusDeclined, final.Status)
	suite.Nil(final.AcceptedTerms)
}

func (suite *NegotiationServiceTestSuite) TestSetStatusRejectsOtherTargets() {
	req := suite.open()

	for _, status := range []models.RequestStatus{models.RequestStatusAccepted, models.RequestStatusOpen, "archived"} {
		_, _, err := suite.service.SetStatus(suite.ctx, req.ID, status)
		suite.ErrorIs(err, apperrors.ErrValidation, string(status))
	}

	withdrawn, _, err := suite.service.SetStatus(suite.ctx, req.ID, models.RequestStatusWithdrawn)
	suite.Require().NoError(err)
	suite.Equal(models.RequestStatusWithdrawn, withdrawn.Status)
}

func (suite *NegotiationServiceTestSuite) TestMissingRequest() {
	missing := uuid.New()

	_, _, err := suite.service.AcceptPatch(suite.ctx, missing, models.TermsPatch{Purpose: models.Some("x")})
	suite.ErrorIs(err, apperrors.ErrNotFound)
	_, _, err = suite.service.AcceptOffer(suite.ctx, missing)
	suite.ErrorIs(err, apperrors.ErrNotFound)
	_, _, err = suite.service.PostMessage(suite.ctx, missing, suite.owner, PostMessageInput{Body: "hello"})
	suite.ErrorIs(err, apperrors.ErrNotFound)
	_, _, err = suite.service.WorkingTerms(suite.ctx, missing)
	suite.ErrorIs(err, apperrors.ErrNotFound)
}

// Scenario: an outsider cannot post, and nothing is stored.
func (suite *NegotiationServiceTestSuite) TestPostMessageAuthorization() {
	req := suite.open()
	outsider := uuid.New()

	_, evts, err := suite.service.PostMessage(suite.ctx, req.ID, outsider, PostMessageInput{Body: "let me in"})
	suite.ErrorIs(err, apperrors.ErrForbidden)
	suite.Empty(evts)

	messages, err := suite.store.ListMessages(suite.ctx, req.ID)
	suite.Require().NoError(err)
	suite.Empty(messages)

	_, err = suite.service.GetRequest(suite.ctx, req.ID, outsider)
	suite.ErrorIs(err, apperrors.ErrForbidden)
	_, err = suite.service.ListMessages(suite.ctx, req.ID, outsider)
	suite.ErrorIs(err, apperrors.ErrForbidden)
}

func (suite *NegotiationServiceTestSuite) TestPostMessageValidation() {
	req := suite.open()

	_, _, err := suite.service.PostMessage(suite.ctx, req.ID, suite.owner, PostMessageInput{Body: "   "})
	suite.ErrorIs(err, apperrors.ErrValidation)

	_, _, err = suite.service.PostMessage(suite.ctx, req.ID, suite.owner, PostMessageInput{Patch: &models.TermsPatch{}})
	suite.ErrorIs(err, apperrors.ErrValidation)

	_, _, err = suite.service.PostMessage(suite.ctx, req.ID, suite.owner, PostMessageInput{Patch: &models.TermsPatch{Media: models.Null[[]string]()}})
	suite.ErrorIs(err, apperrors.ErrValidation)

	msg, _, err := suite.service.PostMessage(suite.ctx, req.ID, suite.owner, PostMessageInput{Patch: &models.TermsPatch{Fee: models.Null[models.Fee]()}})
	suite.Require().NoError(err)
	suite.Nil(msg.Body)
}

func (suite *NegotiationServiceTestSuite) TestNoopPatch() {
	req := suite.open()

	// a no-op patch still opens negotiation
	negotiating, evts, err := suite.service.AcceptPatch(suite.ctx, req.ID, models.TermsPatch{TermMonths: models.Some(12)})
	suite.Require().NoError(err)
	suite.Equal(models.RequestStatusNegotiating, negotiating.Status)
	suite.Equal(2, negotiating.Version)
	suite.Len(evts, 1)

	// once negotiating it writes nothing
	same, evts, err := suite.service.AcceptPatch(suite.ctx, req.ID, models.TermsPatch{TermMonths: models.Some(12)})
	suite.Require().NoError(err)
	suite.Equal(2, same.Version)
	suite.Empty(evts)
	suite.True(negotiating.UpdatedAt.Equal(same.UpdatedAt))
}

func (suite *NegotiationServiceTestSuite) TestVersionConflictIsRetried() {
	req := suite.open()
	racing := newRacingStore(suite.store, 2)
	svc := NewNegotiationService(racing, WithClock(newFakeClock().Now))

	updated, _, err := svc.AcceptPatch(suite.ctx, req.ID, models.TermsPatch{Purpose: models.Some("Book jacket")})
	suite.Require().NoError(err)
	suite.Equal(2, updated.Version)
	suite.Equal(3, *racing.writes)

	stored, err := suite.store.GetRequest(suite.ctx, req.ID)
	suite.Require().NoError(err)
	suite.Equal("Book jacket", stored.Requested.Purpose)
}

func (suite *NegotiationServiceTestSuite) TestVersionConflictGivesUp() {
	req := suite.open()
	racing := newRacingStore(suite.store, 10)
	svc := NewNegotiationService(racing, WithMaxAttempts(3))

	_, evts, err := svc.AcceptOffer(suite.ctx, req.ID)
	suite.ErrorIs(err, apperrors.ErrConflict)
	suite.Empty(evts)
	suite.Equal(3, *racing.writes)

	stored, err := suite.store.GetRequest(suite.ctx, req.ID)
	suite.Require().NoError(err)
	suite.Equal(models.RequestStatusOpen, stored.Status)
	suite.Equal(1, stored.Version)
}

func (suite *NegotiationServiceTestSuite) TestAcceptPatchRejectsInvalidMerge() {
	req := suite.open()

	_, _, err := suite.service.AcceptPatch(suite.ctx, req.ID, models.TermsPatch{TermMonths: models.Some(-1)})
	suite.ErrorIs(err, apperrors.ErrValidation)

	_, _, err = suite.service.AcceptPatch(suite.ctx, req.ID, models.TermsPatch{Exclusivity: models.Null[models.Exclusivity]()})
	suite.ErrorIs(err, apperrors.ErrValidation)

	unchanged, err := suite.store.GetRequest(suite.ctx, req.ID)
	suite.Require().NoError(err)
	suite.Equal(1, unchanged.Version)
}

// Scenario: concurrent patches on different keys all land.
func (suite *NegotiationServiceTestSuite) TestConcurrentPatchesAreSerialized() {
	req := suite.open()

	patches := []models.TermsPatch{
		{Purpose: models.Some("Tour poster")},
		{TermMonths: models.Some(24)},
		{Territory: models.Some(models.TerritoryList("US", "CA"))},
		{Media: models.Some([]string{"Print", "Web"})},
		{Exclusivity: models.Some(models.ExclusivityCategoryExclusive)},
		{StartDate: models.Some("2025-09-01")},
		{Deliverables: models.Some("Hi-res TIFF")},
		{CreditRequired: models.Some(true)},
		{UsageNotes: models.Some("No merch")},
		{Sublicense: models.Some(false)},
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(patches))
	for _, patch := range patches {
		patch := patch
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := suite.service.AcceptPatch(suite.ctx, req.ID, patch)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		suite.NoError(err)
	}

	final, err := suite.store.GetRequest(suite.ctx, req.ID)
	suite.Require().NoError(err)
	suite.Equal(1+len(patches), final.Version)
	suite.Equal(models.RequestStatusNegotiating, final.Status)

	terms := final.Requested
	suite.Equal("Tour poster", terms.Purpose)
	suite.Equal(24, terms.TermMonths)
	suite.Equal(models.TerritoryList("US", "CA"), terms.Territory)
	suite.Equal([]string{"Print", "Web"}, terms.Media)
	suite.Equal(models.ExclusivityCategoryExclusive, terms.Exclusivity)
	suite.Equal("2025-09-01", *terms.StartDate)
	suite.Equal("Hi-res TIFF", *terms.Deliverables)
	suite.True(*terms.CreditRequired)
	suite.Equal("No merch", *terms.UsageNotes)
	suite.False(*terms.Sublicense)
	suite.Equal(1200.50, terms.Fee.Amount)
}

func (suite *NegotiationServiceTestSuite) TestConcurrentAcceptAndDecline() {
	req := suite.open()

	var wg sync.WaitGroup
	results := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _, err := suite.service.AcceptOffer(suite.ctx, req.ID)
		results <- err
	}()
	go func() {
		defer wg.Done()
		_, _, err := suite.service.SetStatus(suite.ctx, req.ID, models.RequestStatusDeclined)
		results <- err
	}()
	wg.Wait()
	close(results)

	var ok, conflicts int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperrors.ErrConflict):
			conflicts++
		}
	}
	suite.Equal(1, ok)
	suite.Equal(1, conflicts)
}

func (suite *NegotiationServiceTestSuite) TestListRequests() {
	suite.open()
	suite.open()
	other := openRequest(suite.T(), suite.service, uuid.New(), suite.requester)
	_, _, err := suite.service.SetStatus(suite.ctx, other.ID, models.RequestStatusDeclined)
	suite.Require().NoError(err)

	page := utils.PaginationParams{Page: 1, Limit: 20, Sort: "created_at", Order: "asc"}

	all, total, err := suite.service.ListRequests(suite.ctx, suite.requester, ListRequestsParams{PaginationParams: page})
	suite.Require().NoError(err)
	suite.Equal(int64(3), total)
	suite.Len(all, 3)

	declined, total, err := suite.service.ListRequests(suite.ctx, suite.requester, ListRequestsParams{PaginationParams: page, Status: models.RequestStatusDeclined})
	suite.Require().NoError(err)
	suite.Equal(int64(1), total)
	suite.Equal(other.ID, declined[0].ID)

	_, _, err = suite.service.ListRequests(suite.ctx, suite.requester, ListRequestsParams{PaginationParams: page, Status: "lost"})
	suite.ErrorIs(err, apperrors.ErrValidation)
}

func (suite *NegotiationServiceTestSuite) TestDiffMessage() {
	req := suite.open()

	patch := models.TermsPatch{Media: models.Some([]string{"Web", "Social"}), TermMonths: models.Some(12)}
	msg, _, err := suite.service.PostMessage(suite.ctx, req.ID, suite.owner, PostMessageInput{Patch: &patch})
	suite.Require().NoError(err)

	changes, err := suite.service.DiffMessage(suite.ctx, req.ID, msg.ID, suite.requester)
	suite.Require().NoError(err)
	suite.Require().Len(changes, 1)
	suite.Equal("media", changes[0].Key)

	plain, _, err := suite.service.PostMessage(suite.ctx, req.ID, suite.owner, PostMessageInput{Body: "just talking"})
	suite.Require().NoError(err)
	changes, err = suite.service.DiffMessage(suite.ctx, req.ID, plain.ID, suite.owner)
	suite.Require().NoError(err)
	suite.Empty(changes)

	other := suite.open()
	_, err = suite.service.GetMessage(suite.ctx, other.ID, msg.ID, suite.owner)
	suite.ErrorIs(err, apperrors.ErrNotFound)
}

func TestNegotiationServiceTestSuite(t *testing.T) {
	suite.Run(t, new(NegotiationServiceTestSuite))
}

func typesOf(evts []events.Event) []events.Type {
	types := make([]events.Type, 0, len(evts))
	for _, e := range evts {
		types = append(types, e.Type)
	}
	return types
}

// racingStore fails the first stale writes as if another writer won.
type racingStore struct {
	store.Store
	mu     *sync.Mutex
	stale  *int
	writes *int
}

func newRacingStore(st store.Store, stale int) *racingStore {
	return &racingStore{Store: st, mu: &sync.Mutex{}, stale: &stale, writes: new(int)}
}

func (r *racingStore) UpdateRequest(ctx context.Context, req *models.LicenseRequest, expectedVersion int) error {
	r.mu.Lock()
	*r.writes++
	if *r.stale > 0 {
		*r.stale--
		r.mu.Unlock()
		return store.ErrStaleVersion
	}
	r.mu.Unlock()
	return r.Store.UpdateRequest(ctx, req, expectedVersion)
}

func (r *racingStore) WithinTx(ctx context.Context, fn func(tx store.Store) error) error {
	return r.Store.WithinTx(ctx, func(tx store.Store) error {
		return fn(&racingStore{Store: tx, mu: r.mu, stale: r.stale, writes: r.writes})
	})
}
