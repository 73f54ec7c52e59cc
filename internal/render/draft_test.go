package render

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndstrzz/taedal-v7-sub000/internal/models"
)

func sampleRequest() *models.LicenseRequest {
	req := &models.LicenseRequest{
		ArtworkID:   uuid.MustParse("5b0c1f7e-3c37-4b8e-9c4f-0f3f5e6c7a01"),
		RequesterID: uuid.MustParse("5b0c1f7e-3c37-4b8e-9c4f-0f3f5e6c7a02"),
		OwnerID:     uuid.MustParse("5b0c1f7e-3c37-4b8e-9c4f-0f3f5e6c7a03"),
		Status:      models.RequestStatusNegotiating,
		Version:     3,
		Requested: models.LicenseTerms{
			Purpose:        "Album <cover>",
			TermMonths:     12,
			Territory:      models.TerritoryList("US", "CA"),
			Media:          []string{"Web", "Print"},
			Exclusivity:    models.ExclusivityNonExclusive,
			CreditRequired: models.Ptr(true),
			Fee:            &models.Fee{Amount: 1200.5, Currency: "USD"},
		},
	}
	req.ID = uuid.MustParse("5b0c1f7e-3c37-4b8e-9c4f-0f3f5e6c7a00")
	return req
}

func TestRenderIsDeterministic(t *testing.T) {
	req := sampleRequest()
	terms, source := req.WorkingTerms()

	first, err := Render(req, terms, source)
	require.NoError(t, err)
	second, err := Render(req, terms.Clone(), source)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRenderContent(t *testing.T) {
	req := sampleRequest()
	terms, source := req.WorkingTerms()

	out, err := Render(req, terms, source)
	require.NoError(t, err)
	html := string(out)

	assert.Contains(t, html, "License Agreement (Draft)")
	assert.Contains(t, html, "<th>Territory</th><td>US, CA</td>")
	assert.Contains(t, html, "<th>Exclusivity</th><td>non-exclusive</td>")
	assert.Contains(t, html, "<th>Fee</th><td>1200.50 USD</td>")
	assert.Contains(t, html, "<th>Credit required</th><td>yes</td>")
	assert.Contains(t, html, "Album &lt;cover&gt;")
	assert.NotContains(t, html, "Sublicensing")
	assert.NotContains(t, html, "Executed by")
}

func TestRenderAcceptedAndExecuted(t *testing.T) {
	req := sampleRequest()
	accepted := req.Requested.Clone()
	req.AcceptedTerms = &accepted
	req.Status = models.RequestStatusAccepted
	hash := "ab12"
	signedAt := time.Date(2025, 7, 1, 12, 30, 0, 0, time.UTC)
	ref := "local://executions/x.pdf"
	req.ExecutedDocumentRef = &ref
	req.ExecutedDocumentHash = &hash
	req.SignedAt = &signedAt
	req.SignerName = models.Ptr("Ada Moreno")

	terms, source := req.WorkingTerms()
	out, err := Render(req, terms, source)
	require.NoError(t, err)
	html := string(out)

	assert.NotContains(t, html, "(Draft)")
	assert.Contains(t, html, "Executed by Ada Moreno on 2025-07-01 12:30:00 UTC. Document SHA-256 ab12.")
}

func TestTermsDigest(t *testing.T) {
	a := sampleRequest().Requested
	b := a.Clone()

	da, err := TermsDigest(a)
	require.NoError(t, err)
	db, err := TermsDigest(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
	assert.Len(t, da, 64)

	b.TermMonths = 24
	dc, err := TermsDigest(b)
	require.NoError(t, err)
	assert.NotEqual(t, da, dc)
}
