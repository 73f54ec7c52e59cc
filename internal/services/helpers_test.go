package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ndstrzz/taedal-v7-sub000/internal/database"
	"github.com/ndstrzz/taedal-v7-sub000/internal/models"
	"github.com/ndstrzz/taedal-v7-sub000/internal/store"
)

var pdfDocument = []byte("%PDF-1.7\nsigned license agreement\n%%EOF")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

// Now advances one second per call so records have distinct timestamps.
func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T) *store.GormStore {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "services.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { database.Close(db) })

	return store.NewGormStore(db)
}

func sampleTerms() models.LicenseTerms {
	return models.LicenseTerms{
		Purpose:     "Album cover",
		TermMonths:  12,
		Territory:   models.SingleTerritory("Worldwide"),
		Media:       []string{"Web"},
		Exclusivity: models.ExclusivityNonExclusive,
		Fee:         &models.Fee{Amount: 1200.50, Currency: "USD"},
	}
}

// openRequest creates a request from requester to owner with sample terms.
func openRequest(t *testing.T, svc *NegotiationService, requester, owner uuid.UUID) *models.LicenseRequest {
	t.Helper()

	req, _, err := svc.CreateRequest(context.Background(), requester, CreateRequestInput{
		ArtworkID: uuid.New(),
		OwnerID:   owner,
		Terms:     sampleTerms(),
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return req
}
