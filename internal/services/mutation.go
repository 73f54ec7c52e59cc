// internal/services/mutation.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ndstrzz/taedal-v7-sub000/internal/apperrors"
	"github.com/ndstrzz/taedal-v7-sub000/internal/models"
	"github.com/ndstrzz/taedal-v7-sub000/internal/store"
)

// applyFunc edits req in place. It returns false when nothing changed.
type applyFunc func(req *models.LicenseRequest) (bool, error)

type mutationResult struct {
	Request *models.LicenseRequest
	Changed bool
	From    models.RequestStatus
}

// requestMutator runs read-modify-write cycles on one license request under
// the per-request lock, retrying when another writer got there first.
type requestMutator struct {
	store store.Store
	locks *keyedMutex
	opts  serviceOptions
}

func newRequestMutator(st store.Store, opts serviceOptions) *requestMutator {
	return &requestMutator{store: st, locks: newKeyedMutex(), opts: opts}
}

func (m *requestMutator) mutate(ctx context.Context, id uuid.UUID, apply applyFunc) (*mutationResult, error) {
	unlock, err := m.locks.Lock(ctx, id.String())
	if err != nil {
		return nil, fmt.Errorf("wait for license request %s: %w", id, err)
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		result, err := m.attempt(ctx, id, apply)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, store.ErrStaleVersion) {
			return nil, err
		}
		if attempt >= m.opts.maxAttempts {
			return nil, apperrors.Conflict("license request %s was modified concurrently, retry", id)
		}

		m.opts.metrics.VersionConflictRetry()
		logrus.WithFields(logrus.Fields{
			"request_id": id,
			"attempt":    attempt,
		}).Debug("Retrying license request update after version conflict")
	}
}

func (m *requestMutator) attempt(ctx context.Context, id uuid.UUID, apply applyFunc) (*mutationResult, error) {
	var result *mutationResult

	err := m.store.WithinTx(ctx, func(tx store.Store) error {
		current, err := tx.GetRequestForUpdate(ctx, id)
		if err != nil {
			return err
		}

		from := current.Status
		changed, err := apply(current)
		if err != nil {
			return err
		}
		if !changed {
			result = &mutationResult{Request: current, From: from}
			return nil
		}

		expected := current.Version
		current.Version = expected + 1
		current.UpdatedAt = m.opts.now()
		if err := tx.UpdateRequest(ctx, current, expected); err != nil {
			return err
		}

		result = &mutationResult{Request: current, Changed: true, From: from}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Changed && result.From != result.Request.Status {
		m.opts.metrics.StatusTransition(string(result.From), string(result.Request.Status))
	}
	return result, nil
}
