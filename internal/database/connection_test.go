package database

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ndstrzz/taedal-v7-sub000/internal/apperrors"
	"github.com/ndstrzz/taedal-v7-sub000/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "tx.db"))
	require.NoError(t, err)
	t.Cleanup(func() { Close(db) })
	return db
}

func auditEntry() *models.AuditLog {
	return &models.AuditLog{Action: "POST /v1/negotiations", ResourceType: "negotiations"}
}

func TestWithTransactionCommits(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, WithTransaction(db, func(tx *gorm.DB) error {
		return tx.Create(auditEntry()).Error
	}))

	var count int64
	require.NoError(t, db.Model(&models.AuditLog{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestWithTransactionPassesThroughCallbackErrors(t *testing.T) {
	db := openTestDB(t)
	notFound := apperrors.NotFound("license request %s", uuid.New())

	err := WithTransaction(db, func(tx *gorm.DB) error {
		if err := tx.Create(auditEntry()).Error; err != nil {
			return err
		}
		return notFound
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.False(t, apperrors.IsTransient(err))

	var count int64
	require.NoError(t, db.Model(&models.AuditLog{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestWithTransactionBeginFailureIsTransient(t *testing.T) {
	db := openTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	called := false
	err = WithTransaction(db, func(tx *gorm.DB) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
	assert.False(t, called)
}

func TestWithTransactionCommitFailureIsTransient(t *testing.T) {
	db := openTestDB(t)

	// Ending the transaction behind the driver's back makes its commit fail.
	err := WithTransaction(db, func(tx *gorm.DB) error {
		return tx.Exec("COMMIT").Error
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))

	var se *apperrors.StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "commit transaction", se.Op)
}
