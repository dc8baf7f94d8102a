package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/WebOleg/Laravel-start-te-sub000/app/models"
)

type billingAttemptRepository struct {
	db *gorm.DB
}

// NewBillingAttemptRepository creates a billing attempt repository backed by GORM.
func NewBillingAttemptRepository(db *gorm.DB) BillingAttemptRepository {
	return &billingAttemptRepository{db: db}
}

func (r *billingAttemptRepository) GetByID(id uint) (*models.BillingAttempt, error) {
	var attempt models.BillingAttempt
	if err := r.db.First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *billingAttemptRepository) GetByUniqueID(uniqueID string) (*models.BillingAttempt, error) {
	var attempt models.BillingAttempt
	if err := r.db.Where("unique_id = ?", uniqueID).First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *billingAttemptRepository) UpsertFromGateway(attempt *models.BillingAttempt) (UpsertOutcome, error) {
	if attempt.UniqueID == nil || *attempt.UniqueID == "" {
		return "", errors.New("unique_id is required for gateway upsert")
	}

	existing, err := r.GetByUniqueID(*attempt.UniqueID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// DoNothing keeps a concurrent refresh from erroring on the unique
		// index; zero rows affected means the other writer won.
		tx := r.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "unique_id"}},
			DoNothing: true,
		}).Create(attempt)
		if tx.Error != nil {
			return "", tx.Error
		}
		if tx.RowsAffected == 0 {
			return UpsertUnchanged, nil
		}
		return UpsertInserted, nil
	}
	if err != nil {
		return "", err
	}

	if existing.Status == attempt.Status {
		return UpsertUnchanged, nil
	}

	updates := map[string]interface{}{
		"status":           attempt.Status,
		"transaction_type": attempt.TransactionType,
	}
	if attempt.Status == models.AttemptStatusChargebacked {
		now := time.Now()
		updates["chargebacked_at"] = &now
		if attempt.ChargebackReasonCode != nil {
			updates["chargeback_reason_code"] = attempt.ChargebackReasonCode
		}
	}

	tx := r.db.Model(&models.BillingAttempt{}).
		Where("unique_id = ? AND status = ?", *attempt.UniqueID, existing.Status).
		Updates(updates)
	if tx.Error != nil {
		return "", tx.Error
	}
	if tx.RowsAffected == 0 {
		return UpsertUnchanged, nil
	}
	return UpsertUpdated, nil
}

func (r *billingAttemptRepository) ApplyReconciliation(id uint, expectedStatus string, expectedAttempts int, newStatus string, chargebackedAt *time.Time, reasonCode *string) (bool, error) {
	now := time.Now()
	updates := map[string]interface{}{
		"status":                  newStatus,
		"reconciliation_attempts": gorm.Expr("reconciliation_attempts + 1"),
		"last_reconciled_at":      &now,
	}
	if chargebackedAt != nil {
		updates["chargebacked_at"] = chargebackedAt
	}
	if reasonCode != nil {
		updates["chargeback_reason_code"] = reasonCode
	}

	// Conditional on the state the caller read: eligibility check and write
	// form one atomic step.
	tx := r.db.Model(&models.BillingAttempt{}).
		Where("id = ? AND status = ? AND reconciliation_attempts = ?", id, expectedStatus, expectedAttempts).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *billingAttemptRepository) eligibleScope(maxAge time.Duration, uploadID *uint) *gorm.DB {
	q := r.db.Model(&models.BillingAttempt{}).
		Where("status = ?", models.AttemptStatusPending).
		Where("unique_id IS NOT NULL AND unique_id != ''").
		Where("reconciliation_attempts < ?", models.MaxReconciliationAttempts).
		Where("created_at <= ?", time.Now().Add(-maxAge))
	if uploadID != nil {
		q = q.Where("upload_id = ?", *uploadID)
	}
	return q
}

func (r *billingAttemptRepository) SelectEligible(maxAge time.Duration, limit int, uploadID *uint) ([]models.BillingAttempt, error) {
	var attempts []models.BillingAttempt
	err := r.eligibleScope(maxAge, uploadID).
		Order("created_at ASC").
		Limit(limit).
		Find(&attempts).Error
	return attempts, err
}

func (r *billingAttemptRepository) CountEligible(maxAge time.Duration, uploadID *uint) (int64, error) {
	var count int64
	err := r.eligibleScope(maxAge, uploadID).Count(&count).Error
	return count, err
}

func (r *billingAttemptRepository) scoped(uploadID *uint) *gorm.DB {
	q := r.db.Model(&models.BillingAttempt{})
	if uploadID != nil {
		q = q.Where("upload_id = ?", *uploadID)
	}
	return q
}

func (r *billingAttemptRepository) CountPending(uploadID *uint) (int64, error) {
	var count int64
	err := r.scoped(uploadID).Where("status = ?", models.AttemptStatusPending).Count(&count).Error
	return count, err
}

func (r *billingAttemptRepository) CountPendingStale(olderThan time.Duration, uploadID *uint) (int64, error) {
	var count int64
	err := r.scoped(uploadID).
		Where("status = ? AND created_at < ?", models.AttemptStatusPending, time.Now().Add(-olderThan)).
		Count(&count).Error
	return count, err
}

func (r *billingAttemptRepository) CountNeverReconciled(olderThan time.Duration, uploadID *uint) (int64, error) {
	var count int64
	err := r.scoped(uploadID).
		Where("status = ? AND reconciliation_attempts = 0 AND created_at < ?",
			models.AttemptStatusPending, time.Now().Add(-olderThan)).
		Count(&count).Error
	return count, err
}

func (r *billingAttemptRepository) CountMaxedOut(uploadID *uint) (int64, error) {
	var count int64
	err := r.scoped(uploadID).
		Where("reconciliation_attempts >= ?", models.MaxReconciliationAttempts).
		Count(&count).Error
	return count, err
}

func (r *billingAttemptRepository) CountReconciledSince(since time.Time, uploadID *uint) (int64, error) {
	var count int64
	err := r.scoped(uploadID).Where("last_reconciled_at >= ?", since).Count(&count).Error
	return count, err
}
