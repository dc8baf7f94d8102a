package reconcile

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/WebOleg/Laravel-start-te-sub000/app/models"
	"github.com/WebOleg/Laravel-start-te-sub000/app/repository"
	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/emp"
)

// In-memory repository fakes shared by the reconciler and stats tests.

type fakeAttemptRepo struct {
	rows       map[uint]*models.BillingAttempt
	beforeCAS  func()
	failGetIDs map[uint]bool
}

func newFakeAttemptRepo(rows ...*models.BillingAttempt) *fakeAttemptRepo {
	r := &fakeAttemptRepo{rows: map[uint]*models.BillingAttempt{}, failGetIDs: map[uint]bool{}}
	for _, row := range rows {
		copied := *row
		r.rows[row.ID] = &copied
	}
	return r
}

func (f *fakeAttemptRepo) GetByID(id uint) (*models.BillingAttempt, error) {
	if f.failGetIDs[id] {
		return nil, errors.New("db unavailable")
	}
	row, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *row
	return &copied, nil
}

func (f *fakeAttemptRepo) GetByUniqueID(uniqueID string) (*models.BillingAttempt, error) {
	for _, row := range f.rows {
		if row.UniqueID != nil && *row.UniqueID == uniqueID {
			copied := *row
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAttemptRepo) UpsertFromGateway(attempt *models.BillingAttempt) (repository.UpsertOutcome, error) {
	existing, err := f.GetByUniqueID(*attempt.UniqueID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		id := uint(len(f.rows) + 1)
		attempt.ID = id
		copied := *attempt
		f.rows[id] = &copied
		return repository.UpsertInserted, nil
	}
	if existing.Status == attempt.Status {
		return repository.UpsertUnchanged, nil
	}
	row := f.rows[existing.ID]
	row.Status = attempt.Status
	row.TransactionType = attempt.TransactionType
	return repository.UpsertUpdated, nil
}

func (f *fakeAttemptRepo) ApplyReconciliation(id uint, expectedStatus string, expectedAttempts int, newStatus string, chargebackedAt *time.Time, reasonCode *string) (bool, error) {
	if f.beforeCAS != nil {
		f.beforeCAS()
	}
	row, ok := f.rows[id]
	if !ok || row.Status != expectedStatus || row.ReconciliationAttempts != expectedAttempts {
		return false, nil
	}
	now := time.Now()
	row.Status = newStatus
	row.ReconciliationAttempts++
	row.LastReconciledAt = &now
	if chargebackedAt != nil {
		row.ChargebackedAt = chargebackedAt
	}
	if reasonCode != nil {
		row.ChargebackReasonCode = reasonCode
	}
	return true, nil
}

func (f *fakeAttemptRepo) eligible(maxAge time.Duration, uploadID *uint) []models.BillingAttempt {
	cutoff := time.Now().Add(-maxAge)
	var out []models.BillingAttempt
	for _, row := range f.rows {
		if ok, _ := row.CanReconcile(); !ok {
			continue
		}
		if row.CreatedAt.After(cutoff) {
			continue
		}
		if uploadID != nil && (row.UploadID == nil || *row.UploadID != *uploadID) {
			continue
		}
		out = append(out, *row)
	}
	return out
}

func (f *fakeAttemptRepo) SelectEligible(maxAge time.Duration, limit int, uploadID *uint) ([]models.BillingAttempt, error) {
	rows := f.eligible(maxAge, uploadID)
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (f *fakeAttemptRepo) CountEligible(maxAge time.Duration, uploadID *uint) (int64, error) {
	return int64(len(f.eligible(maxAge, uploadID))), nil
}

func (f *fakeAttemptRepo) scoped(uploadID *uint) []*models.BillingAttempt {
	var out []*models.BillingAttempt
	for _, row := range f.rows {
		if uploadID != nil && (row.UploadID == nil || *row.UploadID != *uploadID) {
			continue
		}
		out = append(out, row)
	}
	return out
}

func (f *fakeAttemptRepo) CountPending(uploadID *uint) (int64, error) {
	var n int64
	for _, row := range f.scoped(uploadID) {
		if row.Status == models.AttemptStatusPending {
			n++
		}
	}
	return n, nil
}

func (f *fakeAttemptRepo) CountPendingStale(olderThan time.Duration, uploadID *uint) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	var n int64
	for _, row := range f.scoped(uploadID) {
		if row.Status == models.AttemptStatusPending && row.CreatedAt.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

func (f *fakeAttemptRepo) CountNeverReconciled(olderThan time.Duration, uploadID *uint) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	var n int64
	for _, row := range f.scoped(uploadID) {
		if row.Status == models.AttemptStatusPending && row.ReconciliationAttempts == 0 && row.CreatedAt.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

func (f *fakeAttemptRepo) CountMaxedOut(uploadID *uint) (int64, error) {
	var n int64
	for _, row := range f.scoped(uploadID) {
		if row.ReconciliationAttempts >= models.MaxReconciliationAttempts {
			n++
		}
	}
	return n, nil
}

func (f *fakeAttemptRepo) CountReconciledSince(since time.Time, uploadID *uint) (int64, error) {
	var n int64
	for _, row := range f.scoped(uploadID) {
		if row.LastReconciledAt != nil && !row.LastReconciledAt.Before(since) {
			n++
		}
	}
	return n, nil
}

type fakeAccountRepo struct {
	accounts map[uint]*models.EmpAccount
}

func newFakeAccountRepo(accounts ...*models.EmpAccount) *fakeAccountRepo {
	r := &fakeAccountRepo{accounts: map[uint]*models.EmpAccount{}}
	for _, a := range accounts {
		copied := *a
		r.accounts[a.ID] = &copied
	}
	return r
}

func (f *fakeAccountRepo) GetByID(id uint) (*models.EmpAccount, error) {
	a, ok := f.accounts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *a
	return &copied, nil
}

func (f *fakeAccountRepo) ListActive() ([]models.EmpAccount, error) {
	var out []models.EmpAccount
	for _, a := range f.accounts {
		if a.Active {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeAccountRepo) CountActive() (int64, error) {
	accounts, _ := f.ListActive()
	return int64(len(accounts)), nil
}

type fakeGateway struct {
	results map[string]*emp.TransactionResult
	err     error
	calls   int
}

func (f *fakeGateway) Reconcile(ctx context.Context, account *models.EmpAccount, uniqueID string) (*emp.TransactionResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if res, ok := f.results[uniqueID]; ok {
		return res, nil
	}
	return nil, &emp.ClientError{Kind: emp.ErrKindGateway, Message: "transaction not found"}
}
