package jobqueue

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/WebOleg/Laravel-start-te-sub000/app/models"
	"github.com/WebOleg/Laravel-start-te-sub000/app/repository"
	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/emp"
)

// In-memory collaborators for the processor and trigger tests; the real
// Redis-backed queue paths are covered separately.

type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemKV() *memKV {
	return &memKV{data: map[string]string{}}
}

func (m *memKV) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value
	return true, nil
}

func (m *memKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	return val, ok, nil
}

func (m *memKV) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memKV) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.data[key]; ok && val == expected {
		delete(m.data, key)
		return true, nil
	}
	return false, nil
}

type fakeAttemptRepo struct {
	rows        map[uint]*models.BillingAttempt
	nextID      uint
	eligibleIDs []uint
	failUpserts map[string]bool
}

func newFakeAttemptRepo(rows ...*models.BillingAttempt) *fakeAttemptRepo {
	r := &fakeAttemptRepo{rows: map[uint]*models.BillingAttempt{}, failUpserts: map[string]bool{}}
	for _, row := range rows {
		copied := *row
		r.rows[row.ID] = &copied
		if row.ID > r.nextID {
			r.nextID = row.ID
		}
	}
	return r
}

func (f *fakeAttemptRepo) GetByID(id uint) (*models.BillingAttempt, error) {
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
	if f.failUpserts[*attempt.UniqueID] {
		return "", gorm.ErrInvalidTransaction
	}
	existing, err := f.GetByUniqueID(*attempt.UniqueID)
	if err != nil {
		f.nextID++
		attempt.ID = f.nextID
		copied := *attempt
		f.rows[attempt.ID] = &copied
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

func (f *fakeAttemptRepo) SelectEligible(_ time.Duration, limit int, _ *uint) ([]models.BillingAttempt, error) {
	var attempts []models.BillingAttempt
	for _, id := range f.eligibleIDs {
		if len(attempts) == limit {
			break
		}
		if row, ok := f.rows[id]; ok {
			attempts = append(attempts, *row)
		}
	}
	return attempts, nil
}

func (f *fakeAttemptRepo) CountEligible(_ time.Duration, _ *uint) (int64, error) {
	return int64(len(f.eligibleIDs)), nil
}

func (f *fakeAttemptRepo) CountPending(_ *uint) (int64, error) { return 0, nil }

func (f *fakeAttemptRepo) CountPendingStale(_ time.Duration, _ *uint) (int64, error) { return 0, nil }

func (f *fakeAttemptRepo) CountNeverReconciled(_ time.Duration, _ *uint) (int64, error) {
	return 0, nil
}

func (f *fakeAttemptRepo) CountMaxedOut(_ *uint) (int64, error) { return 0, nil }

func (f *fakeAttemptRepo) CountReconciledSince(_ time.Time, _ *uint) (int64, error) { return 0, nil }

type fakeAccountRepo struct {
	accounts []models.EmpAccount
}

func (f *fakeAccountRepo) GetByID(id uint) (*models.EmpAccount, error) {
	for i := range f.accounts {
		if f.accounts[i].ID == id {
			copied := f.accounts[i]
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAccountRepo) ListActive() ([]models.EmpAccount, error) {
	var active []models.EmpAccount
	for _, account := range f.accounts {
		if account.Active {
			active = append(active, account)
		}
	}
	return active, nil
}

func (f *fakeAccountRepo) CountActive() (int64, error) {
	active, _ := f.ListActive()
	return int64(len(active)), nil
}

type fakeUploadRepo struct {
	ids []uint
}

func (f *fakeUploadRepo) GetByID(id uint) (*models.Upload, error) {
	for _, known := range f.ids {
		if known == id {
			return &models.Upload{ID: id, Filename: "batch.csv", Status: models.UploadStatusImported}, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

type historyCall struct {
	accountID uint
	page      int
}

type fakeHistoryGateway struct {
	pages  map[uint][]*emp.ByDatePage
	errFor map[uint]error
	calls  []historyCall
}

func (f *fakeHistoryGateway) ReconcileByDate(_ context.Context, account *models.EmpAccount, _, _ time.Time, page int) (*emp.ByDatePage, error) {
	f.calls = append(f.calls, historyCall{accountID: account.ID, page: page})
	if err := f.errFor[account.ID]; err != nil {
		return nil, err
	}
	pages := f.pages[account.ID]
	if page < 1 || page > len(pages) {
		return &emp.ByDatePage{Page: page}, nil
	}
	return pages[page-1], nil
}

type fakeReconcileGateway struct {
	results map[string]*emp.TransactionResult
	errs    map[string]error
}

func (f *fakeReconcileGateway) Reconcile(_ context.Context, _ *models.EmpAccount, uniqueID string) (*emp.TransactionResult, error) {
	if err := f.errs[uniqueID]; err != nil {
		return nil, err
	}
	if result, ok := f.results[uniqueID]; ok {
		return result, nil
	}
	return nil, &emp.ClientError{Kind: emp.ErrKindGateway, Message: "transaction not found"}
}
