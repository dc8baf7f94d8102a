package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/WebOleg/Laravel-start-te-sub000/app/models"
)

// BillingAttemptRepository defines the interface for billing-attempt database operations
type BillingAttemptRepository interface {
	GetByID(id uint) (*models.BillingAttempt, error)
	GetByUniqueID(uniqueID string) (*models.BillingAttempt, error)
	// UpsertFromGateway inserts or refreshes one attempt keyed on its
	// gateway unique id and reports what happened.
	UpsertFromGateway(attempt *models.BillingAttempt) (UpsertOutcome, error)
	// ApplyReconciliation performs the single atomic status transition. The
	// update is conditional on the status and attempt counter the caller
	// read, so two concurrent passes cannot both win.
	ApplyReconciliation(id uint, expectedStatus string, expectedAttempts int, newStatus string, chargebackedAt *time.Time, reasonCode *string) (bool, error)
	// SelectEligible returns up to limit reconciliation-eligible pending
	// attempts older than maxAge, oldest first, optionally scoped to one
	// upload.
	SelectEligible(maxAge time.Duration, limit int, uploadID *uint) ([]models.BillingAttempt, error)
	CountEligible(maxAge time.Duration, uploadID *uint) (int64, error)

	// Stats Reporter queries, all optionally scoped by upload.
	CountPending(uploadID *uint) (int64, error)
	CountPendingStale(olderThan time.Duration, uploadID *uint) (int64, error)
	CountNeverReconciled(olderThan time.Duration, uploadID *uint) (int64, error)
	CountMaxedOut(uploadID *uint) (int64, error)
	CountReconciledSince(since time.Time, uploadID *uint) (int64, error)
}

// EmpAccountRepository defines the interface for gateway-account lookups
type EmpAccountRepository interface {
	GetByID(id uint) (*models.EmpAccount, error)
	// ListActive returns active accounts in their fixed processing order.
	ListActive() ([]models.EmpAccount, error)
	CountActive() (int64, error)
}

// UploadRepository defines the interface for upload batch lookups
type UploadRepository interface {
	GetByID(id uint) (*models.Upload, error)
}

// UpsertOutcome reports what an UpsertFromGateway call did.
type UpsertOutcome string

const (
	UpsertInserted  UpsertOutcome = "inserted"
	UpsertUpdated   UpsertOutcome = "updated"
	UpsertUnchanged UpsertOutcome = "unchanged"
)

// Repositories struct holds all repository instances
type Repositories struct {
	BillingAttempt BillingAttemptRepository
	EmpAccount     EmpAccountRepository
	Upload         UploadRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		BillingAttempt: NewBillingAttemptRepository(db),
		EmpAccount:     NewEmpAccountRepository(db),
		Upload:         NewUploadRepository(db),
	}
}
