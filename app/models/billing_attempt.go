package models

import "time"

const (
	AttemptStatusPending      = "pending"
	AttemptStatusApproved     = "approved"
	AttemptStatusDeclined     = "declined"
	AttemptStatusError        = "error"
	AttemptStatusChargebacked = "chargebacked"
	AttemptStatusVoided       = "voided"
)

// MaxReconciliationAttempts is the hard ceiling on gateway lookups per
// attempt. Once reached the row is permanently ineligible, whatever its
// status.
const MaxReconciliationAttempts = 10

// Reasons returned when an attempt cannot be reconciled.
const (
	RejectReasonMissingUniqueID = "missing_unique_id"
	RejectReasonNotPending      = "not_pending"
	RejectReasonMaxAttempts     = "max_attempts_reached"
)

// BillingAttempt is one payment attempt against one debtor on one date.
// Rows are created by the import/billing subsystem in status `pending`;
// this core only transitions their status from gateway state.
type BillingAttempt struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	DebtorID               uint       `gorm:"not null;index" json:"debtor_id"`
	EmpAccountID           uint       `gorm:"not null;index" json:"emp_account_id"`
	UploadID               *uint      `gorm:"index" json:"upload_id,omitempty"`
	UniqueID               *string    `gorm:"type:varchar(64);uniqueIndex" json:"unique_id,omitempty"`
	Status                 string     `gorm:"type:varchar(20);not null;default:'pending';index:idx_billing_attempts_status_created,priority:1" json:"status"`
	AmountCents            int64      `gorm:"not null;default:0" json:"amount_cents"`
	Currency               string     `gorm:"type:varchar(3);not null;default:'EUR'" json:"currency"`
	ReconciliationAttempts int        `gorm:"not null;default:0" json:"reconciliation_attempts"`
	LastReconciledAt       *time.Time `gorm:"type:timestamp;default:null" json:"last_reconciled_at,omitempty"`
	ChargebackedAt         *time.Time `gorm:"type:timestamp;default:null" json:"chargebacked_at,omitempty"`
	ChargebackReasonCode   *string    `gorm:"type:varchar(10);default:null" json:"chargeback_reason_code,omitempty"`
	TransactionType        string     `gorm:"type:varchar(32);default:null" json:"transaction_type,omitempty"`
	CreatedAt              time.Time  `gorm:"autoCreateTime;index:idx_billing_attempts_status_created,priority:2" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// CanReconcile reports whether this attempt is eligible for a gateway
// lookup. The second return value carries the rejection reason when not.
// The ceiling check is evaluated first: a capped row is rejected with
// max_attempts_reached regardless of status or unique id presence.
func (a *BillingAttempt) CanReconcile() (bool, string) {
	if a.ReconciliationAttempts >= MaxReconciliationAttempts {
		return false, RejectReasonMaxAttempts
	}
	if a.Status != AttemptStatusPending {
		return false, RejectReasonNotPending
	}
	if a.UniqueID == nil || *a.UniqueID == "" {
		return false, RejectReasonMissingUniqueID
	}
	return true, ""
}

// IsTerminal reports whether the status is final with respect to
// reconciliation.
func (a *BillingAttempt) IsTerminal() bool {
	return a.Status != AttemptStatusPending
}
