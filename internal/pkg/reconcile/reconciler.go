package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/WebOleg/Laravel-start-te-sub000/app/models"
	"github.com/WebOleg/Laravel-start-te-sub000/app/repository"
	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/emp"
)

// Gateway is the outbound surface the reconciler needs from the EMP client.
type Gateway interface {
	Reconcile(ctx context.Context, account *models.EmpAccount, uniqueID string) (*emp.TransactionResult, error)
}

// Result is the structured outcome of one reconciliation. RejectReason is
// set when the attempt was ineligible; that is never an error.
type Result struct {
	Success        bool   `json:"success"`
	Changed        bool   `json:"changed"`
	PreviousStatus string `json:"previous_status,omitempty"`
	NewStatus      string `json:"new_status,omitempty"`
	RejectReason   string `json:"reject_reason,omitempty"`
}

// Reconciler syncs one billing attempt's status from the gateway ledger.
type Reconciler struct {
	attempts repository.BillingAttemptRepository
	accounts repository.EmpAccountRepository
	gateway  Gateway
}

// NewReconciler creates an attempt reconciler.
func NewReconciler(attempts repository.BillingAttemptRepository, accounts repository.EmpAccountRepository, gateway Gateway) *Reconciler {
	return &Reconciler{attempts: attempts, accounts: accounts, gateway: gateway}
}

// ReconcileAttempt checks eligibility, queries the gateway and applies the
// state transition. Ineligible attempts come back as a rejection Result;
// only infrastructure failures (DB, gateway, network) return an error. The
// attempt counter is incremented on every applied reconciliation, changed
// or not.
func (r *Reconciler) ReconcileAttempt(ctx context.Context, id uint) (*Result, error) {
	attempt, err := r.attempts.GetByID(id)
	if err != nil {
		return nil, err
	}

	if ok, reason := attempt.CanReconcile(); !ok {
		return &Result{RejectReason: reason, PreviousStatus: attempt.Status}, nil
	}

	account, err := r.accounts.GetByID(attempt.EmpAccountID)
	if err != nil {
		return nil, fmt.Errorf("load emp account %d: %w", attempt.EmpAccountID, err)
	}

	tx, err := r.gateway.Reconcile(ctx, account, *attempt.UniqueID)
	if err != nil {
		return nil, err
	}

	newStatus := tx.LocalStatus()
	var chargebackedAt *time.Time
	var reasonCode *string
	if newStatus == models.AttemptStatusChargebacked && attempt.Status != models.AttemptStatusChargebacked {
		now := time.Now()
		chargebackedAt = &now
		if tx.ChargebackReasonCode != "" {
			code := tx.ChargebackReasonCode
			reasonCode = &code
		}
	}

	applied, err := r.attempts.ApplyReconciliation(
		attempt.ID, attempt.Status, attempt.ReconciliationAttempts,
		newStatus, chargebackedAt, reasonCode,
	)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Lost the conditional update to a concurrent pass. Re-read to
		// report why the row moved on.
		log.Warnf("[Reconcile] Attempt %d changed underneath us, not applying", attempt.ID)
		current, rerr := r.attempts.GetByID(attempt.ID)
		if rerr != nil {
			return nil, rerr
		}
		reason := models.RejectReasonNotPending
		if ok, r2 := current.CanReconcile(); !ok {
			reason = r2
		}
		return &Result{RejectReason: reason, PreviousStatus: current.Status}, nil
	}

	changed := newStatus != attempt.Status
	if changed {
		log.Infof("[Reconcile] Attempt %d: %s -> %s (gateway %s)", attempt.ID, attempt.Status, newStatus, tx.RawStatus)
	}
	return &Result{
		Success:        true,
		Changed:        changed,
		PreviousStatus: attempt.Status,
		NewStatus:      newStatus,
	}, nil
}
