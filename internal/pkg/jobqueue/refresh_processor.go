package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/WebOleg/Laravel-start-te-sub000/app/models"
	"github.com/WebOleg/Laravel-start-te-sub000/app/repository"
	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/emp"
	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/jobstate"
)

const refreshDateLayout = "2006-01-02"

// processRefreshHistoryJob pulls the gateway's dated transaction history and
// upserts it into billing attempts, account by account
func (q *Queue) processRefreshHistoryJob(ctx context.Context, job *Job) error {
	payload, err := RefreshJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid refresh payload: %w", err)
	}

	from, err := time.Parse(refreshDateLayout, payload.From)
	if err != nil {
		return fmt.Errorf("invalid refresh start date %q: %w", payload.From, err)
	}
	to, err := time.Parse(refreshDateLayout, payload.To)
	if err != nil {
		return fmt.Errorf("invalid refresh end date %q: %w", payload.To, err)
	}

	accounts, err := q.refreshAccounts(payload.EmpAccountID)
	if err != nil {
		return err
	}

	q.runRefresh(ctx, payload.JobID, accounts, from, to)
	return nil
}

// refreshAccounts resolves the account set for one refresh run: a single
// account when pinned in the payload, otherwise all active accounts in
// their fixed processing order.
func (q *Queue) refreshAccounts(accountID *uint) ([]models.EmpAccount, error) {
	if accountID != nil {
		account, err := q.deps.Repos.EmpAccount.GetByID(*accountID)
		if err != nil {
			return nil, fmt.Errorf("load emp account %d: %w", *accountID, err)
		}
		return []models.EmpAccount{*account}, nil
	}
	return q.deps.Repos.EmpAccount.ListActive()
}

// runRefresh walks every account sequentially and publishes a progress
// snapshot after each page so status polls see live numbers. Per-account
// gateway failures are tallied and the run moves on; a panic anywhere in
// the walk still leaves a terminal snapshot behind.
func (q *Queue) runRefresh(ctx context.Context, jobID string, accounts []models.EmpAccount, from, to time.Time) {
	progress := &jobstate.JobProgress{
		JobID:         jobID,
		Kind:          jobstate.JobKindRefresh,
		Status:        jobstate.JobStatusProcessing,
		AccountsTotal: len(accounts),
		StartedAt:     time.Now(),
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("[Refresh] Job %s panicked: %v", jobID, rec)
			progress.Stats.Errors++
			q.finishProgress(ctx, progress)
		}
	}()
	q.saveProgress(ctx, progress)

	for i := range accounts {
		account := &accounts[i]
		progress.CurrentAccount = account.Name
		q.refreshAccount(ctx, account, from, to, progress)
		progress.AccountsProcessed = i + 1
		progress.Progress = progress.AccountsProcessed * 100 / len(accounts)
		q.saveProgress(ctx, progress)
	}

	q.finishProgress(ctx, progress)
}

// refreshAccount pages through one account's history. A gateway error ends
// this account's walk and counts once; the remaining accounts still run.
func (q *Queue) refreshAccount(ctx context.Context, account *models.EmpAccount, from, to time.Time, progress *jobstate.JobProgress) {
	page := 1
	for {
		resp, err := q.deps.Gateway.ReconcileByDate(ctx, account, from, to, page)
		if err != nil {
			log.Errorf("[Refresh] Account %s page %d: %v", account.Name, page, err)
			progress.Stats.Errors++
			return
		}

		for i := range resp.Records {
			q.upsertRecord(account, &resp.Records[i], progress)
		}
		q.saveProgress(ctx, progress)

		if !resp.HasMore() {
			return
		}
		page++
	}
}

// upsertRecord folds one gateway ledger entry into the local attempts table
// and tallies what happened.
func (q *Queue) upsertRecord(account *models.EmpAccount, rec *emp.TransactionResult, progress *jobstate.JobProgress) {
	if rec.UniqueID == "" {
		log.Debugf("[Refresh] Skipping %s record without unique id (account %s)", rec.TransactionType, account.Name)
		return
	}

	outcome, err := q.deps.Repos.BillingAttempt.UpsertFromGateway(attemptFromGatewayRecord(account, rec))
	if err != nil {
		log.Errorf("[Refresh] Upsert %s failed: %v", rec.UniqueID, err)
		progress.Stats.Errors++
		return
	}
	switch outcome {
	case repository.UpsertInserted:
		progress.Stats.Inserted++
	case repository.UpsertUpdated:
		progress.Stats.Updated++
	default:
		progress.Stats.Unchanged++
	}
}

// attemptFromGatewayRecord maps a normalized gateway entry onto the local
// model. Rows first seen through the gateway carry no debtor linkage yet.
func attemptFromGatewayRecord(account *models.EmpAccount, rec *emp.TransactionResult) *models.BillingAttempt {
	uniqueID := rec.UniqueID
	attempt := &models.BillingAttempt{
		UniqueID:        &uniqueID,
		EmpAccountID:    account.ID,
		Status:          rec.LocalStatus(),
		AmountCents:     rec.AmountCents,
		Currency:        rec.Currency,
		TransactionType: rec.TransactionType,
	}
	if rec.ChargebackReasonCode != "" {
		code := rec.ChargebackReasonCode
		attempt.ChargebackReasonCode = &code
	}
	return attempt
}

// saveProgress publishes a snapshot; a failed write never aborts the run.
func (q *Queue) saveProgress(ctx context.Context, progress *jobstate.JobProgress) {
	if err := q.deps.State.SaveProgress(ctx, progress); err != nil {
		log.Errorf("[JobQueue] Failed to save progress for job %s: %v", progress.JobID, err)
	}
}

// finishProgress writes the terminal snapshot. The active lock is left for
// the state store's completion rule, so the very next status poll (or a new
// trigger) releases it.
func (q *Queue) finishProgress(ctx context.Context, progress *jobstate.JobProgress) {
	now := time.Now()
	progress.CompletedAt = &now
	progress.Progress = 100
	progress.CurrentAccount = ""
	if progress.Stats.Errors > 0 {
		progress.Status = jobstate.JobStatusCompletedWithErrors
	} else {
		progress.Status = jobstate.JobStatusCompleted
	}
	q.saveProgress(ctx, progress)

	log.Infof("[JobQueue] Job %s finished (%s): inserted=%d updated=%d unchanged=%d changed=%d rejected=%d errors=%d",
		progress.JobID, progress.Status,
		progress.Stats.Inserted, progress.Stats.Updated, progress.Stats.Unchanged,
		progress.Stats.Changed, progress.Stats.Rejected, progress.Stats.Errors)
}
