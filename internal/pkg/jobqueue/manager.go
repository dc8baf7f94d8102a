package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/WebOleg/Laravel-start-te-sub000/app/repository"
	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/emp"
	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/env"
	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/jobstate"
	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/reconcile"
)

const (
	DefaultWorkerCount          = 3
	DefaultReconcileMaxAgeHours = 24
	DefaultReconcileLimit       = 100
)

// ErrNoActiveAccounts means a refresh was requested but no gateway account
// is configured and active.
var ErrNoActiveAccounts = errors.New("no active emp accounts configured")

// Manager manages the global job queue and background tasks
type Manager struct {
	queue           *Queue
	deps            Deps
	reconcileTicker *time.Ticker
	stopCh          chan struct{}
	wg              sync.WaitGroup
	mu              sync.Mutex
	running         bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		deps := defaultDeps()
		globalManager = &Manager{
			queue:  NewQueue(envInt("JOB_QUEUE_WORKERS", DefaultWorkerCount), deps),
			deps:   deps,
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// defaultDeps wires the processors against the global repositories, the
// shared cache client and the EMP gateway.
func defaultDeps() Deps {
	repos := repository.GetGlobalRepositories()
	gateway := emp.NewClientFromEnv()
	return Deps{
		Repos:      repos,
		State:      jobstate.NewStore(jobstate.NewRedisKV()),
		Gateway:    gateway,
		Reconciler: reconcile.NewReconciler(repos.BillingAttempt, repos.EmpAccount, gateway),
	}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// State returns the shared job state store
func (m *Manager) State() *jobstate.Store {
	return m.deps.State
}

// Reconciler returns the attempt reconciler backed by the shared gateway client
func (m *Manager) Reconciler() *reconcile.Reconciler {
	return m.deps.Reconciler
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	// Start the job queue
	m.queue.Start()

	// Scheduled bulk reconciliation, disabled when the interval is 0
	if interval := envInt("RECONCILE_INTERVAL_MINUTES", 0); interval > 0 {
		m.reconcileTicker = time.NewTicker(time.Duration(interval) * time.Minute)
		m.wg.Add(1)
		go m.reconcileWorker(interval)
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.reconcileTicker != nil {
		m.reconcileTicker.Stop()
	}

	// Signal workers to stop
	close(m.stopCh)
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	// Stop the job queue
	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// reconcileWorker periodically enqueues a bulk reconciliation run with the
// default parameters. A run already in flight just skips the tick.
func (m *Manager) reconcileWorker(interval int) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started scheduled reconcile worker (interval: %d minutes)", interval)

	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Scheduled reconcile worker stopping")
			return
		case <-m.reconcileTicker.C:
			outcome, err := m.TriggerBulkReconcile(context.Background(), BulkReconcileRequest{})
			if err != nil {
				log.Errorf("[JobQueue Manager] Scheduled reconcile trigger failed: %v", err)
				continue
			}
			switch {
			case outcome.Duplicate:
				log.Debugf("[JobQueue Manager] Scheduled reconcile skipped, job %s still running", outcome.JobID)
			case !outcome.Queued:
				log.Debug("[JobQueue Manager] Scheduled reconcile skipped, no eligible attempts")
			default:
				log.Infof("[JobQueue Manager] Scheduled reconcile queued as job %s (%d eligible)", outcome.JobID, outcome.Eligible)
			}
		}
	}
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// RefreshRequest describes one gateway history refresh run.
type RefreshRequest struct {
	From         time.Time
	To           time.Time
	EmpAccountID *uint
}

// RefreshOutcome is what a refresh trigger resolved to. Duplicate means a
// run was already in flight and JobID names it.
type RefreshOutcome struct {
	JobID          string
	Duplicate      bool
	AccountsCount  int
	EstimatedPages int
}

// TriggerRefresh claims the refresh lock, writes the initial progress
// snapshot and enqueues the background job. Callers see exactly one of:
// queued, duplicate, or an error.
func (m *Manager) TriggerRefresh(ctx context.Context, req RefreshRequest) (*RefreshOutcome, error) {
	accountsCount := 0
	if req.EmpAccountID != nil {
		if _, err := m.deps.Repos.EmpAccount.GetByID(*req.EmpAccountID); err != nil {
			return nil, fmt.Errorf("unknown emp account %d: %w", *req.EmpAccountID, err)
		}
		accountsCount = 1
	} else {
		n, err := m.deps.Repos.EmpAccount.CountActive()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, ErrNoActiveAccounts
		}
		accountsCount = int(n)
	}

	jobID := uuid.New().String()
	lock := &jobstate.ActiveLock{
		JobID:        jobID,
		Kind:         jobstate.JobKindRefresh,
		StartedAt:    time.Now(),
		From:         req.From.Format(refreshDateLayout),
		To:           req.To.Format(refreshDateLayout),
		EmpAccountID: req.EmpAccountID,
	}
	won, existing, err := m.deps.State.AcquireLock(ctx, lock)
	if err != nil {
		return nil, err
	}
	if !won {
		outcome := &RefreshOutcome{Duplicate: true}
		if existing != nil {
			outcome.JobID = existing.JobID
		}
		return outcome, nil
	}

	if err := m.seedProgress(ctx, jobID, jobstate.JobKindRefresh, accountsCount); err != nil {
		_ = m.deps.State.ClearLock(ctx, jobstate.JobKindRefresh, nil)
		return nil, err
	}

	payload := RefreshJobPayload{
		JobID:        jobID,
		From:         lock.From,
		To:           lock.To,
		EmpAccountID: req.EmpAccountID,
	}
	if _, err := m.queue.EnqueueJob(JobTypeRefreshHistory, payload.ToMap()); err != nil {
		_ = m.deps.State.ClearLock(ctx, jobstate.JobKindRefresh, nil)
		return nil, err
	}

	return &RefreshOutcome{
		JobID:          jobID,
		AccountsCount:  accountsCount,
		EstimatedPages: estimatePages(accountsCount, req.From, req.To),
	}, nil
}

// BulkReconcileRequest describes one bulk reconciliation run. Zero values
// fall back to the defaults.
type BulkReconcileRequest struct {
	MaxAgeHours int
	Limit       int
	UploadID    *uint
}

// BulkReconcileOutcome is what a bulk trigger resolved to. Queued=false
// with Eligible=0 means there was nothing to do and no job was dispatched.
type BulkReconcileOutcome struct {
	JobID     string
	Queued    bool
	Duplicate bool
	Eligible  int64
}

// TriggerBulkReconcile counts the eligible attempts, claims the scoped
// lock and enqueues the background job.
func (m *Manager) TriggerBulkReconcile(ctx context.Context, req BulkReconcileRequest) (*BulkReconcileOutcome, error) {
	if req.MaxAgeHours <= 0 {
		req.MaxAgeHours = envInt("RECONCILE_MAX_AGE_HOURS", DefaultReconcileMaxAgeHours)
	}
	if req.Limit <= 0 {
		req.Limit = envInt("RECONCILE_BATCH_LIMIT", DefaultReconcileLimit)
	}
	if req.UploadID != nil {
		if _, err := m.deps.Repos.Upload.GetByID(*req.UploadID); err != nil {
			return nil, fmt.Errorf("unknown upload %d: %w", *req.UploadID, err)
		}
	}

	eligible, err := m.deps.Repos.BillingAttempt.CountEligible(time.Duration(req.MaxAgeHours)*time.Hour, req.UploadID)
	if err != nil {
		return nil, err
	}
	if eligible == 0 {
		return &BulkReconcileOutcome{}, nil
	}

	jobID := uuid.New().String()
	lock := &jobstate.ActiveLock{
		JobID:       jobID,
		Kind:        jobstate.JobKindBulkReconcile,
		StartedAt:   time.Now(),
		UploadID:    req.UploadID,
		MaxAgeHours: req.MaxAgeHours,
		Limit:       req.Limit,
	}
	won, existing, err := m.deps.State.AcquireLock(ctx, lock)
	if err != nil {
		return nil, err
	}
	if !won {
		outcome := &BulkReconcileOutcome{Duplicate: true, Eligible: eligible}
		if existing != nil {
			outcome.JobID = existing.JobID
		}
		return outcome, nil
	}

	batch := req.Limit
	if eligible < int64(batch) {
		batch = int(eligible)
	}
	if err := m.seedProgress(ctx, jobID, jobstate.JobKindBulkReconcile, batch); err != nil {
		_ = m.deps.State.ClearLock(ctx, jobstate.JobKindBulkReconcile, req.UploadID)
		return nil, err
	}

	payload := BulkReconcileJobPayload{
		JobID:       jobID,
		MaxAgeHours: req.MaxAgeHours,
		Limit:       req.Limit,
		UploadID:    req.UploadID,
	}
	if _, err := m.queue.EnqueueJob(JobTypeBulkReconcile, payload.ToMap()); err != nil {
		_ = m.deps.State.ClearLock(ctx, jobstate.JobKindBulkReconcile, req.UploadID)
		return nil, err
	}

	return &BulkReconcileOutcome{JobID: jobID, Queued: true, Eligible: eligible}, nil
}

// seedProgress writes the pending snapshot so status polls see the job
// before a worker picks it up.
func (m *Manager) seedProgress(ctx context.Context, jobID string, kind jobstate.JobKind, total int) error {
	return m.deps.State.SaveProgress(ctx, &jobstate.JobProgress{
		JobID:         jobID,
		Kind:          kind,
		Status:        jobstate.JobStatusPending,
		AccountsTotal: total,
		StartedAt:     time.Now(),
	})
}

// estimatePages is a client-facing hint only: the gateway pages roughly a
// week of history per request and account.
func estimatePages(accounts int, from, to time.Time) int {
	days := int(to.Sub(from).Hours()/24) + 1
	weeks := (days + 6) / 7
	if weeks < 1 {
		weeks = 1
	}
	return accounts * weeks
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(env.GetEnv(key, "")); err == nil && v >= 0 {
		return v
	}
	return def
}
