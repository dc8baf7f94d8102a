package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/WebOleg/Laravel-start-te-sub000/app/models"
	"github.com/WebOleg/Laravel-start-te-sub000/app/repository"
	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/jobqueue"
	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/jobstate"
	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/reconcile"
)

type mapKV struct {
	data map[string]string
}

func newMapKV() *mapKV { return &mapKV{data: map[string]string{}} }

func (m *mapKV) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value
	return true, nil
}

func (m *mapKV) Get(_ context.Context, key string) (string, bool, error) {
	val, ok := m.data[key]
	return val, ok, nil
}

func (m *mapKV) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *mapKV) Del(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m *mapKV) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	if val, ok := m.data[key]; ok && val == expected {
		delete(m.data, key)
		return true, nil
	}
	return false, nil
}

type fakeManager struct {
	store          *jobstate.Store
	refreshOutcome *jobqueue.RefreshOutcome
	refreshErr     error
	bulkOutcome    *jobqueue.BulkReconcileOutcome
	bulkErr        error
	lastRefresh    *jobqueue.RefreshRequest
	lastBulk       *jobqueue.BulkReconcileRequest
}

func newFakeManager() *fakeManager {
	return &fakeManager{store: jobstate.NewStore(newMapKV())}
}

func (f *fakeManager) TriggerRefresh(_ context.Context, req jobqueue.RefreshRequest) (*jobqueue.RefreshOutcome, error) {
	f.lastRefresh = &req
	return f.refreshOutcome, f.refreshErr
}

func (f *fakeManager) TriggerBulkReconcile(_ context.Context, req jobqueue.BulkReconcileRequest) (*jobqueue.BulkReconcileOutcome, error) {
	f.lastBulk = &req
	return f.bulkOutcome, f.bulkErr
}

func (f *fakeManager) State() *jobstate.Store { return f.store }

type fakeReconciler struct {
	result *reconcile.Result
	err    error
	lastID uint
}

func (f *fakeReconciler) ReconcileAttempt(_ context.Context, id uint) (*reconcile.Result, error) {
	f.lastID = id
	return f.result, f.err
}

// statsRepo fakes only the counters the stats reporter reads.
type statsRepo struct {
	pending         int64
	pendingStale    int64
	neverReconciled int64
	maxedOut        int64
	reconciledToday int64
}

func (s *statsRepo) GetByID(_ uint) (*models.BillingAttempt, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *statsRepo) GetByUniqueID(_ string) (*models.BillingAttempt, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *statsRepo) UpsertFromGateway(_ *models.BillingAttempt) (repository.UpsertOutcome, error) {
	return "", nil
}

func (s *statsRepo) ApplyReconciliation(_ uint, _ string, _ int, _ string, _ *time.Time, _ *string) (bool, error) {
	return false, nil
}

func (s *statsRepo) SelectEligible(_ time.Duration, _ int, _ *uint) ([]models.BillingAttempt, error) {
	return nil, nil
}

func (s *statsRepo) CountEligible(_ time.Duration, _ *uint) (int64, error) { return 0, nil }

func (s *statsRepo) CountPending(_ *uint) (int64, error) { return s.pending, nil }

func (s *statsRepo) CountPendingStale(_ time.Duration, _ *uint) (int64, error) {
	return s.pendingStale, nil
}

func (s *statsRepo) CountNeverReconciled(_ time.Duration, _ *uint) (int64, error) {
	return s.neverReconciled, nil
}

func (s *statsRepo) CountMaxedOut(_ *uint) (int64, error) { return s.maxedOut, nil }

func (s *statsRepo) CountReconciledSince(_ time.Time, _ *uint) (int64, error) {
	return s.reconciledToday, nil
}

// setupTestApp wires the controllers against fakes and registers the same
// routes the API router installs.
func setupTestApp(m *fakeManager, r *fakeReconciler, repo *statsRepo) *fiber.App {
	if repo == nil {
		repo = &statsRepo{}
	}
	InitializeReconciliationControllers(m, r, reconcile.NewStatsReporter(repo, m.store))

	app := fiber.New()
	app.Post("/api/v1/refresh", HandleRefreshTrigger)
	app.Get("/api/v1/refresh/status", HandleRefreshStatus)
	app.Get("/api/v1/refresh/status/:job_id", HandleRefreshStatusByID)
	app.Post("/api/v1/billing-attempts/:id/reconcile", HandleAttemptReconcile)
	app.Post("/api/v1/reconcile", HandleBulkReconcileTrigger)
	app.Get("/api/v1/reconcile/status", HandleBulkReconcileStatus)
	app.Get("/api/v1/reconcile/status/:job_id", HandleBulkReconcileStatusByID)
	app.Post("/api/v1/uploads/:id/reconcile", HandleUploadReconcileTrigger)
	app.Get("/api/v1/uploads/:id/reconcile/status", HandleUploadReconcileStatus)
	app.Get("/api/v1/stats/reconciliation", HandleReconciliationStats)
	app.Get("/api/v1/uploads/:id/stats", HandleUploadStats)
	return app
}

func jsonRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var payload map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}
