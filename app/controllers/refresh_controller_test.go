package controllers

import (
	"context"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/jobqueue"
	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/jobstate"
)

func TestRefreshTriggerQueued(t *testing.T) {
	m := newFakeManager()
	m.refreshOutcome = &jobqueue.RefreshOutcome{JobID: "job-1", AccountsCount: 2, EstimatedPages: 4}
	app := setupTestApp(m, &fakeReconciler{}, nil)

	req := jsonRequest(t, fiber.MethodPost, "/api/v1/refresh", fiber.Map{
		"from": "2026-08-01",
		"to":   "2026-08-14",
	})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "job-1", body["job_id"])
	assert.Equal(t, "2026-08-01", body["from"])
	assert.Equal(t, "2026-08-14", body["to"])
	assert.Equal(t, float64(2), body["accounts_count"])
	assert.Equal(t, float64(4), body["estimated_pages"])
	assert.Equal(t, true, body["queued"])

	require.NotNil(t, m.lastRefresh)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), m.lastRefresh.From)
	assert.Nil(t, m.lastRefresh.EmpAccountID)
}

func TestRefreshTriggerDuplicate(t *testing.T) {
	m := newFakeManager()
	m.refreshOutcome = &jobqueue.RefreshOutcome{JobID: "job-running", Duplicate: true}
	app := setupTestApp(m, &fakeReconciler{}, nil)

	req := jsonRequest(t, fiber.MethodPost, "/api/v1/refresh", fiber.Map{
		"from": "2026-08-01",
		"to":   "2026-08-07",
	})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "job-running", body["job_id"])
	assert.Equal(t, true, body["duplicate"])
}

func TestRefreshTriggerValidation(t *testing.T) {
	tests := []struct {
		name string
		body fiber.Map
	}{
		{"missing dates", fiber.Map{}},
		{"bad date format", fiber.Map{"from": "01.08.2026", "to": "2026-08-07"}},
		{"end before start", fiber.Map{"from": "2026-08-07", "to": "2026-08-01"}},
		{"span too large", fiber.Map{"from": "2026-01-01", "to": "2026-06-01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newFakeManager()
			app := setupTestApp(m, &fakeReconciler{}, nil)

			resp, err := app.Test(jsonRequest(t, fiber.MethodPost, "/api/v1/refresh", tt.body), -1)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
			assert.Nil(t, m.lastRefresh, "validation failures must not reach the manager")
		})
	}
}

func TestRefreshTriggerNoActiveAccounts(t *testing.T) {
	m := newFakeManager()
	m.refreshErr = jobqueue.ErrNoActiveAccounts
	app := setupTestApp(m, &fakeReconciler{}, nil)

	req := jsonRequest(t, fiber.MethodPost, "/api/v1/refresh", fiber.Map{
		"from": "2026-08-01",
		"to":   "2026-08-07",
	})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "no_active_accounts", decodeBody(t, resp)["error"])
}

func TestRefreshStatusIdle(t *testing.T) {
	app := setupTestApp(newFakeManager(), &fakeReconciler{}, nil)

	resp, err := app.Test(jsonRequest(t, fiber.MethodGet, "/api/v1/refresh/status", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, false, body["is_processing"])
	assert.Equal(t, "", body["job_id"])
	assert.Equal(t, float64(0), body["progress"])
}

func TestRefreshStatusActiveJob(t *testing.T) {
	m := newFakeManager()
	ctx := context.Background()
	won, _, err := m.store.AcquireLock(ctx, &jobstate.ActiveLock{
		JobID:     "job-7",
		Kind:      jobstate.JobKindRefresh,
		StartedAt: time.Now(),
	})
	require.NoError(t, err)
	require.True(t, won)
	require.NoError(t, m.store.SaveProgress(ctx, &jobstate.JobProgress{
		JobID:          "job-7",
		Kind:           jobstate.JobKindRefresh,
		Status:         jobstate.JobStatusProcessing,
		Progress:       40,
		CurrentAccount: "EMP DE 02",
		Stats:          jobstate.Stats{Inserted: 12},
		StartedAt:      time.Now(),
	}))
	app := setupTestApp(m, &fakeReconciler{}, nil)

	resp, err := app.Test(jsonRequest(t, fiber.MethodGet, "/api/v1/refresh/status", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["is_processing"])
	assert.Equal(t, "job-7", body["job_id"])
	assert.Equal(t, float64(40), body["progress"])
	assert.Equal(t, "EMP DE 02", body["current_account"])
	stats := body["stats"].(map[string]interface{})
	assert.Equal(t, float64(12), stats["inserted"])
}

func TestRefreshStatusByIDFailsOpen(t *testing.T) {
	app := setupTestApp(newFakeManager(), &fakeReconciler{}, nil)

	resp, err := app.Test(jsonRequest(t, fiber.MethodGet, "/api/v1/refresh/status/gone-job", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "gone-job", body["job_id"])
	assert.Equal(t, string(jobstate.JobStatusCompleted), body["status"])
	assert.Equal(t, float64(100), body["progress"])
}

func TestRefreshStatusByIDKnownJob(t *testing.T) {
	m := newFakeManager()
	require.NoError(t, m.store.SaveProgress(context.Background(), &jobstate.JobProgress{
		JobID:    "job-9",
		Kind:     jobstate.JobKindRefresh,
		Status:   jobstate.JobStatusProcessing,
		Progress: 75,
	}))
	app := setupTestApp(m, &fakeReconciler{}, nil)

	resp, err := app.Test(jsonRequest(t, fiber.MethodGet, "/api/v1/refresh/status/job-9", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "job-9", body["job_id"])
	assert.Equal(t, string(jobstate.JobStatusProcessing), body["status"])
	assert.Equal(t, float64(75), body["progress"])
}
