package controllers

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/jobqueue"
	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/jobstate"
	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/reconcile"
)

// JobManager is the trigger surface the controllers need from the jobqueue
// manager.
type JobManager interface {
	TriggerRefresh(ctx context.Context, req jobqueue.RefreshRequest) (*jobqueue.RefreshOutcome, error)
	TriggerBulkReconcile(ctx context.Context, req jobqueue.BulkReconcileRequest) (*jobqueue.BulkReconcileOutcome, error)
	State() *jobstate.Store
}

// AttemptReconciler is the single-attempt surface of the reconciler.
type AttemptReconciler interface {
	ReconcileAttempt(ctx context.Context, id uint) (*reconcile.Result, error)
}

var (
	jobManager        JobManager
	attemptReconciler AttemptReconciler
	statsReporter     *reconcile.StatsReporter

	validate = validator.New()
)

// InitializeReconciliationControllers wires the reconciliation controllers
// against their collaborators. Called once during router installation.
func InitializeReconciliationControllers(m JobManager, r AttemptReconciler, stats *reconcile.StatsReporter) {
	jobManager = m
	attemptReconciler = r
	statsReporter = stats
}

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

// activeJobStatus answers the id-less status poll: the in-flight job for
// one kind/scope, or an all-zero shape when nothing is running.
func activeJobStatus(c *fiber.Ctx, kind jobstate.JobKind, uploadID *uint) error {
	snapshot, err := jobManager.State().Status(c.UserContext(), kind, uploadID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "job state unavailable")
	}

	resp := fiber.Map{
		"is_processing": snapshot.IsProcessing,
		"job_id":        snapshot.JobID,
		"progress":      0,
		"stats":         jobstate.Stats{},
	}
	if snapshot.Progress != nil {
		resp["status"] = snapshot.Progress.Status
		resp["progress"] = snapshot.Progress.Progress
		resp["stats"] = snapshot.Progress.Stats
		if snapshot.Progress.CurrentAccount != "" {
			resp["current_account"] = snapshot.Progress.CurrentAccount
		}
	}
	return c.JSON(resp)
}

// jobStatusByID answers a poll for one specific job. Unknown or expired ids
// synthesize a completed answer so pollers always terminate.
func jobStatusByID(c *fiber.Ctx) error {
	jobID := c.Params("job_id")
	progress, err := jobManager.State().GetProgress(c.UserContext(), jobID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "job state unavailable")
	}
	if progress == nil {
		return c.JSON(fiber.Map{
			"job_id":   jobID,
			"status":   jobstate.JobStatusCompleted,
			"progress": 100,
		})
	}
	return c.JSON(progress)
}
