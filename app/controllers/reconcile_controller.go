package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/emp"
	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/jobqueue"
	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/jobstate"
)

// HandleAttemptReconcile reconciles a single billing attempt against the
// gateway, synchronously.
func HandleAttemptReconcile(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid attempt id")
	}

	result, err := attemptReconciler.ReconcileAttempt(c.UserContext(), uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "billing attempt not found")
		}
		var clientErr *emp.ClientError
		if errors.As(err, &clientErr) {
			return jsonError(c, fiber.StatusBadGateway, "gateway_error", clientErr.Message)
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "reconciliation failed")
	}

	if result.RejectReason != "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"id":            id,
			"can_reconcile": false,
			"reason":        result.RejectReason,
		})
	}

	return c.JSON(fiber.Map{
		"id":              id,
		"success":         result.Success,
		"changed":         result.Changed,
		"previous_status": result.PreviousStatus,
		"new_status":      result.NewStatus,
	})
}

type bulkReconcileRequest struct {
	MaxAgeHours int   `json:"max_age_hours" validate:"omitempty,gte=0"`
	Limit       int   `json:"limit" validate:"omitempty,gte=0"`
	UploadID    *uint `json:"upload_id" validate:"omitempty,gt=0"`
}

// HandleBulkReconcileTrigger starts a bulk reconciliation run over stale
// pending attempts. An empty body runs with the configured defaults.
func HandleBulkReconcileTrigger(c *fiber.Ctx) error {
	var req bulkReconcileRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "malformed request body")
		}
		if err := validate.Struct(req); err != nil {
			return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
		}
	}

	return triggerBulkReconcile(c, jobqueue.BulkReconcileRequest{
		MaxAgeHours: req.MaxAgeHours,
		Limit:       req.Limit,
		UploadID:    req.UploadID,
	})
}

// HandleUploadReconcileTrigger starts a bulk run scoped to one upload batch
func HandleUploadReconcileTrigger(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid upload id")
	}

	var req bulkReconcileRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "malformed request body")
		}
		if err := validate.Struct(req); err != nil {
			return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
		}
	}

	uploadID := uint(id)
	return triggerBulkReconcile(c, jobqueue.BulkReconcileRequest{
		MaxAgeHours: req.MaxAgeHours,
		Limit:       req.Limit,
		UploadID:    &uploadID,
	})
}

func triggerBulkReconcile(c *fiber.Ctx, req jobqueue.BulkReconcileRequest) error {
	outcome, err := jobManager.TriggerBulkReconcile(c.UserContext(), req)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusUnprocessableEntity, "unknown_upload", "upload not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "could not queue reconciliation job")
	}
	if outcome.Duplicate {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"job_id":    outcome.JobID,
			"duplicate": true,
		})
	}
	if !outcome.Queued {
		return c.JSON(fiber.Map{
			"queued":   false,
			"eligible": 0,
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id":   outcome.JobID,
		"queued":   true,
		"eligible": outcome.Eligible,
	})
}

// HandleBulkReconcileStatus reports the currently active global bulk run
func HandleBulkReconcileStatus(c *fiber.Ctx) error {
	return activeJobStatus(c, jobstate.JobKindBulkReconcile, nil)
}

// HandleUploadReconcileStatus reports the active bulk run for one upload
func HandleUploadReconcileStatus(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid upload id")
	}
	uploadID := uint(id)
	return activeJobStatus(c, jobstate.JobKindBulkReconcile, &uploadID)
}

// HandleBulkReconcileStatusByID reports one bulk job's snapshot
func HandleBulkReconcileStatusByID(c *fiber.Ctx) error {
	return jobStatusByID(c)
}
