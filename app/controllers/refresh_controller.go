package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/jobqueue"
	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/jobstate"
)

const (
	refreshDateLayout  = "2006-01-02"
	maxRefreshSpanDays = 90
)

type refreshRequest struct {
	From         string `json:"from" validate:"required,datetime=2006-01-02"`
	To           string `json:"to" validate:"required,datetime=2006-01-02"`
	EmpAccountID *uint  `json:"emp_account_id" validate:"omitempty,gt=0"`
}

// HandleRefreshTrigger starts a gateway history refresh over a date range.
// The call returns as soon as the job is queued; clients poll the status
// endpoints with the returned job id.
func HandleRefreshTrigger(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "malformed request body")
	}
	if err := validate.Struct(req); err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
	}

	from, _ := time.Parse(refreshDateLayout, req.From)
	to, _ := time.Parse(refreshDateLayout, req.To)
	if to.Before(from) {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", "end date precedes start date")
	}
	if to.Sub(from) > maxRefreshSpanDays*24*time.Hour {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", "date range exceeds 90 days")
	}

	outcome, err := jobManager.TriggerRefresh(c.UserContext(), jobqueue.RefreshRequest{
		From:         from,
		To:           to,
		EmpAccountID: req.EmpAccountID,
	})
	if err != nil {
		if errors.Is(err, jobqueue.ErrNoActiveAccounts) {
			return jsonError(c, fiber.StatusUnprocessableEntity, "no_active_accounts", "no active emp accounts configured")
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusUnprocessableEntity, "unknown_account", "emp account not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "could not queue refresh job")
	}
	if outcome.Duplicate {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"job_id":    outcome.JobID,
			"duplicate": true,
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id":          outcome.JobID,
		"from":            req.From,
		"to":              req.To,
		"accounts_count":  outcome.AccountsCount,
		"estimated_pages": outcome.EstimatedPages,
		"queued":          true,
	})
}

// HandleRefreshStatus reports the currently active refresh job, if any
func HandleRefreshStatus(c *fiber.Ctx) error {
	return activeJobStatus(c, jobstate.JobKindRefresh, nil)
}

// HandleRefreshStatusByID reports one refresh job's snapshot
func HandleRefreshStatusByID(c *fiber.Ctx) error {
	return jobStatusByID(c)
}
