package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/WebOleg/Laravel-start-te-sub000/app/controllers"
)

// APIServer implements the ServerInterface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// Pong is the ping endpoint response body.
type Pong struct {
	Ping string `json:"ping"`
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// PostRefresh queues a gateway history refresh over a date range.
func (s *APIServer) PostRefresh(c *fiber.Ctx) error {
	return controllers.HandleRefreshTrigger(c)
}

// GetRefreshStatus reports the currently active refresh job, if any.
func (s *APIServer) GetRefreshStatus(c *fiber.Ctx) error {
	return controllers.HandleRefreshStatus(c)
}

// GetRefreshStatusByID reports progress for one refresh job.
func (s *APIServer) GetRefreshStatusByID(c *fiber.Ctx) error {
	return controllers.HandleRefreshStatusByID(c)
}

// PostAttemptReconcile reconciles a single billing attempt synchronously.
func (s *APIServer) PostAttemptReconcile(c *fiber.Ctx) error {
	return controllers.HandleAttemptReconcile(c)
}

// PostBulkReconcile queues a bulk reconciliation run over stale attempts.
func (s *APIServer) PostBulkReconcile(c *fiber.Ctx) error {
	return controllers.HandleBulkReconcileTrigger(c)
}

// GetBulkReconcileStatus reports the currently active bulk run, if any.
func (s *APIServer) GetBulkReconcileStatus(c *fiber.Ctx) error {
	return controllers.HandleBulkReconcileStatus(c)
}

// GetBulkReconcileStatusByID reports progress for one bulk run.
func (s *APIServer) GetBulkReconcileStatusByID(c *fiber.Ctx) error {
	return controllers.HandleBulkReconcileStatusByID(c)
}

// PostUploadReconcile queues a bulk run scoped to one upload batch.
func (s *APIServer) PostUploadReconcile(c *fiber.Ctx) error {
	return controllers.HandleUploadReconcileTrigger(c)
}

// GetUploadReconcileStatus reports the active run scoped to one upload batch.
func (s *APIServer) GetUploadReconcileStatus(c *fiber.Ctx) error {
	return controllers.HandleUploadReconcileStatus(c)
}

// GetReconciliationStats returns portfolio-wide reconciliation counters.
func (s *APIServer) GetReconciliationStats(c *fiber.Ctx) error {
	return controllers.HandleReconciliationStats(c)
}

// GetUploadStats returns reconciliation counters for one upload batch.
func (s *APIServer) GetUploadStats(c *fiber.Ctx) error {
	return controllers.HandleUploadStats(c)
}

// RegisterHandlers installs the v1 routes on the given router group.
func RegisterHandlers(r fiber.Router, s *APIServer) {
	r.Get("/ping", s.GetPing)

	r.Post("/refresh", s.PostRefresh)
	r.Get("/refresh/status", s.GetRefreshStatus)
	r.Get("/refresh/status/:job_id", s.GetRefreshStatusByID)

	r.Post("/billing-attempts/:id/reconcile", s.PostAttemptReconcile)

	r.Post("/reconcile", s.PostBulkReconcile)
	r.Get("/reconcile/status", s.GetBulkReconcileStatus)
	r.Get("/reconcile/status/:job_id", s.GetBulkReconcileStatusByID)

	r.Post("/uploads/:id/reconcile", s.PostUploadReconcile)
	r.Get("/uploads/:id/reconcile/status", s.GetUploadReconcileStatus)

	r.Get("/stats/reconciliation", s.GetReconciliationStats)
	r.Get("/uploads/:id/stats", s.GetUploadStats)
}
