package router

import (
	"github.com/WebOleg/Laravel-start-te-sub000/app/controllers"
	"github.com/WebOleg/Laravel-start-te-sub000/app/repository"
	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/jobqueue"
	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/reconcile"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Wire the controllers against the shared job manager before any route
	// that uses them is registered.
	manager := jobqueue.GetManager()
	stats := reconcile.NewStatsReporter(repository.GetGlobalRepositories().BillingAttempt, manager.State())
	controllers.InitializeReconciliationControllers(manager, manager.Reconciler(), stats)

	app.Get("/health", func(c *fiber.Ctx) error {
		queue := manager.GetQueue()
		status := "ok"

		pending, err := queue.GetQueueSize(c.UserContext())
		if err != nil {
			status = "degraded"
		}
		processing, err := queue.GetProcessingSize(c.UserContext())
		if err != nil {
			status = "degraded"
		}

		return c.JSON(fiber.Map{
			"status":           status,
			"queue_pending":    pending,
			"queue_processing": processing,
			"workers_running":  manager.IsRunning(),
		})
	})
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
