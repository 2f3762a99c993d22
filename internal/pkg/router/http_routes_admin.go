package router

import (
	"github.com/ManuelReschke/toolhub/app/controllers"
	"github.com/gofiber/fiber/v2"
)

func (h HttpRouter) registerAdminRoutes(app *fiber.App) {
	adminGroup := app.Group("/admin", h.operator)

	// Webhook event log
	adminGroup.Get("/webhooks", controllers.HandleWebhookEvents)
	adminGroup.Post("/webhooks/:eventId/retry", controllers.HandleWebhookRetry)
}
