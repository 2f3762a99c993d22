package router

import (
	"github.com/ManuelReschke/toolhub/app/controllers"
	"github.com/ManuelReschke/toolhub/internal/pkg/constants"
	"github.com/gofiber/fiber/v2"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	// Stripe authenticates itself with the signature header
	app.Post(constants.StripeWebhookRoute, controllers.HandleStripeWebhook)
}
