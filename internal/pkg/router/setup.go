package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ManuelReschke/toolhub/app/controllers"
	"github.com/ManuelReschke/toolhub/internal/pkg/middleware"
)

// Router registers a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies carries what the routes are wired to.
type Dependencies struct {
	Webhooks controllers.WebhookService
	Operator middleware.OperatorAuthConfig
	DB       *gorm.DB
	// Cache is optional; health reports it as disabled when nil.
	Cache *redis.Client
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// Controllers are global like the rest of the adapters; initialize them
	// before any route can reach one.
	controllers.InitializeWebhookController(deps.Webhooks)
	operator := middleware.RequireOperator(deps.Operator)

	setup(app, NewHttpRouter(operator), NewApiRouter(operator, deps.DB, deps.Cache))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
