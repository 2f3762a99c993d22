package router

import (
	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
	operator fiber.Handler
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	h.registerPublicRoutes(app)
	h.registerAdminRoutes(app)
}

func NewHttpRouter(operator fiber.Handler) *HttpRouter {
	return &HttpRouter{operator: operator}
}
