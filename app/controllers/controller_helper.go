package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// wantsJSON reports whether the caller expects a JSON answer instead of a
// redirect: API routes and explicit Accept headers.
func wantsJSON(c *fiber.Ctx) bool {
	if strings.HasPrefix(c.Path(), "/api/") {
		return true
	}
	return strings.Contains(strings.ToLower(c.Get(fiber.HeaderAccept)), fiber.MIMEApplicationJSON)
}
