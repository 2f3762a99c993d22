package controllers

import (
	"github.com/gofiber/fiber/v2"
)

// Global webhook controller instance
var webhookController *WebhookController

// InitializeWebhookController sets the service used by the adapter funcs.
func InitializeWebhookController(service WebhookService) {
	webhookController = NewWebhookController(service)
}

// GetWebhookController returns the global webhook controller instance.
// InitializeWebhookController must run first.
func GetWebhookController() *WebhookController {
	if webhookController == nil {
		panic("controllers: webhook controller is not initialized")
	}
	return webhookController
}

// Adapter functions used by the router

// HandleStripeWebhook - Adapter for Stripe deliveries
func HandleStripeWebhook(c *fiber.Ctx) error {
	return GetWebhookController().HandleStripeWebhook(c)
}

// HandleWebhookRetry - Adapter for manual retries
func HandleWebhookRetry(c *fiber.Ctx) error {
	return GetWebhookController().HandleRetry(c)
}

// HandleWebhookEvents - Adapter for the event log listing
func HandleWebhookEvents(c *fiber.Ctx) error {
	return GetWebhookController().HandleListEvents(c)
}
