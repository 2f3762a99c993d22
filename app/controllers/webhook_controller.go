package controllers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sujit-baniya/flash"

	"github.com/ManuelReschke/toolhub/app/models"
	"github.com/ManuelReschke/toolhub/internal/pkg/billing"
	"github.com/ManuelReschke/toolhub/internal/pkg/constants"
	"github.com/ManuelReschke/toolhub/internal/pkg/middleware"
	"github.com/ManuelReschke/toolhub/internal/pkg/viewmodel"
)

// WebhookService is the part of billing.Service the HTTP layer needs.
type WebhookService interface {
	ReceiveWebhook(ctx context.Context, payload []byte, signatureHeader, clientKey string) (billing.ProcessingResult, error)
	Retry(ctx context.Context, eventID string) (billing.ProcessingResult, error)
	Events() billing.EventStore
}

// WebhookController handles Stripe deliveries and the operator endpoints
// for the event log.
type WebhookController struct {
	service WebhookService
}

func NewWebhookController(service WebhookService) *WebhookController {
	return &WebhookController{service: service}
}

// HandleStripeWebhook acknowledges every verified delivery, including ones
// whose handler failed; those are recorded as failed for a manual retry.
func (wc *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))

	res, err := wc.service.ReceiveWebhook(c.UserContext(), rawBody, signature, middleware.ClientIP(c))
	if err != nil {
		var sigErr *billing.SignatureError
		if errors.As(err, &sigErr) {
			if sigErr.IsConfiguration() {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_not_configured"})
			}
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": string(sigErr.Kind)})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"received": true,
		"event_id": res.EventID,
		"status":   res.Status,
	})
}

// HandleRetry re-runs one event. Browser requests get a flash message and a
// redirect back to the event list; API clients get JSON.
func (wc *WebhookController) HandleRetry(c *fiber.Ctx) error {
	eventID := strings.TrimSpace(c.Params("eventId"))
	res, err := wc.service.Retry(c.UserContext(), eventID)

	status, body := retryResponse(eventID, res, err)
	if wantsJSON(c) {
		return c.Status(status).JSON(body)
	}

	if status == fiber.StatusOK {
		return flash.WithSuccess(c, fiber.Map{"type": "success", "message": "Event " + eventID + " was processed again"}).Redirect(constants.AdminWebhooksRoute)
	}
	msg := "Retry of event " + eventID + " failed"
	if err != nil {
		msg += ": " + err.Error()
	} else if res.Err != nil {
		msg += ": " + res.Err.Error()
	}
	return flash.WithError(c, fiber.Map{"type": "error", "message": msg}).Redirect(constants.AdminWebhooksRoute)
}

func retryResponse(eventID string, res billing.ProcessingResult, err error) (int, fiber.Map) {
	switch {
	case errors.Is(err, billing.ErrNotRecoverable):
		return fiber.StatusNotFound, fiber.Map{"error": "event_not_recoverable", "event_id": eventID}
	case err != nil:
		log.Errorf("[Webhook] retry of %s failed: %v", eventID, err)
		return fiber.StatusInternalServerError, fiber.Map{"error": "retry_failed", "event_id": eventID}
	case res.Failed():
		return fiber.StatusInternalServerError, fiber.Map{
			"error":    "processing_failed",
			"event_id": eventID,
			"status":   res.Status,
			"message":  res.Err.Error(),
		}
	}
	return fiber.StatusOK, fiber.Map{
		"event_id":   res.EventID,
		"event_type": res.EventType,
		"status":     res.Status,
		"outcome":    res.Outcome,
	}
}

// HandleListEvents returns the most recent event log entries, optionally
// filtered by status.
func (wc *WebhookController) HandleListEvents(c *fiber.Ctx) error {
	status := strings.ToLower(strings.TrimSpace(c.Query("status")))
	switch status {
	case "", models.WebhookStatusReceived, models.WebhookStatusProcessed, models.WebhookStatusFailed:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_status"})
	}

	events, err := wc.service.Events().ListRecent(c.UserContext(), status, c.QueryInt("limit", 50))
	if err != nil {
		log.Errorf("[Webhook] failed to list events: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_list_failed"})
	}
	return c.JSON(fiber.Map{"events": viewmodel.NewWebhookEventList(events)})
}
