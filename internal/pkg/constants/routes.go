package constants

// Static route constants
const (
	StripeWebhookRoute = "/webhooks/stripe"
	AdminWebhooksRoute = "/admin/webhooks"
	APIWebhooksRoute   = "/api/v1/webhooks/events"
	HealthRoute        = "/api/health"
)

// AdminWebhookRetryPath builds the retry URL for a single event.
func AdminWebhookRetryPath(eventID string) string {
	return AdminWebhooksRoute + "/" + eventID + "/retry"
}
