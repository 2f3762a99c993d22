package billing

import (
	"strings"

	"github.com/stripe/stripe-go/v81"

	"github.com/ManuelReschke/toolhub/app/models"
)

const subscriptionStatusIncomplete = string(stripe.SubscriptionStatusIncomplete)

func normalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// isActiveSubscriptionStatus reports whether a placement should be shown.
// past_due keeps the row but not the spotlight.
func isActiveSubscriptionStatus(status string) bool {
	switch stripe.SubscriptionStatus(normalizeStatus(status)) {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return true
	default:
		return false
	}
}

// wantsFeatured is the single rule for the tool spotlight flag.
func wantsFeatured(sp *models.Sponsorship) bool {
	return sp != nil && sp.Placement == models.PlacementFeaturedSpotlight && isActiveSubscriptionStatus(sp.Status)
}
