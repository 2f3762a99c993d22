package models

import "time"

// Sponsorship placements.
const (
	PlacementSidebarAd         = "sidebarAd"
	PlacementFeaturedSpotlight = "featuredSpotlight"
	PlacementNewsletter        = "newsletter"
)

// Sponsorship mirrors a Stripe subscription that pays for a placement.
// StripeSubscriptionID is the natural key for every write.
type Sponsorship struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	StripeSubscriptionID string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_sponsorships_subscription" json:"stripe_subscription_id"`
	StripeCustomerID     string     `gorm:"type:varchar(191);index" json:"stripe_customer_id"`
	Status               string     `gorm:"type:varchar(32);not null;default:'incomplete';index" json:"status"`
	Placement            string     `gorm:"type:varchar(32);not null;index" json:"placement"`
	CurrentPeriodStart   *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	ToolID               *string    `gorm:"type:varchar(64);index" json:"tool_id,omitempty"`
	SponsorName          string     `gorm:"type:varchar(200)" json:"sponsor_name"`
	SponsorEmail         string     `gorm:"type:varchar(200)" json:"sponsor_email"`
	StateSyncedAt        *time.Time `gorm:"type:timestamp;default:null" json:"state_synced_at,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsValidPlacement reports whether p names a known placement.
func IsValidPlacement(p string) bool {
	switch p {
	case PlacementSidebarAd, PlacementFeaturedSpotlight, PlacementNewsletter:
		return true
	default:
		return false
	}
}
