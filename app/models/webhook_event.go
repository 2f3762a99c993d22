package models

import "time"

// Webhook provider identifiers.
const (
	WebhookProviderStripe = "stripe"
)

// Webhook event lifecycle states.
const (
	WebhookStatusReceived  = "received"
	WebhookStatusProcessed = "processed"
	WebhookStatusFailed    = "failed"
)

// WebhookEvent is the write-ahead log entry for every verified provider
// delivery. EventID is globally unique; redeliveries update the same row.
type WebhookEvent struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Provider    string     `gorm:"type:varchar(20);not null;index" json:"provider"`
	EventID     string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_webhook_events_event_id" json:"event_id"`
	EventType   string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	Status      string     `gorm:"type:varchar(20);not null;default:'received';index" json:"status"`
	Payload     *string    `gorm:"type:longtext" json:"-"`
	Error       *string    `gorm:"column:error_message;type:text" json:"error,omitempty"`
	Attempts    int        `gorm:"not null;default:1" json:"attempts"`
	ProcessedAt *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasPayload reports whether a replayable copy of the event is stored.
func (e *WebhookEvent) HasPayload() bool {
	return e != nil && e.Payload != nil && *e.Payload != ""
}
