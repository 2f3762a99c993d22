package viewmodel

import (
	"time"

	"github.com/ManuelReschke/toolhub/app/models"
	"github.com/ManuelReschke/toolhub/internal/pkg/constants"
)

// WebhookEvent is the monitoring view of one event log entry. The raw
// payload is never exposed.
type WebhookEvent struct {
	EventID     string     `json:"event_id"`
	Provider    string     `json:"provider"`
	EventType   string     `json:"event_type"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Attempts    int        `json:"attempts"`
	HasPayload  bool       `json:"has_payload"`
	RetryURL    string     `json:"retry_url"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	ReceivedAt  time.Time  `json:"received_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func NewWebhookEvent(e models.WebhookEvent) WebhookEvent {
	vm := WebhookEvent{
		EventID:     e.EventID,
		Provider:    e.Provider,
		EventType:   e.EventType,
		Status:      e.Status,
		Attempts:    e.Attempts,
		HasPayload:  e.HasPayload(),
		RetryURL:    constants.AdminWebhookRetryPath(e.EventID),
		ProcessedAt: e.ProcessedAt,
		ReceivedAt:  e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	if e.Error != nil {
		vm.Error = *e.Error
	}
	return vm
}

func NewWebhookEventList(events []models.WebhookEvent) []WebhookEvent {
	out := make([]WebhookEvent, 0, len(events))
	for _, e := range events {
		out = append(out, NewWebhookEvent(e))
	}
	return out
}
