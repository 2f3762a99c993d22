package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/toolhub/app/models"
)

// ErrNotRecoverable means neither the provider nor the event log has a copy
// of the event.
var ErrNotRecoverable = errors.New("webhook event is not recoverable")

// Retry re-acquires an event and runs it through the dispatcher again. The
// provider copy is preferred; the stored payload is the fallback. The event
// is reset to received before dispatch. Processing failures are reported in
// the result, recovery failures as an error.
func (s *Service) Retry(ctx context.Context, eventID string) (ProcessingResult, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return ProcessingResult{}, fmt.Errorf("%w: empty event id", ErrNotRecoverable)
	}

	raw, source, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return ProcessingResult{EventID: eventID}, err
	}
	if raw == nil {
		s.notifier.OperatorAlert(fmt.Sprintf("Retry of Stripe event %s failed: not available from Stripe or the event log", eventID))
		return ProcessingResult{EventID: eventID}, fmt.Errorf("%w: %s", ErrNotRecoverable, eventID)
	}

	evt, err := ParseEvent(raw)
	if err != nil {
		return ProcessingResult{EventID: eventID}, fmt.Errorf("%w: %s copy of %s: %v", ErrNotRecoverable, source, eventID, err)
	}
	if evt.ID != eventID {
		return ProcessingResult{EventID: eventID}, fmt.Errorf("%w: %s copy of %s has id %s", ErrNotRecoverable, source, eventID, evt.ID)
	}

	if _, err := s.store.RecordReceived(ctx, models.WebhookProviderStripe, evt.ID, evt.Type, evt.Raw); err != nil {
		return ProcessingResult{EventID: eventID, EventType: evt.Type}, fmt.Errorf("reset event %s: %w", eventID, err)
	}
	log.Infof("[Billing] retrying event %s (%s) from %s", evt.ID, evt.Type, source)
	return s.process(ctx, evt, "retry"), nil
}

// loadEvent returns (nil, "", nil) when no copy exists.
func (s *Service) loadEvent(ctx context.Context, eventID string) ([]byte, string, error) {
	if s.provider != nil {
		raw, err := s.provider.FetchEvent(ctx, eventID)
		if err == nil && len(raw) > 0 {
			return raw, "stripe", nil
		}
		log.Warnf("[Billing] event %s not available from stripe, using the event log: %v", eventID, err)
	}

	stored, err := s.store.GetByEventID(ctx, eventID)
	if err != nil {
		return nil, "", fmt.Errorf("load event %s: %w", eventID, err)
	}
	if stored == nil || !stored.HasPayload() {
		return nil, "", nil
	}
	return []byte(*stored.Payload), "event log", nil
}
