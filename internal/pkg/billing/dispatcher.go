package billing

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/toolhub/app/models"
)

// ProcessingResult is the outcome of one dispatch of a recorded event.
type ProcessingResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Status    string `json:"status"`
	Outcome   string `json:"outcome,omitempty"`
	Err       error  `json:"-"`
}

func (r ProcessingResult) Failed() bool {
	return r.Err != nil
}

// Process runs the handler for a recorded event and stores the terminal
// status. Callers must have recorded the event first.
func (s *Service) Process(ctx context.Context, evt *VerifiedEvent) ProcessingResult {
	return s.process(ctx, evt, "delivery")
}

func (s *Service) process(ctx context.Context, evt *VerifiedEvent, trigger string) ProcessingResult {
	res := ProcessingResult{EventID: evt.ID, EventType: evt.Type}

	dispatchCtx, cancel := context.WithTimeout(ctx, s.cfg.ProcessTimeout)
	defer cancel()
	hr, err := s.dispatch(dispatchCtx, evt)

	// The status update has to land even when dispatch ran out of time.
	storeCtx := context.WithoutCancel(ctx)
	if err != nil {
		res.Status = models.WebhookStatusFailed
		res.Err = err
		log.Errorf("[Billing] %s of event %s (%s) failed: %v", trigger, evt.ID, evt.Type, err)
		if markErr := s.store.MarkFailed(storeCtx, evt.ID, err); markErr != nil {
			log.Errorf("[Billing] failed to mark event %s as failed: %v", evt.ID, markErr)
		}
		s.notifier.OperatorAlert(fmt.Sprintf("Stripe event %s (%s) failed during %s: %v", evt.ID, evt.Type, trigger, err))
		return res
	}

	res.Status = models.WebhookStatusProcessed
	res.Outcome = hr.Outcome
	if markErr := s.store.MarkProcessed(storeCtx, evt.ID); markErr != nil {
		log.Errorf("[Billing] failed to mark event %s as processed: %v", evt.ID, markErr)
		s.notifier.OperatorAlert(fmt.Sprintf("Stripe event %s (%s) was applied but its status could not be saved: %v", evt.ID, evt.Type, markErr))
	}
	log.Infof("[Billing] event %s (%s) %s: %s", evt.ID, evt.Type, res.Status, res.Outcome)

	for _, n := range hr.approvals {
		s.notifier.Approval(n)
	}
	for _, n := range hr.failures {
		s.notifier.Failure(n)
	}
	for _, msg := range hr.alerts {
		s.notifier.OperatorAlert(msg)
	}
	return res
}

// dispatch decodes the payload, loads provider data and applies the handler
// in one transaction. Provider calls never run inside the transaction.
func (s *Service) dispatch(ctx context.Context, evt *VerifiedEvent) (result HandlerResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = HandlerResult{}
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	handler, ok := handlers[evt.Type]
	if !ok {
		return HandlerResult{Outcome: OutcomeIgnored}, nil
	}
	payload, err := DecodePayload(evt)
	if err != nil {
		return HandlerResult{}, err
	}
	pre := s.prefetch(ctx, evt, payload)

	err = s.repo.WithContext(ctx).Transaction(func(repo Repository) error {
		r, herr := handler(handlerContext{repo: repo, evt: evt, payload: payload, pre: pre})
		if herr != nil {
			return herr
		}
		result = r
		return nil
	})
	if err != nil {
		return HandlerResult{}, err
	}
	return result, nil
}

func (s *Service) prefetch(ctx context.Context, evt *VerifiedEvent, payload Payload) prefetched {
	var subID string
	switch p := payload.(type) {
	case *CheckoutSessionPayload:
		if evt.Type == EventCheckoutCompleted && wantsSponsorship(p.Metadata) {
			subID = p.Subscription.String()
		}
	case *InvoicePayload:
		if evt.Type == EventInvoicePaymentSuccess {
			subID = p.SubscriptionID()
		}
	}
	if subID == "" {
		return prefetched{}
	}
	if s.provider == nil {
		return prefetched{subscriptionErr: ErrProviderNotConfigured}
	}

	state, err := s.provider.FetchSubscription(ctx, subID)
	if err != nil {
		log.Warnf("[Billing] could not load subscription %s for event %s: %v", subID, evt.ID, err)
		return prefetched{subscriptionErr: err}
	}
	return prefetched{subscription: state}
}
