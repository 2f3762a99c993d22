package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/toolhub/app/models"
	"github.com/ManuelReschke/toolhub/internal/pkg/notify"
	"github.com/ManuelReschke/toolhub/internal/pkg/security"
)

const signatureAttemptKey = "webhook_signature:"

// Service ingests Stripe events: verification, write-ahead logging,
// dispatch and retry.
type Service struct {
	store    EventStore
	repo     Repository
	provider Provider
	notifier *notify.Async
	attempts security.AttemptStore
	cfg      Config
}

// NewService creates a payment event service from injected collaborators.
// provider and notifier may be nil.
func NewService(store EventStore, repo Repository, provider Provider, notifier *notify.Async, cfg Config) *Service {
	return &Service{
		store:    store,
		repo:     repo,
		provider: provider,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
	}
}

// NewServiceFromDB creates a payment event service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, provider Provider, notifier *notify.Async, cfg Config) *Service {
	return NewService(NewEventStore(db, cfg.MaxStoredPayloadBytes), NewRepository(db), provider, notifier, cfg)
}

// WithAttemptStore enables counting rejected deliveries per client.
func (s *Service) WithAttemptStore(attempts security.AttemptStore) *Service {
	s.attempts = attempts
	return s
}

// Events exposes the event log for monitoring views.
func (s *Service) Events() EventStore {
	return s.store
}

// ReceiveWebhook verifies a delivery, records it and processes it. A
// *SignatureError means nothing was recorded. Any other error means the
// event could not be recorded and the provider should redeliver.
// Processing failures are reported in the result, not as an error.
func (s *Service) ReceiveWebhook(ctx context.Context, payload []byte, signatureHeader, clientKey string) (ProcessingResult, error) {
	evt, err := VerifyWebhook(payload, signatureHeader, s.cfg.StripeWebhookSecret, s.cfg.SignatureTolerance)
	if err != nil {
		s.reportRejected(ctx, err, clientKey)
		return ProcessingResult{}, err
	}

	if _, err := s.store.RecordReceived(ctx, models.WebhookProviderStripe, evt.ID, evt.Type, evt.Raw); err != nil {
		log.Errorf("[Billing] failed to record event %s: %v", evt.ID, err)
		s.notifier.OperatorAlert(fmt.Sprintf("Stripe event %s (%s) could not be recorded: %v", evt.ID, evt.Type, err))
		return ProcessingResult{EventID: evt.ID, EventType: evt.Type}, fmt.Errorf("record event %s: %w", evt.ID, err)
	}

	return s.Process(ctx, evt), nil
}

func (s *Service) reportRejected(ctx context.Context, err error, clientKey string) {
	var sigErr *SignatureError
	if errors.As(err, &sigErr) && sigErr.IsConfiguration() {
		log.Errorf("[Billing] webhook rejected: %v", err)
		s.notifier.OperatorAlert("Stripe webhook secret is not configured, deliveries are being rejected")
		return
	}

	msg := fmt.Sprintf("Rejected Stripe webhook from %s: %v", clientKey, err)
	if s.attempts != nil && clientKey != "" {
		n, cerr := s.attempts.Incr(ctx, signatureAttemptKey+clientKey, s.cfg.SignatureFailureWindow)
		if cerr != nil {
			log.Warnf("[Billing] failed to count rejected webhook from %s: %v", clientKey, cerr)
		} else if n >= int64(s.cfg.SignatureFailureThreshold) {
			msg = fmt.Sprintf("%s (%d rejected deliveries within %s)", msg, n, s.cfg.SignatureFailureWindow)
		}
	}
	log.Warnf("[Billing] %s", msg)
	s.notifier.OperatorAlert(msg)
}
