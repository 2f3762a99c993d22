// Package bootstrap builds the payment engine from the environment. The
// server and webhookctl share it so both run with the same settings.
package bootstrap

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/toolhub/internal/pkg/billing"
	"github.com/ManuelReschke/toolhub/internal/pkg/env"
	"github.com/ManuelReschke/toolhub/internal/pkg/mail"
	"github.com/ManuelReschke/toolhub/internal/pkg/notify"
	"github.com/ManuelReschke/toolhub/internal/pkg/security"
)

// Notifier returns the async notification channel: email when SMTP is set
// up, the log otherwise.
func Notifier() *notify.Async {
	var n notify.Notifier = notify.LogNotifier{}
	mailer := mail.NewSMTPMailerFromEnv()
	if mailer.Configured() {
		n = notify.NewMailNotifier(mailer, env.GetEnv("OPERATOR_EMAIL", ""), env.GetEnv("PUBLIC_DOMAIN", ""))
	} else {
		log.Warn("[Notify] SMTP_HOST not set, notifications go to the log only")
	}
	return notify.NewAsync(n, env.GetEnvDuration("NOTIFY_TIMEOUT", 10*time.Second))
}

// Service wires the payment engine on db. attempts may be nil.
func Service(db *gorm.DB, notifier *notify.Async, attempts security.AttemptStore) (*billing.Service, error) {
	cfg, err := billing.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("billing config: %w", err)
	}
	if cfg.StripeWebhookSecret == "" {
		log.Warn("[Billing] STRIPE_WEBHOOK_SECRET not set, deliveries will be rejected")
	}

	var provider billing.Provider
	if p := billing.NewStripeProvider(cfg.StripeSecretKey); p.Configured() {
		provider = p
	} else {
		log.Warn("[Billing] STRIPE_SECRET_KEY not set, retries use the event log and invoice events fail")
	}

	svc := billing.NewServiceFromDB(db, provider, notifier, cfg)
	if attempts != nil {
		svc.WithAttemptStore(attempts)
	}
	return svc, nil
}
