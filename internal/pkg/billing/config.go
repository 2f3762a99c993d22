package billing

import (
	"strings"
	"time"

	"github.com/ManuelReschke/toolhub/internal/pkg/env"
	"github.com/go-playground/validator/v10"
)

const (
	defaultMaxStoredPayloadBytes = 256 << 10
	defaultProcessTimeout        = 20 * time.Second
	defaultSignatureTolerance    = 5 * time.Minute
	defaultFailureThreshold      = 5
	defaultFailureWindow         = 15 * time.Minute
)

// Config holds the payment engine settings.
type Config struct {
	StripeSecretKey       string
	StripeWebhookSecret   string
	MaxStoredPayloadBytes int           `validate:"gte=0"`
	ProcessTimeout        time.Duration `validate:"gt=0"`
	SignatureTolerance    time.Duration `validate:"gt=0"`

	// SignatureFailureThreshold invalid deliveries from one client within
	// SignatureFailureWindow escalate the alert.
	SignatureFailureThreshold int           `validate:"gte=1"`
	SignatureFailureWindow    time.Duration `validate:"gt=0"`
}

// LoadConfigFromEnv reads STRIPE_* and WEBHOOK_* settings.
// A missing webhook secret is not a load error: the webhook endpoint reports
// it per request as a server configuration problem.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		StripeSecretKey:       strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		StripeWebhookSecret:   strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		MaxStoredPayloadBytes: env.GetEnvInt("WEBHOOK_MAX_STORED_PAYLOAD_BYTES", defaultMaxStoredPayloadBytes),
		ProcessTimeout:        env.GetEnvDuration("WEBHOOK_PROCESS_TIMEOUT", defaultProcessTimeout),
		SignatureTolerance:    env.GetEnvDuration("WEBHOOK_SIGNATURE_TOLERANCE", defaultSignatureTolerance),

		SignatureFailureThreshold: env.GetEnvInt("SIGNATURE_FAILURE_THRESHOLD", defaultFailureThreshold),
		SignatureFailureWindow:    env.GetEnvDuration("SIGNATURE_FAILURE_WINDOW", defaultFailureWindow),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	return validator.New().Struct(c)
}

func (c Config) withDefaults() Config {
	if c.ProcessTimeout <= 0 {
		c.ProcessTimeout = defaultProcessTimeout
	}
	if c.SignatureTolerance <= 0 {
		c.SignatureTolerance = defaultSignatureTolerance
	}
	if c.SignatureFailureThreshold <= 0 {
		c.SignatureFailureThreshold = defaultFailureThreshold
	}
	if c.SignatureFailureWindow <= 0 {
		c.SignatureFailureWindow = defaultFailureWindow
	}
	return c
}
