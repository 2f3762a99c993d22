package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v81/webhook"
)

// SignatureErrorKind classifies why a delivery was rejected.
type SignatureErrorKind string

const (
	SignatureMissingSecret  SignatureErrorKind = "missing_secret"
	SignatureMissingHeader  SignatureErrorKind = "missing_signature"
	SignatureMalformed      SignatureErrorKind = "malformed_signature"
	SignatureMismatch       SignatureErrorKind = "invalid_signature"
	SignatureExpired        SignatureErrorKind = "expired_signature"
	SignaturePayloadInvalid SignatureErrorKind = "invalid_payload"
)

// SignatureError is returned for every delivery that must not be recorded.
type SignatureError struct {
	Kind SignatureErrorKind
	Err  error
}

func (e *SignatureError) Error() string {
	if e.Err == nil {
		return "webhook verification failed: " + string(e.Kind)
	}
	return fmt.Sprintf("webhook verification failed: %s: %v", e.Kind, e.Err)
}

func (e *SignatureError) Unwrap() error { return e.Err }

// IsConfiguration reports a server-side problem rather than a bad request.
func (e *SignatureError) IsConfiguration() bool {
	return e.Kind == SignatureMissingSecret
}

// VerifiedEvent is a delivery whose signature matched. Raw holds the exact
// request bytes.
type VerifiedEvent struct {
	ID      string
	Type    string
	Created time.Time
	Raw     []byte
	data    json.RawMessage
}

// VerifyWebhook checks the Stripe-Signature header against the raw body.
func VerifyWebhook(payload []byte, signatureHeader, secret string, tolerance time.Duration) (*VerifiedEvent, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, &SignatureError{Kind: SignatureMissingSecret, Err: errors.New("STRIPE_WEBHOOK_SECRET is not configured")}
	}
	if strings.TrimSpace(signatureHeader) == "" {
		return nil, &SignatureError{Kind: SignatureMissingHeader}
	}
	if tolerance <= 0 {
		tolerance = defaultSignatureTolerance
	}

	_, err := webhook.ConstructEventWithOptions(payload, signatureHeader, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrNotSigned):
			return nil, &SignatureError{Kind: SignatureMissingHeader, Err: err}
		case errors.Is(err, webhook.ErrInvalidHeader):
			return nil, &SignatureError{Kind: SignatureMalformed, Err: err}
		case errors.Is(err, webhook.ErrTooOld):
			return nil, &SignatureError{Kind: SignatureExpired, Err: err}
		case errors.Is(err, webhook.ErrNoValidSignature):
			return nil, &SignatureError{Kind: SignatureMismatch, Err: err}
		default:
			return nil, &SignatureError{Kind: SignaturePayloadInvalid, Err: err}
		}
	}

	evt, err := ParseEvent(payload)
	if err != nil {
		return nil, &SignatureError{Kind: SignaturePayloadInvalid, Err: err}
	}
	return evt, nil
}

type eventEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes an event without checking a signature. Only use it on
// bytes from a trusted source: the provider API or the event store.
func ParseEvent(raw []byte) (*VerifiedEvent, error) {
	var env eventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if strings.TrimSpace(env.ID) == "" {
		return nil, errors.New("event payload missing id")
	}
	if strings.TrimSpace(env.Type) == "" {
		return nil, errors.New("event payload missing type")
	}
	var created time.Time
	if env.Created > 0 {
		created = time.Unix(env.Created, 0).UTC()
	}
	return &VerifiedEvent{
		ID:      strings.TrimSpace(env.ID),
		Type:    strings.TrimSpace(env.Type),
		Created: created,
		Raw:     raw,
		data:    env.Data.Object,
	}, nil
}
