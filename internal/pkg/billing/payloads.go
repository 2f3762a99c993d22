package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stripe/stripe-go/v81"

	"github.com/ManuelReschke/toolhub/app/models"
)

// Event types the engine acts on.
const (
	EventCheckoutCompleted     = string(stripe.EventTypeCheckoutSessionCompleted)
	EventCheckoutExpired       = string(stripe.EventTypeCheckoutSessionExpired)
	EventPaymentFailed         = string(stripe.EventTypePaymentIntentPaymentFailed)
	EventPaymentCanceled       = string(stripe.EventTypePaymentIntentCanceled)
	EventChargeRefunded        = string(stripe.EventTypeChargeRefunded)
	EventSubscriptionCreated   = string(stripe.EventTypeCustomerSubscriptionCreated)
	EventSubscriptionUpdated   = string(stripe.EventTypeCustomerSubscriptionUpdated)
	EventSubscriptionDeleted   = string(stripe.EventTypeCustomerSubscriptionDeleted)
	EventInvoicePaymentSuccess = string(stripe.EventTypeInvoicePaymentSucceeded)
	EventInvoicePaymentFailed  = string(stripe.EventTypeInvoicePaymentFailed)
)

const (
	metadataTypeSubmission  = "submission"
	metadataTypeSponsorship = "sponsorship"
)

// Payload is the decoded data.object of an event. Each handler works on
// exactly one concrete payload type.
type Payload interface {
	objectID() string
}

// expandableID accepts both forms Stripe uses for references: a bare id
// string or an expanded object carrying an "id" field.
type expandableID string

func (e *expandableID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*e = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = expandableID(strings.TrimSpace(s))
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = expandableID(strings.TrimSpace(obj.ID))
	return nil
}

func (e expandableID) String() string { return string(e) }

type Metadata map[string]string

// Get returns the first non-empty value among keys. Checkout flows have
// used both camelCase and snake_case keys.
func (m Metadata) Get(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(m[k]); v != "" {
			return v
		}
	}
	return ""
}

func (m Metadata) Type() string {
	return strings.ToLower(m.Get("type"))
}

type CheckoutSessionPayload struct {
	ID              string       `json:"id"`
	Mode            string       `json:"mode"`
	PaymentStatus   string       `json:"payment_status"`
	AmountTotal     *int64       `json:"amount_total"`
	Currency        string       `json:"currency"`
	CustomerEmail   string       `json:"customer_email"`
	Customer        expandableID `json:"customer"`
	PaymentIntent   expandableID `json:"payment_intent"`
	Subscription    expandableID `json:"subscription"`
	Metadata        Metadata     `json:"metadata"`
	CustomerDetails *struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"customer_details"`
}

func (p *CheckoutSessionPayload) objectID() string { return p.ID }

// Email prefers the address the customer typed at checkout.
func (p *CheckoutSessionPayload) Email() string {
	if p.CustomerDetails != nil && strings.TrimSpace(p.CustomerDetails.Email) != "" {
		return strings.TrimSpace(p.CustomerDetails.Email)
	}
	return strings.TrimSpace(p.CustomerEmail)
}

// PaymentReference is what refunds are later matched against.
func (p *CheckoutSessionPayload) PaymentReference() string {
	if p.PaymentIntent != "" {
		return p.PaymentIntent.String()
	}
	return p.ID
}

type PaymentIntentPayload struct {
	ID                 string   `json:"id"`
	Status             string   `json:"status"`
	Amount             int64    `json:"amount"`
	ReceiptEmail       string   `json:"receipt_email"`
	CancellationReason string   `json:"cancellation_reason"`
	Metadata           Metadata `json:"metadata"`
	LastPaymentError   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

func (p *PaymentIntentPayload) objectID() string { return p.ID }

func (p *PaymentIntentPayload) FailureReason() string {
	if p.LastPaymentError != nil && p.LastPaymentError.Message != "" {
		return p.LastPaymentError.Message
	}
	if p.CancellationReason != "" {
		return p.CancellationReason
	}
	return p.Status
}

type ChargePayload struct {
	ID             string       `json:"id"`
	PaymentIntent  expandableID `json:"payment_intent"`
	Amount         int64        `json:"amount"`
	AmountRefunded int64        `json:"amount_refunded"`
	Refunded       bool         `json:"refunded"`
	Metadata       Metadata     `json:"metadata"`
}

func (p *ChargePayload) objectID() string { return p.ID }

type SubscriptionPayload struct {
	ID                 string       `json:"id"`
	Status             string       `json:"status"`
	Customer           expandableID `json:"customer"`
	CurrentPeriodStart int64        `json:"current_period_start"`
	CurrentPeriodEnd   int64        `json:"current_period_end"`
	Metadata           Metadata     `json:"metadata"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

func (p *SubscriptionPayload) objectID() string { return p.ID }

// Period returns the billing period. Newer API versions only report it on
// subscription items.
func (p *SubscriptionPayload) Period() (start, end *time.Time) {
	s, e := p.CurrentPeriodStart, p.CurrentPeriodEnd
	if s == 0 && e == 0 && len(p.Items.Data) > 0 {
		s, e = p.Items.Data[0].CurrentPeriodStart, p.Items.Data[0].CurrentPeriodEnd
	}
	return unixPtr(s), unixPtr(e)
}

type InvoicePayload struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	CustomerEmail string       `json:"customer_email"`
	AmountDue     int64        `json:"amount_due"`
	AttemptCount  int          `json:"attempt_count"`
	Subscription  expandableID `json:"subscription"`
	Parent        *struct {
		SubscriptionDetails *struct {
			Subscription expandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (p *InvoicePayload) objectID() string { return p.ID }

func (p *InvoicePayload) SubscriptionID() string {
	if p.Subscription != "" {
		return p.Subscription.String()
	}
	if p.Parent != nil && p.Parent.SubscriptionDetails != nil {
		return p.Parent.SubscriptionDetails.Subscription.String()
	}
	return ""
}

// UnknownPayload is used for event types without a handler.
type UnknownPayload struct {
	ID string `json:"id"`
}

func (p *UnknownPayload) objectID() string { return p.ID }

// DecodePayload turns data.object into the payload type registered for the
// event type.
func DecodePayload(evt *VerifiedEvent) (Payload, error) {
	var p Payload
	switch evt.Type {
	case EventCheckoutCompleted, EventCheckoutExpired:
		p = &CheckoutSessionPayload{}
	case EventPaymentFailed, EventPaymentCanceled:
		p = &PaymentIntentPayload{}
	case EventChargeRefunded:
		p = &ChargePayload{}
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		p = &SubscriptionPayload{}
	case EventInvoicePaymentSuccess, EventInvoicePaymentFailed:
		p = &InvoicePayload{}
	default:
		p = &UnknownPayload{}
	}
	if len(evt.data) == 0 {
		return nil, fmt.Errorf("event %s has no data.object", evt.ID)
	}
	if err := json.Unmarshal(evt.data, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	return p, nil
}

// SubmissionRef is the submission part of checkout/payment metadata.
type SubmissionRef struct {
	SubmissionID string `validate:"required,max=64"`
}

// SponsorshipRef is the sponsorship part of checkout/subscription metadata.
type SponsorshipRef struct {
	Placement    string `validate:"required,oneof=sidebarAd featuredSpotlight newsletter"`
	ToolID       string `validate:"omitempty,max=64"`
	SponsorName  string `validate:"max=200"`
	SponsorEmail string `validate:"omitempty,email,max=200"`
}

var metadataValidator = validator.New()

func submissionRef(m Metadata) (SubmissionRef, error) {
	ref := SubmissionRef{SubmissionID: m.Get("submissionId", "submission_id")}
	if err := metadataValidator.Struct(ref); err != nil {
		return ref, fmt.Errorf("invalid submission metadata: %w", err)
	}
	return ref, nil
}

func sponsorshipRef(m Metadata) (SponsorshipRef, error) {
	ref := SponsorshipRef{
		Placement:    m.Get("placement"),
		ToolID:       m.Get("toolId", "tool_id"),
		SponsorName:  m.Get("sponsorName", "sponsor_name", "companyName"),
		SponsorEmail: m.Get("sponsorEmail", "sponsor_email"),
	}
	if err := metadataValidator.Struct(ref); err != nil {
		return ref, fmt.Errorf("invalid sponsorship metadata: %w", err)
	}
	return ref, nil
}

// wantsSubmission and wantsSponsorship are evaluated independently; a
// checkout may carry both.
func wantsSubmission(m Metadata) bool {
	return m.Type() == metadataTypeSubmission || (m.Type() == "" && m.Get("submissionId", "submission_id") != "")
}

func wantsSponsorship(m Metadata) bool {
	return m.Type() == metadataTypeSponsorship || (m.Type() == "" && models.IsValidPlacement(m.Get("placement")))
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
