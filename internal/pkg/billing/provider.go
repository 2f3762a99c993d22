package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"

	"github.com/ManuelReschke/toolhub/internal/pkg/env"
)

var ErrProviderNotConfigured = errors.New("stripe api key is not configured")

// Provider is the read side of the payment provider API.
type Provider interface {
	// FetchEvent returns the raw JSON of an event as the provider stores it.
	FetchEvent(ctx context.Context, eventID string) ([]byte, error)
	FetchSubscription(ctx context.Context, subscriptionID string) (*SubscriptionState, error)
}

type StripeProvider struct {
	api *client.API
	now func() time.Time
}

func NewStripeProvider(secretKey string) *StripeProvider {
	secretKey = strings.TrimSpace(secretKey)
	p := &StripeProvider{now: time.Now}
	if secretKey != "" {
		p.api = client.New(secretKey, nil)
	}
	return p
}

func NewStripeProviderFromEnv() *StripeProvider {
	return NewStripeProvider(env.GetEnv("STRIPE_SECRET_KEY", ""))
}

func (p *StripeProvider) Configured() bool {
	return p != nil && p.api != nil
}

func (p *StripeProvider) FetchEvent(ctx context.Context, eventID string) ([]byte, error) {
	if !p.Configured() {
		return nil, ErrProviderNotConfigured
	}
	params := &stripe.EventParams{}
	params.Context = ctx
	evt, err := p.api.Events.Get(eventID, params)
	if err != nil {
		return nil, fmt.Errorf("fetch event %s: %w", eventID, err)
	}
	if evt.LastResponse == nil || len(evt.LastResponse.RawJSON) == 0 {
		return nil, fmt.Errorf("fetch event %s: empty response", eventID)
	}
	return evt.LastResponse.RawJSON, nil
}

// FetchSubscription returns the current subscription state. ObservedAt is
// the fetch time since the API reports no version timestamp.
func (p *StripeProvider) FetchSubscription(ctx context.Context, subscriptionID string) (*SubscriptionState, error) {
	if !p.Configured() {
		return nil, ErrProviderNotConfigured
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := p.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("fetch subscription %s: %w", subscriptionID, err)
	}
	return &SubscriptionState{
		Status:      string(sub.Status),
		PeriodStart: unixPtr(sub.CurrentPeriodStart),
		PeriodEnd:   unixPtr(sub.CurrentPeriodEnd),
		ObservedAt:  p.now().UTC(),
	}, nil
}
