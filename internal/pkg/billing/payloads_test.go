package billing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandableID(t *testing.T) {
	var v struct {
		A expandableID `json:"a"`
		B expandableID `json:"b"`
		C expandableID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"sub_1","b":{"id":"sub_2","object":"subscription"},"c":null}`), &v))
	assert.Equal(t, "sub_1", v.A.String())
	assert.Equal(t, "sub_2", v.B.String())
	assert.Empty(t, v.C.String())
}

func TestDecodePayloadPicksVariant(t *testing.T) {
	tests := []struct {
		eventType string
		want      Payload
	}{
		{EventCheckoutCompleted, &CheckoutSessionPayload{}},
		{EventCheckoutExpired, &CheckoutSessionPayload{}},
		{EventPaymentFailed, &PaymentIntentPayload{}},
		{EventPaymentCanceled, &PaymentIntentPayload{}},
		{EventChargeRefunded, &ChargePayload{}},
		{EventSubscriptionDeleted, &SubscriptionPayload{}},
		{EventInvoicePaymentFailed, &InvoicePayload{}},
		{"product.created", &UnknownPayload{}},
	}
	for _, tt := range tests {
		p, err := DecodePayload(&VerifiedEvent{ID: "evt_1", Type: tt.eventType, data: json.RawMessage(`{"id":"obj_1"}`)})
		require.NoError(t, err, tt.eventType)
		assert.IsType(t, tt.want, p, tt.eventType)
		assert.Equal(t, "obj_1", p.objectID())
	}

	_, err := DecodePayload(&VerifiedEvent{ID: "evt_1", Type: EventCheckoutCompleted})
	assert.Error(t, err)
	_, err = DecodePayload(&VerifiedEvent{ID: "evt_1", Type: EventCheckoutCompleted, data: json.RawMessage(`[1]`)})
	assert.Error(t, err)
}

func TestCheckoutSessionPayloadAccessors(t *testing.T) {
	var p CheckoutSessionPayload
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "cs_1",
		"customer_email": "typed@example.com",
		"customer_details": {"email": "details@example.com"},
		"payment_intent": {"id": "pi_1"}
	}`), &p))
	assert.Equal(t, "details@example.com", p.Email())
	assert.Equal(t, "pi_1", p.PaymentReference())

	p = CheckoutSessionPayload{ID: "cs_2", CustomerEmail: "typed@example.com"}
	assert.Equal(t, "typed@example.com", p.Email())
	assert.Equal(t, "cs_2", p.PaymentReference())
}

func TestSubscriptionPeriodFallsBackToItems(t *testing.T) {
	var p SubscriptionPayload
	require.NoError(t, json.Unmarshal([]byte(`{"id":"sub_1","items":{"data":[{"current_period_start":1700000000,"current_period_end":1702592000}]}}`), &p))
	start, end := p.Period()
	require.NotNil(t, start)
	require.NotNil(t, end)
	assert.Equal(t, int64(1700000000), start.Unix())
	assert.Equal(t, int64(1702592000), end.Unix())

	start, end = (&SubscriptionPayload{}).Period()
	assert.Nil(t, start)
	assert.Nil(t, end)
}

func TestInvoiceSubscriptionID(t *testing.T) {
	var p InvoicePayload
	require.NoError(t, json.Unmarshal([]byte(`{"id":"in_1","parent":{"subscription_details":{"subscription":"sub_9"}}}`), &p))
	assert.Equal(t, "sub_9", p.SubscriptionID())

	p = InvoicePayload{Subscription: "sub_1"}
	assert.Equal(t, "sub_1", p.SubscriptionID())
	assert.Empty(t, (&InvoicePayload{}).SubscriptionID())
}

func TestPaymentIntentFailureReason(t *testing.T) {
	var p PaymentIntentPayload
	require.NoError(t, json.Unmarshal([]byte(`{"id":"pi_1","status":"canceled","cancellation_reason":"abandoned"}`), &p))
	assert.Equal(t, "abandoned", p.FailureReason())

	require.NoError(t, json.Unmarshal([]byte(`{"last_payment_error":{"message":"declined"}}`), &p))
	assert.Equal(t, "declined", p.FailureReason())
}

func TestMetadataRouting(t *testing.T) {
	tests := []struct {
		name        string
		md          Metadata
		submission  bool
		sponsorship bool
	}{
		{"typed submission", Metadata{"type": "submission", "submissionId": "S1"}, true, false},
		{"typed sponsorship", Metadata{"type": "Sponsorship", "placement": "sidebarAd"}, false, true},
		{"untyped submission", Metadata{"submission_id": "S1"}, true, false},
		{"untyped sponsorship", Metadata{"placement": "newsletter"}, false, true},
		{"untyped both", Metadata{"submissionId": "S1", "placement": "featuredSpotlight"}, true, true},
		{"unknown placement", Metadata{"placement": "banner"}, false, false},
		{"empty", Metadata{}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.submission, wantsSubmission(tt.md))
			assert.Equal(t, tt.sponsorship, wantsSponsorship(tt.md))
		})
	}
}

func TestMetadataRefsValidate(t *testing.T) {
	_, err := submissionRef(Metadata{"type": "submission"})
	assert.Error(t, err)

	ref, err := submissionRef(Metadata{"submission_id": " S1 "})
	require.NoError(t, err)
	assert.Equal(t, "S1", ref.SubmissionID)

	_, err = sponsorshipRef(Metadata{"placement": "banner"})
	assert.Error(t, err)
	_, err = sponsorshipRef(Metadata{"placement": "sidebarAd", "sponsorEmail": "not-an-email"})
	assert.Error(t, err)

	sp, err := sponsorshipRef(Metadata{"placement": "featuredSpotlight", "tool_id": "T1", "companyName": "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "T1", sp.ToolID)
	assert.Equal(t, "Acme", sp.SponsorName)
}
