package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/toolhub/app/models"
	"github.com/ManuelReschke/toolhub/internal/pkg/billing"
	"github.com/ManuelReschke/toolhub/internal/pkg/database"
)

type fakeWebhookService struct {
	receiveRes billing.ProcessingResult
	receiveErr error
	retryRes   billing.ProcessingResult
	retryErr   error
	events     billing.EventStore

	gotPayload   string
	gotSignature string
	gotClient    string
	gotRetryID   string
}

func (f *fakeWebhookService) ReceiveWebhook(_ context.Context, payload []byte, signatureHeader, clientKey string) (billing.ProcessingResult, error) {
	f.gotPayload = string(payload)
	f.gotSignature = signatureHeader
	f.gotClient = clientKey
	return f.receiveRes, f.receiveErr
}

func (f *fakeWebhookService) Retry(_ context.Context, eventID string) (billing.ProcessingResult, error) {
	f.gotRetryID = eventID
	return f.retryRes, f.retryErr
}

func (f *fakeWebhookService) Events() billing.EventStore {
	return f.events
}

func newWebhookApp(svc WebhookService) *fiber.App {
	wc := NewWebhookController(svc)
	app := fiber.New()
	app.Post("/webhooks/stripe", wc.HandleStripeWebhook)
	app.Post("/admin/webhooks/:eventId/retry", wc.HandleRetry)
	app.Get("/admin/webhooks", wc.HandleListEvents)
	return app
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	return body
}

func TestHandleStripeWebhook(t *testing.T) {
	tests := []struct {
		name       string
		res        billing.ProcessingResult
		err        error
		wantStatus int
		wantError  string
	}{
		{
			name:       "processed",
			res:        billing.ProcessingResult{EventID: "evt_1", Status: models.WebhookStatusProcessed},
			wantStatus: fiber.StatusOK,
		},
		{
			name:       "handler failure is still acknowledged",
			res:        billing.ProcessingResult{EventID: "evt_1", Status: models.WebhookStatusFailed, Err: errors.New("boom")},
			wantStatus: fiber.StatusOK,
		},
		{
			name:       "bad signature",
			err:        &billing.SignatureError{Kind: billing.SignatureMismatch},
			wantStatus: fiber.StatusBadRequest,
			wantError:  "invalid_signature",
		},
		{
			name:       "missing secret",
			err:        &billing.SignatureError{Kind: billing.SignatureMissingSecret},
			wantStatus: fiber.StatusInternalServerError,
			wantError:  "webhook_not_configured",
		},
		{
			name:       "event log unavailable",
			err:        errors.New("db down"),
			wantStatus: fiber.StatusInternalServerError,
			wantError:  "webhook_persist_failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeWebhookService{receiveRes: tt.res, receiveErr: tt.err}
			app := newWebhookApp(svc)

			req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{"id":"evt_1"}`))
			req.Header.Set("Stripe-Signature", "t=1,v1=abc")
			req.Header.Set("CF-Connecting-IP", "198.51.100.4")
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			body := decodeBody(t, resp)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body["error"])
			} else {
				assert.Equal(t, true, body["received"])
				assert.Equal(t, "evt_1", body["event_id"])
				assert.Equal(t, tt.res.Status, body["status"])
			}
			assert.Equal(t, `{"id":"evt_1"}`, svc.gotPayload)
			assert.Equal(t, "t=1,v1=abc", svc.gotSignature)
			assert.Equal(t, "198.51.100.4", svc.gotClient)
		})
	}
}

func TestHandleRetry_JSON(t *testing.T) {
	tests := []struct {
		name       string
		res        billing.ProcessingResult
		err        error
		wantStatus int
		wantError  string
	}{
		{
			name:       "processed",
			res:        billing.ProcessingResult{EventID: "evt_9", EventType: "charge.refunded", Status: models.WebhookStatusProcessed, Outcome: "applied"},
			wantStatus: fiber.StatusOK,
		},
		{
			name:       "not recoverable",
			err:        billing.ErrNotRecoverable,
			wantStatus: fiber.StatusNotFound,
			wantError:  "event_not_recoverable",
		},
		{
			name:       "reset failed",
			err:        errors.New("db down"),
			wantStatus: fiber.StatusInternalServerError,
			wantError:  "retry_failed",
		},
		{
			name:       "handler failed again",
			res:        billing.ProcessingResult{EventID: "evt_9", Status: models.WebhookStatusFailed, Err: errors.New("boom")},
			wantStatus: fiber.StatusInternalServerError,
			wantError:  "processing_failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeWebhookService{retryRes: tt.res, retryErr: tt.err}
			app := newWebhookApp(svc)

			req := httptest.NewRequest(http.MethodPost, "/admin/webhooks/evt_9/retry", nil)
			req.Header.Set("Accept", "application/json")
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, "evt_9", svc.gotRetryID)

			body := decodeBody(t, resp)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body["error"])
			} else {
				assert.Equal(t, "applied", body["outcome"])
			}
		})
	}
}

func TestHandleRetry_RedirectsWithFlash(t *testing.T) {
	for _, retryErr := range []error{nil, billing.ErrNotRecoverable} {
		svc := &fakeWebhookService{
			retryRes: billing.ProcessingResult{EventID: "evt_9", Status: models.WebhookStatusProcessed},
			retryErr: retryErr,
		}
		app := newWebhookApp(svc)

		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/admin/webhooks/evt_9/retry", nil), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusFound, resp.StatusCode)
		assert.Equal(t, "/admin/webhooks", resp.Header.Get("Location"))
	}
}

func TestHandleListEvents(t *testing.T) {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	store := billing.NewEventStore(db, 0)
	ctx := context.Background()

	_, err = store.RecordReceived(ctx, models.WebhookProviderStripe, "evt_ok", "charge.refunded", []byte(`{"id":"evt_ok"}`))
	require.NoError(t, err)
	require.NoError(t, store.MarkProcessed(ctx, "evt_ok"))
	_, err = store.RecordReceived(ctx, models.WebhookProviderStripe, "evt_bad", "invoice.paid", []byte(`{"id":"evt_bad"}`))
	require.NoError(t, err)
	require.NoError(t, store.MarkFailed(ctx, "evt_bad", errors.New("boom")))

	app := newWebhookApp(&fakeWebhookService{events: store})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin/webhooks?status=failed", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body struct {
		Events []struct {
			EventID    string `json:"event_id"`
			Status     string `json:"status"`
			Error      string `json:"error"`
			HasPayload bool   `json:"has_payload"`
			RetryURL   string `json:"retry_url"`
			Payload    string `json:"payload"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	require.Len(t, body.Events, 1)
	assert.Equal(t, "evt_bad", body.Events[0].EventID)
	assert.Equal(t, "boom", body.Events[0].Error)
	assert.True(t, body.Events[0].HasPayload)
	assert.Equal(t, "/admin/webhooks/evt_bad/retry", body.Events[0].RetryURL)
	assert.Empty(t, body.Events[0].Payload)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/admin/webhooks", nil), -1)
	require.NoError(t, err)
	assert.Len(t, decodeBody(t, resp)["events"], 2)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/admin/webhooks?status=bogus", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
