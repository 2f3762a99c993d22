package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/toolhub/app/models"
	"github.com/ManuelReschke/toolhub/internal/pkg/database"
	"github.com/ManuelReschke/toolhub/internal/pkg/notify"
)

const testWebhookSecret = "whsec_test_secret"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// fakeProvider serves events and subscriptions from maps. Missing entries
// behave like a Stripe 404.
type fakeProvider struct {
	mu            sync.Mutex
	events        map[string][]byte
	subscriptions map[string]*SubscriptionState
	eventCalls    int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		events:        map[string][]byte{},
		subscriptions: map[string]*SubscriptionState{},
	}
}

func (f *fakeProvider) FetchEvent(_ context.Context, eventID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventCalls++
	raw, ok := f.events[eventID]
	if !ok {
		return nil, fmt.Errorf("fetch event %s: resource_missing (404)", eventID)
	}
	return raw, nil
}

func (f *fakeProvider) FetchSubscription(_ context.Context, subscriptionID string) (*SubscriptionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.subscriptions[subscriptionID]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	cp := *st
	return &cp, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	approvals []notify.ApprovalNotice
	failures  []notify.FailureNotice
	alerts    []string
}

func (r *recordingNotifier) SendApprovalNotification(_ context.Context, n notify.ApprovalNotice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.approvals = append(r.approvals, n)
	return nil
}

func (r *recordingNotifier) SendFailureNotification(_ context.Context, n notify.FailureNotice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, n)
	return nil
}

func (r *recordingNotifier) SendOperatorAlert(_ context.Context, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, msg)
	return nil
}

func (r *recordingNotifier) counts() (approvals, failures, alerts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.approvals), len(r.failures), len(r.alerts)
}

type testEnv struct {
	db       *gorm.DB
	svc      *Service
	provider *fakeProvider
	notes    *recordingNotifier
	async    *notify.Async
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	provider := newFakeProvider()
	notes := &recordingNotifier{}
	async := notify.NewAsync(notes, time.Second)
	svc := NewServiceFromDB(db, provider, async, Config{
		StripeWebhookSecret:   testWebhookSecret,
		MaxStoredPayloadBytes: defaultMaxStoredPayloadBytes,
	})
	return &testEnv{db: db, svc: svc, provider: provider, notes: notes, async: async}
}

// deliver signs and receives an event, then waits for notifications.
func (e *testEnv) deliver(t *testing.T, raw []byte) ProcessingResult {
	t.Helper()
	res, err := e.svc.ReceiveWebhook(context.Background(), raw, signHeader(raw, testWebhookSecret, time.Now()), "203.0.113.7")
	require.NoError(t, err)
	e.async.Wait()
	return res
}

func (e *testEnv) createSubmission(t *testing.T, sub models.Submission) {
	t.Helper()
	require.NoError(t, e.db.Create(&sub).Error)
}

func (e *testEnv) submission(t *testing.T, id string) models.Submission {
	t.Helper()
	var sub models.Submission
	require.NoError(t, e.db.Where("id = ?", id).First(&sub).Error)
	return sub
}

func (e *testEnv) sponsorship(t *testing.T, subscriptionID string) models.Sponsorship {
	t.Helper()
	var sp models.Sponsorship
	require.NoError(t, e.db.Where("stripe_subscription_id = ?", subscriptionID).First(&sp).Error)
	return sp
}

func (e *testEnv) storedEvent(t *testing.T, eventID string) models.WebhookEvent {
	t.Helper()
	var evt models.WebhookEvent
	require.NoError(t, e.db.Where("event_id = ?", eventID).First(&evt).Error)
	return evt
}

func (e *testEnv) count(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := e.db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

type object map[string]interface{}

func eventJSON(t *testing.T, id, eventType string, created time.Time, obj object) []byte {
	t.Helper()
	raw, err := json.Marshal(object{
		"id":      id,
		"object":  "event",
		"type":    eventType,
		"created": created.Unix(),
		"data":    object{"object": obj},
	})
	require.NoError(t, err)
	return raw
}

// signHeader builds a Stripe-Signature header the same way Stripe does.
func signHeader(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.", ts)))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func submissionCheckout(sessionID, submissionID string, amount int64) object {
	return object{
		"id":             sessionID,
		"object":         "checkout.session",
		"mode":           "payment",
		"payment_status": "paid",
		"amount_total":   amount,
		"currency":       "usd",
		"payment_intent": "pi_" + sessionID,
		"customer_email": "maker@example.com",
		"metadata": object{
			"type":         "submission",
			"submissionId": submissionID,
		},
	}
}
