package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
	"golang.org/x/crypto/bcrypt"

	"github.com/ManuelReschke/toolhub/app/models"
	"github.com/ManuelReschke/toolhub/internal/pkg/billing"
	"github.com/ManuelReschke/toolhub/internal/pkg/database"
)

type fakeEngine struct {
	res    billing.ProcessingResult
	err    error
	store  billing.EventStore
	gotID  string
	waited bool
}

func (f *fakeEngine) Retry(_ context.Context, eventID string) (billing.ProcessingResult, error) {
	f.gotID = eventID
	return f.res, f.err
}

func (f *fakeEngine) Events() billing.EventStore { return f.store }

func run(t *testing.T, eng *fakeEngine, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand(func(context.Context) (engine, func(), error) {
		return eng, func() { eng.waited = true }, nil
	})
	var out bytes.Buffer
	root.Writer = &out
	root.ErrWriter = &out
	root.ExitErrHandler = func(context.Context, *cli.Command, error) {}
	err := root.Run(context.Background(), append([]string{"webhookctl"}, args...))
	return out.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var ec cli.ExitCoder
	require.True(t, errors.As(err, &ec), "%v", err)
	return ec.ExitCode()
}

func TestRetryCommand(t *testing.T) {
	eng := &fakeEngine{res: billing.ProcessingResult{EventID: "evt_1", EventType: "charge.refunded", Status: models.WebhookStatusProcessed, Outcome: "applied"}}
	out, err := run(t, eng, "retry", "evt_1")
	require.NoError(t, err)
	assert.Equal(t, "evt_1", eng.gotID)
	assert.True(t, eng.waited)
	assert.Contains(t, out, "evt_1 (charge.refunded): processed applied")
}

func TestRetryCommand_Errors(t *testing.T) {
	_, err := run(t, &fakeEngine{}, "retry")
	assert.Equal(t, 2, exitCode(t, err))

	_, err = run(t, &fakeEngine{err: billing.ErrNotRecoverable}, "retry", "evt_gone")
	assert.Equal(t, 3, exitCode(t, err))

	out, err := run(t, &fakeEngine{res: billing.ProcessingResult{EventID: "evt_1", Status: models.WebhookStatusFailed, Err: errors.New("boom")}}, "retry", "evt_1")
	assert.Equal(t, 1, exitCode(t, err))
	assert.Contains(t, out, "failed: boom")
}

func TestEventsListCommand(t *testing.T) {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	store := billing.NewEventStore(db, 0)
	ctx := context.Background()

	_, err = store.RecordReceived(ctx, models.WebhookProviderStripe, "evt_ok", "charge.refunded", []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, store.MarkProcessed(ctx, "evt_ok"))
	_, err = store.RecordReceived(ctx, models.WebhookProviderStripe, "evt_bad", "invoice.paid", []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, store.MarkFailed(ctx, "evt_bad", errors.New("no such subscription")))

	out, err := run(t, &fakeEngine{store: store}, "events", "list", "--status", "failed")
	require.NoError(t, err)
	assert.Contains(t, out, "evt_bad")
	assert.Contains(t, out, "no such subscription")
	assert.NotContains(t, out, "evt_ok")

	out, err = run(t, &fakeEngine{store: store}, "events", "ls", "--limit", "1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 2)
}

func TestHashKeyCommand(t *testing.T) {
	out, err := run(t, &fakeEngine{}, "hash-key", "correct-horse-battery-staple")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(out)), []byte("correct-horse-battery-staple")))

	_, err = run(t, &fakeEngine{}, "hash-key", "short")
	assert.Equal(t, 2, exitCode(t, err))
}
