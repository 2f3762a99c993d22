package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/ManuelReschke/toolhub/internal/pkg/billing"
	"github.com/ManuelReschke/toolhub/internal/pkg/bootstrap"
	"github.com/ManuelReschke/toolhub/internal/pkg/database"
	"github.com/ManuelReschke/toolhub/internal/pkg/env"
)

// engine is the part of the payment service the commands use.
type engine interface {
	Retry(ctx context.Context, eventID string) (billing.ProcessingResult, error)
	Events() billing.EventStore
}

// opener connects to the database and returns the engine plus a func that
// waits for pending notifications.
type opener func(ctx context.Context) (engine, func(), error)

func main() {
	if err := newRootCommand(openEngine).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand(open opener) *cli.Command {
	return &cli.Command{
		Name:                  "webhookctl",
		Usage:                 "Inspect and retry Stripe webhook events",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewRetryCommand(open),
			NewEventsCommand(open),
			NewHashKeyCommand(),
		},
	}
}

func openEngine(_ context.Context) (engine, func(), error) {
	env.SetupEnvFile()
	database.SetupDatabase()

	notifier := bootstrap.Notifier()
	svc, err := bootstrap.Service(database.GetDB(), notifier, nil)
	if err != nil {
		return nil, nil, err
	}
	return svc, notifier.Wait, nil
}
