package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/ManuelReschke/toolhub/internal/pkg/billing"
	"github.com/ManuelReschke/toolhub/internal/pkg/middleware"
)

func NewRetryCommand(open opener) *cli.Command {
	return &cli.Command{
		Name:      "retry",
		Usage:     "Process a webhook event again",
		ArgsUsage: "<event-id>",
		Action: func(ctx context.Context, command *cli.Command) error {
			eventID := strings.TrimSpace(command.Args().First())
			if eventID == "" {
				return cli.Exit("event id is required", 2)
			}

			svc, wait, err := open(ctx)
			if err != nil {
				return err
			}
			defer wait()

			res, err := svc.Retry(ctx, eventID)
			if errors.Is(err, billing.ErrNotRecoverable) {
				return cli.Exit(fmt.Sprintf("event %s is not recoverable: %v", eventID, err), 3)
			}
			if err != nil {
				return fmt.Errorf("retry %s: %w", eventID, err)
			}

			out := command.Root().Writer
			if res.Failed() {
				fmt.Fprintf(out, "%s (%s): %s: %v\n", res.EventID, res.EventType, res.Status, res.Err)
				return cli.Exit("retry failed", 1)
			}
			fmt.Fprintf(out, "%s (%s): %s %s\n", res.EventID, res.EventType, res.Status, res.Outcome)
			return nil
		},
	}
}

func NewEventsCommand(open opener) *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Inspect the webhook event log",
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List recent events",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only events with this status (received, processed, failed)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of events",
						Value: 50,
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					svc, wait, err := open(ctx)
					if err != nil {
						return err
					}
					defer wait()

					events, err := svc.Events().ListRecent(ctx, command.String("status"), int(command.Int("limit")))
					if err != nil {
						return fmt.Errorf("failed to list events: %w", err)
					}

					w := tabwriter.NewWriter(command.Root().Writer, 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "EVENT\tTYPE\tSTATUS\tATTEMPTS\tUPDATED\tERROR")
					for _, e := range events {
						errMsg := ""
						if e.Error != nil {
							errMsg = *e.Error
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
							e.EventID, e.EventType, e.Status, e.Attempts, e.UpdatedAt.UTC().Format(time.RFC3339), errMsg)
					}
					return w.Flush()
				},
			},
		},
	}
}

func NewHashKeyCommand() *cli.Command {
	return &cli.Command{
		Name:      "hash-key",
		Usage:     "Print the OPERATOR_API_KEY_HASH value for an operator key",
		ArgsUsage: "<key>",
		Action: func(ctx context.Context, command *cli.Command) error {
			key := strings.TrimSpace(command.Args().First())
			if len(key) < 16 {
				return cli.Exit("operator keys need at least 16 characters", 2)
			}
			hash, err := middleware.HashOperatorKey(key)
			if err != nil {
				return err
			}
			fmt.Fprintln(command.Root().Writer, hash)
			return nil
		},
	}
}
