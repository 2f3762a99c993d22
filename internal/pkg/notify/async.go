package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

const defaultSendTimeout = 10 * time.Second

// Async runs notifications detached from the caller. Each send gets its own
// timeout; results only reach the log and the Errors channel.
type Async struct {
	notifier Notifier
	timeout  time.Duration
	errs     chan error
	wg       sync.WaitGroup
}

func NewAsync(n Notifier, timeout time.Duration) *Async {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Async{
		notifier: n,
		timeout:  timeout,
		errs:     make(chan error, 64),
	}
}

// Errors exposes failed sends for observability. The channel is buffered and
// drops errors when nobody reads it.
func (a *Async) Errors() <-chan error {
	return a.errs
}

// Wait blocks until every started send has returned.
func (a *Async) Wait() {
	a.wg.Wait()
}

func (a *Async) Approval(n ApprovalNotice) {
	a.run("approval:"+n.SubmissionID, func(ctx context.Context) error {
		return a.notifier.SendApprovalNotification(ctx, n)
	})
}

func (a *Async) Failure(n FailureNotice) {
	a.run("failure:"+n.SubmissionID, func(ctx context.Context) error {
		return a.notifier.SendFailureNotification(ctx, n)
	})
}

func (a *Async) OperatorAlert(message string) {
	a.run("alert", func(ctx context.Context) error {
		return a.notifier.SendOperatorAlert(ctx, message)
	})
}

func (a *Async) run(name string, fn func(ctx context.Context) error) {
	if a == nil || a.notifier == nil {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		err := safeCall(ctx, fn)
		if err == nil {
			return
		}
		err = fmt.Errorf("notify %s: %w", name, err)
		log.Errorf("[Notify] %v", err)
		select {
		case a.errs <- err:
		default:
		}
	}()
}

func safeCall(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
