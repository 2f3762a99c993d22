package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/gofiber/fiber/v2/log"
)

// ApprovalNotice tells a submitter their listing is live.
type ApprovalNotice struct {
	Email        string
	ToolName     string
	ToolID       string
	SubmissionID string
}

// FailureNotice tells a submitter their payment did not go through.
type FailureNotice struct {
	Email        string
	ToolName     string
	SubmissionID string
	Reason       string
}

// Notifier is the outbound notification channel. Every call is best effort.
type Notifier interface {
	SendApprovalNotification(ctx context.Context, n ApprovalNotice) error
	SendFailureNotification(ctx context.Context, n FailureNotice) error
	SendOperatorAlert(ctx context.Context, message string) error
}

// Sender delivers a single email.
type Sender interface {
	Send(to, subject, body string) error
}

// MailNotifier renders notices as short HTML emails.
type MailNotifier struct {
	sender        Sender
	operatorEmail string
	siteURL       string
}

func NewMailNotifier(sender Sender, operatorEmail, siteURL string) *MailNotifier {
	return &MailNotifier{
		sender:        sender,
		operatorEmail: strings.TrimSpace(operatorEmail),
		siteURL:       strings.TrimRight(siteURL, "/"),
	}
}

func (m *MailNotifier) SendApprovalNotification(ctx context.Context, n ApprovalNotice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject := fmt.Sprintf("%s is now listed", n.ToolName)
	body := fmt.Sprintf("<p>Thanks for your payment. <strong>%s</strong> has been approved and is now live.</p>",
		html.EscapeString(n.ToolName))
	if m.siteURL != "" && n.ToolID != "" {
		body += fmt.Sprintf(`<p><a href="%s/tools/%s">View your listing</a></p>`, m.siteURL, html.EscapeString(n.ToolID))
	}
	return m.sender.Send(n.Email, subject, body)
}

func (m *MailNotifier) SendFailureNotification(ctx context.Context, n FailureNotice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject := fmt.Sprintf("Payment for %s was not completed", n.ToolName)
	body := fmt.Sprintf("<p>We could not complete the payment for <strong>%s</strong> (%s).</p><p>You can restart the checkout at any time.</p>",
		html.EscapeString(n.ToolName), html.EscapeString(n.Reason))
	return m.sender.Send(n.Email, subject, body)
}

func (m *MailNotifier) SendOperatorAlert(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.operatorEmail == "" {
		log.Warnf("[Notify] operator alert (no OPERATOR_EMAIL configured): %s", message)
		return nil
	}
	return m.sender.Send(m.operatorEmail, "[toolhub] payment alert", "<pre>"+html.EscapeString(message)+"</pre>")
}

// LogNotifier only writes to the log. Used when SMTP is not configured.
type LogNotifier struct{}

func (LogNotifier) SendApprovalNotification(_ context.Context, n ApprovalNotice) error {
	log.Infof("[Notify] approval for submission %s -> %s", n.SubmissionID, n.Email)
	return nil
}

func (LogNotifier) SendFailureNotification(_ context.Context, n FailureNotice) error {
	log.Infof("[Notify] payment failure for submission %s -> %s (%s)", n.SubmissionID, n.Email, n.Reason)
	return nil
}

func (LogNotifier) SendOperatorAlert(_ context.Context, message string) error {
	log.Warnf("[Notify] operator alert: %s", message)
	return nil
}

var (
	_ Notifier = (*MailNotifier)(nil)
	_ Notifier = LogNotifier{}
)
