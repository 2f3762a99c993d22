package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v81"

	"github.com/ManuelReschke/toolhub/app/models"
	"github.com/ManuelReschke/toolhub/internal/pkg/notify"
)

// Handler outcomes, recorded in logs and returned to operators.
const (
	OutcomeIgnored        = "ignored"
	OutcomeApplied        = "applied"
	OutcomeAlreadyApplied = "already_applied"
	OutcomeEntityNotFound = "entity_not_found"
	OutcomeSkipped        = "skipped"
)

// HandlerResult is what a handler decided. Notifications are only sent after
// the transaction committed.
type HandlerResult struct {
	Outcome   string
	approvals []notify.ApprovalNotice
	failures  []notify.FailureNotice
	alerts    []string
}

func (r *HandlerResult) merge(other HandlerResult) {
	switch {
	case r.Outcome == "" || r.Outcome == OutcomeIgnored:
		r.Outcome = other.Outcome
	case other.Outcome == OutcomeApplied:
		r.Outcome = OutcomeApplied
	}
	r.approvals = append(r.approvals, other.approvals...)
	r.failures = append(r.failures, other.failures...)
	r.alerts = append(r.alerts, other.alerts...)
}

// prefetched holds provider data loaded before the transaction opens.
type prefetched struct {
	subscription    *SubscriptionState
	subscriptionErr error
}

type handlerContext struct {
	repo    Repository
	evt     *VerifiedEvent
	payload Payload
	pre     prefetched
}

type handlerFunc func(hc handlerContext) (HandlerResult, error)

func typed[P Payload](fn func(hc handlerContext, p P) (HandlerResult, error)) handlerFunc {
	return func(hc handlerContext) (HandlerResult, error) {
		p, ok := hc.payload.(P)
		if !ok {
			return HandlerResult{}, fmt.Errorf("unexpected payload %T for %s", hc.payload, hc.evt.Type)
		}
		return fn(hc, p)
	}
}

var handlers = map[string]handlerFunc{
	EventCheckoutCompleted:     typed(handleCheckoutCompleted),
	EventCheckoutExpired:       typed(handleCheckoutExpired),
	EventPaymentFailed:         typed(handlePaymentIntentFailed),
	EventPaymentCanceled:       typed(handlePaymentIntentFailed),
	EventChargeRefunded:        typed(handleChargeRefunded),
	EventSubscriptionCreated:   typed(handleSubscriptionChanged),
	EventSubscriptionUpdated:   typed(handleSubscriptionChanged),
	EventSubscriptionDeleted:   typed(handleSubscriptionChanged),
	EventInvoicePaymentSuccess: typed(handleInvoicePaid),
	EventInvoicePaymentFailed:  typed(handleInvoiceFailed),
}

// HasHandler reports whether events of this type cause side effects.
func HasHandler(eventType string) bool {
	_, ok := handlers[eventType]
	return ok
}

// handleCheckoutCompleted evaluates the submission and the sponsorship branch
// independently; each has its own precondition.
func handleCheckoutCompleted(hc handlerContext, p *CheckoutSessionPayload) (HandlerResult, error) {
	result := HandlerResult{Outcome: OutcomeIgnored}
	if wantsSubmission(p.Metadata) {
		r, err := approveSubmission(hc, p)
		if err != nil {
			return HandlerResult{}, err
		}
		result.merge(r)
	}
	if wantsSponsorship(p.Metadata) {
		r, err := syncCheckoutSponsorship(hc, p)
		if err != nil {
			return HandlerResult{}, err
		}
		result.merge(r)
	}
	return result, nil
}

func approveSubmission(hc handlerContext, p *CheckoutSessionPayload) (HandlerResult, error) {
	ref, err := submissionRef(p.Metadata)
	if err != nil {
		return HandlerResult{}, err
	}
	sub, err := hc.repo.GetSubmission(ref.SubmissionID)
	if err != nil {
		// A paid checkout without its submission needs an operator.
		return HandlerResult{}, fmt.Errorf("approve submission %s: %w", ref.SubmissionID, err)
	}

	switch sub.Status {
	case models.SubmissionStatusApproved:
		return HandlerResult{Outcome: OutcomeAlreadyApplied}, nil
	case models.SubmissionStatusRefunded, models.SubmissionStatusRejected:
		log.Warnf("[Billing] checkout %s completed for submission %s in status %s, not approving", p.ID, sub.ID, sub.Status)
		return HandlerResult{
			Outcome: OutcomeSkipped,
			alerts:  []string{fmt.Sprintf("Checkout %s completed for %s submission %s", p.ID, sub.Status, sub.ID)},
		}, nil
	}

	paymentID := p.PaymentReference()
	won, err := hc.repo.ApproveSubmission(sub.ID, paymentID, p.AmountTotal)
	if err != nil {
		return HandlerResult{}, fmt.Errorf("approve submission %s: %w", sub.ID, err)
	}
	if !won {
		return HandlerResult{Outcome: OutcomeAlreadyApplied}, nil
	}
	sub.Status = models.SubmissionStatusApproved
	sub.PaymentID = &paymentID
	sub.Amount = p.AmountTotal

	tool, err := hc.repo.CreateToolFromSubmission(sub)
	if err != nil {
		return HandlerResult{}, fmt.Errorf("create listing for submission %s: %w", sub.ID, err)
	}
	if err := hc.repo.AttachTool(sub.ID, tool.ID); err != nil {
		return HandlerResult{}, fmt.Errorf("attach listing to submission %s: %w", sub.ID, err)
	}

	result := HandlerResult{Outcome: OutcomeApplied}
	email := sub.Email
	if email == "" {
		email = p.Email()
	}
	if email != "" {
		result.approvals = append(result.approvals, notify.ApprovalNotice{
			Email:        email,
			ToolName:     sub.ToolName,
			ToolID:       tool.ID,
			SubmissionID: sub.ID,
		})
	}
	log.Infof("[Billing] submission %s approved, listing %s created", sub.ID, tool.ID)
	return result, nil
}

func syncCheckoutSponsorship(hc handlerContext, p *CheckoutSessionPayload) (HandlerResult, error) {
	ref, err := sponsorshipRef(p.Metadata)
	if err != nil {
		return HandlerResult{}, err
	}
	subID := p.Subscription.String()
	if subID == "" {
		log.Warnf("[Billing] sponsorship checkout %s has no subscription, skipping", p.ID)
		return HandlerResult{Outcome: OutcomeSkipped}, nil
	}

	// Subscription events seen before this checkout had no row to land in,
	// so only the provider's current state is safe to store. Failing keeps
	// the event retryable.
	if hc.pre.subscriptionErr != nil {
		return HandlerResult{}, fmt.Errorf("sponsorship checkout %s: %w", p.ID, hc.pre.subscriptionErr)
	}
	state := hc.pre.subscription
	if state == nil {
		return HandlerResult{}, fmt.Errorf("sponsorship checkout %s: subscription %s was not loaded", p.ID, subID)
	}

	in := SponsorshipUpsert{
		SubscriptionID: subID,
		CustomerID:     p.Customer.String(),
		Placement:      ref.Placement,
		ToolID:         ref.ToolID,
		SponsorName:    ref.SponsorName,
		SponsorEmail:   ref.SponsorEmail,
		State:          state,
	}
	if in.SponsorEmail == "" {
		in.SponsorEmail = p.Email()
	}
	if in.SponsorName == "" && p.CustomerDetails != nil {
		in.SponsorName = p.CustomerDetails.Name
	}
	return upsertSponsorship(hc.repo, in)
}

func handleCheckoutExpired(hc handlerContext, p *CheckoutSessionPayload) (HandlerResult, error) {
	if !wantsSubmission(p.Metadata) {
		return HandlerResult{Outcome: OutcomeIgnored}, nil
	}
	ref, err := submissionRef(p.Metadata)
	if err != nil {
		return HandlerResult{}, err
	}
	result, sub, err := failSubmission(hc.repo, ref.SubmissionID)
	if err != nil || result.Outcome != OutcomeApplied {
		return result, err
	}

	email := p.Email()
	if email == "" {
		email = sub.Email
	}
	if email != "" {
		result.failures = append(result.failures, notify.FailureNotice{
			Email:        email,
			ToolName:     sub.ToolName,
			SubmissionID: sub.ID,
			Reason:       "checkout expired",
		})
	}
	return result, nil
}

// handlePaymentIntentFailed covers declined and canceled payments. The
// submission is found through the intent metadata, not the payment id.
func handlePaymentIntentFailed(hc handlerContext, p *PaymentIntentPayload) (HandlerResult, error) {
	if p.Metadata.Get("submissionId", "submission_id") == "" {
		return HandlerResult{Outcome: OutcomeIgnored}, nil
	}
	ref, err := submissionRef(p.Metadata)
	if err != nil {
		return HandlerResult{}, err
	}
	result, _, err := failSubmission(hc.repo, ref.SubmissionID)
	if err == nil && result.Outcome == OutcomeApplied {
		log.Infof("[Billing] submission %s failed: %s", ref.SubmissionID, p.FailureReason())
	}
	return result, err
}

func failSubmission(repo Repository, submissionID string) (HandlerResult, *models.Submission, error) {
	sub, err := repo.GetSubmission(submissionID)
	if errors.Is(err, ErrSubmissionNotFound) {
		log.Warnf("[Billing] submission %s not found, nothing to fail", submissionID)
		return HandlerResult{Outcome: OutcomeEntityNotFound}, nil, nil
	}
	if err != nil {
		return HandlerResult{}, nil, err
	}
	if !sub.IsAwaitingPayment() {
		return HandlerResult{Outcome: OutcomeSkipped}, sub, nil
	}
	ok, err := repo.FailSubmission(sub.ID)
	if err != nil {
		return HandlerResult{}, nil, fmt.Errorf("fail submission %s: %w", sub.ID, err)
	}
	if !ok {
		return HandlerResult{Outcome: OutcomeAlreadyApplied}, sub, nil
	}
	sub.Status = models.SubmissionStatusFailed
	return HandlerResult{Outcome: OutcomeApplied}, sub, nil
}

func handleChargeRefunded(hc handlerContext, p *ChargePayload) (HandlerResult, error) {
	paymentID := p.PaymentIntent.String()
	if paymentID == "" {
		return HandlerResult{Outcome: OutcomeIgnored}, nil
	}
	sub, changed, err := hc.repo.RefundSubmissionByPaymentID(paymentID)
	if err != nil {
		return HandlerResult{}, fmt.Errorf("refund payment %s: %w", paymentID, err)
	}
	switch {
	case sub == nil:
		return HandlerResult{Outcome: OutcomeEntityNotFound}, nil
	case !changed:
		return HandlerResult{Outcome: OutcomeAlreadyApplied}, nil
	}
	log.Infof("[Billing] submission %s refunded (charge %s)", sub.ID, p.ID)
	return HandlerResult{Outcome: OutcomeApplied}, nil
}

// handleSubscriptionChanged syncs created/updated/deleted subscriptions. A
// row is only created when the subscription itself carries sponsorship
// metadata; otherwise unknown subscriptions are ignored.
func handleSubscriptionChanged(hc handlerContext, p *SubscriptionPayload) (HandlerResult, error) {
	start, end := p.Period()
	in := SponsorshipUpsert{
		SubscriptionID: p.ID,
		CustomerID:     p.Customer.String(),
		State: &SubscriptionState{
			Status:      p.Status,
			PeriodStart: start,
			PeriodEnd:   end,
			ObservedAt:  observedAt(hc.evt),
		},
	}
	if wantsSponsorship(p.Metadata) {
		if ref, err := sponsorshipRef(p.Metadata); err == nil {
			in.Placement = ref.Placement
			in.ToolID = ref.ToolID
			in.SponsorName = ref.SponsorName
			in.SponsorEmail = ref.SponsorEmail
		} else {
			log.Warnf("[Billing] subscription %s: %v", p.ID, err)
		}
	}
	return upsertSponsorship(hc.repo, in)
}

// handleInvoicePaid trusts the re-fetched subscription, not the invoice.
func handleInvoicePaid(hc handlerContext, p *InvoicePayload) (HandlerResult, error) {
	subID := p.SubscriptionID()
	if subID == "" {
		return HandlerResult{Outcome: OutcomeIgnored}, nil
	}
	if hc.pre.subscriptionErr != nil {
		return HandlerResult{}, hc.pre.subscriptionErr
	}
	if hc.pre.subscription == nil {
		return HandlerResult{}, fmt.Errorf("subscription %s was not loaded", subID)
	}
	return upsertSponsorship(hc.repo, SponsorshipUpsert{
		SubscriptionID: subID,
		State:          hc.pre.subscription,
	})
}

// handleInvoiceFailed always alerts, whether or not the subscription belongs
// to a sponsorship.
func handleInvoiceFailed(hc handlerContext, p *InvoicePayload) (HandlerResult, error) {
	subID := p.SubscriptionID()
	alert := fmt.Sprintf("Invoice %s payment failed (subscription %s, attempt %d, amount due %d)",
		p.ID, subID, p.AttemptCount, p.AmountDue)
	if subID == "" {
		return HandlerResult{Outcome: OutcomeIgnored, alerts: []string{alert}}, nil
	}
	result, err := upsertSponsorship(hc.repo, SponsorshipUpsert{
		SubscriptionID: subID,
		State: &SubscriptionState{
			Status:     string(stripe.SubscriptionStatusPastDue),
			ObservedAt: observedAt(hc.evt),
		},
	})
	if err != nil {
		return HandlerResult{}, err
	}
	result.alerts = append(result.alerts, alert)
	return result, nil
}

// upsertSponsorship writes the sponsorship and re-applies the spotlight flag
// from the stored row. A tool that held the spotlight before the write and
// no longer does is unfeatured.
func upsertSponsorship(repo Repository, in SponsorshipUpsert) (HandlerResult, error) {
	previous, err := repo.GetSponsorship(in.SubscriptionID)
	if err != nil {
		return HandlerResult{}, fmt.Errorf("load sponsorship %s: %w", in.SubscriptionID, err)
	}
	sp, err := repo.UpsertSponsorship(in)
	if err != nil {
		return HandlerResult{}, fmt.Errorf("upsert sponsorship %s: %w", in.SubscriptionID, err)
	}
	if sp == nil {
		return HandlerResult{Outcome: OutcomeEntityNotFound}, nil
	}

	current := spotlightTool(sp)
	if prev := spotlightTool(previous); prev != "" && prev != current {
		if err := repo.SetToolFeatured(prev, false); err != nil {
			return HandlerResult{}, fmt.Errorf("clear featured on tool %s: %w", prev, err)
		}
		log.Infof("[Billing] sponsorship %s moved off tool %s, featured=false", sp.StripeSubscriptionID, prev)
	}
	if current != "" {
		featured := wantsFeatured(sp)
		if err := repo.SetToolFeatured(current, featured); err != nil {
			return HandlerResult{}, fmt.Errorf("set featured on tool %s: %w", current, err)
		}
		log.Infof("[Billing] sponsorship %s status %s, tool %s featured=%t", sp.StripeSubscriptionID, sp.Status, current, featured)
	}
	return HandlerResult{Outcome: OutcomeApplied}, nil
}

// spotlightTool returns the tool a sponsorship row puts in the spotlight.
func spotlightTool(sp *models.Sponsorship) string {
	if sp == nil || sp.Placement != models.PlacementFeaturedSpotlight || sp.ToolID == nil {
		return ""
	}
	return *sp.ToolID
}

func observedAt(evt *VerifiedEvent) time.Time {
	if evt.Created.IsZero() {
		return time.Now().UTC()
	}
	return evt.Created
}
