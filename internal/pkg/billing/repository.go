package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/toolhub/app/models"
	"github.com/ManuelReschke/toolhub/app/repository"
)

var ErrSubmissionNotFound = errors.New("submission not found")

// SubscriptionState is the provider view of a subscription at ObservedAt.
type SubscriptionState struct {
	Status      string
	PeriodStart *time.Time
	PeriodEnd   *time.Time
	ObservedAt  time.Time
}

// SponsorshipUpsert carries every field handlers derive for a sponsorship.
// Empty descriptive fields leave stored values untouched. Without a
// Placement the row is only updated, never created.
type SponsorshipUpsert struct {
	SubscriptionID string
	CustomerID     string
	Placement      string
	ToolID         string
	SponsorName    string
	SponsorEmail   string
	State          *SubscriptionState
}

// Repository provides the DB operations used by effect handlers. All
// methods of a repository returned inside Transaction run on that
// transaction.
type Repository interface {
	WithContext(ctx context.Context) Repository
	Transaction(fn func(repo Repository) error) error

	GetSubmission(id string) (*models.Submission, error)
	// ApproveSubmission flips the status to approved unless it already is.
	// It reports whether this call performed the transition.
	ApproveSubmission(id, paymentID string, amount *int64) (bool, error)
	AttachTool(submissionID, toolID string) error
	// FailSubmission moves a submission that is still awaiting payment to failed.
	FailSubmission(id string) (bool, error)
	RefundSubmissionByPaymentID(paymentID string) (*models.Submission, bool, error)

	CreateToolFromSubmission(sub *models.Submission) (*models.Tool, error)
	SetToolFeatured(toolID string, featured bool) error

	GetSponsorship(subscriptionID string) (*models.Sponsorship, error)
	UpsertSponsorship(in SponsorshipUpsert) (*models.Sponsorship, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) WithContext(ctx context.Context) Repository {
	return &gormRepository{db: r.db.WithContext(ctx)}
}

func (r *gormRepository) Transaction(fn func(repo Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) GetSubmission(id string) (*models.Submission, error) {
	var sub models.Submission
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", strings.TrimSpace(id)).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) ApproveSubmission(id, paymentID string, amount *int64) (bool, error) {
	updates := map[string]interface{}{
		"status": models.SubmissionStatusApproved,
		"amount": amount,
	}
	if paymentID != "" {
		updates["payment_id"] = paymentID
	}
	res := r.db.Model(&models.Submission{}).
		Where("id = ? AND status <> ?", id, models.SubmissionStatusApproved).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *gormRepository) AttachTool(submissionID, toolID string) error {
	return r.db.Model(&models.Submission{}).Where("id = ?", submissionID).Update("tool_id", toolID).Error
}

func (r *gormRepository) FailSubmission(id string) (bool, error) {
	res := r.db.Model(&models.Submission{}).
		Where("id = ? AND status IN ?", id, models.AwaitingPaymentStatuses()).
		Update("status", models.SubmissionStatusFailed)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *gormRepository) RefundSubmissionByPaymentID(paymentID string) (*models.Submission, bool, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, false, nil
	}
	var sub models.Submission
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("payment_id = ?", paymentID).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	res := r.db.Model(&models.Submission{}).
		Where("id = ? AND status <> ?", sub.ID, models.SubmissionStatusRefunded).
		Update("status", models.SubmissionStatusRefunded)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		sub.Status = models.SubmissionStatusRefunded
	}
	return &sub, res.RowsAffected == 1, nil
}

func (r *gormRepository) CreateToolFromSubmission(sub *models.Submission) (*models.Tool, error) {
	return repository.NewToolRepository(r.db).CreateFromSubmission(sub)
}

func (r *gormRepository) SetToolFeatured(toolID string, featured bool) error {
	return repository.NewToolRepository(r.db).SetFeatured(toolID, featured)
}

func (r *gormRepository) GetSponsorship(subscriptionID string) (*models.Sponsorship, error) {
	var sp models.Sponsorship
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("stripe_subscription_id = ?", strings.TrimSpace(subscriptionID)).
		First(&sp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sp, nil
}

// UpsertSponsorship inserts the row when it is missing and otherwise merges
// the update into it. State fields only move forward in provider time so
// that deliveries converge regardless of arrival order. Returns (nil, nil)
// when the row is missing and the input cannot create it.
func (r *gormRepository) UpsertSponsorship(in SponsorshipUpsert) (*models.Sponsorship, error) {
	subID := strings.TrimSpace(in.SubscriptionID)
	if subID == "" {
		return nil, errors.New("subscription id is required")
	}

	if in.Placement != "" {
		created := newSponsorship(subID, in)
		res := r.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stripe_subscription_id"}},
			DoNothing: true,
		}).Create(created)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			return r.GetSponsorship(subID)
		}
	}

	existing, err := r.GetSponsorship(subID)
	if err != nil || existing == nil {
		return nil, err
	}

	updates := sponsorshipUpdates(existing, in)
	if len(updates) == 0 {
		return existing, nil
	}
	if err := r.db.Model(&models.Sponsorship{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
		return nil, err
	}
	return r.GetSponsorship(subID)
}

func newSponsorship(subID string, in SponsorshipUpsert) *models.Sponsorship {
	sp := &models.Sponsorship{
		StripeSubscriptionID: subID,
		StripeCustomerID:     in.CustomerID,
		Status:               subscriptionStatusIncomplete,
		Placement:            in.Placement,
		SponsorName:          in.SponsorName,
		SponsorEmail:         in.SponsorEmail,
	}
	if in.ToolID != "" {
		toolID := in.ToolID
		sp.ToolID = &toolID
	}
	if in.State != nil {
		observed := in.State.ObservedAt
		sp.Status = normalizeStatus(in.State.Status)
		sp.CurrentPeriodStart = in.State.PeriodStart
		sp.CurrentPeriodEnd = in.State.PeriodEnd
		sp.StateSyncedAt = &observed
	}
	return sp
}

// sponsorshipUpdates computes the same fields newSponsorship would set,
// restricted to what changes the stored row.
func sponsorshipUpdates(existing *models.Sponsorship, in SponsorshipUpsert) map[string]interface{} {
	updates := map[string]interface{}{}
	if in.CustomerID != "" && in.CustomerID != existing.StripeCustomerID {
		updates["stripe_customer_id"] = in.CustomerID
	}
	if in.Placement != "" && in.Placement != existing.Placement {
		updates["placement"] = in.Placement
	}
	if in.ToolID != "" && (existing.ToolID == nil || *existing.ToolID != in.ToolID) {
		updates["tool_id"] = in.ToolID
	}
	if in.SponsorName != "" && in.SponsorName != existing.SponsorName {
		updates["sponsor_name"] = in.SponsorName
	}
	if in.SponsorEmail != "" && in.SponsorEmail != existing.SponsorEmail {
		updates["sponsor_email"] = in.SponsorEmail
	}

	if st := in.State; st != nil {
		if existing.StateSyncedAt == nil || !st.ObservedAt.Before(*existing.StateSyncedAt) {
			updates["status"] = normalizeStatus(st.Status)
			if st.PeriodStart != nil {
				updates["current_period_start"] = st.PeriodStart
			}
			if st.PeriodEnd != nil {
				updates["current_period_end"] = st.PeriodEnd
			}
			updates["state_synced_at"] = st.ObservedAt
		}
	}
	return updates
}
