package models

import "time"

const (
	SubmissionStatusPending        = "pending"
	SubmissionStatusPendingPayment = "pending_payment"
	SubmissionStatusPaid           = "paid"
	SubmissionStatusApproved       = "approved"
	SubmissionStatusRejected       = "rejected"
	SubmissionStatusFailed         = "failed"
	SubmissionStatusRefunded       = "refunded"
)

// Submission is a paid listing request. It is created by the checkout flow
// and moved through its payment states by webhook handlers only.
type Submission struct {
	ID          string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	Status      string    `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	PaymentID   *string   `gorm:"type:varchar(191);index" json:"payment_id,omitempty"`
	Amount      *int64    `json:"amount,omitempty"`
	Email       string    `gorm:"type:varchar(200);not null" json:"email"`
	ToolName    string    `gorm:"type:varchar(200);not null" json:"tool_name"`
	ToolURL     string    `gorm:"type:varchar(500)" json:"tool_url"`
	Description string    `gorm:"type:text" json:"description"`
	Tier        string    `gorm:"type:varchar(50);not null;default:'standard'" json:"tier"`
	ToolID      *string   `gorm:"type:varchar(64);index" json:"tool_id,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsAwaitingPayment reports whether the submission may still be failed by
// an expired, declined or canceled payment.
func (s *Submission) IsAwaitingPayment() bool {
	return s.Status == SubmissionStatusPending || s.Status == SubmissionStatusPendingPayment
}

// AwaitingPaymentStatuses lists the statuses IsAwaitingPayment accepts.
func AwaitingPaymentStatuses() []string {
	return []string{SubmissionStatusPending, SubmissionStatusPendingPayment}
}
