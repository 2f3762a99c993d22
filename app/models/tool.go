package models

import "time"

// Tool is a public directory listing. Listings are owned by the catalog;
// the payment engine only creates them from approved submissions and
// toggles IsFeatured for spotlight sponsorships.
type Tool struct {
	ID           string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name         string    `gorm:"type:varchar(200);not null" json:"name"`
	Slug         string    `gorm:"type:varchar(220);not null;uniqueIndex" json:"slug"`
	URL          string    `gorm:"type:varchar(500)" json:"url"`
	Description  string    `gorm:"type:text" json:"description"`
	Tier         string    `gorm:"type:varchar(50);not null;default:'standard'" json:"tier"`
	SubmissionID *string   `gorm:"type:varchar(64);uniqueIndex" json:"submission_id,omitempty"`
	IsFeatured   bool      `gorm:"default:false;index" json:"is_featured"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
