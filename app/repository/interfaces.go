package repository

import (
	"github.com/ManuelReschke/toolhub/app/models"
)

// ToolRepository defines the listing operations the payment engine relies on.
type ToolRepository interface {
	CreateFromSubmission(sub *models.Submission) (*models.Tool, error)
	GetByID(id string) (*models.Tool, error)
	GetBySubmissionID(submissionID string) (*models.Tool, error)
	SetFeatured(id string, featured bool) error
}
