package repository

import (
	"errors"
	"regexp"
	"strings"

	"github.com/ManuelReschke/toolhub/app/models"
	"github.com/ManuelReschke/toolhub/internal/pkg/shortener"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var slugInvalidChars = regexp.MustCompile(`[^a-z0-9]+`)

// toolRepository implements the ToolRepository interface
type toolRepository struct {
	db *gorm.DB
}

// NewToolRepository creates a new tool repository instance. Pass a
// transaction handle to make listing creation part of a larger unit of work.
func NewToolRepository(db *gorm.DB) ToolRepository {
	return &toolRepository{db: db}
}

// CreateFromSubmission publishes the listing described by an approved
// submission. A submission maps to at most one tool; calling it again
// returns the existing listing.
func (r *toolRepository) CreateFromSubmission(sub *models.Submission) (*models.Tool, error) {
	if sub == nil || strings.TrimSpace(sub.ID) == "" {
		return nil, errors.New("submission is required")
	}
	if existing, err := r.GetBySubmissionID(sub.ID); err == nil {
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	suffix, err := shortener.SlugSuffix(6)
	if err != nil {
		return nil, err
	}
	submissionID := sub.ID
	tool := &models.Tool{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(sub.ToolName),
		Slug:         Slugify(sub.ToolName) + "-" + suffix,
		URL:          strings.TrimSpace(sub.ToolURL),
		Description:  sub.Description,
		Tier:         sub.Tier,
		SubmissionID: &submissionID,
	}
	if tool.Tier == "" {
		tool.Tier = "standard"
	}
	if err := r.db.Create(tool).Error; err != nil {
		return nil, err
	}
	return tool, nil
}

// GetByID retrieves a tool by its ID
func (r *toolRepository) GetByID(id string) (*models.Tool, error) {
	var tool models.Tool
	if err := r.db.Where("id = ?", id).First(&tool).Error; err != nil {
		return nil, err
	}
	return &tool, nil
}

// GetBySubmissionID retrieves the listing created for a submission
func (r *toolRepository) GetBySubmissionID(submissionID string) (*models.Tool, error) {
	var tool models.Tool
	if err := r.db.Where("submission_id = ?", submissionID).First(&tool).Error; err != nil {
		return nil, err
	}
	return &tool, nil
}

// SetFeatured toggles the spotlight flag. Unknown tools are ignored: the
// sponsor may reference a listing that was removed in the meantime.
func (r *toolRepository) SetFeatured(id string, featured bool) error {
	return r.db.Model(&models.Tool{}).Where("id = ?", id).Update("is_featured", featured).Error
}

// Slugify lowercases name and joins alphanumeric runs with dashes.
func Slugify(name string) string {
	s := slugInvalidChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "tool"
	}
	if len(s) > 200 {
		s = strings.TrimRight(s[:200], "-")
	}
	return s
}
