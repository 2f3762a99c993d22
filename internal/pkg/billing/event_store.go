package billing

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/toolhub/app/models"
)

const maxStoredErrorLength = 4000

// EventStore is the write-ahead log of verified deliveries.
type EventStore interface {
	// RecordReceived inserts the event or, for a known event id, resets it
	// to received and clears the previous error.
	RecordReceived(ctx context.Context, provider, eventID, eventType string, raw []byte) (*models.WebhookEvent, error)
	MarkProcessed(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID string, processingErr error) error
	// GetByEventID returns (nil, nil) when the event is unknown.
	GetByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error)
	ListRecent(ctx context.Context, status string, limit int) ([]models.WebhookEvent, error)
}

type gormEventStore struct {
	db              *gorm.DB
	maxPayloadBytes int
}

// NewEventStore creates an event store backed by GORM. Payloads larger than
// maxPayloadBytes are not stored; zero stores everything.
func NewEventStore(db *gorm.DB, maxPayloadBytes int) EventStore {
	return &gormEventStore{db: db, maxPayloadBytes: maxPayloadBytes}
}

func (s *gormEventStore) RecordReceived(ctx context.Context, provider, eventID, eventType string, raw []byte) (*models.WebhookEvent, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	eventID = strings.TrimSpace(eventID)
	if provider == "" || eventID == "" {
		return nil, errors.New("provider and event id are required")
	}

	payload := s.storablePayload(eventID, raw)
	event := &models.WebhookEvent{
		Provider:  provider,
		EventID:   eventID,
		EventType: strings.TrimSpace(eventType),
		Status:    models.WebhookStatusReceived,
		Payload:   payload,
		Attempts:  1,
	}

	updates := map[string]interface{}{
		"status":        models.WebhookStatusReceived,
		"error_message": nil,
		"processed_at":  nil,
		"event_type":    event.EventType,
		"attempts":      gorm.Expr("attempts + 1"),
		"updated_at":    time.Now().UTC(),
	}
	// Never drop a stored payload just because this copy was too large.
	if payload != nil {
		updates["payload"] = *payload
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoUpdates: clause.Assignments(updates),
	}).Create(event).Error
	if err != nil {
		return nil, err
	}

	var stored models.WebhookEvent
	if err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *gormEventStore) MarkProcessed(ctx context.Context, eventID string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"status":        models.WebhookStatusProcessed,
			"error_message": nil,
			"processed_at":  &now,
		}).Error
}

func (s *gormEventStore) MarkFailed(ctx context.Context, eventID string, processingErr error) error {
	msg := "unknown error"
	if processingErr != nil {
		msg = processingErr.Error()
	}
	msg = truncateUTF8(msg, maxStoredErrorLength)
	return s.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"status":        models.WebhookStatusFailed,
			"error_message": msg,
			"processed_at":  nil,
		}).Error
}

func (s *gormEventStore) GetByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := s.db.WithContext(ctx).Where("event_id = ?", strings.TrimSpace(eventID)).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *gormEventStore) ListRecent(ctx context.Context, status string, limit int) ([]models.WebhookEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Order("updated_at DESC").Order("id DESC").Limit(limit)
	if status = strings.TrimSpace(status); status != "" {
		q = q.Where("status = ?", status)
	}
	var events []models.WebhookEvent
	err := q.Find(&events).Error
	return events, err
}

func (s *gormEventStore) storablePayload(eventID string, raw []byte) *string {
	if len(raw) == 0 {
		return nil
	}
	if s.maxPayloadBytes > 0 && len(raw) > s.maxPayloadBytes {
		log.Warnf("[Billing] event %s payload is %d bytes, not storing a replay copy", eventID, len(raw))
		return nil
	}
	p := string(raw)
	return &p
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
