// Package sqlite adapts the gateway database to the application ports.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fr0stylo/integrationgw/internal/app/domain"
	"github.com/fr0stylo/integrationgw/internal/app/ports"
	"github.com/fr0stylo/integrationgw/internal/db/queries"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const defaultListLimit = 100

type eventDatabase interface {
	InsertWebhookEvent(ctx context.Context, arg queries.InsertWebhookEventParams) error
	UpdateWebhookEventProcessing(ctx context.Context, arg queries.UpdateWebhookEventProcessingParams) (int64, error)
	GetWebhookEvent(ctx context.Context, id string) (queries.WebhookEvent, error)
	ListWebhookEvents(ctx context.Context, arg queries.ListWebhookEventsParams) ([]queries.WebhookEvent, error)
	ListRetryableWebhookEvents(ctx context.Context, arg queries.ListRetryableWebhookEventsParams) ([]queries.WebhookEvent, error)
}

// EventStore persists webhook events in sqlite.
type EventStore struct {
	db  eventDatabase
	now func() time.Time
}

// NewEventStore constructs an EventStore over database.
func NewEventStore(database eventDatabase) *EventStore {
	return &EventStore{db: database, now: time.Now}
}

// InsertEvent writes a new event.
func (s *EventStore) InsertEvent(ctx context.Context, event domain.WebhookEvent) error {
	logJSON, err := encodeLog(event.ProcessingLog)
	if err != nil {
		return err
	}
	return s.db.InsertWebhookEvent(ctx, queries.InsertWebhookEventParams{
		ID:            event.ID,
		EventType:     event.Type,
		Source:        event.Source,
		ReceivedAt:    formatTime(event.Timestamp),
		Payload:       event.Payload,
		Signature:     event.Signature,
		Processed:     boolToInt(event.Processed),
		RetryCount:    int64(event.RetryCount),
		ProcessingLog: logJSON,
		Verification:  event.Verification,
		DeliveryID:    event.DeliveryID,
		UpdatedAt:     formatTime(s.now()),
	})
}

// UpdateEvent stores the processing state of an existing event.
func (s *EventStore) UpdateEvent(ctx context.Context, event domain.WebhookEvent) error {
	logJSON, err := encodeLog(event.ProcessingLog)
	if err != nil {
		return err
	}
	affected, err := s.db.UpdateWebhookEventProcessing(ctx, queries.UpdateWebhookEventProcessingParams{
		Processed:     boolToInt(event.Processed),
		RetryCount:    int64(event.RetryCount),
		ProcessingLog: logJSON,
		UpdatedAt:     formatTime(s.now()),
		ID:            event.ID,
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrEventNotFound, event.ID)
	}
	return nil
}

// GetEvent returns one event or domain.ErrEventNotFound.
func (s *EventStore) GetEvent(ctx context.Context, id string) (domain.WebhookEvent, error) {
	row, err := s.db.GetWebhookEvent(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WebhookEvent{}, fmt.Errorf("%w: %s", domain.ErrEventNotFound, id)
		}
		return domain.WebhookEvent{}, err
	}
	return toDomainEvent(row)
}

// ListEvents returns events newest first.
func (s *EventStore) ListEvents(ctx context.Context, filter ports.EventFilter) ([]domain.WebhookEvent, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.ListWebhookEvents(ctx, queries.ListWebhookEventsParams{
		Source:          filter.Source,
		EventType:       filter.Type,
		UnprocessedOnly: boolToInt(filter.UnprocessedOnly),
		PageSize:        int64(limit),
	})
	if err != nil {
		return nil, err
	}
	return toDomainEvents(rows)
}

// ListRetryableEvents returns unprocessed, verified events below maxRetries, oldest first.
func (s *EventStore) ListRetryableEvents(ctx context.Context, maxRetries, limit int) ([]domain.WebhookEvent, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.ListRetryableWebhookEvents(ctx, queries.ListRetryableWebhookEventsParams{
		MaxRetries: int64(maxRetries),
		PageSize:   int64(limit),
	})
	if err != nil {
		return nil, err
	}
	return toDomainEvents(rows)
}

func toDomainEvents(rows []queries.WebhookEvent) ([]domain.WebhookEvent, error) {
	out := make([]domain.WebhookEvent, 0, len(rows))
	for _, row := range rows {
		event, err := toDomainEvent(row)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, nil
}

func toDomainEvent(row queries.WebhookEvent) (domain.WebhookEvent, error) {
	log := []string{}
	if row.ProcessingLog != "" {
		if err := json.Unmarshal([]byte(row.ProcessingLog), &log); err != nil {
			return domain.WebhookEvent{}, fmt.Errorf("decode processing log of %s: %w", row.ID, err)
		}
	}
	ts, err := time.Parse(timeLayout, row.ReceivedAt)
	if err != nil {
		return domain.WebhookEvent{}, fmt.Errorf("decode timestamp of %s: %w", row.ID, err)
	}
	return domain.WebhookEvent{
		ID:            row.ID,
		Type:          row.EventType,
		Source:        row.Source,
		Timestamp:     ts,
		Payload:       row.Payload,
		Signature:     row.Signature,
		Processed:     row.Processed != 0,
		RetryCount:    int(row.RetryCount),
		ProcessingLog: log,
		Verification:  row.Verification,
		DeliveryID:    row.DeliveryID,
	}, nil
}

func encodeLog(entries []string) (string, error) {
	if entries == nil {
		entries = []string{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("encode processing log: %w", err)
	}
	return string(raw), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func boolToInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

var _ ports.EventStore = (*EventStore)(nil)
