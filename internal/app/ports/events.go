package ports

import (
	"context"

	"github.com/fr0stylo/integrationgw/internal/app/domain"
)

// EventStore persists webhook events. GetEvent returns
// domain.ErrEventNotFound for unknown ids.
type EventStore interface {
	InsertEvent(ctx context.Context, event domain.WebhookEvent) error
	UpdateEvent(ctx context.Context, event domain.WebhookEvent) error
	GetEvent(ctx context.Context, id string) (domain.WebhookEvent, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]domain.WebhookEvent, error)
	ListRetryableEvents(ctx context.Context, maxRetries, limit int) ([]domain.WebhookEvent, error)
}

// EventFilter narrows ListEvents.
type EventFilter struct {
	Source          string
	Type            string
	UnprocessedOnly bool
	Limit           int
}
