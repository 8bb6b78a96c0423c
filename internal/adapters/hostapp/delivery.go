package hostapp

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/fr0stylo/integrationgw/internal/app/ports"
	"github.com/fr0stylo/integrationgw/pkg/eventpublisher"
)

// Delivery forwards delivery facts to the CDEvents dashboard.
type Delivery struct {
	client     eventpublisher.Client
	maxRetries uint64
	baseDelay  time.Duration
}

// NewDelivery wraps client. It returns nil when client is not configured.
func NewDelivery(client eventpublisher.Client) *Delivery {
	if !client.Enabled() {
		return nil
	}
	return &Delivery{client: client, maxRetries: defaultMaxRetries, baseDelay: defaultBaseDelay}
}

// PublishDelivery maps event to a CDEvents service event and posts it.
func (d *Delivery) PublishDelivery(ctx context.Context, event ports.DeliveryEvent) error {
	environment := event.Environment
	if environment == "" {
		environment = "production"
	}
	payload := eventpublisher.Event{
		Type:        "service." + event.Kind,
		Source:      event.Source,
		Service:     event.Service,
		Environment: environment,
		Artifact:    event.Artifact,
		Platform:    event.Platform,
	}
	backoff := retry.WithMaxRetries(d.maxRetries, retry.NewExponential(d.baseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := d.client.Publish(ctx, payload)
		var rejected *eventpublisher.RejectedError
		if errors.As(err, &rejected) && rejected.Temporary() {
			return retry.RetryableError(err)
		}
		return err
	})
}

var _ ports.DeliveryPublisher = (*Delivery)(nil)
