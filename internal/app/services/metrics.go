package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "integrationgw/webhooks"

type ingestMetrics struct {
	requests        metric.Int64Counter
	accepted        metric.Int64Counter
	rejected        metric.Int64Counter
	handlerFailures metric.Int64Counter
}

func newIngestMetrics() ingestMetrics {
	meter := otel.Meter(meterName)
	fallback := noop.NewMeterProvider().Meter(meterName)
	counter := func(name, description string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(description))
		if err != nil {
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}
	return ingestMetrics{
		requests:        counter("webhook.requests", "Inbound webhook requests"),
		accepted:        counter("webhook.accepted", "Webhook requests acknowledged with 200"),
		rejected:        counter("webhook.rejected", "Webhook requests rejected or failed"),
		handlerFailures: counter("webhook.handler_failures", "Webhook handler errors and panics"),
	}
}

func (m ingestMetrics) request(ctx context.Context) {
	m.requests.Add(ctx, 1)
}

func (m ingestMetrics) accept(ctx context.Context, source string, processed bool) {
	m.accepted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.Bool("processed", processed),
	))
}

func (m ingestMetrics) reject(ctx context.Context, source, reason string) {
	m.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("reason", reason),
	))
}

func (m ingestMetrics) handlerFailed(ctx context.Context, source string, n int) {
	m.handlerFailures.Add(ctx, int64(n), metric.WithAttributes(attribute.String("source", source)))
}
