package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fr0stylo/integrationgw/internal/app/domain"
	"github.com/fr0stylo/integrationgw/internal/app/ports"
	"github.com/fr0stylo/integrationgw/internal/observability"
	"github.com/fr0stylo/integrationgw/internal/platform"
	"github.com/fr0stylo/integrationgw/internal/webhooks"
	"github.com/fr0stylo/integrationgw/internal/webhooks/custom"
)

// ErrPipelineFailure indicates an unhandled failure inside the pipeline.
var ErrPipelineFailure = errors.New("webhook pipeline failure")

// DefaultMaxRetries bounds Retry when no limit is configured.
const DefaultMaxRetries = 5

// SecretResolver returns the webhook verification secret of a platform.
type SecretResolver interface {
	WebhookSecret(platformID string) string
}

// IngestOptions configures an IngestService.
type IngestOptions struct {
	Registry       *platform.Registry
	Handlers       *webhooks.Registry
	Secrets        SecretResolver
	Events         ports.EventStore
	InternalSecret string
	MaxRetries     int
	Logger         *slog.Logger
	Now            func() time.Time
	NewID          func() string
}

// IngestService verifies, routes and persists inbound webhooks.
type IngestService struct {
	registry       *platform.Registry
	handlers       *webhooks.Registry
	secrets        SecretResolver
	events         ports.EventStore
	internalSecret string
	maxRetries     int
	log            *slog.Logger
	now            func() time.Time
	newID          func() string
	metrics        ingestMetrics
}

// IngestCommand is transport-agnostic webhook ingestion input. Rejected is
// set by the transport when it refused the request before reading it
// fully; the event is still recorded, with Body holding what was read.
type IngestCommand struct {
	Headers  http.Header
	Body     []byte
	Rejected error
}

// Receipt is the pipeline outcome for one inbound request.
type Receipt struct {
	EventID string
	Event   domain.WebhookEvent
	Result  domain.ProcessingResult
}

// NewIngestService constructs an ingestion service.
func NewIngestService(opts IngestOptions) *IngestService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &IngestService{
		registry:       opts.Registry,
		handlers:       opts.Handlers,
		secrets:        opts.Secrets,
		events:         opts.Events,
		internalSecret: opts.InternalSecret,
		maxRetries:     maxRetries,
		log:            logger,
		now:            now,
		newID:          newID,
		metrics:        newIngestMetrics(),
	}
}

// source is the resolved origin of an inbound request.
type source struct {
	id      string
	webhook platform.WebhookConfig
	known   bool
}

// Ingest runs one inbound webhook through the pipeline. Every call
// persists exactly one event. A non-nil error reports a rejected or
// failed request; the receipt is still populated.
func (s *IngestService) Ingest(ctx context.Context, cmd IngestCommand) (receipt Receipt, err error) {
	event := domain.WebhookEvent{
		ID:            s.newID(),
		Type:          domain.EventTypeUnknown,
		Source:        domain.SourceUnknown,
		Timestamp:     s.now().UTC(),
		Payload:       string(cmd.Body),
		ProcessingLog: []string{},
	}
	receipt.EventID = event.ID
	persisted := false
	s.metrics.request(ctx)

	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}
		event.Log(fmt.Sprintf("pipeline panic: %v", recovered))
		event.Processed = false
		receipt.Event = event
		receipt.Result = domain.ProcessingResult{Success: false, Message: "webhook processing failed", Actions: []string{}, Errors: []string{fmt.Sprint(recovered)}}
		if !persisted {
			if storeErr := s.events.InsertEvent(ctx, event); storeErr != nil {
				s.log.Error("persist webhook event after panic failed", "event_id", event.ID, "error", storeErr)
			}
		}
		s.metrics.reject(ctx, event.Source, "panic")
		err = fmt.Errorf("%w: %v", ErrPipelineFailure, recovered)
	}()

	src := s.identify(cmd.Headers)
	event.Source = src.id
	ctx = observability.WithWebhookIdentity(ctx, event.Source, event.ID)
	if src.known {
		event.Type = NormalizeEventType(cmd.Headers.Get(src.webhook.EventHeader))
		if src.webhook.DeliveryHeader != "" {
			event.DeliveryID = strings.TrimSpace(cmd.Headers.Get(src.webhook.DeliveryHeader))
		}
	}
	event.Log(fmt.Sprintf("received %s event from %s", event.Type, event.Source))

	var result domain.ProcessingResult
	var rejection error
	switch {
	case cmd.Rejected != nil:
		event.Verification = domain.VerificationFailed
		event.Log("request rejected: " + cmd.Rejected.Error())
		result = domain.ProcessingResult{Success: false, Message: "webhook request rejected", Actions: []string{}, Errors: []string{cmd.Rejected.Error()}}
		rejection = cmd.Rejected
	case !src.known:
		event.Verification = domain.VerificationUnidentified
		event.Log("source not identified; recorded for audit without routing")
		result = domain.ProcessingResult{Success: false, Message: "unrecognized webhook source", Actions: []string{}}
	default:
		verification, reason := s.verify(src, cmd)
		event.Verification = verification
		if src.webhook.SignatureHeader != "" {
			event.Signature = strings.TrimSpace(cmd.Headers.Get(src.webhook.SignatureHeader))
		}
		if verification == domain.VerificationFailed {
			event.Log("signature verification failed: " + reason)
			result = domain.ProcessingResult{Success: false, Message: "signature verification failed", Actions: []string{}, Errors: []string{reason}}
			rejection = fmt.Errorf("%w: %s", domain.ErrSignatureInvalid, reason)
			break
		}
		event.Log("signature " + verification)
		result = s.route(ctx, &event)
	}

	receipt.Event = event
	receipt.Result = result
	persisted = true
	if storeErr := s.events.InsertEvent(ctx, event); storeErr != nil {
		s.log.Error("persist webhook event failed", "event_id", event.ID, "source", event.Source, "error", storeErr)
		s.metrics.reject(ctx, event.Source, "persistence")
		receipt.Result = domain.ProcessingResult{Success: false, Message: "failed to persist webhook event", Actions: result.Actions, Errors: append(result.Errors, storeErr.Error())}
		return receipt, fmt.Errorf("%w: persist event: %v", ErrPipelineFailure, storeErr)
	}

	if rejection != nil {
		s.metrics.reject(ctx, event.Source, string(ClassifyError(rejection)))
		s.log.Warn("webhook rejected", "event_id", event.ID, "source", event.Source, "type", event.Type)
		return receipt, rejection
	}
	s.metrics.accept(ctx, event.Source, event.Processed)
	s.log.Info("webhook processed",
		"event_id", event.ID,
		"source", event.Source,
		"type", event.Type,
		"processed", event.Processed,
		"actions", len(result.Actions),
	)
	return receipt, nil
}

func (s *IngestService) identify(headers http.Header) source {
	for _, cfg := range s.registry.List() {
		if cfg.Webhook.EventHeader == "" {
			continue
		}
		if len(headers.Values(cfg.Webhook.EventHeader)) > 0 {
			return source{id: cfg.ID, webhook: cfg.Webhook, known: true}
		}
	}
	if len(headers.Values(custom.EventHeader)) > 0 {
		return source{
			id:    domain.SourceInternal,
			known: true,
			webhook: platform.WebhookConfig{
				EventHeader:     custom.EventHeader,
				SignatureHeader: custom.SignatureHeader,
				SignatureScheme: platform.SchemeHMACSHA256,
				SignaturePrefix: custom.SignaturePrefix,
				DeliveryHeader:  custom.DeliveryHeader,
			},
		}
	}
	return source{id: domain.SourceUnknown}
}

// NormalizeEventType trims the header value and folds GitLab style
// "Push Hook" names into "push".
func NormalizeEventType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.EventTypeUnknown
	}
	lower := strings.ToLower(value)
	if strings.HasSuffix(lower, " hook") {
		lower = strings.TrimSpace(strings.TrimSuffix(lower, " hook"))
		return strings.Join(strings.Fields(lower), "_")
	}
	return value
}

func (s *IngestService) secretFor(sourceID string) string {
	if sourceID == domain.SourceInternal {
		return s.internalSecret
	}
	if s.secrets == nil {
		return ""
	}
	return s.secrets.WebhookSecret(sourceID)
}

func (s *IngestService) verify(src source, cmd IngestCommand) (string, string) {
	signature := ""
	if src.webhook.SignatureHeader != "" {
		signature = strings.TrimSpace(cmd.Headers.Get(src.webhook.SignatureHeader))
	}
	secret := s.secretFor(src.id)

	switch {
	case secret == "" && signature == "":
		return domain.VerificationUnsigned, ""
	case secret == "":
		return domain.VerificationFailed, "signature present but no secret is configured"
	case signature == "":
		return domain.VerificationFailed, "missing " + src.webhook.SignatureHeader + " header"
	}
	if !VerifySignature(src.webhook.SignatureScheme, src.webhook.SignaturePrefix, secret, cmd.Body, signature) {
		return domain.VerificationFailed, "signature mismatch"
	}
	return domain.VerificationVerified, ""
}

// VerifySignature checks signature against body with the given scheme.
// The hmac scheme compares hex(HMAC-SHA256(secret, body)) after removing
// prefix; the token scheme compares the shared token. Both compare in
// constant time.
func VerifySignature(scheme, prefix, secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	if scheme == platform.SchemeToken {
		return hmac.Equal([]byte(signature), []byte(secret))
	}
	if prefix != "" {
		if !strings.HasPrefix(strings.ToLower(signature), strings.ToLower(prefix)) {
			return false
		}
		signature = signature[len(prefix):]
	}
	return hmac.Equal([]byte(Sign(secret, body)), []byte(strings.ToLower(signature)))
}

// Sign returns the lowercase hex HMAC-SHA256 of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *IngestService) route(ctx context.Context, event *domain.WebhookEvent) domain.ProcessingResult {
	handlers := s.handlers.Handlers(event.Source, event.Type)
	if len(handlers) == 0 {
		event.Log(fmt.Sprintf("no handlers registered for %s:%s", event.Source, event.Type))
		event.Processed = true
		return domain.ProcessingResult{Success: true, Message: "event recorded; no handlers registered", Actions: []string{}}
	}

	outcome := webhooks.Dispatch(ctx, *event, handlers)
	for _, entry := range outcome.Log {
		event.Log(entry)
	}
	if outcome.Failed() {
		s.metrics.handlerFailed(ctx, event.Source, len(outcome.Errors))
		event.Processed = false
		event.Log(fmt.Sprintf("processing incomplete: %d of %d handlers failed", len(outcome.Errors), outcome.Invoked))
		return domain.ProcessingResult{
			Success: false,
			Message: fmt.Sprintf("%d of %d handlers failed", len(outcome.Errors), outcome.Invoked),
			Actions: outcome.Actions,
			Errors:  outcome.Errors,
		}
	}
	event.Processed = true
	event.Log(fmt.Sprintf("processed by %d handler(s)", outcome.Invoked))
	return domain.ProcessingResult{
		Success: true,
		Message: fmt.Sprintf("processed %s event from %s", event.Type, event.Source),
		Actions: outcome.Actions,
	}
}

// Retry routes a persisted, unprocessed event again.
func (s *IngestService) Retry(ctx context.Context, id string) (domain.ProcessingResult, error) {
	event, err := s.events.GetEvent(ctx, id)
	if err != nil {
		return domain.ProcessingResult{}, err
	}
	if err := s.retryable(event); err != nil {
		return domain.ProcessingResult{}, err
	}

	event.RetryCount++
	event.Log(fmt.Sprintf("retry %d of %d", event.RetryCount, s.maxRetries))
	result := s.route(ctx, &event)
	if err := s.events.UpdateEvent(ctx, event); err != nil {
		return result, fmt.Errorf("update event %s: %w", event.ID, err)
	}
	s.log.Info("webhook retried", "event_id", event.ID, "retry", event.RetryCount, "processed", event.Processed)
	return result, nil
}

func (s *IngestService) retryable(event domain.WebhookEvent) error {
	switch {
	case event.Processed:
		return fmt.Errorf("%w: %s already processed", domain.ErrNotRetryable, event.ID)
	case event.Source == domain.SourceUnknown:
		return fmt.Errorf("%w: %s has no identified source", domain.ErrNotRetryable, event.ID)
	case event.Verification != domain.VerificationVerified && event.Verification != domain.VerificationUnsigned:
		return fmt.Errorf("%w: %s failed verification", domain.ErrNotRetryable, event.ID)
	case event.RetryCount >= s.maxRetries:
		return fmt.Errorf("%w: %s exhausted %d retries", domain.ErrNotRetryable, event.ID, s.maxRetries)
	}
	return nil
}

// RetrySummary counts the outcome of a retry sweep.
type RetrySummary struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// RetryPending retries up to limit retryable events.
func (s *IngestService) RetryPending(ctx context.Context, limit int) (RetrySummary, error) {
	events, err := s.events.ListRetryableEvents(ctx, s.maxRetries, limit)
	if err != nil {
		return RetrySummary{}, fmt.Errorf("list retryable events: %w", err)
	}
	summary := RetrySummary{}
	for _, event := range events {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.Attempted++
		result, err := s.Retry(ctx, event.ID)
		if err != nil || !result.Success {
			summary.Failed++
			continue
		}
		summary.Succeeded++
	}
	return summary, nil
}

// Event returns one persisted event.
func (s *IngestService) Event(ctx context.Context, id string) (domain.WebhookEvent, error) {
	return s.events.GetEvent(ctx, id)
}

// Events lists persisted events, newest first.
func (s *IngestService) Events(ctx context.Context, filter ports.EventFilter) ([]domain.WebhookEvent, error) {
	return s.events.ListEvents(ctx, filter)
}
