// Package hostapp delivers handler side effects to the host application as
// CloudEvents.
package hostapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/fr0stylo/integrationgw/internal/app/ports"
)

// CloudEvents types emitted to the host application.
const (
	TypeRepositoryUpdated = "com.integrationgw.repository.updated"
	TypeAnalysisRequested = "com.integrationgw.analysis.requested"
	TypeNotification      = "com.integrationgw.notification"
	TypeProjectUpdated    = "com.integrationgw.project.updated"
)

const (
	defaultSource     = "integrationgw"
	defaultMaxRetries = 3
	defaultBaseDelay  = 100 * time.Millisecond
	analysisTimeout   = 30 * time.Second
)

// Options configures a Host.
type Options struct {
	Target     string
	Source     string
	HTTPClient *http.Client
	MaxRetries uint64
	BaseDelay  time.Duration
	Logger     *slog.Logger
}

// Host sends repository, analysis, notification and project events to
// the host application sink.
type Host struct {
	client     cloudevents.Client
	source     string
	maxRetries uint64
	baseDelay  time.Duration
	logger     *slog.Logger
	inflight   sync.WaitGroup
}

// New constructs a Host posting to opts.Target.
func New(opts Options) (*Host, error) {
	if opts.Target == "" {
		return nil, errors.New("host events target is required")
	}
	protocolOpts := []cehttp.Option{cloudevents.WithTarget(opts.Target)}
	if opts.HTTPClient != nil {
		protocolOpts = append(protocolOpts, cehttp.WithClient(*opts.HTTPClient))
	}
	client, err := cloudevents.NewClientHTTP(protocolOpts...)
	if err != nil {
		return nil, fmt.Errorf("create cloudevents client: %w", err)
	}
	h := &Host{
		client:     client,
		source:     opts.Source,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		logger:     opts.Logger,
	}
	if h.source == "" {
		h.source = defaultSource
	}
	if h.maxRetries == 0 {
		h.maxRetries = defaultMaxRetries
	}
	if h.baseDelay <= 0 {
		h.baseDelay = defaultBaseDelay
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h, nil
}

// UpdateRepository sends a repository update.
func (h *Host) UpdateRepository(ctx context.Context, update ports.RepositoryUpdate) error {
	return h.send(ctx, TypeRepositoryUpdated, update.Platform+"/"+update.Repository, update)
}

// TriggerAnalysis dispatches the request in the background and returns
// immediately.
func (h *Host) TriggerAnalysis(ctx context.Context, req ports.AnalysisRequest) error {
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), analysisTimeout)
		defer cancel()
		if err := h.send(sendCtx, TypeAnalysisRequested, req.Platform+"/"+req.Repository, req); err != nil {
			h.logger.WarnContext(sendCtx, "Analysis trigger failed", "platform", req.Platform, "repository", req.Repository, "error", err)
		}
	}()
	return nil
}

// Notify sends a notification.
func (h *Host) Notify(ctx context.Context, n ports.Notification) error {
	return h.send(ctx, TypeNotification, n.Audience+"/"+n.Recipient, n)
}

// UpdateProject sends a project update.
func (h *Host) UpdateProject(ctx context.Context, update ports.ProjectUpdate) error {
	return h.send(ctx, TypeProjectUpdated, update.Kind+"/"+update.ID, update)
}

// Wait blocks until background sends finish or ctx is done.
func (h *Host) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Host) send(ctx context.Context, eventType, subject string, data any) error {
	event := cloudevents.NewEvent()
	event.SetID(uuid.NewString())
	event.SetSource(h.source)
	event.SetType(eventType)
	event.SetSubject(subject)
	event.SetTime(time.Now().UTC())
	if err := event.SetData(cloudevents.ApplicationJSON, data); err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}

	backoff := retry.WithMaxRetries(h.maxRetries, retry.NewExponential(h.baseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		result := h.client.Send(ctx, event)
		if cloudevents.IsACK(result) {
			return nil
		}
		if retryable(result) {
			return retry.RetryableError(result)
		}
		return result
	})
	if err != nil {
		return fmt.Errorf("send %s: %w", eventType, err)
	}
	return nil
}

func retryable(result error) bool {
	if cloudevents.IsUndelivered(result) {
		return true
	}
	var httpResult *cehttp.Result
	if cloudevents.ResultAs(result, &httpResult) {
		return httpResult.StatusCode == http.StatusTooManyRequests || httpResult.StatusCode >= http.StatusInternalServerError
	}
	return false
}

var (
	_ ports.RepositoryUpdater = (*Host)(nil)
	_ ports.AnalysisTrigger   = (*Host)(nil)
	_ ports.Notifier          = (*Host)(nil)
	_ ports.ProjectUpdater    = (*Host)(nil)
)
