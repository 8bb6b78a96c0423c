package hostapp

import (
	"context"
	"log/slog"

	"github.com/fr0stylo/integrationgw/internal/app/ports"
)

// LogOnly records host side effects in the log when no sink is configured.
type LogOnly struct {
	logger *slog.Logger
}

// NewLogOnly constructs a LogOnly collaborator.
func NewLogOnly(logger *slog.Logger) *LogOnly {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogOnly{logger: logger}
}

func (l *LogOnly) UpdateRepository(ctx context.Context, update ports.RepositoryUpdate) error {
	l.logger.InfoContext(ctx, "Repository updated", "platform", update.Platform, "repository", update.Repository, "kind", update.Kind, "ref", update.Ref)
	return nil
}

func (l *LogOnly) TriggerAnalysis(ctx context.Context, req ports.AnalysisRequest) error {
	l.logger.InfoContext(ctx, "Analysis requested", "platform", req.Platform, "repository", req.Repository, "reason", req.Reason, "files", req.Files)
	return nil
}

func (l *LogOnly) Notify(ctx context.Context, n ports.Notification) error {
	l.logger.InfoContext(ctx, "Notification", "audience", n.Audience, "recipient", n.Recipient, "level", n.Level, "title", n.Title)
	return nil
}

func (l *LogOnly) UpdateProject(ctx context.Context, update ports.ProjectUpdate) error {
	l.logger.InfoContext(ctx, "Project updated", "platform", update.Platform, "kind", update.Kind, "id", update.ID, "action", update.Action)
	return nil
}

func (l *LogOnly) PublishDelivery(ctx context.Context, event ports.DeliveryEvent) error {
	l.logger.InfoContext(ctx, "Delivery event", "kind", event.Kind, "platform", event.Platform, "service", event.Service, "artifact", event.Artifact)
	return nil
}

var (
	_ ports.RepositoryUpdater = (*LogOnly)(nil)
	_ ports.AnalysisTrigger   = (*LogOnly)(nil)
	_ ports.Notifier          = (*LogOnly)(nil)
	_ ports.ProjectUpdater    = (*LogOnly)(nil)
	_ ports.DeliveryPublisher = (*LogOnly)(nil)
)
