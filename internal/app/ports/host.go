package ports

import (
	"context"
	"time"
)

// RepositoryUpdate describes a change to a tracked source repository.
type RepositoryUpdate struct {
	Platform   string `json:"platform,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Repository string `json:"repository,omitempty"`
	URL        string `json:"url,omitempty"`
	Ref        string `json:"ref,omitempty"`
	CommitSHA  string `json:"commitSha,omitempty"`
	Commits    int    `json:"commits,omitempty"`
	Actor      string `json:"actor,omitempty"`
	Title      string `json:"title,omitempty"`
	Number     int    `json:"number,omitempty"`
	Action     string `json:"action,omitempty"`
}

// RepositoryUpdater records repository metadata in the host application.
type RepositoryUpdater interface {
	UpdateRepository(ctx context.Context, update RepositoryUpdate) error
}

// AnalysisRequest asks the host application to analyze a repository.
type AnalysisRequest struct {
	Platform   string   `json:"platform,omitempty"`
	Repository string   `json:"repository,omitempty"`
	Ref        string   `json:"ref,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Files      []string `json:"files,omitempty"`
}

// AnalysisTrigger dispatches an analysis. Implementations must not wait
// for the analysis to finish.
type AnalysisTrigger interface {
	TriggerAnalysis(ctx context.Context, req AnalysisRequest) error
}

// Audience values for notifications.
const (
	AudienceTeam = "team"
	AudienceUser = "user"
)

// Notification is a user-facing message enqueued in the host application.
type Notification struct {
	Audience  string `json:"audience,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Level     string `json:"level,omitempty"`
	Title     string `json:"title,omitempty"`
	Message   string `json:"message,omitempty"`
	Link      string `json:"link,omitempty"`
}

// Notifier enqueues host application notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// ProjectUpdate describes a change to a host application project, export,
// team or deployment.
type ProjectUpdate struct {
	Platform   string            `json:"platform,omitempty"`
	Kind       string            `json:"kind,omitempty"`
	ID         string            `json:"id,omitempty"`
	Action     string            `json:"action,omitempty"`
	Name       string            `json:"name,omitempty"`
	Status     string            `json:"status,omitempty"`
	URL        string            `json:"url,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ProjectUpdater applies project changes in the host application.
type ProjectUpdater interface {
	UpdateProject(ctx context.Context, update ProjectUpdate) error
}

// Delivery kinds published to the delivery dashboard.
const (
	DeliveryDeployed  = "deployed"
	DeliveryPublished = "published"
)

// DeliveryEvent is a deployment or release fact.
type DeliveryEvent struct {
	Kind        string    `json:"kind,omitempty"`
	Platform    string    `json:"platform,omitempty"`
	Service     string    `json:"service,omitempty"`
	Environment string    `json:"environment,omitempty"`
	Artifact    string    `json:"artifact,omitempty"`
	Source      string    `json:"source,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
}

// DeliveryPublisher forwards delivery facts to an external dashboard.
type DeliveryPublisher interface {
	PublishDelivery(ctx context.Context, event DeliveryEvent) error
}

// Collaborators bundles every host application dependency of the
// webhook handlers.
type Collaborators struct {
	Repositories RepositoryUpdater
	Analysis     AnalysisTrigger
	Notifier     Notifier
	Projects     ProjectUpdater
	Delivery     DeliveryPublisher
}
