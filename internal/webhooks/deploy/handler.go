// Package deploy handles deployment and project webhooks from hosting and
// app-builder platforms.
package deploy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/fr0stylo/integrationgw/internal/app/domain"
	"github.com/fr0stylo/integrationgw/internal/app/ports"
	"github.com/fr0stylo/integrationgw/internal/webhooks"
)

// Phase of a deployment event.
type Phase string

const (
	PhaseInProgress Phase = "in_progress"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

var (
	projectIDPaths  = []string{"payload.project.id", "project.id", "project_id", "site_id", "projectId", "replId"}
	projectNamePath = []string{"payload.project.name", "payload.name", "project.name", "name", "site_name", "title"}
	deploymentPaths = []string{"payload.deployment.id", "deployment.id", "deploy_id", "deploymentId", "id"}
	urlPaths        = []string{"payload.deployment.url", "deployment.url", "deploy_ssl_url", "ssl_url", "url", "published_url"}
	envPaths        = []string{"payload.target", "target", "context", "environment"}
	errorPaths      = []string{"payload.deployment.errorMessage", "error_message", "error", "deployment.error"}
	commitPaths     = []string{"payload.deployment.meta.githubCommitSha", "commit_ref", "commit", "sha"}
)

// Handlers serves one deployment platform.
type Handlers struct {
	platformID string
	deps       ports.Collaborators
}

// New constructs handlers for platformID.
func New(platformID string, deps ports.Collaborators) *Handlers {
	return &Handlers{platformID: platformID, deps: deps}
}

// Bindings maps every allowlisted event to the deployment or project handler.
func (h *Handlers) Bindings(allowlist []string) map[string]webhooks.Handler {
	out := make(map[string]webhooks.Handler, len(allowlist))
	for _, eventType := range allowlist {
		switch {
		case IsDeploymentEvent(eventType):
			out[eventType] = webhooks.HandlerFunc(h.deployment)
		case IsProjectEvent(eventType):
			out[eventType] = webhooks.HandlerFunc(h.project)
		}
	}
	return out
}

// IsDeploymentEvent reports whether eventType names a deployment lifecycle event.
func IsDeploymentEvent(eventType string) bool {
	return strings.HasPrefix(eventType, "deployment.") || strings.HasPrefix(eventType, "deploy_")
}

// IsProjectEvent reports whether eventType names a project change.
func IsProjectEvent(eventType string) bool {
	return strings.HasPrefix(eventType, "project.") || strings.HasPrefix(eventType, "repl.")
}

// Classify maps a platform event name onto a deployment phase.
func Classify(eventType string) Phase {
	name := strings.ToLower(eventType)
	for _, marker := range []string{"error", "failed", "canceled", "cancelled"} {
		if strings.Contains(name, marker) {
			return PhaseFailed
		}
	}
	for _, marker := range []string{"succeeded", "success", "ready", "promoted"} {
		if strings.Contains(name, marker) {
			return PhaseSucceeded
		}
	}
	return PhaseInProgress
}

func first(doc gjson.Result, paths []string) string {
	for _, p := range paths {
		if v := strings.TrimSpace(doc.Get(p).String()); v != "" {
			return v
		}
	}
	return ""
}

func (h *Handlers) deployment(ctx context.Context, event domain.WebhookEvent) ([]string, error) {
	if !gjson.Valid(event.Payload) {
		return nil, fmt.Errorf("parse %s payload: invalid json", event.Type)
	}
	doc := gjson.Parse(event.Payload)
	phase := Classify(event.Type)
	projectID := first(doc, projectIDPaths)
	name := first(doc, projectNamePath)
	url := first(doc, urlPaths)
	if url != "" && !strings.Contains(url, "://") {
		url = "https://" + url
	}
	environment := first(doc, envPaths)
	if environment == "" {
		environment = "production"
	}

	action := webhooks.ActionDeploymentRecorded
	if phase == PhaseFailed {
		action = webhooks.ActionDeploymentFailed
	}
	actions := []string{}
	if err := h.deps.Projects.UpdateProject(ctx, ports.ProjectUpdate{
		Platform: h.platformID,
		Kind:     "deployment",
		ID:       projectID,
		Action:   event.Type,
		Name:     name,
		Status:   string(phase),
		URL:      url,
		Attributes: map[string]string{
			"deployment_id": first(doc, deploymentPaths),
			"environment":   environment,
			"error":         first(doc, errorPaths),
		},
	}); err != nil {
		return actions, err
	}
	actions = append(actions, action)

	switch phase {
	case PhaseInProgress:
		return actions, nil
	case PhaseSucceeded:
		if err := h.deps.Delivery.PublishDelivery(ctx, ports.DeliveryEvent{
			Kind:        ports.DeliveryDeployed,
			Platform:    h.platformID,
			Service:     firstNonEmpty(name, projectID),
			Environment: environment,
			Artifact:    artifactRef(h.platformID, firstNonEmpty(name, projectID), first(doc, commitPaths)),
			Source:      url,
			Timestamp:   eventTime(event),
		}); err != nil {
			return actions, err
		}
		actions = append(actions, webhooks.ActionDeliveryEventPublished)
	}

	level, title := "info", fmt.Sprintf("%s deployed", firstNonEmpty(name, projectID))
	if phase == PhaseFailed {
		level, title = "error", fmt.Sprintf("%s deployment failed", firstNonEmpty(name, projectID))
	}
	if err := h.deps.Notifier.Notify(ctx, ports.Notification{
		Audience: ports.AudienceTeam,
		Platform: h.platformID,
		Level:    level,
		Title:    title,
		Message:  firstNonEmpty(first(doc, errorPaths), url),
		Link:     url,
	}); err != nil {
		return actions, err
	}
	return append(actions, webhooks.ActionTeamNotified), nil
}

func (h *Handlers) project(ctx context.Context, event domain.WebhookEvent) ([]string, error) {
	if !gjson.Valid(event.Payload) {
		return nil, fmt.Errorf("parse %s payload: invalid json", event.Type)
	}
	doc := gjson.Parse(event.Payload)
	removed := strings.HasSuffix(event.Type, ".removed") || strings.HasSuffix(event.Type, ".deleted")
	action, label := "sync", webhooks.ActionProjectSynced
	if removed {
		action, label = "archive", webhooks.ActionProjectArchived
	}
	if err := h.deps.Projects.UpdateProject(ctx, ports.ProjectUpdate{
		Platform: h.platformID,
		Kind:     "project",
		ID:       firstNonEmpty(first(doc, projectIDPaths), doc.Get("id").String()),
		Action:   action,
		Name:     first(doc, projectNamePath),
		URL:      first(doc, urlPaths),
	}); err != nil {
		return nil, err
	}
	return []string{label}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func artifactRef(platformID, service, version string) string {
	ref := "pkg:generic/" + platformID + "/" + service
	if version != "" {
		ref += "@" + version
	}
	return ref
}

func eventTime(event domain.WebhookEvent) time.Time {
	if event.Timestamp.IsZero() {
		return time.Now().UTC()
	}
	return event.Timestamp
}
