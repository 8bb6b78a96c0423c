// Package github turns verified GitHub webhooks into host application
// updates.
package github

import (
	"context"
	"fmt"
	"strings"
	"time"

	gh "github.com/google/go-github/v81/github"
	"github.com/samber/lo"

	"github.com/fr0stylo/integrationgw/internal/app/domain"
	"github.com/fr0stylo/integrationgw/internal/app/ports"
	"github.com/fr0stylo/integrationgw/internal/webhooks"
)

const platformID = "github"

// Handlers holds the GitHub event handlers.
type Handlers struct {
	deps ports.Collaborators
}

// New constructs GitHub handlers over the host collaborators.
func New(deps ports.Collaborators) *Handlers {
	return &Handlers{deps: deps}
}

// Bindings maps GitHub event names to handlers.
func (h *Handlers) Bindings() map[string]webhooks.Handler {
	return map[string]webhooks.Handler{
		"push":              webhooks.HandlerFunc(h.push),
		"pull_request":      webhooks.HandlerFunc(h.pullRequest),
		"issues":            webhooks.HandlerFunc(h.issues),
		"release":           webhooks.HandlerFunc(h.release),
		"deployment_status": webhooks.HandlerFunc(h.deploymentStatus),
		"workflow_run":      webhooks.HandlerFunc(h.workflowRun),
	}
}

func parse[T any](event domain.WebhookEvent) (T, error) {
	var zero T
	parsed, err := gh.ParseWebHook(event.Type, []byte(event.Payload))
	if err != nil {
		return zero, fmt.Errorf("parse %s payload: %w", event.Type, err)
	}
	typed, ok := parsed.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected %s payload type %T", event.Type, parsed)
	}
	return typed, nil
}

func (h *Handlers) push(ctx context.Context, event domain.WebhookEvent) ([]string, error) {
	p, err := parse[*gh.PushEvent](event)
	if err != nil {
		return nil, err
	}
	repo := p.GetRepo().GetFullName()
	ref := strings.TrimPrefix(p.GetRef(), "refs/heads/")
	actions := []string{}

	if err := h.deps.Repositories.UpdateRepository(ctx, ports.RepositoryUpdate{
		Platform:   platformID,
		Kind:       "push",
		Repository: repo,
		URL:        p.GetRepo().GetHTMLURL(),
		Ref:        ref,
		CommitSHA:  p.GetAfter(),
		Commits:    len(p.Commits),
		Actor:      p.GetPusher().GetName(),
	}); err != nil {
		return actions, err
	}
	actions = append(actions, webhooks.ActionRepositoryUpdated)

	if manifests := webhooks.DependencyManifests(changedFiles(p.Commits)); len(manifests) > 0 {
		if err := h.deps.Analysis.TriggerAnalysis(ctx, ports.AnalysisRequest{
			Platform:   platformID,
			Repository: repo,
			Ref:        ref,
			Reason:     "dependency manifest changed",
			Files:      manifests,
		}); err != nil {
			return actions, err
		}
		actions = append(actions, webhooks.ActionAnalysisTriggered)
	}

	if err := h.deps.Notifier.Notify(ctx, ports.Notification{
		Audience: ports.AudienceTeam,
		Platform: platformID,
		Level:    "info",
		Title:    "New commits on " + repo,
		Message:  fmt.Sprintf("%s pushed %d commit(s) to %s", p.GetPusher().GetName(), len(p.Commits), ref),
		Link:     p.GetCompare(),
	}); err != nil {
		return actions, err
	}
	return append(actions, webhooks.ActionTeamNotified), nil
}

func changedFiles(commits []*gh.HeadCommit) []string {
	var files []string
	for _, c := range commits {
		files = append(files, c.Added...)
		files = append(files, c.Modified...)
		files = append(files, c.Removed...)
	}
	return lo.Uniq(files)
}

func (h *Handlers) pullRequest(ctx context.Context, event domain.WebhookEvent) ([]string, error) {
	p, err := parse[*gh.PullRequestEvent](event)
	if err != nil {
		return nil, err
	}
	pr := p.GetPullRequest()
	repo := p.GetRepo().GetFullName()
	action := p.GetAction()
	actions := []string{}

	if err := h.deps.Repositories.UpdateRepository(ctx, ports.RepositoryUpdate{
		Platform:   platformID,
		Kind:       "pull_request",
		Repository: repo,
		URL:        pr.GetHTMLURL(),
		Ref:        pr.GetHead().GetRef(),
		CommitSHA:  pr.GetHead().GetSHA(),
		Actor:      p.GetSender().GetLogin(),
		Title:      pr.GetTitle(),
		Number:     pr.GetNumber(),
		Action:     action,
	}); err != nil {
		return actions, err
	}
	actions = append(actions, webhooks.ActionPullRequestTracked)

	switch {
	case action == "opened" || action == "synchronize" || action == "reopened":
		if err := h.deps.Analysis.TriggerAnalysis(ctx, ports.AnalysisRequest{
			Platform:   platformID,
			Repository: repo,
			Ref:        pr.GetHead().GetRef(),
			Reason:     fmt.Sprintf("pull request #%d %s", pr.GetNumber(), action),
		}); err != nil {
			return actions, err
		}
		actions = append(actions, webhooks.ActionAnalysisTriggered)
	case action == "closed" && pr.GetMerged():
		if err := h.deps.Repositories.UpdateRepository(ctx, ports.RepositoryUpdate{
			Platform:   platformID,
			Kind:       "merge",
			Repository: repo,
			URL:        p.GetRepo().GetHTMLURL(),
			Ref:        pr.GetBase().GetRef(),
			CommitSHA:  pr.GetMergeCommitSHA(),
			Actor:      pr.GetMergedBy().GetLogin(),
			Number:     pr.GetNumber(),
		}); err != nil {
			return actions, err
		}
		actions = append(actions, webhooks.ActionRepositoryUpdated)
	}

	if err := h.notifyTeam(ctx, fmt.Sprintf("Pull request #%d %s", pr.GetNumber(), action), pr.GetTitle(), pr.GetHTMLURL()); err != nil {
		return actions, err
	}
	return append(actions, webhooks.ActionTeamNotified), nil
}

func (h *Handlers) issues(ctx context.Context, event domain.WebhookEvent) ([]string, error) {
	p, err := parse[*gh.IssuesEvent](event)
	if err != nil {
		return nil, err
	}
	issue := p.GetIssue()
	actions := []string{}
	if err := h.deps.Repositories.UpdateRepository(ctx, ports.RepositoryUpdate{
		Platform:   platformID,
		Kind:       "issue",
		Repository: p.GetRepo().GetFullName(),
		URL:        issue.GetHTMLURL(),
		Actor:      p.GetSender().GetLogin(),
		Title:      issue.GetTitle(),
		Number:     issue.GetNumber(),
		Action:     p.GetAction(),
	}); err != nil {
		return actions, err
	}
	actions = append(actions, webhooks.ActionIssueTracked)

	if err := h.notifyTeam(ctx, fmt.Sprintf("Issue #%d %s", issue.GetNumber(), p.GetAction()), issue.GetTitle(), issue.GetHTMLURL()); err != nil {
		return actions, err
	}
	return append(actions, webhooks.ActionTeamNotified), nil
}

func (h *Handlers) release(ctx context.Context, event domain.WebhookEvent) ([]string, error) {
	p, err := parse[*gh.ReleaseEvent](event)
	if err != nil {
		return nil, err
	}
	rel := p.GetRelease()
	repo := p.GetRepo().GetFullName()
	actions := []string{}

	if err := h.deps.Repositories.UpdateRepository(ctx, ports.RepositoryUpdate{
		Platform:   platformID,
		Kind:       "release",
		Repository: repo,
		URL:        rel.GetHTMLURL(),
		Ref:        rel.GetTagName(),
		Actor:      p.GetSender().GetLogin(),
		Title:      rel.GetName(),
		Action:     p.GetAction(),
	}); err != nil {
		return actions, err
	}
	actions = append(actions, webhooks.ActionReleaseRecorded)
	if p.GetAction() != "published" {
		return actions, nil
	}

	if err := h.deps.Delivery.PublishDelivery(ctx, ports.DeliveryEvent{
		Kind:      ports.DeliveryPublished,
		Platform:  platformID,
		Service:   repo,
		Artifact:  artifactRef(repo, rel.GetTagName()),
		Source:    rel.GetHTMLURL(),
		Timestamp: timestampOr(rel.GetPublishedAt(), event.Timestamp),
	}); err != nil {
		return actions, err
	}
	actions = append(actions, webhooks.ActionDeliveryEventPublished)

	if err := h.notifyTeam(ctx, "Release "+rel.GetTagName()+" published", repo, rel.GetHTMLURL()); err != nil {
		return actions, err
	}
	return append(actions, webhooks.ActionTeamNotified), nil
}

func (h *Handlers) deploymentStatus(ctx context.Context, event domain.WebhookEvent) ([]string, error) {
	p, err := parse[*gh.DeploymentStatusEvent](event)
	if err != nil {
		return nil, err
	}
	status := p.GetDeploymentStatus()
	deployment := p.GetDeployment()
	repo := p.GetRepo().GetFullName()
	state := status.GetState()
	actions := []string{}

	failed := state == "failure" || state == "error"
	action := webhooks.ActionDeploymentRecorded
	if failed {
		action = webhooks.ActionDeploymentFailed
	}
	if err := h.deps.Projects.UpdateProject(ctx, ports.ProjectUpdate{
		Platform: platformID,
		Kind:     "deployment",
		ID:       repo,
		Action:   "deployment_" + state,
		Status:   state,
		URL:      status.GetEnvironmentURL(),
		Attributes: map[string]string{
			"environment": deployment.GetEnvironment(),
			"sha":         deployment.GetSHA(),
		},
	}); err != nil {
		return actions, err
	}
	actions = append(actions, action)

	switch {
	case state == "success":
		if err := h.deps.Delivery.PublishDelivery(ctx, ports.DeliveryEvent{
			Kind:        ports.DeliveryDeployed,
			Platform:    platformID,
			Service:     repo,
			Environment: deployment.GetEnvironment(),
			Artifact:    artifactRef(repo, deployment.GetSHA()),
			Source:      status.GetTargetURL(),
			Timestamp:   timestampOr(status.GetCreatedAt(), event.Timestamp),
		}); err != nil {
			return actions, err
		}
		actions = append(actions, webhooks.ActionDeliveryEventPublished)
	case !failed:
		return actions, nil
	}

	title := fmt.Sprintf("Deployment to %s: %s", deployment.GetEnvironment(), state)
	if err := h.notifyTeam(ctx, title, repo, status.GetTargetURL()); err != nil {
		return actions, err
	}
	return append(actions, webhooks.ActionTeamNotified), nil
}

func (h *Handlers) workflowRun(ctx context.Context, event domain.WebhookEvent) ([]string, error) {
	p, err := parse[*gh.WorkflowRunEvent](event)
	if err != nil {
		return nil, err
	}
	run := p.GetWorkflowRun()
	if p.GetAction() != "completed" {
		return []string{}, nil
	}
	repo := p.GetRepo().GetFullName()
	conclusion := run.GetConclusion()

	if err := h.deps.Repositories.UpdateRepository(ctx, ports.RepositoryUpdate{
		Platform:   platformID,
		Kind:       "workflow",
		Repository: repo,
		URL:        run.GetHTMLURL(),
		Ref:        run.GetHeadBranch(),
		CommitSHA:  run.GetHeadSHA(),
		Title:      run.GetName(),
		Action:     conclusion,
	}); err != nil {
		return nil, err
	}
	if conclusion == "success" || conclusion == "skipped" || conclusion == "neutral" {
		return []string{webhooks.ActionWorkflowRecorded}, nil
	}

	actions := []string{webhooks.ActionWorkflowFailureReported}
	if err := h.deps.Notifier.Notify(ctx, ports.Notification{
		Audience: ports.AudienceTeam,
		Platform: platformID,
		Level:    "error",
		Title:    fmt.Sprintf("Workflow %s %s", run.GetName(), conclusion),
		Message:  fmt.Sprintf("%s on %s", repo, run.GetHeadBranch()),
		Link:     run.GetHTMLURL(),
	}); err != nil {
		return actions, err
	}
	return append(actions, webhooks.ActionTeamNotified), nil
}

func (h *Handlers) notifyTeam(ctx context.Context, title, message, link string) error {
	return h.deps.Notifier.Notify(ctx, ports.Notification{
		Audience: ports.AudienceTeam,
		Platform: platformID,
		Level:    "info",
		Title:    title,
		Message:  message,
		Link:     link,
	})
}

func artifactRef(repo, version string) string {
	if version == "" {
		return "pkg:github/" + repo
	}
	return "pkg:github/" + repo + "@" + version
}

func timestampOr(ts gh.Timestamp, fallback time.Time) time.Time {
	if ts.IsZero() {
		return fallback
	}
	return ts.Time
}
