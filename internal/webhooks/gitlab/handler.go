// Package gitlab turns verified GitLab webhooks into host application
// updates.
package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/fr0stylo/integrationgw/internal/app/domain"
	"github.com/fr0stylo/integrationgw/internal/app/ports"
	"github.com/fr0stylo/integrationgw/internal/webhooks"
)

const platformID = "gitlab"

type project struct {
	PathWithNamespace string `json:"path_with_namespace"`
	WebURL            string `json:"web_url"`
}

type commit struct {
	ID       string   `json:"id"`
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`
}

type pushPayload struct {
	Ref               string   `json:"ref"`
	After             string   `json:"after"`
	CheckoutSHA       string   `json:"checkout_sha"`
	UserName          string   `json:"user_name"`
	TotalCommitsCount int      `json:"total_commits_count"`
	Project           project  `json:"project"`
	Commits           []commit `json:"commits"`
}

type user struct {
	Username string `json:"username"`
	Name     string `json:"name"`
}

type mergeRequestPayload struct {
	User             user    `json:"user"`
	Project          project `json:"project"`
	ObjectAttributes struct {
		IID          int    `json:"iid"`
		Title        string `json:"title"`
		URL          string `json:"url"`
		Action       string `json:"action"`
		State        string `json:"state"`
		SourceBranch string `json:"source_branch"`
		TargetBranch string `json:"target_branch"`
		MergeCommit  string `json:"merge_commit_sha"`
		LastCommit   struct {
			ID string `json:"id"`
		} `json:"last_commit"`
	} `json:"object_attributes"`
}

type pipelinePayload struct {
	User             user    `json:"user"`
	Project          project `json:"project"`
	ObjectAttributes struct {
		ID     int64  `json:"id"`
		Ref    string `json:"ref"`
		SHA    string `json:"sha"`
		Status string `json:"status"`
		URL    string `json:"url"`
	} `json:"object_attributes"`
}

// Handlers holds the GitLab event handlers.
type Handlers struct {
	deps ports.Collaborators
}

// New constructs GitLab handlers over the host collaborators.
func New(deps ports.Collaborators) *Handlers {
	return &Handlers{deps: deps}
}

// Bindings maps normalized GitLab event names to handlers.
func (h *Handlers) Bindings() map[string]webhooks.Handler {
	return map[string]webhooks.Handler{
		"push":          webhooks.HandlerFunc(h.push),
		"tag_push":      webhooks.HandlerFunc(h.tagPush),
		"merge_request": webhooks.HandlerFunc(h.mergeRequest),
		"pipeline":      webhooks.HandlerFunc(h.pipeline),
	}
}

func decode(event domain.WebhookEvent, v any) error {
	if err := json.Unmarshal([]byte(event.Payload), v); err != nil {
		return fmt.Errorf("parse %s payload: %w", event.Type, err)
	}
	return nil
}

func (h *Handlers) push(ctx context.Context, event domain.WebhookEvent) ([]string, error) {
	var p pushPayload
	if err := decode(event, &p); err != nil {
		return nil, err
	}
	repo := p.Project.PathWithNamespace
	ref := strings.TrimPrefix(p.Ref, "refs/heads/")
	commits := lo.Max([]int{p.TotalCommitsCount, len(p.Commits)})
	actions := []string{}

	if err := h.deps.Repositories.UpdateRepository(ctx, ports.RepositoryUpdate{
		Platform:   platformID,
		Kind:       "push",
		Repository: repo,
		URL:        p.Project.WebURL,
		Ref:        ref,
		CommitSHA:  lo.CoalesceOrEmpty(p.CheckoutSHA, p.After),
		Commits:    commits,
		Actor:      p.UserName,
	}); err != nil {
		return actions, err
	}
	actions = append(actions, webhooks.ActionRepositoryUpdated)

	var files []string
	for _, c := range p.Commits {
		files = append(files, c.Added...)
		files = append(files, c.Modified...)
		files = append(files, c.Removed...)
	}
	if manifests := webhooks.DependencyManifests(lo.Uniq(files)); len(manifests) > 0 {
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

	if err := h.notifyTeam(ctx, "info", "New commits on "+repo, fmt.Sprintf("%s pushed %d commit(s) to %s", p.UserName, commits, ref), p.Project.WebURL); err != nil {
		return actions, err
	}
	return append(actions, webhooks.ActionTeamNotified), nil
}

func (h *Handlers) tagPush(ctx context.Context, event domain.WebhookEvent) ([]string, error) {
	var p pushPayload
	if err := decode(event, &p); err != nil {
		return nil, err
	}
	if err := h.deps.Repositories.UpdateRepository(ctx, ports.RepositoryUpdate{
		Platform:   platformID,
		Kind:       "release",
		Repository: p.Project.PathWithNamespace,
		URL:        p.Project.WebURL,
		Ref:        strings.TrimPrefix(p.Ref, "refs/tags/"),
		CommitSHA:  p.CheckoutSHA,
		Actor:      p.UserName,
	}); err != nil {
		return nil, err
	}
	return []string{webhooks.ActionReleaseRecorded}, nil
}

func (h *Handlers) mergeRequest(ctx context.Context, event domain.WebhookEvent) ([]string, error) {
	var p mergeRequestPayload
	if err := decode(event, &p); err != nil {
		return nil, err
	}
	attrs := p.ObjectAttributes
	repo := p.Project.PathWithNamespace
	actions := []string{}

	if err := h.deps.Repositories.UpdateRepository(ctx, ports.RepositoryUpdate{
		Platform:   platformID,
		Kind:       "pull_request",
		Repository: repo,
		URL:        attrs.URL,
		Ref:        attrs.SourceBranch,
		CommitSHA:  attrs.LastCommit.ID,
		Actor:      p.User.Username,
		Title:      attrs.Title,
		Number:     attrs.IID,
		Action:     attrs.Action,
	}); err != nil {
		return actions, err
	}
	actions = append(actions, webhooks.ActionPullRequestTracked)

	switch attrs.Action {
	case "open", "reopen", "update":
		if err := h.deps.Analysis.TriggerAnalysis(ctx, ports.AnalysisRequest{
			Platform:   platformID,
			Repository: repo,
			Ref:        attrs.SourceBranch,
			Reason:     fmt.Sprintf("merge request !%d %s", attrs.IID, attrs.Action),
		}); err != nil {
			return actions, err
		}
		actions = append(actions, webhooks.ActionAnalysisTriggered)
	case "merge":
		if err := h.deps.Repositories.UpdateRepository(ctx, ports.RepositoryUpdate{
			Platform:   platformID,
			Kind:       "merge",
			Repository: repo,
			URL:        p.Project.WebURL,
			Ref:        attrs.TargetBranch,
			CommitSHA:  attrs.MergeCommit,
			Actor:      p.User.Username,
			Number:     attrs.IID,
		}); err != nil {
			return actions, err
		}
		actions = append(actions, webhooks.ActionRepositoryUpdated)
	}

	if err := h.notifyTeam(ctx, "info", fmt.Sprintf("Merge request !%d %s", attrs.IID, attrs.Action), attrs.Title, attrs.URL); err != nil {
		return actions, err
	}
	return append(actions, webhooks.ActionTeamNotified), nil
}

func (h *Handlers) pipeline(ctx context.Context, event domain.WebhookEvent) ([]string, error) {
	var p pipelinePayload
	if err := decode(event, &p); err != nil {
		return nil, err
	}
	attrs := p.ObjectAttributes
	switch attrs.Status {
	case "success", "failed", "canceled":
	default:
		return []string{}, nil
	}

	repo := p.Project.PathWithNamespace
	if err := h.deps.Repositories.UpdateRepository(ctx, ports.RepositoryUpdate{
		Platform:   platformID,
		Kind:       "workflow",
		Repository: repo,
		URL:        attrs.URL,
		Ref:        attrs.Ref,
		CommitSHA:  attrs.SHA,
		Title:      fmt.Sprintf("pipeline %d", attrs.ID),
		Action:     attrs.Status,
	}); err != nil {
		return nil, err
	}
	if attrs.Status == "success" {
		return []string{webhooks.ActionWorkflowRecorded}, nil
	}

	actions := []string{webhooks.ActionWorkflowFailureReported}
	if err := h.notifyTeam(ctx, "error", fmt.Sprintf("Pipeline %d %s", attrs.ID, attrs.Status), fmt.Sprintf("%s on %s", repo, attrs.Ref), attrs.URL); err != nil {
		return actions, err
	}
	return append(actions, webhooks.ActionTeamNotified), nil
}

func (h *Handlers) notifyTeam(ctx context.Context, level, title, message, link string) error {
	return h.deps.Notifier.Notify(ctx, ports.Notification{
		Audience: ports.AudienceTeam,
		Platform: platformID,
		Level:    level,
		Title:    title,
		Message:  message,
		Link:     link,
	})
}
