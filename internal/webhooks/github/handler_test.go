package github

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/fr0stylo/integrationgw/internal/app/domain"
	"github.com/fr0stylo/integrationgw/internal/app/ports"
	"github.com/fr0stylo/integrationgw/internal/webhooks"
	"github.com/fr0stylo/integrationgw/internal/webhooks/webhookstest"
)

const pushPayload = `{
  "ref": "refs/heads/main",
  "after": "c3",
  "compare": "https://github.com/acme/shop/compare/a...c3",
  "repository": {"full_name": "acme/shop", "html_url": "https://github.com/acme/shop"},
  "pusher": {"name": "octocat"},
  "commits": [
    {"id": "c1", "added": ["src/app.ts"], "modified": [], "removed": []},
    {"id": "c2", "added": [], "modified": ["package.json", "README.md"], "removed": []},
    {"id": "c3", "added": [], "modified": ["src/app.ts"], "removed": ["old.js"]}
  ]
}`

func handle(t *testing.T, h *Handlers, eventType, payload string) ([]string, error) {
	t.Helper()
	handler, ok := h.Bindings()[eventType]
	if !ok {
		t.Fatalf("no binding for %s", eventType)
	}
	return handler.Handle(context.Background(), domain.WebhookEvent{Type: eventType, Source: "github", Payload: payload})
}

func TestPushWithManifestChange(t *testing.T) {
	t.Parallel()

	rec := webhookstest.NewRecorder()
	actions, err := handle(t, New(rec.Collaborators()), "push", pushPayload)
	if err != nil {
		t.Fatalf("handle push: %v", err)
	}
	want := []string{webhooks.ActionRepositoryUpdated, webhooks.ActionAnalysisTriggered, webhooks.ActionTeamNotified}
	if len(actions) != len(want) {
		t.Fatalf("expected %v, got %v", want, actions)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, actions)
		}
	}
	if rec.Repositories[0].Commits != 3 || rec.Repositories[0].Ref != "main" || rec.Repositories[0].Repository != "acme/shop" {
		t.Fatalf("unexpected repository update %+v", rec.Repositories[0])
	}
	if len(rec.Analyses) != 1 || rec.Analyses[0].Files[0] != "package.json" {
		t.Fatalf("unexpected analysis requests %+v", rec.Analyses)
	}
}

func TestPushWithoutManifestSkipsAnalysis(t *testing.T) {
	t.Parallel()

	payload := `{"ref":"refs/heads/dev","repository":{"full_name":"acme/shop"},"pusher":{"name":"o"},"commits":[{"id":"c1","modified":["src/main.go"]}]}`
	rec := webhookstest.NewRecorder()
	actions, err := handle(t, New(rec.Collaborators()), "push", payload)
	if err != nil {
		t.Fatalf("handle push: %v", err)
	}
	if len(actions) != 2 || actions[0] != webhooks.ActionRepositoryUpdated || actions[1] != webhooks.ActionTeamNotified {
		t.Fatalf("unexpected actions %v", actions)
	}
	if len(rec.Analyses) != 0 {
		t.Fatalf("expected no analysis")
	}
}

func TestPullRequestOpenedAndMerged(t *testing.T) {
	t.Parallel()

	rec := webhookstest.NewRecorder()
	h := New(rec.Collaborators())

	opened := `{"action":"opened","number":7,"pull_request":{"number":7,"title":"Add cart","html_url":"https://github.com/acme/shop/pull/7","head":{"ref":"feature","sha":"abc"}},"repository":{"full_name":"acme/shop"},"sender":{"login":"octo"}}`
	actions, err := handle(t, h, "pull_request", opened)
	if err != nil {
		t.Fatalf("handle opened: %v", err)
	}
	if len(actions) != 3 || actions[0] != webhooks.ActionPullRequestTracked || actions[1] != webhooks.ActionAnalysisTriggered || actions[2] != webhooks.ActionTeamNotified {
		t.Fatalf("unexpected opened actions %v", actions)
	}

	merged := `{"action":"closed","number":7,"pull_request":{"number":7,"merged":true,"merge_commit_sha":"m1","base":{"ref":"main"},"head":{"ref":"feature"}},"repository":{"full_name":"acme/shop"}}`
	actions, err = handle(t, h, "pull_request", merged)
	if err != nil {
		t.Fatalf("handle merged: %v", err)
	}
	if len(actions) != 3 || actions[1] != webhooks.ActionRepositoryUpdated {
		t.Fatalf("unexpected merged actions %v", actions)
	}
}

func TestReleasePublishedPublishesDelivery(t *testing.T) {
	t.Parallel()

	rec := webhookstest.NewRecorder()
	payload := `{"action":"published","release":{"tag_name":"v1.2.0","name":"1.2.0","html_url":"https://github.com/acme/shop/releases/v1.2.0"},"repository":{"full_name":"acme/shop"}}`
	actions, err := handle(t, New(rec.Collaborators()), "release", payload)
	if err != nil {
		t.Fatalf("handle release: %v", err)
	}
	if len(actions) != 3 || actions[1] != webhooks.ActionDeliveryEventPublished {
		t.Fatalf("unexpected actions %v", actions)
	}
	if rec.Deliveries[0].Kind != ports.DeliveryPublished || rec.Deliveries[0].Artifact != "pkg:github/acme/shop@v1.2.0" {
		t.Fatalf("unexpected delivery %+v", rec.Deliveries[0])
	}
}

func TestDeploymentStatusStates(t *testing.T) {
	t.Parallel()

	cases := []struct {
		state string
		want  []string
	}{
		{state: "success", want: []string{webhooks.ActionDeploymentRecorded, webhooks.ActionDeliveryEventPublished, webhooks.ActionTeamNotified}},
		{state: "failure", want: []string{webhooks.ActionDeploymentFailed, webhooks.ActionTeamNotified}},
		{state: "in_progress", want: []string{webhooks.ActionDeploymentRecorded}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.state, func(t *testing.T) {
			t.Parallel()
			rec := webhookstest.NewRecorder()
			payload := `{"deployment_status":{"state":"` + tc.state + `","target_url":"https://ci.example/1"},"deployment":{"environment":"production","sha":"abc"},"repository":{"full_name":"acme/shop"}}`
			actions, err := handle(t, New(rec.Collaborators()), "deployment_status", payload)
			if err != nil {
				t.Fatalf("handle: %v", err)
			}
			if len(actions) != len(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, actions)
			}
			for i := range tc.want {
				if actions[i] != tc.want[i] {
					t.Fatalf("expected %v, got %v", tc.want, actions)
				}
			}
		})
	}
}

func TestWorkflowRunFailureNotifies(t *testing.T) {
	t.Parallel()

	rec := webhookstest.NewRecorder()
	h := New(rec.Collaborators())
	failed := `{"action":"completed","workflow_run":{"name":"ci","conclusion":"failure","head_branch":"main"},"repository":{"full_name":"acme/shop"}}`
	actions, err := handle(t, h, "workflow_run", failed)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(actions) != 2 || actions[0] != webhooks.ActionWorkflowFailureReported {
		t.Fatalf("unexpected actions %v", actions)
	}

	requested := `{"action":"requested","workflow_run":{"name":"ci"},"repository":{"full_name":"acme/shop"}}`
	actions, err = handle(t, h, "workflow_run", requested)
	if err != nil || len(actions) != 0 {
		t.Fatalf("expected no actions for requested run, got %v (%v)", actions, err)
	}
}

func TestMalformedPayloadFails(t *testing.T) {
	t.Parallel()

	rec := webhookstest.NewRecorder()
	if _, err := handle(t, New(rec.Collaborators()), "push", `{not json`); err == nil {
		t.Fatalf("expected parse error")
	}
	if rec.CallCount() != 0 {
		t.Fatalf("expected no collaborator calls")
	}
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, n ports.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func TestIssueNotifierFailureKeepsEarlierActions(t *testing.T) {
	t.Parallel()

	rec := webhookstest.NewRecorder()
	notifier := &mockNotifier{}
	notifier.On("Notify", mock.Anything, mock.MatchedBy(func(n ports.Notification) bool {
		return n.Audience == ports.AudienceTeam && n.Title == "Issue #3 opened"
	})).Return(errors.New("queue full")).Once()

	deps := rec.Collaborators()
	deps.Notifier = notifier

	payload := `{"action":"opened","issue":{"number":3,"title":"Crash"},"repository":{"full_name":"acme/shop"}}`
	actions, err := handle(t, New(deps), "issues", payload)
	if err == nil {
		t.Fatalf("expected notifier error")
	}
	if len(actions) != 1 || actions[0] != webhooks.ActionIssueTracked {
		t.Fatalf("unexpected actions %v", actions)
	}
	notifier.AssertExpectations(t)
}
