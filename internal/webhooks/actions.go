package webhooks

import (
	"path"
	"strings"
)

// Action labels reported in ProcessingResult.actions.
const (
	ActionRepositoryUpdated       = "repository_updated"
	ActionAnalysisTriggered       = "analysis_triggered"
	ActionTeamNotified            = "team_notified"
	ActionUserNotified            = "user_notified"
	ActionPullRequestTracked      = "pull_request_tracked"
	ActionIssueTracked            = "issue_tracked"
	ActionReleaseRecorded         = "release_recorded"
	ActionDeliveryEventPublished  = "delivery_event_published"
	ActionDeploymentRecorded      = "deployment_recorded"
	ActionDeploymentFailed        = "deployment_failed"
	ActionWorkflowRecorded        = "workflow_recorded"
	ActionWorkflowFailureReported = "workflow_failure_reported"
	ActionProjectSynced           = "project_synced"
	ActionProjectArchived         = "project_archived"
	ActionExportRecorded          = "export_recorded"
	ActionExportFailed            = "export_failed"
	ActionTeamUpdated             = "team_updated"
)

var dependencyManifests = map[string]struct{}{
	"package.json":      {},
	"package-lock.json": {},
	"yarn.lock":         {},
	"pnpm-lock.yaml":    {},
	"go.mod":            {},
	"go.sum":            {},
	"requirements.txt":  {},
	"pyproject.toml":    {},
	"Pipfile":           {},
	"Cargo.toml":        {},
	"Gemfile":           {},
	"pom.xml":           {},
	"build.gradle":      {},
	"composer.json":     {},
}

// DependencyManifests returns the files among changed that declare
// dependencies, in input order.
func DependencyManifests(changed []string) []string {
	var out []string
	for _, file := range changed {
		if _, ok := dependencyManifests[path.Base(strings.TrimSpace(file))]; ok {
			out = append(out, file)
		}
	}
	return out
}
