// Package normalize maps platform-native app representations onto
// domain.AppRecord.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/fr0stylo/integrationgw/internal/app/domain"
)

// StatusUnknown is used when no status path resolves.
const StatusUnknown = "unknown"

// mapping lists candidate gjson paths per canonical field; the first
// non-empty match wins.
type mapping struct {
	id            []string
	name          []string
	framework     []string
	deploymentURL []string
	lastUpdate    []string
	status        []string
	sourceRepo    []string
	// archived marks the record archived when the path is true.
	archived string
}

var mappings = map[string]mapping{
	"github": {
		id:            []string{"id", "node_id"},
		name:          []string{"name", "full_name"},
		framework:     []string{"language"},
		deploymentURL: []string{"homepage"},
		lastUpdate:    []string{"pushed_at", "updated_at"},
		status:        []string{"visibility"},
		sourceRepo:    []string{"html_url", "clone_url"},
		archived:      "archived",
	},
	"gitlab": {
		id:            []string{"id"},
		name:          []string{"name", "path_with_namespace"},
		framework:     []string{"predominant_language", "language"},
		deploymentURL: []string{"pages_url"},
		lastUpdate:    []string{"last_activity_at", "updated_at"},
		status:        []string{"visibility"},
		sourceRepo:    []string{"web_url", "http_url_to_repo"},
		archived:      "archived",
	},
	"vercel": {
		id:            []string{"id", "uid"},
		name:          []string{"name"},
		framework:     []string{"framework"},
		deploymentURL: []string{"targets.production.alias.0", "latestDeployments.0.url", "url"},
		lastUpdate:    []string{"updatedAt", "createdAt"},
		status:        []string{"targets.production.readyState", "latestDeployments.0.readyState", "readyState", "state"},
		sourceRepo:    []string{"link.url", "gitRepository.url"},
	},
	"netlify": {
		id:            []string{"id", "site_id"},
		name:          []string{"name"},
		framework:     []string{"build_settings.framework", "published_deploy.framework"},
		deploymentURL: []string{"ssl_url", "url"},
		lastUpdate:    []string{"updated_at", "published_deploy.published_at"},
		status:        []string{"published_deploy.state", "state"},
		sourceRepo:    []string{"build_settings.repo_url"},
	},
	"replit": {
		id:            []string{"id"},
		name:          []string{"title", "slug", "name"},
		framework:     []string{"language", "templateInfo.label"},
		deploymentURL: []string{"deployment.url", "hostedUrl", "url"},
		lastUpdate:    []string{"timeUpdated", "updatedAt"},
		status:        []string{"deployment.status", "status"},
		sourceRepo:    []string{"origin_url", "gitRemoteUrl"},
	},
	"bolt.new": {
		id:            []string{"id", "project_id"},
		name:          []string{"name", "title"},
		framework:     []string{"framework", "stack", "template"},
		deploymentURL: []string{"deployment_url", "deployment.url", "url"},
		lastUpdate:    []string{"updated_at", "updatedAt"},
		status:        []string{"status", "deployment.status"},
		sourceRepo:    []string{"github_repo", "repository_url"},
	},
	"lovable": {
		id:            []string{"id"},
		name:          []string{"name", "title"},
		framework:     []string{"tech_stack", "framework"},
		deploymentURL: []string{"published_url", "preview_url", "url"},
		lastUpdate:    []string{"updated_at", "last_edited_at"},
		status:        []string{"status", "publish_status"},
		sourceRepo:    []string{"github.repo_url", "repository_url"},
	},
}

// Supported reports whether a mapping table exists for platformID.
func Supported(platformID string) bool {
	_, ok := mappings[platformID]
	return ok
}

// Normalize maps one raw JSON record. Unmapped platforms get the raw
// record passed through in Raw with canonical fields left empty, whether or
// not it is JSON.
func Normalize(platformID string, raw []byte) (domain.AppRecord, error) {
	m, ok := mappings[platformID]
	if !ok {
		return passthrough(platformID, raw), nil
	}
	if !gjson.ValidBytes(raw) {
		return domain.AppRecord{}, fmt.Errorf("normalize %s: invalid json record", platformID)
	}

	record := gjson.ParseBytes(raw)
	out := domain.AppRecord{
		Platform:      platformID,
		ID:            first(record, m.id),
		Name:          first(record, m.name),
		Framework:     first(record, m.framework),
		DeploymentURL: first(record, m.deploymentURL),
		LastUpdate:    firstTime(record, m.lastUpdate),
		Status:        strings.ToLower(first(record, m.status)),
		SourceRepoURL: first(record, m.sourceRepo),
	}
	if m.archived != "" && record.Get(m.archived).Bool() {
		out.Status = "archived"
	}
	if out.Status == "" {
		out.Status = StatusUnknown
	}
	if out.DeploymentURL != "" && !strings.Contains(out.DeploymentURL, "://") {
		out.DeploymentURL = "https://" + out.DeploymentURL
	}
	return out, nil
}

// NormalizeAll maps every record, stopping at the first failure.
func NormalizeAll(platformID string, records []json.RawMessage) ([]domain.AppRecord, error) {
	out := make([]domain.AppRecord, 0, len(records))
	for _, raw := range records {
		rec, err := Normalize(platformID, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func passthrough(platformID string, raw []byte) domain.AppRecord {
	out := domain.AppRecord{Platform: platformID}
	decoded := map[string]any{}
	switch {
	case json.Unmarshal(raw, &decoded) == nil:
		out.Raw = decoded
	case gjson.ValidBytes(raw):
		out.Raw = map[string]any{"value": json.RawMessage(raw)}
	default:
		out.Raw = map[string]any{"value": string(raw)}
	}
	return out
}

func first(record gjson.Result, paths []string) string {
	for _, path := range paths {
		value := record.Get(path)
		if !value.Exists() || value.Type == gjson.Null {
			continue
		}
		if s := strings.TrimSpace(value.String()); s != "" {
			return s
		}
	}
	return ""
}

func firstTime(record gjson.Result, paths []string) time.Time {
	for _, path := range paths {
		if ts, ok := parseTime(record.Get(path)); ok {
			return ts
		}
	}
	return time.Time{}
}

func parseTime(value gjson.Result) (time.Time, bool) {
	switch value.Type {
	case gjson.Number:
		return fromEpoch(value.Int()), true
	case gjson.String:
		s := strings.TrimSpace(value.Str)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return fromEpoch(n), true
		}
	}
	return time.Time{}, false
}

func fromEpoch(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
