// Package custom handles internal host application events delivered as
// plain JSON or structured CloudEvents.
package custom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	cebinding "github.com/cloudevents/sdk-go/v2/binding"
	ceevent "github.com/cloudevents/sdk-go/v2/event"
	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"github.com/fr0stylo/integrationgw/internal/app/domain"
	"github.com/fr0stylo/integrationgw/internal/app/ports"
	"github.com/fr0stylo/integrationgw/internal/webhooks"
)

// Headers of internal host application events.
const (
	EventHeader     = "X-Flashfusion-Event"
	SignatureHeader = "X-Flashfusion-Signature"
	SignaturePrefix = "sha256="
	DeliveryHeader  = "X-Flashfusion-Delivery"
)

// Event types accepted from the host application.
const (
	ProjectCreated    = "project.created"
	ProjectUpdated    = "project.updated"
	ProjectDeleted    = "project.deleted"
	ExportCompleted   = "export.completed"
	ExportFailed      = "export.failed"
	TeamMemberAdded   = "team.member_added"
	TeamMemberRemoved = "team.member_removed"
)

const projectSchema = `{
  "type": "object",
  "required": ["projectId"],
  "properties": {
    "projectId": {"type": "string", "minLength": 1},
    "name": {"type": "string"},
    "status": {"type": "string"},
    "url": {"type": "string"}
  }
}`

const exportSchema = `{
  "type": "object",
  "required": ["exportId", "projectId", "userId"],
  "properties": {
    "exportId": {"type": "string", "minLength": 1},
    "projectId": {"type": "string", "minLength": 1},
    "userId": {"type": "string", "minLength": 1},
    "format": {"type": "string"},
    "downloadUrl": {"type": "string"},
    "error": {"type": "string"}
  }
}`

const teamSchema = `{
  "type": "object",
  "required": ["teamId", "memberId"],
  "properties": {
    "teamId": {"type": "string", "minLength": 1},
    "memberId": {"type": "string", "minLength": 1},
    "role": {"type": "string"}
  }
}`

var (
	projectSchemaCompiled = jsonschema.MustCompileString("https://integrationgw.local/schemas/project.json", projectSchema)
	exportSchemaCompiled  = jsonschema.MustCompileString("https://integrationgw.local/schemas/export.json", exportSchema)
	teamSchemaCompiled    = jsonschema.MustCompileString("https://integrationgw.local/schemas/team.json", teamSchema)
)

// ErrInvalidPayload indicates a payload failing its event schema.
var ErrInvalidPayload = errors.New("invalid internal event payload")

type projectPayload struct {
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	URL       string `json:"url"`
}

type exportPayload struct {
	ExportID    string `json:"exportId"`
	ProjectID   string `json:"projectId"`
	UserID      string `json:"userId"`
	Format      string `json:"format"`
	DownloadURL string `json:"downloadUrl"`
	Error       string `json:"error"`
}

type teamPayload struct {
	TeamID   string `json:"teamId"`
	MemberID string `json:"memberId"`
	Role     string `json:"role"`
}

// Handlers holds the internal event handlers.
type Handlers struct {
	deps ports.Collaborators
}

// New constructs internal event handlers.
func New(deps ports.Collaborators) *Handlers {
	return &Handlers{deps: deps}
}

// Bindings maps internal event types to handlers.
func (h *Handlers) Bindings() map[string]webhooks.Handler {
	return map[string]webhooks.Handler{
		ProjectCreated:    webhooks.HandlerFunc(h.project),
		ProjectUpdated:    webhooks.HandlerFunc(h.project),
		ProjectDeleted:    webhooks.HandlerFunc(h.project),
		ExportCompleted:   webhooks.HandlerFunc(h.export),
		ExportFailed:      webhooks.HandlerFunc(h.export),
		TeamMemberAdded:   webhooks.HandlerFunc(h.team),
		TeamMemberRemoved: webhooks.HandlerFunc(h.team),
	}
}

// Data returns the event data, unwrapping a structured CloudEvent when
// the payload carries a specversion.
func Data(ctx context.Context, payload string) ([]byte, error) {
	body := []byte(payload)
	if !gjson.GetBytes(body, "specversion").Exists() {
		return body, nil
	}

	req := &http.Request{
		Method: http.MethodPost,
		Header: http.Header{"Content-Type": []string{"application/cloudevents+json"}},
		Body:   io.NopCloser(bytes.NewReader(body)),
	}
	message := cehttp.NewMessageFromHttpRequest(req)
	defer func() {
		_ = message.Finish(nil)
	}()

	event, err := cebinding.ToEvent(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return cloudEventData(event)
}

func cloudEventData(event *ceevent.Event) ([]byte, error) {
	raw := json.RawMessage{}
	if err := event.DataAs(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: cloud event data is empty", ErrInvalidPayload)
	}
	return raw, nil
}

func decode(ctx context.Context, event domain.WebhookEvent, schema *jsonschema.Schema, v any) error {
	data, err := Data(ctx, event.Payload)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return json.Unmarshal(data, v)
}

func (h *Handlers) project(ctx context.Context, event domain.WebhookEvent) ([]string, error) {
	var p projectPayload
	if err := decode(ctx, event, projectSchemaCompiled, &p); err != nil {
		return nil, err
	}
	action, label := "sync", webhooks.ActionProjectSynced
	if event.Type == ProjectDeleted {
		action, label = "archive", webhooks.ActionProjectArchived
	}
	if err := h.deps.Projects.UpdateProject(ctx, ports.ProjectUpdate{
		Platform: domain.SourceInternal,
		Kind:     "project",
		ID:       p.ProjectID,
		Action:   action,
		Name:     p.Name,
		Status:   p.Status,
		URL:      p.URL,
	}); err != nil {
		return nil, err
	}
	return []string{label}, nil
}

func (h *Handlers) export(ctx context.Context, event domain.WebhookEvent) ([]string, error) {
	var p exportPayload
	if err := decode(ctx, event, exportSchemaCompiled, &p); err != nil {
		return nil, err
	}
	failed := event.Type == ExportFailed
	label, status := webhooks.ActionExportRecorded, "completed"
	if failed {
		label, status = webhooks.ActionExportFailed, "failed"
	}
	actions := []string{}
	if err := h.deps.Projects.UpdateProject(ctx, ports.ProjectUpdate{
		Platform: domain.SourceInternal,
		Kind:     "export",
		ID:       p.ExportID,
		Action:   "export_" + status,
		Status:   status,
		URL:      p.DownloadURL,
		Attributes: map[string]string{
			"project_id": p.ProjectID,
			"format":     p.Format,
			"error":      p.Error,
		},
	}); err != nil {
		return actions, err
	}
	actions = append(actions, label)

	n := ports.Notification{
		Audience:  ports.AudienceUser,
		Recipient: p.UserID,
		Platform:  domain.SourceInternal,
		Level:     "info",
		Title:     "Export ready",
		Message:   strings.TrimSpace(strings.ToUpper(p.Format) + " export is ready to download"),
		Link:      p.DownloadURL,
	}
	if failed {
		n.Level = "error"
		n.Title = "Export failed"
		n.Message = p.Error
	}
	if err := h.deps.Notifier.Notify(ctx, n); err != nil {
		return actions, err
	}
	return append(actions, webhooks.ActionUserNotified), nil
}

func (h *Handlers) team(ctx context.Context, event domain.WebhookEvent) ([]string, error) {
	var p teamPayload
	if err := decode(ctx, event, teamSchemaCompiled, &p); err != nil {
		return nil, err
	}
	change := strings.TrimPrefix(event.Type, "team.")
	actions := []string{}
	if err := h.deps.Projects.UpdateProject(ctx, ports.ProjectUpdate{
		Platform: domain.SourceInternal,
		Kind:     "team",
		ID:       p.TeamID,
		Action:   change,
		Attributes: map[string]string{
			"member_id": p.MemberID,
			"role":      p.Role,
		},
	}); err != nil {
		return actions, err
	}
	actions = append(actions, webhooks.ActionTeamUpdated)

	verb := "joined"
	if event.Type == TeamMemberRemoved {
		verb = "left"
	}
	if err := h.deps.Notifier.Notify(ctx, ports.Notification{
		Audience:  ports.AudienceTeam,
		Recipient: p.TeamID,
		Platform:  domain.SourceInternal,
		Level:     "info",
		Title:     "Team updated",
		Message:   fmt.Sprintf("%s %s the team", p.MemberID, verb),
	}); err != nil {
		return actions, err
	}
	return append(actions, webhooks.ActionTeamNotified), nil
}
