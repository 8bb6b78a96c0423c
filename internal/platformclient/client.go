// Package platformclient executes authenticated REST calls against
// supported platforms.
package platformclient

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/fr0stylo/integrationgw/internal/app/domain"
	"github.com/fr0stylo/integrationgw/internal/normalize"
	"github.com/fr0stylo/integrationgw/internal/platform"
)

const (
	maxResponseBytes = 10 << 20
	webhookSecretLen = 32
)

// Authorizer supplies fresh authorization headers and stores webhook secrets.
type Authorizer interface {
	AuthorizationHeader(ctx context.Context, platformID string) (string, error)
	StoreWebhookSecret(ctx context.Context, platformID, secret string) error
}

// Client performs sync, export, deploy, listing and webhook registration.
type Client struct {
	registry *platform.Registry
	auth     Authorizer
	http     *http.Client
	limiters map[string]*rate.Limiter
	log      *slog.Logger
}

// NewHTTPClient returns a traced client with a bounded timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// New constructs a Client with one outbound limiter per platform.
func New(registry *platform.Registry, auth Authorizer, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	limiters := make(map[string]*rate.Limiter)
	for _, cfg := range registry.List() {
		limiters[cfg.ID] = newLimiter(cfg.RateLimitPerMinute)
	}
	return &Client{
		registry: registry,
		auth:     auth,
		http:     httpClient,
		limiters: limiters,
		log:      logger,
	}
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := max(1, perMinute/10)
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60), burst)
}

// SyncApp fetches one app and maps it to the canonical record.
func (c *Client) SyncApp(ctx context.Context, platformID, appID string) (domain.AppRecord, error) {
	cfg, err := c.registry.Get(platformID)
	if err != nil {
		return domain.AppRecord{}, err
	}
	raw, err := c.fetch(ctx, cfg, http.MethodGet, "/apps/"+url.PathEscape(appID), nil)
	if err != nil {
		return domain.AppRecord{}, err
	}
	return normalize.Normalize(cfg.ID, raw)
}

// ListApps returns the raw app collection, unwrapped from common envelopes.
func (c *Client) ListApps(ctx context.Context, platformID string) ([]json.RawMessage, error) {
	cfg, err := c.registry.Get(platformID)
	if err != nil {
		return nil, err
	}
	raw, err := c.fetch(ctx, cfg, http.MethodGet, "/apps", nil)
	if err != nil {
		return nil, err
	}
	return unwrapCollection(raw)
}

func unwrapCollection(raw []byte) ([]json.RawMessage, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("decode app list: invalid json")
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsArray() && doc.IsObject() {
		for _, key := range []string{"apps", "projects", "data", "items", "sites"} {
			if inner := doc.Get(key); inner.IsArray() {
				doc = inner
				break
			}
		}
	}
	if !doc.IsArray() {
		if doc.Type == gjson.Null {
			return []json.RawMessage{}, nil
		}
		return []json.RawMessage{json.RawMessage(doc.Raw)}, nil
	}
	items := doc.Array()
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		out = append(out, json.RawMessage(item.Raw))
	}
	return out, nil
}

// Export is a streamed platform export. Callers close Body.
type Export struct {
	Body        io.ReadCloser
	ContentType string
	Format      string
	Binary      bool
}

var binaryFormats = map[string]struct{}{
	"zip": {}, "tar": {}, "tar.gz": {}, "tgz": {}, "docker": {},
}

// ExportApp streams an export in format. Unsupported formats fail before
// any network call.
func (c *Client) ExportApp(ctx context.Context, platformID, appID, format string) (*Export, error) {
	cfg, err := c.registry.Get(platformID)
	if err != nil {
		return nil, err
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if len(cfg.ExportFormats) == 0 {
		return nil, fmt.Errorf("%w: %s offers no exports", domain.ErrUnsupportedOperation, cfg.ID)
	}
	if !cfg.SupportsFormat(format) {
		return nil, fmt.Errorf("%w: %s supports %s", domain.ErrUnsupportedFormat, cfg.ID, strings.Join(cfg.ExportFormats, ", "))
	}

	path := "/apps/" + url.PathEscape(appID) + "/export?format=" + url.QueryEscape(format)
	resp, err := c.do(ctx, cfg, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	_, binary := binaryFormats[format]
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
		if binary {
			contentType = "application/octet-stream"
		}
	}
	return &Export{Body: resp.Body, ContentType: contentType, Format: format, Binary: binary}, nil
}

// DeployRequest is the platform-neutral deploy input.
type DeployRequest struct {
	AppID         string            `json:"appId,omitempty"`
	Name          string            `json:"name"`
	Framework     string            `json:"framework,omitempty"`
	RepositoryURL string            `json:"repositoryUrl,omitempty"`
	Branch        string            `json:"branch,omitempty"`
	Environment   string            `json:"environment,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
}

// DeployApp posts a platform-shaped deploy payload to POST /apps. A
// redeploy of an existing app carries its id in the payload.
func (c *Client) DeployApp(ctx context.Context, platformID string, req DeployRequest) (domain.AppRecord, error) {
	cfg, err := c.registry.Get(platformID)
	if err != nil {
		return domain.AppRecord{}, err
	}
	if !cfg.HasCapability(platform.CapabilityDeploy) {
		return domain.AppRecord{}, fmt.Errorf("%w: %s does not deploy", domain.ErrUnsupportedOperation, cfg.ID)
	}
	if strings.TrimSpace(req.Name) == "" && strings.TrimSpace(req.AppID) == "" {
		return domain.AppRecord{}, fmt.Errorf("deploy %s: name or app id is required", cfg.ID)
	}

	raw, err := c.fetch(ctx, cfg, http.MethodPost, "/apps", deployPayload(cfg.ID, req))
	if err != nil {
		return domain.AppRecord{}, err
	}
	return normalize.Normalize(cfg.ID, raw)
}

func deployPayload(platformID string, req DeployRequest) map[string]any {
	payload := platformDeployPayload(platformID, req)
	if req.AppID != "" {
		payload["id"] = req.AppID
	}
	return payload
}

func platformDeployPayload(platformID string, req DeployRequest) map[string]any {
	environment := lo.Ternary(req.Environment == "", "production", req.Environment)
	branch := lo.Ternary(req.Branch == "", "main", req.Branch)
	switch platformID {
	case "vercel":
		payload := map[string]any{
			"name":   req.Name,
			"target": environment,
		}
		if req.RepositoryURL != "" {
			payload["gitSource"] = map[string]any{"type": "github", "repoUrl": req.RepositoryURL, "ref": branch}
		}
		if req.Framework != "" {
			payload["projectSettings"] = map[string]any{"framework": req.Framework}
		}
		if len(req.Env) > 0 {
			payload["env"] = req.Env
		}
		return payload
	case "netlify":
		payload := map[string]any{
			"name":    req.Name,
			"context": environment,
		}
		if req.RepositoryURL != "" {
			payload["repo"] = map[string]any{"repo_url": req.RepositoryURL, "branch": branch}
		}
		if len(req.Env) > 0 {
			payload["build_settings"] = map[string]any{"env": req.Env}
		}
		return payload
	default:
		return map[string]any{
			"name":        req.Name,
			"framework":   req.Framework,
			"repository":  req.RepositoryURL,
			"branch":      branch,
			"environment": environment,
			"env":         req.Env,
		}
	}
}

// RegisterWebhook registers callbackURL for the allowlisted subset of
// requested events and stores the generated shared secret.
func (c *Client) RegisterWebhook(ctx context.Context, platformID, callbackURL string, requested []string) (domain.WebhookRegistration, error) {
	cfg, err := c.registry.Get(platformID)
	if err != nil {
		return domain.WebhookRegistration{}, err
	}
	if len(cfg.WebhookEvents) == 0 {
		return domain.WebhookRegistration{}, fmt.Errorf("%w: %s has no webhooks", domain.ErrUnsupportedOperation, cfg.ID)
	}

	requested = lo.Uniq(lo.Map(requested, func(e string, _ int) string { return strings.TrimSpace(e) }))
	events := lo.Filter(requested, func(e string, _ int) bool { return cfg.AllowsEvent(e) })
	dropped := lo.Filter(requested, func(e string, _ int) bool { return !cfg.AllowsEvent(e) })
	if len(events) == 0 {
		return domain.WebhookRegistration{}, fmt.Errorf("%w: %s accepts %s", domain.ErrNoSupportedEvents, cfg.ID, strings.Join(cfg.WebhookEvents, ", "))
	}
	if len(dropped) > 0 {
		c.log.InfoContext(ctx, "Dropping unsupported webhook events", "platform", cfg.ID, "dropped", dropped)
	}

	secret, err := newWebhookSecret()
	if err != nil {
		return domain.WebhookRegistration{}, err
	}
	raw, err := c.fetch(ctx, cfg, http.MethodPost, "/webhooks", map[string]any{
		"url":          callbackURL,
		"events":       events,
		"secret":       secret,
		"content_type": "json",
		"active":       true,
	})
	if err != nil {
		return domain.WebhookRegistration{}, err
	}
	if err := c.auth.StoreWebhookSecret(ctx, cfg.ID, secret); err != nil {
		return domain.WebhookRegistration{}, fmt.Errorf("store webhook secret: %w", err)
	}

	return domain.WebhookRegistration{
		Platform:    cfg.ID,
		ID:          gjson.GetBytes(raw, "id").String(),
		CallbackURL: callbackURL,
		Events:      events,
		Dropped:     dropped,
	}, nil
}

func newWebhookSecret() (string, error) {
	buf := make([]byte, webhookSecretLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate webhook secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (c *Client) fetch(ctx context.Context, cfg platform.Config, method, path string, body any) ([]byte, error) {
	resp, err := c.do(ctx, cfg, method, path, body)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", cfg.ID, err)
	}
	return raw, nil
}

// do sends an authorized request and converts non-2xx responses into
// *domain.RemoteError.
func (c *Client) do(ctx context.Context, cfg platform.Config, method, path string, body any) (*http.Response, error) {
	header, err := c.auth.AuthorizationHeader(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", cfg.ID, err)
		}
		reader = bytes.NewReader(encoded)
	}

	if limiter := c.limiters[cfg.ID]; limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit %s: %w", cfg.ID, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, cfg.APIBaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", header)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s %s: %w", cfg.ID, method, path, err)
	}
	c.log.DebugContext(ctx, "Platform call", "platform", cfg.ID, "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer func() {
			_ = resp.Body.Close()
		}()
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, domain.NewRemoteError(cfg.ID, resp.StatusCode, resp.Status, excerpt)
	}
	return resp, nil
}
