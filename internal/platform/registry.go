package platform

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fr0stylo/integrationgw/internal/app/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// AuthMode selects how a platform is connected.
type AuthMode string

const (
	// AuthModeOAuth connects through the authorization code flow.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeAPIKey connects with a validated static key.
	AuthModeAPIKey AuthMode = "api_key"
)

// Signature schemes accepted for inbound webhooks.
const (
	SchemeHMACSHA256 = "hmac_sha256"
	SchemeToken      = "token"
)

// CapabilityDeploy marks platforms accepting deploy requests.
const CapabilityDeploy = "deploy"

// CapabilityWebhooks marks platforms accepting webhook registration.
const CapabilityWebhooks = "webhooks"

// WebhookConfig describes how a platform signs and labels webhook deliveries.
type WebhookConfig struct {
	EventHeader     string `yaml:"eventHeader"`
	SignatureHeader string `yaml:"signatureHeader"`
	SignatureScheme string `yaml:"signatureScheme"`
	SignaturePrefix string `yaml:"signaturePrefix"`
	DeliveryHeader  string `yaml:"deliveryHeader"`
}

// Config is the immutable description of one supported platform.
type Config struct {
	ID                 string        `yaml:"id"`
	Name               string        `yaml:"name"`
	AuthMode           AuthMode      `yaml:"authMode"`
	APIBaseURL         string        `yaml:"apiBaseURL"`
	OAuthAuthorizeURL  string        `yaml:"oauthAuthorizeURL"`
	TokenURL           string        `yaml:"tokenURL"`
	ValidatePath       string        `yaml:"validatePath"`
	RequiredScopes     []string      `yaml:"requiredScopes"`
	WebhookEvents      []string      `yaml:"webhookEvents"`
	ExportFormats      []string      `yaml:"exportFormats"`
	SyncCapabilities   []string      `yaml:"syncCapabilities"`
	RateLimitPerMinute int           `yaml:"rateLimitPerMinute"`
	Webhook            WebhookConfig `yaml:"webhook"`
}

// AllowsEvent reports whether eventType is in the webhook allowlist.
func (c Config) AllowsEvent(eventType string) bool {
	return slices.Contains(c.WebhookEvents, eventType)
}

// SupportsFormat reports whether format is an offered export format.
func (c Config) SupportsFormat(format string) bool {
	return slices.Contains(c.ExportFormats, format)
}

// HasCapability reports whether capability is in the sync capability tags.
func (c Config) HasCapability(capability string) bool {
	return slices.Contains(c.SyncCapabilities, capability)
}

func (c Config) clone() Config {
	c.RequiredScopes = slices.Clone(c.RequiredScopes)
	c.WebhookEvents = slices.Clone(c.WebhookEvents)
	c.ExportFormats = slices.Clone(c.ExportFormats)
	c.SyncCapabilities = slices.Clone(c.SyncCapabilities)
	return c
}

type catalogFile struct {
	Platforms []Config `yaml:"platforms"`
}

// Registry is a read-only, ordered platform catalog.
type Registry struct {
	order []string
	byID  map[string]Config
}

// Default returns the registry built from the embedded catalog.
func Default() (*Registry, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog YAML file. An empty path loads the embedded catalog.
func Load(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read platform catalog: %w", err)
	}
	return Parse(raw)
}

// Parse decodes catalog YAML into a registry.
func Parse(raw []byte) (*Registry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode platform catalog: %w", err)
	}
	return New(file.Platforms)
}

// New validates configs and builds a registry preserving their order.
func New(configs []Config) (*Registry, error) {
	r := &Registry{
		order: make([]string, 0, len(configs)),
		byID:  make(map[string]Config, len(configs)),
	}
	for _, cfg := range configs {
		cfg = withDefaults(cfg)
		if err := validate(cfg); err != nil {
			return nil, err
		}
		if _, exists := r.byID[cfg.ID]; exists {
			return nil, fmt.Errorf("duplicate platform id %q", cfg.ID)
		}
		r.order = append(r.order, cfg.ID)
		r.byID[cfg.ID] = cfg.clone()
	}
	return r, nil
}

func withDefaults(cfg Config) Config {
	cfg.ID = strings.TrimSpace(cfg.ID)
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if cfg.AuthMode == "" {
		cfg.AuthMode = AuthModeOAuth
	}
	if cfg.TokenURL == "" && cfg.APIBaseURL != "" {
		cfg.TokenURL = cfg.APIBaseURL + "/oauth/token"
	}
	if cfg.ValidatePath == "" {
		cfg.ValidatePath = "/user"
	}
	if cfg.Webhook.SignatureScheme == "" {
		cfg.Webhook.SignatureScheme = SchemeHMACSHA256
	}
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}
	return cfg
}

func validate(cfg Config) error {
	if cfg.ID == "" {
		return fmt.Errorf("platform id is required")
	}
	if cfg.ID == domain.SourceInternal || cfg.ID == domain.SourceUnknown {
		return fmt.Errorf("platform id %q is reserved", cfg.ID)
	}
	if cfg.APIBaseURL == "" {
		return fmt.Errorf("platform %s: apiBaseURL is required", cfg.ID)
	}
	switch cfg.AuthMode {
	case AuthModeOAuth, AuthModeAPIKey:
	default:
		return fmt.Errorf("platform %s: unknown auth mode %q", cfg.ID, cfg.AuthMode)
	}
	switch cfg.Webhook.SignatureScheme {
	case SchemeHMACSHA256, SchemeToken:
	default:
		return fmt.Errorf("platform %s: unknown signature scheme %q", cfg.ID, cfg.Webhook.SignatureScheme)
	}
	if cfg.HasCapability(CapabilityWebhooks) {
		if len(cfg.WebhookEvents) == 0 {
			return fmt.Errorf("platform %s: webhook event allowlist is empty", cfg.ID)
		}
		if strings.TrimSpace(cfg.Webhook.EventHeader) == "" {
			return fmt.Errorf("platform %s: webhook event header is required", cfg.ID)
		}
	}
	return nil
}

// Get returns the platform config or ErrUnsupportedPlatform.
func (r *Registry) Get(id string) (Config, error) {
	cfg, ok := r.byID[strings.TrimSpace(id)]
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedPlatform, id)
	}
	return cfg.clone(), nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[strings.TrimSpace(id)]
	return ok
}

// List returns all platforms in catalog order.
func (r *Registry) List() []Config {
	out := make([]Config, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].clone())
	}
	return out
}

// IDs returns platform ids in catalog order.
func (r *Registry) IDs() []string {
	return slices.Clone(r.order)
}

// Only returns a registry restricted to ids, keeping catalog order.
// An empty list keeps every platform.
func (r *Registry) Only(ids []string) (*Registry, error) {
	if len(ids) == 0 {
		return r, nil
	}
	for _, id := range ids {
		if !r.Has(id) {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedPlatform, id)
		}
	}
	selected := make([]Config, 0, len(ids))
	for _, id := range r.order {
		if slices.Contains(ids, id) {
			selected = append(selected, r.byID[id])
		}
	}
	return New(selected)
}
