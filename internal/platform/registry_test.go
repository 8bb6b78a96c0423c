package platform

import (
	"errors"
	"testing"

	"github.com/fr0stylo/integrationgw/internal/app/domain"
)

func TestDefaultCatalogLoads(t *testing.T) {
	t.Parallel()

	reg, err := Default()
	if err != nil {
		t.Fatalf("load default catalog: %v", err)
	}

	want := []string{"github", "gitlab", "vercel", "netlify", "replit", "bolt.new", "lovable"}
	got := reg.IDs()
	if len(got) != len(want) {
		t.Fatalf("expected %d platforms, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected platform %d to be %s, got %s", i, want[i], got[i])
		}
	}

	for _, cfg := range reg.List() {
		if cfg.HasCapability(CapabilityWebhooks) && len(cfg.WebhookEvents) == 0 {
			t.Fatalf("platform %s offers webhooks with empty allowlist", cfg.ID)
		}
		if cfg.TokenURL == "" {
			t.Fatalf("platform %s has no token url", cfg.ID)
		}
	}
}

func TestGetUnknownPlatform(t *testing.T) {
	t.Parallel()

	reg, err := Default()
	if err != nil {
		t.Fatalf("load default catalog: %v", err)
	}
	if _, err := reg.Get("myspace"); !errors.Is(err, domain.ErrUnsupportedPlatform) {
		t.Fatalf("expected ErrUnsupportedPlatform, got %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	t.Parallel()

	reg, err := Default()
	if err != nil {
		t.Fatalf("load default catalog: %v", err)
	}
	cfg, err := reg.Get("github")
	if err != nil {
		t.Fatalf("get github: %v", err)
	}
	cfg.RequiredScopes[0] = "mutated"
	cfg.WebhookEvents = nil

	again, _ := reg.Get("github")
	if again.RequiredScopes[0] != "repo" || len(again.WebhookEvents) == 0 {
		t.Fatalf("registry state changed through returned config: %+v", again)
	}
}

func TestNewRejectsInvalidCatalog(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		configs []Config
	}{
		{
			name: "duplicate id",
			configs: []Config{
				{ID: "a", APIBaseURL: "https://a.example"},
				{ID: "a", APIBaseURL: "https://b.example"},
			},
		},
		{
			name:    "webhooks without allowlist",
			configs: []Config{{ID: "a", APIBaseURL: "https://a.example", SyncCapabilities: []string{"webhooks"}, Webhook: WebhookConfig{EventHeader: "X-A-Event"}}},
		},
		{
			name:    "reserved id",
			configs: []Config{{ID: "internal", APIBaseURL: "https://a.example"}},
		},
		{
			name:    "unknown scheme",
			configs: []Config{{ID: "a", APIBaseURL: "https://a.example", Webhook: WebhookConfig{SignatureScheme: "md5"}}},
		},
		{
			name:    "missing base url",
			configs: []Config{{ID: "a"}},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tc.configs); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	reg, err := New([]Config{{ID: "acme", APIBaseURL: "https://api.acme.test/"}})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	cfg, _ := reg.Get("acme")
	if cfg.TokenURL != "https://api.acme.test/oauth/token" {
		t.Fatalf("unexpected token url %q", cfg.TokenURL)
	}
	if cfg.ValidatePath != "/user" || cfg.AuthMode != AuthModeOAuth || cfg.Webhook.SignatureScheme != SchemeHMACSHA256 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestOnlyKeepsCatalogOrder(t *testing.T) {
	t.Parallel()

	reg, err := Default()
	if err != nil {
		t.Fatalf("load default catalog: %v", err)
	}
	subset, err := reg.Only([]string{"lovable", "github"})
	if err != nil {
		t.Fatalf("only: %v", err)
	}
	ids := subset.IDs()
	if len(ids) != 2 || ids[0] != "github" || ids[1] != "lovable" {
		t.Fatalf("unexpected subset %v", ids)
	}
	if _, err := reg.Only([]string{"nope"}); !errors.Is(err, domain.ErrUnsupportedPlatform) {
		t.Fatalf("expected ErrUnsupportedPlatform, got %v", err)
	}
}
