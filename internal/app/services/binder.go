package services

import (
	"log/slog"

	"github.com/fr0stylo/integrationgw/internal/app/domain"
	"github.com/fr0stylo/integrationgw/internal/app/ports"
	"github.com/fr0stylo/integrationgw/internal/platform"
	"github.com/fr0stylo/integrationgw/internal/webhooks"
	"github.com/fr0stylo/integrationgw/internal/webhooks/custom"
	"github.com/fr0stylo/integrationgw/internal/webhooks/deploy"
	"github.com/fr0stylo/integrationgw/internal/webhooks/github"
	"github.com/fr0stylo/integrationgw/internal/webhooks/gitlab"
)

// Binder registers the default webhook handlers of a platform.
type Binder struct {
	registry *platform.Registry
	handlers *webhooks.Registry
	deps     ports.Collaborators
	log      *slog.Logger
}

// NewBinder constructs a Binder.
func NewBinder(registry *platform.Registry, handlers *webhooks.Registry, deps ports.Collaborators, logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Binder{registry: registry, handlers: handlers, deps: deps, log: logger}
}

// Bind installs the default handlers of platformID. Rebinding swaps the
// defaults atomically and keeps handlers registered by other callers.
func (b *Binder) Bind(platformID string) {
	bindings := b.bindings(platformID)
	replaced := b.handlers.ReplaceDefaults(platformID, bindings)
	b.log.Debug("webhook handlers bound", "platform", platformID, "handlers", len(bindings), "replaced", replaced)
}

// BindAll binds the internal handlers and every catalog platform.
func (b *Binder) BindAll() {
	b.Bind(domain.SourceInternal)
	for _, id := range b.registry.IDs() {
		b.Bind(id)
	}
}

func (b *Binder) bindings(platformID string) map[string]webhooks.Handler {
	switch platformID {
	case domain.SourceInternal:
		return custom.New(b.deps).Bindings()
	case "github":
		return github.New(b.deps).Bindings()
	case "gitlab":
		return gitlab.New(b.deps).Bindings()
	}
	cfg, err := b.registry.Get(platformID)
	if err != nil {
		return nil
	}
	return deploy.New(cfg.ID, b.deps).Bindings(cfg.WebhookEvents)
}
