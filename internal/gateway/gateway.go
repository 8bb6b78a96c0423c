// Package gateway assembles the integration gateway from configuration.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/lo"
	"github.com/sourcegraph/conc/panics"

	"github.com/fr0stylo/integrationgw/internal/adapters/hostapp"
	"github.com/fr0stylo/integrationgw/internal/adapters/sqlite"
	"github.com/fr0stylo/integrationgw/internal/app/ports"
	"github.com/fr0stylo/integrationgw/internal/app/services"
	"github.com/fr0stylo/integrationgw/internal/auth"
	"github.com/fr0stylo/integrationgw/internal/config"
	"github.com/fr0stylo/integrationgw/internal/credentials"
	"github.com/fr0stylo/integrationgw/internal/db"
	"github.com/fr0stylo/integrationgw/internal/platform"
	"github.com/fr0stylo/integrationgw/internal/platformclient"
	"github.com/fr0stylo/integrationgw/internal/server"
	"github.com/fr0stylo/integrationgw/internal/server/routes"
	"github.com/fr0stylo/integrationgw/internal/webhooks"
	"github.com/fr0stylo/integrationgw/pkg/eventpublisher"
)

const (
	stateTTL        = 10 * time.Minute
	retryBatchLimit = 50
)

// Gateway holds the wired components of one gateway process.
type Gateway struct {
	Config    config.Config
	Registry  *platform.Registry
	Database  *db.Database
	Store     *credentials.Store
	Handlers  *webhooks.Registry
	Auth      *auth.Manager
	Platforms *platformclient.Client
	Ingest    *services.IngestService

	host *hostapp.Host
	log  *slog.Logger
}

// Build opens the database, restores persisted credentials and wires every
// service. Close releases what Build acquired.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (*Gateway, error) {
	if log == nil {
		log = slog.Default()
	}

	registry, err := LoadRegistry(cfg.Platforms)
	if err != nil {
		return nil, err
	}
	secrets, err := config.LoadPlatformSecrets(cfg, registry.List(), log)
	if err != nil {
		return nil, err
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store, err := newCredentialStore(cfg.Auth, database, log)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	restored, err := store.Restore(ctx)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to restore credentials: %w", err)
	}
	if restored > 0 {
		log.Info("Restored platform credentials", "count", restored)
	}

	httpClient := platformclient.NewHTTPClient(cfg.Platforms.HTTPTimeout)

	collaborators, host, err := newCollaborators(cfg, httpClient, log)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	handlers := webhooks.NewRegistry()
	binder := services.NewBinder(registry, handlers, collaborators, log)
	binder.BindAll()

	manager := auth.NewManager(auth.Options{
		Registry:   registry,
		Store:      store,
		Handlers:   handlers,
		Binder:     binder,
		Secrets:    lo.MapValues(secrets, func(s config.PlatformSecret, _ string) auth.ClientSecrets { return auth.ClientSecrets(s) }),
		HTTPClient: httpClient,
		States:     auth.NewStateIssuer(cfg.Auth.StateSecret, stateTTL),
		Logger:     log,
	})

	ingest := services.NewIngestService(services.IngestOptions{
		Registry:       registry,
		Handlers:       handlers,
		Secrets:        manager,
		Events:         sqlite.NewEventStore(database),
		InternalSecret: cfg.Webhooks.InternalSecret,
		MaxRetries:     cfg.Webhooks.MaxRetries,
		Logger:         log,
	})

	return &Gateway{
		Config:    cfg,
		Registry:  registry,
		Database:  database,
		Store:     store,
		Handlers:  handlers,
		Auth:      manager,
		Platforms: platformclient.New(registry, manager, httpClient, log),
		Ingest:    ingest,
		host:      host,
		log:       log,
	}, nil
}

// LoadRegistry loads the configured catalog restricted to the enabled platforms.
func LoadRegistry(cfg config.PlatformsConfig) (*platform.Registry, error) {
	var (
		registry *platform.Registry
		err      error
	)
	if cfg.CatalogPath != "" {
		registry, err = platform.Load(cfg.CatalogPath)
	} else {
		registry, err = platform.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load platform catalog: %w", err)
	}
	if len(cfg.Enabled) == 0 {
		return registry, nil
	}
	return registry.Only(cfg.Enabled)
}

func newCredentialStore(cfg config.AuthConfig, database *db.Database, log *slog.Logger) (*credentials.Store, error) {
	if cfg.CredentialsKey == "" {
		log.Warn("GATEWAY_CREDENTIALS_KEY not set, credentials are kept in memory only")
		return credentials.NewStore(), nil
	}
	sealer, err := credentials.NewAgeSealer(cfg.CredentialsKey)
	if err != nil {
		return nil, fmt.Errorf("invalid GATEWAY_CREDENTIALS_KEY: %w", err)
	}
	return credentials.NewStore(credentials.WithPersistence(sqlite.NewCredentialPersister(database), sealer)), nil
}

func newCollaborators(cfg config.Config, httpClient *http.Client, log *slog.Logger) (ports.Collaborators, *hostapp.Host, error) {
	fallback := hostapp.NewLogOnly(log)
	deps := ports.Collaborators{
		Repositories: fallback,
		Analysis:     fallback,
		Notifier:     fallback,
		Projects:     fallback,
		Delivery:     fallback,
	}

	var host *hostapp.Host
	if cfg.Host.EventsURL != "" {
		var err error
		host, err = hostapp.New(hostapp.Options{
			Target:     cfg.Host.EventsURL,
			Source:     cfg.Server.PublicURL,
			HTTPClient: httpClient,
			Logger:     log,
		})
		if err != nil {
			return ports.Collaborators{}, nil, fmt.Errorf("failed to create host events client: %w", err)
		}
		deps.Repositories = host
		deps.Analysis = host
		deps.Notifier = host
		deps.Projects = host
	} else {
		log.Warn("GATEWAY_HOST_EVENTS_URL not set, handler side effects are only logged")
	}

	delivery := hostapp.NewDelivery(eventpublisher.Client{
		Endpoint:   cfg.Delivery.Endpoint,
		Token:      cfg.Delivery.Token,
		Secret:     cfg.Delivery.Secret,
		Timeout:    cfg.Platforms.HTTPTimeout,
		HTTPClient: httpClient,
	})
	if delivery != nil {
		deps.Delivery = delivery
	}
	return deps, host, nil
}

// Routes returns every HTTP route registrar of the gateway.
func (g *Gateway) Routes() []server.RouteRegister {
	token := g.Config.Server.APIToken
	return []server.RouteRegister{
		routes.NewHealthRoutes(g.Database),
		routes.NewWebhookRoutes(g.Ingest, g.Registry, g.Config.Webhooks.MaxBytes),
		routes.NewIntegrationRoutes(g.Registry, g.Auth, g.Platforms, g.Config.Server.PublicURL, token),
		routes.NewEventRoutes(g.Ingest, token),
	}
}

// RunRetrySweeper retries failed events every interval until ctx is done.
// A non-positive interval disables the sweeper.
func (g *Gateway) RunRetrySweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.sweep(ctx)
		}
	}
}

func (g *Gateway) sweep(ctx context.Context) {
	var catcher panics.Catcher
	catcher.Try(func() {
		summary, err := g.Ingest.RetryPending(ctx, retryBatchLimit)
		if err != nil && !errors.Is(err, context.Canceled) {
			g.log.Error("Retry sweep failed", "error", err)
			return
		}
		if summary.Attempted > 0 {
			g.log.Info("Retry sweep finished",
				"attempted", summary.Attempted,
				"succeeded", summary.Succeeded,
				"failed", summary.Failed,
			)
		}
	})
	if recovered := catcher.Recovered(); recovered != nil {
		g.log.Error("Retry sweep panicked", "error", recovered.AsError())
	}
}

// Close waits for in-flight host deliveries and closes the database.
func (g *Gateway) Close(ctx context.Context) error {
	var errs []error
	if g.host != nil {
		if err := g.host.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("wait for host deliveries: %w", err))
		}
	}
	if err := g.Database.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}
