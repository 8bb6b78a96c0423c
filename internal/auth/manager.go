package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/fr0stylo/integrationgw/internal/app/domain"
	"github.com/fr0stylo/integrationgw/internal/credentials"
	"github.com/fr0stylo/integrationgw/internal/platform"
)

// ClientSecrets is the operator-provided configuration for one platform.
type ClientSecrets struct {
	ClientID      string
	ClientSecret  string
	WebhookSecret string
}

// HandlerRegistry is the part of the webhook handler registry the manager drives.
type HandlerRegistry interface {
	UnregisterAll(platformID string) int
}

// HandlerBinder registers default webhook handlers for a freshly connected platform.
type HandlerBinder interface {
	Bind(platformID string)
}

// Options configures a Manager.
type Options struct {
	Registry   *platform.Registry
	Store      *credentials.Store
	Handlers   HandlerRegistry
	Binder     HandlerBinder
	Secrets    map[string]ClientSecrets
	HTTPClient *http.Client
	States     *StateIssuer
	Logger     *slog.Logger
}

// Manager owns the credential lifecycle of every platform.
type Manager struct {
	registry   *platform.Registry
	store      *credentials.Store
	handlers   HandlerRegistry
	binder     HandlerBinder
	secrets    map[string]ClientSecrets
	httpClient *http.Client
	states     *StateIssuer
	log        *slog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewManager constructs a Manager.
func NewManager(opts Options) *Manager {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	states := opts.States
	if states == nil {
		states = NewStateIssuer(mustRandomSecret(), 0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	secrets := make(map[string]ClientSecrets, len(opts.Secrets))
	for id, value := range opts.Secrets {
		secrets[id] = value
	}
	return &Manager{
		registry:   opts.Registry,
		store:      opts.Store,
		handlers:   opts.Handlers,
		binder:     opts.Binder,
		secrets:    secrets,
		httpClient: client,
		states:     states,
		log:        logger,
		locks:      make(map[string]*sync.Mutex),
	}
}

// SetBinder installs the binder after construction.
func (m *Manager) SetBinder(binder HandlerBinder) {
	m.binder = binder
}

// BuildAuthorizeURL returns the platform consent URL carrying a fresh state.
func (m *Manager) BuildAuthorizeURL(platformID, redirectURI string) (string, error) {
	cfg, err := m.registry.Get(platformID)
	if err != nil {
		return "", err
	}
	state, err := m.states.Issue(cfg.ID, redirectURI)
	if err != nil {
		return "", err
	}
	return m.oauthConfig(cfg, redirectURI).AuthCodeURL(state), nil
}

// VerifyState validates a state returned to the OAuth callback.
func (m *Manager) VerifyState(platformID, state, redirectURI string) error {
	if _, err := m.registry.Get(platformID); err != nil {
		return err
	}
	return m.states.Verify(platformID, state, redirectURI)
}

// ExchangeCode trades an authorization code for tokens and stores them.
func (m *Manager) ExchangeCode(ctx context.Context, platformID, code, redirectURI string) (domain.Credentials, error) {
	cfg, err := m.registry.Get(platformID)
	if err != nil {
		return domain.Credentials{}, err
	}
	if strings.TrimSpace(code) == "" {
		return domain.Credentials{}, fmt.Errorf("%w: empty authorization code", domain.ErrOAuthExchangeFailed)
	}

	unlock := m.lock(cfg.ID)
	defer unlock()

	token, err := m.oauthConfig(cfg, redirectURI).Exchange(m.clientContext(ctx), code)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("%w: %v", domain.ErrOAuthExchangeFailed, err)
	}

	creds := domain.Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		creds.ExpiresAt = &expiry
	}
	if previous, ok := m.store.Get(cfg.ID); ok {
		creds.WebhookSecret = previous.WebhookSecret
	}
	if err := m.store.Set(ctx, cfg.ID, creds); err != nil {
		return domain.Credentials{}, err
	}

	m.log.InfoContext(ctx, "Platform connected", "platform", cfg.ID, "mode", platform.AuthModeOAuth, "credentials", creds)
	m.bind(cfg.ID)
	return creds, nil
}

// SetAPIKey validates apiKey against the platform and stores it on success.
func (m *Manager) SetAPIKey(ctx context.Context, platformID, apiKey, secretKey string) error {
	cfg, err := m.registry.Get(platformID)
	if err != nil {
		return err
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return fmt.Errorf("%w: empty api key", domain.ErrInvalidCredentials)
	}

	if err := m.validateAPIKey(ctx, cfg, apiKey); err != nil {
		return err
	}

	unlock := m.lock(cfg.ID)
	defer unlock()

	creds := domain.Credentials{APIKey: apiKey, SecretKey: strings.TrimSpace(secretKey)}
	if previous, ok := m.store.Get(cfg.ID); ok {
		creds.WebhookSecret = previous.WebhookSecret
	}
	if err := m.store.Set(ctx, cfg.ID, creds); err != nil {
		return err
	}

	m.log.InfoContext(ctx, "Platform connected", "platform", cfg.ID, "mode", platform.AuthModeAPIKey, "credentials", creds)
	m.bind(cfg.ID)
	return nil
}

func (m *Manager) validateAPIKey(ctx context.Context, cfg platform.Config, apiKey string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.APIBaseURL+cfg.ValidatePath, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: validation request failed: %v", domain.ErrInvalidCredentials, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %s rejected key: %s", domain.ErrInvalidCredentials, cfg.ID, resp.Status)
	}
	return nil
}

// RefreshIfNeeded renews an expired access token. It returns false when the
// caller must reconnect: no credentials, no refresh token, or a failed refresh.
func (m *Manager) RefreshIfNeeded(ctx context.Context, platformID string) bool {
	cfg, err := m.registry.Get(platformID)
	if err != nil {
		return false
	}

	unlock := m.lock(cfg.ID)
	defer unlock()

	creds, ok := m.store.Get(cfg.ID)
	if !ok {
		return false
	}
	if !m.store.IsExpired(cfg.ID) {
		return true
	}
	if creds.RefreshToken == "" {
		m.log.WarnContext(ctx, "Credentials expired without refresh token", "platform", cfg.ID)
		return false
	}

	source := m.oauthConfig(cfg, "").TokenSource(m.clientContext(ctx), &oauth2.Token{
		RefreshToken: creds.RefreshToken,
		Expiry:       time.Unix(1, 0),
	})
	token, err := source.Token()
	if err != nil {
		m.log.WarnContext(ctx, "Token refresh failed", "platform", cfg.ID, "error", err)
		return false
	}

	next := domain.Credentials{
		AccessToken:   token.AccessToken,
		RefreshToken:  token.RefreshToken,
		SecretKey:     creds.SecretKey,
		WebhookSecret: creds.WebhookSecret,
	}
	if next.RefreshToken == "" {
		next.RefreshToken = creds.RefreshToken
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		next.ExpiresAt = &expiry
	}
	if err := m.store.Set(ctx, cfg.ID, next); err != nil {
		m.log.ErrorContext(ctx, "Failed to store refreshed credentials", "platform", cfg.ID, "error", err)
		return false
	}
	m.log.InfoContext(ctx, "Token refreshed", "platform", cfg.ID)
	return true
}

// Disconnect removes credentials and every webhook handler of the platform.
func (m *Manager) Disconnect(ctx context.Context, platformID string) error {
	cfg, err := m.registry.Get(platformID)
	if err != nil {
		return err
	}

	unlock := m.lock(cfg.ID)
	defer unlock()

	if err := m.store.Delete(ctx, cfg.ID); err != nil {
		return err
	}
	removed := 0
	if m.handlers != nil {
		removed = m.handlers.UnregisterAll(cfg.ID)
	}
	m.log.InfoContext(ctx, "Platform disconnected", "platform", cfg.ID, "handlers_removed", removed)
	return nil
}

// Status reports the connection state from stored credentials only.
func (m *Manager) Status(platformID string) (domain.ConnectionStatus, error) {
	cfg, err := m.registry.Get(platformID)
	if err != nil {
		return "", err
	}
	creds, ok := m.store.Get(cfg.ID)
	if !ok || !creds.Usable() {
		return domain.StatusDisconnected, nil
	}
	if m.store.IsExpired(cfg.ID) {
		return domain.StatusExpired, nil
	}
	return domain.StatusConnected, nil
}

// AuthorizationHeader refreshes if needed and returns the Bearer header value.
func (m *Manager) AuthorizationHeader(ctx context.Context, platformID string) (string, error) {
	cfg, err := m.registry.Get(platformID)
	if err != nil {
		return "", err
	}
	if _, ok := m.store.Get(cfg.ID); !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrNoCredentials, cfg.ID)
	}
	if !m.RefreshIfNeeded(ctx, cfg.ID) {
		return "", fmt.Errorf("%w: %s credentials expired, reconnect required", domain.ErrNoCredentials, cfg.ID)
	}
	creds, ok := m.store.Get(cfg.ID)
	if !ok || !creds.Usable() {
		return "", fmt.Errorf("%w: %s", domain.ErrNoCredentials, cfg.ID)
	}
	return "Bearer " + creds.BearerToken(), nil
}

// StoreWebhookSecret records the shared secret of a registered webhook.
func (m *Manager) StoreWebhookSecret(ctx context.Context, platformID, secret string) error {
	cfg, err := m.registry.Get(platformID)
	if err != nil {
		return err
	}

	unlock := m.lock(cfg.ID)
	defer unlock()

	creds, ok := m.store.Get(cfg.ID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNoCredentials, cfg.ID)
	}
	creds.WebhookSecret = secret
	return m.store.Set(ctx, cfg.ID, creds)
}

// WebhookSecret resolves the verification secret: the stored credential
// secret first, the configured secret second.
func (m *Manager) WebhookSecret(platformID string) string {
	if creds, ok := m.store.Get(platformID); ok && creds.WebhookSecret != "" {
		return creds.WebhookSecret
	}
	return m.secrets[platformID].WebhookSecret
}

func (m *Manager) oauthConfig(cfg platform.Config, redirectURI string) *oauth2.Config {
	secrets := m.secrets[cfg.ID]
	return &oauth2.Config{
		ClientID:     secrets.ClientID,
		ClientSecret: secrets.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       cfg.RequiredScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.OAuthAuthorizeURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (m *Manager) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

func (m *Manager) lock(platformID string) func() {
	m.locksMu.Lock()
	mu, ok := m.locks[platformID]
	if !ok {
		mu = &sync.Mutex{}
		m.locks[platformID] = mu
	}
	m.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func (m *Manager) bind(platformID string) {
	if m.binder != nil {
		m.binder.Bind(platformID)
	}
}

func mustRandomSecret() string {
	secret, err := randomHex(32)
	if err != nil {
		panic(err)
	}
	return secret
}
