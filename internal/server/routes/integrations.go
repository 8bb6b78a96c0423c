package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/fr0stylo/integrationgw/internal/app/domain"
	"github.com/fr0stylo/integrationgw/internal/platform"
	"github.com/fr0stylo/integrationgw/internal/platformclient"
)

// Connector is the credential lifecycle surface of the auth manager.
type Connector interface {
	BuildAuthorizeURL(platformID, redirectURI string) (string, error)
	VerifyState(platformID, state, redirectURI string) error
	ExchangeCode(ctx context.Context, platformID, code, redirectURI string) (domain.Credentials, error)
	SetAPIKey(ctx context.Context, platformID, apiKey, secretKey string) error
	RefreshIfNeeded(ctx context.Context, platformID string) bool
	Disconnect(ctx context.Context, platformID string) error
	Status(platformID string) (domain.ConnectionStatus, error)
}

// PlatformAPI is the outbound platform client surface.
type PlatformAPI interface {
	SyncApp(ctx context.Context, platformID, appID string) (domain.AppRecord, error)
	ListApps(ctx context.Context, platformID string) ([]json.RawMessage, error)
	ExportApp(ctx context.Context, platformID, appID, format string) (*platformclient.Export, error)
	DeployApp(ctx context.Context, platformID string, req platformclient.DeployRequest) (domain.AppRecord, error)
	RegisterWebhook(ctx context.Context, platformID, callbackURL string, requested []string) (domain.WebhookRegistration, error)
}

// IntegrationRoutes exposes platform connection and app operations to the
// host UI.
type IntegrationRoutes struct {
	registry  *platform.Registry
	connector Connector
	client    PlatformAPI
	publicURL string
	apiToken  string
}

// NewIntegrationRoutes constructs integration routes.
func NewIntegrationRoutes(registry *platform.Registry, connector Connector, client PlatformAPI, publicURL, apiToken string) *IntegrationRoutes {
	return &IntegrationRoutes{
		registry:  registry,
		connector: connector,
		client:    client,
		publicURL: strings.TrimRight(publicURL, "/"),
		apiToken:  apiToken,
	}
}

type platformView struct {
	ID               string                  `json:"id"`
	Name             string                  `json:"name"`
	AuthMode         platform.AuthMode       `json:"authMode"`
	RequiredScopes   []string                `json:"requiredScopes"`
	WebhookEvents    []string                `json:"webhookEvents"`
	ExportFormats    []string                `json:"exportFormats"`
	SyncCapabilities []string                `json:"syncCapabilities"`
	Status           domain.ConnectionStatus `json:"status"`
}

type statusResponse struct {
	Platform  string                  `json:"platform"`
	Status    domain.ConnectionStatus `json:"status"`
	Refreshed *bool                   `json:"refreshed,omitempty"`
}

type apiKeyRequest struct {
	APIKey    string `json:"apiKey"`
	SecretKey string `json:"secretKey"`
}

type webhookRequest struct {
	CallbackURL string   `json:"callbackUrl"`
	Events      []string `json:"events"`
}

// RegisterRoutes registers integration endpoints.
func (r *IntegrationRoutes) RegisterRoutes(s *echo.Echo) {
	// The OAuth callback is reached by browser redirect; its signed state
	// authenticates it instead of the bearer token.
	s.GET("/api/integrations/:platform/callback", r.handleCallback)

	api := s.Group("/api", RequireBearerToken(r.apiToken))
	api.GET("/platforms", r.handlePlatforms)

	integration := api.Group("/integrations/:platform")
	integration.GET("/authorize", r.handleAuthorize)
	integration.POST("/api-key", r.handleAPIKey)
	integration.POST("/refresh", r.handleRefresh)
	integration.GET("/status", r.handleStatus)
	integration.DELETE("", r.handleDisconnect)
	integration.GET("/apps", r.handleListApps)
	integration.GET("/apps/:id", r.handleSyncApp)
	integration.GET("/apps/:id/export", r.handleExportApp)
	integration.POST("/apps", r.handleDeployApp)
	integration.POST("/webhooks", r.handleRegisterWebhook)
}

func (r *IntegrationRoutes) handlePlatforms(c echo.Context) error {
	configs := r.registry.List()
	out := make([]platformView, 0, len(configs))
	for _, cfg := range configs {
		status, err := r.connector.Status(cfg.ID)
		if err != nil {
			return respondError(c, err)
		}
		out = append(out, platformView{
			ID:               cfg.ID,
			Name:             cfg.Name,
			AuthMode:         cfg.AuthMode,
			RequiredScopes:   cfg.RequiredScopes,
			WebhookEvents:    cfg.WebhookEvents,
			ExportFormats:    cfg.ExportFormats,
			SyncCapabilities: cfg.SyncCapabilities,
			Status:           status,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (r *IntegrationRoutes) handleAuthorize(c echo.Context) error {
	platformID := c.Param("platform")
	authorizeURL, err := r.connector.BuildAuthorizeURL(platformID, r.redirectURI(c, platformID))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"url": authorizeURL})
}

func (r *IntegrationRoutes) handleCallback(c echo.Context) error {
	platformID := c.Param("platform")
	redirectURI := r.redirectURI(c, platformID)
	if errParam := strings.TrimSpace(c.QueryParam("error")); errParam != "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "authorization denied: " + errParam, Kind: "oauth_denied"})
	}
	if err := r.connector.VerifyState(platformID, c.QueryParam("state"), redirectURI); err != nil {
		return respondError(c, err)
	}
	if _, err := r.connector.ExchangeCode(c.Request().Context(), platformID, c.QueryParam("code"), redirectURI); err != nil {
		return respondError(c, err)
	}
	return r.respondStatus(c, platformID, nil)
}

func (r *IntegrationRoutes) handleAPIKey(c echo.Context) error {
	var req apiKeyRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid api key payload")
	}
	platformID := c.Param("platform")
	if err := r.connector.SetAPIKey(c.Request().Context(), platformID, req.APIKey, req.SecretKey); err != nil {
		return respondError(c, err)
	}
	return r.respondStatus(c, platformID, nil)
}

func (r *IntegrationRoutes) handleRefresh(c echo.Context) error {
	platformID := c.Param("platform")
	if _, err := r.connector.Status(platformID); err != nil {
		return respondError(c, err)
	}
	refreshed := r.connector.RefreshIfNeeded(c.Request().Context(), platformID)
	return r.respondStatus(c, platformID, &refreshed)
}

func (r *IntegrationRoutes) handleStatus(c echo.Context) error {
	return r.respondStatus(c, c.Param("platform"), nil)
}

func (r *IntegrationRoutes) handleDisconnect(c echo.Context) error {
	if err := r.connector.Disconnect(c.Request().Context(), c.Param("platform")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (r *IntegrationRoutes) handleListApps(c echo.Context) error {
	apps, err := r.client.ListApps(c.Request().Context(), c.Param("platform"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, apps)
}

func (r *IntegrationRoutes) handleSyncApp(c echo.Context) error {
	record, err := r.client.SyncApp(c.Request().Context(), c.Param("platform"), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, record)
}

func (r *IntegrationRoutes) handleExportApp(c echo.Context) error {
	appID := c.Param("id")
	format := strings.TrimSpace(c.QueryParam("format"))
	if format == "" {
		return badRequest(c, "format is required")
	}
	export, err := r.client.ExportApp(c.Request().Context(), c.Param("platform"), appID, format)
	if err != nil {
		return respondError(c, err)
	}
	defer export.Body.Close()

	contentType := export.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	if export.Binary {
		c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", appID+"."+export.Format))
	}
	return c.Stream(http.StatusOK, contentType, export.Body)
}

func (r *IntegrationRoutes) handleDeployApp(c echo.Context) error {
	var req platformclient.DeployRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid deploy payload")
	}
	if strings.TrimSpace(req.Name) == "" && strings.TrimSpace(req.AppID) == "" {
		return badRequest(c, "name or appId is required")
	}
	record, err := r.client.DeployApp(c.Request().Context(), c.Param("platform"), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, record)
}

func (r *IntegrationRoutes) handleRegisterWebhook(c echo.Context) error {
	var req webhookRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid webhook payload")
	}
	callbackURL := strings.TrimSpace(req.CallbackURL)
	if callbackURL == "" {
		callbackURL = r.publicURL + "/webhooks"
	}
	registration, err := r.client.RegisterWebhook(c.Request().Context(), c.Param("platform"), callbackURL, req.Events)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, registration)
}

func (r *IntegrationRoutes) respondStatus(c echo.Context, platformID string, refreshed *bool) error {
	status, err := r.connector.Status(platformID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, statusResponse{Platform: platformID, Status: status, Refreshed: refreshed})
}

func (r *IntegrationRoutes) redirectURI(c echo.Context, platformID string) string {
	if redirect := strings.TrimSpace(c.QueryParam("redirect_uri")); redirect != "" {
		return redirect
	}
	return r.publicURL + "/api/integrations/" + platformID + "/callback"
}
