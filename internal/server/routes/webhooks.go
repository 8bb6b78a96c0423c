package routes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/fr0stylo/integrationgw/internal/app/domain"
	appservices "github.com/fr0stylo/integrationgw/internal/app/services"
	"github.com/fr0stylo/integrationgw/internal/platform"
	"github.com/fr0stylo/integrationgw/internal/webhooks/custom"
)

const defaultMaxWebhookBytes = 5 << 20

// Ingester runs inbound webhooks through the ingestion pipeline.
type Ingester interface {
	Ingest(ctx context.Context, cmd appservices.IngestCommand) (appservices.Receipt, error)
}

// WebhookRoutes registers the single inbound webhook endpoint.
type WebhookRoutes struct {
	ingest       Ingester
	maxBytes     int64
	allowHeaders string
}

// NewWebhookRoutes constructs webhook routes. The CORS preflight allows
// every event, signature and delivery header named in registry.
func NewWebhookRoutes(ingest Ingester, registry *platform.Registry, maxBytes int64) *WebhookRoutes {
	if maxBytes <= 0 {
		maxBytes = defaultMaxWebhookBytes
	}
	return &WebhookRoutes{
		ingest:       ingest,
		maxBytes:     maxBytes,
		allowHeaders: preflightHeaders(registry),
	}
}

// RegisterRoutes registers webhook endpoints.
func (w *WebhookRoutes) RegisterRoutes(s *echo.Echo) {
	s.Any("/webhooks", w.handleWebhook)
}

func (w *WebhookRoutes) handleWebhook(c echo.Context) error {
	switch c.Request().Method {
	case http.MethodOptions:
		h := c.Response().Header()
		h.Set(echo.HeaderAccessControlAllowOrigin, "*")
		h.Set(echo.HeaderAccessControlAllowMethods, "POST, OPTIONS")
		h.Set(echo.HeaderAccessControlAllowHeaders, w.allowHeaders)
		h.Set(echo.HeaderAccessControlMaxAge, "86400")
		return c.NoContent(http.StatusNoContent)
	case http.MethodPost:
	default:
		c.Response().Header().Set(echo.HeaderAllow, "POST, OPTIONS")
		return c.JSON(http.StatusMethodNotAllowed, domain.ProcessingResult{
			Success: false,
			Message: "method not allowed",
			Actions: []string{},
		})
	}

	cmd := appservices.IngestCommand{Headers: c.Request().Header.Clone()}
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, w.maxBytes+1))
	switch {
	case err != nil:
		cmd.Rejected = fmt.Errorf("%w: read body: %v", domain.ErrMalformedRequest, err)
	case int64(len(body)) > w.maxBytes:
		body = body[:w.maxBytes]
		cmd.Rejected = fmt.Errorf("%w: body exceeded %d bytes", domain.ErrPayloadTooLarge, w.maxBytes)
	}
	cmd.Body = body

	receipt, err := w.ingest.Ingest(c.Request().Context(), cmd)
	c.Response().Header().Set(echo.HeaderAccessControlAllowOrigin, "*")
	c.Response().Header().Set("X-Webhook-Event-Id", receipt.EventID)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, receipt.Result)
	case errors.Is(err, domain.ErrSignatureInvalid):
		return c.JSON(http.StatusUnauthorized, receipt.Result)
	case errors.Is(err, domain.ErrPayloadTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, receipt.Result)
	case errors.Is(err, domain.ErrMalformedRequest):
		return c.JSON(http.StatusBadRequest, receipt.Result)
	default:
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, receipt.Result)
	}
}

func preflightHeaders(registry *platform.Registry) string {
	headers := []string{echo.HeaderContentType, custom.EventHeader, custom.SignatureHeader, custom.DeliveryHeader}
	seen := map[string]struct{}{}
	for _, h := range headers {
		seen[strings.ToLower(h)] = struct{}{}
	}
	if registry != nil {
		for _, cfg := range registry.List() {
			for _, h := range []string{cfg.Webhook.EventHeader, cfg.Webhook.SignatureHeader, cfg.Webhook.DeliveryHeader} {
				key := strings.ToLower(h)
				if _, ok := seen[key]; h == "" || ok {
					continue
				}
				seen[key] = struct{}{}
				headers = append(headers, h)
			}
		}
	}
	return strings.Join(headers, ", ")
}
