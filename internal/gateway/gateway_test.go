package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/fr0stylo/integrationgw/internal/app/domain"
	"github.com/fr0stylo/integrationgw/internal/app/services"
	"github.com/fr0stylo/integrationgw/internal/config"
	"github.com/fr0stylo/integrationgw/internal/credentials"
	"github.com/fr0stylo/integrationgw/internal/server"
	"github.com/fr0stylo/integrationgw/internal/webhooks/custom"
)

const (
	testToken          = "api-token"
	testInternalSecret = "internal-secret"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Port:      8080,
			PublicURL: "http://gateway.test",
			APIToken:  testToken,
		},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "gateway")},
		Auth:     config.AuthConfig{StateSecret: "state-secret"},
		Platforms: config.PlatformsConfig{
			Enabled:     []string{"github", "vercel"},
			HTTPTimeout: 5 * time.Second,
		},
		Webhooks: config.WebhooksConfig{
			MaxBytes:       1 << 20,
			MaxRetries:     3,
			InternalSecret: testInternalSecret,
		},
	}
}

func buildTestGateway(t *testing.T, cfg config.Config) (*Gateway, http.Handler) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := Build(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("build gateway: %v", err)
	}
	t.Cleanup(func() { _ = gw.Close(context.Background()) })

	srv := server.New(log)
	for _, r := range gw.Routes() {
		srv.RegisterRouter(r)
	}
	return gw, srv.Handler()
}

func TestBuildRestrictsCatalogToEnabledPlatforms(t *testing.T) {
	t.Parallel()

	gw, _ := buildTestGateway(t, testConfig(t))
	ids := gw.Registry.IDs()
	if len(ids) != 2 || !gw.Registry.Has("github") || !gw.Registry.Has("vercel") {
		t.Fatalf("unexpected platforms %v", ids)
	}
	if gw.Handlers.Count("github") == 0 || gw.Handlers.Count(domain.SourceInternal) == 0 {
		t.Fatalf("expected default handlers bound at startup")
	}
}

func TestSignedInternalWebhookIsProcessedAndListed(t *testing.T) {
	t.Parallel()

	_, handler := buildTestGateway(t, testConfig(t))

	body := []byte(`{"projectId":"p1","name":"Shop","status":"draft"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(custom.EventHeader, custom.ProjectCreated)
	req.Header.Set(custom.SignatureHeader, custom.SignaturePrefix+services.Sign(testInternalSecret, body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result domain.ProcessingResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	eventID := rec.Header().Get("X-Webhook-Event-Id")
	if eventID == "" {
		t.Fatalf("expected event id header")
	}

	show := httptest.NewRequest(http.MethodGet, "/api/events/"+eventID, nil)
	show.Header.Set("Authorization", "Bearer "+testToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, show)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for stored event, got %d: %s", rec.Code, rec.Body.String())
	}
	var event domain.WebhookEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if !event.Processed || event.Source != domain.SourceInternal || event.Verification != domain.VerificationVerified {
		t.Fatalf("unexpected stored event %+v", event)
	}
}

func TestTamperedWebhookIsRejected(t *testing.T) {
	t.Parallel()

	_, handler := buildTestGateway(t, testConfig(t))

	body := []byte(`{"projectId":"p1"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks", bytes.NewReader(body))
	req.Header.Set(custom.EventHeader, custom.ProjectUpdated)
	req.Header.Set(custom.SignatureHeader, custom.SignaturePrefix+services.Sign("wrong", body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestEventsAPIRequiresToken(t *testing.T) {
	t.Parallel()

	_, handler := buildTestGateway(t, testConfig(t))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestCredentialsSurviveRestartWithKey(t *testing.T) {
	t.Parallel()

	sealer, err := credentials.GenerateAgeSealer()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cfg := testConfig(t)
	cfg.Auth.CredentialsKey = sealer.SecretKey()

	first, _ := buildTestGateway(t, cfg)
	if err := first.Store.Set(context.Background(), "vercel", domain.Credentials{APIKey: "vercel-key"}); err != nil {
		t.Fatalf("store credentials: %v", err)
	}
	if err := first.Close(context.Background()); err != nil {
		t.Fatalf("close gateway: %v", err)
	}

	second, _ := buildTestGateway(t, cfg)
	creds, ok := second.Store.Get("vercel")
	if !ok || creds.APIKey != "vercel-key" {
		t.Fatalf("expected restored credentials, got %+v", creds)
	}
}

func TestRetrySweeperStopsWithContext(t *testing.T) {
	t.Parallel()

	gw, _ := buildTestGateway(t, testConfig(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		gw.RunRetrySweeper(ctx, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop")
	}
}
