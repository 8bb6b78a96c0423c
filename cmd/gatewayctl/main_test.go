package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fr0stylo/integrationgw/internal/app/services"
	"github.com/fr0stylo/integrationgw/internal/config"
	"github.com/fr0stylo/integrationgw/internal/gateway"
	"github.com/fr0stylo/integrationgw/internal/webhooks/custom"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Environment: "test",
		Server:      config.ServerConfig{Port: 8080, PublicURL: "http://gateway.test"},
		Database:    config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "gateway")},
		Auth:        config.AuthConfig{StateSecret: "state"},
		Platforms:   config.PlatformsConfig{Enabled: []string{"github", "vercel"}, HTTPTimeout: time.Second},
		Webhooks:    config.WebhooksConfig{MaxBytes: 1 << 20, MaxRetries: 3, InternalSecret: "internal"},
	}
}

func run(t *testing.T, cfg config.Config, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c := &cli{
		out:        &out,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		loadConfig: func() (config.Config, error) { return cfg, nil },
	}
	root := newRootCmd(c)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestKeygenPrintsAgeIdentity(t *testing.T) {
	t.Parallel()

	out, err := run(t, testConfig(t), "keygen")
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(out), "AGE-SECRET-KEY-1") {
		t.Fatalf("unexpected key output %q", out)
	}
}

func TestPlatformsListHonorsEnabledSet(t *testing.T) {
	t.Parallel()

	out, err := run(t, testConfig(t), "platforms", "list")
	if err != nil {
		t.Fatalf("platforms list: %v", err)
	}
	if !strings.Contains(out, "github") || !strings.Contains(out, "vercel") || strings.Contains(out, "gitlab") {
		t.Fatalf("unexpected platform listing:\n%s", out)
	}
}

func TestEventsListAndShowReadStoredEvents(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	gw, err := gateway.Build(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("build gateway: %v", err)
	}
	body := []byte(`{"projectId":"p1","name":"Shop"}`)
	headers := http.Header{}
	headers.Set(custom.EventHeader, custom.ProjectCreated)
	headers.Set(custom.SignatureHeader, custom.SignaturePrefix+services.Sign("internal", body))
	receipt, err := gw.Ingest.Ingest(context.Background(), services.IngestCommand{Headers: headers, Body: body})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if err := gw.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	out, err := run(t, cfg, "events", "list", "--source", "internal")
	if err != nil {
		t.Fatalf("events list: %v", err)
	}
	if !strings.Contains(out, receipt.EventID) || !strings.Contains(out, custom.ProjectCreated) {
		t.Fatalf("expected stored event in listing:\n%s", out)
	}

	out, err = run(t, cfg, "events", "show", receipt.EventID)
	if err != nil {
		t.Fatalf("events show: %v", err)
	}
	if !strings.Contains(out, `"processed": true`) {
		t.Fatalf("expected processed event JSON:\n%s", out)
	}

	if _, err := run(t, cfg, "events", "show", "missing"); err == nil {
		t.Fatalf("expected error for unknown event")
	}
}

func TestEventsRetryRequiresIDOrAll(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	if _, err := run(t, cfg, "events", "retry"); err == nil {
		t.Fatalf("expected error without id or --all")
	}
	if _, err := run(t, cfg, "events", "retry", "evt-1", "--all"); err == nil {
		t.Fatalf("expected error with both id and --all")
	}
	out, err := run(t, cfg, "events", "retry", "--all")
	if err != nil {
		t.Fatalf("retry all: %v", err)
	}
	if !strings.Contains(out, "attempted=0") {
		t.Fatalf("unexpected retry summary %q", out)
	}
}

func TestCredentialsStatusReportsDisconnected(t *testing.T) {
	t.Parallel()

	out, err := run(t, testConfig(t), "credentials", "status")
	if err != nil {
		t.Fatalf("credentials status: %v", err)
	}
	if !strings.Contains(out, "github") || !strings.Contains(out, "disconnected") {
		t.Fatalf("unexpected status output:\n%s", out)
	}
}

func TestWebhookSendSignsPayload(t *testing.T) {
	t.Parallel()

	var gotType, gotSignature string
	var gotBody []byte
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get(custom.EventHeader)
		gotSignature = r.Header.Get(custom.SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("X-Webhook-Event-Id", "evt-42")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	t.Cleanup(sink.Close)

	cfg := testConfig(t)
	cfg.Server.PublicURL = sink.URL
	out, err := run(t, cfg, "webhook", "send", "--type", custom.ProjectDeleted, "--data", `{"projectId":"p9"}`)
	if err != nil {
		t.Fatalf("webhook send: %v", err)
	}
	if gotType != custom.ProjectDeleted {
		t.Fatalf("unexpected event header %q", gotType)
	}
	if gotSignature != custom.SignaturePrefix+services.Sign("internal", gotBody) {
		t.Fatalf("unexpected signature %q", gotSignature)
	}
	if !strings.Contains(out, "evt-42") {
		t.Fatalf("expected event id in output %q", out)
	}

	if _, err := run(t, cfg, "webhook", "send", "--data", "not json"); err == nil {
		t.Fatalf("expected invalid JSON error")
	}
}

func TestDeliveryPublishRequiresConfiguration(t *testing.T) {
	t.Parallel()

	_, err := run(t, testConfig(t), "delivery", "publish", "--service", "api", "--environment", "prod")
	if err == nil || !strings.Contains(err.Error(), "DDASH_ENDPOINT") {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
