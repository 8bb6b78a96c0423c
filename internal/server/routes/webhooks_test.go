package routes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/fr0stylo/integrationgw/internal/adapters/sqlite"
	"github.com/fr0stylo/integrationgw/internal/app/domain"
	"github.com/fr0stylo/integrationgw/internal/app/ports"
	appservices "github.com/fr0stylo/integrationgw/internal/app/services"
	"github.com/fr0stylo/integrationgw/internal/db"
	"github.com/fr0stylo/integrationgw/internal/platform"
	"github.com/fr0stylo/integrationgw/internal/webhooks"
)

func newStoredWebhookServer(t *testing.T, maxBytes int64) (*echo.Echo, *sqlite.EventStore) {
	t.Helper()
	registry, err := platform.Default()
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	database, err := db.New(filepath.Join(t.TempDir(), "events"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	store := sqlite.NewEventStore(database)
	ingest := appservices.NewIngestService(appservices.IngestOptions{
		Registry: registry,
		Handlers: webhooks.NewRegistry(),
		Events:   store,
	})
	e := echo.New()
	NewWebhookRoutes(ingest, registry, maxBytes).RegisterRoutes(e)
	return e, store
}

func TestOversizedWebhookIsRecorded(t *testing.T) {
	t.Parallel()
	e, store := newStoredWebhookServer(t, 16)

	req := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(strings.Repeat("a", 64)))
	req.Header.Set("X-GitHub-Event", "push")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	events, err := store.ListEvents(context.Background(), ports.EventFilter{})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected exactly one stored event, got %d", len(events))
	}
	stored := events[0]
	if stored.ID != rec.Header().Get("X-Webhook-Event-Id") {
		t.Fatalf("stored id %q does not match response header", stored.ID)
	}
	if stored.Processed || stored.Verification != domain.VerificationFailed || stored.Source != "github" {
		t.Fatalf("unexpected stored event %+v", stored)
	}
	if len(stored.Payload) != 16 {
		t.Fatalf("expected truncated payload of 16 bytes, got %d", len(stored.Payload))
	}
	found := false
	for _, entry := range stored.ProcessingLog {
		if strings.Contains(entry, "body exceeded 16 bytes") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected size rejection in processing log, got %v", stored.ProcessingLog)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestUnreadableWebhookIsRecorded(t *testing.T) {
	t.Parallel()
	e, store := newStoredWebhookServer(t, 1024)

	req := httptest.NewRequest(http.MethodPost, "/webhooks", failingReader{})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	events, err := store.ListEvents(context.Background(), ports.EventFilter{})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].Processed || events[0].Verification != domain.VerificationFailed {
		t.Fatalf("expected one failed stored event, got %+v", events)
	}
}
