package hostapp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fr0stylo/integrationgw/internal/app/ports"
	"github.com/fr0stylo/integrationgw/pkg/eventpublisher"
)

type sink struct {
	mu       sync.Mutex
	types    []string
	bodies   [][]byte
	requests atomic.Int32
	statuses []int
}

func (s *sink) handler(w http.ResponseWriter, r *http.Request) {
	n := int(s.requests.Add(1))
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.types = append(s.types, r.Header.Get("Ce-Type"))
	s.bodies = append(s.bodies, body)
	status := http.StatusAccepted
	if n <= len(s.statuses) {
		status = s.statuses[n-1]
	}
	s.mu.Unlock()
	w.WriteHeader(status)
}

func (s *sink) snapshot() ([]string, [][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.types...), append([][]byte(nil), s.bodies...)
}

func newTestHost(t *testing.T, statuses ...int) (*Host, *sink) {
	t.Helper()
	s := &sink{statuses: statuses}
	server := httptest.NewServer(http.HandlerFunc(s.handler))
	t.Cleanup(server.Close)
	host, err := New(Options{Target: server.URL, BaseDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	return host, s
}

func TestHostSendsCloudEvents(t *testing.T) {
	t.Parallel()

	host, s := newTestHost(t)
	ctx := context.Background()
	if err := host.UpdateRepository(ctx, ports.RepositoryUpdate{Platform: "github", Repository: "acme/shop", Ref: "refs/heads/main"}); err != nil {
		t.Fatalf("update repository: %v", err)
	}
	if err := host.Notify(ctx, ports.Notification{Audience: ports.AudienceTeam, Title: "Push"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := host.UpdateProject(ctx, ports.ProjectUpdate{Kind: "project", ID: "p1", Action: "created"}); err != nil {
		t.Fatalf("update project: %v", err)
	}

	types, bodies := s.snapshot()
	want := []string{TypeRepositoryUpdated, TypeNotification, TypeProjectUpdated}
	if len(types) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d type = %s, want %s", i, types[i], want[i])
		}
	}
	var update ports.RepositoryUpdate
	if err := json.Unmarshal(bodies[0], &update); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if update.Repository != "acme/shop" || update.Ref != "refs/heads/main" {
		t.Fatalf("unexpected body %+v", update)
	}
}

func TestHostRetriesServerErrors(t *testing.T) {
	t.Parallel()

	host, s := newTestHost(t, http.StatusServiceUnavailable, http.StatusBadGateway)
	if err := host.Notify(context.Background(), ports.Notification{Title: "retry"}); err != nil {
		t.Fatalf("expected delivery after retries, got %v", err)
	}
	if got := s.requests.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestHostDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	host, s := newTestHost(t, http.StatusBadRequest)
	if err := host.Notify(context.Background(), ports.Notification{Title: "bad"}); err == nil {
		t.Fatalf("expected rejection error")
	}
	if got := s.requests.Load(); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestTriggerAnalysisIsAsynchronous(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		received.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(server.Close)
	host, err := New(Options{Target: server.URL})
	if err != nil {
		t.Fatalf("new host: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := host.TriggerAnalysis(ctx, ports.AnalysisRequest{Platform: "github", Repository: "acme/shop"}); err != nil {
		t.Fatalf("trigger analysis: %v", err)
	}
	cancel()
	if received.Load() != 0 {
		t.Fatalf("analysis must not block the caller")
	}
	close(release)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if err := host.Wait(waitCtx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if received.Load() != 1 {
		t.Fatalf("expected analysis to be delivered after caller context was cancelled")
	}
}

func TestNewRequiresTarget(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected missing target error")
	}
}

func TestDeliveryPublishesCDEvents(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.URL.Path != "/webhooks/cdevents" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(server.Close)

	if NewDelivery(eventpublisher.Client{}) != nil {
		t.Fatalf("unconfigured client must not produce a publisher")
	}
	delivery := NewDelivery(eventpublisher.Client{Endpoint: server.URL, Token: "t", Secret: "s"})
	delivery.baseDelay = time.Millisecond
	err := delivery.PublishDelivery(context.Background(), ports.DeliveryEvent{
		Kind:     ports.DeliveryDeployed,
		Platform: "vercel",
		Service:  "shop",
		Artifact: "pkg:generic/vercel/shop@abc123",
	})
	if err != nil {
		t.Fatalf("publish delivery: %v", err)
	}
	if attempts.Load() != 2 {
		t.Fatalf("expected one retry, got %d attempts", attempts.Load())
	}
}
