package platformclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/fr0stylo/integrationgw/internal/app/domain"
	"github.com/fr0stylo/integrationgw/internal/platform"
)

type stubAuthorizer struct {
	mu      sync.Mutex
	header  string
	err     error
	calls   int
	secrets map[string]string
}

func (a *stubAuthorizer) AuthorizationHeader(context.Context, string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return "", a.err
	}
	return a.header, nil
}

func (a *stubAuthorizer) StoreWebhookSecret(_ context.Context, platformID, secret string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.secrets == nil {
		a.secrets = map[string]string{}
	}
	a.secrets[platformID] = secret
	return nil
}

type recordedRequest struct {
	method string
	path   string
	query  string
	auth   string
	ctype  string
	body   []byte
}

func newPlatformServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *atomic.Int32, *[]recordedRequest) {
	t.Helper()
	var hits atomic.Int32
	var mu sync.Mutex
	requests := []recordedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			auth:   r.Header.Get("Authorization"),
			ctype:  r.Header.Get("Content-Type"),
			body:   body,
		})
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits, &requests
}

func newTestClient(t *testing.T, baseURL string, cfg platform.Config, auth Authorizer) *Client {
	t.Helper()
	cfg.APIBaseURL = baseURL
	reg, err := platform.New([]platform.Config{cfg})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return New(reg, auth, &http.Client{}, nil)
}

func TestExportUnsupportedFormatMakesNoNetworkCall(t *testing.T) {
	t.Parallel()

	srv, hits, _ := newPlatformServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	auth := &stubAuthorizer{header: "Bearer t"}
	client := newTestClient(t, srv.URL, platform.Config{ID: "lovable", ExportFormats: []string{"git", "docker"}}, auth)

	_, err := client.ExportApp(context.Background(), "lovable", "app-1", "zip")
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if hits.Load() != 0 || auth.calls != 0 {
		t.Fatalf("expected no network or auth activity, got hits=%d auth=%d", hits.Load(), auth.calls)
	}
}

func TestExportWithoutFormatsIsUnsupportedOperation(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, "https://unused.example", platform.Config{ID: "vercel"}, &stubAuthorizer{header: "Bearer t"})
	if _, err := client.ExportApp(context.Background(), "vercel", "a", "zip"); !errors.Is(err, domain.ErrUnsupportedOperation) {
		t.Fatalf("expected ErrUnsupportedOperation, got %v", err)
	}
}

func TestExportStreamsResponse(t *testing.T) {
	t.Parallel()

	archive := []byte{0x50, 0x4b, 0x03, 0x04, 0x00, 0xff}
	srv, _, requests := newPlatformServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(archive)
	})
	client := newTestClient(t, srv.URL, platform.Config{ID: "bolt.new", ExportFormats: []string{"zip", "git"}}, &stubAuthorizer{header: "Bearer tok"})

	export, err := client.ExportApp(context.Background(), "bolt.new", "my app", "ZIP")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	defer export.Body.Close()
	got, _ := io.ReadAll(export.Body)
	if string(got) != string(archive) {
		t.Fatalf("expected archive bytes unchanged")
	}
	if !export.Binary || export.ContentType != "application/zip" || export.Format != "zip" {
		t.Fatalf("unexpected export metadata %+v", export)
	}
	req := (*requests)[0]
	if req.path != "/apps/my app/export" || req.query != "format=zip" || req.auth != "Bearer tok" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestRegisterWebhookIntersectsAllowlist(t *testing.T) {
	t.Parallel()

	srv, _, requests := newPlatformServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":42}`))
	})
	auth := &stubAuthorizer{header: "Bearer t"}
	client := newTestClient(t, srv.URL, platform.Config{ID: "github", WebhookEvents: []string{"push", "pull_request"}}, auth)

	reg, err := client.RegisterWebhook(context.Background(), "github", "https://gw.example/webhooks", []string{"push", "made-up-event"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(reg.Events) != 1 || reg.Events[0] != "push" {
		t.Fatalf("expected only push registered, got %v", reg.Events)
	}
	if len(reg.Dropped) != 1 || reg.Dropped[0] != "made-up-event" || reg.ID != "42" {
		t.Fatalf("unexpected registration %+v", reg)
	}

	var sent struct {
		URL    string   `json:"url"`
		Events []string `json:"events"`
		Secret string   `json:"secret"`
	}
	req := (*requests)[0]
	if err := json.Unmarshal(req.body, &sent); err != nil {
		t.Fatalf("decode sent payload: %v", err)
	}
	if req.method != http.MethodPost || req.path != "/webhooks" || req.ctype != "application/json" {
		t.Fatalf("unexpected request %+v", req)
	}
	if len(sent.Events) != 1 || sent.Events[0] != "push" || sent.URL != "https://gw.example/webhooks" {
		t.Fatalf("unexpected payload %+v", sent)
	}
	if len(sent.Secret) != 64 || auth.secrets["github"] != sent.Secret {
		t.Fatalf("expected generated secret stored, got %q vs %q", auth.secrets["github"], sent.Secret)
	}
}

func TestRegisterWebhookWithNoSupportedEvents(t *testing.T) {
	t.Parallel()

	srv, hits, _ := newPlatformServer(t, func(w http.ResponseWriter, _ *http.Request) {})
	auth := &stubAuthorizer{header: "Bearer t"}
	client := newTestClient(t, srv.URL, platform.Config{ID: "github", WebhookEvents: []string{"push"}}, auth)

	_, err := client.RegisterWebhook(context.Background(), "github", "https://gw.example/webhooks", []string{"made-up-event"})
	if !errors.Is(err, domain.ErrNoSupportedEvents) {
		t.Fatalf("expected ErrNoSupportedEvents, got %v", err)
	}
	if hits.Load() != 0 || len(auth.secrets) != 0 {
		t.Fatalf("expected no registration side effects")
	}
}

func TestRemoteErrorCarriesStatusText(t *testing.T) {
	t.Parallel()

	srv, _, _ := newPlatformServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "maintenance window", http.StatusServiceUnavailable)
	})
	client := newTestClient(t, srv.URL, platform.Config{ID: "netlify"}, &stubAuthorizer{header: "Bearer t"})

	_, err := client.SyncApp(context.Background(), "netlify", "site-1")
	if !errors.Is(err, domain.ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
	var remote *domain.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected *RemoteError, got %T", err)
	}
	if remote.StatusCode != http.StatusServiceUnavailable || remote.Status != "503 Service Unavailable" || remote.Body != "maintenance window" {
		t.Fatalf("unexpected remote error %+v", remote)
	}
}

func TestSyncAppNormalizes(t *testing.T) {
	t.Parallel()

	srv, _, requests := newPlatformServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"site-1","name":"docs","ssl_url":"https://docs.netlify.app","published_deploy":{"state":"ready"}}`))
	})
	client := newTestClient(t, srv.URL, platform.Config{ID: "netlify"}, &stubAuthorizer{header: "Bearer t"})

	rec, err := client.SyncApp(context.Background(), "netlify", "site-1")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if rec.ID != "site-1" || rec.Status != "ready" || rec.DeploymentURL != "https://docs.netlify.app" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if (*requests)[0].path != "/apps/site-1" {
		t.Fatalf("unexpected path %s", (*requests)[0].path)
	}
}

func TestOperationsWithoutCredentials(t *testing.T) {
	t.Parallel()

	srv, hits, _ := newPlatformServer(t, func(w http.ResponseWriter, _ *http.Request) {})
	client := newTestClient(t, srv.URL, platform.Config{ID: "replit"}, &stubAuthorizer{err: domain.ErrNoCredentials})

	if _, err := client.ListApps(context.Background(), "replit"); !errors.Is(err, domain.ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
	if _, err := client.SyncApp(context.Background(), "unknown", "1"); !errors.Is(err, domain.ErrUnsupportedPlatform) {
		t.Fatalf("expected ErrUnsupportedPlatform, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no network call")
	}
}

func TestDeployApp(t *testing.T) {
	t.Parallel()

	srv, _, requests := newPlatformServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"dpl_1","name":"shop","readyState":"BUILDING"}`))
	})
	client := newTestClient(t, srv.URL, platform.Config{ID: "vercel", SyncCapabilities: []string{"deploy"}}, &stubAuthorizer{header: "Bearer t"})

	rec, err := client.DeployApp(context.Background(), "vercel", DeployRequest{
		Name:          "shop",
		Framework:     "nextjs",
		RepositoryURL: "https://github.com/acme/shop",
	})
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if rec.ID != "dpl_1" || rec.Status != "building" {
		t.Fatalf("unexpected record %+v", rec)
	}

	var sent map[string]any
	if err := json.Unmarshal((*requests)[0].body, &sent); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	git, _ := sent["gitSource"].(map[string]any)
	if sent["target"] != "production" || git["repoUrl"] != "https://github.com/acme/shop" || git["ref"] != "main" {
		t.Fatalf("unexpected vercel payload %v", sent)
	}
}

func TestRedeployPostsToAppsCollection(t *testing.T) {
	t.Parallel()

	srv, _, requests := newPlatformServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"site-9","name":"shop","state":"building"}`))
	})
	client := newTestClient(t, srv.URL, platform.Config{ID: "netlify", SyncCapabilities: []string{"deploy"}}, &stubAuthorizer{header: "Bearer t"})

	if _, err := client.DeployApp(context.Background(), "netlify", DeployRequest{AppID: "site-9"}); err != nil {
		t.Fatalf("redeploy: %v", err)
	}
	got := (*requests)[0]
	if got.method != http.MethodPost || got.path != "/apps" {
		t.Fatalf("expected POST /apps, got %s %s", got.method, got.path)
	}
	var sent map[string]any
	if err := json.Unmarshal(got.body, &sent); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if sent["id"] != "site-9" {
		t.Fatalf("expected app id in payload, got %v", sent)
	}
}

func TestDeployRequiresCapability(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, "https://unused.example", platform.Config{ID: "lovable"}, &stubAuthorizer{header: "Bearer t"})
	if _, err := client.DeployApp(context.Background(), "lovable", DeployRequest{Name: "x"}); !errors.Is(err, domain.ErrUnsupportedOperation) {
		t.Fatalf("expected ErrUnsupportedOperation, got %v", err)
	}
}

func TestUnwrapCollection(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want int
	}{
		{name: "bare array", raw: `[{"id":1},{"id":2}]`, want: 2},
		{name: "apps envelope", raw: `{"apps":[{"id":1}]}`, want: 1},
		{name: "projects envelope", raw: `{"projects":[{"id":1},{"id":2},{"id":3}],"pagination":{}}`, want: 3},
		{name: "data envelope", raw: `{"data":[]}`, want: 0},
		{name: "single object", raw: `{"id":"only"}`, want: 1},
		{name: "null", raw: `null`, want: 0},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := unwrapCollection([]byte(tc.raw))
			if err != nil {
				t.Fatalf("unwrap: %v", err)
			}
			if len(got) != tc.want {
				t.Fatalf("expected %d items, got %d", tc.want, len(got))
			}
		})
	}
}
