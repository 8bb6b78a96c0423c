package normalize

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNormalizeMappedPlatforms(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		platform string
		raw      string
		wantID   string
		wantName string
		wantFW   string
		wantURL  string
		wantRepo string
		status   string
		updated  time.Time
	}{
		{
			name:     "github repository",
			platform: "github",
			raw:      `{"id":1296269,"name":"hello-world","language":"Go","homepage":"https://hello.example","pushed_at":"2026-01-02T03:04:05Z","html_url":"https://github.com/octo/hello-world","visibility":"public","archived":false}`,
			wantID:   "1296269",
			wantName: "hello-world",
			wantFW:   "Go",
			wantURL:  "https://hello.example",
			wantRepo: "https://github.com/octo/hello-world",
			status:   "public",
			updated:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		{
			name:     "vercel project with millisecond epoch",
			platform: "vercel",
			raw:      `{"id":"prj_1","name":"shop","framework":"nextjs","updatedAt":1767323045000,"targets":{"production":{"alias":["shop.vercel.app"],"readyState":"READY"}},"link":{"url":"https://github.com/acme/shop"}}`,
			wantID:   "prj_1",
			wantName: "shop",
			wantFW:   "nextjs",
			wantURL:  "https://shop.vercel.app",
			wantRepo: "https://github.com/acme/shop",
			status:   "ready",
			updated:  time.UnixMilli(1767323045000).UTC(),
		},
		{
			name:     "netlify site",
			platform: "netlify",
			raw:      `{"id":"site-1","name":"docs","ssl_url":"https://docs.netlify.app","updated_at":"2026-02-01T00:00:00.000Z","published_deploy":{"state":"ready"},"build_settings":{"repo_url":"https://github.com/acme/docs","framework":"hugo"}}`,
			wantID:   "site-1",
			wantName: "docs",
			wantFW:   "hugo",
			wantURL:  "https://docs.netlify.app",
			wantRepo: "https://github.com/acme/docs",
			status:   "ready",
			updated:  time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "bolt project with seconds epoch",
			platform: "bolt.new",
			raw:      `{"id":"b1","name":"todo","framework":"vite","deployment_url":"todo.bolt.host","updated_at":1767323045,"status":"Deployed"}`,
			wantID:   "b1",
			wantName: "todo",
			wantFW:   "vite",
			wantURL:  "https://todo.bolt.host",
			status:   "deployed",
			updated:  time.Unix(1767323045, 0).UTC(),
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec, err := Normalize(tc.platform, []byte(tc.raw))
			if err != nil {
				t.Fatalf("normalize: %v", err)
			}
			if rec.ID != tc.wantID || rec.Name != tc.wantName || rec.Framework != tc.wantFW {
				t.Fatalf("unexpected identity fields %+v", rec)
			}
			if rec.DeploymentURL != tc.wantURL || rec.SourceRepoURL != tc.wantRepo {
				t.Fatalf("unexpected urls %+v", rec)
			}
			if rec.Status != tc.status {
				t.Fatalf("expected status %q, got %q", tc.status, rec.Status)
			}
			if !rec.LastUpdate.Equal(tc.updated) {
				t.Fatalf("expected last update %v, got %v", tc.updated, rec.LastUpdate)
			}
			if rec.Raw != nil {
				t.Fatalf("mapped record should not carry raw payload")
			}
		})
	}
}

func TestNormalizeArchivedRepository(t *testing.T) {
	t.Parallel()

	rec, err := Normalize("github", []byte(`{"id":1,"name":"old","archived":true,"visibility":"public"}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if rec.Status != "archived" {
		t.Fatalf("expected archived status, got %q", rec.Status)
	}
}

func TestNormalizeMissingStatusIsUnknown(t *testing.T) {
	t.Parallel()

	rec, err := Normalize("lovable", []byte(`{"id":"l1","name":"landing"}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if rec.Status != StatusUnknown || !rec.LastUpdate.IsZero() {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestNormalizeUnknownPlatformPassesThrough(t *testing.T) {
	t.Parallel()

	raw := `{"uuid":"x-1","title":"custom","nested":{"a":1}}`
	rec, err := Normalize("myspace", []byte(raw))
	if err != nil {
		t.Fatalf("unmapped platform must not fail: %v", err)
	}
	if rec.Platform != "myspace" || rec.ID != "" || rec.Name != "" {
		t.Fatalf("expected canonical fields empty, got %+v", rec)
	}
	encoded, _ := json.Marshal(rec.Raw)
	var back map[string]any
	_ = json.Unmarshal(encoded, &back)
	if back["uuid"] != "x-1" || back["title"] != "custom" {
		t.Fatalf("expected raw record preserved, got %v", rec.Raw)
	}
}

func TestNormalizeRejectsInvalidJSONForMappedPlatform(t *testing.T) {
	t.Parallel()

	if _, err := Normalize("github", []byte(`{not json`)); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}

func TestNormalizeUnknownPlatformPassesThroughNonJSON(t *testing.T) {
	t.Parallel()

	rec, err := Normalize("myspace", []byte(`id=7;name=shop`))
	if err != nil {
		t.Fatalf("unmapped platform must not fail on non-json: %v", err)
	}
	if rec.Raw["value"] != "id=7;name=shop" {
		t.Fatalf("expected raw bytes preserved, got %v", rec.Raw)
	}
	if _, err := json.Marshal(rec); err != nil {
		t.Fatalf("passthrough record must stay encodable: %v", err)
	}

	rec, err = Normalize("myspace", []byte(`[1,2]`))
	if err != nil {
		t.Fatalf("unmapped platform must not fail on json array: %v", err)
	}
	if _, ok := rec.Raw["value"].(json.RawMessage); !ok {
		t.Fatalf("expected json array kept as raw json, got %T", rec.Raw["value"])
	}
}

func TestNormalizeAll(t *testing.T) {
	t.Parallel()

	records := []json.RawMessage{
		json.RawMessage(`{"id":1,"name":"a"}`),
		json.RawMessage(`{"id":2,"name":"b"}`),
	}
	out, err := NormalizeAll("gitlab", records)
	if err != nil {
		t.Fatalf("normalize all: %v", err)
	}
	if len(out) != 2 || out[0].ID != "1" || out[1].Name != "b" {
		t.Fatalf("unexpected records %+v", out)
	}
}
