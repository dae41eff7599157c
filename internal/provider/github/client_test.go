package github

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/modwatch/modwatch/internal/release"
	"github.com/modwatch/modwatch/internal/testutil"
)

func newTestClient(t *testing.T, routes map[string]http.HandlerFunc) *Client {
	t.Helper()
	server := testutil.NewRouteServer(t, routes)
	return New(Config{APIURL: server.URL, UserAgent: "modwatch-test"}, testutil.NewTestLogger(t))
}

func TestClient_Kind(t *testing.T) {
	client := New(Config{}, testutil.NopLogger())
	if client.Kind() != release.KindRepository {
		t.Errorf("expected KindRepository, got %s", client.Kind())
	}
}

func TestClient_Accepts(t *testing.T) {
	client := New(Config{}, testutil.NopLogger())

	tests := []struct {
		url  string
		want bool
	}{
		{"https://github.com/foo/bar", true},
		{"https://github.com/foo/bar/releases", true},
		{"http://GitHub.com/foo/bar/", true},
		{"https://github.com/foo", false},
		{"https://github.com/", false},
		{"https://github.com/foo//bar", false},
		{"https://gitlab.com/foo/bar", false},
		{"https://api.github.com/foo/bar", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := client.Accepts(testutil.MustParseURL(t, tt.url)); got != tt.want {
				t.Errorf("Accepts(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestClient_Fetch_Success(t *testing.T) {
	client := newTestClient(t, map[string]http.HandlerFunc{
		"/repos/foo/bar/releases/latest": func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Accept"); got != "application/vnd.github+json" {
				t.Errorf("Accept header = %q", got)
			}
			if got := r.Header.Get("User-Agent"); got != "modwatch-test" {
				t.Errorf("User-Agent header = %q", got)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"tag_name": "v1.2.0",
				"published_at": "2025-03-01T10:00:00Z",
				"assets": [
					{"name": "checksums.txt", "browser_download_url": "https://dl/checksums.txt"},
					{"name": "FS25_Bar.ZIP", "browser_download_url": "https://dl/FS25_Bar.ZIP"},
					{"name": "other.zip", "browser_download_url": "https://dl/other.zip"}
				]
			}`))
		},
	})

	info, err := client.Fetch(context.Background(), "https://github.com/foo/bar")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	want := release.ReleaseInfo{
		DisplayName: "bar",
		Version:     "v1.2.0",
		PublishedAt: "2025-03-01T10:00:00Z",
		AssetURL:    "https://dl/FS25_Bar.ZIP",
		AssetName:   "FS25_Bar.ZIP",
	}
	if info != want {
		t.Errorf("Fetch() = %+v, want %+v", info, want)
	}
}

func TestClient_Fetch_NoArchiveAsset(t *testing.T) {
	client := newTestClient(t, map[string]http.HandlerFunc{
		"/repos/foo/bar/releases/latest": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"tag_name": "v2", "assets": [{"name": "bar.tar.gz", "browser_download_url": "https://dl/bar.tar.gz"}]}`))
		},
	})

	info, err := client.Fetch(context.Background(), "https://github.com/foo/bar")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if info.AssetURL != "" || info.AssetName != "" {
		t.Errorf("expected no asset, got %q %q", info.AssetURL, info.AssetName)
	}
	if info.PublishedAt != "" {
		t.Errorf("expected absent publishedAt, got %q", info.PublishedAt)
	}
}

func TestClient_Fetch_UpstreamRejected(t *testing.T) {
	client := newTestClient(t, map[string]http.HandlerFunc{
		"/repos/foo/bar/releases/latest": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
		},
	})

	_, err := client.Fetch(context.Background(), "https://github.com/foo/bar")
	if !errors.Is(err, release.ErrUpstreamRejected) {
		t.Fatalf("expected ErrUpstreamRejected, got %v", err)
	}
	if release.StatusCode(err) != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", release.StatusCode(err))
	}
}

func TestClient_Fetch_Malformed(t *testing.T) {
	client := newTestClient(t, map[string]http.HandlerFunc{
		"/repos/foo/bar/releases/latest": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>not json</html>`))
		},
	})

	_, err := client.Fetch(context.Background(), "https://github.com/foo/bar")
	if !errors.Is(err, release.ErrMalformedUpstream) {
		t.Fatalf("expected ErrMalformedUpstream, got %v", err)
	}
}

func TestClient_Fetch_Unreachable(t *testing.T) {
	client := New(Config{APIURL: "http://127.0.0.1:1"}, testutil.NopLogger())

	_, err := client.Fetch(context.Background(), "https://github.com/foo/bar")
	if !errors.Is(err, release.ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestClient_Fetch_InvalidSource(t *testing.T) {
	client := New(Config{}, testutil.NopLogger())

	_, err := client.Fetch(context.Background(), "https://github.com/foo")
	if !errors.Is(err, release.ErrInvalidSource) {
		t.Fatalf("expected ErrInvalidSource, got %v", err)
	}
}
