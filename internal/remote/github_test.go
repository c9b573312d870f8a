package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/time/rate"

	"cms-go/internal/cms"
)

func newTestGitHub(t *testing.T, handler http.HandlerFunc) *GitHubStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGitHubStore(GitHubOptions{
		BaseURL:     srv.URL,
		TokenSource: StaticCredentials("test-token"),
		HTTPClient:  srv.Client(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestGitHubStore_ListDirectory(t *testing.T) {
	var gotAuth, gotPath, gotRef string
	g := newTestGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotRef = r.URL.Query().Get("ref")
		writeJSON(w, http.StatusOK, []map[string]any{
			{"name": "a.md", "type": "file", "sha": "sha-a", "size": 12, "download_url": "https://raw/a.md"},
			{"name": "images", "type": "dir", "sha": "sha-d", "size": 0},
		})
	})

	got, err := g.ListDirectory(context.Background(), cms.DirRef{Repo: "acme/site", Path: "_posts", Branch: "main"})
	if err != nil {
		t.Fatalf("ListDirectory() error = %v", err)
	}
	want := []cms.DirEntry{
		{Name: "a.md", Type: "file", Hash: "sha-a", Size: 12, DownloadURL: "https://raw/a.md"},
		{Name: "images", Type: "dir", Hash: "sha-d"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListDirectory() mismatch (-want +got):\n%s", diff)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotPath != "/repos/acme/site/contents/_posts" || gotRef != "main" {
		t.Errorf("request = %s?ref=%s", gotPath, gotRef)
	}
}

func TestGitHubStore_ListDirectoryMissing(t *testing.T) {
	g := newTestGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})
	_, err := g.ListDirectory(context.Background(), cms.DirRef{Repo: "acme/site", Path: "_posts", Branch: "main"})
	if !errors.Is(err, cms.ErrRemoteEmpty) {
		t.Errorf("ListDirectory() error = %v, want ErrRemoteEmpty", err)
	}
}

func TestGitHubStore_GetFile(t *testing.T) {
	body := []byte("---\ntitle: Hello\n---\n\nHi\n")
	encoded := base64.StdEncoding.EncodeToString(body)
	// GitHub wraps content lines.
	wrapped := encoded[:10] + "\n" + encoded[10:]

	g := newTestGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.EscapedPath(); got != "/repos/acme/site/contents/_posts/hello%20world.md" {
			t.Errorf("path = %s", got)
		}
		writeJSON(w, http.StatusOK, map[string]any{"type": "file", "sha": "sha-1", "content": wrapped, "encoding": "base64"})
	})

	ref := cms.FileRef{Repo: "acme/site", Path: "_posts", Filename: "hello world.md", Branch: "main"}
	got, err := g.GetFile(context.Background(), ref)
	if err != nil {
		t.Fatalf("GetFile() error = %v", err)
	}
	if string(got.Body) != string(body) || got.Revision != "sha-1" {
		t.Errorf("GetFile() = %q@%s, want %q@sha-1", got.Body, got.Revision, body)
	}
}

func TestGitHubStore_PutFile(t *testing.T) {
	var got putRequest
	var method string
	g := newTestGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &got)
		writeJSON(w, http.StatusCreated, map[string]any{"content": map[string]string{"sha": "new-sha"}})
	})

	ref := cms.FileRef{Repo: "acme/site", Path: "_posts", Filename: "a.md", Branch: "main"}
	rev, err := g.PutFile(context.Background(), ref, []byte("hello"), "old-sha", "Publish a.md")
	if err != nil {
		t.Fatalf("PutFile() error = %v", err)
	}
	if rev != "new-sha" {
		t.Errorf("PutFile() revision = %q, want new-sha", rev)
	}
	want := putRequest{Message: "Publish a.md", Content: base64.StdEncoding.EncodeToString([]byte("hello")), Branch: "main", SHA: "old-sha"}
	if method != http.MethodPut {
		t.Errorf("method = %s, want PUT", method)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("request body mismatch (-want +got):\n%s", diff)
	}
}

func TestGitHubStore_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		header   map[string]string
		write    bool
		wantKind cms.Kind
		wantWait time.Duration
	}{
		{name: "not found", status: 404, wantKind: cms.KindNotFound},
		{name: "conflict", status: 409, write: true, wantKind: cms.KindConflict},
		{name: "missing sha on write", status: 422, write: true, wantKind: cms.KindConflict},
		{name: "bad request on read", status: 422, wantKind: cms.KindInvalidInput},
		{name: "bad credentials", status: 401, wantKind: cms.KindNotConfigured},
		{name: "token without repo access", status: 403, wantKind: cms.KindRemoteDenied},
		{name: "too many requests", status: 429, header: map[string]string{"Retry-After": "30"}, wantKind: cms.KindRateLimited, wantWait: 30 * time.Second},
		{name: "secondary rate limit", status: 403, header: map[string]string{"Retry-After": "5"}, wantKind: cms.KindRateLimited, wantWait: 5 * time.Second},
		{name: "primary rate limit", status: 403, header: map[string]string{"X-RateLimit-Remaining": "0", "X-RateLimit-Reset": "1705314660"}, wantKind: cms.KindRateLimited, wantWait: time.Minute},
		{name: "server error", status: 502, wantKind: cms.KindTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			g := newTestGitHub(t, func(w http.ResponseWriter, r *http.Request) {
				calls++
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				writeJSON(w, tt.status, map[string]string{"message": "boom"})
			})
			g.now = func() time.Time { return time.Unix(1705314600, 0) }

			ref := cms.FileRef{Repo: "acme/site", Path: "_posts", Filename: "a.md", Branch: "main"}
			var err error
			if tt.write {
				_, err = g.PutFile(context.Background(), ref, []byte("x"), "", "msg")
			} else {
				_, err = g.GetFile(context.Background(), ref)
			}
			if got := cms.KindOf(err); got != tt.wantKind {
				t.Errorf("KindOf(%v) = %q, want %q", err, got, tt.wantKind)
			}
			if got := cms.RetryAfter(err); got != tt.wantWait {
				t.Errorf("RetryAfter() = %v, want %v", got, tt.wantWait)
			}
			if calls != 1 {
				t.Errorf("server saw %d calls, want exactly 1 (no retry)", calls)
			}
		})
	}
}

func TestGitHubStore_DispatchAndRunStatus(t *testing.T) {
	var dispatched dispatchRequest
	g := newTestGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/site/actions/workflows/deploy.yml/dispatches":
			data, _ := io.ReadAll(r.Body)
			json.Unmarshal(data, &dispatched)
			w.WriteHeader(http.StatusNoContent)
		case "/repos/acme/site/actions/workflows/deploy.yml/runs":
			if r.URL.Query().Get("per_page") != "1" {
				t.Errorf("per_page = %q, want 1", r.URL.Query().Get("per_page"))
			}
			writeJSON(w, http.StatusOK, map[string]any{"workflow_runs": []map[string]any{{
				"id": 42, "status": "completed", "conclusion": "success", "html_url": "https://github.com/run/42",
				"created_at": "2024-01-15T10:30:00Z", "updated_at": "2024-01-15T10:31:00Z",
			}}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()
	if err := g.Dispatch(ctx, "acme/site", "deploy.yml", "main", map[string]string{"env": "prod"}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if diff := cmp.Diff(dispatchRequest{Ref: "main", Inputs: map[string]string{"env": "prod"}}, dispatched); diff != "" {
		t.Errorf("dispatch body mismatch (-want +got):\n%s", diff)
	}

	run, err := g.RunStatus(ctx, "acme/site", "deploy.yml")
	if err != nil {
		t.Fatalf("RunStatus() error = %v", err)
	}
	if run.ID != 42 || run.Conclusion != "success" || run.URL != "https://github.com/run/42" {
		t.Errorf("RunStatus() = %+v", run)
	}
}

func TestGitHubStore_NoCredentials(t *testing.T) {
	g := NewGitHubStore(GitHubOptions{BaseURL: "http://127.0.0.1:1"})
	_, err := g.GetFile(context.Background(), cms.FileRef{Repo: "acme/site", Filename: "a.md"})
	if !errors.Is(err, cms.ErrNotConfigured) {
		t.Errorf("GetFile() without credentials error = %v, want ErrNotConfigured", err)
	}
}

func TestGitHubStore_LimiterHonorsContext(t *testing.T) {
	g := newTestGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []any{})
	})
	g.limiter = rate.NewLimiter(rate.Every(time.Hour), 1)
	ctx := context.Background()
	dir := cms.DirRef{Repo: "acme/site", Path: "_posts", Branch: "main"}

	if _, err := g.ListDirectory(ctx, dir); err != nil {
		t.Fatalf("first ListDirectory() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if _, err := g.ListDirectory(ctx, dir); cms.KindOf(err) != cms.KindTransport {
		t.Errorf("throttled ListDirectory() error = %v, want transport kind", err)
	}
}

func TestParseRetryAfterSeconds(t *testing.T) {
	tests := map[string]time.Duration{"": 0, "12": 12 * time.Second, "-1": 0, "soon": 0}
	for in, want := range tests {
		if got := parseRetryAfterSeconds(in); got != want {
			t.Errorf("parseRetryAfterSeconds(%q) = %v, want %v", in, got, want)
		}
	}
}
