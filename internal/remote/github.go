// Package remote implements the Remote Content Store adapters.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"cms-go/internal/cms"
)

// GitHubOptions configures a GitHubStore.
type GitHubOptions struct {
	BaseURL     string
	TokenSource oauth2.TokenSource
	HTTPClient  *http.Client
	UserAgent   string
	// Limiter throttles outgoing requests. Nil disables throttling.
	Limiter *rate.Limiter
}

// GitHubStore talks to the GitHub contents and actions APIs. It never retries:
// a 429 or a secondary rate limit surfaces as a *cms.RateLimitError.
type GitHubStore struct {
	baseURL     string
	tokenSource oauth2.TokenSource
	httpClient  *http.Client
	userAgent   string
	limiter     *rate.Limiter
	now         func() time.Time
}

var _ cms.RemoteStore = (*GitHubStore)(nil)

func NewGitHubStore(opts GitHubOptions) *GitHubStore {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = "cms-go"
	}
	return &GitHubStore{
		baseURL:     baseURL,
		tokenSource: opts.TokenSource,
		httpClient:  httpClient,
		userAgent:   userAgent,
		limiter:     opts.Limiter,
		now:         time.Now,
	}
}

type contentEntry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	SHA         string `json:"sha"`
	Size        int64  `json:"size"`
	Type        string `json:"type"`
	DownloadURL string `json:"download_url"`
	Content     string `json:"content"`
	Encoding    string `json:"encoding"`
}

func (g *GitHubStore) ListDirectory(ctx context.Context, dir cms.DirRef) ([]cms.DirEntry, error) {
	endpoint := g.contentsURL(dir.Repo, strings.Trim(dir.Path, "/"), dir.Branch)
	body, err := g.do(ctx, http.MethodGet, endpoint, nil, "", false)
	if err != nil {
		if errors.Is(err, cms.ErrNotFound) {
			return nil, fmt.Errorf("list %s/%s: %w", dir.Repo, dir.Path, cms.ErrRemoteEmpty)
		}
		return nil, fmt.Errorf("list %s/%s: %w", dir.Repo, dir.Path, err)
	}

	var raw []contentEntry
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("list %s/%s: not a directory: %w", dir.Repo, dir.Path, cms.ErrInvalidInput)
	}
	entries := make([]cms.DirEntry, 0, len(raw))
	for _, e := range raw {
		entries = append(entries, cms.DirEntry{
			Name:        e.Name,
			Type:        e.Type,
			Hash:        e.SHA,
			Size:        e.Size,
			DownloadURL: e.DownloadURL,
		})
	}
	return entries, nil
}

func (g *GitHubStore) GetFile(ctx context.Context, ref cms.FileRef) (*cms.RemoteFile, error) {
	endpoint := g.contentsURL(ref.Repo, ref.FullPath(), ref.Branch)
	body, err := g.do(ctx, http.MethodGet, endpoint, nil, "", false)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", ref.FullPath(), err)
	}

	var e contentEntry
	if err := json.Unmarshal(body, &e); err != nil || e.Type != "file" {
		return nil, fmt.Errorf("get %s: not a file: %w", ref.FullPath(), cms.ErrInvalidInput)
	}

	var content []byte
	if e.Encoding == "base64" {
		// GitHub wraps base64 content at 60 columns.
		content, err = base64.StdEncoding.DecodeString(strings.ReplaceAll(e.Content, "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("get %s: decoding content: %w", ref.FullPath(), err)
		}
	} else {
		// Files over 1 MB come back without inline content.
		content, err = g.do(ctx, http.MethodGet, endpoint, nil, "application/vnd.github.raw+json", false)
		if err != nil {
			return nil, fmt.Errorf("get raw %s: %w", ref.FullPath(), err)
		}
	}
	return &cms.RemoteFile{Ref: ref, Body: content, Revision: e.SHA}, nil
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch,omitempty"`
	SHA     string `json:"sha,omitempty"`
}

type putResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

func (g *GitHubStore) PutFile(ctx context.Context, ref cms.FileRef, body []byte, revision, message string) (string, error) {
	payload := putRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(body),
		Branch:  ref.Branch,
		SHA:     revision,
	}
	resp, err := g.do(ctx, http.MethodPut, g.contentsURL(ref.Repo, ref.FullPath(), ""), payload, "", true)
	if err != nil {
		return "", fmt.Errorf("put %s: %w", ref.FullPath(), err)
	}
	var out putResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", fmt.Errorf("put %s: decoding response: %w", ref.FullPath(), err)
	}
	return out.Content.SHA, nil
}

type deleteRequest struct {
	Message string `json:"message"`
	SHA     string `json:"sha"`
	Branch  string `json:"branch,omitempty"`
}

func (g *GitHubStore) DeleteFile(ctx context.Context, ref cms.FileRef, revision, message string) error {
	payload := deleteRequest{Message: message, SHA: revision, Branch: ref.Branch}
	if _, err := g.do(ctx, http.MethodDelete, g.contentsURL(ref.Repo, ref.FullPath(), ""), payload, "", true); err != nil {
		return fmt.Errorf("delete %s: %w", ref.FullPath(), err)
	}
	return nil
}

type dispatchRequest struct {
	Ref    string            `json:"ref"`
	Inputs map[string]string `json:"inputs"`
}

func (g *GitHubStore) Dispatch(ctx context.Context, repo, workflow, ref string, inputs map[string]string) error {
	if inputs == nil {
		inputs = map[string]string{}
	}
	endpoint := g.baseURL + "/repos/" + repo + "/actions/workflows/" + url.PathEscape(workflow) + "/dispatches"
	if _, err := g.do(ctx, http.MethodPost, endpoint, dispatchRequest{Ref: ref, Inputs: inputs}, "", false); err != nil {
		return fmt.Errorf("dispatch %s: %w", workflow, err)
	}
	return nil
}

type runsResponse struct {
	WorkflowRuns []struct {
		ID         int64     `json:"id"`
		Status     string    `json:"status"`
		Conclusion string    `json:"conclusion"`
		HTMLURL    string    `json:"html_url"`
		CreatedAt  time.Time `json:"created_at"`
		UpdatedAt  time.Time `json:"updated_at"`
	} `json:"workflow_runs"`
}

func (g *GitHubStore) RunStatus(ctx context.Context, repo, workflow string) (*cms.RunStatus, error) {
	endpoint := g.baseURL + "/repos/" + repo + "/actions/workflows/" + url.PathEscape(workflow) + "/runs?per_page=1"
	body, err := g.do(ctx, http.MethodGet, endpoint, nil, "", false)
	if err != nil {
		return nil, fmt.Errorf("runs %s: %w", workflow, err)
	}
	var out runsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("runs %s: decoding response: %w", workflow, err)
	}
	if len(out.WorkflowRuns) == 0 {
		return nil, fmt.Errorf("no runs for %s: %w", workflow, cms.ErrNotFound)
	}
	r := out.WorkflowRuns[0]
	return &cms.RunStatus{
		ID:         r.ID,
		Status:     r.Status,
		Conclusion: r.Conclusion,
		URL:        r.HTMLURL,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}, nil
}

// contentsURL builds /repos/{repo}/contents/{path}. Each path segment is
// escaped; the repo slug is trusted.
func (g *GitHubStore) contentsURL(repo, filePath, branch string) string {
	segments := strings.Split(strings.Trim(filePath, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	u := g.baseURL + "/repos/" + repo + "/contents/" + strings.Join(segments, "/")
	if branch != "" {
		u += "?ref=" + url.QueryEscape(branch)
	}
	return u
}

// do sends one request and returns the response body for 2xx statuses.
// write marks content mutations, where 422 means the revision was missing.
func (g *GitHubStore) do(ctx context.Context, method, endpoint string, payload any, accept string, write bool) ([]byte, error) {
	if g.tokenSource == nil {
		return nil, fmt.Errorf("remote credentials: %w", cms.ErrNotConfigured)
	}
	tok, err := g.tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("remote credentials: %w", err)
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", cms.ErrTransport, err)
		}
	}

	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, err
	}
	tok.SetAuthHeader(req)
	if accept == "" {
		accept = "application/vnd.github+json"
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", g.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cms.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", cms.ErrTransport, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return body, nil
	}
	return nil, g.statusError(resp, body, write)
}

func (g *GitHubStore) statusError(resp *http.Response, body []byte, write bool) error {
	message := strings.TrimSpace(string(body))
	var parsed struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Message != "" {
		message = parsed.Message
	}

	switch status := resp.StatusCode; {
	case status == http.StatusTooManyRequests:
		return g.rateLimitError(resp)
	case status == http.StatusForbidden && (resp.Header.Get("Retry-After") != "" || resp.Header.Get("X-RateLimit-Remaining") == "0"):
		return g.rateLimitError(resp)
	case status == http.StatusUnauthorized:
		return fmt.Errorf("remote rejected the token (%s): %w", message, cms.ErrNotConfigured)
	case status == http.StatusForbidden:
		return fmt.Errorf("%s: %w", message, cms.ErrRemoteDenied)
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", message, cms.ErrNotFound)
	case status == http.StatusConflict:
		return fmt.Errorf("%s: %w", message, cms.ErrConflict)
	case status == http.StatusUnprocessableEntity && write:
		return fmt.Errorf("%s: %w", message, cms.ErrConflict)
	case status == http.StatusUnprocessableEntity, status == http.StatusBadRequest:
		return fmt.Errorf("%s: %w", message, cms.ErrInvalidInput)
	case status >= 500:
		return fmt.Errorf("remote status %d %s: %w", status, message, cms.ErrTransport)
	default:
		return fmt.Errorf("remote status %d: %s", status, message)
	}
}

// rateLimitError prefers Retry-After and falls back to X-RateLimit-Reset.
func (g *GitHubStore) rateLimitError(resp *http.Response) error {
	wait := parseRetryAfterSeconds(resp.Header.Get("Retry-After"))
	if wait == 0 {
		if reset, err := strconv.ParseInt(strings.TrimSpace(resp.Header.Get("X-RateLimit-Reset")), 10, 64); err == nil {
			if d := time.Unix(reset, 0).Sub(g.now()); d > 0 {
				wait = d.Round(time.Second)
			}
		}
	}
	return &cms.RateLimitError{RetryAfter: wait}
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
