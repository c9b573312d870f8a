package remote

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cms-go/internal/cms"
	"cms-go/internal/config"
)

func TestStaticCredentials(t *testing.T) {
	tok, err := StaticCredentials("  abc \n").Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok.AccessToken != "abc" {
		t.Errorf("AccessToken = %q, want %q", tok.AccessToken, "abc")
	}
}

func TestFileCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remote.token")

	c, err := NewFileCredentials(path, nil)
	if err != nil {
		t.Fatalf("NewFileCredentials() error = %v", err)
	}
	if _, err := c.Token(); !errors.Is(err, cms.ErrNotConfigured) {
		t.Errorf("Token() before file exists error = %v, want ErrNotConfigured", err)
	}

	if err := os.WriteFile(path, []byte("first\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := c.reload(); err != nil {
		t.Fatalf("reload() error = %v", err)
	}
	tok, err := c.Token()
	if err != nil || tok.AccessToken != "first" {
		t.Errorf("Token() = %v, %v; want first", tok, err)
	}
}

func TestFileCredentials_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remote.token")
	if err := os.WriteFile(path, []byte("old"), 0600); err != nil {
		t.Fatal(err)
	}
	c, err := NewFileCredentials(path, nil)
	if err != nil {
		t.Fatalf("NewFileCredentials() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// The watcher needs a moment to register before the write.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err := os.WriteFile(path, []byte("rotated"), 0600); err != nil {
			t.Fatal(err)
		}
		time.Sleep(50 * time.Millisecond)
		if tok, err := c.Token(); err == nil && tok.AccessToken == "rotated" {
			return
		}
	}
	t.Error("token was not reloaded after the file changed")
}

func TestNewRemoteStoreFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.RemoteConfig
		wantErr bool
	}{
		{name: "memory", cfg: config.RemoteConfig{Type: "memory"}},
		{name: "github", cfg: config.RemoteConfig{Type: "github", Timeout: "5s", RateLimit: 2}},
		{name: "bad timeout", cfg: config.RemoteConfig{Type: "github", Timeout: "soon"}, wantErr: true},
		{name: "unknown", cfg: config.RemoteConfig{Type: "gitlab"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRemoteStoreFromConfig(tt.cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewRemoteStoreFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewTokenSourceFromConfig(t *testing.T) {
	ts, err := NewTokenSourceFromConfig(config.RemoteConfig{Token: "inline", TokenFile: "/nonexistent/file"}, nil)
	if err != nil {
		t.Fatalf("NewTokenSourceFromConfig() error = %v", err)
	}
	tok, err := ts.Token()
	if err != nil || tok.AccessToken != "inline" {
		t.Errorf("inline token not preferred: %v, %v", tok, err)
	}

	ts, err = NewTokenSourceFromConfig(config.RemoteConfig{}, nil)
	if err != nil || ts != nil {
		t.Errorf("NewTokenSourceFromConfig(empty) = %v, %v; want nil, nil", ts, err)
	}
}
