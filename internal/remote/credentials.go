package remote

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/oauth2"

	"cms-go/internal/cms"
)

// StaticCredentials returns a token source that always yields token.
func StaticCredentials(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: strings.TrimSpace(token), TokenType: "Bearer"})
}

// FileCredentials serves a token read from a file. The file holds the bare
// token; surrounding whitespace is ignored. Watch keeps it current so a
// rotated token takes effect without a restart.
type FileCredentials struct {
	path   string
	logger cms.Logger

	mu    sync.RWMutex
	token string
}

var _ oauth2.TokenSource = (*FileCredentials)(nil)

// NewFileCredentials reads path once. A missing file is not an error; Token
// reports it until the file appears.
func NewFileCredentials(path string, logger cms.Logger) (*FileCredentials, error) {
	if logger == nil {
		logger = cms.NewNopLogger()
	}
	c := &FileCredentials{path: path, logger: logger}
	if err := c.reload(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return c, nil
}

// Token implements oauth2.TokenSource.
func (c *FileCredentials) Token() (*oauth2.Token, error) {
	c.mu.RLock()
	tok := c.token
	c.mu.RUnlock()
	if tok == "" {
		return nil, fmt.Errorf("no remote token in %s: %w", c.path, cms.ErrNotConfigured)
	}
	return &oauth2.Token{AccessToken: tok, TokenType: "Bearer"}, nil
}

func (c *FileCredentials) reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.token = strings.TrimSpace(string(data))
	c.mu.Unlock()
	return nil
}

// Watch reloads the token whenever the file changes until ctx is done. The
// directory is watched so editors that replace the file are seen too.
func (c *FileCredentials) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(c.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(c.path), err)
	}

	name := filepath.Clean(c.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name {
				continue
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				c.mu.Lock()
				c.token = ""
				c.mu.Unlock()
				c.logger.Warn("remote token file removed", "path", c.path)
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				if err := c.reload(); err != nil {
					c.logger.Error("failed to reload remote token", "path", c.path, "error", err)
					continue
				}
				c.logger.Info("remote token reloaded", "path", c.path)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.logger.Error("token watcher error", "error", err)
		}
	}
}
