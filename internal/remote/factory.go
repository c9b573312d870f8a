package remote

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"cms-go/internal/cms"
	"cms-go/internal/config"
)

// NewTokenSourceFromConfig picks the credential provider. An inline token
// wins; otherwise the token file is used. A *FileCredentials result should be
// watched by the caller.
func NewTokenSourceFromConfig(cfg config.RemoteConfig, logger cms.Logger) (oauth2.TokenSource, error) {
	switch {
	case cfg.Token != "":
		return StaticCredentials(cfg.Token), nil
	case cfg.TokenFile != "":
		fc, err := NewFileCredentials(cfg.TokenFile, logger)
		if err != nil {
			return nil, err
		}
		return fc, nil
	default:
		return nil, nil
	}
}

// NewRemoteStoreFromConfig builds the adapter named by cfg.Type.
func NewRemoteStoreFromConfig(cfg config.RemoteConfig, ts oauth2.TokenSource) (cms.RemoteStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "github":
		timeout := 20 * time.Second
		if cfg.Timeout != "" {
			d, err := time.ParseDuration(cfg.Timeout)
			if err != nil {
				return nil, fmt.Errorf("invalid remote timeout %q: %w", cfg.Timeout, err)
			}
			timeout = d
		}
		var limiter *rate.Limiter
		if cfg.RateLimit > 0 {
			burst := cfg.Burst
			if burst <= 0 {
				burst = 1
			}
			limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
		}
		return NewGitHubStore(GitHubOptions{
			BaseURL:     cfg.APIURL,
			TokenSource: ts,
			HTTPClient:  &http.Client{Timeout: timeout},
			UserAgent:   cfg.UserAgent,
			Limiter:     limiter,
		}), nil
	default:
		return nil, fmt.Errorf("unknown remote type: %s", cfg.Type)
	}
}
