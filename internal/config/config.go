package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for cms.
type Config struct {
	BaseDir      string             `toml:"base_dir"`
	LogDir       string             `toml:"log_dir"`
	LogLevel     string             `toml:"log_level,omitempty"` // debug, info (default), warn or error
	Site         SiteConfig         `toml:"site"`
	Remote       RemoteConfig       `toml:"remote"`
	WorkingStore WorkingStoreConfig `toml:"working_store"`
	Database     DatabaseConfig     `toml:"database"`
	Server       ServerConfig       `toml:"server"`
}

// SiteConfig names the repository content is published into.
type SiteConfig struct {
	Repo            string   `toml:"repo"`
	Branch          string   `toml:"branch"`
	PostsDir        string   `toml:"posts_dir"`
	TrashDir        string   `toml:"trash_dir"`
	MediaDir        string   `toml:"media_dir"`
	DraftsMirrorDir string   `toml:"drafts_mirror_dir"`
	ReviewMirrorDir string   `toml:"review_mirror_dir"`
	MirrorDrafts    bool     `toml:"mirror_drafts"`
	MirrorReviews   bool     `toml:"mirror_reviews"`
	SchemaPath      string   `toml:"schema_path,omitempty"` // JSON Schema for front-matter, checked on publish
	Ignore          []string `toml:"ignore"`                // remote listing name patterns; ".keep" is always ignored
}

// RemoteConfig represents configuration for the remote content store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RemoteConfig struct {
	Type string `toml:"type"` // "github" or "memory"

	// GitHub-specific fields (only used when Type == "github")
	APIURL    string  `toml:"api_url,omitempty"`
	UserAgent string  `toml:"user_agent,omitempty"`
	Timeout   string  `toml:"timeout,omitempty"`    // Go duration, default 20s
	RateLimit float64 `toml:"rate_limit,omitempty"` // requests per second, 0 disables the limiter
	Burst     int     `toml:"burst,omitempty"`

	// Credential source. A non-empty Token wins; otherwise TokenFile is read
	// and reloaded whenever it changes.
	Token     string `toml:"token,omitempty"`
	TokenFile string `toml:"token_file,omitempty"`
}

// WorkingStoreConfig represents configuration for the private working store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type WorkingStoreConfig struct {
	Type string `toml:"type"` // "memory", "filesystem", "redis" or "s3"

	// Filesystem-specific fields (only used when Type == "filesystem")
	Dir string `toml:"dir,omitempty"`

	// Redis-specific fields (only used when Type == "redis")
	RedisAddr string `toml:"redis_addr,omitempty"`
	RedisDB   int    `toml:"redis_db,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"`
	// Static credentials; when empty the default AWS credential chain is used.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	Encryption EncryptionConfig `toml:"encryption"`
}

// EncryptionConfig controls at-rest encryption of working copies.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default), "age" or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// DatabaseConfig represents configuration for the metadata index.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite", "memory" or "postgres"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
	DSN     string `toml:"dsn,omitempty"`      // only used for type=postgres
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr              string `toml:"addr"`
	SessionSecret     string `toml:"session_secret,omitempty"`
	SessionSecretFile string `toml:"session_secret_file,omitempty"`
	AdminEmail        string `toml:"admin_email"`
}

// NewConfig creates a new Config with defaults rooted at baseDir.
func NewConfig(baseDir, repo, adminEmail string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Site: SiteConfig{
			Repo:     repo,
			Branch:   "main",
			PostsDir: "_posts",
			TrashDir: "_trash",
			MediaDir: "assets",
		},
		Remote: RemoteConfig{
			Type:      "github",
			APIURL:    "https://api.github.com",
			UserAgent: "cms-go",
			Timeout:   "20s",
			TokenFile: filepath.Join(baseDir, "keys", "remote.token"),
		},
		WorkingStore: WorkingStoreConfig{
			Type: "filesystem",
			Dir:  filepath.Join(baseDir, "working"),
			Encryption: EncryptionConfig{
				Type:           "none",
				PublicKeyPath:  filepath.Join(baseDir, "keys", "cms.pub"),
				PrivateKeyPath: filepath.Join(baseDir, "keys", "cms.key"),
			},
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Server: ServerConfig{
			Addr:              "127.0.0.1:8080",
			SessionSecretFile: filepath.Join(baseDir, "keys", "session.secret"),
			AdminEmail:        adminEmail,
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file may carry a remote token.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
