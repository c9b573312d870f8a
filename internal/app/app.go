package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"cms-go/internal/cms"
	"cms-go/internal/config"
	"cms-go/internal/database"
	"cms-go/internal/database/migrations"
	"cms-go/internal/encryption"
	"cms-go/internal/frontmatter"
	"cms-go/internal/httpapi"
	"cms-go/internal/remote"
	"cms-go/internal/workingstore"
)

// PassphraseFunc supplies the passphrase that unlocks the working-copy key.
type PassphraseFunc func() (string, error)

// CMSApp is the application layer between the CLI and cms.Service.
// It constructs all dependencies from config and releases them on Close.
type CMSApp struct {
	cfg     *config.Config
	db      *database.SQLDatabase
	working cms.WorkingStore
	remote  cms.RemoteStore
	creds   *remote.FileCredentials
	service *cms.Service
	logger  *slogAdapter
	logFile *os.File
}

// NewCMSApp creates a fully wired CMSApp from the given config.
// operation identifies the CLI command being run (e.g. "serve", "sync").
// passphrase is only consulted when working copies are encrypted; a nil
// passphrase leaves them sealed, so reads fail with ErrNotConfigured.
// The caller must call Close when done.
func NewCMSApp(ctx context.Context, cfg *config.Config, operation string, passphrase PassphraseFunc) (*CMSApp, error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	run := time.Now().UTC().Format("20060102T150405Z")
	sl, logFile, err := newLogger(cfg.LogDir, run, level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: sl.With(slog.String("op", operation))}

	a := &CMSApp{cfg: cfg, logger: logger, logFile: logFile}
	if err := a.wire(ctx, passphrase); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *CMSApp) wire(ctx context.Context, passphrase PassphraseFunc) error {
	cfg := a.cfg

	db, err := database.NewDatabaseFromConfig(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	a.db = db
	if err := db.CheckMigrations(); err != nil {
		return fmt.Errorf("database schema out of date: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.WorkingStore.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	var dec encryption.DecryptionContext
	if enc != nil {
		if !enc.IsConfigured() {
			return fmt.Errorf("working store encryption keys are missing: run `cms keys init`")
		}
		if passphrase != nil {
			pass, err := passphrase()
			if err != nil {
				return fmt.Errorf("reading passphrase: %w", err)
			}
			if dec, err = enc.Unlock(pass); err != nil {
				return fmt.Errorf("unlocking working store key: %w", err)
			}
		}
	}

	working, err := workingstore.NewWorkingStoreFromConfig(ctx, cfg.WorkingStore, enc, dec)
	if err != nil {
		return fmt.Errorf("creating working store: %w", err)
	}
	a.working = working

	ts, err := remote.NewTokenSourceFromConfig(cfg.Remote, a.logger)
	if err != nil {
		return fmt.Errorf("loading remote credentials: %w", err)
	}
	if fc, ok := ts.(*remote.FileCredentials); ok {
		a.creds = fc
	}
	rs, err := remote.NewRemoteStoreFromConfig(cfg.Remote, ts)
	if err != nil {
		return fmt.Errorf("creating remote store: %w", err)
	}
	a.remote = rs

	a.service = cms.NewService(db, working, rs, siteFromConfig(cfg.Site), a.logger, cms.RealClock{}, cms.UUIDGenerator{})
	a.service.SetIgnorePatterns(cfg.Site.Ignore)
	if cfg.Site.SchemaPath != "" {
		v, err := frontmatter.NewValidatorFromFile(cfg.Site.SchemaPath)
		if err != nil {
			return fmt.Errorf("loading front-matter schema: %w", err)
		}
		a.service.SetValidator(v)
	}
	return nil
}

func siteFromConfig(c config.SiteConfig) cms.Site {
	return cms.Site{
		Repo:            c.Repo,
		Branch:          c.Branch,
		PostsDir:        c.PostsDir,
		TrashDir:        c.TrashDir,
		MediaDir:        c.MediaDir,
		DraftsMirrorDir: c.DraftsMirrorDir,
		ReviewMirrorDir: c.ReviewMirrorDir,
		MirrorDrafts:    c.MirrorDrafts,
		MirrorReviews:   c.MirrorReviews,
	}.WithDefaults()
}

// Service returns the wired engine.
func (a *CMSApp) Service() *cms.Service { return a.service }

// Actor resolves the team member a CLI command acts as. An empty email means
// the configured administrator.
func (a *CMSApp) Actor(ctx context.Context, email string) (*cms.User, error) {
	if email == "" {
		email = a.cfg.Server.AdminEmail
	}
	if email == "" {
		return nil, fmt.Errorf("%w: no --as user given and no admin_email configured", cms.ErrInvalidInput)
	}
	u, err := a.service.ResolveUser(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", email, err)
	}
	return u, nil
}

// SnapshotIndex writes a consistent copy of the metadata index to dest.
// Only SQLite indexes can be snapshotted.
func (a *CMSApp) SnapshotIndex(dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("%w: %s already exists", cms.ErrConflict, dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0700); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	if err := a.db.BackupTo(dest); err != nil {
		return err
	}
	a.logger.Info("metadata index snapshot written", "path", dest)
	return nil
}

// IndexStatus reports the metadata index schema version.
func (a *CMSApp) IndexStatus() (migrations.Status, error) {
	return a.db.SchemaStatus()
}

// Handler builds the HTTP surface.
func (a *CMSApp) Handler() (http.Handler, error) {
	secret, err := loadSessionSecret(a.cfg.Server)
	if err != nil {
		return nil, err
	}
	return httpapi.NewServer(a.service, httpapi.ServerConfig{SessionSecret: secret}, a.logger, cms.RealClock{}, cms.UUIDGenerator{}), nil
}

// Serve runs the HTTP surface until ctx is done, watching the remote token
// file alongside it.
func (a *CMSApp) Serve(ctx context.Context) error {
	h, err := a.Handler()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.creds != nil {
		g.Go(func() error {
			if err := a.creds.Watch(gctx); err != nil {
				a.logger.Warn("remote token file is not watched", "error", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		a.logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// loadSessionSecret returns the inline secret, or the secret file's contents,
// generating the file on first use.
func loadSessionSecret(cfg config.ServerConfig) ([]byte, error) {
	if cfg.SessionSecret != "" {
		return []byte(cfg.SessionSecret), nil
	}
	if cfg.SessionSecretFile == "" {
		return nil, fmt.Errorf("%w: no session_secret or session_secret_file configured", cms.ErrNotConfigured)
	}
	data, err := os.ReadFile(cfg.SessionSecretFile)
	if err == nil {
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return nil, fmt.Errorf("%w: session secret file %s is empty", cms.ErrNotConfigured, cfg.SessionSecretFile)
		}
		return []byte(secret), nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading session secret: %w", err)
	}

	buf := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return nil, fmt.Errorf("generating session secret: %w", err)
	}
	secret := hex.EncodeToString(buf)
	if err := os.MkdirAll(filepath.Dir(cfg.SessionSecretFile), 0700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}
	f, err := os.OpenFile(cfg.SessionSecretFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating session secret file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(secret + "\n"); err != nil {
		return nil, fmt.Errorf("writing session secret: %w", err)
	}
	return []byte(secret), nil
}

// Close releases the stores and the log file.
func (a *CMSApp) Close() error {
	var firstErr error
	if c, ok := a.working.(io.Closer); ok {
		if err := c.Close(); err != nil {
			firstErr = fmt.Errorf("closing working store: %w", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
