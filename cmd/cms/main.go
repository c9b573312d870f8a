package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"cms-go/internal/app"
	"cms-go/internal/cms"
	"cms-go/internal/config"
	"cms-go/internal/encryption"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a CMSApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "serve", "sync").
// unlock is set by commands that read working-copy bodies.
func newApp(cmd *cobra.Command, operation string, unlock bool) (*app.CMSApp, error) {
	cfg, _, err := readConfig()
	if err != nil {
		return nil, err
	}
	var pass app.PassphraseFunc
	if unlock {
		pass = func() (string, error) { return readPassphrase("Working store passphrase: ") }
	}
	a, err := app.NewCMSApp(cmd.Context(), cfg, operation, pass)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func readConfig() (*config.Config, string, error) {
	paths, err := app.DefaultPaths()
	if err != nil {
		return nil, "", fmt.Errorf("resolving default paths: %w", err)
	}
	cfg, err := config.ReadFromFile(paths.ConfigPath)
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, paths.ConfigPath, nil
}

// actor resolves the --as flag, defaulting to the configured administrator.
func actor(cmd *cobra.Command, a *app.CMSApp) (*cms.User, error) {
	as, _ := cmd.Flags().GetString("as")
	return a.Actor(cmd.Context(), as)
}

// readPassphrase prefers CMS_PASSPHRASE and otherwise prompts on the terminal.
func readPassphrase(prompt string) (string, error) {
	if p := os.Getenv("CMS_PASSPHRASE"); p != "" {
		return p, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal: set CMS_PASSPHRASE")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

func printResult(res cms.Result) {
	switch {
	case res.NoOp:
		fmt.Println("Already applied; nothing to do.")
	case res.Ref.Filename != "":
		fmt.Printf("%s  %s/%s  %s\n", res.Stage, res.Ref.Repo, res.Ref.FullPath(), res.Revision)
	case res.Key.Filename != "" && res.Stage != 0:
		fmt.Printf("%s  %s\n", res.Stage, res.Key.String())
	default:
		fmt.Printf("removed  %s\n", res.Key.String())
	}
}

var rootCmd = &cobra.Command{
	Use:          "cms",
	Short:        "Content synchronization and lifecycle engine",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, _ := cmd.Flags().GetString("repo")
		admin, _ := cmd.Flags().GetString("admin")

		paths, err := app.DefaultPaths()
		if err != nil {
			return fmt.Errorf("resolving default paths: %w", err)
		}

		cfg := config.NewConfig(paths.BaseDir, repo, admin)
		if err := config.Init(paths.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", paths.ConfigPath)
		fmt.Printf("Base Dir: %s\n", paths.BaseDir)
		fmt.Printf("Put the remote token in %s\n", cfg.Remote.TokenFile)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := readConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Site:          %s@%s\n", cfg.Site.Repo, cfg.Site.Branch)
		fmt.Printf("Remote:        %s\n", cfg.Remote.Type)
		fmt.Printf("Working store: %s (encryption: %s)\n", cfg.WorkingStore.Type, cfg.WorkingStore.Encryption.Type)
		fmt.Printf("Database:      %s\n", cfg.Database.Type)
		fmt.Printf("Listen:        %s\n", cfg.Server.Addr)
		fmt.Printf("Log Dir:       %s\n", cfg.LogDir)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage working store encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the working store key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}
		encCfg := cfg.WorkingStore.Encryption
		if encCfg.Type != "age" {
			return fmt.Errorf("working_store.encryption.type is %q; set it to \"age\" first", encCfg.Type)
		}
		enc := encryption.NewAgeEncryptor(encCfg)

		pass, err := readPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		if os.Getenv("CMS_PASSPHRASE") == "" {
			confirm, err := readPassphrase("Confirm passphrase: ")
			if err != nil {
				return err
			}
			if confirm != pass {
				return errors.New("passphrases do not match")
			}
		}
		if err := enc.Setup(pass); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Printf("Public key:  %s\n", encCfg.PublicKeyPath)
		fmt.Printf("Private key: %s (passphrase protected)\n", encCfg.PrivateKeyPath)
		return nil
	},
}

var keysPasswdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change the passphrase protecting the working store key",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}
		enc, err := encryption.NewEncryptorFromConfig(cfg.WorkingStore.Encryption)
		if err != nil {
			return err
		}
		if enc == nil || !enc.IsConfigured() {
			return errors.New("working store encryption is not set up: run `cms keys init`")
		}
		current, err := readPassphrase("Current passphrase: ")
		if err != nil {
			return err
		}
		next := os.Getenv("CMS_NEW_PASSPHRASE")
		if next == "" {
			if next, err = readPassphrase("New passphrase: "); err != nil {
				return err
			}
			confirm, err := readPassphrase("Confirm passphrase: ")
			if err != nil {
				return err
			}
			if confirm != next {
				return errors.New("passphrases do not match")
			}
		}
		if next == current {
			return errors.New("new passphrase is the same as the current one (set CMS_NEW_PASSPHRASE when using CMS_PASSPHRASE)")
		}
		if err := enc.ChangePassphrase(current, next); err != nil {
			return fmt.Errorf("changing passphrase: %w", err)
		}
		fmt.Println("Passphrase changed.")
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "serve", true)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Serve(cmd.Context())
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the metadata index with the remote repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		media, _ := cmd.Flags().GetBool("media")
		dir, _ := cmd.Flags().GetString("path")

		a, err := newApp(cmd, "sync", false)
		if err != nil {
			return err
		}
		defer a.Close()
		u, err := actor(cmd, a)
		if err != nil {
			return err
		}

		t := cms.Target{Table: cms.TablePosts, Path: dir}
		if media {
			t.Table = cms.TableMedia
		}
		res, err := a.Service().Reconcile(cmd.Context(), u, t)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		fmt.Printf("Updated %d, skipped %d, removed %d\n", res.Updated, res.Skipped, res.Removed)
		return nil
	},
}

// migrate-wip command
var migrateCmd = &cobra.Command{
	Use:   "migrate-wip PATH",
	Short: "Adopt every file in a remote directory as a working copy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawStage, _ := cmd.Flags().GetString("stage")
		var stage cms.Stage
		if rawStage != "" {
			st, err := cms.ParseStage(rawStage)
			if err != nil {
				return err
			}
			stage = st
		}

		a, err := newApp(cmd, "migrate-wip", false)
		if err != nil {
			return err
		}
		defer a.Close()
		u, err := actor(cmd, a)
		if err != nil {
			return err
		}

		res, err := a.Service().MigrateWorking(cmd.Context(), u, cms.DirRef{Path: args[0]}, stage)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		fmt.Printf("Imported %d, skipped %d\n", res.Imported, res.Skipped)
		return nil
	},
}

// draft command
var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Manage working copies",
}

var draftListCmd = &cobra.Command{
	Use:   "list",
	Short: "List working copies",
	RunE: func(cmd *cobra.Command, args []string) error {
		rawStage, _ := cmd.Flags().GetString("stage")
		stage, err := cms.ParseStage(rawStage)
		if err != nil {
			return err
		}

		a, err := newApp(cmd, "draft-list", false)
		if err != nil {
			return err
		}
		defer a.Close()
		u, err := actor(cmd, a)
		if err != nil {
			return err
		}

		recs, err := a.Service().ListWorking(cmd.Context(), u, stage)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("No working copies.")
			return nil
		}
		for _, r := range recs {
			fmt.Printf("%-14s  %s  %s\n", humanize.Time(r.LastModified), r.Status, r.ID)
		}
		return nil
	},
}

var draftShowCmd = &cobra.Command{
	Use:   "show KEY",
	Short: "Print a working copy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := cms.ParseWorkingKey(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd, "draft-show", true)
		if err != nil {
			return err
		}
		defer a.Close()
		u, err := actor(cmd, a)
		if err != nil {
			return err
		}

		item, err := a.Service().GetWorking(cmd.Context(), u, key)
		if err != nil {
			return err
		}
		os.Stdout.Write(item.Body)
		return nil
	},
}

var draftCreateCmd = &cobra.Command{
	Use:   "create FILE",
	Short: "Create a draft from a local file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		body, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		if name == "" {
			name = filepath.Base(args[0])
		}
		return runTransition(cmd, "draft-create", true, func(u *cms.User) (cms.Request, error) {
			return cms.Request{Action: cms.ActionCreateDraft, Actor: u, Filename: name, Body: body}, nil
		})
	},
}

var draftSaveCmd = &cobra.Command{
	Use:   "save KEY FILE",
	Short: "Replace a draft's body with a local file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[1], err)
		}
		return keyTransition(cmd, "draft-save", cms.ActionSaveDraft, args[0], body)
	},
}

var draftSubmitCmd = &cobra.Command{
	Use:   "submit KEY",
	Short: "Submit a draft for review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return keyTransition(cmd, "draft-submit", cms.ActionSubmit, args[0], nil)
	},
}

var draftApproveCmd = &cobra.Command{
	Use:   "approve KEY",
	Short: "Publish a pending working copy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return keyTransition(cmd, "draft-approve", cms.ActionApprove, args[0], nil)
	},
}

var draftRejectCmd = &cobra.Command{
	Use:   "reject KEY",
	Short: "Delete a working copy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return keyTransition(cmd, "draft-reject", cms.ActionReject, args[0], nil)
	},
}

func keyTransition(cmd *cobra.Command, operation string, action cms.Action, rawKey string, body []byte) error {
	key, err := cms.ParseWorkingKey(rawKey)
	if err != nil {
		return err
	}
	message, _ := cmd.Flags().GetString("message")
	return runTransition(cmd, operation, true, func(u *cms.User) (cms.Request, error) {
		return cms.Request{Action: action, Actor: u, Key: key, Body: body, Message: message}, nil
	})
}

func runTransition(cmd *cobra.Command, operation string, unlock bool, build func(u *cms.User) (cms.Request, error)) error {
	a, err := newApp(cmd, operation, unlock)
	if err != nil {
		return err
	}
	defer a.Close()
	u, err := actor(cmd, a)
	if err != nil {
		return err
	}
	req, err := build(u)
	if err != nil {
		return err
	}
	res, err := a.Service().Transition(cmd.Context(), req)
	if err != nil {
		if step := cms.FailedStep(err); step != "" {
			return fmt.Errorf("%s failed at %s: %w", req.Action, step, err)
		}
		return fmt.Errorf("%s failed: %w", req.Action, err)
	}
	printResult(res)
	return nil
}

// publish command
var publishCmd = &cobra.Command{
	Use:   "publish [FILE]",
	Short: "Publish a local file or a working copy",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawKey, _ := cmd.Flags().GetString("key")
		name, _ := cmd.Flags().GetString("name")
		moveFrom, _ := cmd.Flags().GetString("move-from")
		revision, _ := cmd.Flags().GetString("revision")
		message, _ := cmd.Flags().GetString("message")

		if (len(args) == 0) == (rawKey == "") {
			return errors.New("give exactly one of FILE or --key")
		}
		req := cms.Request{Action: cms.ActionPublish, Filename: name, Revision: revision, Message: message}
		if rawKey != "" {
			key, err := cms.ParseWorkingKey(rawKey)
			if err != nil {
				return err
			}
			req.Key = key
		} else {
			body, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			req.Body = body
			if req.Filename == "" {
				req.Filename = filepath.Base(args[0])
			}
		}
		if moveFrom != "" {
			req.Source = &cms.FileRef{Filename: moveFrom}
		}
		return runTransition(cmd, "publish", rawKey != "", func(u *cms.User) (cms.Request, error) {
			req.Actor = u
			return req, nil
		})
	},
}

func fileCommand(use, short string, action cms.Action) *cobra.Command {
	c := &cobra.Command{
		Use:   use + " FILENAME",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			revision, _ := cmd.Flags().GetString("revision")
			message, _ := cmd.Flags().GetString("message")
			return runTransition(cmd, use, false, func(u *cms.User) (cms.Request, error) {
				return cms.Request{
					Action:   action,
					Actor:    u,
					Target:   cms.FileRef{Filename: args[0]},
					Revision: revision,
					Message:  message,
				}, nil
			})
		},
	}
	c.Flags().String("revision", "", "Expected remote revision (fetched when empty)")
	c.Flags().StringP("message", "m", "", "Commit message")
	return c
}

// user command
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage the team",
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List team members",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "user-list", false)
		if err != nil {
			return err
		}
		defer a.Close()
		u, err := actor(cmd, a)
		if err != nil {
			return err
		}
		users, err := a.Service().ListUsers(cmd.Context(), u)
		if err != nil {
			return err
		}
		for _, m := range users {
			var caps []string
			if m.MayEditPublished() {
				caps = append(caps, "publish")
			}
			if m.MayDelete() {
				caps = append(caps, "delete")
			}
			fmt.Printf("%-32s  %-13s  %-14s  joined %s\n", m.Email, m.Role, strings.Join(caps, ","), humanize.Time(m.JoinedAt))
		}
		return nil
	},
}

var userAddCmd = &cobra.Command{
	Use:   "add EMAIL",
	Short: "Add or update a team member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, _ := cmd.Flags().GetBool("admin")
		canDelete, _ := cmd.Flags().GetBool("can-delete")
		canPublish, _ := cmd.Flags().GetBool("can-publish")
		setPassword, _ := cmd.Flags().GetBool("password")

		member := cms.User{Email: args[0], Role: cms.RoleEditor, CanDelete: canDelete, CanEditPublished: canPublish}
		if admin {
			member.Role = cms.RoleAdministrator
		}
		var password string
		if setPassword {
			p, err := readPassphrase("Password for " + args[0] + ": ")
			if err != nil {
				return err
			}
			password = p
		}

		a, err := newApp(cmd, "user-add", false)
		if err != nil {
			return err
		}
		defer a.Close()
		u, err := actor(cmd, a)
		if err != nil {
			return err
		}
		saved, err := a.Service().UpsertUser(cmd.Context(), u, member, password)
		if err != nil {
			return err
		}
		fmt.Printf("Saved %s (%s)\n", saved.Email, saved.Role)
		return nil
	},
}

var userRemoveCmd = &cobra.Command{
	Use:   "remove EMAIL",
	Short: "Remove a team member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "user-remove", false)
		if err != nil {
			return err
		}
		defer a.Close()
		u, err := actor(cmd, a)
		if err != nil {
			return err
		}
		if err := a.Service().RemoveUser(cmd.Context(), u, args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", args[0])
		return nil
	},
}

var userSeedCmd = &cobra.Command{
	Use:   "seed-admin",
	Short: "Create the configured administrator if absent",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}
		if cfg.Server.AdminEmail == "" {
			return errors.New("server.admin_email is not configured")
		}
		password, err := readPassphrase("Password for " + cfg.Server.AdminEmail + ": ")
		if err != nil {
			return err
		}

		a, err := newApp(cmd, "seed-admin", false)
		if err != nil {
			return err
		}
		defer a.Close()
		created, err := a.Service().SeedAdministrator(cmd.Context(), cfg.Server.AdminEmail, password)
		if err != nil {
			return err
		}
		if created {
			fmt.Printf("Administrator %s created\n", cfg.Server.AdminEmail)
		} else {
			fmt.Printf("Administrator %s already exists\n", cfg.Server.AdminEmail)
		}
		return nil
	},
}

// sweep command
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Repair duplicate and orphaned working copies",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "sweep", false)
		if err != nil {
			return err
		}
		defer a.Close()
		u, err := actor(cmd, a)
		if err != nil {
			return err
		}
		res, err := a.Service().Sweep(cmd.Context(), u)
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}
		fmt.Printf("Duplicates %d, orphans %d, recreated %d\n", res.Duplicates, res.Orphans, res.Recreated)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "history", false)
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.Service().History(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}
		for _, r := range recs {
			duration := ""
			if !r.FinishedAt.IsZero() {
				duration = r.FinishedAt.Sub(r.StartedAt).Truncate(time.Millisecond).String()
			}
			status := r.Status
			if r.FailedStep != "" {
				status += "@" + r.FailedStep
			}
			fmt.Printf("%s  %-18s  %-24s  %-22s  %-8s  %s\n",
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Action,
				r.Actor,
				status,
				duration,
				r.Subject,
			)
		}
		return nil
	},
}

// stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what the engine holds",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "stats", false)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.Service().Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Published:    %s\n", humanize.Comma(int64(st.Published)))
		fmt.Printf("Media:        %s\n", humanize.Comma(int64(st.Media)))
		fmt.Printf("Working keys: %s\n", humanize.Comma(int64(st.WorkingKeys)))
		fmt.Printf("Users:        %s\n", humanize.Comma(int64(st.Users)))
		return nil
	},
}

// media command
var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "List mirrored media files",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "media", false)
		if err != nil {
			return err
		}
		defer a.Close()
		u, err := actor(cmd, a)
		if err != nil {
			return err
		}
		rows, err := a.Service().ListMedia(cmd.Context(), u)
		if err != nil {
			return err
		}
		var total uint64
		for _, r := range rows {
			total += uint64(r.Size)
			fmt.Printf("%-8s  %10s  %s\n", r.Type, humanize.Bytes(uint64(r.Size)), r.Filename)
		}
		fmt.Printf("%d file(s), %s\n", len(rows), humanize.Bytes(total))
		return nil
	},
}

// index command
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the metadata index",
}

var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the metadata index schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "index-status", false)
		if err != nil {
			return err
		}
		defer a.Close()
		st, err := a.IndexStatus()
		if err != nil {
			return err
		}
		fmt.Printf("Schema version: %d (latest %d)\n", st.Current, st.Latest)
		if err := st.Err(); err != nil {
			fmt.Printf("Problem:        %v\n", err)
		}
		return nil
	},
}

var indexSnapshotCmd = &cobra.Command{
	Use:   "snapshot [DEST]",
	Short: "Write a copy of the SQLite metadata index",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}
		dest := app.SnapshotPath(cfg.BaseDir, time.Now())
		if len(args) == 1 {
			dest = args[0]
		}

		a, err := newApp(cmd, "index-snapshot", false)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.SnapshotIndex(dest); err != nil {
			return fmt.Errorf("snapshot failed: %w", err)
		}
		if info, err := os.Stat(dest); err == nil {
			fmt.Printf("Snapshot written to %s (%s)\n", dest, humanize.Bytes(uint64(info.Size())))
		}
		return nil
	},
}

// dispatch command
var dispatchCmd = &cobra.Command{
	Use:   "dispatch WORKFLOW",
	Short: "Trigger an automation job on the site repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, _ := cmd.Flags().GetString("ref")
		raw, _ := cmd.Flags().GetStringToString("input")

		a, err := newApp(cmd, "dispatch", false)
		if err != nil {
			return err
		}
		defer a.Close()
		u, err := actor(cmd, a)
		if err != nil {
			return err
		}
		if err := a.Service().Dispatch(cmd.Context(), u, args[0], ref, raw); err != nil {
			return err
		}
		fmt.Printf("Dispatched %s\n", args[0])
		return nil
	},
}

var runStatusCmd = &cobra.Command{
	Use:   "run-status WORKFLOW",
	Short: "Show the latest run of an automation job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "run-status", false)
		if err != nil {
			return err
		}
		defer a.Close()
		u, err := actor(cmd, a)
		if err != nil {
			return err
		}
		st, err := a.Service().RunStatus(cmd.Context(), u, args[0])
		if err != nil {
			return err
		}
		conclusion := st.Conclusion
		if conclusion == "" {
			conclusion = "-"
		}
		fmt.Printf("#%d  %s  %s  started %s\n", st.ID, st.Status, conclusion, humanize.Time(st.CreatedAt))
		if st.URL != "" {
			fmt.Println(st.URL)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("as", "", "Act as this team member (default: server.admin_email)")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().String("repo", "", "Site repository (owner/name)")
	configInitCmd.Flags().String("admin", "", "Administrator email")
	configCmd.AddCommand(configListCmd)

	keysCmd.AddCommand(keysInitCmd)
	keysCmd.AddCommand(keysPasswdCmd)

	// draft subcommands
	draftCmd.AddCommand(draftListCmd)
	draftListCmd.Flags().String("stage", "draft", "Stage to list: draft or pending")
	draftCmd.AddCommand(draftShowCmd)
	draftCmd.AddCommand(draftCreateCmd)
	draftCreateCmd.Flags().String("name", "", "Filename (default: base name of FILE)")
	for _, c := range []*cobra.Command{draftSaveCmd, draftSubmitCmd, draftApproveCmd, draftRejectCmd} {
		c.Flags().StringP("message", "m", "", "Commit message")
		draftCmd.AddCommand(c)
	}

	// user subcommands
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userAddCmd)
	userAddCmd.Flags().Bool("admin", false, "Make the member an Administrator")
	userAddCmd.Flags().Bool("can-delete", false, "Allow trashing and purging")
	userAddCmd.Flags().Bool("can-publish", false, "Allow publishing without review")
	userAddCmd.Flags().Bool("password", false, "Prompt for a login password")
	userCmd.AddCommand(userRemoveCmd)
	userCmd.AddCommand(userSeedCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().Bool("media", false, "Reconcile the media directory")
	syncCmd.Flags().String("path", "", "Remote directory (default: posts or media dir)")
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().String("stage", "", "Target stage (default: inferred from a mirror directory)")
	rootCmd.AddCommand(draftCmd)
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().String("key", "", "Publish this working copy")
	publishCmd.Flags().String("name", "", "Published filename")
	publishCmd.Flags().String("move-from", "", "Delete this published file after publishing")
	publishCmd.Flags().String("revision", "", "Expected remote revision (fetched when empty)")
	publishCmd.Flags().StringP("message", "m", "", "Commit message")
	rootCmd.AddCommand(fileCommand("trash", "Move a published file to the trash", cms.ActionTrash))
	rootCmd.AddCommand(fileCommand("restore", "Move a trashed file back to the posts directory", cms.ActionRestore))
	rootCmd.AddCommand(fileCommand("purge", "Delete a trashed file permanently", cms.ActionPurge))
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(mediaCmd)
	indexCmd.AddCommand(indexSnapshotCmd)
	indexCmd.AddCommand(indexStatusCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(dispatchCmd)
	dispatchCmd.Flags().String("ref", "", "Git ref to run on (default: site branch)")
	dispatchCmd.Flags().StringToString("input", nil, "Workflow input as key=value (repeatable)")
	rootCmd.AddCommand(runStatusCmd)
}
