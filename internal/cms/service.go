package cms

import (
	"context"
	"fmt"
	"strings"
)

// Site holds the repository coordinates the engine publishes into.
type Site struct {
	Repo            string
	Branch          string
	PostsDir        string
	TrashDir        string
	MediaDir        string
	DraftsMirrorDir string
	ReviewMirrorDir string
	MirrorDrafts    bool
	MirrorReviews   bool
}

// WithDefaults fills unset directories and branch.
func (s Site) WithDefaults() Site {
	if s.Branch == "" {
		s.Branch = "main"
	}
	if s.PostsDir == "" {
		s.PostsDir = "_posts"
	}
	if s.TrashDir == "" {
		s.TrashDir = "_trash"
	}
	if s.MediaDir == "" {
		s.MediaDir = "assets"
	}
	if s.DraftsMirrorDir == "" {
		s.DraftsMirrorDir = "_drafts"
	}
	if s.ReviewMirrorDir == "" {
		s.ReviewMirrorDir = "_review"
	}
	return s
}

// PublishedRef is the canonical published location of filename.
func (s Site) PublishedRef(filename string) FileRef {
	return FileRef{Repo: s.Repo, Path: s.PostsDir, Filename: filename, Branch: s.Branch}
}

// TrashRef is the quarantine location of filename.
func (s Site) TrashRef(filename string) FileRef {
	return FileRef{Repo: s.Repo, Path: s.TrashDir, Filename: filename, Branch: s.Branch}
}

// MirrorDir returns the remote directory that mirrors working copies of stage.
func (s Site) MirrorDir(stage Stage) string {
	switch stage {
	case StageDraft:
		return s.DraftsMirrorDir
	case StagePendingReview:
		return s.ReviewMirrorDir
	default:
		return ""
	}
}

// MirrorEnabled reports whether working copies of stage are mirrored remotely.
func (s Site) MirrorEnabled(stage Stage) bool {
	switch stage {
	case StageDraft:
		return s.MirrorDrafts
	case StagePendingReview:
		return s.MirrorReviews
	default:
		return false
	}
}

// StageForMirrorDir maps a mirror directory back to its working stage.
func (s Site) StageForMirrorDir(dir string) (Stage, bool) {
	switch strings.Trim(dir, "/") {
	case strings.Trim(s.DraftsMirrorDir, "/"):
		return StageDraft, true
	case strings.Trim(s.ReviewMirrorDir, "/"):
		return StagePendingReview, true
	default:
		return 0, false
	}
}

// BodyValidator checks a body before it is published.
type BodyValidator interface {
	Validate(body []byte) error
}

// Service is the Content Synchronization & Lifecycle Engine. It coordinates
// the working store, the remote store and the metadata index.
type Service struct {
	db         Database
	working    WorkingStore
	remote     RemoteStore
	site       Site
	validator  BodyValidator
	ignore     *IgnoreMatcher
	fetchLimit int
	logger     Logger
	clock      Clock
	idgen      IDGenerator
}

// NewService creates a Service. Any store may be nil; operations that need a
// missing store fail with ErrNotConfigured.
func NewService(db Database, working WorkingStore, remote RemoteStore, site Site, logger Logger, clock Clock, idgen IDGenerator) *Service {
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	if idgen == nil {
		idgen = UUIDGenerator{}
	}
	return &Service{
		db:         db,
		working:    working,
		remote:     remote,
		site:       site.WithDefaults(),
		ignore:     NewIgnoreMatcher(nil),
		fetchLimit: 4,
		logger:     logger,
		clock:      clock,
		idgen:      idgen,
	}
}

// SetValidator installs the pre-publish body check.
func (s *Service) SetValidator(v BodyValidator) { s.validator = v }

// SetIgnorePatterns replaces the listing name filter. ".keep" is always ignored.
func (s *Service) SetIgnorePatterns(patterns []string) { s.ignore = NewIgnoreMatcher(patterns) }

// SetFetchLimit bounds concurrent body fetches during migration.
func (s *Service) SetFetchLimit(n int) {
	if n > 0 {
		s.fetchLimit = n
	}
}

// Site returns the effective site settings.
func (s *Service) Site() Site { return s.site }

func (s *Service) requireDB() error {
	if s.db == nil {
		return fmt.Errorf("metadata index: %w", ErrNotConfigured)
	}
	return nil
}

func (s *Service) requireWorking() error {
	if s.working == nil {
		return fmt.Errorf("working store: %w", ErrNotConfigured)
	}
	return s.requireDB()
}

func (s *Service) requireRemote() error {
	if s.remote == nil {
		return fmt.Errorf("remote store: %w", ErrNotConfigured)
	}
	return s.requireDB()
}

// authorize runs the gate. The denial reason is logged, never returned.
func (s *Service) authorize(actor *User, action Action, subject Subject) error {
	d := Authorize(actor, action, subject)
	if d.Allowed {
		return nil
	}
	s.logger.Warn("permission denied", "action", string(action), "actor", actor.ID(), "reason", d.Reason)
	return stepErr(StepAuthorize, ErrUnauthorized)
}

// journal records the start of an operation and returns a function that
// records its outcome. Journal failures are logged and never fail the operation.
func (s *Service) journal(ctx context.Context, action Action, actor *User, subject string) func(error) {
	rec := &TransitionRecord{
		ID:        s.idgen.New(),
		Action:    string(action),
		Actor:     actor.ID(),
		Subject:   subject,
		Status:    TransitionRunning,
		StartedAt: s.clock.Now(),
	}
	s.logger.Info("operation started", "id", rec.ID, "action", rec.Action, "actor", rec.Actor, "subject", subject)
	if s.db == nil {
		return func(error) {}
	}
	if err := s.db.CreateTransition(ctx, rec); err != nil {
		s.logger.Warn("recording operation start", "id", rec.ID, "error", err)
		return func(error) {}
	}
	return func(opErr error) {
		status := TransitionSuccess
		if opErr != nil {
			status = TransitionError
			s.logger.Error("operation failed", "id", rec.ID, "action", rec.Action, "step", string(FailedStep(opErr)), "error", opErr)
		} else {
			s.logger.Info("operation finished", "id", rec.ID, "action", rec.Action)
		}
		// The request context may already be cancelled.
		if err := s.db.FinishTransition(context.WithoutCancel(ctx), rec.ID, status, string(FailedStep(opErr)), s.clock.Now()); err != nil {
			s.logger.Warn("recording operation finish", "id", rec.ID, "error", err)
		}
	}
}

// History returns the most recent journal rows, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]*TransitionRecord, error) {
	if err := s.requireDB(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	recs, err := s.db.ListTransitions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing transitions: %w", err)
	}
	return recs, nil
}
