package cms

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Target is a remote directory and the mirror table that reflects it.
type Target struct {
	Table  MirrorTable
	Repo   string
	Path   string
	Branch string
}

// SyncResult counts what a reconciliation pass did.
type SyncResult struct {
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Removed int `json:"removed"`
}

// Reconcile makes the mirror table for t match the remote listing. Rows whose
// stored hash equals the remote hash are skipped without reading any body.
// A missing remote directory yields a zero result. A failure aborts the pass;
// writes already issued stand and the pass is safe to re-run.
func (s *Service) Reconcile(ctx context.Context, actor *User, t Target) (SyncResult, error) {
	if err := s.requireRemote(); err != nil {
		return SyncResult{}, err
	}
	if err := s.authorize(actor, ActionReconcile, Subject{Stage: StagePublished}); err != nil {
		return SyncResult{}, err
	}
	t = s.targetDefaults(t)
	if !t.Table.Valid() {
		return SyncResult{}, fmt.Errorf("%w: unknown table %q", ErrInvalidInput, t.Table)
	}

	done := s.journal(ctx, ActionReconcile, actor, fmt.Sprintf("%s:%s/%s@%s", t.Table, t.Repo, t.Path, t.Branch))
	res, err := s.reconcile(ctx, t)
	done(err)
	if err == nil {
		s.logger.Info("reconciled", "table", string(t.Table), "path", t.Path,
			"updated", res.Updated, "skipped", res.Skipped, "removed", res.Removed)
	}
	return res, err
}

func (s *Service) targetDefaults(t Target) Target {
	if t.Table == "" {
		t.Table = TablePosts
	}
	if t.Repo == "" {
		t.Repo = s.site.Repo
	}
	if t.Branch == "" {
		t.Branch = s.site.Branch
	}
	if t.Path == "" {
		if t.Table == TableMedia {
			t.Path = s.site.MediaDir
		} else {
			t.Path = s.site.PostsDir
		}
	}
	return t
}

func (s *Service) reconcile(ctx context.Context, t Target) (SyncResult, error) {
	var res SyncResult

	rows, err := s.db.ListMirrorRows(ctx, t.Table, t.Repo, t.Path, t.Branch)
	if err != nil {
		return res, stepErr(StepReadMetadata, err)
	}
	stored := make(map[string]string, len(rows))
	for _, r := range rows {
		stored[r.Filename] = r.Hash
	}

	entries, err := s.remote.ListDirectory(ctx, DirRef{Repo: t.Repo, Path: t.Path, Branch: t.Branch})
	if errors.Is(err, ErrRemoteEmpty) {
		return res, nil
	}
	if err != nil {
		return res, stepErr(StepListRemote, err)
	}

	present := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if !e.IsFile() || s.ignore.Match(path.Join(t.Path, e.Name)) {
			continue
		}
		present[e.Name] = struct{}{}

		if hash, ok := stored[e.Name]; ok && hash == e.Hash {
			res.Skipped++
			continue
		}
		row := &MirrorRow{
			ID:       MirrorRowID(t.Repo, t.Path, e.Name),
			Repo:     t.Repo,
			Path:     t.Path,
			Filename: e.Name,
			Branch:   t.Branch,
			Hash:     e.Hash,
			LastSync: s.clock.Now(),
		}
		if t.Table == TableMedia {
			row.Type = MediaType(e.Name)
			row.Size = e.Size
		}
		if err := s.db.UpsertMirrorRow(ctx, t.Table, row); err != nil {
			return res, stepErr(StepWriteMetadata, err)
		}
		res.Updated++
	}

	for name := range stored {
		if _, ok := present[name]; ok {
			continue
		}
		if err := s.db.DeleteMirrorRow(ctx, t.Table, t.Repo, t.Path, name); err != nil {
			return res, stepErr(StepDeleteMetadata, err)
		}
		res.Removed++
	}
	return res, nil
}

// MediaType derives a media row's type from the file extension.
func MediaType(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	switch ext {
	case "png", "jpg", "jpeg", "gif", "webp", "svg", "avif", "ico":
		return "image"
	case "mp4", "webm", "mov":
		return "video"
	case "mp3", "wav", "ogg":
		return "audio"
	case "pdf":
		return "document"
	case "":
		return "file"
	default:
		return ext
	}
}

// ListMedia returns the media mirror rows for the site's media directory.
func (s *Service) ListMedia(ctx context.Context, actor *User) ([]*MirrorRow, error) {
	if err := s.requireDB(); err != nil {
		return nil, err
	}
	if actor.ID() == "" {
		return nil, stepErr(StepAuthorize, ErrUnauthorized)
	}
	t := s.targetDefaults(Target{Table: TableMedia})
	rows, err := s.db.ListMirrorRows(ctx, TableMedia, t.Repo, t.Path, t.Branch)
	if err != nil {
		return nil, fmt.Errorf("listing media: %w", err)
	}
	return rows, nil
}

// ListPublished returns the posts mirror rows for the site's posts directory.
func (s *Service) ListPublished(ctx context.Context, actor *User) ([]*MirrorRow, error) {
	if err := s.requireDB(); err != nil {
		return nil, err
	}
	if actor.ID() == "" {
		return nil, stepErr(StepAuthorize, ErrUnauthorized)
	}
	t := s.targetDefaults(Target{Table: TablePosts})
	rows, err := s.db.ListMirrorRows(ctx, TablePosts, t.Repo, t.Path, t.Branch)
	if err != nil {
		return nil, fmt.Errorf("listing published: %w", err)
	}
	return rows, nil
}
