package cms

import (
	"context"
	"errors"
	"fmt"
	"path"

	"golang.org/x/sync/errgroup"
)

// MigrateResult counts what a bulk migration did.
type MigrateResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// MigrateWorking adopts every file in a remote directory as a working copy
// owned by the actor. Files already present under their working key are left
// alone. Stage defaults from the directory when it is a mirror directory.
func (s *Service) MigrateWorking(ctx context.Context, actor *User, dir DirRef, stage Stage) (MigrateResult, error) {
	if err := s.requireWorking(); err != nil {
		return MigrateResult{}, err
	}
	if err := s.requireRemote(); err != nil {
		return MigrateResult{}, err
	}
	if err := s.authorize(actor, ActionMigrate, Subject{Stage: stage}); err != nil {
		return MigrateResult{}, err
	}
	if dir.Repo == "" {
		dir.Repo = s.site.Repo
	}
	if dir.Branch == "" {
		dir.Branch = s.site.Branch
	}
	if stage == 0 {
		st, ok := s.site.StageForMirrorDir(dir.Path)
		if !ok {
			return MigrateResult{}, fmt.Errorf("%w: no stage given for %q", ErrInvalidInput, dir.Path)
		}
		stage = st
	}
	if !stage.IsWorking() {
		return MigrateResult{}, fmt.Errorf("%w: cannot migrate into stage %s", ErrInvalidInput, stage)
	}

	done := s.journal(ctx, ActionMigrate, actor, fmt.Sprintf("%s/%s@%s", dir.Repo, dir.Path, dir.Branch))
	res, err := s.migrate(ctx, actor, dir, stage)
	done(err)
	return res, err
}

func (s *Service) migrate(ctx context.Context, actor *User, dir DirRef, stage Stage) (MigrateResult, error) {
	var res MigrateResult

	entries, err := s.remote.ListDirectory(ctx, dir)
	if errors.Is(err, ErrRemoteEmpty) {
		return res, nil
	}
	if err != nil {
		return res, stepErr(StepListRemote, err)
	}

	var todo []WorkingKey
	for _, e := range entries {
		if !e.IsFile() || s.ignore.Match(path.Join(dir.Path, e.Name)) {
			continue
		}
		key, err := NewWorkingKey(stage, actor.ID(), e.Name)
		if err != nil {
			s.logger.Warn("skipping unmigratable file", "name", e.Name, "error", err)
			res.Skipped++
			continue
		}
		_, err = s.working.Get(ctx, key.String())
		switch {
		case err == nil:
			res.Skipped++
		case errors.Is(err, ErrNotFound):
			todo = append(todo, key)
		default:
			return res, stepErr(StepReadWorking, err)
		}
	}

	bodies := make([][]byte, len(todo))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetchLimit)
	for i, key := range todo {
		g.Go(func() error {
			f, err := s.remote.GetFile(gctx, dir.File(key.Filename))
			if err != nil {
				return fmt.Errorf("fetching %s: %w", key.Filename, err)
			}
			bodies[i] = f.Body
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, stepErr(StepReadRemote, err)
	}

	cw, conditional := s.working.(ConditionalWorkingStore)
	for i, key := range todo {
		if conditional {
			written, err := cw.PutIfAbsent(ctx, key.String(), bodies[i])
			if err != nil {
				return res, stepErr(StepWriteWorking, err)
			}
			if !written {
				res.Skipped++
				continue
			}
		} else if err := s.working.Put(ctx, key.String(), bodies[i]); err != nil {
			return res, stepErr(StepWriteWorking, err)
		}

		wip := &WorkInProgress{
			ID:             key.String(),
			Type:           stage.Tag(),
			AuthorID:       key.Author,
			Repo:           dir.Repo,
			Path:           dir.Path,
			Filename:       key.Filename,
			LastModified:   s.clock.Now(),
			MirrorToRemote: false,
		}
		if err := s.db.UpsertWorkInProgress(ctx, wip); err != nil {
			return res, stepErr(StepWriteMetadata, err)
		}
		if err := s.writeRecord(ctx, key); err != nil {
			return res, err
		}
		res.Imported++
	}
	return res, nil
}
