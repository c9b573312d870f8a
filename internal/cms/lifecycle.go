package cms

import (
	"bytes"
	"context"
	"errors"
	"fmt"
)

// Request describes one lifecycle transition.
//
// Working-copy actions (save, submit, approve, reject) address the item by Key.
// CreateDraft uses Filename and the actor's identity. Publish takes Body or a
// Key to publish from, and optionally Source when moving a published file.
// Trash, Restore and Purge address a published file by Target.
type Request struct {
	Action   Action
	Actor    *User
	Key      WorkingKey
	Filename string
	Body     []byte
	Target   FileRef
	Source   *FileRef
	Revision string
	Message  string
}

// Result is the item's state after a successful transition.
type Result struct {
	Stage    Stage
	Key      WorkingKey
	Ref      FileRef
	Revision string
	// NoOp is set when the transition found its effects already applied.
	NoOp bool
}

// Transition is the single entry point for every lifecycle change. Each call
// is journaled; a failure reports the step that failed.
func (s *Service) Transition(ctx context.Context, req Request) (Result, error) {
	done := s.journal(ctx, req.Action, req.Actor, describe(req))
	res, err := s.transition(ctx, req)
	done(err)
	return res, err
}

func describe(req Request) string {
	switch {
	case req.Key.Filename != "":
		return req.Key.String()
	case req.Target.Filename != "":
		return req.Target.Repo + "/" + req.Target.FullPath()
	default:
		return req.Filename
	}
}

func (s *Service) transition(ctx context.Context, req Request) (Result, error) {
	switch req.Action {
	case ActionCreateDraft:
		return s.createDraft(ctx, req)
	case ActionSaveDraft:
		return s.saveDraft(ctx, req)
	case ActionSubmit:
		return s.submit(ctx, req)
	case ActionPublish:
		return s.publish(ctx, req)
	case ActionApprove:
		return s.approve(ctx, req)
	case ActionReject:
		return s.reject(ctx, req)
	case ActionTrash:
		return s.trash(ctx, req)
	case ActionRestore:
		return s.restore(ctx, req)
	case ActionPurge:
		return s.purge(ctx, req)
	default:
		return Result{}, fmt.Errorf("%w: %q is not a lifecycle action", ErrInvalidInput, req.Action)
	}
}

func (s *Service) createDraft(ctx context.Context, req Request) (Result, error) {
	if err := s.requireWorking(); err != nil {
		return Result{}, err
	}
	if err := s.authorize(req.Actor, ActionCreateDraft, Subject{Owner: req.Actor.ID(), Stage: StageDraft}); err != nil {
		return Result{}, err
	}
	key, err := NewWorkingKey(StageDraft, req.Actor.ID(), req.Filename)
	if err != nil {
		return Result{}, stepErr(StepValidate, err)
	}

	// An item never lives under both tags.
	if _, err := s.working.Get(ctx, key.WithStage(StagePendingReview).String()); err == nil {
		return Result{}, stepErr(StepReadWorking, fmt.Errorf("%w: %s is already pending review", ErrConflict, key.Filename))
	} else if !errors.Is(err, ErrNotFound) {
		return Result{}, stepErr(StepReadWorking, err)
	}

	if cw, ok := s.working.(ConditionalWorkingStore); ok {
		written, err := cw.PutIfAbsent(ctx, key.String(), req.Body)
		if err != nil {
			return Result{}, stepErr(StepWriteWorking, err)
		}
		if !written {
			existing, err := s.working.Get(ctx, key.String())
			if err != nil {
				return Result{}, stepErr(StepReadWorking, err)
			}
			if !bytes.Equal(existing, req.Body) {
				return Result{}, stepErr(StepWriteWorking, fmt.Errorf("%w: draft %s already exists", ErrConflict, key.Filename))
			}
		}
	} else if err := s.working.Put(ctx, key.String(), req.Body); err != nil {
		return Result{}, stepErr(StepWriteWorking, err)
	}

	if err := s.writeRecord(ctx, key); err != nil {
		return Result{}, err
	}
	s.mirror(ctx, key, req.Body)
	return Result{Stage: StageDraft, Key: key}, nil
}

func (s *Service) saveDraft(ctx context.Context, req Request) (Result, error) {
	if err := s.requireWorking(); err != nil {
		return Result{}, err
	}
	key := req.Key
	if err := key.Validate(); err != nil {
		return Result{}, stepErr(StepValidate, err)
	}
	if key.Stage != StageDraft {
		return Result{}, stepErr(StepValidate, fmt.Errorf("%w: only drafts can be saved", ErrInvalidInput))
	}
	if err := s.authorize(req.Actor, ActionSaveDraft, Subject{Owner: key.Author, Stage: key.Stage}); err != nil {
		return Result{}, err
	}
	if _, err := s.working.Get(ctx, key.String()); err != nil {
		return Result{}, stepErr(StepReadWorking, err)
	}
	if err := s.working.Put(ctx, key.String(), req.Body); err != nil {
		return Result{}, stepErr(StepWriteWorking, err)
	}
	if err := s.writeRecord(ctx, key); err != nil {
		return Result{}, err
	}
	s.mirror(ctx, key, req.Body)
	return Result{Stage: StageDraft, Key: key}, nil
}

func (s *Service) submit(ctx context.Context, req Request) (Result, error) {
	if err := s.requireWorking(); err != nil {
		return Result{}, err
	}
	draft := req.Key
	if err := draft.Validate(); err != nil {
		return Result{}, stepErr(StepValidate, err)
	}
	if draft.Stage != StageDraft {
		return Result{}, stepErr(StepValidate, fmt.Errorf("%w: only drafts can be submitted", ErrInvalidInput))
	}
	if err := s.authorize(req.Actor, ActionSubmit, Subject{Owner: draft.Author, Stage: draft.Stage}); err != nil {
		return Result{}, err
	}
	pending := draft.WithStage(StagePendingReview)

	body, err := s.working.Get(ctx, draft.String())
	if errors.Is(err, ErrNotFound) {
		// Re-applied after the draft was already removed.
		if _, perr := s.working.Get(ctx, pending.String()); perr != nil {
			return Result{}, stepErr(StepReadWorking, err)
		}
		if err := s.writeRecord(ctx, pending); err != nil {
			return Result{}, err
		}
		if err := s.db.DeleteWorkingRecord(ctx, draft.String()); err != nil {
			return Result{}, stepErr(StepDeleteMetadata, err)
		}
		return Result{Stage: StagePendingReview, Key: pending, NoOp: true}, nil
	}
	if err != nil {
		return Result{}, stepErr(StepReadWorking, err)
	}

	if err := s.working.Put(ctx, pending.String(), body); err != nil {
		return Result{}, stepErr(StepWriteWorking, err)
	}
	if err := s.writeRecord(ctx, pending); err != nil {
		return Result{}, err
	}
	if err := s.removeWorking(ctx, draft); err != nil {
		return Result{}, err
	}
	s.mirror(ctx, pending, body)
	return Result{Stage: StagePendingReview, Key: pending}, nil
}

func (s *Service) publish(ctx context.Context, req Request) (Result, error) {
	if err := s.requireRemote(); err != nil {
		return Result{}, err
	}
	fromWorking := req.Key.Filename != ""
	subject := Subject{Stage: StagePublished}
	if fromWorking {
		if err := req.Key.Validate(); err != nil {
			return Result{}, stepErr(StepValidate, err)
		}
		if s.working == nil {
			return Result{}, fmt.Errorf("working store: %w", ErrNotConfigured)
		}
		subject = Subject{Owner: req.Key.Author, Stage: req.Key.Stage}
	}
	if err := s.authorize(req.Actor, ActionPublish, subject); err != nil {
		return Result{}, err
	}

	target := req.Target
	if target.Filename == "" {
		name := req.Filename
		if name == "" {
			name = req.Key.Filename
		}
		target = s.site.PublishedRef(name)
	}
	if target.Path == "" {
		target.Path = s.site.PostsDir
	}
	target = s.withSiteDefaults(target)
	if err := ValidateFilename(target.Filename); err != nil {
		return Result{}, stepErr(StepValidate, err)
	}

	body := req.Body
	if body == nil && fromWorking {
		b, err := s.working.Get(ctx, req.Key.String())
		if err != nil {
			return Result{}, stepErr(StepReadWorking, err)
		}
		body = b
	}
	if err := s.validate(body); err != nil {
		return Result{}, err
	}

	var source FileRef
	if req.Source != nil {
		source = s.withSiteDefaults(*req.Source)
		if source.Path == "" {
			source.Path = s.site.PostsDir
		}
	}
	moving := req.Source != nil && !source.SameLocation(target)
	revision := req.Revision
	if moving {
		// A move is a create at the target followed by a delete at the source.
		revision = ""
	} else if revision == "" {
		current, err := s.currentFile(ctx, target)
		if err != nil {
			return Result{}, stepErr(StepReadRemote, err)
		}
		if current != nil {
			revision = current.Revision
		}
	}

	newRev, err := s.remote.PutFile(ctx, target, body, revision, messageFor(req, "Publish", target.Filename))
	if err != nil {
		return Result{}, stepErr(StepWriteRemote, err)
	}
	if err := s.recordPublished(ctx, target, newRev); err != nil {
		return Result{}, err
	}

	if moving {
		if err := s.deleteRemote(ctx, source, "", messageFor(req, "Move", source.Filename)); err != nil {
			return Result{}, err
		}
		if err := s.db.DeleteMirrorRow(ctx, TablePosts, source.Repo, source.Path, source.Filename); err != nil {
			return Result{}, stepErr(StepDeleteMetadata, err)
		}
	}

	if fromWorking {
		if err := s.removeWorking(ctx, req.Key); err != nil {
			return Result{}, err
		}
	}
	return Result{Stage: StagePublished, Ref: target, Revision: newRev}, nil
}

func (s *Service) approve(ctx context.Context, req Request) (Result, error) {
	if err := s.requireWorking(); err != nil {
		return Result{}, err
	}
	if err := s.requireRemote(); err != nil {
		return Result{}, err
	}
	key := req.Key
	if err := key.Validate(); err != nil {
		return Result{}, stepErr(StepValidate, err)
	}
	if key.Stage != StagePendingReview {
		return Result{}, stepErr(StepValidate, fmt.Errorf("%w: only pending items can be approved", ErrInvalidInput))
	}
	if err := s.authorize(req.Actor, ActionApprove, Subject{Owner: key.Author, Stage: key.Stage}); err != nil {
		return Result{}, err
	}
	target := s.site.PublishedRef(key.Filename)

	body, err := s.working.Get(ctx, key.String())
	if errors.Is(err, ErrNotFound) {
		// Re-applied after the working copy was already removed.
		current, cerr := s.currentFile(ctx, target)
		if cerr != nil {
			return Result{}, stepErr(StepReadRemote, cerr)
		}
		if current == nil {
			return Result{}, stepErr(StepReadWorking, err)
		}
		if err := s.db.DeleteWorkingRecord(ctx, key.String()); err != nil {
			return Result{}, stepErr(StepDeleteMetadata, err)
		}
		return Result{Stage: StagePublished, Ref: target, Revision: current.Revision, NoOp: true}, nil
	}
	if err != nil {
		return Result{}, stepErr(StepReadWorking, err)
	}
	if err := s.validate(body); err != nil {
		return Result{}, err
	}

	current, err := s.currentFile(ctx, target)
	if err != nil {
		return Result{}, stepErr(StepReadRemote, err)
	}
	var newRev string
	if current != nil && bytes.Equal(current.Body, body) {
		newRev = current.Revision
	} else {
		revision := ""
		if current != nil {
			revision = current.Revision
		}
		newRev, err = s.remote.PutFile(ctx, target, body, revision, messageFor(req, "Approve", key.Filename))
		if err != nil {
			return Result{}, stepErr(StepWriteRemote, err)
		}
	}
	if err := s.recordPublished(ctx, target, newRev); err != nil {
		return Result{}, err
	}
	if err := s.removeWorking(ctx, key); err != nil {
		return Result{}, err
	}
	return Result{Stage: StagePublished, Ref: target, Revision: newRev}, nil
}

func (s *Service) reject(ctx context.Context, req Request) (Result, error) {
	if err := s.requireWorking(); err != nil {
		return Result{}, err
	}
	key := req.Key
	if err := key.Validate(); err != nil {
		return Result{}, stepErr(StepValidate, err)
	}
	if err := s.authorize(req.Actor, ActionReject, Subject{Owner: key.Author, Stage: key.Stage}); err != nil {
		return Result{}, err
	}
	if err := s.removeWorking(ctx, key); err != nil {
		return Result{}, err
	}
	return Result{Key: key}, nil
}

func (s *Service) trash(ctx context.Context, req Request) (Result, error) {
	if err := s.requireRemote(); err != nil {
		return Result{}, err
	}
	if err := s.authorize(req.Actor, ActionTrash, Subject{Stage: StagePublished}); err != nil {
		return Result{}, err
	}
	src := s.publishedTarget(req)
	if err := ValidateFilename(src.Filename); err != nil {
		return Result{}, stepErr(StepValidate, err)
	}
	dst := src
	dst.Path = s.site.TrashDir

	// The mirror row at src is left for the next reconciliation pass.
	rev, noop, err := s.moveRemote(ctx, src, dst, req.Revision, messageFor(req, "Trash", src.Filename))
	if err != nil {
		return Result{}, err
	}
	return Result{Stage: StageTrashed, Ref: dst, Revision: rev, NoOp: noop}, nil
}

func (s *Service) restore(ctx context.Context, req Request) (Result, error) {
	if err := s.requireRemote(); err != nil {
		return Result{}, err
	}
	if err := s.authorize(req.Actor, ActionRestore, Subject{Stage: StageTrashed}); err != nil {
		return Result{}, err
	}
	dst := s.publishedTarget(req)
	if err := ValidateFilename(dst.Filename); err != nil {
		return Result{}, stepErr(StepValidate, err)
	}
	src := dst
	src.Path = s.site.TrashDir

	rev, noop, err := s.moveRemote(ctx, src, dst, req.Revision, messageFor(req, "Restore", dst.Filename))
	if err != nil {
		return Result{}, err
	}
	if err := s.recordPublished(ctx, dst, rev); err != nil {
		return Result{}, err
	}
	if err := s.db.DeleteMirrorRow(ctx, TablePosts, src.Repo, src.Path, src.Filename); err != nil {
		return Result{}, stepErr(StepDeleteMetadata, err)
	}
	return Result{Stage: StagePublished, Ref: dst, Revision: rev, NoOp: noop}, nil
}

func (s *Service) purge(ctx context.Context, req Request) (Result, error) {
	if err := s.requireRemote(); err != nil {
		return Result{}, err
	}
	if err := s.authorize(req.Actor, ActionPurge, Subject{Stage: StageTrashed}); err != nil {
		return Result{}, err
	}
	target := req.Target
	if target.Path == "" {
		target.Path = s.site.TrashDir
	}
	target = s.withSiteDefaults(target)
	if err := ValidateFilename(target.Filename); err != nil {
		return Result{}, stepErr(StepValidate, err)
	}
	if err := s.deleteRemote(ctx, target, req.Revision, messageFor(req, "Purge", target.Filename)); err != nil {
		return Result{}, err
	}
	if err := s.db.DeleteMirrorRow(ctx, TablePosts, target.Repo, target.Path, target.Filename); err != nil {
		return Result{}, stepErr(StepDeleteMetadata, err)
	}
	return Result{Ref: target}, nil
}

// publishedTarget resolves req.Target against the posts directory.
func (s *Service) publishedTarget(req Request) FileRef {
	target := req.Target
	if target.Filename == "" {
		target.Filename = req.Filename
	}
	if target.Path == "" {
		target.Path = s.site.PostsDir
	}
	return s.withSiteDefaults(target)
}

func (s *Service) withSiteDefaults(ref FileRef) FileRef {
	if ref.Repo == "" {
		ref.Repo = s.site.Repo
	}
	if ref.Branch == "" {
		ref.Branch = s.site.Branch
	}
	return ref
}

func (s *Service) validate(body []byte) error {
	if s.validator == nil {
		return nil
	}
	if err := s.validator.Validate(body); err != nil {
		return stepErr(StepValidate, err)
	}
	return nil
}

// currentFile returns nil when the file does not exist.
func (s *Service) currentFile(ctx context.Context, ref FileRef) (*RemoteFile, error) {
	f, err := s.remote.GetFile(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// deleteRemote deletes ref, fetching its revision when none is given.
// A file that is already gone counts as deleted.
func (s *Service) deleteRemote(ctx context.Context, ref FileRef, revision, message string) error {
	if revision == "" {
		current, err := s.currentFile(ctx, ref)
		if err != nil {
			return stepErr(StepReadRemote, err)
		}
		if current == nil {
			return nil
		}
		revision = current.Revision
	}
	err := s.remote.DeleteFile(ctx, ref, revision, message)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return stepErr(StepDeleteRemote, err)
	}
	return nil
}

// moveRemote copies src to dst and then deletes src. A missing source whose
// destination already exists is a completed move. src and dst must differ.
func (s *Service) moveRemote(ctx context.Context, src, dst FileRef, srcRevision, message string) (string, bool, error) {
	if src.SameLocation(dst) {
		return "", false, stepErr(StepValidate, fmt.Errorf("%w: %s is both source and destination", ErrInvalidInput, dst.FullPath()))
	}
	source, err := s.currentFile(ctx, src)
	if err != nil {
		return "", false, stepErr(StepReadRemote, err)
	}
	existing, err := s.currentFile(ctx, dst)
	if err != nil {
		return "", false, stepErr(StepReadRemote, err)
	}
	if source == nil {
		if existing != nil {
			return existing.Revision, true, nil
		}
		return "", false, stepErr(StepReadRemote, fmt.Errorf("%s: %w", src.FullPath(), ErrNotFound))
	}
	if srcRevision == "" {
		srcRevision = source.Revision
	}

	var dstRev string
	switch {
	case existing != nil && bytes.Equal(existing.Body, source.Body):
		dstRev = existing.Revision
	case existing != nil:
		dstRev, err = s.remote.PutFile(ctx, dst, source.Body, existing.Revision, message)
	default:
		dstRev, err = s.remote.PutFile(ctx, dst, source.Body, "", message)
	}
	if err != nil {
		return "", false, stepErr(StepWriteRemote, err)
	}

	if err := s.remote.DeleteFile(ctx, src, srcRevision, message); err != nil && !errors.Is(err, ErrNotFound) {
		return "", false, stepErr(StepDeleteRemote, err)
	}
	return dstRev, false, nil
}

func (s *Service) recordPublished(ctx context.Context, ref FileRef, revision string) error {
	row := &MirrorRow{
		ID:       MirrorRowID(ref.Repo, ref.Path, ref.Filename),
		Repo:     ref.Repo,
		Path:     ref.Path,
		Filename: ref.Filename,
		Branch:   ref.Branch,
		Hash:     revision,
		LastSync: s.clock.Now(),
	}
	if err := s.db.UpsertMirrorRow(ctx, TablePosts, row); err != nil {
		return stepErr(StepWriteMetadata, err)
	}
	return nil
}

func (s *Service) writeRecord(ctx context.Context, key WorkingKey) error {
	rec := &WorkingRecord{
		ID:           key.String(),
		Filename:     key.Filename,
		AuthorEmail:  key.Author,
		Repo:         s.site.Repo,
		Status:       key.Stage.Status(),
		LastModified: s.clock.Now(),
	}
	if err := s.db.UpsertWorkingRecord(ctx, rec); err != nil {
		return stepErr(StepWriteMetadata, err)
	}
	return nil
}

// removeWorking deletes a working copy and then its metadata record.
func (s *Service) removeWorking(ctx context.Context, key WorkingKey) error {
	if err := s.working.Delete(ctx, key.String()); err != nil {
		return stepErr(StepDeleteWorking, err)
	}
	if err := s.db.DeleteWorkingRecord(ctx, key.String()); err != nil {
		return stepErr(StepDeleteMetadata, err)
	}
	s.unmirror(ctx, key)
	return nil
}

func messageFor(req Request, verb, filename string) string {
	if req.Message != "" {
		return req.Message
	}
	return fmt.Sprintf("%s %s", verb, filename)
}
