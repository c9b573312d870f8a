package cms

import "context"

// mirror copies a working copy to its remote mirror directory when the site
// enables mirroring for its stage. Failures are logged and never fail the
// transition that triggered them.
func (s *Service) mirror(ctx context.Context, key WorkingKey, body []byte) {
	if s.remote == nil || !s.site.MirrorEnabled(key.Stage) {
		return
	}
	ref := s.mirrorRef(key)
	revision := ""
	current, err := s.currentFile(ctx, ref)
	if err != nil {
		s.logger.Warn("mirror lookup failed", "key", key.String(), "error", err)
		return
	}
	if current != nil {
		revision = current.Revision
	}
	if _, err := s.remote.PutFile(ctx, ref, body, revision, "Mirror "+key.Filename); err != nil {
		s.logger.Warn("mirror write failed", "key", key.String(), "error", err)
		return
	}
	wip := &WorkInProgress{
		ID:             key.String(),
		Type:           key.Stage.Tag(),
		AuthorID:       key.Author,
		Repo:           ref.Repo,
		Path:           ref.Path,
		Filename:       key.Filename,
		LastModified:   s.clock.Now(),
		MirrorToRemote: true,
	}
	if err := s.db.UpsertWorkInProgress(ctx, wip); err != nil {
		s.logger.Warn("mirror record failed", "key", key.String(), "error", err)
	}
	s.logger.Debug("working copy mirrored", "key", key.String(), "path", ref.FullPath())
}

// unmirror removes the remote mirror of a working copy, if any.
func (s *Service) unmirror(ctx context.Context, key WorkingKey) {
	if s.remote == nil || !s.site.MirrorEnabled(key.Stage) {
		return
	}
	ref := s.mirrorRef(key)
	if err := s.deleteRemote(ctx, ref, "", "Unmirror "+key.Filename); err != nil {
		s.logger.Warn("mirror delete failed", "key", key.String(), "error", err)
	}
}

func (s *Service) mirrorRef(key WorkingKey) FileRef {
	return FileRef{
		Repo:     s.site.Repo,
		Path:     s.site.MirrorDir(key.Stage),
		Filename: key.Filename,
		Branch:   s.site.Branch,
	}
}
