package cms

import (
	"context"
	"fmt"
)

// WorkingItem is a working copy's metadata plus, when requested, its body.
type WorkingItem struct {
	Key    WorkingKey
	Record *WorkingRecord
	Body   []byte
}

// ListWorking lists working copies of stage. Drafts are limited to the
// caller's own unless the caller is an Administrator; the pending-review queue
// is visible to every caller.
func (s *Service) ListWorking(ctx context.Context, actor *User, stage Stage) ([]*WorkingRecord, error) {
	if err := s.requireDB(); err != nil {
		return nil, err
	}
	if !stage.IsWorking() {
		return nil, fmt.Errorf("%w: stage %s has no working copies", ErrInvalidInput, stage)
	}
	if actor.ID() == "" {
		return nil, stepErr(StepAuthorize, ErrUnauthorized)
	}
	f := WorkingFilter{Stage: stage}
	if stage == StageDraft && !actor.IsAdmin() {
		f.Author = actor.ID()
	}
	recs, err := s.db.ListWorkingRecords(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("listing working records: %w", err)
	}
	return recs, nil
}

// GetWorking returns a working copy and its metadata record.
func (s *Service) GetWorking(ctx context.Context, actor *User, key WorkingKey) (*WorkingItem, error) {
	if err := s.requireWorking(); err != nil {
		return nil, err
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := s.authorize(actor, ActionReadWorking, Subject{Owner: key.Author, Stage: key.Stage}); err != nil {
		return nil, err
	}
	body, err := s.working.Get(ctx, key.String())
	if err != nil {
		return nil, stepErr(StepReadWorking, err)
	}
	rec, err := s.db.FindWorkingRecord(ctx, key.String())
	if err != nil {
		return nil, stepErr(StepReadMetadata, err)
	}
	return &WorkingItem{Key: key, Record: rec, Body: body}, nil
}
