package cms

import (
	"context"
	"fmt"
)

// Dispatch triggers an automation job on the site repository.
func (s *Service) Dispatch(ctx context.Context, actor *User, workflow, ref string, inputs map[string]string) error {
	if err := s.requireRemote(); err != nil {
		return err
	}
	if err := s.authorize(actor, ActionAutomation, Subject{}); err != nil {
		return err
	}
	if workflow == "" {
		return fmt.Errorf("%w: workflow is required", ErrInvalidInput)
	}
	if ref == "" {
		ref = s.site.Branch
	}
	done := s.journal(ctx, ActionAutomation, actor, "dispatch:"+workflow)
	err := s.remote.Dispatch(ctx, s.site.Repo, workflow, ref, inputs)
	done(err)
	if err != nil {
		return fmt.Errorf("dispatching %s: %w", workflow, err)
	}
	return nil
}

// RunStatus returns the most recent run of an automation job.
func (s *Service) RunStatus(ctx context.Context, actor *User, workflow string) (*RunStatus, error) {
	if err := s.requireRemote(); err != nil {
		return nil, err
	}
	if err := s.authorize(actor, ActionAutomation, Subject{}); err != nil {
		return nil, err
	}
	st, err := s.remote.RunStatus(ctx, s.site.Repo, workflow)
	if err != nil {
		return nil, fmt.Errorf("reading run status for %s: %w", workflow, err)
	}
	return st, nil
}
