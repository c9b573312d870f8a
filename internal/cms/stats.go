package cms

import (
	"context"
	"fmt"
)

// Stats summarizes what the engine currently holds.
type Stats struct {
	Published   int `json:"published"`
	Media       int `json:"media"`
	WorkingKeys int `json:"working_keys"`
	Users       int `json:"users"`
}

// Stats counts mirror rows, working keys and users.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.requireWorking(); err != nil {
		return st, err
	}
	var err error
	if st.Published, err = s.db.CountMirrorRows(ctx, TablePosts); err != nil {
		return st, fmt.Errorf("counting posts: %w", err)
	}
	if st.Media, err = s.db.CountMirrorRows(ctx, TableMedia); err != nil {
		return st, fmt.Errorf("counting media: %w", err)
	}
	for _, stage := range WorkingStages {
		keys, err := s.working.List(ctx, KeyPrefix(stage, ""))
		if err != nil {
			return st, fmt.Errorf("listing working keys: %w", err)
		}
		st.WorkingKeys += len(keys)
	}
	users, err := s.db.ListUsers(ctx)
	if err != nil {
		return st, fmt.Errorf("listing users: %w", err)
	}
	st.Users = len(users)
	return st, nil
}
