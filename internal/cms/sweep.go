package cms

import (
	"context"
	"fmt"
)

// SweepResult counts what a consistency sweep repaired.
type SweepResult struct {
	Duplicates int `json:"duplicates"`
	Orphans    int `json:"orphans"`
	Recreated  int `json:"recreated"`
}

// Sweep repairs the states an interrupted transition can leave behind:
//   - an item visible under both draft and pending keys keeps only the pending
//     copy, completing the submit;
//   - metadata rows whose working copy is gone are deleted;
//   - working copies with no metadata row get one.
func (s *Service) Sweep(ctx context.Context, actor *User) (SweepResult, error) {
	if err := s.requireWorking(); err != nil {
		return SweepResult{}, err
	}
	if err := s.authorize(actor, ActionSweep, Subject{}); err != nil {
		return SweepResult{}, err
	}
	done := s.journal(ctx, ActionSweep, actor, "working-store")
	res, err := s.sweep(ctx)
	done(err)
	if err == nil {
		s.logger.Info("sweep complete", "duplicates", res.Duplicates, "orphans", res.Orphans, "recreated", res.Recreated)
	}
	return res, err
}

func (s *Service) sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	live := make(map[string]WorkingKey)
	pending := make(map[string]struct{})
	var drafts []WorkingKey
	for _, stage := range WorkingStages {
		raw, err := s.working.List(ctx, KeyPrefix(stage, ""))
		if err != nil {
			return res, stepErr(StepReadWorking, err)
		}
		for _, r := range raw {
			key, err := ParseWorkingKey(r)
			if err != nil {
				s.logger.Warn("ignoring malformed working key", "key", r, "error", err)
				continue
			}
			live[r] = key
			if stage == StagePendingReview {
				pending[ownerName(key)] = struct{}{}
			} else {
				drafts = append(drafts, key)
			}
		}
	}

	for _, d := range drafts {
		if _, ok := pending[ownerName(d)]; !ok {
			continue
		}
		if err := s.removeWorking(ctx, d); err != nil {
			return res, err
		}
		delete(live, d.String())
		res.Duplicates++
		s.logger.Info("resolved duplicate working copy", "key", d.String())
	}

	records, err := s.db.ListWorkingRecords(ctx, WorkingFilter{})
	if err != nil {
		return res, stepErr(StepReadMetadata, err)
	}
	recorded := make(map[string]struct{}, len(records))
	for _, r := range records {
		recorded[r.ID] = struct{}{}
		if _, ok := live[r.ID]; ok {
			continue
		}
		if err := s.db.DeleteWorkingRecord(ctx, r.ID); err != nil {
			return res, stepErr(StepDeleteMetadata, err)
		}
		res.Orphans++
	}

	for id, key := range live {
		if _, ok := recorded[id]; ok {
			continue
		}
		if err := s.writeRecord(ctx, key); err != nil {
			return res, fmt.Errorf("recreating record for %s: %w", id, err)
		}
		res.Recreated++
	}
	return res, nil
}

func ownerName(k WorkingKey) string {
	return k.Author + keySeparator + k.Filename
}
