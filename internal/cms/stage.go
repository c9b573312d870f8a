package cms

import (
	"fmt"
	"strings"
)

// Stage is the lifecycle stage of an item. Exactly one applies at any time.
type Stage int

const (
	StageDraft Stage = iota + 1
	StagePendingReview
	StagePublished
	StageTrashed
)

// String returns the stage name used in logs and the HTTP surface.
func (s Stage) String() string {
	switch s {
	case StageDraft:
		return "draft"
	case StagePendingReview:
		return "pending_review"
	case StagePublished:
		return "published"
	case StageTrashed:
		return "trashed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Tag returns the working-store key prefix for the stage.
// Only Draft and PendingReview live in the working store; other stages return "".
func (s Stage) Tag() string {
	switch s {
	case StageDraft:
		return "draft"
	case StagePendingReview:
		return "pending"
	default:
		return ""
	}
}

// Status returns the value stored in the content_metadata.status column.
func (s Stage) Status() string {
	switch s {
	case StageDraft:
		return "private_draft"
	case StagePendingReview:
		return "pending_review"
	case StagePublished:
		return "published"
	case StageTrashed:
		return "trashed"
	default:
		return ""
	}
}

// IsWorking reports whether items in this stage are held in the working store.
func (s Stage) IsWorking() bool {
	return s == StageDraft || s == StagePendingReview
}

// WorkingStages lists the stages held in the working store, in lifecycle order.
var WorkingStages = []Stage{StageDraft, StagePendingReview}

// stageFromTag is the inverse of Stage.Tag.
func stageFromTag(tag string) (Stage, bool) {
	switch tag {
	case "draft":
		return StageDraft, true
	case "pending":
		return StagePendingReview, true
	default:
		return 0, false
	}
}

// StageFromStatus is the inverse of Stage.Status.
func StageFromStatus(status string) (Stage, error) {
	for _, s := range []Stage{StageDraft, StagePendingReview, StagePublished, StageTrashed} {
		if s.Status() == status {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
}

// ParseStage accepts the stage name, its key tag, or its status value.
func ParseStage(raw string) (Stage, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	for _, s := range []Stage{StageDraft, StagePendingReview, StagePublished, StageTrashed} {
		if raw == s.String() || raw == s.Status() || (s.Tag() != "" && raw == s.Tag()) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown stage %q", ErrInvalidInput, raw)
}
