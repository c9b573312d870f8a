package cms

import (
	"errors"
	"testing"
)

func TestParseStage(t *testing.T) {
	tests := []struct {
		raw  string
		want Stage
	}{
		{"draft", StageDraft},
		{"private_draft", StageDraft},
		{"pending", StagePendingReview},
		{"pending_review", StagePendingReview},
		{" Published ", StagePublished},
		{"trashed", StageTrashed},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseStage(tt.raw)
			if err != nil {
				t.Fatalf("ParseStage(%q) error = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("ParseStage(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}

	if _, err := ParseStage("archived"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ParseStage(archived) error = %v, want ErrInvalidInput", err)
	}
}

func TestStageFromStatus(t *testing.T) {
	for _, s := range []Stage{StageDraft, StagePendingReview, StagePublished, StageTrashed} {
		got, err := StageFromStatus(s.Status())
		if err != nil {
			t.Fatalf("StageFromStatus(%q) error = %v", s.Status(), err)
		}
		if got != s {
			t.Errorf("StageFromStatus(%q) = %v, want %v", s.Status(), got, s)
		}
	}
	if _, err := StageFromStatus("draft"); err == nil {
		t.Error("StageFromStatus(draft) expected error: the column stores private_draft")
	}
}

func TestStage_IsWorking(t *testing.T) {
	for _, s := range WorkingStages {
		if !s.IsWorking() || s.Tag() == "" {
			t.Errorf("%v should be a working stage with a tag", s)
		}
	}
	for _, s := range []Stage{StagePublished, StageTrashed} {
		if s.IsWorking() || s.Tag() != "" {
			t.Errorf("%v should not be a working stage", s)
		}
	}
}
