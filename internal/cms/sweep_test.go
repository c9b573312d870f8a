package cms_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"cms-go/internal/cms"
	"cms-go/internal/testutil"
)

func TestSweep(t *testing.T) {
	ctx := context.Background()
	e := testutil.NewEnv(t)

	draftA := mustKey(t, cms.StageDraft, "editor@example.com", "a.md")
	pendingA := draftA.WithStage(cms.StagePendingReview)
	draftB := mustKey(t, cms.StageDraft, "editor@example.com", "b.md")
	orphan := mustKey(t, cms.StageDraft, "editor@example.com", "c.md")

	// An interrupted submit: both keys written, only the draft recorded.
	for _, k := range []cms.WorkingKey{draftA, pendingA, draftB} {
		if err := e.Working.Put(ctx, k.String(), []byte(k.Filename)); err != nil {
			t.Fatalf("Put(%s) error = %v", k, err)
		}
	}
	for _, k := range []cms.WorkingKey{draftA, orphan} {
		rec := &cms.WorkingRecord{ID: k.String(), Filename: k.Filename, AuthorEmail: k.Author, Repo: "acme/site", Status: k.Stage.Status(), LastModified: e.Clock.Now()}
		if err := e.DB.UpsertWorkingRecord(ctx, rec); err != nil {
			t.Fatalf("UpsertWorkingRecord() error = %v", err)
		}
	}

	res, err := e.Service.Sweep(ctx, e.Admin)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if diff := cmp.Diff(cms.SweepResult{Duplicates: 1, Orphans: 1, Recreated: 2}, res); diff != "" {
		t.Errorf("Sweep() mismatch (-want +got):\n%s", diff)
	}

	keys, _ := e.Working.List(ctx, "")
	if diff := cmp.Diff([]string{draftB.String(), pendingA.String()}, keys); diff != "" {
		t.Errorf("working keys mismatch (-want +got):\n%s", diff)
	}
	recs, err := e.DB.ListWorkingRecords(ctx, cms.WorkingFilter{})
	if err != nil {
		t.Fatalf("ListWorkingRecords() error = %v", err)
	}
	status := map[string]string{}
	for _, r := range recs {
		status[r.ID] = r.Status
	}
	want := map[string]string{draftB.String(): "private_draft", pendingA.String(): "pending_review"}
	if diff := cmp.Diff(want, status); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	t.Run("second sweep finds nothing", func(t *testing.T) {
		res, err := e.Service.Sweep(ctx, e.Admin)
		if err != nil {
			t.Fatalf("Sweep() error = %v", err)
		}
		if res != (cms.SweepResult{}) {
			t.Errorf("Sweep() = %+v, want zero", res)
		}
	})

	t.Run("skips malformed keys", func(t *testing.T) {
		if err := e.Working.Put(ctx, "draft:Upper:x.md", []byte("x")); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if _, err := e.Service.Sweep(ctx, e.Admin); err != nil {
			t.Fatalf("Sweep() error = %v", err)
		}
		if rec, _ := e.DB.FindWorkingRecord(ctx, "draft:Upper:x.md"); rec != nil {
			t.Errorf("malformed key got a record: %+v", rec)
		}
	})

	t.Run("requires administrator", func(t *testing.T) {
		_, err := e.Service.Sweep(ctx, e.Publisher)
		wantDenied(t, err)
	})
}
