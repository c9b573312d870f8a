package cms_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"cms-go/internal/cms"
	"cms-go/internal/remote"
	"cms-go/internal/testutil"
)

func mustKey(t *testing.T, stage cms.Stage, author, filename string) cms.WorkingKey {
	t.Helper()
	k, err := cms.NewWorkingKey(stage, author, filename)
	if err != nil {
		t.Fatalf("NewWorkingKey() error = %v", err)
	}
	return k
}

func transition(t *testing.T, e *testutil.Env, req cms.Request) cms.Result {
	t.Helper()
	res, err := e.Service.Transition(context.Background(), req)
	if err != nil {
		t.Fatalf("Transition(%s) error = %v", req.Action, err)
	}
	return res
}

func wantDenied(t *testing.T, err error) {
	t.Helper()
	if !errors.Is(err, cms.ErrUnauthorized) {
		t.Fatalf("error = %v, want ErrUnauthorized", err)
	}
	if got := cms.FailedStep(err); got != cms.StepAuthorize {
		t.Errorf("FailedStep() = %q, want %q", got, cms.StepAuthorize)
	}
	// The gate's reason is logged, never returned.
	if err.Error() != "authorize: unauthorized" {
		t.Errorf("denial leaks detail: %q", err.Error())
	}
}

func workingBody(t *testing.T, e *testutil.Env, key cms.WorkingKey) ([]byte, bool) {
	t.Helper()
	body, err := e.Working.Get(context.Background(), key.String())
	if errors.Is(err, cms.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		t.Fatalf("Working.Get(%s) error = %v", key, err)
	}
	return body, true
}

func TestTransition_DraftToPublished(t *testing.T) {
	ctx := context.Background()
	e := testutil.NewEnv(t)

	created := transition(t, e, cms.Request{Action: cms.ActionCreateDraft, Actor: e.Editor, Filename: "post.md", Body: []byte("v1")})
	draft := mustKey(t, cms.StageDraft, "editor@example.com", "post.md")
	if diff := cmp.Diff(cms.Result{Stage: cms.StageDraft, Key: draft}, created); diff != "" {
		t.Errorf("create mismatch (-want +got):\n%s", diff)
	}

	transition(t, e, cms.Request{Action: cms.ActionSaveDraft, Actor: e.Editor, Key: draft, Body: []byte("v2")})
	if body, _ := workingBody(t, e, draft); string(body) != "v2" {
		t.Errorf("draft body = %q, want v2", body)
	}
	rec, err := e.DB.FindWorkingRecord(ctx, draft.String())
	if err != nil || rec == nil {
		t.Fatalf("FindWorkingRecord() = %v, %v", rec, err)
	}
	if rec.Status != "private_draft" || rec.AuthorEmail != "editor@example.com" || rec.Repo != "acme/site" {
		t.Errorf("draft record = %+v", rec)
	}

	submitted := transition(t, e, cms.Request{Action: cms.ActionSubmit, Actor: e.Editor, Key: draft})
	pending := draft.WithStage(cms.StagePendingReview)
	if submitted.Key != pending || submitted.Stage != cms.StagePendingReview {
		t.Errorf("submit result = %+v", submitted)
	}
	if _, ok := workingBody(t, e, draft); ok {
		t.Error("draft key still present after submit")
	}
	if body, _ := workingBody(t, e, pending); string(body) != "v2" {
		t.Errorf("pending body = %q, want v2", body)
	}
	if rec, _ := e.DB.FindWorkingRecord(ctx, draft.String()); rec != nil {
		t.Errorf("draft record still present: %+v", rec)
	}
	if rec, _ := e.DB.FindWorkingRecord(ctx, pending.String()); rec == nil || rec.Status != "pending_review" {
		t.Errorf("pending record = %+v", rec)
	}

	_, err = e.Service.Transition(ctx, cms.Request{Action: cms.ActionApprove, Actor: e.Editor, Key: pending})
	wantDenied(t, err)

	approved := transition(t, e, cms.Request{Action: cms.ActionApprove, Actor: e.Admin, Key: pending})
	want := cms.Result{Stage: cms.StagePublished, Ref: e.PostRef("post.md"), Revision: remote.BlobSHA([]byte("v2"))}
	if diff := cmp.Diff(want, approved); diff != "" {
		t.Errorf("approve mismatch (-want +got):\n%s", diff)
	}

	f, err := e.Remote.GetFile(ctx, e.PostRef("post.md"))
	if err != nil {
		t.Fatalf("GetFile() error = %v", err)
	}
	if string(f.Body) != "v2" {
		t.Errorf("published body = %q, want v2", f.Body)
	}
	if e.Working.Len() != 0 {
		t.Errorf("working store holds %d items after approval, want 0", e.Working.Len())
	}
	rows, err := e.DB.ListMirrorRows(ctx, cms.TablePosts, "acme/site", "_posts", "main")
	if err != nil {
		t.Fatalf("ListMirrorRows() error = %v", err)
	}
	if len(rows) != 1 || rows[0].Hash != approved.Revision {
		t.Errorf("posts mirror = %+v", rows)
	}
}

func TestTransition_ReapplyIsNoOp(t *testing.T) {
	ctx := context.Background()
	e := testutil.NewEnv(t)
	draft := mustKey(t, cms.StageDraft, "editor@example.com", "post.md")
	pending := draft.WithStage(cms.StagePendingReview)

	transition(t, e, cms.Request{Action: cms.ActionCreateDraft, Actor: e.Editor, Filename: "post.md", Body: []byte("body")})
	// Same body again converges on the existing draft.
	transition(t, e, cms.Request{Action: cms.ActionCreateDraft, Actor: e.Editor, Filename: "post.md", Body: []byte("body")})

	transition(t, e, cms.Request{Action: cms.ActionSubmit, Actor: e.Editor, Key: draft})
	again := transition(t, e, cms.Request{Action: cms.ActionSubmit, Actor: e.Editor, Key: draft})
	if !again.NoOp || again.Key != pending {
		t.Errorf("second submit = %+v, want no-op at %s", again, pending)
	}

	first := transition(t, e, cms.Request{Action: cms.ActionApprove, Actor: e.Admin, Key: pending})
	writes := e.Remote.Writes()
	second := transition(t, e, cms.Request{Action: cms.ActionApprove, Actor: e.Admin, Key: pending})
	if !second.NoOp || second.Revision != first.Revision {
		t.Errorf("second approve = %+v, want no-op at %s", second, first.Revision)
	}
	if e.Remote.Writes() != writes {
		t.Error("re-applied approve wrote to the remote")
	}
	if rec, _ := e.DB.FindWorkingRecord(ctx, pending.String()); rec != nil {
		t.Errorf("pending record survived: %+v", rec)
	}
}

func TestTransition_StageExclusivity(t *testing.T) {
	ctx := context.Background()
	e := testutil.NewEnv(t)
	draft := mustKey(t, cms.StageDraft, "editor@example.com", "post.md")

	transition(t, e, cms.Request{Action: cms.ActionCreateDraft, Actor: e.Editor, Filename: "post.md", Body: []byte("a")})

	_, err := e.Service.Transition(ctx, cms.Request{Action: cms.ActionCreateDraft, Actor: e.Editor, Filename: "post.md", Body: []byte("b")})
	if !errors.Is(err, cms.ErrConflict) {
		t.Fatalf("create over different draft error = %v, want ErrConflict", err)
	}

	transition(t, e, cms.Request{Action: cms.ActionSubmit, Actor: e.Editor, Key: draft})
	_, err = e.Service.Transition(ctx, cms.Request{Action: cms.ActionCreateDraft, Actor: e.Editor, Filename: "post.md", Body: []byte("a")})
	if !errors.Is(err, cms.ErrConflict) {
		t.Fatalf("create while pending error = %v, want ErrConflict", err)
	}

	keys, err := e.Working.List(ctx, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if diff := cmp.Diff([]string{"pending:editor@example.com:post.md"}, keys); diff != "" {
		t.Errorf("working keys mismatch (-want +got):\n%s", diff)
	}
}

func TestTransition_Permissions(t *testing.T) {
	ctx := context.Background()
	e := testutil.NewEnv(t)
	theirs := transition(t, e, cms.Request{Action: cms.ActionCreateDraft, Actor: e.Publisher, Filename: "theirs.md", Body: []byte("orig")}).Key
	mine := transition(t, e, cms.Request{Action: cms.ActionCreateDraft, Actor: e.Editor, Filename: "mine.md", Body: []byte("x")}).Key
	e.Remote.Seed(e.PostRef("live.md"), []byte("live"))

	denied := []struct {
		name string
		req  cms.Request
	}{
		{"save another author's draft", cms.Request{Action: cms.ActionSaveDraft, Actor: e.Editor, Key: theirs, Body: []byte("hijack")}},
		{"submit another author's draft", cms.Request{Action: cms.ActionSubmit, Actor: e.Editor, Key: theirs}},
		{"reject another author's draft", cms.Request{Action: cms.ActionReject, Actor: e.Editor, Key: theirs}},
		{"publish", cms.Request{Action: cms.ActionPublish, Actor: e.Editor, Filename: "new.md", Body: []byte("x")}},
		{"publish own draft", cms.Request{Action: cms.ActionPublish, Actor: e.Editor, Key: mine}},
		{"trash", cms.Request{Action: cms.ActionTrash, Actor: e.Editor, Target: cms.FileRef{Filename: "live.md"}}},
		{"restore", cms.Request{Action: cms.ActionRestore, Actor: e.Editor, Target: cms.FileRef{Filename: "live.md"}}},
		{"purge", cms.Request{Action: cms.ActionPurge, Actor: e.Editor, Target: cms.FileRef{Filename: "live.md"}}},
		{"no actor", cms.Request{Action: cms.ActionCreateDraft, Filename: "anon.md", Body: []byte("x")}},
	}
	for _, tt := range denied {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Service.Transition(ctx, tt.req)
			wantDenied(t, err)
		})
	}

	if body, _ := workingBody(t, e, theirs); string(body) != "orig" {
		t.Errorf("denied save changed the draft: %q", body)
	}
	if _, err := e.Remote.GetFile(ctx, e.PostRef("live.md")); err != nil {
		t.Errorf("denied trash moved the file: %v", err)
	}
	if _, err := e.Remote.GetFile(ctx, e.PostRef("new.md")); !errors.Is(err, cms.ErrNotFound) {
		t.Errorf("denied publish wrote the file: %v", err)
	}

	t.Run("editor rejects own draft", func(t *testing.T) {
		transition(t, e, cms.Request{Action: cms.ActionReject, Actor: e.Editor, Key: mine})
		if _, ok := workingBody(t, e, mine); ok {
			t.Error("rejected draft still present")
		}
	})

	t.Run("editor cannot reject own pending item", func(t *testing.T) {
		d := transition(t, e, cms.Request{Action: cms.ActionCreateDraft, Actor: e.Editor, Filename: "queued.md", Body: []byte("q")}).Key
		p := transition(t, e, cms.Request{Action: cms.ActionSubmit, Actor: e.Editor, Key: d}).Key
		_, err := e.Service.Transition(ctx, cms.Request{Action: cms.ActionReject, Actor: e.Editor, Key: p})
		wantDenied(t, err)
		transition(t, e, cms.Request{Action: cms.ActionReject, Actor: e.Publisher, Key: p})
	})
}

func TestTransition_Validation(t *testing.T) {
	ctx := context.Background()
	e := testutil.NewEnv(t)
	draft := mustKey(t, cms.StageDraft, "editor@example.com", "post.md")

	tests := []struct {
		name string
		req  cms.Request
		kind cms.Kind
		step cms.Step
	}{
		{"unknown action", cms.Request{Action: "explode", Actor: e.Admin}, cms.KindInvalidInput, ""},
		{"filename with slash", cms.Request{Action: cms.ActionCreateDraft, Actor: e.Editor, Filename: "a/b.md"}, cms.KindInvalidInput, cms.StepValidate},
		{"save pending key", cms.Request{Action: cms.ActionSaveDraft, Actor: e.Editor, Key: draft.WithStage(cms.StagePendingReview)}, cms.KindInvalidInput, cms.StepValidate},
		{"approve draft key", cms.Request{Action: cms.ActionApprove, Actor: e.Admin, Key: draft}, cms.KindInvalidInput, cms.StepValidate},
		{"save missing draft", cms.Request{Action: cms.ActionSaveDraft, Actor: e.Editor, Key: draft, Body: []byte("x")}, cms.KindNotFound, cms.StepReadWorking},
		{"submit missing draft", cms.Request{Action: cms.ActionSubmit, Actor: e.Editor, Key: draft}, cms.KindNotFound, cms.StepReadWorking},
		{"trash missing file", cms.Request{Action: cms.ActionTrash, Actor: e.Admin, Target: cms.FileRef{Filename: "gone.md"}}, cms.KindNotFound, cms.StepReadRemote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Service.Transition(ctx, tt.req)
			if got := cms.KindOf(err); got != tt.kind {
				t.Fatalf("KindOf(%v) = %q, want %q", err, got, tt.kind)
			}
			if got := cms.FailedStep(err); got != tt.step {
				t.Errorf("FailedStep() = %q, want %q", got, tt.step)
			}
		})
	}
}

func TestTransition_PublishRevisions(t *testing.T) {
	ctx := context.Background()
	e := testutil.NewEnv(t)

	first := transition(t, e, cms.Request{Action: cms.ActionPublish, Actor: e.Publisher, Filename: "post.md", Body: []byte("one")})
	if first.Revision != remote.BlobSHA([]byte("one")) {
		t.Errorf("revision = %q", first.Revision)
	}

	// An empty revision is fetched from the remote before writing.
	second := transition(t, e, cms.Request{Action: cms.ActionPublish, Actor: e.Publisher, Filename: "post.md", Body: []byte("two")})

	_, err := e.Service.Transition(ctx, cms.Request{
		Action:   cms.ActionPublish,
		Actor:    e.Publisher,
		Filename: "post.md",
		Body:     []byte("three"),
		Revision: first.Revision,
	})
	if !errors.Is(err, cms.ErrConflict) {
		t.Fatalf("stale revision error = %v, want ErrConflict", err)
	}
	if got := cms.FailedStep(err); got != cms.StepWriteRemote {
		t.Errorf("FailedStep() = %q, want %q", got, cms.StepWriteRemote)
	}
	if !cms.Retryable(err) {
		t.Error("conflict should be retryable")
	}

	transition(t, e, cms.Request{Action: cms.ActionPublish, Actor: e.Publisher, Filename: "post.md", Body: []byte("three"), Revision: second.Revision})
	f, _ := e.Remote.GetFile(ctx, e.PostRef("post.md"))
	if string(f.Body) != "three" {
		t.Errorf("body = %q, want three", f.Body)
	}
}

func TestTransition_PublishFromWorkingCopy(t *testing.T) {
	ctx := context.Background()
	e := testutil.NewEnv(t)
	key := transition(t, e, cms.Request{Action: cms.ActionCreateDraft, Actor: e.Publisher, Filename: "post.md", Body: []byte("draft body")}).Key

	res := transition(t, e, cms.Request{Action: cms.ActionPublish, Actor: e.Publisher, Key: key, Filename: "2024-01-15-post.md"})
	if res.Ref != e.PostRef("2024-01-15-post.md") {
		t.Errorf("ref = %+v", res.Ref)
	}
	f, err := e.Remote.GetFile(ctx, res.Ref)
	if err != nil || string(f.Body) != "draft body" {
		t.Fatalf("GetFile() = %v, %v", f, err)
	}
	if _, ok := workingBody(t, e, key); ok {
		t.Error("working copy survived publish")
	}
	if rec, _ := e.DB.FindWorkingRecord(ctx, key.String()); rec != nil {
		t.Errorf("working record survived publish: %+v", rec)
	}
}

func TestTransition_PublishMove(t *testing.T) {
	ctx := context.Background()
	e := testutil.NewEnv(t)
	e.Remote.Seed(e.PostRef("old.md"), []byte("old"))
	if _, err := e.Service.Reconcile(ctx, e.Admin, cms.Target{}); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	transition(t, e, cms.Request{
		Action:   cms.ActionPublish,
		Actor:    e.Publisher,
		Filename: "new.md",
		Body:     []byte("renamed"),
		Source:   &cms.FileRef{Filename: "old.md"},
	})

	if _, err := e.Remote.GetFile(ctx, e.PostRef("old.md")); !errors.Is(err, cms.ErrNotFound) {
		t.Errorf("source still present: %v", err)
	}
	rows, err := e.Service.ListPublished(ctx, e.Editor)
	if err != nil {
		t.Fatalf("ListPublished() error = %v", err)
	}
	var names []string
	for _, r := range rows {
		names = append(names, r.Filename)
	}
	if diff := cmp.Diff([]string{"new.md"}, names); diff != "" {
		t.Errorf("published rows mismatch (-want +got):\n%s", diff)
	}
}

func TestTransition_TrashRestorePurge(t *testing.T) {
	ctx := context.Background()
	e := testutil.NewEnv(t)
	rev := e.Remote.Seed(e.PostRef("post.md"), []byte("content"))
	trashRef := testutil.TestSite.TrashRef("post.md")

	trashed := transition(t, e, cms.Request{Action: cms.ActionTrash, Actor: e.Publisher, Target: cms.FileRef{Filename: "post.md"}})
	if trashed.Stage != cms.StageTrashed || trashed.Ref != trashRef || trashed.Revision != rev {
		t.Errorf("trash result = %+v", trashed)
	}
	if _, err := e.Remote.GetFile(ctx, e.PostRef("post.md")); !errors.Is(err, cms.ErrNotFound) {
		t.Errorf("published copy still present: %v", err)
	}

	again := transition(t, e, cms.Request{Action: cms.ActionTrash, Actor: e.Publisher, Target: cms.FileRef{Filename: "post.md"}})
	if !again.NoOp {
		t.Errorf("second trash = %+v, want no-op", again)
	}

	t.Run("source and destination must differ", func(t *testing.T) {
		for _, req := range []cms.Request{
			{Action: cms.ActionRestore, Actor: e.Publisher, Target: cms.FileRef{Path: "_trash", Filename: "post.md"}},
			{Action: cms.ActionRestore, Actor: e.Publisher, Target: cms.FileRef{Path: "/_trash/", Filename: "post.md"}},
			{Action: cms.ActionTrash, Actor: e.Publisher, Target: cms.FileRef{Path: "_trash", Filename: "post.md"}},
		} {
			_, err := e.Service.Transition(ctx, req)
			if !errors.Is(err, cms.ErrInvalidInput) || cms.FailedStep(err) != cms.StepValidate {
				t.Errorf("%s at %q error = %v, want invalid input at validate", req.Action, req.Target.Path, err)
			}
			f, err := e.Remote.GetFile(ctx, trashRef)
			if err != nil || string(f.Body) != "content" {
				t.Fatalf("trashed copy after rejected %s = %v, %v", req.Action, f, err)
			}
		}
	})

	// A reconcile pass over the trash leaves a quarantine row for restore to clear.
	if _, err := e.Service.Reconcile(ctx, e.Admin, cms.Target{Table: cms.TablePosts, Path: "_trash"}); err != nil {
		t.Fatalf("Reconcile(_trash) error = %v", err)
	}
	if rows, _ := e.DB.ListMirrorRows(ctx, cms.TablePosts, "acme/site", "_trash", "main"); len(rows) != 1 {
		t.Fatalf("trash mirror before restore = %+v, want one row", rows)
	}

	restored := transition(t, e, cms.Request{Action: cms.ActionRestore, Actor: e.Publisher, Target: cms.FileRef{Filename: "post.md"}})
	if restored.Stage != cms.StagePublished || restored.Ref != e.PostRef("post.md") {
		t.Errorf("restore result = %+v", restored)
	}
	if _, err := e.Remote.GetFile(ctx, trashRef); !errors.Is(err, cms.ErrNotFound) {
		t.Errorf("trashed copy still present: %v", err)
	}
	if f, err := e.Remote.GetFile(ctx, e.PostRef("post.md")); err != nil || string(f.Body) != "content" {
		t.Errorf("restored copy = %v, %v", f, err)
	}
	rows, _ := e.DB.ListMirrorRows(ctx, cms.TablePosts, "acme/site", "_posts", "main")
	if len(rows) != 1 || rows[0].Hash != rev {
		t.Errorf("posts mirror after restore = %+v", rows)
	}
	if rows, _ := e.DB.ListMirrorRows(ctx, cms.TablePosts, "acme/site", "_trash", "main"); len(rows) != 0 {
		t.Errorf("trash mirror after restore = %+v, want none", rows)
	}

	transition(t, e, cms.Request{Action: cms.ActionTrash, Actor: e.Publisher, Target: cms.FileRef{Filename: "post.md"}})
	purged := transition(t, e, cms.Request{Action: cms.ActionPurge, Actor: e.Publisher, Target: cms.FileRef{Filename: "post.md"}})
	if purged.Ref != trashRef {
		t.Errorf("purge ref = %+v, want %+v", purged.Ref, trashRef)
	}
	if _, err := e.Remote.GetFile(ctx, trashRef); !errors.Is(err, cms.ErrNotFound) {
		t.Errorf("purged file still present: %v", err)
	}
	// Purging what is already gone succeeds.
	transition(t, e, cms.Request{Action: cms.ActionPurge, Actor: e.Publisher, Target: cms.FileRef{Filename: "post.md"}})
}

func TestTransition_PartialFailureLeavesWorkingCopy(t *testing.T) {
	ctx := context.Background()
	e := testutil.NewEnv(t)
	draft := transition(t, e, cms.Request{Action: cms.ActionCreateDraft, Actor: e.Editor, Filename: "post.md", Body: []byte("x")}).Key
	pending := transition(t, e, cms.Request{Action: cms.ActionSubmit, Actor: e.Editor, Key: draft}).Key

	e.Remote.FailOn(remote.OpPut, fmt.Errorf("put: %w", cms.ErrTransport))
	_, err := e.Service.Transition(ctx, cms.Request{Action: cms.ActionApprove, Actor: e.Admin, Key: pending})
	if !errors.Is(err, cms.ErrTransport) {
		t.Fatalf("approve error = %v, want ErrTransport", err)
	}
	if got := cms.FailedStep(err); got != cms.StepWriteRemote {
		t.Errorf("FailedStep() = %q, want %q", got, cms.StepWriteRemote)
	}
	if _, ok := workingBody(t, e, pending); !ok {
		t.Fatal("working copy lost after failed publish")
	}

	e.Clock.Advance(time.Second)
	e.Remote.FailOn(remote.OpPut, nil)
	transition(t, e, cms.Request{Action: cms.ActionApprove, Actor: e.Admin, Key: pending})

	hist, err := e.Service.History(ctx, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(hist) != 4 {
		t.Fatalf("History() returned %d rows, want 4", len(hist))
	}
	if hist[0].Status != cms.TransitionSuccess || hist[0].Action != string(cms.ActionApprove) {
		t.Errorf("newest journal row = %+v", hist[0])
	}
	if hist[1].Status != cms.TransitionError || hist[1].FailedStep != string(cms.StepWriteRemote) {
		t.Errorf("failed journal row = %+v", hist[1])
	}
	if hist[1].Actor != "admin@example.com" || hist[1].Subject != pending.String() {
		t.Errorf("failed journal row subject = %+v", hist[1])
	}
}

func TestTransition_Mirroring(t *testing.T) {
	ctx := context.Background()
	e := testutil.NewEnv(t)
	site := testutil.TestSite
	site.MirrorDrafts = true
	site.MirrorReviews = true
	svc := cms.NewService(e.DB, e.Working, e.Remote, site, cms.NewNopLogger(), e.Clock, e.IDs)

	draftRef := cms.FileRef{Repo: "acme/site", Path: "_drafts", Filename: "post.md", Branch: "main"}
	reviewRef := cms.FileRef{Repo: "acme/site", Path: "_review", Filename: "post.md", Branch: "main"}

	res, err := svc.Transition(ctx, cms.Request{Action: cms.ActionCreateDraft, Actor: e.Editor, Filename: "post.md", Body: []byte("m")})
	if err != nil {
		t.Fatalf("create error = %v", err)
	}
	if _, err := e.Remote.GetFile(ctx, draftRef); err != nil {
		t.Errorf("draft not mirrored: %v", err)
	}
	wip, err := e.DB.FindWorkInProgress(ctx, res.Key.String())
	if err != nil || wip == nil || !wip.MirrorToRemote || wip.Path != "_drafts" {
		t.Errorf("work_in_progress row = %+v, %v", wip, err)
	}

	res, err = svc.Transition(ctx, cms.Request{Action: cms.ActionSubmit, Actor: e.Editor, Key: res.Key})
	if err != nil {
		t.Fatalf("submit error = %v", err)
	}
	if _, err := e.Remote.GetFile(ctx, draftRef); !errors.Is(err, cms.ErrNotFound) {
		t.Errorf("draft mirror survived submit: %v", err)
	}
	if _, err := e.Remote.GetFile(ctx, reviewRef); err != nil {
		t.Errorf("pending item not mirrored: %v", err)
	}

	if _, err := svc.Transition(ctx, cms.Request{Action: cms.ActionApprove, Actor: e.Admin, Key: res.Key}); err != nil {
		t.Fatalf("approve error = %v", err)
	}
	if _, err := e.Remote.GetFile(ctx, reviewRef); !errors.Is(err, cms.ErrNotFound) {
		t.Errorf("review mirror survived approval: %v", err)
	}
}
