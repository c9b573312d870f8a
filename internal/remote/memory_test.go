package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"cms-go/internal/cms"
)

func TestBlobSHA(t *testing.T) {
	// git hash-object of an empty file and of "hello\n".
	if got := BlobSHA(nil); got != "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391" {
		t.Errorf("BlobSHA(empty) = %s", got)
	}
	if got := BlobSHA([]byte("hello\n")); got != "ce013625030ba8dba906f756967f9e9ca394464a" {
		t.Errorf("BlobSHA(hello) = %s", got)
	}
}

func TestMemoryStore_RevisionRules(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	ref := cms.FileRef{Repo: "acme/site", Path: "_posts", Filename: "a.md", Branch: "main"}

	rev1, err := m.PutFile(ctx, ref, []byte("v1"), "", "create")
	if err != nil {
		t.Fatalf("create PutFile() error = %v", err)
	}
	if _, err := m.PutFile(ctx, ref, []byte("v2"), "", "blind"); !errors.Is(err, cms.ErrConflict) {
		t.Errorf("PutFile() without revision on existing file error = %v, want ErrConflict", err)
	}
	if _, err := m.PutFile(ctx, ref, []byte("v2"), "stale", "stale"); !errors.Is(err, cms.ErrConflict) {
		t.Errorf("PutFile() with stale revision error = %v, want ErrConflict", err)
	}
	rev2, err := m.PutFile(ctx, ref, []byte("v2"), rev1, "update")
	if err != nil {
		t.Fatalf("update PutFile() error = %v", err)
	}
	if rev2 == rev1 {
		t.Error("revision did not change on update")
	}

	if err := m.DeleteFile(ctx, ref, rev1, "delete"); !errors.Is(err, cms.ErrConflict) {
		t.Errorf("DeleteFile() with stale revision error = %v, want ErrConflict", err)
	}
	if err := m.DeleteFile(ctx, ref, rev2, "delete"); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
	if err := m.DeleteFile(ctx, ref, rev2, "delete"); !errors.Is(err, cms.ErrNotFound) {
		t.Errorf("DeleteFile() on missing file error = %v, want ErrNotFound", err)
	}
	if m.Writes() != 3 {
		t.Errorf("Writes() = %d, want 3", m.Writes())
	}
}

func TestMemoryStore_ListDirectory(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.Seed(cms.FileRef{Repo: "acme/site", Path: "_posts", Filename: "b.md", Branch: "main"}, []byte("b"))
	m.Seed(cms.FileRef{Repo: "acme/site", Path: "_posts", Filename: "a.md", Branch: "main"}, []byte("a"))
	m.Seed(cms.FileRef{Repo: "acme/site", Path: "_posts/2024", Filename: "c.md", Branch: "main"}, []byte("c"))
	m.Seed(cms.FileRef{Repo: "acme/site", Path: "_posts", Filename: "other.md", Branch: "dev"}, []byte("x"))

	got, err := m.ListDirectory(ctx, cms.DirRef{Repo: "acme/site", Path: "_posts", Branch: "main"})
	if err != nil {
		t.Fatalf("ListDirectory() error = %v", err)
	}
	want := []cms.DirEntry{
		{Name: "2024", Type: "dir"},
		{Name: "a.md", Type: "file", Hash: BlobSHA([]byte("a")), Size: 1},
		{Name: "b.md", Type: "file", Hash: BlobSHA([]byte("b")), Size: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListDirectory() mismatch (-want +got):\n%s", diff)
	}

	_, err = m.ListDirectory(ctx, cms.DirRef{Repo: "acme/site", Path: "_drafts", Branch: "main"})
	if !errors.Is(err, cms.ErrRemoteEmpty) {
		t.Errorf("ListDirectory(missing) error = %v, want ErrRemoteEmpty", err)
	}
}

func TestMemoryStore_FailOn(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	ref := cms.FileRef{Repo: "acme/site", Path: "_posts", Filename: "a.md", Branch: "main"}
	m.Seed(ref, []byte("a"))

	m.FailOn(OpGet, cms.ErrTransport)
	if _, err := m.GetFile(ctx, ref); !errors.Is(err, cms.ErrTransport) {
		t.Errorf("GetFile() error = %v, want injected failure", err)
	}
	m.FailOn(OpGet, nil)
	if _, err := m.GetFile(ctx, ref); err != nil {
		t.Errorf("GetFile() after clearing failure error = %v", err)
	}
	if m.Reads() != 1 {
		t.Errorf("Reads() = %d, want 1", m.Reads())
	}
}

func TestMemoryStore_Automation(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	if _, err := m.RunStatus(ctx, "acme/site", "deploy.yml"); !errors.Is(err, cms.ErrNotFound) {
		t.Errorf("RunStatus() before dispatch error = %v, want ErrNotFound", err)
	}
	if err := m.Dispatch(ctx, "acme/site", "deploy.yml", "main", nil); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	run, err := m.RunStatus(ctx, "acme/site", "deploy.yml")
	if err != nil || run.Status != "queued" {
		t.Errorf("RunStatus() = %+v, %v", run, err)
	}
	if len(m.Dispatches()) != 1 {
		t.Errorf("Dispatches() = %d, want 1", len(m.Dispatches()))
	}
}
