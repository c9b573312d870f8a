package remote

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"cms-go/internal/cms"
)

// Dispatched records one automation trigger seen by MemoryStore.
type Dispatched struct {
	Repo     string
	Workflow string
	Ref      string
	Inputs   map[string]string
}

// MemoryStore is an in-memory RemoteStore with the same revision rules as
// GitHub. Revisions are git blob hashes. It is safe for concurrent use.
type MemoryStore struct {
	mu         sync.Mutex
	files      map[string]memFile // location -> file
	reads      int
	writes     int
	failures   map[string]error
	dispatched []Dispatched
	now        func() time.Time
}

type memFile struct {
	ref  cms.FileRef
	body []byte
	sha  string
}

var _ cms.RemoteStore = (*MemoryStore)(nil)

// Operation names accepted by FailOn.
const (
	OpList     = "list"
	OpGet      = "get"
	OpPut      = "put"
	OpDelete   = "delete"
	OpDispatch = "dispatch"
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files:    make(map[string]memFile),
		failures: make(map[string]error),
		now:      time.Now,
	}
}

// BlobSHA returns the git blob hash of body.
func BlobSHA(body []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(body))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func location(repo, branch, fullPath string) string {
	return repo + "@" + branch + ":" + strings.Trim(fullPath, "/")
}

// Seed writes a file directly, bypassing revision checks.
func (m *MemoryStore) Seed(ref cms.FileRef, body []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	sha := BlobSHA(body)
	m.files[location(ref.Repo, ref.Branch, ref.FullPath())] = memFile{ref: ref, body: append([]byte(nil), body...), sha: sha}
	return sha
}

// Remove deletes a file directly.
func (m *MemoryStore) Remove(ref cms.FileRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, location(ref.Repo, ref.Branch, ref.FullPath()))
}

// FailOn makes every later call of op fail with err. A nil err clears it.
func (m *MemoryStore) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Reads returns how many GetFile calls succeeded.
func (m *MemoryStore) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Writes returns how many PutFile and DeleteFile calls succeeded.
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Dispatches returns the recorded automation triggers.
func (m *MemoryStore) Dispatches() []Dispatched {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Dispatched(nil), m.dispatched...)
}

func (m *MemoryStore) ListDirectory(ctx context.Context, dir cms.DirRef) ([]cms.DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[OpList]; err != nil {
		return nil, err
	}

	want := strings.Trim(dir.Path, "/")
	seenDirs := map[string]bool{}
	var entries []cms.DirEntry
	for _, f := range m.files {
		if f.ref.Repo != dir.Repo || f.ref.Branch != dir.Branch {
			continue
		}
		full := f.ref.FullPath()
		parent := path.Dir(full)
		if parent == "." {
			parent = ""
		}
		switch {
		case parent == want:
			entries = append(entries, cms.DirEntry{Name: f.ref.Filename, Type: "file", Hash: f.sha, Size: int64(len(f.body))})
		case want == "" || strings.HasPrefix(parent, want+"/"):
			rest := strings.TrimPrefix(parent, want+"/")
			if want == "" {
				rest = parent
			}
			sub := strings.SplitN(rest, "/", 2)[0]
			if !seenDirs[sub] {
				seenDirs[sub] = true
				entries = append(entries, cms.DirEntry{Name: sub, Type: "dir"})
			}
		}
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("list %s/%s: %w", dir.Repo, dir.Path, cms.ErrRemoteEmpty)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (m *MemoryStore) GetFile(ctx context.Context, ref cms.FileRef) (*cms.RemoteFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[OpGet]; err != nil {
		return nil, err
	}

	f, ok := m.files[location(ref.Repo, ref.Branch, ref.FullPath())]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", ref.FullPath(), cms.ErrNotFound)
	}
	m.reads++
	return &cms.RemoteFile{Ref: ref, Body: append([]byte(nil), f.body...), Revision: f.sha}, nil
}

func (m *MemoryStore) PutFile(ctx context.Context, ref cms.FileRef, body []byte, revision, message string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[OpPut]; err != nil {
		return "", err
	}

	loc := location(ref.Repo, ref.Branch, ref.FullPath())
	cur, exists := m.files[loc]
	switch {
	case exists && revision != cur.sha:
		return "", fmt.Errorf("put %s: revision %q does not match: %w", ref.FullPath(), revision, cms.ErrConflict)
	case !exists && revision != "":
		return "", fmt.Errorf("put %s: file no longer exists: %w", ref.FullPath(), cms.ErrConflict)
	}
	sha := BlobSHA(body)
	m.files[loc] = memFile{ref: ref, body: append([]byte(nil), body...), sha: sha}
	m.writes++
	return sha, nil
}

func (m *MemoryStore) DeleteFile(ctx context.Context, ref cms.FileRef, revision, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[OpDelete]; err != nil {
		return err
	}

	loc := location(ref.Repo, ref.Branch, ref.FullPath())
	cur, exists := m.files[loc]
	if !exists {
		return fmt.Errorf("delete %s: %w", ref.FullPath(), cms.ErrNotFound)
	}
	if revision != cur.sha {
		return fmt.Errorf("delete %s: revision %q does not match: %w", ref.FullPath(), revision, cms.ErrConflict)
	}
	delete(m.files, loc)
	m.writes++
	return nil
}

func (m *MemoryStore) Dispatch(ctx context.Context, repo, workflow, ref string, inputs map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[OpDispatch]; err != nil {
		return err
	}
	m.dispatched = append(m.dispatched, Dispatched{Repo: repo, Workflow: workflow, Ref: ref, Inputs: inputs})
	return nil
}

// RunStatus reports the latest dispatch of workflow as a queued run.
func (m *MemoryStore) RunStatus(ctx context.Context, repo, workflow string) (*cms.RunStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.dispatched) - 1; i >= 0; i-- {
		d := m.dispatched[i]
		if d.Repo == repo && d.Workflow == workflow {
			now := m.now().UTC()
			return &cms.RunStatus{ID: int64(i + 1), Status: "queued", CreatedAt: now, UpdatedAt: now}, nil
		}
	}
	return nil, fmt.Errorf("no runs for %s: %w", workflow, cms.ErrNotFound)
}
