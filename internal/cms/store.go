package cms

import (
	"context"
	"path"
	"strings"
	"time"
)

// WorkingStore is the Private Working Store: a flat key-value store of
// working-copy bodies with no transactions.
type WorkingStore interface {
	// Get returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte) error
	// Delete succeeds when the key is already absent.
	Delete(ctx context.Context, key string) error
	// List returns the keys beginning with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ConditionalWorkingStore is implemented by backends that can write a key only
// when it does not already exist.
type ConditionalWorkingStore interface {
	WorkingStore
	// PutIfAbsent returns false, without writing, when key already exists.
	PutIfAbsent(ctx context.Context, key string, body []byte) (bool, error)
}

// DirRef addresses a directory on a branch of a remote repository.
type DirRef struct {
	Repo   string
	Path   string
	Branch string
}

// File returns the ref for filename inside the directory.
func (d DirRef) File(filename string) FileRef {
	return FileRef{Repo: d.Repo, Path: d.Path, Filename: filename, Branch: d.Branch}
}

// FileRef addresses one file on a branch of a remote repository.
type FileRef struct {
	Repo     string
	Path     string
	Filename string
	Branch   string
}

// FullPath joins the directory and filename.
func (f FileRef) FullPath() string {
	dir := strings.Trim(f.Path, "/")
	if dir == "" {
		return f.Filename
	}
	return path.Join(dir, f.Filename)
}

// SameLocation reports whether f and o address the same remote file,
// ignoring leading and trailing slashes in Path.
func (f FileRef) SameLocation(o FileRef) bool {
	return f.Repo == o.Repo && f.Branch == o.Branch && f.FullPath() == o.FullPath()
}

// Dir returns the containing directory.
func (f FileRef) Dir() DirRef {
	return DirRef{Repo: f.Repo, Path: f.Path, Branch: f.Branch}
}

// DirEntry is one entry of a remote directory listing. Hash is the remote
// store's own content digest.
type DirEntry struct {
	Name        string
	Type        string
	Hash        string
	Size        int64
	DownloadURL string
}

// IsFile reports whether the entry is a regular file.
func (e DirEntry) IsFile() bool { return e.Type == "file" }

// RemoteFile is a file read through the remote store.
type RemoteFile struct {
	Ref      FileRef
	Body     []byte
	Revision string
}

// RunStatus is the most recent run of an automation job.
type RunStatus struct {
	ID         int64
	Status     string
	Conclusion string
	URL        string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RemoteStore is the Remote Content Store adapter. Implementations hold their
// own credential provider; no call takes a credential argument.
type RemoteStore interface {
	// ListDirectory returns ErrRemoteEmpty when the directory does not exist.
	ListDirectory(ctx context.Context, dir DirRef) ([]DirEntry, error)
	// GetFile returns ErrNotFound when the file does not exist.
	GetFile(ctx context.Context, ref FileRef) (*RemoteFile, error)
	// PutFile creates the file when revision is empty and updates it otherwise.
	// A missing or stale revision on an existing file returns ErrConflict.
	PutFile(ctx context.Context, ref FileRef, body []byte, revision, message string) (string, error)
	// DeleteFile returns ErrNotFound when the file does not exist and
	// ErrConflict when revision is stale.
	DeleteFile(ctx context.Context, ref FileRef, revision, message string) error
	Dispatch(ctx context.Context, repo, workflow, ref string, inputs map[string]string) error
	RunStatus(ctx context.Context, repo, workflow string) (*RunStatus, error)
}
