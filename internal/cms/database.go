package cms

import (
	"context"
	"time"
)

// WorkingRecord is the content_metadata row for a working copy.
// ID is the serialized WorkingKey.
type WorkingRecord struct {
	ID           string
	Filename     string
	AuthorEmail  string
	Repo         string
	Status       string
	LastModified time.Time
}

// Key parses the record's ID back into a structured key.
func (r *WorkingRecord) Key() (WorkingKey, error) {
	return ParseWorkingKey(r.ID)
}

// WorkingFilter narrows ListWorkingRecords. Zero values match everything.
type WorkingFilter struct {
	Stage  Stage
	Author string
}

// WorkInProgress is the work_in_progress row written by bulk migration and
// by remote mirroring of working copies.
type WorkInProgress struct {
	ID             string
	Type           string
	AuthorID       string
	Repo           string
	Path           string
	Filename       string
	LastModified   time.Time
	MirrorToRemote bool
}

// MirrorTable names a table that mirrors a remote directory listing.
type MirrorTable string

const (
	TablePosts MirrorTable = "posts"
	TableMedia MirrorTable = "media"
)

// Valid reports whether t is a known mirror table.
func (t MirrorTable) Valid() bool {
	return t == TablePosts || t == TableMedia
}

// MirrorRow is one row of a mirror table. Type and Size are only stored for media.
type MirrorRow struct {
	ID       string
	Repo     string
	Path     string
	Filename string
	Branch   string
	Hash     string
	Type     string
	Size     int64
	LastSync time.Time
}

// MirrorRowID is the stable row id for a remote file.
func MirrorRowID(repo, dir, filename string) string {
	return repo + "/" + dir + "/" + filename
}

// TransitionRecord is one journal row describing an engine operation.
type TransitionRecord struct {
	ID         string
	Action     string
	Actor      string
	Subject    string
	Status     string
	FailedStep string
	StartedAt  time.Time
	FinishedAt time.Time
}

const (
	TransitionRunning = "running"
	TransitionSuccess = "success"
	TransitionError   = "error"
)

// Database is the Metadata Index. Lookups return (nil, nil) when a row is absent.
type Database interface {
	// User operations

	FindUser(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	UpsertUser(ctx context.Context, u *User) error
	// InsertUserIfAbsent returns false when the email already exists.
	InsertUserIfAbsent(ctx context.Context, u *User) (bool, error)
	DeleteUser(ctx context.Context, email string) error

	// Working-copy metadata

	UpsertWorkingRecord(ctx context.Context, r *WorkingRecord) error
	FindWorkingRecord(ctx context.Context, id string) (*WorkingRecord, error)
	// ListWorkingRecords returns rows newest first.
	ListWorkingRecords(ctx context.Context, f WorkingFilter) ([]*WorkingRecord, error)
	// DeleteWorkingRecord removes the content_metadata and work_in_progress rows
	// for id in one transaction. Missing rows are not an error.
	DeleteWorkingRecord(ctx context.Context, id string) error
	UpsertWorkInProgress(ctx context.Context, w *WorkInProgress) error
	FindWorkInProgress(ctx context.Context, id string) (*WorkInProgress, error)

	// Mirror tables

	ListMirrorRows(ctx context.Context, table MirrorTable, repo, dir, branch string) ([]*MirrorRow, error)
	UpsertMirrorRow(ctx context.Context, table MirrorTable, row *MirrorRow) error
	// DeleteMirrorRow is a no-op when the row is absent.
	DeleteMirrorRow(ctx context.Context, table MirrorTable, repo, dir, filename string) error
	CountMirrorRows(ctx context.Context, table MirrorTable) (int, error)

	// Journal

	CreateTransition(ctx context.Context, r *TransitionRecord) error
	FinishTransition(ctx context.Context, id, status, failedStep string, finishedAt time.Time) error
	ListTransitions(ctx context.Context, limit int) ([]*TransitionRecord, error)

	Close() error
}
