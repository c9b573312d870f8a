package testutil

import (
	"testing"

	"cms-go/internal/cms"
	"cms-go/internal/database"
	"cms-go/internal/remote"
	"cms-go/internal/workingstore"
)

// TestSite is the site every Env is configured with.
var TestSite = cms.Site{Repo: "acme/site", Branch: "main"}.WithDefaults()

// Env is a Service wired to in-memory stores, with the stores exposed so
// tests can seed and inspect them.
type Env struct {
	DB      *database.SQLDatabase
	Working *workingstore.MemoryStore
	Remote  *remote.MemoryStore
	Clock   *StubClock
	IDs     *StubIDGenerator
	Service *cms.Service

	Admin  *cms.User
	Editor *cms.User
	// Publisher is an Editor who may publish without review and delete.
	Publisher *cms.User
}

// NewEnv builds an Env with three seeded users.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	e := &Env{
		DB:      NewTestDatabase(t),
		Working: workingstore.NewMemoryStore(),
		Remote:  remote.NewMemoryStore(),
		Clock:   FixedClock(),
		IDs:     NewStubIDGenerator(),
	}
	e.Service = cms.NewService(e.DB, e.Working, e.Remote, TestSite, cms.NewNopLogger(), e.Clock, e.IDs)
	e.Admin = SeedUser(t, e.DB, cms.User{Email: "admin@example.com", Role: cms.RoleAdministrator, CanDelete: true, CanEditPublished: true})
	e.Editor = SeedUser(t, e.DB, cms.User{Email: "editor@example.com", Role: cms.RoleEditor})
	e.Publisher = SeedUser(t, e.DB, cms.User{Email: "publisher@example.com", Role: cms.RoleEditor, CanDelete: true, CanEditPublished: true})
	return e
}

// PostRef returns the published ref for filename.
func (e *Env) PostRef(filename string) cms.FileRef {
	return TestSite.PublishedRef(filename)
}
