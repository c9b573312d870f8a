package testutil

import (
	"context"
	"testing"

	"cms-go/internal/cms"
	"cms-go/internal/database"
)

// NewTestDatabase creates a new in-memory SQLite database with migrations applied.
// The database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	if err := db.MigrateUp(); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}
	return db
}

// SeedUser stores a team member with no password and returns it.
func SeedUser(t *testing.T, db cms.Database, u cms.User) *cms.User {
	t.Helper()
	if u.Role == "" {
		u.Role = cms.RoleEditor
	}
	if u.JoinedAt.IsZero() {
		u.JoinedAt = FixedClock().Now()
	}
	if err := db.UpsertUser(context.Background(), &u); err != nil {
		t.Fatalf("failed to seed user %s: %v", u.Email, err)
	}
	return &u
}
