// Package migrations embeds the metadata index schema for each SQL dialect
// and applies it with golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/sqlite/*.sql files/postgres/*.sql
var files embed.FS

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Status describes where a database stands against the embedded schema.
// Current is zero for a database that has never been migrated.
type Status struct {
	Current uint
	Latest  uint
	Dirty   bool
}

// Err is nil only when the schema is exactly at Latest and clean.
func (s Status) Err() error {
	switch {
	case s.Dirty:
		return fmt.Errorf("database is in dirty state at version %d (migration failed previously)", s.Current)
	case s.Current == 0:
		return errors.New("database has no schema version (needs migration)")
	case s.Current < s.Latest:
		return fmt.Errorf("database is at version %d but latest is %d (%d migrations behind)", s.Current, s.Latest, s.Latest-s.Current)
	case s.Current > s.Latest:
		return fmt.Errorf("database version %d is ahead of binary version %d (binary needs update)", s.Current, s.Latest)
	}
	return nil
}

// ReadStatus reports the schema version of db. The migrate instance is not
// closed since that would close the caller's connection.
func ReadStatus(db *sql.DB, dialect string) (Status, error) {
	latest, err := LatestVersion(dialect)
	if err != nil {
		return Status{}, err
	}
	m, err := open(db, dialect)
	if err != nil {
		return Status{}, err
	}
	cur, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{Latest: latest}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("reading schema version: %w", err)
	}
	return Status{Current: cur, Latest: latest, Dirty: dirty}, nil
}

// Check returns Status.Err for db.
func Check(db *sql.DB, dialect string) error {
	st, err := ReadStatus(db, dialect)
	if err != nil {
		return err
	}
	return st.Err()
}

// MigrateUp applies every pending migration. An up-to-date database is not
// an error.
func MigrateUp(db *sql.DB, dialect string) error {
	m, err := open(db, dialect)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// LatestVersion is the highest migration embedded for dialect.
func LatestVersion(dialect string) (uint, error) {
	dir, err := dialectDir(dialect)
	if err != nil {
		return 0, err
	}
	src, err := iofs.New(files, dir)
	if err != nil {
		return 0, fmt.Errorf("reading migration files: %w", err)
	}
	defer src.Close()

	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("no migrations for %s: %w", dialect, err)
	}
	for {
		next, err := src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		if err != nil {
			return 0, err
		}
		v = next
	}
}

func dialectDir(dialect string) (string, error) {
	switch dialect {
	case DialectSQLite, DialectPostgres:
		return "files/" + dialect, nil
	}
	return "", fmt.Errorf("unknown migration dialect: %q", dialect)
}

func open(db *sql.DB, dialect string) (*migrate.Migrate, error) {
	dir, err := dialectDir(dialect)
	if err != nil {
		return nil, err
	}
	src, err := iofs.New(files, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migration files: %w", err)
	}

	var drv database.Driver
	if dialect == DialectPostgres {
		drv, err = postgres.WithInstance(db, &postgres.Config{})
	} else {
		drv, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	}
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("preparing %s migration driver: %w", dialect, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, dialect, drv)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("preparing migrations: %w", err)
	}
	return m, nil
}
