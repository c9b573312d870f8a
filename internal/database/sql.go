package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"           // Postgres driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"cms-go/internal/cms"
	"cms-go/internal/database/migrations"
)

// SQLDatabase implements cms.Database on SQLite or Postgres. Queries are
// written with '?' placeholders and rebound for Postgres.
type SQLDatabase struct {
	db      *sql.DB
	dialect string
	path    string
}

var _ cms.Database = (*SQLDatabase)(nil)

// operationTimeout bounds every single statement.
const operationTimeout = 10 * time.Second

// NewSQLiteDatabase opens a SQLite database.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDatabase(path string) (*SQLDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLDatabase{db: db, dialect: migrations.DialectSQLite, path: path}, nil
}

// NewPostgresDatabase opens a Postgres database from a lib/pq DSN.
func NewPostgresDatabase(ctx context.Context, dsn string) (*SQLDatabase, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return &SQLDatabase{db: db, dialect: migrations.DialectPostgres}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing SQLite connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLDatabase {
	return &SQLDatabase{db: db, dialect: migrations.DialectSQLite}
}

// OpenConnection opens a SQLite database. path can be a file path or ":memory:".
// Connection settings travel in the DSN so every pooled connection gets them.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// Every pooled connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// sqliteDSN appends the driver options that must hold on every connection.
func sqliteDSN(path string) string {
	opts := "_foreign_keys=on"
	if path != ":memory:" {
		opts += "&_busy_timeout=5000"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + opts
}

// Dialect returns "sqlite" or "postgres".
func (s *SQLDatabase) Dialect() string { return s.dialect }

// Path returns the SQLite file path, or "" for Postgres.
func (s *SQLDatabase) Path() string { return s.path }

// MigrateUp applies all pending migrations.
func (s *SQLDatabase) MigrateUp() error {
	return migrations.MigrateUp(s.db, s.dialect)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLDatabase) CheckMigrations() error {
	return migrations.Check(s.db, s.dialect)
}

// SchemaStatus reports the schema version against the embedded migrations.
func (s *SQLDatabase) SchemaStatus() (migrations.Status, error) {
	return migrations.ReadStatus(s.db, s.dialect)
}

// BackupTo copies a SQLite database to destPath using VACUUM INTO.
func (s *SQLDatabase) BackupTo(destPath string) error {
	if s.dialect != migrations.DialectSQLite {
		return fmt.Errorf("backup is only supported for sqlite")
	}
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("vacuum into %s: %w", destPath, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLDatabase) Close() error {
	return s.db.Close()
}

// rebind rewrites '?' placeholders as $1, $2, ... for Postgres.
func (s *SQLDatabase) rebind(query string) string {
	if s.dialect != migrations.DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLDatabase) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction, rolling back on error.
func (s *SQLDatabase) withTx(ctx context.Context, fn func(q queryer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
