package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cms-go/internal/cms"
)

const userColumns = "email, password_hash, role, can_publish, can_delete, joined_at"

func scanUser(row interface{ Scan(...any) error }) (*cms.User, error) {
	var u cms.User
	var role string
	if err := row.Scan(&u.Email, &u.PasswordHash, &role, &u.CanEditPublished, &u.CanDelete, &u.JoinedAt); err != nil {
		return nil, err
	}
	u.Role = cms.Role(role)
	return &u, nil
}

func (s *SQLDatabase) FindUser(ctx context.Context, email string) (*cms.User, error) {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+userColumns+" FROM users WHERE email = ?"), email)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding user: %w", err)
	}
	return u, nil
}

func (s *SQLDatabase) ListUsers(ctx context.Context) ([]*cms.User, error) {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY joined_at, email")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []*cms.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLDatabase) UpsertUser(ctx context.Context, u *cms.User) error {
	_, err := s.exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET
			password_hash = excluded.password_hash,
			role = excluded.role,
			can_publish = excluded.can_publish,
			can_delete = excluded.can_delete`,
		u.Email, u.PasswordHash, string(u.Role), u.CanEditPublished, u.CanDelete, u.JoinedAt)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

func (s *SQLDatabase) InsertUserIfAbsent(ctx context.Context, u *cms.User) (bool, error) {
	res, err := s.exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO NOTHING`,
		u.Email, u.PasswordHash, string(u.Role), u.CanEditPublished, u.CanDelete, u.JoinedAt)
	if err != nil {
		return false, fmt.Errorf("inserting user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *SQLDatabase) DeleteUser(ctx context.Context, email string) error {
	if _, err := s.exec(ctx, "DELETE FROM users WHERE email = ?", email); err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}
