package cms

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ListUsers returns the team. Any authenticated caller may list it.
func (s *Service) ListUsers(ctx context.Context, actor *User) ([]*User, error) {
	if err := s.requireDB(); err != nil {
		return nil, err
	}
	if actor.ID() == "" {
		return nil, stepErr(StepAuthorize, ErrUnauthorized)
	}
	users, err := s.db.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// UpsertUser creates or updates a team member. An empty password keeps the
// existing hash. Administrators cannot be demoted.
func (s *Service) UpsertUser(ctx context.Context, actor *User, u User, password string) (*User, error) {
	if err := s.requireDB(); err != nil {
		return nil, err
	}
	if err := s.authorize(actor, ActionManageTeam, Subject{}); err != nil {
		return nil, err
	}
	u.Email = NormalizeAuthor(u.Email)
	if u.Email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if u.Role == "" {
		u.Role = RoleEditor
	}

	existing, err := s.db.FindUser(ctx, u.Email)
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}
	if existing != nil {
		if existing.IsAdmin() && !u.IsAdmin() {
			return nil, fmt.Errorf("%w: administrators cannot be demoted", ErrInvalidInput)
		}
		u.PasswordHash = existing.PasswordHash
		u.JoinedAt = existing.JoinedAt
	} else {
		u.JoinedAt = s.clock.Now()
	}
	if u.IsAdmin() {
		u.CanDelete = true
		u.CanEditPublished = true
	}
	if password != "" {
		hash, err := HashPassword(password)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = hash
	}

	done := s.journal(ctx, ActionManageTeam, actor, "upsert:"+u.Email)
	err = s.db.UpsertUser(ctx, &u)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("saving user: %w", err)
	}
	return &u, nil
}

// RemoveUser deletes a team member. Administrators and authors with working
// copies cannot be removed.
func (s *Service) RemoveUser(ctx context.Context, actor *User, email string) error {
	if err := s.requireDB(); err != nil {
		return err
	}
	if err := s.authorize(actor, ActionManageTeam, Subject{}); err != nil {
		return err
	}
	email = NormalizeAuthor(email)
	existing, err := s.db.FindUser(ctx, email)
	if err != nil {
		return fmt.Errorf("finding user: %w", err)
	}
	if existing == nil {
		return fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	if existing.IsAdmin() {
		return fmt.Errorf("%w: administrators cannot be removed", ErrInvalidInput)
	}
	// Working records reference the author; they must be published or rejected first.
	recs, err := s.db.ListWorkingRecords(ctx, WorkingFilter{Author: email})
	if err != nil {
		return fmt.Errorf("listing working records: %w", err)
	}
	if len(recs) > 0 {
		return fmt.Errorf("%w: %s still has %d working copies", ErrConflict, email, len(recs))
	}

	done := s.journal(ctx, ActionManageTeam, actor, "remove:"+email)
	err = s.db.DeleteUser(ctx, email)
	done(err)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}

// SeedAdministrator inserts the bootstrap administrator if absent. It bypasses
// the gate because there is no caller yet.
func (s *Service) SeedAdministrator(ctx context.Context, email, password string) (bool, error) {
	if err := s.requireDB(); err != nil {
		return false, err
	}
	u := &User{
		Email:            NormalizeAuthor(email),
		Role:             RoleAdministrator,
		CanDelete:        true,
		CanEditPublished: true,
		JoinedAt:         s.clock.Now(),
	}
	if u.Email == "" {
		return false, fmt.Errorf("%w: administrator email is required", ErrInvalidInput)
	}
	if password != "" {
		hash, err := HashPassword(password)
		if err != nil {
			return false, err
		}
		u.PasswordHash = hash
	}
	created, err := s.db.InsertUserIfAbsent(ctx, u)
	if err != nil {
		return false, fmt.Errorf("seeding administrator: %w", err)
	}
	if created {
		s.logger.Info("administrator seeded", "email", u.Email)
	}
	return created, nil
}

// Authenticate checks a password and returns the stored user. Every failure
// is the same ErrUnauthorized.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	if err := s.requireDB(); err != nil {
		return nil, err
	}
	u, err := s.db.FindUser(ctx, NormalizeAuthor(email))
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}
	if u == nil || u.PasswordHash == "" {
		return nil, ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			s.logger.Warn("password check failed", "email", u.Email, "error", err)
		}
		return nil, ErrUnauthorized
	}
	return u, nil
}

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// ResolveUser returns the stored user for a verified session identity. A
// session for a removed user resolves to ErrUnauthorized.
func (s *Service) ResolveUser(ctx context.Context, email string) (*User, error) {
	if err := s.requireDB(); err != nil {
		return nil, err
	}
	u, err := s.db.FindUser(ctx, NormalizeAuthor(email))
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}
	if u == nil {
		return nil, ErrUnauthorized
	}
	return u, nil
}
