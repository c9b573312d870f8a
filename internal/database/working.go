package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"cms-go/internal/cms"
)

const workingColumns = "id, filename, author_email, repo, status, last_modified"

func scanWorkingRecord(row interface{ Scan(...any) error }) (*cms.WorkingRecord, error) {
	var r cms.WorkingRecord
	if err := row.Scan(&r.ID, &r.Filename, &r.AuthorEmail, &r.Repo, &r.Status, &r.LastModified); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLDatabase) UpsertWorkingRecord(ctx context.Context, r *cms.WorkingRecord) error {
	_, err := s.exec(ctx, `
		INSERT INTO content_metadata (`+workingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			filename = excluded.filename,
			author_email = excluded.author_email,
			repo = excluded.repo,
			status = excluded.status,
			last_modified = excluded.last_modified`,
		r.ID, r.Filename, r.AuthorEmail, r.Repo, r.Status, r.LastModified)
	if err != nil {
		return fmt.Errorf("upserting content metadata: %w", err)
	}
	return nil
}

func (s *SQLDatabase) FindWorkingRecord(ctx context.Context, id string) (*cms.WorkingRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+workingColumns+" FROM content_metadata WHERE id = ?"), id)
	r, err := scanWorkingRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding content metadata: %w", err)
	}
	return r, nil
}

func (s *SQLDatabase) ListWorkingRecords(ctx context.Context, f cms.WorkingFilter) ([]*cms.WorkingRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	var where []string
	var args []any
	if f.Stage != 0 {
		where = append(where, "status = ?")
		args = append(args, f.Stage.Status())
	}
	if f.Author != "" {
		where = append(where, "author_email = ?")
		args = append(args, cms.NormalizeAuthor(f.Author))
	}
	query := "SELECT " + workingColumns + " FROM content_metadata"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY last_modified DESC, id"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing content metadata: %w", err)
	}
	defer rows.Close()

	var recs []*cms.WorkingRecord
	for rows.Next() {
		r, err := scanWorkingRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning content metadata: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *SQLDatabase) DeleteWorkingRecord(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	return s.withTx(ctx, func(q queryer) error {
		if _, err := q.ExecContext(ctx, s.rebind("DELETE FROM content_metadata WHERE id = ?"), id); err != nil {
			return fmt.Errorf("deleting content metadata: %w", err)
		}
		if _, err := q.ExecContext(ctx, s.rebind("DELETE FROM work_in_progress WHERE id = ?"), id); err != nil {
			return fmt.Errorf("deleting work in progress: %w", err)
		}
		return nil
	})
}

const wipColumns = "id, type, author_id, repo, path, filename, last_modified, mirror_to_github"

func (s *SQLDatabase) UpsertWorkInProgress(ctx context.Context, w *cms.WorkInProgress) error {
	_, err := s.exec(ctx, `
		INSERT INTO work_in_progress (`+wipColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			type = excluded.type,
			author_id = excluded.author_id,
			repo = excluded.repo,
			path = excluded.path,
			filename = excluded.filename,
			last_modified = excluded.last_modified,
			mirror_to_github = excluded.mirror_to_github`,
		w.ID, w.Type, w.AuthorID, w.Repo, w.Path, w.Filename, w.LastModified, w.MirrorToRemote)
	if err != nil {
		return fmt.Errorf("upserting work in progress: %w", err)
	}
	return nil
}

func (s *SQLDatabase) FindWorkInProgress(ctx context.Context, id string) (*cms.WorkInProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	var w cms.WorkInProgress
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT "+wipColumns+" FROM work_in_progress WHERE id = ?"), id).
		Scan(&w.ID, &w.Type, &w.AuthorID, &w.Repo, &w.Path, &w.Filename, &w.LastModified, &w.MirrorToRemote)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding work in progress: %w", err)
	}
	return &w, nil
}
