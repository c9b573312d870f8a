package database

import (
	"context"
	"fmt"

	"cms-go/internal/cms"
)

// mirrorTable validates t before it is interpolated into SQL.
func mirrorTable(t cms.MirrorTable) (string, error) {
	if !t.Valid() {
		return "", fmt.Errorf("unknown mirror table %q", t)
	}
	return string(t), nil
}

func (s *SQLDatabase) ListMirrorRows(ctx context.Context, t cms.MirrorTable, repo, dir, branch string) ([]*cms.MirrorRow, error) {
	table, err := mirrorTable(t)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	var query string
	if t == cms.TableMedia {
		query = "SELECT id, repo, path, filename, branch, hash, last_sync, type, size FROM media"
	} else {
		query = "SELECT id, repo, path, filename, branch, hash, last_sync, '', 0 FROM " + table
	}
	query += " WHERE repo = ? AND path = ? AND branch = ? ORDER BY filename"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), repo, dir, branch)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", table, err)
	}
	defer rows.Close()

	var out []*cms.MirrorRow
	for rows.Next() {
		var r cms.MirrorRow
		if err := rows.Scan(&r.ID, &r.Repo, &r.Path, &r.Filename, &r.Branch, &r.Hash, &r.LastSync, &r.Type, &r.Size); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLDatabase) UpsertMirrorRow(ctx context.Context, t cms.MirrorTable, r *cms.MirrorRow) error {
	table, err := mirrorTable(t)
	if err != nil {
		return err
	}
	if t == cms.TableMedia {
		_, err = s.exec(ctx, `
			INSERT INTO media (id, repo, path, filename, branch, type, size, hash, last_sync)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (repo, path, filename) DO UPDATE SET
				branch = excluded.branch,
				type = excluded.type,
				size = excluded.size,
				hash = excluded.hash,
				last_sync = excluded.last_sync`,
			r.ID, r.Repo, r.Path, r.Filename, r.Branch, r.Type, r.Size, r.Hash, r.LastSync)
	} else {
		_, err = s.exec(ctx, `
			INSERT INTO posts (id, repo, path, filename, branch, hash, last_sync)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (repo, path, filename) DO UPDATE SET
				branch = excluded.branch,
				hash = excluded.hash,
				last_sync = excluded.last_sync`,
			r.ID, r.Repo, r.Path, r.Filename, r.Branch, r.Hash, r.LastSync)
	}
	if err != nil {
		return fmt.Errorf("upserting %s row: %w", table, err)
	}
	return nil
}

func (s *SQLDatabase) DeleteMirrorRow(ctx context.Context, t cms.MirrorTable, repo, dir, filename string) error {
	table, err := mirrorTable(t)
	if err != nil {
		return err
	}
	if _, err := s.exec(ctx, "DELETE FROM "+table+" WHERE repo = ? AND path = ? AND filename = ?", repo, dir, filename); err != nil {
		return fmt.Errorf("deleting %s row: %w", table, err)
	}
	return nil
}

func (s *SQLDatabase) CountMirrorRows(ctx context.Context, t cms.MirrorTable) (int, error) {
	table, err := mirrorTable(t)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", table, err)
	}
	return n, nil
}
