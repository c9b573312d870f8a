package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cms-go/internal/cms"
)

func (s *SQLDatabase) CreateTransition(ctx context.Context, r *cms.TransitionRecord) error {
	_, err := s.exec(ctx, `
		INSERT INTO transitions (id, action, actor, subject, status, failed_step, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Action, r.Actor, r.Subject, r.Status, r.FailedStep, r.StartedAt)
	if err != nil {
		return fmt.Errorf("creating transition: %w", err)
	}
	return nil
}

func (s *SQLDatabase) FinishTransition(ctx context.Context, id, status, failedStep string, finishedAt time.Time) error {
	_, err := s.exec(ctx, `
		UPDATE transitions SET status = ?, failed_step = ?, finished_at = ?
		WHERE id = ?`,
		status, failedStep, finishedAt, id)
	if err != nil {
		return fmt.Errorf("finishing transition: %w", err)
	}
	return nil
}

// ListTransitions returns the most recent journal rows, newest first.
func (s *SQLDatabase) ListTransitions(ctx context.Context, limit int) ([]*cms.TransitionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, action, actor, subject, status, failed_step, started_at, finished_at
		FROM transitions
		ORDER BY started_at DESC, id DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("listing transitions: %w", err)
	}
	defer rows.Close()

	var out []*cms.TransitionRecord
	for rows.Next() {
		var r cms.TransitionRecord
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Action, &r.Actor, &r.Subject, &r.Status, &r.FailedStep, &r.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scanning transition: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
