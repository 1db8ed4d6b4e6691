package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/JakeFAU/hnmirror/internal/store"
)

// LatestSchedule returns the newest fetch_schedule row for category.
func (s *Store) LatestSchedule(ctx context.Context, category string) (store.Schedule, error) {
	var sched store.Schedule
	err := s.db.GetContext(ctx, &sched, `
		SELECT id, category, total_items, created_at, finished_at, abandoned
		FROM fetch_schedule
		WHERE category = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, category)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Schedule{}, store.ErrNotFound
		}
		return store.Schedule{}, fmt.Errorf("latest schedule %s: %w", category, err)
	}
	return sched, nil
}

// StartCrawl abandons a stale unfinished row, inserts a new one and replaces the snapshot atomically.
func (s *Store) StartCrawl(ctx context.Context, req store.StartCrawl) (store.Schedule, error) {
	sched := store.Schedule{Category: req.Category, CreatedAt: req.Now}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE fetch_schedule SET finished_at = ?, abandoned = 1
			WHERE category = ? AND finished_at IS NULL AND created_at <= ?`,
			req.Now, req.Category, req.StaleBefore); err != nil {
			return fmt.Errorf("abandon stale schedule: %w", err)
		}
		err := tx.QueryRowxContext(ctx, `
			INSERT INTO fetch_schedule (category, created_at) VALUES (?, ?)
			ON CONFLICT (category) WHERE finished_at IS NULL DO NOTHING
			RETURNING id`, req.Category, req.Now).Scan(&sched.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrCrawlInProgress
			}
			return fmt.Errorf("insert schedule: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM top_story WHERE category = ?`, req.Category); err != nil {
			return fmt.Errorf("delete snapshot: %w", err)
		}
		return eachChunk(len(req.IDs), 3, func(lo, hi int) error {
			args := make([]any, 0, (hi-lo)*3)
			for i := lo; i < hi; i++ {
				args = append(args, req.Category, req.IDs[i], i)
			}
			query := `INSERT INTO top_story (category, hn_id, rank) VALUES ` + valuesList(hi-lo, 3)
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("insert snapshot: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return store.Schedule{}, fmt.Errorf("start crawl %s: %w", req.Category, err)
	}
	return sched, nil
}

// FinishCrawl marks the schedule row finished if it is still unfinished.
func (s *Store) FinishCrawl(ctx context.Context, scheduleID int64, totalItems int, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE fetch_schedule SET finished_at = ?, total_items = ?
		WHERE id = ? AND finished_at IS NULL`, finishedAt, totalItems, scheduleID)
	if err != nil {
		return fmt.Errorf("finish crawl %d: %w", scheduleID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish crawl %d: %w", scheduleID, err)
	}
	if n == 0 {
		return fmt.Errorf("finish crawl %d: %w", scheduleID, store.ErrNotFound)
	}
	return nil
}

// Snapshot lists the category's ranked ids.
func (s *Store) Snapshot(ctx context.Context, category string) ([]store.SnapshotEntry, error) {
	var out []store.SnapshotEntry
	err := s.db.SelectContext(ctx, &out,
		`SELECT category, hn_id, rank FROM top_story WHERE category = ? ORDER BY rank`, category)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", category, err)
	}
	return out, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
