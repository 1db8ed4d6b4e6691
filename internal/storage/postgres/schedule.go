package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/hnmirror/internal/store"
)

const latestScheduleSQL = `
SELECT id, category, total_items, created_at, finished_at, abandoned
FROM fetch_schedule
WHERE category = $1
ORDER BY created_at DESC, id DESC
LIMIT 1`

const abandonStaleSQL = `
UPDATE fetch_schedule SET finished_at = $2, abandoned = TRUE
WHERE category = $1 AND finished_at IS NULL AND created_at <= $3`

const insertScheduleSQL = `
INSERT INTO fetch_schedule (category, created_at)
VALUES ($1, $2)
ON CONFLICT (category) WHERE finished_at IS NULL DO NOTHING
RETURNING id`

const deleteSnapshotSQL = `DELETE FROM top_story WHERE category = $1`

const insertSnapshotSQL = `
INSERT INTO top_story (category, hn_id, rank)
SELECT $1, t.hn_id, t.ord - 1 FROM unnest($2::bigint[]) WITH ORDINALITY AS t(hn_id, ord)`

const finishScheduleSQL = `
UPDATE fetch_schedule SET finished_at = $2, total_items = $3
WHERE id = $1 AND finished_at IS NULL`

const snapshotSQL = `
SELECT category, hn_id, rank FROM top_story WHERE category = $1 ORDER BY rank`

// LatestSchedule returns the newest fetch_schedule row for category.
func (s *Store) LatestSchedule(ctx context.Context, category string) (store.Schedule, error) {
	var sched store.Schedule
	err := s.pool.QueryRow(ctx, latestScheduleSQL, category).Scan(
		&sched.ID,
		&sched.Category,
		&sched.TotalItems,
		&sched.CreatedAt,
		&sched.FinishedAt,
		&sched.Abandoned,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Schedule{}, store.ErrNotFound
		}
		return store.Schedule{}, fmt.Errorf("latest schedule: %w", err)
	}
	return sched, nil
}

// StartCrawl abandons a stale unfinished row, inserts a new one and replaces the snapshot atomically.
func (s *Store) StartCrawl(ctx context.Context, req store.StartCrawl) (store.Schedule, error) {
	sched := store.Schedule{Category: req.Category, CreatedAt: req.Now}
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, abandonStaleSQL, req.Category, req.Now, req.StaleBefore); err != nil {
			return fmt.Errorf("abandon stale schedule: %w", err)
		}
		if err := tx.QueryRow(ctx, insertScheduleSQL, req.Category, req.Now).Scan(&sched.ID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrCrawlInProgress
			}
			return fmt.Errorf("insert schedule: %w", err)
		}
		if _, err := tx.Exec(ctx, deleteSnapshotSQL, req.Category); err != nil {
			return fmt.Errorf("delete snapshot: %w", err)
		}
		if len(req.IDs) == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, insertSnapshotSQL, req.Category, req.IDs); err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return store.Schedule{}, fmt.Errorf("start crawl %s: %w", req.Category, err)
	}
	return sched, nil
}

// FinishCrawl marks the schedule row finished if it is still unfinished.
func (s *Store) FinishCrawl(ctx context.Context, scheduleID int64, totalItems int, finishedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, finishScheduleSQL, scheduleID, finishedAt, totalItems)
	if err != nil {
		return fmt.Errorf("finish crawl %d: %w", scheduleID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish crawl %d: %w", scheduleID, store.ErrNotFound)
	}
	return nil
}

// Snapshot lists the category's ranked ids.
func (s *Store) Snapshot(ctx context.Context, category string) ([]store.SnapshotEntry, error) {
	rows, err := s.pool.Query(ctx, snapshotSQL, category)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", category, err)
	}
	defer rows.Close()

	var out []store.SnapshotEntry
	for rows.Next() {
		var e store.SnapshotEntry
		if err := rows.Scan(&e.Category, &e.ExternalID, &e.Rank); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", category, err)
	}
	return out, nil
}
