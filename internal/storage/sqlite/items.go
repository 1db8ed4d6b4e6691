package sqlite

import (
	"context"
	"fmt"

	"github.com/JakeFAU/hnmirror/internal/store"
)

const upsertUsersSQL = `
INSERT INTO "user" (username, about, karma, created_at, updated_at)
VALUES %s
ON CONFLICT (username) DO UPDATE SET
    about = excluded.about,
    karma = excluded.karma,
    created_at = excluded.created_at,
    updated_at = excluded.updated_at
RETURNING id, username`

const upsertStoriesSQL = `
INSERT INTO story (hn_id, title, url, text, dead, score, descendants, user_id, kind, created_at, updated_at, deleted_at)
VALUES %s
ON CONFLICT (hn_id) DO UPDATE SET
    title = excluded.title,
    url = excluded.url,
    text = excluded.text,
    dead = excluded.dead,
    score = excluded.score,
    descendants = excluded.descendants,
    user_id = excluded.user_id,
    kind = excluded.kind,
    updated_at = excluded.updated_at,
    deleted_at = CASE WHEN excluded.deleted_at IS NULL THEN NULL
        ELSE COALESCE(story.deleted_at, excluded.deleted_at) END
RETURNING id, hn_id`

const upsertCommentsSQL = `
INSERT INTO comment (hn_id, text, parent_id, story_id, user_id, "order", created_at, updated_at, deleted_at)
VALUES %s
ON CONFLICT (hn_id) DO UPDATE SET
    text = excluded.text,
    parent_id = excluded.parent_id,
    story_id = excluded.story_id,
    user_id = excluded.user_id,
    "order" = excluded."order",
    updated_at = excluded.updated_at,
    deleted_at = CASE WHEN excluded.deleted_at IS NULL THEN NULL
        ELSE COALESCE(comment.deleted_at, excluded.deleted_at) END
RETURNING id, hn_id`

// UpsertUsers writes users keyed on username.
func (s *Store) UpsertUsers(ctx context.Context, users []store.UserRow) ([]store.UserIDPair, error) {
	users = store.DedupeUsers(users)
	out := make([]store.UserIDPair, 0, len(users))
	err := eachChunk(len(users), 5, func(lo, hi int) error {
		args := make([]any, 0, (hi-lo)*5)
		for _, u := range users[lo:hi] {
			args = append(args, u.Username, u.About, u.Karma, u.CreatedAt, u.UpdatedAt)
		}
		return s.upsert(ctx, fmt.Sprintf(upsertUsersSQL, valuesList(hi-lo, 5)), args, func(scan func(any) error) error {
			var p store.UserIDPair
			if err := scan(&p); err != nil {
				return err
			}
			out = append(out, p)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("upsert users: %w", err)
	}
	return out, nil
}

// UpsertStories writes stories, jobs and polls keyed on hn_id.
func (s *Store) UpsertStories(ctx context.Context, stories []store.StoryRow) ([]store.IDPair, error) {
	stories = store.DedupeStories(stories)
	out := make([]store.IDPair, 0, len(stories))
	err := eachChunk(len(stories), 12, func(lo, hi int) error {
		args := make([]any, 0, (hi-lo)*12)
		for _, r := range stories[lo:hi] {
			args = append(args, r.ExternalID, r.Title, r.URL, r.Text, r.Dead, r.Score, r.Descendants,
				r.UserID, string(r.Kind), r.CreatedAt, r.UpdatedAt, r.DeletedAt)
		}
		return s.upsert(ctx, fmt.Sprintf(upsertStoriesSQL, valuesList(hi-lo, 12)), args, collectIDs(&out))
	})
	if err != nil {
		return nil, fmt.Errorf("upsert stories: %w", err)
	}
	return out, nil
}

// UpsertComments writes comments keyed on hn_id.
func (s *Store) UpsertComments(ctx context.Context, comments []store.CommentRow) ([]store.IDPair, error) {
	comments = store.DedupeComments(comments)
	out := make([]store.IDPair, 0, len(comments))
	err := eachChunk(len(comments), 9, func(lo, hi int) error {
		args := make([]any, 0, (hi-lo)*9)
		for _, r := range comments[lo:hi] {
			args = append(args, r.ExternalID, r.Text, r.ParentID, r.StoryID, r.UserID, r.Order,
				r.CreatedAt, r.UpdatedAt, r.DeletedAt)
		}
		return s.upsert(ctx, fmt.Sprintf(upsertCommentsSQL, valuesList(hi-lo, 9)), args, collectIDs(&out))
	})
	if err != nil {
		return nil, fmt.Errorf("upsert comments: %w", err)
	}
	return out, nil
}

func collectIDs(out *[]store.IDPair) func(func(any) error) error {
	return func(scan func(any) error) error {
		var p store.IDPair
		if err := scan(&p); err != nil {
			return err
		}
		*out = append(*out, p)
		return nil
	}
}

func (s *Store) upsert(ctx context.Context, query string, args []any, each func(scan func(any) error) error) error {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() {
		_ = rows.Close()
	}()
	for rows.Next() {
		if err := each(rows.StructScan); err != nil {
			return fmt.Errorf("scan returned id: %w", err)
		}
	}
	return rows.Err()
}

func eachChunk(n, cols int, fn func(lo, hi int) error) error {
	size := chunkSize(cols)
	for lo := 0; lo < n; lo += size {
		if err := fn(lo, min(lo+size, n)); err != nil {
			return err
		}
	}
	return nil
}
