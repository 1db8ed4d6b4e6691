package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/hnmirror/internal/store"
)

const upsertUsersSQL = `
INSERT INTO "user" (username, about, karma, created_at, updated_at)
SELECT * FROM unnest($1::text[], $2::text[], $3::int[], $4::timestamptz[], $5::timestamptz[])
ON CONFLICT (username) DO UPDATE SET
	about = EXCLUDED.about,
	karma = EXCLUDED.karma,
	created_at = EXCLUDED.created_at,
	updated_at = EXCLUDED.updated_at
RETURNING id, username`

const upsertStoriesSQL = `
INSERT INTO story (hn_id, title, url, text, dead, score, descendants, user_id, kind, created_at, updated_at, deleted_at)
SELECT * FROM unnest(
	$1::bigint[], $2::text[], $3::text[], $4::text[], $5::boolean[], $6::int[], $7::int[],
	$8::bigint[], $9::text[], $10::timestamptz[], $11::timestamptz[], $12::timestamptz[]
)
ON CONFLICT (hn_id) DO UPDATE SET
	title = EXCLUDED.title,
	url = EXCLUDED.url,
	text = EXCLUDED.text,
	dead = EXCLUDED.dead,
	score = EXCLUDED.score,
	descendants = EXCLUDED.descendants,
	user_id = EXCLUDED.user_id,
	kind = EXCLUDED.kind,
	updated_at = EXCLUDED.updated_at,
	deleted_at = CASE WHEN EXCLUDED.deleted_at IS NULL THEN NULL
		ELSE COALESCE(story.deleted_at, EXCLUDED.deleted_at) END
RETURNING id, hn_id`

const upsertCommentsSQL = `
INSERT INTO comment (hn_id, text, parent_id, story_id, user_id, "order", created_at, updated_at, deleted_at)
SELECT * FROM unnest(
	$1::bigint[], $2::text[], $3::bigint[], $4::bigint[], $5::bigint[], $6::int[],
	$7::timestamptz[], $8::timestamptz[], $9::timestamptz[]
)
ON CONFLICT (hn_id) DO UPDATE SET
	text = EXCLUDED.text,
	parent_id = EXCLUDED.parent_id,
	story_id = EXCLUDED.story_id,
	user_id = EXCLUDED.user_id,
	"order" = EXCLUDED."order",
	updated_at = EXCLUDED.updated_at,
	deleted_at = CASE WHEN EXCLUDED.deleted_at IS NULL THEN NULL
		ELSE COALESCE(comment.deleted_at, EXCLUDED.deleted_at) END
RETURNING id, hn_id`

// UpsertUsers writes users keyed on username.
func (s *Store) UpsertUsers(ctx context.Context, users []store.UserRow) ([]store.UserIDPair, error) {
	users = store.DedupeUsers(users)
	if len(users) == 0 {
		return nil, nil
	}
	var (
		names   = make([]string, len(users))
		abouts  = make([]string, len(users))
		karmas  = make([]int, len(users))
		created = make([]time.Time, len(users))
		updated = make([]time.Time, len(users))
	)
	for i, u := range users {
		names[i], abouts[i], karmas[i] = u.Username, u.About, u.Karma
		created[i], updated[i] = u.CreatedAt, u.UpdatedAt
	}
	rows, err := s.pool.Query(ctx, upsertUsersSQL, names, abouts, karmas, created, updated)
	if err != nil {
		return nil, fmt.Errorf("upsert users: %w", err)
	}
	defer rows.Close()

	out := make([]store.UserIDPair, 0, len(users))
	for rows.Next() {
		var p store.UserIDPair
		if err := rows.Scan(&p.ID, &p.Username); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("upsert users: %w", err)
	}
	return out, nil
}

// UpsertStories writes stories, jobs and polls keyed on hn_id.
func (s *Store) UpsertStories(ctx context.Context, stories []store.StoryRow) ([]store.IDPair, error) {
	stories = store.DedupeStories(stories)
	if len(stories) == 0 {
		return nil, nil
	}
	n := len(stories)
	var (
		hnIDs       = make([]int64, n)
		titles      = make([]string, n)
		urls        = make([]*string, n)
		texts       = make([]*string, n)
		dead        = make([]bool, n)
		scores      = make([]int, n)
		descendants = make([]int, n)
		userIDs     = make([]*int64, n)
		kinds       = make([]string, n)
		created     = make([]time.Time, n)
		updated     = make([]time.Time, n)
		deleted     = make([]*time.Time, n)
	)
	for i, r := range stories {
		hnIDs[i], titles[i], urls[i], texts[i] = r.ExternalID, r.Title, r.URL, r.Text
		dead[i], scores[i], descendants[i] = r.Dead, r.Score, r.Descendants
		userIDs[i], kinds[i] = r.UserID, string(r.Kind)
		created[i], updated[i], deleted[i] = r.CreatedAt, r.UpdatedAt, r.DeletedAt
	}
	return s.upsertReturningIDs(ctx, "stories", upsertStoriesSQL,
		hnIDs, titles, urls, texts, dead, scores, descendants, userIDs, kinds, created, updated, deleted)
}

// UpsertComments writes comments keyed on hn_id.
func (s *Store) UpsertComments(ctx context.Context, comments []store.CommentRow) ([]store.IDPair, error) {
	comments = store.DedupeComments(comments)
	if len(comments) == 0 {
		return nil, nil
	}
	n := len(comments)
	var (
		hnIDs     = make([]int64, n)
		texts     = make([]*string, n)
		parentIDs = make([]*int64, n)
		storyIDs  = make([]int64, n)
		userIDs   = make([]*int64, n)
		orders    = make([]int, n)
		created   = make([]time.Time, n)
		updated   = make([]time.Time, n)
		deleted   = make([]*time.Time, n)
	)
	for i, r := range comments {
		hnIDs[i], texts[i], parentIDs[i], storyIDs[i] = r.ExternalID, r.Text, r.ParentID, r.StoryID
		userIDs[i], orders[i] = r.UserID, r.Order
		created[i], updated[i], deleted[i] = r.CreatedAt, r.UpdatedAt, r.DeletedAt
	}
	return s.upsertReturningIDs(ctx, "comments", upsertCommentsSQL,
		hnIDs, texts, parentIDs, storyIDs, userIDs, orders, created, updated, deleted)
}

func (s *Store) upsertReturningIDs(ctx context.Context, what, query string, args ...any) ([]store.IDPair, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", what, err)
	}
	defer rows.Close()

	var out []store.IDPair
	for rows.Next() {
		var p store.IDPair
		if err := rows.Scan(&p.ID, &p.ExternalID); err != nil {
			return nil, fmt.Errorf("scan %s id: %w", what, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("upsert %s: %w", what, err)
	}
	return out, nil
}
