package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hnmirror/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func ptr[T any](v T) *T { return &v }

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
}

func TestUpsertUsersReturnsStableIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	first, err := s.UpsertUsers(ctx, []store.UserRow{
		{Username: "pg", Karma: 100, CreatedAt: now, UpdatedAt: now},
		{Username: "dang", Karma: 50, CreatedAt: now, UpdatedAt: now},
	})
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := s.UpsertUsers(ctx, []store.UserRow{
		{Username: "pg", Karma: 101, About: "hi", CreatedAt: now, UpdatedAt: now.Add(time.Hour)},
	})
	require.NoError(t, err)
	require.Len(t, second, 1)

	ids := map[string]int64{}
	for _, p := range first {
		ids[p.Username] = p.ID
	}
	require.Equal(t, ids["pg"], second[0].ID)

	var karma int
	require.NoError(t, s.DB().Get(&karma, `SELECT karma FROM "user" WHERE username = 'pg'`))
	require.Equal(t, 101, karma)
}

func TestUpsertStoriesKeepsCreationAndFirstDeletion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := created.Add(time.Hour)
	t2 := created.Add(2 * time.Hour)

	row := store.StoryRow{ExternalID: 8863, Title: "a", Kind: store.StoryKindStory, CreatedAt: created, UpdatedAt: t1, DeletedAt: &t1}
	first, err := s.UpsertStories(ctx, []store.StoryRow{row})
	require.NoError(t, err)

	row.Title = "b"
	row.CreatedAt = t2
	row.UpdatedAt = t2
	row.DeletedAt = &t2
	second, err := s.UpsertStories(ctx, []store.StoryRow{row})
	require.NoError(t, err)
	require.Equal(t, first, second)

	var got struct {
		Title     string     `db:"title"`
		CreatedAt time.Time  `db:"created_at"`
		DeletedAt *time.Time `db:"deleted_at"`
	}
	require.NoError(t, s.DB().Get(&got, `SELECT title, created_at, deleted_at FROM story WHERE hn_id = 8863`))
	require.Equal(t, "b", got.Title)
	require.True(t, got.CreatedAt.Equal(created))
	require.NotNil(t, got.DeletedAt)
	require.True(t, got.DeletedAt.Equal(t1))

	row.DeletedAt = nil
	_, err = s.UpsertStories(ctx, []store.StoryRow{row})
	require.NoError(t, err)
	require.NoError(t, s.DB().Get(&got, `SELECT title, created_at, deleted_at FROM story WHERE hn_id = 8863`))
	require.Nil(t, got.DeletedAt)
}

func TestUpsertCommentsLinksStoryAndParent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	stories, err := s.UpsertStories(ctx, []store.StoryRow{{ExternalID: 1, Kind: store.StoryKindStory, CreatedAt: now, UpdatedAt: now}})
	require.NoError(t, err)
	storyID := stories[0].ID

	top, err := s.UpsertComments(ctx, []store.CommentRow{
		{ExternalID: 11, Text: ptr("hello"), StoryID: storyID, Order: 0, CreatedAt: now, UpdatedAt: now},
	})
	require.NoError(t, err)
	require.Len(t, top, 1)

	reply, err := s.UpsertComments(ctx, []store.CommentRow{
		{ExternalID: 111, ParentID: &top[0].ID, StoryID: storyID, Order: 0, CreatedAt: now, UpdatedAt: now},
		{ExternalID: 111, ParentID: &top[0].ID, StoryID: storyID, Order: 1, CreatedAt: now, UpdatedAt: now},
	})
	require.NoError(t, err)
	require.Len(t, reply, 1)

	var parent int64
	require.NoError(t, s.DB().Get(&parent, `SELECT parent_id FROM comment WHERE hn_id = 111`))
	require.Equal(t, top[0].ID, parent)
}

func TestStartCrawlGuardsUnfinishedRow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.LatestSchedule(ctx, "top")
	require.ErrorIs(t, err, store.ErrNotFound)

	sched, err := s.StartCrawl(ctx, store.StartCrawl{Category: "top", IDs: []int64{3, 1, 2}, Now: t0, StaleBefore: t0.Add(-time.Hour)})
	require.NoError(t, err)
	require.NotZero(t, sched.ID)

	_, err = s.StartCrawl(ctx, store.StartCrawl{Category: "top", IDs: []int64{9}, Now: t0.Add(time.Minute), StaleBefore: t0.Add(-time.Hour)})
	require.ErrorIs(t, err, store.ErrCrawlInProgress)

	snap, err := s.Snapshot(ctx, "top")
	require.NoError(t, err)
	require.Equal(t, []store.SnapshotEntry{
		{Category: "top", ExternalID: 3, Rank: 0},
		{Category: "top", ExternalID: 1, Rank: 1},
		{Category: "top", ExternalID: 2, Rank: 2},
	}, snap)

	_, err = s.StartCrawl(ctx, store.StartCrawl{Category: "new", IDs: []int64{5}, Now: t0, StaleBefore: t0.Add(-time.Hour)})
	require.NoError(t, err, "categories are independent")

	latest, err := s.LatestSchedule(ctx, "top")
	require.NoError(t, err)
	require.True(t, latest.Running())
	require.True(t, latest.CreatedAt.Equal(t0))
}

func TestStartCrawlAbandonsStaleRow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	later := t0.Add(61 * time.Minute)

	first, err := s.StartCrawl(ctx, store.StartCrawl{Category: "best", IDs: []int64{1}, Now: t0, StaleBefore: t0.Add(-time.Hour)})
	require.NoError(t, err)

	second, err := s.StartCrawl(ctx, store.StartCrawl{Category: "best", IDs: []int64{2}, Now: later, StaleBefore: later.Add(-time.Hour)})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	var abandoned bool
	require.NoError(t, s.DB().Get(&abandoned, `SELECT abandoned FROM fetch_schedule WHERE id = ?`, first.ID))
	require.True(t, abandoned)

	snap, err := s.Snapshot(ctx, "best")
	require.NoError(t, err)
	require.Len(t, snap, 1)
	require.Equal(t, int64(2), snap[0].ExternalID)
}

func TestFinishCrawl(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	err := s.FinishCrawl(ctx, 1, 1, t0)
	require.ErrorIs(t, err, store.ErrNotFound)

	sched, err := s.StartCrawl(ctx, store.StartCrawl{Category: "ask", Now: t0, StaleBefore: t0.Add(-time.Hour)})
	require.NoError(t, err)
	require.NoError(t, s.FinishCrawl(ctx, sched.ID, 42, t0.Add(time.Minute)))
	require.ErrorIs(t, s.FinishCrawl(ctx, sched.ID, 43, t0.Add(2*time.Minute)), store.ErrNotFound, "already finished")

	latest, err := s.LatestSchedule(ctx, "ask")
	require.NoError(t, err)
	require.False(t, latest.Running())
	require.Equal(t, 42, *latest.TotalItems)
	require.False(t, latest.Abandoned)

	_, err = s.StartCrawl(ctx, store.StartCrawl{Category: "ask", Now: t0.Add(time.Hour), StaleBefore: t0})
	require.NoError(t, err)
}

func TestFinishCrawlLeavesNewerRowAlone(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	later := t0.Add(61 * time.Minute)

	stale, err := s.StartCrawl(ctx, store.StartCrawl{Category: "show", Now: t0, StaleBefore: t0.Add(-time.Hour)})
	require.NoError(t, err)
	fresh, err := s.StartCrawl(ctx, store.StartCrawl{Category: "show", Now: later, StaleBefore: later.Add(-time.Hour)})
	require.NoError(t, err)

	err = s.FinishCrawl(ctx, stale.ID, 5, later.Add(time.Minute))
	require.ErrorIs(t, err, store.ErrNotFound, "abandoned row stays abandoned")

	latest, err := s.LatestSchedule(ctx, "show")
	require.NoError(t, err)
	require.Equal(t, fresh.ID, latest.ID)
	require.True(t, latest.Running())
	require.Nil(t, latest.TotalItems)
}

func TestValuesList(t *testing.T) {
	t.Parallel()

	require.Equal(t, "(?,?),(?,?),(?,?)", valuesList(3, 2))
	require.Equal(t, 32766/12, chunkSize(12))
}
