package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hnmirror/internal/store"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s, err := NewWithPool(mock)
	require.NoError(t, err)
	return s, mock
}

func ptr[T any](v T) *T { return &v }

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.ErrorContains(t, err, "db.dsn is required")

	_, err = NewWithPool(nil)
	require.Error(t, err)
}

func TestMigrateRunsSchemaInTransaction(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectBegin()
	for range schema {
		mock.ExpectExec("CREATE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
	mock.ExpectCommit()

	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err := s.Migrate(context.Background())
	require.ErrorContains(t, err, "permission denied")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertStoriesSendsColumnArrays(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	created := time.Unix(1175714200, 0).UTC()
	now := time.Unix(1700000000, 0).UTC()
	rows := []store.StoryRow{
		{ExternalID: 8863, Title: "first", URL: ptr("http://x"), Score: 1, UserID: ptr(int64(7)),
			Kind: store.StoryKindStory, CreatedAt: created, UpdatedAt: now},
		{ExternalID: 121003, Title: "poll", Dead: true, Score: 5, Descendants: 2,
			Kind: store.StoryKindPoll, CreatedAt: created, UpdatedAt: now, DeletedAt: &now},
		{ExternalID: 8863, Title: "second", URL: ptr("http://x"), Score: 2, UserID: ptr(int64(7)),
			Kind: store.StoryKindStory, CreatedAt: created, UpdatedAt: now},
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO story")).
		WithArgs(
			[]int64{8863, 121003},
			[]string{"second", "poll"},
			[]*string{ptr("http://x"), nil},
			[]*string{nil, nil},
			[]bool{false, true},
			[]int{2, 5},
			[]int{0, 2},
			[]*int64{ptr(int64(7)), nil},
			[]string{"story", "poll"},
			[]time.Time{created, created},
			[]time.Time{now, now},
			[]*time.Time{nil, &now},
		).
		WillReturnRows(pgxmock.NewRows([]string{"id", "hn_id"}).
			AddRow(int64(1), int64(8863)).
			AddRow(int64(2), int64(121003)))

	got, err := s.UpsertStories(context.Background(), rows)
	require.NoError(t, err)
	require.Equal(t, []store.IDPair{{ID: 1, ExternalID: 8863}, {ID: 2, ExternalID: 121003}}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSkipsEmptyBatches(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	users, err := s.UpsertUsers(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, users)
	stories, err := s.UpsertStories(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, stories)
	comments, err := s.UpsertComments(context.Background(), []store.CommentRow{})
	require.NoError(t, err)
	require.Empty(t, comments)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertUsersReturnsPairs(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	joined := time.Unix(1173923446, 0).UTC()
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "user"`)).
		WithArgs([]string{"jl"}, []string{"hi"}, []int{2937}, []time.Time{joined}, []time.Time{now}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "username"}).AddRow(int64(4), "jl"))

	got, err := s.UpsertUsers(context.Background(), []store.UserRow{
		{Username: "jl", About: "hi", Karma: 2937, CreatedAt: joined, UpdatedAt: now},
	})
	require.NoError(t, err)
	require.Equal(t, []store.UserIDPair{{ID: 4, Username: "jl"}}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCommentsWrapsQueryError(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO comment")).
		WillReturnError(errors.New("fk violation"))

	_, err := s.UpsertComments(context.Background(), []store.CommentRow{{ExternalID: 1, StoryID: 1}})
	require.ErrorContains(t, err, "upsert comments: fk violation")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestScheduleNotFound(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM fetch_schedule")).
		WithArgs("top").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.LatestSchedule(context.Background(), "top")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestScheduleScansRow(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	created := time.Unix(1700000000, 0).UTC()
	finished := created.Add(3 * time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta("FROM fetch_schedule")).
		WithArgs("new").
		WillReturnRows(pgxmock.NewRows([]string{"id", "category", "total_items", "created_at", "finished_at", "abandoned"}).
			AddRow(int64(9), "new", ptr(42), created, &finished, false))

	got, err := s.LatestSchedule(context.Background(), "new")
	require.NoError(t, err)
	require.Equal(t, int64(9), got.ID)
	require.Equal(t, 42, *got.TotalItems)
	require.False(t, got.Running())
	require.Equal(t, finished, *got.FinishedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStartCrawlReplacesSnapshotInTransaction(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	stale := now.Add(-time.Hour)
	ids := []int64{30, 10, 20}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fetch_schedule SET finished_at = $2, abandoned = TRUE")).
		WithArgs("top", now, stale).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO fetch_schedule")).
		WithArgs("top", now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM top_story")).
		WithArgs("top").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO top_story")).
		WithArgs("top", ids).
		WillReturnResult(pgxmock.NewResult("INSERT", 3))
	mock.ExpectCommit()

	sched, err := s.StartCrawl(context.Background(), store.StartCrawl{
		Category: "top", IDs: ids, Now: now, StaleBefore: stale,
	})
	require.NoError(t, err)
	require.Equal(t, int64(11), sched.ID)
	require.True(t, sched.Running())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStartCrawlConflictRollsBack(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fetch_schedule")).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO fetch_schedule")).
		WithArgs("ask", now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := s.StartCrawl(context.Background(), store.StartCrawl{
		Category: "ask", IDs: []int64{1}, Now: now, StaleBefore: now.Add(-time.Hour),
	})
	require.ErrorIs(t, err, store.ErrCrawlInProgress)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinishCrawlWithoutRunningRow(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fetch_schedule SET finished_at = $2, total_items = $3")).
		WithArgs(int64(7), now, 12).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.FinishCrawl(context.Background(), 7, 12, now)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinishCrawlKeysOnScheduleID(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND finished_at IS NULL")).
		WithArgs(int64(11), now, 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.FinishCrawl(context.Background(), 11, 3, now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotOrdersByRank(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM top_story")).
		WithArgs("best").
		WillReturnRows(pgxmock.NewRows([]string{"category", "hn_id", "rank"}).
			AddRow("best", int64(5), 0).
			AddRow("best", int64(3), 1))

	got, err := s.Snapshot(context.Background(), "best")
	require.NoError(t, err)
	require.Equal(t, []store.SnapshotEntry{
		{Category: "best", ExternalID: 5, Rank: 0},
		{Category: "best", ExternalID: 3, Rank: 1},
	}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}
