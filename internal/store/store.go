// Package store declares the relational contract the ingester writes through.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound signals that the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrCrawlInProgress signals an unfinished schedule row still inside its grace window.
	ErrCrawlInProgress = errors.New("crawl already in progress for category")
)

// StoryKind mirrors the story.kind column.
type StoryKind string

// Persisted story kinds.
const (
	StoryKindStory StoryKind = "story"
	StoryKindJob   StoryKind = "job"
	StoryKindPoll  StoryKind = "poll"
)

// IDPair maps an external id (or handle) to the internal id assigned by the store.
type IDPair struct {
	ID         int64 `db:"id"`
	ExternalID int64 `db:"hn_id"`
}

// UserIDPair maps a handle to its internal id.
type UserIDPair struct {
	ID       int64  `db:"id"`
	Username string `db:"username"`
}

// UserRow is an insertable user.
type UserRow struct {
	Username  string
	CreatedAt time.Time
	Karma     int
	About     string
	UpdatedAt time.Time
}

// StoryRow is an insertable story, job or poll.
type StoryRow struct {
	ExternalID  int64
	Title       string
	URL         *string
	Text        *string
	Dead        bool
	Score       int
	Descendants int
	UserID      *int64
	Kind        StoryKind
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// CommentRow is an insertable comment.
type CommentRow struct {
	ExternalID int64
	Text       *string
	ParentID   *int64
	StoryID    int64
	UserID     *int64
	Order      int
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

// Schedule models one fetch_schedule row.
type Schedule struct {
	ID         int64      `db:"id" json:"id"`
	Category   string     `db:"category" json:"category"`
	TotalItems *int       `db:"total_items" json:"total_items,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	Abandoned  bool       `db:"abandoned" json:"abandoned"`
}

// Running reports whether the row has not been finished.
func (s Schedule) Running() bool { return s.FinishedAt == nil }

// SnapshotEntry is one ranked top_story row.
type SnapshotEntry struct {
	Category   string `db:"category"`
	ExternalID int64  `db:"hn_id"`
	Rank       int    `db:"rank"`
}

// StartCrawl describes the atomic schedule-row insert plus snapshot replacement.
type StartCrawl struct {
	Category string
	IDs      []int64
	Now      time.Time
	// StaleBefore abandons an unfinished row created at or before this instant.
	StaleBefore time.Time
}

// UserStore upserts users keyed on handle.
type UserStore interface {
	// UpsertUsers writes all rows in one call and returns one pair per row written.
	UpsertUsers(ctx context.Context, users []UserRow) ([]UserIDPair, error)
}

// ItemStore upserts stories and comments keyed on external id.
type ItemStore interface {
	UpsertStories(ctx context.Context, stories []StoryRow) ([]IDPair, error)
	UpsertComments(ctx context.Context, comments []CommentRow) ([]IDPair, error)
}

// ScheduleStore owns fetch_schedule and top_story.
type ScheduleStore interface {
	// LatestSchedule returns the most recent row for a category or ErrNotFound.
	LatestSchedule(ctx context.Context, category string) (Schedule, error)
	// StartCrawl inserts an unfinished row and replaces the snapshot in one transaction.
	StartCrawl(ctx context.Context, req StartCrawl) (Schedule, error)
	// FinishCrawl marks the row StartCrawl returned finished. It returns ErrNotFound when that
	// row is gone or was already closed, e.g. abandoned by a later crawl.
	FinishCrawl(ctx context.Context, scheduleID int64, totalItems int, finishedAt time.Time) error
	// Snapshot returns the current ranked ids of a category.
	Snapshot(ctx context.Context, category string) ([]SnapshotEntry, error)
}

// Store is the full storage surface.
type Store interface {
	UserStore
	ItemStore
	ScheduleStore
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
