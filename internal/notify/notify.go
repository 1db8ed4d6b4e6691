// Package notify announces completed crawl cycles to downstream consumers.
package notify

import (
	"context"
	"time"
)

// CycleCompleted is published after a category's schedule row is marked finished.
type CycleCompleted struct {
	Category   string    `json:"category"`
	CycleID    string    `json:"cycle_id"`
	ScheduleID int64     `json:"schedule_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Requested  int       `json:"requested"`
	Crawled    int       `json:"crawled"`
	Failed     int       `json:"failed"`
	Items      int       `json:"items"`
	Users      int       `json:"users"`
	ArchiveURI string    `json:"archive_uri,omitempty"`
}

// Publisher delivers cycle events and returns a message id.
type Publisher interface {
	Publish(ctx context.Context, event CycleCompleted) (string, error)
}

// Noop discards events.
type Noop struct{}

// Publish does nothing.
func (Noop) Publish(context.Context, CycleCompleted) (string, error) { return "", nil }
