package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/hnmirror/internal/clock"
	"github.com/JakeFAU/hnmirror/internal/crawler"
	"github.com/JakeFAU/hnmirror/internal/hn"
	"github.com/JakeFAU/hnmirror/internal/metrics"
	"github.com/JakeFAU/hnmirror/internal/store"
)

// DefaultBatchSize is the number of rows per upsert statement.
const DefaultBatchSize = 1000

// Stats counts what one Persist call wrote.
type Stats struct {
	Levels          int
	Stories         int
	Comments        int
	SkippedPollOpts int
	// Orphans are comments whose root story has no internal id.
	Orphans int
}

// Persister writes crawled forests.
type Persister struct {
	items     store.ItemStore
	batchSize int
	clock     clock.Clock
	logger    *zap.Logger
}

// NewPersister builds a Persister. batchSize <= 0 selects DefaultBatchSize.
func NewPersister(items store.ItemStore, batchSize int, clk clock.Clock, logger *zap.Logger) *Persister {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Persister{items: items, batchSize: batchSize, clock: clk, logger: logger.Named("persister")}
}

// cycle holds the id maps of one Persist call. It is discarded when the call returns.
type cycle struct {
	// rootOf maps a descendant's external id to its root story's external id.
	rootOf   map[int64]int64
	stories  map[int64]int64
	comments map[int64]int64
	users    map[string]int64
	now      time.Time
	stats    Stats
}

// Persist writes the forest breadth first. users maps author handles to internal ids.
// Level N is fully written before level N+1 starts. Children of deleted or authorless
// items are not persisted.
func (p *Persister) Persist(ctx context.Context, trees []*crawler.Tree, users map[string]int64) (Stats, error) {
	c := &cycle{
		rootOf:   make(map[int64]int64),
		stories:  make(map[int64]int64),
		comments: make(map[int64]int64),
		users:    users,
		now:      p.clock.Now(),
	}
	level := trees
	for len(level) > 0 {
		c.stats.Levels++
		if err := p.persistLevel(ctx, c, level); err != nil {
			return c.stats, fmt.Errorf("persist level %d: %w", c.stats.Levels, err)
		}
		level = c.nextLevel(level)
	}
	return c.stats, nil
}

func (p *Persister) persistLevel(ctx context.Context, c *cycle, level []*crawler.Tree) error {
	var stories, comments []hn.Item
	for _, t := range level {
		switch k := t.Kind(); {
		case k.IsStoryLike():
			stories = append(stories, t.Item)
		case k == hn.KindComment:
			comments = append(comments, t.Item)
		case k == hn.KindPollOpt:
			c.stats.SkippedPollOpts++
		}
	}
	p.logger.Debug("persisting level",
		zap.Int("level", c.stats.Levels),
		zap.Int("stories", len(stories)),
		zap.Int("comments", len(comments)),
	)
	if err := p.persistStories(ctx, c, stories); err != nil {
		return err
	}
	return p.persistComments(ctx, c, comments)
}

func (p *Persister) persistStories(ctx context.Context, c *cycle, items []hn.Item) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]store.StoryRow, 0, len(items))
	for _, it := range items {
		rows = append(rows, c.storyRow(it))
	}
	pairs, err := upsertChunks(ctx, rows, p.batchSize, p.items.UpsertStories)
	if err != nil {
		return fmt.Errorf("upsert stories: %w", err)
	}
	for _, pr := range pairs {
		c.stories[pr.ExternalID] = pr.ID
	}
	c.stats.Stories += len(pairs)
	metrics.AddPersistedRows("story", len(pairs))
	return nil
}

func (p *Persister) persistComments(ctx context.Context, c *cycle, items []hn.Item) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]store.CommentRow, 0, len(items))
	for i, it := range items {
		row, ok := c.commentRow(it, i)
		if !ok {
			c.stats.Orphans++
			p.logger.Warn("skipping comment without persisted story", zap.Int64("item_id", it.Meta().ID))
			continue
		}
		rows = append(rows, row)
	}
	pairs, err := upsertChunks(ctx, rows, p.batchSize, p.items.UpsertComments)
	if err != nil {
		return fmt.Errorf("upsert comments: %w", err)
	}
	for _, pr := range pairs {
		c.comments[pr.ExternalID] = pr.ID
	}
	c.stats.Comments += len(pairs)
	metrics.AddPersistedRows("comment", len(pairs))
	return nil
}

// nextLevel collects the children of valid items and records their root story.
func (c *cycle) nextLevel(level []*crawler.Tree) []*crawler.Tree {
	var next []*crawler.Tree
	for _, t := range level {
		h := t.Item.Meta()
		if h.Deleted || !h.HasAuthor() || len(t.Children) == 0 {
			continue
		}
		root, ok := c.rootOf[h.ID]
		if !ok {
			root = h.ID
		}
		for _, child := range t.Children {
			c.rootOf[child.ID()] = root
			next = append(next, child)
		}
	}
	return next
}

func (c *cycle) userID(by string) *int64 {
	if id, ok := c.users[by]; ok {
		return &id
	}
	return nil
}

func (c *cycle) deletedAt(h hn.Header) *time.Time {
	if !h.Deleted {
		return nil
	}
	now := c.now
	return &now
}

func (c *cycle) storyRow(it hn.Item) store.StoryRow {
	h := it.Meta()
	row := store.StoryRow{
		ExternalID: h.ID,
		Dead:       h.Dead,
		UserID:     c.userID(h.By),
		CreatedAt:  h.Time,
		UpdatedAt:  c.now,
		DeletedAt:  c.deletedAt(h),
	}
	switch v := it.(type) {
	case *hn.Story:
		row.Kind = store.StoryKindStory
		row.Title, row.URL, row.Text = v.Title, optional(v.URL), optional(v.Text)
		row.Score, row.Descendants = v.Score, v.Descendants
	case *hn.Job:
		row.Kind = store.StoryKindJob
		row.Title, row.URL, row.Text = v.Title, optional(v.URL), optional(v.Text)
		row.Score = v.Score
	case *hn.Poll:
		row.Kind = store.StoryKindPoll
		row.Title, row.Text = v.Title, optional(v.Text)
		row.Score, row.Descendants = v.Score, v.Descendants
	}
	return row
}

// commentRow builds the row for the comment at position order within its level.
func (c *cycle) commentRow(it hn.Item, order int) (store.CommentRow, bool) {
	h := it.Meta()
	root, ok := c.rootOf[h.ID]
	if !ok {
		return store.CommentRow{}, false
	}
	storyID, ok := c.stories[root]
	if !ok {
		return store.CommentRow{}, false
	}
	row := store.CommentRow{
		ExternalID: h.ID,
		StoryID:    storyID,
		UserID:     c.userID(h.By),
		Order:      order,
		CreatedAt:  h.Time,
		UpdatedAt:  c.now,
		DeletedAt:  c.deletedAt(h),
	}
	if cm, ok := it.(*hn.Comment); ok {
		row.Text = optional(cm.Text)
		if parentID, ok := c.comments[cm.Parent]; ok {
			row.ParentID = &parentID
		}
	}
	return row, true
}

// upsertChunks splits rows into batches and writes them concurrently.
func upsertChunks[R any](
	ctx context.Context,
	rows []R,
	size int,
	upsert func(context.Context, []R) ([]store.IDPair, error),
) ([]store.IDPair, error) {
	var chunks [][]R
	for lo := 0; lo < len(rows); lo += size {
		chunks = append(chunks, rows[lo:min(lo+size, len(rows))])
	}
	results := make([][]store.IDPair, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			pairs, err := upsert(gctx, chunk)
			if err != nil {
				return err
			}
			results[i] = pairs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []store.IDPair
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
