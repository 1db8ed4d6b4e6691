package crawler

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/hnmirror/internal/gate"
	"github.com/JakeFAU/hnmirror/internal/hn"
)

// ItemFetcher fetches a single item by external id.
type ItemFetcher interface {
	GetItem(ctx context.Context, id int64) (hn.Item, error)
}

// RootError records a root whose tree was discarded.
type RootError struct {
	ID  int64
	Err error
}

func (e *RootError) Error() string {
	return fmt.Sprintf("crawl root %d: %v", e.ID, e.Err)
}

func (e *RootError) Unwrap() error { return e.Err }

// Result is the outcome of crawling a ranked list of roots.
type Result struct {
	// Trees holds the fully fetched trees in ranking order.
	Trees []*Tree
	// Failed holds one entry per discarded root, in ranking order.
	Failed []*RootError
}

// Crawler walks item trees through the two gates.
type Crawler struct {
	fetcher ItemFetcher
	pools   *gate.Pools
	logger  *zap.Logger
}

// New constructs a Crawler.
func New(fetcher ItemFetcher, pools *gate.Pools, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{fetcher: fetcher, pools: pools, logger: logger}
}

// Crawl fetches id and, recursively, every descendant. Any failed fetch anywhere in the
// subtree fails the whole call; no partial tree is returned.
func (c *Crawler) Crawl(ctx context.Context, id int64) (*Tree, error) {
	it, err := gate.Run(ctx, c.pools.Child, func(ctx context.Context) (hn.Item, error) {
		return c.fetcher.GetItem(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	kids := it.Meta().Kids
	node := &Tree{Item: it}
	if len(kids) == 0 {
		return node, nil
	}

	children := make([]*Tree, len(kids))
	g, gctx := errgroup.WithContext(ctx)
	for i, kid := range kids {
		g.Go(func() error {
			child, err := c.Crawl(gctx, kid)
			if err != nil {
				return err
			}
			children[i] = child
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	node.Children = children
	return node, nil
}

// CrawlRoots crawls every root concurrently, each holding a root gate slot for its whole
// tree. Failed roots are reported, not returned as an error.
func (c *Crawler) CrawlRoots(ctx context.Context, ids []int64) Result {
	trees := make([]*Tree, len(ids))
	errs := make([]*RootError, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tree, err := gate.Run(ctx, c.pools.Root, func(ctx context.Context) (*Tree, error) {
				return c.Crawl(ctx, id)
			})
			if err != nil {
				errs[i] = &RootError{ID: id, Err: err}
				return
			}
			trees[i] = tree
		}()
	}
	wg.Wait()

	var res Result
	for i := range ids {
		if errs[i] != nil {
			c.logger.Warn("discarding tree", zap.Int64("root_id", ids[i]), zap.Error(errs[i].Err))
			res.Failed = append(res.Failed, errs[i])
			continue
		}
		res.Trees = append(res.Trees, trees[i])
	}
	return res
}
