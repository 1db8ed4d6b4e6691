package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/hnmirror/internal/crawler"
)

// RootCrawler crawls a ranked list of roots.
type RootCrawler interface {
	CrawlRoots(ctx context.Context, ids []int64) crawler.Result
}

// Result summarizes one ingest run.
type Result struct {
	Requested int
	Crawled   int
	Failed    int
	// Items counts every node of the successfully fetched forest.
	Items int
	Users int
	Stats Stats
	// Trees is the fetched forest, kept for archiving.
	Trees []*crawler.Tree
}

// Pipeline runs crawl, user resolution and persistence for one list of roots.
type Pipeline struct {
	crawler   RootCrawler
	resolver  *Resolver
	persister *Persister
	logger    *zap.Logger
}

// NewPipeline wires the three stages.
func NewPipeline(c RootCrawler, r *Resolver, p *Persister, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{crawler: c, resolver: r, persister: p, logger: logger.Named("pipeline")}
}

// Ingest crawls ids, resolves their authors and persists the trees that were fetched in full.
// A user count mismatch aborts before any item is written.
func (p *Pipeline) Ingest(ctx context.Context, ids []int64) (Result, error) {
	res := Result{Requested: len(ids)}

	crawled := p.crawler.CrawlRoots(ctx, ids)
	res.Trees = crawled.Trees
	res.Crawled = len(crawled.Trees)
	res.Failed = len(crawled.Failed)
	res.Items = crawler.CountItems(crawled.Trees)
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("crawl: %w", err)
	}

	users, err := p.resolver.Resolve(ctx, crawled.Trees)
	if err != nil {
		return res, err
	}
	res.Users = len(users)

	stats, err := p.persister.Persist(ctx, crawled.Trees, users)
	res.Stats = stats
	if err != nil {
		return res, err
	}
	p.logger.Info("ingested",
		zap.Int("requested", res.Requested),
		zap.Int("crawled", res.Crawled),
		zap.Int("failed", res.Failed),
		zap.Int("items", res.Items),
		zap.Int("users", res.Users),
		zap.Int("levels", stats.Levels),
	)
	return res, nil
}
