// Package scheduler decides when each category is due, records crawl start and finish, and
// loops over the categories until stopped.
//
// A stop request is honored before each category of a pass, not only between passes. A cycle
// that has started always runs to completion, so stopping never interrupts a fetch or a write.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/hnmirror/internal/clock"
	"github.com/JakeFAU/hnmirror/internal/crawler"
	"github.com/JakeFAU/hnmirror/internal/hn"
	"github.com/JakeFAU/hnmirror/internal/ingest"
	"github.com/JakeFAU/hnmirror/internal/metrics"
	"github.com/JakeFAU/hnmirror/internal/notify"
	"github.com/JakeFAU/hnmirror/internal/store"
	"github.com/JakeFAU/hnmirror/internal/telemetry"
)

// Defaults mirror the production deployment.
const (
	DefaultFetchInterval = 30 * time.Minute
	DefaultPollInterval  = time.Minute
	DefaultMaxStories    = 500
)

// IDLister lists the ranked ids of a category.
type IDLister interface {
	ListIDs(ctx context.Context, category hn.Category) ([]int64, error)
}

// Ingester crawls and persists a list of roots.
type Ingester interface {
	Ingest(ctx context.Context, ids []int64) (ingest.Result, error)
}

// Archiver stores the fetched forest of a cycle.
type Archiver interface {
	Archive(ctx context.Context, category, cycleID string, at time.Time, trees []*crawler.Tree) (string, error)
}

// Config tunes the loop.
type Config struct {
	Categories    []hn.Category
	FetchInterval time.Duration
	PollInterval  time.Duration
	MaxStories    int
}

// Deps are the collaborators of a Scheduler. Archiver and Publisher are optional.
type Deps struct {
	Lister    IDLister
	Ingester  Ingester
	Schedules store.ScheduleStore
	Archiver  Archiver
	Publisher notify.Publisher
	Clock     clock.Clock
	Logger    *zap.Logger
}

// Report describes one RunCategory call.
type Report struct {
	Category   hn.Category
	CycleID    string
	Schedule   store.Schedule
	Result     ingest.Result
	ArchiveURI string
	// Skipped is set when the category was not due; Wait says for how long.
	Skipped bool
	Wait    time.Duration
}

// CategoryStatus is the schedule state of one category.
type CategoryStatus struct {
	Category hn.Category     `json:"category"`
	Latest   *store.Schedule `json:"latest,omitempty"`
	Running  bool            `json:"running"`
	NextIn   time.Duration   `json:"next_in_ns"`
}

// Scheduler runs crawl cycles per category.
type Scheduler struct {
	cfg       Config
	lister    IDLister
	ingester  Ingester
	schedules store.ScheduleStore
	archiver  Archiver
	publisher notify.Publisher
	clock     clock.Clock
	logger    *zap.Logger
	newID     func() string
	sleep     func(context.Context, time.Duration) error
}

// New validates cfg and builds a Scheduler.
func New(cfg Config, deps Deps) (*Scheduler, error) {
	if deps.Lister == nil || deps.Ingester == nil || deps.Schedules == nil {
		return nil, fmt.Errorf("lister, ingester and schedule store are required")
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = hn.AllCategories()
	}
	if cfg.FetchInterval <= 0 {
		cfg.FetchInterval = DefaultFetchInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxStories <= 0 {
		cfg.MaxStories = DefaultMaxStories
	}
	if deps.Publisher == nil {
		deps.Publisher = notify.Noop{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:       cfg,
		lister:    deps.Lister,
		ingester:  deps.Ingester,
		schedules: deps.Schedules,
		archiver:  deps.Archiver,
		publisher: deps.Publisher,
		clock:     deps.Clock,
		logger:    deps.Logger.Named("scheduler"),
		newID:     newCycleID,
		sleep:     clock.Sleep,
	}, nil
}

// NextFetchDelay returns how long to wait before crawling a category whose newest schedule
// row is latest (nil when there is none). An unfinished row waits twice the interval.
func NextFetchDelay(latest *store.Schedule, now time.Time, interval time.Duration) time.Duration {
	if latest == nil {
		return 0
	}
	wait := interval
	if latest.Running() {
		wait = 2 * interval
	}
	return max(0, wait-now.Sub(latest.CreatedAt))
}

// TimeUntilNextFetch reads the newest schedule row and applies NextFetchDelay.
func (s *Scheduler) TimeUntilNextFetch(ctx context.Context, category hn.Category) (time.Duration, error) {
	latest, err := s.latest(ctx, category)
	if err != nil {
		return 0, err
	}
	return NextFetchDelay(latest, s.clock.Now(), s.cfg.FetchInterval), nil
}

// Status reports every configured category.
func (s *Scheduler) Status(ctx context.Context) ([]CategoryStatus, error) {
	now := s.clock.Now()
	out := make([]CategoryStatus, 0, len(s.cfg.Categories))
	for _, c := range s.cfg.Categories {
		latest, err := s.latest(ctx, c)
		if err != nil {
			return nil, err
		}
		out = append(out, CategoryStatus{
			Category: c,
			Latest:   latest,
			Running:  latest != nil && latest.Running(),
			NextIn:   NextFetchDelay(latest, now, s.cfg.FetchInterval),
		})
	}
	return out, nil
}

func (s *Scheduler) latest(ctx context.Context, category hn.Category) (*store.Schedule, error) {
	sched, err := s.schedules.LatestSchedule(ctx, string(category))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest schedule %s: %w", category, err)
	}
	return &sched, nil
}

// RunCategory runs one crawl cycle if the category is due. force skips the due check but not
// the in-progress guard: an unfinished row younger than twice the interval still yields
// store.ErrCrawlInProgress. On failure the schedule row stays unfinished.
func (s *Scheduler) RunCategory(ctx context.Context, category hn.Category, force bool) (Report, error) {
	report := Report{Category: category}
	logger := s.logger.With(zap.String("category", string(category)))

	if !force {
		wait, err := s.TimeUntilNextFetch(ctx, category)
		if err != nil {
			return report, err
		}
		if wait > 0 {
			report.Skipped, report.Wait = true, wait
			logger.Debug("not due", zap.Duration("wait", wait))
			return report, nil
		}
	}

	ctx, span := telemetry.Tracer().Start(ctx, "crawl_cycle")
	defer span.End()
	span.SetAttributes(attribute.String("category", string(category)))

	report.CycleID = s.newID()
	logger = logger.With(zap.String("cycle_id", report.CycleID))
	started := s.clock.Now()

	err := s.runCycle(ctx, category, &report, logger)
	status := "ok"
	if err != nil {
		status = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	metrics.ObserveCycle(string(category), status, s.clock.Now().Sub(started))
	return report, err
}

func (s *Scheduler) runCycle(ctx context.Context, category hn.Category, report *Report, logger *zap.Logger) error {
	ids, err := s.lister.ListIDs(ctx, category)
	if err != nil {
		return fmt.Errorf("list %s ids: %w", category, err)
	}
	if len(ids) > s.cfg.MaxStories {
		ids = ids[:s.cfg.MaxStories]
	}

	now := s.clock.Now()
	sched, err := s.schedules.StartCrawl(ctx, store.StartCrawl{
		Category:    string(category),
		IDs:         ids,
		Now:         now,
		StaleBefore: now.Add(-2 * s.cfg.FetchInterval),
	})
	if err != nil {
		return err
	}
	report.Schedule = sched
	logger.Info("crawl started", zap.Int64("schedule_id", sched.ID), zap.Int("roots", len(ids)))

	res, err := s.ingester.Ingest(ctx, ids)
	report.Result = res
	metrics.AddCycleItems(string(category), res.Items)
	metrics.AddFailedRoots(string(category), res.Failed)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", category, err)
	}

	finished := s.clock.Now()
	if err := s.schedules.FinishCrawl(ctx, sched.ID, res.Items, finished); err != nil {
		return err
	}
	report.Schedule.FinishedAt = &finished
	report.Schedule.TotalItems = &res.Items
	logger.Info("crawl finished",
		zap.Int("crawled", res.Crawled),
		zap.Int("failed", res.Failed),
		zap.Int("items", res.Items),
		zap.Duration("elapsed", finished.Sub(now)),
	)

	if s.archiver != nil {
		uri, err := s.archiver.Archive(ctx, string(category), report.CycleID, now, res.Trees)
		if err != nil {
			logger.Warn("archive failed", zap.Error(err))
		} else {
			report.ArchiveURI = uri
		}
	}
	event := notify.CycleCompleted{
		Category:   string(category),
		CycleID:    report.CycleID,
		ScheduleID: sched.ID,
		StartedAt:  now,
		FinishedAt: finished,
		Requested:  res.Requested,
		Crawled:    res.Crawled,
		Failed:     res.Failed,
		Items:      res.Items,
		Users:      res.Users,
		ArchiveURI: report.ArchiveURI,
	}
	if _, err := s.publisher.Publish(ctx, event); err != nil {
		logger.Warn("publish cycle event failed", zap.Error(err))
	}
	return nil
}

// RunOnce makes one pass over the categories in order. A failing category is logged and
// the pass moves on. ctx is checked between categories; a started cycle is never interrupted.
func (s *Scheduler) RunOnce(ctx context.Context) {
	work := context.WithoutCancel(ctx)
	for _, c := range s.cfg.Categories {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.RunCategory(work, c, false); err != nil {
			s.logger.Error("crawl cycle failed", zap.String("category", string(c)), zap.Error(err))
		}
	}
}

// Run loops until ctx is canceled, sleeping PollInterval after each pass.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		zap.Int("categories", len(s.cfg.Categories)),
		zap.Duration("fetch_interval", s.cfg.FetchInterval),
		zap.Duration("poll_interval", s.cfg.PollInterval),
	)
	for ctx.Err() == nil {
		s.RunOnce(ctx)
		if err := s.sleep(ctx, s.cfg.PollInterval); err != nil {
			break
		}
	}
	s.logger.Info("scheduler stopped")
	return nil
}

func newCycleID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
