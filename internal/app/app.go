// Package app initializes and holds long-lived application services, acting as a dependency
// injection container for the commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/hnmirror/internal/api"
	"github.com/JakeFAU/hnmirror/internal/archive"
	"github.com/JakeFAU/hnmirror/internal/archive/gcs"
	"github.com/JakeFAU/hnmirror/internal/archive/local"
	"github.com/JakeFAU/hnmirror/internal/clock"
	"github.com/JakeFAU/hnmirror/internal/config"
	"github.com/JakeFAU/hnmirror/internal/crawler"
	"github.com/JakeFAU/hnmirror/internal/gate"
	"github.com/JakeFAU/hnmirror/internal/hn"
	"github.com/JakeFAU/hnmirror/internal/ingest"
	"github.com/JakeFAU/hnmirror/internal/notify"
	notifymem "github.com/JakeFAU/hnmirror/internal/notify/memory"
	notifyps "github.com/JakeFAU/hnmirror/internal/notify/pubsub"
	"github.com/JakeFAU/hnmirror/internal/scheduler"
	"github.com/JakeFAU/hnmirror/internal/storage/postgres"
	"github.com/JakeFAU/hnmirror/internal/storage/sqlite"
	"github.com/JakeFAU/hnmirror/internal/store"
	"github.com/JakeFAU/hnmirror/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// Version is reported as the service version in traces.
var Version = "dev"

// App holds the shared, long-lived services. It is built once per command and closed on exit.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     store.Store
	client    *hn.Client
	pipeline  *ingest.Pipeline
	scheduler *scheduler.Scheduler
	server    *api.Server
	closers   []closer
}

type closer struct {
	name string
	fn   func() error
}

type options struct {
	httpClient *http.Client
	clock      clock.Clock
	publisher  notify.Publisher
}

// Option overrides a collaborator, mainly for tests.
type Option func(*options)

// WithHTTPClient sets the client used for remote API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithClock replaces the system clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithPublisher replaces the configured notify provider.
func WithPublisher(p notify.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// New builds every service named by cfg. On error, whatever was already opened is closed.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{clock: clock.System{}}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	logger.Info("initializing application services",
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("archive", cfg.Archive.Provider),
		zap.String("notify", cfg.Notify.Provider),
	)

	if cfg.Telemetry.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Version:     Version,
			ProjectID:   cfg.Telemetry.ProjectID,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.addCloser("tracer", func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return tp.Shutdown(shutdownCtx)
		})
	}

	a.store, err = openStore(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	a.addCloser("store", a.store.Close)

	a.client, err = hn.NewClient(hn.Config{
		BaseURL:           cfg.HN.BaseURL,
		Timeout:           cfg.HN.Timeout,
		MaxRetries:        cfg.HN.MaxRetries,
		BackoffInitial:    cfg.HN.BackoffInitial,
		BackoffMax:        cfg.HN.BackoffMax,
		RequestsPerSecond: cfg.HN.RequestsPerSecond,
		Burst:             cfg.HN.Burst,
		UserAgent:         cfg.HN.UserAgent,
	}, o.httpClient, logger.Named("hn"))
	if err != nil {
		return nil, fmt.Errorf("init remote client: %w", err)
	}

	pools, err := gate.NewPools(gate.PoolsConfig{
		RootCapacity:    cfg.Gates.RootCapacity,
		RootQueueDepth:  cfg.Gates.RootQueueDepth,
		ChildCapacity:   cfg.Gates.ChildCapacity,
		ChildQueueDepth: cfg.Gates.ChildQueueDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("init gates: %w", err)
	}

	a.pipeline = ingest.NewPipeline(
		crawler.New(a.client, pools, logger),
		ingest.NewResolver(a.client, a.store, pools.Root, o.clock, logger),
		ingest.NewPersister(a.store, cfg.Persist.BatchSize, o.clock, logger),
		logger,
	)

	archiver, err := a.newArchiver(ctx)
	if err != nil {
		return nil, err
	}
	publisher := o.publisher
	if publisher == nil {
		publisher, err = a.newPublisher(ctx)
		if err != nil {
			return nil, err
		}
	}

	categories, err := cfg.Categories()
	if err != nil {
		return nil, fmt.Errorf("parse categories: %w", err)
	}
	deps := scheduler.Deps{
		Lister:    a.client,
		Ingester:  a.pipeline,
		Schedules: a.store,
		Publisher: publisher,
		Clock:     o.clock,
		Logger:    logger,
	}
	if archiver != nil {
		deps.Archiver = archiver
	}
	a.scheduler, err = scheduler.New(scheduler.Config{
		Categories:    categories,
		FetchInterval: cfg.Scheduler.FetchInterval,
		PollInterval:  cfg.Scheduler.PollInterval,
		MaxStories:    cfg.Scheduler.MaxStories,
	}, deps)
	if err != nil {
		return nil, fmt.Errorf("init scheduler: %w", err)
	}

	a.server = api.NewServer(a.store, a.scheduler, logger)

	logger.Info("application services initialized")
	return a, nil
}

func openStore(ctx context.Context, cfg config.DBConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.DSN,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		return s, nil
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown db driver: %s", cfg.Driver)
	}
}

func (a *App) newArchiver(ctx context.Context) (*archive.Archiver, error) {
	var blobs archive.BlobStore
	switch a.cfg.Archive.Provider {
	case config.ProviderNone, "":
		return nil, nil
	case config.ProviderLocal:
		s, err := local.New(local.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		blobs = s
	case config.ProviderGCS:
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.addCloser("gcs", client.Close)
		s, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Archive.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		blobs = s
	default:
		return nil, fmt.Errorf("unknown archive provider: %s", a.cfg.Archive.Provider)
	}
	arch, err := archive.New(blobs, a.cfg.Archive.Prefix)
	if err != nil {
		return nil, fmt.Errorf("init archive: %w", err)
	}
	return arch, nil
}

func (a *App) newPublisher(ctx context.Context) (notify.Publisher, error) {
	switch a.cfg.Notify.Provider {
	case config.ProviderNone, "":
		return notify.Noop{}, nil
	case config.ProviderMemory:
		return notifymem.New(), nil
	case config.ProviderPubSub:
		client, err := pubsub.NewClient(ctx, a.cfg.Notify.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		a.addCloser("pubsub", client.Close)
		p := notifyps.New(client.Topic(a.cfg.Notify.Topic))
		a.addCloser("pubsub topic", func() error {
			p.Close()
			return nil
		})
		return p, nil
	default:
		return nil, fmt.Errorf("unknown notify provider: %s", a.cfg.Notify.Provider)
	}
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the configured store.
func (a *App) Store() store.Store { return a.store }

// Scheduler returns the crawl scheduler.
func (a *App) Scheduler() *scheduler.Scheduler { return a.scheduler }

// Handler returns the admin HTTP handler.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Migrate applies the storage schema.
func (a *App) Migrate(ctx context.Context) error {
	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Serve runs the scheduler loop and, when enabled, the admin server until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scheduler.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
			Handler:           a.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("http server shutdown: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("shutdown complete")
	return nil
}

// Close releases every service in reverse order of creation and flushes the logger.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("close failed", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
	// stderr sync fails on some platforms; nothing useful to do about it
	_ = a.logger.Sync()
}
