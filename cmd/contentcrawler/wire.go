package main

import (
	"context"
	"fmt"
	"os"

	gcsstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/gbif/content-crawler-sub000/internal/clock/system"
	"github.com/gbif/content-crawler-sub000/internal/config"
	"github.com/gbif/content-crawler-sub000/internal/contentstore"
	"github.com/gbif/content-crawler-sub000/internal/crawler"
	"github.com/gbif/content-crawler-sub000/internal/hash/sha256"
	"github.com/gbif/content-crawler-sub000/internal/id/uuid"
	"github.com/gbif/content-crawler-sub000/internal/index/elastic"
	indexmemory "github.com/gbif/content-crawler-sub000/internal/index/memory"
	"github.com/gbif/content-crawler-sub000/internal/logging"
	"github.com/gbif/content-crawler-sub000/internal/policy/ratelimit"
	"github.com/gbif/content-crawler-sub000/internal/progress"
	"github.com/gbif/content-crawler-sub000/internal/progress/sinks"
	memorypublisher "github.com/gbif/content-crawler-sub000/internal/publisher/memory"
	pubsubpublisher "github.com/gbif/content-crawler-sub000/internal/publisher/pubsub"
	"github.com/gbif/content-crawler-sub000/internal/storage/gcs"
	"github.com/gbif/content-crawler-sub000/internal/storage/local"
	storagememory "github.com/gbif/content-crawler-sub000/internal/storage/memory"
	"github.com/gbif/content-crawler-sub000/internal/storage/postgres"
	"github.com/gbif/content-crawler-sub000/internal/store"
)

// dependencies holds everything one crawl process needs.
type dependencies struct {
	logger    *zap.Logger
	snapshot  *contentstore.Snapshot
	writer    crawler.IndexWriter
	blobStore crawler.BlobStore
	publisher crawler.Publisher
	hasher    crawler.Hasher
	clock     crawler.Clock
	ids       crawler.IDGenerator
	ledger    store.RunRepository
	registry  *prometheus.Registry
	hub       *progress.Hub
	ready     func(ctx context.Context) error
	closers   []func()
}

// Close releases clients in reverse construction order.
func (d *dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func buildDependencies(ctx context.Context, cfg config.Config) (deps *dependencies, err error) {
	logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	deps = &dependencies{
		logger: logger,
		hasher: sha256.New(),
		clock:  system.New(),
		ids:    uuid.NewGenerator(),
	}
	deps.closers = append(deps.closers, func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	})
	defer func() {
		if err != nil {
			deps.Close()
			deps = nil
		}
	}()

	deps.snapshot, err = contentstore.LoadFile(cfg.ContentStore.SnapshotPath)
	if err != nil {
		return deps, fmt.Errorf("load content store: %w", err)
	}

	var pings []func(context.Context) error
	if cfg.Elasticsearch.DryRun {
		logger.Info("dry run: documents are kept in memory")
		deps.writer = indexmemory.NewWriter()
	} else {
		w, werr := elastic.NewWriter(elastic.Config{
			Addresses:       cfg.Elasticsearch.Addresses,
			Username:        cfg.Elasticsearch.Username,
			Password:        cfg.Elasticsearch.Password,
			Refresh:         cfg.Elasticsearch.Refresh,
			RetryOnConflict: cfg.Elasticsearch.RetryOnConflict,
		}, logger)
		if werr != nil {
			return deps, fmt.Errorf("init elasticsearch: %w", werr)
		}
		deps.writer = w
		pings = append(pings, w.Ping)
	}
	if cfg.Elasticsearch.MaxRequestsPerSecond > 0 {
		deps.writer = ratelimit.NewWriter(deps.writer, ratelimit.New(ratelimit.Config{
			RequestsPerSecond: cfg.Elasticsearch.MaxRequestsPerSecond,
			Burst:             cfg.Elasticsearch.Burst,
		}))
	}

	if err = deps.buildArchive(ctx, cfg.Archive); err != nil {
		return deps, err
	}
	if pings, err = deps.buildLedger(ctx, cfg.Ledger, pings); err != nil {
		return deps, err
	}

	switch {
	case cfg.PubSub.TopicName == "":
	case cfg.Elasticsearch.DryRun:
		deps.publisher = memorypublisher.New()
	default:
		pub, perr := pubsubpublisher.NewForProject(ctx, cfg.PubSub.ProjectID)
		if perr != nil {
			return deps, fmt.Errorf("init pubsub: %w", perr)
		}
		deps.publisher = pub
		deps.closers = append(deps.closers, func() {
			if cerr := pub.Close(); cerr != nil {
				logger.Warn("pubsub close failed", zap.Error(cerr))
			}
		})
	}

	deps.registry = prometheus.NewRegistry()
	deps.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promSink, err := sinks.NewPrometheusSink(deps.registry)
	if err != nil {
		return deps, fmt.Errorf("init progress metrics: %w", err)
	}
	deps.hub = progress.NewHub(progress.Config{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   cfg.ProgressBatchWait(),
		Logger:         logger.Named("progress"),
	},
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
		sinks.NewStoreSink(deps.ledger, logger.Named("ledger")),
	)

	deps.ready = func(ctx context.Context) error {
		for _, ping := range pings {
			if err := ping(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	return deps, nil
}

func (d *dependencies) buildArchive(ctx context.Context, cfg config.ArchiveConfig) error {
	switch cfg.Backend {
	case config.BackendLocal:
		bs, err := local.New(local.Config{BaseDir: cfg.Dir})
		if err != nil {
			return fmt.Errorf("init local archive: %w", err)
		}
		d.blobStore = bs
	case config.BackendGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		d.closers = append(d.closers, func() {
			if cerr := client.Close(); cerr != nil {
				d.logger.Warn("gcs client close failed", zap.Error(cerr))
			}
		})
		bs, err := gcs.New(client, gcs.Config{Bucket: cfg.Bucket})
		if err != nil {
			return fmt.Errorf("init gcs archive: %w", err)
		}
		d.blobStore = bs
	default:
		d.blobStore = storagememory.NewBlobStore()
	}
	return nil
}

func (d *dependencies) buildLedger(
	ctx context.Context,
	cfg config.LedgerConfig,
	pings []func(context.Context) error,
) ([]func(context.Context) error, error) {
	if cfg.Backend != config.BackendPostgres {
		d.ledger = storagememory.NewRunStore()
		return pings, nil
	}
	rs, err := postgres.NewRunStore(ctx, postgres.RunStoreConfig{
		DSN:      cfg.DSN,
		MaxConns: cfg.MaxConns,
		Migrate:  cfg.Migrate,
	})
	if err != nil {
		return pings, fmt.Errorf("init run ledger: %w", err)
	}
	d.ledger = rs
	d.closers = append(d.closers, rs.Close)
	return append(pings, rs.Ping), nil
}
