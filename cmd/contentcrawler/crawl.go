package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gbif/content-crawler-sub000/internal/api"
	"github.com/gbif/content-crawler-sub000/internal/config"
	"github.com/gbif/content-crawler-sub000/internal/crawler"
	"github.com/gbif/content-crawler-sub000/internal/metrics"
	"github.com/gbif/content-crawler-sub000/internal/orchestrator"
)

const shutdownTimeout = 10 * time.Second

func newCrawlCmd(cfgFile *string) *cobra.Command {
	var reindex bool
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl of every configured content type",
		Long: `Crawls every configured content type in priority order, writing one
index per content type and applying back-reference tags. Only configuration
errors abort the run; per-content-type failures are reported in the summary.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("reindex") {
				cfg.Crawl.DeleteIndex = reindex
			}
			return runCrawl(cmd.Context(), cfg)
		},
	}
	cmd.Flags().BoolVar(&reindex, "reindex", false, "delete and recreate every crawled index")
	return cmd
}

func runCrawl(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := buildDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()
	logger := deps.logger

	if cfg.Server.Enabled {
		srv := startServer(cfg, deps, stop)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown error", zap.Error(err))
			}
		}()
	}

	orch := orchestrator.New(
		deps.snapshot,
		deps.snapshot,
		deps.writer,
		deps.blobStore,
		deps.hasher,
		deps.publisher,
		deps.clock,
		deps.ids,
		deps.hub,
		orchestratorConfig(cfg),
		logger.Named("orchestrator"),
	)
	summary, runErr := orch.Run(ctx)

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := deps.hub.Close(flushCtx); err != nil {
		logger.Warn("progress hub close failed", zap.Error(err))
	}
	if dropped := deps.hub.Dropped(); dropped > 0 {
		logger.Warn("progress events dropped", zap.Int64("count", dropped))
	}

	logSummary(logger, summary)
	if runErr != nil {
		if crawler.IsFatal(runErr) {
			return fmt.Errorf("crawl aborted: %w", runErr)
		}
		return fmt.Errorf("crawl failed: %w", runErr)
	}
	if len(summary.Failed) > 0 {
		return fmt.Errorf("crawl finished with %d failed content types", len(summary.Failed))
	}
	return nil
}

func startServer(cfg config.Config, deps *dependencies, stop context.CancelFunc) *http.Server {
	logger := deps.logger.Named("api")
	httpMetrics, err := metrics.NewHTTP(deps.registry)
	if err != nil {
		logger.Warn("http metrics disabled", zap.Error(err))
	}
	apiServer := api.NewServer(deps.ledger, deps.registry, httpMetrics, deps.ready, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()
	return srv
}

func orchestratorConfig(cfg config.Config) orchestrator.Config {
	cts := make([]orchestrator.ContentType, 0, len(cfg.Crawl.ContentTypes))
	for _, ct := range cfg.Crawl.ContentTypes {
		cts = append(cts, orchestrator.ContentType{
			ID:       ct.ID,
			Index:    ct.Index,
			Label:    ct.Type,
			Priority: ct.Priority,
		})
	}
	return orchestrator.Config{
		DefaultLocale:       cfg.ContentStore.DefaultLocale,
		ContentTypes:        cts,
		VocabularyIDs:       cfg.Vocabulary.IDs,
		CountryVocabularyID: cfg.Vocabulary.CountryID,
		TagTargets:          cfg.Tagging.Targets,
		Reindex:             cfg.Crawl.DeleteIndex,
		PageSize:            cfg.ContentStore.PageSize,
		TagConcurrency:      cfg.Tagging.Concurrency,
		TagBuffer:           cfg.Tagging.Buffer,
		ReplayMissing:       cfg.Tagging.ReplayMissing,
		ArchivePrefix:       cfg.Archive.Prefix,
		Topic:               cfg.PubSub.TopicName,
		DrainTimeout:        cfg.TagDrainTimeout(),
	}
}

func logSummary(logger *zap.Logger, summary orchestrator.Summary) {
	for _, res := range summary.ContentTypes {
		logger.Info("content type indexed",
			zap.String("content_type", res.ContentType),
			zap.String("index", res.Index),
			zap.Int("indexed", res.Indexed),
			zap.Int("failed", res.Failed),
			zap.Int("skipped", res.Skipped),
			zap.Bool("recreated", res.Recreated),
			zap.Duration("duration", res.Duration),
		)
	}
	for ct, reason := range summary.Failed {
		logger.Warn("content type failed", zap.String("content_type", ct), zap.String("error", reason))
	}
	fields := []zap.Field{
		zap.String("run_id", summary.RunID),
		zap.Int64("tags_applied", summary.Tags.Applied),
		zap.Int64("tags_unchanged", summary.Tags.Unchanged),
		zap.Int64("tags_missing", summary.Tags.Missing),
		zap.Int64("tags_failed", summary.Tags.Failed),
		zap.Int64("tags_dropped", summary.Tags.Dropped),
	}
	if summary.Replay != nil {
		fields = append(fields,
			zap.Int("replay_attempted", summary.Replay.Attempted),
			zap.Int("replay_applied", summary.Replay.Applied),
			zap.Int("replay_dropped", summary.Replay.Dropped),
		)
	}
	if !summary.StartedAt.IsZero() && !summary.FinishedAt.IsZero() {
		fields = append(fields, zap.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)))
	}
	logger.Info("crawl finished", fields...)
}
