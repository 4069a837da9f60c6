package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"DigestRanker/internal/config"
	"DigestRanker/internal/digest"
	"DigestRanker/internal/finalize"
	"DigestRanker/internal/infrastructure/feed"
	"DigestRanker/internal/infrastructure/llm"
	"DigestRanker/internal/infrastructure/scheduler"
	"DigestRanker/internal/infrastructure/storage"
	"DigestRanker/internal/infrastructure/telegram"
	"DigestRanker/internal/logging"
	"DigestRanker/internal/metrics"
	"DigestRanker/internal/ports"
	"DigestRanker/internal/rerank"
	"DigestRanker/internal/retry"
	"DigestRanker/internal/scanner"
	"DigestRanker/internal/scoring"
	"DigestRanker/internal/selector"
	"DigestRanker/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// Options adjust how the application is wired for one invocation.
type Options struct {
	DryRun bool
	// Generator overrides the configured LLM backend.
	Generator ports.TextGenerator
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	formatter *digest.Formatter
	pipeline  *usecase.Pipeline
	collector *usecase.Collector
	scheduler *usecase.Scheduler
	closers   []func()
}

// New builds the adapters named by cfg and the use cases on top of them.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, opts Options) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}

	a := &Application{
		cfg:       cfg,
		logger:    baseLogger,
		metrics:   metrics.New(),
		formatter: digest.NewFormatter(cfg.Scheduler.Location()),
	}

	candidates, published, err := a.buildStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	gen := opts.Generator
	if gen == nil {
		gen, err = buildGenerator(cfg.LLM)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.Enabled() {
		tg := cfg.Notifications.Telegram
		notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID, tg.BaseURL)
	} else {
		baseLogger.Info("telegram is not configured, digests are only logged")
	}

	topics := make([]usecase.Topic, 0, len(cfg.Topics))
	limiter := buildLimiter(cfg.LLM)
	for _, t := range cfg.Topics {
		topics = append(topics, buildTopic(t, cfg.LLM, gen, limiter, baseLogger))
	}

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Store:     candidates,
		Published: published,
		Notifier:  notifier,
		Formatter: a.formatter,
		Metrics:   a.metrics,
		Logger:    baseLogger.With("component", "pipeline"),
		Topics:    topics,
		DryRun:    opts.DryRun,
	})

	registry := scanner.NewRegistry(feed.NewRSSScanner(nil), feed.NewHTMLScanner(nil))
	source := feed.NewStrategySource(registry, cfg.Topics, cfg.Scheduler.Location(), baseLogger.With("component", "source"))
	a.collector = usecase.NewCollector(source, candidates, a.metrics, baseLogger.With("component", "collector"), nil)

	hour, minute, err := cfg.Scheduler.TimeOfDay()
	if err != nil {
		a.Close()
		return nil, err
	}
	driver := scheduler.NewDailyScheduler(hour, minute, cfg.Scheduler.Location(), cfg.Scheduler.SkipWeekends)
	a.scheduler = usecase.NewScheduler(driver, a.collector, a.pipeline, baseLogger.With("component", "scheduler"))

	return a, nil
}

// Formatter exposes the digest formatter for previews.
func (a *Application) Formatter() *digest.Formatter {
	return a.formatter
}

// Run executes one pipeline run for topic, or for every topic when topic is empty.
func (a *Application) Run(ctx context.Context, topic string) ([]usecase.RunReport, error) {
	if topic == "" {
		return a.pipeline.RunAll(ctx)
	}
	report, err := a.pipeline.Run(ctx, topic)
	return []usecase.RunReport{report}, err
}

// Collect pulls feeds for topic, or for every topic when topic is empty.
func (a *Application) Collect(ctx context.Context, topic string) (int, error) {
	if topic == "" {
		return a.collector.CollectAll(ctx, a.pipeline.Topics())
	}
	return a.collector.Collect(ctx, topic)
}

// Serve starts the daily scheduler and the metrics endpoint and blocks until
// ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	server := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           a.metricsMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	if a.cfg.Metrics.Addr != "" {
		go func() {
			a.logger.Info("metrics endpoint listening", "addr", a.cfg.Metrics.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started",
		"run_at", a.cfg.Scheduler.RunAt,
		"timezone", a.cfg.Scheduler.Location().String(),
		"skip_weekends", a.cfg.Scheduler.SkipWeekends)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler stop", "error", err)
	}
	if a.cfg.Metrics.Addr != "" {
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("metrics shutdown", "error", err)
		}
	}
	return runErr
}

// Close releases store connections.
func (a *Application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *Application) metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (a *Application) buildStore(ctx context.Context) (ports.CandidateStore, ports.PublishedStore, error) {
	switch strings.ToLower(a.cfg.Store.Driver) {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, a.cfg.Store.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		repo := storage.NewPostgresRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			return nil, nil, err
		}
		return repo, repo, nil
	case config.StoreRedis:
		store := storage.NewRedisStore(a.cfg.Store.RedisAddr)
		a.closers = append(a.closers, func() { _ = store.Close() })
		return store, store, nil
	default:
		store := storage.NewMemoryStore()
		return store, store, nil
	}
}

func buildGenerator(cfg config.LLMConfig) (ports.TextGenerator, error) {
	var (
		gen ports.TextGenerator
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case config.ProviderOllama:
		gen, err = llm.NewOllamaGenerator(cfg)
		if err != nil {
			return nil, err
		}
	default:
		gen = llm.NewChatGPTClient(cfg)
	}

	if cfg.CacheSize <= 0 {
		return gen, nil
	}
	return llm.NewCachedGenerator(gen, cfg.CacheSize)
}

func buildLimiter(cfg config.LLMConfig) *rate.Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Concurrency
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}

func buildTopic(t config.TopicConfig, llmCfg config.LLMConfig, gen ports.TextGenerator, limiter *rate.Limiter, logger *slog.Logger) usecase.Topic {
	buckets := make([]selector.Bucket, 0, len(t.Buckets))
	for _, b := range t.Buckets {
		buckets = append(buckets, selector.Bucket{Source: b.Source, Cap: b.Cap})
	}

	prompt := t.SystemPrompt
	if strings.TrimSpace(prompt) == "" {
		prompt = llmCfg.SystemPrompt
	}

	return usecase.Topic{
		Name: t.Name,
		Scorer: scoring.New(scoring.Config{
			KeywordWeights:    t.Scoring.KeywordWeights,
			IssueKeywords:     t.Scoring.IssueKeywords,
			ProductKeywords:   t.Scoring.ProductKeywords,
			RecencyWindows:    t.Scoring.RecencyWindows,
			RepetitionPenalty: t.Scoring.Penalty(),
			RecencyWeight:     t.Scoring.RecencyWeight,
			KeywordWeight:     t.Scoring.KeywordWeight,
			BoostWeight:       t.Scoring.BoostWeight,
		}),
		Selection: selector.Config{
			Buckets:    buckets,
			DefaultCap: t.DefaultCap,
			MaxAge:     time.Duration(t.MaxAgeDays) * 24 * time.Hour,
		},
		Reranker: rerank.New(gen, rerank.Options{
			Concurrency:   llmCfg.Concurrency,
			Timeout:       llmCfg.Timeout,
			MaxInputChars: llmCfg.MaxInputChars,
			SystemPrompt:  prompt,
			Limiter:       limiter,
			Retry: retry.Config{
				MaxAttempts:   llmCfg.Retry.MaxAttempts,
				BaseDelay:     llmCfg.Retry.BaseDelay,
				MaxDelay:      llmCfg.Retry.MaxDelay,
				BackoffFactor: llmCfg.Retry.BackoffFactor,
				JitterFactor:  llmCfg.Retry.JitterFactor,
			},
		}, logger.With("component", "rerank", "topic", t.Name)),
		Finalize: finalize.Options{
			TopK:           t.TopK,
			RequireSummary: t.RequireSummary,
			LLMWeight:      t.Ranking.LLMWeight,
			RuleWeight:     t.Ranking.RuleWeight,
		},
		NotifyEmpty: t.NotifyEmpty,
	}
}
