package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"DigestRanker/internal/digest"
	"DigestRanker/internal/domain"
	"DigestRanker/internal/finalize"
	"DigestRanker/internal/metrics"
	"DigestRanker/internal/ports"
	"DigestRanker/internal/rerank"
	"DigestRanker/internal/scoring"
	"DigestRanker/internal/selector"
)

// Topic bundles the per-topic collaborators of one digest.
type Topic struct {
	Name        string
	Scorer      *scoring.Scorer
	Selection   selector.Config
	Reranker    *rerank.Reranker
	Finalize    finalize.Options
	NotifyEmpty bool
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Store     ports.CandidateStore
	Published ports.PublishedStore
	Notifier  ports.Notifier
	Formatter *digest.Formatter
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Now       func() time.Time
	Topics    []Topic
	// DryRun builds the digest without delivering or marking anything.
	DryRun bool
}

// RunReport summarises one topic run.
type RunReport struct {
	RunID     string
	Topic     string
	Stage     domain.RunStage
	Fetched   int
	Selection selector.Selection
	LLM       rerank.Stats
	Digest    domain.Digest
	// Empty is the silent "no output this cycle" outcome.
	Empty     bool
	Delivered bool
	Marked    bool
	Duration  time.Duration
}

// Pipeline implements fetch, select, rerank, finalize and publish for each topic.
type Pipeline struct {
	store     ports.CandidateStore
	published ports.PublishedStore
	publisher *finalize.Publisher
	notifier  ports.Notifier
	formatter *digest.Formatter
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
	topics    []Topic
	dryRun    bool
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Formatter == nil {
		deps.Formatter = digest.NewFormatter(time.UTC)
	}
	return &Pipeline{
		store:     deps.Store,
		published: deps.Published,
		publisher: finalize.NewPublisher(deps.Published),
		notifier:  deps.Notifier,
		formatter: deps.Formatter,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       deps.Now,
		topics:    deps.Topics,
		dryRun:    deps.DryRun,
	}
}

// Topics lists configured topic names in order.
func (p *Pipeline) Topics() []string {
	names := make([]string, 0, len(p.topics))
	for _, t := range p.topics {
		names = append(names, t.Name)
	}
	return names
}

// RunAll runs every topic. A failing topic does not stop the rest; the
// failures are returned joined.
func (p *Pipeline) RunAll(ctx context.Context) ([]RunReport, error) {
	reports := make([]RunReport, 0, len(p.topics))
	var errs []error
	for _, t := range p.topics {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report, err := p.Run(ctx, t.Name)
		if err != nil {
			errs = append(errs, err)
		}
		reports = append(reports, report)
	}
	return reports, errors.Join(errs...)
}

// Run executes one pipeline run for topic. Any error leaves every published
// flag untouched so the next run starts from the same candidates.
func (p *Pipeline) Run(ctx context.Context, topic string) (report RunReport, err error) {
	start := p.now()
	report = RunReport{RunID: uuid.NewString(), Topic: topic}
	log := p.logger.With("topic", topic, "run_id", report.RunID)

	defer func() {
		report.Duration = p.now().Sub(start)
		status := metrics.StatusOK
		switch {
		case err != nil:
			status = metrics.StatusFailed
			log.Error("pipeline run failed", "stage", report.Stage.String(), "error", err)
		case report.Empty:
			status = metrics.StatusEmpty
		}
		p.metrics.RecordRun(topic, status, report.Duration)
	}()

	t, ok := p.topic(topic)
	if !ok {
		return report, fmt.Errorf("topic %s is not configured", topic)
	}
	if p.store == nil || t.Reranker == nil || t.Scorer == nil {
		return report, fmt.Errorf("topic %s: pipeline is missing a store, scorer or reranker", topic)
	}

	var tracker domain.RunTracker
	advance := func(stage domain.RunStage, n int) error {
		if err := tracker.Advance(stage); err != nil {
			return err
		}
		report.Stage = stage
		p.metrics.SetStage(topic, stage.String(), n)
		return nil
	}

	candidates, err := p.fetch(ctx, topic)
	if err != nil {
		return report, fmt.Errorf("topic %s: %w", topic, err)
	}
	report.Fetched = len(candidates)
	if err := advance(domain.StageFetched, len(candidates)); err != nil {
		return report, err
	}

	sel := selector.New(t.Scorer, p.now).Select(candidates, t.Selection)
	report.Selection = sel
	if err := advance(domain.StageRuleScored, len(candidates)-sel.DroppedInvalid-sel.DroppedDuplicate-sel.DroppedPublished-sel.DroppedStale); err != nil {
		return report, err
	}
	if err := advance(domain.StageSelected, len(sel.Candidates)); err != nil {
		return report, err
	}
	log.Debug("candidates selected",
		"fetched", len(candidates),
		"selected", len(sel.Candidates),
		"dropped_published", sel.DroppedPublished,
		"dropped_invalid", sel.DroppedInvalid,
		"dropped_duplicate", sel.DroppedDuplicate,
		"dropped_stale", sel.DroppedStale,
		"dropped_over_cap", sel.DroppedOverCap)

	scored, stats, err := t.Reranker.Rerank(ctx, sel.Candidates)
	report.LLM = stats
	p.metrics.RecordLLM(topic, stats.Scored, stats.Rejected, stats.Failed)
	if err != nil {
		return report, fmt.Errorf("topic %s: %w", topic, err)
	}
	if err := advance(domain.StageLLMScored, stats.Scored); err != nil {
		return report, err
	}

	d := finalize.Finalize(scored, t.Finalize)
	d.Topic = topic
	d.RunID = report.RunID
	d.GeneratedAt = p.now()
	report.Digest = d
	p.metrics.SetDigestSize(topic, len(d.Entries))
	if err := advance(domain.StageFinalized, len(d.Entries)); err != nil {
		return report, err
	}

	if d.Empty() {
		report.Empty = true
		log.Info("no output this cycle", "selected", len(sel.Candidates), "llm_failed", stats.Failed)
		if t.NotifyEmpty && !p.dryRun && p.notifier != nil {
			if err := p.notifier.PublishDigest(ctx, p.formatter.EmptyMessage(topic, d.GeneratedAt)); err != nil {
				return report, fmt.Errorf("topic %s: deliver empty notice: %w", topic, err)
			}
			report.Delivered = true
		}
		return report, nil
	}

	if p.dryRun {
		log.Info("dry run finished", "entries", len(d.Entries))
		return report, nil
	}

	if p.notifier != nil {
		if err := p.notifier.PublishDigest(ctx, p.formatter.Message(d)); err != nil {
			return report, fmt.Errorf("topic %s: deliver digest: %w", topic, err)
		}
		report.Delivered = true
	}

	if err := p.publisher.Publish(ctx, d); err != nil {
		return report, fmt.Errorf("topic %s: %w", topic, err)
	}
	report.Marked = p.published != nil
	if err := advance(domain.StagePublished, len(d.Entries)); err != nil {
		return report, err
	}

	log.Info("digest published",
		"entries", len(d.Entries),
		"llm_scored", stats.Scored,
		"llm_rejected", stats.Rejected,
		"llm_failed", stats.Failed,
		"delivered", report.Delivered)
	return report, nil
}

// fetch loads the topic's unpublished candidates and stamps the published
// flag the idempotency store reports for each URL.
func (p *Pipeline) fetch(ctx context.Context, topic string) ([]domain.Candidate, error) {
	candidates, err := p.store.ListUnpublished(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	for i := range candidates {
		candidates[i].Topic = topic
	}
	if p.published == nil || len(candidates) == 0 {
		return candidates, nil
	}

	urls := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c.URL != "" {
			urls = append(urls, c.URL)
		}
	}
	flags, err := p.published.Published(ctx, topic, urls)
	if err != nil {
		return nil, fmt.Errorf("load published flags: %w", err)
	}
	for i := range candidates {
		if flags[candidates[i].URL] {
			candidates[i].Published = true
		}
	}
	return candidates, nil
}

func (p *Pipeline) topic(name string) (Topic, bool) {
	for _, t := range p.topics {
		if t.Name == name {
			return t, true
		}
	}
	return Topic{}, false
}
