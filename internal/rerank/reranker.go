// Package rerank asks a text generator to score each selected candidate and
// reads the free-form answers back into structured verdicts.
package rerank

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"DigestRanker/internal/domain"
	"DigestRanker/internal/ports"
	"DigestRanker/internal/retry"
)

const (
	defaultConcurrency   = 5
	defaultTimeout       = 60 * time.Second
	defaultMaxInputChars = 1500
)

// DefaultSystemPrompt is the scoring rubric sent with every request.
const DefaultSystemPrompt = `You rate how relevant a post is for a daily digest read by engineers and product owners.
Score from 0 (irrelevant, spam, advertising) to 100 (must read today).
Reply with a single line of JSON and nothing else:
{"score": <0-100>, "summary": "<one or two sentences>", "topic": "<label of at most 10 characters>"}`

// Options tune the dispatch and retry behaviour.
type Options struct {
	Concurrency   int
	Timeout       time.Duration
	MaxInputChars int
	SystemPrompt  string
	// Limiter, when set, spaces out request starts.
	Limiter *rate.Limiter
	Retry   retry.Config
}

// Stats summarises one batch.
type Stats struct {
	Scored   int
	Rejected int
	Failed   int
}

// Reranker scores candidates through a TextGenerator.
type Reranker struct {
	gen     ports.TextGenerator
	opts    Options
	retrier *retry.Retrier
	logger  *slog.Logger
}

// New fills unset options with defaults.
func New(gen ports.TextGenerator, opts Options, logger *slog.Logger) *Reranker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = defaultMaxInputChars
	}
	if strings.TrimSpace(opts.SystemPrompt) == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{
		gen:     gen,
		opts:    opts,
		retrier: retry.New(opts.Retry, domain.IsTransient, logger),
		logger:  logger,
	}
}

// Rerank scores every candidate and returns them in input order. Calls that
// fail after retries leave the candidate marked Failed with a zero score. The
// error is non-nil only if ctx ends or every call in a non-empty batch failed.
func (r *Reranker) Rerank(ctx context.Context, candidates []domain.ScoredCandidate) ([]domain.ScoredCandidate, Stats, error) {
	results := make([]domain.ScoredCandidate, len(candidates))
	copy(results, candidates)
	if len(candidates) == 0 {
		return results, Stats{}, nil
	}

	sem := semaphore.NewWeighted(int64(r.opts.Concurrency))
	var g errgroup.Group

	var dispatchErr error
	for i := range results {
		i := i
		if err := sem.Acquire(ctx, 1); err != nil {
			dispatchErr = err
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			r.scoreOne(ctx, &results[i])
			return nil
		})
	}
	_ = g.Wait()

	if dispatchErr != nil {
		return results, Stats{}, fmt.Errorf("dispatch llm calls: %w", dispatchErr)
	}
	if err := ctx.Err(); err != nil {
		return results, Stats{}, fmt.Errorf("llm stage: %w", err)
	}

	var stats Stats
	for _, c := range results {
		switch {
		case c.Failed:
			stats.Failed++
		case c.Rejected:
			stats.Rejected++
		default:
			stats.Scored++
		}
	}
	if stats.Failed == len(results) {
		return results, stats, fmt.Errorf("%w: all %d calls failed", domain.ErrLLMUnavailable, stats.Failed)
	}
	return results, stats, nil
}

func (r *Reranker) scoreOne(ctx context.Context, c *domain.ScoredCandidate) {
	input := BuildInput(c.Candidate, r.opts.MaxInputChars)

	var raw string
	err := r.retrier.Do(ctx, func(ctx context.Context, attempt int) error {
		if r.opts.Limiter != nil {
			if err := r.opts.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()

		out, err := r.gen.Generate(callCtx, r.opts.SystemPrompt, input)
		if err != nil {
			return err
		}
		raw = out
		return nil
	})
	if err != nil {
		c.Failed = true
		c.LLMScore = 0
		r.logger.Warn("llm scoring failed, degrading to zero",
			"url", c.URL,
			"transient", domain.IsTransient(err),
			"error", err)
		return
	}

	v := Parse(raw)
	c.LLMScore = v.Score
	c.HasLLMScore = !v.Rejected
	c.Rejected = v.Rejected
	c.Summary = v.Summary
	c.Topic = v.Topic
	if v.Rejected {
		r.logger.Debug("llm output rejected", "url", c.URL, "raw", truncateRunes(raw, 200, "..."))
	}
}

// BuildInput renders the per-candidate prompt with the body cut to maxChars runes.
func BuildInput(c domain.Candidate, maxChars int) string {
	var b strings.Builder
	b.WriteString("[Title] ")
	b.WriteString(strings.TrimSpace(c.Title))
	b.WriteString("\n[Body] ")
	b.WriteString(truncateRunes(strings.TrimSpace(c.Body), maxChars, "..."))
	b.WriteString("\n[Link] ")
	b.WriteString(c.URL)
	if c.Source != "" {
		b.WriteString("\n[Source] ")
		b.WriteString(c.Source)
	}
	if ref := c.ReferenceTime(); !ref.IsZero() {
		b.WriteString("\n[Date] ")
		b.WriteString(ref.Format("2006-01-02"))
	}
	return b.String()
}
