package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"DigestRanker/internal/metrics"
	"DigestRanker/internal/ports"
)

// Collector pulls candidates from the configured feeds into the store.
type Collector struct {
	source  ports.CandidateSource
	store   ports.CandidateStore
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewCollector wires a source to a store.
func NewCollector(source ports.CandidateSource, store ports.CandidateStore, m *metrics.Metrics, logger *slog.Logger, now func() time.Time) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Collector{source: source, store: store, metrics: m, logger: logger, now: now}
}

// Collect fetches topic and saves whatever arrived, even when some feeds
// failed. It returns the number of newly stored candidates.
func (c *Collector) Collect(ctx context.Context, topic string) (int, error) {
	if c.source == nil || c.store == nil {
		return 0, fmt.Errorf("collector is missing a source or store")
	}

	candidates, fetchErr := c.source.Fetch(ctx, topic, c.now())
	if len(candidates) == 0 {
		if fetchErr != nil {
			return 0, fmt.Errorf("collect %s: %w", topic, fetchErr)
		}
		c.logger.Info("nothing to collect", "topic", topic)
		return 0, nil
	}

	for i := range candidates {
		candidates[i].Topic = topic
	}
	inserted, err := c.store.Save(ctx, candidates)
	if err != nil {
		return inserted, fmt.Errorf("collect %s: save candidates: %w", topic, err)
	}
	c.metrics.RecordCollected(topic, inserted)
	c.logger.Info("candidates collected", "topic", topic, "fetched", len(candidates), "inserted", inserted)

	if fetchErr != nil {
		return inserted, fmt.Errorf("collect %s: %w", topic, fetchErr)
	}
	return inserted, nil
}

// CollectAll collects every topic and joins the failures.
func (c *Collector) CollectAll(ctx context.Context, topics []string) (int, error) {
	total := 0
	var errs []error
	for _, topic := range topics {
		n, err := c.Collect(ctx, topic)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}
