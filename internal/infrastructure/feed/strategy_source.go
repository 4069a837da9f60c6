package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"DigestRanker/internal/config"
	"DigestRanker/internal/domain"
	"DigestRanker/internal/ports"
	"DigestRanker/internal/scanner"
)

// StrategySource implements CandidateSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	feeds    map[string][]config.FeedConfig
	loc      *time.Location
	logger   *slog.Logger
}

var _ ports.CandidateSource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry with the feeds of every topic.
// Zone-less feed dates are read in loc.
func NewStrategySource(reg *scanner.Registry, topics []config.TopicConfig, loc *time.Location, log *slog.Logger) *StrategySource {
	feeds := make(map[string][]config.FeedConfig, len(topics))
	for _, t := range topics {
		feeds[t.Name] = t.Feeds
	}
	return &StrategySource{
		registry: reg,
		feeds:    feeds,
		loc:      loc,
		logger:   log,
	}
}

// Fetch runs every feed of topic. A failing feed does not stop the others:
// candidates from healthy feeds are returned together with the joined errors.
func (s *StrategySource) Fetch(ctx context.Context, topic string, now time.Time) ([]domain.Candidate, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}
	feeds, ok := s.feeds[topic]
	if !ok {
		return nil, fmt.Errorf("topic %s has no feeds configured", topic)
	}

	s.debug("fetch topic", "topic", topic, "feeds", len(feeds))

	var (
		aggregated []domain.Candidate
		errs       []error
	)
	for _, f := range feeds {
		if err := ctx.Err(); err != nil {
			return aggregated, err
		}

		strategy, err := s.registry.Resolve(f.Scanner)
		if err != nil {
			errs = append(errs, fmt.Errorf("feed %s: %w", f.Source, err))
			continue
		}

		results, err := strategy.Scan(ctx, scanner.Request{
			Topic:    topic,
			Source:   f.Source,
			URL:      f.URL,
			Options:  f.Options,
			Now:      now,
			Location: s.loc,
		})
		if err != nil {
			s.warn("feed failed", "topic", topic, "source", f.Source, "url", f.URL, "error", err)
			errs = append(errs, fmt.Errorf("scan feed %s: %w", f.Source, err))
			continue
		}

		for i := range results {
			results[i].Topic = topic
			if results[i].Source == "" {
				results[i].Source = f.Source
			}
		}
		s.debug("feed produced candidates", "source", f.Source, "count", len(results))
		aggregated = append(aggregated, results...)
	}

	s.debug("strategy source done", "topic", topic, "total_candidates", len(aggregated))
	return aggregated, errors.Join(errs...)
}

func (s *StrategySource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *StrategySource) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
