// Package selector narrows a raw candidate batch down to the bounded set that
// is worth sending to the LLM stage.
package selector

import (
	"sort"
	"time"

	"DigestRanker/internal/domain"
	"DigestRanker/internal/scoring"
)

// Bucket caps one source partition.
type Bucket struct {
	Source string
	Cap    int
}

// Config describes partition caps and the optional age filter.
type Config struct {
	// Buckets are emitted in this order.
	Buckets []Bucket
	// DefaultCap applies to sources without a bucket; 0 excludes them.
	DefaultCap int
	// MaxAge drops candidates older than this; zero disables the filter.
	MaxAge time.Duration
}

// Selection is the selector output plus drop counters for logging.
type Selection struct {
	Candidates       []domain.ScoredCandidate
	DroppedPublished int
	DroppedInvalid   int
	DroppedDuplicate int
	DroppedStale     int
	DroppedOverCap   int
}

// Selector is pure apart from the clock used for the age filter.
type Selector struct {
	scorer *scoring.Scorer
	now    func() time.Time
}

// New builds a selector around the rule scorer.
func New(scorer *scoring.Scorer, now func() time.Time) *Selector {
	if now == nil {
		now = time.Now
	}
	return &Selector{scorer: scorer, now: now}
}

// Select drops published, invalid, duplicate and stale candidates, scores each
// source partition as its own batch, and truncates partitions to their caps.
// Partition order: configured buckets first, then remaining sources by name.
func (s *Selector) Select(candidates []domain.Candidate, cfg Config) Selection {
	var sel Selection
	seen := make(map[string]bool, len(candidates))
	partitions := map[string][]domain.Candidate{}
	now := s.now()

	for _, c := range candidates {
		switch {
		case c.Validate() != nil:
			sel.DroppedInvalid++
			continue
		case seen[c.URL]:
			sel.DroppedDuplicate++
			continue
		}
		seen[c.URL] = true

		if c.Published {
			sel.DroppedPublished++
			continue
		}
		if cfg.MaxAge > 0 {
			if ref := c.ReferenceTime(); !ref.IsZero() && now.Sub(ref) > cfg.MaxAge {
				sel.DroppedStale++
				continue
			}
		}
		partitions[c.Source] = append(partitions[c.Source], c)
	}

	for _, b := range orderBuckets(partitions, cfg) {
		group := partitions[b.Source]
		if len(group) == 0 {
			continue
		}
		ranked := s.scorer.Rank(group)
		limit := b.Cap
		if limit < 0 {
			limit = 0
		}
		if limit < len(ranked) {
			sel.DroppedOverCap += len(ranked) - limit
			ranked = ranked[:limit]
		}
		sel.Candidates = append(sel.Candidates, ranked...)
	}

	return sel
}

func orderBuckets(partitions map[string][]domain.Candidate, cfg Config) []Bucket {
	buckets := make([]Bucket, 0, len(partitions))
	configured := make(map[string]bool, len(cfg.Buckets))
	for _, b := range cfg.Buckets {
		if configured[b.Source] {
			continue
		}
		configured[b.Source] = true
		buckets = append(buckets, b)
	}

	var rest []string
	for source := range partitions {
		if !configured[source] {
			rest = append(rest, source)
		}
	}
	sort.Strings(rest)
	for _, source := range rest {
		buckets = append(buckets, Bucket{Source: source, Cap: cfg.DefaultCap})
	}
	return buckets
}
