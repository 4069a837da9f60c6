// Package finalize merges rule and LLM scores into the final digest order.
package finalize

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"DigestRanker/internal/domain"
	"DigestRanker/internal/ports"
	"DigestRanker/internal/scoring"
)

const (
	defaultTopK              = 10
	defaultNearDupThreshold  = 0.8
	minShinglesForComparison = 3
)

// Options control ranking, filtering and size.
type Options struct {
	TopK           int
	RequireSummary bool
	// Ranking key is LLMWeight*llm + RuleWeight*rule.
	LLMWeight  float64
	RuleWeight float64
	// NearDupThreshold is the body shingle Jaccard similarity at which a later
	// entry is treated as a copy of an earlier one.
	NearDupThreshold float64
}

// DefaultOptions ranks by LLM score alone.
func DefaultOptions() Options {
	return Options{TopK: defaultTopK, LLMWeight: 1, NearDupThreshold: defaultNearDupThreshold}
}

// Key is the weighted ranking value of one entry.
func (o Options) Key(c domain.ScoredCandidate) float64 {
	return o.LLMWeight*c.LLMScore + o.RuleWeight*c.RuleScore
}

// Finalize filters, sorts, deduplicates and cuts to TopK. It is pure: the same
// input always yields the same digest, and nothing is marked published here.
// Duplicates of kept entries, including those past the cut, are listed in
// Digest.Suppressed.
func Finalize(scored []domain.ScoredCandidate, opts Options) domain.Digest {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.NearDupThreshold <= 0 {
		opts.NearDupThreshold = defaultNearDupThreshold
	}

	pool := make([]domain.ScoredCandidate, 0, len(scored))
	for _, c := range scored {
		if c.Published || c.URL == "" {
			continue
		}
		if opts.RequireSummary && strings.TrimSpace(c.Summary) == "" {
			continue
		}
		pool = append(pool, c)
	}

	Sort(pool, opts)

	var (
		entries    []domain.ScoredCandidate
		suppressed []string
		kept       = map[string]bool{}
		urls       = map[string]bool{}
		titles     = map[string]bool{}
		shingles   [][]string
	)
	for _, c := range pool {
		u := NormalizeURL(c.URL)
		t := NormalizeTitle(c.Title)
		sh := Shingles(c.Body)
		if urls[u] || (t != "" && titles[t]) || nearDuplicate(sh, shingles, opts.NearDupThreshold) {
			if !kept[c.URL] {
				kept[c.URL] = true
				suppressed = append(suppressed, c.URL)
			}
			continue
		}
		if len(entries) == opts.TopK {
			continue
		}

		urls[u] = true
		if t != "" {
			titles[t] = true
		}
		shingles = append(shingles, sh)
		kept[c.URL] = true
		entries = append(entries, c)
	}

	return domain.Digest{Entries: entries, Suppressed: suppressed}
}

// Sort orders by (usable LLM verdict first, key desc, rule desc, newer first),
// stable on input order.
func Sort(pool []domain.ScoredCandidate, opts Options) {
	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		if da, db := degraded(a), degraded(b); da != db {
			return !da
		}
		if ka, kb := opts.Key(a), opts.Key(b); ka != kb {
			return ka > kb
		}
		if a.RuleScore != b.RuleScore {
			return a.RuleScore > b.RuleScore
		}
		return scoring.NewerFirst(a.Candidate, b.Candidate)
	})
}

func degraded(c domain.ScoredCandidate) bool {
	return c.Rejected || c.Failed
}

func nearDuplicate(candidate []string, kept [][]string, threshold float64) bool {
	if len(candidate) < minShinglesForComparison {
		return false
	}
	for _, other := range kept {
		if len(other) < minShinglesForComparison {
			continue
		}
		if Jaccard(candidate, other) >= threshold {
			return true
		}
	}
	return false
}

// Publisher flips the published marker for a delivered digest.
type Publisher struct {
	store ports.PublishedStore
}

// NewPublisher wraps the idempotency store.
func NewPublisher(store ports.PublishedStore) *Publisher {
	return &Publisher{store: store}
}

// Publish marks every digest URL and every suppressed duplicate as published.
// Empty digests write nothing.
func (p *Publisher) Publish(ctx context.Context, digest domain.Digest) error {
	if p == nil || p.store == nil || digest.Empty() {
		return nil
	}
	urls := append(digest.URLs(), digest.Suppressed...)
	if err := p.store.MarkPublished(ctx, digest.Topic, urls); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}
