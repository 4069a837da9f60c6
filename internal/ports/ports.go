package ports

import (
	"context"
	"time"

	"DigestRanker/internal/domain"
)

// CandidateSource pulls fresh candidates from upstream feeds.
type CandidateSource interface {
	Fetch(ctx context.Context, topic string, now time.Time) ([]domain.Candidate, error)
}

// CandidateStore persists scraped candidates per topic.
type CandidateStore interface {
	ListUnpublished(ctx context.Context, topic string) ([]domain.Candidate, error)
	Save(ctx context.Context, candidates []domain.Candidate) (int, error)
}

// PublishedStore remembers which URLs already went out in a digest.
type PublishedStore interface {
	Published(ctx context.Context, topic string, urls []string) (map[string]bool, error)
	MarkPublished(ctx context.Context, topic string, urls []string) error
}

// TextGenerator sends a system instruction plus one input to an LLM.
type TextGenerator interface {
	Generate(ctx context.Context, system, input string) (string, error)
}

// Notifier streams digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, message string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
