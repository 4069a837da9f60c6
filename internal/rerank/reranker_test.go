package rerank

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DigestRanker/internal/domain"
	"DigestRanker/internal/logging"
	"DigestRanker/internal/retry"
)

type generatorFunc func(ctx context.Context, system, input string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, system, input string) (string, error) {
	return f(ctx, system, input)
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}
}

func batch(n int) []domain.ScoredCandidate {
	out := make([]domain.ScoredCandidate, n)
	for i := range out {
		out[i] = domain.ScoredCandidate{Candidate: domain.Candidate{
			Title: fmt.Sprintf("title-%d", i),
			URL:   fmt.Sprintf("https://example.com/%d", i),
		}}
	}
	return out
}

func indexOf(input string) int {
	var idx int
	start := strings.Index(input, "title-")
	_, _ = fmt.Sscanf(input[start:], "title-%d", &idx)
	return idx
}

func TestRerankRespectsConcurrencyBound(t *testing.T) {
	t.Parallel()

	var inFlight, peak int64
	gen := generatorFunc(func(ctx context.Context, _, _ string) (string, error) {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return "50", nil
	})

	r := New(gen, Options{Concurrency: 3, Retry: fastRetry()}, logging.Discard())
	out, stats, err := r.Rerank(context.Background(), batch(20))

	require.NoError(t, err)
	assert.Len(t, out, 20)
	assert.Equal(t, 20, stats.Scored)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(3))
	assert.GreaterOrEqual(t, atomic.LoadInt64(&peak), int64(1))
}

func TestRerankKeepsInputOrder(t *testing.T) {
	t.Parallel()

	gen := generatorFunc(func(_ context.Context, _, input string) (string, error) {
		idx := indexOf(input)
		time.Sleep(time.Duration(10-idx) * time.Millisecond)
		return fmt.Sprintf(`{"score": %d, "summary": "s%d"}`, idx*10, idx), nil
	})

	r := New(gen, Options{Concurrency: 5, Retry: fastRetry()}, logging.Discard())
	out, _, err := r.Rerank(context.Background(), batch(8))
	require.NoError(t, err)

	for i, c := range out {
		assert.Equal(t, float64(i*10), c.LLMScore)
		assert.Equal(t, fmt.Sprintf("s%d", i), c.Summary)
		assert.True(t, c.HasLLMScore)
	}
}

func TestRerankRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	calls := map[int]int{}
	gen := generatorFunc(func(_ context.Context, _, input string) (string, error) {
		idx := indexOf(input)
		mu.Lock()
		calls[idx]++
		n := calls[idx]
		mu.Unlock()
		if idx == 1 && n <= 2 {
			return "", &domain.StatusError{Code: 503}
		}
		return "88", nil
	})

	r := New(gen, Options{Concurrency: 2, Retry: fastRetry()}, logging.Discard())
	out, stats, err := r.Rerank(context.Background(), batch(3))
	require.NoError(t, err)

	assert.False(t, out[1].Failed)
	assert.Equal(t, 88.0, out[1].LLMScore)
	assert.Equal(t, 3, calls[1])
	assert.Equal(t, 3, stats.Scored)
}

func TestRerankDegradesExhaustedCandidate(t *testing.T) {
	t.Parallel()

	var attempts int64
	gen := generatorFunc(func(_ context.Context, _, input string) (string, error) {
		if indexOf(input) == 0 {
			atomic.AddInt64(&attempts, 1)
			return "", fmt.Errorf("dial: %w", domain.ErrTransient)
		}
		return "70", nil
	})

	r := New(gen, Options{Concurrency: 2, Retry: fastRetry()}, logging.Discard())
	out, stats, err := r.Rerank(context.Background(), batch(3))
	require.NoError(t, err)

	assert.True(t, out[0].Failed)
	assert.Equal(t, 0.0, out[0].LLMScore)
	assert.Equal(t, int64(3), atomic.LoadInt64(&attempts))
	assert.Equal(t, 70.0, out[2].LLMScore)
	assert.Equal(t, Stats{Scored: 2, Failed: 1}, stats)
}

func TestRerankDoesNotRetryNonTransient(t *testing.T) {
	t.Parallel()

	var attempts int64
	gen := generatorFunc(func(_ context.Context, _, input string) (string, error) {
		if indexOf(input) == 0 {
			atomic.AddInt64(&attempts, 1)
			return "", &domain.StatusError{Code: 400}
		}
		return "10", nil
	})

	r := New(gen, Options{Retry: fastRetry()}, logging.Discard())
	out, _, err := r.Rerank(context.Background(), batch(2))
	require.NoError(t, err)
	assert.True(t, out[0].Failed)
	assert.Equal(t, int64(1), atomic.LoadInt64(&attempts))
}

func TestRerankTimeoutIsRetriedAndIsolated(t *testing.T) {
	t.Parallel()

	gen := generatorFunc(func(ctx context.Context, _, input string) (string, error) {
		if indexOf(input) == 0 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "40", nil
	})

	r := New(gen, Options{Concurrency: 2, Timeout: 10 * time.Millisecond, Retry: fastRetry()}, logging.Discard())
	out, stats, err := r.Rerank(context.Background(), batch(4))
	require.NoError(t, err)

	assert.True(t, out[0].Failed)
	for _, c := range out[1:] {
		assert.Equal(t, 40.0, c.LLMScore)
	}
	assert.Equal(t, 1, stats.Failed)
}

func TestRerankAllFailedIsFatal(t *testing.T) {
	t.Parallel()

	gen := generatorFunc(func(context.Context, string, string) (string, error) {
		return "", errors.New("connection refused")
	})

	r := New(gen, Options{Retry: fastRetry()}, logging.Discard())
	_, _, err := r.Rerank(context.Background(), batch(3))
	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
}

func TestRerankRejectedOutputIsNotFailure(t *testing.T) {
	t.Parallel()

	gen := generatorFunc(func(context.Context, string, string) (string, error) {
		return "I cannot rate this.", nil
	})

	r := New(gen, Options{Retry: fastRetry()}, logging.Discard())
	out, stats, err := r.Rerank(context.Background(), batch(2))
	require.NoError(t, err)
	assert.True(t, out[0].Rejected)
	assert.False(t, out[0].HasLLMScore)
	assert.Equal(t, 2, stats.Rejected)
}

func TestRerankEmptyBatch(t *testing.T) {
	t.Parallel()

	r := New(generatorFunc(func(context.Context, string, string) (string, error) {
		t.Fatal("generator must not be called")
		return "", nil
	}), Options{}, logging.Discard())

	out, _, err := r.Rerank(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestBuildInputTruncatesBody(t *testing.T) {
	t.Parallel()

	c := domain.Candidate{
		Title:       "제목",
		Body:        strings.Repeat("나", 2000),
		URL:         "https://example.com/a",
		Source:      "blog",
		PublishedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	input := BuildInput(c, 1500)

	assert.Contains(t, input, "[Title] 제목")
	assert.Contains(t, input, strings.Repeat("나", 1500)+"...")
	assert.NotContains(t, input, strings.Repeat("나", 1501))
	assert.Contains(t, input, "[Link] https://example.com/a")
	assert.Contains(t, input, "[Date] 2024-01-02")
}
