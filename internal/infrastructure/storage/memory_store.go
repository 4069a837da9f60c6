package storage

import (
	"context"
	"sync"

	"DigestRanker/internal/domain"
	"DigestRanker/internal/ports"
)

// MemoryStore is a process-local store for dry runs and tests.
type MemoryStore struct {
	mu         sync.Mutex
	candidates map[string][]domain.Candidate
	published  map[string]map[string]bool
}

var (
	_ ports.CandidateStore = (*MemoryStore)(nil)
	_ ports.PublishedStore = (*MemoryStore)(nil)
)

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		candidates: map[string][]domain.Candidate{},
		published:  map[string]map[string]bool{},
	}
}

// Save appends candidates whose (topic, url) is new.
func (m *MemoryStore) Save(_ context.Context, candidates []domain.Candidate) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := 0
	for _, c := range candidates {
		if c.Validate() != nil || m.hasLocked(c.Topic, c.URL) {
			continue
		}
		m.candidates[c.Topic] = append(m.candidates[c.Topic], c)
		inserted++
	}
	return inserted, nil
}

// ListUnpublished returns candidates in insertion order with Published cleared.
func (m *MemoryStore) ListUnpublished(_ context.Context, topic string) ([]domain.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Candidate
	for _, c := range m.candidates[topic] {
		if m.published[topic][c.URL] {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Published reports which urls are marked.
func (m *MemoryStore) Published(_ context.Context, topic string, urls []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[string]bool)
	for _, u := range urls {
		if m.published[topic][u] {
			result[u] = true
		}
	}
	return result, nil
}

// MarkPublished marks urls; repeating it is a no-op.
func (m *MemoryStore) MarkPublished(_ context.Context, topic string, urls []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.published[topic] == nil {
		m.published[topic] = map[string]bool{}
	}
	for _, u := range urls {
		m.published[topic][u] = true
	}
	return nil
}

func (m *MemoryStore) hasLocked(topic, url string) bool {
	for _, c := range m.candidates[topic] {
		if c.URL == url {
			return true
		}
	}
	return false
}
