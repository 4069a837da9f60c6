package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"DigestRanker/internal/domain"
	"DigestRanker/internal/ports"
)

const keyPrefix = "digest"

// RedisStore keeps candidates in a per-topic hash and published URLs in a
// per-topic set.
type RedisStore struct {
	client *redis.Client
}

var (
	_ ports.CandidateStore = (*RedisStore)(nil)
	_ ports.PublishedStore = (*RedisStore)(nil)
)

// NewRedisStore connects to addr.
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

type redisCandidate struct {
	Seq         int64     `json:"seq"`
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

func candidatesKey(topic string) string { return keyPrefix + ":candidates:" + topic }
func publishedKey(topic string) string  { return keyPrefix + ":published:" + topic }
func sequenceKey(topic string) string   { return keyPrefix + ":seq:" + topic }

// Save stores candidates that are not yet present for their topic.
func (s *RedisStore) Save(ctx context.Context, candidates []domain.Candidate) (int, error) {
	inserted := 0
	for _, c := range candidates {
		if c.Validate() != nil {
			continue
		}
		exists, err := s.client.HExists(ctx, candidatesKey(c.Topic), c.URL).Result()
		if err != nil {
			return inserted, fmt.Errorf("check candidate: %w", err)
		}
		if exists {
			continue
		}

		seq, err := s.client.Incr(ctx, sequenceKey(c.Topic)).Result()
		if err != nil {
			return inserted, fmt.Errorf("next sequence: %w", err)
		}
		payload, err := json.Marshal(redisCandidate{
			Seq: seq, ID: c.ID, Title: c.Title, Body: c.Body, URL: c.URL,
			Source: c.Source, PublishedAt: c.PublishedAt, ScrapedAt: c.ScrapedAt,
		})
		if err != nil {
			return inserted, fmt.Errorf("marshal candidate: %w", err)
		}
		ok, err := s.client.HSetNX(ctx, candidatesKey(c.Topic), c.URL, payload).Result()
		if err != nil {
			return inserted, fmt.Errorf("store candidate: %w", err)
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// ListUnpublished returns stored candidates not in the published set, oldest insert first.
func (s *RedisStore) ListUnpublished(ctx context.Context, topic string) ([]domain.Candidate, error) {
	raw, err := s.client.HGetAll(ctx, candidatesKey(topic)).Result()
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	published, err := s.client.SMembers(ctx, publishedKey(topic)).Result()
	if err != nil {
		return nil, fmt.Errorf("load published: %w", err)
	}
	done := make(map[string]bool, len(published))
	for _, u := range published {
		done[u] = true
	}

	stored := make([]redisCandidate, 0, len(raw))
	for u, payload := range raw {
		if done[u] {
			continue
		}
		var rc redisCandidate
		if err := json.Unmarshal([]byte(payload), &rc); err != nil {
			return nil, fmt.Errorf("decode candidate %s: %w", u, err)
		}
		stored = append(stored, rc)
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].Seq < stored[j].Seq })

	out := make([]domain.Candidate, 0, len(stored))
	for _, rc := range stored {
		out = append(out, domain.Candidate{
			ID: rc.ID, Topic: topic, Title: rc.Title, Body: rc.Body, URL: rc.URL,
			Source: rc.Source, PublishedAt: rc.PublishedAt, ScrapedAt: rc.ScrapedAt,
		})
	}
	return out, nil
}

// Published reports which urls are in the topic's published set.
func (s *RedisStore) Published(ctx context.Context, topic string, urls []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(urls) == 0 {
		return result, nil
	}
	members := make([]any, len(urls))
	for i, u := range urls {
		members[i] = u
	}
	flags, err := s.client.SMIsMember(ctx, publishedKey(topic), members...).Result()
	if err != nil {
		return nil, fmt.Errorf("check published: %w", err)
	}
	for i, ok := range flags {
		if ok {
			result[urls[i]] = true
		}
	}
	return result, nil
}

// MarkPublished adds urls to the topic's published set; SADD is idempotent.
func (s *RedisStore) MarkPublished(ctx context.Context, topic string, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	members := make([]any, len(urls))
	for i, u := range urls {
		members[i] = u
	}
	if err := s.client.SAdd(ctx, publishedKey(topic), members...).Err(); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}
