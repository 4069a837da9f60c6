package domain

import (
	"fmt"
	"time"
)

// Candidate is a single scraped item awaiting ranking.
type Candidate struct {
	ID          string
	Topic       string
	Title       string
	Body        string
	URL         string
	Source      string
	PublishedAt time.Time
	ScrapedAt   time.Time
	Published   bool
}

// ReferenceTime returns the publication time, falling back to the scrape time.
// A zero result means the age is unknown.
func (c Candidate) ReferenceTime() time.Time {
	if !c.PublishedAt.IsZero() {
		return c.PublishedAt
	}
	return c.ScrapedAt
}

// Validate reports ErrInvalidCandidate when the URL, the identity key used for
// dedup and published flags, is empty.
func (c Candidate) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: empty url (title %q)", ErrInvalidCandidate, c.Title)
	}
	return nil
}

// ScoredCandidate carries a candidate together with its rule and LLM assessments.
type ScoredCandidate struct {
	Candidate
	RuleScore   float64
	LLMScore    float64
	HasLLMScore bool
	Summary     string
	Topic       string
	// Rejected marks output that no parser layer could interpret.
	Rejected bool
	// Failed marks candidates whose LLM call exhausted its retries.
	Failed bool
}

// Digest is the final ranked, deduplicated selection for one topic.
type Digest struct {
	Topic       string
	RunID       string
	GeneratedAt time.Time
	Entries     []ScoredCandidate
	// Suppressed holds URLs dropped as duplicates of an entry. They are
	// marked published together with the entries.
	Suppressed []string
}

// DigestItem is the consumer-facing triple emitted per entry.
type DigestItem struct {
	Title       string
	Description string
	URL         string
}

// Empty reports whether the digest has nothing to deliver.
func (d Digest) Empty() bool {
	return len(d.Entries) == 0
}

// URLs lists entry URLs in digest order.
func (d Digest) URLs() []string {
	urls := make([]string, 0, len(d.Entries))
	for _, e := range d.Entries {
		urls = append(urls, e.URL)
	}
	return urls
}

// Items maps entries to {title, summary or body, url}.
func (d Digest) Items() []DigestItem {
	items := make([]DigestItem, 0, len(d.Entries))
	for _, e := range d.Entries {
		desc := e.Summary
		if desc == "" {
			desc = e.Body
		}
		items = append(items, DigestItem{Title: e.Title, Description: desc, URL: e.URL})
	}
	return items
}
