package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"DigestRanker/internal/domain"
	"DigestRanker/internal/scanner"
	"DigestRanker/internal/textutil"
)

const userAgent = "DigestRanker/1.0"

// RSSScanner reads RSS, Atom and JSON feeds through gofeed.
type RSSScanner struct {
	client *http.Client
}

var _ scanner.Scanner = (*RSSScanner)(nil)

// NewRSSScanner wires an HTTP client; nil gets a 20s timeout client.
func NewRSSScanner(client *http.Client) *RSSScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &RSSScanner{client: client}
}

// Name identifies the strategy inside the registry.
func (s *RSSScanner) Name() string {
	return "rss"
}

// Scan downloads the feed and maps each item to a candidate.
func (s *RSSScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Candidate, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("feed %s: url is empty", req.Source)
	}

	fp := gofeed.NewParser()
	fp.Client = s.client
	fp.UserAgent = userAgent

	parsed, err := fp.ParseURLWithContext(req.URL, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) {
			return nil, &domain.StatusError{Code: httpErr.StatusCode, Body: httpErr.Status}
		}
		return nil, fmt.Errorf("parse feed %s: %w", req.URL, err)
	}

	candidates := make([]domain.Candidate, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		c, ok := toCandidate(item, req)
		if !ok {
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func toCandidate(item *gofeed.Item, req scanner.Request) (domain.Candidate, bool) {
	link := strings.TrimSpace(item.Link)
	if link == "" && len(item.Links) > 0 {
		link = strings.TrimSpace(item.Links[0])
	}
	title := textutil.StripHTML(item.Title)
	if link == "" || title == "" {
		return domain.Candidate{}, false
	}

	body := item.Description
	if body == "" {
		body = item.Content
	}

	id := item.GUID
	if id == "" {
		id = link
	}

	return domain.Candidate{
		ID:          id,
		Topic:       req.Topic,
		Title:       title,
		Body:        textutil.StripHTML(body),
		URL:         link,
		Source:      req.Source,
		PublishedAt: itemTime(item, req.Zone()),
		ScrapedAt:   req.Now,
	}, true
}

func itemTime(item *gofeed.Item, loc *time.Location) time.Time {
	switch {
	case item.PublishedParsed != nil:
		return *item.PublishedParsed
	case item.UpdatedParsed != nil:
		return *item.UpdatedParsed
	}
	for _, raw := range []string{item.Published, item.Updated} {
		if t, ok := domain.ParseFlexibleDateIn(raw, loc); ok {
			return t
		}
	}
	return time.Time{}
}
