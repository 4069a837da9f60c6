package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"DigestRanker/internal/domain"
	"DigestRanker/internal/scanner"
	"DigestRanker/internal/textutil"
)

// Default selectors for HTMLScanner; each can be overridden through feed options.
const (
	defaultItemSelector  = "article"
	defaultTitleSelector = "h2, h3, .title"
	defaultLinkSelector  = "a[href]"
	defaultBodySelector  = "p, .summary"
	defaultDateSelector  = "time, .date"
)

// HTMLScanner scrapes a listing page (board, blog index) with CSS selectors.
type HTMLScanner struct {
	client *http.Client
}

var _ scanner.Scanner = (*HTMLScanner)(nil)

// NewHTMLScanner wires an HTTP client; nil gets a 20s timeout client.
func NewHTMLScanner(client *http.Client) *HTMLScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &HTMLScanner{client: client}
}

// Name identifies the strategy inside the registry.
func (h *HTMLScanner) Name() string {
	return "html"
}

// Scan fetches the listing page and returns one candidate per matched item.
func (h *HTMLScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Candidate, error) {
	base, err := url.Parse(req.URL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid listing url %q", req.URL)
	}

	doc, err := h.fetchDocument(ctx, req.URL)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", req.Source, err)
	}

	sel := selectors{
		item:  req.Option("item", defaultItemSelector),
		title: req.Option("title", defaultTitleSelector),
		link:  req.Option("link", defaultLinkSelector),
		body:  req.Option("body", defaultBodySelector),
		date:  req.Option("date", defaultDateSelector),
	}

	var (
		results []domain.Candidate
		seen    = map[string]struct{}{}
	)
	doc.Find(sel.item).Each(func(_ int, item *goquery.Selection) {
		c, ok := parseItem(item, sel, base, req)
		if !ok {
			return
		}
		if _, dup := seen[c.URL]; dup {
			return
		}
		seen[c.URL] = struct{}{}
		results = append(results, c)
	})

	return results, nil
}

func (h *HTMLScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.StatusError{Code: resp.StatusCode, Body: resp.Status}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

type selectors struct {
	item, title, link, body, date string
}

func parseItem(item *goquery.Selection, sel selectors, base *url.URL, req scanner.Request) (domain.Candidate, bool) {
	title := textutil.NormalizeSpace(item.Find(sel.title).First().Text())

	anchor := item.Find(sel.link).First()
	if item.Is(sel.link) {
		anchor = item
	}
	href, _ := anchor.Attr("href")
	if title == "" {
		title = textutil.NormalizeSpace(anchor.Text())
	}
	if title == "" || strings.TrimSpace(href) == "" {
		return domain.Candidate{}, false
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return domain.Candidate{}, false
	}
	link := base.ResolveReference(ref).String()

	body := textutil.NormalizeSpace(item.Find(sel.body).First().Text())

	dateNode := item.Find(sel.date).First()
	rawDate, ok := dateNode.Attr("datetime")
	if !ok {
		rawDate = dateNode.Text()
	}
	publishedAt, _ := domain.ParseFlexibleDateIn(strings.TrimSpace(rawDate), req.Zone())

	return domain.Candidate{
		ID:          link,
		Topic:       req.Topic,
		Title:       title,
		Body:        body,
		URL:         link,
		Source:      req.Source,
		PublishedAt: publishedAt,
		ScrapedAt:   req.Now,
	}, true
}
