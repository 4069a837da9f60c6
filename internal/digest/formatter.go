// Package digest renders finalized digests into delivery payloads.
package digest

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"DigestRanker/internal/domain"
	"DigestRanker/internal/textutil"
)

const defaultDescriptionRunes = 220

// Formatter turns digests into Telegram HTML messages and JSON payloads.
type Formatter struct {
	policy           *bluemonday.Policy
	descriptionRunes int
	location         *time.Location
}

// NewFormatter renders dates in loc.
func NewFormatter(loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.UTC
	}
	return &Formatter{
		policy:           bluemonday.StrictPolicy(),
		descriptionRunes: defaultDescriptionRunes,
		location:         loc,
	}
}

// Item is one rendered digest entry.
type Item struct {
	Rank        int     `json:"rank"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	URL         string  `json:"url"`
	Source      string  `json:"source,omitempty"`
	Topic       string  `json:"topic,omitempty"`
	Score       float64 `json:"score"`
}

// Items converts entries into plain-text items, preferring the LLM summary
// over a truncated body.
func (f *Formatter) Items(d domain.Digest) []Item {
	items := make([]Item, 0, len(d.Entries))
	for i, e := range d.Entries {
		desc := f.clean(e.Summary)
		if desc == "" {
			desc = textutil.Truncate(f.clean(e.Body), f.descriptionRunes, "…")
		}
		items = append(items, Item{
			Rank:        i + 1,
			Title:       f.clean(e.Title),
			Description: desc,
			URL:         e.URL,
			Source:      e.Source,
			Topic:       f.clean(e.Topic),
			Score:       e.LLMScore,
		})
	}
	return items
}

// Message renders the digest as Telegram HTML.
func (f *Formatter) Message(d domain.Digest) string {
	if d.Empty() {
		return f.EmptyMessage(d.Topic, d.GeneratedAt)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s digest · %s</b>\n", html.EscapeString(d.Topic), f.date(d.GeneratedAt))
	for _, it := range f.Items(d) {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%d. <b>%s</b>", it.Rank, html.EscapeString(it.Title))
		if it.Topic != "" {
			fmt.Fprintf(&b, " [%s]", html.EscapeString(it.Topic))
		}
		b.WriteString("\n")
		if it.Description != "" {
			b.WriteString(html.EscapeString(it.Description))
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "<a href=\"%s\">%s</a>\n", html.EscapeString(it.URL), html.EscapeString(it.URL))
	}
	return b.String()
}

// EmptyMessage is sent when a cycle produced nothing and the topic asks to say so.
func (f *Formatter) EmptyMessage(topic string, at time.Time) string {
	return fmt.Sprintf("<b>%s digest · %s</b>\nNo notable posts this cycle.", html.EscapeString(topic), f.date(at))
}

// JSON encodes the digest items for machine consumers.
func (f *Formatter) JSON(d domain.Digest) ([]byte, error) {
	payload := struct {
		Topic       string    `json:"topic"`
		RunID       string    `json:"run_id"`
		GeneratedAt time.Time `json:"generated_at"`
		Items       []Item    `json:"items"`
	}{
		Topic:       d.Topic,
		RunID:       d.RunID,
		GeneratedAt: d.GeneratedAt,
		Items:       f.Items(d),
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal digest: %w", err)
	}
	return out, nil
}

func (f *Formatter) clean(s string) string {
	return textutil.NormalizeSpace(html.UnescapeString(f.policy.Sanitize(s)))
}

func (f *Formatter) date(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(f.location).Format("2006-01-02")
}
