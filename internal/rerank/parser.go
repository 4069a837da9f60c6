package rerank

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	maxSummaryRunes = 180
	maxTopicRunes   = 10
)

// Verdict is the structured reading of one model response.
type Verdict struct {
	Score   float64
	Summary string
	Topic   string
	// Rejected is set when no strategy could read the response.
	Rejected bool
	// Layer names the strategy that produced the verdict.
	Layer string
}

// Strategy tries to read a raw response; ok=false passes to the next one.
type Strategy struct {
	Name  string
	Parse func(raw string) (Verdict, bool)
}

// DefaultChain is tried in order; the first success wins.
var DefaultChain = []Strategy{
	{Name: "json", Parse: TryStrictJSON},
	{Name: "fenced", Parse: TryFencedJSON},
	{Name: "numeric", Parse: TryNumericRegex},
}

var (
	fencePattern   = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")
	numberPattern  = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	summaryPattern = regexp.MustCompile(`(?i)["']?summary["']?\s*[:=]\s*["“]([^"”]*)["”]`)
	topicPattern   = regexp.MustCompile(`(?i)["']?topic["']?\s*[:=]\s*["“]([^"”]*)["”]`)
)

type scorePayload struct {
	Score   *float64 `json:"score"`
	Summary string   `json:"summary"`
	Topic   string   `json:"topic"`
}

// Parse runs the default chain and normalises the result. It never fails:
// unreadable output becomes a rejected zero score.
func Parse(raw string) Verdict {
	return ParseWith(raw, DefaultChain)
}

// ParseWith runs a custom chain.
func ParseWith(raw string, chain []Strategy) Verdict {
	if strings.TrimSpace(raw) == "" {
		return Verdict{Rejected: true, Layer: "empty"}
	}
	for _, strategy := range chain {
		if v, ok := strategy.Parse(raw); ok {
			v.Layer = strategy.Name
			return normalize(v)
		}
	}
	return Verdict{Rejected: true, Layer: "rejected"}
}

// TryStrictJSON accepts a single JSON object with a numeric score.
func TryStrictJSON(raw string) (Verdict, bool) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return Verdict{}, false
	}
	var payload scorePayload
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil || payload.Score == nil {
		return Verdict{}, false
	}
	return Verdict{Score: *payload.Score, Summary: payload.Summary, Topic: payload.Topic}, true
}

// TryFencedJSON strips a code fence, or failing that takes the outermost
// brace span, and retries the strict parse.
func TryFencedJSON(raw string) (Verdict, bool) {
	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		if v, ok := TryStrictJSON(m[1]); ok {
			return v, true
		}
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Verdict{}, false
	}
	return TryStrictJSON(raw[start : end+1])
}

// TryNumericRegex takes the first number in the text as the score and picks up
// loosely quoted summary and topic fields if present.
func TryNumericRegex(raw string) (Verdict, bool) {
	// Field values can contain digits, so search for the score outside them.
	stripped := summaryPattern.ReplaceAllString(raw, "")
	stripped = topicPattern.ReplaceAllString(stripped, "")

	token := numberPattern.FindString(stripped)
	if token == "" {
		return Verdict{}, false
	}
	score, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return Verdict{}, false
	}

	v := Verdict{Score: score}
	if m := summaryPattern.FindStringSubmatch(raw); m != nil {
		v.Summary = m[1]
	}
	if m := topicPattern.FindStringSubmatch(raw); m != nil {
		v.Topic = m[1]
	}
	return v, true
}

// ClampScore bounds a score to [0, 100]; NaN becomes 0.
func ClampScore(score float64) float64 {
	switch {
	case math.IsNaN(score), score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}

func normalize(v Verdict) Verdict {
	v.Score = ClampScore(v.Score)
	v.Summary = truncateRunes(strings.TrimSpace(v.Summary), maxSummaryRunes, "...")
	v.Topic = truncateRunes(strings.TrimSpace(v.Topic), maxTopicRunes, "")
	return v
}

func truncateRunes(s string, limit int, marker string) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + marker
}
