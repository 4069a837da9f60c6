// Package scoring computes the deterministic rule score used to prefilter
// candidates before the LLM stage.
package scoring

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"DigestRanker/internal/domain"
)

// DefaultSource is the RecencyWindows key used for sources without their own entry.
const DefaultSource = "default"

var defaultWindows = []int{10, 20, 30}

// Config holds the keyword tables and component weights.
type Config struct {
	KeywordWeights  map[string]float64
	IssueKeywords   []string
	ProductKeywords []string
	// RecencyWindows maps a source to ascending day thresholds.
	RecencyWindows    map[string][]int
	RepetitionPenalty float64
	RecencyWeight     float64
	KeywordWeight     float64
	BoostWeight       float64
}

// Breakdown exposes the individual components of one rule score.
type Breakdown struct {
	Recency float64
	Keyword float64
	Boost   float64
	Penalty float64
	Total   float64
}

type weightedKeyword struct {
	term   string
	weight float64
}

// Scorer is safe for concurrent use; it holds no per-batch state.
type Scorer struct {
	cfg        Config
	keywords   []weightedKeyword
	issue      []string
	product    []string
	repetition []*regexp.Regexp
	now        func() time.Time
}

// Option customises a Scorer.
type Option func(*Scorer)

// WithClock fixes the reference time used for recency.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) {
		s.now = now
	}
}

// New compiles keyword tables into a Scorer.
func New(cfg Config, opts ...Option) *Scorer {
	s := &Scorer{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	for term, weight := range cfg.KeywordWeights {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		s.keywords = append(s.keywords, weightedKeyword{term: term, weight: weight})
	}
	// Fixed summation order keeps float totals identical between runs.
	sort.Slice(s.keywords, func(i, j int) bool { return s.keywords[i].term < s.keywords[j].term })

	s.issue = normalizeTerms(cfg.IssueKeywords)
	s.product = normalizeTerms(cfg.ProductKeywords)

	seen := map[string]bool{}
	all := append(append(append([]string{}, s.issue...), s.product...), keywordTerms(s.keywords)...)
	for _, term := range all {
		if seen[term] {
			continue
		}
		seen[term] = true
		s.repetition = append(s.repetition, regexp.MustCompile(`(?i)(?:`+regexp.QuoteMeta(term)+`\s*){3,}`))
	}
	return s
}

// Score rules a single candidate as a batch of one.
func (s *Scorer) Score(c domain.Candidate) float64 {
	return s.ScoreBatch([]domain.Candidate{c})[0].RuleScore
}

// ScoreBatch scores candidates in input order. Percentile boosts are relative
// to this batch only.
func (s *Scorer) ScoreBatch(candidates []domain.Candidate) []domain.ScoredCandidate {
	breakdowns := s.Breakdowns(candidates)
	out := make([]domain.ScoredCandidate, len(candidates))
	for i, c := range candidates {
		out[i] = domain.ScoredCandidate{Candidate: c, RuleScore: breakdowns[i].Total}
	}
	return out
}

// Rank scores the batch and sorts it by rule score.
func (s *Scorer) Rank(candidates []domain.Candidate) []domain.ScoredCandidate {
	scored := s.ScoreBatch(candidates)
	SortByRule(scored)
	return scored
}

// Breakdowns runs both passes: raw per-candidate counts, then batch quantiles.
func (s *Scorer) Breakdowns(candidates []domain.Candidate) []Breakdown {
	now := s.now()
	issueRaw := make([]float64, len(candidates))
	productRaw := make([]float64, len(candidates))
	out := make([]Breakdown, len(candidates))

	for i, c := range candidates {
		title := strings.ToLower(c.Title)
		body := strings.ToLower(c.Body)

		out[i].Recency = float64(s.recency(c, now))
		out[i].Keyword = s.keywordScore(title + "\n" + body)
		if s.repeated(c.Title) || s.repeated(c.Body) {
			out[i].Penalty = s.cfg.RepetitionPenalty
		}
		issueRaw[i] = float64(countAll(body, s.issue))
		if containsAny(body, s.product) {
			productRaw[i] = 1
		}
	}

	issueBoost := PercentileBoost(issueRaw)
	productBoost := PercentileBoost(productRaw)
	for i := range out {
		out[i].Boost = float64(issueBoost[i] + productBoost[i])
		out[i].Total = s.cfg.RecencyWeight*out[i].Recency +
			s.cfg.KeywordWeight*out[i].Keyword +
			s.cfg.BoostWeight*out[i].Boost -
			out[i].Penalty
	}
	return out
}

// recency counts how many of the source's day windows the candidate's age fits into.
func (s *Scorer) recency(c domain.Candidate, now time.Time) int {
	ref := c.ReferenceTime()
	if ref.IsZero() {
		return 0
	}
	days := int(math.Floor(now.Sub(ref).Hours() / 24))
	if days < 0 {
		days = 0
	}

	windows, ok := s.cfg.RecencyWindows[c.Source]
	if !ok {
		windows, ok = s.cfg.RecencyWindows[DefaultSource]
	}
	if !ok || len(windows) == 0 {
		windows = defaultWindows
	}

	score := 0
	for _, w := range windows {
		if days <= w {
			score++
		}
	}
	return score
}

func (s *Scorer) keywordScore(text string) float64 {
	var sum float64
	for _, kw := range s.keywords {
		if strings.Contains(text, kw.term) {
			sum += kw.weight
		}
	}
	return sum
}

func (s *Scorer) repeated(text string) bool {
	if text == "" {
		return false
	}
	for _, re := range s.repetition {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// SortByRule orders by rule score desc, reference date desc (unknown last),
// then input order.
func SortByRule(scored []domain.ScoredCandidate) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].RuleScore != scored[j].RuleScore {
			return scored[i].RuleScore > scored[j].RuleScore
		}
		return NewerFirst(scored[i].Candidate, scored[j].Candidate)
	})
}

// NewerFirst reports whether a should precede b by reference date.
// Unknown dates sort after known ones.
func NewerFirst(a, b domain.Candidate) bool {
	ta, tb := a.ReferenceTime(), b.ReferenceTime()
	switch {
	case ta.IsZero():
		return false
	case tb.IsZero():
		return true
	default:
		return ta.After(tb)
	}
}

func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func keywordTerms(kws []weightedKeyword) []string {
	out := make([]string, 0, len(kws))
	for _, kw := range kws {
		out = append(out, kw.term)
	}
	return out
}

func countAll(text string, terms []string) int {
	n := 0
	for _, t := range terms {
		n += strings.Count(text, t)
	}
	return n
}

func containsAny(text string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}
